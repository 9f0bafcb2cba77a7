package geometry

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

//UnitBox is the [0,1]² box relative coordinates are clipped to
var UnitBox = BoundingBox{Max: Point{X: 1, Y: 1}}

//BoundingBox is an axis aligned box with Min.X <= Max.X and Min.Y <= Max.Y
type BoundingBox struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

//NewBoundingBox orders the given corners so the box invariant holds
func NewBoundingBox(x1, y1, x2, y2 float64) BoundingBox {
	return BoundingBox{
		Min: Point{X: math.Min(x1, x2), Y: math.Min(y1, y2)},
		Max: Point{X: math.Max(x1, x2), Y: math.Max(y1, y2)},
	}
}

func FromRect(r image.Rectangle) BoundingBox {
	return NewBoundingBox(float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y))
}

func (b BoundingBox) Width() float64 {
	return b.Max.X - b.Min.X
}

func (b BoundingBox) Height() float64 {
	return b.Max.Y - b.Min.Y
}

func (b BoundingBox) Area() float64 {
	return b.Width() * b.Height()
}

func (b BoundingBox) Center() Point {
	return Point{X: (b.Min.X + b.Max.X) / 2, Y: (b.Min.Y + b.Max.Y) / 2}
}

//BottomCenter is the ground contact point of a player box
func (b BoundingBox) BottomCenter() Point {
	return Point{X: (b.Min.X + b.Max.X) / 2, Y: b.Max.Y}
}

//Union returns the minimal box enclosing both boxes
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		Min: Point{X: math.Min(b.Min.X, o.Min.X), Y: math.Min(b.Min.Y, o.Min.Y)},
		Max: Point{X: math.Max(b.Max.X, o.Max.X), Y: math.Max(b.Max.Y, o.Max.Y)},
	}
}

//Scale shrinks the box about its center. factor must be in (0,1].
func (b BoundingBox) Scale(factor float64) BoundingBox {
	if factor <= 0 || factor > 1 {
		factor = 1
	}
	c := b.Center()
	hw, hh := b.Width()*factor/2, b.Height()*factor/2
	return BoundingBox{
		Min: Point{X: c.X - hw, Y: c.Y - hh},
		Max: Point{X: c.X + hw, Y: c.Y + hh},
	}
}

//Contains reports whether p lies in the closed box
func (b BoundingBox) Contains(p Point) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

//Intersects reports whether the closed boxes share at least one point
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.Min.X <= o.Max.X && o.Min.X <= b.Max.X && b.Min.Y <= o.Max.Y && o.Min.Y <= b.Max.Y
}

func (b BoundingBox) IntersectionArea(o BoundingBox) float64 {
	w := math.Min(b.Max.X, o.Max.X) - math.Max(b.Min.X, o.Min.X)
	h := math.Min(b.Max.Y, o.Max.Y) - math.Max(b.Min.Y, o.Min.Y)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func (b BoundingBox) IoU(o BoundingBox) float64 {
	inter := b.IntersectionArea(o)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

//Clip returns b intersected with bounds. A box fully outside collapses onto the nearest edge.
func (b BoundingBox) Clip(bounds BoundingBox) BoundingBox {
	return BoundingBox{Min: b.Min.Clip(bounds), Max: b.Max.Clip(bounds)}
}

func (b BoundingBox) ToRelative(r Resolution) (BoundingBox, error) {
	lo, err := b.Min.ToRelative(r)
	if err != nil {
		return BoundingBox{}, err
	}
	hi, err := b.Max.ToRelative(r)
	if err != nil {
		return BoundingBox{}, err
	}
	return BoundingBox{Min: lo, Max: hi}, nil
}

func (b BoundingBox) FromRelative(r Resolution) (BoundingBox, error) {
	lo, err := b.Min.FromRelative(r)
	if err != nil {
		return BoundingBox{}, err
	}
	hi, err := b.Max.FromRelative(r)
	if err != nil {
		return BoundingBox{}, err
	}
	return BoundingBox{Min: lo, Max: hi}, nil
}

//Rect returns the smallest integer rectangle covering b
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(b.Min.X)), int(math.Floor(b.Min.Y)),
		int(math.Ceil(b.Max.X)), int(math.Ceil(b.Max.Y)),
	)
}

//CutOut copies the region of img covered by b. The caller owns the returned Mat.
//An empty Mat is returned when b does not overlap img.
func (b BoundingBox) CutOut(img gocv.Mat) gocv.Mat {
	rect := b.Rect().Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	if rect.Empty() {
		return gocv.NewMat()
	}
	region := img.Region(rect)
	defer region.Close()
	return region.Clone()
}
