package geometry

import (
	"errors"
	"image"
	"math"
)

var ErrInvalidResolution = errors.New("geometry: resolution must be positive")

//Resolution is the pixel size of an image, used to convert between absolute and relative coordinates
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Resolution) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

//Rect returns the whole-image box of this resolution in absolute coordinates
func (r Resolution) Rect() BoundingBox {
	return BoundingBox{Max: Point{X: float64(r.Width), Y: float64(r.Height)}}
}

//Point is a 2D float point. Absolute points live in pixel space,
//relative points in [0,1]² of some resolution.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

//ToRelative divides p by r. It does not clip: call Clip(UnitBox) when the result must lie in [0,1]².
func (p Point) ToRelative(r Resolution) (Point, error) {
	if !r.Valid() {
		return Point{}, ErrInvalidResolution
	}
	return Point{X: p.X / float64(r.Width), Y: p.Y / float64(r.Height)}, nil
}

func (p Point) FromRelative(r Resolution) (Point, error) {
	if !r.Valid() {
		return Point{}, ErrInvalidResolution
	}
	return Point{X: p.X * float64(r.Width), Y: p.Y * float64(r.Height)}, nil
}

//Clip returns the point of b nearest to p
func (p Point) Clip(b BoundingBox) Point {
	return Point{
		X: math.Min(math.Max(p.X, b.Min.X), b.Max.X),
		Y: math.Min(math.Max(p.Y, b.Min.Y), b.Max.Y),
	}
}

func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

func (p Point) Mul(k float64) Point {
	return Point{X: p.X * k, Y: p.Y * k}
}

func (p Point) Dot(q Point) float64 {
	return p.X*q.X + p.Y*q.Y
}

func (p Point) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

func (p Point) Dist(q Point) float64 {
	return p.Sub(q).Norm()
}

//Image rounds p to the nearest pixel
func (p Point) Image() image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}
