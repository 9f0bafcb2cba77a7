package geometry

import (
	"errors"
	"math"

	"gocv.io/x/gocv"
)

var ErrNoContour = errors.New("geometry: mask has no contour to fit a line on")

//Line is a segment between two endpoints
type Line struct {
	A Point `json:"a"`
	B Point `json:"b"`
}

func (l Line) Direction() Point {
	return l.B.Sub(l.A)
}

func (l Line) Center() Point {
	return l.A.Add(l.B).Mul(0.5)
}

//Reversed swaps the endpoints
func (l Line) Reversed() Line {
	return Line{A: l.B, B: l.A}
}

//Upper returns the endpoint with the smaller y (image space), then the other one
func (l Line) Upper() (Point, Point) {
	if l.A.Y <= l.B.Y {
		return l.A, l.B
	}
	return l.B, l.A
}

//ClipTo cuts the segment to b. ok is false when the segment misses b entirely.
func (l Line) ClipTo(b BoundingBox) (Line, bool) {
	return clip(l.A, l.Direction(), 0, 1, b)
}

//FitLine fits a least-squares line through the contour points of mask and returns it
//clipped to the bounding box of those points
func FitLine(mask Mask) (Line, error) {
	pts := mask.ContourPoints()
	if len(pts) == 0 {
		return Line{}, ErrNoContour
	}

	pv := gocv.NewPointVectorFromPoints(pts)
	defer pv.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.FitLine(pv, &out, gocv.DistL2, 0, 0.01, 0.01)

	dir := Point{X: float64(out.GetFloatAt(0, 0)), Y: float64(out.GetFloatAt(1, 0))}
	origin := Point{X: float64(out.GetFloatAt(2, 0)), Y: float64(out.GetFloatAt(3, 0))}

	//BoundingRect is exclusive on its max side
	box := FromRect(gocv.BoundingRect(pv))
	box.Max = box.Max.Sub(Point{X: 1, Y: 1})
	line, ok := clip(origin, dir, math.Inf(-1), math.Inf(1), box)
	if !ok {
		return Line{}, ErrNoContour
	}
	return line, nil
}

//clip is Liang-Barsky on origin + t*dir, t in [t0, t1]
func clip(origin, dir Point, t0, t1 float64, b BoundingBox) (Line, bool) {
	axes := [2][4]float64{
		{origin.X, dir.X, b.Min.X, b.Max.X},
		{origin.Y, dir.Y, b.Min.Y, b.Max.Y},
	}
	for _, a := range axes {
		o, d, lo, hi := a[0], a[1], a[2], a[3]
		if d == 0 {
			if o < lo || o > hi {
				return Line{}, false
			}
			continue
		}
		ta, tb := (lo-o)/d, (hi-o)/d
		if ta > tb {
			ta, tb = tb, ta
		}
		t0 = math.Max(t0, ta)
		t1 = math.Min(t1, tb)
	}
	if t0 > t1 || math.IsInf(t0, 0) || math.IsInf(t1, 0) {
		return Line{}, false
	}
	return Line{A: origin.Add(dir.Mul(t0)), B: origin.Add(dir.Mul(t1))}, true
}
