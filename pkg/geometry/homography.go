package geometry

import (
	"errors"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

var ErrSingular = errors.New("geometry: homography is singular")

//Homography is a 3×3 projective transform stored row-major.
//Value type, so fitted transforms are immutable once built.
type Homography [9]float64

func Identity() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

//HomographyFromMat reads a 3×3 CV_64F matrix as returned by gocv.FindHomography
func HomographyFromMat(m gocv.Mat) (Homography, error) {
	if m.Empty() || m.Rows() != 3 || m.Cols() != 3 {
		return Homography{}, ErrSingular
	}
	var h Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r*3+c] = m.GetDoubleAt(r, c)
		}
	}
	return h, nil
}

//Mat returns h as a new 3×3 CV_64F matrix owned by the caller
func (h Homography) Mat() gocv.Mat {
	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m.SetDoubleAt(r, c, h[r*3+c])
		}
	}
	return m
}

//Apply maps p through h. Points on the line at infinity map to NaN.
func (h Homography) Apply(p Point) Point {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if w == 0 {
		return Point{X: math.NaN(), Y: math.NaN()}
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}
}

//Mul returns h × o, the transform applying o first
func (h Homography) Mul(o Homography) Homography {
	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = h[r*3]*o[c] + h[r*3+1]*o[3+c] + h[r*3+2]*o[6+c]
		}
	}
	return out
}

func (h Homography) Inverse() (Homography, error) {
	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(3, 3, h[:])); err != nil {
		return Homography{}, ErrSingular
	}
	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = inv.At(r, c)
		}
	}
	return out, nil
}

//ScaleHomography returns the diagonal transform multiplying x by sx and y by sy
func ScaleHomography(sx, sy float64) Homography {
	return Homography{sx, 0, 0, 0, sy, 0, 0, 0, 1}
}
