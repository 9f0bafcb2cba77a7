package geometry

import (
	"errors"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

//DefaultDilationKernel pads a mask by roughly 10px on every side
const DefaultDilationKernel = 21

var ErrEmptyMask = errors.New("geometry: mask is empty")

var maskOn = color.RGBA{R: 255, G: 255, B: 255, A: 255}

//Mask is a binary (0/255) single channel image over a camera frame.
//A Mask owns its Mat; operations return new masks and never modify the receiver.
type Mask struct {
	mat   gocv.Mat
	valid bool
}

//NewMask returns an all-zero mask of the given resolution
func NewMask(r Resolution) Mask {
	return Mask{mat: gocv.Zeros(r.Height, r.Width, gocv.MatTypeCV8UC1), valid: true}
}

//MaskFromMat binarizes m (any non zero pixel becomes 255). m is not retained.
func MaskFromMat(m gocv.Mat) Mask {
	gray := gocv.NewMat()
	if m.Channels() > 1 {
		gocv.CvtColor(m, &gray, gocv.ColorBGRToGray)
	} else {
		m.CopyTo(&gray)
	}
	defer gray.Close()

	out := gocv.NewMat()
	gocv.Threshold(gray, &out, 0, 255, gocv.ThresholdBinary)
	return Mask{mat: out, valid: true}
}

//MaskFromRect returns a mask with only b set
func MaskFromRect(r Resolution, b BoundingBox) Mask {
	m := NewMask(r)
	gocv.Rectangle(&m.mat, b.Rect(), maskOn, -1)
	return m
}

//MaskFromPolygon returns a mask with the filled polygon set
func MaskFromPolygon(r Resolution, polygon []Point) Mask {
	m := NewMask(r)
	pts := make([]image.Point, len(polygon))
	for i, p := range polygon {
		pts[i] = p.Image()
	}
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer pv.Close()
	gocv.FillPoly(&m.mat, pv, maskOn)
	return m
}

func (m Mask) Mat() gocv.Mat {
	return m.mat
}

func (m Mask) Empty() bool {
	return !m.valid || m.mat.Empty()
}

func (m Mask) Resolution() Resolution {
	return Resolution{Width: m.mat.Cols(), Height: m.mat.Rows()}
}

//Contains reports whether the pixel under p is set. Points outside the mask are not contained.
func (m Mask) Contains(p Point) bool {
	if m.Empty() {
		return false
	}
	x, y := int(math.Floor(p.X)), int(math.Floor(p.Y))
	if x < 0 || y < 0 || x >= m.mat.Cols() || y >= m.mat.Rows() {
		return false
	}
	return m.mat.GetUCharAt(y, x) > 0
}

func (m Mask) CountNonZero() int {
	if m.Empty() {
		return 0
	}
	return gocv.CountNonZero(m.mat)
}

//Dilate grows the mask with a square kernel of odd size k
func (m Mask) Dilate(k int) Mask {
	if k%2 == 0 {
		k++
	}
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(k, k))
	defer kernel.Close()

	out := gocv.NewMat()
	gocv.Dilate(m.mat, &out, kernel)
	return Mask{mat: out, valid: true}
}

//Or returns the pixelwise union of m and others. All masks must share one resolution.
func (m Mask) Or(others ...Mask) Mask {
	if m.Empty() {
		if len(others) == 0 {
			return Mask{}
		}
		return others[0].Or(others[1:]...)
	}
	out := m.mat.Clone()
	for _, o := range others {
		if o.Empty() {
			continue
		}
		gocv.BitwiseOr(out, o.mat, &out)
	}
	return Mask{mat: out, valid: true}
}

//Equal reports whether both masks have the same size and the same set pixels
func (m Mask) Equal(o Mask) bool {
	if m.Empty() || o.Empty() {
		return m.Empty() == o.Empty()
	}
	if m.mat.Rows() != o.mat.Rows() || m.mat.Cols() != o.mat.Cols() {
		return false
	}
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.BitwiseXor(m.mat, o.mat, &diff)
	return gocv.CountNonZero(diff) == 0
}

//ContourPoints returns the points of every external contour of the mask
func (m Mask) ContourPoints() []image.Point {
	if m.Empty() {
		return nil
	}
	contours := gocv.FindContours(m.mat, gocv.RetrievalExternal, gocv.ChainApproxNone)
	defer contours.Close()

	var pts []image.Point
	for _, c := range contours.ToPoints() {
		pts = append(pts, c...)
	}
	return pts
}

//BoundingBox returns the box enclosing every set pixel
func (m Mask) BoundingBox() (BoundingBox, error) {
	pts := m.ContourPoints()
	if len(pts) == 0 {
		return BoundingBox{}, ErrEmptyMask
	}
	pv := gocv.NewPointVectorFromPoints(pts)
	defer pv.Close()
	return FromRect(gocv.BoundingRect(pv)), nil
}

func (m Mask) Clone() Mask {
	if m.Empty() {
		return Mask{}
	}
	return Mask{mat: m.mat.Clone(), valid: true}
}

func (m Mask) Close() error {
	if !m.valid {
		return nil
	}
	return m.mat.Close()
}
