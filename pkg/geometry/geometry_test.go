package geometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomBox(rnd *rand.Rand) BoundingBox {
	return NewBoundingBox(rnd.Float64()*2000-500, rnd.Float64()*2000-500, rnd.Float64()*2000-500, rnd.Float64()*2000-500)
}

func TestPointClipLiesInBox(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		b := randomBox(rnd)
		p := Pt(rnd.Float64()*4000-2000, rnd.Float64()*4000-2000)
		require.True(t, b.Contains(p.Clip(b)), "box %v point %v", b, p)
	}
}

func TestRelativeRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	for i := 0; i < 1000; i++ {
		r := Resolution{Width: rnd.Intn(4000) + 1, Height: rnd.Intn(4000) + 1}
		p := Pt(rnd.Float64()*5000, rnd.Float64()*5000)

		rel, err := p.ToRelative(r)
		require.NoError(t, err)
		back, err := rel.FromRelative(r)
		require.NoError(t, err)
		require.InDelta(t, p.X, back.X, 1e-9)
		require.InDelta(t, p.Y, back.Y, 1e-9)
	}
}

func TestRelativeRejectsEmptyResolution(t *testing.T) {
	_, err := Pt(1, 1).ToRelative(Resolution{Width: 0, Height: 10})
	require.ErrorIs(t, err, ErrInvalidResolution)
	_, err = Pt(1, 1).FromRelative(Resolution{Width: 10, Height: -1})
	require.ErrorIs(t, err, ErrInvalidResolution)
}

func TestRelativeInsideBoxWithinHalfPixel(t *testing.T) {
	r := Resolution{Width: 1280, Height: 720}
	b := NewBoundingBox(100, 50, 900, 650)
	rnd := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		p := Pt(rnd.Float64()*1280, rnd.Float64()*720).Clip(b)
		rel, err := p.ToRelative(r)
		require.NoError(t, err)
		abs, err := rel.FromRelative(r)
		require.NoError(t, err)
		require.LessOrEqual(t, abs.Dist(p), 0.5)
	}
}

func TestScaledBoxContainmentImpliesContainment(t *testing.T) {
	rnd := rand.New(rand.NewSource(4))
	for i := 0; i < 500; i++ {
		b := randomBox(rnd)
		s := rnd.Float64()
		if s == 0 {
			s = 0.5
		}
		scaled := b.Scale(s)
		for j := 0; j < 20; j++ {
			p := Pt(rnd.Float64()*3000-1000, rnd.Float64()*3000-1000)
			if scaled.Contains(p) {
				require.True(t, b.Contains(p))
			}
		}
	}
}

func TestBoundingBoxUnionAndIoU(t *testing.T) {
	a := NewBoundingBox(0, 0, 10, 10)
	b := NewBoundingBox(5, 5, 15, 15)

	require.Equal(t, NewBoundingBox(0, 0, 15, 15), a.Union(b))
	require.True(t, a.Intersects(b))
	require.InDelta(t, 25.0/175.0, a.IoU(b), 1e-12)
	require.Zero(t, a.IoU(NewBoundingBox(20, 20, 30, 30)))
	require.Equal(t, Pt(5, 10), a.BottomCenter())
}

func TestNewBoundingBoxOrdersCorners(t *testing.T) {
	b := NewBoundingBox(10, 20, 0, 5)
	require.Equal(t, Pt(0, 5), b.Min)
	require.Equal(t, Pt(10, 20), b.Max)
}

func TestLineClipTo(t *testing.T) {
	l := Line{A: Pt(-10, 5), B: Pt(20, 5)}
	clipped, ok := l.ClipTo(NewBoundingBox(0, 0, 10, 10))
	require.True(t, ok)
	require.InDelta(t, 0, clipped.A.X, 1e-9)
	require.InDelta(t, 10, clipped.B.X, 1e-9)

	_, ok = Line{A: Pt(-10, 50), B: Pt(20, 50)}.ClipTo(NewBoundingBox(0, 0, 10, 10))
	require.False(t, ok)
}

func TestFitLineOnVerticalStripe(t *testing.T) {
	r := Resolution{Width: 200, Height: 100}
	mask := MaskFromRect(r, NewBoundingBox(98, 10, 102, 90))
	defer mask.Close()

	line, err := FitLine(mask)
	require.NoError(t, err)

	top, bottom := line.Upper()
	require.InDelta(t, 100, top.X, 1.5)
	require.InDelta(t, 100, bottom.X, 1.5)
	require.InDelta(t, 10, top.Y, 1.5)
	require.InDelta(t, 90, bottom.Y, 1.5)
}

func TestFitLineFailsWithoutContour(t *testing.T) {
	mask := NewMask(Resolution{Width: 50, Height: 50})
	defer mask.Close()

	_, err := FitLine(mask)
	require.ErrorIs(t, err, ErrNoContour)
}

func TestMaskDilateAndOr(t *testing.T) {
	r := Resolution{Width: 100, Height: 100}
	a := MaskFromRect(r, NewBoundingBox(10, 10, 20, 20))
	defer a.Close()
	b := MaskFromRect(r, NewBoundingBox(60, 60, 70, 70))
	defer b.Close()

	union := a.Or(b)
	defer union.Close()
	require.True(t, union.Contains(Pt(15, 15)))
	require.True(t, union.Contains(Pt(65, 65)))
	require.False(t, union.Contains(Pt(40, 40)))
	require.False(t, a.Contains(Pt(65, 65)))

	dilated := a.Dilate(DefaultDilationKernel)
	defer dilated.Close()
	require.True(t, dilated.Contains(Pt(29, 15)))
	require.False(t, dilated.Contains(Pt(35, 15)))
	require.False(t, dilated.Contains(Pt(-1, 15)))

	twice := dilated.Or(a)
	defer twice.Close()
	require.True(t, twice.Equal(dilated))
}

func TestHomographyInverse(t *testing.T) {
	h := Homography{1.2, 0.1, 30, -0.05, 0.9, 12, 0.0001, 0.0002, 1}
	inv, err := h.Inverse()
	require.NoError(t, err)

	for _, p := range []Point{Pt(0, 0), Pt(640, 360), Pt(1280, 720), Pt(13, 700)} {
		back := inv.Apply(h.Apply(p))
		require.InDelta(t, p.X, back.X, 1e-6)
		require.InDelta(t, p.Y, back.Y, 1e-6)
	}

	require.Equal(t, Pt(13, 700), Identity().Apply(Pt(13, 700)))

	_, err = Homography{}.Inverse()
	require.ErrorIs(t, err, ErrSingular)
	require.True(t, math.IsNaN(Homography{}.Apply(Pt(1, 1)).X))
}
