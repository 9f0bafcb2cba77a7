package homography

import (
	"math/rand"
	"testing"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/field"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/chenBenjamin97/rink-minimap/pkg/keypoints"
	"github.com/stretchr/testify/require"
)

var (
	frame   = geometry.Resolution{Width: 1280, Height: 720}
	minimap = geometry.Resolution{Width: 1280, Height: 720}
)

func rect(c field.Class, x1, y1, x2, y2 float64) field.Instance {
	b := geometry.NewBoundingBox(x1, y1, x2, y2)
	return field.NewInstance(c, b, geometry.MaskFromRect(frame, b))
}

func around(c field.Class, k keypoints.KeyPoint, r float64) field.Instance {
	x, y := float64(frame.Width-k.X), float64(frame.Height-k.Y)
	return rect(c, x-r, y-r, x+r, y+r)
}

func TestSingleFrameHomography(t *testing.T) {
	cfg := keypoints.DefaultConfig()
	insts := []field.Instance{
		rect(field.Field, 0, 0, 1280, 720),
		rect(field.RedCenterLine, 638, 40, 642, 680),
		rect(field.BlueLine, 788, 40, 792, 680),
		rect(field.BlueLine, 488, 40, 492, 680),
		around(field.BlueCircle, cfg.CenterCircle, 30),
		around(field.RedCircle, cfg.TopLeftRedCircle, 15),
		around(field.RedCircle, cfg.BottomLeftRedCircle, 15),
		around(field.RedCircle, cfg.TopRightRedCircle, 15),
		around(field.RedCircle, cfg.BottomRightRedCircle, 15),
		around(field.GoalZone, cfg.LeftGoalZone, 20),
		around(field.GoalZone, cfg.RightGoalZone, 20),
	}
	d, err := field.Construct(insts)
	require.NoError(t, err)
	defer d.Close()
	for _, i := range insts {
		i.Mask.Close()
	}

	ex := keypoints.Placer{Config: cfg, Position: keypoints.TopMiddlePoint, Resolution: frame}.Place(d)
	defer ex.Close()
	require.Len(t, ex.KeyPoints, 11)

	pairs := FromKeyPoints(ex)
	s, err := FitAbsolute(pairs, frame, minimap.Rect())
	require.NoError(t, err)

	mean, worst := s.ReprojectionError(pairs)
	require.Less(t, mean, 1.0)
	require.Less(t, worst, 1.0)

	center := s.Transform(geometry.Pt(0.5, 0.5))[0]
	require.InDelta(t, 0.5, center.X, 0.01)
	require.InDelta(t, 0.5, center.Y, 0.01)
}

func TestFitNeedsFourPoints(t *testing.T) {
	_, err := Fit(nil, frame, minimap)
	require.ErrorIs(t, err, apperr.ErrNotEnoughFieldPoints)

	three := []Correspondence{
		{Camera: geometry.Pt(0, 0), Minimap: geometry.Pt(0, 0)},
		{Camera: geometry.Pt(1, 0), Minimap: geometry.Pt(1, 0)},
		{Camera: geometry.Pt(0, 1), Minimap: geometry.Pt(0, 1)},
	}
	_, err = Fit(three, frame, minimap)
	require.ErrorIs(t, err, apperr.ErrNotEnoughFieldPoints)
}

//perspective is a broadcast-like camera to minimap transform in pixels
var perspective = geometry.Homography{
	1.1, 0.35, -120,
	0.02, 1.9, -180,
	0.00001, 0.0009, 1,
}

func perspectivePairs(t *testing.T, rnd *rand.Rand, n int) []Correspondence {
	pairs := make([]Correspondence, 0, n)
	for len(pairs) < n {
		c := geometry.Pt(200+rnd.Float64()*880, 150+rnd.Float64()*400)
		m := perspective.Apply(c)
		if !minimap.Rect().Contains(m) {
			continue
		}
		cr, err := c.ToRelative(frame)
		require.NoError(t, err)
		mr, err := m.ToRelative(minimap)
		require.NoError(t, err)
		pairs = append(pairs, Correspondence{Camera: cr, Minimap: mr})
	}
	return pairs
}

func TestInverseOfTransformStaysWithinThreshold(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))
	s, err := Fit(perspectivePairs(t, rnd, 8), frame, minimap)
	require.NoError(t, err)

	for _, p := range perspectivePairs(t, rnd, 50) {
		back := s.Inverse(s.Transform(p.Camera)...)[0]
		c, _ := p.Camera.FromRelative(frame)
		b, _ := back.FromRelative(frame)
		require.Less(t, c.Dist(b), ReprojectionThreshold)
	}
}

func TestTransformClipsToMinimap(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	s, err := Fit(perspectivePairs(t, rnd, 6), frame, minimap)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		p := s.Transform(geometry.Pt(rnd.Float64()*3-1, rnd.Float64()*3-1))[0]
		require.True(t, geometry.UnitBox.Contains(p), "%v", p)
	}
	abs := s.TransformAbsolute(geometry.Pt(-5000, -5000))[0]
	require.True(t, minimap.Rect().Contains(abs))
}

func TestWarpImageHasMinimapSize(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))
	s, err := Fit(perspectivePairs(t, rnd, 6), frame, minimap)
	require.NoError(t, err)

	m := geometry.MaskFromRect(frame, geometry.NewBoundingBox(300, 200, 900, 600))
	defer m.Close()
	warped := s.WarpImage(m.Mat())
	defer warped.Close()

	require.Equal(t, minimap.Width, warped.Cols())
	require.Equal(t, minimap.Height, warped.Rows())
}
