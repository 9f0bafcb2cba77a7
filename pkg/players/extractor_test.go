package players

import (
	"errors"
	"testing"

	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/chenBenjamin97/rink-minimap/pkg/inference"
	"github.com/chenBenjamin97/rink-minimap/pkg/log"
	"github.com/chenBenjamin97/rink-minimap/pkg/tracker"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

var camera = geometry.Resolution{Width: 1280, Height: 720}

type identity struct{}

func (identity) Transform(points ...geometry.Point) []geometry.Point {
	return points
}

type countingTeams struct {
	calls int
	team  entity.Team
	err   error
}

func (c *countingTeams) Predict(patch gocv.Mat) (entity.Team, error) {
	c.calls++
	return c.team, c.err
}

//standing returns a 40x80 box whose bottom center is (x, y)
func standing(x, y float64, class entity.PlayerClass, score float64) inference.Instance {
	return inference.Instance{
		Box:   geometry.NewBoundingBox(x-20, y-80, x+20, y),
		Class: int(class),
		Score: score,
	}
}

func newExtractor(t *testing.T, teams TeamPredictor) (*Extractor, gocv.Mat) {
	mask := geometry.MaskFromRect(camera, geometry.NewBoundingBox(300, 100, 900, 600))
	t.Cleanup(func() { mask.Close() })

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 40, 40, 0), camera.Height, camera.Width, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })

	e := NewExtractor(mask, camera.Rect(), identity{}, tracker.New(tracker.BaseConfig), teams, log.Discard())
	return e, frame
}

func TestExtractKeepsOnlyPlayersOnTheField(t *testing.T) {
	teams := &countingTeams{team: entity.TeamHome}
	e, frame := newExtractor(t, teams)

	out, err := e.Extract(1, frame, inference.Instances{
		standing(500, 500, entity.ClassPlayer, 0.9),
		standing(100, 500, entity.ClassPlayer, 0.9),
		standing(700, 50, entity.ClassPlayer, 0.9),
		standing(600, 400, entity.ClassPlayer, 0.5),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)

	p := out[0]
	require.InDelta(t, 500.0/1280, p.Position.X, 1e-9)
	require.InDelta(t, 500.0/720, p.Position.Y, 1e-9)
	require.InDelta(t, 480.0/1280, p.BoundingBoxOnCamera.Min.X, 1e-9)
	require.InDelta(t, 420.0/720, p.BoundingBoxOnCamera.Min.Y, 1e-9)
	require.NotNil(t, p.Team)
	require.Equal(t, entity.TeamHome, *p.Team)
	require.Equal(t, 1, teams.calls)
}

func TestExtractNeverClassifiesReferees(t *testing.T) {
	teams := &countingTeams{team: entity.TeamAway}
	e, frame := newExtractor(t, teams)

	out, err := e.Extract(1, frame, inference.Instances{
		standing(450, 400, entity.ClassReferee, 0.8),
		standing(650, 400, entity.ClassGoalie, 0.8),
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	require.Equal(t, entity.ClassReferee, out[0].Class)
	require.Nil(t, out[0].Team)
	require.Equal(t, entity.ClassGoalie, out[1].Class)
	require.Equal(t, entity.TeamAway, *out[1].Team)
	require.Equal(t, 1, teams.calls)
}

func TestExtractKeepsTrackingIDs(t *testing.T) {
	e, frame := newExtractor(t, nil)

	first, err := e.Extract(1, frame, inference.Instances{standing(500, 400, entity.ClassPlayer, 0.9)})
	require.NoError(t, err)
	second, err := e.Extract(2, frame, inference.Instances{standing(505, 402, entity.ClassPlayer, 0.9)})
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	require.Equal(t, first[0].TrackingID, second[0].TrackingID)
	require.Nil(t, second[0].Team)

	_, err = e.Extract(2, frame, nil)
	require.ErrorIs(t, err, tracker.ErrOutOfOrder)
}

func TestExtractPropagatesClassifierFailure(t *testing.T) {
	boom := errors.New("backbone failed")
	e, frame := newExtractor(t, &countingTeams{err: boom})

	_, err := e.Extract(1, frame, inference.Instances{standing(500, 400, entity.ClassPlayer, 0.9)})
	require.ErrorIs(t, err, boom)
}

func TestOnFieldUsesShrunkFieldBox(t *testing.T) {
	e, _ := newExtractor(t, nil)
	e.FieldBBox = geometry.NewBoundingBox(300, 100, 900, 600)

	require.True(t, e.OnField(geometry.Pt(600, 350)))
	//inside the mask but outside the box scaled by 0.8 around its center
	require.False(t, e.OnField(geometry.Pt(320, 350)))
}
