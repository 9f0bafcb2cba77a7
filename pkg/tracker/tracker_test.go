package tracker

import (
	"fmt"
	"testing"

	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/stretchr/testify/require"
)

func player(x, y float64) Detection {
	return Detection{Box: geometry.NewBoundingBox(x, y, x+40, y+100), Score: 0.9, Class: entity.ClassPlayer}
}

func ids(records []entity.RawPlayerTrackingData) []int {
	out := make([]int, len(records))
	for i, r := range records {
		out[i] = r.TrackingID
	}
	return out
}

func TestTrackerContinuity(t *testing.T) {
	tr := New(BaseConfig)

	starts := [][2]float64{{100, 100}, {300, 120}, {500, 140}, {700, 160}, {900, 180}}
	var known []int
	frame := 0
	for ; frame < BaseConfig.MinHits; frame++ {
		dets := make([]Detection, len(starts))
		for i, s := range starts {
			dets[i] = player(s[0]+float64(frame)*5, s[1])
		}
		out, err := tr.Update(frame, dets)
		require.NoError(t, err)
		if frame == 0 {
			known = ids(out)
		}
		require.Equal(t, known, ids(out), fmt.Sprintf("frame %d", frame))
	}

	for step := 0; step < 2; step++ {
		dets := make([]Detection, 0, len(starts)+1)
		for i, s := range starts {
			dets = append(dets, player(s[0]+15+20*float64(step+1), s[1]+float64(i%2)*10))
		}
		if step == 1 {
			dets = append(dets, player(1100, 300))
		}
		out, err := tr.Update(frame, dets)
		require.NoError(t, err)
		frame++

		require.Equal(t, known, ids(out)[:len(starts)])
		if step == 1 {
			require.Len(t, out, 6)
			require.NotContains(t, known, out[5].TrackingID)
			require.Greater(t, out[5].TrackingID, 0)
		}
	}
}

func TestTrackerRejectsOutOfOrderFrames(t *testing.T) {
	tr := New(BaseConfig)
	_, err := tr.Update(3, []Detection{player(0, 0)})
	require.NoError(t, err)

	_, err = tr.Update(3, nil)
	require.ErrorIs(t, err, ErrOutOfOrder)
	_, err = tr.Update(2, nil)
	require.ErrorIs(t, err, ErrOutOfOrder)
}

func TestUnconfirmedTrackDiesOnMiss(t *testing.T) {
	tr := New(BaseConfig)
	first, err := tr.Update(0, []Detection{player(0, 0)})
	require.NoError(t, err)

	_, err = tr.Update(1, nil)
	require.NoError(t, err)
	require.Equal(t, 0, tr.Live())

	again, err := tr.Update(2, []Detection{player(0, 0)})
	require.NoError(t, err)
	require.NotEqual(t, first[0].TrackingID, again[0].TrackingID)
}

func TestConfirmedTrackSurvivesMaxAge(t *testing.T) {
	tr := New(BaseConfig)
	var id int
	for f := 0; f < BaseConfig.MinHits; f++ {
		out, err := tr.Update(f, []Detection{player(0, 0)})
		require.NoError(t, err)
		id = out[0].TrackingID
	}

	last := BaseConfig.MinHits - 1
	out, err := tr.Update(last+BaseConfig.MaxAge, []Detection{player(2, 0)})
	require.NoError(t, err)
	require.Equal(t, id, out[0].TrackingID)

	_, err = tr.Update(last+2*BaseConfig.MaxAge+1, nil)
	require.NoError(t, err)
	require.Equal(t, 0, tr.Live())
}

func TestIDBaseOffsetsIDs(t *testing.T) {
	cfg := BaseConfig
	cfg.IDBase = 1000
	tr := New(cfg)

	out, err := tr.Update(0, []Detection{player(0, 0), player(200, 0), player(400, 0)})
	require.NoError(t, err)
	require.Equal(t, []int{1001, 1002, 1003}, ids(out))
	require.Equal(t, 1003, tr.LastID())

	tr.Reset()
	out, err = tr.Update(0, []Detection{player(0, 0)})
	require.NoError(t, err)
	require.Equal(t, []int{1004}, ids(out))
}

func TestAtMostOneRecordPerDetection(t *testing.T) {
	tr := New(BaseConfig)
	dets := []Detection{player(0, 0), player(5, 0), player(10, 0)}
	for f := 0; f < 10; f++ {
		out, err := tr.Update(f, dets)
		require.NoError(t, err)
		require.Len(t, out, len(dets))

		seen := map[int]bool{}
		for _, r := range out {
			require.False(t, seen[r.TrackingID])
			seen[r.TrackingID] = true
		}
	}
}
