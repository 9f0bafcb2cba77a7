package video

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const frames = 6

//writeClip writes an MJPG clip whose frame i is a flat gray of level 40*i
func writeClip(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "clip.avi")
	w, err := gocv.VideoWriterFile(path, "MJPG", 10, 64, 48, true)
	require.NoError(t, err)
	for i := 0; i < frames; i++ {
		level := float64(40 * i)
		img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(level, level, level, 0), 48, 64, gocv.MatTypeCV8UC3)
		require.NoError(t, w.Write(img))
		img.Close()
	}
	require.NoError(t, w.Close())
	return path
}

func TestProbe(t *testing.T) {
	info, err := Probe(writeClip(t))
	require.NoError(t, err)
	require.Equal(t, geometry.Resolution{Width: 64, Height: 48}, info.Resolution())
	require.InDelta(t, 10, info.FPS, 0.01)
}

func TestProbeRejectsNonVideo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not a video"), 0o644))

	_, err := Probe(path)
	require.ErrorIs(t, err, apperr.ErrInvalidFileFormat)
}

func TestStreamKeepsOrder(t *testing.T) {
	r, err := Open(writeClip(t))
	require.NoError(t, err)
	defer r.Close()

	out := make(chan Frame, 2)
	errc := make(chan error, 1)
	go func() { errc <- r.Stream(context.Background(), 0, -1, out) }()

	var ids []int
	for f := range out {
		ids = append(ids, f.ID)
		require.InDelta(t, 40*f.ID, f.Image.Mean().Val1, 8)
		f.Image.Close()
	}
	require.NoError(t, <-errc)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5}, ids)
}

func TestStreamStopsOnCancel(t *testing.T) {
	r, err := Open(writeClip(t))
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Frame)
	errc := make(chan error, 1)
	go func() { errc <- r.Stream(ctx, 0, -1, out) }()

	f := <-out
	f.Image.Close()
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
	_, open := <-out
	require.False(t, open)
}

func TestRandomAccess(t *testing.T) {
	r, err := Open(writeClip(t))
	require.NoError(t, err)
	defer r.Close()

	img, err := r.Frame(context.Background(), 3)
	require.NoError(t, err)
	defer img.Close()
	require.InDelta(t, 120, img.Mean().Val1, 8)
}

func TestFieldMaskRoundTrip(t *testing.T) {
	res := geometry.Resolution{Width: 128, Height: 96}
	mask := geometry.MaskFromRect(res, geometry.NewBoundingBox(20, 10, 100, 80))
	defer mask.Close()

	path := filepath.Join(t.TempDir(), "field_mask.jpeg")
	require.NoError(t, WriteFieldMask(path, mask))

	back, err := ReadFieldMask(path)
	require.NoError(t, err)
	defer back.Close()
	require.Equal(t, res, back.Resolution())
	require.True(t, back.Contains(geometry.Pt(60, 40)))
	require.False(t, back.Contains(geometry.Pt(5, 5)))

	_, err = ReadFieldMask(filepath.Join(t.TempDir(), "missing.jpeg"))
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
