package minimap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/chenBenjamin97/rink-minimap/pkg/log"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

//recorder keeps a copy of every encoded frame and creates the output file like a real encoder
type recorder struct {
	mu       sync.Mutex
	path     string
	size     geometry.Resolution
	frames   []gocv.Mat
	closed   bool
	aborted  bool
	writeErr error
}

func (r *recorder) Open(_ context.Context, path string, size geometry.Resolution, _ float64) (Encoder, error) {
	r.path, r.size = path, size
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *recorder) Write(frame gocv.Mat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	r.frames = append(r.frames, frame.Clone())
	return nil
}

func (r *recorder) Close() error {
	r.closed = true
	return nil
}

func (r *recorder) Abort() {
	r.aborted = true
}

func (r *recorder) release() {
	for _, f := range r.frames {
		f.Close()
	}
}

const (
	slotWidth = 60
	slots     = 10
)

func slotCenter(slot int) (int, int) {
	return slotWidth/2 + slot*slotWidth, 60
}

//playerInSlot places a home player in the center of one of the 10 slots of a 600x120 minimap
func playerInSlot(slot int) entity.PlayerData {
	x, y := slotCenter(slot)
	return entity.PlayerData{
		TrackingID: slot + 1,
		Position:   geometry.Pt(float64(x)/600, float64(y)/120),
		Class:      entity.ClassPlayer,
		Team:       entity.TeamPtr(entity.TeamHome),
	}
}

func newRenderer(t *testing.T, enc EncoderFactory, cfg Config) (*Renderer, string) {
	base := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 600, gocv.MatTypeCV8UC3)
	defer base.Close()

	dst := filepath.Join(t.TempDir(), "output_map.mp4")
	r, err := NewRenderer(base, dst, enc, cfg, log.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r, dst
}

//filledSlot returns the only slot whose dot is drawn on frame, or -1
func filledSlot(t *testing.T, frame gocv.Mat) int {
	found := -1
	for s := 0; s < slots; s++ {
		x, y := slotCenter(s)
		//off center so the label does not cover the sampled pixel
		v := frame.GetVecbAt(y-15, x-15)
		if v[0] == 0 && v[1] == 157 && v[2] == 255 {
			require.Equal(t, -1, found, "more than one dot drawn")
			found = s
		}
	}
	return found
}

func TestRendererKeepsProducerOrder(t *testing.T) {
	enc := &recorder{}
	defer enc.release()
	cfg := BaseConfig
	cfg.Workers = 4
	cfg.QueueSize = 3
	r, dst := newRenderer(t, enc, cfg)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	p := r.Producer()
	for slot := slots - 1; slot >= 0; slot-- {
		require.NoError(t, p.Send(ctx, []entity.PlayerData{playerInSlot(slot)}))
	}
	require.NoError(t, p.Close(ctx))
	require.NoError(t, <-done)

	require.True(t, enc.closed)
	require.False(t, enc.aborted)
	require.Len(t, enc.frames, slots)
	for i, f := range enc.frames {
		require.Equal(t, slots-1-i, filledSlot(t, f), "frame %d", i)
	}

	_, err := os.Stat(dst)
	require.NoError(t, err)
	_, err = os.Stat(enc.path)
	require.True(t, os.IsNotExist(err))
}

func TestRendererDiscardsOutputOnFailure(t *testing.T) {
	enc := &recorder{writeErr: errors.New("disk full")}
	r, dst := newRenderer(t, enc, BaseConfig)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	p := r.Producer()
	require.NoError(t, p.Send(ctx, []entity.PlayerData{playerInSlot(0)}))
	err := <-done
	require.ErrorIs(t, err, enc.writeErr)
	require.ErrorIs(t, p.Close(ctx), enc.writeErr)
	require.ErrorIs(t, p.Send(ctx, nil), ErrRendererStopped)

	require.True(t, enc.aborted)
	_, statErr := os.Stat(dst)
	require.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(enc.path)
	require.True(t, os.IsNotExist(statErr))
}

func TestRendererCancel(t *testing.T) {
	enc := &recorder{}
	defer enc.release()
	r, dst := newRenderer(t, enc, BaseConfig)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.NoError(t, r.Producer().Send(ctx, []entity.PlayerData{playerInSlot(1)}))
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	_, err := os.Stat(dst)
	require.True(t, os.IsNotExist(err))
}

func TestRendererPadsToEvenSize(t *testing.T) {
	base := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 121, 301, gocv.MatTypeCV8UC3)
	defer base.Close()

	r, err := NewRenderer(base, filepath.Join(t.TempDir(), "m.mp4"), &recorder{}, BaseConfig, log.Discard())
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, geometry.Resolution{Width: 302, Height: 122}, r.Size())
}

func TestLabelsAndColors(t *testing.T) {
	home := entity.PlayerData{TrackingID: 7, Class: entity.ClassPlayer, Team: entity.TeamPtr(entity.TeamHome)}
	away := entity.PlayerData{TrackingID: 8, Class: entity.ClassGoalie, Team: entity.TeamPtr(entity.TeamAway)}
	ref := entity.PlayerData{TrackingID: 9, Class: entity.ClassReferee}
	unknown := entity.PlayerData{TrackingID: 10, Class: entity.ClassPlayer}

	aliases := Aliases{8: "Goalie 31"}
	require.Equal(t, "7", label(home, aliases))
	require.Equal(t, "Goalie 31", label(away, aliases))
	require.Equal(t, "R", label(ref, aliases))
	require.Equal(t, "10", label(unknown, nil))

	require.Equal(t, homeColor, dotColor(home))
	require.Equal(t, awayColor, dotColor(away))
	require.Equal(t, refereeColor, dotColor(ref))
	require.Equal(t, unknownColor, dotColor(unknown))
}

func TestFFmpegArgs(t *testing.T) {
	f := NewFFmpeg(EncoderConfig{Codec: "h264_nvenc", CRF: 20, Preset: "p4", HWAccel: "cuda", HWAccelOutputFormat: "cuda"}, log.Discard())
	args := f.args("/tmp/out.mp4", geometry.Resolution{Width: 1280, Height: 720}, 29.97)

	require.Equal(t, "ffmpeg", f.Config.Binary)
	require.Subset(t, args, []string{"-hwaccel", "cuda", "-hwaccel_output_format", "-c:v", "h264_nvenc", "-crf", "20", "-preset", "p4", "1280x720", "29.97", "yuv420p", "+faststart"})
	require.Equal(t, "/tmp/out.mp4", args[len(args)-1])

	_, err := f.Open(context.Background(), "/tmp/out.mp4", geometry.Resolution{Width: 1279, Height: 720}, 25)
	require.Error(t, err)
}

func TestDrawStoresColorsInBGROrder(t *testing.T) {
	size := geometry.Resolution{Width: 200, Height: 100}
	base := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), size.Height, size.Width, gocv.MatTypeCV8UC3)
	defer base.Close()

	home := entity.PlayerData{TrackingID: 1, Class: entity.ClassPlayer, Team: entity.TeamPtr(entity.TeamHome), Position: geometry.Pt(0.5, 0.5)}
	frame := Draw(base, size, []entity.PlayerData{home}, DefaultRadius, nil)
	defer frame.Close()

	//above the label, inside the dot
	px := frame.GetVecbAt(50-DefaultRadius/2, 100)
	require.Equal(t, []uint8{homeColor.B, homeColor.G, homeColor.R}, []uint8{px[0], px[1], px[2]})
}
