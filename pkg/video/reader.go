package video

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"gocv.io/x/gocv"
)

//Info is what Probe learns about a video file
type Info struct {
	FPS        float64
	Width      int
	Height     int
	FrameCount int
}

func (i Info) Resolution() geometry.Resolution {
	return geometry.Resolution{Width: i.Width, Height: i.Height}
}

//Probe opens path and reads its stream properties. Files gocv can not decode fail with InvalidFileFormat.
func Probe(path string) (Info, error) {
	cap, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return Info{}, apperr.Wrap(apperr.KindInvalidFileFormat, fmt.Errorf("open %s: %w", path, err))
	}
	defer cap.Close()

	info := Info{
		FPS:        cap.Get(gocv.VideoCaptureFPS),
		Width:      int(cap.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(cap.Get(gocv.VideoCaptureFrameHeight)),
		FrameCount: int(cap.Get(gocv.VideoCaptureFrameCount)),
	}
	if !info.Resolution().Valid() || info.FPS <= 0 || math.IsNaN(info.FPS) {
		return Info{}, apperr.Newf(apperr.KindInvalidFileFormat, "%s: no decodable video stream", path)
	}

	frame := gocv.NewMat()
	defer frame.Close()
	if !cap.Read(&frame) || frame.Empty() {
		return Info{}, apperr.Newf(apperr.KindInvalidFileFormat, "%s: first frame is unreadable", path)
	}
	return info, nil
}

//Frame is one decoded BGR frame. The receiver owns Image.
type Frame struct {
	ID    int
	Image gocv.Mat
}

//Reader decodes one video file. Calls are serialized, a Reader may be shared.
type Reader struct {
	mu   sync.Mutex
	path string
	cap  *gocv.VideoCapture
	Info Info
}

func Open(path string) (*Reader, error) {
	info, err := Probe(path)
	if err != nil {
		return nil, err
	}
	cap, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidFileFormat, err)
	}
	return &Reader{path: path, cap: cap, Info: info}, nil
}

func (r *Reader) Path() string {
	return r.path
}

//Stream decodes frames [from, to) into out, in ascending order, and closes out when it returns.
//A negative to reads until the end of the file. The capacity of out is the prefetch buffer.
func (r *Reader) Stream(ctx context.Context, from, to int, out chan<- Frame) error {
	defer close(out)

	r.mu.Lock()
	defer r.mu.Unlock()

	if from > 0 {
		r.cap.Set(gocv.VideoCapturePosFrames, float64(from))
	} else {
		r.cap.Set(gocv.VideoCapturePosFrames, 0)
	}

	for id := from; to < 0 || id < to; id++ {
		img := gocv.NewMat()
		if !r.cap.Read(&img) || img.Empty() {
			img.Close()
			if to >= 0 {
				return apperr.Newf(apperr.KindInvalidFileFormat, "%s: frame %d is unreadable", r.path, id)
			}
			return nil
		}

		select {
		case out <- Frame{ID: id, Image: img}:
		case <-ctx.Done():
			img.Close()
			return ctx.Err()
		}
	}
	return nil
}

//Frame decodes the frame with the given index. The caller owns the returned Mat.
func (r *Reader) Frame(ctx context.Context, id int) (gocv.Mat, error) {
	if err := ctx.Err(); err != nil {
		return gocv.NewMat(), err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cap.Set(gocv.VideoCapturePosFrames, float64(id))
	return r.read(fmt.Sprintf("frame %d", id))
}

//FrameAt decodes the frame shown at the given timestamp
func (r *Reader) FrameAt(ctx context.Context, ms float64) (gocv.Mat, error) {
	if err := ctx.Err(); err != nil {
		return gocv.NewMat(), err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cap.Set(gocv.VideoCapturePosMsec, ms)
	return r.read(fmt.Sprintf("frame at %vms", ms))
}

func (r *Reader) read(what string) (gocv.Mat, error) {
	img := gocv.NewMat()
	if !r.cap.Read(&img) || img.Empty() {
		img.Close()
		return gocv.NewMat(), apperr.Newf(apperr.KindInvalidFileFormat, "%s: %s is unreadable", r.path, what)
	}
	return img, nil
}

func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cap.Close()
}
