package minimap

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"

	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/chenBenjamin97/rink-minimap/pkg/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"golang.org/x/sync/semaphore"
)

var ErrRendererStopped = errors.New("minimap: renderer is not running")

type Config struct {
	FPS    float64
	Radius int
	//Workers is how many frames are drawn in parallel
	Workers int
	//QueueSize bounds the frames waiting for the encoder
	QueueSize int
	Aliases   Aliases
}

var BaseConfig = Config{
	FPS:       25,
	Radius:    DefaultRadius,
	Workers:   4,
	QueueSize: 8,
}

type pending struct {
	done  chan struct{}
	frame gocv.Mat
	err   error
}

//Renderer turns per-frame player lists into a minimap video. The producer side draws frames
//on a worker pool, the consumer side (Run) feeds them to the encoder in the order they were sent.
type Renderer struct {
	cfg      Config
	base     gocv.Mat
	size     geometry.Resolution
	dst      string
	encoders EncoderFactory
	log      logrus.FieldLogger

	queue   chan *pending
	sem     *semaphore.Weighted
	stopped chan struct{}
	runErr  error
	closeQ  sync.Once
}

//NewRenderer prepares a renderer writing to dst. base is the static minimap image, it is copied.
func NewRenderer(base gocv.Mat, dst string, encoders EncoderFactory, cfg Config, log logrus.FieldLogger) (*Renderer, error) {
	if base.Empty() || base.Type() != gocv.MatTypeCV8UC3 {
		return nil, fmt.Errorf("minimap: base image must be a non empty BGR image")
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("minimap: invalid frame rate %v", cfg.FPS)
	}
	if cfg.Radius <= 0 {
		cfg.Radius = DefaultRadius
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}

	return &Renderer{
		cfg:      cfg,
		base:     utils.PadEven(base, color.RGBA{}),
		size:     geometry.Resolution{Width: base.Cols(), Height: base.Rows()},
		dst:      dst,
		encoders: encoders,
		log:      log,
		queue:    make(chan *pending, cfg.QueueSize),
		sem:      semaphore.NewWeighted(int64(cfg.Workers)),
		stopped:  make(chan struct{}),
	}, nil
}

//Size returns the resolution of the encoded frames
func (r *Renderer) Size() geometry.Resolution {
	return geometry.Resolution{Width: r.base.Cols(), Height: r.base.Rows()}
}

//tempPath lives next to dst so the final rename stays on one filesystem
func (r *Renderer) tempPath() string {
	dir, name := filepath.Split(r.dst)
	return filepath.Join(dir, "."+uuid.NewString()+"."+name)
}

//Run consumes rendered frames until the producer closes. The destination file is replaced
//only when every frame was encoded; on any failure the temporary file is removed.
func (r *Renderer) Run(ctx context.Context) (err error) {
	defer func() {
		r.runErr = err
		close(r.stopped)
		r.drain()
	}()

	tmp := r.tempPath()
	enc, err := r.encoders.Open(ctx, tmp, r.Size(), r.cfg.FPS)
	if err != nil {
		return fmt.Errorf("minimap: open encoder: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		enc.Abort()
		os.Remove(tmp)
	}()

	written := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-r.queue:
			if !ok {
				if err := enc.Close(); err != nil {
					return fmt.Errorf("minimap: finalize: %w", err)
				}
				committed = true
				if err := os.Rename(tmp, r.dst); err != nil {
					os.Remove(tmp)
					return fmt.Errorf("minimap: move %s: %w", tmp, err)
				}
				r.log.WithFields(logrus.Fields{"path": r.dst, "frames": written}).Info("Minimap rendered")
				return nil
			}

			select {
			case <-p.done:
			case <-ctx.Done():
				return ctx.Err()
			}
			if p.err != nil {
				return p.err
			}
			err := enc.Write(p.frame)
			p.frame.Close()
			if err != nil {
				return fmt.Errorf("minimap: frame %d: %w", written, err)
			}
			written++
		}
	}
}

//drain releases frames nobody will encode anymore
func (r *Renderer) drain() {
	for {
		select {
		case p, ok := <-r.queue:
			if !ok {
				return
			}
			go func() {
				<-p.done
				if p.err == nil {
					p.frame.Close()
				}
			}()
		default:
			return
		}
	}
}

//Close releases the base image. Call it after Run returned.
func (r *Renderer) Close() error {
	return r.base.Close()
}

//Producer returns the sending side of the renderer
func (r *Renderer) Producer() *DataRenderer {
	return &DataRenderer{r: r}
}

//DataRenderer accepts one player list per frame. It is not safe for concurrent use.
type DataRenderer struct {
	r *Renderer
}

//Send queues the drawing of one frame. It blocks while the queue is full.
func (d *DataRenderer) Send(ctx context.Context, players []entity.PlayerData) error {
	r := d.r
	select {
	case <-r.stopped:
		return ErrRendererStopped
	default:
	}

	p := &pending{done: make(chan struct{})}
	select {
	case r.queue <- p:
	case <-r.stopped:
		return ErrRendererStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	players = append([]entity.PlayerData(nil), players...)
	go func() {
		defer close(p.done)
		if err := r.sem.Acquire(ctx, 1); err != nil {
			p.err = err
			return
		}
		defer r.sem.Release(1)
		p.frame = Draw(r.base, r.size, players, r.cfg.Radius, r.cfg.Aliases)
	}()
	return nil
}

//Close ends the stream and waits for the consumer to finish, returning its result
func (d *DataRenderer) Close(ctx context.Context) error {
	d.r.closeQ.Do(func() { close(d.r.queue) })
	select {
	case <-d.r.stopped:
		return d.r.runErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
