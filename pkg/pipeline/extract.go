package pipeline

import (
	"context"

	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/inference"
	"github.com/chenBenjamin97/rink-minimap/pkg/players"
	"github.com/chenBenjamin97/rink-minimap/pkg/video"
	"golang.org/x/sync/errgroup"
)

//frameSink receives the players of every frame, in frame order
type frameSink func(ctx context.Context, frameID int, players []entity.PlayerData) error

type inflight struct {
	frame  video.Frame
	future *inference.Future
}

//settle waits for a future nobody consumes anymore and frees its detections.
//Futures enqueued under a cancelled context fail as soon as the worker reaches them, without a forward pass.
func settle(f *inference.Future) {
	instances, err := f.Wait(context.Background())
	if err != nil {
		return
	}
	for _, is := range instances {
		is.Close()
	}
}

//release frees a frame once the detector is done reading it
func release(p inflight) {
	go func() {
		settle(p.future)
		p.frame.Image.Close()
	}()
}

//extract decodes frames [from, to) of reader, runs them through the players detector and ex, and hands
//the players of every frame to sink. Decoding, detection and extraction overlap; sink sees frames in order.
func (c *Coordinator) extract(ctx context.Context, reader *video.Reader, from, to int, ex *players.Extractor, sink frameSink) error {
	g, gctx := errgroup.WithContext(ctx)

	frames := make(chan video.Frame, c.cfg.Prefetch)
	pending := make(chan inflight, c.cfg.InFlight)

	g.Go(func() error {
		return reader.Stream(gctx, from, to, frames)
	})

	g.Go(func() error {
		defer close(pending)
		for f := range frames {
			future, err := c.playersDetector.Enqueue(gctx, f.Image)
			if err != nil {
				f.Image.Close()
				return err
			}
			select {
			case pending <- inflight{frame: f, future: future}:
			case <-gctx.Done():
				release(inflight{frame: f, future: future})
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for p := range pending {
			dets, err := p.future.Wait(gctx)
			if err != nil {
				release(p)
				return err
			}
			found, err := ex.Extract(p.frame.ID, p.frame.Image, dets[0])
			for _, is := range dets {
				is.Close()
			}
			p.frame.Image.Close()
			if err != nil {
				return err
			}
			if err := sink(gctx, p.frame.ID, found); err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	for f := range frames {
		f.Image.Close()
	}
	for p := range pending {
		release(p)
	}
	return err
}
