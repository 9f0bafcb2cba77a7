package pipeline

import (
	"context"

	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/progress"
	"github.com/chenBenjamin97/rink-minimap/pkg/resources"
	"golang.org/x/sync/errgroup"
)

//Render draws the minimap video again from the stored frames, picking up killed tracks and new aliases
func (c *Coordinator) Render(ctx context.Context, videoID int64) (err error) {
	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return err
	}
	v, err := client.Videos.Get(ctx, videoID)
	if err != nil {
		return err
	}
	if err := atLeast(v, entity.StateProcessed); err != nil {
		return err
	}
	logger := c.logger(ctx, videoID)

	frames, err := client.Frames.Range(ctx, videoID, 0, -1)
	if err != nil {
		return err
	}
	aliases, err := client.Aliases.List(ctx, videoID)
	if err != nil {
		return err
	}

	counter := progress.NewCounter(c.progress, videoID, jobID(ctx), progress.StageRender, len(frames))
	defer func() { counter.Finish(ctx, err) }()

	dst := v.MinimapPath(c.static())
	release, err := c.locks.Acquire(ctx, c.cfg.LockTimeout, dst)
	if err != nil {
		return err
	}
	defer release()

	reservation, err := c.disk.Reserve(resources.VolumeStatic, estimateMinimapSize(c.cfg.MinimapSize, len(frames)))
	if err != nil {
		return err
	}
	defer reservation.Release()

	renderer, err := c.renderer(dst, v.FPS, aliases, logger)
	if err != nil {
		return err
	}
	defer renderer.Close()

	producer := renderer.Producer()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return renderer.Run(gctx)
	})
	g.Go(func() error {
		for _, f := range frames {
			if err := producer.Send(gctx, f.Players); err != nil {
				return err
			}
			counter.Add(gctx, 1)
		}
		return producer.Close(gctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	return c.publish(ctx, client, v)
}
