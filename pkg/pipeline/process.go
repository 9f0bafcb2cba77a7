package pipeline

import (
	"context"
	"path"

	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/chenBenjamin97/rink-minimap/pkg/minimap"
	"github.com/chenBenjamin97/rink-minimap/pkg/players"
	"github.com/chenBenjamin97/rink-minimap/pkg/progress"
	"github.com/chenBenjamin97/rink-minimap/pkg/repository"
	"github.com/chenBenjamin97/rink-minimap/pkg/resources"
	"github.com/chenBenjamin97/rink-minimap/pkg/tracker"
	"github.com/chenBenjamin97/rink-minimap/pkg/video"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

//minimapBytesPerPixel is the compressed size of one minimap pixel per frame the disk reservation assumes
const minimapBytesPerPixel = 0.05

func estimateMinimapSize(size geometry.Resolution, frames int) int64 {
	if frames < 1 {
		frames = 1
	}
	return int64(float64(size.Width*size.Height*frames) * minimapBytesPerPixel)
}

//Process tracks the players of every frame, stores them and renders the minimap video.
//Frames are stored in one transaction, nothing is kept when any frame fails.
func (c *Coordinator) Process(ctx context.Context, videoID int64) (err error) {
	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return err
	}
	v, err := client.Videos.Get(ctx, videoID)
	if err != nil {
		return err
	}
	if err := guard(v, entity.StateProcessed); err != nil {
		return err
	}
	logger := c.logger(ctx, videoID)

	//retraining locks the video files itself, so it runs before lockFiles
	classifier, err := c.classifier(ctx, client, v)
	if err != nil {
		return err
	}
	solver, err := c.solver(ctx, client, v)
	if err != nil {
		return err
	}
	aliases, err := client.Aliases.List(ctx, videoID)
	if err != nil {
		return err
	}

	minimapPath := v.MinimapPath(c.static())
	release, err := c.lockFiles(ctx, v, minimapPath)
	if err != nil {
		return err
	}
	defer release()

	mask, fieldBox, err := c.fieldMask(v)
	if err != nil {
		return err
	}
	defer mask.Close()

	reader, err := video.Open(v.PlayablePath(c.static()))
	if err != nil {
		return err
	}
	defer reader.Close()

	reservation, err := c.disk.Reserve(resources.VolumeStatic, estimateMinimapSize(c.cfg.MinimapSize, reader.Info.FrameCount))
	if err != nil {
		return err
	}
	defer reservation.Release()

	renderer, err := c.renderer(minimapPath, reader.Info.FPS, aliases, logger)
	if err != nil {
		return err
	}
	defer renderer.Close()

	ex := players.NewExtractor(mask, fieldBox, solver, tracker.New(c.cfg.Tracker), classifier, logger)
	ex.Threshold = c.cfg.ScoreThreshold

	counter := progress.NewCounter(c.progress, videoID, jobID(ctx), progress.StageProcess, reader.Info.FrameCount)
	defer func() { counter.Finish(ctx, err) }()

	tx, err := c.repo.NewClient(ctx, true)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()
	if err := tx.Frames.DeleteAll(ctx, videoID); err != nil {
		return err
	}

	producer := renderer.Producer()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return renderer.Run(gctx)
	})
	g.Go(func() error {
		batch := make([]entity.FrameData, 0, c.cfg.InsertBatch)
		flush := func(ctx context.Context) error {
			if len(batch) == 0 {
				return nil
			}
			frames := batch
			batch = make([]entity.FrameData, 0, c.cfg.InsertBatch)
			return repository.WithTx(ctx, tx, func(nested repository.Client) error {
				return nested.Frames.Insert(ctx, videoID, frames)
			})
		}

		err := c.extract(gctx, reader, 0, -1, ex, func(ctx context.Context, frameID int, found []entity.PlayerData) error {
			fd := entity.FrameData{FrameID: frameID, Players: found}
			batch = append(batch, fd)
			if len(batch) >= c.cfg.InsertBatch {
				if err := flush(ctx); err != nil {
					return err
				}
			}
			if err := c.emitter.Emit(ctx, videoID, fd); err != nil {
				logger.WithFields(logrus.Fields{"frame_id": frameID, "error": err.Error()}).Warn("Failed to emit frame")
			}
			if err := producer.Send(ctx, found); err != nil {
				return err
			}
			counter.Add(ctx, 1)
			return nil
		})
		if err != nil {
			return err
		}
		if err := flush(gctx); err != nil {
			return err
		}
		return producer.Close(gctx)
	})
	if err := g.Wait(); err != nil {
		logger.WithField("error", err.Error()).Error("Processing failed")
		return err
	}

	if err := tx.Videos.SetState(ctx, videoID, entity.StateProcessed); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	c.forget(videoID)
	logger.WithField("tracks", ex.Tracker.LastID()).Info("Video processed")

	return c.publish(ctx, client, v)
}

//renderer prepares a minimap renderer writing to dst
func (c *Coordinator) renderer(dst string, fps float64, aliases []entity.PlayerAlias, logger logrus.FieldLogger) (*minimap.Renderer, error) {
	base := c.minimapBase()
	defer base.Close()

	cfg := c.cfg.Render
	cfg.FPS = fps
	cfg.Aliases = minimap.Aliases(repository.AliasMap(aliases))
	return minimap.NewRenderer(base, dst, c.encoders, cfg, logger)
}

//publish uploads the rendered minimap of v and marks it rendered. The caller holds the minimap lock.
func (c *Coordinator) publish(ctx context.Context, client repository.Client, v entity.Video) error {
	location, err := c.store.Upload(ctx, path.Join(v.Directory, entity.MinimapFileName), v.MinimapPath(c.static()))
	if err != nil {
		return err
	}
	if err := client.Videos.SetState(ctx, v.ID, entity.StateMinimapRendered); err != nil {
		return err
	}
	c.logger(ctx, v.ID).WithField("location", location).Info("Minimap published")
	return nil
}
