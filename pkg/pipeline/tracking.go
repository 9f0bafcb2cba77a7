package pipeline

import (
	"context"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/repository"
	"github.com/sirupsen/logrus"
)

//KillTracking drops a wrong track from fromFrame on. A rendered minimap is stale afterwards,
//so the video falls back to Processed until Render runs again.
func (c *Coordinator) KillTracking(ctx context.Context, videoID int64, trackID, fromFrame int) (removed int64, err error) {
	if fromFrame < 0 {
		return 0, apperr.Newf(apperr.KindInvalidInput, "frame %d is negative", fromFrame)
	}
	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return 0, err
	}
	v, err := client.Videos.Get(ctx, videoID)
	if err != nil {
		return 0, err
	}
	if err := atLeast(v, entity.StateProcessed); err != nil {
		return 0, err
	}

	err = repository.WithTx(ctx, client, func(tx repository.Client) error {
		if removed, err = tx.PlayerData.KillTracking(ctx, videoID, trackID, fromFrame); err != nil {
			return err
		}
		if removed > 0 && v.State == entity.StateMinimapRendered {
			return tx.Videos.SetState(ctx, videoID, entity.StateProcessed)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	c.logger(ctx, videoID).WithFields(logrus.Fields{
		"tracking_id": trackID,
		"from_frame":  fromFrame,
		"removed":     removed,
	}).Info("Track killed")
	return removed, nil
}

//Tracks lists the tracking ids stored for a video
func (c *Coordinator) Tracks(ctx context.Context, videoID int64) ([]int, error) {
	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return nil, err
	}
	if _, err := client.Videos.Get(ctx, videoID); err != nil {
		return nil, err
	}
	return client.PlayerData.Tracks(ctx, videoID)
}

//Frames returns the stored players of frames [from, to), a negative to means until the end
func (c *Coordinator) Frames(ctx context.Context, videoID int64, from, to int) ([]entity.FrameData, error) {
	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return nil, err
	}
	if _, err := client.Videos.Get(ctx, videoID); err != nil {
		return nil, err
	}
	return client.Frames.Range(ctx, videoID, from, to)
}

//SetAlias names a tracked player on the minimap, an empty alias removes the name
func (c *Coordinator) SetAlias(ctx context.Context, a entity.PlayerAlias) error {
	if a.TrackingID <= 0 {
		return apperr.Newf(apperr.KindInvalidInput, "tracking id %d is invalid", a.TrackingID)
	}
	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return err
	}
	if _, err := client.Videos.Get(ctx, a.VideoID); err != nil {
		return err
	}
	return client.Aliases.Set(ctx, a)
}

//Aliases lists the player names of a video
func (c *Coordinator) Aliases(ctx context.Context, videoID int64) ([]entity.PlayerAlias, error) {
	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return nil, err
	}
	return client.Aliases.List(ctx, videoID)
}
