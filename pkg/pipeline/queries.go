package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/keypoints"
	"github.com/chenBenjamin97/rink-minimap/pkg/progress"
	"github.com/chenBenjamin97/rink-minimap/pkg/utils"
)

//Files lists what a video directory holds
type Files struct {
	Names []string `json:"names"`
	Bytes int64    `json:"bytes"`
}

//Mapping returns the stored correspondences of a video
func (c *Coordinator) Mapping(ctx context.Context, videoID int64) ([]entity.MapPoint, error) {
	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return nil, err
	}
	if _, err := client.Videos.Get(ctx, videoID); err != nil {
		return nil, err
	}
	return client.MapData.Get(ctx, videoID)
}

func (c *Coordinator) DatasetInfo(ctx context.Context, videoID int64) (entity.DatasetInfo, error) {
	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return entity.DatasetInfo{}, err
	}
	return client.Dataset.Get(ctx, videoID)
}

//Progress returns the last reported status of a video's job
func (c *Coordinator) Progress(ctx context.Context, videoID int64) (progress.Status, error) {
	return c.progress.Get(ctx, videoID)
}

//MinimapFile returns the path of the rendered minimap video
func (c *Coordinator) MinimapFile(ctx context.Context, videoID int64) (string, error) {
	v, err := c.Video(ctx, videoID)
	if err != nil {
		return "", err
	}
	if err := atLeast(v, entity.StateProcessed); err != nil {
		return "", err
	}
	path := v.MinimapPath(c.static())
	if _, err := os.Stat(path); err != nil {
		return "", apperr.Wrap(apperr.KindNotFound, err)
	}
	return path, nil
}

func (c *Coordinator) Files(ctx context.Context, videoID int64) (Files, error) {
	v, err := c.Video(ctx, videoID)
	if err != nil {
		return Files{}, err
	}
	dir := filepath.Join(c.static(), v.Directory)
	names, err := utils.ListDir(dir)
	if err != nil {
		return Files{}, err
	}
	size, err := utils.DirSize(dir)
	if err != nil {
		return Files{}, err
	}
	return Files{Names: names, Bytes: size}, nil
}

//KeyPoint looks a minimap landmark up by its configuration name
func (c *Coordinator) KeyPoint(name string) (keypoints.KeyPoint, bool) {
	k, ok := c.cfg.KeyPoints.Named()[name]
	return k, ok
}
