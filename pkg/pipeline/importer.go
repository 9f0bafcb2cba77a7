package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/progress"
	"github.com/chenBenjamin97/rink-minimap/pkg/resources"
	"github.com/chenBenjamin97/rink-minimap/pkg/video"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

//Import stores an uploaded video of size bytes in a fresh directory and registers it as Uploaded
func (c *Coordinator) Import(ctx context.Context, name string, size int64, r io.Reader) (entity.Video, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return entity.Video{}, apperr.Newf(apperr.KindInvalidFileFormat, "%q has no extension", name)
	}
	if size <= 0 {
		return entity.Video{}, apperr.Newf(apperr.KindInvalidInput, "upload size must be known, got %d", size)
	}

	reservation, err := c.disk.Reserve(resources.VolumeStatic, size)
	if err != nil {
		return entity.Video{}, err
	}
	defer reservation.Release()

	v := entity.Video{
		Directory:  uuid.NewString(),
		SourceFile: entity.SourceVideoPrefix + ext,
		State:      entity.StateUploaded,
	}
	dir := filepath.Join(c.static(), v.Directory)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return entity.Video{}, err
	}
	src := filepath.Join(dir, v.SourceFile)

	ok := false
	defer func() {
		if !ok {
			os.RemoveAll(dir)
		}
	}()

	release, err := c.locks.Acquire(ctx, c.cfg.LockTimeout, src)
	if err != nil {
		return entity.Video{}, err
	}
	err = writeFile(src, io.LimitReader(r, size))
	release()
	if err != nil {
		return entity.Video{}, err
	}

	info, err := video.Probe(src)
	if err != nil {
		return entity.Video{}, err
	}
	v.FPS, v.Width, v.Height, v.FrameCount = info.FPS, info.Width, info.Height, info.FrameCount

	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return entity.Video{}, err
	}
	if v.ID, err = client.Videos.Create(ctx, v); err != nil {
		return entity.Video{}, err
	}
	ok = true

	c.logger(ctx, v.ID).WithFields(logrus.Fields{
		"directory": v.Directory,
		"size":      size,
		"frames":    v.FrameCount,
	}).Info("Video imported")
	return v, nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

//Correct converts the source video into a playable mp4 and records its real geometry
func (c *Coordinator) Correct(ctx context.Context, videoID int64) (err error) {
	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return err
	}
	v, err := client.Videos.Get(ctx, videoID)
	if err != nil {
		return err
	}
	if err := guard(v, entity.StateCorrected); err != nil {
		return err
	}

	counter := progress.NewCounter(c.progress, videoID, jobID(ctx), progress.StageCorrect, 1)
	defer func() { counter.Finish(ctx, err) }()

	dir := filepath.Join(c.static(), v.Directory)
	src := filepath.Join(dir, v.SourceFile)
	dst := filepath.Join(dir, c.cfg.PlayableName)

	stat, err := os.Stat(src)
	if err != nil {
		return apperr.Wrap(apperr.KindNotFound, err)
	}
	reservation, err := c.disk.Reserve(resources.VolumeStatic, stat.Size())
	if err != nil {
		return err
	}
	defer reservation.Release()

	release, err := c.locks.Acquire(ctx, c.cfg.LockTimeout, src, dst)
	if err != nil {
		return err
	}
	defer release()

	tmp := filepath.Join(dir, "."+uuid.NewString()+filepath.Ext(dst))
	defer os.Remove(tmp)
	if err := c.transcode(ctx, src, tmp); err != nil {
		return err
	}
	info, err := video.Probe(tmp)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return err
	}

	v.PlayableFile = c.cfg.PlayableName
	v.FPS, v.Width, v.Height, v.FrameCount = info.FPS, info.Width, info.Height, info.FrameCount
	v.State = entity.StateCorrected
	if err := client.Videos.Update(ctx, v); err != nil {
		return err
	}

	c.logger(ctx, videoID).WithFields(logrus.Fields{
		"fps":    v.FPS,
		"width":  v.Width,
		"height": v.Height,
		"frames": v.FrameCount,
	}).Info("Video corrected")
	return nil
}
