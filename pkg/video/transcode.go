package video

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
)

//Transcode converts src into an mp4 every browser can play. Example: ffmpeg -i source.avi video.mp4
func Transcode(ctx context.Context, ffmpeg, src, dst string) error {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, ffmpeg,
		"-y", "-loglevel", "error",
		"-i", src,
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-movflags", "+faststart",
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperr.Wrap(apperr.KindInvalidFileFormat, fmt.Errorf("transcode %s: %w (%s)", src, err, strings.TrimSpace(stderr.String())))
	}
	return nil
}
