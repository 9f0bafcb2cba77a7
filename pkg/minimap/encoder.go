package minimap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

//Encoder consumes BGR frames of one fixed size and writes them to a video file
type Encoder interface {
	Write(frame gocv.Mat) error
	//Close flushes and finalizes the file
	Close() error
	//Abort stops encoding and leaves whatever was written behind
	Abort()
}

//EncoderFactory opens an Encoder writing to path
type EncoderFactory interface {
	Open(ctx context.Context, path string, size geometry.Resolution, fps float64) (Encoder, error)
}

type EncoderConfig struct {
	Binary              string
	Codec               string
	CRF                 int
	Preset              string
	HWAccel             string
	HWAccelOutputFormat string
}

var BaseEncoderConfig = EncoderConfig{
	Binary: "ffmpeg",
	Codec:  "libx264",
	CRF:    23,
	Preset: "veryfast",
}

//FFmpeg starts one ffmpeg process per video, fed with raw bgr24 frames on its stdin
type FFmpeg struct {
	Config EncoderConfig
	Log    logrus.FieldLogger
}

func NewFFmpeg(cfg EncoderConfig, log logrus.FieldLogger) *FFmpeg {
	if cfg.Binary == "" {
		cfg.Binary = BaseEncoderConfig.Binary
	}
	return &FFmpeg{Config: cfg, Log: log}
}

//args builds the ffmpeg command line. size must already be even.
func (f *FFmpeg) args(path string, size geometry.Resolution, fps float64) []string {
	args := []string{"-y", "-loglevel", "error"}
	if f.Config.HWAccel != "" {
		args = append(args, "-hwaccel", f.Config.HWAccel)
		if f.Config.HWAccelOutputFormat != "" {
			args = append(args, "-hwaccel_output_format", f.Config.HWAccelOutputFormat)
		}
	}
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-s", fmt.Sprintf("%dx%d", size.Width, size.Height),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		"-an",
	)
	if f.Config.Codec != "" {
		args = append(args, "-c:v", f.Config.Codec)
	}
	if f.Config.Preset != "" {
		args = append(args, "-preset", f.Config.Preset)
	}
	if f.Config.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(f.Config.CRF))
	}
	return append(args, "-pix_fmt", "yuv420p", "-movflags", "+faststart", path)
}

func (f *FFmpeg) Open(ctx context.Context, path string, size geometry.Resolution, fps float64) (Encoder, error) {
	if !size.Valid() || size.Width%2 != 0 || size.Height%2 != 0 {
		return nil, fmt.Errorf("ffmpeg: frame size %dx%d must be positive and even", size.Width, size.Height)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("ffmpeg: invalid frame rate %v", fps)
	}

	cmd := exec.CommandContext(ctx, f.Config.Binary, f.args(path, size, fps)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: could not get stdin: %w", err)
	}
	e := &ffmpegEncoder{cmd: cmd, stdin: stdin, frameBytes: size.Width * size.Height * 3}
	cmd.Stderr = &e.stderr

	if f.Log != nil {
		f.Log.WithField("cmd", strings.Join(cmd.Args, " ")).Debug("Starting ffmpeg")
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: could not start: %w", err)
	}
	return e, nil
}

type ffmpegEncoder struct {
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stderr     bytes.Buffer
	frameBytes int
	once       sync.Once
	waitErr    error
}

func (e *ffmpegEncoder) Write(frame gocv.Mat) error {
	if frame.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("ffmpeg: expected a BGR frame, got %v", frame.Type())
	}
	data := frame.ToBytes()
	if len(data) != e.frameBytes {
		return fmt.Errorf("ffmpeg: frame has %d bytes, expected %d", len(data), e.frameBytes)
	}
	if _, err := e.stdin.Write(data); err != nil {
		return fmt.Errorf("ffmpeg: write frame: %w (%s)", err, e.tail())
	}
	return nil
}

func (e *ffmpegEncoder) wait() error {
	e.once.Do(func() {
		e.waitErr = e.cmd.Wait()
	})
	return e.waitErr
}

func (e *ffmpegEncoder) Close() error {
	if err := e.stdin.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("ffmpeg: close stdin: %w", err)
	}
	if err := e.wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w (%s)", err, e.tail())
	}
	return nil
}

func (e *ffmpegEncoder) Abort() {
	e.stdin.Close()
	if e.cmd.Process != nil {
		e.cmd.Process.Kill()
	}
	e.wait()
}

//tail returns the last line ffmpeg printed
func (e *ffmpegEncoder) tail() string {
	lines := strings.Split(strings.TrimSpace(e.stderr.String()), "\n")
	return lines[len(lines)-1]
}
