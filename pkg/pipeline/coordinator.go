package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/emitter"
	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/chenBenjamin97/rink-minimap/pkg/inference"
	"github.com/chenBenjamin97/rink-minimap/pkg/keypoints"
	"github.com/chenBenjamin97/rink-minimap/pkg/log"
	"github.com/chenBenjamin97/rink-minimap/pkg/minimap"
	"github.com/chenBenjamin97/rink-minimap/pkg/objectstore"
	"github.com/chenBenjamin97/rink-minimap/pkg/progress"
	"github.com/chenBenjamin97/rink-minimap/pkg/repository"
	"github.com/chenBenjamin97/rink-minimap/pkg/resources"
	"github.com/chenBenjamin97/rink-minimap/pkg/team"
	"github.com/chenBenjamin97/rink-minimap/pkg/tracker"
	"github.com/chenBenjamin97/rink-minimap/pkg/video"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

//Detector is the queueing side of an inference worker
type Detector interface {
	Enqueue(ctx context.Context, images ...gocv.Mat) (*inference.Future, error)
}

//TranscodeFunc converts an uploaded source into the playable video
type TranscodeFunc func(ctx context.Context, src, dst string) error

type Config struct {
	//PlayableName is the file name of the converted video inside a video directory
	PlayableName string
	FFmpeg       string
	KeyPoints    keypoints.Config
	//MinimapImage is the rink drawing players are plotted on; a blank rink is used when empty
	MinimapImage string
	MinimapSize  geometry.Resolution
	//InFlight bounds the frames waiting for the players detector
	InFlight int
	//Prefetch bounds the decoded frames waiting to be sent to the detector
	Prefetch int
	//InsertBatch is how many frames are inserted per nested transaction
	InsertBatch int
	//MaxSubsetFrames bounds the frame range of one annotation subset
	MaxSubsetFrames int
	Render          minimap.Config
	Tracker         tracker.Config
	Train           team.TrainConfig
	ScoreThreshold  float64
	LockTimeout     time.Duration
}

var BaseConfig = Config{
	PlayableName:    entity.PlayableVideoName,
	FFmpeg:          "ffmpeg",
	KeyPoints:       keypoints.DefaultConfig(),
	MinimapSize:     geometry.Resolution{Width: 1280, Height: 720},
	InFlight:        4,
	Prefetch:        8,
	InsertBatch:     250,
	MaxSubsetFrames: 250,
	Render:          minimap.BaseConfig,
	Tracker:         tracker.BaseConfig,
	Train:           team.BaseTrainConfig,
	ScoreThreshold:  inference.DefaultScoreThreshold,
	LockTimeout:     resources.DefaultLockTimeout,
}

//Coordinator runs every long operation on a video and owns the project state machine.
//Operations on one video are serialized by Jobs; operations on different videos run concurrently.
type Coordinator struct {
	cfg  Config
	repo repository.Repository

	fieldDetector   Detector
	playersDetector Detector
	backbone        team.Backbone
	encoders        minimap.EncoderFactory
	transcode       TranscodeFunc

	locks    *resources.LockMap
	disk     *resources.Disk
	progress progress.Reporter
	emitter  emitter.Emitter
	store    objectstore.Uploader
	log      logrus.FieldLogger

	mu          sync.Mutex
	classifiers map[int64]*team.Classifier

	Jobs *Jobs
}

type Option func(*Coordinator) error

func WithDetectors(field, players Detector) Option {
	return func(c *Coordinator) error {
		c.fieldDetector, c.playersDetector = field, players
		return nil
	}
}

func WithBackbone(b team.Backbone) Option {
	return func(c *Coordinator) error {
		c.backbone = b
		return nil
	}
}

func WithEncoders(f minimap.EncoderFactory) Option {
	return func(c *Coordinator) error {
		c.encoders = f
		return nil
	}
}

func WithTranscoder(t TranscodeFunc) Option {
	return func(c *Coordinator) error {
		c.transcode = t
		return nil
	}
}

func WithResources(locks *resources.LockMap, disk *resources.Disk) Option {
	return func(c *Coordinator) error {
		c.locks, c.disk = locks, disk
		return nil
	}
}

func WithProgress(r progress.Reporter) Option {
	return func(c *Coordinator) error {
		c.progress = r
		return nil
	}
}

func WithEmitter(e emitter.Emitter) Option {
	return func(c *Coordinator) error {
		c.emitter = e
		return nil
	}
}

func WithUploader(u objectstore.Uploader) Option {
	return func(c *Coordinator) error {
		c.store = u
		return nil
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Coordinator) error {
		c.log = l
		return nil
	}
}

func New(cfg Config, repo repository.Repository, options ...Option) (*Coordinator, error) {
	c := &Coordinator{
		cfg:         cfg,
		repo:        repo,
		locks:       resources.NewLockMap(),
		progress:    progress.NewMemory(),
		emitter:     emitter.Nop{},
		store:       objectstore.Nop{},
		log:         logrus.StandardLogger(),
		classifiers: make(map[int64]*team.Classifier),
	}
	for _, option := range options {
		if err := option(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if c.repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if c.fieldDetector == nil || c.playersDetector == nil {
		return nil, fmt.Errorf("field and players detectors are required")
	}
	if c.backbone == nil {
		return nil, fmt.Errorf("team backbone is required")
	}
	if c.encoders == nil {
		return nil, fmt.Errorf("minimap encoder is required")
	}
	if c.disk == nil {
		return nil, fmt.Errorf("disk registry is required")
	}
	if c.transcode == nil {
		ffmpeg := cfg.FFmpeg
		c.transcode = func(ctx context.Context, src, dst string) error {
			return video.Transcode(ctx, ffmpeg, src, dst)
		}
	}
	if c.cfg.PlayableName == "" {
		c.cfg.PlayableName = entity.PlayableVideoName
	}
	if !c.cfg.MinimapSize.Valid() {
		return nil, fmt.Errorf("minimap size: %w", geometry.ErrInvalidResolution)
	}
	if err := c.cfg.KeyPoints.Validate(c.cfg.MinimapSize); err != nil {
		return nil, err
	}

	c.Jobs = NewJobs(c.progress, c.log)
	return c, nil
}

func (c *Coordinator) static() string {
	return c.disk.Path(resources.VolumeStatic)
}

func (c *Coordinator) logger(ctx context.Context, videoID int64) logrus.FieldLogger {
	return log.WithJob(c.log, ctx).WithField("video_id", videoID)
}

//Video returns the stored record of a video
func (c *Coordinator) Video(ctx context.Context, videoID int64) (entity.Video, error) {
	client, err := c.repo.NewClient(ctx, false)
	if err != nil {
		return entity.Video{}, err
	}
	return client.Videos.Get(ctx, videoID)
}

//guard fails unless v may move to next
func guard(v entity.Video, next entity.ProjectState) error {
	if !v.State.CanTransition(next) {
		return apperr.Newf(apperr.KindInvalidProjectState, "video %d is %s, cannot move to %s", v.ID, v.State, next)
	}
	return nil
}

//atLeast fails while v did not reach min yet
func atLeast(v entity.Video, min entity.ProjectState) error {
	if v.State < min {
		return apperr.Newf(apperr.KindInvalidProjectState, "video %d is %s, it must be %s first", v.ID, v.State, min)
	}
	return nil
}

//lockFiles locks the playable video and the field mask of v, plus any extra paths the caller writes.
//Call it before reading either file.
func (c *Coordinator) lockFiles(ctx context.Context, v entity.Video, extra ...string) (func(), error) {
	paths := append([]string{v.PlayablePath(c.static()), v.FieldMaskPath(c.static())}, extra...)
	return c.locks.Acquire(ctx, c.cfg.LockTimeout, paths...)
}

//minimapBase loads the rink drawing at the configured minimap size. The caller owns the Mat.
func (c *Coordinator) minimapBase() gocv.Mat {
	size := c.cfg.MinimapSize
	if c.cfg.MinimapImage != "" {
		img := gocv.IMRead(c.cfg.MinimapImage, gocv.IMReadColor)
		if !img.Empty() {
			if img.Cols() == size.Width && img.Rows() == size.Height {
				return img
			}
			resized := gocv.NewMat()
			gocv.Resize(img, &resized, image.Pt(size.Width, size.Height), 0, 0, gocv.InterpolationArea)
			img.Close()
			return resized
		}
		img.Close()
		c.log.WithField("path", c.cfg.MinimapImage).Warn("Minimap image is unreadable, drawing a blank rink")
	}
	return blankRink(size, c.cfg.KeyPoints)
}

var (
	iceColor  = color.RGBA{R: 236, G: 242, B: 246, A: 255}
	redLine   = color.RGBA{R: 200, G: 30, B: 40, A: 255}
	blueLine  = color.RGBA{R: 30, G: 60, B: 200, A: 255}
	boardLine = color.RGBA{R: 90, G: 90, B: 90, A: 255}
)

//blankRink draws the lines of the configured key points on plain ice
func blankRink(size geometry.Resolution, kp keypoints.Config) gocv.Mat {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(iceColor.B), float64(iceColor.G), float64(iceColor.R), 0),
		size.Height, size.Width, gocv.MatTypeCV8UC3)

	gocv.Rectangle(&img, kp.FieldBox().Rect(), boardLine, 3)
	gocv.Line(&img, kp.CenterLineTop.Point().Image(), kp.CenterLineBottom.Point().Image(), redLine, 4)
	gocv.Line(&img, kp.LeftBlueLineTop.Point().Image(), kp.LeftBlueLineBottom.Point().Image(), blueLine, 4)
	gocv.Line(&img, kp.RightBlueLineTop.Point().Image(), kp.RightBlueLineBottom.Point().Image(), blueLine, 4)
	gocv.Line(&img, kp.LeftGoalLineTop.Point().Image(), kp.LeftGoalLineAfterZoneBottom.Point().Image(), redLine, 2)
	gocv.Line(&img, kp.RightGoalLineTop.Point().Image(), kp.RightGoalLineAfterZoneBottom.Point().Image(), redLine, 2)
	gocv.Circle(&img, kp.CenterCircle.Point().Image(), size.Height/8, blueLine, 2)
	for _, k := range []keypoints.KeyPoint{kp.TopLeftRedCircle, kp.BottomLeftRedCircle, kp.TopRightRedCircle, kp.BottomRightRedCircle} {
		gocv.Circle(&img, k.Point().Image(), size.Height/8, redLine, 2)
	}
	return img
}
