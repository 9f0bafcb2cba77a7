package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/keypoints"
	"github.com/chenBenjamin97/rink-minimap/pkg/pipeline"
	"github.com/chenBenjamin97/rink-minimap/pkg/progress"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

//Analyzer is everything the control surface asks of the analysis core
type Analyzer interface {
	Video(ctx context.Context, videoID int64) (entity.Video, error)
	Import(ctx context.Context, name string, size int64, r io.Reader) (entity.Video, error)
	Correct(ctx context.Context, videoID int64) error
	Map(ctx context.Context, videoID int64, req pipeline.MapRequest) (pipeline.MapResult, error)
	Mapping(ctx context.Context, videoID int64) ([]entity.MapPoint, error)
	SaveMapping(ctx context.Context, videoID int64, points []entity.MapPoint) (pipeline.MapResult, error)
	KeyPoint(name string) (keypoints.KeyPoint, bool)
	ProposeSubset(ctx context.Context, videoID int64, from, to int) (entity.Subset, error)
	SaveSubset(ctx context.Context, s entity.Subset) (int64, error)
	Subsets(ctx context.Context, videoID int64) ([]entity.Subset, error)
	DeleteSubset(ctx context.Context, videoID, id int64) error
	TrainDataset(ctx context.Context, videoID int64) (entity.DatasetInfo, error)
	DatasetInfo(ctx context.Context, videoID int64) (entity.DatasetInfo, error)
	Process(ctx context.Context, videoID int64) error
	Render(ctx context.Context, videoID int64) error
	Progress(ctx context.Context, videoID int64) (progress.Status, error)
	MinimapFile(ctx context.Context, videoID int64) (string, error)
	Files(ctx context.Context, videoID int64) (pipeline.Files, error)
	Frames(ctx context.Context, videoID int64, from, to int) ([]entity.FrameData, error)
	Tracks(ctx context.Context, videoID int64) ([]int, error)
	KillTracking(ctx context.Context, videoID int64, trackID, fromFrame int) (int64, error)
	Aliases(ctx context.Context, videoID int64) ([]entity.PlayerAlias, error)
	SetAlias(ctx context.Context, a entity.PlayerAlias) error
}

//JobRunner runs the long operations in the background
type JobRunner interface {
	Start(parent context.Context, videoID int64, stage progress.Stage, fn func(ctx context.Context) error) (*pipeline.Job, error)
	Get(videoID int64) (*pipeline.Job, bool)
	Cancel(videoID int64) bool
}

type ServerOption func(*Server) error

type Server struct {
	engine    *gin.Engine
	analyzer  Analyzer
	jobs      JobRunner
	log       logrus.FieldLogger
	validator *validator.Validate
	timeout   time.Duration
	//base parents every background job, cancelling it stops them all
	base context.Context
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{
		validator: validator.New(),
		timeout:   30 * time.Second,
		base:      context.Background(),
	}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("gin engine is required")
	}
	if server.analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if server.jobs == nil {
		return nil, fmt.Errorf("job runner is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}

	server.engine.Use(requestID(), accessLog(server.log), gin.Recovery())
	server.routes()
	return server, nil
}

func WithGin(engine *gin.Engine) ServerOption {
	return func(s *Server) error {
		s.engine = engine
		return nil
	}
}

func WithAnalyzer(a Analyzer) ServerOption {
	return func(s *Server) error {
		s.analyzer = a
		return nil
	}
}

func WithJobs(j JobRunner) ServerOption {
	return func(s *Server) error {
		s.jobs = j
		return nil
	}
}

func WithLogger(logger logrus.FieldLogger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(v *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = v
		return nil
	}
}

//WithRequestTimeout bounds the synchronous requests, background jobs are not affected
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive, got %v", d)
		}
		s.timeout = d
		return nil
	}
}

func WithBaseContext(ctx context.Context) ServerOption {
	return func(s *Server) error {
		s.base = ctx
		return nil
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

//Run serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	errs := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
