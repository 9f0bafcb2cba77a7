package progress

import (
	"context"
	"sync"
	"time"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
)

//Stage names the long running operation a video is going through
type Stage string

const (
	StageCorrect Stage = "correct"
	StageMap     Stage = "map"
	StageDataset Stage = "dataset"
	StageProcess Stage = "process"
	StageRender  Stage = "render"
)

type Status struct {
	JobID     string    `json:"job_id"`
	Stage     Stage     `json:"stage"`
	Done      int       `json:"done"`
	Total     int       `json:"total"`
	Finished  bool      `json:"finished"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

//Final reports whether no further update of the same job will follow
func (s Status) Final() bool {
	return s.Finished || s.Error != ""
}

type Reporter interface {
	Report(ctx context.Context, videoID int64, s Status) error
	//Get fails with apperr.ErrNotFound when nothing was reported for the video
	Get(ctx context.Context, videoID int64) (Status, error)
}

//Memory keeps the last status of every video in process memory
type Memory struct {
	mu     sync.RWMutex
	status map[int64]Status
}

func NewMemory() *Memory {
	return &Memory{status: make(map[int64]Status)}
}

func (m *Memory) Report(ctx context.Context, videoID int64, s Status) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	m.mu.Lock()
	m.status[videoID] = s
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(ctx context.Context, videoID int64) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.status[videoID]
	if !ok {
		return Status{}, apperr.Newf(apperr.KindNotFound, "no progress for video %d", videoID)
	}
	return s, nil
}

//Counter reports the progress of one stage of one job
type Counter struct {
	reporter Reporter
	videoID  int64
	status   Status
	mu       sync.Mutex
}

func NewCounter(r Reporter, videoID int64, jobID string, stage Stage, total int) *Counter {
	return &Counter{
		reporter: r,
		videoID:  videoID,
		status:   Status{JobID: jobID, Stage: stage, Total: total},
	}
}

//Add advances the counter by n and reports it. Reporting failures never stop the job.
func (c *Counter) Add(ctx context.Context, n int) {
	c.mu.Lock()
	c.status.Done += n
	s := c.status
	c.mu.Unlock()
	_ = c.reporter.Report(ctx, c.videoID, s)
}

//Finish reports the end of the stage, err may be nil
func (c *Counter) Finish(ctx context.Context, err error) {
	c.mu.Lock()
	c.status.Finished = true
	if err != nil {
		c.status.Error = err.Error()
	} else if c.status.Total > 0 {
		c.status.Done = c.status.Total
	}
	s := c.status
	c.mu.Unlock()
	_ = c.reporter.Report(context.WithoutCancel(ctx), c.videoID, s)
}
