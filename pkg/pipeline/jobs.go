package pipeline

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/log"
	"github.com/chenBenjamin97/rink-minimap/pkg/progress"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

//Job is one background operation on a video
type Job struct {
	ID      string         `json:"id"`
	VideoID int64          `json:"video_id"`
	Stage   progress.Stage `json:"stage"`
	Started time.Time      `json:"started"`

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

//Done is closed when the job returned
func (j *Job) Done() <-chan struct{} {
	return j.done
}

//Err returns the result of a finished job
func (j *Job) Err() error {
	<-j.done
	return j.err
}

//Jobs runs at most one job per video and hands out sortable job ids
type Jobs struct {
	mu      sync.Mutex
	running map[int64]*Job
	entropy *ulid.MonotonicEntropy
	wg      sync.WaitGroup

	progress progress.Reporter
	log      logrus.FieldLogger
}

func NewJobs(r progress.Reporter, log logrus.FieldLogger) *Jobs {
	return &Jobs{
		running:  make(map[int64]*Job),
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		progress: r,
		log:      log,
	}
}

func (j *Jobs) newID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), j.entropy).String()
}

//Start runs fn in the background. A video with a running job fails with InvalidProjectState.
//fn's context carries the job id and is cancelled by Cancel or when parent is done.
func (j *Jobs) Start(parent context.Context, videoID int64, stage progress.Stage, fn func(ctx context.Context) error) (*Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if running, ok := j.running[videoID]; ok {
		return nil, apperr.Newf(apperr.KindInvalidProjectState, "video %d is busy with job %s (%s)", videoID, running.ID, running.Stage)
	}

	now := time.Now()
	job := &Job{
		ID:      j.newID(now),
		VideoID: videoID,
		Stage:   stage,
		Started: now,
		done:    make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(context.WithValue(parent, log.JobIDKey, job.ID))
	job.cancel = cancel
	j.running[videoID] = job

	if err := j.progress.Report(ctx, videoID, progress.Status{JobID: job.ID, Stage: stage}); err != nil {
		j.log.WithFields(logrus.Fields{
			log.JobIDKey: job.ID,
			"video_id":   videoID,
			"error":      err.Error(),
		}).Warn("Failed to report job start")
	}

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer cancel()

		err := fn(ctx)
		entry := j.log.WithFields(logrus.Fields{
			log.JobIDKey: job.ID,
			"video_id":   videoID,
			"stage":      stage,
			"elapsed":    time.Since(now).String(),
		})
		if err != nil {
			entry.WithField("error", err.Error()).Error("Job failed")
		} else {
			entry.Info("Job finished")
		}

		j.mu.Lock()
		job.err = err
		delete(j.running, videoID)
		j.mu.Unlock()
		close(job.done)
	}()
	return job, nil
}

//Get returns the running job of a video
func (j *Jobs) Get(videoID int64) (*Job, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.running[videoID]
	return job, ok
}

//Cancel stops the running job of a video and reports whether there was one
func (j *Jobs) Cancel(videoID int64) bool {
	j.mu.Lock()
	job, ok := j.running[videoID]
	j.mu.Unlock()
	if ok {
		job.cancel()
	}
	return ok
}

//Wait blocks until every started job returned
func (j *Jobs) Wait() {
	j.wg.Wait()
}

//jobID returns the id of the job ctx belongs to, if any
func jobID(ctx context.Context) string {
	id, _ := ctx.Value(log.JobIDKey).(string)
	return id
}
