package inference

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

//Future is the pending result of one Enqueue call
type Future struct {
	done      chan struct{}
	once      sync.Once
	instances []Instances
	err       error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(instances []Instances, err error) {
	f.once.Do(func() {
		f.instances, f.err = instances, err
		close(f.done)
	})
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

//Wait blocks until the worker fulfilled the future or ctx is done.
//The caller owns the returned instances.
func (f *Future) Wait(ctx context.Context) ([]Instances, error) {
	select {
	case <-f.done:
		return f.instances, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type request struct {
	ctx    context.Context
	inputs []Input
	future *Future
}

//cancelled completes the future of a request whose caller gave up, without touching its inputs
func (r request) cancelled() bool {
	if err := r.ctx.Err(); err != nil {
		r.future.complete(nil, err)
		return true
	}
	return false
}

//WorkerMetrics are counters of one worker
type WorkerMetrics struct {
	Batches     uint64  `json:"batches"`
	Images      uint64  `json:"images"`
	Failures    uint64  `json:"failures"`
	AvgLatencyS float64 `json:"avg_latency_s"`
}

//Worker owns one Model and runs its forward passes one batch at a time under the device lock
type Worker struct {
	name      string
	model     Model
	lock      *DeviceLock
	threshold float64
	maxBatch  int
	queue     chan request
	log       logrus.FieldLogger

	batches   atomic.Uint64
	images    atomic.Uint64
	failures  atomic.Uint64
	latencyNS atomic.Int64
}

type WorkerOption func(*Worker)

func WithScoreThreshold(threshold float64) WorkerOption {
	return func(w *Worker) {
		w.threshold = threshold
	}
}

//WithMaxBatchSize bounds how many queued images go through one forward pass
func WithMaxBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.maxBatch = n
		}
	}
}

//WithQueueSize bounds how many Enqueue calls may wait for the worker
func WithQueueSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.queue = make(chan request, n)
		}
	}
}

func WithLogger(l logrus.FieldLogger) WorkerOption {
	return func(w *Worker) {
		w.log = l
	}
}

func NewWorker(name string, model Model, lock *DeviceLock, opts ...WorkerOption) *Worker {
	w := &Worker{
		name:      name,
		model:     model,
		lock:      lock,
		threshold: DefaultScoreThreshold,
		maxBatch:  1,
		queue:     make(chan request, 16),
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.WithFields(logrus.Fields{"worker": name, "device": lock.Device})
	return w
}

func (w *Worker) Name() string {
	return w.name
}

//Enqueue queues images for one forward pass. images are BGR and must stay open until the future is done.
//It blocks while the queue is full. Once ctx is done the images are skipped and the future fails with ctx's error.
func (w *Worker) Enqueue(ctx context.Context, images ...gocv.Mat) (*Future, error) {
	req := request{ctx: ctx, inputs: make([]Input, len(images)), future: newFuture()}
	for i, img := range images {
		req.inputs[i] = NewInput(img)
	}
	if len(images) == 0 {
		req.future.complete(nil, nil)
		return req.future, nil
	}

	select {
	case w.queue <- req:
		return req.future, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

//Run serves the queue until ctx is done. Futures still queued at that point fail with ctx's error.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Debug("Inference worker started")
	defer w.drain(ctx)

	for {
		if ctx.Err() != nil {
			w.log.Debug("Inference worker stopped")
			return ctx.Err()
		}

		var first request
		select {
		case <-ctx.Done():
			w.log.Debug("Inference worker stopped")
			return ctx.Err()
		case first = <-w.queue:
		}

		if first.cancelled() {
			continue
		}
		batch := []request{first}
		size := len(first.inputs)
	collect:
		for size < w.maxBatch {
			select {
			case req := <-w.queue:
				if req.cancelled() {
					continue
				}
				batch = append(batch, req)
				size += len(req.inputs)
			default:
				break collect
			}
		}

		w.process(ctx, batch)
	}
}

func (w *Worker) process(ctx context.Context, batch []request) {
	if err := w.lock.Lock(ctx); err != nil {
		w.fail(batch, err)
		return
	}

	//callers may have given up while the device was busy
	live := batch[:0]
	var inputs []Input
	for _, req := range batch {
		if req.cancelled() {
			continue
		}
		live = append(live, req)
		inputs = append(inputs, req.inputs...)
	}
	batch = live
	if len(batch) == 0 {
		w.lock.Unlock()
		return
	}

	start := time.Now()
	results, err := w.model.Predict(ctx, inputs)
	w.lock.Unlock()

	w.batches.Add(1)
	w.images.Add(uint64(len(inputs)))
	w.latencyNS.Add(int64(time.Since(start)))

	if err == nil && len(results) != len(inputs) {
		for _, r := range results {
			r.Close()
		}
		err = fmt.Errorf("model returned %d results for %d images", len(results), len(inputs))
	}
	if err != nil {
		w.failures.Add(1)
		w.log.WithFields(logrus.Fields{"images": len(inputs), "error": err.Error()}).Error("Forward pass failed")
		w.fail(batch, apperr.Wrap(apperr.KindDetectorFailure, fmt.Errorf("%s: %w", w.name, err)))
		return
	}

	offset := 0
	for _, req := range batch {
		out := make([]Instances, len(req.inputs))
		for i := range req.inputs {
			out[i] = results[offset+i].Filter(w.threshold)
		}
		offset += len(req.inputs)
		req.future.complete(out, nil)
	}
}

func (w *Worker) fail(batch []request, err error) {
	for _, req := range batch {
		req.future.complete(nil, err)
	}
}

func (w *Worker) drain(ctx context.Context) {
	err := ctx.Err()
	if err == nil {
		err = context.Canceled
	}
	for {
		select {
		case req := <-w.queue:
			req.future.complete(nil, err)
		default:
			return
		}
	}
}

func (w *Worker) Metrics() WorkerMetrics {
	m := WorkerMetrics{
		Batches:  w.batches.Load(),
		Images:   w.images.Load(),
		Failures: w.failures.Load(),
	}
	if m.Batches > 0 {
		m.AvgLatencyS = time.Duration(w.latencyNS.Load() / int64(m.Batches)).Seconds()
	}
	return m
}

//Close releases the model
func (w *Worker) Close() error {
	return w.model.Close()
}
