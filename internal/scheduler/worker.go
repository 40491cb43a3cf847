// Package scheduler runs a periodic job on a cron schedule. The job runs once
// when the worker starts and then every interval; a run that is still going
// when the next one is due causes that tick to be skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/moekrh-design/kpi-team-system/internal/log"
)

// Job is the work done on every tick.
type Job func(ctx context.Context) error

// ErrRunning is returned by Start when the worker has not been stopped.
var ErrRunning = errors.New("worker already running")

// Worker runs a Job on a fixed interval.
type Worker struct {
	name     string
	interval time.Duration
	job      Job
	logger   logrus.FieldLogger

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	runs     atomic.Int64
	failures atomic.Int64
	lastRun  atomic.Int64
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger; runs are logged with a "worker" field.
func WithLogger(l logrus.FieldLogger) Option {
	return func(w *Worker) { w.logger = l }
}

// New creates a worker running job every interval. Intervals below one
// second are rejected.
func New(name string, interval time.Duration, job Job, opts ...Option) (*Worker, error) {
	if interval < time.Second {
		return nil, fmt.Errorf("interval must be at least 1s, got %s", interval)
	}
	if job == nil {
		return nil, errors.New("job is required")
	}
	w := &Worker{
		name:     name,
		interval: interval,
		job:      job,
		logger:   log.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithField("worker", name)
	return w, nil
}

// Start schedules the job and runs it once right away. No further runs start
// once ctx is done or Stop is called. A worker whose ctx is done must still be
// stopped before it can be started again.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	logger := cronLogger{w.logger}
	c := cron.New(cron.WithLogger(logger))
	job := cron.NewChain(cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(func() {
		if runCtx.Err() != nil {
			return
		}
		_ = w.RunOnce(runCtx)
	}))
	if _, err := c.AddJob("@every "+w.interval.String(), job); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule %s: %w", w.name, err)
	}

	w.running = true
	w.cron = c
	w.cancel = cancel
	c.Start()

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		job.Run()
	}()
	go func() {
		defer w.wg.Done()
		<-runCtx.Done()
		<-c.Stop().Done()
		w.logger.Debug("schedule stopped")
	}()

	w.logger.WithField("interval", w.interval).Info("worker started")
	return nil
}

// Stop cancels the current run and waits for it to return.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	c, cancel := w.cron, w.cancel
	w.mu.Unlock()

	cancel()
	<-c.Stop().Done()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

// RunOnce runs the job immediately in the caller's goroutine.
func (w *Worker) RunOnce(ctx context.Context) error {
	w.runs.Add(1)
	w.lastRun.Store(time.Now().UnixNano())
	start := time.Now()

	err := w.job(ctx)
	logger := w.logger.WithField("duration", time.Since(start).Round(time.Millisecond))
	if err != nil {
		w.failures.Add(1)
		logger.WithError(err).Error("job failed")
		return err
	}
	logger.Debug("job finished")
	return nil
}

// Runs returns how many times the job has started.
func (w *Worker) Runs() int64 { return w.runs.Load() }

// Failures returns how many runs returned an error.
func (w *Worker) Failures() int64 { return w.failures.Load() }

// LastRun returns when the job last started, or the zero time.
func (w *Worker) LastRun() time.Time {
	n := w.lastRun.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// cronLogger adapts a logrus logger to cron.Logger. Cron's own chatter goes
// to debug.
type cronLogger struct {
	logger logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
