// Package workflow owns the task state machine: progress updates, stage
// management, approvals, cancellation and hard delete. Every transition
// decision reads the displayed status from a status.Resolver, never the
// stored column alone.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/moekrh-design/kpi-team-system/internal/db"
	"github.com/moekrh-design/kpi-team-system/internal/log"
	"github.com/moekrh-design/kpi-team-system/internal/metrics"
	"github.com/moekrh-design/kpi-team-system/internal/model"
	"github.com/moekrh-design/kpi-team-system/internal/progress"
	"github.com/moekrh-design/kpi-team-system/internal/status"
)

// Notifier receives assignment events after the change is committed.
// Implementations handle their own failures.
type Notifier interface {
	OnTaskCreated(ctx context.Context, task model.Task)
	OnAssignmentChanged(ctx context.Context, task model.Task, prevEmployeeID, newEmployeeID string)
	OnStageAssigned(ctx context.Context, task model.Task, stage model.Stage, prevUserID string)
	SendManualReminder(ctx context.Context, task model.Task, message string) error
}

// FileRemover deletes an attachment file by its stored name.
type FileRemover func(storedName string) error

// Engine applies task, stage and approval operations for an actor.
type Engine struct {
	db         *db.DB
	notifier   Notifier
	resolver   status.Resolver
	logger     logrus.FieldLogger
	metrics    *metrics.Metrics
	removeFile FileRemover
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets the clock used for timestamps and, unless WithResolver is
// also given, for the overdue overlay.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithResolver sets the resolver used for displayed status.
func WithResolver(r status.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithMetrics records status transitions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithFileRemover sets how attachment files are removed on hard delete.
func WithFileRemover(fn FileRemover) Option {
	return func(e *Engine) { e.removeFile = fn }
}

// New creates an engine over store. A nil notifier drops assignment events.
func New(store *db.DB, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		db:       store,
		notifier: notifier,
		logger:   log.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = nopNotifier{}
	}
	if e.resolver.Now == nil {
		e.resolver.Now = e.now
	}
	if e.resolver.Location == nil {
		e.resolver.Location = time.Local
	}
	return e
}

// Resolver returns the resolver used for displayed statuses.
func (e *Engine) Resolver() status.Resolver {
	return e.resolver
}

// DisplayStatus returns the status shown for t.
func (e *Engine) DisplayStatus(t model.Task) model.Status {
	return e.resolver.Display(t)
}

// loadTask returns a task that is neither missing nor cancelled.
func (e *Engine) loadTask(ctx context.Context, q *db.Queries, id string) (*model.Task, error) {
	t, err := q.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == model.StatusCancelled {
		return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}
	return t, nil
}

// loadStage returns a live stage and its live task.
func (e *Engine) loadStage(ctx context.Context, q *db.Queries, id string) (*model.Stage, *model.Task, error) {
	s, err := q.GetStage(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !s.Live() {
		return nil, nil, fmt.Errorf("stage %s: %w", id, model.ErrNotFound)
	}
	t, err := e.loadTask(ctx, q, s.TaskID)
	if err != nil {
		return nil, nil, err
	}
	return s, t, nil
}

// setStatus moves t to next and records the transition.
func (e *Engine) setStatus(t *model.Task, next model.Status) {
	if t.Status == next {
		return
	}
	e.logger.WithFields(logrus.Fields{
		"task_id": t.ID,
		"from":    t.Status,
		"to":      next,
	}).Debug("task status changed")
	e.metrics.Transition(string(t.Status), string(next))
	t.Status = next
}

// recompute folds the task's live stages into its done value and, unless the
// displayed status is terminal, its status. A task without live stages is
// left as it is.
func (e *Engine) recompute(ctx context.Context, q *db.Queries, t *model.Task) error {
	stages, err := q.ListStages(ctx, t.ID)
	if err != nil {
		return err
	}
	res, err := progress.Recompute(stages)
	if err != nil {
		return err
	}
	if res.Empty {
		return nil
	}

	t.ProgressMode = model.ModeStages
	t.TargetValue = model.StagesTarget
	t.DoneValue = res.Done
	t.UpdatedAt = e.now()
	if !e.resolver.Resolve(*t).Status.IsTerminal() {
		e.setStatus(t, res.Status)
	}
	return q.UpdateTask(ctx, t)
}

// checkUser rejects references to unknown or inactive users.
func (e *Engine) checkUser(ctx context.Context, field, id string) error {
	if id == "" {
		return nil
	}
	u, err := e.db.GetUser(ctx, id)
	if errors.Is(err, model.ErrNotFound) {
		return &model.ValidationError{Field: field, Message: "unknown user " + id}
	}
	if err != nil {
		return err
	}
	if !u.Active {
		return &model.ValidationError{Field: field, Message: "inactive user " + id}
	}
	return nil
}

type nopNotifier struct{}

func (nopNotifier) OnTaskCreated(context.Context, model.Task)                        {}
func (nopNotifier) OnAssignmentChanged(context.Context, model.Task, string, string)  {}
func (nopNotifier) OnStageAssigned(context.Context, model.Task, model.Stage, string) {}
func (nopNotifier) SendManualReminder(context.Context, model.Task, string) error     { return nil }
