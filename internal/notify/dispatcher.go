// Package notify delivers assignment notifications and due-date reminders as
// in-app notifications and email. Delivery failures never roll back the
// change that triggered them.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/moekrh-design/kpi-team-system/internal/log"
	"github.com/moekrh-design/kpi-team-system/internal/mail"
	"github.com/moekrh-design/kpi-team-system/internal/metrics"
	"github.com/moekrh-design/kpi-team-system/internal/model"
)

const (
	reasonNewTask    = "new_task"
	emailAssignment  = "task_assignment"
	emailStageAssign = "stage_assignment"
	dateLayout       = "2006-01-02"
)

// Store is the storage the dispatcher reads recipients from and records
// deliveries in. *db.DB satisfies it.
type Store interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	ListStages(ctx context.Context, taskID string) ([]model.Stage, error)
	CreateNotification(ctx context.Context, n *model.Notification) error
	ClaimEmail(ctx context.Context, l *model.EmailLog) (bool, error)
	ReleaseEmail(ctx context.Context, l *model.EmailLog) error
	DueSoon(ctx context.Context, from, to string) ([]model.Reminder, error)
}

// Dispatcher turns task events into in-app notifications and emails.
type Dispatcher struct {
	store    Store
	mailer   mail.Mailer
	logger   logrus.FieldLogger
	metrics  *metrics.Metrics
	baseURL  string
	dueDays  int
	location *time.Location
	now      func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics counts notifications and email outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithBaseURL sets the prefix of task links.
func WithBaseURL(u string) Option {
	return func(d *Dispatcher) { d.baseURL = strings.TrimRight(u, "/") }
}

// WithDueDays sets how many days ahead the due-soon sweep looks. Zero or
// less disables the sweep.
func WithDueDays(n int) Option {
	return func(d *Dispatcher) { d.dueDays = n }
}

// WithClock sets the clock and the location calendar days are taken in.
func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(d *Dispatcher) {
		d.now = now
		d.location = loc
	}
}

// New creates a dispatcher writing to store and sending through mailer.
func New(store Store, mailer mail.Mailer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		mailer:   mailer,
		logger:   log.Discard(),
		dueDays:  2,
		location: time.Local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.location == nil {
		d.location = time.Local
	}
	return d
}

func (d *Dispatcher) link(taskID string) string {
	return d.baseURL + "/tasks/" + taskID
}

// OnTaskCreated notifies every participant of a new task.
func (d *Dispatcher) OnTaskCreated(ctx context.Context, task model.Task) {
	d.notifyParticipants(ctx, task, reasonNewTask)
}

// OnAssignmentChanged notifies every participant after the task employee
// changed.
func (d *Dispatcher) OnAssignmentChanged(ctx context.Context, task model.Task, prevEmployeeID, newEmployeeID string) {
	d.logger.WithFields(logrus.Fields{
		"task_id": task.ID,
		"from":    prevEmployeeID,
		"to":      newEmployeeID,
	}).Debug("task reassigned")
	d.notifyParticipants(ctx, task, model.NotifyTaskReassigned)
}

// Recipients returns the task employee followed by the assignees of live
// stages, each once.
func Recipients(task model.Task, stages []model.Stage) []string {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	add(task.EmployeeID)
	for _, s := range stages {
		if s.Live() {
			add(s.AssignedTo)
		}
	}
	return ids
}

func (d *Dispatcher) notifyParticipants(ctx context.Context, task model.Task, reason string) {
	logger := d.logger.WithFields(logrus.Fields{"task_id": task.ID, "reason": reason})

	stages, err := d.store.ListStages(ctx, task.ID)
	if err != nil {
		logger.WithError(err).Warn("failed to load stages for notification")
		return
	}
	var live []model.Stage
	for _, s := range stages {
		if s.Live() {
			live = append(live, s)
		}
	}

	names := map[string]string{}
	name := func(id string) string {
		if id == "" {
			return ""
		}
		if n, ok := names[id]; ok {
			return n
		}
		u, err := d.store.GetUser(ctx, id)
		if err != nil {
			names[id] = ""
			return ""
		}
		names[id] = u.DisplayName
		return u.DisplayName
	}

	title, heading := "New task", "A task was assigned to you"
	if reason == model.NotifyTaskReassigned {
		title, heading = "Task assignment updated", "A task assignment was updated"
	}

	for _, uid := range Recipients(task, live) {
		user, err := d.store.GetUser(ctx, uid)
		if err != nil {
			logger.WithField("user_id", uid).WithError(err).Warn("skipping unknown recipient")
			continue
		}

		d.inApp(ctx, &model.Notification{
			UserID: uid,
			Type:   model.NotifyTaskAssigned,
			Title:  title,
			Body:   task.Title,
			URL:    "/tasks/" + task.ID,
		}, map[string]string{"task_id": task.ID, "reason": reason})

		data := assignedData{
			Heading:    heading,
			Task:       task,
			Supervisor: name(task.SupervisorID),
			Main:       uid == task.EmployeeID,
			Link:       d.link(task.ID),
		}
		for _, s := range live {
			if data.Main || s.AssignedTo == uid {
				data.Stages = append(data.Stages, stageRow{
					Name:     s.Name,
					Assignee: name(s.AssignedTo),
					Progress: s.Progress,
					Status:   s.Status,
				})
			}
		}
		body, err := render("assigned", data)
		if err != nil {
			logger.WithError(err).Error("failed to render assignment email")
			continue
		}
		d.email(ctx, emailAssignment, user.Email, title+": "+task.Title, body)
	}
}

// OnStageAssigned notifies the new assignee of a stage.
func (d *Dispatcher) OnStageAssigned(ctx context.Context, task model.Task, stage model.Stage, prevUserID string) {
	if stage.AssignedTo == "" || stage.AssignedTo == prevUserID {
		return
	}
	logger := d.logger.WithFields(logrus.Fields{"task_id": task.ID, "stage_id": stage.ID})

	user, err := d.store.GetUser(ctx, stage.AssignedTo)
	if err != nil {
		logger.WithError(err).Warn("skipping unknown stage assignee")
		return
	}

	d.inApp(ctx, &model.Notification{
		UserID: user.ID,
		Type:   model.NotifyStageAssigned,
		Title:  "A stage was assigned to you",
		Body:   task.Title + ": " + stage.Name,
		URL:    "/tasks/" + task.ID,
	}, map[string]string{"task_id": task.ID, "stage_name": stage.Name})

	body, err := render("stage", stageData{Task: task, Stage: stage.Name, Link: d.link(task.ID)})
	if err != nil {
		logger.WithError(err).Error("failed to render stage email")
		return
	}
	d.email(ctx, emailStageAssign, user.Email, "Stage assigned in task: "+task.Title, body)
}

// SendManualReminder emails the task employee immediately and records the
// delivery. Unlike assignment mail, failures are returned to the caller.
func (d *Dispatcher) SendManualReminder(ctx context.Context, task model.Task, message string) error {
	if !d.mailEnabled() {
		return mail.ErrDisabled
	}
	if task.EmployeeID == "" {
		return fmt.Errorf("task %s has no employee: %w", task.ID, mail.ErrNoRecipient)
	}
	user, err := d.store.GetUser(ctx, task.EmployeeID)
	if err != nil {
		return err
	}
	if user.Email == "" {
		return fmt.Errorf("employee %s has no email: %w", user.ID, mail.ErrNoRecipient)
	}

	message = strings.TrimSpace(message)
	body, err := render("reminder", reminderData{Task: task, Message: message, Link: d.link(task.ID)})
	if err != nil {
		return err
	}
	if err := d.mailer.Send(ctx, user.Email, "Reminder about task: "+task.Title, body); err != nil {
		d.metrics.Email(model.EmailManualReminder, metrics.EmailFailed)
		return err
	}
	d.metrics.Email(model.EmailManualReminder, metrics.EmailSent)

	now := d.now()
	entry := &model.EmailLog{
		ID:      model.NewRecordID(),
		Type:    model.EmailManualReminder,
		TaskID:  task.ID,
		ToEmail: user.Email,
		Ref:     now.UTC().Format(time.RFC3339Nano),
		SentAt:  now,
	}
	if message != "" {
		entry.MetaJSON = encodeMeta(map[string]string{"message": message})
	}
	if _, err := d.store.ClaimEmail(ctx, entry); err != nil {
		d.logger.WithField("task_id", task.ID).WithError(err).Warn("failed to log reminder email")
	}

	d.inApp(ctx, &model.Notification{
		UserID: user.ID,
		Type:   model.NotifyTaskReminder,
		Title:  "Task reminder",
		Body:   task.Title,
		URL:    "/tasks/" + task.ID,
	}, map[string]string{"task_id": task.ID})
	return nil
}

func (d *Dispatcher) mailEnabled() bool {
	if e, ok := d.mailer.(interface{ Enabled() bool }); ok {
		return e.Enabled()
	}
	return d.mailer != nil
}

func (d *Dispatcher) inApp(ctx context.Context, n *model.Notification, meta map[string]string) {
	n.ID = model.NewRecordID()
	n.MetaJSON = encodeMeta(meta)
	n.CreatedAt = d.now()
	if err := d.store.CreateNotification(ctx, n); err != nil {
		d.logger.WithFields(logrus.Fields{"user_id": n.UserID, "type": n.Type}).WithError(err).Warn("failed to create notification")
		return
	}
	d.metrics.Notification(n.Type)
}

// email makes one delivery attempt. Failures are logged and counted only.
func (d *Dispatcher) email(ctx context.Context, kind, to, subject, body string) {
	if d.mailer == nil || to == "" {
		d.metrics.Email(kind, metrics.EmailSkipped)
		return
	}
	err := d.mailer.Send(ctx, to, subject, body)
	switch {
	case err == nil:
		d.metrics.Email(kind, metrics.EmailSent)
	case errors.Is(err, mail.ErrDisabled), errors.Is(err, mail.ErrNoRecipient):
		d.metrics.Email(kind, metrics.EmailSkipped)
	default:
		d.metrics.Email(kind, metrics.EmailFailed)
		d.logger.WithFields(logrus.Fields{"kind": kind, "to": to}).WithError(err).Warn("failed to send email")
	}
}

func encodeMeta(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(b)
}
