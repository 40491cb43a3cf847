// Package status derives the displayed status of a task from its stored
// status and due date without touching storage.
//
// Code that makes transition decisions must read View.Status rather than the
// stored column: a View can only be obtained through a Resolver.
package status

import (
	"encoding/json"
	"time"

	"github.com/moekrh-design/kpi-team-system/internal/model"
)

var dueLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// Resolver computes displayed statuses relative to a clock.
type Resolver struct {
	Now      func() time.Time
	Location *time.Location
}

// NewResolver returns a Resolver using the wall clock in local time.
func NewResolver() Resolver {
	return Resolver{Now: time.Now, Location: time.Local}
}

// View is a task as callers should see it. StoredStatus is the persisted
// column; Status carries the overdue overlay.
type View struct {
	task         model.Task
	Status       model.Status
	StoredStatus model.Status
}

// Task returns a copy of the stored record behind the view.
func (v View) Task() model.Task { return v.task }

// ID returns the task id.
func (v View) ID() string { return v.task.ID }

// MarshalJSON flattens the stored fields with the displayed status taking
// the place of the stored one.
func (v View) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		model.Task
		Status       model.Status `json:"status"`
		StoredStatus model.Status `json:"stored_status"`
	}{v.task, v.Status, v.StoredStatus})
}

// Overdue reports whether the overlay replaced the stored status.
func (v View) Overdue() bool { return v.Status == model.StatusOverdue }

// Resolve builds the view for t.
func (r Resolver) Resolve(t model.Task) View {
	return View{task: t, Status: r.Display(t), StoredStatus: t.Status}
}

// Display returns the status shown to users and reports.
//
// Completed and cancelled are returned unchanged. Otherwise a task whose due
// date ended before now is overdue, except that a task already awaiting
// approval keeps pending_approval.
func (r Resolver) Display(t model.Task) model.Status {
	if t.Status.IsTerminal() {
		return t.Status
	}
	if r.pastDue(t.DueDate) {
		if t.Status == model.StatusPendingApproval {
			return model.StatusPendingApproval
		}
		return model.StatusOverdue
	}
	return t.Status
}

func (r Resolver) pastDue(due string) bool {
	if due == "" {
		return false
	}
	loc := r.location()
	d, ok := ParseDueDate(due, loc)
	if !ok {
		return false
	}
	return EndOfDay(d).Before(r.now().In(loc))
}

func (r Resolver) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r Resolver) location() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

// ParseDueDate parses a stored due date. Invalid values report false and never
// produce an overdue overlay.
func ParseDueDate(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range dueLayouts {
		if d, err := time.ParseInLocation(layout, s, loc); err == nil {
			return d.In(loc), true
		}
	}
	return time.Time{}, false
}

// EndOfDay returns the last instant of t's calendar day in t's location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Millisecond), t.Location())
}
