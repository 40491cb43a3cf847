package notify

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/moekrh-design/kpi-team-system/internal/mail"
	"github.com/moekrh-design/kpi-team-system/internal/metrics"
	"github.com/moekrh-design/kpi-team-system/internal/model"
)

// SweepReport summarizes one due-soon sweep.
type SweepReport struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Candidates int    `json:"candidates"`
	Sent       int    `json:"sent"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
}

// RunDueSoonSweep emails the employee of every open task due between today
// and today plus the configured number of days. Each (task, address) pair is
// mailed at most once per calendar day: the day's log row is claimed before
// sending and released again if the send fails, so a later sweep retries.
func (d *Dispatcher) RunDueSoonSweep(ctx context.Context) (SweepReport, error) {
	now := d.now().In(d.location)
	report := SweepReport{
		From: now.Format(dateLayout),
		To:   now.AddDate(0, 0, d.dueDays).Format(dateLayout),
	}
	if d.dueDays <= 0 || !d.mailEnabled() {
		d.logger.Debug("due-soon sweep disabled")
		return report, nil
	}

	items, err := d.store.DueSoon(ctx, report.From, report.To)
	if err != nil {
		d.metrics.Sweep(err)
		return report, err
	}
	report.Candidates = len(items)

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			d.metrics.Sweep(err)
			return report, err
		}
		d.remind(ctx, it, now.Format(dateLayout), &report)
	}

	d.metrics.Sweep(nil)
	d.logger.WithFields(logrus.Fields{
		"candidates": report.Candidates,
		"sent":       report.Sent,
		"skipped":    report.Skipped,
		"failed":     report.Failed,
	}).Info("due-soon sweep finished")
	return report, nil
}

func (d *Dispatcher) remind(ctx context.Context, it model.Reminder, today string, report *SweepReport) {
	logger := d.logger.WithFields(logrus.Fields{"task_id": it.TaskID, "to": it.Email})
	claim := &model.EmailLog{
		ID:      model.NewRecordID(),
		Type:    model.EmailDueSoon,
		TaskID:  it.TaskID,
		ToEmail: it.Email,
		Ref:     today,
		SentAt:  d.now(),
	}

	won, err := d.store.ClaimEmail(ctx, claim)
	if err != nil {
		report.Failed++
		logger.WithError(err).Warn("failed to claim reminder")
		return
	}
	if !won {
		report.Skipped++
		return
	}

	body, err := render("due_soon", dueSoonData{
		Name:    it.EmployeeName,
		Title:   it.Title,
		DueDate: it.DueDate,
		Link:    d.link(it.TaskID),
	})
	if err == nil {
		err = d.mailer.Send(ctx, it.Email, "Due date approaching: "+it.Title, body)
	}
	if err == nil {
		report.Sent++
		d.metrics.Email(model.EmailDueSoon, metrics.EmailSent)
		return
	}

	if rerr := d.store.ReleaseEmail(ctx, claim); rerr != nil {
		logger.WithError(rerr).Error("failed to release reminder claim")
	}
	if errors.Is(err, mail.ErrDisabled) {
		report.Skipped++
		d.metrics.Email(model.EmailDueSoon, metrics.EmailSkipped)
		return
	}
	report.Failed++
	d.metrics.Email(model.EmailDueSoon, metrics.EmailFailed)
	logger.WithError(err).Warn("failed to send reminder")
}
