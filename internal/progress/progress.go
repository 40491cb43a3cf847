// Package progress folds a task's live stages into a single done percentage
// and a suggested task status.
package progress

import (
	"fmt"
	"math"

	"github.com/moekrh-design/kpi-team-system/internal/model"
)

// Result is the outcome of aggregating one task's live stages.
type Result struct {
	TaskID string
	// Empty is set when there were no live stages; the task keeps its
	// previous done value and status.
	Empty  bool
	Live   int
	Done   float64
	Status model.Status
}

// Recompute aggregates the live stages of a single task.
//
// Stages with a positive weight use it; every other live stage weighs
// 100/n, n being the number of live stages. The weighted sum is rounded to
// the nearest integer and clamped to [0,100]. The suggested status is never
// completed: a task whose stages are all at 100 waits for approval.
func Recompute(stages []model.Stage) (Result, error) {
	var res Result
	live := make([]model.Stage, 0, len(stages))
	for _, s := range stages {
		if res.TaskID == "" {
			res.TaskID = s.TaskID
		} else if s.TaskID != res.TaskID {
			return Result{}, fmt.Errorf("%w: %s and %s", model.ErrMixedTasks, res.TaskID, s.TaskID)
		}
		if s.Live() {
			live = append(live, s)
		}
	}

	res.Live = len(live)
	if res.Live == 0 {
		res.Empty = true
		return res, nil
	}

	base := 100 / float64(res.Live)
	sum := 0.0
	anyProgress, allDone := false, true
	for _, s := range live {
		w := base
		if s.Weight > 0 {
			w = s.Weight
		}
		p := Clamp(s.Progress)
		sum += (p * w) / 100

		if p > 0 {
			anyProgress = true
		}
		if p < 100 {
			allDone = false
		}
	}
	res.Done = Clamp(roundHalfUp(sum))

	switch {
	case allDone:
		res.Status = model.StatusPendingApproval
	case anyProgress:
		res.Status = model.StatusInProgress
	default:
		res.Status = model.StatusNew
	}
	return res, nil
}

// Clamp bounds a progress value to [0,100]. NaN counts as no progress.
func Clamp(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(0, math.Min(100, p))
}

// StageStatusFor maps a stage's progress to its own row status.
func StageStatusFor(p float64) model.StageStatus {
	switch {
	case p >= 100:
		return model.StageCompleted
	case p > 0:
		return model.StageInProgress
	default:
		return model.StageNew
	}
}

func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}
