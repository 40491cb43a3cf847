package workflow

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moekrh-design/kpi-team-system/internal/db"
	"github.com/moekrh-design/kpi-team-system/internal/metrics"
	"github.com/moekrh-design/kpi-team-system/internal/model"
	"github.com/moekrh-design/kpi-team-system/internal/status"
)

var testNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type assignment struct {
	TaskID, Prev, New string
}

type recorder struct {
	mu            sync.Mutex
	created       []string
	assignments   []assignment
	stageAssigned []assignment
	reminders     []string
	remindErr     error
}

func (r *recorder) OnTaskCreated(_ context.Context, t model.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, t.ID)
}

func (r *recorder) OnAssignmentChanged(_ context.Context, t model.Task, prev, next string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments = append(r.assignments, assignment{t.ID, prev, next})
}

func (r *recorder) OnStageAssigned(_ context.Context, t model.Task, s model.Stage, prev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stageAssigned = append(r.stageAssigned, assignment{s.ID, prev, s.AssignedTo})
}

func (r *recorder) SendManualReminder(_ context.Context, t model.Task, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.remindErr != nil {
		return r.remindErr
	}
	r.reminders = append(r.reminders, t.ID+":"+message)
	return nil
}

type fixture struct {
	engine   *Engine
	db       *db.DB
	notes    *recorder
	hook     *test.Hook
	metrics  *metrics.Metrics
	removed  []string
	admin    model.Actor
	sup      model.Actor
	otherSup model.Actor
	emp      model.Actor
	emp2     model.Actor
	approver model.Actor
}

func addUser(t *testing.T, store *db.DB, username string, role model.Role, canApprove bool) model.Actor {
	t.Helper()
	u := &model.User{
		ID:          model.GenerateID(model.KindUser),
		Username:    username,
		DisplayName: username,
		Role:        role,
		Email:       username + "@example.com",
		CanApprove:  canApprove,
		Active:      true,
	}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return u.Actor()
}

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	f := &fixture{
		db:      store,
		notes:   &recorder{},
		hook:    hook,
		metrics: metrics.New(nil),
	}
	clock := func() time.Time { return testNow }
	base := []Option{
		WithLogger(logger),
		WithClock(clock),
		WithResolver(status.Resolver{Now: clock, Location: time.UTC}),
		WithMetrics(f.metrics),
		WithFileRemover(func(name string) error {
			f.removed = append(f.removed, name)
			return nil
		}),
	}
	f.engine = New(store, f.notes, append(base, opts...)...)

	f.admin = addUser(t, store, "admin", model.RoleAdmin, false)
	f.sup = addUser(t, store, "nora", model.RoleSupervisor, false)
	f.otherSup = addUser(t, store, "khalid", model.RoleSupervisor, false)
	f.emp = addUser(t, store, "sara", model.RoleEmployee, false)
	f.emp2 = addUser(t, store, "omar", model.RoleEmployee, false)
	f.approver = addUser(t, store, "lina", model.RoleEmployee, true)
	return f
}

func (f *fixture) simpleTask(t *testing.T, target float64) *status.View {
	t.Helper()
	v, err := f.engine.CreateTask(context.Background(), f.sup, NewTask{
		Title:       "Monthly report",
		EmployeeID:  f.emp.ID,
		TargetValue: target,
	})
	require.NoError(t, err)
	return v
}

func (f *fixture) stagedTask(t *testing.T, keys ...string) (*status.View, []model.Stage) {
	t.Helper()
	var specs []StageSpec
	for _, k := range keys {
		specs = append(specs, StageSpec{Key: k, AssignedTo: f.emp2.ID})
	}
	v, err := f.engine.CreateTask(context.Background(), f.sup, NewTask{
		Title:      "Campaign video",
		EmployeeID: f.emp.ID,
		Stages:     specs,
	})
	require.NoError(t, err)
	stages, err := f.db.ListStages(context.Background(), v.ID())
	require.NoError(t, err)
	return v, stages
}

func (f *fixture) stored(t *testing.T, id string) *model.Task {
	t.Helper()
	task, err := f.db.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task
}

func (f *fixture) setStage(t *testing.T, stageID string, p float64) *status.View {
	t.Helper()
	v, err := f.engine.UpdateStageProgress(context.Background(), f.sup, stageID, StageProgress{Progress: p})
	require.NoError(t, err)
	return v
}

func TestCreateTask_Simple(t *testing.T) {
	f := setup(t)

	v := f.simpleTask(t, 10)

	task := v.Task()
	assert.Equal(t, model.StatusNew, v.Status)
	assert.Equal(t, model.ModeSimple, task.ProgressMode)
	assert.Equal(t, 10.0, task.TargetValue)
	assert.Equal(t, model.PriorityMedium, task.Priority)
	assert.Equal(t, f.sup.ID, task.SupervisorID, "supervisor owns the tasks they create")
	assert.Equal(t, []string{v.ID()}, f.notes.created)
}

func TestCreateTask_Stages(t *testing.T) {
	f := setup(t)

	v, stages := f.stagedTask(t, "script", "shooting", "editing")

	task := f.stored(t, v.ID())
	assert.Equal(t, model.ModeStages, task.ProgressMode)
	assert.Equal(t, 100.0, task.TargetValue)
	assert.Equal(t, 0.0, task.DoneValue)
	assert.Equal(t, model.StatusNew, task.Status)
	require.Len(t, stages, 3)
	for i, s := range stages {
		assert.InDelta(t, 100.0/3, s.Weight, 1e-9)
		assert.Equal(t, i, s.SortOrder)
		assert.Equal(t, model.StageNew, s.Status)
	}
	assert.Equal(t, model.StageName("shooting"), stages[1].Name)
}

func TestCreateTask_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    NewTask
		field string
	}{
		{"missing title", NewTask{Title: "  "}, "title"},
		{"bad priority", NewTask{Title: "x", Priority: "urgent"}, "priority"},
		{"bad due date", NewTask{Title: "x", DueDate: "next week"}, "due_date"},
		{"negative target", NewTask{Title: "x", TargetValue: -1}, "target_value"},
		{"unknown employee", NewTask{Title: "x", EmployeeID: "us-nobody"}, "employee_id"},
		{"empty stage", NewTask{Title: "x", Stages: []StageSpec{{}}}, "stage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateTask(ctx, f.admin, tt.in)
			var verr *model.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	tasks, err := f.db.ListTasks(ctx, db.TaskFilter{IncludeCancelled: true})
	require.NoError(t, err)
	assert.Empty(t, tasks, "nothing is written on validation failure")
}

func TestCreateTask_EmployeeDenied(t *testing.T) {
	f := setup(t)

	_, err := f.engine.CreateTask(context.Background(), f.emp, NewTask{Title: "x"})
	assert.ErrorIs(t, err, model.ErrNotAuthorized)
}

// Direct update to target, rejection, resubmission, approval.
func TestApprovalScenario_Simple(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v := f.simpleTask(t, 100)

	v, err := f.engine.UpdateDirectProgress(ctx, f.emp, v.ID(), 100, "finished")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingApproval, v.Status)

	v, err = f.engine.RecordApproval(ctx, f.sup, v.ID(), model.DecisionRejected, "redo the charts")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, v.Status)
	assert.Equal(t, 100.0, v.Task().DoneValue)

	_, err = f.engine.RecordApproval(ctx, f.sup, v.ID(), model.DecisionApproved, "")
	assert.ErrorIs(t, err, model.ErrInvalidDecision, "a rejected task must be resubmitted first")

	_, err = f.engine.UpdateDirectProgress(ctx, f.emp, v.ID(), 100, "charts fixed")
	require.NoError(t, err)
	v, err = f.engine.RecordApproval(ctx, f.sup, v.ID(), model.DecisionApproved, "good")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, v.Status)

	task := f.stored(t, v.ID())
	assert.Equal(t, model.StatusCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)
	assert.True(t, task.CompletedAt.Equal(testNow))

	approvals, err := f.db.ListApprovals(ctx, v.ID())
	require.NoError(t, err)
	assert.Len(t, approvals, 2, "rejections are kept for audit")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("pending_approval", "completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("in_progress", "pending_approval"))+
		testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("new", "pending_approval")))
}

func TestUpdateDirectProgress_Statuses(t *testing.T) {
	tests := []struct {
		name   string
		target float64
		done   float64
		want   model.Status
	}{
		{"partial", 100, 40, model.StatusInProgress},
		{"zero", 100, 0, model.StatusNew},
		{"at target", 10, 10, model.StatusPendingApproval},
		{"over target is stored as given", 10, 15, model.StatusPendingApproval},
		{"no target", 0, 5, model.StatusInProgress},
		{"no target no progress", 0, 0, model.StatusNew},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			v := f.simpleTask(t, tt.target)

			v, err := f.engine.UpdateDirectProgress(context.Background(), f.emp, v.ID(), tt.done, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Status)
			assert.Equal(t, tt.done, f.stored(t, v.ID()).DoneValue)
		})
	}
}

func TestUpdateDirectProgress_Idempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v := f.simpleTask(t, 100)

	first, err := f.engine.UpdateDirectProgress(ctx, f.emp, v.ID(), 60, "")
	require.NoError(t, err)
	second, err := f.engine.UpdateDirectProgress(ctx, f.emp, v.ID(), 60, "again")
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Task().DoneValue, second.Task().DoneValue)

	updates, err := f.db.ListTaskUpdates(ctx, v.ID())
	require.NoError(t, err)
	assert.Len(t, updates, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("new", "in_progress")))
}

func TestUpdateDirectProgress_Rejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	simple := f.simpleTask(t, 100)
	staged, _ := f.stagedTask(t, "script")

	_, err := f.engine.UpdateDirectProgress(ctx, f.emp, simple.ID(), -1, "")
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.engine.UpdateDirectProgress(ctx, f.emp, simple.ID(), math.NaN(), "")
	assert.ErrorAs(t, err, &verr)

	_, err = f.engine.UpdateDirectProgress(ctx, f.emp, staged.ID(), 50, "")
	assert.ErrorIs(t, err, model.ErrInvalidState)

	_, err = f.engine.UpdateDirectProgress(ctx, f.emp2, simple.ID(), 50, "")
	assert.ErrorIs(t, err, model.ErrNotAuthorized, "employee outside the task")

	_, err = f.engine.UpdateDirectProgress(ctx, f.otherSup, simple.ID(), 50, "")
	assert.ErrorIs(t, err, model.ErrNotAuthorized, "supervisor who does not own the task")

	_, err = f.engine.UpdateDirectProgress(ctx, f.emp, "tk-000000", 50, "")
	assert.ErrorIs(t, err, model.ErrNotFound)

	updates, err := f.db.ListTaskUpdates(ctx, simple.ID())
	require.NoError(t, err)
	assert.Empty(t, updates, "no audit row for rejected updates")
}

func TestStageAggregationScenario(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v, stages := f.stagedTask(t, "script", "shooting", "editing")

	f.setStage(t, stages[0].ID, 100)
	v = f.setStage(t, stages[1].ID, 50)
	assert.Equal(t, 50.0, v.Task().DoneValue)
	assert.Equal(t, model.StatusInProgress, v.Status)

	// Creation weights are explicit, so the cancelled share is not redistributed
	v, err := f.engine.CancelStage(ctx, f.sup, stages[2].ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, v.Task().DoneValue)
	assert.Equal(t, model.StatusInProgress, v.Status)

	cancelled, err := f.db.GetStage(ctx, stages[2].ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageCancelled, cancelled.Status, "cancelled stage is kept")

	_, err = f.engine.UpdateStageProgress(ctx, f.sup, stages[2].ID, StageProgress{Progress: 10})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCancelStage_UnweightedShare(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v := f.simpleTask(t, 10)
	first, err := f.engine.AddStage(ctx, f.sup, v.ID(), StageSpec{Key: "script"})
	require.NoError(t, err)
	second, err := f.engine.AddStage(ctx, f.sup, v.ID(), StageSpec{Key: "editing"})
	require.NoError(t, err)

	v = f.setStage(t, first.ID, 100)
	assert.Equal(t, 50.0, v.Task().DoneValue)

	v, err = f.engine.CancelStage(ctx, f.sup, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, v.Task().DoneValue)
	assert.Equal(t, model.StatusPendingApproval, v.Status)
}

func TestStageProgress_ApprovalGate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v, stages := f.stagedTask(t, "script", "editing")

	f.setStage(t, stages[0].ID, 100)
	v, err := f.engine.UpdateStageProgress(ctx, f.sup, stages[1].ID, StageProgress{MarkDone: true})
	require.NoError(t, err)
	assert.Equal(t, 100.0, v.Task().DoneValue)
	assert.Equal(t, model.StatusPendingApproval, v.Status)
	assert.Equal(t, model.StatusPendingApproval, f.stored(t, v.ID()).Status, "never completed without approval")

	v, err = f.engine.RecordApproval(ctx, f.approver, v.ID(), model.DecisionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, v.Status)

	// Terminal status survives further stage updates
	v = f.setStage(t, stages[0].ID, 20)
	assert.Equal(t, model.StatusCompleted, v.Status)
	assert.Equal(t, 60.0, v.Task().DoneValue)
	assert.Equal(t, model.StatusCompleted, f.stored(t, v.ID()).Status)
}

func TestStageProgress_Idempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v, stages := f.stagedTask(t, "script", "editing")

	first := f.setStage(t, stages[0].ID, 40)
	second := f.setStage(t, stages[0].ID, 40)
	assert.Equal(t, first.Task().DoneValue, second.Task().DoneValue)
	assert.Equal(t, first.Status, second.Status)

	updates, err := f.db.ListStageUpdates(ctx, v.ID())
	require.NoError(t, err)
	assert.Len(t, updates, 2)
}

func TestStageProgress_Clamped(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, stages := f.stagedTask(t, "script", "editing")

	v := f.setStage(t, stages[0].ID, 150)
	assert.Equal(t, 50.0, v.Task().DoneValue)
	s, err := f.db.GetStage(ctx, stages[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, s.Progress)
	assert.Equal(t, model.StageCompleted, s.Status)

	v = f.setStage(t, stages[0].ID, -5)
	assert.Equal(t, 0.0, v.Task().DoneValue)
	assert.Equal(t, model.StatusNew, v.Status)
}

func TestStageProgress_Authorization(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, stages := f.stagedTask(t, "script")

	// stages are assigned to emp2; emp is only the task employee
	_, err := f.engine.UpdateStageProgress(ctx, f.emp, stages[0].ID, StageProgress{Progress: 10})
	assert.ErrorIs(t, err, model.ErrNotAuthorized)

	_, err = f.engine.UpdateStageProgress(ctx, f.otherSup, stages[0].ID, StageProgress{Progress: 10})
	assert.ErrorIs(t, err, model.ErrNotAuthorized)

	_, err = f.engine.UpdateStageProgress(ctx, f.emp2, stages[0].ID, StageProgress{Progress: 10})
	assert.NoError(t, err)

	_, err = f.engine.UpdateStageProgress(ctx, f.admin, stages[0].ID, StageProgress{Progress: 20})
	assert.NoError(t, err)
}

func TestAddStage_FlipsSimpleTask(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v := f.simpleTask(t, 10)
	_, err := f.engine.UpdateDirectProgress(ctx, f.emp, v.ID(), 4, "")
	require.NoError(t, err)

	s, err := f.engine.AddStage(ctx, f.sup, v.ID(), StageSpec{Name: "Review", AssignedTo: f.emp2.ID})
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Weight)
	assert.Equal(t, 0, s.SortOrder)

	task := f.stored(t, v.ID())
	assert.Equal(t, model.ModeStages, task.ProgressMode)
	assert.Equal(t, 100.0, task.TargetValue)
	assert.Equal(t, 0.0, task.DoneValue)
	assert.Equal(t, model.StatusNew, task.Status)
	assert.Equal(t, []assignment{{s.ID, "", f.emp2.ID}}, f.notes.stageAssigned)

	second, err := f.engine.AddStage(ctx, f.sup, v.ID(), StageSpec{Key: "publish"})
	require.NoError(t, err)
	assert.Equal(t, 1, second.SortOrder)
	assert.Equal(t, model.StageName("publish"), second.Name)
	assert.Len(t, f.notes.stageAssigned, 1, "unassigned stage notifies nobody")
}

func TestAddStage_ReopensPendingTask(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v, stages := f.stagedTask(t, "script")
	v = f.setStage(t, stages[0].ID, 100)
	require.Equal(t, model.StatusPendingApproval, v.Status)

	_, err := f.engine.AddStage(ctx, f.sup, v.ID(), StageSpec{Key: "review"})
	require.NoError(t, err)

	// The original stage keeps its explicit weight of 100
	task := f.stored(t, v.ID())
	assert.Equal(t, model.StatusInProgress, task.Status)
	assert.Equal(t, 100.0, task.DoneValue)
}

func TestAddStage_Rejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v := f.simpleTask(t, 1)

	_, err := f.engine.AddStage(ctx, f.sup, v.ID(), StageSpec{})
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.engine.AddStage(ctx, f.otherSup, v.ID(), StageSpec{Key: "design"})
	assert.ErrorIs(t, err, model.ErrNotAuthorized)

	_, err = f.engine.AddStage(ctx, f.emp, v.ID(), StageSpec{Key: "design"})
	assert.ErrorIs(t, err, model.ErrNotAuthorized)

	_, err = f.engine.UpdateDirectProgress(ctx, f.emp, v.ID(), 1, "")
	require.NoError(t, err)
	_, err = f.engine.RecordApproval(ctx, f.sup, v.ID(), model.DecisionApproved, "")
	require.NoError(t, err)
	_, err = f.engine.AddStage(ctx, f.sup, v.ID(), StageSpec{Key: "design"})
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestUpdateStageMeta(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, stages := f.stagedTask(t, "script", "editing")

	name := "Final cut"
	s, err := f.engine.UpdateStageMeta(ctx, f.sup, stages[1].ID, StageMeta{Name: &name, AssignedTo: &f.emp2.ID})
	require.NoError(t, err)
	assert.Equal(t, "Final cut", s.Name)
	assert.Empty(t, f.notes.stageAssigned, "same assignee does not re-notify")

	s, err = f.engine.UpdateStageMeta(ctx, f.sup, stages[1].ID, StageMeta{AssignedTo: &f.emp.ID})
	require.NoError(t, err)
	assert.Equal(t, []assignment{{s.ID, f.emp2.ID, f.emp.ID}}, f.notes.stageAssigned)

	// Reweighting re-aggregates: script at 100 with weight 80, editing at 0 keeps 50
	f.setStage(t, stages[0].ID, 100)
	weight := 80.0
	_, err = f.engine.UpdateStageMeta(ctx, f.sup, stages[0].ID, StageMeta{Weight: &weight})
	require.NoError(t, err)
	assert.Equal(t, 80.0, f.stored(t, stages[0].TaskID).DoneValue)

	empty := " "
	_, err = f.engine.UpdateStageMeta(ctx, f.sup, stages[0].ID, StageMeta{Name: &empty})
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCancelStage_LastStageKeepsTask(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v, stages := f.stagedTask(t, "script")
	f.setStage(t, stages[0].ID, 30)

	v, err := f.engine.CancelStage(ctx, f.sup, stages[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 30.0, v.Task().DoneValue, "no live stages leaves the task as it was")
	assert.Equal(t, model.StatusInProgress, v.Status)

	_, err = f.engine.CancelStage(ctx, f.sup, stages[0].ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRecordApproval_Guards(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v := f.simpleTask(t, 10)

	_, err := f.engine.RecordApproval(ctx, f.sup, v.ID(), "maybe", "")
	assert.ErrorIs(t, err, model.ErrInvalidDecision)
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "decision", ve.Field)

	_, err = f.engine.RecordApproval(ctx, f.sup, v.ID(), model.DecisionApproved, "")
	assert.ErrorIs(t, err, model.ErrInvalidDecision, "task is not awaiting approval")

	_, err = f.engine.UpdateDirectProgress(ctx, f.emp, v.ID(), 10, "")
	require.NoError(t, err)

	_, err = f.engine.RecordApproval(ctx, f.emp, v.ID(), model.DecisionApproved, "")
	assert.ErrorIs(t, err, model.ErrNotAuthorized, "employee without approval capability")

	_, err = f.engine.RecordApproval(ctx, f.otherSup, v.ID(), model.DecisionApproved, "")
	assert.ErrorIs(t, err, model.ErrNotAuthorized)

	approvals, err := f.db.ListApprovals(ctx, v.ID())
	require.NoError(t, err)
	assert.Empty(t, approvals, "nothing is recorded for refused decisions")

	v, err = f.engine.RecordApproval(ctx, f.approver, v.ID(), model.DecisionRejected, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, v.Status)
}

func TestRecordApproval_BelowTarget(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v := f.simpleTask(t, 10)
	_, err := f.engine.UpdateDirectProgress(ctx, f.emp, v.ID(), 10, "")
	require.NoError(t, err)

	target := 20.0
	_, err = f.engine.UpdateTask(ctx, f.sup, v.ID(), TaskEdit{TargetValue: &target})
	require.NoError(t, err)

	v, err = f.engine.RecordApproval(ctx, f.sup, v.ID(), model.DecisionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, v.Status)
	assert.Nil(t, f.stored(t, v.ID()).CompletedAt)
}

func TestOverdueOverlay(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	yesterday := testNow.AddDate(0, 0, -1).Format("2006-01-02")
	v, err := f.engine.CreateTask(ctx, f.sup, NewTask{Title: "Late", EmployeeID: f.emp.ID, TargetValue: 10, DueDate: yesterday})
	require.NoError(t, err)
	assert.Equal(t, model.StatusOverdue, v.Status, "a new task past due shows overdue")

	v, err = f.engine.UpdateDirectProgress(ctx, f.emp, v.ID(), 5, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOverdue, v.Status)
	assert.Equal(t, model.StatusInProgress, v.StoredStatus)
	assert.Equal(t, model.StatusInProgress, f.stored(t, v.ID()).Status, "overdue is never stored")
	assert.Equal(t, model.StatusOverdue, f.engine.DisplayStatus(*f.stored(t, v.ID())))

	// A late task that reaches its target still awaits approval and can be approved
	v, err = f.engine.UpdateDirectProgress(ctx, f.emp, v.ID(), 10, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingApproval, v.Status)
	v, err = f.engine.RecordApproval(ctx, f.sup, v.ID(), model.DecisionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, v.Status)
}

func TestReassign(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v := f.simpleTask(t, 1)

	_, err := f.engine.Reassign(ctx, f.sup, v.ID(), f.emp.ID)
	require.NoError(t, err)
	assert.Empty(t, f.notes.assignments, "same employee does not re-notify")

	v, err = f.engine.Reassign(ctx, f.sup, v.ID(), f.emp2.ID)
	require.NoError(t, err)
	assert.Equal(t, f.emp2.ID, v.Task().EmployeeID)
	assert.Equal(t, []assignment{{v.ID(), f.emp.ID, f.emp2.ID}}, f.notes.assignments)

	_, err = f.engine.Reassign(ctx, f.otherSup, v.ID(), f.emp.ID)
	assert.ErrorIs(t, err, model.ErrNotAuthorized)

	_, err = f.engine.Reassign(ctx, f.sup, v.ID(), "us-nobody")
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestUpdateTask_StagesTargetFixed(t *testing.T) {
	f := setup(t)
	v, _ := f.stagedTask(t, "script")

	target := 50.0
	_, err := f.engine.UpdateTask(context.Background(), f.sup, v.ID(), TaskEdit{TargetValue: &target})
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestCancelTask(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v, stages := f.stagedTask(t, "script")

	_, _, err := f.engine.Task(ctx, f.emp, v.ID())
	require.NoError(t, err)

	require.NoError(t, f.engine.CancelTask(ctx, f.sup, v.ID()))
	assert.Equal(t, model.StatusCancelled, f.stored(t, v.ID()).Status)

	_, _, err = f.engine.Task(ctx, f.admin, v.ID())
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.engine.UpdateStageProgress(ctx, f.admin, stages[0].ID, StageProgress{Progress: 10})
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.engine.RecordApproval(ctx, f.admin, v.ID(), model.DecisionApproved, "")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, f.engine.CancelTask(ctx, f.admin, v.ID()), model.ErrNotFound)
}

func TestHardDeleteTask_Cancelled(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v, stages := f.stagedTask(t, "script")
	require.NoError(t, f.engine.CancelTask(ctx, f.sup, v.ID()))

	assert.ErrorIs(t, f.engine.HardDeleteTask(ctx, f.otherSup, v.ID()), model.ErrNotAuthorized)
	require.NoError(t, f.engine.HardDeleteTask(ctx, f.sup, v.ID()))

	_, err := f.db.GetTask(ctx, v.ID())
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.db.GetStage(ctx, stages[0].ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, f.engine.HardDeleteTask(ctx, f.sup, v.ID()), model.ErrNotFound)
}

func TestHardDeleteTask(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v, stages := f.stagedTask(t, "script")
	f.setStage(t, stages[0].ID, 100)
	_, err := f.engine.RecordApproval(ctx, f.sup, v.ID(), model.DecisionRejected, "")
	require.NoError(t, err)
	require.NoError(t, f.db.AddAttachment(ctx, &model.Attachment{
		ID: model.NewRecordID(), TaskID: v.ID(), StoredName: "a1.pdf", OriginalName: "brief.pdf",
		MimeType: "application/pdf", UploadedBy: f.sup.ID, UploadedAt: testNow,
	}))

	assert.ErrorIs(t, f.engine.HardDeleteTask(ctx, f.otherSup, v.ID()), model.ErrNotAuthorized)

	require.NoError(t, f.engine.HardDeleteTask(ctx, f.sup, v.ID()))

	_, err = f.db.GetTask(ctx, v.ID())
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.db.GetStage(ctx, stages[0].ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, []string{"a1.pdf"}, f.removed)
}

func TestHardDeleteTask_RemoverFailureLogged(t *testing.T) {
	f := setup(t, WithFileRemover(func(string) error { return errors.New("permission denied") }))
	ctx := context.Background()
	v := f.simpleTask(t, 1)
	require.NoError(t, f.db.AddAttachment(ctx, &model.Attachment{
		ID: model.NewRecordID(), TaskID: v.ID(), StoredName: "a1.png", OriginalName: "a.png",
		MimeType: "image/png", UploadedBy: f.sup.ID, UploadedAt: testNow,
	}))

	require.NoError(t, f.engine.HardDeleteTask(ctx, f.admin, v.ID()))

	entry := f.hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "a1.png", entry.Data["file"])
}

func TestListTasksAndSummary(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	yesterday := testNow.AddDate(0, 0, -1).Format("2006-01-02")

	mine := f.simpleTask(t, 10)
	_, err := f.engine.CreateTask(ctx, f.sup, NewTask{Title: "Late", EmployeeID: f.emp2.ID, DueDate: yesterday})
	require.NoError(t, err)
	staged, _ := f.stagedTask(t, "script") // employee emp, stage assignee emp2
	_, err = f.engine.CreateTask(ctx, f.otherSup, NewTask{Title: "Elsewhere"})
	require.NoError(t, err)

	all, err := f.engine.ListTasks(ctx, f.admin, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	owned, err := f.engine.ListTasks(ctx, f.sup, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, owned, 3)

	forEmp2, err := f.engine.ListTasks(ctx, f.emp2, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, forEmp2, 2, "own task plus the task with an assigned stage")

	overdue, err := f.engine.ListTasks(ctx, f.admin, ListFilter{Status: model.StatusOverdue})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "Late", overdue[0].Task().Title)

	_, err = f.engine.UpdateDirectProgress(ctx, f.emp, mine.ID(), 10, "")
	require.NoError(t, err)

	sum, err := f.engine.Summary(ctx, f.sup, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.ByStatus[model.StatusOverdue])
	assert.Equal(t, 1, sum.ByStatus[model.StatusPendingApproval])
	assert.Equal(t, 1, sum.ByStatus[model.StatusNew])
	assert.Zero(t, sum.ByStatus[model.StatusCompleted])

	_, _, err = f.engine.Task(ctx, f.emp2, staged.ID())
	assert.NoError(t, err, "stage assignee may view the task")
	_, _, err = f.engine.Task(ctx, f.otherSup, staged.ID())
	assert.ErrorIs(t, err, model.ErrNotAuthorized)
}

func TestHistory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v, stages := f.stagedTask(t, "script")
	f.setStage(t, stages[0].ID, 50)
	f.setStage(t, stages[0].ID, 100)
	_, err := f.engine.RecordApproval(ctx, f.sup, v.ID(), model.DecisionApproved, "ok")
	require.NoError(t, err)

	h, err := f.engine.History(ctx, f.emp, v.ID())
	require.NoError(t, err)
	assert.Len(t, h.Stages, 1)
	assert.Len(t, h.StageUpdates, 2)
	assert.Empty(t, h.TaskUpdates)
	require.Len(t, h.Approvals, 1)
	assert.Equal(t, "ok", h.Approvals[0].Comment)
}

func TestRemind(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v := f.simpleTask(t, 1)

	require.NoError(t, f.engine.Remind(ctx, f.sup, v.ID(), " please update "))
	assert.Equal(t, []string{v.ID() + ":please update"}, f.notes.reminders)

	assert.ErrorIs(t, f.engine.Remind(ctx, f.emp, v.ID(), ""), model.ErrNotAuthorized)

	f.notes.remindErr = errors.New("smtp down")
	assert.Error(t, f.engine.Remind(ctx, f.admin, v.ID(), ""))
}

func TestParseProgress(t *testing.T) {
	for in, want := range map[string]float64{"40": 40, " 12.5 ": 12.5, "80%": 80, "-3": -3} {
		got, err := ParseProgress(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "abc", "NaN", "Inf"} {
		_, err := ParseProgress(in)
		var verr *model.ValidationError
		assert.ErrorAs(t, err, &verr, in)
	}
}

func TestNilNotifier(t *testing.T) {
	store, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	defer store.Close()

	admin := addUser(t, store, "admin", model.RoleAdmin, false)
	e := New(store, nil)
	v, err := e.CreateTask(context.Background(), admin, NewTask{Title: "x"})
	require.NoError(t, err)
	assert.NoError(t, e.Remind(context.Background(), admin, v.ID(), ""))
}
