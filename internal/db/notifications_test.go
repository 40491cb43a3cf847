package db

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/moekrh-design/kpi-team-system/internal/model"
)

func newNotification(userID, title string, at time.Time) *model.Notification {
	return &model.Notification{
		ID:        model.NewRecordID(),
		UserID:    userID,
		Type:      model.NotifyTaskAssigned,
		Title:     title,
		URL:       "/tasks/tk-1",
		CreatedAt: at,
	}
}

func TestNotifications(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Now()

	for i, title := range []string{"first", "second", "third"} {
		if err := db.CreateNotification(ctx, newNotification("us-1", title, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("failed to create notification: %v", err)
		}
	}
	if err := db.CreateNotification(ctx, newNotification("us-2", "other", base)); err != nil {
		t.Fatalf("failed to create notification: %v", err)
	}

	notes, err := db.ListNotifications(ctx, "us-1", false, 0)
	if err != nil {
		t.Fatalf("failed to list notifications: %v", err)
	}
	if len(notes) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(notes))
	}
	if notes[0].Title != "third" {
		t.Errorf("expected newest first, got %q", notes[0].Title)
	}

	limited, _ := db.ListNotifications(ctx, "us-1", false, 2)
	if len(limited) != 2 {
		t.Errorf("expected limit of 2, got %d", len(limited))
	}

	if err := db.MarkRead(ctx, "us-1", notes[0].ID); err != nil {
		t.Fatalf("failed to mark read: %v", err)
	}
	if n, _ := db.UnreadCount(ctx, "us-1"); n != 2 {
		t.Errorf("expected 2 unread, got %d", n)
	}

	// Another user's notification cannot be marked
	if err := db.MarkRead(ctx, "us-2", notes[1].ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	changed, err := db.MarkAllRead(ctx, "us-1")
	if err != nil {
		t.Fatalf("failed to mark all read: %v", err)
	}
	if changed != 2 {
		t.Errorf("expected 2 changed, got %d", changed)
	}
	unread, _ := db.ListNotifications(ctx, "us-1", true, 0)
	if len(unread) != 0 {
		t.Errorf("expected no unread, got %d", len(unread))
	}
	if n, _ := db.UnreadCount(ctx, "us-2"); n != 1 {
		t.Errorf("expected other user untouched, got %d unread", n)
	}
}

func emailKey(taskID, ref string) *model.EmailLog {
	return &model.EmailLog{
		ID:      model.NewRecordID(),
		Type:    model.EmailDueSoon,
		TaskID:  taskID,
		ToEmail: "sara@example.com",
		Ref:     ref,
		SentAt:  time.Now(),
	}
}

func TestClaimEmail_Unique(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	claimed, err := db.ClaimEmail(ctx, emailKey("tk-1", "2026-05-01"))
	if err != nil || !claimed {
		t.Fatalf("expected first claim to succeed, got %v, %v", claimed, err)
	}

	claimed, err = db.ClaimEmail(ctx, emailKey("tk-1", "2026-05-01"))
	if err != nil {
		t.Fatalf("duplicate claim should not error: %v", err)
	}
	if claimed {
		t.Error("expected duplicate claim to be refused")
	}

	// A different day is a different key
	claimed, _ = db.ClaimEmail(ctx, emailKey("tk-1", "2026-05-02"))
	if !claimed {
		t.Error("expected claim for next day to succeed")
	}
}

func TestClaimEmail_Concurrent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := db.ClaimEmail(ctx, emailKey("tk-1", "2026-05-01"))
			if err != nil {
				t.Errorf("claim failed: %v", err)
				return
			}
			if claimed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winning claim, got %d", wins)
	}
}

func TestReleaseEmail(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	key := emailKey("tk-1", "2026-05-01")
	if claimed, _ := db.ClaimEmail(ctx, key); !claimed {
		t.Fatal("expected claim")
	}
	if err := db.ReleaseEmail(ctx, key); err != nil {
		t.Fatalf("failed to release: %v", err)
	}
	if claimed, _ := db.ClaimEmail(ctx, emailKey("tk-1", "2026-05-01")); !claimed {
		t.Error("expected claim after release to succeed")
	}
	logs, _ := db.ListEmailLogs(ctx, "tk-1")
	if len(logs) != 1 {
		t.Errorf("expected 1 email log, got %d", len(logs))
	}
}

func TestDueSoon(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	sara := createTestUser(t, db, "sara", model.RoleEmployee)
	noMail := &model.User{ID: model.GenerateID(model.KindUser), Username: "nomail", DisplayName: "No Mail", Role: model.RoleEmployee, Active: true}
	if err := db.CreateUser(ctx, noMail); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	due := func(employee, date string, status model.Status) *model.Task {
		task := createTestTask(t, db, employee, 0)
		task.DueDate = date
		task.Status = status
		if err := db.UpdateTask(ctx, task); err != nil {
			t.Fatalf("failed to update task: %v", err)
		}
		return task
	}

	inWindow := due(sara.ID, "2026-05-02", model.StatusInProgress)
	due(sara.ID, "2026-05-01T17:00", model.StatusNew)
	due(sara.ID, "2026-05-04", model.StatusNew)       // after window
	due(sara.ID, "2026-04-30", model.StatusNew)       // before window
	due(sara.ID, "2026-05-02", model.StatusCompleted) // closed
	due(sara.ID, "2026-05-02", model.StatusCancelled) // closed
	due(noMail.ID, "2026-05-02", model.StatusNew)     // no address
	createTestTask(t, db, sara.ID, 0)                 // no due date

	reminders, err := db.DueSoon(ctx, "2026-05-01", "2026-05-03")
	if err != nil {
		t.Fatalf("failed to list due tasks: %v", err)
	}
	if len(reminders) != 2 {
		t.Fatalf("expected 2 reminders, got %d: %+v", len(reminders), reminders)
	}
	if reminders[1].TaskID != inWindow.ID {
		t.Errorf("expected %s second, got %s", inWindow.ID, reminders[1].TaskID)
	}
	if reminders[0].Email != sara.Email || reminders[0].EmployeeName != sara.DisplayName {
		t.Errorf("unexpected recipient: %+v", reminders[0])
	}
}

func TestUsers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	sup := createTestUser(t, db, "nora", model.RoleSupervisor)
	createTestUser(t, db, "adam", model.RoleAdmin)

	got, err := db.GetUserByUsername(ctx, "nora")
	if err != nil {
		t.Fatalf("failed to get user: %v", err)
	}
	if got.ID != sup.ID || got.Role != model.RoleSupervisor || !got.Active {
		t.Errorf("unexpected user: %+v", got)
	}

	users, _ := db.ListUsers(ctx)
	if len(users) != 2 || users[0].Username != "adam" {
		t.Errorf("unexpected users: %+v", users)
	}

	if _, err := db.GetUser(ctx, "us-000000"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	bad := &model.User{ID: "us-x", Username: "x", DisplayName: "x", Role: "guest"}
	if err := db.CreateUser(ctx, bad); err == nil {
		t.Error("expected error for invalid role")
	}
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("KPI_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("KPI_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	db, err := Open(DriverPostgres, dsn)
	if err != nil {
		t.Fatalf("failed to open postgres: %v", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.Init(ctx); err != nil {
		t.Fatalf("failed to init postgres: %v", err)
	}

	task := createTestTask(t, db, "", 2)
	defer func() { _, _ = db.DeleteTask(ctx, task.ID) }()

	got, err := db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("failed to get task: %v", err)
	}
	if got.ProgressMode != model.ModeStages {
		t.Errorf("expected stages mode, got %s", got.ProgressMode)
	}

	key := emailKey(task.ID, "2026-05-01")
	if claimed, err := db.ClaimEmail(ctx, key); err != nil || !claimed {
		t.Fatalf("expected claim, got %v, %v", claimed, err)
	}
	if claimed, _ := db.ClaimEmail(ctx, emailKey(task.ID, "2026-05-01")); claimed {
		t.Error("expected duplicate claim to be refused")
	}

	if _, err := db.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("failed to delete task: %v", err)
	}
	if _, err := db.GetTask(ctx, task.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
