package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/moekrh-design/kpi-team-system/internal/model"
)

const userColumns = `id, username, display_name, role, COALESCE(email, '') AS email,
	can_approve_tasks, is_active, created_at`

// CreateUser inserts a new user.
func (q *Queries) CreateUser(ctx context.Context, u *model.User) error {
	if !u.Role.IsValid() {
		return fmt.Errorf("invalid role: %s", u.Role)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := q.exec(ctx, `
		INSERT INTO users (id, username, display_name, role, email, can_approve_tasks, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.DisplayName, u.Role, nullable(u.Email), u.CanApprove, u.Active, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (q *Queries) GetUser(ctx context.Context, id string) (*model.User, error) {
	u := &model.User{}
	err := q.get(ctx, u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUserByUsername retrieves a user by login name.
func (q *Queries) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u := &model.User{}
	err := q.get(ctx, u, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ListUsers returns all users ordered by display name.
func (q *Queries) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := q.sel(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY display_name, id`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}
