package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"finova/internal/core"
)

// CreateUser inserts a new user row, assigning its id.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	u.ID = uuid.NewString()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, fullname, email, is_admin) VALUES (?, ?, ?, ?)`,
		u.ID, u.FullName, u.Email, boolToInt(u.IsAdmin))
	if err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}

	slog.InfoContext(ctx, "User created", "user_id", u.ID, "email", u.Email)
	return u, nil
}

// ListUsers returns all users, oldest first.
func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, fullname, email, is_admin FROM users ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		var (
			u       core.User
			isAdmin int
		)
		if err := rows.Scan(&u.ID, &u.FullName, &u.Email, &isAdmin); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.IsAdmin = isAdmin != 0
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// GetUser returns a user by id.
func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	var (
		u       core.User
		isAdmin int
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, fullname, email, is_admin FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.FullName, &u.Email, &isAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	u.IsAdmin = isAdmin != 0
	return u, nil
}

// UpdateUser applies a partial update from the given field map and returns
// the updated row. Unknown fields are ignored, mirroring the permissive
// admin edit surface.
func (r *SQLiteRepository) UpdateUser(ctx context.Context, id string, fields map[string]any) (core.User, error) {
	current, err := r.GetUser(ctx, id)
	if err != nil {
		return core.User{}, err
	}

	if v, ok := fields["fullname"].(string); ok {
		current.FullName = v
	}
	if v, ok := fields["email"].(string); ok {
		current.Email = v
	}
	if v, ok := fields["is_admin"].(bool); ok {
		current.IsAdmin = v
	}
	if err := current.Validate(); err != nil {
		return core.User{}, err
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE users SET fullname = ?, email = ?, is_admin = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		current.FullName, current.Email, boolToInt(current.IsAdmin), id)
	if err != nil {
		return core.User{}, fmt.Errorf("update user %s: %w", id, err)
	}

	return current, nil
}

// DeleteUser removes a user by id.
func (r *SQLiteRepository) DeleteUser(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "User deleted", "user_id", id)
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
