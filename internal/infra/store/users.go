package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/sololeveling/lifesystem/internal/domain"
)

// ─── Users ──────────────────────────────────────────────────────────────────

// CreateUser inserts a user. A taken username yields domain.ErrUserExists.
func (r *repo) CreateUser(ctx context.Context, u domain.User) error {
	taken, err := r.count(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, u.Username)
	if err != nil {
		return err
	}
	if taken > 0 {
		return domain.ErrUserExists
	}
	_, err = r.exec(ctx,
		`INSERT INTO users (id, username, role, active, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, string(u.Role), b2i(u.Active), u.CreatedAt.Unix(),
	)
	if err != nil && isUniqueViolation(err) {
		return domain.ErrUserExists
	}
	return err
}

// GetUser retrieves a user by id.
func (r *repo) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := r.queryRow(ctx,
		`SELECT id, username, role, active, created_at FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// GetUserByUsername retrieves a user by username.
func (r *repo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := r.queryRow(ctx,
		`SELECT id, username, role, active, created_at FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// ListUsers returns users, optionally filtered by role and active flag.
func (r *repo) ListUsers(ctx context.Context, role domain.Role, activeOnly bool) ([]domain.User, error) {
	query := `SELECT id, username, role, active, created_at FROM users WHERE 1 = 1`
	var args []any
	if role != "" {
		query += ` AND role = ?`
		args = append(args, string(role))
	}
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY created_at, username`

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func scanUser(s scanner) (*domain.User, error) {
	var u domain.User
	var createdAt int64
	if err := s.Scan(&u.ID, &u.Username, &u.Role, &u.Active, &createdAt); err != nil {
		return nil, err
	}
	u.CreatedAt = time.Unix(createdAt, 0)
	return &u, nil
}

// isUniqueViolation matches both SQLite and Postgres duplicate-key errors.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}
