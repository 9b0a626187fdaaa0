package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/tapcard/internal/apperror"
	"github.com/sakif/tapcard/internal/model"
)

// CreateUser inserts a user. Email is the natural key: a second account
// with the same (case-insensitive) email is a Conflict.
func (q *queries) CreateUser(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	res, err := q.db.ExecContext(ctx,
		`INSERT INTO users (email, name, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.Email,
		u.Name,
		u.Role,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", u.Email)
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", u.Email, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading user id: %w", err)
	}
	u.ID = id
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (q *queries) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return q.getUser(ctx, strconv.FormatInt(id, 10), `id = ?`, id)
}

func (q *queries) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return q.getUser(ctx, email, `email = ?`, email)
}

func (q *queries) getUser(ctx context.Context, what, where string, arg any) (*model.User, error) {
	var u model.User

	err := q.db.QueryRowContext(ctx,
		`SELECT id, email, name, role, created_at, updated_at FROM users WHERE `+where,
		arg,
	).Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", what)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", what, err)
	}

	return &u, nil
}
