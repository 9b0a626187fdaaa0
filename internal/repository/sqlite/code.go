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
	"github.com/sakif/tapcard/internal/repository"
)

// compile-time check that queries implements the full surface
var _ repository.Queries = (*queries)(nil)

const codeColumns = `id, code, type, status, user_id, assigned_at, created_by, batch_id,
	copied_at, created_at, updated_at, deleted_at`

// existsChunk bounds the IN (...) list of a single lookup.
const existsChunk = 500

func scanCode(s rowScanner) (*model.ResolveCode, error) {
	var (
		c          model.ResolveCode
		status     string
		userID     sql.NullInt64
		batchID    sql.NullInt64
		assignedAt sql.NullTime
		copiedAt   sql.NullTime
		deletedAt  sql.NullTime
	)
	err := s.Scan(
		&c.ID,
		&c.Code,
		&c.Type,
		&status,
		&userID,
		&assignedAt,
		&c.CreatedBy,
		&batchID,
		&copiedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = model.Status(status)
	if c.Status == model.StatusAssigned && userID.Valid {
		c.Assignment = &model.Assignment{UserID: userID.Int64}
		if assignedAt.Valid {
			c.Assignment.Since = assignedAt.Time
		}
	}
	if batchID.Valid {
		id := batchID.Int64
		c.BatchID = &id
	}
	if copiedAt.Valid {
		t := copiedAt.Time
		c.CopiedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		c.DeletedAt = &t
	}
	return &c, nil
}

// GetCodeByValue returns a live code by its printed value.
// Soft-deleted rows are treated as absent.
func (q *queries) GetCodeByValue(ctx context.Context, value string) (*model.ResolveCode, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+codeColumns+` FROM resolve_codes WHERE code = ? AND deleted_at IS NULL`,
		value,
	)
	c, err := scanCode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("resolve code", value)
		}
		return nil, fmt.Errorf("sqlite: getting code by value: %w", err)
	}
	return c, nil
}

// GetCodeByID returns the row regardless of soft deletion. Release and
// repair use it to put a code back even after an admin deleted it.
func (q *queries) GetCodeByID(ctx context.Context, id int64) (*model.ResolveCode, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+codeColumns+` FROM resolve_codes WHERE id = ?`,
		id,
	)
	c, err := scanCode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("resolve code", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting code %d: %w", id, err)
	}
	return c, nil
}

// AssignCode is the claimable → assigned transition. A code already
// assigned to userID is re-stamped, which covers a user coming back to a
// claim whose profile never got created.
//
// The WHERE clause re-checks claimability, so even without the immediate
// transaction lock only one of two racing claims can move the row.
func (q *queries) AssignCode(ctx context.Context, codeID, userID int64, at time.Time) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE resolve_codes
		 SET status = ?, user_id = ?, assigned_at = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL
		   AND (status IN (?, ?) OR (status = ? AND user_id = ?))`,
		model.StatusAssigned, userID, at, at,
		codeID, model.StatusUnassigned, model.StatusAvailable,
		model.StatusAssigned, userID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: assigning code %d: %w", codeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: assigning code %d: %w", codeID, err)
	}
	return n == 1, nil
}

// ResetCode makes a code available again and clears its holder columns.
func (q *queries) ResetCode(ctx context.Context, codeID int64) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE resolve_codes
		 SET status = ?, user_id = NULL, assigned_at = NULL, updated_at = ?
		 WHERE id = ?`,
		model.StatusAvailable, time.Now().UTC(), codeID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: resetting code %d: %w", codeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: resetting code %d: %w", codeID, err)
	}
	if n == 0 {
		return apperror.NotFound("resolve code", strconv.FormatInt(codeID, 10))
	}
	return nil
}

// InsertCodes stores new codes and fills in their IDs and timestamps.
// A duplicate value surfaces as a DuplicateCodes error.
func (q *queries) InsertCodes(ctx context.Context, codes []model.ResolveCode) error {
	now := time.Now().UTC()
	for i := range codes {
		c := &codes[i]
		if c.Type == "" {
			c.Type = model.DefaultCodeType
		}
		if c.Status == "" {
			c.Status = model.StatusUnassigned
		}
		c.CreatedAt = now
		c.UpdatedAt = now

		res, err := q.db.ExecContext(ctx,
			`INSERT INTO resolve_codes (code, type, status, created_by, batch_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.Code,
			c.Type,
			c.Status,
			c.CreatedBy,
			nullableInt64(c.BatchID),
			c.CreatedAt,
			c.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.DuplicateCodes([]string{c.Code})
			}
			return fmt.Errorf("sqlite: inserting code %q: %w", c.Code, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("sqlite: reading id of code %q: %w", c.Code, err)
		}
		c.ID = id
	}
	return nil
}

// ExistingCodeValues reports which of values are already taken. The unique
// index covers soft-deleted rows too, so they count as taken.
func (q *queries) ExistingCodeValues(ctx context.Context, values []string) ([]string, error) {
	var found []string
	for start := 0; start < len(values); start += existsChunk {
		end := min(start+existsChunk, len(values))
		chunk := values[start:end]

		args := make([]any, len(chunk))
		for i, v := range chunk {
			args[i] = v
		}

		rows, err := q.db.QueryContext(ctx,
			`SELECT code FROM resolve_codes WHERE code IN (`+placeholders(len(chunk))+`) ORDER BY code`,
			args...,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: checking existing codes: %w", err)
		}
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				rows.Close()
				return nil, fmt.Errorf("sqlite: scanning existing code: %w", err)
			}
			found = append(found, v)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("sqlite: iterating existing codes: %w", err)
		}
	}
	return found, nil
}

// ListCodes returns live codes, newest first.
func (q *queries) ListCodes(ctx context.Context, filter repository.CodeFilter) ([]model.ResolveCode, error) {
	where := []string{"deleted_at IS NULL"}
	var args []any

	switch {
	case filter.Status == "":
	case filter.Status.Claimable():
		// "claimable" filters mean both stored spellings
		where = append(where, "status IN (?, ?)")
		args = append(args, model.StatusUnassigned, model.StatusAvailable)
	default:
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.BatchID != nil {
		where = append(where, "batch_id = ?")
		args = append(args, *filter.BatchID)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	args = append(args, limit, filter.Offset)

	rows, err := q.db.QueryContext(ctx,
		`SELECT `+codeColumns+` FROM resolve_codes
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY id DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing codes: %w", err)
	}
	defer rows.Close()

	codes := []model.ResolveCode{}
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning code: %w", err)
		}
		codes = append(codes, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating codes: %w", err)
	}
	return codes, nil
}

// DeleteCodes removes code rows outright and returns how many went.
// Profiles bound to these codes are left behind as orphans; the
// reconciliation sweep removes them.
func (q *queries) DeleteCodes(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM resolve_codes WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting codes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting codes: %w", err)
	}
	return int(n), nil
}

// SoftDeleteCodes stamps deleted_at on the given live codes and returns how
// many rows changed. Like DeleteCodes it leaves bound profiles alone.
func (q *queries) SoftDeleteCodes(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	args := append([]any{now, now}, int64Args(ids)...)

	res, err := q.db.ExecContext(ctx,
		`UPDATE resolve_codes SET deleted_at = ?, updated_at = ?
		 WHERE deleted_at IS NULL AND id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: soft-deleting codes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: soft-deleting codes: %w", err)
	}
	return int(n), nil
}

func (q *queries) MarkCodesCopied(ctx context.Context, ids []int64, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := append([]any{at, at}, int64Args(ids)...)

	res, err := q.db.ExecContext(ctx,
		`UPDATE resolve_codes SET copied_at = ?, updated_at = ?
		 WHERE deleted_at IS NULL AND id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: marking codes copied: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: marking codes copied: %w", err)
	}
	return int(n), nil
}

// FindOrphanedCodes finds codes that look held but have no profile:
// status assigned, or stray user_id/assigned_at left on a claimable row.
func (q *queries) FindOrphanedCodes(ctx context.Context, scope repository.Scope) ([]int64, error) {
	query := `SELECT c.id FROM resolve_codes c
		LEFT JOIN profiles p ON p.resolve_code_id = c.id
		WHERE p.id IS NULL
		  AND (c.status = ? OR c.user_id IS NOT NULL OR c.assigned_at IS NOT NULL)`
	args := []any{model.StatusAssigned}
	if scope.UserID != nil {
		query += ` AND c.user_id = ?`
		args = append(args, *scope.UserID)
	}
	query += ` ORDER BY c.id`

	return q.selectIDs(ctx, "orphaned codes", query, args...)
}

// selectIDs runs a query returning a single integer column.
func (q *queries) selectIDs(ctx context.Context, what, query string, args ...any) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding %s: %w", what, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s: %w", what, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating %s: %w", what, err)
	}
	return ids, nil
}
