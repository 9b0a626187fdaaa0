package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/tapcard/internal/apperror"
	"github.com/sakif/tapcard/internal/model"
)

const batchColumns = `id, name, prefix, count, created_by, created_at`

func scanBatch(s rowScanner) (*model.Batch, error) {
	var (
		b      model.Batch
		prefix sql.NullString
	)
	if err := s.Scan(&b.ID, &b.Name, &prefix, &b.Count, &b.CreatedBy, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.Prefix = prefix.String
	return &b, nil
}

func (q *queries) CreateBatch(ctx context.Context, b *model.Batch) error {
	b.CreatedAt = time.Now().UTC()

	res, err := q.db.ExecContext(ctx,
		`INSERT INTO resolve_code_batches (name, prefix, count, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		b.Name,
		nullableString(b.Prefix),
		b.Count,
		b.CreatedBy,
		b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting batch %q: %w", b.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading batch id: %w", err)
	}
	b.ID = id
	return nil
}

func (q *queries) GetBatch(ctx context.Context, id int64) (*model.Batch, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM resolve_code_batches WHERE id = ?`, id,
	)
	b, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("batch", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting batch %d: %w", id, err)
	}
	return b, nil
}

func (q *queries) ListBatches(ctx context.Context) ([]model.Batch, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+batchColumns+` FROM resolve_code_batches ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing batches: %w", err)
	}
	defer rows.Close()

	batches := []model.Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning batch: %w", err)
		}
		batches = append(batches, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating batches: %w", err)
	}
	return batches, nil
}

// DeleteBatch removes the batch row. The foreign key's ON DELETE SET NULL
// detaches its codes; nothing else about them changes.
func (q *queries) DeleteBatch(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM resolve_code_batches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting batch %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: deleting batch %d: %w", id, err)
	}
	if n == 0 {
		return apperror.NotFound("batch", strconv.FormatInt(id, 10))
	}
	return nil
}
