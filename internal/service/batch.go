package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/tapcard/internal/apperror"
	"github.com/sakif/tapcard/internal/codegen"
	"github.com/sakif/tapcard/internal/events"
	"github.com/sakif/tapcard/internal/model"
	"github.com/sakif/tapcard/internal/repository"
)

// generateAttempts bounds how often GenerateBatch redraws a batch that hit
// stored codes.
const generateAttempts = 5

const maxPrefixLength = 16

// BatchService is the admin side of resolve codes: minting them in batches
// and cleaning them up.
type BatchService struct {
	store         repository.Store
	events        events.Publisher
	publicBaseURL string
	logger        *slog.Logger
}

func NewBatchService(store repository.Store, pub events.Publisher, publicBaseURL string, logger *slog.Logger) *BatchService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &BatchService{
		store:         store,
		events:        pub,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

// CreateBatch stores a batch and all of its codes, or nothing.
//
// Every value must be new: repeats inside the request and values already in
// the store (archived ones too) reject the whole batch with a DuplicateCodes
// error naming them.
func (b *BatchService) CreateBatch(ctx context.Context, codes []string, prefix, name string, creator int64) (*model.Batch, error) {
	values, err := normalizeCodeValues(codes)
	if err != nil {
		return nil, err
	}
	prefix = strings.TrimSpace(prefix)
	if len(prefix) > maxPrefixLength {
		return nil, apperror.ValidationFailed("prefix",
			fmt.Sprintf("prefix must be %d characters or less", maxPrefixLength))
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(fmt.Sprintf("%s batch of %d", prefix, len(values)))
	}

	batch := &model.Batch{
		Name:      name,
		Prefix:    prefix,
		Count:     len(values),
		CreatedBy: creator,
	}
	err = b.store.InTx(ctx, func(q repository.Queries) error {
		taken, err := q.ExistingCodeValues(ctx, values)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return apperror.DuplicateCodes(taken)
		}

		if err := q.CreateBatch(ctx, batch); err != nil {
			return err
		}

		rows := make([]model.ResolveCode, len(values))
		for i, v := range values {
			rows[i] = model.ResolveCode{
				Code:      v,
				Type:      model.DefaultCodeType,
				Status:    model.StatusUnassigned,
				CreatedBy: creator,
				BatchID:   &batch.ID,
			}
		}
		return q.InsertCodes(ctx, rows)
	})
	if err != nil {
		if errors.Is(err, apperror.ErrDuplicateCode) {
			return nil, err
		}
		b.logger.Error("failed to create batch",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service: creating batch: %w", err)
	}

	b.logger.Info("batch created",
		slog.Int64("batch_id", batch.ID),
		slog.Int("count", batch.Count),
		slog.Int64("created_by", creator),
	)
	e := events.New(events.BatchCreated)
	e.BatchID, e.UserID, e.Count = batch.ID, creator, batch.Count
	publish(ctx, b.events, b.logger, e)
	return batch, nil
}

// GenerateBatch draws count random codes (prefix + length characters) and
// stores them as one batch. A draw that collides with stored codes is
// thrown away and redrawn.
func (b *BatchService) GenerateBatch(ctx context.Context, count int, prefix string, length int, name string, creator int64) (*model.Batch, error) {
	if count <= 0 || count > MaxBatchSize {
		return nil, apperror.ValidationFailed("count",
			fmt.Sprintf("count must be between 1 and %d", MaxBatchSize))
	}
	if length == 0 {
		length = codegen.DefaultLength
	}
	if length < codegen.MinLength || length > codegen.MaxLength {
		return nil, apperror.ValidationFailed("length",
			fmt.Sprintf("length must be between %d and %d", codegen.MinLength, codegen.MaxLength))
	}
	prefix = strings.ToUpper(strings.TrimSpace(prefix))

	var lastErr error
	for attempt := 1; attempt <= generateAttempts; attempt++ {
		values, err := codegen.GenerateN(prefix, length, count)
		if err != nil {
			return nil, apperror.ValidationFailed("length", err.Error())
		}
		batch, err := b.CreateBatch(ctx, values, prefix, name, creator)
		if err == nil {
			return batch, nil
		}
		if !errors.Is(err, apperror.ErrDuplicateCode) {
			return nil, err
		}
		lastErr = err
		b.logger.Debug("generated codes collided, redrawing", slog.Int("attempt", attempt))
	}
	return nil, fmt.Errorf("service: generating batch after %d attempts: %w", generateAttempts, lastErr)
}

// DeleteBatch removes the batch record. Its codes stay and lose the batch id.
func (b *BatchService) DeleteBatch(ctx context.Context, batchID int64) error {
	if err := b.store.DeleteBatch(ctx, batchID); err != nil {
		return err
	}
	b.logger.Info("batch deleted", slog.Int64("batch_id", batchID))
	return nil
}

func (b *BatchService) ListBatches(ctx context.Context) ([]model.Batch, error) {
	batches, err := b.store.ListBatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: listing batches: %w", err)
	}
	return batches, nil
}

// BatchStats summarises the codes of one batch.
type BatchStats struct {
	Batch     model.Batch `json:"batch"`
	Total     int         `json:"total"`
	Claimable int         `json:"claimable"`
	Assigned  int         `json:"assigned"`
	Copied    int         `json:"copied"`
}

func (b *BatchService) BatchStats(ctx context.Context, batchID int64) (*BatchStats, error) {
	batch, err := b.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	codes, err := b.store.ListCodes(ctx, repository.CodeFilter{BatchID: &batchID})
	if err != nil {
		return nil, fmt.Errorf("service: listing codes of batch %d: %w", batchID, err)
	}

	stats := &BatchStats{Batch: *batch, Total: len(codes)}
	for _, c := range codes {
		if c.Status.Claimable() {
			stats.Claimable++
		} else {
			stats.Assigned++
		}
		if c.CopiedAt != nil {
			stats.Copied++
		}
	}
	return stats, nil
}

// ListCodes returns live codes matching filter, newest first.
func (b *BatchService) ListCodes(ctx context.Context, filter repository.CodeFilter) ([]model.ResolveCode, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultCodeListLimit
	}
	if filter.Limit > MaxCodeListLimit {
		filter.Limit = MaxCodeListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	codes, err := b.store.ListCodes(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service: listing codes: %w", err)
	}
	return codes, nil
}

// BulkDeleteCodes hard-deletes codes without going through Release.
//
// Admins use it on stock that was never handed out. If one of the codes was
// claimed after all, its profile is left pointing at nothing; the next sweep
// purges it.
func (b *BatchService) BulkDeleteCodes(ctx context.Context, ids []int64) (int, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, apperror.ValidationFailed("ids", "no codes selected")
	}
	n, err := b.store.DeleteCodes(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("service: deleting codes: %w", err)
	}
	b.logger.Info("codes deleted", slog.Int("requested", len(ids)), slog.Int("deleted", n))

	e := events.New(events.CodesDeleted)
	e.Count = n
	publish(ctx, b.events, b.logger, e)
	return n, nil
}

// ArchiveCodes soft-deletes codes. Archived codes can't be claimed or
// resolved, and their values stay reserved.
func (b *BatchService) ArchiveCodes(ctx context.Context, ids []int64) (int, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, apperror.ValidationFailed("ids", "no codes selected")
	}
	n, err := b.store.SoftDeleteCodes(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("service: archiving codes: %w", err)
	}
	b.logger.Info("codes archived", slog.Int("requested", len(ids)), slog.Int("archived", n))
	return n, nil
}

// MarkCopied records that an admin copied these codes for printing.
func (b *BatchService) MarkCopied(ctx context.Context, ids []int64) (int, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, apperror.ValidationFailed("ids", "no codes selected")
	}
	n, err := b.store.MarkCodesCopied(ctx, ids, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("service: marking codes copied: %w", err)
	}
	return n, nil
}

// CodeURL is the address printed on (or written to) a card.
func (b *BatchService) CodeURL(code string) string {
	return b.publicBaseURL + "/c/" + url.PathEscape(code)
}

// CodeQR renders the code's URL as a PNG QR code.
func (b *BatchService) CodeQR(ctx context.Context, value string, size int) ([]byte, error) {
	if size == 0 {
		size = codegen.DefaultQRSize
	}
	if !codegen.ValidQRSizes[size] {
		return nil, apperror.ValidationFailed("size", "size must be 256, 512 or 1024")
	}
	code, err := b.store.GetCodeByValue(ctx, strings.TrimSpace(value))
	if err != nil {
		return nil, err
	}
	png, err := codegen.QRPNG(b.CodeURL(code.Code), size)
	if err != nil {
		return nil, fmt.Errorf("service: rendering QR for %s: %w", code.Code, err)
	}
	return png, nil
}
