package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/tapcard/internal/apperror"
	"github.com/sakif/tapcard/internal/repository"
)

// SweepResult counts what one reconciliation pass fixed.
type SweepResult struct {
	ProfilesRepaired int `json:"profilesRepaired"`
	CodesRepaired    int `json:"codesRepaired"`
	Failures         int `json:"failures"`
}

// Sweeper heals codes and profiles that fell out of step because something
// bypassed Lifecycle (a bulk delete, a crashed request, a hand-edited row).
//
// It is not scheduled. Listing reads call it first, so drift is fixed the
// next time anyone looks.
type Sweeper struct {
	store     repository.Store
	lifecycle *Lifecycle
	logger    *slog.Logger
}

func NewSweeper(store repository.Store, lifecycle *Lifecycle, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: store, lifecycle: lifecycle, logger: logger}
}

// Sweep runs one pass over scope.
//
// ORDER MATTERS: orphaned profiles go first. Purging a profile can leave its
// code holder-less, and the code scan that follows picks that up in the
// same pass.
//
// Each row is repaired in its own transaction. A row that fails is logged
// and counted; it never stops the pass. Only a failing scan query is
// returned.
func (s *Sweeper) Sweep(ctx context.Context, scope repository.Scope) (SweepResult, error) {
	var res SweepResult

	profileIDs, err := s.store.FindOrphanedProfiles(ctx, scope)
	if err != nil {
		return res, fmt.Errorf("service: scanning orphaned profiles: %w", err)
	}
	for _, id := range profileIDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		purged, err := s.lifecycle.purgeOrphanedProfile(ctx, id)
		if err != nil {
			s.repairFailed("profile", id, err)
			res.Failures++
			continue
		}
		if purged {
			res.ProfilesRepaired++
		}
	}

	codeIDs, err := s.store.FindOrphanedCodes(ctx, scope)
	if err != nil {
		return res, fmt.Errorf("service: scanning orphaned codes: %w", err)
	}
	for _, id := range codeIDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		repaired, err := s.lifecycle.repairCode(ctx, id)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				// deleted since the scan
				continue
			}
			s.repairFailed("code", id, err)
			res.Failures++
			continue
		}
		if repaired {
			res.CodesRepaired++
		}
	}

	if res != (SweepResult{}) {
		attrs := []any{
			slog.Int("profiles_repaired", res.ProfilesRepaired),
			slog.Int("codes_repaired", res.CodesRepaired),
			slog.Int("failures", res.Failures),
		}
		if scope.UserID != nil {
			attrs = append(attrs, slog.Int64("user_id", *scope.UserID))
		}
		s.logger.Info("sweep finished", attrs...)
	}
	return res, nil
}

func (s *Sweeper) repairFailed(kind string, id int64, err error) {
	s.logger.Warn("orphan repair failed",
		slog.String("kind", kind),
		slog.Int64("id", id),
		slog.String("error", err.Error()),
	)
}
