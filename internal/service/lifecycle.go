package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/tapcard/internal/apperror"
	"github.com/sakif/tapcard/internal/events"
	"github.com/sakif/tapcard/internal/model"
	"github.com/sakif/tapcard/internal/repository"
)

// Lifecycle owns the resolve code state machine:
//
//	claimable (unassigned | available) --Claim--> assigned
//	assigned --Release / Repair--> available
//
// Each operation is one transaction. The store opens write transactions
// with an immediate lock, so two claims on the same code run one after the
// other and the second one sees the first one's result.
type Lifecycle struct {
	store  repository.Store
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewLifecycle(store repository.Store, pub events.Publisher, logger *slog.Logger) *Lifecycle {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Lifecycle{
		store:  store,
		events: pub,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Claim binds the code to userID and creates its profile from attrs.
//
// Claiming is idempotent: if the user already holds the code and its
// profile, that profile comes back unchanged and attrs are not looked at. Every failure a visitor could
// learn something from (unknown code, someone else's code, lost race) is
// the same opaque InvalidCode error.
func (l *Lifecycle) Claim(ctx context.Context, codeValue string, userID int64, attrs model.ProfileAttrs) (*model.Profile, error) {
	codeValue = strings.TrimSpace(codeValue)
	if codeValue == "" {
		return nil, apperror.InvalidCode()
	}

	isPublic := true
	if attrs.IsPublic != nil {
		isPublic = *attrs.IsPublic
	}

	var (
		profile *model.Profile
		created bool
		purged  *model.Profile
	)
	err := l.store.InTx(ctx, func(q repository.Queries) error {
		code, err := q.GetCodeByValue(ctx, codeValue)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return apperror.InvalidCode()
			}
			return err
		}
		if code.Status == model.StatusAssigned && !code.AssignedTo(userID) {
			return apperror.InvalidCode()
		}

		now := l.now()

		existing, err := q.GetProfileByCodeID(ctx, code.ID)
		switch {
		case err == nil && existing.UserID == userID:
			if !code.AssignedTo(userID) {
				// The code drifted back to claimable under the user's own
				// profile; take it again so the pair is consistent.
				ok, err := q.AssignCode(ctx, code.ID, userID, now)
				if err != nil {
					return err
				}
				if !ok {
					return apperror.InvalidCode()
				}
			}
			profile = existing
			return nil
		case err == nil:
			// Someone else's profile on a code that is claimable (or ours):
			// an orphan. It goes before the new profile can take the slot.
			if err := purgeProfile(ctx, q, existing.ID); err != nil {
				return err
			}
			purged = existing
		case !errors.Is(err, apperror.ErrNotFound):
			return err
		}

		// Only a new profile needs a valid form; re-entry above ignores attrs.
		content := attrs.ProfileContent
		if err := normalizeContent(&content, true); err != nil {
			return err
		}
		theme, err := normalizeTheme(attrs.Theme)
		if err != nil {
			return err
		}

		ok, err := q.AssignCode(ctx, code.ID, userID, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.InvalidCode()
		}

		slug, err := uniqueSlug(ctx, q, content.FirstName+" "+content.LastName)
		if err != nil {
			return err
		}
		p := &model.Profile{
			UserID:         userID,
			ResolveCodeID:  code.ID,
			Slug:           slug,
			ProfileContent: content,
			IsPublic:       isPublic,
			Theme:          theme,
		}
		if err := q.CreateProfile(ctx, p); err != nil {
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.Field == "resolveCodeId" {
				return apperror.InvalidCode()
			}
			return err
		}
		profile = p
		created = true
		return nil
	})
	if err != nil {
		if errors.Is(err, apperror.ErrInvalidCode) || errors.Is(err, apperror.ErrValidation) {
			return nil, err
		}
		l.logger.Error("claim failed",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service: claiming code: %w", err)
	}

	if purged != nil {
		l.logger.Warn("orphaned profile purged during claim",
			slog.Int64("profile_id", purged.ID),
			slog.Int64("owner_id", purged.UserID),
		)
		e := events.New(events.ProfilePurged)
		e.ProfileID, e.CodeID, e.UserID = purged.ID, purged.ResolveCodeID, purged.UserID
		publish(ctx, l.events, l.logger, e)
	}
	if created {
		l.logger.Info("code claimed",
			slog.Int64("code_id", profile.ResolveCodeID),
			slog.Int64("profile_id", profile.ID),
			slog.Int64("user_id", userID),
		)
		e := events.New(events.CodeClaimed)
		e.CodeID, e.ProfileID, e.UserID = profile.ResolveCodeID, profile.ID, userID
		publish(ctx, l.events, l.logger, e)
	}
	return profile, nil
}

// Release deletes a profile with its visits and puts its code back into
// circulation. A profile that is already gone is not an error.
//
// The code is re-read by id inside the transaction, soft-deleted rows
// included: whatever state it drifted into, it leaves holder-free.
func (l *Lifecycle) Release(ctx context.Context, profileID int64) error {
	var (
		released *model.Profile
		reset    bool
	)
	err := l.store.InTx(ctx, func(q repository.Queries) error {
		p, err := q.GetProfileByID(ctx, profileID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return nil
			}
			return err
		}
		if err := purgeProfile(ctx, q, p.ID); err != nil {
			return err
		}
		released = p

		code, err := q.GetCodeByID(ctx, p.ResolveCodeID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return nil
			}
			return err
		}
		if err := q.ResetCode(ctx, code.ID); err != nil {
			return err
		}
		reset = true
		return nil
	})
	if err != nil {
		l.logger.Error("release failed",
			slog.Int64("profile_id", profileID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service: releasing profile %d: %w", profileID, err)
	}
	if released == nil {
		return nil
	}

	l.logger.Info("profile released",
		slog.Int64("profile_id", released.ID),
		slog.Int64("code_id", released.ResolveCodeID),
		slog.Bool("code_reset", reset),
	)
	e := events.New(events.CodeReleased)
	e.CodeID, e.ProfileID, e.UserID = released.ResolveCodeID, released.ID, released.UserID
	publish(ctx, l.events, l.logger, e)
	return nil
}

// DeleteProfile is Release with an ownership check: owners delete their own
// profile, admins any.
func (l *Lifecycle) DeleteProfile(ctx context.Context, profileID int64, who Requester) error {
	p, err := l.store.GetProfileByID(ctx, profileID)
	if err != nil {
		return err
	}
	if !who.owns(p.UserID) {
		return apperror.Forbidden("you can only delete your own profile")
	}
	return l.Release(ctx, profileID)
}

// RepairOrphanedCode resets a code that has no profile. A code that still
// has one is left alone.
func (l *Lifecycle) RepairOrphanedCode(ctx context.Context, codeID int64) error {
	_, err := l.repairCode(ctx, codeID)
	return err
}

// repairCode reports whether the code was reset.
func (l *Lifecycle) repairCode(ctx context.Context, codeID int64) (bool, error) {
	var (
		code     *model.ResolveCode
		repaired bool
	)
	err := l.store.InTx(ctx, func(q repository.Queries) error {
		var err error
		code, err = q.GetCodeByID(ctx, codeID)
		if err != nil {
			return err
		}

		_, err = q.GetProfileByCodeID(ctx, codeID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return err
		}

		// Without a profile the only legal state is claimable with no
		// holder, which is exactly what ResetCode writes.
		if err := q.ResetCode(ctx, codeID); err != nil {
			return err
		}
		repaired = true
		return nil
	})
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, err
		}
		return false, fmt.Errorf("service: repairing code %d: %w", codeID, err)
	}
	if !repaired {
		return false, nil
	}

	attrs := []any{slog.Int64("code_id", codeID), slog.String("previous_status", string(code.Status))}
	if code.Assignment != nil {
		attrs = append(attrs, slog.Int64("previous_user_id", code.Assignment.UserID))
	}
	l.logger.Info("orphaned code repaired", attrs...)

	e := events.New(events.CodeRepaired)
	e.CodeID = codeID
	if code.Assignment != nil {
		e.UserID = code.Assignment.UserID
	}
	publish(ctx, l.events, l.logger, e)
	return true, nil
}

// purgeOrphanedProfile deletes a profile (and its visits) if it is still an
// orphan when re-checked inside the transaction. The code is never touched:
// its link to the profile is already broken. Reports whether it deleted.
func (l *Lifecycle) purgeOrphanedProfile(ctx context.Context, profileID int64) (bool, error) {
	var purged *model.Profile
	err := l.store.InTx(ctx, func(q repository.Queries) error {
		p, err := q.GetProfileByID(ctx, profileID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return nil
			}
			return err
		}

		code, err := q.GetCodeByID(ctx, p.ResolveCodeID)
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			code = nil
		case err != nil:
			return err
		}
		if !isOrphan(p, code) {
			return nil
		}

		if err := purgeProfile(ctx, q, p.ID); err != nil {
			return err
		}
		purged = p
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("service: purging profile %d: %w", profileID, err)
	}
	if purged == nil {
		return false, nil
	}

	l.logger.Info("orphaned profile purged",
		slog.Int64("profile_id", purged.ID),
		slog.Int64("code_id", purged.ResolveCodeID),
		slog.Int64("user_id", purged.UserID),
	)
	e := events.New(events.ProfilePurged)
	e.ProfileID, e.CodeID, e.UserID = purged.ID, purged.ResolveCodeID, purged.UserID
	publish(ctx, l.events, l.logger, e)
	return true, nil
}

// isOrphan reports whether p is no longer backed by its code. A nil code
// means the row is gone.
func isOrphan(p *model.Profile, code *model.ResolveCode) bool {
	if code == nil || code.DeletedAt != nil {
		return true
	}
	return code.Status != model.StatusAssigned || !code.AssignedTo(p.UserID)
}

// purgeProfile removes a profile's visits and then the profile.
func purgeProfile(ctx context.Context, q repository.Queries, profileID int64) error {
	if _, err := q.DeleteVisitsByProfile(ctx, profileID); err != nil {
		return err
	}
	return q.DeleteProfile(ctx, profileID)
}
