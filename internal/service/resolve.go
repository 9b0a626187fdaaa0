package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sakif/tapcard/internal/apperror"
	"github.com/sakif/tapcard/internal/model"
	"github.com/sakif/tapcard/internal/repository"
)

// What a scanned code leads to.
const (
	ResolveClaim   = "claim"
	ResolveProfile = "profile"
)

// Resolution tells the presentation layer where to send a visitor.
type Resolution struct {
	Kind    string         `json:"kind"`
	Code    string         `json:"code"`
	Profile *model.Profile `json:"profile,omitempty"`
}

// VisitDeduper decides whether a visit is new enough to log. The Redis
// implementation lives in the cache package.
type VisitDeduper interface {
	FirstSeen(ctx context.Context, profileID int64, ip string) (bool, error)
}

// Resolver handles a tap or scan of a physical code.
type Resolver struct {
	store     repository.Store
	lifecycle *Lifecycle
	dedupe    VisitDeduper
	logger    *slog.Logger
}

// NewResolver wires the resolver. dedupe may be nil: every visit is logged.
func NewResolver(store repository.Store, lifecycle *Lifecycle, dedupe VisitDeduper, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, lifecycle: lifecycle, dedupe: dedupe, logger: logger}
}

// Resolve looks the code up and decides between the claim page and the
// profile. An assigned code with no profile is repaired on the spot and
// offered for claiming again.
func (r *Resolver) Resolve(ctx context.Context, codeValue string, v model.Visitor) (*Resolution, error) {
	codeValue = strings.TrimSpace(codeValue)
	if codeValue == "" {
		return nil, apperror.InvalidCode()
	}
	code, err := r.store.GetCodeByValue(ctx, codeValue)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidCode()
		}
		return nil, err
	}
	if code.Claimable() {
		return &Resolution{Kind: ResolveClaim, Code: code.Code}, nil
	}

	p, err := r.store.GetProfileByCodeID(ctx, code.ID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		if err := r.lifecycle.RepairOrphanedCode(ctx, code.ID); err != nil {
			r.logger.Warn("orphan repair failed",
				slog.String("kind", "code"),
				slog.Int64("id", code.ID),
				slog.String("error", err.Error()),
			)
		}
		return &Resolution{Kind: ResolveClaim, Code: code.Code}, nil
	}
	if isOrphan(p, code) {
		// Holder and owner disagree. Reset both; the code is claimable again.
		if _, err := r.lifecycle.purgeOrphanedProfile(ctx, p.ID); err != nil {
			r.logger.Warn("orphan repair failed",
				slog.String("kind", "profile"),
				slog.Int64("id", p.ID),
				slog.String("error", err.Error()),
			)
			return nil, apperror.InvalidCode()
		}
		if err := r.lifecycle.RepairOrphanedCode(ctx, code.ID); err != nil {
			r.logger.Warn("orphan repair failed",
				slog.String("kind", "code"),
				slog.Int64("id", code.ID),
				slog.String("error", err.Error()),
			)
		}
		return &Resolution{Kind: ResolveClaim, Code: code.Code}, nil
	}
	if !p.IsPublic {
		return nil, apperror.NotFound("profile", code.Code)
	}

	r.recordVisit(ctx, p.ID, v)
	return &Resolution{Kind: ResolveProfile, Code: code.Code, Profile: p}, nil
}

// recordVisit logs a visit. Visit logging never fails a resolve.
func (r *Resolver) recordVisit(ctx context.Context, profileID int64, v model.Visitor) {
	if r.dedupe != nil {
		first, err := r.dedupe.FirstSeen(ctx, profileID, v.IP)
		if err != nil {
			r.logger.Debug("visit dedupe unavailable", slog.String("error", err.Error()))
		}
		if !first {
			return
		}
	}

	visit := &model.ProfileVisit{
		ProfileID: profileID,
		IPAddress: v.IP,
		UserAgent: v.UserAgent,
		Referer:   v.Referer,
		Country:   v.Country,
		City:      v.City,
		Device:    v.Device,
	}
	if err := r.store.InsertVisit(ctx, visit); err != nil {
		r.logger.Warn("visit not recorded",
			slog.Int64("profile_id", profileID),
			slog.String("error", err.Error()),
		)
	}
}
