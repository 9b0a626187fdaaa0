package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/tapcard/internal/apperror"
	"github.com/sakif/tapcard/internal/model"
	"github.com/sakif/tapcard/internal/repository"
	"github.com/sakif/tapcard/internal/storage"
)

// Image kinds a profile carries.
const (
	ImageAvatar = "avatar"
	ImageBanner = "banner"
)

// ProfileService serves profile reads and content edits. Creating and
// deleting profiles belongs to Lifecycle.
type ProfileService struct {
	store    repository.Store
	sweeper  *Sweeper
	uploader storage.Uploader
	logger   *slog.Logger
}

// NewProfileService wires the service. uploader may be nil, in which case
// image uploads are refused.
func NewProfileService(store repository.Store, sweeper *Sweeper, uploader storage.Uploader, logger *slog.Logger) *ProfileService {
	return &ProfileService{
		store:    store,
		sweeper:  sweeper,
		uploader: uploader,
		logger:   logger,
	}
}

// Dashboard lists the user's own profiles after sweeping their rows.
func (s *ProfileService) Dashboard(ctx context.Context, userID int64, limit, offset int) ([]model.ProfileListing, error) {
	scope := UserScope(userID)
	s.sweep(ctx, scope)

	listings, err := s.store.ListProfiles(ctx, scope, clampList(limit, offset))
	if err != nil {
		return nil, fmt.Errorf("service: listing profiles of user %d: %w", userID, err)
	}
	return listings, nil
}

// ListForAdmin lists every profile after a global sweep.
func (s *ProfileService) ListForAdmin(ctx context.Context, limit, offset int) ([]model.ProfileListing, error) {
	s.sweep(ctx, AllScope())

	listings, err := s.store.ListProfiles(ctx, AllScope(), clampList(limit, offset))
	if err != nil {
		return nil, fmt.Errorf("service: listing profiles: %w", err)
	}
	return listings, nil
}

// sweep rides along a read. Its failure must not fail the read.
func (s *ProfileService) sweep(ctx context.Context, scope repository.Scope) {
	if _, err := s.sweeper.Sweep(ctx, scope); err != nil {
		s.logger.Warn("sweep before listing failed", slog.String("error", err.Error()))
	}
}

// GetBySlug is the public read. Hidden profiles look like missing ones.
func (s *ProfileService) GetBySlug(ctx context.Context, slug string) (*model.Profile, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, apperror.NotFound("profile", slug)
	}
	p, err := s.store.GetProfileBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !p.IsPublic {
		return nil, apperror.NotFound("profile", slug)
	}
	return p, nil
}

// Get returns a profile to its owner or an admin.
func (s *ProfileService) Get(ctx context.Context, profileID int64, who Requester) (*model.Profile, error) {
	p, err := s.store.GetProfileByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if !who.owns(p.UserID) {
		return nil, apperror.Forbidden("you can only view your own profile")
	}
	return p, nil
}

// Update applies a partial edit. The slug and the code binding are fixed
// at claim time.
func (s *ProfileService) Update(ctx context.Context, profileID int64, who Requester, upd model.ProfileUpdate) (*model.Profile, error) {
	p, err := s.Get(ctx, profileID, who)
	if err != nil {
		return nil, err
	}

	c := p.ProfileContent
	setString(&c.FirstName, upd.FirstName)
	setString(&c.LastName, upd.LastName)
	setString(&c.Bio, upd.Bio)
	setString(&c.Company, upd.Company)
	setString(&c.Position, upd.Position)
	setString(&c.Phone, upd.Phone)
	setString(&c.Email, upd.Email)
	setString(&c.Location, upd.Location)
	setString(&c.Website, upd.Website)
	if upd.Social != nil {
		c.Social = *upd.Social
	}
	if upd.CustomLinks != nil {
		c.CustomLinks = *upd.CustomLinks
	}
	if upd.Services != nil {
		c.Services = *upd.Services
	}
	if err := normalizeContent(&c, true); err != nil {
		return nil, err
	}
	p.ProfileContent = c

	if upd.Theme != nil {
		theme, err := normalizeTheme(*upd.Theme)
		if err != nil {
			return nil, err
		}
		p.Theme = theme
	}
	if upd.IsPublic != nil {
		p.IsPublic = *upd.IsPublic
	}

	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("profile updated",
		slog.Int64("profile_id", p.ID),
		slog.Int64("by", who.UserID),
	)
	return p, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// SetImage uploads an avatar or banner and points the profile at it.
func (s *ProfileService) SetImage(ctx context.Context, profileID int64, who Requester, kind, contentType string, body []byte) (*model.Profile, error) {
	if kind != ImageAvatar && kind != ImageBanner {
		return nil, apperror.ValidationFailed("kind", "image kind must be avatar or banner")
	}
	if s.uploader == nil {
		return nil, apperror.ValidationFailed("image", "image uploads are not configured")
	}
	if !storage.AllowedImageType(contentType) {
		return nil, apperror.ValidationFailed("image", "image must be PNG, JPEG or WebP")
	}
	if len(body) == 0 {
		return nil, apperror.ValidationFailed("image", "image is empty")
	}
	if len(body) > MaxImageBytes {
		return nil, apperror.ValidationFailed("image", "image must be 5 MB or smaller")
	}

	p, err := s.Get(ctx, profileID, who)
	if err != nil {
		return nil, err
	}

	key := storage.ImageKey(p.ID, kind, contentType)
	u, err := s.uploader.Upload(ctx, key, contentType, body)
	if err != nil {
		s.logger.Error("image upload failed",
			slog.Int64("profile_id", p.ID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service: uploading %s: %w", kind, err)
	}

	if kind == ImageAvatar {
		p.AvatarURL = u
	} else {
		p.BannerURL = u
	}
	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Stats returns the visit counters of a profile to its owner or an admin.
func (s *ProfileService) Stats(ctx context.Context, profileID int64, who Requester) (model.VisitStats, error) {
	if _, err := s.Get(ctx, profileID, who); err != nil {
		return model.VisitStats{}, err
	}
	stats, err := s.store.VisitStats(ctx, profileID, time.Now())
	if err != nil {
		return model.VisitStats{}, fmt.Errorf("service: visit stats of profile %d: %w", profileID, err)
	}
	return stats, nil
}
