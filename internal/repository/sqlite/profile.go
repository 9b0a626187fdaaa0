package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/tapcard/internal/apperror"
	"github.com/sakif/tapcard/internal/model"
	"github.com/sakif/tapcard/internal/repository"
)

const profileColumns = `p.id, p.user_id, p.resolve_code_id, p.slug,
	p.first_name, p.last_name, p.bio, p.company, p.position, p.avatar_url, p.banner_url,
	p.phone, p.email, p.location, p.website,
	p.linkedin, p.twitter, p.instagram, p.facebook, p.github, p.youtube, p.tiktok, p.whatsapp,
	p.custom_links, p.services, p.is_public, p.theme, p.created_at, p.updated_at`

// scanProfile reads profileColumns, plus any extra destinations that follow
// them in the SELECT list.
func scanProfile(s rowScanner, extra ...any) (*model.Profile, error) {
	var (
		p           model.Profile
		customLinks string
		services    string
	)
	dest := []any{
		&p.ID,
		&p.UserID,
		&p.ResolveCodeID,
		&p.Slug,
		&p.FirstName,
		&p.LastName,
		&p.Bio,
		&p.Company,
		&p.Position,
		&p.AvatarURL,
		&p.BannerURL,
		&p.Phone,
		&p.Email,
		&p.Location,
		&p.Website,
		&p.Social.LinkedIn,
		&p.Social.Twitter,
		&p.Social.Instagram,
		&p.Social.Facebook,
		&p.Social.GitHub,
		&p.Social.YouTube,
		&p.Social.TikTok,
		&p.Social.WhatsApp,
		&customLinks,
		&services,
		&p.IsPublic,
		&p.Theme,
		&p.CreatedAt,
		&p.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(customLinks), &p.CustomLinks); err != nil {
		return nil, fmt.Errorf("decoding custom_links of profile %d: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(services), &p.Services); err != nil {
		return nil, fmt.Errorf("decoding services of profile %d: %w", p.ID, err)
	}
	if p.CustomLinks == nil {
		p.CustomLinks = []model.CustomLink{}
	}
	if p.Services == nil {
		p.Services = []model.Service{}
	}
	return &p, nil
}

func (q *queries) getProfile(ctx context.Context, what, where string, arg any) (*model.Profile, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles p WHERE `+where,
		arg,
	)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("profile", what)
		}
		return nil, fmt.Errorf("sqlite: getting profile %s: %w", what, err)
	}
	return p, nil
}

func (q *queries) GetProfileByID(ctx context.Context, id int64) (*model.Profile, error) {
	return q.getProfile(ctx, strconv.FormatInt(id, 10), "p.id = ?", id)
}

// GetProfileByCodeID returns the (at most one) profile bound to a code.
func (q *queries) GetProfileByCodeID(ctx context.Context, codeID int64) (*model.Profile, error) {
	return q.getProfile(ctx, "for code "+strconv.FormatInt(codeID, 10), "p.resolve_code_id = ?", codeID)
}

func (q *queries) GetProfileBySlug(ctx context.Context, slug string) (*model.Profile, error) {
	return q.getProfile(ctx, slug, "p.slug = ?", slug)
}

func (q *queries) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles WHERE slug = ?`, slug).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking slug %q: %w", slug, err)
	}
	return n > 0, nil
}

func encodeProfileLists(p *model.Profile) (string, string, error) {
	links := p.CustomLinks
	if links == nil {
		links = []model.CustomLink{}
	}
	services := p.Services
	if services == nil {
		services = []model.Service{}
	}
	l, err := json.Marshal(links)
	if err != nil {
		return "", "", fmt.Errorf("encoding custom links: %w", err)
	}
	s, err := json.Marshal(services)
	if err != nil {
		return "", "", fmt.Errorf("encoding services: %w", err)
	}
	return string(l), string(s), nil
}

// CreateProfile inserts a profile and fills in ID and timestamps.
//
// A UNIQUE violation comes back as a Conflict whose Field says which key
// collided: "slug" or "resolveCodeId".
func (q *queries) CreateProfile(ctx context.Context, p *model.Profile) error {
	links, services, err := encodeProfileLists(p)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if p.Theme == "" {
		p.Theme = model.DefaultTheme
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	res, err := q.db.ExecContext(ctx,
		`INSERT INTO profiles (
			user_id, resolve_code_id, slug,
			first_name, last_name, bio, company, position, avatar_url, banner_url,
			phone, email, location, website,
			linkedin, twitter, instagram, facebook, github, youtube, tiktok, whatsapp,
			custom_links, services, is_public, theme, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.ResolveCodeID, p.Slug,
		p.FirstName, p.LastName, p.Bio, p.Company, p.Position, p.AvatarURL, p.BannerURL,
		p.Phone, p.Email, p.Location, p.Website,
		p.Social.LinkedIn, p.Social.Twitter, p.Social.Instagram, p.Social.Facebook,
		p.Social.GitHub, p.Social.YouTube, p.Social.TikTok, p.Social.WhatsApp,
		links, services, p.IsPublic, p.Theme, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "profiles.slug") {
				return &apperror.AppError{
					Err:     apperror.ErrConflict,
					Message: fmt.Sprintf("slug %q is taken", p.Slug),
					Field:   "slug",
				}
			}
			return &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: "resolve code already has a profile",
				Field:   "resolveCodeId",
			}
		}
		return fmt.Errorf("sqlite: inserting profile: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading profile id: %w", err)
	}
	p.ID = id
	return nil
}

// UpdateProfile rewrites the editable content. Ownership, the code binding
// and the slug are never touched here.
func (q *queries) UpdateProfile(ctx context.Context, p *model.Profile) error {
	links, services, err := encodeProfileLists(p)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	p.UpdatedAt = time.Now().UTC()

	res, err := q.db.ExecContext(ctx,
		`UPDATE profiles SET
			first_name = ?, last_name = ?, bio = ?, company = ?, position = ?,
			avatar_url = ?, banner_url = ?, phone = ?, email = ?, location = ?, website = ?,
			linkedin = ?, twitter = ?, instagram = ?, facebook = ?,
			github = ?, youtube = ?, tiktok = ?, whatsapp = ?,
			custom_links = ?, services = ?, is_public = ?, theme = ?, updated_at = ?
		 WHERE id = ?`,
		p.FirstName, p.LastName, p.Bio, p.Company, p.Position,
		p.AvatarURL, p.BannerURL, p.Phone, p.Email, p.Location, p.Website,
		p.Social.LinkedIn, p.Social.Twitter, p.Social.Instagram, p.Social.Facebook,
		p.Social.GitHub, p.Social.YouTube, p.Social.TikTok, p.Social.WhatsApp,
		links, services, p.IsPublic, p.Theme, p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating profile %d: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: updating profile %d: %w", p.ID, err)
	}
	if n == 0 {
		return apperror.NotFound("profile", strconv.FormatInt(p.ID, 10))
	}
	return nil
}

// DeleteProfile removes only the profile row. Callers that want the code
// back must go through the lifecycle service.
func (q *queries) DeleteProfile(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting profile %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: deleting profile %d: %w", id, err)
	}
	if n == 0 {
		return apperror.NotFound("profile", strconv.FormatInt(id, 10))
	}
	return nil
}

// ListProfiles returns profiles with their code value and visit count,
// newest first.
func (q *queries) ListProfiles(ctx context.Context, scope repository.Scope, opts repository.ListOptions) ([]model.ProfileListing, error) {
	query := `SELECT ` + profileColumns + `,
			COALESCE(c.code, ''),
			(SELECT COUNT(*) FROM profile_visits v WHERE v.profile_id = p.id)
		FROM profiles p
		LEFT JOIN resolve_codes c ON c.id = p.resolve_code_id`
	var args []any
	if scope.UserID != nil {
		query += ` WHERE p.user_id = ?`
		args = append(args, *scope.UserID)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing profiles: %w", err)
	}
	defer rows.Close()

	listings := []model.ProfileListing{}
	for rows.Next() {
		var (
			code   string
			visits int
		)
		p, err := scanProfile(rows, &code, &visits)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning profile: %w", err)
		}
		listings = append(listings, model.ProfileListing{Profile: *p, Code: code, Visits: visits})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating profiles: %w", err)
	}
	return listings, nil
}

// FindOrphanedProfiles finds profiles whose code no longer backs them.
// A soft-deleted code counts as gone.
func (q *queries) FindOrphanedProfiles(ctx context.Context, scope repository.Scope) ([]int64, error) {
	query := `SELECT p.id FROM profiles p
		LEFT JOIN resolve_codes c ON c.id = p.resolve_code_id
		WHERE (c.id IS NULL
		    OR c.deleted_at IS NOT NULL
		    OR c.status <> ?
		    OR c.user_id IS NULL
		    OR c.user_id <> p.user_id)`
	args := []any{model.StatusAssigned}
	if scope.UserID != nil {
		query += ` AND p.user_id = ?`
		args = append(args, *scope.UserID)
	}
	query += ` ORDER BY p.id`

	return q.selectIDs(ctx, "orphaned profiles", query, args...)
}
