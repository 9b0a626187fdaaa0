// Package repository declares the storage contracts the services depend on.
//
// Every query lives on Queries. A Store hands out the same Queries either
// directly (each call is its own autocommit statement) or bound to a single
// transaction through InTx. Lifecycle operations that touch more than one
// table always go through InTx.
package repository

import (
	"context"
	"time"

	"github.com/sakif/tapcard/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// CodeFilter narrows ListCodes. Zero values mean "any".
type CodeFilter struct {
	Status  model.Status
	BatchID *int64
	ListOptions
}

// Scope limits an orphan scan to one user's rows. A nil UserID scans everything.
type Scope struct {
	UserID *int64
}

type CodeQueries interface {
	// GetCodeByValue returns a live (not soft-deleted) code.
	GetCodeByValue(ctx context.Context, value string) (*model.ResolveCode, error)
	// GetCodeByID returns the row even when it is soft-deleted.
	GetCodeByID(ctx context.Context, id int64) (*model.ResolveCode, error)
	// AssignCode moves a claimable, live code to assigned (or re-stamps a
	// code already held by userID). It reports false when neither applied.
	AssignCode(ctx context.Context, codeID, userID int64, at time.Time) (bool, error)
	// ResetCode puts a code back to available with no holder.
	ResetCode(ctx context.Context, codeID int64) error
	InsertCodes(ctx context.Context, codes []model.ResolveCode) error
	// ExistingCodeValues returns which of values are already stored,
	// soft-deleted rows included.
	ExistingCodeValues(ctx context.Context, values []string) ([]string, error)
	ListCodes(ctx context.Context, filter CodeFilter) ([]model.ResolveCode, error)
	// DeleteCodes hard-deletes rows without touching their profiles.
	DeleteCodes(ctx context.Context, ids []int64) (int, error)
	// SoftDeleteCodes stamps deleted_at; the rows stay for audit.
	SoftDeleteCodes(ctx context.Context, ids []int64) (int, error)
	MarkCodesCopied(ctx context.Context, ids []int64, at time.Time) (int, error)
	// FindOrphanedCodes returns codes that claim a holder but have no
	// profile, and claimable codes still carrying holder columns.
	FindOrphanedCodes(ctx context.Context, scope Scope) ([]int64, error)
}

type ProfileQueries interface {
	GetProfileByID(ctx context.Context, id int64) (*model.Profile, error)
	GetProfileByCodeID(ctx context.Context, codeID int64) (*model.Profile, error)
	GetProfileBySlug(ctx context.Context, slug string) (*model.Profile, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	CreateProfile(ctx context.Context, p *model.Profile) error
	UpdateProfile(ctx context.Context, p *model.Profile) error
	DeleteProfile(ctx context.Context, id int64) error
	ListProfiles(ctx context.Context, scope Scope, opts ListOptions) ([]model.ProfileListing, error)
	// FindOrphanedProfiles returns profiles whose code is gone, soft-deleted,
	// not assigned, or assigned to another user.
	FindOrphanedProfiles(ctx context.Context, scope Scope) ([]int64, error)
}

type VisitQueries interface {
	InsertVisit(ctx context.Context, v *model.ProfileVisit) error
	DeleteVisitsByProfile(ctx context.Context, profileID int64) (int64, error)
	VisitStats(ctx context.Context, profileID int64, now time.Time) (model.VisitStats, error)
}

type BatchQueries interface {
	CreateBatch(ctx context.Context, b *model.Batch) error
	GetBatch(ctx context.Context, id int64) (*model.Batch, error)
	ListBatches(ctx context.Context) ([]model.Batch, error)
	DeleteBatch(ctx context.Context, id int64) error
}

type UserQueries interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// Queries is the full read/write surface of the store.
type Queries interface {
	CodeQueries
	ProfileQueries
	VisitQueries
	BatchQueries
	UserQueries
}

// Store is Queries plus transactions.
//
// InTx runs fn inside one transaction. If fn returns an error (or panics)
// everything is rolled back; otherwise it commits.
type Store interface {
	Queries
	InTx(ctx context.Context, fn func(q Queries) error) error
}
