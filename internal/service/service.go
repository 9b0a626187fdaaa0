// Package service holds the business rules of tapcard.
//
// THE LAYERS:
//
//	Handler (HTTP)       → parses requests, writes JSON
//	Service (this)       → validates, enforces ownership, runs transactions
//	Repository (storage) → SQL
//
// The services take repository.Store (an interface), never *sqlite.DB, so
// the tests can run them against any store and main.go decides the engine.
//
// THE LIFECYCLE:
// Lifecycle is the only code that moves a resolve code between claimable and
// assigned, and the only code that creates or deletes profiles. Everything
// else (sweep, resolve, handlers) goes through it.
package service

import (
	"context"
	"log/slog"

	"github.com/sakif/tapcard/internal/events"
	"github.com/sakif/tapcard/internal/model"
	"github.com/sakif/tapcard/internal/repository"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Requester is whoever is calling: the authenticated user and their role.
type Requester struct {
	UserID int64
	Role   string
}

func (r Requester) IsAdmin() bool { return r.Role == model.RoleAdmin }

// owns reports whether r may manage a profile that belongs to ownerID.
func (r Requester) owns(ownerID int64) bool {
	return r.IsAdmin() || r.UserID == ownerID
}

// AllScope covers every row; admin listings sweep with it.
func AllScope() repository.Scope { return repository.Scope{} }

// UserScope narrows a sweep to one user's codes and profiles.
func UserScope(userID int64) repository.Scope {
	return repository.Scope{UserID: &userID}
}

func clampList(limit, offset int) repository.ListOptions {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return repository.ListOptions{Limit: limit, Offset: offset}
}

// publish sends e and only logs a failure. Callers have already committed.
func publish(ctx context.Context, pub events.Publisher, logger *slog.Logger, e events.Event) {
	if err := pub.Publish(ctx, e); err != nil {
		logger.Warn("event publish failed",
			slog.String("type", string(e.Type)),
			slog.String("error", err.Error()),
		)
	}
}
