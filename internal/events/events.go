// Package events publishes resolve-code lifecycle notifications.
//
// Publishing is best-effort. The lifecycle operations commit first and
// publish afterwards; a broker that is down costs us a notification, never a
// claim.
package events

import (
	"context"
	"time"

	"github.com/rs/xid"
)

type Type string

const (
	CodeClaimed   Type = "code.claimed"
	CodeReleased  Type = "code.released"
	CodeRepaired  Type = "code.repaired"
	ProfilePurged Type = "profile.purged"
	BatchCreated  Type = "batch.created"
	CodesDeleted  Type = "codes.deleted"
)

// Event is the JSON body put on the queue.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	CodeID     int64     `json:"codeId,omitempty"`
	ProfileID  int64     `json:"profileId,omitempty"`
	UserID     int64     `json:"userId,omitempty"`
	BatchID    int64     `json:"batchId,omitempty"`
	Count      int       `json:"count,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// New stamps an event with a fresh id and the current time.
func New(t Type) Event {
	return Event{
		ID:         xid.New().String(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
