// Package model defines the data structures used throughout the application.
package model

import "time"

// Status is the stored lifecycle state of a resolve code.
//
// THREE STRINGS, TWO STATES:
// The database (and anything that reads it directly) knows three values.
// "unassigned" is a fresh code from a batch, "available" is a code that has
// been released or repaired. Nothing in the lifecycle treats them
// differently: both are claimable. Go code should ask Claimable() instead
// of comparing strings.
type Status string

const (
	StatusUnassigned Status = "unassigned"
	StatusAssigned   Status = "assigned"
	StatusAvailable  Status = "available"
)

// Valid reports whether s is one of the three stored states.
func (s Status) Valid() bool {
	switch s {
	case StatusUnassigned, StatusAssigned, StatusAvailable:
		return true
	}
	return false
}

// Claimable reports whether a code in this state may be claimed.
func (s Status) Claimable() bool {
	return s == StatusUnassigned || s == StatusAvailable
}

// ClaimableStatuses lists the stored values that mean "claimable".
var ClaimableStatuses = []Status{StatusUnassigned, StatusAvailable}

// DefaultCodeType is the physical medium assumed when a batch doesn't say.
const DefaultCodeType = "nfc"

// Assignment records who holds a code and since when.
type Assignment struct {
	UserID int64     `json:"userId"`
	Since  time.Time `json:"since"`
}

// ResolveCode is a pre-generated opaque token printed on a physical card.
//
// Assignment is non-nil only while Status is assigned. The storage layer
// builds it from the user_id/assigned_at columns, which always move together.
type ResolveCode struct {
	ID         int64       `json:"id"`
	Code       string      `json:"code"`
	Type       string      `json:"type"`
	Status     Status      `json:"status"`
	Assignment *Assignment `json:"assignment,omitempty"`
	CreatedBy  int64       `json:"createdBy"`
	BatchID    *int64      `json:"batchId,omitempty"`
	CopiedAt   *time.Time  `json:"copiedAt,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
	DeletedAt  *time.Time  `json:"deletedAt,omitempty"`
}

// Claimable reports whether the code can be claimed right now.
func (c *ResolveCode) Claimable() bool {
	return c.DeletedAt == nil && c.Status.Claimable()
}

// AssignedTo reports whether the code is currently held by userID.
func (c *ResolveCode) AssignedTo(userID int64) bool {
	return c.Assignment != nil && c.Assignment.UserID == userID
}
