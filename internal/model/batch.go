package model

import "time"

// Batch groups codes that were created together. It is bookkeeping only:
// deleting a batch leaves its codes alone.
type Batch struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Prefix    string    `json:"prefix,omitempty"`
	Count     int       `json:"count"`
	CreatedBy int64     `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}
