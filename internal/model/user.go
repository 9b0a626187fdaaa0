package model

import "time"

// Roles. The admin role unlocks batch management, the global sweep and the
// all-profiles listing.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is an account that can hold codes. Signing up and logging in live
// outside this service; we only need the id, the role and something to
// show in the admin list.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
