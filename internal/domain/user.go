package domain

import "time"

// UserRole enumerates supported roles.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// User represents an account holding a credit balance.
type User struct {
	ID        string
	Email     string
	Name      string
	Role      UserRole
	Credits   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin reports whether the user may use admin endpoints.
func (u User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
