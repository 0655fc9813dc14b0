package types

import (
	"strings"
	"time"
)

// User represents an account in the system.
// It contains identity, permission, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID string `json:"id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Email is the user's email address, stored trimmed and lowercased.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password"`

	// Permission is the role record the user currently references.
	Permission Permission `json:"permission"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RoleView is the permission projection embedded in UserView.
type RoleView struct {
	Role Role `json:"role"`
}

// UserView is the projection of a user returned to callers.
type UserView struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Permission RoleView `json:"Permission"`
}

// View projects u onto the fields safe to return.
func (u User) View() UserView {
	return UserView{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Permission: RoleView{Role: u.Permission.Role},
	}
}

// NewUser carries the fields needed to insert a user.
type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
	Role         Role
}

// UserPatch is a partial update; nil fields keep their stored value.
type UserPatch struct {
	Name  *string
	Email *string
}

// UserFilter narrows user listings.
type UserFilter struct {
	// Name matches as a case-insensitive substring.
	Name string
	// Role matches exactly when set.
	Role Role
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
