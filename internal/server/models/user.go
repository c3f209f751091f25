// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is a registered account. Users are deactivated, never deleted.
type User struct {
	ID           string
	UserName     string
	DisplayName  string
	PasswordHash []byte
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role is the part a user plays with respect to one item.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleBorrower Role = "borrower"
)

// RoleFor reports how userID relates to item. Anyone who does not own the
// item may act as its borrower.
func RoleFor(userID string, item *Item) Role {
	if item.OwnerID == userID {
		return RoleOwner
	}
	return RoleBorrower
}
