package models

import "time"

type AdminRole string

const (
	RoleOwner AdminRole = "owner"
	RoleStaff AdminRole = "staff"
)

// Admin is a back-office user.
type Admin struct {
	Base         `bson:",inline"`
	Name         string     `bson:"name" json:"name"`
	Email        string     `bson:"email" json:"email"`
	PasswordHash string     `bson:"password_hash" json:"-"`
	Role         AdminRole  `bson:"role" json:"role"`
	Active       bool       `bson:"active" json:"active"`
	LastLoginAt  *time.Time `bson:"last_login_at,omitempty" json:"lastLoginAt,omitempty"`
	Timestamps   `bson:",inline"`
}
