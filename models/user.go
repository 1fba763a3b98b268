package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of roles a user can hold inside a firm
type Role string

const (
	RoleAdmin     Role = "admin"
	RolePartner   Role = "partner"
	RoleAttorney  Role = "attorney"
	RoleAssociate Role = "associate"
	RoleParalegal Role = "paralegal"
	RoleGuest     Role = "guest"
)

// AllRoles lists every role in privilege order, most privileged first
var AllRoles = []Role{RoleAdmin, RolePartner, RoleAttorney, RoleAssociate, RoleParalegal, RoleGuest}

// ParseRole converts a stored role string into a Role. Unknown values are rejected.
func ParseRole(s string) (Role, error) {
	for _, r := range AllRoles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role: %q", s)
}

// IsValid reports whether the role is one of the known roles
func (r Role) IsValid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// User represents a member of a firm who can sign in with email and password
type User struct {
	ID                uuid.UUID    `json:"id" db:"id"`
	FirmID            uuid.UUID    `json:"firm_id" db:"firm_id"`
	Email             string       `json:"email" db:"email"`
	FullName          string       `json:"full_name" db:"full_name"`
	Role              Role         `json:"role" db:"role"`
	CustomPermissions []Permission `json:"custom_permissions" db:"permissions"`
	PasswordHash      string       `json:"-" db:"password_hash"`
	IsActive          bool         `json:"is_active" db:"is_active"`
	LastLogin         *time.Time   `json:"last_login,omitempty" db:"last_login"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new active User. The caller supplies an already hashed password.
func NewUser(firmID uuid.UUID, email, fullName string, role Role, passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           uuid.New(),
		FirmID:       firmID,
		Email:        email,
		FullName:     fullName,
		Role:         role,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// UserProfile is the public view of a user returned by the API
type UserProfile struct {
	ID          uuid.UUID    `json:"id"`
	FirmID      uuid.UUID    `json:"firm_id"`
	Email       string       `json:"email"`
	FullName    string       `json:"full_name"`
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
	IsActive    bool         `json:"is_active"`
	LastLogin   *time.Time   `json:"last_login,omitempty"`
}

// Profile builds the public view of the user with the given effective permissions
func (u *User) Profile(effective []Permission) UserProfile {
	return UserProfile{
		ID:          u.ID,
		FirmID:      u.FirmID,
		Email:       u.Email,
		FullName:    u.FullName,
		Role:        u.Role,
		Permissions: effective,
		IsActive:    u.IsActive,
		LastLogin:   u.LastLogin,
	}
}
