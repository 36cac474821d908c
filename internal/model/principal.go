package model

import "time"

type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleParent, RoleChild, RoleAdmin:
		return true
	}
	return false
}

type PrincipalStatus string

const (
	PrincipalActive   PrincipalStatus = "active"
	PrincipalPending  PrincipalStatus = "pending"
	PrincipalDisabled PrincipalStatus = "disabled"
)

func (s PrincipalStatus) Valid() bool {
	switch s {
	case PrincipalActive, PrincipalPending, PrincipalDisabled:
		return true
	}
	return false
}

// Principal is an authenticated adult or child login.
type Principal struct {
	ID          int64           `json:"id"`
	AuthSubject string          `json:"-"`
	Email       string          `json:"email"`
	Role        Role            `json:"role"`
	Status      PrincipalStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
