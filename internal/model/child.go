package model

import "time"

type ChildProfile struct {
	ID            int64     `json:"id"`
	OwnerParentID int64     `json:"owner_parent_id"`
	PrincipalID   *int64    `json:"principal_id"`
	DisplayName   string    `json:"display_name"`
	HasPIN        bool      `json:"has_pin"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ChildAccess is a grant written when a parent-role invitation is redeemed.
type ChildAccess struct {
	PrincipalID  int64     `json:"principal_id"`
	ChildID      int64     `json:"child_id"`
	InvitationID int64     `json:"invitation_id"`
	CreatedAt    time.Time `json:"created_at"`
}
