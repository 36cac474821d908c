package model

import "time"

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRevoked  InvitationStatus = "revoked"
	InvitationExpired  InvitationStatus = "expired"
)

type Invitation struct {
	ID              int64            `json:"id"`
	Token           string           `json:"-"`
	InviterParentID int64            `json:"inviter_parent_id"`
	InviteeEmail    string           `json:"invitee_email"`
	TargetChildIDs  []int64          `json:"target_child_ids"`
	Role            Role             `json:"role"`
	Status          InvitationStatus `json:"status"`
	ExpiresAt       time.Time        `json:"expires_at"`
	RedeemedBy      *int64           `json:"redeemed_by"`
	RedeemedAt      *time.Time       `json:"redeemed_at"`
	CreatedAt       time.Time        `json:"created_at"`
}

// IsExpired reports whether the invitation can no longer be redeemed at now.
func (i *Invitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
