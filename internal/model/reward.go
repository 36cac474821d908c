package model

import "time"

type Reward struct {
	ID            int64     `json:"id"`
	OwnerParentID int64     `json:"owner_parent_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	PointCost     int       `json:"point_cost"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// RewardRedemption is the result of spending points on a reward. Replayed
// is set when a retry matched an earlier redemption.
type RewardRedemption struct {
	Reward   Reward      `json:"reward"`
	Entry    LedgerEntry `json:"entry"`
	Replayed bool        `json:"replayed,omitempty"`
}
