package model

import "time"

type SourceType string

const (
	SourceQuestApproval    SourceType = "quest_approval"
	SourceRewardRedemption SourceType = "reward_redemption"
	SourceAdjustment       SourceType = "adjustment"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceQuestApproval, SourceRewardRedemption, SourceAdjustment:
		return true
	}
	return false
}

// LedgerEntry is immutable once written. Corrections are new entries.
type LedgerEntry struct {
	ID         int64      `json:"id"`
	ChildID    int64      `json:"child_id"`
	Amount     int        `json:"amount"`
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id"`
	Note       string     `json:"note"`
	CreatedAt  time.Time  `json:"created_at"`
}

type PointBalance struct {
	ChildID     int64 `json:"child_id"`
	TotalEarned int   `json:"total_earned"`
	TotalSpent  int   `json:"total_spent"`
	Balance     int   `json:"balance"`
}
