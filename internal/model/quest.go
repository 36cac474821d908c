package model

import "time"

type Recurrence string

const (
	RecurrenceOnce   Recurrence = "once"
	RecurrenceDaily  Recurrence = "daily"
	RecurrenceWeekly Recurrence = "weekly"
)

type Quest struct {
	ID           int64      `json:"id"`
	ChildID      int64      `json:"child_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	RewardPoints int        `json:"reward_points"`
	Recurrence   Recurrence `json:"recurrence"`
	Active       bool       `json:"active"`
	CreatedBy    int64      `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type InstanceState string

const (
	StateOpen     InstanceState = "open"
	StateClaimed  InstanceState = "claimed"
	StateApproved InstanceState = "approved"
	StateRejected InstanceState = "rejected"
)

// QuestInstance is one occurrence of a quest for a recurrence period.
type QuestInstance struct {
	ID         int64         `json:"id"`
	QuestID    int64         `json:"quest_id"`
	ChildID    int64         `json:"child_id"`
	Period     string        `json:"period"`
	State      InstanceState `json:"state"`
	ClaimedAt  *time.Time    `json:"claimed_at"`
	ReviewedAt *time.Time    `json:"reviewed_at"`
	ReviewerID *int64        `json:"reviewer_id"`
	Version    int           `json:"version"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// InstanceWithQuest pairs an instance with its definition for listings.
type InstanceWithQuest struct {
	QuestInstance
	Title        string     `json:"title"`
	RewardPoints int        `json:"reward_points"`
	Recurrence   Recurrence `json:"recurrence"`
	DueAt        *time.Time `json:"due_at,omitempty"`
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// InstanceEvent is published after every state change.
type InstanceEvent struct {
	InstanceID int64         `json:"instance_id"`
	NewState   InstanceState `json:"new_state"`
	ChildID    int64         `json:"child_id"`
	ReviewerID *int64        `json:"reviewer_id,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}
