package models

import "time"

// Broadcast job statuses
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobSent       = "sent"
	JobFailed     = "failed"
)

// JobKindDailyWord is the kind of the hourly word-of-the-day message
const JobKindDailyWord = "daily_word"

// BroadcastJob is one scheduled outbound message
type BroadcastJob struct {
	ID          int64      `json:"id" db:"id"`
	UserID      int64      `json:"user_id" db:"user_id"`
	Kind        string     `json:"kind" db:"kind"`
	Payload     []byte     `json:"payload" db:"payload"`
	Status      string     `json:"status" db:"status"`
	Attempts    int        `json:"attempts" db:"attempts"`
	AvailableAt time.Time  `json:"available_at" db:"available_at"`
	LockedAt    *time.Time `json:"locked_at" db:"locked_at"`
	DedupeKey   *string    `json:"dedupe_key" db:"dedupe_key"`
	LastError   *string    `json:"last_error" db:"last_error"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}
