package models

import "time"

// Module names used as part of mastery and mistake keys
const (
	ModuleVocab   = "vocab"
	ModuleQuiz    = "quiz"
	ModuleWriting = "writing"
)

// MasteryRecord is the Leitner state of one item for one user
type MasteryRecord struct {
	UserID         int64      `json:"user_id" db:"user_id"`
	ItemID         string     `json:"item_id" db:"item_id"`
	Module         string     `json:"module" db:"module"`
	Box            int        `json:"box" db:"box"`                 // 0 = never reviewed, 1-5 Leitner boxes
	NextReview     string     `json:"next_review" db:"next_review"` // Calendar date, YYYY-MM-DD
	LastReviewedAt *time.Time `json:"last_reviewed_at" db:"last_reviewed_at"`
	IsSuspended    bool       `json:"is_suspended" db:"is_suspended"`
}
