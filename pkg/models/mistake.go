package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MistakeTags is the structured payload attached to a mistake
type MistakeTags struct {
	TopicID string `json:"topic_id,omitempty"`
}

// Value stores tags as JSON text, or NULL when empty
func (t MistakeTags) Value() (driver.Value, error) {
	if t.TopicID == "" {
		return nil, nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads tags written by Value
func (t *MistakeTags) Scan(src interface{}) error {
	*t = MistakeTags{}
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported tags type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, t)
}

// MistakeRecord counts wrong answers for one item
type MistakeRecord struct {
	UserID        int64       `json:"user_id" db:"user_id"`
	ItemID        string      `json:"item_id" db:"item_id"` // String so quiz ids and topic slugs fit too
	Module        string      `json:"module" db:"module"`
	Level         Level       `json:"level" db:"level"`
	MistakeCount  int         `json:"mistake_count" db:"mistake_count"`
	SuccessCount  int         `json:"success_count" db:"success_count"`
	Mastered      bool        `json:"mastered" db:"mastered"`
	LastMistakeAt *time.Time  `json:"last_mistake_at" db:"last_mistake_at"`
	Tags          MistakeTags `json:"tags" db:"tags"`
}

// GrammarCoverage counts how often a topic was shown to a user
type GrammarCoverage struct {
	UserID     int64     `json:"user_id" db:"user_id"`
	TopicID    string    `json:"topic_id" db:"topic_id"`
	Level      Level     `json:"level" db:"level"`
	SeenCount  int       `json:"seen_count" db:"seen_count"`
	LastSeenAt time.Time `json:"last_seen_at" db:"last_seen_at"`
}
