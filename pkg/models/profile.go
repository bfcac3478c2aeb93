package models

import (
	"strings"
	"time"
)

// Level is a CEFR level of the German curriculum
type Level string

const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
	LevelC1 Level = "C1"
)

// Levels lists the supported levels in ascending order
var Levels = []Level{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1}

// ParseLevel reports whether s names a supported level
func ParseLevel(s string) (Level, bool) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Levels {
		if l == known {
			return l, true
		}
	}
	return "", false
}

// NormalizeLevel returns a supported level, defaulting to A1
func NormalizeLevel(s string) Level {
	if l, ok := ParseLevel(s); ok {
		return l
	}
	return LevelA1
}

// Goal is the learner's stated reason for studying
type Goal string

const (
	GoalWork    Goal = "work"
	GoalTravel  Goal = "travel"
	GoalExam    Goal = "exam"
	GoalFun     Goal = "fun"
	GoalGeneral Goal = "general"
)

// Profile defaults applied on first touch
const (
	DefaultDailyTimeMinutes = 15
	DefaultDailyWordHour    = 9
)

// DailyTimeOptions are the canonical daily study durations in minutes
var DailyTimeOptions = []int{10, 15, 20, 30, 45, 60}

// UserProfile is a learner known to the bot
type UserProfile struct {
	UserID              int64     `json:"user_id" db:"user_id"` // Telegram user ID, also the private chat ID
	Username            string    `json:"username" db:"username"`
	FirstName           string    `json:"first_name" db:"first_name"`
	CurrentLevel        Level     `json:"current_level" db:"current_level"`
	Goal                Goal      `json:"goal" db:"goal"`
	DailyTimeMinutes    int       `json:"daily_time_minutes" db:"daily_time_minutes"`
	OnboardingCompleted bool      `json:"onboarding_completed" db:"onboarding_completed"`
	DailyWordEnabled    bool      `json:"daily_word_enabled" db:"daily_word_enabled"`
	DailyWordHour       int       `json:"daily_word_hour" db:"daily_word_hour"` // Hour of day in the display timezone (0-23)
	IsBlocked           bool      `json:"is_blocked" db:"is_blocked"`           // Set when the user blocked the bot
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}
