package models

import "time"

// ProductionMode is the open-ended task closing a daily lesson
type ProductionMode string

const (
	ProductionWriting  ProductionMode = "writing"
	ProductionSpeaking ProductionMode = "speaking"
)

// DailyPlan is the content selected for one user for one day
type DailyPlan struct {
	Level           Level          `json:"level"`
	GrammarTopicID  string         `json:"grammar_topic_id"`
	VocabIDs        []int64        `json:"vocab_ids"`
	PracticeQuizIDs []int64        `json:"practice_quiz_ids"`
	ProductionMode  ProductionMode `json:"production_mode"`
}

// SessionStatus is the lifecycle state of a lesson session
type SessionStatus string

const (
	SessionIdle       SessionStatus = "idle"
	SessionInProgress SessionStatus = "in_progress"
	SessionFinished   SessionStatus = "finished"
)

// Lesson steps
const (
	StepWarmup     = 1
	StepVocabulary = 2
	StepGrammar    = 3
	StepQuiz       = 4
	StepProduction = 5
	StepSummary    = 6
)

// QuizQuestion is a multiple choice question presented during step 4
type QuizQuestion struct {
	Index        int      `json:"index"`
	ItemID       int64    `json:"item_id"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
}

// SessionResults holds quiz totals of a session
type SessionResults struct {
	QuizCorrect int `json:"quiz_correct" db:"quiz_correct"`
	QuizTotal   int `json:"quiz_total" db:"quiz_total"`
}

// LessonSession is the state of a user's daily lesson
type LessonSession struct {
	UserID                int64          `json:"user_id"`
	PlanDate              string         `json:"plan_date"`
	Status                SessionStatus  `json:"status"`
	Step                  int            `json:"step"`
	Plan                  DailyPlan      `json:"plan"`
	QuizIndex             int            `json:"quiz_index"`
	LastAnsweredQuizIndex int            `json:"last_answered_quiz_index"` // -1 when unset
	Results               SessionResults `json:"results"`
	Question              *QuizQuestion  `json:"question,omitempty"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// Streak tracks consecutive days with a completed lesson
type Streak struct {
	UserID            int64  `json:"user_id" db:"user_id"`
	CurrentStreak     int    `json:"current_streak" db:"current_streak"`
	BestStreak        int    `json:"best_streak" db:"best_streak"`
	LastCompletedDate string `json:"last_completed_date" db:"last_completed_date"`
}
