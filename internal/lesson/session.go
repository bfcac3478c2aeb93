package lesson

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/example/deutschbot/internal/apperr"
	"github.com/example/deutschbot/internal/clock"
	"github.com/example/deutschbot/internal/rng"
	"github.com/example/deutschbot/pkg/logger"
	"github.com/example/deutschbot/pkg/models"
)

// EventKind is a learner action on the lesson
type EventKind string

const (
	EventBegin  EventKind = "begin"
	EventNext   EventKind = "next"
	EventAnswer EventKind = "answer"
	EventFinish EventKind = "finish"
	EventCancel EventKind = "cancel"
)

// Event is one learner action delivered by the chat transport
type Event struct {
	Kind      EventKind
	UserID    int64
	QuizIndex int // EventAnswer only
	Option    int // EventAnswer only
}

// Warning texts shown when a side write failed
const (
	WarnProgressNotSaved = "progress_not_saved"
	WarnCoverageNotSaved = "coverage_not_saved"
)

// Answer describes the outcome of a quiz answer
type Answer struct {
	Correct       bool
	CorrectOption string
	ItemID        int64
}

// Result is what the chat surface renders after an event
type Result struct {
	Session  *models.LessonSession
	Resumed  bool
	Answer   *Answer
	Streak   *models.Streak
	Finished bool // lesson finished by this event
	// AlreadyFinished is set when today's lesson was finished before
	AlreadyFinished bool
	Cancelled       bool
	Warnings        []string
}

// Deps groups the collaborators of the engine
type Deps struct {
	Profiles     Profiles
	Catalog      Catalog
	Mastery      MasteryStore
	Mistakes     MistakeLedger
	Coverage     CoverageMap
	Plans        PlanCache
	Sessions     SessionStore
	Completions  CompletionStore
	Clock        clock.Clock
	Rand         *rng.Rand
	Log          *logger.Logger
	MistakeBlend float64
}

// Engine runs the daily lesson state machine
type Engine struct {
	profiles    Profiles
	catalog     Catalog
	planner     *Planner
	quiz        *QuizBuilder
	mastery     MasteryStore
	mistakes    MistakeLedger
	coverage    CoverageMap
	plans       PlanCache
	sessions    SessionStore
	completions CompletionStore
	clock       clock.Clock
	log         *logger.Logger
}

func NewEngine(d Deps) *Engine {
	return &Engine{
		profiles:    d.Profiles,
		catalog:     d.Catalog,
		planner:     NewPlanner(d.Catalog, d.Mistakes, d.Coverage, d.Plans, d.Clock, d.Log, d.MistakeBlend),
		quiz:        NewQuizBuilder(d.Catalog, d.Rand),
		mastery:     d.Mastery,
		mistakes:    d.Mistakes,
		coverage:    d.Coverage,
		plans:       d.Plans,
		sessions:    d.Sessions,
		completions: d.Completions,
		clock:       d.Clock,
		log:         d.Log,
	}
}

// Planner exposes the engine's planner
func (e *Engine) Planner() *Planner {
	return e.planner
}

// Handle dispatches one event
func (e *Engine) Handle(ctx context.Context, ev Event) (*Result, error) {
	switch ev.Kind {
	case EventBegin:
		return e.Begin(ctx, ev.UserID)
	case EventNext:
		return e.Advance(ctx, ev.UserID)
	case EventAnswer:
		return e.Answer(ctx, ev.UserID, ev.QuizIndex, ev.Option)
	case EventFinish:
		return e.Finish(ctx, ev.UserID)
	case EventCancel:
		return e.Cancel(ctx, ev.UserID)
	default:
		return nil, fmt.Errorf("unknown lesson event %q", ev.Kind)
	}
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperr.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
}

func staleErr(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), apperr.ErrStaleInput)
}

// Current returns the stored session, or nil
func (e *Engine) Current(ctx context.Context, userID int64) (*models.LessonSession, error) {
	sess, err := e.sessions.Get(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return sess, nil
}

// activeSession returns today's in-progress session or a stale-input error
func (e *Engine) activeSession(ctx context.Context, userID int64) (*models.LessonSession, error) {
	sess, err := e.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Status != models.SessionInProgress {
		return nil, staleErr("no lesson in progress")
	}
	if sess.PlanDate != clock.Today(e.clock) {
		return nil, staleErr("lesson of %s has expired", sess.PlanDate)
	}
	return sess, nil
}

// Begin starts today's lesson, or resumes it where the learner left off
func (e *Engine) Begin(ctx context.Context, userID int64) (*Result, error) {
	now := e.clock.Now()
	today := now.Format(clock.DateLayout)

	sess, err := e.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess != nil && sess.PlanDate == today {
		switch sess.Status {
		case models.SessionInProgress:
			return &Result{Session: sess, Resumed: true}, nil
		case models.SessionFinished:
			return &Result{Session: sess, AlreadyFinished: true}, nil
		}
	}

	profile, err := e.profiles.EnsureProfile(ctx, userID, now)
	if err != nil {
		return nil, storeErr(err)
	}
	plan, err := e.planner.PlanFor(ctx, profile)
	if err != nil {
		return nil, err
	}

	sess = &models.LessonSession{
		UserID:                userID,
		PlanDate:              today,
		Status:                models.SessionInProgress,
		Step:                  models.StepWarmup,
		Plan:                  *plan,
		QuizIndex:             0,
		LastAnsweredQuizIndex: -1,
	}
	if err := e.sessions.Save(ctx, sess, now); err != nil {
		return nil, storeErr(err)
	}

	res := &Result{Session: sess}
	if plan.GrammarTopicID != "" {
		if err := e.coverage.MarkSeen(ctx, userID, plan.GrammarTopicID, plan.Level); err != nil {
			e.log.Warn("failed to mark grammar topic seen", "user_id", userID, "topic", plan.GrammarTopicID, "error", err)
			res.Warnings = append(res.Warnings, WarnCoverageNotSaved)
		}
	}
	e.log.Info("lesson started", "event", "lesson_started", "user_id", userID, "date", today)
	return res, nil
}

// Advance acknowledges the current step and moves to the next one
func (e *Engine) Advance(ctx context.Context, userID int64) (*Result, error) {
	sess, err := e.activeSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch sess.Step {
	case models.StepWarmup, models.StepVocabulary, models.StepProduction:
		sess.Step++
	case models.StepGrammar:
		sess.Step = models.StepQuiz
		if err := e.presentQuestion(ctx, sess); err != nil {
			return nil, err
		}
	case models.StepQuiz:
		return nil, staleErr("quiz question %d is waiting for an answer", sess.QuizIndex)
	case models.StepSummary:
		return e.Finish(ctx, userID)
	default:
		return nil, staleErr("unknown step %d", sess.Step)
	}

	if err := e.sessions.Save(ctx, sess, e.clock.Now()); err != nil {
		return nil, storeErr(err)
	}
	return &Result{Session: sess}, nil
}

// presentQuestion stores the question at sess.QuizIndex. Items that vanished
// from the catalog are skipped; after the last item the session moves to
// the production step.
func (e *Engine) presentQuestion(ctx context.Context, sess *models.LessonSession) error {
	ids := sess.Plan.PracticeQuizIDs
	for sess.QuizIndex < len(ids) {
		q, err := e.quiz.Question(ctx, sess.Plan.Level, sess.QuizIndex, ids[sess.QuizIndex])
		if errors.Is(err, apperr.ErrNotFound) {
			e.log.Warn("skipping missing quiz item", "user_id", sess.UserID, "item_id", ids[sess.QuizIndex])
			sess.QuizIndex++
			continue
		}
		if err != nil {
			return err
		}
		sess.Question = q
		return nil
	}
	sess.Question = nil
	sess.Step = models.StepProduction
	return nil
}

// AnswerClaimLease is how long an answer claim blocks retries of the same
// question. A claim older than this was left by a crashed process.
const AnswerClaimLease = 30 * time.Second

// Answer scores the option chosen for quiz question index. Replays and
// answers to anything but the current question return apperr.ErrStaleInput.
func (e *Engine) Answer(ctx context.Context, userID int64, index, option int) (*Result, error) {
	sess, err := e.activeSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess.Step != models.StepQuiz || index != sess.QuizIndex {
		return nil, staleErr("answer for question %d, current is %d", index, sess.QuizIndex)
	}
	now := e.clock.Now()
	expiredBefore := now.Add(-AnswerClaimLease)
	if sess.LastAnsweredQuizIndex == index && !sess.UpdatedAt.Before(expiredBefore) {
		return nil, staleErr("question %d already answered", index)
	}

	// The marker is committed before any other write so a concurrent
	// duplicate delivery loses the claim.
	prevMarker := sess.LastAnsweredQuizIndex
	if prevMarker == index {
		prevMarker = index - 1
	}
	claimed, err := e.sessions.ClaimAnswer(ctx, userID, index, now, expiredBefore)
	if err != nil {
		return nil, storeErr(err)
	}
	if !claimed {
		return nil, staleErr("question %d already answered", index)
	}

	res, err := e.applyAnswer(ctx, sess, index, option)
	if err != nil {
		if rerr := e.sessions.ReleaseAnswer(context.WithoutCancel(ctx), userID, index, prevMarker); rerr != nil {
			e.log.Error("failed to release answer claim", "user_id", userID, "quiz_index", index, "error", rerr)
		}
		return nil, err
	}
	e.recordAnswerSideEffects(ctx, res)
	return res, nil
}

// applyAnswer scores the option and stores the advanced session. Nothing
// outside the session row is written until that save succeeds.
func (e *Engine) applyAnswer(ctx context.Context, sess *models.LessonSession, index, option int) (*Result, error) {
	q := sess.Question
	if q == nil || q.Index != index {
		var err error
		if q, err = e.quiz.Question(ctx, sess.Plan.Level, index, sess.Plan.PracticeQuizIDs[index]); err != nil {
			return nil, err
		}
	}

	correct := option == q.CorrectIndex
	sess.LastAnsweredQuizIndex = index
	if correct {
		sess.Results.QuizCorrect++
	}
	sess.Results.QuizTotal++
	sess.QuizIndex = index + 1
	sess.Question = nil
	if err := e.presentQuestion(ctx, sess); err != nil {
		return nil, err
	}
	if err := e.sessions.Save(ctx, sess, e.clock.Now()); err != nil {
		return nil, storeErr(err)
	}
	return &Result{
		Session: sess,
		Answer:  &Answer{Correct: correct, CorrectOption: q.Options[q.CorrectIndex], ItemID: q.ItemID},
	}, nil
}

// recordAnswerSideEffects writes mastery and the mistake ledger. Failures
// only add a warning.
func (e *Engine) recordAnswerSideEffects(ctx context.Context, res *Result) {
	sess := res.Session
	userID := sess.UserID
	itemID := strconv.FormatInt(res.Answer.ItemID, 10)

	if err := e.recordMastery(ctx, userID, itemID, res.Answer.Correct); err != nil {
		e.log.Error("failed to update mastery", "user_id", userID, "item_id", itemID, "error", err)
		res.Warnings = append(res.Warnings, WarnProgressNotSaved)
	}
	if res.Answer.Correct {
		if err := e.mistakes.RecordSuccess(ctx, userID, itemID, models.ModuleQuiz); err != nil {
			e.log.Warn("failed to record success", "user_id", userID, "item_id", itemID, "error", err)
			res.Warnings = appendOnce(res.Warnings, WarnProgressNotSaved)
		}
		return
	}
	tags := models.MistakeTags{TopicID: sess.Plan.GrammarTopicID}
	if err := e.mistakes.RecordMistake(ctx, userID, itemID, models.ModuleQuiz, sess.Plan.Level, tags); err != nil {
		e.log.Warn("failed to record mistake", "user_id", userID, "item_id", itemID, "error", err)
		res.Warnings = appendOnce(res.Warnings, WarnProgressNotSaved)
	}
}

// recordMastery writes the Leitner outcome, retrying once
func (e *Engine) recordMastery(ctx context.Context, userID int64, itemID string, correct bool) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if _, err = e.mastery.RecordOutcome(ctx, userID, itemID, models.ModuleQuiz, correct); err == nil {
			return nil
		}
		e.log.Warn("mastery write failed", "user_id", userID, "item_id", itemID, "attempt", attempt+1, "error", err)
	}
	return err
}

func appendOnce(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// Finish completes the lesson from the summary step and advances the streak.
// Finishing twice on the same day changes nothing.
func (e *Engine) Finish(ctx context.Context, userID int64) (*Result, error) {
	now := e.clock.Now()
	today := now.Format(clock.DateLayout)

	sess, err := e.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.PlanDate != today {
		return nil, staleErr("no lesson today")
	}
	if sess.Status == models.SessionFinished {
		streak, err := e.completions.GetStreak(ctx, userID)
		if err != nil {
			return nil, storeErr(err)
		}
		return &Result{Session: sess, Streak: streak, AlreadyFinished: true}, nil
	}
	if sess.Status != models.SessionInProgress || sess.Step != models.StepSummary {
		return nil, staleErr("lesson is at step %d", sess.Step)
	}

	streak, inserted, err := e.completions.CompleteDay(ctx, userID, today, sess.Results, now, NextStreak)
	if err != nil {
		return nil, storeErr(err)
	}
	sess.Status = models.SessionFinished
	if err := e.sessions.Save(ctx, sess, now); err != nil {
		return nil, storeErr(err)
	}

	if inserted {
		e.log.Info("lesson completed",
			"event", "lesson_completed",
			"user_id", userID,
			"date", today,
			"quiz_correct", sess.Results.QuizCorrect,
			"quiz_total", sess.Results.QuizTotal,
			"streak", streak.CurrentStreak,
		)
	}
	return &Result{Session: sess, Streak: streak, Finished: inserted, AlreadyFinished: !inserted}, nil
}

// Cancel drops the active session and today's cached plan without credit
func (e *Engine) Cancel(ctx context.Context, userID int64) (*Result, error) {
	sess, err := e.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := e.sessions.Delete(ctx, userID); err != nil {
		return nil, storeErr(err)
	}
	today := clock.Today(e.clock)
	if err := e.plans.Delete(ctx, userID, today); err != nil {
		return nil, storeErr(err)
	}
	e.log.Info("lesson cancelled", "event", "lesson_cancelled", "user_id", userID, "had_session", sess != nil)
	return &Result{Session: sess, Cancelled: true}, nil
}
