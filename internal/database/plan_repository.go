package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/deutschbot/pkg/models"
)

// Plan audit actions
const (
	PlanGenerated = "generated"
	PlanReused    = "reused"
)

// PlanRepository caches daily plans per user and date
type PlanRepository struct {
	db *DB
}

// NewPlanRepository creates a new repository instance
func NewPlanRepository(db *DB) *PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) scanPlan(ctx context.Context, query string, args ...interface{}) (*models.DailyPlan, error) {
	var raw string
	err := r.db.GetContext(ctx, &raw, r.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	var plan models.DailyPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	return &plan, nil
}

// Get returns the cached plan for a date, or nil
func (r *PlanRepository) Get(ctx context.Context, userID int64, date string) (*models.DailyPlan, error) {
	return r.scanPlan(ctx, `SELECT plan_json FROM daily_plans WHERE user_id = ? AND plan_date = ?`, userID, date)
}

// LatestBefore returns the most recent plan strictly before date, or nil
func (r *PlanRepository) LatestBefore(ctx context.Context, userID int64, date string) (*models.DailyPlan, error) {
	return r.scanPlan(ctx, `
		SELECT plan_json FROM daily_plans
		WHERE user_id = ? AND plan_date < ?
		ORDER BY plan_date DESC
		LIMIT 1
	`, userID, date)
}

// Save stores or replaces the plan for a date
func (r *PlanRepository) Save(ctx context.Context, userID int64, date string, plan *models.DailyPlan, now time.Time) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	query := r.db.Rebind(`
		INSERT INTO daily_plans (user_id, plan_date, plan_json, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, plan_date) DO UPDATE SET
			plan_json = excluded.plan_json,
			created_at = excluded.created_at
	`)
	if _, err := r.db.ExecContext(ctx, query, userID, date, string(raw), dbTime(now)); err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

// Delete drops the cached plan for a date
func (r *PlanRepository) Delete(ctx context.Context, userID int64, date string) error {
	query := r.db.Rebind(`DELETE FROM daily_plans WHERE user_id = ? AND plan_date = ?`)
	if _, err := r.db.ExecContext(ctx, query, userID, date); err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	return nil
}

// AppendAudit records whether a plan was generated or reused
func (r *PlanRepository) AppendAudit(ctx context.Context, userID int64, date, action string, now time.Time) error {
	query := r.db.Rebind(`INSERT INTO plan_audit (user_id, plan_date, action, created_at) VALUES (?, ?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, query, userID, date, action, dbTime(now)); err != nil {
		return fmt.Errorf("failed to write plan audit: %w", err)
	}
	return nil
}

// AuditCounts returns action -> count for one user and date
func (r *PlanRepository) AuditCounts(ctx context.Context, userID int64, date string) (map[string]int, error) {
	var rows []struct {
		Action string `db:"action"`
		Count  int    `db:"n"`
	}
	query := r.db.Rebind(`SELECT action, COUNT(*) AS n FROM plan_audit WHERE user_id = ? AND plan_date = ? GROUP BY action`)
	if err := r.db.SelectContext(ctx, &rows, query, userID, date); err != nil {
		return nil, fmt.Errorf("failed to get plan audit: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Action] = row.Count
	}
	return counts, nil
}
