package database

import (
	"context"
	"fmt"
	"time"

	"github.com/JustinHardison/ai-trading-system-sub004/internal/engine"
)

// DecisionRepository journals finalized decisions for offline review
type DecisionRepository struct {
	db *DB
}

// NewDecisionRepository creates a new DecisionRepository
func NewDecisionRepository(db *DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// SaveDecision inserts one finalized decision
func (r *DecisionRepository) SaveDecision(ctx context.Context, d *engine.Decision) error {
	query := `
		INSERT INTO decisions (
			id, instrument, action, size_multiplier, add_size, remove_fraction,
			quality_score, confidence, threshold, reason, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Pool.Exec(ctx, query,
		d.ID, d.Instrument, string(d.Action), d.SizeMultiplier, d.AddSize,
		d.RemoveFraction, d.QualityScore, d.Confidence, d.Threshold,
		d.Reason, d.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}
	return nil
}

// GetRecentDecisions returns the most recent decisions, newest first
func (r *DecisionRepository) GetRecentDecisions(ctx context.Context, limit int) ([]*engine.Decision, error) {
	query := `
		SELECT id, instrument, action, size_multiplier, add_size, remove_fraction,
			quality_score, confidence, threshold, reason, decided_at
		FROM decisions
		ORDER BY decided_at DESC
		LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// GetDecisionsByInstrument returns decisions for one instrument in a time range
func (r *DecisionRepository) GetDecisionsByInstrument(ctx context.Context, instrument string, since time.Time) ([]*engine.Decision, error) {
	query := `
		SELECT id, instrument, action, size_multiplier, add_size, remove_fraction,
			quality_score, confidence, threshold, reason, decided_at
		FROM decisions
		WHERE instrument = $1 AND decided_at >= $2
		ORDER BY decided_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, instrument, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions for %s: %w", instrument, err)
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// ActionStats summarizes decision counts by action for analysis tooling
type ActionStats struct {
	Action        string  `json:"action"`
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgQuality    float64 `json:"avg_quality"`
}

// GetActionStats aggregates decisions by action since a cutoff
func (r *DecisionRepository) GetActionStats(ctx context.Context, since time.Time) ([]ActionStats, error) {
	query := `
		SELECT action, COUNT(*),
			COALESCE(AVG(confidence), 0), COALESCE(AVG(quality_score), 0)
		FROM decisions
		WHERE decided_at >= $1
		GROUP BY action
		ORDER BY COUNT(*) DESC`

	rows, err := r.db.Pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query action stats: %w", err)
	}
	defer rows.Close()

	var stats []ActionStats
	for rows.Next() {
		var s ActionStats
		if err := rows.Scan(&s.Action, &s.Count, &s.AvgConfidence, &s.AvgQuality); err != nil {
			return nil, fmt.Errorf("failed to scan action stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating action stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanDecisions(rows rowScanner) ([]*engine.Decision, error) {
	var decisions []*engine.Decision
	for rows.Next() {
		d := &engine.Decision{}
		var action string
		if err := rows.Scan(&d.ID, &d.Instrument, &action, &d.SizeMultiplier,
			&d.AddSize, &d.RemoveFraction, &d.QualityScore, &d.Confidence,
			&d.Threshold, &d.Reason, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.Action = engine.Action(action)
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decisions: %w", err)
	}
	return decisions, nil
}
