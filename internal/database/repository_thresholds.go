package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JustinHardison/ai-trading-system-sub004/internal/engine"
)

// ThresholdRepository persists adaptive threshold state so learned
// requirements survive restarts
type ThresholdRepository struct {
	db *DB
}

// NewThresholdRepository creates a new ThresholdRepository
func NewThresholdRepository(db *DB) *ThresholdRepository {
	return &ThresholdRepository{db: db}
}

// SaveState upserts the threshold state for one instrument class
func (r *ThresholdRepository) SaveState(ctx context.Context, state engine.ClassState) error {
	outcomes, err := json.Marshal(state.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to marshal outcomes: %w", err)
	}

	query := `
		INSERT INTO threshold_state (instrument_class, min_confidence, outcomes, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (instrument_class)
		DO UPDATE SET min_confidence = $2, outcomes = $3, updated_at = $4`

	_, err = r.db.Pool.Exec(ctx, query,
		string(state.Class), state.MinConfidence, outcomes, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save threshold state: %w", err)
	}
	return nil
}

// SaveSnapshot persists the full controller snapshot
func (r *ThresholdRepository) SaveSnapshot(ctx context.Context, snapshot []engine.ClassState) error {
	for _, state := range snapshot {
		if err := r.SaveState(ctx, state); err != nil {
			return err
		}
	}
	return nil
}

// LoadSnapshot reads all persisted threshold states
func (r *ThresholdRepository) LoadSnapshot(ctx context.Context) ([]engine.ClassState, error) {
	query := `SELECT instrument_class, min_confidence, outcomes, updated_at FROM threshold_state`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query threshold state: %w", err)
	}
	defer rows.Close()

	var snapshot []engine.ClassState
	for rows.Next() {
		var class string
		var outcomesJSON []byte
		var state engine.ClassState

		if err := rows.Scan(&class, &state.MinConfidence, &outcomesJSON, &state.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan threshold state: %w", err)
		}
		if err := json.Unmarshal(outcomesJSON, &state.Outcomes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outcomes for %s: %w", class, err)
		}
		state.Class = engine.InstrumentClass(class)
		snapshot = append(snapshot, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threshold state: %w", err)
	}

	return snapshot, nil
}

// DeleteState removes the persisted record for one instrument class. Called
// on operator reset so a restart does not restore the discarded threshold.
func (r *ThresholdRepository) DeleteState(ctx context.Context, class engine.InstrumentClass) error {
	query := `DELETE FROM threshold_state WHERE instrument_class = $1`

	_, err := r.db.Pool.Exec(ctx, query, string(class))
	if err != nil {
		return fmt.Errorf("failed to delete threshold state: %w", err)
	}
	return nil
}

// RecordOutcome appends a closed trade outcome to the history table
func (r *ThresholdRepository) RecordOutcome(ctx context.Context, class engine.InstrumentClass, outcome engine.Outcome) error {
	query := `
		INSERT INTO trade_outcomes (instrument_class, win, profit_factor, closed_at)
		VALUES ($1, $2, $3, $4)`

	_, err := r.db.Pool.Exec(ctx, query,
		string(class), outcome.Win, outcome.ProfitFactor, outcome.ClosedAt)
	if err != nil {
		return fmt.Errorf("failed to record trade outcome: %w", err)
	}
	return nil
}
