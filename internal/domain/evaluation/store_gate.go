package evaluation

import (
	"context"
	"fmt"
	"time"

	"evalhub/internal/platform/querier"
)

func (s *Store) EnsureGate(ctx context.Context, enabled bool, at time.Time) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO evaluation_gate (id, enabled, updated_at)
    VALUES (1, $1, $2)
    ON CONFLICT (id) DO NOTHING
  `, enabled, at)
	if err != nil {
		return fmt.Errorf("ensure gate: %w", err)
	}
	return nil
}

func (s *Store) GateState(ctx context.Context) (GateState, error) {
	return gateState(ctx, s.DB)
}

func (s *Store) SetGateEnabled(ctx context.Context, enabled bool, actorID string, at time.Time) (bool, error) {
	var prior bool
	err := s.DB.InTx(ctx, querier.TxOptions{}, func(q querier.Querier) error {
		state, err := gateState(ctx, q)
		if err != nil {
			return err
		}
		prior = state.Enabled
		return writeGate(ctx, q, enabled, actorID, at)
	})
	return prior, err
}

func (s *Store) ToggleGate(ctx context.Context, actorID string, at time.Time) (bool, error) {
	var prior bool
	err := s.DB.InTx(ctx, querier.TxOptions{}, func(q querier.Querier) error {
		state, err := gateState(ctx, q)
		if err != nil {
			return err
		}
		prior = state.Enabled
		return writeGate(ctx, q, !prior, actorID, at)
	})
	return prior, err
}

func gateState(ctx context.Context, q querier.Querier) (GateState, error) {
	var state GateState
	var updatedBy *string
	err := q.QueryRow(ctx, `
    SELECT enabled, updated_at, updated_by
    FROM evaluation_gate
    WHERE id = 1
  `).Scan(&state.Enabled, &state.UpdatedAt, &updatedBy)
	if querier.IsNoRows(err) {
		return GateState{}, fmt.Errorf("gate: %w", ErrNotFound)
	}
	if err != nil {
		return GateState{}, fmt.Errorf("read gate: %w", err)
	}
	state.UpdatedAt = state.UpdatedAt.UTC()
	if updatedBy != nil {
		state.UpdatedBy = *updatedBy
	}
	return state, nil
}

func writeGate(ctx context.Context, q querier.Querier, enabled bool, actorID string, at time.Time) error {
	if _, err := q.Exec(ctx, `
    UPDATE evaluation_gate
    SET enabled = $1, updated_at = $2, updated_by = $3
    WHERE id = 1
  `, enabled, at, nullIfEmpty(actorID)); err != nil {
		return fmt.Errorf("write gate: %w", err)
	}
	return nil
}
