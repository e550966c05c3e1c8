package evaluation

import (
	"context"
	"errors"
)

// Gate is the single switch consulted before a record is created. It is
// passed explicitly to whoever needs it.
type Gate struct {
	store GateStore
	clock Clock
}

func NewGate(store GateStore, clock Clock) *Gate {
	if clock == nil {
		clock = SystemClock
	}
	return &Gate{store: store, clock: clock}
}

// Init writes the default state unless a persisted state already exists.
func (g *Gate) Init(ctx context.Context, defaultEnabled bool) error {
	return g.store.EnsureGate(ctx, defaultEnabled, stamp(g.clock))
}

func (g *Gate) CanSubmit(ctx context.Context) (bool, error) {
	state, err := g.store.GateState(ctx)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return state.Enabled, nil
}

func (g *Gate) State(ctx context.Context) (GateState, error) {
	state, err := g.store.GateState(ctx)
	if errors.Is(err, ErrNotFound) {
		return GateState{}, nil
	}
	return state, err
}

// SetEnabled stores the new value and returns the one it replaced.
func (g *Gate) SetEnabled(ctx context.Context, actorID string, enabled bool) (bool, error) {
	return g.store.SetGateEnabled(ctx, enabled, actorID, stamp(g.clock))
}

func (g *Gate) Toggle(ctx context.Context, actorID string) (bool, error) {
	return g.store.ToggleGate(ctx, actorID, stamp(g.clock))
}
