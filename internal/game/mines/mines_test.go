package mines

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"chiphouse/internal/game"
	"chiphouse/internal/model"
	"chiphouse/internal/pkg/lock"
	"chiphouse/internal/rng"
	"chiphouse/internal/session"
	"chiphouse/internal/settlement"
)

func newTestEngine(seed int64, balance int64) (*Engine, *settlement.MemorySettler) {
	settler := settlement.NewMemorySettler()
	settler.AddPlayer(1, balance)
	coord := settlement.NewCoordinator(settler, session.NewMemoryStore())
	e := New(nil, coord, lock.NewKeyedLock(), rng.NewSeeded(seed))
	return e, settler
}

func TestStartDebitsStake(t *testing.T) {
	e, _ := newTestEngine(1, 1000)

	view, err := e.Start(context.Background(), 1, 100, map[string]any{"mines": 3})
	require.NoError(t, err)

	assert.Equal(t, model.StatusActive, view.Status)
	assert.Equal(t, int64(900), view.Balance)
	assert.Equal(t, int64(100), view.Stake)
	assert.True(t, view.Actions["reveal"])
	assert.False(t, view.Actions["cashout"], "cashout requires a safe reveal first")
}

func TestStartValidation(t *testing.T) {
	e, _ := newTestEngine(1, 1000)
	ctx := context.Background()

	tests := []struct {
		name   string
		stake  int64
		params map[string]any
		err    error
	}{
		{"zero stake", 0, map[string]any{"mines": 3}, game.ErrInvalidParams},
		{"stake above max", 20000, map[string]any{"mines": 3}, game.ErrInvalidParams},
		{"missing mine count", 100, map[string]any{}, game.ErrInvalidParams},
		{"zero mines", 100, map[string]any{"mines": 0}, game.ErrInvalidParams},
		{"all cells mined", 100, map[string]any{"mines": 25}, game.ErrInvalidParams},
		{"insufficient balance", 5000, map[string]any{"mines": 3}, game.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Start(ctx, 1, tt.stake, tt.params)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRevealMineLosesSession(t *testing.T) {
	const seed = 7
	e, settler := newTestEngine(seed, 1000)
	ctx := context.Background()

	// The engine samples mines from the same seeded sequence.
	mines := rng.SampleDistinct(rng.NewSeeded(seed), GridSize, 3)

	view, err := e.Start(ctx, 1, 100, map[string]any{"mines": 3})
	require.NoError(t, err)

	view, err = e.Act(ctx, 1, view.SessionID, "reveal", map[string]any{"cell": mines[0]})
	require.NoError(t, err)

	assert.Equal(t, model.StatusLost, view.Status)
	assert.Equal(t, int64(0), view.Payout)
	assert.Equal(t, mines, view.State.(View).Mines, "mines are disclosed on loss")

	// Only the stake ever moved.
	balance, err := settler.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(900), balance)
}

func TestRevealSingleSafeCellWins(t *testing.T) {
	const seed = 11
	e, settler := newTestEngine(seed, 1000)
	ctx := context.Background()

	mines := rng.SampleDistinct(rng.NewSeeded(seed), GridSize, MaxMines)
	mined := make(map[int]bool, len(mines))
	for _, m := range mines {
		mined[m] = true
	}
	safe := -1
	for cell := 0; cell < GridSize; cell++ {
		if !mined[cell] {
			safe = cell
			break
		}
	}
	require.NotEqual(t, -1, safe)

	view, err := e.Start(ctx, 1, 100, map[string]any{"mines": MaxMines})
	require.NoError(t, err)

	view, err = e.Act(ctx, 1, view.SessionID, "reveal", map[string]any{"cell": safe})
	require.NoError(t, err)

	// One safe cell of 25: factor 25/1 * 0.97 = 24.25.
	assert.Equal(t, model.StatusWon, view.Status)
	assert.Equal(t, 24.25, view.State.(View).Multiplier)
	assert.Equal(t, int64(2425), view.Payout)

	balance, err := settler.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000-100+2425), balance)
}

func TestRevealIsIdempotent(t *testing.T) {
	const seed = 3
	e, _ := newTestEngine(seed, 1000)
	ctx := context.Background()

	mines := rng.SampleDistinct(rng.NewSeeded(seed), GridSize, 1)
	safe := 0
	if mines[0] == 0 {
		safe = 1
	}

	view, err := e.Start(ctx, 1, 100, map[string]any{"mines": 1})
	require.NoError(t, err)

	first, err := e.Act(ctx, 1, view.SessionID, "reveal", map[string]any{"cell": safe})
	require.NoError(t, err)
	second, err := e.Act(ctx, 1, view.SessionID, "reveal", map[string]any{"cell": safe})
	require.NoError(t, err)

	assert.Equal(t, first.State.(View).Multiplier, second.State.(View).Multiplier)
	assert.Equal(t, first.State.(View).Revealed, second.State.(View).Revealed)
	assert.Equal(t, first.Balance, second.Balance)
}

func TestCashoutRequiresReveal(t *testing.T) {
	e, _ := newTestEngine(5, 1000)
	ctx := context.Background()

	view, err := e.Start(ctx, 1, 100, map[string]any{"mines": 3})
	require.NoError(t, err)

	_, err = e.Cashout(ctx, 1, view.SessionID)
	assert.ErrorIs(t, err, game.ErrNothingToCashOut)
}

func TestCashoutCreditsPotentialPayout(t *testing.T) {
	const seed = 13
	e, settler := newTestEngine(seed, 1000)
	ctx := context.Background()

	mines := rng.SampleDistinct(rng.NewSeeded(seed), GridSize, 1)
	safe := 0
	if mines[0] == 0 {
		safe = 1
	}

	view, err := e.Start(ctx, 1, 100, map[string]any{"mines": 1})
	require.NoError(t, err)
	view, err = e.Act(ctx, 1, view.SessionID, "reveal", map[string]any{"cell": safe})
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, view.Status)
	payout := view.Payout

	view, err = e.Cashout(ctx, 1, view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCashedOut, view.Status)
	assert.Equal(t, payout, view.Payout)

	balance, err := settler.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1000-100+payout, balance)

	// Terminal sessions reject further actions.
	_, err = e.Act(ctx, 1, view.SessionID, "reveal", map[string]any{"cell": safe})
	assert.ErrorIs(t, err, game.ErrSessionNotActive)
	_, err = e.Cashout(ctx, 1, view.SessionID)
	assert.ErrorIs(t, err, game.ErrSessionNotActive)
}

func TestForeignSessionIsHidden(t *testing.T) {
	e, settler := newTestEngine(1, 1000)
	settler.AddPlayer(2, 1000)
	ctx := context.Background()

	view, err := e.Start(ctx, 1, 100, map[string]any{"mines": 3})
	require.NoError(t, err)

	_, err = e.Act(ctx, 2, view.SessionID, "reveal", map[string]any{"cell": 0})
	assert.ErrorIs(t, err, game.ErrSessionNotFound)
	_, err = e.Cashout(ctx, 2, view.SessionID)
	assert.ErrorIs(t, err, game.ErrSessionNotFound)
}

// TestMultiplierMonotonicWhileActive reveals safe cells in order and
// checks the running multiplier never decreases.
func TestMultiplierMonotonicWhileActive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Int64().Draw(t, "seed")
		mineCount := rapid.IntRange(1, 24).Draw(t, "mineCount")

		e, _ := newTestEngine(seed, 1_000_000)
		ctx := context.Background()

		mines := rng.SampleDistinct(rng.NewSeeded(seed), GridSize, mineCount)
		mined := make(map[int]bool, len(mines))
		for _, m := range mines {
			mined[m] = true
		}

		view, err := e.Start(ctx, 1, 100, map[string]any{"mines": mineCount})
		if err != nil {
			t.Fatalf("start: %v", err)
		}

		last := 1.0
		for cell := 0; cell < GridSize; cell++ {
			if mined[cell] {
				continue
			}
			view, err = e.Act(ctx, 1, view.SessionID, "reveal", map[string]any{"cell": cell})
			if err != nil {
				t.Fatalf("reveal %d: %v", cell, err)
			}
			m := view.State.(View).Multiplier
			if m < last {
				t.Fatalf("multiplier decreased: %v -> %v", last, m)
			}
			last = m
		}

		// Revealing every safe cell always wins.
		if view.Status != model.StatusWon {
			t.Fatalf("expected WON after clearing grid, got %s", view.Status)
		}
	})
}
