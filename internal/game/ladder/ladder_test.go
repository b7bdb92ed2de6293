package ladder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chiphouse/internal/game"
	"chiphouse/internal/model"
	"chiphouse/internal/pkg/lock"
	"chiphouse/internal/session"
	"chiphouse/internal/settlement"
)

// fixedSource always returns the same float, forcing every Bernoulli
// trial one way.
type fixedSource struct {
	f float64
}

func (s fixedSource) Intn(n int) int   { return 0 }
func (s fixedSource) Float64() float64 { return s.f }

func newTestEngine(f float64, balance int64) (*Engine, *settlement.MemorySettler) {
	settler := settlement.NewMemorySettler()
	settler.AddPlayer(1, balance)
	coord := settlement.NewCoordinator(settler, session.NewMemoryStore())
	e := New(nil, coord, lock.NewKeyedLock(), fixedSource{f: f})
	return e, settler
}

func TestDefaultStepsAreMonotonic(t *testing.T) {
	steps := DefaultSteps()
	require.Len(t, steps, 10)
	for i := 1; i < len(steps); i++ {
		assert.Greater(t, steps[i].BreakProb, steps[i-1].BreakProb)
		assert.Greater(t, steps[i].Multiplier, steps[i-1].Multiplier)
	}
}

func TestCashoutBeforeAnyClimbRejected(t *testing.T) {
	e, _ := newTestEngine(0.99, 1000)
	ctx := context.Background()

	view, err := e.Start(ctx, 1, 100, nil)
	require.NoError(t, err)
	require.Equal(t, int64(900), view.Balance)

	_, err = e.Cashout(ctx, 1, view.SessionID)
	assert.ErrorIs(t, err, game.ErrNothingToCashOut)
}

func TestClimbToTopWins(t *testing.T) {
	// 0.99 is above every break probability, so every climb succeeds.
	e, settler := newTestEngine(0.99, 1000)
	ctx := context.Background()

	view, err := e.Start(ctx, 1, 100, nil)
	require.NoError(t, err)

	for i := 0; i < len(DefaultSteps()); i++ {
		view, err = e.Act(ctx, 1, view.SessionID, "climb", nil)
		require.NoError(t, err)
	}

	assert.Equal(t, model.StatusWon, view.Status)
	assert.Equal(t, 25.0, view.State.(View).Multiplier)
	assert.Equal(t, int64(2500), view.Payout)

	balance, err := settler.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000-100+2500), balance)

	_, err = e.Act(ctx, 1, view.SessionID, "climb", nil)
	assert.ErrorIs(t, err, game.ErrSessionNotActive)
}

// TestShortenedStepTableSettlesAsWon replays an active session against
// an engine configured with fewer rungs than the session had climbed,
// as happens when the operator shrinks the step table across a restart.
func TestShortenedStepTableSettlesAsWon(t *testing.T) {
	settler := settlement.NewMemorySettler()
	settler.AddPlayer(1, 1000)
	coord := settlement.NewCoordinator(settler, session.NewMemoryStore())
	ctx := context.Background()

	e := New(nil, coord, lock.NewKeyedLock(), fixedSource{f: 0.99})
	view, err := e.Start(ctx, 1, 100, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		view, err = e.Act(ctx, 1, view.SessionID, "climb", nil)
		require.NoError(t, err)
	}
	require.Equal(t, model.StatusActive, view.Status)
	require.Equal(t, 2.0, view.State.(View).Multiplier)

	short := New(&Config{Steps: []Step{
		{BreakProb: 0.10, Multiplier: 1.2},
		{BreakProb: 0.15, Multiplier: 1.5},
	}}, coord, lock.NewKeyedLock(), fixedSource{f: 0.99})

	view, err = short.Act(ctx, 1, view.SessionID, "climb", nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWon, view.Status)
	assert.Equal(t, int64(200), view.Payout, "payout uses the multiplier the session locked in")

	balance, err := settler.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1100), balance)

	_, err = short.Act(ctx, 1, view.SessionID, "climb", nil)
	assert.ErrorIs(t, err, game.ErrSessionNotActive)
}

func TestFirstClimbBreakLosesStake(t *testing.T) {
	// 0.0 is below every break probability, so the first climb breaks.
	e, settler := newTestEngine(0.0, 1000)
	ctx := context.Background()

	view, err := e.Start(ctx, 1, 100, nil)
	require.NoError(t, err)

	view, err = e.Act(ctx, 1, view.SessionID, "climb", nil)
	require.NoError(t, err)

	assert.Equal(t, model.StatusLost, view.Status)
	assert.Equal(t, 0, view.State.(View).BreakStep)
	assert.Equal(t, 0.0, view.State.(View).Multiplier)
	assert.Equal(t, int64(0), view.Payout)

	balance, err := settler.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(900), balance)
}

func TestCashoutAfterClimbsPaysTableMultiplier(t *testing.T) {
	e, settler := newTestEngine(0.99, 1000)
	ctx := context.Background()

	view, err := e.Start(ctx, 1, 100, nil)
	require.NoError(t, err)

	// Three successful climbs land on the third rung: multiplier 2.0.
	for i := 0; i < 3; i++ {
		view, err = e.Act(ctx, 1, view.SessionID, "climb", nil)
		require.NoError(t, err)
	}
	require.Equal(t, model.StatusActive, view.Status)
	require.Equal(t, 2.0, view.State.(View).Multiplier)

	view, err = e.Cashout(ctx, 1, view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCashedOut, view.Status)
	assert.Equal(t, int64(200), view.Payout)

	balance, err := settler.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000-100+200), balance)
}

func TestUnknownActionRejected(t *testing.T) {
	e, _ := newTestEngine(0.99, 1000)
	ctx := context.Background()

	view, err := e.Start(ctx, 1, 100, nil)
	require.NoError(t, err)

	_, err = e.Act(ctx, 1, view.SessionID, "jump", nil)
	assert.ErrorIs(t, err, game.ErrActionNotAllowed)
}

func TestConfigStepTableOverride(t *testing.T) {
	settler := settlement.NewMemorySettler()
	settler.AddPlayer(1, 1000)
	coord := settlement.NewCoordinator(settler, session.NewMemoryStore())

	steps := []Step{
		{BreakProb: 0.5, Multiplier: 1.8},
		{BreakProb: 0.6, Multiplier: 3.2},
	}
	e := New(&Config{Steps: steps}, coord, lock.NewKeyedLock(), fixedSource{f: 0.99})
	ctx := context.Background()

	view, err := e.Start(ctx, 1, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, view.State.(View).Steps)

	view, err = e.Act(ctx, 1, view.SessionID, "climb", nil)
	require.NoError(t, err)
	view, err = e.Act(ctx, 1, view.SessionID, "climb", nil)
	require.NoError(t, err)

	assert.Equal(t, model.StatusWon, view.Status)
	assert.Equal(t, int64(320), view.Payout)
}

func TestInvalidStepTableFallsBack(t *testing.T) {
	settler := settlement.NewMemorySettler()
	settler.AddPlayer(1, 1000)
	coord := settlement.NewCoordinator(settler, session.NewMemoryStore())

	e := New(&Config{Steps: []Step{{BreakProb: 1.5, Multiplier: -1}}}, coord, lock.NewKeyedLock(), fixedSource{f: 0.99})

	view, err := e.Start(context.Background(), 1, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultSteps()), view.State.(View).Steps)
}
