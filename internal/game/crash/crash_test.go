package crash

import (
	"context"
	"testing"
	"time"

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

// TestSampleCrashPointBounds checks the clamp for arbitrary seeds and
// edges.
func TestSampleCrashPointBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Int64().Draw(t, "seed")
		edge := rapid.Float64Range(0.5, 1).Draw(t, "edge")

		p := SampleCrashPoint(rng.NewSeeded(seed), edge)
		if p < MinCrash || p > MaxCrash {
			t.Fatalf("crash point %v outside [%v, %v]", p, MinCrash, MaxCrash)
		}
	})
}

// TestMultiplierMonotonic checks the live multiplier never decreases as
// elapsed time grows.
func TestMultiplierMonotonic(t *testing.T) {
	start := time.Unix(1000, 0)
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Float64Range(0, 120).Draw(t, "a")
		b := rapid.Float64Range(0, 120).Draw(t, "b")
		if a > b {
			a, b = b, a
		}
		ma := Multiplier(start, start.Add(time.Duration(a*float64(time.Second))))
		mb := Multiplier(start, start.Add(time.Duration(b*float64(time.Second))))
		if ma > mb {
			t.Fatalf("multiplier decreased: %v@%vs > %v@%vs", ma, a, mb, b)
		}
	})
}

func TestMultiplierValues(t *testing.T) {
	start := time.Unix(1000, 0)

	assert.Equal(t, 1.0, Multiplier(start, start))
	assert.Equal(t, 1.0, Multiplier(start, start.Add(-time.Second)), "clock going backwards reads as 1")
	// e^(0.06*10) = 1.8221..., rounded to 1.82.
	assert.Equal(t, 1.82, Multiplier(start, start.Add(10*time.Second)))
}

func TestCashoutPastCrashPointLoses(t *testing.T) {
	e, settler := newTestEngine(1, 1000)
	ctx := context.Background()

	start := time.Unix(1000, 0)
	now := start
	e.SetNow(func() time.Time { return now })

	view, err := e.Start(ctx, 1, 100, nil)
	require.NoError(t, err)
	crashPoint := 0.0

	// Advance far past any possible crash point (e^(0.06*120) >> 100).
	now = start.Add(120 * time.Second)

	view, err = e.Cashout(ctx, 1, view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusLost, view.Status)
	assert.Equal(t, int64(0), view.Payout)
	crashPoint = view.State.(View).CrashPoint
	assert.GreaterOrEqual(t, crashPoint, MinCrash)
	assert.LessOrEqual(t, crashPoint, MaxCrash)

	balance, err := settler.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(900), balance, "a crashed session never pays")

	// The crash multiplier lands in the history ring.
	require.NotEmpty(t, e.History())
	assert.Equal(t, crashPoint, e.History()[0])
}

func TestCashoutBeforeCrashPays(t *testing.T) {
	// Seed chosen so the sampled crash point is comfortably above the
	// live multiplier one second in.
	var seed int64
	for s := int64(1); s < 100; s++ {
		if SampleCrashPoint(rng.NewSeeded(s), 0.97) > 2 {
			seed = s
			break
		}
	}
	require.NotZero(t, seed)

	e, settler := newTestEngine(seed, 1000)
	ctx := context.Background()

	start := time.Unix(1000, 0)
	now := start
	e.SetNow(func() time.Time { return now })

	view, err := e.Start(ctx, 1, 100, nil)
	require.NoError(t, err)

	// One second in: live multiplier e^0.06 = 1.0618... -> 1.06.
	now = start.Add(time.Second)

	view, err = e.Cashout(ctx, 1, view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCashedOut, view.Status)
	assert.Equal(t, 1.06, view.State.(View).Realized)
	assert.Equal(t, int64(106), view.Payout)

	balance, err := settler.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1006), balance)

	// Settled sessions only report their state on a second cashout.
	again, err := e.Cashout(ctx, 1, view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCashedOut, again.Status)
	assert.Equal(t, balance, again.Balance)
}

// TestCashoutRealizesTheSampledMultiplier runs the cashout under a
// clock that jumps between reads: the first sample lands under the
// crash point (e^0.6 -> 1.82), any later one past it (e^1.2 -> 3.32).
// The payout must come from the sample the session was judged against,
// never from a later reading above the crash point.
func TestCashoutRealizesTheSampledMultiplier(t *testing.T) {
	var seed int64
	for s := int64(1); s < 500; s++ {
		p := SampleCrashPoint(rng.NewSeeded(s), 0.97)
		if p > 1.82 && p < 3.32 {
			seed = s
			break
		}
	}
	require.NotZero(t, seed)

	e, settler := newTestEngine(seed, 1000)
	ctx := context.Background()

	start := time.Unix(1000, 0)
	e.SetNow(func() time.Time { return start })

	view, err := e.Start(ctx, 1, 100, nil)
	require.NoError(t, err)

	elapsed := time.Duration(0)
	e.SetNow(func() time.Time {
		elapsed += 10 * time.Second
		return start.Add(elapsed)
	})

	view, err = e.Cashout(ctx, 1, view.SessionID)
	require.NoError(t, err)
	require.Equal(t, model.StatusCashedOut, view.Status)

	state := view.State.(View)
	assert.Equal(t, 1.82, state.Realized)
	assert.Less(t, state.Realized, state.CrashPoint)
	assert.Equal(t, int64(182), view.Payout)

	balance, err := settler.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1082), balance)
}

func TestAutoCashoutSettlesAtThreshold(t *testing.T) {
	var seed int64
	for s := int64(1); s < 100; s++ {
		if SampleCrashPoint(rng.NewSeeded(s), 0.97) > 3 {
			seed = s
			break
		}
	}
	require.NotZero(t, seed)

	e, settler := newTestEngine(seed, 1000)
	ctx := context.Background()

	start := time.Unix(1000, 0)
	now := start
	e.SetNow(func() time.Time { return now })

	view, err := e.Start(ctx, 1, 100, map[string]any{"auto_cashout": 1.5})
	require.NoError(t, err)

	// e^(0.06*7) = 1.5219... -> live 1.52 >= threshold 1.5.
	now = start.Add(7 * time.Second)

	view, err = e.Act(ctx, 1, view.SessionID, "check", nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCashedOut, view.Status)
	assert.Equal(t, 1.5, view.State.(View).Realized, "auto settlement pays exactly the threshold")
	assert.Equal(t, int64(150), view.Payout)

	balance, err := settler.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1050), balance)
}

// TestAutoCashoutAboveCrashPointLoses arms a threshold the curve can
// never reach before crashing.
func TestAutoCashoutAboveCrashPointLoses(t *testing.T) {
	var seed int64
	for s := int64(1); s < 200; s++ {
		p := SampleCrashPoint(rng.NewSeeded(s), 0.97)
		if p < 2 {
			seed = s
			break
		}
	}
	require.NotZero(t, seed)

	e, _ := newTestEngine(seed, 1000)
	ctx := context.Background()

	start := time.Unix(1000, 0)
	now := start
	e.SetNow(func() time.Time { return now })

	view, err := e.Start(ctx, 1, 100, map[string]any{"auto_cashout": 50})
	require.NoError(t, err)

	now = start.Add(120 * time.Second)

	view, err = e.Act(ctx, 1, view.SessionID, "check", nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusLost, view.Status)
	assert.Equal(t, int64(0), view.Payout)
}

func TestStartValidation(t *testing.T) {
	e, _ := newTestEngine(1, 1000)
	ctx := context.Background()

	_, err := e.Start(ctx, 1, 0, nil)
	assert.ErrorIs(t, err, game.ErrInvalidParams)

	_, err = e.Start(ctx, 1, 100, map[string]any{"auto_cashout": 1.0})
	assert.ErrorIs(t, err, game.ErrInvalidParams, "auto cashout below the minimum crash point")

	_, err = e.Start(ctx, 1, 5000, nil)
	assert.ErrorIs(t, err, game.ErrInsufficientBalance)
}

func TestHistoryRingIsBounded(t *testing.T) {
	e, _ := newTestEngine(1, 1_000_000)
	for i := 0; i < historySize+5; i++ {
		e.recordHistory(float64(i))
	}
	hist := e.History()
	require.Len(t, hist, historySize)
	assert.Equal(t, float64(historySize+4), hist[0], "newest first")
}
