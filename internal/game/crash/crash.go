// Package crash implements the growth-curve session engine. No timer
// advances the multiplier: it is a pure function of the recorded start
// instant and the wall clock, re-evaluated on every call.
package crash

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chiphouse/internal/game"
	"chiphouse/internal/model"
	"chiphouse/internal/pkg/lock"
	"chiphouse/internal/rng"
	"chiphouse/internal/session"
	"chiphouse/internal/settlement"
)

const (
	// growthRate is the exponent coefficient of the live multiplier.
	growthRate = 0.06

	// MinCrash and MaxCrash clamp the sampled crash point.
	MinCrash = 1.01
	MaxCrash = 100.0

	// historySize is how many settled multipliers are retained for display.
	historySize = 12

	actionCheck   = "check"
	actionCashout = "cashout"
)

// Config holds crash engine configuration.
type Config struct {
	MinStake int64
	MaxStake int64
	// Edge is the house-edge numerator of the crash-point distribution.
	Edge float64
}

// Engine is the growth-curve session engine.
type Engine struct {
	coord    *settlement.Coordinator
	locks    *lock.KeyedLock
	src      rng.Source
	now      func() time.Time
	minStake int64
	maxStake int64
	edge     float64

	histMu  sync.Mutex
	history []float64
}

// state is the game-specific session payload. The crash point is
// sampled once at start and never re-rolled.
type state struct {
	StartedAt   time.Time `json:"started_at"`
	CrashPoint  float64   `json:"crash_point"`
	AutoCashout float64   `json:"auto_cashout,omitempty"`
	Realized    float64   `json:"realized,omitempty"`
}

// View is the game-specific progress state returned to callers. The
// crash point is disclosed only once the session is terminal.
type View struct {
	Multiplier  float64 `json:"multiplier"`
	AutoCashout float64 `json:"auto_cashout,omitempty"`
	Realized    float64 `json:"realized,omitempty"`
	CrashPoint  float64 `json:"crash_point,omitempty"`
	ElapsedSecs float64 `json:"elapsed_seconds"`
}

// New creates a crash engine.
func New(cfg *Config, coord *settlement.Coordinator, locks *lock.KeyedLock, src rng.Source) *Engine {
	minStake, maxStake, edge := int64(1), int64(10000), 0.97
	if cfg != nil {
		if cfg.MinStake > 0 {
			minStake = cfg.MinStake
		}
		if cfg.MaxStake > 0 {
			maxStake = cfg.MaxStake
		}
		if cfg.Edge > 0 {
			edge = cfg.Edge
		}
	}
	return &Engine{
		coord:    coord,
		locks:    locks,
		src:      src,
		now:      time.Now,
		minStake: minStake,
		maxStake: maxStake,
		edge:     edge,
	}
}

// Game returns the game tag.
func (e *Engine) Game() string {
	return model.GameCrash
}

// SetNow overrides the clock, for tests.
func (e *Engine) SetNow(now func() time.Time) {
	e.now = now
}

// Multiplier returns the live multiplier for a session started at start,
// observed at now: max(1, e^(rate*elapsed)) rounded to 2 decimals. It is
// monotonically non-decreasing in elapsed time.
func Multiplier(start, now time.Time) float64 {
	elapsed := now.Sub(start).Seconds()
	if elapsed <= 0 {
		return 1
	}
	return game.Round2(math.Max(1, math.Exp(growthRate*elapsed)))
}

// SampleCrashPoint draws a crash point by inverse-transform sampling:
// edge/(1-u) clamped to [MinCrash, MaxCrash], rounded to 2 decimals.
func SampleCrashPoint(src rng.Source, edge float64) float64 {
	u := src.Float64()
	raw := edge / math.Max(1-u, 1e-9)
	if raw < MinCrash {
		raw = MinCrash
	}
	if raw > MaxCrash {
		raw = MaxCrash
	}
	return game.Round2(raw)
}

// Start debits the stake, samples the crash point and records the start
// instant. An optional auto_cashout parameter arms an automatic
// settlement threshold.
func (e *Engine) Start(ctx context.Context, playerID, stake int64, params map[string]any) (*game.SessionView, error) {
	if stake < e.minStake || stake > e.maxStake {
		return nil, fmt.Errorf("%w: stake must be between %d and %d", game.ErrInvalidParams, e.minStake, e.maxStake)
	}

	auto := 0.0
	if v, ok := game.FloatParam(params, "auto_cashout"); ok {
		if v < MinCrash {
			return nil, fmt.Errorf("%w: auto_cashout must be at least %.2f", game.ErrInvalidParams, MinCrash)
		}
		auto = game.Round2(v)
	}

	st := state{
		StartedAt:   e.now(),
		CrashPoint:  SampleCrashPoint(e.src, e.edge),
		AutoCashout: auto,
	}

	rec := &session.Record{
		ID:        uuid.NewString(),
		PlayerID:  playerID,
		Game:      e.Game(),
		Status:    model.StatusActive,
		Stake:     stake,
		CreatedAt: st.StartedAt,
		UpdatedAt: st.StartedAt,
	}
	if err := rec.EncodePayload(&st); err != nil {
		return nil, fmt.Errorf("crash: encode state: %w", err)
	}

	balance, err := e.coord.Settle(ctx, playerID, stake, 0, e.Game(), rec)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", rec.ID).
		Int64("player_id", playerID).
		Int64("stake", stake).
		Float64("auto_cashout", auto).
		Msg("Crash session started")

	return e.view(rec, &st, balance), nil
}

// Act supports the state-check action, which re-evaluates the session
// against the wall clock and settles it if the crash point or the
// auto-cashout threshold has been passed.
func (e *Engine) Act(ctx context.Context, playerID int64, sessionID, action string, params map[string]any) (*game.SessionView, error) {
	if action != actionCheck {
		return nil, fmt.Errorf("%w: unknown action %q", game.ErrActionNotAllowed, action)
	}

	var view *game.SessionView
	err := e.locks.WithLockContext(ctx, sessionID, game.LockWait, func() error {
		rec, st, err := e.load(ctx, playerID, sessionID)
		if err != nil {
			return err
		}
		balance, _, err := e.evaluate(ctx, rec, st, playerID)
		if err != nil {
			return err
		}
		view = e.view(rec, st, balance)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Cashout settles an active session at the live multiplier the
// evaluation sampled. If the re-evaluation finds the session already
// resolved (crashed, or auto-settled at its threshold), the call
// reports the resolved state instead of paying out.
func (e *Engine) Cashout(ctx context.Context, playerID int64, sessionID string) (*game.SessionView, error) {
	var view *game.SessionView
	err := e.locks.WithLockContext(ctx, sessionID, game.LockWait, func() error {
		rec, st, err := e.load(ctx, playerID, sessionID)
		if err != nil {
			return err
		}

		balance, live, err := e.evaluate(ctx, rec, st, playerID)
		if err != nil {
			return err
		}
		if rec.Status.Terminal() {
			view = e.view(rec, st, balance)
			return nil
		}
		if live >= st.CrashPoint {
			return fmt.Errorf("crash: live multiplier %.2f at crash point %.2f left unsettled", live, st.CrashPoint)
		}

		st.Realized = live
		rec.Status = model.StatusCashedOut
		rec.UpdatedAt = e.now()
		if err := rec.EncodePayload(st); err != nil {
			return fmt.Errorf("crash: encode state: %w", err)
		}

		payout := game.Payout(rec.Stake, live)
		balance, err = e.coord.Settle(ctx, playerID, 0, payout, e.Game(), rec)
		if err != nil {
			return err
		}
		e.recordHistory(live)

		log.Info().
			Str("session_id", rec.ID).
			Int64("player_id", playerID).
			Float64("multiplier", live).
			Int64("payout", payout).
			Msg("Crash session cashed out")

		view = e.view(rec, st, balance)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// History returns the most recently settled multipliers, newest first.
func (e *Engine) History() []float64 {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	out := make([]float64, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) load(ctx context.Context, playerID int64, sessionID string) (*session.Record, *state, error) {
	rec, err := game.LoadOwned(ctx, e.coord.Sessions(), playerID, sessionID, e.Game())
	if err != nil {
		return nil, nil, err
	}
	var st state
	if err := rec.DecodePayload(&st); err != nil {
		return nil, nil, fmt.Errorf("crash: decode state: %w", err)
	}
	return rec, &st, nil
}

// evaluate applies the lazy settlement rules and returns the player's
// balance after any automatic settlement, along with the live multiplier
// the decision was made against. Callers that settle the session
// afterwards must use that multiplier: sampling the clock again could
// land past the crash point the session was just judged to be under.
// An armed auto-cashout below the crash point settles as a win at
// exactly the threshold; otherwise reaching the crash point loses the
// stake.
func (e *Engine) evaluate(ctx context.Context, rec *session.Record, st *state, playerID int64) (int64, float64, error) {
	if rec.Status.Terminal() {
		balance, err := e.coord.Balance(ctx, playerID)
		return balance, st.Realized, err
	}

	live := Multiplier(st.StartedAt, e.now())

	if st.AutoCashout > 0 && st.AutoCashout < st.CrashPoint && live >= st.AutoCashout {
		st.Realized = st.AutoCashout
		rec.Status = model.StatusCashedOut
		rec.UpdatedAt = e.now()
		if err := rec.EncodePayload(st); err != nil {
			return 0, live, fmt.Errorf("crash: encode state: %w", err)
		}
		payout := game.Payout(rec.Stake, st.AutoCashout)
		balance, err := e.coord.Settle(ctx, playerID, 0, payout, e.Game(), rec)
		if err != nil {
			return 0, live, err
		}
		e.recordHistory(st.AutoCashout)

		log.Info().
			Str("session_id", rec.ID).
			Int64("player_id", playerID).
			Float64("multiplier", st.AutoCashout).
			Int64("payout", payout).
			Msg("Crash session auto-cashed out")

		return balance, live, nil
	}

	if live >= st.CrashPoint {
		rec.Status = model.StatusLost
		rec.UpdatedAt = e.now()
		if err := rec.EncodePayload(st); err != nil {
			return 0, live, fmt.Errorf("crash: encode state: %w", err)
		}
		if err := e.coord.PersistSession(ctx, rec); err != nil {
			return 0, live, err
		}
		e.recordHistory(st.CrashPoint)

		log.Info().
			Str("session_id", rec.ID).
			Int64("player_id", playerID).
			Float64("crash_point", st.CrashPoint).
			Msg("Crash session crashed")
	}

	balance, err := e.coord.Balance(ctx, playerID)
	return balance, live, err
}

func (e *Engine) recordHistory(multiplier float64) {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	e.history = append([]float64{multiplier}, e.history...)
	if len(e.history) > historySize {
		e.history = e.history[:historySize]
	}
}

func (e *Engine) view(rec *session.Record, st *state, balance int64) *game.SessionView {
	v := View{
		AutoCashout: st.AutoCashout,
		Realized:    st.Realized,
		ElapsedSecs: e.now().Sub(st.StartedAt).Seconds(),
	}

	payout := int64(0)
	switch rec.Status {
	case model.StatusActive:
		v.Multiplier = Multiplier(st.StartedAt, e.now())
		payout = game.Payout(rec.Stake, v.Multiplier)
	case model.StatusCashedOut:
		v.Multiplier = st.Realized
		v.CrashPoint = st.CrashPoint
		payout = game.Payout(rec.Stake, st.Realized)
	default:
		v.Multiplier = st.CrashPoint
		v.CrashPoint = st.CrashPoint
	}

	active := rec.Status == model.StatusActive
	return &game.SessionView{
		SessionID: rec.ID,
		Game:      rec.Game,
		Status:    rec.Status,
		Stake:     rec.Stake,
		Payout:    payout,
		Balance:   balance,
		Actions: map[string]bool{
			actionCheck:   active,
			actionCashout: active,
		},
		State: v,
	}
}
