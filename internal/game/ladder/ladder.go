// Package ladder implements the step-ladder session engine: a fixed
// table of steps with rising break probability and reward, climbed one
// Bernoulli trial at a time.
package ladder

import (
	"context"
	"fmt"
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
	actionClimb   = "climb"
	actionCashout = "cashout"
)

// Step is one rung of the ladder: the probability of breaking when
// attempting it and the multiplier awarded for standing on it.
type Step struct {
	BreakProb  float64 `mapstructure:"break_prob" json:"break_prob"`
	Multiplier float64 `mapstructure:"multiplier" json:"multiplier"`
}

// DefaultSteps is the standard 10-rung table. Risk and reward both rise
// monotonically.
func DefaultSteps() []Step {
	return []Step{
		{BreakProb: 0.10, Multiplier: 1.2},
		{BreakProb: 0.15, Multiplier: 1.5},
		{BreakProb: 0.20, Multiplier: 2.0},
		{BreakProb: 0.25, Multiplier: 2.8},
		{BreakProb: 0.30, Multiplier: 4.0},
		{BreakProb: 0.35, Multiplier: 6.0},
		{BreakProb: 0.40, Multiplier: 9.0},
		{BreakProb: 0.45, Multiplier: 13.5},
		{BreakProb: 0.50, Multiplier: 19.0},
		{BreakProb: 0.55, Multiplier: 25.0},
	}
}

// Config holds ladder engine configuration.
type Config struct {
	MinStake int64
	MaxStake int64
	Steps    []Step
}

// Engine is the step-ladder session engine.
type Engine struct {
	coord    *settlement.Coordinator
	locks    *lock.KeyedLock
	src      rng.Source
	minStake int64
	maxStake int64
	steps    []Step
}

// state is the game-specific session payload. Step counts from zero:
// Step is how many rungs have been climbed so far.
type state struct {
	Steps      int     `json:"steps"`
	Step       int     `json:"step"`
	BreakStep  int     `json:"break_step"`
	Multiplier float64 `json:"multiplier"`
}

// View is the game-specific progress state returned to callers.
type View struct {
	Steps      int     `json:"steps"`
	Step       int     `json:"step"`
	BreakStep  int     `json:"break_step"`
	Multiplier float64 `json:"multiplier"`
	NextBreak  float64 `json:"next_break_prob,omitempty"`
	NextReward float64 `json:"next_multiplier,omitempty"`
}

// New creates a ladder engine. An invalid or empty step table falls back
// to DefaultSteps.
func New(cfg *Config, coord *settlement.Coordinator, locks *lock.KeyedLock, src rng.Source) *Engine {
	minStake, maxStake := int64(1), int64(10000)
	steps := DefaultSteps()
	if cfg != nil {
		if cfg.MinStake > 0 {
			minStake = cfg.MinStake
		}
		if cfg.MaxStake > 0 {
			maxStake = cfg.MaxStake
		}
		if validSteps(cfg.Steps) {
			steps = cfg.Steps
		}
	}
	return &Engine{
		coord:    coord,
		locks:    locks,
		src:      src,
		minStake: minStake,
		maxStake: maxStake,
		steps:    steps,
	}
}

func validSteps(steps []Step) bool {
	if len(steps) == 0 {
		return false
	}
	for _, s := range steps {
		if s.BreakProb <= 0 || s.BreakProb >= 1 || s.Multiplier <= 0 {
			return false
		}
	}
	return true
}

// Game returns the game tag.
func (e *Engine) Game() string {
	return model.GameLadder
}

// Start debits the stake and creates a session at the bottom of the
// ladder.
func (e *Engine) Start(ctx context.Context, playerID, stake int64, params map[string]any) (*game.SessionView, error) {
	if stake < e.minStake || stake > e.maxStake {
		return nil, fmt.Errorf("%w: stake must be between %d and %d", game.ErrInvalidParams, e.minStake, e.maxStake)
	}

	st := state{
		Steps:      len(e.steps),
		Step:       0,
		BreakStep:  -1,
		Multiplier: 1,
	}

	now := time.Now()
	rec := &session.Record{
		ID:        uuid.NewString(),
		PlayerID:  playerID,
		Game:      e.Game(),
		Status:    model.StatusActive,
		Stake:     stake,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := rec.EncodePayload(&st); err != nil {
		return nil, fmt.Errorf("ladder: encode state: %w", err)
	}

	balance, err := e.coord.Settle(ctx, playerID, stake, 0, e.Game(), rec)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", rec.ID).
		Int64("player_id", playerID).
		Int64("stake", stake).
		Msg("Ladder session started")

	return e.view(rec, &st, balance), nil
}

// Act handles the climb action: one Bernoulli trial against the next
// step's break probability.
func (e *Engine) Act(ctx context.Context, playerID int64, sessionID, action string, params map[string]any) (*game.SessionView, error) {
	if action != actionClimb {
		return nil, fmt.Errorf("%w: unknown action %q", game.ErrActionNotAllowed, action)
	}

	var view *game.SessionView
	err := e.locks.WithLockContext(ctx, sessionID, game.LockWait, func() error {
		rec, err := game.LoadOwned(ctx, e.coord.Sessions(), playerID, sessionID, e.Game())
		if err != nil {
			return err
		}
		if rec.Status.Terminal() {
			return game.ErrSessionNotActive
		}

		var st state
		if err := rec.DecodePayload(&st); err != nil {
			return fmt.Errorf("ladder: decode state: %w", err)
		}

		if st.Step >= len(e.steps) {
			// The configured table is shorter than it was when this
			// session was persisted, so the session already stands at
			// or past the new top. Settle it as won at the multiplier
			// it locked in.
			payout := game.Payout(rec.Stake, st.Multiplier)
			rec.Status = model.StatusWon
			rec.UpdatedAt = time.Now()
			if err := rec.EncodePayload(&st); err != nil {
				return fmt.Errorf("ladder: encode state: %w", err)
			}
			balance, err := e.coord.Settle(ctx, playerID, 0, payout, e.Game(), rec)
			if err != nil {
				return err
			}

			log.Info().
				Str("session_id", rec.ID).
				Int64("player_id", playerID).
				Int("step", st.Step).
				Int64("payout", payout).
				Msg("Ladder session settled above shortened step table")

			view = e.view(rec, &st, balance)
			return nil
		}

		step := e.steps[st.Step]
		if e.src.Float64() < step.BreakProb {
			// Broke: stake is lost, record where.
			st.BreakStep = st.Step
			st.Multiplier = 0
			rec.Status = model.StatusLost
			rec.UpdatedAt = time.Now()
			if err := rec.EncodePayload(&st); err != nil {
				return fmt.Errorf("ladder: encode state: %w", err)
			}
			if err := e.coord.PersistSession(ctx, rec); err != nil {
				return err
			}
			balance, err := e.coord.Balance(ctx, playerID)
			if err != nil {
				return err
			}

			log.Info().
				Str("session_id", rec.ID).
				Int64("player_id", playerID).
				Int("break_step", st.BreakStep).
				Msg("Ladder session broke")

			view = e.view(rec, &st, balance)
			return nil
		}

		st.Step++
		st.Multiplier = step.Multiplier

		if st.Step == st.Steps {
			// Top of the ladder: auto-settle as won.
			payout := game.Payout(rec.Stake, st.Multiplier)
			rec.Status = model.StatusWon
			rec.UpdatedAt = time.Now()
			if err := rec.EncodePayload(&st); err != nil {
				return fmt.Errorf("ladder: encode state: %w", err)
			}
			balance, err := e.coord.Settle(ctx, playerID, 0, payout, e.Game(), rec)
			if err != nil {
				return err
			}

			log.Info().
				Str("session_id", rec.ID).
				Int64("player_id", playerID).
				Int64("payout", payout).
				Msg("Ladder session reached the top")

			view = e.view(rec, &st, balance)
			return nil
		}

		rec.UpdatedAt = time.Now()
		if err := rec.EncodePayload(&st); err != nil {
			return fmt.Errorf("ladder: encode state: %w", err)
		}
		if err := e.coord.PersistSession(ctx, rec); err != nil {
			return err
		}
		balance, err := e.coord.Balance(ctx, playerID)
		if err != nil {
			return err
		}
		view = e.view(rec, &st, balance)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Cashout credits the current potential payout. It requires at least one
// successful climb.
func (e *Engine) Cashout(ctx context.Context, playerID int64, sessionID string) (*game.SessionView, error) {
	var view *game.SessionView
	err := e.locks.WithLockContext(ctx, sessionID, game.LockWait, func() error {
		rec, err := game.LoadOwned(ctx, e.coord.Sessions(), playerID, sessionID, e.Game())
		if err != nil {
			return err
		}
		if rec.Status.Terminal() {
			return game.ErrSessionNotActive
		}

		var st state
		if err := rec.DecodePayload(&st); err != nil {
			return fmt.Errorf("ladder: decode state: %w", err)
		}
		if st.Step == 0 {
			return game.ErrNothingToCashOut
		}

		payout := game.Payout(rec.Stake, st.Multiplier)
		rec.Status = model.StatusCashedOut
		rec.UpdatedAt = time.Now()
		if err := rec.EncodePayload(&st); err != nil {
			return fmt.Errorf("ladder: encode state: %w", err)
		}

		balance, err := e.coord.Settle(ctx, playerID, 0, payout, e.Game(), rec)
		if err != nil {
			return err
		}

		log.Info().
			Str("session_id", rec.ID).
			Int64("player_id", playerID).
			Int("step", st.Step).
			Int64("payout", payout).
			Msg("Ladder session cashed out")

		view = e.view(rec, &st, balance)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (e *Engine) view(rec *session.Record, st *state, balance int64) *game.SessionView {
	v := View{
		Steps:      st.Steps,
		Step:       st.Step,
		BreakStep:  st.BreakStep,
		Multiplier: st.Multiplier,
	}
	if rec.Status == model.StatusActive && st.Step < len(e.steps) {
		v.NextBreak = e.steps[st.Step].BreakProb
		v.NextReward = e.steps[st.Step].Multiplier
	}

	payout := int64(0)
	if rec.Status != model.StatusLost && st.Step > 0 {
		payout = game.Payout(rec.Stake, st.Multiplier)
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
			actionClimb:   active,
			actionCashout: active && st.Step > 0,
		},
		State: v,
	}
}
