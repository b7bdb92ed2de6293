// Package mines implements the grid-reveal session engine: a 5x5 grid
// hiding N mines, a compounding multiplier per safe reveal, and a
// cashout available from the first safe cell onward.
package mines

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
	// GridSize is the fixed number of cells.
	GridSize = 25
	// MinMines and MaxMines bound the configurable mine count.
	MinMines = 1
	MaxMines = 24

	// stepEdge is the house discount applied to every step factor.
	stepEdge = 0.97

	actionReveal  = "reveal"
	actionCashout = "cashout"
)

// Config holds mines engine configuration.
type Config struct {
	MinStake int64
	MaxStake int64
}

// Engine is the grid-reveal session engine.
type Engine struct {
	coord    *settlement.Coordinator
	locks    *lock.KeyedLock
	src      rng.Source
	minStake int64
	maxStake int64
}

// state is the game-specific session payload.
type state struct {
	MineCount  int     `json:"mine_count"`
	Mines      []int   `json:"mines"`
	Revealed   []int   `json:"revealed"`
	Multiplier float64 `json:"multiplier"`
}

// View is the game-specific progress state returned to callers. Mine
// positions are disclosed only once the session is terminal.
type View struct {
	MineCount  int     `json:"mine_count"`
	Revealed   []int   `json:"revealed"`
	Multiplier float64 `json:"multiplier"`
	Mines      []int   `json:"mines,omitempty"`
}

// New creates a mines engine.
func New(cfg *Config, coord *settlement.Coordinator, locks *lock.KeyedLock, src rng.Source) *Engine {
	minStake, maxStake := int64(1), int64(10000)
	if cfg != nil {
		if cfg.MinStake > 0 {
			minStake = cfg.MinStake
		}
		if cfg.MaxStake > 0 {
			maxStake = cfg.MaxStake
		}
	}
	return &Engine{
		coord:    coord,
		locks:    locks,
		src:      src,
		minStake: minStake,
		maxStake: maxStake,
	}
}

// Game returns the game tag.
func (e *Engine) Game() string {
	return model.GameMines
}

// Start debits the stake and creates a session with N mines sampled
// uniformly without replacement.
func (e *Engine) Start(ctx context.Context, playerID, stake int64, params map[string]any) (*game.SessionView, error) {
	if stake < e.minStake || stake > e.maxStake {
		return nil, fmt.Errorf("%w: stake must be between %d and %d", game.ErrInvalidParams, e.minStake, e.maxStake)
	}
	mineCount, ok := game.IntParam(params, "mines")
	if !ok || mineCount < MinMines || mineCount > MaxMines {
		return nil, fmt.Errorf("%w: mines must be between %d and %d", game.ErrInvalidParams, MinMines, MaxMines)
	}

	st := state{
		MineCount:  mineCount,
		Mines:      rng.SampleDistinct(e.src, GridSize, mineCount),
		Revealed:   []int{},
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
		return nil, fmt.Errorf("mines: encode state: %w", err)
	}

	balance, err := e.coord.Settle(ctx, playerID, stake, 0, e.Game(), rec)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", rec.ID).
		Int64("player_id", playerID).
		Int64("stake", stake).
		Int("mines", mineCount).
		Msg("Mines session started")

	return e.view(rec, &st, balance), nil
}

// Act handles the reveal action. Revealing an already-revealed cell is
// idempotent and returns the current state unchanged.
func (e *Engine) Act(ctx context.Context, playerID int64, sessionID, action string, params map[string]any) (*game.SessionView, error) {
	if action != actionReveal {
		return nil, fmt.Errorf("%w: unknown action %q", game.ErrActionNotAllowed, action)
	}
	cell, ok := game.IntParam(params, "cell")
	if !ok || cell < 0 || cell >= GridSize {
		return nil, fmt.Errorf("%w: cell must be between 0 and %d", game.ErrInvalidParams, GridSize-1)
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
			return fmt.Errorf("mines: decode state: %w", err)
		}

		if contains(st.Revealed, cell) {
			balance, err := e.coord.Balance(ctx, playerID)
			if err != nil {
				return err
			}
			view = e.view(rec, &st, balance)
			return nil
		}

		if contains(st.Mines, cell) {
			return e.settleLoss(ctx, rec, &st, playerID, &view)
		}
		return e.revealSafe(ctx, rec, &st, playerID, cell, &view)
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Cashout credits the current potential payout. It requires at least one
// safe reveal.
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
			return fmt.Errorf("mines: decode state: %w", err)
		}
		if len(st.Revealed) == 0 {
			return game.ErrNothingToCashOut
		}

		payout := game.Payout(rec.Stake, st.Multiplier)
		rec.Status = model.StatusCashedOut
		rec.UpdatedAt = time.Now()
		if err := rec.EncodePayload(&st); err != nil {
			return fmt.Errorf("mines: encode state: %w", err)
		}

		balance, err := e.coord.Settle(ctx, playerID, 0, payout, e.Game(), rec)
		if err != nil {
			return err
		}

		log.Info().
			Str("session_id", rec.ID).
			Int64("player_id", playerID).
			Int64("payout", payout).
			Float64("multiplier", st.Multiplier).
			Msg("Mines session cashed out")

		view = e.view(rec, &st, balance)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (e *Engine) settleLoss(ctx context.Context, rec *session.Record, st *state, playerID int64, view **game.SessionView) error {
	rec.Status = model.StatusLost
	rec.UpdatedAt = time.Now()
	st.Multiplier = 0
	if err := rec.EncodePayload(st); err != nil {
		return fmt.Errorf("mines: encode state: %w", err)
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
		Msg("Mines session hit a mine")

	*view = e.view(rec, st, balance)
	return nil
}

func (e *Engine) revealSafe(ctx context.Context, rec *session.Record, st *state, playerID int64, cell int, view **game.SessionView) error {
	st.Revealed = append(st.Revealed, cell)
	r := len(st.Revealed)
	safeTotal := GridSize - st.MineCount

	// Step factor for the r-th safe reveal; the running multiplier is
	// rounded to 2 decimals at every step, so rounding compounds.
	factor := float64(GridSize-r+1) / float64(safeTotal-r+1) * stepEdge
	st.Multiplier = game.Round2(st.Multiplier * factor)

	if r == safeTotal {
		// Every safe cell revealed: auto-settle as won.
		payout := game.Payout(rec.Stake, st.Multiplier)
		rec.Status = model.StatusWon
		rec.UpdatedAt = time.Now()
		if err := rec.EncodePayload(st); err != nil {
			return fmt.Errorf("mines: encode state: %w", err)
		}
		balance, err := e.coord.Settle(ctx, playerID, 0, payout, e.Game(), rec)
		if err != nil {
			return err
		}

		log.Info().
			Str("session_id", rec.ID).
			Int64("player_id", playerID).
			Int64("payout", payout).
			Msg("Mines session cleared the grid")

		*view = e.view(rec, st, balance)
		return nil
	}

	rec.UpdatedAt = time.Now()
	if err := rec.EncodePayload(st); err != nil {
		return fmt.Errorf("mines: encode state: %w", err)
	}
	if err := e.coord.PersistSession(ctx, rec); err != nil {
		return err
	}

	balance, err := e.coord.Balance(ctx, playerID)
	if err != nil {
		return err
	}
	*view = e.view(rec, st, balance)
	return nil
}

func (e *Engine) view(rec *session.Record, st *state, balance int64) *game.SessionView {
	v := View{
		MineCount:  st.MineCount,
		Revealed:   st.Revealed,
		Multiplier: st.Multiplier,
	}
	if rec.Status.Terminal() {
		v.Mines = st.Mines
	}

	payout := int64(0)
	if rec.Status == model.StatusActive || rec.Status == model.StatusWon || rec.Status == model.StatusCashedOut {
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
			actionReveal:  active,
			actionCashout: active && len(st.Revealed) > 0,
		},
		State: v,
	}
}

func contains(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
