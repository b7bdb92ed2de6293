// Package roulette implements the single-spin resolver: one uniformly
// sampled wheel outcome evaluated against a slate of bets with fixed
// payout ratios.
package roulette

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chiphouse/internal/game"
	"chiphouse/internal/model"
	"chiphouse/internal/rng"
	"chiphouse/internal/session"
	"chiphouse/internal/settlement"
)

// WheelSize is the European single-zero number space: 0 through 36.
const WheelSize = 37

// Bet types.
const (
	BetStraight = "straight"
	BetRed      = "red"
	BetBlack    = "black"
	BetEven     = "even"
	BetOdd      = "odd"
	BetLow      = "low"
	BetHigh     = "high"
	BetDozen1   = "dozen1"
	BetDozen2   = "dozen2"
	BetDozen3   = "dozen3"
	BetColumn1  = "column1"
	BetColumn2  = "column2"
	BetColumn3  = "column3"
)

// payoutRatios maps bet type to total-return multiple (stake included).
var payoutRatios = map[string]float64{
	BetStraight: 36,
	BetRed:      2,
	BetBlack:    2,
	BetEven:     2,
	BetOdd:      2,
	BetLow:      2,
	BetHigh:     2,
	BetDozen1:   3,
	BetDozen2:   3,
	BetDozen3:   3,
	BetColumn1:  3,
	BetColumn2:  3,
	BetColumn3:  3,
}

var redNumbers = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true,
	14: true, 16: true, 18: true, 19: true, 21: true, 23: true,
	25: true, 27: true, 30: true, 32: true, 34: true, 36: true,
}

// Bet is a single wager on the slate.
type Bet struct {
	Type   string `json:"type"`
	Amount int64  `json:"amount"`
	Number int    `json:"number,omitempty"`
}

// Config holds roulette engine configuration.
type Config struct {
	MinStake int64
	MaxStake int64
}

// Engine is the single-spin resolver. Sessions are terminal the moment
// they are created; there are no follow-up actions.
type Engine struct {
	coord    *settlement.Coordinator
	src      rng.Source
	minStake int64
	maxStake int64
}

// state is the game-specific session payload.
type state struct {
	Bets    []Bet `json:"bets"`
	Outcome int   `json:"outcome"`
	Return  int64 `json:"return"`
}

// View is the game-specific result state returned to callers.
type View struct {
	Bets    []Bet `json:"bets"`
	Outcome int   `json:"outcome"`
	Return  int64 `json:"return"`
	Net     int64 `json:"net"`
}

// New creates a roulette engine.
func New(cfg *Config, coord *settlement.Coordinator, src rng.Source) *Engine {
	minStake, maxStake := int64(1), int64(10000)
	if cfg != nil {
		if cfg.MinStake > 0 {
			minStake = cfg.MinStake
		}
		if cfg.MaxStake > 0 {
			maxStake = cfg.MaxStake
		}
	}
	return &Engine{coord: coord, src: src, minStake: minStake, maxStake: maxStake}
}

// Game returns the game tag.
func (e *Engine) Game() string {
	return model.GameRoulette
}

// Covers reports whether a bet covers the sampled outcome.
func Covers(b Bet, outcome int) bool {
	switch b.Type {
	case BetStraight:
		return b.Number == outcome
	case BetRed:
		return redNumbers[outcome]
	case BetBlack:
		return outcome != 0 && !redNumbers[outcome]
	case BetEven:
		return outcome != 0 && outcome%2 == 0
	case BetOdd:
		return outcome%2 == 1
	case BetLow:
		return outcome >= 1 && outcome <= 18
	case BetHigh:
		return outcome >= 19 && outcome <= 36
	case BetDozen1:
		return outcome >= 1 && outcome <= 12
	case BetDozen2:
		return outcome >= 13 && outcome <= 24
	case BetDozen3:
		return outcome >= 25 && outcome <= 36
	case BetColumn1:
		return outcome != 0 && outcome%3 == 1
	case BetColumn2:
		return outcome != 0 && outcome%3 == 2
	case BetColumn3:
		return outcome != 0 && outcome%3 == 0
	default:
		return false
	}
}

// Resolve computes the total return for a slate against an outcome.
func Resolve(bets []Bet, outcome int) int64 {
	var total int64
	for _, b := range bets {
		if Covers(b, outcome) {
			total += int64(float64(b.Amount) * payoutRatios[b.Type])
		}
	}
	return total
}

// ValidateBets checks the slate: known types, positive amounts, straight
// numbers in range. Returns the total stake.
func (e *Engine) ValidateBets(bets []Bet) (int64, error) {
	if len(bets) == 0 {
		return 0, fmt.Errorf("%w: at least one bet is required", game.ErrInvalidParams)
	}
	var total int64
	for _, b := range bets {
		if _, ok := payoutRatios[b.Type]; !ok {
			return 0, fmt.Errorf("%w: unknown bet type %q", game.ErrInvalidParams, b.Type)
		}
		if b.Amount <= 0 {
			return 0, fmt.Errorf("%w: bet amounts must be positive", game.ErrInvalidParams)
		}
		if b.Type == BetStraight && (b.Number < 0 || b.Number >= WheelSize) {
			return 0, fmt.Errorf("%w: straight number must be between 0 and %d", game.ErrInvalidParams, WheelSize-1)
		}
		total += b.Amount
	}
	if total < e.minStake || total > e.maxStake {
		return 0, fmt.Errorf("%w: total stake must be between %d and %d", game.ErrInvalidParams, e.minStake, e.maxStake)
	}
	return total, nil
}

// Start spins the wheel, settles the slate in one unit and records the
// terminal session. The stake parameter is ignored: the total staked is
// the sum of the bet amounts.
func (e *Engine) Start(ctx context.Context, playerID, stake int64, params map[string]any) (*game.SessionView, error) {
	bets, err := parseBets(params)
	if err != nil {
		return nil, err
	}
	total, err := e.ValidateBets(bets)
	if err != nil {
		return nil, err
	}

	outcome := e.src.Intn(WheelSize)
	ret := Resolve(bets, outcome)

	st := state{Bets: bets, Outcome: outcome, Return: ret}
	now := time.Now()
	rec := &session.Record{
		ID:        uuid.NewString(),
		PlayerID:  playerID,
		Game:      e.Game(),
		Status:    statusFor(ret - total),
		Stake:     total,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := rec.EncodePayload(&st); err != nil {
		return nil, fmt.Errorf("roulette: encode state: %w", err)
	}

	balance, err := e.coord.Settle(ctx, playerID, total, ret, e.Game(), rec)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", rec.ID).
		Int64("player_id", playerID).
		Int("outcome", outcome).
		Int64("stake", total).
		Int64("return", ret).
		Msg("Roulette spin settled")

	return e.view(rec, &st, balance), nil
}

// Act is never legal: a spin is resolved at start.
func (e *Engine) Act(ctx context.Context, playerID int64, sessionID, action string, params map[string]any) (*game.SessionView, error) {
	if _, err := game.LoadOwned(ctx, e.coord.Sessions(), playerID, sessionID, e.Game()); err != nil {
		return nil, err
	}
	return nil, game.ErrSessionNotActive
}

// Cashout is never legal: a spin settles at start.
func (e *Engine) Cashout(ctx context.Context, playerID int64, sessionID string) (*game.SessionView, error) {
	if _, err := game.LoadOwned(ctx, e.coord.Sessions(), playerID, sessionID, e.Game()); err != nil {
		return nil, err
	}
	return nil, game.ErrSessionNotActive
}

func statusFor(net int64) model.SessionStatus {
	switch {
	case net > 0:
		return model.StatusWon
	case net < 0:
		return model.StatusLost
	default:
		return model.StatusPush
	}
}

func (e *Engine) view(rec *session.Record, st *state, balance int64) *game.SessionView {
	return &game.SessionView{
		SessionID: rec.ID,
		Game:      rec.Game,
		Status:    rec.Status,
		Stake:     rec.Stake,
		Payout:    st.Return,
		Balance:   balance,
		Actions:   map[string]bool{},
		State: View{
			Bets:    st.Bets,
			Outcome: st.Outcome,
			Return:  st.Return,
			Net:     st.Return - rec.Stake,
		},
	}
}

func parseBets(params map[string]any) ([]Bet, error) {
	raw, ok := params["bets"]
	if !ok {
		return nil, fmt.Errorf("%w: bets are required", game.ErrInvalidParams)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: bets must be a list", game.ErrInvalidParams)
	}
	bets := make([]Bet, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: malformed bet", game.ErrInvalidParams)
		}
		betType, _ := game.StringParam(m, "type")
		amount, _ := game.IntParam(m, "amount")
		number, _ := game.IntParam(m, "number")
		bets = append(bets, Bet{Type: betType, Amount: int64(amount), Number: number})
	}
	return bets, nil
}
