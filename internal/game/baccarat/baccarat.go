// Package baccarat implements the two-hand card resolver: player and
// banker hands drawn under the fixed third-card table, settled against
// a fixed pay table in a single call.
package baccarat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chiphouse/internal/game"
	"chiphouse/internal/game/cards"
	"chiphouse/internal/model"
	"chiphouse/internal/rng"
	"chiphouse/internal/session"
	"chiphouse/internal/settlement"
)

// Bet areas.
const (
	BetPlayer = "player"
	BetBanker = "banker"
	BetTie    = "tie"
)

// payoutRatios maps bet area to total-return multiple on a win. Banker
// carries the commission discount; tie pushes player and banker bets.
var payoutRatios = map[string]float64{
	BetPlayer: 2.0,
	BetBanker: 1.95,
	BetTie:    9.0,
}

// Config holds baccarat engine configuration.
type Config struct {
	MinStake int64
	MaxStake int64
}

// Engine is the card-hand resolver. Like roulette, a session is
// terminal the moment it is created.
type Engine struct {
	coord    *settlement.Coordinator
	src      rng.Source
	minStake int64
	maxStake int64
}

// state is the game-specific session payload.
type state struct {
	Bet       string       `json:"bet"`
	Player    []cards.Card `json:"player"`
	Banker    []cards.Card `json:"banker"`
	PlayerVal int          `json:"player_value"`
	BankerVal int          `json:"banker_value"`
	Winner    string       `json:"winner"`
	Return    int64        `json:"return"`
}

// View is the game-specific result state returned to callers.
type View struct {
	Bet       string       `json:"bet"`
	Player    []cards.Card `json:"player"`
	Banker    []cards.Card `json:"banker"`
	PlayerVal int          `json:"player_value"`
	BankerVal int          `json:"banker_value"`
	Winner    string       `json:"winner"`
	Return    int64        `json:"return"`
	Net       int64        `json:"net"`
}

// New creates a baccarat engine.
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
	return model.GameBaccarat
}

// Deal draws the player and banker hands from the deck, applying the
// natural rule and the fixed third-card table.
func Deal(deck []cards.Card) (player, banker []cards.Card, err error) {
	var c cards.Card
	for i := 0; i < 2; i++ {
		if c, deck, err = cards.Draw(deck); err != nil {
			return nil, nil, err
		}
		player = append(player, c)
		if c, deck, err = cards.Draw(deck); err != nil {
			return nil, nil, err
		}
		banker = append(banker, c)
	}

	pv := cards.BaccaratScore(player)
	bv := cards.BaccaratScore(banker)

	// Either side holding a natural 8 or 9 freezes the deal.
	if pv >= 8 || bv >= 8 {
		return player, banker, nil
	}

	playerThird := -1
	if pv <= 5 {
		if c, deck, err = cards.Draw(deck); err != nil {
			return nil, nil, err
		}
		player = append(player, c)
		playerThird = c.BaccaratValue()
	}

	if bankerDraws(bv, playerThird) {
		if c, _, err = cards.Draw(deck); err != nil {
			return nil, nil, err
		}
		banker = append(banker, c)
	}
	return player, banker, nil
}

// bankerDraws applies the third-card table. playerThird is the baccarat
// value of the player's third card, or -1 if the player stood.
func bankerDraws(bankerTotal, playerThird int) bool {
	if playerThird < 0 {
		return bankerTotal <= 5
	}
	switch bankerTotal {
	case 0, 1, 2:
		return true
	case 3:
		return playerThird != 8
	case 4:
		return playerThird >= 2 && playerThird <= 7
	case 5:
		return playerThird >= 4 && playerThird <= 7
	case 6:
		return playerThird == 6 || playerThird == 7
	default:
		return false
	}
}

// Resolve names the winning area for the two final hands.
func Resolve(player, banker []cards.Card) string {
	pv := cards.BaccaratScore(player)
	bv := cards.BaccaratScore(banker)
	switch {
	case pv > bv:
		return BetPlayer
	case bv > pv:
		return BetBanker
	default:
		return BetTie
	}
}

// Start deals a coup, settles the bet in one unit and records the
// terminal session. Params: "bet" in {player, banker, tie}.
func (e *Engine) Start(ctx context.Context, playerID, stake int64, params map[string]any) (*game.SessionView, error) {
	if stake < e.minStake || stake > e.maxStake {
		return nil, fmt.Errorf("%w: stake must be between %d and %d", game.ErrInvalidParams, e.minStake, e.maxStake)
	}
	bet, ok := game.StringParam(params, "bet")
	if !ok {
		return nil, fmt.Errorf("%w: bet is required", game.ErrInvalidParams)
	}
	if _, known := payoutRatios[bet]; !known {
		return nil, fmt.Errorf("%w: unknown bet area %q", game.ErrInvalidParams, bet)
	}

	deck := cards.NewDeck(e.src)
	player, banker, err := Deal(deck)
	if err != nil {
		return nil, fmt.Errorf("baccarat: deal: %w", err)
	}
	winner := Resolve(player, banker)

	var ret int64
	switch {
	case bet == winner:
		ret = game.Payout(stake, payoutRatios[bet])
	case winner == BetTie:
		// A tie pushes player and banker bets.
		ret = stake
	}

	st := state{
		Bet:       bet,
		Player:    player,
		Banker:    banker,
		PlayerVal: cards.BaccaratScore(player),
		BankerVal: cards.BaccaratScore(banker),
		Winner:    winner,
		Return:    ret,
	}
	now := time.Now()
	rec := &session.Record{
		ID:        uuid.NewString(),
		PlayerID:  playerID,
		Game:      e.Game(),
		Status:    statusFor(ret - stake),
		Stake:     stake,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := rec.EncodePayload(&st); err != nil {
		return nil, fmt.Errorf("baccarat: encode state: %w", err)
	}

	balance, err := e.coord.Settle(ctx, playerID, stake, ret, e.Game(), rec)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", rec.ID).
		Int64("player_id", playerID).
		Str("bet", bet).
		Str("winner", winner).
		Int64("stake", stake).
		Int64("return", ret).
		Msg("Baccarat coup settled")

	return e.view(rec, &st, balance), nil
}

// Act is never legal: a coup is resolved at start.
func (e *Engine) Act(ctx context.Context, playerID int64, sessionID, action string, params map[string]any) (*game.SessionView, error) {
	if _, err := game.LoadOwned(ctx, e.coord.Sessions(), playerID, sessionID, e.Game()); err != nil {
		return nil, err
	}
	return nil, game.ErrSessionNotActive
}

// Cashout is never legal: a coup settles at start.
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
			Bet:       st.Bet,
			Player:    st.Player,
			Banker:    st.Banker,
			PlayerVal: st.PlayerVal,
			BankerVal: st.BankerVal,
			Winner:    st.Winner,
			Return:    st.Return,
			Net:       st.Return - rec.Stake,
		},
	}
}
