// Package blackjack implements the multi-hand blackjack session engine:
// player actions on one or two hands, automated dealer play to 17, and
// pair/three-card side wagers settled at the deal.
package blackjack

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chiphouse/internal/game"
	"chiphouse/internal/game/cards"
	"chiphouse/internal/model"
	"chiphouse/internal/pkg/lock"
	"chiphouse/internal/rng"
	"chiphouse/internal/session"
	"chiphouse/internal/settlement"
)

const (
	actionHit    = "hit"
	actionStand  = "stand"
	actionDouble = "double"
	actionSplit  = "split"

	// dealerStand is the total the dealer draws up to. Soft totals
	// count per cards.Score, so a soft 17 stands.
	dealerStand = 17
)

// Config holds blackjack engine configuration.
type Config struct {
	MinStake int64
	MaxStake int64
}

// Engine is the blackjack session engine.
type Engine struct {
	coord    *settlement.Coordinator
	locks    *lock.KeyedLock
	src      rng.Source
	newDeck  func() []cards.Card
	minStake int64
	maxStake int64
}

// hand is one player hand. A hand is closed once it is stood or busted.
type hand struct {
	Cards   []cards.Card `json:"cards"`
	Stake   int64        `json:"stake"`
	Stood   bool         `json:"stood"`
	Doubled bool         `json:"doubled"`
	Actions int          `json:"actions"`
}

func (h hand) busted() bool {
	return cards.Score(h.Cards) > 21
}

func (h hand) closed() bool {
	return h.Stood || h.busted()
}

// state is the game-specific session payload.
type state struct {
	Deck      []cards.Card `json:"deck"`
	Dealer    []cards.Card `json:"dealer"`
	Hands     []hand       `json:"hands"`
	SplitAces bool         `json:"split_aces"`
	Sides     SideResults  `json:"sides"`
	Return    int64        `json:"return"`
}

// activeHand returns the index of the first hand that is neither stood
// nor busted, or -1 when every hand is closed.
func (st *state) activeHand() int {
	for i, h := range st.Hands {
		if !h.closed() {
			return i
		}
	}
	return -1
}

func (st *state) totalStake() int64 {
	var total int64
	for _, h := range st.Hands {
		total += h.Stake
	}
	return total
}

// HandView is one player hand as reported to callers.
type HandView struct {
	Cards   []cards.Card `json:"cards"`
	Score   int          `json:"score"`
	Stake   int64        `json:"stake"`
	Stood   bool         `json:"stood"`
	Busted  bool         `json:"busted"`
	Doubled bool         `json:"doubled"`
}

// View is the game-specific progress state returned to callers. The
// remaining deck is never disclosed.
type View struct {
	Dealer      []cards.Card `json:"dealer"`
	DealerScore int          `json:"dealer_score"`
	Hands       []HandView   `json:"hands"`
	ActiveHand  int          `json:"active_hand"`
	Sides       SideResults  `json:"sides"`
	Return      int64        `json:"return"`
}

// New creates a blackjack engine.
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
	e := &Engine{
		coord:    coord,
		locks:    locks,
		src:      src,
		minStake: minStake,
		maxStake: maxStake,
	}
	e.newDeck = func() []cards.Card { return cards.NewDeck(e.src) }
	return e
}

// SetDeck overrides the deck builder. Tests use it to deal a known
// card order.
func (e *Engine) SetDeck(build func() []cards.Card) {
	e.newDeck = build
}

// Game returns the game tag.
func (e *Engine) Game() string {
	return model.GameBlackjack
}

// Start debits the stake plus any side wagers, deals two cards to the
// player and one to the dealer, settles the side wagers against the
// deal, and persists the session as active.
//
// Params: "pair_wager" and "three_card_wager", both optional amounts.
func (e *Engine) Start(ctx context.Context, playerID, stake int64, params map[string]any) (*game.SessionView, error) {
	if stake < e.minStake || stake > e.maxStake {
		return nil, fmt.Errorf("%w: stake must be between %d and %d", game.ErrInvalidParams, e.minStake, e.maxStake)
	}
	pairWager, threeWager, err := e.sideWagers(params)
	if err != nil {
		return nil, err
	}

	deck := e.newDeck()
	var p1, p2, up cards.Card
	if p1, deck, err = cards.Draw(deck); err != nil {
		return nil, fmt.Errorf("blackjack: deal: %w", err)
	}
	if p2, deck, err = cards.Draw(deck); err != nil {
		return nil, fmt.Errorf("blackjack: deal: %w", err)
	}
	if up, deck, err = cards.Draw(deck); err != nil {
		return nil, fmt.Errorf("blackjack: deal: %w", err)
	}

	sides := SideResults{PairWager: pairWager, ThreeWager: threeWager}
	if pairWager > 0 {
		if kind := EvaluatePair(p1, p2); kind != "" {
			sides.PairKind = kind
			sides.PairReturn = game.Payout(pairWager, pairRatios[kind])
		}
	}
	if threeWager > 0 {
		if kind := EvaluateThreeCard(p1, p2, up); kind != "" {
			sides.ThreeKind = kind
			sides.ThreeReturn = game.Payout(threeWager, threeCardRatios[kind])
		}
	}

	st := state{
		Deck:   deck,
		Dealer: []cards.Card{up},
		Hands:  []hand{{Cards: []cards.Card{p1, p2}, Stake: stake}},
		Sides:  sides,
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
		return nil, fmt.Errorf("blackjack: encode state: %w", err)
	}

	balance, err := e.coord.Settle(ctx, playerID, stake+pairWager+threeWager, sides.Return(), e.Game(), rec)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", rec.ID).
		Int64("player_id", playerID).
		Int64("stake", stake).
		Int64("side_wagers", pairWager+threeWager).
		Int64("side_return", sides.Return()).
		Msg("Blackjack session started")

	return e.view(rec, &st, balance), nil
}

// Act applies a player action to the active hand. An out-of-rule double
// or split, or insufficient balance for either, fails the action
// without mutating the session.
func (e *Engine) Act(ctx context.Context, playerID int64, sessionID, action string, params map[string]any) (*game.SessionView, error) {
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
			return fmt.Errorf("blackjack: decode state: %w", err)
		}
		idx := st.activeHand()
		if idx < 0 {
			return game.ErrSessionNotActive
		}

		// Extra stake is debited in the same settlement unit as the
		// closure payout, so a failed debit leaves everything intact.
		var extraStake int64
		switch action {
		case actionHit:
			if err := e.hit(&st, idx); err != nil {
				return err
			}
		case actionStand:
			h := &st.Hands[idx]
			h.Stood = true
			h.Actions++
		case actionDouble:
			extraStake, err = e.double(&st, idx)
			if err != nil {
				return err
			}
		case actionSplit:
			extraStake, err = e.split(&st)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown action %q", game.ErrActionNotAllowed, action)
		}

		var mainReturn int64
		if st.activeHand() < 0 {
			mainReturn, err = e.close(&st)
			if err != nil {
				return err
			}
			rec.Status = statusFor(mainReturn - st.totalStake())
		}

		rec.UpdatedAt = time.Now()
		if err := rec.EncodePayload(&st); err != nil {
			return fmt.Errorf("blackjack: encode state: %w", err)
		}

		var balance int64
		if extraStake > 0 || mainReturn > 0 {
			balance, err = e.coord.Settle(ctx, playerID, extraStake, mainReturn, e.Game(), rec)
		} else {
			if err = e.coord.PersistSession(ctx, rec); err == nil {
				balance, err = e.coord.Balance(ctx, playerID)
			}
		}
		if err != nil {
			return err
		}

		if rec.Status.Terminal() {
			log.Info().
				Str("session_id", rec.ID).
				Int64("player_id", playerID).
				Str("status", string(rec.Status)).
				Int64("stake", st.totalStake()).
				Int64("return", st.Return).
				Msg("Blackjack session settled")
		}

		view = e.view(rec, &st, balance)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Cashout is never legal: blackjack settles when the hands close.
func (e *Engine) Cashout(ctx context.Context, playerID int64, sessionID string) (*game.SessionView, error) {
	rec, err := game.LoadOwned(ctx, e.coord.Sessions(), playerID, sessionID, e.Game())
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return nil, game.ErrSessionNotActive
	}
	return nil, game.ErrNothingToCashOut
}

// hit draws one card into the active hand. Split aces receive exactly
// one card, so a hit on them stands the hand as well.
func (e *Engine) hit(st *state, idx int) error {
	h := &st.Hands[idx]
	c, deck, err := cards.Draw(st.Deck)
	if err != nil {
		return fmt.Errorf("blackjack: draw: %w", err)
	}
	st.Deck = deck
	h.Cards = append(h.Cards, c)
	h.Actions++
	if st.SplitAces {
		h.Stood = true
	}
	return nil
}

// double doubles the hand's stake, draws exactly one card and stands
// the hand. It returns the extra stake to debit.
func (e *Engine) double(st *state, idx int) (int64, error) {
	h := &st.Hands[idx]
	if h.Actions > 0 || len(h.Cards) != 2 || st.SplitAces {
		return 0, fmt.Errorf("%w: double requires an untouched two-card hand", game.ErrActionNotAllowed)
	}
	c, deck, err := cards.Draw(st.Deck)
	if err != nil {
		return 0, fmt.Errorf("blackjack: draw: %w", err)
	}
	st.Deck = deck
	extra := h.Stake
	h.Stake *= 2
	h.Doubled = true
	h.Cards = append(h.Cards, c)
	h.Stood = true
	h.Actions++
	return extra, nil
}

// split turns a matched two-card hand into two hands, dealing one card
// to each. A split pair of aces closes both hands immediately.
func (e *Engine) split(st *state) (int64, error) {
	if len(st.Hands) != 1 {
		return 0, fmt.Errorf("%w: only a single hand can be split", game.ErrActionNotAllowed)
	}
	h := &st.Hands[0]
	if h.Actions > 0 || len(h.Cards) != 2 || h.Cards[0].SplitValue() != h.Cards[1].SplitValue() {
		return 0, fmt.Errorf("%w: split requires an untouched pair of equal rank value", game.ErrActionNotAllowed)
	}

	aces := h.Cards[0].IsAce()
	first := hand{Cards: []cards.Card{h.Cards[0]}, Stake: h.Stake}
	second := hand{Cards: []cards.Card{h.Cards[1]}, Stake: h.Stake}
	for _, nh := range []*hand{&first, &second} {
		c, deck, err := cards.Draw(st.Deck)
		if err != nil {
			return 0, fmt.Errorf("blackjack: draw: %w", err)
		}
		st.Deck = deck
		nh.Cards = append(nh.Cards, c)
		if aces {
			nh.Stood = true
		}
	}
	st.Hands = []hand{first, second}
	st.SplitAces = aces
	return first.Stake, nil
}

// close runs the dealer and computes the total return across hands. The
// dealer does not draw when every hand is busted.
func (e *Engine) close(st *state) (int64, error) {
	anyLive := false
	for _, h := range st.Hands {
		if !h.busted() {
			anyLive = true
			break
		}
	}
	if anyLive {
		for cards.Score(st.Dealer) < dealerStand && len(st.Deck) > 0 {
			c, deck, err := cards.Draw(st.Deck)
			if err != nil {
				return 0, fmt.Errorf("blackjack: draw: %w", err)
			}
			st.Deck = deck
			st.Dealer = append(st.Dealer, c)
		}
	}

	dealerScore := cards.Score(st.Dealer)
	var total int64
	for _, h := range st.Hands {
		if h.busted() {
			continue
		}
		score := cards.Score(h.Cards)
		switch {
		case dealerScore > 21 || score > dealerScore:
			total += 2 * h.Stake
		case score == dealerScore:
			total += h.Stake
		}
	}
	st.Return = total
	return total, nil
}

func (e *Engine) sideWagers(params map[string]any) (pair, three int64, err error) {
	if v, ok := game.IntParam(params, "pair_wager"); ok {
		if v < 0 || int64(v) > e.maxStake {
			return 0, 0, fmt.Errorf("%w: pair wager must be between 0 and %d", game.ErrInvalidParams, e.maxStake)
		}
		pair = int64(v)
	}
	if v, ok := game.IntParam(params, "three_card_wager"); ok {
		if v < 0 || int64(v) > e.maxStake {
			return 0, 0, fmt.Errorf("%w: three-card wager must be between 0 and %d", game.ErrInvalidParams, e.maxStake)
		}
		three = int64(v)
	}
	return pair, three, nil
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
	idx := st.activeHand()
	hands := make([]HandView, len(st.Hands))
	for i, h := range st.Hands {
		hands[i] = HandView{
			Cards:   h.Cards,
			Score:   cards.Score(h.Cards),
			Stake:   h.Stake,
			Stood:   h.Stood,
			Busted:  h.busted(),
			Doubled: h.Doubled,
		}
	}

	active := rec.Status == model.StatusActive && idx >= 0
	var canDouble, canSplit bool
	if active {
		h := st.Hands[idx]
		canDouble = h.Actions == 0 && len(h.Cards) == 2 && !st.SplitAces
		canSplit = len(st.Hands) == 1 && h.Actions == 0 && len(h.Cards) == 2 &&
			h.Cards[0].SplitValue() == h.Cards[1].SplitValue()
	}

	return &game.SessionView{
		SessionID: rec.ID,
		Game:      rec.Game,
		Status:    rec.Status,
		Stake:     st.totalStake(),
		Payout:    st.Return + st.Sides.Return(),
		Balance:   balance,
		Actions: map[string]bool{
			actionHit:    active,
			actionStand:  active,
			actionDouble: active && canDouble,
			actionSplit:  active && canSplit,
		},
		State: View{
			Dealer:      st.Dealer,
			DealerScore: cards.Score(st.Dealer),
			Hands:       hands,
			ActiveHand:  idx,
			Sides:       st.Sides,
			Return:      st.Return,
		},
	}
}
