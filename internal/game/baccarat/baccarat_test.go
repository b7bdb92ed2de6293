package baccarat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chiphouse/internal/game"
	"chiphouse/internal/game/cards"
	"chiphouse/internal/model"
	"chiphouse/internal/rng"
	"chiphouse/internal/session"
	"chiphouse/internal/settlement"
)

// deckOf builds a deck whose cards are drawn in the given order. Draw
// takes from the end, so the list is reversed.
func deckOf(cs ...cards.Card) []cards.Card {
	deck := make([]cards.Card, len(cs))
	for i, c := range cs {
		deck[len(cs)-1-i] = c
	}
	return deck
}

func card(rank, suit string) cards.Card {
	return cards.Card{Rank: rank, Suit: suit}
}

func newTestEngine(seed, balance int64) (*Engine, *settlement.MemorySettler) {
	settler := settlement.NewMemorySettler()
	settler.AddPlayer(1, balance)
	coord := settlement.NewCoordinator(settler, session.NewMemoryStore())
	e := New(nil, coord, rng.NewSeeded(seed))
	return e, settler
}

func TestBankerDraws(t *testing.T) {
	tests := []struct {
		name        string
		bankerTotal int
		playerThird int
		draws       bool
	}{
		{"player stood, banker 5 draws", 5, -1, true},
		{"player stood, banker 6 stands", 6, -1, false},
		{"banker 2 always draws", 2, 9, true},
		{"banker 3 draws against 7", 3, 7, true},
		{"banker 3 stands against 8", 3, 8, false},
		{"banker 4 draws against 2", 4, 2, true},
		{"banker 4 stands against 1", 4, 1, false},
		{"banker 4 stands against 8", 4, 8, false},
		{"banker 5 draws against 4", 5, 4, true},
		{"banker 5 stands against 3", 5, 3, false},
		{"banker 6 draws against 6", 6, 6, true},
		{"banker 6 draws against 7", 6, 7, true},
		{"banker 6 stands against 5", 6, 5, false},
		{"banker 7 never draws", 7, 7, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.draws, bankerDraws(tt.bankerTotal, tt.playerThird))
		})
	}
}

func TestDealNaturalFreezes(t *testing.T) {
	// Player holds a natural 9; neither side takes a third card.
	deck := deckOf(
		card("4", "S"), // player
		card("2", "H"), // banker
		card("5", "S"), // player: 9 natural
		card("A", "H"), // banker: 3
		card("K", "D"), // must stay in the deck
	)

	player, banker, err := Deal(deck)
	require.NoError(t, err)
	assert.Len(t, player, 2)
	assert.Len(t, banker, 2)
	assert.Equal(t, 9, cards.BaccaratScore(player))
	assert.Equal(t, 3, cards.BaccaratScore(banker))
	assert.Equal(t, BetPlayer, Resolve(player, banker))
}

func TestDealThirdCardTable(t *testing.T) {
	// Player 5 draws; banker 6 draws against a player third of 6.
	deck := deckOf(
		card("2", "S"), // player
		card("3", "H"), // banker
		card("3", "S"), // player: 5, draws
		card("3", "D"), // banker: 6
		card("6", "H"), // player third
		card("K", "D"), // banker third
	)

	player, banker, err := Deal(deck)
	require.NoError(t, err)
	assert.Len(t, player, 3)
	assert.Len(t, banker, 3)
	assert.Equal(t, 1, cards.BaccaratScore(player))
	assert.Equal(t, 6, cards.BaccaratScore(banker))
	assert.Equal(t, BetBanker, Resolve(player, banker))
}

func TestDealBankerStandsOnSeven(t *testing.T) {
	deck := deckOf(
		card("2", "S"), // player
		card("3", "H"), // banker
		card("2", "D"), // player: 4, draws
		card("4", "D"), // banker: 7, stands
		card("9", "H"), // player third
	)

	player, banker, err := Deal(deck)
	require.NoError(t, err)
	assert.Len(t, player, 3)
	assert.Len(t, banker, 2)
	assert.Equal(t, 3, cards.BaccaratScore(player))
	assert.Equal(t, 7, cards.BaccaratScore(banker))
}

func TestDealEmptyDeck(t *testing.T) {
	_, _, err := Deal(nil)
	assert.ErrorIs(t, err, cards.ErrEmptyDeck)
}

func TestResolveTie(t *testing.T) {
	hand := []cards.Card{card("4", "S"), card("3", "H")}
	other := []cards.Card{card("2", "D"), card("5", "C")}
	assert.Equal(t, BetTie, Resolve(hand, other))
}

// dealForSeed replays the coup the engine will deal for a seed.
func dealForSeed(t *testing.T, seed int64) (player, banker []cards.Card) {
	t.Helper()
	player, banker, err := Deal(cards.NewDeck(rng.NewSeeded(seed)))
	require.NoError(t, err)
	return player, banker
}

func TestStartSettlesCoup(t *testing.T) {
	const seed = 7
	player, banker := dealForSeed(t, seed)
	winner := Resolve(player, banker)

	e, settler := newTestEngine(seed, 1000)
	ctx := context.Background()

	view, err := e.Start(ctx, 1, 100, map[string]any{"bet": winner})
	require.NoError(t, err)

	st := view.State.(View)
	assert.Equal(t, winner, st.Winner)
	assert.Equal(t, player, st.Player)
	assert.Equal(t, banker, st.Banker)

	want := game.Payout(100, payoutRatios[winner])
	assert.Equal(t, want, view.Payout)
	assert.Equal(t, model.StatusWon, view.Status)

	balance, err := settler.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1000-100+want, balance)

	_, err = e.Act(ctx, 1, view.SessionID, "deal", nil)
	assert.ErrorIs(t, err, game.ErrSessionNotActive)
	_, err = e.Cashout(ctx, 1, view.SessionID)
	assert.ErrorIs(t, err, game.ErrSessionNotActive)
}

func TestStartTiePushesSideBets(t *testing.T) {
	// Find a seed whose coup ties; the engine deals the same coup.
	var seed int64
	for s := int64(1); s < 2000; s++ {
		player, banker := dealForSeed(t, s)
		if Resolve(player, banker) == BetTie {
			seed = s
			break
		}
	}
	require.NotZero(t, seed, "no tie found in seed range")

	e, settler := newTestEngine(seed, 1000)
	ctx := context.Background()

	view, err := e.Start(ctx, 1, 100, map[string]any{"bet": BetPlayer})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPush, view.Status)
	assert.Equal(t, int64(100), view.Payout)

	balance, err := settler.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func TestStartValidation(t *testing.T) {
	tests := []struct {
		name   string
		stake  int64
		params map[string]any
		err    error
	}{
		{"stake below min", 0, map[string]any{"bet": BetPlayer}, game.ErrInvalidParams},
		{"stake above max", 20000, map[string]any{"bet": BetPlayer}, game.ErrInvalidParams},
		{"missing bet", 100, nil, game.ErrInvalidParams},
		{"unknown area", 100, map[string]any{"bet": "dragon"}, game.ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(1, 1000)
			_, err := e.Start(context.Background(), 1, tt.stake, tt.params)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestStartInsufficientBalance(t *testing.T) {
	e, _ := newTestEngine(1, 10)
	_, err := e.Start(context.Background(), 1, 100, map[string]any{"bet": BetBanker})
	assert.ErrorIs(t, err, game.ErrInsufficientBalance)
}

func TestForeignSessionHidden(t *testing.T) {
	e, settler := newTestEngine(1, 1000)
	settler.AddPlayer(2, 1000)

	view, err := e.Start(context.Background(), 1, 100, map[string]any{"bet": BetPlayer})
	require.NoError(t, err)

	_, err = e.Act(context.Background(), 2, view.SessionID, "deal", nil)
	assert.ErrorIs(t, err, game.ErrSessionNotFound)
}
