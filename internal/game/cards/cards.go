// Package cards implements the standard 52-card deck, shuffling and the
// hand-scoring rules shared by the card games.
package cards

import (
	"errors"
	"fmt"

	"chiphouse/internal/rng"
)

// Errors for deck operations.
var (
	ErrEmptyDeck = errors.New("deck is empty")
)

// Suits.
const (
	Spades   = "S"
	Hearts   = "H"
	Diamonds = "D"
	Clubs    = "C"
)

// Ranks, in deck order.
var ranks = []string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}

var suits = []string{Spades, Hearts, Diamonds, Clubs}

// Card is a single playing card.
type Card struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
}

// String returns a compact representation such as "AS" or "10H".
func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// Value returns the blackjack face value: faces count 10, aces count 11
// initially (Score reduces them to 1 while the hand would bust).
func (c Card) Value() int {
	switch c.Rank {
	case "A":
		return 11
	case "K", "Q", "J", "10":
		return 10
	default:
		return int(c.Rank[0] - '0')
	}
}

// BaccaratValue returns the baccarat face value: faces and tens count 0,
// aces count 1.
func (c Card) BaccaratValue() int {
	switch c.Rank {
	case "A":
		return 1
	case "K", "Q", "J", "10":
		return 0
	default:
		return int(c.Rank[0] - '0')
	}
}

// IsAce reports whether the card is an ace.
func (c Card) IsAce() bool {
	return c.Rank == "A"
}

// SplitValue returns the rank value used for blackjack split eligibility.
// Ten-value cards (10, J, Q, K) are fungible with each other; aces use 11.
func (c Card) SplitValue() int {
	return c.Value()
}

// NewDeck returns a full 52-card deck shuffled with an unbiased in-place
// shuffle from the given source.
func NewDeck(src rng.Source) []Card {
	deck := make([]Card, 0, 52)
	for _, s := range suits {
		for _, r := range ranks {
			deck = append(deck, Card{Rank: r, Suit: s})
		}
	}
	rng.Shuffle(src, len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	return deck
}

// Draw removes and returns the last card of the deck.
func Draw(deck []Card) (Card, []Card, error) {
	if len(deck) == 0 {
		return Card{}, deck, ErrEmptyDeck
	}
	c := deck[len(deck)-1]
	return c, deck[:len(deck)-1], nil
}

// Score returns the blackjack total of a hand. Aces count 11, then are
// reduced to 1 one at a time while the total exceeds 21.
func Score(hand []Card) int {
	total := 0
	aces := 0
	for _, c := range hand {
		total += c.Value()
		if c.IsAce() {
			aces++
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total
}

// BaccaratScore returns the mod-10 total of a baccarat hand.
func BaccaratScore(hand []Card) int {
	total := 0
	for _, c := range hand {
		total += c.BaccaratValue()
	}
	return total % 10
}
