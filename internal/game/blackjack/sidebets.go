package blackjack

import (
	"sort"

	"chiphouse/internal/game/cards"
)

// Side-wager outcome kinds.
const (
	PairMixed   = "mixed_pair"
	PairColored = "colored_pair"
	PairPerfect = "perfect_pair"

	ThreeFlush         = "flush"
	ThreeStraight      = "straight"
	ThreeTrips         = "three_of_a_kind"
	ThreeStraightFlush = "straight_flush"
	ThreeSuitedTrips   = "suited_three_of_a_kind"
)

// pairRatios and threeCardRatios are total-return multiples on a hit.
var pairRatios = map[string]float64{
	PairMixed:   6,
	PairColored: 12,
	PairPerfect: 25,
}

var threeCardRatios = map[string]float64{
	ThreeFlush:         5,
	ThreeStraight:      10,
	ThreeTrips:         30,
	ThreeStraightFlush: 40,
	ThreeSuitedTrips:   100,
}

// SideResults records the side wagers placed at deal time and their
// outcomes. Side wagers settle once, at the deal, independently of the
// main hands.
type SideResults struct {
	PairWager   int64  `json:"pair_wager,omitempty"`
	PairKind    string `json:"pair_kind,omitempty"`
	PairReturn  int64  `json:"pair_return,omitempty"`
	ThreeWager  int64  `json:"three_card_wager,omitempty"`
	ThreeKind   string `json:"three_card_kind,omitempty"`
	ThreeReturn int64  `json:"three_card_return,omitempty"`
}

// Return is the total side-wager return.
func (s SideResults) Return() int64 {
	return s.PairReturn + s.ThreeReturn
}

func red(suit string) bool {
	return suit == cards.Hearts || suit == cards.Diamonds
}

// EvaluatePair classifies the player's first two cards for the pair
// wager. Returns the empty kind when the wager misses.
func EvaluatePair(a, b cards.Card) string {
	if a.Rank != b.Rank {
		return ""
	}
	switch {
	case a.Suit == b.Suit:
		return PairPerfect
	case red(a.Suit) == red(b.Suit):
		return PairColored
	default:
		return PairMixed
	}
}

// straightRank maps a rank to its three-card-poker ordering value.
func straightRank(r string) int {
	switch r {
	case "A":
		return 14
	case "K":
		return 13
	case "Q":
		return 12
	case "J":
		return 11
	case "10":
		return 10
	default:
		return int(r[0] - '0')
	}
}

func isStraight(a, b, c cards.Card) bool {
	v := []int{straightRank(a.Rank), straightRank(b.Rank), straightRank(c.Rank)}
	sort.Ints(v)
	if v[0]+1 == v[1] && v[1]+1 == v[2] {
		return true
	}
	// Ace plays low in A-2-3.
	return v[0] == 2 && v[1] == 3 && v[2] == 14
}

// EvaluateThreeCard classifies the player's two cards plus the dealer
// up-card for the three-card wager. Returns the empty kind on a miss.
func EvaluateThreeCard(a, b, c cards.Card) string {
	flush := a.Suit == b.Suit && b.Suit == c.Suit
	trips := a.Rank == b.Rank && b.Rank == c.Rank
	straight := isStraight(a, b, c)
	switch {
	case trips && flush:
		return ThreeSuitedTrips
	case straight && flush:
		return ThreeStraightFlush
	case trips:
		return ThreeTrips
	case straight:
		return ThreeStraight
	case flush:
		return ThreeFlush
	default:
		return ""
	}
}
