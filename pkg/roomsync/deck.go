package roomsync

import "strconv"

// Deck is the fixed ordered set of numeric estimation cards.
var Deck = []string{"0", "1", "2", "3", "5", "8", "13", "21", "34", "55", "89"}

// Reserved non-numeric tokens.
const (
	TokenUnknown   = "?"
	TokenBreak     = "☕"
	TokenWithdrawn = ""
)

var deckIndex = buildDeckIndex()

func buildDeckIndex() map[string]int {
	m := make(map[string]int, len(Deck))
	for i, v := range Deck {
		m[v] = i
	}
	return m
}

// ValidToken reports whether value is a deck card, a reserved token,
// or the empty withdrawal token. Anything else is rejected at the edge
// and ignored by replicas rather than crashing aggregation.
func ValidToken(value string) bool {
	if value == TokenUnknown || value == TokenBreak || value == TokenWithdrawn {
		return true
	}
	_, ok := deckIndex[value]
	return ok
}

// NumericValue returns the numeric weight of a deck card. Reserved
// tokens and unknown values report ok=false and never contribute to
// an average.
func NumericValue(value string) (float64, bool) {
	if _, ok := deckIndex[value]; !ok {
		return 0, false
	}
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// DeckIndex returns the position of a card in the deck order, or -1
// for tokens that are not numeric cards. Tally output and agreement
// tie-breaks iterate in this order so results are deterministic.
func DeckIndex(value string) int {
	if i, ok := deckIndex[value]; ok {
		return i
	}
	return -1
}
