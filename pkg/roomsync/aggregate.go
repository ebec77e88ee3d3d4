package roomsync

import "math"

// TallyEntry is the count of one card value, reported in deck order.
type TallyEntry struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// AggregateResult is the revealed-round summary. Average is nil when
// no eligible numeric votes exist.
type AggregateResult struct {
	Average       *float64     `json:"average"`
	AgreementPct  int          `json:"agreementPct"`
	Top           string       `json:"top,omitempty"`
	Tally         []TallyEntry `json:"tally"`
	EligibleCount int          `json:"eligibleCount"`
}

// Aggregate computes the revealed summary from a vote snapshot.
// Spectators' entries and non-numeric tokens are dropped before any
// math. Recomputed from scratch on every ledger mutation while
// revealed; participant counts are small enough that the O(n) pass
// beats maintaining an incremental accumulator.
func Aggregate(votes map[string]string, spectators map[string]bool) AggregateResult {
	counts := make(map[string]int)
	var sum float64
	var n int

	for id, value := range votes {
		if spectators[id] {
			continue
		}
		num, ok := NumericValue(value)
		if !ok {
			continue
		}
		counts[value]++
		sum += num
		n++
	}

	res := AggregateResult{EligibleCount: n}
	if n == 0 {
		return res
	}

	avg := math.Round(sum/float64(n)*10) / 10
	res.Average = &avg

	// Mode in deck order: on an exact tie the lower card wins the
	// "consensus" label, which keeps the output deterministic.
	modeCount := 0
	for _, card := range Deck {
		c := counts[card]
		if c > 0 {
			res.Tally = append(res.Tally, TallyEntry{Value: card, Count: c})
		}
		if c > modeCount {
			modeCount = c
			res.Top = card
		}
	}
	res.AgreementPct = int(math.Round(100 * float64(modeCount) / float64(n)))
	return res
}
