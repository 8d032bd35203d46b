package round

import (
	"sort"
)

// CalculateIrreversibleHeight computes a candidate last-irreversible-block
// height from a Byzantine quorum of self-reported implied heights.
//
// The reports considered are the previous round's implied heights of exactly
// those miners that mined the current round; the mined set comes from the
// current round's own execution history. When fewer than 2N/3+1 such reports
// exist, no height is computed. Otherwise the reports are sorted ascending
// and the value at index (count-1)/3 is selected: at most N/3 Byzantine
// miners can inflate it, while honest-majority agreement is required to
// advance it.
//
// The returned height still has to clear the monotonicity check against the
// currently confirmed height; ok only means a quorum existed.
func CalculateIrreversibleHeight(current, previous *Round) (height uint64, ok bool) {
	if previous == nil {
		return 0, false
	}

	heights := []uint64{}
	for _, s := range current.MinedSlots() {
		prevSlot := previous.GetSlot(s.PubKeyHex)
		if prevSlot == nil {
			continue
		}
		heights = append(heights, prevSlot.ImpliedIrreversibleBlockHeight)
	}

	quorum := 2*previous.MinerCount()/3 + 1
	if len(heights) < quorum {
		return 0, false
	}

	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

	return heights[(len(heights)-1)/3], true
}

// SetIrreversible records a new last-irreversible-block fact on the round.
// The height/round pair only ever moves forward; a stale candidate is
// ignored and reported as false.
func (r *Round) SetIrreversible(height, roundNumber uint64) bool {
	if height <= r.ConfirmedIrreversibleBlockHeight {
		return false
	}
	if roundNumber < r.ConfirmedIrreversibleBlockRoundNumber {
		return false
	}
	r.ConfirmedIrreversibleBlockHeight = height
	r.ConfirmedIrreversibleBlockRoundNumber = roundNumber
	return true
}
