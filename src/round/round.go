package round

import (
	"fmt"
	"sort"
	"time"

	"github.com/rondonetworks/rondo/src/common"
)

// Round is one scheduling epoch of the consensus core.
type Round struct {
	// Number increases by exactly 1 per round transition.
	Number uint64

	// TermNumber increases only on a term transition.
	TermNumber uint64

	// Slots holds one MinerSlot per miner. The slice order is the insertion
	// order and is canonical for hashing. It is NOT the mining order.
	Slots []*MinerSlot

	// ConfirmedIrreversibleBlockHeight and its round number form the last
	// irreversible block fact. The pair is monotonically non-decreasing
	// across all transitions.
	ConfirmedIrreversibleBlockHeight      uint64
	ConfirmedIrreversibleBlockRoundNumber uint64

	// ExtraBlockProducerOfPreviousRound is the public key of the miner that
	// was designated to terminate the previous round. It is derived by the
	// generator, never freely chosen.
	ExtraBlockProducerOfPreviousRound string

	// IsMinerListJustChanged is true only on the first round of a term.
	IsMinerListJustChanged bool

	byPubKey map[string]*MinerSlot
}

// NewRound creates an empty round.
func NewRound(number, termNumber uint64) *Round {
	return &Round{
		Number:     number,
		TermNumber: termNumber,
		byPubKey:   map[string]*MinerSlot{},
	}
}

// AddSlot appends a slot in canonical order. A duplicate public key is
// rejected.
func (r *Round) AddSlot(slot *MinerSlot) error {
	r.index()
	if _, ok := r.byPubKey[slot.PubKeyHex]; ok {
		return common.NewStoreErr("Slots", common.KeyAlreadyExists, slot.PubKeyHex)
	}
	r.Slots = append(r.Slots, slot)
	r.byPubKey[slot.PubKeyHex] = slot
	return nil
}

// GetSlot returns the slot of the given miner, or nil when the miner is not
// part of this round.
func (r *Round) GetSlot(pubKeyHex string) *MinerSlot {
	r.index()
	return r.byPubKey[pubKeyHex]
}

// HasMiner reports whether the miner is part of this round.
func (r *Round) HasMiner(pubKeyHex string) bool {
	return r.GetSlot(pubKeyHex) != nil
}

// MinerCount returns the number of miners scheduled in this round.
func (r *Round) MinerCount() int {
	return len(r.Slots)
}

// PubKeys returns the miners' public keys in canonical order.
func (r *Round) PubKeys() []string {
	res := []string{}
	for _, s := range r.Slots {
		res = append(res, s.PubKeyHex)
	}
	return res
}

// OrderedSlots returns the slots sorted by mining order.
func (r *Round) OrderedSlots() []*MinerSlot {
	res := append([]*MinerSlot{}, r.Slots...)
	sort.Slice(res, func(i, j int) bool { return res[i].Order < res[j].Order })
	return res
}

// FirstSlot returns the slot with mining order 1.
func (r *Round) FirstSlot() *MinerSlot {
	for _, s := range r.Slots {
		if s.Order == 1 {
			return s
		}
	}
	return nil
}

// ExtraBlockProducer returns the slot designated to terminate this round.
func (r *Round) ExtraBlockProducer() *MinerSlot {
	for _, s := range r.Slots {
		if s.IsExtraBlockProducer {
			return s
		}
	}
	return nil
}

// MinedSlots returns the slots of miners that produced their full block in
// this round, in canonical order. The set is derived from the round's own
// execution history.
func (r *Round) MinedSlots() []*MinerSlot {
	res := []*MinerSlot{}
	for _, s := range r.Slots {
		if s.Mined() {
			res = append(res, s)
		}
	}
	return res
}

// StartTime returns the expected mining time of the first slot, which is when
// the round's schedule begins.
func (r *Round) StartTime() time.Time {
	first := r.FirstSlot()
	if first == nil {
		return time.Time{}
	}
	return first.ExpectedMiningTime
}

// Started reports whether the round's first time slot has been reached.
func (r *Round) Started(now time.Time) bool {
	return !now.Before(r.StartTime())
}

// IsTimeSlotPassed reports whether the miner's time slot has elapsed.
func (r *Round) IsTimeSlotPassed(pubKeyHex string, now time.Time, interval time.Duration) bool {
	slot := r.GetSlot(pubKeyHex)
	if slot == nil {
		return false
	}
	return !now.Before(slot.ExpectedMiningTime.Add(interval))
}

// ExtraBlockMiningTime returns the time at which the extra block producer is
// expected to terminate the round: one interval after the last time slot.
func (r *Round) ExtraBlockMiningTime(interval time.Duration) time.Time {
	return r.StartTime().Add(time.Duration(r.MinerCount()) * interval)
}

// Clone returns a deep copy of the round. No field of the copy aliases the
// original.
func (r *Round) Clone() *Round {
	c := NewRound(r.Number, r.TermNumber)
	c.ConfirmedIrreversibleBlockHeight = r.ConfirmedIrreversibleBlockHeight
	c.ConfirmedIrreversibleBlockRoundNumber = r.ConfirmedIrreversibleBlockRoundNumber
	c.ExtraBlockProducerOfPreviousRound = r.ExtraBlockProducerOfPreviousRound
	c.IsMinerListJustChanged = r.IsMinerListJustChanged

	for _, s := range r.Slots {
		c.AddSlot(s.Clone())
	}

	return c
}

// Validate checks this round's structural invariants: mining orders form the
// set {1..N} with no duplicates, and exactly one slot is marked as extra
// block producer.
func (r *Round) Validate() error {
	n := r.MinerCount()
	if n == 0 {
		return fmt.Errorf("round %d has no miners", r.Number)
	}

	orders := map[int]bool{}
	ebpCount := 0
	for _, s := range r.Slots {
		if s.Order < 1 || s.Order > n {
			return fmt.Errorf("round %d: order %d of %s out of range [1,%d]", r.Number, s.Order, s.PubKeyHex, n)
		}
		if orders[s.Order] {
			return fmt.Errorf("round %d: duplicate order %d", r.Number, s.Order)
		}
		orders[s.Order] = true

		if s.IsExtraBlockProducer {
			ebpCount++
		}
	}

	if ebpCount != 1 {
		return fmt.Errorf("round %d: %d extra block producers, want exactly 1", r.Number, ebpCount)
	}

	return nil
}

// index rebuilds the pubkey lookup map. The map is not serialized, so a round
// that went through a codec needs it rebuilt lazily.
func (r *Round) index() {
	if r.byPubKey != nil && len(r.byPubKey) == len(r.Slots) {
		return
	}
	r.byPubKey = map[string]*MinerSlot{}
	for _, s := range r.Slots {
		r.byPubKey[s.PubKeyHex] = s
	}
}
