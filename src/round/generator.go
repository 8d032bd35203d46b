package round

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/rondonetworks/rondo/src/crypto"
	"github.com/rondonetworks/rondo/src/miners"
)

// GenerateFirstRound produces the genesis round of a chain from the genesis
// miner set. Orders follow the canonical miner-set order and the extra block
// producer is designated pseudo-randomly from the miner-set hash.
func GenerateFirstRound(ms *miners.MinerSet, startTime time.Time, interval time.Duration) (*Round, error) {
	if ms.Len() == 0 {
		return nil, fmt.Errorf("cannot generate a round without miners")
	}

	r := NewRound(1, 1)
	r.IsMinerListJustChanged = true

	for i, m := range ms.Miners {
		slot := NewMinerSlot(m.PubKeyHex)
		slot.Order = i + 1
		slot.ExpectedMiningTime = startTime.Add(time.Duration(slot.Order) * interval)
		r.AddSlot(slot)
	}

	seed, err := ms.Hash()
	if err != nil {
		return nil, err
	}
	markExtraBlockProducer(r, seed)

	if err := r.Validate(); err != nil {
		return nil, err
	}

	return r, nil
}

// GenerateNextRound produces the next round's schedule from the current
// round's participation data. It is deterministic: every node that re-derives
// it from the same current round and block time obtains an identical result,
// field for field.
//
// Miners who mined keep the final order they were assigned during the round.
// Miners who did not mine receive the remaining unused orders in ascending
// order and have their missed-slot counter incremented. All cryptographic
// per-slot fields start empty.
func GenerateNextRound(current *Round, blockTime time.Time, interval time.Duration) (*Round, error) {
	mined := current.MinedSlots()
	if len(mined) == 0 {
		return nil, fmt.Errorf("round %d has no mined slots to generate from", current.Number)
	}

	n := current.MinerCount()

	// final orders of miners who mined must already be distinct and in range
	occupied := map[int]string{}
	for _, s := range mined {
		o := s.FinalOrderOfNextRound
		if o < 1 || o > n {
			return nil, fmt.Errorf("final order %d of %s out of range [1,%d]", o, s.PubKeyHex, n)
		}
		if holder, ok := occupied[o]; ok {
			return nil, fmt.Errorf("final order %d assigned to both %s and %s", o, holder, s.PubKeyHex)
		}
		occupied[o] = s.PubKeyHex
	}

	free := []int{}
	for o := 1; o <= n; o++ {
		if _, ok := occupied[o]; !ok {
			free = append(free, o)
		}
	}
	sort.Ints(free)

	next := NewRound(current.Number+1, current.TermNumber)
	next.ConfirmedIrreversibleBlockHeight = current.ConfirmedIrreversibleBlockHeight
	next.ConfirmedIrreversibleBlockRoundNumber = current.ConfirmedIrreversibleBlockRoundNumber

	ebp := current.ExtraBlockProducer()
	if ebp == nil {
		return nil, fmt.Errorf("round %d has no extra block producer", current.Number)
	}
	next.ExtraBlockProducerOfPreviousRound = ebp.PubKeyHex

	for _, s := range current.Slots {
		slot := NewMinerSlot(s.PubKeyHex)
		slot.ProducedBlocks = s.ProducedBlocks
		slot.MissedTimeSlots = s.MissedTimeSlots

		if s.Mined() {
			slot.Order = s.FinalOrderOfNextRound
		} else {
			slot.Order = free[0]
			free = free[1:]
			slot.MissedTimeSlots++
		}

		slot.ExpectedMiningTime = blockTime.Add(time.Duration(slot.Order) * interval)

		next.AddSlot(slot)
	}

	markExtraBlockProducer(next, firstMinedSignature(current))

	if err := next.Validate(); err != nil {
		return nil, err
	}

	return next, nil
}

// CreditTerminator records the terminating block on the terminator's slot of
// a freshly generated round. The carryover produced by GenerateNextRound is
// derived from the state before the terminating block itself, so without the
// credit the terminator's cumulative counter would read one block short for
// the rest of the chain's history.
func (r *Round) CreditTerminator(pubKeyHex string) {
	slot := r.GetSlot(pubKeyHex)
	if slot == nil {
		return
	}
	slot.ProducedBlocks++
}

// GenerateNextTermRound produces the first round of the next term with a
// fresh miner list. Per-miner counters start from zero because the list just
// changed; the irreversible-block fields carry over unchanged.
func GenerateNextTermRound(current *Round, ms *miners.MinerSet, blockTime time.Time, interval time.Duration) (*Round, error) {
	if ms.Len() == 0 {
		return nil, fmt.Errorf("cannot generate a term round without miners")
	}

	next := NewRound(current.Number+1, current.TermNumber+1)
	next.IsMinerListJustChanged = true
	next.ConfirmedIrreversibleBlockHeight = current.ConfirmedIrreversibleBlockHeight
	next.ConfirmedIrreversibleBlockRoundNumber = current.ConfirmedIrreversibleBlockRoundNumber

	ebp := current.ExtraBlockProducer()
	if ebp == nil {
		return nil, fmt.Errorf("round %d has no extra block producer", current.Number)
	}
	next.ExtraBlockProducerOfPreviousRound = ebp.PubKeyHex

	for i, m := range ms.Miners {
		slot := NewMinerSlot(m.PubKeyHex)
		slot.Order = i + 1
		slot.ExpectedMiningTime = blockTime.Add(time.Duration(slot.Order) * interval)
		next.AddSlot(slot)
	}

	msHash, err := ms.Hash()
	if err != nil {
		return nil, err
	}
	markExtraBlockProducer(next, crypto.SimpleHashFromTwoHashes(msHash, firstMinedSignature(current)))

	if err := next.Validate(); err != nil {
		return nil, err
	}

	return next, nil
}

// SupposedOrder derives the mining order a signature implies for the next
// round: signature mod miner count, shifted into [1, minerCount].
func SupposedOrder(signature []byte, minerCount int) int {
	if minerCount == 0 {
		return 0
	}
	v := new(big.Int).SetBytes(crypto.SHA256(signature))
	return int(new(big.Int).Mod(v, big.NewInt(int64(minerCount))).Int64()) + 1
}

// firstMinedSignature returns the committed signature that seeds the next
// round's extra-block-producer designation: the signature of the first miner,
// in mining order, that actually mined.
func firstMinedSignature(r *Round) []byte {
	var first *MinerSlot
	for _, s := range r.MinedSlots() {
		if first == nil || s.Order < first.Order {
			first = s
		}
	}
	if first == nil {
		return nil
	}
	return first.Signature
}

// markExtraBlockProducer designates the extra block producer of a round as a
// pseudo-random function of a committed seed. The designation is derived,
// never freely chosen by the terminator.
func markExtraBlockProducer(r *Round, seed []byte) {
	order := SupposedOrder(seed, r.MinerCount())
	for _, s := range r.Slots {
		s.IsExtraBlockProducer = s.Order == order
	}
}
