package round

import (
	"bytes"
	"testing"
	"time"

	"github.com/rondonetworks/rondo/src/miners"
)

func TestGenerateFirstRound(t *testing.T) {
	ms := miners.NewMinerSetFromPubKeys(testPubKeys(5))

	r, err := GenerateFirstRound(ms, testStartTime(), testInterval)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if r.Number != 1 || r.TermNumber != 1 {
		t.Fatalf("round/term: got %d/%d, want 1/1", r.Number, r.TermNumber)
	}
	if !r.IsMinerListJustChanged {
		t.Fatal("genesis round should mark the miner list as just changed")
	}

	// orders follow the canonical miner-set order
	for i, pk := range ms.PubKeys() {
		slot := r.GetSlot(pk)
		if slot == nil {
			t.Fatalf("missing slot for %s", pk)
		}
		if slot.Order != i+1 {
			t.Fatalf("order of %s: got %d, want %d", pk, slot.Order, i+1)
		}
		want := testStartTime().Add(time.Duration(i+1) * testInterval)
		if !slot.ExpectedMiningTime.Equal(want) {
			t.Fatalf("expected time of %s: got %v, want %v", pk, slot.ExpectedMiningTime, want)
		}
	}

	if r.ExtraBlockProducer() == nil {
		t.Fatal("genesis round should designate an extra block producer")
	}

	// the designation is a function of the miner set, not of chance
	again, err := GenerateFirstRound(miners.NewMinerSetFromPubKeys(testPubKeys(5)), testStartTime(), testInterval)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if again.ExtraBlockProducer().PubKeyHex != r.ExtraBlockProducer().PubKeyHex {
		t.Fatal("extra block producer designation should be deterministic")
	}

	if _, err := GenerateFirstRound(miners.NewMinerSetFromPubKeys(nil), testStartTime(), testInterval); err == nil {
		t.Fatal("empty miner set should be rejected")
	}
}

func TestGenerateNextRound(t *testing.T) {
	current := testRound(t, 5)

	// everyone but the 3rd miner mined; final orders 5,4,3,1 claimed
	finalOrders := map[int]int{0: 5, 1: 4, 3: 3, 4: 1}
	for i, fo := range finalOrders {
		mineSlot(current.Slots[i], byte(i+1), fo)
	}

	blockTime := current.ExtraBlockMiningTime(testInterval)

	next, err := GenerateNextRound(current, blockTime, testInterval)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if next.Number != 2 || next.TermNumber != 1 {
		t.Fatalf("round/term: got %d/%d, want 2/1", next.Number, next.TermNumber)
	}
	if err := next.Validate(); err != nil {
		t.Fatalf("err: %v", err)
	}

	// miners who mined keep their claimed final orders
	for i, fo := range finalOrders {
		slot := next.GetSlot(current.Slots[i].PubKeyHex)
		if slot.Order != fo {
			t.Fatalf("order of miner %d: got %d, want %d", i, slot.Order, fo)
		}
		if slot.MissedTimeSlots != 0 {
			t.Fatalf("miner %d should not have a missed slot", i)
		}
	}

	// the absent miner gets the only free order and a missed slot
	absent := next.GetSlot(current.Slots[2].PubKeyHex)
	if absent.Order != 2 {
		t.Fatalf("absent miner order: got %d, want 2", absent.Order)
	}
	if absent.MissedTimeSlots != 1 {
		t.Fatalf("absent miner missed slots: got %d, want 1", absent.MissedTimeSlots)
	}

	// cryptographic fields start empty, counters restart per slot
	for _, s := range next.Slots {
		if len(s.OutValue) > 0 || len(s.Signature) > 0 || len(s.InValue) > 0 || len(s.PreviousInValue) > 0 {
			t.Fatalf("slot %s carries stale crypto material", s.PubKeyHex)
		}
		if s.ProducedTinyBlocks != 0 {
			t.Fatalf("slot %s tiny block counter not reset", s.PubKeyHex)
		}
	}

	if next.ExtraBlockProducerOfPreviousRound != current.ExtraBlockProducer().PubKeyHex {
		t.Fatal("previous terminator not carried over")
	}

	// re-derivation is exact, field for field
	again, err := GenerateNextRound(current, blockTime, testInterval)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	h1, _ := next.Hash()
	h2, _ := again.Hash()
	if !bytes.Equal(h1, h2) {
		t.Fatal("next round derivation should be deterministic")
	}
}

func TestGenerateNextRoundRejectsBadOrders(t *testing.T) {
	t.Run("duplicate final orders", func(t *testing.T) {
		current := testRound(t, 5)
		for i := 0; i < 5; i++ {
			mineSlot(current.Slots[i], byte(i+1), 1)
		}
		if _, err := GenerateNextRound(current, testStartTime(), testInterval); err == nil {
			t.Fatal("duplicate final orders should be rejected")
		}
	})

	t.Run("order out of range", func(t *testing.T) {
		current := testRound(t, 5)
		mineSlot(current.Slots[0], 1, 6)
		if _, err := GenerateNextRound(current, testStartTime(), testInterval); err == nil {
			t.Fatal("final order above miner count should be rejected")
		}
	})

	t.Run("no mined slots", func(t *testing.T) {
		current := testRound(t, 5)
		if _, err := GenerateNextRound(current, testStartTime(), testInterval); err == nil {
			t.Fatal("a round nobody mined cannot be generated from")
		}
	})
}

func TestGenerateNextTermRound(t *testing.T) {
	current := testRound(t, 5)
	for i := 0; i < 5; i++ {
		mineSlot(current.Slots[i], byte(i+1), i+1)
		current.Slots[i].MissedTimeSlots = 3
	}

	// the new term drops one miner
	ms := miners.NewMinerSetFromPubKeys(testPubKeys(4))
	blockTime := current.ExtraBlockMiningTime(testInterval)

	next, err := GenerateNextTermRound(current, ms, blockTime, testInterval)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if next.Number != 2 || next.TermNumber != 2 {
		t.Fatalf("round/term: got %d/%d, want 2/2", next.Number, next.TermNumber)
	}
	if !next.IsMinerListJustChanged {
		t.Fatal("term round should mark the miner list as just changed")
	}
	if next.MinerCount() != 4 {
		t.Fatalf("miner count: got %d, want 4", next.MinerCount())
	}
	if err := next.Validate(); err != nil {
		t.Fatalf("err: %v", err)
	}

	// counters start fresh with the new list
	for _, s := range next.Slots {
		if s.ProducedBlocks != 0 || s.MissedTimeSlots != 0 {
			t.Fatalf("slot %s carries counters into the new term", s.PubKeyHex)
		}
	}

	again, err := GenerateNextTermRound(current, miners.NewMinerSetFromPubKeys(testPubKeys(4)), blockTime, testInterval)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	h1, _ := next.Hash()
	h2, _ := again.Hash()
	if !bytes.Equal(h1, h2) {
		t.Fatal("term round derivation should be deterministic")
	}
}

func TestSupposedOrder(t *testing.T) {
	for n := 1; n <= 21; n++ {
		for seed := byte(0); seed < 50; seed++ {
			o := SupposedOrder([]byte{seed}, n)
			if o < 1 || o > n {
				t.Fatalf("SupposedOrder out of range: %d for n=%d", o, n)
			}
		}
	}

	if SupposedOrder([]byte{1}, 5) != SupposedOrder([]byte{1}, 5) {
		t.Fatal("SupposedOrder should be deterministic")
	}
}
