package round

import (
	"bytes"
	"testing"

	"github.com/rondonetworks/rondo/src/crypto"
)

func TestMergeSenderClaims(t *testing.T) {
	base := testRound(t, 5)
	sender := base.Slots[0].PubKeyHex
	peer := base.Slots[1].PubKeyHex

	candidate := base.Clone()
	cslot := candidate.GetSlot(sender)
	mineSlot(cslot, 1, 3)
	cslot.SupposedOrderOfNextRound = 3
	cslot.ImpliedIrreversibleBlockHeight = 10
	if err := cslot.SetEncryptedPiece(peer, []byte("piece")); err != nil {
		t.Fatalf("err: %v", err)
	}

	merged, err := Merge(base, candidate, sender)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	mslot := merged.GetSlot(sender)
	if !bytes.Equal(mslot.OutValue, cslot.OutValue) {
		t.Fatal("OutValue not merged")
	}
	if mslot.FinalOrderOfNextRound != 3 {
		t.Fatalf("final order: got %d, want 3", mslot.FinalOrderOfNextRound)
	}
	if mslot.ImpliedIrreversibleBlockHeight != 10 {
		t.Fatalf("implied height: got %d, want 10", mslot.ImpliedIrreversibleBlockHeight)
	}
	if !bytes.Equal(mslot.EncryptedPieces[peer], []byte("piece")) {
		t.Fatal("encrypted piece not merged")
	}

	// base stays untouched
	if base.GetSlot(sender).Mined() {
		t.Fatal("merge mutated the base round")
	}
}

func TestMergeRejectsPeerSecrets(t *testing.T) {
	base := testRound(t, 5)
	sender := base.Slots[0].PubKeyHex
	peer := base.Slots[1].PubKeyHex

	assertions := []func(*MinerSlot){
		func(s *MinerSlot) { s.OutValue = crypto.SHA256([]byte("x")) },
		func(s *MinerSlot) { s.InValue = []byte("secret") },
		func(s *MinerSlot) { s.PreviousInValue = []byte("secret") },
	}

	for i, assert := range assertions {
		candidate := base.Clone()
		mineSlot(candidate.GetSlot(sender), 1, 1)
		assert(candidate.GetSlot(peer))

		if _, err := Merge(base, candidate, sender); err == nil {
			t.Fatalf("assertion %d on a peer's secrets should be rejected", i)
		}
	}
}

func TestMergePeerFinalOrder(t *testing.T) {
	base := testRound(t, 5)
	sender := base.Slots[0].PubKeyHex
	peer := base.Slots[1].PubKeyHex

	candidate := base.Clone()
	mineSlot(candidate.GetSlot(sender), 1, 1)
	candidate.GetSlot(peer).FinalOrderOfNextRound = 4

	merged, err := Merge(base, candidate, sender)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if merged.GetSlot(peer).FinalOrderOfNextRound != 4 {
		t.Fatal("peer final order reassignment not merged")
	}
}

func TestMergeDecryptedPieceContributor(t *testing.T) {
	base := testRound(t, 5)
	sender := base.Slots[0].PubKeyHex
	peer := base.Slots[1].PubKeyHex
	other := base.Slots[2].PubKeyHex

	// a sender may contribute its own decryption of a peer's secret
	candidate := base.Clone()
	mineSlot(candidate.GetSlot(sender), 1, 1)
	if err := candidate.GetSlot(peer).SetDecryptedPiece(sender, []byte("mine")); err != nil {
		t.Fatalf("err: %v", err)
	}

	merged, err := Merge(base, candidate, sender)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !bytes.Equal(merged.GetSlot(peer).DecryptedPieces[sender], []byte("mine")) {
		t.Fatal("own decrypted piece not merged")
	}

	// but never a piece attributed to somebody else
	candidate = base.Clone()
	mineSlot(candidate.GetSlot(sender), 1, 1)
	if err := candidate.GetSlot(peer).SetDecryptedPiece(other, []byte("forged")); err != nil {
		t.Fatalf("err: %v", err)
	}

	if _, err := Merge(base, candidate, sender); err == nil {
		t.Fatal("a piece attributed to a third party should be rejected")
	}
}

func TestMergePieceDisplacement(t *testing.T) {
	base := testRound(t, 5)
	sender := base.Slots[0].PubKeyHex
	peer := base.Slots[1].PubKeyHex

	if err := base.GetSlot(peer).SetDecryptedPiece(sender, []byte("original")); err != nil {
		t.Fatalf("err: %v", err)
	}

	// re-asserting the identical piece merges fine
	candidate := base.Clone()
	mineSlot(candidate.GetSlot(sender), 1, 1)

	if _, err := Merge(base, candidate, sender); err != nil {
		t.Fatalf("err: %v", err)
	}

	// a differing piece for the same key does not
	displaced := base.Clone()
	mineSlot(displaced.GetSlot(sender), 1, 1)
	displaced.GetSlot(peer).DecryptedPieces[sender] = []byte("displaced")

	if _, err := Merge(base, displaced, sender); err == nil {
		t.Fatal("displacing a recorded piece should be rejected")
	}
}

func TestMergePreservesRevealedInValue(t *testing.T) {
	base := testRound(t, 5)
	sender := base.Slots[0].PubKeyHex

	// a reveal already reconstructed the sender's previous in-value
	base.GetSlot(sender).PreviousInValue = []byte("revealed")

	candidate := base.Clone()
	cslot := candidate.GetSlot(sender)
	cslot.PreviousInValue = nil
	mineSlot(cslot, 1, 1)

	merged, err := Merge(base, candidate, sender)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !bytes.Equal(merged.GetSlot(sender).PreviousInValue, []byte("revealed")) {
		t.Fatal("an omitted previous in-value must not erase the reveal")
	}
}

func TestMergeIndependence(t *testing.T) {
	base := testRound(t, 5)
	a := base.Slots[0].PubKeyHex
	b := base.Slots[1].PubKeyHex

	ca := base.Clone()
	mineSlot(ca.GetSlot(a), 1, 1)
	cb := base.Clone()
	mineSlot(cb.GetSlot(b), 2, 2)

	ma, err := Merge(base, ca, a)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	mb, err := Merge(base, cb, b)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	// each merge sees only its own candidate's claims
	if ma.GetSlot(b).Mined() {
		t.Fatal("first merge leaked into the second candidate's slot")
	}
	if mb.GetSlot(a).Mined() {
		t.Fatal("second merge leaked into the first candidate's slot")
	}

	// and mutating one result never touches the other
	ma.GetSlot(a).OutValue[0] ^= 0xFF
	if mb.GetSlot(a).Mined() {
		t.Fatal("merged rounds share slot storage")
	}
}

func TestMergeUnknownParticipants(t *testing.T) {
	base := testRound(t, 5)
	sender := base.Slots[0].PubKeyHex

	// sender missing from the candidate
	candidate := testRound(t, 5)
	if _, err := Merge(base, candidate, "0X09"); err == nil {
		t.Fatal("a sender without a candidate slot should be rejected")
	}

	// candidate carrying a miner the base does not know
	candidate = base.Clone()
	mineSlot(candidate.GetSlot(sender), 1, 1)
	candidate.AddSlot(NewMinerSlot("0X09"))
	if _, err := Merge(base, candidate, sender); err == nil {
		t.Fatal("an unknown miner in the candidate should be rejected")
	}

	// round numbers must line up
	candidate = base.Clone()
	candidate.Number = 2
	mineSlot(candidate.GetSlot(sender), 1, 1)
	if _, err := Merge(base, candidate, sender); err == nil {
		t.Fatal("mismatched round numbers should be rejected")
	}
}
