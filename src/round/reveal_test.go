package round

import (
	"bytes"
	"testing"

	"github.com/rondonetworks/rondo/src/crypto"
	"github.com/rondonetworks/rondo/src/crypto/vss"
)

func TestSharingThreshold(t *testing.T) {
	cases := []struct{ n, threshold int }{
		{1, 1},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, 3},
		{7, 4},
		{9, 6},
	}
	for _, c := range cases {
		if got := SharingThreshold(c.n); got != c.threshold {
			t.Fatalf("threshold(%d): got %d, want %d", c.n, got, c.threshold)
		}
	}
}

// revealFixture builds a previous round in which miner 0 committed to
// `secret`, and a current round carrying the peers' decrypted shares of it.
func revealFixture(t *testing.T, secret []byte, pieces int) (current, previous *Round) {
	pubKeys := testPubKeys(5)

	previous = testRound(t, 5)
	prevSlot := previous.GetSlot(pubKeys[0])
	prevSlot.OutValue = crypto.SHA256(secret)

	shares, err := vss.Split(secret, 5, SharingThreshold(5))
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	current = testRound(t, 5)
	current.Number = 2
	curSlot := current.GetSlot(pubKeys[0])
	for i := 0; i < pieces; i++ {
		// peers 1..pieces each contribute their own decryption
		if err := curSlot.SetDecryptedPiece(pubKeys[i+1], shares[i].Bytes()); err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	return current, previous
}

func TestRevealSharedInValues(t *testing.T) {
	secret := crypto.SHA256([]byte("miner zero secret"))

	current, previous := revealFixture(t, secret, 3)

	RevealSharedInValues(previous, current)

	got := current.Slots[0].PreviousInValue
	if !bytes.Equal(got, secret) {
		t.Fatalf("previous in-value: got %X, want %X", got, secret)
	}
}

func TestRevealBelowThreshold(t *testing.T) {
	secret := crypto.SHA256([]byte("miner zero secret"))

	// threshold for 5 miners is 3, two pieces are not enough
	current, previous := revealFixture(t, secret, 2)

	RevealSharedInValues(previous, current)

	if len(current.Slots[0].PreviousInValue) != 0 {
		t.Fatal("reconstruction below threshold should not happen")
	}
}

func TestRevealRejectsCorruptedShare(t *testing.T) {
	secret := crypto.SHA256([]byte("miner zero secret"))

	current, previous := revealFixture(t, secret, 3)

	// flip one bit of one contributed piece; Combine still yields a value,
	// but it no longer hashes to the published commitment
	pubKeys := testPubKeys(5)
	piece := current.Slots[0].DecryptedPieces[pubKeys[1]]
	piece[len(piece)-1] ^= 0x01

	RevealSharedInValues(previous, current)

	if len(current.Slots[0].PreviousInValue) != 0 {
		t.Fatal("a corrupted share must not produce an accepted reveal")
	}
}

func TestRevealSkipsKnownValues(t *testing.T) {
	secret := crypto.SHA256([]byte("miner zero secret"))

	current, previous := revealFixture(t, secret, 3)

	already := []byte("already-revealed")
	current.Slots[0].PreviousInValue = already

	RevealSharedInValues(previous, current)

	if !bytes.Equal(current.Slots[0].PreviousInValue, already) {
		t.Fatal("a known previous in-value must not be recomputed")
	}

	RevealSharedInValues(nil, current)
}
