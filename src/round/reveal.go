package round

import (
	"bytes"

	"github.com/rondonetworks/rondo/src/crypto"
	"github.com/rondonetworks/rondo/src/crypto/vss"
)

// SharingThreshold returns the number of decrypted pieces required to
// reconstruct a miner's in-value in a round of n miners: 2n/3, so that the
// scheme stays workable with up to n/3 miners withholding their pieces.
func SharingThreshold(n int) int {
	t := 2 * n / 3
	if t < 1 {
		t = 1
	}
	return t
}

// RevealSharedInValues reconstructs, for every miner of the current round
// whose previous in-value is still unknown, the in-value it committed to in
// the previous round, from the decrypted pieces its peers have contributed.
//
// A reconstruction is accepted into state only when the candidate hashes to
// the out-value the miner committed to in the previous round. This is the
// sole path by which one miner's secret enters another miner's view: a
// participant can never directly assert a peer's in-value, it can only
// contribute its own decryption and let the reconstruction speak.
func RevealSharedInValues(previous, current *Round) {
	if previous == nil {
		return
	}

	threshold := SharingThreshold(previous.MinerCount())

	for _, slot := range current.Slots {
		if len(slot.PreviousInValue) > 0 {
			continue
		}

		if len(slot.DecryptedPieces) < threshold {
			continue
		}

		prevSlot := previous.GetSlot(slot.PubKeyHex)
		if prevSlot == nil || len(prevSlot.OutValue) == 0 {
			continue
		}

		shares := []*vss.Share{}
		for _, piece := range slot.DecryptedPieces {
			share, err := vss.ShareFromBytes(piece)
			if err != nil {
				continue
			}
			shares = append(shares, share)
		}
		if len(shares) < threshold {
			continue
		}

		candidate, err := vss.Combine(shares)
		if err != nil {
			continue
		}

		// the candidate must match the published commitment
		if !bytes.Equal(crypto.SHA256(candidate), prevSlot.OutValue) {
			continue
		}

		slot.PreviousInValue = candidate
	}
}
