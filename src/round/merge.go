package round

import (
	"fmt"
	"time"
)

// Merge applies the claims a candidate round carries for one sender onto a
// copy of the base round. It never mutates base or candidate: callers can
// compare the original against the merged result without interference, and
// two merges from different candidates never share underlying values.
//
// The claims a sender may carry are: every field of its own slot that a block
// of its own can legitimately set, the final-order reassignments of peers,
// and the sender's decrypted pieces of peers' secrets. Any other claim on a
// peer's slot is rejected.
func Merge(base *Round, candidate *Round, pubKeyHex string) (*Round, error) {
	if base.Number != candidate.Number {
		return nil, fmt.Errorf("cannot merge round %d into round %d", candidate.Number, base.Number)
	}

	cslot := candidate.GetSlot(pubKeyHex)
	if cslot == nil {
		return nil, fmt.Errorf("candidate round carries no slot for %s", pubKeyHex)
	}

	merged := base.Clone()

	slot := merged.GetSlot(pubKeyHex)
	if slot == nil {
		return nil, fmt.Errorf("sender %s is not part of round %d", pubKeyHex, base.Number)
	}

	slot.OutValue = append([]byte{}, cslot.OutValue...)
	slot.Signature = append([]byte{}, cslot.Signature...)
	slot.RandomProof = append([]byte{}, cslot.RandomProof...)
	// a reveal already reconstructed into base must not be erased by a
	// candidate that simply omits it
	if len(cslot.PreviousInValue) > 0 {
		slot.PreviousInValue = append([]byte{}, cslot.PreviousInValue...)
	}
	slot.SupposedOrderOfNextRound = cslot.SupposedOrderOfNextRound
	slot.FinalOrderOfNextRound = cslot.FinalOrderOfNextRound
	slot.ImpliedIrreversibleBlockHeight = cslot.ImpliedIrreversibleBlockHeight
	slot.ProducedBlocks = cslot.ProducedBlocks
	slot.ProducedTinyBlocks = cslot.ProducedTinyBlocks
	slot.ActualMiningTimes = append([]time.Time{}, cslot.ActualMiningTimes...)

	for peer, piece := range cslot.EncryptedPieces {
		if err := slot.SetEncryptedPiece(peer, piece); err != nil {
			return nil, err
		}
	}

	for _, cpeer := range candidate.Slots {
		if cpeer.PubKeyHex == pubKeyHex {
			continue
		}

		peer := merged.GetSlot(cpeer.PubKeyHex)
		if peer == nil {
			return nil, fmt.Errorf("candidate round carries unknown miner %s", cpeer.PubKeyHex)
		}

		// a sender must never assert a peer's secret values
		if len(cpeer.OutValue) > 0 || len(cpeer.InValue) > 0 || len(cpeer.PreviousInValue) > 0 {
			return nil, fmt.Errorf("candidate round asserts secret values of %s", cpeer.PubKeyHex)
		}

		if cpeer.FinalOrderOfNextRound != 0 {
			peer.FinalOrderOfNextRound = cpeer.FinalOrderOfNextRound
		}

		// the only piece a sender may contribute to a peer's slot is its own
		// decryption
		for contributor, piece := range cpeer.DecryptedPieces {
			if contributor != pubKeyHex {
				return nil, fmt.Errorf("decrypted piece for %s claimed by %s but carried by %s",
					cpeer.PubKeyHex, contributor, pubKeyHex)
			}
			if err := peer.SetDecryptedPiece(contributor, piece); err != nil {
				return nil, err
			}
		}
	}

	return merged, nil
}
