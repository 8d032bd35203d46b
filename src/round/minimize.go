package round

// Minimized returns the reduced round snapshot a block header carries for the
// per-block behaviors: the round bookkeeping fields, the sender's own slot in
// full, and, for each peer, only the claims the sender is publishing relative
// to the given base state (a tuned final order or the sender's decrypted
// piece of that peer's secret). Everything else is left for the validators to
// re-derive from their own state.
func (r *Round) Minimized(base *Round, pubKeyHex string) *Round {
	min := NewRound(r.Number, r.TermNumber)
	min.ConfirmedIrreversibleBlockHeight = r.ConfirmedIrreversibleBlockHeight
	min.ConfirmedIrreversibleBlockRoundNumber = r.ConfirmedIrreversibleBlockRoundNumber
	min.ExtraBlockProducerOfPreviousRound = r.ExtraBlockProducerOfPreviousRound
	min.IsMinerListJustChanged = r.IsMinerListJustChanged

	for _, s := range r.Slots {
		if s.PubKeyHex == pubKeyHex {
			min.AddSlot(s.Clone())
			continue
		}

		baseSlot := base.GetSlot(s.PubKeyHex)

		peer := NewMinerSlot(s.PubKeyHex)
		peer.Order = s.Order

		if baseSlot != nil && s.FinalOrderOfNextRound != baseSlot.FinalOrderOfNextRound {
			peer.FinalOrderOfNextRound = s.FinalOrderOfNextRound
		}

		if piece, ok := s.DecryptedPieces[pubKeyHex]; ok {
			if baseSlot == nil || baseSlot.DecryptedPieces[pubKeyHex] == nil {
				peer.DecryptedPieces[pubKeyHex] = append([]byte{}, piece...)
			}
		}

		min.AddSlot(peer)
	}

	return min
}
