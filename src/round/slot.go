package round

import (
	"bytes"
	"time"

	"github.com/rondonetworks/rondo/src/common"
)

// MinerSlot is the mutable per-round record of one miner's participation.
type MinerSlot struct {
	// PubKeyHex identifies the miner.
	PubKeyHex string

	// Order is the miner's position in this round's mining schedule, 1..N.
	// Duplicate values across slots are a protocol violation.
	Order int

	// ExpectedMiningTime is the start of the miner's time slot, derived from
	// Order and the mining interval.
	ExpectedMiningTime time.Time

	// OutValue is the commitment published when the miner produces its full
	// block: OutValue = SHA256(InValue).
	OutValue []byte

	// Signature is derived from the in-value and the aggregate of all miners'
	// previous-round signatures. It seeds the next round's ordering.
	Signature []byte

	// InValue is the miner's secret for this round. It is only revealed one
	// round later.
	InValue []byte

	// PreviousInValue is the in-value the miner committed to in the previous
	// round. It must satisfy SHA256(PreviousInValue) == previous round's
	// OutValue for this miner.
	PreviousInValue []byte

	// SupposedOrderOfNextRound is deterministically computed from Signature
	// mod miner count.
	SupposedOrderOfNextRound int

	// FinalOrderOfNextRound starts equal to SupposedOrderOfNextRound and may
	// be adjusted through an explicit reassignment map to resolve collisions.
	// It must remain in [1, miner count] and be unique across miners who
	// actually mined.
	FinalOrderOfNextRound int

	// IsExtraBlockProducer marks the miner designated to terminate this
	// round. Exactly one slot per round carries it.
	IsExtraBlockProducer bool

	// EncryptedPieces holds, keyed by addressee public key, the encrypted
	// shares of this miner's InValue. Only the slot owner may contribute
	// them, each key at most once per round.
	EncryptedPieces map[string][]byte

	// DecryptedPieces holds, keyed by contributor public key, the decrypted
	// shares of this miner's previous-round InValue. Each peer contributes
	// its own decryption, each key at most once per round.
	DecryptedPieces map[string][]byte

	// RandomProof is the randomness proof published alongside OutValue.
	RandomProof []byte

	// ProducedBlocks counts the blocks the miner produced, cumulatively.
	ProducedBlocks uint64

	// ProducedTinyBlocks counts the blocks the miner produced within the
	// current time slot.
	ProducedTinyBlocks uint64

	// MissedTimeSlots counts the rounds in which the miner did not mine,
	// cumulatively.
	MissedTimeSlots uint64

	// ActualMiningTimes is the append-only list of block times at which the
	// miner produced during this round. Every append equals the block's own
	// timestamp.
	ActualMiningTimes []time.Time

	// ImpliedIrreversibleBlockHeight is the miner's self-reported irreversible
	// height. It never decreases between consecutive rounds and never exceeds
	// the current execution height.
	ImpliedIrreversibleBlockHeight uint64
}

// NewMinerSlot creates an empty slot for a miner.
func NewMinerSlot(pubKeyHex string) *MinerSlot {
	return &MinerSlot{
		PubKeyHex:       pubKeyHex,
		EncryptedPieces: map[string][]byte{},
		DecryptedPieces: map[string][]byte{},
	}
}

// Mined reports whether the miner produced its full block in this round. It
// is derived from the published commitment, which only a processed
// update-value operation sets.
func (s *MinerSlot) Mined() bool {
	return len(s.OutValue) > 0
}

// SetEncryptedPiece records an encrypted share addressed to a peer. Each key
// is written at most once per round: re-asserting the identical piece is a
// no-op, but overwriting it with different content is rejected so that nobody
// can displace a previously contributed piece.
func (s *MinerSlot) SetEncryptedPiece(peer string, piece []byte) error {
	if existing, ok := s.EncryptedPieces[peer]; ok {
		if bytes.Equal(existing, piece) {
			return nil
		}
		return common.NewStoreErr("EncryptedPieces", common.KeyAlreadyExists, peer)
	}
	s.EncryptedPieces[peer] = append([]byte{}, piece...)
	return nil
}

// SetDecryptedPiece records a peer's decryption of one of this miner's
// shares, under the same write-once rule as SetEncryptedPiece.
func (s *MinerSlot) SetDecryptedPiece(contributor string, piece []byte) error {
	if existing, ok := s.DecryptedPieces[contributor]; ok {
		if bytes.Equal(existing, piece) {
			return nil
		}
		return common.NewStoreErr("DecryptedPieces", common.KeyAlreadyExists, contributor)
	}
	s.DecryptedPieces[contributor] = append([]byte{}, piece...)
	return nil
}

// Clone returns a deep copy of the slot. No field of the copy aliases the
// original.
func (s *MinerSlot) Clone() *MinerSlot {
	c := &MinerSlot{
		PubKeyHex:                      s.PubKeyHex,
		Order:                          s.Order,
		ExpectedMiningTime:             s.ExpectedMiningTime,
		OutValue:                       append([]byte{}, s.OutValue...),
		Signature:                      append([]byte{}, s.Signature...),
		InValue:                        append([]byte{}, s.InValue...),
		PreviousInValue:                append([]byte{}, s.PreviousInValue...),
		SupposedOrderOfNextRound:       s.SupposedOrderOfNextRound,
		FinalOrderOfNextRound:          s.FinalOrderOfNextRound,
		IsExtraBlockProducer:           s.IsExtraBlockProducer,
		EncryptedPieces:                map[string][]byte{},
		DecryptedPieces:                map[string][]byte{},
		RandomProof:                    append([]byte{}, s.RandomProof...),
		ProducedBlocks:                 s.ProducedBlocks,
		ProducedTinyBlocks:             s.ProducedTinyBlocks,
		MissedTimeSlots:                s.MissedTimeSlots,
		ActualMiningTimes:              append([]time.Time{}, s.ActualMiningTimes...),
		ImpliedIrreversibleBlockHeight: s.ImpliedIrreversibleBlockHeight,
	}

	for k, v := range s.EncryptedPieces {
		c.EncryptedPieces[k] = append([]byte{}, v...)
	}
	for k, v := range s.DecryptedPieces {
		c.DecryptedPieces[k] = append([]byte{}, v...)
	}

	return c
}
