package dpos

import (
	"time"

	"github.com/rondonetworks/rondo/src/round"
)

// Operation is the state-mutating half of a consensus block: the header
// carries an ExtraData payload, the block body carries one Operation. The
// concrete types form a closed set; the engine matches every one of them
// explicitly and rejects anything else.
type Operation interface {
	// OpBehavior returns the behavior this operation implements.
	OpBehavior() Behavior
}

// UpdateValueOp is the operation of a miner's first full block in a round.
// It publishes the commit-reveal chain material and the secret-sharing pieces
// for this round, and reveals the miner's own previous in-value.
type UpdateValueOp struct {
	// OutValue is the new commitment: SHA256 of the in-value the miner keeps
	// secret until next round.
	OutValue []byte

	// Signature is derived from the in-value and the aggregate of all
	// previous-round signatures.
	Signature []byte

	// PreviousInValue reveals the miner's own previous-round in-value. It
	// must hash to the out-value recorded for this miner in the previous
	// round.
	PreviousInValue []byte

	// RandomProof is the randomness proof accompanying the commitment.
	RandomProof []byte

	// SupposedOrderOfNextRound is the order the signature implies.
	SupposedOrderOfNextRound int

	// TuneOrderInformation reassigns final orders of next round, keyed by
	// public key, to resolve collisions. Values must stay in
	// [1, miner count].
	TuneOrderInformation map[string]int

	// EncryptedPieces are the encrypted shares of the miner's in-value,
	// keyed by addressee public key.
	EncryptedPieces map[string][]byte

	// DecryptedPieces are the miner's decryptions of the shares its peers
	// addressed to it in the previous round, keyed by the public key of the
	// peer whose secret the share belongs to.
	DecryptedPieces map[string][]byte

	// ImpliedIrreversibleBlockHeight is the miner's self-reported
	// irreversible height.
	ImpliedIrreversibleBlockHeight uint64
}

// OpBehavior implements Operation.
func (op *UpdateValueOp) OpBehavior() Behavior { return UpdateValue }

// TinyBlockOp is the operation of an additional block within a time slot, or
// of a pre-round grace block of the previous round's terminator.
type TinyBlockOp struct {
	// ActualMiningTime must equal the block's own timestamp.
	ActualMiningTime time.Time

	// ImpliedIrreversibleBlockHeight is the miner's self-reported
	// irreversible height.
	ImpliedIrreversibleBlockHeight uint64
}

// OpBehavior implements Operation.
func (op *TinyBlockOp) OpBehavior() Behavior { return TinyBlock }

// NextRoundOp terminates the current round. NextRound must equal, field for
// field, the round every other node re-derives from the same state; it is
// validated against that re-derivation, not trusted.
type NextRoundOp struct {
	NextRound *round.Round
}

// OpBehavior implements Operation.
func (op *NextRoundOp) OpBehavior() Behavior { return NextRound }

// NextTermOp terminates the current round and the current term, installing
// the miner list elected for the new term.
type NextTermOp struct {
	NextRound *round.Round
}

// OpBehavior implements Operation.
func (op *NextTermOp) OpBehavior() Behavior { return NextTerm }
