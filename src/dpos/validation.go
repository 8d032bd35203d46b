package dpos

import (
	"bytes"
	"time"

	"github.com/rondonetworks/rondo/src/crypto"
	"github.com/rondonetworks/rondo/src/round"
)

// validationContext bundles everything one payload validation needs: the
// current state round, the previous round (nil while in round 1), the payload
// under scrutiny, the block's own timestamp and execution height, and the
// mining interval.
type validationContext struct {
	base      *round.Round
	previous  *round.Round
	extra     *ExtraData
	blockTime time.Time
	height    uint64
	interval  time.Duration
}

// validatePayload runs the pre-execution validation pipeline: the base checks
// shared by every behavior, then the behavior-specific validators. The
// behavior switch is exhaustive; anything outside the closed set is rejected,
// Nothing included.
func (e *Engine) validatePayload(ctx *validationContext) error {
	if ctx.extra.Round == nil {
		return NewValidationErr("payload carries no round")
	}

	sender := ctx.extra.SenderPubKeyHex
	if !ctx.base.HasMiner(sender) {
		return NewValidationErr("sender %s is not a miner of round %d", sender, ctx.base.Number)
	}

	switch ctx.extra.Behavior {
	case UpdateValue:
		return e.validateUpdateValue(ctx)
	case TinyBlock:
		return e.validateTinyBlock(ctx)
	case NextRound:
		return e.validateNextRound(ctx)
	case NextTerm:
		return e.validateNextTerm(ctx)
	case Nothing:
		return NewValidationErr("behavior Nothing cannot carry a block")
	default:
		return NewValidationErr("unknown behavior %d", ctx.extra.Behavior)
	}
}

func (e *Engine) validateUpdateValue(ctx *validationContext) error {
	sender := ctx.extra.SenderPubKeyHex

	if ctx.extra.Round.Number != ctx.base.Number || ctx.extra.Round.TermNumber != ctx.base.TermNumber {
		return NewValidationErr("payload round %d/%d does not match state round %d/%d",
			ctx.extra.Round.Number, ctx.extra.Round.TermNumber, ctx.base.Number, ctx.base.TermNumber)
	}

	baseSlot := ctx.base.GetSlot(sender)
	if baseSlot.Mined() {
		return NewValidationErr("miner %s already produced its full block in round %d", sender, ctx.base.Number)
	}

	if err := e.validateTimeWindow(ctx); err != nil {
		return err
	}

	cslot := ctx.extra.Round.GetSlot(sender)
	if cslot == nil {
		return NewValidationErr("payload carries no slot for sender %s", sender)
	}

	if len(cslot.OutValue) == 0 {
		return NewValidationErr("update-value without a commitment")
	}
	if len(cslot.Signature) == 0 {
		return NewValidationErr("update-value without a signature")
	}

	// the counters are part of the round hash, so the claimed values are
	// pinned: exactly one more produced block, a tiny-block count restarted
	// at 1, and a mining time equal to the block's own timestamp
	if cslot.ProducedBlocks != baseSlot.ProducedBlocks+1 || cslot.ProducedTinyBlocks != 1 {
		return NewValidationErr("produced-block counters of %s do not add up", sender)
	}
	if l := len(cslot.ActualMiningTimes); l == 0 || !cslot.ActualMiningTimes[l-1].Equal(ctx.blockTime) {
		return NewValidationErr("actual mining time of %s does not match the block time", sender)
	}

	if want := round.SupposedOrder(cslot.Signature, ctx.base.MinerCount()); cslot.SupposedOrderOfNextRound != want {
		return NewValidationErr("supposed order %d does not follow from the signature, want %d",
			cslot.SupposedOrderOfNextRound, want)
	}

	// a revealed previous in-value must hash to the commitment the miner
	// published one round earlier; a reveal with no prior commitment to
	// check it against is rejected, never taken on faith
	if len(cslot.PreviousInValue) > 0 {
		if ctx.previous == nil {
			return NewValidationErr("previous in-value of %s asserted without a previous round", sender)
		}
		prevSlot := ctx.previous.GetSlot(sender)
		if prevSlot == nil || len(prevSlot.OutValue) == 0 {
			return NewValidationErr("previous in-value of %s has no prior commitment", sender)
		}
		if !bytes.Equal(crypto.SHA256(cslot.PreviousInValue), prevSlot.OutValue) {
			return NewValidationErr("previous in-value of %s does not hash to its commitment", sender)
		}
	}

	if err := validateCarriedIrreversible(ctx); err != nil {
		return err
	}

	if err := e.validateImpliedHeight(ctx, cslot.ImpliedIrreversibleBlockHeight); err != nil {
		return err
	}

	// a merge dry-run catches asserted peer secrets, displaced pieces and
	// claims for unknown miners
	merged, err := round.Merge(ctx.base, ctx.extra.Round, sender)
	if err != nil {
		return NewValidationErr("cannot apply claims of %s: %v", sender, err)
	}

	// after the claims land, the final orders of everyone who mined must
	// still be distinct and in range, or the round could never terminate
	n := merged.MinerCount()
	occupied := map[int]string{}
	for _, s := range merged.MinedSlots() {
		o := s.FinalOrderOfNextRound
		if o < 1 || o > n {
			return NewValidationErr("final order %d of %s out of range [1,%d]", o, s.PubKeyHex, n)
		}
		if holder, ok := occupied[o]; ok {
			return NewValidationErr("final order %d claimed for both %s and %s", o, holder, s.PubKeyHex)
		}
		occupied[o] = s.PubKeyHex
	}

	return nil
}

func (e *Engine) validateTinyBlock(ctx *validationContext) error {
	sender := ctx.extra.SenderPubKeyHex

	if ctx.extra.Round.Number != ctx.base.Number || ctx.extra.Round.TermNumber != ctx.base.TermNumber {
		return NewValidationErr("payload round %d/%d does not match state round %d/%d",
			ctx.extra.Round.Number, ctx.extra.Round.TermNumber, ctx.base.Number, ctx.base.TermNumber)
	}

	baseSlot := ctx.base.GetSlot(sender)

	inGrace := !ctx.base.Started(ctx.blockTime) && sender == ctx.base.ExtraBlockProducerOfPreviousRound
	if !inGrace && !baseSlot.Mined() {
		return NewValidationErr("tiny block of %s before its full block", sender)
	}

	if err := e.validateTimeWindow(ctx); err != nil {
		return err
	}

	max := e.maxBlocksCount()
	if baseSlot.ProducedTinyBlocks >= max {
		return NewValidationErr("miner %s reached the limit of %d blocks per time slot", sender, max)
	}

	cslot := ctx.extra.Round.GetSlot(sender)
	if cslot == nil {
		return NewValidationErr("payload carries no slot for sender %s", sender)
	}

	if cslot.ProducedBlocks != baseSlot.ProducedBlocks+1 ||
		cslot.ProducedTinyBlocks != baseSlot.ProducedTinyBlocks+1 {
		return NewValidationErr("produced-block counters of %s do not add up", sender)
	}

	// the recorded mining time must be the block's own timestamp
	if l := len(cslot.ActualMiningTimes); l == 0 || !cslot.ActualMiningTimes[l-1].Equal(ctx.blockTime) {
		return NewValidationErr("actual mining time of %s does not match the block time", sender)
	}

	if err := e.validateImpliedHeight(ctx, cslot.ImpliedIrreversibleBlockHeight); err != nil {
		return err
	}

	if err := validateCarriedIrreversible(ctx); err != nil {
		return err
	}

	if _, err := round.Merge(ctx.base, ctx.extra.Round, sender); err != nil {
		return NewValidationErr("cannot apply claims of %s: %v", sender, err)
	}

	return nil
}

// validateCarriedIrreversible checks a per-block payload's confirmed
// last-irreversible-block pair against the pre-merge base state. The claim
// sits on the round, not on a slot, so the post-execution re-merge comparison
// never sees it; a regressed pair has to be caught here.
func validateCarriedIrreversible(ctx *validationContext) error {
	if ctx.extra.Round.ConfirmedIrreversibleBlockHeight < ctx.base.ConfirmedIrreversibleBlockHeight ||
		ctx.extra.Round.ConfirmedIrreversibleBlockRoundNumber < ctx.base.ConfirmedIrreversibleBlockRoundNumber {
		return NewValidationErr("payload moves the irreversible block backwards")
	}
	return nil
}

func (e *Engine) validateNextRound(ctx *validationContext) error {
	proposal := ctx.extra.Round

	if proposal.Number != ctx.base.Number+1 {
		return NewValidationErr("proposed round %d does not follow round %d", proposal.Number, ctx.base.Number)
	}
	if proposal.TermNumber != ctx.base.TermNumber {
		return NewValidationErr("round transition must not change the term")
	}

	if e.termElapsed(ctx.base.TermNumber, ctx.blockTime) {
		return NewValidationErr("term %d is over, a term transition is due", ctx.base.TermNumber)
	}

	if err := e.validateTermination(ctx); err != nil {
		return err
	}

	if err := validateFreshSlots(proposal); err != nil {
		return err
	}

	if proposal.ConfirmedIrreversibleBlockHeight < ctx.base.ConfirmedIrreversibleBlockHeight ||
		proposal.ConfirmedIrreversibleBlockRoundNumber < ctx.base.ConfirmedIrreversibleBlockRoundNumber {
		return NewValidationErr("proposed round moves the irreversible block backwards")
	}

	expected, err := round.GenerateNextRound(ctx.base, ctx.blockTime, ctx.interval)
	if err != nil {
		return NewValidationErr("no valid next round can be derived: %v", err)
	}
	expected.CreditTerminator(ctx.extra.SenderPubKeyHex)

	return compareRoundHashes(proposal, expected)
}

// validateFreshSlots rejects a termination proposal whose slots carry any
// per-block state. A fresh round starts with no secrets, no pieces and no
// mining times; the round hash strips the piece maps and the mining times, so
// they have to be checked here or a terminator could seed a peer's write-once
// maps for the whole round.
func validateFreshSlots(proposal *round.Round) error {
	for _, s := range proposal.Slots {
		if len(s.InValue) > 0 || len(s.PreviousInValue) > 0 {
			return NewValidationErr("proposed round carries a secret for %s", s.PubKeyHex)
		}
		if len(s.EncryptedPieces) > 0 || len(s.DecryptedPieces) > 0 {
			return NewValidationErr("proposed round carries pieces for %s", s.PubKeyHex)
		}
		if len(s.ActualMiningTimes) > 0 {
			return NewValidationErr("proposed round carries mining times for %s", s.PubKeyHex)
		}
	}
	return nil
}

func (e *Engine) validateNextTerm(ctx *validationContext) error {
	proposal := ctx.extra.Round

	if proposal.Number != ctx.base.Number+1 {
		return NewValidationErr("proposed round %d does not follow round %d", proposal.Number, ctx.base.Number)
	}
	if proposal.TermNumber != ctx.base.TermNumber+1 {
		return NewValidationErr("proposed term %d does not follow term %d", proposal.TermNumber, ctx.base.TermNumber)
	}

	if !e.termElapsed(ctx.base.TermNumber, ctx.blockTime) {
		return NewValidationErr("term %d is not over yet", ctx.base.TermNumber)
	}

	if err := e.validateTermination(ctx); err != nil {
		return err
	}

	if err := validateFreshSlots(proposal); err != nil {
		return err
	}

	ms, err := e.minerSetForTerm(proposal.TermNumber)
	if err != nil {
		return NewValidationErr("cannot determine the miner list of term %d: %v", proposal.TermNumber, err)
	}

	expected, err := round.GenerateNextTermRound(ctx.base, ms, ctx.blockTime, ctx.interval)
	if err != nil {
		return NewValidationErr("no valid term round can be derived: %v", err)
	}

	return compareRoundHashes(proposal, expected)
}

// validateTermination checks who may terminate the current round, and when:
// the designated extra block producer once the extra block time has arrived
// (or earlier, when every miner already produced), and any miner once the
// terminator's own window has passed unused.
func (e *Engine) validateTermination(ctx *validationContext) error {
	sender := ctx.extra.SenderPubKeyHex

	ebp := ctx.base.ExtraBlockProducer()
	if ebp == nil {
		return NewValidationErr("round %d has no extra block producer", ctx.base.Number)
	}

	extraTime := ctx.base.ExtraBlockMiningTime(ctx.interval)

	if sender != ebp.PubKeyHex {
		if ctx.blockTime.Before(extraTime.Add(ctx.interval)) {
			return NewValidationErr("round %d may only be terminated by %s until %v",
				ctx.base.Number, ebp.PubKeyHex, extraTime.Add(ctx.interval))
		}
		return nil
	}

	allMined := len(ctx.base.MinedSlots()) == ctx.base.MinerCount()
	if ctx.blockTime.Before(extraTime) && !allMined {
		return NewValidationErr("round %d cannot be terminated before %v", ctx.base.Number, extraTime)
	}

	return nil
}

// validateTimeWindow checks that the block time falls in a window the sender
// may mine in: its own time slot once the round has started, or the pre-round
// grace window if the sender terminated the previous round.
func (e *Engine) validateTimeWindow(ctx *validationContext) error {
	sender := ctx.extra.SenderPubKeyHex
	slot := ctx.base.GetSlot(sender)

	if !ctx.base.Started(ctx.blockTime) {
		if sender == ctx.base.ExtraBlockProducerOfPreviousRound {
			return nil
		}
		return NewValidationErr("round %d starts at %v", ctx.base.Number, ctx.base.StartTime())
	}

	if ctx.blockTime.Before(slot.ExpectedMiningTime) {
		return NewValidationErr("time slot of %s starts at %v", sender, slot.ExpectedMiningTime)
	}
	if ctx.base.IsTimeSlotPassed(sender, ctx.blockTime, ctx.interval) {
		return NewValidationErr("time slot of %s is over", sender)
	}

	return nil
}

// validateImpliedHeight checks a self-reported irreversible height: it may
// never exceed the block's own execution height and may never move backwards
// between consecutive rounds. A violation is reported to the health monitor
// before the block is rejected.
func (e *Engine) validateImpliedHeight(ctx *validationContext, implied uint64) error {
	if implied > ctx.height {
		if e.health != nil {
			e.health.ReportUnacceptableHeight(implied)
		}
		return NewValidationErr("implied irreversible height %d exceeds execution height %d", implied, ctx.height)
	}

	if ctx.previous != nil {
		if prevSlot := ctx.previous.GetSlot(ctx.extra.SenderPubKeyHex); prevSlot != nil &&
			implied < prevSlot.ImpliedIrreversibleBlockHeight {
			if e.health != nil {
				e.health.ReportUnacceptableHeight(implied)
			}
			return NewValidationErr("implied irreversible height went backwards: %d after %d",
				implied, prevSlot.ImpliedIrreversibleBlockHeight)
		}
	}

	return nil
}

// validateApplied is the post-execution check: the state the operation
// produced must agree with what the payload announced. For the per-block
// behaviors the payload's claims are re-merged onto the applied state, which
// must be a no-op; for the terminating behaviors the installed round must
// hash to the proposal.
func (e *Engine) validateApplied(applied *round.Round, ctx *validationContext) error {
	switch ctx.extra.Behavior {
	case UpdateValue, TinyBlock:
		remerged, err := round.Merge(applied, ctx.extra.Round, ctx.extra.SenderPubKeyHex)
		if err != nil {
			return NewValidationErr("applied state rejects the payload claims: %v", err)
		}
		return compareRoundHashes(remerged, applied)
	case NextRound, NextTerm:
		return compareRoundHashes(ctx.extra.Round, applied)
	default:
		return NewValidationErr("behavior %v has no applied state to check", ctx.extra.Behavior)
	}
}

func compareRoundHashes(got, want *round.Round) error {
	gotHash, err := got.Hash()
	if err != nil {
		return err
	}
	wantHash, err := want.Hash()
	if err != nil {
		return err
	}
	if !bytes.Equal(gotHash, wantHash) {
		return NewValidationErr("round hash mismatch: got %X, want %X", gotHash, wantHash)
	}
	return nil
}
