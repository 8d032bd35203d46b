package dpos

import (
	"time"

	"github.com/sirupsen/logrus"

	cm "github.com/rondonetworks/rondo/src/common"
	"github.com/rondonetworks/rondo/src/miners"
	"github.com/rondonetworks/rondo/src/round"
)

// Services groups the optional external collaborators of the consensus core.
// Any of them may be nil; the corresponding call sites degrade gracefully.
type Services struct {
	Election   ElectionService
	Treasury   TreasuryService
	Health     HealthMonitor
	Governance GovernanceService
}

// Engine is the consensus core. It owns the round store and applies one
// consensus operation per block to it, after running the full validation
// pipeline. All methods are synchronous and must be called from a single
// block-processing goroutine.
type Engine struct {
	conf  *Config
	store Store

	election   ElectionService
	treasury   TreasuryService
	health     HealthMonitor
	governance GovernanceService

	logger *logrus.Entry
}

// NewEngine instantiates an Engine on top of a Store.
func NewEngine(conf *Config, store Store, services Services, logger *logrus.Entry) *Engine {
	if logger == nil {
		logger = logrus.New().WithField("prefix", "rondo")
	}
	return &Engine{
		conf:       conf,
		store:      store,
		election:   services.Election,
		treasury:   services.Treasury,
		health:     services.Health,
		governance: services.Governance,
		logger:     logger,
	}
}

// Bootstrap initializes the chain if the store is empty: the genesis round is
// generated from the miner set and the chain start time is recorded. On a
// store that already contains rounds it is a no-op, so it is safe to call on
// every startup.
func (e *Engine) Bootstrap(ms *miners.MinerSet, genesisTime time.Time) error {
	if e.store.LastRoundNumber() > 0 {
		e.logger.WithField("last_round", e.store.LastRoundNumber()).Debug("Bootstrap: store not empty")
		return nil
	}

	first, err := round.GenerateFirstRound(ms, genesisTime, e.conf.MiningInterval)
	if err != nil {
		return err
	}

	if err := e.store.SetChainStart(genesisTime); err != nil {
		return err
	}
	if err := e.store.SetRound(first); err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"miners":     ms.Len(),
		"start_time": genesisTime,
	}).Debug("Bootstrapped genesis round")

	return nil
}

// Store exposes the underlying round store.
func (e *Engine) Store() Store {
	return e.store
}

// DecideBehavior determines which behavior the given miner may perform at the
// given time, against the current state. The ceiling on blocks per time slot
// is re-evaluated here, at the point of use, because it reacts to chain
// health.
func (e *Engine) DecideBehavior(pubKeyHex string, now time.Time) (Behavior, error) {
	current, err := e.store.CurrentRound()
	if err != nil {
		return Nothing, err
	}

	if !current.HasMiner(pubKeyHex) {
		return Nothing, nil
	}

	slot := current.GetSlot(pubKeyHex)
	max := e.maxBlocksCount()

	// before the round starts, only the previous round's terminator may
	// mine, and only tiny blocks
	if !current.Started(now) {
		if pubKeyHex == current.ExtraBlockProducerOfPreviousRound && slot.ProducedTinyBlocks < max {
			return TinyBlock, nil
		}
		return Nothing, nil
	}

	if !slot.Mined() {
		if now.Before(slot.ExpectedMiningTime) {
			return Nothing, nil
		}
		if current.IsTimeSlotPassed(pubKeyHex, now, e.conf.MiningInterval) {
			return e.terminationBehavior(current, pubKeyHex, now)
		}
		return UpdateValue, nil
	}

	if !current.IsTimeSlotPassed(pubKeyHex, now, e.conf.MiningInterval) && slot.ProducedTinyBlocks < max {
		return TinyBlock, nil
	}

	return e.terminationBehavior(current, pubKeyHex, now)
}

// terminationBehavior grants NextRound or NextTerm when the miner is entitled
// to terminate the current round: the designated extra block producer from
// the extra block time on (or earlier when every miner already produced), and
// any miner one interval later if the terminator's window passed unused.
func (e *Engine) terminationBehavior(current *round.Round, pubKeyHex string, now time.Time) (Behavior, error) {
	ebp := current.ExtraBlockProducer()
	if ebp == nil {
		return Nothing, NewInvariantErr("round %d has no extra block producer", current.Number)
	}

	extraTime := current.ExtraBlockMiningTime(e.conf.MiningInterval)
	allMined := len(current.MinedSlots()) == current.MinerCount()

	if ebp.PubKeyHex == pubKeyHex {
		if now.Before(extraTime) && !allMined {
			return Nothing, nil
		}
	} else if now.Before(extraTime.Add(e.conf.MiningInterval)) {
		return Nothing, nil
	}

	if e.termElapsed(current.TermNumber, now) {
		return NextTerm, nil
	}
	return NextRound, nil
}

// Command is the mining schedule the core hands to the block producer: what
// to do, when to start, until when the grant holds, and how long one block
// may take to execute.
type Command struct {
	Behavior           Behavior
	ArrangedMiningTime time.Time
	MiningDueTime      time.Time
	LimitMilliseconds  int64
}

// GetConsensusCommand composes the full mining schedule for a miner at a
// point in time.
func (e *Engine) GetConsensusCommand(pubKeyHex string, now time.Time) (*Command, error) {
	behavior, err := e.DecideBehavior(pubKeyHex, now)
	if err != nil {
		return nil, err
	}

	cmd := &Command{
		Behavior:          behavior,
		LimitMilliseconds: e.conf.MiningInterval.Milliseconds() / int64(e.maxBlocksCount()),
	}

	if behavior == Nothing {
		return cmd, nil
	}

	current, err := e.store.CurrentRound()
	if err != nil {
		return nil, err
	}
	slot := current.GetSlot(pubKeyHex)

	switch behavior {
	case UpdateValue:
		cmd.ArrangedMiningTime = laterOf(slot.ExpectedMiningTime, now)
		cmd.MiningDueTime = slot.ExpectedMiningTime.Add(e.conf.MiningInterval)
	case TinyBlock:
		cmd.ArrangedMiningTime = now
		if current.Started(now) {
			cmd.MiningDueTime = slot.ExpectedMiningTime.Add(e.conf.MiningInterval)
		} else {
			// grace window closes when the round starts
			cmd.MiningDueTime = current.StartTime()
		}
	case NextRound, NextTerm:
		cmd.ArrangedMiningTime = laterOf(current.ExtraBlockMiningTime(e.conf.MiningInterval), now)
		cmd.MiningDueTime = cmd.ArrangedMiningTime.Add(e.conf.MiningInterval)
	}

	return cmd, nil
}

// ProcessBlock validates and applies one block's consensus payload. The
// header payload is validated first, the operation is then executed on a
// clone of the current state, the result is checked against the payload
// again, and only then is the new state committed. A returned error means
// nothing was committed.
func (e *Engine) ProcessBlock(extra *ExtraData, op Operation, blockTime time.Time) error {
	if extra == nil || op == nil {
		return NewValidationErr("block without a consensus payload")
	}
	if extra.Behavior != op.OpBehavior() {
		return NewValidationErr("header announces %v but the block carries %v",
			extra.Behavior, op.OpBehavior())
	}

	base, err := e.store.CurrentRound()
	if err != nil {
		return err
	}

	previous, err := e.store.PreviousRound()
	if err != nil {
		if !cm.IsStore(err, cm.NoRound) {
			return err
		}
		previous = nil
	}

	height := e.store.CurrentHeight() + 1

	ctx := &validationContext{
		base:      base,
		previous:  previous,
		extra:     extra,
		blockTime: blockTime,
		height:    height,
		interval:  e.conf.MiningInterval,
	}

	if err := e.validatePayload(ctx); err != nil {
		e.logger.WithFields(logrus.Fields{
			"behavior": extra.Behavior.String(),
			"sender":   extra.SenderPubKeyHex,
			"error":    err,
		}).Debug("Rejected consensus payload")
		return err
	}

	applied, terminated, err := e.execute(ctx, op)
	if err != nil {
		return err
	}

	if err := e.validateApplied(applied, ctx); err != nil {
		e.logger.WithFields(logrus.Fields{
			"behavior": extra.Behavior.String(),
			"sender":   extra.SenderPubKeyHex,
			"error":    err,
		}).Debug("Applied state does not match the payload")
		return err
	}

	if terminated != nil {
		if err := e.store.SetRound(terminated); err != nil {
			return err
		}
	}
	if err := e.store.SetRound(applied); err != nil {
		return err
	}
	if err := e.store.SetCurrentHeight(height); err != nil {
		return err
	}

	if e.treasury != nil {
		if err := e.treasury.AccrueReward(height); err != nil {
			e.logger.WithField("error", err).Debug("AccrueReward failed")
		}
	}

	if extra.Behavior == NextTerm {
		e.endTerm(base)
	}

	e.logger.WithFields(logrus.Fields{
		"behavior": extra.Behavior.String(),
		"sender":   extra.SenderPubKeyHex,
		"round":    applied.Number,
		"height":   height,
	}).Debug("Processed block")

	return nil
}

// execute applies the operation to a clone of the current state. For the
// per-block behaviors it returns the mutated current round; for the
// terminating behaviors it returns the installed next round plus the
// terminated round carrying the terminator's block-production record.
func (e *Engine) execute(ctx *validationContext, op Operation) (applied, terminated *round.Round, err error) {
	switch o := op.(type) {
	case *UpdateValueOp:
		applied, err = e.applyUpdateValue(ctx, o)
		return applied, nil, err
	case *TinyBlockOp:
		applied, err = e.applyTinyBlock(ctx, o)
		return applied, nil, err
	case *NextRoundOp:
		return e.applyTermination(ctx, o.NextRound)
	case *NextTermOp:
		return e.applyTermination(ctx, o.NextRound)
	default:
		return nil, nil, NewValidationErr("unknown operation type %T", op)
	}
}

func (e *Engine) applyUpdateValue(ctx *validationContext, op *UpdateValueOp) (*round.Round, error) {
	sender := ctx.extra.SenderPubKeyHex
	work := ctx.base.Clone()

	slot := work.GetSlot(sender)
	if slot == nil {
		return nil, NewInvariantErr("sender %s lost its slot between validation and execution", sender)
	}

	slot.OutValue = append([]byte{}, op.OutValue...)
	slot.Signature = append([]byte{}, op.Signature...)
	slot.RandomProof = append([]byte{}, op.RandomProof...)
	if len(op.PreviousInValue) > 0 {
		slot.PreviousInValue = append([]byte{}, op.PreviousInValue...)
	}
	slot.SupposedOrderOfNextRound = op.SupposedOrderOfNextRound
	slot.FinalOrderOfNextRound = op.SupposedOrderOfNextRound
	slot.ImpliedIrreversibleBlockHeight = op.ImpliedIrreversibleBlockHeight

	slot.ProducedBlocks++
	slot.ProducedTinyBlocks = 1
	slot.ActualMiningTimes = append(slot.ActualMiningTimes, ctx.blockTime)

	for peer, piece := range op.EncryptedPieces {
		if !work.HasMiner(peer) {
			return nil, NewValidationErr("encrypted piece addressed to unknown miner %s", peer)
		}
		if err := slot.SetEncryptedPiece(peer, piece); err != nil {
			return nil, NewValidationErr("cannot record encrypted piece for %s: %v", peer, err)
		}
	}

	// a decrypted piece lands on the slot of the miner whose secret it
	// belongs to, attributed to the sender
	for owner, piece := range op.DecryptedPieces {
		ownerSlot := work.GetSlot(owner)
		if ownerSlot == nil {
			return nil, NewValidationErr("decrypted piece for unknown miner %s", owner)
		}
		if err := ownerSlot.SetDecryptedPiece(sender, piece); err != nil {
			return nil, NewValidationErr("cannot record decrypted piece for %s: %v", owner, err)
		}
	}

	n := work.MinerCount()
	for pubKey, order := range op.TuneOrderInformation {
		tuned := work.GetSlot(pubKey)
		if tuned == nil {
			return nil, NewValidationErr("order tuning for unknown miner %s", pubKey)
		}
		if order < 1 || order > n {
			return nil, NewValidationErr("tuned order %d for %s out of range [1,%d]", order, pubKey, n)
		}
		tuned.FinalOrderOfNextRound = order
	}

	round.RevealSharedInValues(ctx.previous, work)

	if h, ok := round.CalculateIrreversibleHeight(work, ctx.previous); ok {
		if work.SetIrreversible(h, work.Number) {
			e.logger.WithFields(logrus.Fields{
				"height": h,
				"round":  work.Number,
			}).Debug("Irreversible block advanced")
		}
	}

	return work, nil
}

func (e *Engine) applyTinyBlock(ctx *validationContext, op *TinyBlockOp) (*round.Round, error) {
	sender := ctx.extra.SenderPubKeyHex
	work := ctx.base.Clone()

	slot := work.GetSlot(sender)
	if slot == nil {
		return nil, NewInvariantErr("sender %s lost its slot between validation and execution", sender)
	}

	if !op.ActualMiningTime.Equal(ctx.blockTime) {
		return nil, NewValidationErr("operation mining time does not match the block time")
	}

	slot.ImpliedIrreversibleBlockHeight = op.ImpliedIrreversibleBlockHeight
	slot.ProducedBlocks++
	slot.ProducedTinyBlocks++
	slot.ActualMiningTimes = append(slot.ActualMiningTimes, ctx.blockTime)

	return work, nil
}

// applyTermination installs the proposed next round and records the
// terminating block on a copy of the round being closed, so that the new
// round equals the proposal exactly.
func (e *Engine) applyTermination(ctx *validationContext, proposal *round.Round) (*round.Round, *round.Round, error) {
	if proposal == nil {
		return nil, nil, NewValidationErr("termination without a proposed round")
	}

	terminated := ctx.base.Clone()
	slot := terminated.GetSlot(ctx.extra.SenderPubKeyHex)
	if slot == nil {
		return nil, nil, NewInvariantErr("terminator %s lost its slot between validation and execution",
			ctx.extra.SenderPubKeyHex)
	}
	slot.ProducedBlocks++
	slot.ActualMiningTimes = append(slot.ActualMiningTimes, ctx.blockTime)

	return proposal.Clone(), terminated, nil
}

// endTerm notifies the external collaborators that a term closed. The calls
// are best-effort; a failing collaborator never blocks consensus.
func (e *Engine) endTerm(closed *round.Round) {
	if e.election != nil {
		if err := e.election.TakeSnapshot(closed.TermNumber, closed.Number); err != nil {
			e.logger.WithField("error", err).Debug("TakeSnapshot failed")
		}
	}
	if e.treasury != nil {
		if err := e.treasury.Donate(closed.TermNumber); err != nil {
			e.logger.WithField("error", err).Debug("Donate failed")
		}
	}
}

// maxBlocksCount returns the effective ceiling on blocks per time slot. It is
// recomputed at every call because an unhealthy chain lowers it to 1.
func (e *Engine) maxBlocksCount() uint64 {
	if e.health != nil && !e.health.Healthy() {
		return 1
	}
	if e.conf.MaxBlocksCount < 1 {
		return 1
	}
	return e.conf.MaxBlocksCount
}

// termElapsed reports whether the given term's time boundary has passed.
func (e *Engine) termElapsed(termNumber uint64, at time.Time) bool {
	start, err := e.store.ChainStart()
	if err != nil {
		return false
	}
	return !at.Before(start.Add(time.Duration(termNumber) * e.conf.TermDuration))
}

// minerSetForTerm resolves the miner list of a new term: the elected list if
// an election service is wired and returned one, the current list otherwise,
// truncated to the governance ceiling.
func (e *Engine) minerSetForTerm(termNumber uint64) (*miners.MinerSet, error) {
	current, err := e.store.CurrentRound()
	if err != nil {
		return nil, err
	}

	pubKeys := current.PubKeys()

	if e.election != nil {
		elected, err := e.election.NextMinerList(termNumber)
		if err != nil {
			return nil, err
		}
		if len(elected) > 0 {
			pubKeys = elected
		}
	}

	if e.governance != nil {
		if max := e.governance.MaximumMinersCount(); max > 0 && len(pubKeys) > max {
			pubKeys = pubKeys[:max]
		}
	}

	return miners.NewMinerSetFromPubKeys(pubKeys), nil
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
