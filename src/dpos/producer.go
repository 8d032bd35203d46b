package dpos

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"time"

	"github.com/sirupsen/logrus"

	cm "github.com/rondonetworks/rondo/src/common"
	"github.com/rondonetworks/rondo/src/crypto"
	"github.com/rondonetworks/rondo/src/crypto/keys"
	"github.com/rondonetworks/rondo/src/crypto/vss"
	"github.com/rondonetworks/rondo/src/round"
)

// Producer builds the consensus payloads of one miner. It keeps the miner's
// in-values across rounds, because an in-value committed in round n is only
// revealed in round n+1.
type Producer struct {
	key       *ecdsa.PrivateKey
	pubKeyHex string
	engine    *Engine
	inValues  map[uint64][]byte
	logger    *logrus.Entry
}

// NewProducer instantiates a Producer for a private key.
func NewProducer(key *ecdsa.PrivateKey, engine *Engine, logger *logrus.Entry) *Producer {
	if logger == nil {
		logger = logrus.New().WithField("prefix", "rondo")
	}
	return &Producer{
		key:       key,
		pubKeyHex: keys.PublicKeyHex(&key.PublicKey),
		engine:    engine,
		inValues:  map[uint64][]byte{},
		logger:    logger,
	}
}

// PubKeyHex returns the miner's public key in hex format.
func (p *Producer) PubKeyHex() string {
	return p.pubKeyHex
}

// Propose builds the header payload and the operation for the behavior the
// core currently grants this miner. A Nothing grant returns a nil payload and
// no error.
func (p *Producer) Propose(now time.Time) (*ExtraData, Operation, error) {
	behavior, err := p.engine.DecideBehavior(p.pubKeyHex, now)
	if err != nil {
		return nil, nil, err
	}

	switch behavior {
	case Nothing:
		return nil, nil, nil
	case UpdateValue:
		return p.proposeUpdateValue(now)
	case TinyBlock:
		return p.proposeTinyBlock(now)
	case NextRound:
		return p.proposeNextRound(now)
	case NextTerm:
		return p.proposeNextTerm(now)
	default:
		return nil, nil, NewInvariantErr("unknown behavior %d granted", behavior)
	}
}

func (p *Producer) proposeUpdateValue(now time.Time) (*ExtraData, Operation, error) {
	base, previous, err := p.rounds()
	if err != nil {
		return nil, nil, err
	}

	inValue, err := p.newInValue(base.Number)
	if err != nil {
		return nil, nil, err
	}

	outValue := crypto.SHA256(inValue)
	signature := nextSignature(inValue, previous)

	sigR, sigS, err := keys.Sign(p.key, outValue)
	if err != nil {
		return nil, nil, err
	}
	randomProof := []byte(keys.EncodeSignature(sigR, sigS))

	n := base.MinerCount()
	supposed := round.SupposedOrder(signature, n)
	tune := p.tuneOrders(base, supposed)

	encrypted, err := p.encryptShares(base, inValue)
	if err != nil {
		return nil, nil, err
	}

	op := &UpdateValueOp{
		OutValue:                 outValue,
		Signature:                signature,
		PreviousInValue:          p.revealableInValue(base, previous),
		RandomProof:              randomProof,
		SupposedOrderOfNextRound: supposed,
		TuneOrderInformation:     tune,
		EncryptedPieces:          encrypted,
		DecryptedPieces:          p.decryptShares(previous),

		ImpliedIrreversibleBlockHeight: p.engine.Store().CurrentHeight(),
	}

	extra := &ExtraData{Behavior: UpdateValue, SenderPubKeyHex: p.pubKeyHex}

	preview, err := p.engine.applyUpdateValue(p.previewContext(base, previous, extra, now), op)
	if err != nil {
		return nil, nil, err
	}
	extra.Round = preview.Minimized(base, p.pubKeyHex)

	return extra, op, nil
}

func (p *Producer) proposeTinyBlock(now time.Time) (*ExtraData, Operation, error) {
	base, previous, err := p.rounds()
	if err != nil {
		return nil, nil, err
	}

	op := &TinyBlockOp{
		ActualMiningTime:               now,
		ImpliedIrreversibleBlockHeight: p.engine.Store().CurrentHeight(),
	}

	extra := &ExtraData{Behavior: TinyBlock, SenderPubKeyHex: p.pubKeyHex}

	preview, err := p.engine.applyTinyBlock(p.previewContext(base, previous, extra, now), op)
	if err != nil {
		return nil, nil, err
	}
	extra.Round = preview.Minimized(base, p.pubKeyHex)

	return extra, op, nil
}

func (p *Producer) proposeNextRound(now time.Time) (*ExtraData, Operation, error) {
	base, _, err := p.rounds()
	if err != nil {
		return nil, nil, err
	}

	next, err := round.GenerateNextRound(base, now, p.engine.conf.MiningInterval)
	if err != nil {
		return nil, nil, err
	}
	next.CreditTerminator(p.pubKeyHex)

	extra := &ExtraData{Behavior: NextRound, SenderPubKeyHex: p.pubKeyHex, Round: next}

	return extra, &NextRoundOp{NextRound: next.Clone()}, nil
}

func (p *Producer) proposeNextTerm(now time.Time) (*ExtraData, Operation, error) {
	base, _, err := p.rounds()
	if err != nil {
		return nil, nil, err
	}

	ms, err := p.engine.minerSetForTerm(base.TermNumber + 1)
	if err != nil {
		return nil, nil, err
	}

	next, err := round.GenerateNextTermRound(base, ms, now, p.engine.conf.MiningInterval)
	if err != nil {
		return nil, nil, err
	}

	extra := &ExtraData{Behavior: NextTerm, SenderPubKeyHex: p.pubKeyHex, Round: next}

	return extra, &NextTermOp{NextRound: next.Clone()}, nil
}

// revealableInValue returns the cached previous-round in-value, but only when
// the previous round actually records the matching commitment. A miner whose
// full block never landed has nothing checkable to reveal, and asserting the
// cached value anyway would get the whole block rejected.
func (p *Producer) revealableInValue(base, previous *round.Round) []byte {
	cached, ok := p.inValues[base.Number-1]
	if !ok || previous == nil {
		return nil
	}
	prevSlot := previous.GetSlot(p.pubKeyHex)
	if prevSlot == nil || !bytes.Equal(crypto.SHA256(cached), prevSlot.OutValue) {
		return nil
	}
	return append([]byte{}, cached...)
}

// newInValue draws a fresh random in-value for a round and remembers it for
// next round's reveal. Old in-values are forgotten once revealed.
func (p *Producer) newInValue(roundNumber uint64) ([]byte, error) {
	if existing, ok := p.inValues[roundNumber]; ok {
		return existing, nil
	}

	v, err := rand.Int(rand.Reader, keys.Secp256k1N)
	if err != nil {
		return nil, err
	}
	inValue := v.FillBytes(make([]byte, 32))
	p.inValues[roundNumber] = inValue

	for n := range p.inValues {
		if n+2 <= roundNumber {
			delete(p.inValues, n)
		}
	}

	return inValue, nil
}

// tuneOrders resolves collisions between this miner's supposed order and the
// final orders already claimed by miners who mined: the newcomer moves to the
// lowest free order.
func (p *Producer) tuneOrders(base *round.Round, supposed int) map[string]int {
	occupied := map[int]bool{}
	for _, s := range base.MinedSlots() {
		occupied[s.FinalOrderOfNextRound] = true
	}

	if !occupied[supposed] {
		return map[string]int{}
	}

	n := base.MinerCount()
	for o := 1; o <= n; o++ {
		if !occupied[o] {
			return map[string]int{p.pubKeyHex: o}
		}
	}

	return map[string]int{}
}

// encryptShares splits the in-value into one share per miner in canonical
// order and encrypts each peer's share to it. The miner's own share is not
// distributed.
func (p *Producer) encryptShares(base *round.Round, inValue []byte) (map[string][]byte, error) {
	n := base.MinerCount()
	shares, err := vss.Split(inValue, n, round.SharingThreshold(n))
	if err != nil {
		return nil, err
	}

	encrypted := map[string][]byte{}
	for i, pubKeyHex := range base.PubKeys() {
		if pubKeyHex == p.pubKeyHex {
			continue
		}

		peerPub, err := parsePubKey(pubKeyHex)
		if err != nil {
			return nil, err
		}

		piece, err := vss.EncryptPiece(p.key, peerPub, shares[i].Bytes())
		if err != nil {
			return nil, err
		}
		encrypted[pubKeyHex] = piece
	}

	return encrypted, nil
}

// decryptShares decrypts the previous-round pieces addressed to this miner,
// keyed by the miner whose secret each piece belongs to. A piece that fails
// to decrypt is skipped; withholding a bad piece is always safe.
func (p *Producer) decryptShares(previous *round.Round) map[string][]byte {
	decrypted := map[string][]byte{}
	if previous == nil {
		return decrypted
	}

	for _, s := range previous.Slots {
		if s.PubKeyHex == p.pubKeyHex {
			continue
		}

		piece, ok := s.EncryptedPieces[p.pubKeyHex]
		if !ok {
			continue
		}

		ownerPub, err := parsePubKey(s.PubKeyHex)
		if err != nil {
			continue
		}

		plain, err := vss.DecryptPiece(p.key, ownerPub, piece)
		if err != nil {
			p.logger.WithFields(logrus.Fields{
				"owner": s.PubKeyHex,
				"error": err,
			}).Debug("Skipping undecryptable piece")
			continue
		}

		decrypted[s.PubKeyHex] = plain
	}

	return decrypted
}

func (p *Producer) rounds() (base, previous *round.Round, err error) {
	base, err = p.engine.Store().CurrentRound()
	if err != nil {
		return nil, nil, err
	}

	previous, err = p.engine.Store().PreviousRound()
	if err != nil {
		if !cm.IsStore(err, cm.NoRound) {
			return nil, nil, err
		}
		previous = nil
	}

	return base, previous, nil
}

func (p *Producer) previewContext(base, previous *round.Round, extra *ExtraData, now time.Time) *validationContext {
	return &validationContext{
		base:      base,
		previous:  previous,
		extra:     extra,
		blockTime: now,
		height:    p.engine.Store().CurrentHeight() + 1,
		interval:  p.engine.conf.MiningInterval,
	}
}

// nextSignature derives the round signature from the fresh in-value and the
// signatures of the whole previous round, binding it to history that was
// fixed before the in-value was drawn.
func nextSignature(inValue []byte, previous *round.Round) []byte {
	if previous == nil {
		return crypto.SHA256(inValue)
	}

	agg := append([]byte{}, inValue...)
	for _, s := range previous.OrderedSlots() {
		agg = append(agg, s.Signature...)
	}
	return crypto.SHA256(agg)
}

func parsePubKey(pubKeyHex string) (*ecdsa.PublicKey, error) {
	raw, err := cm.DecodeFromString(pubKeyHex)
	if err != nil {
		return nil, err
	}
	pub := keys.ToPublicKey(raw)
	if pub == nil {
		return nil, NewValidationErr("cannot parse public key %s", pubKeyHex)
	}
	return pub, nil
}
