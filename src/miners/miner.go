package miners

import (
	"crypto/ecdsa"

	"github.com/rondonetworks/rondo/src/common"
	"github.com/rondonetworks/rondo/src/crypto/keys"
)

// Miner is one consensus participant, identified by the hex encoding of its
// uncompressed secp256k1 public key.
type Miner struct {
	PubKeyHex string
	Moniker   string

	id uint32
}

// NewMiner creates a Miner from a public key hex string.
func NewMiner(pubKeyHex, moniker string) *Miner {
	miner := &Miner{
		PubKeyHex: pubKeyHex,
		Moniker:   moniker,
	}

	miner.computeID()

	return miner
}

// PubKeyBytes returns the raw bytes of the miner's public key.
func (m *Miner) PubKeyBytes() ([]byte, error) {
	return common.DecodeFromString(m.PubKeyHex)
}

// PubKey returns the miner's ecdsa.PublicKey, or nil when the hex string does
// not decode to a curve point.
func (m *Miner) PubKey() *ecdsa.PublicKey {
	b, err := m.PubKeyBytes()
	if err != nil {
		return nil
	}
	return keys.ToPublicKey(b)
}

// ID returns a short identifier derived from the public key. It is used for
// logging only.
func (m *Miner) ID() uint32 {
	if m.id == 0 {
		m.computeID()
	}
	return m.id
}

func (m *Miner) computeID() error {
	pubKey, err := m.PubKeyBytes()
	if err != nil {
		return err
	}

	m.id = common.Hash32(pubKey)

	return nil
}
