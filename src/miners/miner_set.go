package miners

import (
	"math"

	"github.com/rondonetworks/rondo/src/common"
	"github.com/rondonetworks/rondo/src/crypto"
)

// MinerSet is the set of miners elected for a term. The slice order is the
// insertion order and is canonical for hashing.
type MinerSet struct {
	Miners   []*Miner          `json:"miners"`
	ByPubKey map[string]*Miner `json:"-"`

	//cached values
	hash          []byte
	hex           string
	superMajority *int
	trustCount    *int
}

// NewMinerSet creates a new MinerSet from a list of Miners.
func NewMinerSet(ms []*Miner) *MinerSet {
	minerSet := &MinerSet{
		ByPubKey: make(map[string]*Miner),
	}

	for _, m := range ms {
		minerSet.ByPubKey[m.PubKeyHex] = m
	}

	minerSet.Miners = ms

	return minerSet
}

// NewMinerSetFromPubKeys creates a MinerSet from a list of public key hex
// strings, without monikers.
func NewMinerSetFromPubKeys(pubKeys []string) *MinerSet {
	ms := []*Miner{}
	for _, pk := range pubKeys {
		ms = append(ms, NewMiner(pk, ""))
	}
	return NewMinerSet(ms)
}

// WithNewMiner returns a new MinerSet including the new miner.
func (minerSet *MinerSet) WithNewMiner(m *Miner) *MinerSet {
	ms := minerSet.Miners

	if _, ok := minerSet.ByPubKey[m.PubKeyHex]; !ok {
		ms = append(ms, m)
	}

	return NewMinerSet(ms)
}

// WithRemovedMiner returns a new MinerSet excluding the provided miner.
func (minerSet *MinerSet) WithRemovedMiner(m *Miner) *MinerSet {
	ms := []*Miner{}
	for _, other := range minerSet.Miners {
		if other.PubKeyHex != m.PubKeyHex {
			ms = append(ms, other)
		}
	}
	return NewMinerSet(ms)
}

// PubKeys returns the MinerSet's slice of public keys, in canonical order.
func (minerSet *MinerSet) PubKeys() []string {
	res := []string{}

	for _, m := range minerSet.Miners {
		res = append(res, m.PubKeyHex)
	}

	return res
}

// Len returns the number of miners in the set.
func (minerSet *MinerSet) Len() int {
	return len(minerSet.ByPubKey)
}

// Hash uniquely identifies a MinerSet. It is computed by hashing (SHA256) the
// miners' public keys together, one by one, in canonical order.
func (minerSet *MinerSet) Hash() ([]byte, error) {
	if len(minerSet.hash) == 0 {
		hash := []byte{}
		for _, m := range minerSet.Miners {
			pk, err := m.PubKeyBytes()
			if err != nil {
				return nil, err
			}
			hash = crypto.SimpleHashFromTwoHashes(hash, pk)
		}
		minerSet.hash = hash
	}
	return minerSet.hash, nil
}

// Hex is the hexadecimal representation of Hash.
func (minerSet *MinerSet) Hex() string {
	if len(minerSet.hex) == 0 {
		hash, _ := minerSet.Hash()
		minerSet.hex = common.EncodeToString(hash)
	}
	return minerSet.hex
}

// SuperMajority returns the Byzantine quorum threshold of the set: 2N/3+1,
// the minimum agreement assumed safe against N/3 faulty miners.
func (minerSet *MinerSet) SuperMajority() int {
	if minerSet.superMajority == nil {
		val := 2*minerSet.Len()/3 + 1
		minerSet.superMajority = &val
	}
	return *minerSet.superMajority
}

// TrustCount returns the maximum number of faulty miners the set tolerates:
// ceil(N/3).
func (minerSet *MinerSet) TrustCount() int {
	if minerSet.trustCount == nil {
		val := 0
		if len(minerSet.Miners) > 1 {
			val = int(math.Ceil(float64(minerSet.Len()) / float64(3)))
		}
		minerSet.trustCount = &val
	}
	return *minerSet.trustCount
}
