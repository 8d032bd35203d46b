package round

import (
	"bytes"

	"github.com/rondonetworks/rondo/src/common"
	"github.com/rondonetworks/rondo/src/crypto"
	"github.com/ugorji/go/codec"
)

// Marshal produces the canonical byte encoding of the round. Canonical JSON
// guarantees that every node serializes the same round to the same bytes.
func (r *Round) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(r); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a round produced by Marshal.
func (r *Round) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(r)
}

// Hash returns the consensus hash of the round: the SHA256 of the canonical
// encoding of a checkable copy. The copy excludes the rapidly-mutating
// per-block fields (actual mining times) and the secret-sharing piece maps,
// but includes every field that participates in consensus decisions,
// including the extra-block-producer designation and the irreversible-block
// fields. Two nodes that executed the same operations on the same base round
// compute the same hash.
func (r *Round) Hash() ([]byte, error) {
	chk := r.checkable()

	data, err := chk.Marshal()
	if err != nil {
		return nil, err
	}

	return crypto.SHA256(data), nil
}

// Hex is the hexadecimal representation of Hash.
func (r *Round) Hex() (string, error) {
	hash, err := r.Hash()
	if err != nil {
		return "", err
	}
	return common.EncodeToString(hash), nil
}

// checkable returns a deep copy with the volatile fields stripped.
func (r *Round) checkable() *Round {
	c := r.Clone()
	for _, s := range c.Slots {
		s.ActualMiningTimes = nil
		s.EncryptedPieces = nil
		s.DecryptedPieces = nil
	}
	return c
}
