package dpos

import (
	"bytes"

	"github.com/rondonetworks/rondo/src/round"
	"github.com/ugorji/go/codec"
)

// ExtraData is the consensus payload attached to a block header. The round
// snapshot it carries depends on the behavior: a full round for NextRound and
// NextTerm, a minimized round containing only the sender's own slot plus the
// peer claims being published for UpdateValue and TinyBlock.
type ExtraData struct {
	Behavior        Behavior
	SenderPubKeyHex string
	Round           *round.Round
}

// Marshal produces the canonical byte encoding of the payload.
func (d *ExtraData) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(d); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a payload produced by Marshal.
func (d *ExtraData) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(d)
}
