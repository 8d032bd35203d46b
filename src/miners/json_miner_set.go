package miners

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"strings"
	"sync"
)

const jsonMinerSetPath = "miners.json"

// JSONMinerSet provides miner-set persistence on disk in the form of a JSON
// file. It plays the role of the genesis miner list for a chain.
type JSONMinerSet struct {
	l    sync.Mutex
	path string
}

// NewJSONMinerSet creates a new JSONMinerSet with reference to a base
// directory where the JSON file resides.
func NewJSONMinerSet(base string) *JSONMinerSet {
	return &JSONMinerSet{
		path: filepath.Join(base, jsonMinerSetPath),
	}
}

// MinerSet parses the underlying JSON file and returns the corresponding
// MinerSet.
func (j *JSONMinerSet) MinerSet() (*MinerSet, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	if len(buf) == 0 {
		return nil, nil
	}

	var ms []*Miner
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&ms); err != nil {
		return nil, err
	}

	cleanseMinerSet(ms)

	return NewMinerSet(ms), nil
}

// cleanseMinerSet standardises the public key strings to match the format
// derived from a private key.
func cleanseMinerSet(ms []*Miner) {
	for _, m := range ms {
		m.PubKeyHex = "0X" + strings.TrimPrefix(strings.ToUpper(m.PubKeyHex), "0X")
	}
}

// Write persists a miner list to the JSON file.
func (j *JSONMinerSet) Write(ms []*Miner) error {
	j.l.Lock()
	defer j.l.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(ms); err != nil {
		return err
	}

	return ioutil.WriteFile(j.path, buf.Bytes(), 0755)
}
