package miners

import (
	"fmt"
	"io/ioutil"
	"os"
	"reflect"
	"testing"

	"github.com/rondonetworks/rondo/src/crypto/keys"
)

func testMiners(t *testing.T, n int) []*Miner {
	ms := []*Miner{}
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		ms = append(ms, NewMiner(keys.PublicKeyHex(&key.PublicKey), fmt.Sprintf("miner%d", i)))
	}
	return ms
}

func TestMinerSetThresholds(t *testing.T) {
	tests := []struct {
		n             int
		superMajority int
		trustCount    int
	}{
		{1, 1, 0},
		{3, 3, 1},
		{4, 3, 2},
		{5, 4, 2},
		{7, 5, 3},
		{9, 7, 3},
	}

	for _, tt := range tests {
		ms := NewMinerSet(testMiners(t, tt.n))
		if sm := ms.SuperMajority(); sm != tt.superMajority {
			t.Fatalf("SuperMajority(%d): got %d, want %d", tt.n, sm, tt.superMajority)
		}
		if tc := ms.TrustCount(); tc != tt.trustCount {
			t.Fatalf("TrustCount(%d): got %d, want %d", tt.n, tc, tt.trustCount)
		}
	}
}

func TestMinerSetHash(t *testing.T) {
	ms := testMiners(t, 4)

	set1 := NewMinerSet(ms)
	set2 := NewMinerSet(ms)

	h1, err := set1.Hash()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	h2, err := set2.Hash()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !reflect.DeepEqual(h1, h2) {
		t.Fatal("identical sets should hash identically")
	}

	// order matters
	reversed := []*Miner{ms[3], ms[2], ms[1], ms[0]}
	h3, err := NewMinerSet(reversed).Hash()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if reflect.DeepEqual(h1, h3) {
		t.Fatal("reordered set should hash differently")
	}
}

func TestMinerSetModifications(t *testing.T) {
	ms := testMiners(t, 4)
	set := NewMinerSet(ms[:3])

	grown := set.WithNewMiner(ms[3])
	if grown.Len() != 4 {
		t.Fatalf("grown set: got %d miners, want 4", grown.Len())
	}
	if set.Len() != 3 {
		t.Fatal("WithNewMiner should not mutate the receiver")
	}

	// adding a known miner is a no-op
	same := grown.WithNewMiner(ms[0])
	if same.Len() != 4 {
		t.Fatalf("set with duplicate: got %d miners, want 4", same.Len())
	}

	shrunk := grown.WithRemovedMiner(ms[1])
	if shrunk.Len() != 3 {
		t.Fatalf("shrunk set: got %d miners, want 3", shrunk.Len())
	}
	if _, ok := shrunk.ByPubKey[ms[1].PubKeyHex]; ok {
		t.Fatal("removed miner still present")
	}
}

func TestJSONMinerSet(t *testing.T) {
	dir, err := ioutil.TempDir("", "rondo")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	store := NewJSONMinerSet(dir)

	// Try a read, should get nothing
	if _, err := store.MinerSet(); err == nil {
		t.Fatal("store.MinerSet() should generate an error")
	}

	ms := testMiners(t, 3)
	// lower-case prefixes are cleansed on read
	ms[0].PubKeyHex = "0x" + ms[0].PubKeyHex[2:]

	if err := store.Write(ms); err != nil {
		t.Fatalf("err: %v", err)
	}

	read, err := store.MinerSet()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if read.Len() != 3 {
		t.Fatalf("miners: got %d, want 3", read.Len())
	}

	for i, m := range read.Miners {
		if m.PubKeyHex[:2] != "0X" {
			t.Fatalf("miners[%d] PubKeyHex not cleansed: %s", i, m.PubKeyHex)
		}
		if m.Moniker != ms[i].Moniker {
			t.Fatalf("miners[%d] Moniker should be %s, not %s", i, ms[i].Moniker, m.Moniker)
		}
	}
}
