package dpos

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"testing"
	"time"

	cm "github.com/rondonetworks/rondo/src/common"
	"github.com/rondonetworks/rondo/src/crypto"
	"github.com/rondonetworks/rondo/src/miners"
	"github.com/rondonetworks/rondo/src/round"
)

var storeTestInterval = 4 * time.Second

func storeTestPubKeys(n int) []string {
	pubKeys := []string{}
	for i := 0; i < n; i++ {
		pubKeys = append(pubKeys, cm.EncodeToString([]byte{byte(i + 1)}))
	}
	return pubKeys
}

func storeTestStart() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

// storeTestRounds produces `count` consecutive rounds in which every miner
// mined, so that consecutive generation succeeds.
func storeTestRounds(t *testing.T, n, count int) []*round.Round {
	ms := miners.NewMinerSetFromPubKeys(storeTestPubKeys(n))

	r, err := round.GenerateFirstRound(ms, storeTestStart(), storeTestInterval)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	rounds := []*round.Round{r}
	for len(rounds) < count {
		cur := rounds[len(rounds)-1]
		for i, s := range cur.Slots {
			s.OutValue = crypto.SHA256([]byte{byte(cur.Number), byte(i)})
			s.Signature = crypto.SHA256(s.OutValue)
			s.FinalOrderOfNextRound = s.Order
			s.ProducedBlocks++
			s.ProducedTinyBlocks = 1
		}
		next, err := round.GenerateNextRound(cur, cur.ExtraBlockMiningTime(storeTestInterval), storeTestInterval)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		rounds = append(rounds, next)
	}

	return rounds
}

func checkStoreRound(t *testing.T, store Store, want *round.Round) {
	got, err := store.GetRound(want.Number)
	if err != nil {
		t.Fatalf("round %d: %v", want.Number, err)
	}
	gh, err := got.Hash()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	wh, err := want.Hash()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !bytes.Equal(gh, wh) {
		t.Fatalf("round %d hash: got %X, want %X", want.Number, gh, wh)
	}
}

func TestInmemStore(t *testing.T) {
	store := NewInmemStore(10)

	if _, err := store.CurrentRound(); !cm.IsStore(err, cm.NoRound) {
		t.Fatalf("empty store should return NoRound, got %v", err)
	}
	if _, err := store.ChainStart(); !cm.IsStore(err, cm.Empty) {
		t.Fatalf("empty store should have no chain start, got %v", err)
	}

	rounds := storeTestRounds(t, 5, 3)
	for _, r := range rounds {
		if err := store.SetRound(r); err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	if store.LastRoundNumber() != 3 {
		t.Fatalf("last round: got %d, want 3", store.LastRoundNumber())
	}

	cur, err := store.CurrentRound()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if cur.Number != 3 {
		t.Fatalf("current round: got %d, want 3", cur.Number)
	}

	prev, err := store.PreviousRound()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if prev.Number != 2 {
		t.Fatalf("previous round: got %d, want 2", prev.Number)
	}

	// in-place replacement of the current round
	amended := cur.Clone()
	amended.Slots[0].ProducedBlocks = 99
	if err := store.SetRound(amended); err != nil {
		t.Fatalf("err: %v", err)
	}
	reread, err := store.GetRound(3)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if reread.Slots[0].ProducedBlocks != 99 {
		t.Fatal("replaced round should be returned")
	}

	if err := store.SetCurrentHeight(42); err != nil {
		t.Fatalf("err: %v", err)
	}
	if store.CurrentHeight() != 42 {
		t.Fatalf("height: got %d, want 42", store.CurrentHeight())
	}
}

func TestInmemStorePreviousOfFirstRound(t *testing.T) {
	store := NewInmemStore(10)

	rounds := storeTestRounds(t, 5, 1)
	if err := store.SetRound(rounds[0]); err != nil {
		t.Fatalf("err: %v", err)
	}

	if _, err := store.PreviousRound(); !cm.IsStore(err, cm.NoRound) {
		t.Fatalf("round 1 has no previous round, got %v", err)
	}
}

func TestBadgerStore(t *testing.T) {
	dir, err := ioutil.TempDir("", "badger")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)
	path := fmt.Sprintf("%s/db", dir)

	store, err := NewBadgerStore(2, path)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if store.StorePath() != path {
		t.Fatalf("path: got %s, want %s", store.StorePath(), path)
	}

	if err := store.SetChainStart(storeTestStart()); err != nil {
		t.Fatalf("err: %v", err)
	}

	rounds := storeTestRounds(t, 5, 4)
	for _, r := range rounds {
		if err := store.SetRound(r); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
	if err := store.SetCurrentHeight(17); err != nil {
		t.Fatalf("err: %v", err)
	}

	// rounds 1 and 2 were evicted from the in-memory window; reads fall
	// back to the database
	for _, r := range rounds {
		checkStoreRound(t, store, r)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("err: %v", err)
	}
}

func TestLoadBadgerStore(t *testing.T) {
	dir, err := ioutil.TempDir("", "badger")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)
	path := fmt.Sprintf("%s/db", dir)

	rounds := storeTestRounds(t, 5, 3)

	store, err := NewBadgerStore(10, path)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := store.SetChainStart(storeTestStart()); err != nil {
		t.Fatalf("err: %v", err)
	}
	for _, r := range rounds {
		if err := store.SetRound(r); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
	if err := store.SetCurrentHeight(11); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("err: %v", err)
	}

	loaded, err := LoadBadgerStore(10, path)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer loaded.Close()

	start, err := loaded.ChainStart()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !start.Equal(storeTestStart()) {
		t.Fatalf("chain start: got %v, want %v", start, storeTestStart())
	}
	if loaded.CurrentHeight() != 11 {
		t.Fatalf("height: got %d, want 11", loaded.CurrentHeight())
	}
	if loaded.LastRoundNumber() != 3 {
		t.Fatalf("last round: got %d, want 3", loaded.LastRoundNumber())
	}

	for _, r := range rounds {
		checkStoreRound(t, loaded, r)
	}

	prev, err := loaded.PreviousRound()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if prev.Number != 2 {
		t.Fatalf("previous round: got %d, want 2", prev.Number)
	}
}
