package dpos

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger"
	cm "github.com/rondonetworks/rondo/src/common"
	"github.com/rondonetworks/rondo/src/round"
)

const (
	roundPrefix   = "round"
	lastRoundKey  = "last_round"
	heightKey     = "height"
	chainStartKey = "chain_start"
)

// BadgerStore implements the Store interface with a persistent Badger
// database behind the in-memory window, so that a node can bootstrap from an
// existing state.
type BadgerStore struct {
	inmemStore *InmemStore
	db         *badger.DB
	path       string
}

// NewBadgerStore creates a brand new Store with a new database.
func NewBadgerStore(cacheSize int, path string) (*BadgerStore, error) {
	inmemStore := NewInmemStore(cacheSize)
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	store := &BadgerStore{
		inmemStore: inmemStore,
		db:         handle,
		path:       path,
	}
	return store, nil
}

// LoadBadgerStore creates a Store from an existing database: the chain start,
// the height, and the last two rounds are read back into the in-memory
// window.
func LoadBadgerStore(cacheSize int, path string) (*BadgerStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	store := &BadgerStore{
		inmemStore: NewInmemStore(cacheSize),
		db:         handle,
		path:       path,
	}

	if err := store.bootstrap(); err != nil {
		store.Close()
		return nil, err
	}

	return store, nil
}

func (s *BadgerStore) bootstrap() error {
	lastRound, err := s.dbGetUint64(lastRoundKey)
	if err != nil {
		return err
	}
	if lastRound == 0 {
		return cm.NewStoreErr("Rounds", cm.NoRound, "bootstrap")
	}

	chainStart, err := s.dbGetChainStart()
	if err != nil {
		return err
	}
	s.inmemStore.SetChainStart(chainStart)

	height, err := s.dbGetUint64(heightKey)
	if err != nil {
		return err
	}
	s.inmemStore.SetCurrentHeight(height)

	first := lastRound
	if lastRound > 1 {
		first = lastRound - 1
	}
	for n := first; n <= lastRound; n++ {
		r, err := s.dbGetRound(n)
		if err != nil {
			return err
		}
		if err := s.inmemStore.SetRound(r); err != nil {
			return err
		}
	}

	return nil
}

// CacheSize implements the Store interface.
func (s *BadgerStore) CacheSize() int {
	return s.inmemStore.CacheSize()
}

// ChainStart implements the Store interface.
func (s *BadgerStore) ChainStart() (time.Time, error) {
	return s.inmemStore.ChainStart()
}

// SetChainStart implements the Store interface.
func (s *BadgerStore) SetChainStart(t time.Time) error {
	if err := s.inmemStore.SetChainStart(t); err != nil {
		return err
	}
	return s.db.Update(func(tx *badger.Txn) error {
		return tx.Set([]byte(chainStartKey), []byte(t.UTC().Format(time.RFC3339Nano)))
	})
}

// GetRound implements the Store interface. It checks the in-memory window
// first and falls back to the database for evicted rounds.
func (s *BadgerStore) GetRound(number uint64) (*round.Round, error) {
	if r, err := s.inmemStore.GetRound(number); err == nil {
		return r, nil
	}
	return s.dbGetRound(number)
}

// SetRound implements the Store interface.
func (s *BadgerStore) SetRound(r *round.Round) error {
	if err := s.inmemStore.SetRound(r); err != nil {
		return err
	}
	if err := s.dbSetRound(r); err != nil {
		return err
	}
	return s.dbSetUint64(lastRoundKey, s.inmemStore.LastRoundNumber())
}

// CurrentRound implements the Store interface.
func (s *BadgerStore) CurrentRound() (*round.Round, error) {
	return s.inmemStore.CurrentRound()
}

// PreviousRound implements the Store interface.
func (s *BadgerStore) PreviousRound() (*round.Round, error) {
	return s.inmemStore.PreviousRound()
}

// LastRoundNumber implements the Store interface.
func (s *BadgerStore) LastRoundNumber() uint64 {
	return s.inmemStore.LastRoundNumber()
}

// CurrentHeight implements the Store interface.
func (s *BadgerStore) CurrentHeight() uint64 {
	return s.inmemStore.CurrentHeight()
}

// SetCurrentHeight implements the Store interface.
func (s *BadgerStore) SetCurrentHeight(height uint64) error {
	if err := s.inmemStore.SetCurrentHeight(height); err != nil {
		return err
	}
	return s.dbSetUint64(heightKey, height)
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// StorePath implements the Store interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}

/* DB Methods */

func roundKey(number uint64) []byte {
	return []byte(fmt.Sprintf("%s_%09d", roundPrefix, number))
}

func (s *BadgerStore) dbGetRound(number uint64) (*round.Round, error) {
	var roundBytes []byte
	err := s.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(roundKey(number))
		if err != nil {
			return err
		}
		roundBytes, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, cm.NewStoreErr("DBRounds", cm.KeyNotFound, fmt.Sprint(number))
	}

	r := new(round.Round)
	if err := r.Unmarshal(roundBytes); err != nil {
		return nil, err
	}

	return r, nil
}

func (s *BadgerStore) dbSetRound(r *round.Round) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *badger.Txn) error {
		return tx.Set(roundKey(r.Number), data)
	})
}

func (s *BadgerStore) dbGetUint64(key string) (uint64, error) {
	var val uint64
	err := s.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			val = 0
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		val = binary.BigEndian.Uint64(raw)
		return nil
	})
	return val, err
}

func (s *BadgerStore) dbSetUint64(key string, val uint64) error {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, val)
	return s.db.Update(func(tx *badger.Txn) error {
		return tx.Set([]byte(key), raw)
	})
}

func (s *BadgerStore) dbGetChainStart() (time.Time, error) {
	var raw []byte
	err := s.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(chainStartKey))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return time.Time{}, cm.NewStoreErr("ChainStart", cm.Empty, "")
	}
	return time.Parse(time.RFC3339Nano, string(raw))
}
