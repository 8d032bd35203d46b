package dpos

import (
	"strconv"
	"time"

	cm "github.com/rondonetworks/rondo/src/common"
	"github.com/rondonetworks/rondo/src/round"
)

// InmemStore implements the Store interface with an in-memory rolling window
// of rounds. When the window is full, older rounds are evicted; the current
// and previous rounds always stay inside the window.
type InmemStore struct {
	cacheSize  int
	rounds     *cm.RollingIndex //round number => Round
	lastRound  uint64
	height     uint64
	chainStart time.Time
}

// NewInmemStore creates a new InmemStore with a window of cacheSize rounds.
func NewInmemStore(cacheSize int) *InmemStore {
	return &InmemStore{
		cacheSize: cacheSize,
		rounds:    cm.NewRollingIndex("Rounds", cacheSize),
	}
}

// CacheSize implements the Store interface.
func (s *InmemStore) CacheSize() int {
	return s.cacheSize
}

// ChainStart implements the Store interface.
func (s *InmemStore) ChainStart() (time.Time, error) {
	if s.chainStart.IsZero() {
		return time.Time{}, cm.NewStoreErr("ChainStart", cm.Empty, "")
	}
	return s.chainStart, nil
}

// SetChainStart implements the Store interface.
func (s *InmemStore) SetChainStart(t time.Time) error {
	s.chainStart = t
	return nil
}

// GetRound implements the Store interface.
func (s *InmemStore) GetRound(number uint64) (*round.Round, error) {
	item, err := s.rounds.GetItem(int(number) - 1)
	if err != nil {
		return nil, err
	}
	return item.(*round.Round), nil
}

// SetRound implements the Store interface.
func (s *InmemStore) SetRound(r *round.Round) error {
	if err := s.rounds.Set(r, int(r.Number)-1); err != nil {
		return err
	}
	if r.Number > s.lastRound {
		s.lastRound = r.Number
	}
	return nil
}

// CurrentRound implements the Store interface.
func (s *InmemStore) CurrentRound() (*round.Round, error) {
	if s.lastRound == 0 {
		return nil, cm.NewStoreErr("Rounds", cm.NoRound, "current")
	}
	return s.GetRound(s.lastRound)
}

// PreviousRound implements the Store interface.
func (s *InmemStore) PreviousRound() (*round.Round, error) {
	if s.lastRound < 2 {
		return nil, cm.NewStoreErr("Rounds", cm.NoRound, strconv.FormatUint(s.lastRound, 10))
	}
	return s.GetRound(s.lastRound - 1)
}

// LastRoundNumber implements the Store interface.
func (s *InmemStore) LastRoundNumber() uint64 {
	return s.lastRound
}

// CurrentHeight implements the Store interface.
func (s *InmemStore) CurrentHeight() uint64 {
	return s.height
}

// SetCurrentHeight implements the Store interface.
func (s *InmemStore) SetCurrentHeight(height uint64) error {
	s.height = height
	return nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}
