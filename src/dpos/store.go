package dpos

import (
	"time"

	"github.com/rondonetworks/rondo/src/round"
)

// Store is an interface for consensus state backends. The current and the
// immediately previous round must remain queryable at all times; older rounds
// may be evicted.
type Store interface {
	// CacheSize retrieves the cacheSize setting that bounds the in-memory
	// round window.
	CacheSize() int
	// ChainStart returns the chain's start time, from which term boundaries
	// are computed.
	ChainStart() (time.Time, error)
	// SetChainStart records the chain's start time. It is written once, at
	// genesis.
	SetChainStart(t time.Time) error
	// GetRound retrieves a round by number.
	GetRound(number uint64) (*round.Round, error)
	// SetRound stores a round. Setting round n+1 when round n is the latest
	// makes n+1 the current round; setting an existing number replaces it.
	SetRound(r *round.Round) error
	// CurrentRound returns the latest stored round.
	CurrentRound() (*round.Round, error)
	// PreviousRound returns the round immediately before the current one.
	PreviousRound() (*round.Round, error)
	// LastRoundNumber returns the number of the latest stored round, or 0
	// when the store is empty.
	LastRoundNumber() uint64
	// CurrentHeight returns the execution height of the last applied block.
	CurrentHeight() uint64
	// SetCurrentHeight records the execution height of the last applied
	// block.
	SetCurrentHeight(height uint64) error
	// Close closes the underlying database.
	Close() error
	// StorePath returns the filepath of the underlying database.
	StorePath() string
}
