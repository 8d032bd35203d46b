package dpos

// The consensus core calls into election, treasury, health and governance as
// opaque external collaborators. All the calls are one-way and best-effort:
// their success or failure never corrupts round state, and every call site is
// guarded by an existence check so that a core wired without a collaborator
// still works.

// ElectionService takes participation snapshots at term boundaries and
// provides the miner list elected for a term.
type ElectionService interface {
	// TakeSnapshot records the participation statistics of the ending term.
	TakeSnapshot(termNumber, roundNumber uint64) error

	// NextMinerList returns the public keys elected for the given term, in
	// canonical order. An empty list means the current miner list stays.
	NextMinerList(termNumber uint64) ([]string, error)
}

// TreasuryService accrues and distributes mining rewards.
type TreasuryService interface {
	// AccrueReward updates the reward accrual for one produced block.
	AccrueReward(height uint64) error

	// Donate donates the reward accrued over the ending term.
	Donate(termNumber uint64) error
}

// HealthMonitor reports chain health and receives irreversible-height
// warnings.
type HealthMonitor interface {
	// Healthy reports whether the chain is currently considered healthy. An
	// unhealthy chain lowers the per-slot blocks ceiling.
	Healthy() bool

	// ReportUnacceptableHeight signals that a miner submitted an implied
	// irreversible height the core refused.
	ReportUnacceptableHeight(height uint64)
}

// GovernanceService exposes governance-controlled consensus parameters.
type GovernanceService interface {
	// MaximumMinersCount returns the ceiling on the number of miners a term
	// may elect.
	MaximumMinersCount() int
}
