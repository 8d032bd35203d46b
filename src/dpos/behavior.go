package dpos

// Behavior is the closed set of consensus behaviors a miner can be granted.
// The validator-selection logic matches every variant explicitly and rejects
// anything else, so an unknown behavior can never slip through with only the
// base validators applied.
type Behavior int

const (
	// Nothing means the requester is granted no behavior.
	Nothing Behavior = iota
	// UpdateValue is the miner's first full block of a round, publishing its
	// commitment, signature and secret-sharing pieces.
	UpdateValue
	// TinyBlock is an additional block within the miner's time slot, or a
	// pre-round grace block of the previous round's terminator.
	TinyBlock
	// NextRound terminates the current round.
	NextRound
	// NextTerm terminates the current round and the current term.
	NextTerm
)

var behaviors = []string{"Nothing", "UpdateValue", "TinyBlock", "NextRound", "NextTerm"}

func (b Behavior) String() string {
	if b < 0 || int(b) >= len(behaviors) {
		return "Unknown"
	}
	return behaviors[b]
}
