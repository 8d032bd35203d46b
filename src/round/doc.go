// Package round implements the replicated round state of the consensus core.
//
// A Round is one scheduling epoch: every miner is assigned a time slot in
// which it may produce blocks, and one miner, the extra block producer, is
// designated to terminate the round. Rounds are created by the generator at a
// round or term transition, mutated in place by per-block operations through
// the round's lifetime, and superseded by the next round. The current and the
// immediately previous round always remain queryable.
//
// All derivations in this package are deterministic: generating the next
// round, computing the extra block producer, hashing a round, and computing
// the last irreversible block height yield identical results on every node
// that holds the same state.
package round
