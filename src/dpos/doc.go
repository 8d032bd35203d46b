// Package dpos implements the round-based consensus core: deciding which
// behavior a miner may perform, building the consensus payload a block header
// carries, validating payloads before and after execution, and applying the
// per-block operations that mutate round state.
//
// Execution is single-threaded and cooperative per block: one block, one
// consensus operation, applied to a serialized view of chain state. All
// validation and execution are pure, synchronous computations over the
// current state snapshot; the wall-clock time a caller supplies is advisory
// input, never a scheduler signal.
package dpos
