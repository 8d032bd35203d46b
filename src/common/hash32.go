package common

import "hash/fnv"

// Hash32 returns a 32-bit fnv hash of the data. It is used to derive short
// miner IDs from public keys.
func Hash32(data []byte) uint32 {
	h := fnv.New32a()

	h.Write(data)

	return h.Sum32()
}
