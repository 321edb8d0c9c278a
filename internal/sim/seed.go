package sim

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"
)

// DeterministicSeedValue derives a stable subsystem seed from the session's
// root seed and a label. Hashing keeps subsystems decorrelated while two runs
// with the same root seed stay bit-identical.
func DeterministicSeedValue(rootSeed int64, label string) int64 {
	var root [8]byte
	binary.BigEndian.PutUint64(root[:], uint64(rootSeed))

	hasher := fnv.New64a()
	hasher.Write(root[:])
	hasher.Write([]byte{0})
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

// NewDeterministicRNG builds a labeled random source for one subsystem.
func NewDeterministicRNG(rootSeed int64, label string) *rand.Rand {
	return rand.New(rand.NewSource(DeterministicSeedValue(rootSeed, label)))
}
