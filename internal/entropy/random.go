// Package entropy provides the reproducible random streams of a simulation run.
//
// A run owns one root seed. Every consumer asks for a sub-stream keyed by a purpose
// and up to two integers (usually round and agent id). The key is folded with splitmix64
// into the second PCG word, so each stream is independent of how many draws any other
// stream made and of the order goroutines run in.
package entropy

import (
	"math/rand/v2"
)

// Purpose names a family of sub-streams.
type Purpose uint64

const (
	PurposeSpawn      Purpose = 1 // population creation
	PurposeStrategy   Purpose = 2 // strategy assignment and per-agent strategy parameters
	PurposeCandidates Purpose = 3 // candidate selection
	PurposeLike       Purpose = 4 // like/pass decisions
)

// Streams derives sub-streams from a root seed.
type Streams struct {
	seed uint64
}

// New creates the stream family for a seed.
func New(seed int64) *Streams {
	return &Streams{seed: uint64(seed)}
}

// Seed returns the root seed.
func (s *Streams) Seed() int64 {
	return int64(s.seed)
}

// Stream returns the generator for (purpose, a, b). The same key always yields the same sequence.
func (s *Streams) Stream(p Purpose, a, b uint64) *rand.Rand {
	k := splitmix(uint64(p))
	k = splitmix(k ^ a)
	k = splitmix(k ^ b)
	return rand.New(rand.NewPCG(s.seed, k))
}

// Spawn returns the population stream.
func (s *Streams) Spawn() *rand.Rand {
	return s.Stream(PurposeSpawn, 0, 0)
}

// Agent returns the stream of one agent for one purpose and round.
func (s *Streams) Agent(p Purpose, round int, id uint64) *rand.Rand {
	return s.Stream(p, uint64(round), id)
}

// splitmix is the splitmix64 finalizer.
func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
