package workload

import (
	"hash/fnv"
	"math/rand"
)

const (
	// SubsystemShuffle orders the corpus. It uses the master seed directly so
	// that a seed names the same sample across harness versions.
	SubsystemShuffle = "shuffle"
	// SubsystemNoise feeds priority noise injection.
	SubsystemNoise = "noise"
)

// PartitionedRNG hands out one deterministic stream per subsystem, so drawing
// noise never perturbs the shuffle order and vice versa.
//
// Not safe for concurrent use.
type PartitionedRNG struct {
	seed       int64
	subsystems map[string]*rand.Rand
}

func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{
		seed:       seed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the cached stream for name, creating it on first use.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}

	derived := p.seed
	if name != SubsystemShuffle {
		derived = p.seed ^ fnv1a64(name)
	}
	rng := rand.New(rand.NewSource(derived))
	p.subsystems[name] = rng
	return rng
}

// Seed returns the master seed.
func (p *PartitionedRNG) Seed() int64 {
	return p.seed
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
