package workload

import (
	"fmt"
	"math"
	"math/rand"
)

const (
	// DefaultNoiseFloor keeps noised priorities clear of degenerate tiny jobs.
	DefaultNoiseFloor = 15
	// DefaultNoiseCeiling is one past the engine's preemption threshold of
	// 1024 tokens.
	DefaultNoiseCeiling = 1025
	// DefaultNoiseSeed is the seed the published sweeps were annotated with.
	DefaultNoiseSeed = 585
)

// DefaultNoiseLevels are the standard deviations of a sensitivity sweep.
var DefaultNoiseLevels = []int{10, 25, 50, 75, 100, 125, 150}

// NoiseProfile describes how an imperfect oracle perturbs a true priority.
type NoiseProfile struct {
	StdDev  float64 `json:"std_dev" yaml:"std-dev"`
	Floor   int     `json:"floor" yaml:"floor"`
	Ceiling int     `json:"ceiling" yaml:"ceiling"`
}

// DefaultNoiseProfile returns a profile with the default clamp range.
func DefaultNoiseProfile(stdDev float64) NoiseProfile {
	return NoiseProfile{StdDev: stdDev, Floor: DefaultNoiseFloor, Ceiling: DefaultNoiseCeiling}
}

func (p NoiseProfile) Validate() error {
	if p.StdDev < 0 || math.IsNaN(p.StdDev) || math.IsInf(p.StdDev, 0) {
		return fmt.Errorf("noise std-dev must be a finite non-negative number, got %v", p.StdDev)
	}
	if p.Floor > p.Ceiling {
		return fmt.Errorf("noise floor %d exceeds ceiling %d", p.Floor, p.Ceiling)
	}
	return nil
}

// Inject draws from N(truePriority, StdDev), rounds half to even and clamps
// to [Floor, Ceiling]. The result depends only on the arguments and the
// position of the call in rng's stream.
func Inject(rng *rand.Rand, truePriority int, p NoiseProfile) int {
	sample := float64(truePriority) + rng.NormFloat64()*p.StdDev
	sample = math.Max(float64(p.Floor), math.Min(float64(p.Ceiling), sample))
	return int(math.RoundToEven(sample))
}

// Annotate returns a copy of entries where each entry carries one noised
// output length per level. Draws are taken entry by entry, level by level,
// from the noise stream of seed.
func Annotate(entries []Entry, levels []int, floor, ceiling int, seed int64) ([]Entry, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("at least one noise level is required")
	}
	for _, level := range levels {
		if err := (NoiseProfile{StdDev: float64(level), Floor: floor, Ceiling: ceiling}).Validate(); err != nil {
			return nil, err
		}
	}

	rng := NewPartitionedRNG(seed).ForSubsystem(SubsystemNoise)
	out := make([]Entry, len(entries))
	for i, entry := range entries {
		annotated := entry.clone()
		if annotated.Noised == nil {
			annotated.Noised = make(map[int]int, len(levels))
		}
		for _, level := range levels {
			profile := NoiseProfile{StdDev: float64(level), Floor: floor, Ceiling: ceiling}
			annotated.Noised[level] = Inject(rng, entry.OutputTokens, profile)
		}
		out[i] = annotated
	}
	return out, nil
}
