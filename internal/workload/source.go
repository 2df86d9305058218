package workload

import (
	"fmt"
	"strconv"
	"strings"
)

// SourceKind selects where a request's priority comes from.
type SourceKind int

const (
	// SourceOracle uses the true output length.
	SourceOracle SourceKind = iota
	// SourceAnnotated reads a noise annotation stored in the corpus.
	SourceAnnotated
	// SourceInjected draws fresh noise while the workload is built.
	SourceInjected
)

// PrioritySource is the priority signal attached to each request. Priorities
// are output-length estimates: smaller values are scheduled sooner.
type PrioritySource struct {
	Kind SourceKind
	// Level is the annotated noise level for SourceAnnotated.
	Level int
	// Profile is used by SourceInjected.
	Profile NoiseProfile
}

// OracleSource returns the ground-truth priority source.
func OracleSource() PrioritySource {
	return PrioritySource{Kind: SourceOracle}
}

// ParsePrioritySource understands "oracle", "inject" and "noise-<level>"
// (the corpus field name output_tokens_noise_<level> is accepted as well).
// profile is only consulted for "inject".
func ParsePrioritySource(name string, profile NoiseProfile) (PrioritySource, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "" || name == "oracle":
		return OracleSource(), nil
	case name == "inject":
		if err := profile.Validate(); err != nil {
			return PrioritySource{}, err
		}
		return PrioritySource{Kind: SourceInjected, Profile: profile}, nil
	case strings.HasPrefix(name, "noise-"), strings.HasPrefix(name, noiseFieldPrefix):
		raw := strings.TrimPrefix(strings.TrimPrefix(name, "noise-"), noiseFieldPrefix)
		level, err := strconv.Atoi(raw)
		if err != nil || level < 0 {
			return PrioritySource{}, fmt.Errorf("invalid noise level in priority source %q", name)
		}
		return PrioritySource{Kind: SourceAnnotated, Level: level}, nil
	default:
		return PrioritySource{}, fmt.Errorf("unknown priority source %q (want oracle, inject or noise-<level>)", name)
	}
}

func (s PrioritySource) String() string {
	switch s.Kind {
	case SourceAnnotated:
		return "noise-" + strconv.Itoa(s.Level)
	case SourceInjected:
		return "inject"
	default:
		return "oracle"
	}
}
