// Package policy maps a scheduling-policy name to the hints the backend needs.
//
// Priorities follow the engine's convention: a smaller value is scheduled
// sooner, so a predicted output length can be passed through unchanged.
package policy

import (
	"sort"
	"strings"

	"github.com/Yoosu-L/llmschedbench/internal/errdefs"
)

// Name is one of the engine's scheduling policies.
type Name string

const (
	FCFS               Name = "fcfs"
	Priority           Name = "priority"
	PriorityRoundRobin Name = "priority_round_robin"

	reverseSuffix = "_reverse"
)

var validNames = map[Name]bool{FCFS: true, Priority: true, PriorityRoundRobin: true}

// ValidNames returns the accepted policy names, sorted.
func ValidNames() []string {
	names := make([]string, 0, len(validNames)+1)
	for n := range validNames {
		names = append(names, string(n))
	}
	names = append(names, string(PriorityRoundRobin)+reverseSuffix)
	sort.Strings(names)
	return names
}

// Policy is a validated scheduling policy. Reverse flips the round-robin
// tie-break and is only meaningful for priority_round_robin.
type Policy struct {
	Name    Name
	Reverse bool
}

// Parse validates a policy name. "priority_round_robin_reverse" is shorthand
// for priority_round_robin with reverse set.
func Parse(name string, reverse bool) (Policy, error) {
	n := Name(strings.TrimSpace(name))
	if n == PriorityRoundRobin+reverseSuffix {
		n, reverse = PriorityRoundRobin, true
	}
	if !validNames[n] {
		return Policy{}, errdefs.Configf("unknown scheduling policy %q (valid: %s)", name, strings.Join(ValidNames(), ", "))
	}
	if reverse && n != PriorityRoundRobin {
		return Policy{}, errdefs.Configf("reverse tie-break only applies to %s, not %s", PriorityRoundRobin, n)
	}
	return Policy{Name: n, Reverse: reverse}, nil
}

// UsesPriorities reports whether the policy consumes per-request priorities.
func (p Policy) UsesPriorities() bool {
	return p.Name == Priority || p.Name == PriorityRoundRobin
}

func (p Policy) String() string {
	if p.Reverse {
		return string(p.Name) + reverseSuffix
	}
	return string(p.Name)
}

// Dispatch is what the runner forwards to the backend.
type Dispatch struct {
	PassPriorities bool
	// Priorities is nil unless PassPriorities is set, and then has exactly
	// one entry per prompt.
	Priorities []int
	Reverse    bool
}

// Resolve decides whether priorities are sent for a batch of numPrompts
// prompts. For priority-aware policies the priorities must line up with the
// prompts one to one; a mismatch is a configuration error.
func Resolve(p Policy, numPrompts int, priorities []int) (Dispatch, error) {
	if !validNames[p.Name] {
		return Dispatch{}, errdefs.Configf("unknown scheduling policy %q", p.Name)
	}
	if !p.UsesPriorities() {
		return Dispatch{}, nil
	}
	if len(priorities) != numPrompts {
		return Dispatch{}, errdefs.Configf("%s needs one priority per prompt: got %d priorities for %d prompts", p.Name, len(priorities), numPrompts)
	}
	return Dispatch{
		PassPriorities: true,
		Priorities:     append(make([]int, 0, numPrompts), priorities...),
		Reverse:        p.Reverse,
	}, nil
}
