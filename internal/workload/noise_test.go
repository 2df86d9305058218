package workload

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInject_StaysWithinClampRange(t *testing.T) {
	rng := rand.New(rand.NewSource(585))
	profiles := []NoiseProfile{
		DefaultNoiseProfile(10),
		DefaultNoiseProfile(150),
		{StdDev: 1000, Floor: 0, Ceiling: 50},
		{StdDev: 3, Floor: 7, Ceiling: 7},
	}
	for _, p := range profiles {
		for i := 0; i < 2000; i++ {
			truth := rng.Intn(2048)
			got := Inject(rng, truth, p)
			assert.GreaterOrEqual(t, got, p.Floor)
			assert.LessOrEqual(t, got, p.Ceiling)
		}
	}
}

func TestInject_ZeroStdDevOnlyClamps(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p := DefaultNoiseProfile(0)
	assert.Equal(t, 300, Inject(rng, 300, p))
	assert.Equal(t, DefaultNoiseFloor, Inject(rng, 3, p))
	assert.Equal(t, DefaultNoiseCeiling, Inject(rng, 4000, p))
}

func TestInject_ReproducibleForSameSeedAndCallOrder(t *testing.T) {
	draw := func() []int {
		rng := NewPartitionedRNG(585).ForSubsystem(SubsystemNoise)
		out := make([]int, 50)
		for i := range out {
			out[i] = Inject(rng, 200+i, DefaultNoiseProfile(50))
		}
		return out
	}
	assert.Equal(t, draw(), draw())
}

func TestInject_CentredOnTruePriority(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := NoiseProfile{StdDev: 25, Floor: 0, Ceiling: 10000}
	sum := 0
	const n = 5000
	for i := 0; i < n; i++ {
		sum += Inject(rng, 500, p)
	}
	mean := float64(sum) / n
	assert.InDelta(t, 500, mean, 2.0)
}

func TestNoiseProfile_Validate(t *testing.T) {
	assert.NoError(t, DefaultNoiseProfile(25).Validate())
	assert.Error(t, NoiseProfile{StdDev: -1}.Validate())
	assert.Error(t, NoiseProfile{StdDev: math.NaN()}.Validate())
	assert.Error(t, NoiseProfile{StdDev: 1, Floor: 10, Ceiling: 5}.Validate())
}

func TestAnnotate_AddsOneFieldPerLevel(t *testing.T) {
	entries := []Entry{
		{Input: "first prompt", OutputTokens: 120},
		{Input: "second prompt", OutputTokens: 900},
	}

	annotated, err := Annotate(entries, DefaultNoiseLevels, DefaultNoiseFloor, DefaultNoiseCeiling, DefaultNoiseSeed)
	require.NoError(t, err)
	require.Len(t, annotated, 2)

	for i, e := range annotated {
		assert.Equal(t, DefaultNoiseLevels, e.NoiseLevels())
		assert.Equal(t, entries[i].OutputTokens, e.OutputTokens)
		for _, v := range e.Noised {
			assert.GreaterOrEqual(t, v, DefaultNoiseFloor)
			assert.LessOrEqual(t, v, DefaultNoiseCeiling)
		}
	}
	assert.Nil(t, entries[0].Noised, "input entries must not be modified")

	again, err := Annotate(entries, DefaultNoiseLevels, DefaultNoiseFloor, DefaultNoiseCeiling, DefaultNoiseSeed)
	require.NoError(t, err)
	assert.Equal(t, annotated, again)
}

func TestAnnotate_RejectsBadInput(t *testing.T) {
	_, err := Annotate([]Entry{{OutputTokens: 5}}, nil, 0, 10, 1)
	assert.Error(t, err)
	_, err = Annotate([]Entry{{OutputTokens: 5}}, []int{10}, 20, 10, 1)
	assert.Error(t, err)
}
