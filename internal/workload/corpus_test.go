package workload

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCorpus_KeepsAnnotationsAndUnknownFields(t *testing.T) {
	data := []byte(`[
		{"input": "Hello, my name is", "output_len": 81, "output_tokens": 20, "output_tokens_noise_10": 27},
		{"input": "The capital of France is", "output_tokens": 9}
	]`)

	entries, err := ParseCorpus(data)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Hello, my name is", entries[0].Input)
	assert.Equal(t, 20, entries[0].OutputTokens)
	assert.Equal(t, map[int]int{10: 27}, entries[0].Noised)
	assert.Empty(t, entries[1].Noised)

	out, err := json.Marshal(entries[0])
	require.NoError(t, err)
	var roundTrip map[string]any
	require.NoError(t, json.Unmarshal(out, &roundTrip))
	assert.Equal(t, float64(81), roundTrip["output_len"])
	assert.Equal(t, float64(27), roundTrip["output_tokens_noise_10"])
}

func TestParseCorpus_SchemaViolations(t *testing.T) {
	cases := map[string]string{
		"not an array":          `{"input": "x", "output_tokens": 1}`,
		"missing output_tokens": `[{"input": "x"}]`,
		"string output_tokens":  `[{"input": "x", "output_tokens": "12"}]`,
		"negative length":       `[{"input": "x", "output_tokens": -3}]`,
		"fractional noise":      `[{"input": "x", "output_tokens": 3, "output_tokens_noise_10": 2.5}]`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCorpus([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestSaveAndLoadCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.json")
	entries := []Entry{{Input: "a b c d", OutputTokens: 12, Noised: map[int]int{25: 30}}}

	require.NoError(t, SaveCorpus(path, entries))
	loaded, err := LoadCorpus(path)
	require.NoError(t, err)
	assert.Equal(t, entries[0].Input, loaded[0].Input)
	assert.Equal(t, entries[0].Noised, loaded[0].Noised)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".corpus-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestLoadCorpus_MissingFile(t *testing.T) {
	_, err := LoadCorpus(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
