package workload

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const noiseFieldPrefix = "output_tokens_noise_"

// corpusSchema accepts the array written by the dataset scripts, with or
// without noise annotations. Unknown fields are kept as-is.
const corpusSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["input", "output_tokens"],
    "properties": {
      "input": {"type": "string"},
      "output_tokens": {"type": "integer", "minimum": 0}
    },
    "patternProperties": {
      "^output_tokens_noise_[0-9]+$": {"type": "integer", "minimum": 0}
    }
  }
}`

// Entry is one corpus record: a prompt and the number of tokens the model
// actually produced for it.
type Entry struct {
	Input        string
	OutputTokens int
	// Noised maps a noise standard deviation to a perturbed OutputTokens.
	Noised map[int]int

	extra map[string]json.RawMessage
}

// NoiseField returns the JSON field name holding the annotation for level.
func NoiseField(level int) string {
	return noiseFieldPrefix + strconv.Itoa(level)
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Entry{}
	for key, value := range raw {
		switch {
		case key == "input":
			if err := json.Unmarshal(value, &e.Input); err != nil {
				return fmt.Errorf("field input: %w", err)
			}
		case key == "output_tokens":
			if err := json.Unmarshal(value, &e.OutputTokens); err != nil {
				return fmt.Errorf("field output_tokens: %w", err)
			}
		case strings.HasPrefix(key, noiseFieldPrefix):
			level, err := strconv.Atoi(strings.TrimPrefix(key, noiseFieldPrefix))
			if err != nil {
				return fmt.Errorf("field %s: bad noise level", key)
			}
			var v int
			if err := json.Unmarshal(value, &v); err != nil {
				return fmt.Errorf("field %s: %w", key, err)
			}
			if e.Noised == nil {
				e.Noised = make(map[int]int)
			}
			e.Noised[level] = v
		default:
			if e.extra == nil {
				e.extra = make(map[string]json.RawMessage)
			}
			e.extra[key] = value
		}
	}
	return nil
}

func (e Entry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.extra)+len(e.Noised)+2)
	for k, v := range e.extra {
		out[k] = v
	}
	out["input"] = e.Input
	out["output_tokens"] = e.OutputTokens
	for level, v := range e.Noised {
		out[NoiseField(level)] = v
	}
	return json.Marshal(out)
}

// NoiseLevels lists the annotated noise levels of the entry in ascending order.
func (e Entry) NoiseLevels() []int {
	levels := make([]int, 0, len(e.Noised))
	for level := range e.Noised {
		levels = append(levels, level)
	}
	sort.Ints(levels)
	return levels
}

func (e Entry) clone() Entry {
	c := e
	if e.Noised != nil {
		c.Noised = make(map[int]int, len(e.Noised))
		for k, v := range e.Noised {
			c.Noised[k] = v
		}
	}
	return c
}

// ParseCorpus validates data against the corpus schema and decodes it.
func ParseCorpus(data []byte) ([]Entry, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(corpusSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("validating corpus: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("corpus does not match schema: %s", strings.Join(msgs, "; "))
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding corpus: %w", err)
	}
	return entries, nil
}

// LoadCorpus reads and validates a corpus file.
func LoadCorpus(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}
	entries, err := ParseCorpus(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// SaveCorpus writes entries as an indented JSON array. The file is replaced
// atomically so an interrupted write never leaves a truncated corpus behind.
func SaveCorpus(path string, entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding corpus: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".corpus-*.json")
	if err != nil {
		return fmt.Errorf("creating corpus file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing corpus: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing corpus: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing corpus: %w", err)
	}
	return nil
}
