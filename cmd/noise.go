package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Yoosu-L/llmschedbench/internal/errdefs"
	"github.com/Yoosu-L/llmschedbench/internal/workload"
)

// NoiseAnnotation configures the offline corpus annotation pass.
type NoiseAnnotation struct {
	Dataset string `mapstructure:"dataset"`
	Output  string `mapstructure:"output"`
	Levels  []int  `mapstructure:"levels"`
	Floor   int    `mapstructure:"noise-floor"`
	Ceiling int    `mapstructure:"noise-ceiling"`
	Seed    int64  `mapstructure:"seed"`
}

func newAnnotateNoiseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annotate-noise",
		Short: "Add output_tokens_noise_<level> fields to every corpus entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := &NoiseAnnotation{}
			if err := decodeFlags(cmd, a); err != nil {
				return err
			}
			n, err := a.run()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Annotated %d entries with %d noise levels into %s\n", n, len(a.Levels), a.Output)
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringP("dataset", "d", "", "Path to the JSON corpus")
	fs.StringP("output", "o", "", "Where to write the annotated corpus (defaults to overwriting the dataset)")
	fs.IntSlice("levels", workload.DefaultNoiseLevels, "Noise standard deviations to annotate")
	fs.Int("noise-floor", workload.DefaultNoiseFloor, "Lower clamp for noised lengths")
	fs.Int("noise-ceiling", workload.DefaultNoiseCeiling, "Upper clamp for noised lengths")
	fs.Int64("seed", workload.DefaultNoiseSeed, "Noise seed")
	return cmd
}

// run annotates the corpus and returns the number of entries written.
func (a *NoiseAnnotation) run() (int, error) {
	if a.Dataset == "" {
		return 0, errdefs.Configf("dataset path is required")
	}
	if a.Output == "" {
		a.Output = a.Dataset
	}
	if err := checkOutputDir(a.Output); err != nil {
		return 0, err
	}

	entries, err := workload.LoadCorpus(a.Dataset)
	if err != nil {
		return 0, err
	}
	annotated, err := workload.Annotate(entries, a.Levels, a.Floor, a.Ceiling, a.Seed)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errdefs.ErrConfiguration, err)
	}
	if err := workload.SaveCorpus(a.Output, annotated); err != nil {
		return 0, err
	}
	logrus.Infof("Wrote %d annotated entries to %s", len(annotated), a.Output)
	return len(annotated), nil
}
