package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Yoosu-L/llmschedbench/internal/errdefs"
	"github.com/Yoosu-L/llmschedbench/internal/policy"
	"github.com/Yoosu-L/llmschedbench/internal/workload"
)

const envPrefix = "SCHEDBENCH"

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "llmschedbench",
		Short:         "Benchmark how a serving engine's scheduling policy behaves under predicted priorities",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", logLevel, err)
			}
			logrus.SetLevel(level)
			logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			return nil
		},
	}
	root.PersistentFlags().String("config", "", "Config file (yaml, json or toml) supplying any flag by name")
	root.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error)")

	root.AddCommand(newLatencyCmd(), newThroughputCmd(), newAnnotateNoiseCmd())
	return root
}

func newLatencyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "latency",
		Short: "Time repeated submissions of one prioritized batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBenchmark(cmd)
			if err != nil {
				return err
			}
			result, err := b.runLatency(cmd.Context(), cmd.OutOrStdout())
			if err != nil || result == nil {
				return err
			}
			return result.Print(cmd.OutOrStdout(), b.Format)
		},
	}
	fs := cmd.Flags()
	addBackendFlags(fs)
	addWorkloadFlags(fs, 8, 100)
	addSamplingFlags(fs, 1.0)
	fs.Int("num-iters-warmup", 10, "Number of discarded warm-up iterations")
	fs.Int("num-iters", 30, "Number of timed iterations")
	fs.String("profile-result-dir", "", "Write a CPU profile of one extra iteration to this directory")
	return cmd
}

func newThroughputCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "throughput",
		Short: "Submit a whole prioritized workload once and report request and token rates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBenchmark(cmd)
			if err != nil {
				return err
			}
			result, err := b.runThroughput(cmd.Context(), cmd.OutOrStdout())
			if err != nil || result == nil {
				return err
			}
			return result.Print(cmd.OutOrStdout(), b.Format)
		},
	}
	fs := cmd.Flags()
	addBackendFlags(fs)
	addWorkloadFlags(fs, 1000, 0)
	addSamplingFlags(fs, 0.0)
	return cmd
}

func addBackendFlags(fs *pflag.FlagSet) {
	fs.StringP("base-url", "u", "http://localhost:8000/v1", "Base URL of the OpenAI-compatible serving engine")
	fs.StringP("api-key", "k", "", "API key for authentication")
	fs.StringP("model", "m", "", "Model to be used for the requests (discovered when empty)")
	fs.String("tokenizer", "server", "Prompt length source: server (the engine's /tokenize) or words")
	fs.IntP("concurrency", "c", 0, "Maximum in-flight requests; 0 submits the whole batch at once")
	fs.Duration("timeout", 10*time.Minute, "Per-request timeout")
	fs.String("output-json", "", "Write the report to this JSON file")
	fs.String("format", "text", "Summary format: text, json or yaml")
	fs.Bool("progress", true, "Show progress bars on stderr")
	fs.Bool("dry-run", false, "Print the resolved configuration and workload, then exit without sending requests")
}

func addWorkloadFlags(fs *pflag.FlagSet, numRequests, corpusLimit int) {
	bounds := workload.DefaultBounds()
	fs.StringP("dataset", "d", "", "Path to the JSON corpus")
	fs.Int("num-requests", numRequests, "Number of requests in the workload")
	fs.Int("corpus-limit", corpusLimit, "Use only the first N corpus entries; 0 uses all")
	fs.Int64("seed", 0, "Shuffle and noise seed")
	fs.String("priority-source", "oracle", "Priority source: oracle, inject or noise-<level>")
	fs.Float64("noise-std-dev", 0, "Standard deviation for --priority-source inject")
	fs.Int("noise-floor", workload.DefaultNoiseFloor, "Lower clamp for injected noise")
	fs.Int("noise-ceiling", workload.DefaultNoiseCeiling, "Upper clamp for injected noise")
	fs.Int("min-input-len", bounds.MinInputLen, "Minimum prompt length in tokens")
	fs.Int("min-output-len", bounds.MinOutputLen, "Minimum output length in tokens")
	fs.Int("max-input-len", bounds.MaxInputLen, "Maximum prompt length in tokens")
	fs.Int("max-total-len", bounds.MaxTotalLen, "Maximum prompt plus output length in tokens")
	fs.StringP("scheduling-policy", "p", string(policy.FCFS),
		"Scheduling policy: "+strings.Join(policy.ValidNames(), ", "))
	fs.Bool("reverse", false, "Reverse the round-robin order (priority_round_robin only)")
}

func addSamplingFlags(fs *pflag.FlagSet, temperature float64) {
	fs.Int("n", 1, "Number of sequences generated per prompt")
	fs.Float64("temperature", temperature, "Sampling temperature")
	fs.Float64("top-p", 1.0, "Nucleus sampling probability mass")
	fs.Bool("ignore-eos", false, "Keep generating past EOS up to the recorded output length")
}

// loadBenchmark resolves the configuration of a latency or throughput run.
func loadBenchmark(cmd *cobra.Command) (*Benchmark, error) {
	b := &Benchmark{}
	if err := decodeFlags(cmd, b); err != nil {
		return nil, err
	}
	return b, nil
}

// decodeFlags merges explicit flags, SCHEDBENCH_* environment variables, the
// config file and flag defaults, in that order of precedence, into out.
func decodeFlags(cmd *cobra.Command, out any) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: reading config file: %v", errdefs.ErrConfiguration, err)
		}
		logrus.Debugf("Using config file %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("%w: %v", errdefs.ErrConfiguration, err)
	}
	return nil
}
