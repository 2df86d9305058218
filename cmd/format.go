package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/Yoosu-L/llmschedbench/internal/stats"
)

func (result *BenchmarkResult) Json() (string, error) {
	prettyJSON, err := json.MarshalIndent(result, "", "    ")
	if err != nil {
		return "", fmt.Errorf("error marshalling JSON: %w", err)
	}

	return string(prettyJSON), nil
}

func (result *BenchmarkResult) Yaml() (string, error) {
	yamlData, err := yaml.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("error marshalling yaml: %w", err)
	}

	return string(yamlData), nil
}

// Print renders the result in the requested format.
func (result *BenchmarkResult) Print(w io.Writer, format string) error {
	switch format {
	case "json":
		out, err := result.Json()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, out)
		return err
	case "yaml":
		out, err := result.Yaml()
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(w, out)
		return err
	default:
		result.printText(w)
		return nil
	}
}

func (result *BenchmarkResult) printText(w io.Writer) {
	header := color.New(color.FgCyan, color.Bold)
	header.Fprintf(w, "%s benchmark: %s, policy %s, %s priorities, %d requests\n",
		result.Mode, result.ModelName, result.Policy, result.PrioritySource, result.NumRequests)

	if l := result.Latency; l != nil {
		fmt.Fprintf(w, "Avg latency: %v seconds\n", l.AvgLatency)
		for _, p := range stats.Percentiles {
			key := fmt.Sprint(p)
			fmt.Fprintf(w, "%d%% percentile latency: %v seconds\n", p, l.Percentiles[key])
		}
	}
	if t := result.Throughput; t != nil {
		fmt.Fprintf(w, "Throughput: %.2f requests/s, %.2f total tokens/s, %.2f output tokens/s\n",
			stats.RoundToTwoDecimals(t.RequestsPerSecond),
			stats.RoundToTwoDecimals(t.TokensPerSecond),
			stats.RoundToTwoDecimals(result.OutputTokensPerSecond))
	}
	if result.OutputJSON != "" {
		color.New(color.FgGreen).Fprintf(w, "Results written to %s\n", result.OutputJSON)
	}
}
