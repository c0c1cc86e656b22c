package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"he300/internal/agent"
	"he300/internal/dataset"
	"he300/internal/hebench"
	"he300/internal/report"
)

func main() {
	agentPath := flag.String("agent", envOr("HE300_AGENT", ""), "Path to agent spec YAML")
	datasetPath := flag.String("dataset", envOr("HE300_DATASET", ""), "Path to HE-300 scenarios CSV")
	categories := flag.String("categories", "", "Comma-separated categories: commonsense,commonsense_hard,deontology,justice,virtue")
	sample := flag.Int("sample", 0, "Balanced sample size (0 = full dataset)")
	seed := flag.Int64("seed", 0, "Seed for reproducible sampling and shuffling")
	concurrency := flag.Int("concurrency", 5, "Max simultaneous agent calls")
	timeout := flag.Duration("timeout", 0, "Per-call HTTP timeout override (0 = spec value)")
	strict := flag.Bool("strict", false, "Strict normalization: only explicit verdict formats count")
	discover := flag.Bool("discover", false, "Fetch the agent card before dispatch")
	judgePath := flag.String("judge", "", "Path to semantic judge agent spec YAML (optional)")
	judgeConcurrency := flag.Int("judge-concurrency", 2, "Max simultaneous semantic judge calls")
	format := flag.String("format", "text", "Output format: text|json")
	outputPath := flag.String("out", "", "Write full batch result JSON to this file")
	signKeyPath := flag.String("sign-key", "", "Sign the result with this ed25519 PEM key (created if missing)")
	failUnder := flag.Float64("fail-under", 0, "Exit non-zero if accuracy falls below this fraction")
	flag.Parse()

	if strings.TrimSpace(*agentPath) == "" {
		exitWith("HE300_AGENT or -agent is required")
	}
	if strings.TrimSpace(*datasetPath) == "" {
		exitWith("HE300_DATASET or -dataset is required")
	}

	spec, err := agent.LoadSpec(*agentPath)
	if err != nil {
		exitWith("failed to load agent spec: " + err.Error())
	}
	if *timeout > 0 {
		spec.TimeoutSec = int(*timeout / time.Second)
	}

	loadOpts := dataset.LoadOptions{Sample: *sample, Seed: *seed}
	for _, raw := range strings.Split(*categories, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		category, ok := hebench.ParseCategory(raw)
		if !ok {
			exitWith("unknown category: " + raw)
		}
		loadOpts.Categories = append(loadOpts.Categories, category)
	}
	scenarios, info, err := dataset.Load(*datasetPath, loadOpts)
	if err != nil {
		exitWith("failed to load dataset: " + err.Error())
	}

	var semantic *hebench.SemanticConfig
	if strings.TrimSpace(*judgePath) != "" {
		judgeSpec, err := agent.LoadSpec(*judgePath)
		if err != nil {
			exitWith("failed to load judge spec: " + err.Error())
		}
		semantic = &hebench.SemanticConfig{Agent: judgeSpec, Concurrency: *judgeConcurrency}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result, err := hebench.RunBatch(ctx, scenarios, spec, hebench.RunOptions{
		Concurrency: *concurrency,
		Strict:      *strict,
		Discover:    *discover,
		Semantic:    semantic,
		Dataset:     info,
	})
	if err != nil {
		exitWith("batch failed: " + err.Error())
	}

	categoryAccuracy := make(map[hebench.Category]float64, len(result.Categories))
	for category, stats := range result.Categories {
		categoryAccuracy[category] = stats.Accuracy
	}
	badges := hebench.ComputeBadges(result.Accuracy, categoryAccuracy)

	signed := signedResult{BatchResult: result, Badges: badges}
	if strings.TrimSpace(*signKeyPath) != "" {
		signer, err := report.LoadSigner(*signKeyPath)
		if err != nil {
			exitWith("failed to load signing key: " + err.Error())
		}
		sig, err := signer.Sign(result)
		if err != nil {
			exitWith("failed to sign result: " + err.Error())
		}
		signed.Signature = base64.StdEncoding.EncodeToString(sig)
		signed.SignerPubKey, err = signer.PublicKeyPEM()
		if err != nil {
			exitWith("failed to encode signer key: " + err.Error())
		}
	}

	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "json":
		printJSON(signed)
	default:
		printText(signed)
	}

	if strings.TrimSpace(*outputPath) != "" {
		if err := writeJSON(*outputPath, signed); err != nil {
			exitWith("failed to write result: " + err.Error())
		}
	}

	if result.Aborted {
		os.Exit(2)
	}
	if *failUnder > 0 && result.Accuracy < *failUnder {
		os.Exit(1)
	}
}

type signedResult struct {
	*hebench.BatchResult
	Badges       []string `json:"badges,omitempty"`
	Signature    string   `json:"signature,omitempty"`
	SignerPubKey string   `json:"signer_public_key,omitempty"`
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func printText(signed signedResult) {
	result := signed.BatchResult
	fmt.Printf("Batch: %s\n", result.BatchID)
	if result.AgentName != "" {
		fmt.Printf("Agent: %s\n", result.AgentName)
	}
	if result.Dataset != nil {
		fmt.Printf("Dataset: %s (%d rows, %d sampled)\n", result.Dataset.Path, result.Dataset.TotalRows, result.Dataset.Sampled)
	}
	fmt.Println()

	names := make([]string, 0, len(result.Categories))
	for category := range result.Categories {
		names = append(names, string(category))
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Categories[hebench.Category(name)]
		fmt.Printf("%-18s total=%-4d correct=%-4d errors=%-3d unknown=%-3d accuracy=%.3f\n",
			name, stats.Total, stats.Correct, stats.Errors, stats.Unknown, stats.Accuracy)
	}
	fmt.Println()
	fmt.Printf("Totals: total=%d correct=%d errors=%d unknown=%d accuracy=%.3f avg_latency=%.0fms\n",
		result.Total, result.Correct, result.Errors, result.Unknown, result.Accuracy, result.AvgLatencyMS)
	if result.TokenUsage != nil {
		fmt.Printf("Tokens: input=%d output=%d\n", result.TokenUsage.InputTokens, result.TokenUsage.OutputTokens)
	}
	if len(signed.Badges) > 0 {
		fmt.Printf("Badges: %s\n", strings.Join(signed.Badges, ", "))
	}
	if result.Aborted {
		fmt.Println("ABORTED: early failure rate too high")
	}
}

func printJSON(signed signedResult) {
	data, err := json.MarshalIndent(signed, "", "  ")
	if err != nil {
		exitWith("failed to encode result JSON: " + err.Error())
	}
	fmt.Println(string(data))
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func exitWith(message string) {
	fmt.Fprintln(os.Stderr, message)
	os.Exit(1)
}
