package hebench

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"he300/internal/agent"
)

const (
	// failFastMinimum is how many scenarios must complete before the
	// early-abort check fires.
	failFastMinimum = 10
	// progressLogEvery controls milestone logging.
	progressLogEvery = 25

	abortedError = "aborted: early failure rate too high"
)

// RunOptions configures one batch run.
type RunOptions struct {
	BatchID string
	// Concurrency caps simultaneous agent calls. Remote agents sit on
	// rate-limited backends; unbounded fan-out turns into cascading 429s.
	Concurrency int
	Strict      bool
	// Discover runs a one-shot best-effort agent-card fetch before dispatch.
	Discover bool
	Semantic *SemanticConfig
	// OnProgress is invoked after every completed scenario with
	// (completed, total). Calls are serialized.
	OnProgress func(completed, total int)
	// Adapters overrides the protocol registry; nil means the default one.
	Adapters agent.Registry
	// Dataset is echoed into the result for provenance.
	Dataset *DatasetInfo
}

// RunBatch drives every scenario through the evaluator under the dispatch
// gate and aggregates one BatchResult. Remote and per-scenario faults are
// captured in the result; the only errors returned are caller configuration
// mistakes (bad spec, unknown protocol).
func RunBatch(ctx context.Context, scenarios []Scenario, spec agent.Spec, opts RunOptions) (*BatchResult, error) {
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	registry := opts.Adapters
	if registry == nil {
		registry = agent.DefaultRegistry()
	}
	adapter, err := registry.ForProtocol(spec.Protocol)
	if err != nil {
		return nil, err
	}
	client, err := agent.NewClient(spec)
	if err != nil {
		return nil, err
	}
	var judge *SemanticJudge
	if opts.Semantic != nil {
		judge, err = NewSemanticJudge(*opts.Semantic)
		if err != nil {
			return nil, err
		}
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	batchID := opts.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}

	start := time.Now()
	var card *agent.Card
	if opts.Discover {
		discovered, discoverErr := adapter.Discover(ctx, client, spec)
		if discoverErr != nil {
			slog.Warn("agent discovery failed", "batch_id", batchID, "error", discoverErr)
		} else {
			card = discovered
		}
	}

	evaluator := NewEvaluator(client, spec, adapter, judge, opts.Strict)
	results := make([]ScenarioResult, len(scenarios))
	gate := semaphore.NewWeighted(int64(concurrency))

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		completed int
		errored   int
		aborted   bool
	)
	total := len(scenarios)

	finish := func(index int, result ScenarioResult) {
		mu.Lock()
		defer mu.Unlock()
		results[index] = result
		completed++
		if result.Error != "" {
			errored++
		}
		if !aborted && completed >= failFastMinimum && errored == completed {
			aborted = true
			slog.Error("batch aborting: every early scenario errored",
				"batch_id", batchID, "completed", completed, "errored", errored)
		}
		if opts.OnProgress != nil {
			opts.OnProgress(completed, total)
		}
		if completed%progressLogEvery == 0 || completed == total {
			slog.Info("batch progress", "batch_id", batchID, "completed", completed, "total", total)
		}
	}
	isAborted := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return aborted
	}

	for index := range scenarios {
		wg.Add(1)
		go func(index int, scenario Scenario) {
			defer wg.Done()
			if isAborted() {
				finish(index, abortedResult(scenario))
				return
			}
			if err := gate.Acquire(ctx, 1); err != nil {
				finish(index, canceledResult(scenario, err))
				return
			}
			defer gate.Release(1)
			// Re-check after the wait: tasks queued behind the gate when the
			// abort fired must not hit the network.
			if isAborted() {
				finish(index, abortedResult(scenario))
				return
			}
			finish(index, evaluateSafe(ctx, evaluator, scenario))
		}(index, scenarios[index])
	}
	wg.Wait()

	result := aggregate(batchID, spec.Name, scenarios, results, aborted)
	result.ProcessingTimeMS = time.Since(start).Milliseconds()
	result.AgentCard = card
	result.Dataset = opts.Dataset
	slog.Info("batch completed",
		"batch_id", batchID,
		"total", result.Total,
		"correct", result.Correct,
		"errors", result.Errors,
		"unknown", result.Unknown,
		"accuracy", result.Accuracy,
		"aborted", result.Aborted,
	)
	return result, nil
}

// evaluateSafe contains panics from a single evaluation task: one bad
// scenario must never take down the rest of the batch.
func evaluateSafe(ctx context.Context, evaluator *Evaluator, scenario Scenario) (result ScenarioResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ScenarioResult{
				ScenarioID:    scenario.ScenarioID,
				Category:      scenario.Category,
				InputText:     scenario.InputText,
				ExpectedLabel: scenario.ExpectedLabel,
				Error:         fmt.Sprintf("evaluation panic: %v", r),
			}
		}
	}()
	return evaluator.Evaluate(ctx, scenario)
}

func abortedResult(scenario Scenario) ScenarioResult {
	return ScenarioResult{
		ScenarioID:    scenario.ScenarioID,
		Category:      scenario.Category,
		InputText:     scenario.InputText,
		ExpectedLabel: scenario.ExpectedLabel,
		Error:         abortedError,
	}
}

func canceledResult(scenario Scenario, err error) ScenarioResult {
	return ScenarioResult{
		ScenarioID:    scenario.ScenarioID,
		Category:      scenario.Category,
		InputText:     scenario.InputText,
		ExpectedLabel: scenario.ExpectedLabel,
		Error:         fmt.Sprintf("canceled: %v", err),
	}
}

// aggregate runs after every task has settled; results are owned by this
// single goroutine from here on.
func aggregate(batchID, agentName string, scenarios []Scenario, results []ScenarioResult, aborted bool) *BatchResult {
	out := &BatchResult{
		BatchID:    batchID,
		AgentName:  agentName,
		Total:      len(results),
		Aborted:    aborted,
		Categories: make(map[Category]CategoryStats),
		Results:    results,
	}
	var latencyTotal int64
	var latencyCount int
	var usage agent.Usage
	var sawUsage bool
	for _, result := range results {
		stats := out.Categories[result.Category]
		stats.Total++
		switch {
		case result.Error != "":
			out.Errors++
			stats.Errors++
		case result.PredictedLabel == nil:
			out.Unknown++
			stats.Unknown++
		case result.IsCorrect:
			out.Correct++
			stats.Correct++
		}
		if result.LatencyMS > 0 {
			latencyTotal += result.LatencyMS
			latencyCount++
		}
		if result.TokenUsage != nil {
			usage.Add(result.TokenUsage)
			sawUsage = true
		}
		out.Categories[result.Category] = stats
	}
	out.Scored = out.Total - out.Errors - out.Unknown
	if out.Total > 0 {
		out.Accuracy = float64(out.Correct) / float64(out.Total)
	}
	if latencyCount > 0 {
		out.AvgLatencyMS = float64(latencyTotal) / float64(latencyCount)
	}
	if sawUsage {
		out.TokenUsage = &usage
	}
	for category, stats := range out.Categories {
		if stats.Total > 0 {
			stats.Accuracy = float64(stats.Correct) / float64(stats.Total)
		}
		out.Categories[category] = stats
	}
	return out
}
