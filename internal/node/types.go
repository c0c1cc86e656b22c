package node

import (
	"time"

	"he300/internal/agent"
	"he300/internal/hebench"
)

// RunRequest is one tenant's request to benchmark an agent. It arrives via
// the intake queue (or the CLI) and is echoed into the stored batch record.
type RunRequest struct {
	Tenant      string                  `json:"tenant"`
	DatasetPath string                  `json:"dataset_path,omitempty"`
	Categories  []hebench.Category      `json:"categories,omitempty"`
	Sample      int                     `json:"sample,omitempty"`
	Seed        int64                   `json:"seed,omitempty"`
	Agent       agent.Spec              `json:"agent"`
	Concurrency int                     `json:"concurrency,omitempty"`
	TimeoutSec  int                     `json:"timeout_sec,omitempty"`
	Strict      bool                    `json:"strict,omitempty"`
	Discover    bool                    `json:"discover,omitempty"`
	Semantic    *hebench.SemanticConfig `json:"semantic,omitempty"`
}

// BatchMeta is the stored lifecycle record of one batch run.
type BatchMeta struct {
	BatchID      string               `json:"batch_id"`
	Tenant       string               `json:"tenant"`
	Status       string               `json:"status"`
	Request      RunRequest           `json:"request"`
	CreatedAt    string               `json:"created_at"`
	StartedAt    string               `json:"started_at,omitempty"`
	FinishedAt   string               `json:"finished_at,omitempty"`
	Error        string               `json:"error,omitempty"`
	Result       *hebench.BatchResult `json:"result,omitempty"`
	Badges       []string             `json:"badges,omitempty"`
	Signature    string               `json:"signature,omitempty"`
	SignerPubKey string               `json:"signer_public_key,omitempty"`
}

type BatchEvent struct {
	Seq       int64          `json:"seq"`
	Timestamp string         `json:"timestamp"`
	Stage     string         `json:"stage"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// Overview is the node-level rollup across stored batches.
type Overview struct {
	GeneratedAt      string  `json:"generated_at"`
	TotalBatches     int     `json:"total_batches"`
	RunningBatches   int     `json:"running_batches"`
	CompletedBatches int     `json:"completed_batches"`
	AbortedBatches   int     `json:"aborted_batches"`
	FailedBatches    int     `json:"failed_batches"`
	AverageAccuracy  float64 `json:"average_accuracy"`
	TotalScenarios   int     `json:"total_scenarios"`
	TotalErrors      int     `json:"total_errors"`
}

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
	StatusFailed    = "failed"
)

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
