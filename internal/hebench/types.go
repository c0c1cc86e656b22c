package hebench

import (
	"he300/internal/agent"
)

// Category identifies one HE-300 scenario family. commonsense_hard shares the
// commonsense vocabulary and label convention.
type Category string

const (
	CategoryCommonsense     Category = "commonsense"
	CategoryCommonsenseHard Category = "commonsense_hard"
	CategoryDeontology      Category = "deontology"
	CategoryJustice         Category = "justice"
	CategoryVirtue          Category = "virtue"
)

func Categories() []Category {
	return []Category{CategoryCommonsense, CategoryDeontology, CategoryJustice, CategoryVirtue}
}

func ParseCategory(value string) (Category, bool) {
	switch Category(value) {
	case CategoryCommonsense, CategoryCommonsenseHard, CategoryDeontology, CategoryJustice, CategoryVirtue:
		return Category(value), true
	default:
		return "", false
	}
}

// Scenario is one immutable benchmark item loaded from the dataset.
type Scenario struct {
	ScenarioID    string   `json:"scenario_id"`
	Category      Category `json:"category"`
	InputText     string   `json:"input_text"`
	ExpectedLabel int      `json:"expected_label"`
}

// EvalDetail is one evaluation method's verdict. A scenario result carries
// the heuristic detail always and the semantic one when a judge is
// configured; the two are compared, never merged.
type EvalDetail struct {
	Classification string  `json:"classification"`
	Label          *int    `json:"label"`
	Confidence     float64 `json:"confidence"`
	Method         string  `json:"method"`
	Extraction     string  `json:"extraction,omitempty"`
	Reasoning      string  `json:"reasoning,omitempty"`
}

// ScenarioResult is one scenario's full outcome. If Error is set the scoring
// fields stay at their zero values and the scenario counts toward errors,
// not correct or unknown.
type ScenarioResult struct {
	ScenarioID       string       `json:"scenario_id"`
	Category         Category     `json:"category"`
	InputText        string       `json:"input_text"`
	ExpectedLabel    int          `json:"expected_label"`
	PredictedLabel   *int         `json:"predicted_label"`
	Classification   string       `json:"classification,omitempty"`
	Confidence       float64      `json:"confidence"`
	IsCorrect        bool         `json:"is_correct"`
	AgentResponse    string       `json:"agent_response,omitempty"`
	PromptSent       string       `json:"prompt_sent,omitempty"`
	HeuristicEval    *EvalDetail  `json:"heuristic_eval,omitempty"`
	SemanticEval     *EvalDetail  `json:"semantic_eval,omitempty"`
	EvaluationsAgree *bool        `json:"evaluations_agree,omitempty"`
	DisagreementNote string       `json:"disagreement_note,omitempty"`
	LatencyMS        int64        `json:"latency_ms"`
	Error            string       `json:"error,omitempty"`
	TraceID          string       `json:"trace_id,omitempty"`
	TokenUsage       *agent.Usage `json:"token_usage,omitempty"`
}

// CategoryStats is the per-category slice of the aggregate counters.
type CategoryStats struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Errors   int     `json:"errors"`
	Unknown  int     `json:"unknown"`
	Accuracy float64 `json:"accuracy"`
}

// DatasetInfo records provenance of the scenario set a batch ran against.
type DatasetInfo struct {
	Path      string `json:"path,omitempty"`
	TotalRows int    `json:"total_rows,omitempty"`
	Sampled   int    `json:"sampled,omitempty"`
	Seed      int64  `json:"seed,omitempty"`
	SHA256    string `json:"sha256,omitempty"`
}

// BatchResult aggregates every scenario result of one run. Built once after
// all tasks settle; immutable afterwards.
type BatchResult struct {
	BatchID          string                     `json:"batch_id"`
	AgentName        string                     `json:"agent_name,omitempty"`
	Total            int                        `json:"total"`
	Correct          int                        `json:"correct"`
	Accuracy         float64                    `json:"accuracy"`
	Errors           int                        `json:"errors"`
	Unknown          int                        `json:"unknown"`
	Scored           int                        `json:"scored"`
	AvgLatencyMS     float64                    `json:"avg_latency_ms"`
	Aborted          bool                       `json:"aborted,omitempty"`
	Categories       map[Category]CategoryStats `json:"categories"`
	Results          []ScenarioResult           `json:"results"`
	ProcessingTimeMS int64                      `json:"processing_time_ms"`
	AgentCard        *agent.Card                `json:"agent_card,omitempty"`
	Dataset          *DatasetInfo               `json:"dataset,omitempty"`
	TokenUsage       *agent.Usage               `json:"token_usage,omitempty"`
}
