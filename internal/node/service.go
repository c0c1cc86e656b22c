package node

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"he300/internal/dataset"
	"he300/internal/hebench"
	"he300/internal/report"
)

// RunService owns the batch lifecycle: it validates and persists incoming
// requests, executes them on a bounded worker pool, and stores the signed
// outcome.
type RunService struct {
	cfg      RunnerConfig
	store    Store
	signer   *report.Signer
	notifier *Notifier
	obs      *Observability
	queue    chan queuedBatch
	wg       sync.WaitGroup
}

type queuedBatch struct {
	BatchID string
	Request RunRequest
}

func NewRunService(cfg RunnerConfig, store Store, signer *report.Signer, notifier *Notifier, obs *Observability) *RunService {
	maxParallel := cfg.MaxParallelBatches
	if maxParallel <= 0 {
		maxParallel = 2
	}
	service := &RunService{
		cfg:      cfg,
		store:    store,
		signer:   signer,
		notifier: notifier,
		obs:      obs,
		queue:    make(chan queuedBatch, maxParallel*8),
	}
	for i := 0; i < maxParallel; i++ {
		service.wg.Add(1)
		go func() {
			defer service.wg.Done()
			service.worker()
		}()
	}
	return service
}

// Shutdown drains the queue and waits for in-flight batches to finish.
func (s *RunService) Shutdown() {
	close(s.queue)
	s.wg.Wait()
}

// Submit validates a request, persists it as queued, and hands it to the
// worker pool.
func (s *RunService) Submit(req RunRequest) (BatchMeta, error) {
	if strings.TrimSpace(req.Tenant) == "" {
		return BatchMeta{}, errors.New("tenant is required")
	}
	req.Agent.Normalize()
	if err := req.Agent.Validate(); err != nil {
		return BatchMeta{}, fmt.Errorf("agent spec: %w", err)
	}
	if strings.TrimSpace(req.DatasetPath) == "" {
		req.DatasetPath = s.cfg.DefaultDatasetPath
	}
	if strings.TrimSpace(req.DatasetPath) == "" {
		return BatchMeta{}, errors.New("dataset_path is required")
	}
	if req.Concurrency <= 0 {
		req.Concurrency = s.cfg.DefaultConcurrency
	}
	if req.TimeoutSec <= 0 {
		req.TimeoutSec = s.cfg.DefaultTimeoutSec
	}
	if req.Semantic != nil && req.Semantic.Concurrency <= 0 {
		req.Semantic.Concurrency = s.cfg.SemanticConcurrency
	}

	batchID := uuid.NewString()
	meta := BatchMeta{
		BatchID:   batchID,
		Tenant:    req.Tenant,
		Status:    StatusQueued,
		Request:   req,
		CreatedAt: nowRFC3339(),
	}
	if err := s.store.CreateBatch(meta); err != nil {
		return BatchMeta{}, err
	}
	_, _ = s.store.AppendBatchEvent(batchID, "queue", "batch queued", map[string]any{
		"tenant":  req.Tenant,
		"agent":   req.Agent.Name,
		"dataset": req.DatasetPath,
	})
	s.notifier.Publish(context.Background(), batchID, req.Tenant, "queued", "batch queued", nil)
	s.queue <- queuedBatch{BatchID: batchID, Request: req}
	return meta, nil
}

func (s *RunService) worker() {
	for queued := range s.queue {
		s.executeBatch(queued)
	}
}

func (s *RunService) executeBatch(queued queuedBatch) {
	req := queued.Request
	batchID := queued.BatchID
	_, _ = s.store.UpdateBatch(batchID, func(meta *BatchMeta) {
		meta.Status = StatusRunning
		meta.StartedAt = nowRFC3339()
	})
	_, _ = s.store.AppendBatchEvent(batchID, "start", "batch started", nil)
	s.notifier.Publish(context.Background(), batchID, req.Tenant, "running", "batch started", nil)

	scenarios, info, err := dataset.Load(req.DatasetPath, dataset.LoadOptions{
		Categories: req.Categories,
		Sample:     req.Sample,
		Seed:       req.Seed,
	})
	if err != nil {
		s.failBatch(batchID, req.Tenant, fmt.Errorf("load dataset: %w", err))
		return
	}
	_, _ = s.store.AppendBatchEvent(batchID, "dataset", "dataset loaded", map[string]any{
		"total_rows": info.TotalRows,
		"sampled":    info.Sampled,
		"sha256":     info.SHA256,
	})

	timeout := time.Duration(req.TimeoutSec) * time.Second * time.Duration(maxInt(len(scenarios), 1))
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := hebench.RunBatch(ctx, scenarios, req.Agent, hebench.RunOptions{
		BatchID:     batchID,
		Concurrency: req.Concurrency,
		Strict:      req.Strict,
		Discover:    req.Discover,
		Semantic:    req.Semantic,
		Dataset:     info,
		OnProgress: func(completed, total int) {
			if completed%25 != 0 && completed != total {
				return
			}
			_, _ = s.store.AppendBatchEvent(batchID, "progress", "scenarios completed", map[string]any{
				"completed": completed,
				"total":     total,
			})
			s.notifier.Publish(context.Background(), batchID, req.Tenant, "progress", "scenarios completed", map[string]any{
				"completed": completed,
				"total":     total,
			})
		},
	})
	if err != nil {
		s.failBatch(batchID, req.Tenant, err)
		return
	}

	categoryAccuracy := make(map[hebench.Category]float64, len(result.Categories))
	for category, stats := range result.Categories {
		categoryAccuracy[category] = stats.Accuracy
	}
	badges := hebench.ComputeBadges(result.Accuracy, categoryAccuracy)

	var signature, pubKey string
	if s.signer != nil {
		sig, signErr := s.signer.Sign(result)
		if signErr != nil {
			s.failBatch(batchID, req.Tenant, fmt.Errorf("sign result: %w", signErr))
			return
		}
		signature = base64.StdEncoding.EncodeToString(sig)
		pubKey, signErr = s.signer.PublicKeyPEM()
		if signErr != nil {
			s.failBatch(batchID, req.Tenant, fmt.Errorf("encode signer key: %w", signErr))
			return
		}
	}

	status := StatusCompleted
	if result.Aborted {
		status = StatusAborted
	}
	_, _ = s.store.UpdateBatch(batchID, func(meta *BatchMeta) {
		meta.Status = status
		meta.FinishedAt = nowRFC3339()
		meta.Result = result
		meta.Badges = badges
		meta.Signature = signature
		meta.SignerPubKey = pubKey
	})
	_, _ = s.store.AppendBatchEvent(batchID, "completed", "batch finished", map[string]any{
		"status":   status,
		"accuracy": result.Accuracy,
		"errors":   result.Errors,
		"badges":   badges,
	})
	s.notifier.Publish(context.Background(), batchID, req.Tenant, status, "batch finished", map[string]any{
		"accuracy": result.Accuracy,
		"badges":   badges,
	})
	s.markBatchMetrics(ctx, status, result)
}

func (s *RunService) failBatch(batchID, tenant string, err error) {
	_, _ = s.store.UpdateBatch(batchID, func(meta *BatchMeta) {
		meta.Status = StatusFailed
		meta.FinishedAt = nowRFC3339()
		meta.Error = err.Error()
	})
	_, _ = s.store.AppendBatchEvent(batchID, "error", "batch failed", map[string]any{
		"error": err.Error(),
	})
	s.notifier.Publish(context.Background(), batchID, tenant, StatusFailed, err.Error(), nil)
	s.obs.MarkBatch(context.Background(), StatusFailed)
}

func (s *RunService) markBatchMetrics(ctx context.Context, status string, result *hebench.BatchResult) {
	s.obs.MarkBatch(ctx, status)
	if result.Aborted {
		s.obs.MarkAbort(ctx)
	}
	for _, item := range result.Results {
		if item.LatencyMS > 0 {
			s.obs.MarkScenario(ctx, string(item.Category), item.LatencyMS)
		}
		if item.Error == "" && item.PredictedLabel == nil {
			s.obs.MarkUnknown(ctx, string(item.Category))
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
