package node

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

type Store interface {
	CreateBatch(meta BatchMeta) error
	UpdateBatch(batchID string, mutate func(*BatchMeta)) (BatchMeta, error)
	GetBatch(batchID string) (BatchMeta, bool)
	ListBatches(limit int) []BatchMeta
	ListBatchesByTenant(tenant string, limit int) []BatchMeta
	AppendBatchEvent(batchID string, stage, message string, data map[string]any) (BatchEvent, error)
	ListBatchEvents(batchID string, sinceSeq int64) []BatchEvent
	GetOverview() Overview
}

// MemoryFileStore keeps batch state in memory with an optional JSON snapshot
// on disk. An empty path disables persistence entirely.
type MemoryFileStore struct {
	mu      sync.RWMutex
	path    string
	batches map[string]BatchMeta
	events  map[string][]BatchEvent
	nextSeq map[string]int64
}

func NewMemoryFileStore(path string) (*MemoryFileStore, error) {
	store := &MemoryFileStore{
		path:    path,
		batches: map[string]BatchMeta{},
		events:  map[string][]BatchEvent{},
		nextSeq: map[string]int64{},
	}
	if strings.TrimSpace(path) == "" {
		return store, nil
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MemoryFileStore) CreateBatch(meta BatchMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.batches[meta.BatchID]; exists {
		return fmt.Errorf("batch %s already exists", meta.BatchID)
	}
	s.batches[meta.BatchID] = meta
	if _, ok := s.events[meta.BatchID]; !ok {
		s.events[meta.BatchID] = []BatchEvent{}
	}
	if _, ok := s.nextSeq[meta.BatchID]; !ok {
		s.nextSeq[meta.BatchID] = 1
	}
	return s.persistLocked()
}

func (s *MemoryFileStore) UpdateBatch(batchID string, mutate func(*BatchMeta)) (BatchMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.batches[batchID]
	if !ok {
		return BatchMeta{}, fmt.Errorf("batch not found: %s", batchID)
	}
	if mutate != nil {
		mutate(&meta)
	}
	s.batches[batchID] = meta
	if err := s.persistLocked(); err != nil {
		return BatchMeta{}, err
	}
	return meta, nil
}

func (s *MemoryFileStore) GetBatch(batchID string) (BatchMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.batches[batchID]
	return meta, ok
}

func (s *MemoryFileStore) ListBatches(limit int) []BatchMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BatchMeta, 0, len(s.batches))
	for _, meta := range s.batches {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryFileStore) ListBatchesByTenant(tenant string, limit int) []BatchMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BatchMeta, 0)
	for _, meta := range s.batches {
		if meta.Tenant == tenant {
			out = append(out, meta)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryFileStore) AppendBatchEvent(batchID string, stage, message string, data map[string]any) (BatchEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[batchID]; !ok {
		return BatchEvent{}, fmt.Errorf("batch not found: %s", batchID)
	}
	seq := s.nextSeq[batchID]
	if seq < 1 {
		seq = 1
	}
	event := BatchEvent{
		Seq:       seq,
		Timestamp: nowRFC3339(),
		Stage:     stage,
		Message:   message,
		Data:      cloneMap(data),
	}
	s.nextSeq[batchID] = seq + 1
	s.events[batchID] = append(s.events[batchID], event)
	if err := s.persistLocked(); err != nil {
		return BatchEvent{}, err
	}
	return event, nil
}

func (s *MemoryFileStore) ListBatchEvents(batchID string, sinceSeq int64) []BatchEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[batchID]
	if len(events) == 0 {
		return []BatchEvent{}
	}
	out := make([]BatchEvent, 0, len(events))
	for _, event := range events {
		if event.Seq > sinceSeq {
			out = append(out, event)
		}
	}
	return out
}

func (s *MemoryFileStore) GetOverview() Overview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	overview := Overview{
		GeneratedAt: nowRFC3339(),
	}
	var accuracyTotal float64
	accuracyCount := 0
	for _, batch := range s.batches {
		overview.TotalBatches++
		switch batch.Status {
		case StatusQueued, StatusRunning:
			overview.RunningBatches++
		case StatusCompleted:
			overview.CompletedBatches++
		case StatusAborted:
			overview.AbortedBatches++
		case StatusFailed:
			overview.FailedBatches++
		}
		if batch.Result != nil {
			overview.TotalScenarios += batch.Result.Total
			overview.TotalErrors += batch.Result.Errors
			if batch.Status == StatusCompleted {
				accuracyTotal += batch.Result.Accuracy
				accuracyCount++
			}
		}
	}
	if accuracyCount > 0 {
		overview.AverageAccuracy = accuracyTotal / float64(accuracyCount)
	}
	return overview
}

func (s *MemoryFileStore) load() error {
	data, err := os.ReadFile(filepath.Clean(s.path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read store snapshot: %w", err)
	}
	var snapshot storeSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("decode store snapshot: %w", err)
	}
	for _, batch := range snapshot.Batches {
		s.batches[batch.BatchID] = batch
	}
	for batchID, events := range snapshot.Events {
		s.events[batchID] = events
		maxSeq := int64(0)
		for _, event := range events {
			if event.Seq > maxSeq {
				maxSeq = event.Seq
			}
		}
		s.nextSeq[batchID] = maxSeq + 1
	}
	return nil
}

type storeSnapshot struct {
	Batches []BatchMeta             `json:"batches"`
	Events  map[string][]BatchEvent `json:"events"`
}

func (s *MemoryFileStore) persistLocked() error {
	if strings.TrimSpace(s.path) == "" {
		return nil
	}
	batches := make([]BatchMeta, 0, len(s.batches))
	for _, batch := range s.batches {
		batches = append(batches, batch)
	}
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].CreatedAt < batches[j].CreatedAt
	})
	snapshot := storeSnapshot{
		Batches: batches,
		Events:  s.events,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store snapshot: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write store temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace store snapshot: %w", err)
	}
	return nil
}

func cloneMap(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
