package node

import (
	"path/filepath"
	"testing"

	"he300/internal/hebench"
)

func TestMemoryStoreBatchLifecycle(t *testing.T) {
	store, err := NewMemoryFileStore("")
	if err != nil {
		t.Fatalf("NewMemoryFileStore error: %v", err)
	}
	meta := BatchMeta{
		BatchID:   "batch_test_1",
		Tenant:    "tenant-a",
		Status:    StatusQueued,
		CreatedAt: nowRFC3339(),
	}
	if err := store.CreateBatch(meta); err != nil {
		t.Fatalf("CreateBatch error: %v", err)
	}
	if err := store.CreateBatch(meta); err == nil {
		t.Fatalf("expected duplicate batch id to be rejected")
	}
	event, err := store.AppendBatchEvent(meta.BatchID, "queue", "queued", nil)
	if err != nil {
		t.Fatalf("AppendBatchEvent error: %v", err)
	}
	if event.Seq != 1 {
		t.Fatalf("expected first seq=1, got %d", event.Seq)
	}
	second, _ := store.AppendBatchEvent(meta.BatchID, "start", "started", map[string]any{"k": "v"})
	if second.Seq != 2 {
		t.Fatalf("expected seq=2, got %d", second.Seq)
	}
	updated, err := store.UpdateBatch(meta.BatchID, func(item *BatchMeta) {
		item.Status = StatusRunning
	})
	if err != nil {
		t.Fatalf("UpdateBatch error: %v", err)
	}
	if updated.Status != StatusRunning {
		t.Fatalf("expected status running, got %s", updated.Status)
	}
	events := store.ListBatchEvents(meta.BatchID, 1)
	if len(events) != 1 || events[0].Seq != 2 {
		t.Fatalf("sinceSeq filter broken: %+v", events)
	}
}

func TestMemoryStoreTenantIsolationAndOverview(t *testing.T) {
	store, _ := NewMemoryFileStore("")
	result := &hebench.BatchResult{Total: 10, Errors: 2, Accuracy: 0.8}
	batches := []BatchMeta{
		{BatchID: "b1", Tenant: "alpha", Status: StatusCompleted, CreatedAt: "2026-08-30T10:00:00Z", Result: result},
		{BatchID: "b2", Tenant: "beta", Status: StatusFailed, CreatedAt: "2026-08-30T11:00:00Z"},
		{BatchID: "b3", Tenant: "alpha", Status: StatusRunning, CreatedAt: "2026-08-30T12:00:00Z"},
	}
	for _, meta := range batches {
		if err := store.CreateBatch(meta); err != nil {
			t.Fatalf("CreateBatch error: %v", err)
		}
	}
	alpha := store.ListBatchesByTenant("alpha", 0)
	if len(alpha) != 2 {
		t.Fatalf("expected 2 alpha batches, got %d", len(alpha))
	}
	if alpha[0].BatchID != "b3" {
		t.Fatalf("expected newest first, got %s", alpha[0].BatchID)
	}
	overview := store.GetOverview()
	if overview.TotalBatches != 3 || overview.CompletedBatches != 1 || overview.FailedBatches != 1 || overview.RunningBatches != 1 {
		t.Fatalf("unexpected overview: %+v", overview)
	}
	if overview.TotalScenarios != 10 || overview.TotalErrors != 2 {
		t.Fatalf("overview scenario counters wrong: %+v", overview)
	}
	if overview.AverageAccuracy != 0.8 {
		t.Fatalf("expected average accuracy 0.8, got %v", overview.AverageAccuracy)
	}
}

func TestMemoryStoreSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "node.json")
	store, err := NewMemoryFileStore(path)
	if err != nil {
		t.Fatalf("NewMemoryFileStore error: %v", err)
	}
	meta := BatchMeta{BatchID: "persisted", Tenant: "alpha", Status: StatusCompleted, CreatedAt: nowRFC3339()}
	if err := store.CreateBatch(meta); err != nil {
		t.Fatalf("CreateBatch error: %v", err)
	}
	if _, err := store.AppendBatchEvent("persisted", "completed", "done", nil); err != nil {
		t.Fatalf("AppendBatchEvent error: %v", err)
	}

	reloaded, err := NewMemoryFileStore(path)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	loaded, ok := reloaded.GetBatch("persisted")
	if !ok || loaded.Tenant != "alpha" {
		t.Fatalf("batch not restored: %+v", loaded)
	}
	next, err := reloaded.AppendBatchEvent("persisted", "note", "after reload", nil)
	if err != nil {
		t.Fatalf("AppendBatchEvent after reload: %v", err)
	}
	if next.Seq != 2 {
		t.Fatalf("event sequence must continue after reload, got %d", next.Seq)
	}
}
