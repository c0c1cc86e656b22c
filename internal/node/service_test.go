package node

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"he300/internal/agent"
	"he300/internal/report"
)

func testRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MaxParallelBatches:  1,
		DefaultConcurrency:  3,
		DefaultTimeoutSec:   10,
		SemanticConcurrency: 2,
	}
}

func writeServiceDataset(t *testing.T, rows int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("scenario_id,category,input,label\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "cm-%02d,commonsense,scenario %d,%d\n", i, i, i%2)
	}
	path := filepath.Join(t.TempDir(), "scenarios.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return path
}

func waitForStatus(t *testing.T, store Store, batchID string, want ...string) BatchMeta {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		meta, ok := store.GetBatch(batchID)
		if ok {
			for _, status := range want {
				if meta.Status == status {
					return meta
				}
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	meta, _ := store.GetBatch(batchID)
	t.Fatalf("batch %s never reached %v, last state %s", batchID, want, meta.Status)
	return BatchMeta{}
}

func TestRunServiceExecutesBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"ETHICAL. Nothing wrong here."}`))
	}))
	defer server.Close()

	store, _ := NewMemoryFileStore("")
	signer, err := report.NewSigner()
	if err != nil {
		t.Fatalf("NewSigner error: %v", err)
	}
	service := NewRunService(testRunnerConfig(), store, signer, nil, nil)
	defer service.Shutdown()

	meta, err := service.Submit(RunRequest{
		Tenant:      "tenant-a",
		DatasetPath: writeServiceDataset(t, 6),
		Agent: agent.Spec{
			Name:     "rest-agent",
			URL:      server.URL,
			Protocol: agent.ProtocolREST,
			REST:     &agent.RESTConfig{Path: "/evaluate"},
		},
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if meta.Status != StatusQueued {
		t.Fatalf("expected queued, got %s", meta.Status)
	}

	finished := waitForStatus(t, store, meta.BatchID, StatusCompleted)
	if finished.Result == nil {
		t.Fatalf("expected a stored result")
	}
	if finished.Result.Total != 6 {
		t.Fatalf("expected 6 scenarios, got %d", finished.Result.Total)
	}
	if finished.Result.Errors != 0 {
		t.Fatalf("expected no errors, got %d", finished.Result.Errors)
	}
	// "ETHICAL" is correct for the even-numbered (label 0) scenarios only.
	if finished.Result.Correct != 3 {
		t.Fatalf("expected 3 correct, got %d", finished.Result.Correct)
	}
	if finished.Signature == "" || finished.SignerPubKey == "" {
		t.Fatalf("expected a signed result")
	}
	sig, err := base64.StdEncoding.DecodeString(finished.Signature)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	ok, err := signer.Verify(finished.Result, sig)
	if err != nil || !ok {
		t.Fatalf("stored signature must verify: ok=%v err=%v", ok, err)
	}

	events := store.ListBatchEvents(meta.BatchID, 0)
	stages := make([]string, 0, len(events))
	for _, event := range events {
		stages = append(stages, event.Stage)
	}
	for _, want := range []string{"queue", "start", "dataset", "completed"} {
		found := false
		for _, stage := range stages {
			if stage == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing %s event, got %v", want, stages)
		}
	}
}

func TestRunServiceFailsOnMissingDataset(t *testing.T) {
	store, _ := NewMemoryFileStore("")
	service := NewRunService(testRunnerConfig(), store, nil, nil, nil)
	defer service.Shutdown()

	meta, err := service.Submit(RunRequest{
		Tenant:      "tenant-a",
		DatasetPath: "/nonexistent/scenarios.csv",
		Agent: agent.Spec{
			Name:     "a",
			URL:      "http://agent.test",
			Protocol: agent.ProtocolA2A,
		},
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	failed := waitForStatus(t, store, meta.BatchID, StatusFailed)
	if !strings.Contains(failed.Error, "load dataset") {
		t.Fatalf("expected dataset error, got %q", failed.Error)
	}
}

func TestRunServiceSubmitValidation(t *testing.T) {
	store, _ := NewMemoryFileStore("")
	service := NewRunService(testRunnerConfig(), store, nil, nil, nil)
	defer service.Shutdown()

	if _, err := service.Submit(RunRequest{
		DatasetPath: "x.csv",
		Agent:       agent.Spec{URL: "http://a.test", Protocol: agent.ProtocolA2A},
	}); err == nil {
		t.Fatalf("expected error for missing tenant")
	}
	if _, err := service.Submit(RunRequest{
		Tenant:      "tenant-a",
		DatasetPath: "x.csv",
		Agent:       agent.Spec{URL: "http://a.test", Protocol: "smtp"},
	}); err == nil {
		t.Fatalf("expected error for unsupported protocol")
	}
	if _, err := service.Submit(RunRequest{
		Tenant: "tenant-a",
		Agent:  agent.Spec{URL: "http://a.test", Protocol: agent.ProtocolA2A},
	}); err == nil {
		t.Fatalf("expected error when no dataset path is configured")
	}
}

func TestRunServiceAppliesDefaults(t *testing.T) {
	store, _ := NewMemoryFileStore("")
	service := NewRunService(testRunnerConfig(), store, nil, nil, nil)
	defer service.Shutdown()

	meta, err := service.Submit(RunRequest{
		Tenant:      "tenant-a",
		DatasetPath: "/nonexistent/scenarios.csv",
		Agent:       agent.Spec{URL: "http://a.test", Protocol: agent.ProtocolA2A},
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if meta.Request.Concurrency != 3 || meta.Request.TimeoutSec != 10 {
		t.Fatalf("defaults not applied: %+v", meta.Request)
	}
	waitForStatus(t, store, meta.BatchID, StatusFailed)
}
