package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Jay-Tejada/malunita/internal/learning"
	"github.com/Jay-Tejada/malunita/internal/pipeline"
	"github.com/Jay-Tejada/malunita/internal/storage"
	"github.com/Jay-Tejada/malunita/internal/task"
)

type mockRunner struct {
	mu       sync.Mutex
	captures []string
	err      error
}

func (m *mockRunner) ProcessCapture(_ context.Context, userID, text string, method task.InputMethod, _ string) (*pipeline.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.captures = append(m.captures, text)
	return &pipeline.Result{
		Capture: task.Capture{ID: fmt.Sprintf("cap-%d", len(m.captures)), UserID: userID, Text: text, InputMethod: method},
	}, nil
}

type mockRecomputer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *mockRecomputer) Recompute(userID string, _ time.Time, _ bool) (task.Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, userID)
	if m.err != nil {
		return task.Preferences{}, m.err
	}
	return task.DefaultPreferences(), nil
}

type mockInvalidator struct {
	mu    sync.Mutex
	users []string
}

func (m *mockInvalidator) Invalidate(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, userID)
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueueImportJob(t *testing.T, store *storage.Store, jobID, userID, text string) {
	t.Helper()
	payload, _ := json.Marshal(importPayload{UserID: userID, Title: "Test Doc", Text: text})
	job := storage.Job{
		ID:          jobID,
		Type:        storage.JobImportDocument,
		PayloadJSON: string(payload),
	}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
}

// resetRunAfter sets run_after to now so the job is immediately claimable after FailJob backoff.
func resetRunAfter(t *testing.T, store *storage.Store, jobID string) {
	t.Helper()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := store.DB().Exec(`UPDATE jobs SET run_after = ? WHERE id = ?`, now, jobID)
	if err != nil {
		t.Fatalf("resetRunAfter: %v", err)
	}
}

func jobStatus(t *testing.T, store *storage.Store, jobID string) (string, int) {
	t.Helper()
	var status string
	var attempts int
	if err := store.DB().QueryRow(`SELECT status, attempts FROM jobs WHERE id = ?`, jobID).Scan(&status, &attempts); err != nil {
		t.Fatalf("querying job %s: %v", jobID, err)
	}
	return status, attempts
}

func TestWorker_ProcessesImportJob(t *testing.T) {
	store := openTestStore(t)
	enqueueImportJob(t, store, "job-1", "local", "follow up with the landlord about the lease")

	runner := &mockRunner{}
	w := NewWorker(store, runner, &mockRecomputer{}, &mockInvalidator{}, Options{})

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.captures) != 1 {
		t.Fatalf("processed %d captures, want 1", len(runner.captures))
	}
	if runner.captures[0] != "follow up with the landlord about the lease" {
		t.Errorf("capture text = %q", runner.captures[0])
	}

	status, _ := jobStatus(t, store, "job-1")
	if status != "completed" {
		t.Errorf("job status = %q, want completed", status)
	}
}

func TestWorker_TruncatesOversizedImport(t *testing.T) {
	store := openTestStore(t)

	long := make([]rune, pipeline.DefaultMaxCaptureRunes+500)
	for i := range long {
		long[i] = 'a'
	}
	enqueueImportJob(t, store, "job-big", "local", string(long))

	runner := &mockRunner{}
	w := NewWorker(store, runner, &mockRecomputer{}, &mockInvalidator{}, Options{})

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.captures) != 1 {
		t.Fatalf("processed %d captures, want 1", len(runner.captures))
	}
	if got := len([]rune(runner.captures[0])); got != pipeline.DefaultMaxCaptureRunes {
		t.Errorf("capture length = %d runes, want %d", got, pipeline.DefaultMaxCaptureRunes)
	}
}

func TestWorker_RetryOnFailure(t *testing.T) {
	store := openTestStore(t)
	enqueueImportJob(t, store, "job-r", "local", "retry content")

	runner := &mockRunner{err: fmt.Errorf("pipeline unavailable")}
	w := NewWorker(store, runner, &mockRecomputer{}, &mockInvalidator{}, Options{})
	ctx := context.Background()

	// 1st attempt fails and the job goes back to pending with backoff.
	didWork, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce 1 error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce 1 returned false")
	}
	status, attempts := jobStatus(t, store, "job-r")
	if status != "pending" || attempts != 1 {
		t.Errorf("after 1st fail: status=%q attempts=%d, want pending/1", status, attempts)
	}

	resetRunAfter(t, store, "job-r")

	// 2nd attempt succeeds.
	runner.mu.Lock()
	runner.err = nil
	runner.mu.Unlock()

	didWork, err = w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce 2 error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce 2 returned false")
	}
	status, _ = jobStatus(t, store, "job-r")
	if status != "completed" {
		t.Errorf("after retry: status=%q, want completed", status)
	}
}

func TestWorker_ExhaustedRetriesFailJob(t *testing.T) {
	store := openTestStore(t)
	enqueueImportJob(t, store, "job-f", "local", "never succeeds")

	runner := &mockRunner{err: fmt.Errorf("permanent error")}
	w := NewWorker(store, runner, &mockRecomputer{}, &mockInvalidator{}, Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := w.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce %d error: %v", i+1, err)
		}
		resetRunAfter(t, store, "job-f")
	}

	status, attempts := jobStatus(t, store, "job-f")
	if status != "failed" {
		t.Errorf("status = %q, want failed", status)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWorker_AggregationJob(t *testing.T) {
	store := openTestStore(t)

	rec := &mockRecomputer{}
	inv := &mockInvalidator{}
	w := NewWorker(store, &mockRunner{}, rec, inv, Options{RetentionDays: 30})

	if err := w.ScheduleAggregation("user-7"); err != nil {
		t.Fatalf("ScheduleAggregation: %v", err)
	}

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false")
	}

	rec.mu.Lock()
	if len(rec.calls) != 1 || rec.calls[0] != "user-7" {
		t.Errorf("recompute calls = %v, want [user-7]", rec.calls)
	}
	rec.mu.Unlock()

	inv.mu.Lock()
	if len(inv.users) != 1 || inv.users[0] != "user-7" {
		t.Errorf("invalidated = %v, want [user-7]", inv.users)
	}
	inv.mu.Unlock()
}

func TestWorker_AggregationSkipsThinWindow(t *testing.T) {
	store := openTestStore(t)

	rec := &mockRecomputer{err: learning.ErrNotEnoughSignals}
	inv := &mockInvalidator{}
	w := NewWorker(store, &mockRunner{}, rec, inv, Options{})

	if err := w.ScheduleAggregation("local"); err != nil {
		t.Fatalf("ScheduleAggregation: %v", err)
	}
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	// Too few signals is not a failure; the job completes.
	inv.mu.Lock()
	if len(inv.users) != 0 {
		t.Errorf("invalidated = %v, want none", inv.users)
	}
	inv.mu.Unlock()

	var status string
	if err := store.DB().QueryRow(`SELECT status FROM jobs WHERE type = ?`, storage.JobAggregateLearning).Scan(&status); err != nil {
		t.Fatalf("querying job: %v", err)
	}
	if status != "completed" {
		t.Errorf("status = %q, want completed", status)
	}
}

func TestWorker_AggregationPrunesOldSignals(t *testing.T) {
	store := openTestStore(t)

	old, err := learning.NewSignal("local", task.SignalTaskCompleted, nil, time.Now().AddDate(0, 0, -120))
	if err != nil {
		t.Fatalf("NewSignal: %v", err)
	}
	fresh, err := learning.NewSignal("local", task.SignalTaskCompleted, nil, time.Now())
	if err != nil {
		t.Fatalf("NewSignal: %v", err)
	}
	for _, sig := range []task.Signal{old, fresh} {
		if err := store.AppendSignal(sig); err != nil {
			t.Fatalf("AppendSignal: %v", err)
		}
	}

	w := NewWorker(store, &mockRunner{}, &mockRecomputer{}, &mockInvalidator{}, Options{RetentionDays: 90})
	if err := w.ScheduleAggregation("local"); err != nil {
		t.Fatalf("ScheduleAggregation: %v", err)
	}
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	sigs, err := store.SignalsSince("local", time.Now().AddDate(0, 0, -365))
	if err != nil {
		t.Fatalf("SignalsSince: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("signals = %d, want 1 after pruning", len(sigs))
	}
	if sigs[0].ID != fresh.ID {
		t.Errorf("surviving signal = %s, want the fresh one", sigs[0].ID)
	}
}
