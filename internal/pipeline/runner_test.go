package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Jay-Tejada/malunita/internal/heuristic"
	"github.com/Jay-Tejada/malunita/internal/inference"
	"github.com/Jay-Tejada/malunita/internal/storage"
	"github.com/Jay-Tejada/malunita/internal/task"
)

var runNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type mockStore struct {
	captures    []task.Capture
	tasks       []storage.TaskRecord
	failSaves   int // fail this many SaveCapture calls before succeeding
	recentTasks []storage.TaskRecord
	focusTitles []string
}

func (m *mockStore) SaveCapture(c task.Capture) error {
	if m.failSaves > 0 {
		m.failSaves--
		return errors.New("disk full")
	}
	m.captures = append(m.captures, c)
	return nil
}

func (m *mockStore) SaveTasks(records []storage.TaskRecord) error {
	m.tasks = append(m.tasks, records...)
	return nil
}

func (m *mockStore) RecentTasks(string, int) ([]storage.TaskRecord, error) {
	return m.recentTasks, nil
}

func (m *mockStore) RecentCaptures(string, int) ([]task.Capture, error) { return nil, nil }

func (m *mockStore) RecentFocusTitles(string, int) ([]string, error) {
	return m.focusTitles, nil
}

type mockGateway struct {
	analysis inference.Analysis
	calls    int
}

func (m *mockGateway) Analyze(ctx context.Context, text, prior string) inference.Analysis {
	m.calls++
	return m.analysis
}

type fixedPrefs struct{ prefs task.Preferences }

func (f fixedPrefs) Get(string) (task.Preferences, error) { return f.prefs, nil }

func newTestRunner(store *mockStore, gw *mockGateway, prefs task.Preferences) *Runner {
	return NewRunner(Config{
		Matcher: heuristic.New(nil),
		Gateway: gw,
		Store:   store,
		Prefs:   fixedPrefs{prefs},
		Now:     func() time.Time { return runNow },
	})
}

func TestProcessCapture_ConfidentSkipsInference(t *testing.T) {
	store := &mockStore{}
	gw := &mockGateway{}
	r := newTestRunner(store, gw, task.DefaultPreferences())

	res, err := r.ProcessCapture(context.Background(), "u1", "Email Sarah about the Q3 budget, needs reply by tomorrow", task.InputText, "")
	if err != nil {
		t.Fatalf("ProcessCapture() error = %v", err)
	}

	if gw.calls != 0 {
		t.Errorf("inference was called %d times for a confident classification, want 0", gw.calls)
	}
	if res.UsedInference {
		t.Error("UsedInference = true, want false")
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(res.Candidates))
	}
	if res.Candidates[0].Category != "communication" {
		t.Errorf("category = %q, want communication", res.Candidates[0].Category)
	}
	if res.Candidates[0].ReminderTime == nil {
		t.Fatal("expected a deadline extracted from the text")
	}
	wantDeadline := time.Date(2026, 3, 11, 23, 59, 59, 0, time.UTC)
	if !res.Candidates[0].ReminderTime.Equal(wantDeadline) {
		t.Errorf("deadline = %v, want %v", res.Candidates[0].ReminderTime, wantDeadline)
	}
	if res.Routing[res.Candidates[0].ID] != task.BucketTomorrow {
		t.Errorf("bucket = %q, want tomorrow", res.Routing[res.Candidates[0].ID])
	}
	if len(res.Scores) != 1 || res.Scores[0].Priority != task.PriorityMust {
		t.Errorf("priority = %q, want must for explicit urgency phrasing", res.Scores[0].Priority)
	}
}

func TestProcessCapture_NegativeBiasKeepsShortCircuit(t *testing.T) {
	store := &mockStore{}
	gw := &mockGateway{}
	prefs := task.DefaultPreferences()
	prefs.ConfidenceBias = -0.1 // heavy editor per the aggregator

	r := newTestRunner(store, gw, prefs)

	// "groceries" matches the errand pattern at exactly the 0.75 threshold.
	res, err := r.ProcessCapture(context.Background(), "u1", "buy groceries at the store", task.InputText, "")
	if err != nil {
		t.Fatalf("ProcessCapture() error = %v", err)
	}

	if gw.calls != 0 {
		t.Errorf("inference calls = %d, want 0: a confident match must short-circuit regardless of bias", gw.calls)
	}
	if res.UsedInference {
		t.Error("UsedInference = true, want false")
	}
}

func TestProcessCapture_PositiveBiasLiftsBorderlineMatch(t *testing.T) {
	store := &mockStore{}
	gw := &mockGateway{}
	prefs := task.DefaultPreferences()
	prefs.ConfidenceBias = 0.1

	r := newTestRunner(store, gw, prefs)

	// "learn" matches the learning pattern at 0.65, under the 0.75 threshold.
	res, err := r.ProcessCapture(context.Background(), "u1", "learn some basic woodworking", task.InputText, "")
	if err != nil {
		t.Fatalf("ProcessCapture() error = %v", err)
	}

	if gw.calls != 0 {
		t.Errorf("inference calls = %d, want 0: positive bias should lift 0.65 over the threshold", gw.calls)
	}
	if res.UsedInference {
		t.Error("UsedInference = true, want false")
	}
}

func TestProcessCapture_LowConfidenceUsesInference(t *testing.T) {
	store := &mockStore{}
	gw := &mockGateway{analysis: inference.Analysis{
		Summary:       "two separate chores",
		EmotionalTone: inference.ToneNeutral,
		Tasks: []inference.ExtractedTask{
			{Title: "water the ficus", Category: "home"},
			{Title: "wind the grandfather clock", Category: "home"},
		},
	}}
	r := newTestRunner(store, gw, task.DefaultPreferences())

	res, err := r.ProcessCapture(context.Background(), "u1", "ficus looks thirsty and the clock stopped again", task.InputText, "")
	if err != nil {
		t.Fatalf("ProcessCapture() error = %v", err)
	}

	if gw.calls != 1 {
		t.Errorf("inference calls = %d, want 1", gw.calls)
	}
	if !res.UsedInference {
		t.Error("UsedInference = false, want true")
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(res.Candidates))
	}
	if res.Candidates[0].Title != "water the ficus" {
		t.Errorf("first candidate = %q", res.Candidates[0].Title)
	}
}

func TestProcessCapture_InferenceFailureFallsBack(t *testing.T) {
	store := &mockStore{}
	gw := &mockGateway{} // zero Analysis, as the gateway returns on failure
	r := newTestRunner(store, gw, task.DefaultPreferences())

	res, err := r.ProcessCapture(context.Background(), "u1", "ponder the garden situation", task.InputText, "")
	if err != nil {
		t.Fatalf("ProcessCapture() error = %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("got %d candidates, want 1 heuristic fallback", len(res.Candidates))
	}
	if res.Candidates[0].Title != "ponder the garden situation" {
		t.Errorf("fallback candidate title = %q", res.Candidates[0].Title)
	}
}

func TestProcessCapture_InputValidation(t *testing.T) {
	store := &mockStore{}
	r := newTestRunner(store, &mockGateway{}, task.DefaultPreferences())

	if _, err := r.ProcessCapture(context.Background(), "u1", "   ", task.InputText, ""); !errors.Is(err, ErrEmptyCapture) {
		t.Errorf("empty capture error = %v, want ErrEmptyCapture", err)
	}

	long := strings.Repeat("x", DefaultMaxCaptureRunes+1)
	if _, err := r.ProcessCapture(context.Background(), "u1", long, task.InputText, ""); !errors.Is(err, ErrCaptureTooLong) {
		t.Errorf("oversized capture error = %v, want ErrCaptureTooLong", err)
	}

	if len(store.captures) != 0 || len(store.tasks) != 0 {
		t.Error("rejected input must not create state")
	}
}

func TestProcessCapture_CancelledContextPersistsNothing(t *testing.T) {
	store := &mockStore{}
	r := newTestRunner(store, &mockGateway{}, task.DefaultPreferences())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.ProcessCapture(ctx, "u1", "email the landlord about the lease", task.InputText, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(store.captures) != 0 || len(store.tasks) != 0 {
		t.Error("cancelled run must not persist anything")
	}
}

func TestProcessCapture_PersistRetriesOnce(t *testing.T) {
	store := &mockStore{failSaves: 1}
	r := newTestRunner(store, &mockGateway{}, task.DefaultPreferences())

	if _, err := r.ProcessCapture(context.Background(), "u1", "email the plumber", task.InputText, ""); err != nil {
		t.Fatalf("one transient failure should be retried, got %v", err)
	}
	if len(store.captures) != 1 {
		t.Errorf("captures persisted = %d, want 1", len(store.captures))
	}

	store = &mockStore{failSaves: 2}
	r = newTestRunner(store, &mockGateway{}, task.DefaultPreferences())
	if _, err := r.ProcessCapture(context.Background(), "u1", "email the plumber", task.InputText, ""); err == nil {
		t.Error("two failures should surface an error")
	}
}

func TestProcessCapture_CoarseGranularityCollapsesDecomposition(t *testing.T) {
	gw := &mockGateway{analysis: inference.Analysis{
		Summary: "spring cleaning",
		Tasks: []inference.ExtractedTask{
			{Title: "wipe the windows", Category: "home"},
			{Title: "descale the kettle", Category: "home"},
			{Title: "rotate the mattress", Category: "home"},
		},
	}}
	prefs := task.DefaultPreferences()
	prefs.TaskGranularity = task.GranularityCoarse

	r := newTestRunner(&mockStore{}, gw, prefs)
	res, err := r.ProcessCapture(context.Background(), "u1", "the flat needs a proper going over this weekend", task.InputText, "")
	if err != nil {
		t.Fatalf("ProcessCapture() error = %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Errorf("coarse granularity kept %d candidates, want 1", len(res.Candidates))
	}
}

func TestProcessCapture_RaisedThresholdBlocksDecomposition(t *testing.T) {
	gw := &mockGateway{analysis: inference.Analysis{
		Tasks: []inference.ExtractedTask{
			{Title: "book flights"},
			{Title: "reserve hotel"},
		},
	}}
	prefs := task.DefaultPreferences()
	prefs.DecompositionThreshold = 0.85 // past several rejections

	r := newTestRunner(&mockStore{}, gw, prefs)
	res, err := r.ProcessCapture(context.Background(), "u1", "sort out the trip logistics somehow", task.InputText, "")
	if err != nil {
		t.Fatalf("ProcessCapture() error = %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Errorf("raised threshold kept %d candidates, want 1", len(res.Candidates))
	}
}

func TestProcessCapture_RoutingIsTotal(t *testing.T) {
	gw := &mockGateway{analysis: inference.Analysis{
		Tasks: []inference.ExtractedTask{
			{Title: "draft the keynote outline", Category: "work", ReminderTime: "2026-03-10T17:00:00Z"},
			{Title: "maybe reorganize the bookshelf"},
			{Title: "renew the car insurance", Category: "finance", ReminderTime: "2026-03-14T12:00:00Z"},
		},
	}}
	r := newTestRunner(&mockStore{}, gw, task.DefaultPreferences())

	res, err := r.ProcessCapture(context.Background(), "u1", "brain dump before the offsite maybe", task.InputText, "")
	if err != nil {
		t.Fatalf("ProcessCapture() error = %v", err)
	}
	if !res.Routing.Covers(res.Candidates) {
		t.Error("routing must assign every candidate a bucket")
	}
}

func TestProcessCapture_SummaryHasAllSections(t *testing.T) {
	r := newTestRunner(&mockStore{}, &mockGateway{}, task.DefaultPreferences())

	res, err := r.ProcessCapture(context.Background(), "u1", "email the accountant about the filing", task.InputText, "")
	if err != nil {
		t.Fatalf("ProcessCapture() error = %v", err)
	}
	for _, section := range []string{"## Overview", "## Analysis", "## Context", "## Priorities", "## Agenda", "## Clarifications"} {
		if !strings.Contains(res.SummaryMarkdown, section) {
			t.Errorf("summary missing section %s", section)
		}
	}
}

func TestProcessCapture_PersistedRecordsMatchResult(t *testing.T) {
	store := &mockStore{}
	r := newTestRunner(store, &mockGateway{}, task.DefaultPreferences())

	res, err := r.ProcessCapture(context.Background(), "u1", "pay the electricity bill tomorrow", task.InputText, "")
	if err != nil {
		t.Fatalf("ProcessCapture() error = %v", err)
	}

	if len(store.tasks) != len(res.Candidates) {
		t.Fatalf("persisted %d records for %d candidates", len(store.tasks), len(res.Candidates))
	}
	rec := store.tasks[0]
	if rec.UserID != "u1" || rec.CaptureID != res.Capture.ID {
		t.Errorf("record ownership wrong: %+v", rec)
	}
	if rec.Bucket != string(res.Routing[rec.ID]) {
		t.Errorf("record bucket %q does not match routing %q", rec.Bucket, res.Routing[rec.ID])
	}
}
