package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Jay-Tejada/malunita/internal/heuristic"
	"github.com/Jay-Tejada/malunita/internal/learning"
	"github.com/Jay-Tejada/malunita/internal/pipeline"
	"github.com/Jay-Tejada/malunita/internal/storage"
	"github.com/Jay-Tejada/malunita/internal/summary"
	"github.com/Jay-Tejada/malunita/internal/task"
)

const maxRequestBodySize = 1 << 20 // 1MB

// DefaultUserID is used when a request does not name a user. The server is
// single-tenant by default; the field exists so storage stays partitioned.
const DefaultUserID = "local"

type AppDeps struct {
	Store      *storage.Store
	Runner     *pipeline.Runner
	Matcher    *heuristic.Matcher
	Learner    *learning.Service
	Prefs      *learning.Manager
	Runs       *RunCache
	Token      string
	HTTPClient *http.Client
}

// NewAppHandler returns the HTTP API. Everything except /health requires
// the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Runs == nil {
		deps.Runs = NewRunCache()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/captures", handleCreateCapture(deps))
		r.Get("/captures/{id}", handleGetCapture(deps))
		r.Get("/captures/{id}/summary", handleCaptureSummary(deps))
		r.Get("/tasks", handleListTasks(deps))
		r.Get("/tasks/{id}", handleGetTask(deps))
		r.Get("/agenda", handleAgenda(deps))
		r.Post("/focus", handleFocus(deps))
		r.Post("/signals", handleRecordSignal(deps))
		r.Post("/corrections", handleCorrection(deps))
		r.Get("/preferences", handleGetPreferences(deps))
		r.Post("/preferences/recompute", handleRecompute(deps))
		r.Post("/import", handleImport(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type captureRequest struct {
	UserID      string `json:"user_id"`
	Text        string `json:"text"`
	InputMethod string `json:"input_method"`
	BucketHint  string `json:"bucket_hint"`
}

type captureResponse struct {
	CaptureID      string           `json:"capture_id"`
	Candidates     []task.Candidate `json:"candidates"`
	Scores         []task.Score     `json:"scores"`
	Routing        task.Routing     `json:"routing"`
	OneThing       string           `json:"one_thing,omitempty"`
	Clarifications []task.Question  `json:"clarifications"`
	UsedInference  bool             `json:"used_inference"`
}

func handleCreateCapture(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req captureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		res, err := deps.Runner.ProcessCapture(r.Context(), userOrDefault(req.UserID), req.Text, task.InputMethod(req.InputMethod), req.BucketHint)
		if errors.Is(err, pipeline.ErrEmptyCapture) || errors.Is(err, pipeline.ErrCaptureTooLong) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "processing capture: %v", err)
			return
		}

		deps.Runs.Put(res)

		writeJSON(w, captureResponse{
			CaptureID:      res.Capture.ID,
			Candidates:     res.Candidates,
			Scores:         res.Scores,
			Routing:        res.Routing,
			OneThing:       res.Suggestion,
			Clarifications: res.Clarifications,
			UsedInference:  res.UsedInference,
		})
	}
}

func handleGetCapture(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		capture, err := deps.Store.GetCapture(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "capture not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading capture: %v", err)
			return
		}

		tasks, err := deps.Store.TasksByCapture(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading tasks: %v", err)
			return
		}
		if tasks == nil {
			tasks = []storage.TaskRecord{}
		}

		writeJSON(w, map[string]any{"capture": capture, "tasks": tasks})
	}
}

func handleCaptureSummary(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		markdown, err := summaryFor(deps, id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "capture not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "composing summary: %v", err)
			return
		}

		if r.URL.Query().Get("format") == "html" {
			html, err := summary.RenderHTML(markdown)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "rendering summary: %v", err)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(html))
			return
		}

		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(markdown))
	}
}

// summaryFor prefers the cached run, which still has the analysis and
// clarifications. Older captures are recomposed from stored records.
func summaryFor(deps AppDeps, captureID string) (string, error) {
	if res, ok := deps.Runs.Capture(captureID); ok {
		return res.SummaryMarkdown, nil
	}

	capture, err := deps.Store.GetCapture(captureID)
	if err != nil {
		return "", err
	}
	records, err := deps.Store.TasksByCapture(captureID)
	if err != nil {
		return "", err
	}

	report := summary.Report{Capture: capture, GeneratedAt: time.Now()}
	report.Routing = make(task.Routing, len(records))
	for _, rec := range records {
		report.Candidates = append(report.Candidates, task.Candidate{
			ID:               rec.ID,
			CaptureID:        rec.CaptureID,
			Title:            rec.Title,
			Category:         rec.Category,
			CustomCategoryID: rec.CustomCategoryID,
			ReminderTime:     rec.ReminderTime,
		})
		report.Scores = append(report.Scores, task.Score{
			CandidateID: rec.ID,
			Priority:    task.Priority(rec.Priority),
			Effort:      task.Effort(rec.Effort),
			FiestaReady: rec.FiestaReady,
			BigTask:     rec.BigTask,
			Total:       rec.Score,
		})
		report.Routing[rec.ID] = task.Bucket(rec.Bucket)
	}
	return summary.Compose(report), nil
}

func handleListTasks(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userOrDefault(r.URL.Query().Get("user_id"))
		limit := parseIntParam(r, "limit", 50, 200)

		var (
			tasks []storage.TaskRecord
			err   error
		)
		if bucket := r.URL.Query().Get("bucket"); bucket != "" {
			tasks, err = deps.Store.TasksByBucket(userID, bucket)
		} else {
			tasks, err = deps.Store.RecentTasks(userID, limit)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing tasks: %v", err)
			return
		}
		if tasks == nil {
			tasks = []storage.TaskRecord{}
		}
		writeJSON(w, tasks)
	}
}

func handleGetTask(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := deps.Store.GetTask(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading task: %v", err)
			return
		}
		writeJSON(w, rec)
	}
}

func handleAgenda(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userOrDefault(r.URL.Query().Get("user_id"))

		agenda := make(map[string][]storage.TaskRecord, len(task.Buckets))
		for _, bucket := range task.Buckets {
			tasks, err := deps.Store.TasksByBucket(userID, string(bucket))
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "loading bucket %s: %v", bucket, err)
				return
			}
			if tasks == nil {
				tasks = []storage.TaskRecord{}
			}
			agenda[string(bucket)] = tasks
		}
		writeJSON(w, agenda)
	}
}

type focusRequest struct {
	UserID string `json:"user_id"`
	TaskID string `json:"task_id"`
}

func handleFocus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req focusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.TaskID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "task_id is required")
			return
		}

		rec, err := deps.Store.GetTask(req.TaskID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading task: %v", err)
			return
		}

		userID := userOrDefault(req.UserID)
		now := time.Now()
		if err := deps.Store.SaveFocusChoice(storage.FocusChoice{
			ID:       uuid.NewString(),
			UserID:   userID,
			Title:    rec.Title,
			ChosenAt: now,
		}); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving focus choice: %v", err)
			return
		}

		writeJSON(w, map[string]string{"status": "recorded"})
	}
}

type signalRequest struct {
	UserID  string          `json:"user_id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func handleRecordSignal(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req signalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		typ := task.SignalType(req.Type)
		if !knownSignal(typ) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown signal type %q", req.Type)
			return
		}

		var payload any
		if len(req.Payload) > 0 {
			payload = req.Payload
		}
		sig, err := learning.NewSignal(userOrDefault(req.UserID), typ, payload, time.Now())
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "building signal: %v", err)
			return
		}
		if err := deps.Learner.Record(sig); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "recording signal: %v", err)
			return
		}

		writeJSON(w, map[string]string{"id": sig.ID, "status": "recorded"})
	}
}

type correctionRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// handleCorrection records a category correction twice over: the matcher
// learns per-word overrides immediately, and a destination_correction
// signal feeds the next aggregation run.
func handleCorrection(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req correctionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Text == "" || req.To == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text and to are required")
			return
		}

		userID := userOrDefault(req.UserID)
		if err := deps.Matcher.LearnFromCorrection(userID, req.Text, req.To); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "recording correction: %v", err)
			return
		}

		sig, err := learning.NewSignal(userID, task.SignalDestinationCorrection,
			task.DestinationCorrectionPayload{From: req.From, To: req.To, Text: req.Text}, time.Now())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "building signal: %v", err)
			return
		}
		if err := deps.Learner.Record(sig); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "recording signal: %v", err)
			return
		}

		deps.Prefs.Invalidate(userID)
		writeJSON(w, map[string]string{"status": "recorded"})
	}
}

func handleGetPreferences(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefs, err := deps.Prefs.Get(userOrDefault(r.URL.Query().Get("user_id")))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading preferences: %v", err)
			return
		}
		writeJSON(w, prefs)
	}
}

type recomputeRequest struct {
	UserID string `json:"user_id"`
	Force  bool   `json:"force"`
}

func handleRecompute(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req recomputeRequest
		if r.Body != nil {
			// body is optional
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		userID := userOrDefault(req.UserID)
		prefs, err := deps.Learner.Recompute(userID, time.Now(), req.Force)
		if errors.Is(err, learning.ErrNotEnoughSignals) {
			writeJSON(w, map[string]string{"status": "skipped", "reason": "not enough signals"})
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "recomputing preferences: %v", err)
			return
		}

		deps.Prefs.Invalidate(userID)
		writeJSON(w, map[string]any{"status": "recomputed", "preferences": prefs})
	}
}

func userOrDefault(userID string) string {
	if userID == "" {
		return DefaultUserID
	}
	return userID
}

func knownSignal(typ task.SignalType) bool {
	for _, t := range task.KnownSignalTypes {
		if t == typ {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
