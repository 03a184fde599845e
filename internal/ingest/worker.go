// Package ingest runs the background worker: it drains the SQLite job
// queue (imported documents, learning aggregation) and periodically
// schedules aggregation on its own.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Jay-Tejada/malunita/internal/learning"
	"github.com/Jay-Tejada/malunita/internal/pipeline"
	"github.com/Jay-Tejada/malunita/internal/storage"
	"github.com/Jay-Tejada/malunita/internal/task"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	EnqueueJob(job storage.Job) error
	PruneSignals(userID string, before time.Time) (int64, error)
}

// CaptureRunner runs one capture through the pipeline.
type CaptureRunner interface {
	ProcessCapture(ctx context.Context, userID, text string, method task.InputMethod, bucketHint string) (*pipeline.Result, error)
}

// Recomputer rebuilds learned preferences from the signal window.
type Recomputer interface {
	Recompute(userID string, now time.Time, force bool) (task.Preferences, error)
}

// PrefsCache invalidates cached preferences after a recompute.
type PrefsCache interface {
	Invalidate(userID string)
}

// Worker processes queued jobs and schedules periodic learning runs for
// the local user.
type Worker struct {
	store         JobStore
	runner        CaptureRunner
	learner       Recomputer
	prefs         PrefsCache
	poll          time.Duration
	learnEvery    time.Duration
	retentionDays int
	userID        string
	logger        *slog.Logger
}

// Options tunes worker behavior. Zero values fall back to defaults.
type Options struct {
	PollInterval  time.Duration
	LearnEvery    time.Duration
	RetentionDays int
	UserID        string
}

// NewWorker creates a Worker with the given dependencies.
func NewWorker(store JobStore, runner CaptureRunner, learner Recomputer, prefs PrefsCache, opts Options) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.LearnEvery <= 0 {
		opts.LearnEvery = time.Hour
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 90
	}
	if opts.UserID == "" {
		opts.UserID = "local"
	}
	return &Worker{
		store:         store,
		runner:        runner,
		learner:       learner,
		prefs:         prefs,
		poll:          opts.PollInterval,
		learnEvery:    opts.LearnEvery,
		retentionDays: opts.RetentionDays,
		userID:        opts.UserID,
		logger:        slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled. Every learnEvery it enqueues
// an aggregation job for the local user so preferences stay current even
// when nobody calls the recompute endpoint.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.learnEvery)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ScheduleAggregation(w.userID); err != nil {
				w.logger.Error("scheduling aggregation failed", "error", err)
			}
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job. Returns true if a job was
// processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{storage.JobImportDocument, storage.JobAggregateLearning})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// ScheduleAggregation enqueues an aggregate_learning job for the user.
func (w *Worker) ScheduleAggregation(userID string) error {
	payload, err := json.Marshal(aggregatePayload{UserID: userID})
	if err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}
	return w.store.EnqueueJob(storage.Job{
		ID:          uuid.New().String(),
		Type:        storage.JobAggregateLearning,
		PayloadJSON: string(payload),
	})
}

type importPayload struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	Text   string `json:"text"`
}

type aggregatePayload struct {
	UserID string `json:"user_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	switch job.Type {
	case storage.JobImportDocument:
		return w.processImport(ctx, job)
	case storage.JobAggregateLearning:
		return w.processAggregation(job)
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

func (w *Worker) processImport(ctx context.Context, job *storage.Job) error {
	var payload importPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	text := payload.Text
	if runes := []rune(text); len(runes) > pipeline.DefaultMaxCaptureRunes {
		text = string(runes[:pipeline.DefaultMaxCaptureRunes])
	}

	res, err := w.runner.ProcessCapture(ctx, payload.UserID, text, task.InputImport, "")
	if err != nil {
		return fmt.Errorf("processing imported document: %w", err)
	}

	w.logger.Info("imported document processed",
		"job_id", job.ID,
		"capture", res.Capture.ID,
		"title", payload.Title,
		"candidates", len(res.Candidates))
	return nil
}

// processAggregation recomputes preferences and then prunes signals that
// have aged out of the retention window. A window with too few signals is
// not an error.
func (w *Worker) processAggregation(job *storage.Job) error {
	var payload aggregatePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.UserID == "" {
		payload.UserID = w.userID
	}

	now := time.Now()
	_, err := w.learner.Recompute(payload.UserID, now, false)
	switch {
	case errors.Is(err, learning.ErrNotEnoughSignals):
		w.logger.Debug("aggregation skipped", "user", payload.UserID)
	case err != nil:
		return fmt.Errorf("recomputing preferences: %w", err)
	default:
		if w.prefs != nil {
			w.prefs.Invalidate(payload.UserID)
		}
	}

	cutoff := now.AddDate(0, 0, -w.retentionDays)
	pruned, err := w.store.PruneSignals(payload.UserID, cutoff)
	if err != nil {
		return fmt.Errorf("pruning signals: %w", err)
	}
	if pruned > 0 {
		w.logger.Info("pruned aged signals", "user", payload.UserID, "count", pruned)
	}
	return nil
}
