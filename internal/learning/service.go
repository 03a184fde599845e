package learning

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jay-Tejada/malunita/internal/task"
)

// SignalStore is the slice of storage the service reads signals from.
// Implemented by storage.Store.
type SignalStore interface {
	AppendSignal(sig task.Signal) error
	SignalsSince(userID string, since time.Time) ([]task.Signal, error)
}

// PreferenceStore persists the aggregation output, one record per user.
// Implemented by storage.Store.
type PreferenceStore interface {
	LoadPreferences(userID string) (task.Preferences, error)
	UpsertPreferences(userID string, prefs task.Preferences) error
}

// Service wires the aggregator to storage: it loads a user's signal window,
// recomputes preferences, and upserts the result.
type Service struct {
	signals SignalStore
	prefs   PreferenceStore
	agg     *Aggregator
}

// NewService creates a Service around the given stores and aggregator.
func NewService(signals SignalStore, prefs PreferenceStore, agg *Aggregator) *Service {
	return &Service{signals: signals, prefs: prefs, agg: agg}
}

// Record appends one feedback signal.
func (s *Service) Record(sig task.Signal) error {
	return s.signals.AppendSignal(sig)
}

// Recompute aggregates the user's trailing signal window and writes a new
// preferences record. When there are too few signals (and force is false)
// nothing is written and ErrNotEnoughSignals is returned.
func (s *Service) Recompute(userID string, now time.Time, force bool) (task.Preferences, error) {
	window, err := s.signals.SignalsSince(userID, s.agg.WindowStart(now))
	if err != nil {
		return task.Preferences{}, fmt.Errorf("loading signals: %w", err)
	}

	prefs, err := s.agg.Aggregate(window, now, force)
	if err != nil {
		if errors.Is(err, ErrNotEnoughSignals) {
			slog.Debug("skipping preference recompute", "user", userID, "signals", len(window))
		}
		return task.Preferences{}, err
	}

	if err := s.prefs.UpsertPreferences(userID, prefs); err != nil {
		return task.Preferences{}, fmt.Errorf("upserting preferences: %w", err)
	}

	slog.Info("learned preferences recomputed",
		"user", userID,
		"signals", len(window),
		"granularity", prefs.TaskGranularity,
		"edit_frequency", prefs.EditFrequency,
	)
	return prefs, nil
}
