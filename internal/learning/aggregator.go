// Package learning turns discrete user-feedback signals into adjusted
// weights: learned category overrides for the matcher (via the correction
// store) and decay-weighted preferences for the scorer.
package learning

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/Jay-Tejada/malunita/internal/task"
)

// ErrNotEnoughSignals is returned when the signal window holds fewer than
// the minimum required signals and the run was not forced.
var ErrNotEnoughSignals = errors.New("not enough signals to aggregate")

const (
	// DefaultMinSignals gates recomputation; fewer signals than this and
	// the previous preferences stand.
	DefaultMinSignals = 3
	// DefaultHalfLifeDays is the exponential-decay half-life applied to a
	// signal's weight.
	DefaultHalfLifeDays = 30
	// DefaultWindowDays is the trailing window of signals considered.
	DefaultWindowDays = 30

	coarseRejectionCount      = 5
	detailedEditCount         = 10
	thresholdRejectionMin     = 3
	maxDecompositionThreshold = 0.9
	rejectionThresholdStep    = 0.03
)

// Aggregator recomputes LearnedPreferences wholesale from a signal window.
// Recomputation is deterministic: the same signals and timestamp always
// produce the same preferences.
type Aggregator struct {
	minSignals   int
	halfLifeDays float64
	windowDays   int
}

// NewAggregator creates an Aggregator. Non-positive arguments fall back to
// the defaults.
func NewAggregator(minSignals int, halfLifeDays float64, windowDays int) *Aggregator {
	a := &Aggregator{
		minSignals:   minSignals,
		halfLifeDays: halfLifeDays,
		windowDays:   windowDays,
	}
	if a.minSignals <= 0 {
		a.minSignals = DefaultMinSignals
	}
	if a.halfLifeDays <= 0 {
		a.halfLifeDays = DefaultHalfLifeDays
	}
	if a.windowDays <= 0 {
		a.windowDays = DefaultWindowDays
	}
	return a
}

// WindowStart returns the oldest signal timestamp the aggregator considers.
func (a *Aggregator) WindowStart(now time.Time) time.Time {
	return now.AddDate(0, 0, -a.windowDays)
}

// Aggregate derives preferences from the signals inside the trailing
// window. force bypasses the minimum-signal gate but never widens the
// window.
func (a *Aggregator) Aggregate(signals []task.Signal, now time.Time, force bool) (task.Preferences, error) {
	cutoff := a.WindowStart(now)
	var windowed []task.Signal
	for _, s := range signals {
		if s.CreatedAt.Before(cutoff) || s.CreatedAt.After(now) {
			continue
		}
		windowed = append(windowed, s)
	}

	if len(windowed) < a.minSignals && !force {
		return task.Preferences{}, ErrNotEnoughSignals
	}

	prefs := task.DefaultPreferences()
	prefs.ComputedAt = now

	var (
		rejections      int
		longerEdits     int
		summaryEdits    int
		completions     int
	)

	for _, s := range windowed {
		weight := a.decayWeight(s.CreatedAt, now)

		switch s.Type {
		case task.SignalDestinationCorrection:
			var p task.DestinationCorrectionPayload
			if err := json.Unmarshal(s.Payload, &p); err != nil || p.From == "" || p.To == "" {
				slog.Debug("skipping malformed destination correction", "signal", s.ID)
				continue
			}
			if prefs.PreferredDestinations[p.From] == nil {
				prefs.PreferredDestinations[p.From] = make(map[string]float64)
			}
			prefs.PreferredDestinations[p.From][p.To] += weight

		case task.SignalDecompositionRejection:
			rejections++

		case task.SignalSummaryEdit:
			summaryEdits++
			var p task.SummaryEditPayload
			if err := json.Unmarshal(s.Payload, &p); err == nil && len(p.Edited) > len(p.Original) {
				longerEdits++
			}

		case task.SignalTaskCompleted:
			completions++
		}
	}

	switch {
	case rejections >= coarseRejectionCount:
		prefs.TaskGranularity = task.GranularityCoarse
	case longerEdits >= detailedEditCount:
		prefs.TaskGranularity = task.GranularityDetailed
	default:
		prefs.TaskGranularity = task.GranularityBalanced
	}

	if rejections >= thresholdRejectionMin {
		prefs.DecompositionThreshold = math.Min(
			maxDecompositionThreshold,
			task.DefaultDecompositionThreshold+float64(rejections)*rejectionThresholdStep,
		)
	}

	if completions > 0 {
		prefs.EditFrequency = float64(summaryEdits) / float64(completions)
	}

	switch {
	case prefs.EditFrequency > 0.5:
		prefs.ConfidenceBias = -0.1
	case completions > 0 && prefs.EditFrequency < 0.1:
		prefs.ConfidenceBias = 0.1
	}

	return prefs, nil
}

// decayWeight computes 0.5^(ageInDays/halfLife) so that a signal's
// influence halves every half-life period.
func (a *Aggregator) decayWeight(createdAt, now time.Time) float64 {
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Pow(0.5, ageDays/a.halfLifeDays)
}
