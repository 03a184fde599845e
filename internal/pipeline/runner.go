// Package pipeline orchestrates one capture run: classify, analyze, score,
// route, clarify, summarize, persist. All stages except the inference call
// are pure; the inference call degrades to heuristics on any failure.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Jay-Tejada/malunita/internal/agenda"
	"github.com/Jay-Tejada/malunita/internal/clarify"
	"github.com/Jay-Tejada/malunita/internal/heuristic"
	"github.com/Jay-Tejada/malunita/internal/inference"
	"github.com/Jay-Tejada/malunita/internal/relevance"
	"github.com/Jay-Tejada/malunita/internal/scoring"
	"github.com/Jay-Tejada/malunita/internal/storage"
	"github.com/Jay-Tejada/malunita/internal/summary"
	"github.com/Jay-Tejada/malunita/internal/task"
)

// Input validation errors. Both reject the capture before any state is
// created.
var (
	ErrEmptyCapture   = errors.New("capture text is empty")
	ErrCaptureTooLong = errors.New("capture text exceeds the length limit")
)

// DefaultMaxCaptureRunes bounds accepted capture text.
const DefaultMaxCaptureRunes = 4000

// historyLimit caps how much stored history feeds the relevance index.
const historyLimit = 50

// decompositionConfidence is the fixed confidence assigned to a model
// proposal that splits one capture into several tasks. Repeated user
// rejections raise the preference threshold past it, which disables
// auto-decomposition for that user.
const decompositionConfidence = 0.8

// Analyzer is the inference dependency. inference.Gateway implements it;
// tests use a mock.
type Analyzer interface {
	Analyze(ctx context.Context, text, priorContext string) inference.Analysis
}

// Store is the slice of storage the runner needs.
type Store interface {
	SaveCapture(c task.Capture) error
	SaveTasks(records []storage.TaskRecord) error
	RecentTasks(userID string, limit int) ([]storage.TaskRecord, error)
	RecentCaptures(userID string, limit int) ([]task.Capture, error)
	RecentFocusTitles(userID string, limit int) ([]string, error)
}

// PreferenceSource yields learned preferences. learning.Manager implements
// it with caching.
type PreferenceSource interface {
	Get(userID string) (task.Preferences, error)
}

// Result is everything one run produced. The markdown summary is a
// rendering of the other fields, never consulted for decisions.
type Result struct {
	Capture         task.Capture
	Candidates      []task.Candidate
	Scores          []task.Score
	Routing         task.Routing
	Suggestion      string
	Clarifications  []task.Question
	SummaryMarkdown string
	Relevance       relevance.Result
	UsedInference   bool
}

// Config wires a Runner. Zero-value fields fall back to defaults.
type Config struct {
	Matcher  *heuristic.Matcher
	Gateway  Analyzer
	Store    Store
	Prefs    PreferenceSource
	Prompter *clarify.Prompter

	ConfidenceThreshold float64
	RelevanceThreshold  float64
	MaxCaptureRunes     int
	Now                 func() time.Time
}

// Runner executes the capture pipeline. Safe for concurrent use.
type Runner struct {
	matcher   *heuristic.Matcher
	gateway   Analyzer
	store     Store
	prefs     PreferenceSource
	prompter  *clarify.Prompter
	gate      *relevance.Gate
	threshold float64
	maxRunes  int
	now       func() time.Time
}

func NewRunner(cfg Config) *Runner {
	r := &Runner{
		matcher:   cfg.Matcher,
		gateway:   cfg.Gateway,
		store:     cfg.Store,
		prefs:     cfg.Prefs,
		prompter:  cfg.Prompter,
		gate:      relevance.NewGate(cfg.RelevanceThreshold),
		threshold: cfg.ConfidenceThreshold,
		maxRunes:  cfg.MaxCaptureRunes,
		now:       cfg.Now,
	}
	if r.threshold <= 0 {
		r.threshold = heuristic.DefaultConfidenceThreshold
	}
	if r.maxRunes <= 0 {
		r.maxRunes = DefaultMaxCaptureRunes
	}
	if r.prompter == nil {
		r.prompter = clarify.New(clarify.DefaultMaxQuestions, rand.New(rand.NewSource(time.Now().UnixNano())))
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// ProcessCapture runs the full pipeline for one piece of user input.
// A cancelled context aborts before anything is persisted.
func (r *Runner) ProcessCapture(ctx context.Context, userID string, text string, method task.InputMethod, bucketHint string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyCapture
	}
	if utf8.RuneCountInString(text) > r.maxRunes {
		return nil, fmt.Errorf("%w (%d runes, max %d)", ErrCaptureTooLong, utf8.RuneCountInString(text), r.maxRunes)
	}
	if method == "" {
		method = task.InputText
	}

	now := r.now()
	capture := task.Capture{
		ID:          uuid.NewString(),
		UserID:      userID,
		Text:        text,
		InputMethod: method,
		BucketHint:  bucketHint,
		CreatedAt:   now,
	}

	prefs := r.loadPreferences(userID)
	focusTitles, index := r.loadHistory(userID, now)
	rel := r.gate.Evaluate(text, index)

	cls := r.matcher.Classify(userID, text)
	useInference := r.shouldUseInference(cls, prefs)

	var analysis inference.Analysis
	if useInference {
		prior := ""
		if rel.Retrieved {
			prior = strings.Join(focusTitles, "; ")
		}
		analysis = r.gateway.Analyze(ctx, text, prior)
	}

	candidates := r.buildCandidates(capture, cls, analysis, prefs, now)
	scored := r.scoreCandidates(candidates, prefs, focusTitles, rel, now)
	routing := agenda.Route(candidates, scored.Scores, now)
	ensureTotal(routing, candidates)

	ctxMap := r.buildContextMap(capture, candidates, now)
	clar := r.prompter.Prompt(clarify.Input{
		Candidates: candidates,
		Scores:     scored.Scores,
		Context:    ctxMap,
		Tone:       analysis.EmotionalTone,
	})

	res := &Result{
		Capture:        capture,
		Candidates:     candidates,
		Scores:         scored.Scores,
		Routing:        routing,
		Suggestion:     scored.Suggestion,
		Clarifications: clar.Questions,
		Relevance:      rel,
		UsedInference:  useInference,
	}
	res.SummaryMarkdown = summary.Compose(summary.Report{
		Capture:     capture,
		Analysis:    analysis,
		Relevance:   rel,
		Candidates:  candidates,
		Scores:      scored.Scores,
		Routing:     routing,
		Suggestion:  scored.Suggestion,
		Questions:   clar.Questions,
		GeneratedAt: now,
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.persist(capture, res); err != nil {
		slog.Warn("persist failed, retrying once", "capture", capture.ID, "error", err)
		if err := r.persist(capture, res); err != nil {
			return nil, fmt.Errorf("persisting capture %s: %w", capture.ID, err)
		}
	}

	slog.Info("capture processed",
		"capture", capture.ID,
		"user", userID,
		"candidates", len(candidates),
		"questions", len(clar.Questions),
		"inference", useInference)
	return res, nil
}

// shouldUseInference applies the learned confidence bias on top of the
// matcher's verdict. Learned overrides never go to inference, and a
// confident classification always short-circuits: the bias can only lift
// an under-threshold match over the line, never drag a confident one back
// under it.
func (r *Runner) shouldUseInference(cls heuristic.Classification, prefs task.Preferences) bool {
	if cls.Learned {
		return false
	}
	if cls.Confidence >= r.threshold {
		return false
	}
	adjusted := cls.Confidence + prefs.ConfidenceBias
	return adjusted < r.threshold
}

func (r *Runner) loadPreferences(userID string) task.Preferences {
	if r.prefs == nil {
		return task.DefaultPreferences()
	}
	prefs, err := r.prefs.Get(userID)
	if err != nil {
		slog.Warn("loading preferences failed, using defaults", "user", userID, "error", err)
		return task.DefaultPreferences()
	}
	return prefs
}

// loadHistory pulls recent tasks, captures and focus choices; the first two
// feed the relevance index, focus titles feed the scorer.
func (r *Runner) loadHistory(userID string, now time.Time) ([]string, *relevance.Index) {
	var items []relevance.Item

	tasks, err := r.store.RecentTasks(userID, historyLimit)
	if err != nil {
		slog.Warn("loading recent tasks failed", "user", userID, "error", err)
	}
	for _, t := range tasks {
		items = append(items, relevance.Item{Text: t.Title, Category: t.Category, CreatedAt: t.CreatedAt})
	}

	captures, err := r.store.RecentCaptures(userID, historyLimit/2)
	if err != nil {
		slog.Warn("loading recent captures failed", "user", userID, "error", err)
	}
	for _, c := range captures {
		items = append(items, relevance.Item{Text: c.Text, CreatedAt: c.CreatedAt})
	}

	focus, err := r.store.RecentFocusTitles(userID, 10)
	if err != nil {
		slog.Warn("loading focus history failed", "user", userID, "error", err)
	}

	return focus, relevance.NewIndex(items, now, relevance.DefaultHalfLifeDays)
}

// buildCandidates turns the capture plus optional analysis into candidates.
// A multi-task proposal from the model is accepted only when the user's
// decomposition threshold allows it.
func (r *Runner) buildCandidates(capture task.Capture, cls heuristic.Classification, analysis inference.Analysis, prefs task.Preferences, now time.Time) []task.Candidate {
	tasks := analysis.Tasks
	if len(tasks) > 1 && !r.acceptDecomposition(prefs) {
		slog.Debug("collapsing model decomposition", "proposed", len(tasks), "threshold", prefs.DecompositionThreshold)
		tasks = tasks[:1]
	}

	if len(tasks) == 0 {
		return []task.Candidate{{
			ID:           uuid.NewString(),
			CaptureID:    capture.ID,
			Title:        capture.Text,
			Category:     cls.Category,
			ReminderTime: heuristic.ExtractDeadline(capture.Text, now),
		}}
	}

	out := make([]task.Candidate, 0, len(tasks))
	for _, et := range tasks {
		c := task.Candidate{
			ID:        uuid.NewString(),
			CaptureID: capture.ID,
			Title:     et.Title,
			Category:  et.Category,
		}
		if c.Category == "" {
			c.Category = cls.Category
		}
		if et.ReminderTime != "" {
			if t, err := time.Parse(time.RFC3339, et.ReminderTime); err == nil {
				c.ReminderTime = &t
			}
		}
		if c.ReminderTime == nil {
			c.ReminderTime = heuristic.ExtractDeadline(et.Title, now)
		}
		out = append(out, c)
	}
	return out
}

func (r *Runner) acceptDecomposition(prefs task.Preferences) bool {
	if prefs.TaskGranularity == task.GranularityCoarse {
		return false
	}
	threshold := prefs.DecompositionThreshold
	if threshold <= 0 {
		threshold = task.DefaultDecompositionThreshold
	}
	return decompositionConfidence >= threshold
}

func (r *Runner) scoreCandidates(candidates []task.Candidate, prefs task.Preferences, focusTitles []string, rel relevance.Result, now time.Time) scoring.Result {
	inputs := make([]scoring.Candidate, 0, len(candidates))
	for _, c := range candidates {
		priority := r.matcher.GetPriority(c.Title)
		if priority == "" {
			priority = task.PriorityShould
		}
		inputs = append(inputs, scoring.Candidate{
			Task:     c,
			Priority: priority,
			Effort:   r.effortFor(c.Title),
		})
	}
	return scoring.Score(inputs, prefs, scoring.Options{
		Now:         now,
		FocusTitles: focusTitles,
		ContextBias: rel.Influence.BiasesScoring(),
	})
}

const largeTaskMinRunes = 120

func (r *Runner) effortFor(title string) task.Effort {
	if r.matcher.IsTinyTask(title) {
		return task.EffortTiny
	}
	if utf8.RuneCountInString(title) >= largeTaskMinRunes {
		return task.EffortLarge
	}
	return task.EffortMedium
}

// ensureTotal backstops the routing totality invariant. A miss is a bug;
// it is logged loudly and the candidate defaults to upcoming.
func ensureTotal(routing task.Routing, candidates []task.Candidate) {
	for _, c := range candidates {
		if _, ok := routing[c.ID]; !ok {
			slog.Error("agenda routing missed a candidate, defaulting to upcoming", "candidate", c.ID)
			routing[c.ID] = task.BucketUpcoming
		}
	}
}

func (r *Runner) persist(capture task.Capture, res *Result) error {
	if err := r.store.SaveCapture(capture); err != nil {
		return fmt.Errorf("saving capture: %w", err)
	}

	totals := make(map[string]task.Score, len(res.Scores))
	for _, s := range res.Scores {
		totals[s.CandidateID] = s
	}

	records := make([]storage.TaskRecord, 0, len(res.Candidates))
	for _, c := range res.Candidates {
		s := totals[c.ID]
		records = append(records, storage.TaskRecord{
			ID:               c.ID,
			CaptureID:        capture.ID,
			UserID:           capture.UserID,
			Title:            c.Title,
			Category:         c.Category,
			CustomCategoryID: c.CustomCategoryID,
			ReminderTime:     c.ReminderTime,
			Priority:         string(s.Priority),
			Effort:           string(s.Effort),
			FiestaReady:      s.FiestaReady,
			BigTask:          s.BigTask,
			Bucket:           string(res.Routing[c.ID]),
			Score:            s.Total,
			CreatedAt:        capture.CreatedAt,
		})
	}
	if err := r.store.SaveTasks(records); err != nil {
		return fmt.Errorf("saving tasks: %w", err)
	}
	return nil
}
