// Package heuristic implements the fast local classifier that runs before
// any inference call: category patterns, tiny-task detection, deadline
// extraction, and keyword-driven priority. All functions are pure over their
// text input; the only I/O is the learned-correction lookup.
package heuristic

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/Jay-Tejada/malunita/internal/task"
)

// DefaultConfidenceThreshold is the minimum pattern confidence at which the
// pipeline skips inference entirely.
const DefaultConfidenceThreshold = 0.75

// DefaultMinCorrections is how often a word must have been corrected into a
// category before the learned override beats the static patterns.
const DefaultMinCorrections = 3

// learnedConfidence is reported for learned-override matches. A learned
// match is always treated as confident regardless of the threshold.
const learnedConfidence = 0.95

// Classification is the matcher's verdict for one piece of text.
type Classification struct {
	Category    string  `json:"category"`
	Confidence  float64 `json:"confidence"`
	ShouldUseAI bool    `json:"should_use_ai"`
	Learned     bool    `json:"learned"`
}

// CorrectionStore holds per-user correction history. Implemented by
// storage.Store; tests use an in-memory fake.
type CorrectionStore interface {
	RecordCorrection(userID, word, category string) error
	CorrectionCounts(userID string, words []string) (map[string]map[string]int, error)
}

type pattern struct {
	category string
	weight   float64
	re       *regexp.Regexp
}

// categoryPatterns is evaluated in order; the highest-weight match wins and
// earlier entries win ties.
var categoryPatterns = []pattern{
	{"communication", 0.85, regexp.MustCompile(`(?i)\b(email|e-mail|reply|respond|call|text|message|ping|follow ?up|write to)\b`)},
	{"work", 0.80, regexp.MustCompile(`(?i)\b(meeting|report|deadline|client|presentation|budget|review|standup|sprint|invoice|proposal|deck)\b`)},
	{"finance", 0.80, regexp.MustCompile(`(?i)\b(pay|bill|bills|rent|bank|transfer|tax|taxes|subscription|insurance|refund)\b`)},
	{"health", 0.80, regexp.MustCompile(`(?i)\b(doctor|dentist|gym|workout|medication|appointment|therapy|prescription|checkup)\b`)},
	{"errand", 0.75, regexp.MustCompile(`(?i)\b(buy|pick ?up|grocery|groceries|store|return|drop ?off|package|errand)\b`)},
	{"home", 0.70, regexp.MustCompile(`(?i)\b(clean|laundry|dishes|repair|trash|garden|vacuum|declutter|organize)\b`)},
	{"learning", 0.65, regexp.MustCompile(`(?i)\b(read|study|learn|course|tutorial|practice|research)\b`)},
}

// Matcher classifies capture text without inference. Zero value is not
// usable; construct with New.
type Matcher struct {
	corrections    CorrectionStore
	threshold      float64
	minCorrections int
}

// Option adjusts matcher policy knobs.
type Option func(*Matcher)

// WithConfidenceThreshold overrides the inference short-circuit threshold.
func WithConfidenceThreshold(t float64) Option {
	return func(m *Matcher) {
		if t > 0 {
			m.threshold = t
		}
	}
}

// WithMinCorrections overrides how many corrections promote a word to a
// learned override.
func WithMinCorrections(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.minCorrections = n
		}
	}
}

// New creates a Matcher backed by the given correction store.
func New(corrections CorrectionStore, opts ...Option) *Matcher {
	m := &Matcher{
		corrections:    corrections,
		threshold:      DefaultConfidenceThreshold,
		minCorrections: DefaultMinCorrections,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Classify runs learned overrides first, then the static category patterns.
// When the best confidence clears the threshold the result is final and
// ShouldUseAI is false; otherwise the caller should fall through to
// inference.
func (m *Matcher) Classify(userID, text string) Classification {
	if learned, ok := m.learnedCategory(userID, text); ok {
		return Classification{
			Category:   learned,
			Confidence: learnedConfidence,
			Learned:    true,
		}
	}

	var best Classification
	for _, p := range categoryPatterns {
		if p.weight <= best.Confidence {
			continue
		}
		if p.re.MatchString(text) {
			best.Category = p.category
			best.Confidence = p.weight
		}
	}

	if best.Confidence >= m.threshold {
		return best
	}
	return Classification{
		Category:    best.Category,
		Confidence:  best.Confidence,
		ShouldUseAI: true,
	}
}

// learnedCategory returns the category the user has corrected this text's
// words into at least minCorrections times. When several categories qualify
// the one with the most corrections wins.
func (m *Matcher) learnedCategory(userID, text string) (string, bool) {
	if m.corrections == nil {
		return "", false
	}

	words := Tokenize(text)
	if len(words) == 0 {
		return "", false
	}

	counts, err := m.corrections.CorrectionCounts(userID, words)
	if err != nil {
		slog.Warn("learned override lookup failed, falling back to static patterns", "error", err)
		return "", false
	}

	bestCategory := ""
	bestCount := 0
	for _, word := range words {
		for category, count := range counts[word] {
			if count < m.minCorrections {
				continue
			}
			if count > bestCount || (count == bestCount && category < bestCategory) {
				bestCategory = category
				bestCount = count
			}
		}
	}
	return bestCategory, bestCategory != ""
}

// LearnFromCorrection tokenizes the corrected text and increments the
// per-word counter for the category the user chose.
func (m *Matcher) LearnFromCorrection(userID, text, correctCategory string) error {
	if m.corrections == nil {
		return fmt.Errorf("no correction store configured")
	}
	for _, word := range Tokenize(text) {
		if err := m.corrections.RecordCorrection(userID, word, correctCategory); err != nil {
			return fmt.Errorf("recording correction for %q: %w", word, err)
		}
	}
	return nil
}

var urgencyRe = regexp.MustCompile(`(?i)\b(urgent|urgently|asap|immediately|critical|right away|overdue|must|need|needs|needed)\b`)
var hedgingRe = regexp.MustCompile(`(?i)\b(maybe|someday|eventually|might|one day|no rush|whenever|at some point)\b`)

// GetPriority maps urgency keywords to must and hedging keywords to could.
// The empty string means the matcher defers the decision to inference.
func (m *Matcher) GetPriority(text string) task.Priority {
	if urgencyRe.MatchString(text) {
		return task.PriorityMust
	}
	if hedgingRe.MatchString(text) {
		return task.PriorityCould
	}
	return ""
}
