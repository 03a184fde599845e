package relevance

import (
	"log/slog"

	"github.com/Jay-Tejada/malunita/internal/heuristic"
)

// Level says how strongly historical context may shape the current run.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
	LevelNone   Level = "none"
)

// BiasesScoring reports whether this level is allowed to alter priority
// scoring. Low and none are reported to the user but never change scores.
func (l Level) BiasesScoring() bool {
	return l == LevelHigh || l == LevelMedium
}

// DefaultRetrievalThreshold is the minimum score for prior context to be
// pulled into the analysis at all.
const DefaultRetrievalThreshold = 0.7

// Result is the gate's verdict for one capture.
type Result struct {
	Score     float64
	Retrieved bool
	Influence Level
}

// Gate decides whether prior captures and tasks should influence the
// analysis of a new one.
type Gate struct {
	threshold float64
}

func NewGate(retrievalThreshold float64) *Gate {
	if retrievalThreshold <= 0 {
		retrievalThreshold = DefaultRetrievalThreshold
	}
	return &Gate{threshold: retrievalThreshold}
}

// Evaluate scores the capture text against the memory index and maps the
// score to an influence level.
func (g *Gate) Evaluate(text string, idx *Index) Result {
	score := 0.0
	if idx != nil {
		score = idx.score(heuristic.Tokenize(text))
	}
	r := Result{
		Score:     score,
		Retrieved: score >= g.threshold,
		Influence: levelFor(score),
	}
	if !r.Influence.BiasesScoring() && r.Influence != LevelNone {
		slog.Debug("weak context match, reporting only", "score", score, "influence", r.Influence)
	}
	return r
}

func levelFor(score float64) Level {
	switch {
	case score >= 0.85:
		return LevelHigh
	case score >= 0.70:
		return LevelMedium
	case score >= 0.40:
		return LevelLow
	default:
		return LevelNone
	}
}
