// Package scoring ranks task candidates by a deterministic weighted sum
// so the highest-value task of the day can be surfaced.
package scoring

import (
	"sort"
	"time"

	"github.com/Jay-Tejada/malunita/internal/heuristic"
	"github.com/Jay-Tejada/malunita/internal/task"
)

const (
	baseMust   = 10.0
	baseShould = 5.0
	baseCould  = 1.0

	todayBonus  = 3.0
	focusBonus  = 2.0
	effortBonus = 1.0
	tinyPenalty = 1.0

	// SuggestionMinTotal is the floor a candidate must clear before it can
	// be offered as the day's single focus task.
	SuggestionMinTotal = 5.0
)

// Candidate pairs an extracted task with its resolved priority and effort.
type Candidate struct {
	Task     task.Candidate
	Priority task.Priority
	Effort   task.Effort
}

// Options tune one scoring run.
type Options struct {
	Now         time.Time
	FocusTitles []string // recent "ONE thing" choices, newest first
	ContextBias bool     // whether history is allowed to alter scores
}

// Result carries the ranked scores plus the optional focus suggestion.
type Result struct {
	Scores     []task.Score
	Suggestion string // candidate id, empty when nothing clears the floor
}

// Score computes a total for every candidate and sorts descending with a
// stable sort. The suggestion is the highest total above the floor; ties
// go to the candidate extracted first.
func Score(cands []Candidate, prefs task.Preferences, opts Options) Result {
	res := Result{Scores: make([]task.Score, 0, len(cands))}

	bestTotal := 0.0
	for _, c := range cands {
		total := baseFor(c.Priority)

		if c.Task.ReminderTime != nil && sameDay(*c.Task.ReminderTime, opts.Now) {
			total += todayBonus
		}

		if opts.ContextBias && overlapsFocus(c.Task.Title, opts.FocusTitles) {
			total += focusBonus * affinityScale(prefs, c.Task.Category)
		}

		switch c.Effort {
		case task.EffortMedium, task.EffortSmall:
			total += effortBonus
		case task.EffortTiny:
			total -= tinyPenalty
		}

		res.Scores = append(res.Scores, task.Score{
			CandidateID: c.Task.ID,
			Priority:    c.Priority,
			Effort:      c.Effort,
			FiestaReady: c.Effort == task.EffortTiny,
			BigTask:     c.Effort == task.EffortLarge,
			Total:       total,
		})

		// strict > keeps the first-extracted candidate on ties
		if total > bestTotal && total > SuggestionMinTotal {
			bestTotal = total
			res.Suggestion = c.Task.ID
		}
	}

	sort.SliceStable(res.Scores, func(i, j int) bool {
		return res.Scores[i].Total > res.Scores[j].Total
	})
	return res
}

func baseFor(p task.Priority) float64 {
	switch p {
	case task.PriorityMust:
		return baseMust
	case task.PriorityShould:
		return baseShould
	default:
		return baseCould
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.In(b.Location()).Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// overlapsFocus reports whether the title shares at least one significant
// word with any recent focus task.
func overlapsFocus(title string, focusTitles []string) bool {
	words := heuristic.Tokenize(title)
	if len(words) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	for _, ft := range focusTitles {
		for _, w := range heuristic.Tokenize(ft) {
			if _, ok := set[w]; ok {
				return true
			}
		}
	}
	return false
}

// affinityScale grows the focus bonus by up to 2x when corrections have
// repeatedly landed in the candidate's category.
func affinityScale(prefs task.Preferences, category string) float64 {
	if category == "" {
		return 1
	}
	weight := 0.0
	for _, targets := range prefs.PreferredDestinations {
		weight += targets[category]
	}
	if weight > 1 {
		weight = 1
	}
	return 1 + weight
}
