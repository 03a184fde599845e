package relevance

import (
	"math"
	"time"

	"github.com/Jay-Tejada/malunita/internal/heuristic"
)

// Item is one piece of prior user history worth matching against:
// a stored task title, a recent capture, or a focus choice.
type Item struct {
	Text      string
	Category  string
	CreatedAt time.Time
}

type entry struct {
	terms  map[string]struct{}
	weight float64
}

// Index holds tokenized recent history, recency-weighted so that a
// month-old match counts half as much as a fresh one.
type Index struct {
	entries []entry
}

// DefaultHalfLifeDays matches the learning aggregator's decay window.
const DefaultHalfLifeDays = 30.0

// NewIndex tokenizes items and assigns each a decay weight relative to now.
// Items with no usable terms are skipped.
func NewIndex(items []Item, now time.Time, halfLifeDays float64) *Index {
	if halfLifeDays <= 0 {
		halfLifeDays = DefaultHalfLifeDays
	}
	idx := &Index{}
	for _, it := range items {
		words := heuristic.Tokenize(it.Text)
		if it.Category != "" {
			words = append(words, it.Category)
		}
		if len(words) == 0 {
			continue
		}
		terms := make(map[string]struct{}, len(words))
		for _, w := range words {
			terms[w] = struct{}{}
		}
		ageDays := now.Sub(it.CreatedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		idx.entries = append(idx.entries, entry{
			terms:  terms,
			weight: math.Pow(0.5, ageDays/halfLifeDays),
		})
	}
	return idx
}

// Len reports how many usable history entries the index holds.
func (idx *Index) Len() int { return len(idx.entries) }

// score returns the best recency-weighted overlap in [0,1] between the
// capture terms and any single history entry.
func (idx *Index) score(captureTerms []string) float64 {
	if len(captureTerms) == 0 || len(idx.entries) == 0 {
		return 0
	}
	best := 0.0
	for _, e := range idx.entries {
		matched := 0
		for _, t := range captureTerms {
			if _, ok := e.terms[t]; ok {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		union := len(e.terms) + len(captureTerms) - matched
		s := float64(matched) / float64(union) * e.weight
		if s > best {
			best = s
		}
	}
	if best > 1 {
		best = 1
	}
	return best
}
