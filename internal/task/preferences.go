package task

import "time"

// Granularity is the user's preferred level of task decomposition.
type Granularity string

const (
	GranularityCoarse   Granularity = "coarse"
	GranularityBalanced Granularity = "balanced"
	GranularityDetailed Granularity = "detailed"
)

// DefaultDecompositionThreshold is the auto-decomposition trigger level used
// until repeated rejections raise it.
const DefaultDecompositionThreshold = 0.7

// Preferences is the output of a learning aggregation run. One record per
// user, recomputed wholesale and overwritten on each run.
type Preferences struct {
	// PreferredDestinations accumulates decay-weighted destination
	// corrections: from-category → to-category → weight.
	PreferredDestinations  map[string]map[string]float64 `json:"preferred_destinations"`
	TaskGranularity        Granularity                   `json:"task_granularity"`
	DecompositionThreshold float64                       `json:"decomposition_threshold"`
	ConfidenceBias         float64                       `json:"confidence_bias"`
	EditFrequency          float64                       `json:"edit_frequency"`
	ComputedAt             time.Time                     `json:"computed_at"`
}

// DefaultPreferences returns the neutral preferences used before any
// aggregation has run.
func DefaultPreferences() Preferences {
	return Preferences{
		PreferredDestinations:  make(map[string]map[string]float64),
		TaskGranularity:        GranularityBalanced,
		DecompositionThreshold: DefaultDecompositionThreshold,
	}
}

// DestinationWeight returns the learned weight for a from→to category pair,
// or zero when no corrections have accumulated.
func (p Preferences) DestinationWeight(from, to string) float64 {
	if p.PreferredDestinations == nil {
		return 0
	}
	return p.PreferredDestinations[from][to]
}
