package task

import "time"

// TimeSensitivity tags how urgent the language around a candidate reads.
type TimeSensitivity string

const (
	SensitivityHigh   TimeSensitivity = "high"
	SensitivityMedium TimeSensitivity = "medium"
	SensitivityLow    TimeSensitivity = "low"
)

// ContextMap is a read-mostly snapshot built once per pipeline run. It lives
// for the duration of the run and is never persisted.
type ContextMap struct {
	// Projects maps a project name to the candidate ids associated with it.
	Projects map[string][]string
	// Categories maps a category to the candidate ids classified into it.
	Categories map[string][]string
	// People lists person names mentioned across the capture.
	People []string
	// ImpliedDeadlines maps candidate id to a deadline implied by the text.
	ImpliedDeadlines map[string]time.Time
	// TimeSensitivity maps candidate id to an urgency-of-language tag.
	TimeSensitivity map[string]TimeSensitivity
}

// NewContextMap returns an empty ContextMap with all maps allocated.
func NewContextMap() *ContextMap {
	return &ContextMap{
		Projects:         make(map[string][]string),
		Categories:       make(map[string][]string),
		ImpliedDeadlines: make(map[string]time.Time),
		TimeSensitivity:  make(map[string]TimeSensitivity),
	}
}
