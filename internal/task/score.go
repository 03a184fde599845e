package task

// Priority is the MoSCoW-style tier assigned to a candidate.
type Priority string

const (
	PriorityMust   Priority = "must"
	PriorityShould Priority = "should"
	PriorityCould  Priority = "could"
)

// Effort is the estimated size of a candidate.
type Effort string

const (
	EffortTiny   Effort = "tiny"
	EffortSmall  Effort = "small"
	EffortMedium Effort = "medium"
	EffortLarge  Effort = "large"
)

// Score is the scoring result for one candidate. Priority and Effort are
// always set together; FiestaReady (safe to batch with other tiny tasks)
// requires tiny effort.
type Score struct {
	CandidateID string   `json:"candidate_id"`
	Priority    Priority `json:"priority"`
	Effort      Effort   `json:"effort"`
	FiestaReady bool     `json:"fiesta_ready"`
	BigTask     bool     `json:"big_task"`
	Total       float64  `json:"total"`
}

// Valid reports whether the score satisfies its structural invariants:
// no partial scores, and fiesta-ready implies tiny effort.
func (s Score) Valid() bool {
	if s.Priority == "" || s.Effort == "" {
		return false
	}
	if s.FiestaReady && s.Effort != EffortTiny {
		return false
	}
	return true
}
