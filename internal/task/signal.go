package task

import (
	"encoding/json"
	"time"
)

// SignalType is the kind of discrete feedback event a user action produces.
type SignalType string

const (
	SignalDestinationCorrection  SignalType = "destination_correction"
	SignalSummaryEdit            SignalType = "summary_edit"
	SignalDecompositionRejection SignalType = "decomposition_rejection"
	SignalSuggestionIgnored      SignalType = "suggestion_ignored"
	SignalExpansionPattern       SignalType = "expansion_pattern"
	SignalTaskCompleted          SignalType = "task_completed"
)

// KnownSignalTypes lists every accepted signal type.
var KnownSignalTypes = []SignalType{
	SignalDestinationCorrection,
	SignalSummaryEdit,
	SignalDecompositionRejection,
	SignalSuggestionIgnored,
	SignalExpansionPattern,
	SignalTaskCompleted,
}

// Signal is one append-only feedback event. Signals are never mutated, only
// aggregated and eventually pruned by age.
type Signal struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Type      SignalType      `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// DestinationCorrectionPayload is the payload of a destination_correction
// signal: the user moved a task from one category to another.
type DestinationCorrectionPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text,omitempty"`
}

// SummaryEditPayload is the payload of a summary_edit signal.
type SummaryEditPayload struct {
	Original string `json:"original"`
	Edited   string `json:"edited"`
}

// TaskCompletedPayload is the payload of a task_completed signal.
type TaskCompletedPayload struct {
	Edited bool `json:"edited"`
}
