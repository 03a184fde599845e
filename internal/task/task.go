// Package task holds the domain types shared across the capture pipeline:
// captures, extracted candidates, scores, agenda routing, clarification
// questions, feedback signals, and learned preferences.
package task

import "time"

// InputMethod records how a capture entered the system.
type InputMethod string

const (
	InputText   InputMethod = "text"
	InputVoice  InputMethod = "voice"
	InputImport InputMethod = "import"
)

// Capture is one raw piece of user input. It is immutable once created and
// is the sole input to a pipeline run.
type Capture struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Text        string      `json:"text"`
	InputMethod InputMethod `json:"input_method"`
	BucketHint  string      `json:"bucket_hint,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Candidate is an extracted, not-yet-persisted task derived from a capture.
// Zero or more candidates come out of one capture. The pipeline run owns a
// candidate until it is persisted.
type Candidate struct {
	ID               string     `json:"id"`
	CaptureID        string     `json:"capture_id"`
	Title            string     `json:"title"`
	Category         string     `json:"category,omitempty"`
	CustomCategoryID string     `json:"custom_category_id,omitempty"`
	ReminderTime     *time.Time `json:"reminder_time,omitempty"`
}
