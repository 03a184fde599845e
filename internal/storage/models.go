package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// TaskRecord is a persisted task: an extracted candidate together with its
// score and agenda bucket. Ownership of a candidate transfers to storage
// once a TaskRecord is written.
type TaskRecord struct {
	ID               string
	CaptureID        string
	UserID           string
	Title            string
	Category         string
	CustomCategoryID string
	ReminderTime     *time.Time
	Priority         string
	Effort           string
	FiestaReady      bool
	BigTask          bool
	Bucket           string
	Score            float64
	CreatedAt        time.Time
}

// FocusChoice records an accepted "ONE thing" suggestion. Recent choices
// feed the scorer's focus-overlap bonus.
type FocusChoice struct {
	ID       string
	UserID   string
	Title    string
	ChosenAt time.Time
}

// Job types handled by the background worker.
const (
	JobImportDocument    = "import_document"
	JobAggregateLearning = "aggregate_learning"
)

// Job is one unit of background work in the SQLite job queue.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
