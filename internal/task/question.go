package task

// QuestionType identifies which missing or ambiguous field a clarification
// question targets.
type QuestionType string

const (
	QuestionDeadline QuestionType = "deadline"
	QuestionCategory QuestionType = "category"
	QuestionProject  QuestionType = "project"
	QuestionPriority QuestionType = "priority"
	QuestionAgenda   QuestionType = "agenda"
)

// Question is one targeted clarification question. Questions are ephemeral
// UI-facing output; they are never persisted beyond the current session.
type Question struct {
	CandidateID string       `json:"candidate_id"`
	Text        string       `json:"text"`
	Type        QuestionType `json:"type"`
}
