package inference

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTimeout bounds one analysis call. The pipeline falls back to
// heuristic-only output when the gateway cannot answer in time.
const DefaultTimeout = 10 * time.Second

// Known emotional tones. Anything else reported by the model is dropped to
// the empty string.
const (
	ToneNeutral     = "neutral"
	ToneFocused     = "focused"
	ToneOverwhelmed = "overwhelmed"
	ToneExcited     = "excited"
	ToneStressed    = "stressed"
)

var knownTones = map[string]struct{}{
	ToneNeutral: {}, ToneFocused: {}, ToneOverwhelmed: {}, ToneExcited: {}, ToneStressed: {},
}

// ExtractedTask is one task the model pulled out of the capture.
type ExtractedTask struct {
	Title        string `json:"title"`
	Category     string `json:"category"`
	ReminderTime string `json:"reminder_time"` // RFC 3339 or empty
}

// Analysis is the structured result of one inference call. The zero value
// means the gateway could not produce an analysis and the caller should
// proceed with heuristic results only.
type Analysis struct {
	Summary       string          `json:"summary"`
	Topics        []string        `json:"topics"`
	Insights      []string        `json:"insights"`
	Decisions     []string        `json:"decisions"`
	Ideas         []string        `json:"ideas"`
	Followups     []string        `json:"followups"`
	Questions     []string        `json:"questions"`
	EmotionalTone string          `json:"emotional_tone"`
	Tasks         []ExtractedTask `json:"tasks"`
}

// Empty reports whether the analysis carries no usable content.
func (a Analysis) Empty() bool {
	return a.Summary == "" && len(a.Tasks) == 0 && len(a.Topics) == 0
}

// Gateway runs capture analysis against a chat backend.
type Gateway struct {
	client  Chatter
	model   string
	timeout time.Duration
}

// NewGateway creates a Gateway. A non-positive timeout falls back to
// DefaultTimeout.
func NewGateway(client Chatter, model string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{client: client, model: model, timeout: timeout}
}

// Analyze asks the model for a structured analysis of the capture text.
// On any failure (timeout, transport error, malformed JSON) it returns a
// zero-value Analysis; the pipeline must not block on inference failures.
func (g *Gateway) Analyze(ctx context.Context, text string, priorContext string) Analysis {
	if text == "" {
		return Analysis{}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.client.Chat(ctx, g.model, buildPrompt(text, priorContext), analysisSchema())
	if err != nil {
		slog.Warn("inference analysis failed, proceeding heuristic-only", "error", err)
		return Analysis{}
	}

	analysis, err := ParseAnalysis(raw)
	if err != nil {
		slog.Warn("failed to parse analysis from model response", "error", err, "response", raw)
		return Analysis{}
	}
	return analysis
}

func buildPrompt(text, priorContext string) []Message {
	system := "You analyse a short piece of captured text and extract actionable tasks. " +
		"Respond with a single JSON object matching the requested schema. " +
		"Resolve relative dates (including named weekdays) to RFC 3339 timestamps. " +
		"Do not invent tasks that are not present in the text."
	if priorContext != "" {
		system += "\n\nRelevant prior context:\n" + priorContext
	}

	return []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: fmt.Sprintf("Capture:\n%s", text)},
	}
}

// analysisSchema returns the JSON schema for structured analysis output.
func analysisSchema() *Schema {
	return &Schema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"summary":        {Type: "string", Description: "One-sentence summary of the capture"},
			"topics":         {Type: "array", Description: "Semantic topic tags"},
			"insights":       {Type: "array", Description: "Notable observations"},
			"decisions":      {Type: "array", Description: "Decisions stated in the text"},
			"ideas":          {Type: "array", Description: "Ideas that are not yet tasks"},
			"followups":      {Type: "array", Description: "Follow-up actions implied by the text"},
			"questions":      {Type: "array", Description: "Open questions raised by the text"},
			"emotional_tone": {Type: "string", Description: "One of: neutral, focused, overwhelmed, excited, stressed"},
			"tasks":          {Type: "array", Description: "Extracted tasks with title, category, reminder_time"},
		},
		Required: []string{"summary", "topics", "emotional_tone", "tasks"},
	}
}
