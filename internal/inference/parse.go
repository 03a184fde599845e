package inference

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ParseAnalysis robustly extracts an Analysis from a model response. Small
// local models frequently wrap JSON in markdown code fences or prepend
// conversational filler. The parser:
//  1. Strips markdown code fences if present (```json ... ```)
//  2. Finds the first { and last } to extract the JSON object
//  3. Unmarshals and validates-and-defaults the result
func ParseAnalysis(resp string) (Analysis, error) {
	s := strings.TrimSpace(resp)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return Analysis{}, fmt.Errorf("no JSON object in response")
	}

	var a Analysis
	if err := json.Unmarshal([]byte(s[start:end+1]), &a); err != nil {
		return Analysis{}, fmt.Errorf("unmarshal analysis: %w", err)
	}

	sanitize(&a)
	return a, nil
}

// sanitize enforces the analysis contract instead of trusting shape at
// runtime: unknown tones are dropped, tasks without a title are removed,
// and unparseable reminder times are cleared.
func sanitize(a *Analysis) {
	a.EmotionalTone = strings.ToLower(strings.TrimSpace(a.EmotionalTone))
	if _, ok := knownTones[a.EmotionalTone]; !ok {
		a.EmotionalTone = ""
	}

	kept := a.Tasks[:0]
	for _, t := range a.Tasks {
		t.Title = strings.TrimSpace(t.Title)
		if t.Title == "" {
			continue
		}
		if t.ReminderTime != "" {
			if _, err := time.Parse(time.RFC3339, t.ReminderTime); err != nil {
				t.ReminderTime = ""
			}
		}
		kept = append(kept, t)
	}
	a.Tasks = kept
}
