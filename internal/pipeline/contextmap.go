package pipeline

import (
	"regexp"
	"strings"
	"time"

	"github.com/Jay-Tejada/malunita/internal/heuristic"
	"github.com/Jay-Tejada/malunita/internal/task"
)

var (
	// "the Acme project" / "project Acme"
	projectBeforeRe = regexp.MustCompile(`\b([A-Z][A-Za-z0-9]+)\s+project\b`)
	projectAfterRe  = regexp.MustCompile(`\bproject\s+([A-Z][A-Za-z0-9]+)\b`)

	// a capitalized name following a preposition or contact verb
	personRe = regexp.MustCompile(`\b(?:with|to|for|from|about|ask|tell|call|email|text|ping|meet)\s+([A-Z][a-z]+)\b`)
)

// notPeople filters calendar words the person regex would otherwise catch.
var notPeople = map[string]struct{}{
	"monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {}, "friday": {},
	"saturday": {}, "sunday": {}, "january": {}, "february": {}, "march": {},
	"april": {}, "may": {}, "june": {}, "july": {}, "august": {}, "september": {},
	"october": {}, "november": {}, "december": {}, "today": {}, "tomorrow": {},
}

// buildContextMap snapshots per-run context: project and category groupings,
// people mentioned, implied deadlines and urgency-of-language tags.
func (r *Runner) buildContextMap(capture task.Capture, candidates []task.Candidate, now time.Time) *task.ContextMap {
	cm := task.NewContextMap()

	for _, name := range extractProjects(capture.Text) {
		cm.Projects[name] = nil
	}

	for _, c := range candidates {
		for _, name := range extractProjects(c.Title) {
			cm.Projects[name] = append(cm.Projects[name], c.ID)
		}
		if c.Category != "" {
			cm.Categories[c.Category] = append(cm.Categories[c.Category], c.ID)
		}
		if c.ReminderTime != nil {
			cm.ImpliedDeadlines[c.ID] = *c.ReminderTime
		} else if d := heuristic.ExtractDeadline(c.Title, now); d != nil {
			cm.ImpliedDeadlines[c.ID] = *d
		}
		cm.TimeSensitivity[c.ID] = r.sensitivityFor(c.Title)
	}

	cm.People = extractPeople(capture.Text)
	return cm
}

func (r *Runner) sensitivityFor(title string) task.TimeSensitivity {
	switch r.matcher.GetPriority(title) {
	case task.PriorityMust:
		return task.SensitivityHigh
	case task.PriorityCould:
		return task.SensitivityLow
	default:
		return task.SensitivityMedium
	}
}

func extractProjects(text string) []string {
	var names []string
	seen := map[string]struct{}{}
	for _, re := range []*regexp.Regexp{projectBeforeRe, projectAfterRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			name := strings.ToLower(m[1])
			if name == "the" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

func extractPeople(text string) []string {
	var people []string
	seen := map[string]struct{}{}
	for _, m := range personRe.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if _, skip := notPeople[strings.ToLower(name)]; skip {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		people = append(people, name)
	}
	return people
}
