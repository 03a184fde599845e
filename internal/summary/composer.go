// Package summary renders one pipeline run as a human-readable report.
// The report is a view over the run's outputs, never a source of truth.
package summary

import (
	"fmt"
	"strings"
	"time"

	"github.com/Jay-Tejada/malunita/internal/inference"
	"github.com/Jay-Tejada/malunita/internal/relevance"
	"github.com/Jay-Tejada/malunita/internal/task"
)

// PreviewChars bounds how much raw capture text the overview quotes.
const PreviewChars = 200

// Report collects everything one pipeline run produced.
type Report struct {
	Capture     task.Capture
	Analysis    inference.Analysis
	Relevance   relevance.Result
	Candidates  []task.Candidate
	Scores      []task.Score
	Routing     task.Routing
	Suggestion  string // candidate id of the day's focus pick, may be empty
	Questions   []task.Question
	GeneratedAt time.Time
}

// Compose renders the report as markdown with a fixed section order:
// overview, analysis, context, priorities, agenda, clarifications.
func Compose(r Report) string {
	titles := make(map[string]string, len(r.Candidates))
	for _, c := range r.Candidates {
		titles[c.ID] = c.Title
	}

	var b strings.Builder
	b.WriteString("# Capture Summary\n\n")

	writeOverview(&b, r, titles)
	writeAnalysis(&b, r.Analysis)
	writeContext(&b, r.Relevance)
	writePriorities(&b, r, titles)
	writeAgenda(&b, r, titles)
	writeClarifications(&b, r.Questions)

	return b.String()
}

func writeOverview(b *strings.Builder, r Report, titles map[string]string) {
	b.WriteString("## Overview\n\n")
	preview, _ := Truncate(strings.TrimSpace(r.Capture.Text), PreviewChars)
	fmt.Fprintf(b, "> %s\n\n", strings.ReplaceAll(preview, "\n", " "))
	fmt.Fprintf(b, "Captured %s via %s. %d task(s) extracted.\n\n",
		r.Capture.CreatedAt.Format("2006-01-02 15:04"), r.Capture.InputMethod, len(r.Candidates))
	if r.Suggestion != "" {
		if title, ok := titles[r.Suggestion]; ok {
			fmt.Fprintf(b, "**Today's ONE thing:** %s\n\n", title)
		}
	}
}

func writeAnalysis(b *strings.Builder, a inference.Analysis) {
	b.WriteString("## Analysis\n\n")
	if a.Empty() {
		b.WriteString("Handled by fast heuristics; no model analysis was needed.\n\n")
		return
	}
	if a.Summary != "" {
		fmt.Fprintf(b, "%s\n\n", a.Summary)
	}
	if len(a.Topics) > 0 {
		fmt.Fprintf(b, "Topics: %s\n\n", strings.Join(a.Topics, ", "))
	}
	if a.EmotionalTone != "" && a.EmotionalTone != inference.ToneNeutral {
		fmt.Fprintf(b, "Tone: %s\n\n", a.EmotionalTone)
	}
	writeList(b, "Insights", a.Insights)
	writeList(b, "Decisions", a.Decisions)
	writeList(b, "Ideas", a.Ideas)
	writeList(b, "Follow-ups", a.Followups)
}

func writeContext(b *strings.Builder, rel relevance.Result) {
	b.WriteString("## Context\n\n")
	if rel.Influence == relevance.LevelNone {
		b.WriteString("No related history found.\n\n")
		return
	}
	fmt.Fprintf(b, "Related to recent activity (%s match, score %.2f).\n", rel.Influence, rel.Score)
	if rel.Influence.BiasesScoring() {
		b.WriteString("Recent focus choices influenced today's priorities.\n")
	}
	b.WriteString("\n")
}

func writePriorities(b *strings.Builder, r Report, titles map[string]string) {
	b.WriteString("## Priorities\n\n")
	if len(r.Scores) == 0 {
		b.WriteString("Nothing to rank.\n\n")
		return
	}
	for _, s := range r.Scores {
		title := titles[s.CandidateID]
		fmt.Fprintf(b, "- **%s**: %s / %s (%.1f)", title, s.Priority, s.Effort, s.Total)
		if s.FiestaReady {
			b.WriteString(" · quick win")
		}
		if s.BigTask {
			b.WriteString(" · big task")
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func writeAgenda(b *strings.Builder, r Report, titles map[string]string) {
	b.WriteString("## Agenda\n\n")
	any := false
	for _, bucket := range task.Buckets {
		ids := r.Routing.IDs(bucket)
		if len(ids) == 0 {
			continue
		}
		any = true
		fmt.Fprintf(b, "**%s**\n", bucketLabel(bucket))
		// keep extraction order inside each bucket
		for _, c := range r.Candidates {
			if r.Routing[c.ID] == bucket {
				fmt.Fprintf(b, "- %s\n", titles[c.ID])
			}
		}
		b.WriteString("\n")
	}
	if !any {
		b.WriteString("Nothing scheduled.\n\n")
	}
}

func writeClarifications(b *strings.Builder, qs []task.Question) {
	b.WriteString("## Clarifications\n\n")
	if len(qs) == 0 {
		b.WriteString("No open questions.\n")
		return
	}
	for i, q := range qs {
		fmt.Fprintf(b, "%d. %s\n", i+1, q.Text)
	}
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", heading)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}

func bucketLabel(bucket task.Bucket) string {
	switch bucket {
	case task.BucketToday:
		return "Today"
	case task.BucketTomorrow:
		return "Tomorrow"
	case task.BucketThisWeek:
		return "This week"
	case task.BucketUpcoming:
		return "Upcoming"
	default:
		return "Someday"
	}
}
