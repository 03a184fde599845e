// Package clarify turns gaps in a scored task set into a short list of
// targeted questions.
package clarify

import (
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strings"

	"github.com/Jay-Tejada/malunita/internal/inference"
	"github.com/Jay-Tejada/malunita/internal/task"
)

// DefaultMaxQuestions caps how many questions one run may produce.
const DefaultMaxQuestions = 3

var urgencyWordsRe = regexp.MustCompile(`(?i)\b(important|need|needs|should|must)\b`)

// Input is everything the prompter inspects for one run.
type Input struct {
	Candidates []task.Candidate
	Scores     []task.Score
	Context    *task.ContextMap
	Tone       string
}

// Result is the bounded question list for one run.
type Result struct {
	Questions          []task.Question
	NeedsClarification bool
	TotalQuestions     int
}

// Prompter emits clarification questions. The injected random source
// picks wording only; which candidates get asked is fully deterministic.
type Prompter struct {
	maxQuestions int
	rng          *rand.Rand
}

func New(maxQuestions int, rng *rand.Rand) *Prompter {
	if maxQuestions <= 0 {
		maxQuestions = DefaultMaxQuestions
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Prompter{maxQuestions: maxQuestions, rng: rng}
}

// Prompt evaluates the question rules in priority order and stops as soon
// as the cap is reached. Candidates are visited in extraction order so
// repeated runs over the same input ask about the same candidates.
func (p *Prompter) Prompt(in Input) Result {
	priorities := make(map[string]task.Priority, len(in.Scores))
	for _, s := range in.Scores {
		priorities[s.CandidateID] = s.Priority
	}

	var qs []task.Question
	full := func() bool { return len(qs) >= p.maxQuestions }

	// missing deadline on a must/should candidate
	for _, c := range in.Candidates {
		if full() {
			break
		}
		pr := priorities[c.ID]
		if (pr == task.PriorityMust || pr == task.PriorityShould) && c.ReminderTime == nil {
			qs = append(qs, p.question(c.ID, task.QuestionDeadline, c.Title))
		}
	}

	// missing category
	for _, c := range in.Candidates {
		if full() {
			break
		}
		if c.Category == "" && c.CustomCategoryID == "" {
			qs = append(qs, p.question(c.ID, task.QuestionCategory, c.Title))
		}
	}

	// title mentions a known project the candidate is not linked to
	if in.Context != nil {
		names := make([]string, 0, len(in.Context.Projects))
		for name := range in.Context.Projects {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, c := range in.Candidates {
			if full() {
				break
			}
			for _, name := range names {
				if !strings.Contains(strings.ToLower(c.Title), strings.ToLower(name)) {
					continue
				}
				if containsID(in.Context.Projects[name], c.ID) {
					continue
				}
				qs = append(qs, p.projectQuestion(c.ID, c.Title, name))
				break
			}
		}
	}

	// could-priority title that reads urgent
	for _, c := range in.Candidates {
		if full() {
			break
		}
		if priorities[c.ID] == task.PriorityCould && urgencyWordsRe.MatchString(c.Title) {
			qs = append(qs, p.question(c.ID, task.QuestionPriority, c.Title))
		}
	}

	// an overwhelmed user gets at most one gentle scheduling nudge
	if !full() && in.Tone == inference.ToneOverwhelmed {
		for _, c := range in.Candidates {
			if priorities[c.ID] == task.PriorityShould && c.ReminderTime == nil {
				qs = append(qs, p.question(c.ID, task.QuestionAgenda, c.Title))
				break
			}
		}
	}

	return Result{
		Questions:          qs,
		NeedsClarification: len(qs) > 0,
		TotalQuestions:     len(qs),
	}
}

var phrasings = map[task.QuestionType][]string{
	task.QuestionDeadline: {
		"When does %q need to be done?",
		"Is there a deadline for %q?",
		"Any date attached to %q?",
	},
	task.QuestionCategory: {
		"Where does %q belong?",
		"What kind of task is %q?",
		"Which area should %q go under?",
	},
	task.QuestionPriority: {
		"%q sounds urgent but is marked low priority. Bump it up?",
		"Should %q actually be a higher priority?",
	},
	task.QuestionAgenda: {
		"Want to put %q on the agenda so it stops taking up headspace?",
		"Should I schedule %q for you?",
	},
}

var projectPhrasings = []string{
	"Does %q belong to the %s project?",
	"Should %q be filed under %s?",
}

func (p *Prompter) question(candidateID string, typ task.QuestionType, title string) task.Question {
	set := phrasings[typ]
	return task.Question{
		CandidateID: candidateID,
		Type:        typ,
		Text:        fmt.Sprintf(set[p.rng.Intn(len(set))], title),
	}
}

func (p *Prompter) projectQuestion(candidateID, title, project string) task.Question {
	return task.Question{
		CandidateID: candidateID,
		Type:        task.QuestionProject,
		Text:        fmt.Sprintf(projectPhrasings[p.rng.Intn(len(projectPhrasings))], title, project),
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
