package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jay-Tejada/malunita/internal/task"
)

var scoreNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func cand(id, title string, p task.Priority, e task.Effort) Candidate {
	return Candidate{
		Task:     task.Candidate{ID: id, Title: title},
		Priority: p,
		Effort:   e,
	}
}

func totalOf(t *testing.T, res Result, id string) float64 {
	t.Helper()
	for _, s := range res.Scores {
		if s.CandidateID == id {
			return s.Total
		}
	}
	t.Fatalf("no score for candidate %s", id)
	return 0
}

func TestScore_BaseTiers(t *testing.T) {
	res := Score([]Candidate{
		cand("a", "file the permit", task.PriorityMust, task.EffortMedium),
		cand("b", "tidy the desk", task.PriorityShould, task.EffortMedium),
		cand("c", "maybe repaint shelf", task.PriorityCould, task.EffortMedium),
	}, task.DefaultPreferences(), Options{Now: scoreNow})

	assert.Equal(t, 11.0, totalOf(t, res, "a"))
	assert.Equal(t, 6.0, totalOf(t, res, "b"))
	assert.Equal(t, 2.0, totalOf(t, res, "c"))
}

func TestScore_TodayBonus(t *testing.T) {
	today := time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)
	nextWeek := scoreNow.AddDate(0, 0, 7)

	due := cand("due", "submit the report", task.PriorityShould, task.EffortMedium)
	due.Task.ReminderTime = &today
	later := cand("later", "draft the roadmap", task.PriorityShould, task.EffortMedium)
	later.Task.ReminderTime = &nextWeek

	res := Score([]Candidate{due, later}, task.DefaultPreferences(), Options{Now: scoreNow})
	assert.Equal(t, totalOf(t, res, "later")+todayBonus, totalOf(t, res, "due"))
}

func TestScore_EffortAdjustments(t *testing.T) {
	res := Score([]Candidate{
		cand("tiny", "reply to dave", task.PriorityShould, task.EffortTiny),
		cand("small", "draft release notes", task.PriorityShould, task.EffortSmall),
		cand("large", "migrate the database", task.PriorityShould, task.EffortLarge),
	}, task.DefaultPreferences(), Options{Now: scoreNow})

	assert.Equal(t, 4.0, totalOf(t, res, "tiny"))
	assert.Equal(t, 6.0, totalOf(t, res, "small"))
	assert.Equal(t, 5.0, totalOf(t, res, "large"))

	for _, s := range res.Scores {
		switch s.CandidateID {
		case "tiny":
			assert.True(t, s.FiestaReady)
		case "large":
			assert.True(t, s.BigTask)
		}
	}
}

func TestScore_FocusOverlapRequiresContextBias(t *testing.T) {
	c := []Candidate{cand("a", "finish budget spreadsheet", task.PriorityShould, task.EffortMedium)}
	focus := []string{"review budget numbers"}

	unbiased := Score(c, task.DefaultPreferences(), Options{Now: scoreNow, FocusTitles: focus})
	biased := Score(c, task.DefaultPreferences(), Options{Now: scoreNow, FocusTitles: focus, ContextBias: true})

	assert.Equal(t, 6.0, totalOf(t, unbiased, "a"))
	assert.Equal(t, 6.0+focusBonus, totalOf(t, biased, "a"))
}

func TestScore_LearnedAffinityScalesFocusBonus(t *testing.T) {
	c := []Candidate{cand("a", "pay the water bill", task.PriorityShould, task.EffortMedium)}
	c[0].Task.Category = "home"
	focus := []string{"check water heater"}

	prefs := task.DefaultPreferences()
	prefs.PreferredDestinations = map[string]map[string]float64{
		"finance": {"home": 0.8},
	}

	res := Score(c, prefs, Options{Now: scoreNow, FocusTitles: focus, ContextBias: true})
	assert.Equal(t, 6.0+focusBonus*1.8, totalOf(t, res, "a"))
}

func TestScore_SuggestionThresholdAndTieBreak(t *testing.T) {
	t.Run("below floor", func(t *testing.T) {
		res := Score([]Candidate{
			cand("a", "maybe read that article", task.PriorityCould, task.EffortMedium),
		}, task.DefaultPreferences(), Options{Now: scoreNow})
		assert.Empty(t, res.Suggestion)
	})

	t.Run("first extracted wins ties", func(t *testing.T) {
		res := Score([]Candidate{
			cand("first", "call the bank", task.PriorityMust, task.EffortMedium),
			cand("second", "book the venue", task.PriorityMust, task.EffortMedium),
		}, task.DefaultPreferences(), Options{Now: scoreNow})
		assert.Equal(t, "first", res.Suggestion)
	})
}

func TestScore_StableDescendingOrder(t *testing.T) {
	res := Score([]Candidate{
		cand("low", "maybe sort photos", task.PriorityCould, task.EffortMedium),
		cand("hi", "renew insurance", task.PriorityMust, task.EffortMedium),
		cand("mid1", "plan the sprint", task.PriorityShould, task.EffortMedium),
		cand("mid2", "write standup notes", task.PriorityShould, task.EffortMedium),
	}, task.DefaultPreferences(), Options{Now: scoreNow})

	require.Len(t, res.Scores, 4)
	ids := []string{res.Scores[0].CandidateID, res.Scores[1].CandidateID, res.Scores[2].CandidateID, res.Scores[3].CandidateID}
	// equal-score candidates keep input order
	assert.Equal(t, []string{"hi", "mid1", "mid2", "low"}, ids)
}

func TestScore_Empty(t *testing.T) {
	res := Score(nil, task.DefaultPreferences(), Options{Now: scoreNow})
	assert.Empty(t, res.Scores)
	assert.Empty(t, res.Suggestion)
}
