package agenda

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jay-Tejada/malunita/internal/task"
)

var routeNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func at(days int) *time.Time {
	t := routeNow.AddDate(0, 0, days)
	return &t
}

func TestRoute_Buckets(t *testing.T) {
	tests := []struct {
		name     string
		reminder *time.Time
		priority task.Priority
		want     task.Bucket
	}{
		{"due today", at(0), task.PriorityMust, task.BucketToday},
		{"past due", at(-2), task.PriorityShould, task.BucketToday},
		{"due tomorrow", at(1), task.PriorityShould, task.BucketTomorrow},
		{"due in three days", at(3), task.PriorityShould, task.BucketThisWeek},
		{"due in exactly seven days", at(7), task.PriorityShould, task.BucketThisWeek},
		{"due in eight days", at(8), task.PriorityShould, task.BucketUpcoming},
		{"no date could", nil, task.PriorityCould, task.BucketSomeday},
		{"no date must", nil, task.PriorityMust, task.BucketUpcoming},
		{"no date should", nil, task.PriorityShould, task.BucketUpcoming},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := task.Candidate{ID: "c1", Title: "x", ReminderTime: tt.reminder}
			s := []task.Score{{CandidateID: "c1", Priority: tt.priority, Effort: task.EffortMedium}}

			r := Route([]task.Candidate{c}, s, routeNow)
			assert.Equal(t, tt.want, r["c1"])
		})
	}
}

func TestRoute_DateWinsOverPriority(t *testing.T) {
	c := task.Candidate{ID: "c1", Title: "x", ReminderTime: at(0)}
	s := []task.Score{{CandidateID: "c1", Priority: task.PriorityCould, Effort: task.EffortMedium}}

	r := Route([]task.Candidate{c}, s, routeNow)
	assert.Equal(t, task.BucketToday, r["c1"])
}

func TestRoute_LateEveningReminder(t *testing.T) {
	// 23:59 tomorrow is still tomorrow even though it is under 48h away
	late := time.Date(2026, 3, 11, 23, 59, 59, 0, time.UTC)
	c := task.Candidate{ID: "c1", Title: "x", ReminderTime: &late}

	r := Route([]task.Candidate{c}, nil, routeNow)
	assert.Equal(t, task.BucketTomorrow, r["c1"])
}

func TestRoute_Totality(t *testing.T) {
	var candidates []task.Candidate
	var scores []task.Score
	reminders := []*time.Time{nil, at(-1), at(0), at(1), at(4), at(7), at(10), at(45), nil, nil}
	priorities := []task.Priority{task.PriorityMust, task.PriorityShould, task.PriorityCould}

	for i, rem := range reminders {
		id := fmt.Sprintf("c%d", i)
		candidates = append(candidates, task.Candidate{ID: id, Title: "x", ReminderTime: rem})
		scores = append(scores, task.Score{CandidateID: id, Priority: priorities[i%len(priorities)], Effort: task.EffortMedium})
	}

	r := Route(candidates, scores, routeNow)
	require.True(t, r.Covers(candidates))

	total := 0
	for _, b := range task.Buckets {
		total += len(r.IDs(b))
	}
	assert.Equal(t, len(candidates), total)
}

func TestRoute_MissingScoreDefaultsUpcoming(t *testing.T) {
	c := task.Candidate{ID: "orphan", Title: "x"}
	r := Route([]task.Candidate{c}, nil, routeNow)
	assert.Equal(t, task.BucketUpcoming, r["orphan"])
}
