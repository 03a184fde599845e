// Package agenda partitions scored candidates into time buckets.
package agenda

import (
	"time"

	"github.com/Jay-Tejada/malunita/internal/task"
)

// Route assigns every candidate to exactly one bucket. Rules apply in
// order, first match wins:
//
//	scheduled today            -> today
//	scheduled tomorrow         -> tomorrow
//	scheduled within 7 days    -> this_week
//	scheduled any future date  -> upcoming
//	no date, priority could    -> someday
//	everything else            -> upcoming
func Route(candidates []task.Candidate, scores []task.Score, now time.Time) task.Routing {
	priorities := make(map[string]task.Priority, len(scores))
	for _, s := range scores {
		priorities[s.CandidateID] = s.Priority
	}

	r := make(task.Routing, len(candidates))
	for _, c := range candidates {
		r[c.ID] = bucketFor(c, priorities[c.ID], now)
	}
	return r
}

func bucketFor(c task.Candidate, p task.Priority, now time.Time) task.Bucket {
	if c.ReminderTime != nil {
		due := *c.ReminderTime
		switch days := daysUntil(now, due); {
		case days <= 0:
			// past-due dates surface immediately rather than disappearing
			return task.BucketToday
		case days == 1:
			return task.BucketTomorrow
		case days <= 7:
			return task.BucketThisWeek
		default:
			return task.BucketUpcoming
		}
	}
	if p == task.PriorityCould {
		return task.BucketSomeday
	}
	return task.BucketUpcoming
}

// daysUntil counts calendar-day boundaries between now and due, in due's
// location. Same day is 0, tomorrow is 1, yesterday is -1.
func daysUntil(now, due time.Time) int {
	loc := due.Location()
	n := now.In(loc)
	startNow := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	startDue := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, loc)
	return int(startDue.Sub(startNow).Hours() / 24)
}
