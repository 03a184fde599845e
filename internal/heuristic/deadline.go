package heuristic

import (
	"regexp"
	"strconv"
	"time"
)

var (
	weekdayRe  = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	todayRe    = regexp.MustCompile(`(?i)\b(today|tonight|end of day|eod)\b`)
	tomorrowRe = regexp.MustCompile(`(?i)\btomorrow\b`)
	inDaysRe   = regexp.MustCompile(`(?i)\bin (\d{1,3}) days?\b`)
	nextWeekRe = regexp.MustCompile(`(?i)\bnext week\b`)
)

// ExtractDeadline resolves relative date phrases against now, normalized to
// the end of the resolved day (23:59:59 local). Named weekdays are judged
// too ambiguous for a regex and return nil so inference resolves them.
func ExtractDeadline(text string, now time.Time) *time.Time {
	if weekdayRe.MatchString(text) {
		return nil
	}

	switch {
	case todayRe.MatchString(text):
		return endOfDay(now)
	case tomorrowRe.MatchString(text):
		return endOfDay(now.AddDate(0, 0, 1))
	case nextWeekRe.MatchString(text):
		return endOfDay(now.AddDate(0, 0, 7))
	}

	if m := inDaysRe.FindStringSubmatch(text); m != nil {
		days, err := strconv.Atoi(m[1])
		if err == nil && days > 0 {
			return endOfDay(now.AddDate(0, 0, days))
		}
	}

	return nil
}

func endOfDay(t time.Time) *time.Time {
	eod := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
	return &eod
}
