package heuristic

import (
	"regexp"
	"strconv"
	"unicode/utf8"
)

// tinyTaskMaxRunes bounds how long a capture can be and still read as a
// quick action.
const tinyTaskMaxRunes = 60

// tinyEstimateMaxMinutes is the largest explicit time estimate that still
// counts as tiny.
const tinyEstimateMaxMinutes = 30

var quickVerbRe = regexp.MustCompile(`(?i)\b(call|text|email|send|pay|book|order|buy|print|sign|submit|confirm|rsvp|reply|cancel|renew)\b`)
var minuteEstimateRe = regexp.MustCompile(`(?i)\b(\d{1,3})\s*(?:m|min|mins|minutes?)\b`)

// IsTinyTask reports whether the text describes a few-minutes action:
// either a short capture containing a quick-action verb, or an explicit
// time estimate under 30 minutes.
func (m *Matcher) IsTinyTask(text string) bool {
	if est := minuteEstimateRe.FindStringSubmatch(text); est != nil {
		minutes, err := strconv.Atoi(est[1])
		if err == nil && minutes > 0 && minutes < tinyEstimateMaxMinutes {
			return true
		}
	}

	return utf8.RuneCountInString(text) < tinyTaskMaxRunes && quickVerbRe.MatchString(text)
}
