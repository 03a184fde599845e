package heuristic

import "strings"

// stopWords are common words that carry no category signal. Kept small on
// purpose: over-filtering hurts the learned-override hit rate more than
// under-filtering does.
var stopWords = map[string]struct{}{
	"about": {}, "after": {}, "again": {}, "before": {}, "could": {},
	"every": {}, "from": {}, "have": {}, "into": {}, "just": {},
	"more": {}, "need": {}, "needs": {}, "over": {}, "please": {},
	"should": {}, "some": {}, "than": {}, "that": {}, "their": {},
	"them": {}, "then": {}, "there": {}, "these": {}, "they": {},
	"this": {}, "today": {}, "tomorrow": {}, "want": {}, "week": {},
	"what": {}, "when": {}, "which": {}, "will": {}, "with": {},
	"would": {}, "your": {},
}

// Tokenize lowercases the text, splits it on non-alphanumeric runes, and
// drops stop-words and words of three characters or fewer. Duplicates are
// removed, first occurrence order preserved.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})

	seen := make(map[string]struct{}, len(fields))
	var words []string
	for _, f := range fields {
		if len(f) <= 3 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		words = append(words, f)
	}
	return words
}

func isWordRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\''
}
