package summary

// Truncate shortens text to at most maxChars runes, replacing the final
// rune with an ellipsis when anything was cut. The second return reports
// whether truncation happened. maxChars <= 0 means no limit.
func Truncate(text string, maxChars int) (string, bool) {
	if maxChars <= 0 {
		return text, false
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text, false
	}
	if maxChars == 1 {
		return "…", true
	}
	return string(runes[:maxChars-1]) + "…", true
}
