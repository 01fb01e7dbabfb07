package worker

import (
	"regexp"
	"strings"
)

var (
	thinkBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)
	fenceLine  = regexp.MustCompile("(?m)^[ \\t]*```[a-zA-Z0-9_-]*[ \\t]*$\\n?")
)

// StripReasoning removes <think> blocks that reasoning models emit before
// their answer. An unterminated block swallows the rest of the text.
func StripReasoning(s string) string {
	s = thinkBlock.ReplaceAllString(s, "")
	if i := strings.Index(strings.ToLower(s), "<think>"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// StripFences removes markdown code fence lines, keeping what they wrap.
func StripFences(s string) string {
	return strings.TrimSpace(fenceLine.ReplaceAllString(s, ""))
}
