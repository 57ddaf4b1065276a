package provider

import (
	"strings"
	"unicode/utf8"
)

var markdown = strings.NewReplacer("**", "", "__", "", "`", "", "#", "")

// clean strips light markdown and collapses whitespace.
func clean(s string) string {
	return strings.Join(strings.Fields(markdown.Replace(s)), " ")
}

// cleanLines is clean applied line by line. Blank lines are dropped and the
// remaining lines keep their breaks, so list structure survives.
func cleanLines(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = clean(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// truncate shortens s to at most limit bytes, cutting at a word boundary.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if i := strings.LastIndexByte(s[:cut], ' '); i > limit/2 {
		cut = i
	}
	return strings.TrimRight(s[:cut], " ,;:-") + "..."
}

// sentence ensures s ends with terminal punctuation.
func sentence(s string) string {
	if s == "" {
		return s
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}
