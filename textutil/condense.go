// Package textutil provides the plain-string condensing primitives used when
// fitting prompt layers and summarization inputs into character budgets.
package textutil

import (
	"strings"
	"unicode/utf8"
)

const condenseMarker = "\n...[condensed]...\n"

// Condense shortens text to at most maxChars bytes while keeping it readable:
// the head and the tail of the input are preserved and the middle is elided.
// Head gets the larger share since instructions and identifiers tend to
// appear early. The result is always valid UTF-8.
func Condense(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if len(text) <= maxChars {
		return text
	}
	if maxChars <= len(condenseMarker) {
		return truncateAtRune(text, maxChars)
	}

	budget := maxChars - len(condenseMarker)
	headLen := budget * 2 / 3
	tailLen := budget - headLen

	head := truncateAtRune(text, headLen)
	tail := tailAtRune(text, tailLen)
	return head + condenseMarker + tail
}

// TrimText limits text to maxLines lines and maxChars bytes, appending a
// truncation marker when anything was dropped.
func TrimText(text string, maxLines, maxChars int) string {
	if text == "" {
		return ""
	}

	lines := strings.Split(text, "\n")
	kept := lines
	if len(lines) > maxLines {
		kept = lines[:maxLines]
	}
	out := strings.Join(kept, "\n")
	if len(out) > maxChars {
		out = truncateAtRune(out, maxChars)
	}

	if len(lines) > maxLines || len(text) > maxChars {
		out += " ...[truncated]"
	}
	return out
}

// truncateAtRune cuts s to at most n bytes without splitting a rune.
func truncateAtRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// tailAtRune returns the last n bytes of s, aligned to a rune boundary.
func tailAtRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
