package text

import (
	"strings"
	"unicode/utf8"
)

func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:runeBoundary(s, max)] + "..."
}

// TruncateAtSentence cuts s near max bytes, preferring the last sentence
// boundary before the limit. Falls back to a hard cut when no boundary
// exists in the window.
func TruncateAtSentence(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	window := s[:runeBoundary(s, max)]
	cut := -1
	for _, sep := range []string{". ", "! ", "? ", "。", "；"} {
		if i := strings.LastIndex(window, sep); i > cut {
			cut = i + len(sep) - 1
		}
	}
	if cut <= 0 {
		return strings.TrimSpace(window) + "..."
	}
	return strings.TrimSpace(s[:cut+1])
}

// runeBoundary 把字节游标回退到最近的 rune 起点，避免硬切把多字节字符劈开。
func runeBoundary(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
