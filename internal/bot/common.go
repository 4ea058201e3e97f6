package bot

import (
	"strings"
	"unicode/utf8"
)

// Per-message limits of the chat providers.
const (
	telegramMaxMessage = 4096
	discordMaxMessage  = 2000
)

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	return s[:runeBoundary(s, max)] + "..."
}

// runeBoundary returns the largest offset <= i that does not split a rune.
func runeBoundary(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// splitMessage breaks text into chunks of at most max bytes, preferring
// line boundaries and never splitting a rune.
func splitMessage(text string, max int) []string {
	if len(text) <= max {
		return []string{text}
	}

	var chunks []string
	for len(text) > max {
		cut := strings.LastIndexByte(text[:max], '\n')
		if cut <= 0 {
			cut = runeBoundary(text, max)
		}
		if cut == 0 {
			// a rune wider than max; send it whole rather than loop
			_, size := utf8.DecodeRuneInString(text)
			cut = size
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
