package narration

import (
	"strings"
	"unicode"
)

// Chunk splits text into pieces of at most limit runes, cutting after clause
// punctuation where possible, then at whitespace, then anywhere.
func Chunk(text string, limit int) []string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var out []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			out = appendChunk(out, runes)
			break
		}
		cut := cutPoint(runes[:limit])
		out = appendChunk(out, runes[:cut])
		runes = runes[cut:]
	}
	return out
}

func appendChunk(out []string, r []rune) []string {
	if s := strings.TrimSpace(string(r)); s != "" {
		out = append(out, s)
	}
	return out
}

// cutPoint returns how many runes of window to take.
func cutPoint(window []rune) int {
	// Cuts never fall in the first half of the window.
	floor := len(window) / 2
	for i := len(window) - 1; i >= floor; i-- {
		switch window[i] {
		case ',', ';', ':', '—', '–', ')':
			return i + 1
		}
	}
	for i := len(window) - 1; i >= floor; i-- {
		if unicode.IsSpace(window[i]) {
			return i + 1
		}
	}
	return len(window)
}
