package reader

import (
	"strings"
	"unicode"
)

// abbreviations are matched lower-case, without their final period.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "st": true, "vs": true,
	"etc": true, "e.g": true, "i.e": true, "jr": true, "sr": true, "prof": true,
	"rev": true, "gen": true, "col": true, "lt": true, "sgt": true, "capt": true,
	"cf": true, "fig": true, "approx": true, "mt": true, "ph.d": true, "messrs": true,
}

func isTerminal(r rune) bool {
	return r == '.' || r == '?' || r == '!' || r == '…'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '»', '’', '”':
		return true
	}
	return false
}

// Tokenize splits paragraphs into sentences. Paragraph boundaries always end
// a sentence.
func Tokenize(paragraphs []string) []string {
	var out []string
	for _, p := range paragraphs {
		out = append(out, SplitSentences(p)...)
	}
	return out
}

// SplitSentences splits a single block of text into trimmed sentences.
func SplitSentences(text string) []string {
	runes := []rune(text)
	var (
		out   []string
		start int
	)

	emit := func(end int) {
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
	}

	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}

		// A run of terminals splits only after its last character.
		j := i
		for j+1 < len(runes) && isTerminal(runes[j+1]) {
			j++
		}
		end := j + 1
		for end < len(runes) && isCloser(runes[end]) {
			end++
		}

		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			i = j
			continue
		}
		if i == j && runes[i] == '.' && suppressed(runes, i) {
			i = end - 1
			continue
		}

		emit(end)
		i = end - 1
	}
	emit(len(runes))
	return out
}

// suppressed reports whether the single period at i ends an abbreviation,
// an initial or an initialism. Periods inside numbers never get here since a
// split needs whitespace after the terminal.
func suppressed(runes []rune, i int) bool {
	k := i
	for k > 0 && !unicode.IsSpace(runes[k-1]) {
		k--
	}
	word := strings.TrimLeftFunc(string(runes[k:i]), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if word == "" {
		return false
	}

	lower := strings.ToLower(word)
	if abbreviations[lower] {
		return true
	}
	return isInitialism(word)
}

// isInitialism matches single letters joined by periods: "A", "U.S", "J.R.R".
func isInitialism(word string) bool {
	for _, part := range strings.Split(word, ".") {
		r := []rune(part)
		if len(r) != 1 || !unicode.IsLetter(r[0]) {
			return false
		}
	}
	return true
}
