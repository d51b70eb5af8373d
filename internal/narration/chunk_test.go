package narration

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestChunk(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"short", "Hello there.", 50, []string{"Hello there."}},
		{"unlimited", "Hello there.", 0, []string{"Hello there."}},
		{"blank", "   ", 10, nil},
		{"clause", "one two three, four five six", 20, []string{"one two three,", "four five six"}},
		{"whitespace", "alpha beta gamma delta", 12, []string{"alpha beta", "gamma delta"}},
		{"hard", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Chunk(tt.text, tt.limit))
		})
	}
}

func TestChunkRespectsLimit(t *testing.T) {
	text := strings.Repeat("Ünïcode wörds, with clauses; and more text ", 20)
	chunks := Chunk(text, 37)

	assert.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 37)
		assert.Equal(t, strings.TrimSpace(c), c)
	}
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(chunks, " ")))
}
