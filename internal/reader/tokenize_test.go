package reader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "abbreviation and decimal",
			in:   "Dr. Smith arrived at 3.14pm. He left.",
			want: []string{"Dr. Smith arrived at 3.14pm.", "He left."},
		},
		{
			name: "number before full stop",
			in:   "The total was 42. It cost 3.50. Cheap.",
			want: []string{"The total was 42.", "It cost 3.50.", "Cheap."},
		},
		{
			name: "terminal runs",
			in:   "Wait... really?! Yes.",
			want: []string{"Wait...", "really?!", "Yes."},
		},
		{
			name: "unicode ellipsis",
			in:   "So… we go. Now",
			want: []string{"So…", "we go.", "Now"},
		},
		{
			name: "initials and initialisms",
			in:   "J. R. Tolkien lived in the U.S. for a while? No. He did not.",
			want: []string{"J. R. Tolkien lived in the U.S. for a while?", "No.", "He did not."},
		},
		{
			name: "latin abbreviations",
			in:   "Bring fruit, e.g. apples, i.e. the red ones, etc. and go. Done!",
			want: []string{"Bring fruit, e.g. apples, i.e. the red ones, etc. and go.", "Done!"},
		},
		{
			name: "closing quotes stay with the sentence",
			in:   `She said "Stop." Then (quietly) "Go!" he replied.`,
			want: []string{`She said "Stop."`, `Then (quietly) "Go!"`, "he replied."},
		},
		{
			name: "abbreviation after bracket",
			in:   "See the chart (Fig. 3) for details. Thanks.",
			want: []string{"See the chart (Fig. 3) for details.", "Thanks."},
		},
		{
			name: "no terminal punctuation",
			in:   "  a fragment without an ending  ",
			want: []string{"a fragment without an ending"},
		},
		{
			name: "punctuation inside a token",
			in:   "Visit example.com today. Version 2.0.1 shipped.",
			want: []string{"Visit example.com today.", "Version 2.0.1 shipped."},
		},
		{
			name: "short sentences are kept",
			in:   "A. Ok. Hm! ?",
			want: []string{"A. Ok.", "Hm!", "?"},
		},
		{
			name: "empty",
			in:   "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSentences(tt.in))
		})
	}
}

func TestTokenize_ParagraphsAreHardBoundaries(t *testing.T) {
	got := Tokenize([]string{"Chapter One", "It began with Mr.", "Jones. Then it ended."})
	assert.Equal(t, []string{"Chapter One", "It began with Mr.", "Jones.", "Then it ended."}, got)
}
