package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "stop words and punctuation removed",
			input: "What problems and concerns are there in making up descriptive titles?",
			want:  []string{"problems", "concerns", "making", "descriptive", "titles"},
		},
		{
			name:  "lower cased",
			input: "Information RETRIEVAL Systems",
			want:  []string{"information", "retrieval", "systems"},
		},
		{
			name:  "hyphen and apostrophe stay inside words",
			input: "full-text search in the library's catalogue",
			want:  []string{"full-text", "search", "library's", "catalogue"},
		},
		{
			name:  "contractions are stop words",
			input: "don't won’t",
			want:  []string{},
		},
		{
			name:  "dangling joiners split",
			input: "-prefix suffix- 'quoted'",
			want:  []string{"prefix", "suffix", "quoted"},
		},
		{
			name:  "digits kept",
			input: "MARC II format (1969)",
			want:  []string{"marc", "ii", "format", "1969"},
		},
		{
			name:  "only punctuation",
			input: "... --- !!",
			want:  []string{},
		},
		{
			name:  "empty",
			input: "",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"The retrieval of information from libraries is discussed.",
		"How can one evaluate an on-line system's user-friendliness?",
		"Über-indexing, naïve Bayes & co-citation: 2nd edition",
		"İstanbul",
	}

	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(strings.Join(once, " "))
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestIsStopWord(t *testing.T) {
	assert.True(t, IsStopWord("the"))
	assert.True(t, IsStopWord("shouldn't"))
	assert.False(t, IsStopWord("library"))
	assert.False(t, IsStopWord("The"), "lookups expect lower-cased input")
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"the", "theory", "of"}, Tokenize("The THEORY of"))
	assert.Empty(t, Tokenize("?!"))
}
