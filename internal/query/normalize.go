package query

import (
	"strings"
	"unicode"
)

// Normalize lower-cases raw text, splits it into word tokens and drops stop
// words. A token is a run of letters and digits; apostrophes and hyphens are
// kept when they join two word characters ("don't", "full-text"). Every
// other character separates tokens, so punctuation never survives.
//
// Normalize is idempotent: normalizing the joined output again yields the
// same tokens.
func Normalize(raw string) []string {
	tokens := tokenize(strings.ToLower(raw))

	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if IsStopWord(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Tokenize lower-cases raw text and splits it into word tokens without
// removing stop words. Prefix queries use it so that a partially typed word
// such as "the" still completes to "theory".
func Tokenize(raw string) []string {
	return tokenize(strings.ToLower(raw))
}

func tokenize(text string) []string {
	runes := []rune(text)
	var (
		tokens []string
		cur    strings.Builder
	)

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for i, r := range runes {
		switch {
		case isWordRune(r):
			cur.WriteRune(r)
		case isJoiner(r) && cur.Len() > 0 && i+1 < len(runes) && isWordRune(runes[i+1]):
			if r == '’' {
				r = '\''
			}
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return tokens
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

func isJoiner(r rune) bool {
	return r == '\'' || r == '-' || r == '’'
}
