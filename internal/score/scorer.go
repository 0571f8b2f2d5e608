// Package score computes a deterministic lexical relevance score between an
// opportunity's text and the user's profile context.
package score

import (
	"strings"
	"unicode"
)

// stopwords are dropped before comparing token sets; they carry no signal
// about fit and inflate overlap between unrelated texts.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "in": {}, "is": {}, "it": {}, "of": {},
	"on": {}, "or": {}, "our": {}, "the": {}, "to": {}, "we": {}, "with": {},
	"you": {}, "your": {},
}

// Scorer is stateless and safe for concurrent use.
type Scorer struct{}

// New returns a token-overlap scorer.
func New() *Scorer { return &Scorer{} }

// Score returns the overlap coefficient between the candidate text and the
// profile context, in [0,1]. It never fails: empty or disjoint inputs score
// zero. Callers pass the raw message text when no page text was fetched, so
// an opportunity is never left unscored.
func (s *Scorer) Score(candidateText, profileContext string) float64 {
	candidate := tokenSet(candidateText)
	profile := tokenSet(profileContext)
	if len(candidate) == 0 || len(profile) == 0 {
		return 0
	}

	smaller, larger := candidate, profile
	if len(profile) < len(candidate) {
		smaller, larger = profile, candidate
	}

	overlap := 0
	for token := range smaller {
		if _, ok := larger[token]; ok {
			overlap++
		}
	}

	return float64(overlap) / float64(len(smaller))
}

func tokenSet(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(field) < 2 {
			continue
		}
		if _, ok := stopwords[field]; ok {
			continue
		}
		tokens[field] = struct{}{}
	}
	return tokens
}
