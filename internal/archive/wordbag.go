package archive

import (
	"regexp"
	"sort"
	"strings"
)

// stopwords are tokens too common to carry similarity signal, including
// academic boilerplate that appears in nearly every title and abstract.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"from": {}, "as": {}, "is": {}, "was": {}, "are": {}, "were": {},
	"be": {}, "been": {}, "being": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "that": {}, "this": {},
	"these": {}, "those": {}, "it": {}, "its": {}, "we": {}, "our": {},
	"they": {}, "their": {}, "which": {}, "who": {}, "how": {}, "when": {},
	"where": {}, "what": {}, "why": {}, "than": {}, "then": {}, "both": {},
	"also": {}, "such": {}, "more": {}, "not": {}, "all": {},

	"study": {}, "using": {}, "based": {}, "paper": {}, "method": {},
	"results": {}, "show": {}, "shown": {}, "shows": {}, "found": {},
	"find": {}, "provide": {}, "present": {}, "however": {}, "between": {},
	"among": {}, "within": {}, "across": {}, "through": {},
	"significantly": {}, "significant": {}, "highly": {}, "specific": {},
	"novel": {}, "proposed": {}, "model": {}, "approach": {},
	"analysis": {}, "result": {}, "effect": {}, "role": {}, "impact": {},
	"data": {}, "evaluation": {}, "association": {}, "research": {},
	"work": {}, "article": {}, "report": {}, "review": {}, "letter": {},
	"case": {}, "note": {}, "toward": {}, "towards": {}, "here": {},
	"there": {}, "large": {}, "small": {}, "high": {}, "low": {},
	"new": {}, "into": {}, "about": {}, "after": {}, "before": {},
	"during": {}, "under": {}, "over": {}, "each": {}, "other": {},
	"most": {}, "many": {}, "some": {}, "can": {}, "only": {},
	"used": {}, "uses": {}, "use": {}, "via": {}, "well": {}, "thus": {},
	"while": {}, "further": {}, "recent": {}, "current": {},
	"various": {}, "several": {}, "without": {},
}

// tokenPattern matches lowercase words of length >= 4. Shorter tokens are
// too ambiguous to be useful similarity signals.
var tokenPattern = regexp.MustCompile(`[a-z]{4,}`)

// Tokenize extracts the deduplicated, case-folded, stopword-filtered token
// set from text.
func Tokenize(text string) map[string]struct{} {
	words := tokenPattern.FindAllString(strings.ToLower(text), -1)
	bag := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stopwords[w]; skip {
			continue
		}
		bag[w] = struct{}{}
	}
	return bag
}

// BagString renders a token set as the space-separated sorted form stored
// in the papers table.
func BagString(bag map[string]struct{}) string {
	words := make([]string, 0, len(bag))
	for w := range bag {
		words = append(words, w)
	}
	sort.Strings(words)
	return strings.Join(words, " ")
}

// ParseBag is the inverse of BagString.
func ParseBag(s string) map[string]struct{} {
	words := strings.Fields(s)
	bag := make(map[string]struct{}, len(words))
	for _, w := range words {
		bag[w] = struct{}{}
	}
	return bag
}

// Jaccard returns |a ∩ b| / |a ∪ b| in [0, 1]. Either set being empty
// yields 0.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	inter := 0
	for w := range small {
		if _, ok := big[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
