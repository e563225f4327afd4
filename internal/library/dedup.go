package library

import (
	"regexp"
	"strings"

	"github.com/nidhogg/skillvault/internal/skill"
)

// keywordOverlapThreshold is the fraction of the larger keyword set two
// descriptions must share (within one category) to count as duplicates.
const keywordOverlapThreshold = 0.6

var (
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentRe  = regexp.MustCompile(`//[^\n]*`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
	nonWordRe      = regexp.MustCompile(`[^a-z0-9]+`)
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {},
	"from": {}, "into": {}, "have": {}, "will": {}, "your": {}, "then": {},
	"than": {}, "when": {}, "what": {}, "where": {}, "which": {}, "their": {},
	"them": {}, "they": {}, "been": {}, "being": {}, "does": {}, "each": {},
	"only": {}, "over": {}, "some": {}, "such": {}, "very": {}, "also": {},
	"after": {}, "before": {}, "about": {}, "using": {}, "used": {},
}

// normalizeCode strips line and block comments, collapses whitespace, and
// lowercases, so cosmetic differences don't defeat deduplication.
func normalizeCode(code string) string {
	code = blockCommentRe.ReplaceAllString(code, " ")
	code = lineCommentRe.ReplaceAllString(code, " ")
	code = whitespaceRe.ReplaceAllString(code, " ")
	return strings.ToLower(strings.TrimSpace(code))
}

// descriptionKeywords extracts the significant words of a description:
// longer than 3 characters and not a stopword.
func descriptionKeywords(description string) map[string]struct{} {
	words := nonWordRe.Split(strings.ToLower(description), -1)
	out := make(map[string]struct{})
	for _, w := range words {
		if len(w) <= 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// areSkillsSimilar reports whether two skills are close enough to merge:
// identical normalized code, substantial code containment, or the same
// category with heavy description-keyword overlap.
func areSkillsSimilar(a, b *skill.Skill) bool {
	na, nb := normalizeCode(a.Code), normalizeCode(b.Code)
	if na != "" && na == nb {
		return true
	}
	if len(na) > 50 && len(nb) > 50 &&
		(strings.Contains(na, nb) || strings.Contains(nb, na)) {
		return true
	}
	if a.Category == b.Category {
		ka, kb := descriptionKeywords(a.Description), descriptionKeywords(b.Description)
		larger := len(ka)
		if len(kb) > larger {
			larger = len(kb)
		}
		if larger == 0 {
			return false
		}
		shared := 0
		for w := range ka {
			if _, ok := kb[w]; ok {
				shared++
			}
		}
		if float64(shared)/float64(larger) > keywordOverlapThreshold {
			return true
		}
	}
	return false
}

// unionStrings appends the elements of extra not already in base,
// preserving order.
func unionStrings(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	out := append([]string{}, base...)
	for _, v := range base {
		seen[v] = struct{}{}
	}
	for _, v := range extra {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
