package workspace

import (
	"context"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// LexicalScorer is the default Scorer: a bounded lexical comparison of the
// prompt against each candidate's name tokens and excerpt. It blends name
// coverage (how many name tokens the prompt mentions) with excerpt overlap,
// tolerating near-miss tokens via edit distance ("todos" matches "todo").
type LexicalScorer struct{}

const (
	nameWeight    = 0.6
	excerptWeight = 0.4

	// excerptHitCap is where additional excerpt overlap stops adding
	// confidence.
	excerptHitCap = 3

	// tokenSimilarity is the minimum normalized edit-distance similarity for
	// two tokens to count as a match.
	tokenSimilarity = 0.8
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "what": true, "whats": true, "about": true, "can": true,
	"you": true, "please": true, "how": true,
}

// Score names the candidate whose name and excerpt best cover the prompt.
func (LexicalScorer) Score(ctx context.Context, prompt string, candidates []Candidate) (string, float64, error) {
	promptTokens := tokenize(prompt)
	if len(promptTokens) == 0 {
		return "", 0, nil
	}

	var bestName string
	var bestScore float64
	for _, c := range candidates {
		score := scoreCandidate(promptTokens, c)
		if score > bestScore {
			bestName = c.Name
			bestScore = score
		}
	}
	return bestName, bestScore, nil
}

func scoreCandidate(promptTokens []string, c Candidate) float64 {
	nameTokens := splitName(c.Name)
	if len(nameTokens) == 0 {
		return 0
	}

	nameHits := 0
	for _, token := range nameTokens {
		if fuzzyContains(promptTokens, token) {
			nameHits++
		}
	}
	nameScore := float64(nameHits) / float64(len(nameTokens))

	excerptTokens := tokenize(c.Excerpt)
	excerptHits := 0
	for _, token := range promptTokens {
		if fuzzyContains(excerptTokens, token) {
			excerptHits++
			if excerptHits == excerptHitCap {
				break
			}
		}
	}
	excerptScore := float64(excerptHits) / float64(excerptHitCap)

	return nameWeight*nameScore + excerptWeight*excerptScore
}

// tokenize lowercases and splits on non-alphanumerics, dropping stopwords
// and tokens shorter than three runes.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= 3 && !stopwords[f] {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func fuzzyContains(tokens []string, target string) bool {
	for _, token := range tokens {
		if similar(token, target) {
			return true
		}
	}
	return false
}

func similar(a, b string) bool {
	if a == b {
		return true
	}
	longest := max(len(a), len(b))
	if longest == 0 {
		return false
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1-float64(dist)/float64(longest) >= tokenSimilarity
}
