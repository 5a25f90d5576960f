package ranker

import (
	"strings"
)

// Tokenize splits a query on whitespace into a set of lowercase words,
// preserving first-seen order.
func Tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]bool, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
	}
	return tokens
}

// KeywordScores counts, per row, the query tokens that occur as substrings of
// the lowercased text, then normalizes by the highest count. Rows without a
// hit are absent from the result.
func KeywordScores(texts []string, tokens []string) map[int]float64 {
	scores := make(map[int]float64)
	if len(tokens) == 0 {
		return scores
	}

	raw := make(map[int]int)
	maxHits := 0
	for row, text := range texts {
		lower := strings.ToLower(text)
		hits := 0
		for _, tok := range tokens {
			if strings.Contains(lower, tok) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		raw[row] = hits
		if hits > maxHits {
			maxHits = hits
		}
	}

	for row, hits := range raw {
		scores[row] = float64(hits) / float64(maxHits)
	}
	return scores
}

// KeywordScan returns up to k rows in storage order whose text contains the
// query, trimmed of surrounding space, case-insensitively. When fewer than
// k rows match and the query has several tokens, the scan continues in
// storage order with rows containing any query token. No scoring is
// applied.
func KeywordScan(texts []string, query string, k int) []int {
	rows := []int{}
	needle := strings.ToLower(strings.TrimSpace(query))
	if k <= 0 || needle == "" {
		return rows
	}

	lowered := make([]string, len(texts))
	for i, t := range texts {
		lowered[i] = strings.ToLower(t)
	}

	taken := make(map[int]bool)
	for row, text := range lowered {
		if strings.Contains(text, needle) {
			rows = append(rows, row)
			taken[row] = true
			if len(rows) == k {
				return rows
			}
		}
	}

	tokens := Tokenize(needle)
	if len(tokens) < 2 {
		return rows
	}
	for row, text := range lowered {
		if taken[row] {
			continue
		}
		for _, tok := range tokens {
			if strings.Contains(text, tok) {
				rows = append(rows, row)
				break
			}
		}
		if len(rows) == k {
			return rows
		}
	}
	return rows
}
