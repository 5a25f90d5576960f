// Package ranker fuses vector-similarity and keyword-overlap scores over the
// rows of one tenant store.
package ranker

import (
	"sort"

	"github.com/fyrsmithlabs/tenantrag/internal/vectorindex"
)

// Hit is one ranked row.
type Hit struct {
	Row      int
	Score    float64 // combined score used for ordering
	Semantic float64 // 1 - distance; may be negative
	Keyword  float64 // normalized keyword score in [0,1]
}

// Semantic converts a squared L2 distance to a similarity score.
// The value is not clamped: distances above 1 give negative scores.
func Semantic(distance float32) float64 {
	return 1 - float64(distance)
}

// Plain returns the vector stage only, in neighbor order, limited to k.
func Plain(neighbors []vectorindex.Neighbor, k int) []Hit {
	if k <= 0 || len(neighbors) == 0 {
		return []Hit{}
	}
	if k > len(neighbors) {
		k = len(neighbors)
	}
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		sem := Semantic(neighbors[i].Distance)
		hits[i] = Hit{Row: neighbors[i].Row, Score: sem, Semantic: sem}
	}
	return hits
}

// Hybrid fuses the vector stage (neighbors) with a keyword stage computed
// over every row's derived text:
//
//	combined = alpha*sem + (1-alpha)*kw
//
// over the union of rows from both stages; a row missing from a stage
// scores 0 there. Rows are ordered by combined score descending, ties by row
// position, and the first k are returned.
func Hybrid(neighbors []vectorindex.Neighbor, texts []string, query string, k int, alpha float64) []Hit {
	if k <= 0 || len(texts) == 0 {
		return []Hit{}
	}

	candidates := make(map[int]*Hit)
	get := func(row int) *Hit {
		h, ok := candidates[row]
		if !ok {
			h = &Hit{Row: row}
			candidates[row] = h
		}
		return h
	}

	for _, n := range neighbors {
		get(n.Row).Semantic = Semantic(n.Distance)
	}
	for row, kw := range KeywordScores(texts, Tokenize(query)) {
		get(row).Keyword = kw
	}

	hits := make([]Hit, 0, len(candidates))
	for _, h := range candidates {
		h.Score = alpha*h.Semantic + (1-alpha)*h.Keyword
		hits = append(hits, *h)
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Row < hits[j].Row
	})
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}
