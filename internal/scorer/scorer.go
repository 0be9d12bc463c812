// Package scorer computes containment similarity between a query k-mer set
// and the reference index.
package scorer

import (
	"math"

	"github.com/marinedata/edna-platform/internal/refindex"
	"github.com/marinedata/edna-platform/internal/sequence"
)

// ReferenceScore is the percent similarity of one reference sequence
// against the query.
type ReferenceScore struct {
	SpeciesID string
	Score     float64
}

// Percent converts a shared-k-mer count into a containment percent score:
// |query ∩ reference| / |query| scaled to [0,100] and rounded to one
// decimal. Containment is asymmetric on purpose: a short fragmentary read
// fully contained in a longer reference barcode scores 100.
func Percent(shared, querySize int) float64 {
	if querySize == 0 || shared <= 0 {
		return 0
	}
	return math.Round(float64(shared)/float64(querySize)*1000) / 10
}

// ScoreCandidates scores the query against every reference entry sharing at
// least one k-mer with it, using the index's inverted index to avoid a full
// scan of the reference corpus. The result preserves the index's
// deterministic candidate order and may contain multiple entries per
// species.
func ScoreCandidates(idx *refindex.Index, query sequence.KmerSet) []ReferenceScore {
	candidates := idx.Candidates(query)
	scores := make([]ReferenceScore, 0, len(candidates))
	for _, c := range candidates {
		scores = append(scores, ReferenceScore{
			SpeciesID: c.SpeciesID,
			Score:     Percent(c.Shared, query.Len()),
		})
	}
	return scores
}
