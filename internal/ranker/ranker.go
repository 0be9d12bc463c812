// Package ranker aggregates per-reference similarity scores into ranked
// per-species match results.
package ranker

import (
	"sort"

	"github.com/marinedata/edna-platform/internal/confidence"
	"github.com/marinedata/edna-platform/internal/refindex"
	"github.com/marinedata/edna-platform/internal/scorer"
)

// AlternativeMatch is a next-best distinct species retained alongside a
// primary match for caller display.
type AlternativeMatch struct {
	SpeciesID       string           `json:"species_id"`
	ScientificName  string           `json:"scientific_name"`
	MatchingScore   float64          `json:"matching_score"`
	ConfidenceLevel confidence.Level `json:"confidence_level"`
}

// MatchResult is one ranked species match. Immutable once returned; owned
// by the caller.
type MatchResult struct {
	SpeciesID          string             `json:"species_id"`
	ScientificName     string             `json:"scientific_name"`
	CommonName         string             `json:"common_name,omitempty"`
	Taxonomy           refindex.Taxonomy  `json:"taxonomy"`
	MatchingScore      float64            `json:"matching_score"`
	ConfidenceLevel    confidence.Level   `json:"confidence_level"`
	Rank               int                `json:"rank"`
	AlternativeMatches []AlternativeMatch `json:"alternative_matches,omitempty"`
}

// Params controls filtering and truncation.
type Params struct {
	MinScore     float64
	TopN         int
	Alternatives int
}

// Rank collapses per-reference scores to each species' maximum score,
// filters species below MinScore, sorts descending by score with ties
// broken by ascending species ID, truncates to TopN, and attaches up to
// Alternatives next-best distinct species to each primary result.
func Rank(scored []scorer.ReferenceScore, params Params, info func(string) (refindex.SpeciesInfo, bool), classify func(float64) confidence.Level) []MatchResult {
	best := make(map[string]float64)
	for _, rs := range scored {
		if cur, ok := best[rs.SpeciesID]; !ok || rs.Score > cur {
			best[rs.SpeciesID] = rs.Score
		}
	}

	type speciesScore struct {
		id    string
		score float64
	}
	ranked := make([]speciesScore, 0, len(best))
	for id, score := range best {
		if score < params.MinScore {
			continue
		}
		ranked = append(ranked, speciesScore{id: id, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})

	n := len(ranked)
	if params.TopN > 0 && n > params.TopN {
		n = params.TopN
	}

	results := make([]MatchResult, 0, n)
	for i := 0; i < n; i++ {
		sp := ranked[i]
		result := MatchResult{
			SpeciesID:       sp.id,
			MatchingScore:   sp.score,
			ConfidenceLevel: classify(sp.score),
			Rank:            i + 1,
		}
		if meta, ok := info(sp.id); ok {
			result.ScientificName = meta.ScientificName
			result.CommonName = meta.CommonName
			result.Taxonomy = meta.Taxonomy
		}
		// Alternatives come from the full filtered ranking, so the last
		// primary result still carries its runners-up.
		for j := i + 1; j < len(ranked) && len(result.AlternativeMatches) < params.Alternatives; j++ {
			alt := ranked[j]
			am := AlternativeMatch{
				SpeciesID:       alt.id,
				MatchingScore:   alt.score,
				ConfidenceLevel: classify(alt.score),
			}
			if meta, ok := info(alt.id); ok {
				am.ScientificName = meta.ScientificName
			}
			result.AlternativeMatches = append(result.AlternativeMatches, am)
		}
		results = append(results, result)
	}
	return results
}
