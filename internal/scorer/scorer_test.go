package scorer

import (
	"testing"

	"github.com/marinedata/edna-platform/internal/refindex"
	"github.com/marinedata/edna-platform/internal/sequence"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		shared    int
		querySize int
		want      float64
	}{
		{0, 0, 0},
		{0, 10, 0},
		{5, 10, 50.0},
		{1, 3, 33.3},
		{2, 3, 66.7},
		{3, 3, 100.0},
		{1, 8, 12.5},
		{7, 8, 87.5},
	}

	for _, tt := range tests {
		if got := Percent(tt.shared, tt.querySize); got != tt.want {
			t.Errorf("Percent(%d, %d) = %v, want %v", tt.shared, tt.querySize, got, tt.want)
		}
	}
}

func TestScoreCandidates(t *testing.T) {
	idx, err := refindex.Build([]refindex.RawReference{
		{SpeciesID: "SP001", ScientificName: "Alpha one", Sequence: "AAAAATTTTT"},
		{SpeciesID: "SP002", ScientificName: "Beta two", Sequence: "GGGGGCCCCC"},
	}, 5)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	t.Run("full containment", func(t *testing.T) {
		scores := ScoreCandidates(idx, sequence.Kmers("AAAAA", 5))
		if len(scores) != 1 {
			t.Fatalf("got %d scores, want 1: %v", len(scores), scores)
		}
		if scores[0].SpeciesID != "SP001" || scores[0].Score != 100.0 {
			t.Errorf("got %+v, want SP001 at 100.0", scores[0])
		}
	})

	t.Run("partial overlap across references", func(t *testing.T) {
		// 6 query k-mers, one shared with each reference.
		scores := ScoreCandidates(idx, sequence.Kmers("AAAAAGGGGG", 5))
		if len(scores) != 2 {
			t.Fatalf("got %d scores, want 2: %v", len(scores), scores)
		}
		for _, s := range scores {
			if s.Score != 16.7 {
				t.Errorf("score for %s = %v, want 16.7", s.SpeciesID, s.Score)
			}
		}
	})

	t.Run("no overlap yields no candidates", func(t *testing.T) {
		scores := ScoreCandidates(idx, sequence.Kmers("TCTCTCTCTC", 5))
		if len(scores) != 0 {
			t.Errorf("got %d scores, want 0: %v", len(scores), scores)
		}
	})
}
