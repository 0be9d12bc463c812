// Package refindex builds and serves the immutable reference index: every
// species-labeled reference sequence decomposed into its k-mer set, plus an
// inverted index from k-mer to the reference entries containing it. The
// index is built once from the reference store and replaced wholesale on
// reference-data updates; it is never mutated mid-request.
package refindex

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/marinedata/edna-platform/internal/sequence"
	apperrors "github.com/marinedata/edna-platform/pkg/errors"
)

// Taxonomy is the fixed-shape taxonomic classification of a species.
type Taxonomy struct {
	Kingdom string `json:"kingdom"`
	Phylum  string `json:"phylum"`
	Class   string `json:"class"`
	Order   string `json:"order"`
	Family  string `json:"family"`
	Genus   string `json:"genus"`
}

// RawReference is one reference barcode sequence with its species metadata,
// as supplied by a reference data provider.
type RawReference struct {
	SpeciesID      string
	ScientificName string
	CommonName     string
	Taxonomy       Taxonomy
	Sequence       string
}

// SpeciesInfo is the metadata snapshot for a species, shared by all of its
// reference entries.
type SpeciesInfo struct {
	SpeciesID      string
	ScientificName string
	CommonName     string
	Taxonomy       Taxonomy
}

// entry is one indexed reference sequence.
type entry struct {
	speciesID string
	kmers     sequence.KmerSet
}

// Index is the immutable reference index. All methods are safe for
// concurrent use without locking because the structure never changes after
// Build returns.
type Index struct {
	k       int
	buildID string
	builtAt time.Time
	entries []entry
	species map[string]SpeciesInfo
	// inverted maps each k-mer to the indices of the entries containing
	// it, so scoring only touches references sharing at least one k-mer
	// with the query.
	inverted map[string][]int32
	skipped  int
}

// Candidate is a reference entry sharing at least one k-mer with a query.
type Candidate struct {
	SpeciesID string
	Shared    int
}

// Build canonicalizes and decomposes every reference sequence into the
// index. Entries whose sequence fails canonicalization (or yields no
// unambiguous k-mers) are skipped and logged, not fatal; Build fails only
// when zero usable entries remain.
func Build(refs []RawReference, k int) (*Index, error) {
	if k < 2 {
		return nil, fmt.Errorf("k-mer size must be >= 2, got %d", k)
	}

	logger := slog.Default().With("component", "refindex")
	idx := &Index{
		k:        k,
		builtAt:  time.Now().UTC(),
		species:  make(map[string]SpeciesInfo),
		inverted: make(map[string][]int32),
	}
	idx.buildID = fmt.Sprintf("%x", idx.builtAt.UnixNano())

	for _, ref := range refs {
		seq, err := sequence.Canonicalize(ref.Sequence, k)
		if err != nil {
			logger.Warn("skipping unusable reference sequence",
				"species_id", ref.SpeciesID,
				"error", err,
			)
			idx.skipped++
			continue
		}
		kmers := sequence.Kmers(seq, k)
		if kmers.Len() == 0 {
			logger.Warn("skipping reference sequence with no unambiguous k-mers",
				"species_id", ref.SpeciesID,
				"length", len(seq),
			)
			idx.skipped++
			continue
		}

		pos := int32(len(idx.entries))
		idx.entries = append(idx.entries, entry{
			speciesID: ref.SpeciesID,
			kmers:     kmers,
		})
		for kmer := range kmers {
			idx.inverted[kmer] = append(idx.inverted[kmer], pos)
		}
		if _, seen := idx.species[ref.SpeciesID]; !seen {
			idx.species[ref.SpeciesID] = SpeciesInfo{
				SpeciesID:      ref.SpeciesID,
				ScientificName: ref.ScientificName,
				CommonName:     ref.CommonName,
				Taxonomy:       ref.Taxonomy,
			}
		}
	}

	if len(idx.entries) == 0 {
		return nil, apperrors.Newf(apperrors.ErrEmptyReference, 503,
			"reference store yielded no usable sequences (%d skipped)", idx.skipped)
	}

	logger.Info("reference index built",
		"build_id", idx.buildID,
		"k", k,
		"species", len(idx.species),
		"sequences", len(idx.entries),
		"kmers", len(idx.inverted),
		"skipped", idx.skipped,
	)
	return idx, nil
}

// K returns the k-mer size the index was built with. Queries must be
// decomposed with the same k.
func (idx *Index) K() int { return idx.k }

// BuildID identifies this build for result-cache keying; a rebuild always
// yields a different ID.
func (idx *Index) BuildID() string { return idx.buildID }

// BuiltAt returns the build timestamp.
func (idx *Index) BuiltAt() time.Time { return idx.builtAt }

// SpeciesCount returns the number of distinct species indexed.
func (idx *Index) SpeciesCount() int { return len(idx.species) }

// SequenceCount returns the number of indexed reference sequences.
func (idx *Index) SequenceCount() int { return len(idx.entries) }

// SkippedCount returns how many reference entries were dropped during build.
func (idx *Index) SkippedCount() int { return idx.skipped }

// Species returns the metadata snapshot for a species ID.
func (idx *Index) Species(id string) (SpeciesInfo, bool) {
	info, ok := idx.species[id]
	return info, ok
}

// Candidates walks the inverted index and returns every reference entry
// sharing at least one k-mer with the query, with its shared-k-mer count.
// References with zero overlap are implicitly excluded without computation.
// Results are ordered by entry position for determinism.
func (idx *Index) Candidates(query sequence.KmerSet) []Candidate {
	shared := make(map[int32]int)
	for kmer := range query {
		for _, pos := range idx.inverted[kmer] {
			shared[pos]++
		}
	}

	positions := make([]int32, 0, len(shared))
	for pos := range shared {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })

	candidates := make([]Candidate, 0, len(positions))
	for _, pos := range positions {
		candidates = append(candidates, Candidate{
			SpeciesID: idx.entries[pos].speciesID,
			Shared:    shared[pos],
		})
	}
	return candidates
}
