// Package benchmark contains Go benchmarks for the identification pipeline:
// k-mer decomposition, reference index construction, and single and batch
// query throughput.
package benchmark

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/marinedata/edna-platform/internal/identify"
	"github.com/marinedata/edna-platform/internal/refindex"
	"github.com/marinedata/edna-platform/internal/sequence"
	"github.com/marinedata/edna-platform/pkg/config"
)

func randSeq(rng *rand.Rand, n int) string {
	bases := []byte("ACGT")
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = bases[rng.Intn(len(bases))]
	}
	return string(buf)
}

func benchRefs(n, length int) []refindex.RawReference {
	rng := rand.New(rand.NewSource(42))
	refs := make([]refindex.RawReference, 0, n)
	for i := 0; i < n; i++ {
		refs = append(refs, refindex.RawReference{
			SpeciesID:      fmt.Sprintf("SP%05d", i),
			ScientificName: fmt.Sprintf("Species %d", i),
			Sequence:       randSeq(rng, length),
		})
	}
	return refs
}

func benchConfig() config.EngineConfig {
	return config.EngineConfig{
		KmerSize:           5,
		MinSequenceLength:  5,
		MinScore:           50.0,
		TopMatches:         5,
		MaxTopMatches:      20,
		MaxBatchTopMatches: 10,
		AlternativeMatches: 3,
		MaxBatchSize:       50,
		Workers:            8,
		BatchTimeout:       30 * time.Second,
		Confidence:         config.ConfidenceConfig{VeryHigh: 90, High: 75, Medium: 60},
	}
}

type benchProvider struct {
	refs []refindex.RawReference
}

func (p *benchProvider) ListReferences(ctx context.Context) ([]refindex.RawReference, error) {
	return p.refs, nil
}

func benchEngine(b *testing.B, refs []refindex.RawReference) *identify.Engine {
	b.Helper()
	eng, err := identify.New(benchConfig(), &benchProvider{refs: refs}, nil)
	if err != nil {
		b.Fatalf("New() error: %v", err)
	}
	if err := eng.Rebuild(context.Background()); err != nil {
		b.Fatalf("Rebuild() error: %v", err)
	}
	return eng
}

// BenchmarkKmerDecompose measures sliding-window decomposition throughput
// for barcode-sized and read-sized sequences.
func BenchmarkKmerDecompose(b *testing.B) {
	rng := rand.New(rand.NewSource(7))
	seqs := map[string]string{
		"read_150":     randSeq(rng, 150),
		"barcode_650":  randSeq(rng, 650),
		"contig_5000":  randSeq(rng, 5000),
	}
	for name, seq := range seqs {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(seq)))
			for i := 0; i < b.N; i++ {
				set := sequence.Kmers(seq, 5)
				_ = set
			}
		})
	}
}

// BenchmarkIndexBuild measures wholesale reference index construction at
// several corpus sizes.
func BenchmarkIndexBuild(b *testing.B) {
	for _, n := range []int{100, 1000} {
		refs := benchRefs(n, 650)
		b.Run(fmt.Sprintf("species_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				idx, err := refindex.Build(refs, 5)
				if err != nil {
					b.Fatal(err)
				}
				_ = idx
			}
		})
	}
}

// BenchmarkIdentify measures single-query latency against a 1000-species
// index for fragment and full-barcode queries.
func BenchmarkIdentify(b *testing.B) {
	refs := benchRefs(1000, 650)
	eng := benchEngine(b, refs)
	opts := identify.Options{MinScore: 0, TopMatches: 5}

	queries := map[string]string{
		"fragment": refs[0].Sequence[100:250],
		"barcode":  refs[0].Sequence,
	}
	for name, query := range queries {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := eng.Identify(context.Background(), query, opts); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkIdentifyBatch measures full-batch throughput at the maximum
// accepted batch size.
func BenchmarkIdentifyBatch(b *testing.B) {
	refs := benchRefs(1000, 650)
	eng := benchEngine(b, refs)
	opts := identify.Options{MinScore: 0, TopMatches: 5}

	items := make([]identify.BatchItem, 50)
	for i := range items {
		src := refs[i%len(refs)].Sequence
		items[i] = identify.BatchItem{ID: fmt.Sprintf("s%d", i), Sequence: src[50:350]}
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		results := eng.IdentifyBatch(context.Background(), items, opts)
		if len(results) != len(items) {
			b.Fatalf("got %d results, want %d", len(results), len(items))
		}
	}
}
