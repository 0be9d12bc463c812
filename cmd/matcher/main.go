// The matcher command runs species identification from the command line: it
// builds the reference index from PostgreSQL, scores one sequence or a whole
// FASTA file of sequences, and prints the ranked matches as text or JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/marinedata/edna-platform/internal/identify"
	"github.com/marinedata/edna-platform/internal/refdata"
	"github.com/marinedata/edna-platform/pkg/config"
	"github.com/marinedata/edna-platform/pkg/logger"
	"github.com/marinedata/edna-platform/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	seq := flag.String("sequence", "", "query sequence (raw or single-record FASTA)")
	file := flag.String("file", "", "read a single query sequence from a file")
	batchFile := flag.String("batch", "", "identify every record in a FASTA (or line-delimited) file")
	minScore := flag.Float64("min-score", -1, "minimum similarity score (0-100, default from config)")
	top := flag.Int("top", 0, "maximum matches to return (default from config)")
	asJSON := flag.Bool("json", false, "print results as JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	logger.Setup("warn", "text")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	engine, err := identify.New(cfg.Engine, refdata.NewPostgresProvider(db), nil)
	if err != nil {
		fatalf("failed to create engine: %v", err)
	}
	if err := engine.Rebuild(ctx); err != nil {
		fatalf("failed to build reference index: %v", err)
	}

	opts := engine.DefaultOptions()
	if *minScore >= 0 {
		opts.MinScore = *minScore
	}
	if *top > 0 {
		opts.TopMatches = *top
	}

	switch {
	case *batchFile != "":
		runBatch(ctx, engine, *batchFile, opts, *asJSON)
	case *seq != "" || *file != "":
		raw := *seq
		if *file != "" {
			data, err := os.ReadFile(*file)
			if err != nil {
				fatalf("failed to read sequence file: %v", err)
			}
			raw = string(data)
		}
		runSingle(ctx, engine, raw, opts, *asJSON)
	default:
		fatalf("one of -sequence, -file, or -batch is required")
	}
}

func runSingle(ctx context.Context, engine *identify.Engine, raw string, opts identify.Options, asJSON bool) {
	result, err := engine.Identify(ctx, raw, opts)
	if err != nil {
		fatalf("identification failed: %v", err)
	}

	if asJSON {
		printJSON(result)
		return
	}
	fmt.Printf("query: %d bp, %d k-mers (k=%d), min score %.1f\n",
		result.QueryLength, result.QueryKmers, engine.Index().K(), opts.MinScore)
	printMatches(result)
}

func runBatch(ctx context.Context, engine *identify.Engine, path string, opts identify.Options, asJSON bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		fatalf("failed to read batch file: %v", err)
	}
	items := parseBatchFile(string(data))
	if len(items) == 0 {
		fatalf("no sequences found in %s", path)
	}

	results := engine.IdentifyBatch(ctx, items, opts)

	if asJSON {
		printJSON(results)
		return
	}
	for _, res := range results {
		fmt.Printf("== %s\n", res.ID)
		if res.Err != nil {
			fmt.Printf("   error: %v\n", res.Err)
			continue
		}
		printMatches(res.Result)
	}
}

// parseBatchFile reads sequences from FASTA content (records delimited by '>'
// header lines, IDs from the first header token) or, when no header is
// present, one sequence per non-empty line.
func parseBatchFile(content string) []identify.BatchItem {
	var items []identify.BatchItem
	if strings.Contains(content, ">") {
		var id string
		var body strings.Builder
		flush := func() {
			if body.Len() > 0 {
				items = append(items, identify.BatchItem{ID: id, Sequence: body.String()})
			}
			body.Reset()
		}
		for _, line := range strings.Split(content, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, ">") {
				flush()
				id = ""
				if fields := strings.Fields(line[1:]); len(fields) > 0 {
					id = fields[0]
				}
				continue
			}
			body.WriteString(line)
		}
		flush()
		return items
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		items = append(items, identify.BatchItem{Sequence: line})
	}
	return items
}

func printMatches(result *identify.QueryResult) {
	if len(result.Matches) == 0 {
		fmt.Println("no matches above threshold")
		return
	}
	for _, m := range result.Matches {
		name := m.ScientificName
		if m.CommonName != "" {
			name = fmt.Sprintf("%s (%s)", m.ScientificName, m.CommonName)
		}
		fmt.Printf("%2d. %-40s %6.1f%%  %s\n", m.Rank, name, m.MatchingScore, m.ConfidenceLevel)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("failed to encode result: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
