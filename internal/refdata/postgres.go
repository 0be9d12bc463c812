// Package refdata implements the reference data provider and identification
// result store over PostgreSQL. Reference barcode sequences live in
// reference_sequences, species metadata in taxonomy, and accepted
// identification results in identifications/identification_matches.
package refdata

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/marinedata/edna-platform/internal/ranker"
	"github.com/marinedata/edna-platform/internal/refindex"
	"github.com/marinedata/edna-platform/pkg/postgres"
)

// PostgresProvider reads reference sequences and taxonomy from PostgreSQL.
type PostgresProvider struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewPostgresProvider creates a provider over an established client.
func NewPostgresProvider(db *postgres.Client) *PostgresProvider {
	return &PostgresProvider{
		db:     db,
		logger: slog.Default().With("component", "refdata"),
	}
}

// ListReferences returns every reference sequence joined with its species
// metadata, in species_id order.
func (p *PostgresProvider) ListReferences(ctx context.Context) ([]refindex.RawReference, error) {
	const q = `
		SELECT r.species_id,
		       t.scientific_name,
		       COALESCE(t.common_name, ''),
		       COALESCE(t.kingdom, ''),
		       COALESCE(t.phylum, ''),
		       COALESCE(t.class, ''),
		       COALESCE(t.taxon_order, ''),
		       COALESCE(t.family, ''),
		       COALESCE(t.genus, ''),
		       r.sequence
		FROM reference_sequences r
		JOIN taxonomy t ON t.species_id = r.species_id
		ORDER BY r.species_id, r.sequence_id`

	rows, err := p.db.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying reference sequences: %w", err)
	}
	defer rows.Close()

	var refs []refindex.RawReference
	for rows.Next() {
		var ref refindex.RawReference
		if err := rows.Scan(
			&ref.SpeciesID,
			&ref.ScientificName,
			&ref.CommonName,
			&ref.Taxonomy.Kingdom,
			&ref.Taxonomy.Phylum,
			&ref.Taxonomy.Class,
			&ref.Taxonomy.Order,
			&ref.Taxonomy.Family,
			&ref.Taxonomy.Genus,
			&ref.Sequence,
		); err != nil {
			return nil, fmt.Errorf("scanning reference row: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reference rows: %w", err)
	}
	p.logger.Debug("reference sequences loaded", "count", len(refs))
	return refs, nil
}

// IdentificationRecord is one accepted identification to persist.
type IdentificationRecord struct {
	RequestID   string
	QueryLength int
	QueryKmers  int
	MinScore    float64
	Matches     []ranker.MatchResult
	CreatedAt   time.Time
}

// SaveIdentification writes an identification and its matches in one
// transaction. The engine itself never persists; the REST layer calls this
// after a successful query.
func (p *PostgresProvider) SaveIdentification(ctx context.Context, rec IdentificationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return p.db.InTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO identifications (request_id, query_length, query_kmers, min_score, match_count, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			rec.RequestID, rec.QueryLength, rec.QueryKmers, rec.MinScore, len(rec.Matches), rec.CreatedAt,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("inserting identification: %w", err)
		}
		for _, m := range rec.Matches {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO identification_matches (identification_id, rank, species_id, matching_score, confidence_level)
				VALUES ($1, $2, $3, $4, $5)`,
				id, m.Rank, m.SpeciesID, m.MatchingScore, string(m.ConfidenceLevel),
			); err != nil {
				return fmt.Errorf("inserting match for %s: %w", m.SpeciesID, err)
			}
		}
		return nil
	})
}

// Ping verifies the reference store is reachable.
func (p *PostgresProvider) Ping(ctx context.Context) error {
	return p.db.DB.PingContext(ctx)
}
