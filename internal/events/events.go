// Package events publishes identification activity to Kafka and reacts to
// reference-data update notifications by rebuilding the engine's index.
package events

import "time"

// Type tags an event for downstream consumers.
type Type string

const (
	TypeIdentification Type = "identification"
	TypeBatch          Type = "batch_identification"
)

// IdentificationEvent summarizes one identification query for the
// analytics pipeline.
type IdentificationEvent struct {
	Type         Type      `json:"type"`
	RequestID    string    `json:"request_id,omitempty"`
	QueryLength  int       `json:"query_length"`
	QueryKmers   int       `json:"query_kmers"`
	MinScore     float64   `json:"min_score"`
	Matches      int       `json:"matches"`
	TopSpeciesID string    `json:"top_species_id,omitempty"`
	TopScore     float64   `json:"top_score,omitempty"`
	Confidence   string    `json:"confidence,omitempty"`
	CacheHit     bool      `json:"cache_hit"`
	LatencyMs    int64     `json:"latency_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// BatchEvent summarizes one batch request.
type BatchEvent struct {
	Type      Type      `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	Items     int       `json:"items"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	TimedOut  int       `json:"timed_out"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// ReferenceUpdate is the payload of a reference-updated notification: the
// ingestion pipeline publishes it after writing new reference sequences,
// and the identifier service responds by rebuilding its index.
type ReferenceUpdate struct {
	Source    string    `json:"source,omitempty"`
	Sequences int       `json:"sequences,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
