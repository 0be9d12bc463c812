package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marinedata/edna-platform/internal/identify"
	"github.com/marinedata/edna-platform/internal/refindex"
	"github.com/marinedata/edna-platform/pkg/config"
)

const tunaSeq = "ATGCATTGGCACCTACGTAGTTGAACGCTAGGATCCTTAACGTGCAGTCA"

type staticProvider struct {
	refs []refindex.RawReference
}

func (p *staticProvider) ListReferences(ctx context.Context) ([]refindex.RawReference, error) {
	return p.refs, nil
}

func testEngine(t *testing.T, build bool) *identify.Engine {
	t.Helper()
	cfg := config.EngineConfig{
		KmerSize:           5,
		MinSequenceLength:  5,
		MinScore:           50.0,
		TopMatches:         5,
		MaxTopMatches:      20,
		MaxBatchTopMatches: 10,
		AlternativeMatches: 3,
		MaxBatchSize:       50,
		Workers:            4,
		BatchTimeout:       5 * time.Second,
		Confidence:         config.ConfidenceConfig{VeryHigh: 90, High: 75, Medium: 60},
	}
	provider := &staticProvider{refs: []refindex.RawReference{
		{
			SpeciesID:      "SP001",
			ScientificName: "Thunnus albacares",
			CommonName:     "Yellowfin tuna",
			Sequence:       tunaSeq,
		},
		{
			SpeciesID:      "SP002",
			ScientificName: "Katsuwonus pelamis",
			Sequence:       tunaSeq[:40] + "GGCCGGCCGG",
		},
	}}
	eng, err := identify.New(cfg, provider, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if build {
		if err := eng.Rebuild(context.Background()); err != nil {
			t.Fatalf("Rebuild() error: %v", err)
		}
	}
	return eng
}

func testHandler(t *testing.T) *Handler {
	t.Helper()
	return New(testEngine(t, true), nil, nil, nil, nil)
}

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func TestIdentifyEndpoint(t *testing.T) {
	h := testHandler(t)

	rec := postJSON(t, h.Identify, fmt.Sprintf(`{"sequence": %q}`, tunaSeq))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp identifyResponse
	decodeBody(t, rec, &resp)
	if len(resp.Matches) == 0 {
		t.Fatal("no matches in response")
	}
	if resp.Matches[0].SpeciesID != "SP001" || resp.Matches[0].MatchingScore != 100.0 {
		t.Errorf("top match = %+v, want SP001 at 100.0", resp.Matches[0])
	}
	if resp.QueryInfo.SequenceLength != len(tunaSeq) {
		t.Errorf("sequence_length = %d, want %d", resp.QueryInfo.SequenceLength, len(tunaSeq))
	}
	if resp.QueryInfo.KmerSize != 5 {
		t.Errorf("k_mer_size = %d, want 5", resp.QueryInfo.KmerSize)
	}
	if resp.QueryInfo.TotalMatchesFound != len(resp.Matches) {
		t.Errorf("total_matches_found = %d, want %d",
			resp.QueryInfo.TotalMatchesFound, len(resp.Matches))
	}
	if resp.AnalysisTimestamp == "" {
		t.Error("analysis_timestamp missing")
	}
}

func TestIdentifyEndpointValidation(t *testing.T) {
	h := testHandler(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantKind string
	}{
		{"malformed json", `{"sequence": `, http.StatusBadRequest, "invalid_input"},
		{"missing sequence", `{}`, http.StatusBadRequest, "invalid_input"},
		{"invalid alphabet", `{"sequence": "ACGT!ACGTAC"}`, http.StatusBadRequest, "invalid_alphabet"},
		{"too short", `{"sequence": "ACG"}`, http.StatusBadRequest, "too_short"},
		{"min score out of range", fmt.Sprintf(`{"sequence": %q, "min_score": 150}`, tunaSeq), http.StatusBadRequest, "invalid_input"},
		{"non-positive top matches", fmt.Sprintf(`{"sequence": %q, "top_matches": 0}`, tunaSeq), http.StatusBadRequest, "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h.Identify, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			var errResp map[string]string
			decodeBody(t, rec, &errResp)
			if errResp["code"] != tt.wantKind {
				t.Errorf("code = %s, want %s", errResp["code"], tt.wantKind)
			}
		})
	}
}

func TestIdentifyEndpointNotReady(t *testing.T) {
	h := New(testEngine(t, false), nil, nil, nil, nil)

	rec := postJSON(t, h.Identify, fmt.Sprintf(`{"sequence": %q}`, tunaSeq))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503, body = %s", rec.Code, rec.Body.String())
	}
	var errResp map[string]string
	decodeBody(t, rec, &errResp)
	if errResp["code"] != "service_not_ready" {
		t.Errorf("code = %s, want service_not_ready", errResp["code"])
	}
}

func TestBatchIdentifyEndpoint(t *testing.T) {
	h := testHandler(t)

	body := fmt.Sprintf(`{"sequences": [
		{"id": "good", "sequence": %q, "metadata": {"station": "N-04"}},
		{"id": "bad", "sequence": "ACGT!ACGTAC"},
		{"sequence": %q}
	]}`, tunaSeq, tunaSeq)

	rec := postJSON(t, h.BatchIdentify, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp batchResponse
	decodeBody(t, rec, &resp)
	if len(resp.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(resp.Results))
	}

	good := resp.Results[0]
	if good.Status != "ok" || good.BestMatch == nil || good.BestMatch.SpeciesID != "SP001" {
		t.Errorf("good item = %+v", good)
	}
	if good.Metadata["station"] != "N-04" {
		t.Errorf("metadata not echoed: %+v", good.Metadata)
	}

	bad := resp.Results[1]
	if bad.Status != "error" || bad.ErrorCode != "invalid_alphabet" {
		t.Errorf("bad item = %+v", bad)
	}

	if resp.Results[2].ID != "seq_3" {
		t.Errorf("unnamed item ID = %s, want seq_3", resp.Results[2].ID)
	}

	s := resp.Summary
	if s.TotalSequences != 3 || s.Succeeded != 2 || s.Failed != 1 || s.TimedOut != 0 {
		t.Errorf("summary = %+v", s)
	}
}

func TestBatchIdentifyEndpointLimits(t *testing.T) {
	h := testHandler(t)

	t.Run("empty batch", func(t *testing.T) {
		rec := postJSON(t, h.BatchIdentify, `{"sequences": []}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("oversized batch", func(t *testing.T) {
		var items []string
		for i := 0; i < 51; i++ {
			items = append(items, fmt.Sprintf(`{"sequence": %q}`, tunaSeq))
		}
		body := `{"sequences": [` + strings.Join(items, ",") + `]}`
		rec := postJSON(t, h.BatchIdentify, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
		}
	})
}

func TestReferenceStatsEndpoint(t *testing.T) {
	h := testHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ReferenceStats(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var stats map[string]any
	decodeBody(t, rec, &stats)
	if stats["build_id"] == "" {
		t.Error("build_id missing")
	}
	if got := stats["species"].(float64); got != 2 {
		t.Errorf("species = %v, want 2", got)
	}
}

func TestReferenceReloadEndpoint(t *testing.T) {
	h := testHandler(t)
	before := h.engine.Index().BuildID()

	rec := postJSON(t, h.ReferenceReload, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	decodeBody(t, rec, &resp)
	if resp["status"] != "reloaded" {
		t.Errorf("status field = %v, want reloaded", resp["status"])
	}
	if resp["build_id"] == before {
		t.Error("reload did not swap the build ID")
	}
}
