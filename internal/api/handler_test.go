package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mtlprog/cdsrisk/internal/domain"
	"github.com/mtlprog/cdsrisk/internal/snapshot"
)

type mockSnapshotRepo struct {
	snapshots     []snapshot.Snapshot
	err           error
	lastListLimit int
}

func (m *mockSnapshotRepo) Save(_ context.Context, _ string, _ time.Time, _ string, _ json.RawMessage) error {
	return nil
}

func (m *mockSnapshotRepo) GetLatest(_ context.Context) (*snapshot.Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.snapshots) == 0 {
		return nil, snapshot.ErrNotFound
	}
	return &m.snapshots[0], nil
}

func (m *mockSnapshotRepo) GetByDate(_ context.Context, date time.Time) (*snapshot.Snapshot, error) {
	for _, s := range m.snapshots {
		if s.ValuationDate.Equal(date) {
			return &s, nil
		}
	}
	return nil, snapshot.ErrNotFound
}

func (m *mockSnapshotRepo) GetByRun(_ context.Context, runID string) (*snapshot.Snapshot, error) {
	for _, s := range m.snapshots {
		if s.RunID == runID {
			return &s, nil
		}
	}
	return nil, snapshot.ErrNotFound
}

func (m *mockSnapshotRepo) List(_ context.Context, limit int) ([]snapshot.Snapshot, error) {
	m.lastListLimit = limit
	if limit > len(m.snapshots) {
		limit = len(m.snapshots)
	}
	return m.snapshots[:limit], nil
}

func newSnapshotService(repo snapshot.Repository) *snapshot.Service {
	return snapshot.NewService(snapshot.NewBuilder("USD"), repo)
}

func sampleSnapshots() []snapshot.Snapshot {
	live, _ := json.Marshal(domain.MarketDataSnapshot{
		Source:         domain.SourceLive,
		DiscountCurves: []domain.DiscountCurve{{Currency: "USD", CurveID: "USD6M"}},
		DefaultCurves:  []domain.DefaultCurve{{Entity: "ACME", Currency: "USD"}, {Entity: "GLOBEX", Currency: "USD"}},
		SkippedLines:   1,
	})
	sample, _ := json.Marshal(domain.MarketDataSnapshot{Source: domain.SourceSample})
	return []snapshot.Snapshot{
		{ID: 2, RunID: "run-b", ValuationDate: time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), Source: "live", Data: live},
		{ID: 1, RunID: "run-a", ValuationDate: time.Date(2025, 6, 27, 0, 0, 0, 0, time.UTC), Source: "sample", Data: sample},
	}
}

func TestSnapshotEndpoints(t *testing.T) {
	repo := &mockSnapshotRepo{snapshots: sampleSnapshots()}
	mux := NewMux(&mockValuator{}, newSnapshotService(repo), "")

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantRunID  string
	}{
		{"latest", "/api/v1/snapshots/latest", http.StatusOK, "run-b"},
		{"by date", "/api/v1/snapshots/2025-06-27", http.StatusOK, "run-a"},
		{"by date missing", "/api/v1/snapshots/2024-01-01", http.StatusNotFound, ""},
		{"by date invalid", "/api/v1/snapshots/june", http.StatusBadRequest, ""},
		{"by run", "/api/v1/runs/run-a/snapshot", http.StatusOK, "run-a"},
		{"by run missing", "/api/v1/runs/nope/snapshot", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantRunID == "" {
				return
			}
			var got snapshot.Snapshot
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.RunID != tt.wantRunID {
				t.Errorf("runId = %q, want %q", got.RunID, tt.wantRunID)
			}
		})
	}
}

func TestGetLatestSnapshotErrors(t *testing.T) {
	tests := []struct {
		name       string
		repo       *mockSnapshotRepo
		wantStatus int
	}{
		{"empty", &mockSnapshotRepo{}, http.StatusNotFound},
		{"repository failure", &mockSnapshotRepo{err: errors.New("connection reset")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSnapshotHandler(newSnapshotService(tt.repo))
			w := httptest.NewRecorder()
			handler.GetLatest(w, httptest.NewRequest(http.MethodGet, "/api/v1/snapshots/latest", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestListSnapshotsLimit(t *testing.T) {
	tests := []struct {
		query     string
		wantLimit int
	}{
		{"", 30},
		{"?limit=1", 1},
		{"?limit=1000", 365},
		{"?limit=abc", 30},
		{"?limit=-5", 30},
	}

	for _, tt := range tests {
		repo := &mockSnapshotRepo{snapshots: sampleSnapshots()}
		handler := NewSnapshotHandler(newSnapshotService(repo))
		w := httptest.NewRecorder()
		handler.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/snapshots"+tt.query, nil))

		if w.Code != http.StatusOK {
			t.Errorf("%q: status = %d, want 200", tt.query, w.Code)
		}
		if repo.lastListLimit != tt.wantLimit {
			t.Errorf("%q: limit = %d, want %d", tt.query, repo.lastListLimit, tt.wantLimit)
		}
	}
}

func TestListSnapshotsWithoutRepository(t *testing.T) {
	handler := NewSnapshotHandler(newSnapshotService(nil))
	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/snapshots", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want empty array", body)
	}
}

func TestListSnapshotsSummaries(t *testing.T) {
	repo := &mockSnapshotRepo{snapshots: sampleSnapshots()}
	handler := NewSnapshotHandler(newSnapshotService(repo))

	tests := []struct {
		query      string
		wantStatus int
		wantRuns   []string
	}{
		{"", http.StatusOK, []string{"run-b", "run-a"}},
		{"?source=live", http.StatusOK, []string{"run-b"}},
		{"?source=missing", http.StatusOK, []string{}},
		{"?source=stale", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		handler.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/snapshots"+tt.query, nil))
		if w.Code != tt.wantStatus {
			t.Errorf("%q: status = %d, want %d", tt.query, w.Code, tt.wantStatus)
			continue
		}
		if tt.wantRuns == nil {
			continue
		}
		var got []snapshotSummary
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("%q: decode: %v", tt.query, err)
		}
		if len(got) != len(tt.wantRuns) {
			t.Fatalf("%q: got %d summaries, want %d", tt.query, len(got), len(tt.wantRuns))
		}
		for i, run := range tt.wantRuns {
			if got[i].RunID != run {
				t.Errorf("%q: [%d].runId = %q, want %q", tt.query, i, got[i].RunID, run)
			}
		}
	}

	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/snapshots?source=live", nil))
	var got []snapshotSummary
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := snapshotSummary{ID: 2, RunID: "run-b", ValuationDate: "2025-06-30", Source: "live",
		DiscountCurves: 1, DefaultCurves: 2, SkippedLines: 1, CreatedAt: got[0].CreatedAt}
	if got[0] != want {
		t.Errorf("summary = %+v, want %+v", got[0], want)
	}
}
