// Package api exposes valuations and market data snapshots over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/mtlprog/cdsrisk/internal/domain"
	"github.com/mtlprog/cdsrisk/internal/snapshot"
)

const (
	defaultSnapshotLimit = 30
	maxSnapshotLimit     = 365
)

// SnapshotHandler serves the market data recorded for engine runs.
type SnapshotHandler struct {
	snapshots *snapshot.Service
}

// NewSnapshotHandler creates a new SnapshotHandler.
func NewSnapshotHandler(snapshots *snapshot.Service) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots}
}

// snapshotSummary is a list entry: the stored record without its file
// contents, with curve counts taken from the decoded snapshot.
type snapshotSummary struct {
	ID             int64     `json:"id"`
	RunID          string    `json:"runId"`
	ValuationDate  string    `json:"valuationDate"`
	Source         string    `json:"source"`
	DiscountCurves int       `json:"discountCurves"`
	DefaultCurves  int       `json:"defaultCurves"`
	FXRates        int       `json:"fxRates"`
	SkippedLines   int       `json:"skippedLines"`
	CreatedAt      time.Time `json:"createdAt"`
}

func summarize(s snapshot.Snapshot) snapshotSummary {
	sum := snapshotSummary{
		ID:            s.ID,
		RunID:         s.RunID,
		ValuationDate: s.ValuationDate.Format(time.DateOnly),
		Source:        s.Source,
		CreatedAt:     s.CreatedAt,
	}
	var snap domain.MarketDataSnapshot
	if err := json.Unmarshal(s.Data, &snap); err != nil {
		slog.Warn("stored snapshot is not decodable", "runId", s.RunID, "error", err)
		return sum
	}
	sum.DiscountCurves = len(snap.DiscountCurves)
	sum.DefaultCurves = len(snap.DefaultCurves)
	sum.FXRates = len(snap.FXRates)
	sum.SkippedLines = snap.SkippedLines
	return sum
}

// GetLatest handles GET /api/v1/snapshots/latest.
func (h *SnapshotHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	s, err := h.snapshots.GetLatest(r.Context())
	h.respond(w, s, err, "no snapshots found")
}

// GetByDate handles GET /api/v1/snapshots/{date}: the most recent run for
// that valuation date.
func (h *SnapshotHandler) GetByDate(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse(time.DateOnly, r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return
	}
	s, err := h.snapshots.GetByDate(r.Context(), date)
	h.respond(w, s, err, "snapshot not found for date")
}

// GetByRun handles GET /api/v1/runs/{runId}/snapshot.
func (h *SnapshotHandler) GetByRun(w http.ResponseWriter, r *http.Request) {
	s, err := h.snapshots.GetByRun(r.Context(), r.PathValue("runId"))
	h.respond(w, s, err, "snapshot not found for run")
}

// List handles GET /api/v1/snapshots?limit=&source=. Entries are summaries,
// newest first; source keeps only live, sample or missing snapshots.
func (h *SnapshotHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultSnapshotLimit
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = min(n, maxSnapshotLimit)
		}
	}
	source := domain.Source(q.Get("source"))
	switch source {
	case "", domain.SourceLive, domain.SourceSample, domain.SourceMissing:
	default:
		writeError(w, http.StatusBadRequest, "source must be live, sample or missing")
		return
	}

	snapshots, err := h.snapshots.List(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list snapshots", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if source != "" {
		snapshots = lo.Filter(snapshots, func(s snapshot.Snapshot, _ int) bool { return s.Source == string(source) })
	}
	writeJSON(w, http.StatusOK, lo.Map(snapshots, func(s snapshot.Snapshot, _ int) snapshotSummary { return summarize(s) }))
}

func (h *SnapshotHandler) respond(w http.ResponseWriter, s *snapshot.Snapshot, err error, notFound string) {
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case err != nil:
		slog.Error("failed to get snapshot", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusOK, s)
	}
}
