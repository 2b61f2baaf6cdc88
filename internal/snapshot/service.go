package snapshot

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mtlprog/cdsrisk/internal/domain"
	"github.com/mtlprog/cdsrisk/internal/metrics"
)

// Service builds snapshots after engine runs and serves stored ones.
type Service struct {
	builder *Builder
	repo    Repository
}

// NewService creates a Service. A nil repo disables persistence.
func NewService(builder *Builder, repo Repository) *Service {
	return &Service{builder: builder, repo: repo}
}

// Capture builds the snapshot for a run and stores it. A storage failure is
// logged and the snapshot is still returned.
func (s *Service) Capture(ctx context.Context, runID, workDir string, valuationDate time.Time) domain.MarketDataSnapshot {
	snap := s.builder.Build(workDir, valuationDate)
	metrics.SnapshotsTotal.WithLabelValues(string(snap.Source)).Inc()

	if s.repo == nil {
		return snap
	}

	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("failed to marshal snapshot", "runId", runID, "error", err)
		return snap
	}
	if err := s.repo.Save(ctx, runID, valuationDate, string(snap.Source), data); err != nil {
		slog.Warn("failed to persist snapshot", "runId", runID, "error", err)
	}
	return snap
}

// GetLatest retrieves the most recent snapshot.
func (s *Service) GetLatest(ctx context.Context) (*Snapshot, error) {
	if s.repo == nil {
		return nil, ErrNotFound
	}
	return s.repo.GetLatest(ctx)
}

// GetByDate retrieves the latest snapshot for a valuation date.
func (s *Service) GetByDate(ctx context.Context, date time.Time) (*Snapshot, error) {
	if s.repo == nil {
		return nil, ErrNotFound
	}
	return s.repo.GetByDate(ctx, date)
}

// GetByRun retrieves the snapshot captured for an engine run.
func (s *Service) GetByRun(ctx context.Context, runID string) (*Snapshot, error) {
	if s.repo == nil {
		return nil, ErrNotFound
	}
	return s.repo.GetByRun(ctx, runID)
}

// List retrieves recent snapshots.
func (s *Service) List(ctx context.Context, limit int) ([]Snapshot, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.List(ctx, limit)
}
