package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates that the requested snapshot was not found.
var ErrNotFound = errors.New("snapshot not found")

const defaultListLimit = 30

// Snapshot is a stored market data snapshot. Data holds the JSON-encoded
// domain.MarketDataSnapshot.
type Snapshot struct {
	ID            int64           `json:"id" db:"id"`
	RunID         string          `json:"runId" db:"run_id"`
	ValuationDate time.Time       `json:"valuationDate" db:"valuation_date"`
	Source        string          `json:"source" db:"source"`
	Data          json.RawMessage `json:"data" db:"data"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
}

// Repository defines persistent storage for snapshots.
type Repository interface {
	Save(ctx context.Context, runID string, date time.Time, source string, data json.RawMessage) error
	GetLatest(ctx context.Context) (*Snapshot, error)
	GetByDate(ctx context.Context, date time.Time) (*Snapshot, error)
	GetByRun(ctx context.Context, runID string) (*Snapshot, error)
	List(ctx context.Context, limit int) ([]Snapshot, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL snapshot repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const selectSnapshot = `SELECT id, run_id, valuation_date, source, data, created_at FROM market_data_snapshots`

// queryOne runs a single-snapshot query, mapping an empty result to ErrNotFound.
func (r *PgRepository) queryOne(ctx context.Context, what, where string, args ...any) (*Snapshot, error) {
	rows, err := r.pool.Query(ctx, selectSnapshot+" "+where+" LIMIT 1", args...)
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", what, err)
	}
	s, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Snapshot])
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("getting %s: %w", what, err)
	}
	return s, nil
}

// Save stores the snapshot of a run, replacing any earlier one for that run.
func (r *PgRepository) Save(ctx context.Context, runID string, date time.Time, source string, data json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO market_data_snapshots (run_id, valuation_date, source, data)
		 VALUES ($1, $2, $3, $4::jsonb)
		 ON CONFLICT (run_id)
		 DO UPDATE SET valuation_date = EXCLUDED.valuation_date, source = EXCLUDED.source, data = EXCLUDED.data`,
		runID, date, source, data)
	if err != nil {
		return fmt.Errorf("saving snapshot for run %s: %w", runID, err)
	}
	return nil
}

func (r *PgRepository) GetLatest(ctx context.Context) (*Snapshot, error) {
	return r.queryOne(ctx, "latest snapshot", `ORDER BY valuation_date DESC, created_at DESC`)
}

// GetByDate returns the most recently captured snapshot for the valuation date.
func (r *PgRepository) GetByDate(ctx context.Context, date time.Time) (*Snapshot, error) {
	return r.queryOne(ctx, "snapshot for "+date.Format(time.DateOnly),
		`WHERE valuation_date = $1 ORDER BY created_at DESC`, date)
}

func (r *PgRepository) GetByRun(ctx context.Context, runID string) (*Snapshot, error) {
	return r.queryOne(ctx, "snapshot for run "+runID, `WHERE run_id = $1`, runID)
}

// List returns up to limit snapshots, newest valuation date first.
func (r *PgRepository) List(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.pool.Query(ctx,
		selectSnapshot+` ORDER BY valuation_date DESC, created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	snapshots, err := pgx.CollectRows(rows, pgx.RowToStructByName[Snapshot])
	if err != nil {
		return nil, fmt.Errorf("collecting snapshots: %w", err)
	}
	return snapshots, nil
}
