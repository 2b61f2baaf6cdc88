package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mtlprog/cdsrisk/internal/domain"
)

type mockRepo struct {
	saveErr     error
	savedRunID  string
	savedSource string
	savedData   json.RawMessage
	savedDate   time.Time
	latest      *Snapshot
	latestErr   error
	byRun       *Snapshot
	byRunErr    error
	list        []Snapshot
	listErr     error
	listLimit   int
}

func (m *mockRepo) Save(_ context.Context, runID string, date time.Time, source string, data json.RawMessage) error {
	m.savedRunID = runID
	m.savedSource = source
	m.savedData = data
	m.savedDate = date
	return m.saveErr
}

func (m *mockRepo) GetLatest(_ context.Context) (*Snapshot, error) {
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	return m.latest, nil
}

func (m *mockRepo) GetByDate(_ context.Context, _ time.Time) (*Snapshot, error) {
	return m.GetLatest(context.Background())
}

func (m *mockRepo) GetByRun(_ context.Context, _ string) (*Snapshot, error) {
	if m.byRunErr != nil {
		return nil, m.byRunErr
	}
	return m.byRun, nil
}

func (m *mockRepo) List(_ context.Context, limit int) ([]Snapshot, error) {
	m.listLimit = limit
	return m.list, m.listErr
}

var valuationDate = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

func TestCaptureSavesSnapshot(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(NewBuilder("USD"), repo)

	snap := svc.Capture(context.Background(), "run-1", t.TempDir(), valuationDate)

	if snap.Source != domain.SourceSample {
		t.Errorf("Source = %q, want sample", snap.Source)
	}
	if repo.savedRunID != "run-1" {
		t.Errorf("saved run = %q, want run-1", repo.savedRunID)
	}
	if repo.savedSource != string(domain.SourceSample) {
		t.Errorf("saved source = %q", repo.savedSource)
	}
	if !repo.savedDate.Equal(valuationDate) {
		t.Errorf("saved date = %v", repo.savedDate)
	}

	var decoded domain.MarketDataSnapshot
	if err := json.Unmarshal(repo.savedData, &decoded); err != nil {
		t.Fatalf("saved data is not a snapshot: %v", err)
	}
	if len(decoded.DiscountCurves) != len(snap.DiscountCurves) {
		t.Errorf("saved %d discount curves, want %d", len(decoded.DiscountCurves), len(snap.DiscountCurves))
	}
}

func TestCaptureReturnsSnapshotWhenSaveFails(t *testing.T) {
	repo := &mockRepo{saveErr: errors.New("connection refused")}
	svc := NewService(NewBuilder("USD"), repo)

	snap := svc.Capture(context.Background(), "run-2", t.TempDir(), valuationDate)
	if len(snap.DiscountCurves) == 0 {
		t.Error("expected snapshot despite save failure")
	}
}

func TestCaptureWithoutRepository(t *testing.T) {
	svc := NewService(NewBuilder("USD"), nil)

	snap := svc.Capture(context.Background(), "run-3", t.TempDir(), valuationDate)
	if snap.BaseCurrency != "USD" {
		t.Errorf("BaseCurrency = %q", snap.BaseCurrency)
	}
	if _, err := svc.GetLatest(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetLatest() error = %v, want ErrNotFound", err)
	}
	if list, err := svc.List(context.Background(), 5); err != nil || list != nil {
		t.Errorf("List() = %v, %v", list, err)
	}
}

func TestServiceReadsDelegateToRepository(t *testing.T) {
	repo := &mockRepo{
		latest:   &Snapshot{ID: 7, RunID: "run-7"},
		byRunErr: ErrNotFound,
		list:     []Snapshot{{ID: 1}, {ID: 2}},
	}
	svc := NewService(NewBuilder("USD"), repo)
	ctx := context.Background()

	latest, err := svc.GetLatest(ctx)
	if err != nil || latest.ID != 7 {
		t.Errorf("GetLatest() = %+v, %v", latest, err)
	}
	byDate, err := svc.GetByDate(ctx, valuationDate)
	if err != nil || byDate.RunID != "run-7" {
		t.Errorf("GetByDate() = %+v, %v", byDate, err)
	}
	if _, err := svc.GetByRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByRun() error = %v, want ErrNotFound", err)
	}
	list, err := svc.List(ctx, 10)
	if err != nil || len(list) != 2 || repo.listLimit != 10 {
		t.Errorf("List() = %d items, limit %d, err %v", len(list), repo.listLimit, err)
	}
}
