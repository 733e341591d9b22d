package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pumpfun-scanner/config"
	"pumpfun-scanner/internal/category"
	"pumpfun-scanner/internal/database"
	"pumpfun-scanner/internal/events"
)

type fakeManager struct {
	mu         sync.Mutex
	scanCounts map[string]int
	categories map[string]category.Category
	completed  []string
	timeouts   []string
	updates    map[string]float64
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		scanCounts: make(map[string]int),
		categories: make(map[string]category.Category),
		updates:    make(map[string]float64),
	}
}

func (f *fakeManager) RecordScanComplete(_ context.Context, mint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, mint)
	f.scanCounts[mint]++
}

func (f *fakeManager) RecordTimeout(_ context.Context, mint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeouts = append(f.timeouts, mint)
}

func (f *fakeManager) UpdateMarketCap(_ context.Context, mint string, mc float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[mint] = mc
}

func (f *fakeManager) ScanCountOf(mint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanCounts[mint]
}

func (f *fakeManager) CategoryOf(mint string) (category.Category, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.categories[mint]
	return c, ok
}

type fakeStore struct {
	mu    sync.Mutex
	logs  []*database.ScanLog
	scans map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{scans: make(map[string]int)}
}

func (f *fakeStore) InsertScanLog(_ context.Context, s *database.ScanLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, s)
	return nil
}

func (f *fakeStore) RecordScan(_ context.Context, address string, scanCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans[address] = scanCount
	return nil
}

type fakeHandler struct {
	result ScanResult
}

func (f *fakeHandler) Scan(context.Context, string, category.Category) ScanResult {
	return f.result
}

func testConfig() *config.Config {
	return &config.Config{
		Thresholds: config.ThresholdConfig{
			LowMax: 8_000, MediumMax: 19_000, HighMax: 35_000, AimMin: 35_000, AimMax: 105_000,
		},
		Scan: map[string]config.ScanConfig{
			"NEW":     {Interval: 60 * time.Second, Duration: 30 * time.Minute, MaxScans: 30},
			"LOW":     {Interval: 10 * time.Minute, Duration: 90 * time.Minute, MaxScans: 9},
			"MEDIUM":  {Interval: 5 * time.Minute, Duration: time.Hour, MaxScans: 12},
			"HIGH":    {Interval: 2 * time.Minute, Duration: 30 * time.Minute, MaxScans: 15},
			"AIM":     {Interval: 10 * time.Second, Duration: 10 * time.Minute, MaxScans: 60},
			"ARCHIVE": {Interval: time.Hour, Duration: 24 * time.Hour, MaxScans: 24},
		},
	}
}

func testScheduler(mgr *fakeManager, store *fakeStore, h Handler) (*Scheduler, *time.Time) {
	cfg := testConfig()
	s := New(mgr, store, h, events.NewEventBus(), func() *config.Config { return cfg })
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestScheduleAndDueSelection(t *testing.T) {
	mgr := newFakeManager()
	s, now := testScheduler(mgr, newFakeStore(), &fakeHandler{})

	s.Schedule("mint-a", category.Medium)
	if got := s.dueBatch(category.Medium); len(got) != 0 {
		t.Fatalf("token due before its interval elapsed: %d", len(got))
	}

	*now = now.Add(5 * time.Minute)
	got := s.dueBatch(category.Medium)
	if len(got) != 1 || got[0].mint != "mint-a" {
		t.Fatalf("due batch = %+v, want [mint-a]", got)
	}

	// Selection advances nextScanAt, so the token is not due again until
	// another interval passes.
	if again := s.dueBatch(category.Medium); len(again) != 0 {
		t.Errorf("token due twice in one interval: %d", len(again))
	}
}

func TestDueBatchPriorityAndCap(t *testing.T) {
	mgr := newFakeManager()
	s, now := testScheduler(mgr, newFakeStore(), &fakeHandler{})

	// LOW's batch cap is 10; enqueue 12 with ascending scan counts so the
	// two most-scanned tokens fall off the batch.
	for i := 0; i < 12; i++ {
		mint := fmt.Sprintf("mint-%02d", i)
		s.Schedule(mint, category.Low)
		mgr.scanCounts[mint] = i
	}
	*now = now.Add(10 * time.Minute)

	got := s.dueBatch(category.Low)
	if len(got) != 10 {
		t.Fatalf("batch size = %d, want 10", len(got))
	}
	for i, q := range got {
		want := fmt.Sprintf("mint-%02d", i)
		if q.mint != want {
			t.Errorf("batch[%d] = %s, want %s", i, q.mint, want)
		}
	}
}

func TestScheduleMovesAcrossQueues(t *testing.T) {
	mgr := newFakeManager()
	s, _ := testScheduler(mgr, newFakeStore(), &fakeHandler{})

	s.Schedule("mint-a", category.New)
	s.HandleCategoryChange("mint-a", category.New, category.Aim)

	depths := s.QueueDepths()
	if depths["NEW"] != 0 || depths["AIM"] != 1 {
		t.Errorf("queue depths = %v, want NEW=0 AIM=1", depths)
	}

	s.HandleCategoryChange("mint-a", category.Aim, category.Complete)
	if depths := s.QueueDepths(); depths["AIM"] != 0 {
		t.Errorf("terminal transition left token queued: %v", depths)
	}
}

func TestRunScanSuccess(t *testing.T) {
	mgr := newFakeManager()
	store := newFakeStore()
	mc := 40_000.0
	s, _ := testScheduler(mgr, store, &fakeHandler{result: ScanResult{
		Success:    true,
		MarketCap:  &mc,
		APIsUsed:   []string{"market-data"},
		DurationMs: 120,
	}})

	s.runScan(context.Background(), &queued{mint: "mint-a", cat: category.High})

	if len(store.logs) != 1 {
		t.Fatalf("scan logs = %d, want 1", len(store.logs))
	}
	log := store.logs[0]
	if log.ScanNumber != 1 || log.IsFinal {
		t.Errorf("scan log = number %d final %v, want 1 false", log.ScanNumber, log.IsFinal)
	}
	if store.scans["mint-a"] != 1 {
		t.Errorf("scan record = %d, want 1", store.scans["mint-a"])
	}
	if mgr.updates["mint-a"] != 40_000 {
		t.Errorf("market cap update = %v, want 40000", mgr.updates["mint-a"])
	}
	if len(mgr.completed) != 1 {
		t.Errorf("scan complete events = %d, want 1", len(mgr.completed))
	}
}

func TestRunScanMarksFinal(t *testing.T) {
	mgr := newFakeManager()
	store := newFakeStore()
	s, _ := testScheduler(mgr, store, &fakeHandler{result: ScanResult{Success: true}})

	// LOW allows 9 scans; the 9th is final.
	mgr.scanCounts["mint-a"] = 8
	s.runScan(context.Background(), &queued{mint: "mint-a", cat: category.Low})

	if len(store.logs) != 1 || !store.logs[0].IsFinal {
		t.Fatalf("expected final scan log, got %+v", store.logs)
	}
}

func TestRunScanFailureSkipsProgress(t *testing.T) {
	mgr := newFakeManager()
	store := newFakeStore()
	s, _ := testScheduler(mgr, store, &fakeHandler{result: ScanResult{
		Success: false,
		Err:     errors.New("provider unavailable"),
	}})

	s.runScan(context.Background(), &queued{mint: "mint-a", cat: category.Medium})

	if len(store.logs) != 1 {
		t.Fatalf("scan logs = %d, want 1", len(store.logs))
	}
	if store.logs[0].Error == nil || *store.logs[0].Error != "provider unavailable" {
		t.Errorf("scan log error = %v", store.logs[0].Error)
	}
	if len(mgr.completed) != 0 {
		t.Errorf("failed scan advanced the machine: %v", mgr.completed)
	}
	if len(store.scans) != 0 {
		t.Errorf("failed scan recorded on the token row: %v", store.scans)
	}
}

func TestSweepExpiresAndRequeues(t *testing.T) {
	mgr := newFakeManager()
	s, now := testScheduler(mgr, newFakeStore(), &fakeHandler{})

	// mint-gone leaves its category on timeout; mint-stay absorbs it.
	s.Schedule("mint-gone", category.New)
	s.Schedule("mint-stay", category.Aim)
	mgr.categories["mint-stay"] = category.Aim

	*now = now.Add(31 * time.Minute)
	s.sweep(context.Background())

	if len(mgr.timeouts) != 2 {
		t.Fatalf("timeouts = %v, want both tokens", mgr.timeouts)
	}
	depths := s.QueueDepths()
	if depths["NEW"] != 0 {
		t.Errorf("expired NEW token still queued: %v", depths)
	}
	if depths["AIM"] != 1 {
		t.Errorf("in-band AIM token not re-queued after timeout: %v", depths)
	}
}
