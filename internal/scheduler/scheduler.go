// Package scheduler runs the multi-tier scan loops. Each category has its
// own queue and cadence; every tick drains the due tokens in priority order
// up to the category's batch cap.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pumpfun-scanner/config"
	"pumpfun-scanner/internal/category"
	"pumpfun-scanner/internal/database"
	"pumpfun-scanner/internal/events"
	"pumpfun-scanner/internal/logging"
)

const (
	scanTimeout    = 60 * time.Second
	sweepInterval  = 60 * time.Second
	maxParallelism = 8
)

// basePriority orders categories within a tick. The effective priority of a
// token is base minus its in-category scan count, so fresher tokens scan
// first.
var basePriority = map[category.Category]int{
	category.Aim:     100,
	category.High:    80,
	category.Medium:  60,
	category.New:     50,
	category.Low:     30,
	category.Archive: 10,
}

// batchCap limits how many tokens one tick may scan per category.
var batchCap = map[category.Category]int{
	category.Aim:     20,
	category.High:    50,
	category.Medium:  30,
	category.New:     20,
	category.Low:     10,
	category.Archive: 5,
}

// ScanResult is the outcome of one scan handler invocation.
type ScanResult struct {
	Success    bool
	MarketCap  *float64
	APIsUsed   []string
	Err        error
	DurationMs int64
}

// Handler performs the actual scan work for one token.
type Handler interface {
	Scan(ctx context.Context, mint string, cat category.Category) ScanResult
}

// CategoryManager is the slice of the category manager the scheduler drives.
type CategoryManager interface {
	RecordScanComplete(ctx context.Context, mint string)
	RecordTimeout(ctx context.Context, mint string)
	UpdateMarketCap(ctx context.Context, mint string, marketCap float64)
	ScanCountOf(mint string) int
	CategoryOf(mint string) (category.Category, bool)
}

// Store is the persistence slice the scheduler writes through.
type Store interface {
	InsertScanLog(ctx context.Context, s *database.ScanLog) error
	RecordScan(ctx context.Context, address string, scanCount int) error
}

type queued struct {
	mint       string
	cat        category.Category
	nextScanAt time.Time
	enqueuedAt time.Time
}

// Scheduler owns the per-category scan queues and their tickers.
type Scheduler struct {
	mgr     CategoryManager
	store   Store
	handler Handler
	bus     *events.EventBus
	cfg     func() *config.Config

	mu     sync.Mutex
	queues map[category.Category]map[string]*queued

	cron   *cron.Cron
	quit   chan struct{}
	wg     sync.WaitGroup
	sem    chan struct{}
	now    func() time.Time
	logger *logging.Logger
}

// New creates a scheduler. Start must be called before any ticks run.
func New(mgr CategoryManager, store Store, handler Handler, bus *events.EventBus, cfg func() *config.Config) *Scheduler {
	queues := make(map[category.Category]map[string]*queued, len(basePriority))
	for cat := range basePriority {
		queues[cat] = make(map[string]*queued)
	}
	return &Scheduler{
		mgr:     mgr,
		store:   store,
		handler: handler,
		bus:     bus,
		cfg:     cfg,
		queues:  queues,
		quit:    make(chan struct{}),
		sem:     make(chan struct{}, maxParallelism),
		now:     time.Now,
		logger:  logging.WithComponent("scheduler"),
	}
}

// Start wires the coarse category loops onto a cron runner, the AIM fast
// loop onto its own ticker, and starts the duration sweeper.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithSeconds())

	cfg := s.cfg()
	for _, cat := range []category.Category{category.New, category.Low, category.Medium, category.High, category.Archive} {
		cat := cat
		sc := cfg.ScanFor(string(cat))
		spec := fmt.Sprintf("@every %s", sc.Interval)
		if _, err := s.cron.AddFunc(spec, func() { s.tick(ctx, cat) }); err != nil {
			return fmt.Errorf("schedule %s loop: %w", cat, err)
		}
	}
	s.cron.Start()

	// AIM runs too fast for the shared cron; it gets a dedicated ticker.
	s.wg.Add(1)
	go s.aimLoop(ctx)

	s.wg.Add(1)
	go s.sweepLoop(ctx)

	s.logger.Info("Scheduler started", "categories", len(s.queues))
	return nil
}

// Stop halts the tickers and waits for in-flight scans to finish or the
// context to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	if s.cron != nil {
		s.cron.Stop()
	}
	close(s.quit)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out with scans in flight")
	}
}

// Schedule places a token in its category's queue, removing it from every
// other queue first. The first scan is due one interval after scheduling.
func (s *Scheduler) Schedule(mint string, cat category.Category) {
	if _, ok := basePriority[cat]; !ok {
		return
	}
	now := s.now()
	interval := s.cfg().ScanFor(string(cat)).Interval

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.queues {
		delete(q, mint)
	}
	s.queues[cat][mint] = &queued{
		mint:       mint,
		cat:        cat,
		nextScanAt: now.Add(interval),
		enqueuedAt: now,
	}
}

// Remove drops a token from every queue.
func (s *Scheduler) Remove(mint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.queues {
		delete(q, mint)
	}
}

// HandleCategoryChange reacts to a committed transition: terminal states
// drop the token, everything else re-queues it under the new cadence.
func (s *Scheduler) HandleCategoryChange(mint string, from, to category.Category) {
	if to.Terminal() {
		s.Remove(mint)
		return
	}
	s.Schedule(mint, to)
}

// QueueDepths returns the current queue length per category.
func (s *Scheduler) QueueDepths() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.queues))
	for cat, q := range s.queues {
		out[string(cat)] = len(q)
	}
	return out
}

func (s *Scheduler) aimLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg().ScanFor(string(category.Aim)).Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, category.Aim)
		}
	}
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// tick drains the due tokens of one category in priority order, capped by
// the category's batch size.
func (s *Scheduler) tick(ctx context.Context, cat category.Category) {
	batch := s.dueBatch(cat)
	if len(batch) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, q := range batch {
		q := q
		wg.Add(1)
		s.sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-s.sem }()
			s.runScan(ctx, q)
		}()
	}
	wg.Wait()
}

// dueBatch selects and advances the due entries for one category. Priority
// is the category base minus the token's in-category scan count.
func (s *Scheduler) dueBatch(cat category.Category) []*queued {
	now := s.now()
	interval := s.cfg().ScanFor(string(cat)).Interval
	base := basePriority[cat]
	limit := batchCap[cat]

	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]*queued, 0, limit)
	for _, q := range s.queues[cat] {
		if !q.nextScanAt.After(now) {
			due = append(due, q)
		}
	}
	prio := func(q *queued) int { return base - s.mgr.ScanCountOf(q.mint) }
	sort.Slice(due, func(i, j int) bool {
		pi, pj := prio(due[i]), prio(due[j])
		if pi != pj {
			return pi > pj
		}
		return due[i].nextScanAt.Before(due[j].nextScanAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	for _, q := range due {
		q.nextScanAt = now.Add(interval)
	}
	return due
}

// runScan executes one scan and records its outcome. Failed scans do not
// advance the machine's scan count; they only log and emit scanFailed.
func (s *Scheduler) runScan(ctx context.Context, q *queued) {
	scanCtx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	started := s.now()
	res := s.handler.Scan(scanCtx, q.mint, q.cat)
	if res.DurationMs == 0 {
		res.DurationMs = s.now().Sub(started).Milliseconds()
	}

	scanNumber := s.mgr.ScanCountOf(q.mint) + 1
	maxScans := s.cfg().ScanFor(string(q.cat)).MaxScans
	log := &database.ScanLog{
		TokenAddress: q.mint,
		Category:     string(q.cat),
		ScanNumber:   scanNumber,
		DurationMs:   res.DurationMs,
		APIsUsed:     res.APIsUsed,
		IsFinal:      scanNumber >= maxScans,
	}
	if res.Err != nil {
		msg := res.Err.Error()
		log.Error = &msg
	}
	if err := s.store.InsertScanLog(ctx, log); err != nil {
		s.logger.Error("Scan log insert failed", "mint", q.mint, "error", err)
	}

	if !res.Success {
		errMsg := "scan failed"
		if res.Err != nil {
			errMsg = res.Err.Error()
		}
		logging.ScanContext(q.mint, string(q.cat), scanNumber).
			Warn("Scan failed", "error", errMsg)
		s.bus.PublishScanFailed(q.mint, string(q.cat), errMsg)
		return
	}

	if err := s.store.RecordScan(ctx, q.mint, scanNumber); err != nil {
		s.logger.Error("Scan record failed", "mint", q.mint, "error", err)
	}
	if res.MarketCap != nil {
		s.mgr.UpdateMarketCap(ctx, q.mint, *res.MarketCap)
	}
	s.mgr.RecordScanComplete(ctx, q.mint)
}

// sweep removes tokens whose category duration elapsed and routes the
// timeout through the state machine.
func (s *Scheduler) sweep(ctx context.Context) {
	now := s.now()
	cfg := s.cfg()

	type expired struct {
		mint string
		cat  category.Category
	}
	var out []expired

	s.mu.Lock()
	for cat, q := range s.queues {
		dur := cfg.ScanFor(string(cat)).Duration
		for mint, entry := range q {
			if now.Sub(entry.enqueuedAt) >= dur {
				delete(q, mint)
				out = append(out, expired{mint: mint, cat: cat})
			}
		}
	}
	s.mu.Unlock()

	for _, e := range out {
		s.bus.PublishTokenTimeout(e.mint, string(e.cat), s.mgr.ScanCountOf(e.mint))
		s.mgr.RecordTimeout(ctx, e.mint)
		// A machine may absorb the timeout and stay put (the AIM in-band
		// guard). Re-queue it with a fresh window so it keeps scanning.
		if cur, ok := s.mgr.CategoryOf(e.mint); ok && cur == e.cat {
			s.Schedule(e.mint, e.cat)
		}
	}
}
