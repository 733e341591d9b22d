package category

import (
	"context"
	"sync"
	"time"

	"pumpfun-scanner/config"
	"pumpfun-scanner/internal/database"
	"pumpfun-scanner/internal/events"
	"pumpfun-scanner/internal/logging"
)

const (
	rehydrateBatchSize = 1000
	rehydrateMaxAge    = 7 * 24 * time.Hour
	rehydratePacing    = 100 * time.Millisecond

	bulkChunkSize = 10
	bulkPacing    = 10 * time.Millisecond
)

// SchedulerHook receives committed category changes so the scan queues can
// be reconfigured. The scheduler registers itself after construction to keep
// the dependency one-way.
type SchedulerHook interface {
	HandleCategoryChange(mint string, from, to Category)
}

// Store is the repository slice the manager persists through.
type Store interface {
	ListActiveTokens(ctx context.Context, categories []string, maxAge time.Duration, limit, offset int) ([]*database.Token, error)
	CommitTransition(ctx context.Context, t *database.CategoryTransition, toAim bool) (int, error)
}

// Manager owns every live state machine and the state cache. All events for
// one token are serialized through that token's entry lock, so transitions
// stay totally ordered per token without a global lock.
type Manager struct {
	repo Store
	bus  *events.EventBus
	cfg  func() *config.Config

	mu      sync.RWMutex
	entries map[string]*entry
	cache   map[string]Category

	hookMu sync.RWMutex
	hook   SchedulerHook

	logger *logging.Logger
}

type entry struct {
	mu      sync.Mutex
	machine *Machine
}

// NewManager creates a category manager.
func NewManager(repo Store, bus *events.EventBus, cfg func() *config.Config) *Manager {
	return &Manager{
		repo:    repo,
		bus:     bus,
		cfg:     cfg,
		entries: make(map[string]*entry),
		cache:   make(map[string]Category),
		logger:  logging.WithComponent("category-manager"),
	}
}

// SetScheduler registers the scan-scheduler hook.
func (mgr *Manager) SetScheduler(hook SchedulerHook) {
	mgr.hookMu.Lock()
	defer mgr.hookMu.Unlock()
	mgr.hook = hook
}

// Rehydrate loads active tokens in pages and recreates their machines in the
// persisted state, confirming each with a synthetic mid-bracket update.
// Errors are logged and do not halt startup.
func (mgr *Manager) Rehydrate(ctx context.Context) {
	categories := make([]string, len(Active))
	for i, c := range Active {
		categories[i] = string(c)
	}

	total := 0
	for offset := 0; ; offset += rehydrateBatchSize {
		tokens, err := mgr.repo.ListActiveTokens(ctx, categories, rehydrateMaxAge, rehydrateBatchSize, offset)
		if err != nil {
			mgr.logger.Error("Rehydrate page failed", "offset", offset, "error", err)
			return
		}
		if len(tokens) == 0 {
			break
		}

		for _, tok := range tokens {
			cat := Category(tok.Category)
			m := RestoreMachine(tok.Address, cat, tok.CategoryUpdatedAt, tok.CategoryScanCount, mgr.cfg)
			mgr.mu.Lock()
			mgr.entries[tok.Address] = &entry{machine: m}
			mgr.cache[tok.Address] = m.State()
			mgr.mu.Unlock()

			// Synthetic confirmation at the bracket midpoint. For a machine
			// already in its persisted category this is a no-op; a token
			// rehydrated into a stale state re-routes on the next real update.
			if mid := Midpoint(mgr.cfg().Thresholds, cat); mid > 0 {
				mgr.apply(ctx, tok.Address, UpdateMarketCap{MarketCap: mid}, ReasonMarketCapChange)
			}
			total++
		}

		if len(tokens) < rehydrateBatchSize {
			break
		}
		// Pace page loads so rehydrate does not starve the pool.
		select {
		case <-ctx.Done():
			return
		case <-time.After(rehydratePacing):
		}
	}
	mgr.logger.Info("Rehydrate complete", "machines", total)
}

// UpdateMarketCap feeds a market-cap observation to a token's machine,
// creating the machine on demand.
func (mgr *Manager) UpdateMarketCap(ctx context.Context, mint string, marketCap float64) {
	mgr.apply(ctx, mint, UpdateMarketCap{MarketCap: marketCap}, ReasonMarketCapChange)
}

// UpdateMarketCapThreshold is the stream's per-price entry point; committed
// transitions carry the market_cap_threshold reason.
func (mgr *Manager) UpdateMarketCapThreshold(ctx context.Context, mint string, marketCap float64) {
	mgr.apply(ctx, mint, UpdateMarketCap{MarketCap: marketCap}, ReasonMarketCapThreshold)
}

// BulkUpdateMarketCap processes updates in small chunks with pacing between
// chunks.
func (mgr *Manager) BulkUpdateMarketCap(ctx context.Context, updates map[string]float64) {
	i := 0
	for mint, mc := range updates {
		mgr.UpdateMarketCap(ctx, mint, mc)
		i++
		if i%bulkChunkSize == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(bulkPacing):
			}
		}
	}
}

// RecordScanComplete feeds a completed scan to a token's machine.
func (mgr *Manager) RecordScanComplete(ctx context.Context, mint string) {
	mgr.apply(ctx, mint, ScanComplete{}, ReasonScanExhausted)
}

// RecordTimeout feeds a duration timeout to a token's machine.
func (mgr *Manager) RecordTimeout(ctx context.Context, mint string) {
	mgr.apply(ctx, mint, Timeout{}, ReasonDurationTimeout)
}

// ManualOverride forces a token into a category with a caller-supplied
// reason.
func (mgr *Manager) ManualOverride(ctx context.Context, mint string, target Category, reason string) {
	mgr.apply(ctx, mint, ManualOverride{Target: target, Reason: reason}, ReasonManualOverride)
}

// BuyExecuted marks a token's buy as executed.
func (mgr *Manager) BuyExecuted(ctx context.Context, mint string) {
	mgr.apply(ctx, mint, BuyExecuted{}, ReasonBuyExecuted)
}

// ForceArchive archives a token regardless of market cap.
func (mgr *Manager) ForceArchive(ctx context.Context, mint string, reason string) {
	mgr.apply(ctx, mint, ForceArchive{Reason: reason}, ReasonForceArchive)
}

// CategoryOf returns the cached category for a token.
func (mgr *Manager) CategoryOf(mint string) (Category, bool) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	c, ok := mgr.cache[mint]
	return c, ok
}

// Each calls fn for every cached token and its category. Used to seed the
// scan queues after rehydrate.
func (mgr *Manager) Each(fn func(mint string, cat Category)) {
	mgr.mu.RLock()
	snapshot := make(map[string]Category, len(mgr.cache))
	for mint, c := range mgr.cache {
		snapshot[mint] = c
	}
	mgr.mu.RUnlock()
	for mint, c := range snapshot {
		fn(mint, c)
	}
}

// MachineCount returns the number of live machines.
func (mgr *Manager) MachineCount() int {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return len(mgr.entries)
}

// ScanCountOf returns the current in-category scan count for a token.
func (mgr *Manager) ScanCountOf(mint string) int {
	mgr.mu.RLock()
	e, ok := mgr.entries[mint]
	mgr.mu.RUnlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.machine.ScanCount()
}

// Shutdown drops all machines. Persisted state survives; the next start
// rehydrates.
func (mgr *Manager) Shutdown() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.entries = make(map[string]*entry)
	mgr.cache = make(map[string]Category)
	mgr.logger.Info("Category manager shut down")
}

// apply routes one event through a token's machine and persists any
// resulting transition. Never panics into callers; failures are logged and
// the machine stays alive so the transition retries on the next event.
func (mgr *Manager) apply(ctx context.Context, mint string, ev Event, reason string) {
	e := mgr.entryFor(mint)
	e.mu.Lock()
	// Snapshot for rollback: transition() resets these before the commit.
	prev := machineSnapshot{
		enteredAt: e.machine.enteredAt,
		scanCount: e.machine.scanCount,
	}
	tr := e.machine.Apply(ev)
	state := e.machine.State()
	e.mu.Unlock()

	mgr.mu.Lock()
	mgr.cache[mint] = state
	mgr.mu.Unlock()

	if tr == nil {
		return
	}
	if reason == ReasonMarketCapThreshold && tr.Reason == ReasonMarketCapChange {
		tr.Reason = ReasonMarketCapThreshold
	}
	mgr.commitTransition(ctx, e, tr, prev)
}

type machineSnapshot struct {
	enteredAt time.Time
	scanCount int
}

func (mgr *Manager) entryFor(mint string) *entry {
	mgr.mu.RLock()
	e, ok := mgr.entries[mint]
	mgr.mu.RUnlock()
	if ok {
		return e
	}

	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if e, ok := mgr.entries[mint]; ok {
		return e
	}
	e = &entry{machine: NewMachine(mint, mgr.cfg)}
	mgr.entries[mint] = e
	mgr.cache[mint] = e.machine.State()
	return e
}

// commitTransition persists the token-row update and the transition log in
// one transaction, then emits events and notifies the scheduler. On commit
// failure the machine state is rolled back so the next event retries.
func (mgr *Manager) commitTransition(ctx context.Context, e *entry, tr *Transition, prev machineSnapshot) {
	aimAttempts, err := mgr.repo.CommitTransition(ctx, &database.CategoryTransition{
		TokenAddress:          tr.Mint,
		FromCategory:          string(tr.From),
		ToCategory:            string(tr.To),
		MarketCapAtTransition: tr.MarketCap,
		Reason:                tr.Reason,
		Metadata:              tr.Metadata,
	}, tr.To == Aim)
	if err != nil {
		logging.TransitionContext(tr.Mint, string(tr.From), string(tr.To), tr.MarketCap).
			Error("Transition commit failed, will retry on next event", "error", err)
		// Roll the machine back so the same transition fires again. The
		// duration window and scan count are part of the rolled-back state.
		e.mu.Lock()
		e.machine.state = tr.From
		e.machine.enteredAt = prev.enteredAt
		e.machine.scanCount = prev.scanCount
		e.mu.Unlock()
		mgr.mu.Lock()
		mgr.cache[tr.Mint] = tr.From
		mgr.mu.Unlock()
		return
	}

	logging.TransitionContext(tr.Mint, string(tr.From), string(tr.To), tr.MarketCap).
		Info("Category transition", "reason", tr.Reason)

	// categoryChange is only emitted after the commit.
	mgr.bus.PublishCategoryChange(tr.Mint, string(tr.From), string(tr.To), tr.MarketCap, tr.Reason)
	if tr.To == Aim {
		mgr.bus.PublishAimEntered(tr.Mint, tr.MarketCap, aimAttempts)
	}

	mgr.hookMu.RLock()
	hook := mgr.hook
	mgr.hookMu.RUnlock()
	if hook != nil {
		hook.HandleCategoryChange(tr.Mint, tr.From, tr.To)
	}

	if tr.To.Terminal() {
		mgr.mu.Lock()
		delete(mgr.entries, tr.Mint)
		delete(mgr.cache, tr.Mint)
		mgr.mu.Unlock()
	}
}
