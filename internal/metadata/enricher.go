// Package metadata enriches placeholder token rows with name, symbol, and
// distribution data fetched from external providers.
package metadata

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"pumpfun-scanner/internal/database"
	"pumpfun-scanner/internal/events"
	"pumpfun-scanner/internal/logging"
	"pumpfun-scanner/internal/market"
)

const (
	queueCapacity  = 1024
	defaultWorkers = 4

	backoffInitial = 2 * time.Second
	backoffMax     = time.Minute
	// Total retry budget per job.
	backoffElapsed = 5 * time.Minute
)

// Fetcher provides token metadata. Implemented by the market-data client.
type Fetcher interface {
	Metadata(ctx context.Context, mint string) (*market.TokenMetadata, error)
}

type job struct {
	id   string
	mint string
}

// Enricher owns the dedup job queue and the worker pool.
type Enricher struct {
	repo    *database.Repository
	fetcher Fetcher
	bus     *events.EventBus
	workers int

	mu      sync.Mutex
	pending map[string]bool
	ch      chan job

	quit   chan struct{}
	wg     sync.WaitGroup
	logger *logging.Logger
}

// NewEnricher creates an enricher with the default worker count.
func NewEnricher(repo *database.Repository, fetcher Fetcher, bus *events.EventBus) *Enricher {
	return &Enricher{
		repo:    repo,
		fetcher: fetcher,
		bus:     bus,
		workers: defaultWorkers,
		pending: make(map[string]bool),
		ch:      make(chan job, queueCapacity),
		quit:    make(chan struct{}),
		logger:  logging.WithComponent("enricher"),
	}
}

// Enqueue requests enrichment for a mint. Duplicates of a pending job are
// dropped; a full queue drops the request and the next placeholder flush
// re-enqueues.
func (e *Enricher) Enqueue(mint string) {
	e.mu.Lock()
	if e.pending[mint] {
		e.mu.Unlock()
		return
	}
	e.pending[mint] = true
	e.mu.Unlock()

	j := job{id: uuid.NewString(), mint: mint}
	select {
	case e.ch <- j:
	default:
		e.mu.Lock()
		delete(e.pending, mint)
		e.mu.Unlock()
		e.logger.Warn("Enrichment queue full, job dropped", "mint", mint)
	}
}

// PendingCount returns the number of queued jobs.
func (e *Enricher) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Start launches the worker pool.
func (e *Enricher) Start(ctx context.Context) {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
	e.logger.Info("Enricher started", "workers", e.workers)
}

// Stop halts the workers; queued jobs are dropped.
func (e *Enricher) Stop() {
	close(e.quit)
	e.wg.Wait()
}

func (e *Enricher) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-e.quit:
			return
		case <-ctx.Done():
			return
		case j := <-e.ch:
			e.mu.Lock()
			delete(e.pending, j.mint)
			e.mu.Unlock()
			e.process(ctx, j)
		}
	}
}

// process fetches metadata with exponential backoff and applies it in one
// upsert. A permanent provider rejection marks the token do-not-retry.
func (e *Enricher) process(ctx context.Context, j job) {
	attempt := 0
	var meta *market.TokenMetadata

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = backoffInitial
	policy.MaxInterval = backoffMax
	policy.MaxElapsedTime = backoffElapsed

	err := backoff.Retry(func() error {
		attempt++
		m, err := e.fetcher.Metadata(ctx, j.mint)
		if err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			logging.EnrichContext(j.mint, j.id, attempt).
				Warn("Metadata fetch failed, retrying", "error", err)
			return err
		}
		meta = m
		return nil
	}, backoff.WithContext(policy, ctx))

	if err != nil {
		logging.EnrichContext(j.mint, j.id, attempt).
			Error("Enrichment failed", "error", err)
		if isPermanent(err) {
			if markErr := e.repo.MarkEnrichFailed(ctx, j.mint); markErr != nil {
				e.logger.Warn("Enrich-failed mark failed", "mint", j.mint, "error", markErr)
			}
		}
		return
	}

	var creator *string
	if meta.Creator != "" {
		creator = &meta.Creator
	}
	if err := e.repo.UpdateEnrichment(ctx, j.mint, meta.Symbol, meta.Name, meta.Decimals,
		creator, meta.HolderCount, meta.Top10Percent); err != nil {
		logging.EnrichContext(j.mint, j.id, attempt).
			Error("Enrichment upsert failed", "error", err)
		return
	}

	logging.EnrichContext(j.mint, j.id, attempt).
		Info("Token enriched", "symbol", meta.Symbol)
	e.bus.PublishTokenEnriched(j.mint, meta.Symbol, meta.Name)
}

// isPermanent reports whether a fetch error is a non-rate-limited 4xx.
func isPermanent(err error) bool {
	var statusErr *market.HTTPStatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.Code >= 400 && statusErr.Code < 500 &&
		statusErr.Code != http.StatusTooManyRequests
}
