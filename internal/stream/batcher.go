package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"pumpfun-scanner/config"
	"pumpfun-scanner/internal/database"
	"pumpfun-scanner/internal/events"
	"pumpfun-scanner/internal/logging"
)

// saturationFactor pauses ingress once any buffer grows past this multiple
// of the batch size.
const saturationFactor = 5

// MetadataEnqueuer receives mints that need enrichment.
type MetadataEnqueuer interface {
	Enqueue(mint string)
}

// Batcher owns the three flush buffers. Adds are cheap and lock-bound; the
// flush drains everything in one storage transaction.
type Batcher struct {
	repo *database.Repository
	bus  *events.EventBus
	cfg  func() *config.Config
	meta MetadataEnqueuer

	mu        sync.Mutex
	prices    []database.PriceSample
	txs       []database.TokenTransaction
	newTokens map[string]*database.Token

	logger *logging.Logger
}

// NewBatcher creates a batcher with empty buffers.
func NewBatcher(repo *database.Repository, bus *events.EventBus, cfg func() *config.Config, meta MetadataEnqueuer) *Batcher {
	return &Batcher{
		repo:      repo,
		bus:       bus,
		cfg:       cfg,
		meta:      meta,
		newTokens: make(map[string]*database.Token),
		logger:    logging.WithComponent("batcher"),
	}
}

// AddPrice buffers one price sample. Returns true when the buffer reached
// the batch size and an immediate flush is due.
func (b *Batcher) AddPrice(p database.PriceSample) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices = append(b.prices, p)
	return len(b.prices) >= b.cfg().Stream.BatchSize
}

// AddTransaction buffers one non-create transaction.
func (b *Batcher) AddTransaction(t database.TokenTransaction) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs = append(b.txs, t)
	return len(b.txs) >= b.cfg().Stream.BatchSize
}

// AddToken buffers one newly created token, keyed by address so repeated
// creates collapse.
func (b *Batcher) AddToken(tok *database.Token) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.newTokens[tok.Address] = tok
	return len(b.newTokens) >= b.cfg().Stream.BatchSize
}

// Sizes returns the current buffer lengths.
func (b *Batcher) Sizes() (prices, transactions, tokens int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.prices), len(b.txs), len(b.newTokens)
}

// Saturated reports whether any buffer exceeds the back-pressure watermark.
func (b *Batcher) Saturated() bool {
	limit := b.cfg().Stream.BatchSize * saturationFactor
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.prices) > limit || len(b.txs) > limit || len(b.newTokens) > limit
}

// Flush writes all buffered rows in one transaction. Buffers are drained
// up front: a failed commit discards the batch rather than letting the
// buffers grow without bound.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	prices := b.prices
	txs := b.txs
	newTokens := b.newTokens
	b.prices = nil
	b.txs = nil
	b.newTokens = make(map[string]*database.Token)
	b.mu.Unlock()

	if len(prices) == 0 && len(txs) == 0 && len(newTokens) == 0 {
		return nil
	}

	flushID := uuid.NewString()
	started := time.Now()
	var placeholders []string

	err := b.repo.DB().WithTx(ctx, func(tx pgx.Tx) error {
		if len(newTokens) > 0 {
			tokens := make([]*database.Token, 0, len(newTokens))
			for _, t := range newTokens {
				tokens = append(tokens, t)
			}
			if err := b.repo.InsertNewTokensTx(ctx, tx, tokens); err != nil {
				return err
			}
		}

		priceAddrs := uniqueAddresses(prices, func(p database.PriceSample) string { return p.TokenAddress })
		missing, err := b.missingAddresses(ctx, tx, priceAddrs, newTokens)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			if err := b.repo.InsertPlaceholdersTx(ctx, tx, missing); err != nil {
				return err
			}
			placeholders = append(placeholders, missing...)
		}

		deduped := database.DedupPriceSamples(prices)
		if err := b.repo.InsertPriceSamplesTx(ctx, tx, deduped); err != nil {
			return err
		}

		txAddrs := uniqueAddresses(txs, func(t database.TokenTransaction) string { return t.TokenAddress })
		missing, err = b.missingAddresses(ctx, tx, txAddrs, newTokens)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			if err := b.repo.InsertPlaceholdersTx(ctx, tx, missing); err != nil {
				return err
			}
			placeholders = append(placeholders, missing...)
		}

		return b.repo.InsertTransactionsTx(ctx, tx, txs)
	})

	duration := time.Since(started)
	if err != nil {
		discarded := len(prices) + len(txs) + len(newTokens)
		logging.FlushContext(flushID, len(prices), len(txs), len(newTokens)).
			Error("Flush failed, batch discarded", "error", err, "discarded", discarded)
		b.bus.PublishFlushError(flushID, err.Error(), discarded)
		return err
	}

	// Placeholder rows need enrichment just like created tokens.
	if b.meta != nil {
		for _, addr := range placeholders {
			b.meta.Enqueue(addr)
		}
	}

	logging.FlushContext(flushID, len(prices), len(txs), len(newTokens)).
		Info("Flush committed", "duration_ms", duration.Milliseconds())
	b.bus.PublishFlushed(flushID, len(prices), len(txs), len(newTokens), duration)
	return nil
}

// missingAddresses returns the addresses absent from both the tokens table
// and the current batch's new-token set.
func (b *Batcher) missingAddresses(ctx context.Context, tx pgx.Tx, addrs []string, newTokens map[string]*database.Token) ([]string, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	existing, err := b.repo.ExistingTokenAddresses(ctx, tx, addrs)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, a := range addrs {
		if existing[a] {
			continue
		}
		if _, ok := newTokens[a]; ok {
			continue
		}
		missing = append(missing, a)
	}
	return missing, nil
}

func uniqueAddresses[T any](items []T, key func(T) string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		k := key(it)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
