package stream

import (
	"context"
	"sync"
	"time"

	"pumpfun-scanner/config"
	"pumpfun-scanner/internal/curve"
	"pumpfun-scanner/internal/database"
	"pumpfun-scanner/internal/events"
	"pumpfun-scanner/internal/logging"
)

const (
	lamportsPerSol = 1e9
	// Bonding-curve tokens carry six decimals on chain.
	tokenBaseUnits = 1e6

	saturationPollInterval = 100 * time.Millisecond
)

// CategoryUpdater is the manager slice the stream drives on every accepted
// price.
type CategoryUpdater interface {
	UpdateMarketCapThreshold(ctx context.Context, mint string, marketCap float64)
}

// EvaluationEnqueuer receives mints whose market cap entered the AIM band.
type EvaluationEnqueuer interface {
	EnqueueEvaluation(mint string)
}

// Client consumes the firehose, decodes updates, and feeds the batcher.
type Client struct {
	fh      Firehose
	batcher *Batcher
	repo    *database.Repository
	mgr     CategoryUpdater
	eval    EvaluationEnqueuer
	meta    MetadataEnqueuer
	index   *DualIndex
	bus     *events.EventBus
	cfg     func() *config.Config

	mu         sync.Mutex
	reconnects int

	quit   chan struct{}
	wg     sync.WaitGroup
	logger *logging.Logger
}

// NewClient wires the stream client. Any of mgr, eval, meta may be nil in
// partial deployments; the corresponding side effect is skipped.
func NewClient(fh Firehose, batcher *Batcher, repo *database.Repository, mgr CategoryUpdater, eval EvaluationEnqueuer, meta MetadataEnqueuer, bus *events.EventBus, cfg func() *config.Config) *Client {
	return &Client{
		fh:      fh,
		batcher: batcher,
		repo:    repo,
		mgr:     mgr,
		eval:    eval,
		meta:    meta,
		index:   NewDualIndex(),
		bus:     bus,
		cfg:     cfg,
		quit:    make(chan struct{}),
		logger:  logging.WithComponent("stream"),
	}
}

// Index exposes the dual-address index for other components.
func (c *Client) Index() *DualIndex { return c.index }

// Reconnects returns how many times the stream has redialed.
func (c *Client) Reconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

// Start seeds the SOL reference price, then runs the consume loop and the
// flush ticker until Stop or context cancellation.
func (c *Client) Start(ctx context.Context) {
	c.seedSolPrice(ctx)

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.wg.Add(1)
	go c.flushLoop(ctx)
}

// Stop halts the loops and performs the final flush.
func (c *Client) Stop(ctx context.Context) {
	close(c.quit)
	_ = c.fh.Close()
	c.wg.Wait()
	if err := c.batcher.Flush(ctx); err != nil {
		c.logger.Error("Final flush failed", "error", err)
	}
}

// seedSolPrice loads the most recent persisted SOL/USD price so market caps
// are sane before the live feed ticks.
func (c *Client) seedSolPrice(ctx context.Context) {
	point, err := c.repo.LatestSolPrice(ctx)
	if err != nil || point == nil {
		c.logger.Warn("No persisted SOL price, using configured default",
			"default", c.cfg().SolPrice)
		curve.SetSolPrice(c.cfg().SolPrice)
		return
	}
	curve.SetSolPrice(point.PriceUSD)
	c.logger.Info("SOL price seeded", "price_usd", point.PriceUSD, "source", point.Source)
}

func (c *Client) consumeLoop(ctx context.Context) {
	defer c.wg.Done()
	endpoint := c.cfg().Stream.Endpoint
	for {
		select {
		case <-c.quit:
			return
		case <-ctx.Done():
			return
		default:
		}

		ch, err := c.fh.Subscribe(ctx, DefaultSubscribeRequest())
		if err != nil {
			logging.StreamContext(endpoint, c.Reconnects()).
				Error("Subscribe failed, redialing", "error", err)
			if !c.sleep(ctx, c.cfg().Stream.ReconnectDelay) {
				return
			}
			c.bumpReconnects()
			continue
		}

		logging.StreamContext(endpoint, c.Reconnects()).Info("Stream connected")
		c.bus.Publish(events.Event{Type: events.EventStreamConnected, Data: map[string]interface{}{
			"endpoint":   endpoint,
			"reconnects": c.Reconnects(),
		}})

		c.consume(ctx, ch)

		logging.StreamContext(endpoint, c.Reconnects()).Warn("Stream lost, redialing")
		c.bus.Publish(events.Event{Type: events.EventStreamLost, Data: map[string]interface{}{
			"endpoint": endpoint,
		}})
		if !c.sleep(ctx, c.cfg().Stream.ReconnectDelay) {
			return
		}
		c.bumpReconnects()
	}
}

// consume drains one subscription until it closes. When the buffers
// saturate, the reader stops pulling until a flush catches up.
func (c *Client) consume(ctx context.Context, ch <-chan Update) {
	for {
		for c.batcher.Saturated() {
			if !c.sleep(ctx, saturationPollInterval) {
				return
			}
		}

		select {
		case <-c.quit:
			return
		case <-ctx.Done():
			return
		case u, ok := <-ch:
			if !ok {
				return
			}
			switch {
			case u.Account != nil:
				c.handleAccount(ctx, u.Account)
			case u.Transaction != nil:
				c.handleTransaction(ctx, u.Transaction)
			}
		}
	}
}

func (c *Client) flushLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg().Stream.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.batcher.Flush(ctx); err != nil {
				c.logger.Error("Periodic flush failed", "error", err)
			}
		}
	}
}

// handleAccount decodes a curve account update into a price sample and runs
// the per-price side effects.
func (c *Client) handleAccount(ctx context.Context, u *AccountUpdate) {
	acc, err := DecodeCurveAccount(u.Data)
	if err != nil {
		c.logger.Warn("Undecodable account update", "pubkey", u.Pubkey, "error", err)
		return
	}
	if acc.Complete {
		return
	}

	c.index.Put(acc.TokenMint, u.Pubkey)
	c.bus.Publish(events.Event{Type: events.EventDualAddressUpdate, Data: map[string]interface{}{
		"mint":  acc.TokenMint,
		"curve": u.Pubkey,
		"slot":  u.Slot,
	}})
	c.bus.Publish(events.Event{Type: events.EventAccountUpdate, Data: map[string]interface{}{
		"pubkey": u.Pubkey,
		"slot":   u.Slot,
	}})

	sample, ok := priceFromAccount(acc, u.Slot)
	if !ok {
		return
	}

	flushNow := c.batcher.AddPrice(sample)
	if flushNow {
		if err := c.batcher.Flush(ctx); err != nil {
			c.logger.Error("Size-triggered flush failed", "error", err)
		}
	}

	// Side effects run outside any flush transaction.
	state := curve.StateAtMarketCap(sample.MarketCap)
	if err := c.repo.UpdateMarketData(ctx, sample.TokenAddress,
		sample.PriceUSD, sample.PriceSol, sample.MarketCap, sample.LiquidityUSD, state.Progress); err != nil {
		c.logger.Warn("Market data update failed", "mint", sample.TokenAddress, "error", err)
	}
	if c.mgr != nil {
		c.mgr.UpdateMarketCapThreshold(ctx, sample.TokenAddress, sample.MarketCap)
	}
	t := c.cfg().Thresholds
	if c.eval != nil && sample.MarketCap >= t.AimMin && sample.MarketCap <= t.AimMax {
		c.eval.EnqueueEvaluation(sample.TokenAddress)
	}
}

// handleTransaction classifies a transaction and routes it into the create
// or trade path.
func (c *Client) handleTransaction(ctx context.Context, u *TransactionUpdate) {
	kind := TransactionKind(u.Logs, u.Data)
	if kind == "" {
		return
	}

	mint := u.TokenMint
	if mint == "" {
		for _, addr := range u.Accounts {
			if m, ok := c.index.MintFor(addr); ok {
				mint = m
				break
			}
		}
	}

	if kind == database.TxKindCreate {
		c.handleCreate(u, mint)
		return
	}
	if mint == "" {
		// Trade on a curve we have never seen an account update for.
		return
	}

	priceSol := 0.0
	if u.TokenAmount > 0 {
		priceSol = u.SolAmount / u.TokenAmount
	}
	c.batcher.AddTransaction(database.TokenTransaction{
		Signature:    u.Signature,
		TokenAddress: mint,
		Time:         time.Now().UTC(),
		Kind:         kind,
		UserAddress:  u.UserAddress,
		TokenAmount:  u.TokenAmount,
		SolAmount:    u.SolAmount,
		PriceUSD:     priceSol * curve.SolPrice(),
		PriceSol:     priceSol,
		Slot:         u.Slot,
		Fee:          u.Fee,
	})
}

func (c *Client) handleCreate(u *TransactionUpdate, mint string) {
	if mint == "" {
		return
	}
	creator := u.UserAddress
	sig := u.Signature
	slot := int64(u.Slot)
	now := time.Now().UTC()
	c.batcher.AddToken(&database.Token{
		Address:         mint,
		Symbol:          database.PlaceholderSymbol,
		Name:            database.PlaceholderSymbol,
		Decimals:        6,
		Creator:         &creator,
		LaunchSignature: &sig,
		LaunchSlot:      &slot,
		Category:        "NEW",
		DiscoveredAt:    now,
	})
	if c.meta != nil {
		c.meta.Enqueue(mint)
	}
	c.bus.PublishTokenCreated(mint, creator, u.Signature, u.Slot)
}

func (c *Client) bumpReconnects() {
	c.mu.Lock()
	c.reconnects++
	c.mu.Unlock()
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-c.quit:
		return false
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// priceFromAccount derives a price sample from decoded curve reserves.
func priceFromAccount(acc *CurveAccount, slot uint64) (database.PriceSample, bool) {
	if acc.VirtualTokenReserves == 0 {
		return database.PriceSample{}, false
	}
	solReserves := float64(acc.VirtualSolReserves) / lamportsPerSol
	tokenReserves := float64(acc.VirtualTokenReserves) / tokenBaseUnits
	priceSol := solReserves / tokenReserves
	priceUSD := priceSol * curve.SolPrice()
	supply := float64(acc.TokenTotalSupply) / tokenBaseUnits
	liquidity := float64(acc.RealSolReserves) / lamportsPerSol * curve.SolPrice()

	return database.PriceSample{
		TokenAddress:         acc.TokenMint,
		Time:                 time.Now().UTC().Truncate(time.Second),
		PriceUSD:             priceUSD,
		PriceSol:             priceSol,
		VirtualSolReserves:   acc.VirtualSolReserves,
		VirtualTokenReserves: acc.VirtualTokenReserves,
		RealSolReserves:      acc.RealSolReserves,
		RealTokenReserves:    acc.RealTokenReserves,
		MarketCap:            priceUSD * supply,
		LiquidityUSD:         liquidity,
		Slot:                 slot,
		Source:               "firehose",
	}, true
}
