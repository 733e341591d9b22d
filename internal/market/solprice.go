package market

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pumpfun-scanner/internal/curve"
	"pumpfun-scanner/internal/database"
	"pumpfun-scanner/internal/events"
	"pumpfun-scanner/internal/logging"
)

const (
	solPriceSource    = "binance-ws"
	solReconnectDelay = 5 * time.Second
	solReadTimeout    = 2 * time.Minute
	// Every tick updates the in-process reference; rows are persisted at
	// most this often.
	solPersistInterval = time.Minute
)

// miniTicker is the subset of the exchange mini-ticker payload we read.
type miniTicker struct {
	Close string `json:"c"`
}

// SolPriceFeed keeps the SOL/USD reference price current from an exchange
// websocket, persisting history rows as it goes.
type SolPriceFeed struct {
	url  string
	repo *database.Repository
	bus  *events.EventBus

	mu          sync.Mutex
	lastPersist time.Time

	quit   chan struct{}
	wg     sync.WaitGroup
	logger *logging.Logger
}

// NewSolPriceFeed reads the websocket URL from the environment with a
// public exchange default.
func NewSolPriceFeed(repo *database.Repository, bus *events.EventBus) *SolPriceFeed {
	url := os.Getenv("SOL_PRICE_WS_URL")
	if url == "" {
		url = "wss://stream.binance.com:9443/ws/solusdt@miniTicker"
	}
	return &SolPriceFeed{
		url:    url,
		repo:   repo,
		bus:    bus,
		quit:   make(chan struct{}),
		logger: logging.WithComponent("sol-price"),
	}
}

// Start runs the connect loop.
func (f *SolPriceFeed) Start(ctx context.Context) {
	f.wg.Add(1)
	go f.run(ctx)
}

// Stop halts the feed.
func (f *SolPriceFeed) Stop() {
	close(f.quit)
	f.wg.Wait()
}

func (f *SolPriceFeed) run(ctx context.Context) {
	defer f.wg.Done()
	for {
		select {
		case <-f.quit:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
		if err != nil {
			f.logger.Warn("SOL price feed dial failed", "url", f.url, "error", err)
			if !f.sleep(ctx, solReconnectDelay) {
				return
			}
			continue
		}
		f.logger.Info("SOL price feed connected", "url", f.url)

		f.read(ctx, conn)
		conn.Close()

		if !f.sleep(ctx, solReconnectDelay) {
			return
		}
	}
}

func (f *SolPriceFeed) read(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-f.quit:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(solReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			f.logger.Warn("SOL price feed read failed, reconnecting", "error", err)
			return
		}

		var tick miniTicker
		if err := json.Unmarshal(raw, &tick); err != nil {
			continue
		}
		price, err := strconv.ParseFloat(tick.Close, 64)
		if err != nil || price <= 0 {
			continue
		}
		f.apply(ctx, price)
	}
}

func (f *SolPriceFeed) apply(ctx context.Context, price float64) {
	curve.SetSolPrice(price)
	f.bus.PublishSolPriceUpdate(price, solPriceSource)

	f.mu.Lock()
	persist := time.Since(f.lastPersist) >= solPersistInterval
	if persist {
		f.lastPersist = time.Now()
	}
	f.mu.Unlock()

	if persist && f.repo != nil {
		if err := f.repo.InsertSolPrice(ctx, price, solPriceSource); err != nil {
			f.logger.Warn("SOL price persist failed", "error", err)
		}
	}
}

func (f *SolPriceFeed) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-f.quit:
		return false
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
