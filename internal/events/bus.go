package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTokenCreated      EventType = "TOKEN_CREATED"
	EventTokenEnriched     EventType = "TOKEN_ENRICHED"
	EventAccountUpdate     EventType = "ACCOUNT_UPDATE"
	EventDualAddressUpdate EventType = "DUAL_ADDRESS_UPDATE"
	EventCategoryChange    EventType = "CATEGORY_CHANGE"
	EventAimEntered        EventType = "AIM_ENTERED"
	EventTokenTimeout      EventType = "TOKEN_TIMEOUT"
	EventScanFailed        EventType = "SCAN_FAILED"
	EventFlushed           EventType = "FLUSHED"
	EventFlushError        EventType = "FLUSH_ERROR"
	EventBuySignal         EventType = "BUY_SIGNAL"
	EventSolPriceUpdate    EventType = "SOL_PRICE_UPDATE"
	EventStreamConnected   EventType = "STREAM_CONNECTED"
	EventStreamLost        EventType = "STREAM_LOST"
	EventError             EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Subscribers run in their own
// goroutines so a slow consumer cannot block the publisher.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTokenCreated publishes a token created event
func (eb *EventBus) PublishTokenCreated(mint, creator, signature string, slot uint64) {
	eb.Publish(Event{
		Type: EventTokenCreated,
		Data: map[string]interface{}{
			"mint":      mint,
			"creator":   creator,
			"signature": signature,
			"slot":      slot,
		},
	})
}

// PublishCategoryChange publishes a committed category transition
func (eb *EventBus) PublishCategoryChange(mint, from, to string, marketCap float64, reason string) {
	eb.Publish(Event{
		Type: EventCategoryChange,
		Data: map[string]interface{}{
			"mint":       mint,
			"from":       from,
			"to":         to,
			"market_cap": marketCap,
			"reason":     reason,
		},
	})
}

// PublishAimEntered publishes an AIM-band entry
func (eb *EventBus) PublishAimEntered(mint string, marketCap float64, attempt int) {
	eb.Publish(Event{
		Type: EventAimEntered,
		Data: map[string]interface{}{
			"mint":       mint,
			"market_cap": marketCap,
			"attempt":    attempt,
		},
	})
}

// PublishTokenTimeout publishes a scan-queue timeout removal
func (eb *EventBus) PublishTokenTimeout(mint, category string, scanNumber int) {
	eb.Publish(Event{
		Type: EventTokenTimeout,
		Data: map[string]interface{}{
			"mint":        mint,
			"category":    category,
			"scan_number": scanNumber,
		},
	})
}

// PublishScanFailed publishes a failed scan
func (eb *EventBus) PublishScanFailed(mint, category, errMsg string) {
	eb.Publish(Event{
		Type: EventScanFailed,
		Data: map[string]interface{}{
			"mint":     mint,
			"category": category,
			"error":    errMsg,
		},
	})
}

// PublishFlushed publishes a successful batch flush
func (eb *EventBus) PublishFlushed(flushID string, prices, transactions, newTokens int, duration time.Duration) {
	eb.Publish(Event{
		Type: EventFlushed,
		Data: map[string]interface{}{
			"flush_id":     flushID,
			"prices":       prices,
			"transactions": transactions,
			"new_tokens":   newTokens,
			"duration_ms":  duration.Milliseconds(),
		},
	})
}

// PublishFlushError publishes a discarded batch
func (eb *EventBus) PublishFlushError(flushID, errMsg string, discarded int) {
	eb.Publish(Event{
		Type: EventFlushError,
		Data: map[string]interface{}{
			"flush_id":  flushID,
			"error":     errMsg,
			"discarded": discarded,
		},
	})
}

// PublishBuySignal publishes a passed buy evaluation
func (eb *EventBus) PublishBuySignal(mint string, confidence, position float64, riskLevel string) {
	eb.Publish(Event{
		Type: EventBuySignal,
		Data: map[string]interface{}{
			"mint":       mint,
			"confidence": confidence,
			"position":   position,
			"risk_level": riskLevel,
		},
	})
}

// PublishTokenEnriched publishes a completed metadata enrichment
func (eb *EventBus) PublishTokenEnriched(mint, symbol, name string) {
	eb.Publish(Event{
		Type: EventTokenEnriched,
		Data: map[string]interface{}{
			"mint":   mint,
			"symbol": symbol,
			"name":   name,
		},
	})
}

// PublishSolPriceUpdate publishes a SOL/USD reference price change
func (eb *EventBus) PublishSolPriceUpdate(priceUSD float64, source string) {
	eb.Publish(Event{
		Type: EventSolPriceUpdate,
		Data: map[string]interface{}{
			"price_usd": priceUSD,
			"source":    source,
		},
	})
}
