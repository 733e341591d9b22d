package stream

import (
	"testing"
	"time"

	"pumpfun-scanner/config"
	"pumpfun-scanner/internal/database"
	"pumpfun-scanner/internal/events"
)

func batcherConfig(batchSize int) func() *config.Config {
	cfg := &config.Config{
		Stream: config.StreamConfig{
			BatchSize:     batchSize,
			FlushInterval: time.Second,
		},
	}
	return func() *config.Config { return cfg }
}

func TestAddPriceSignalsFlushAtBatchSize(t *testing.T) {
	b := NewBatcher(nil, events.NewEventBus(), batcherConfig(3), nil)

	for i := 0; i < 2; i++ {
		if b.AddPrice(database.PriceSample{TokenAddress: "mint-a"}) {
			t.Fatalf("flush signaled at %d of 3", i+1)
		}
	}
	if !b.AddPrice(database.PriceSample{TokenAddress: "mint-a"}) {
		t.Error("flush not signaled at batch size")
	}
}

func TestAddTokenCollapsesDuplicateCreates(t *testing.T) {
	b := NewBatcher(nil, events.NewEventBus(), batcherConfig(100), nil)

	b.AddToken(&database.Token{Address: "mint-a"})
	b.AddToken(&database.Token{Address: "mint-a"})
	b.AddToken(&database.Token{Address: "mint-b"})

	_, _, tokens := b.Sizes()
	if tokens != 2 {
		t.Errorf("new tokens = %d, want 2", tokens)
	}
}

func TestSaturation(t *testing.T) {
	b := NewBatcher(nil, events.NewEventBus(), batcherConfig(2), nil)

	// Watermark is 5x the batch size; exceeding it pauses ingress.
	for i := 0; i < 10; i++ {
		b.AddPrice(database.PriceSample{TokenAddress: "mint-a"})
	}
	if b.Saturated() {
		t.Error("saturated at exactly the watermark")
	}
	b.AddPrice(database.PriceSample{TokenAddress: "mint-a"})
	if !b.Saturated() {
		t.Error("not saturated above the watermark")
	}
}
