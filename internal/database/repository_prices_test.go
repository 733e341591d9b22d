package database

import (
	"testing"
	"time"
)

func TestDedupPriceSamplesKeepsMaxSlot(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	samples := []PriceSample{
		{TokenAddress: "mintA", Time: ts, Slot: 100, PriceUSD: 1.0},
		{TokenAddress: "mintA", Time: ts, Slot: 102, PriceUSD: 1.2},
		{TokenAddress: "mintA", Time: ts, Slot: 101, PriceUSD: 1.1},
	}

	out := DedupPriceSamples(samples)
	if len(out) != 1 {
		t.Fatalf("deduped length = %d, want 1", len(out))
	}
	if out[0].Slot != 102 {
		t.Errorf("kept slot = %d, want 102", out[0].Slot)
	}
	if out[0].PriceUSD != 1.2 {
		t.Errorf("kept price = %v, want 1.2", out[0].PriceUSD)
	}
}

func TestDedupPriceSamplesDistinctKeys(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	samples := []PriceSample{
		{TokenAddress: "mintA", Time: ts, Slot: 10},
		{TokenAddress: "mintB", Time: ts, Slot: 11},
		{TokenAddress: "mintA", Time: ts.Add(time.Second), Slot: 12},
	}

	out := DedupPriceSamples(samples)
	if len(out) != 3 {
		t.Fatalf("deduped length = %d, want 3", len(out))
	}
	// First-seen order is preserved.
	if out[0].TokenAddress != "mintA" || out[1].TokenAddress != "mintB" {
		t.Errorf("order not preserved: %v", out)
	}
}

func TestDedupPriceSamplesEmpty(t *testing.T) {
	if out := DedupPriceSamples(nil); len(out) != 0 {
		t.Errorf("dedup of nil = %v, want empty", out)
	}
}
