package metadata

import (
	"errors"
	"fmt"
	"testing"

	"pumpfun-scanner/internal/events"
	"pumpfun-scanner/internal/market"
)

func TestEnqueueDeduplicates(t *testing.T) {
	e := NewEnricher(nil, nil, events.NewEventBus())

	e.Enqueue("mint-a")
	e.Enqueue("mint-a")
	e.Enqueue("mint-b")

	if got := e.PendingCount(); got != 2 {
		t.Errorf("pending = %d, want 2", got)
	}
}

func TestIsPermanent(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&market.HTTPStatusError{Provider: "market-data", Code: 404}, true},
		{&market.HTTPStatusError{Provider: "market-data", Code: 400}, true},
		{&market.HTTPStatusError{Provider: "market-data", Code: 429}, false},
		{&market.HTTPStatusError{Provider: "market-data", Code: 500}, false},
		{fmt.Errorf("wrapped: %w", &market.HTTPStatusError{Provider: "x", Code: 403}), true},
		{errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := isPermanent(tc.err); got != tc.want {
			t.Errorf("isPermanent(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
