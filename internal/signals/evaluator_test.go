package signals

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"pumpfun-scanner/config"
	"pumpfun-scanner/internal/category"
	"pumpfun-scanner/internal/database"
	"pumpfun-scanner/internal/events"
	"pumpfun-scanner/internal/liquidity"
)

func evalConfig() *config.Config {
	return &config.Config{
		Buy: config.BuyCriteriaConfig{
			MinMarketCap:        35_000,
			MaxMarketCap:        105_000,
			MinLiquidity:        7_500,
			MinHolders:          50,
			MaxTop10Percent:     25,
			MinSolsniffer:       60,
			SolsnifferBlacklist: []float64{90},
		},
		Position: config.PositionTiersConfig{
			SafetyTiers: []config.PositionTier{
				{Min: 85, Max: 101, Cap: 1.5},
				{Min: 70, Max: 85, Cap: 1.0},
				{Min: 60, Max: 70, Cap: 0.5},
				{Min: 0, Max: 60, Cap: 0.25},
			},
			HolderTiers: []config.PositionTier{
				{Min: 300, Max: math.MaxFloat64, Cap: 1.5},
				{Min: 150, Max: 300, Cap: 1.0},
				{Min: 50, Max: 150, Cap: 0.6},
				{Min: 0, Max: 50, Cap: 0.25},
			},
			ConcentrationCap: 1.0,
		},
	}
}

func healthySnapshot(now time.Time) Snapshot {
	score := 85.0
	checked := now.Add(-10 * time.Minute)
	return Snapshot{
		MarketCap:           50_000,
		Liquidity:           20_000,
		Holders:             200,
		Top10Percent:        10,
		SolsnifferScore:     &score,
		SolsnifferCheckedAt: &checked,
		Quality: liquidity.QualityReport{
			OverallScore:       75,
			Grade:              "B",
			TradingSuitability: liquidity.SuitabilityGood,
			RiskLevel:          liquidity.RiskLow,
			Indicators:         map[string]bool{"stable_price": true},
		},
		Growth: liquidity.GrowthMetrics{
			GrowthRate1hSolPerHour: 1.5,
			Momentum:               liquidity.MomentumMedium,
		},
	}
}

func TestHealthyTokenPasses(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	res := EvaluateSnapshot(evalConfig(), healthySnapshot(now), now)

	if !res.Passed {
		t.Fatalf("healthy token failed: %v", res.FailureReasons)
	}
	if res.Confidence <= 0.8 || res.Confidence > 1.0 {
		t.Errorf("confidence = %v, want (0.8, 1.0]", res.Confidence)
	}
	if res.RiskLevel != liquidity.RiskLow {
		t.Errorf("risk = %s, want LOW", res.RiskLevel)
	}
	if res.PositionSize < 0.9 || res.PositionSize > 1.5 {
		t.Errorf("position = %v, want [0.9, 1.5]", res.PositionSize)
	}
}

func TestBlacklistedSolsnifferFails(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := healthySnapshot(now)
	blacklisted := 90.0
	snap.SolsnifferScore = &blacklisted

	res := EvaluateSnapshot(evalConfig(), snap, now)

	if res.Passed {
		t.Fatal("blacklisted score passed")
	}
	if res.PositionSize != 0 {
		t.Errorf("position = %v, want 0 on failed evaluation", res.PositionSize)
	}
	if len(res.FailureReasons) != 1 || res.FailureReasons[0] != "solsniffer_blacklisted" {
		t.Errorf("failure reasons = %v, want [solsniffer_blacklisted]", res.FailureReasons)
	}
	if !res.Criteria["solsniffer"] {
		t.Error("a fresh above-minimum score should still satisfy the base criterion")
	}
}

func TestStaleSolsnifferTreatedAsAbsent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := healthySnapshot(now)
	stale := now.Add(-2 * time.Hour)
	snap.SolsnifferCheckedAt = &stale

	res := EvaluateSnapshot(evalConfig(), snap, now)
	if res.Criteria["solsniffer"] {
		t.Error("stale score satisfied the solsniffer criterion")
	}
}

func TestFailureReasonsOrdered(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := healthySnapshot(now)
	snap.MarketCap = 10_000
	snap.Holders = 5
	snap.SolsnifferScore = nil

	res := EvaluateSnapshot(evalConfig(), snap, now)
	want := []string{"market_cap", "holders", "solsniffer"}
	if !reflect.DeepEqual(res.FailureReasons, want) {
		t.Errorf("failure reasons = %v, want %v", res.FailureReasons, want)
	}
}

func TestDecliningMomentumFailsGrowth(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := healthySnapshot(now)
	snap.Growth = liquidity.GrowthMetrics{
		GrowthRate1hSolPerHour: -5,
		Momentum:               liquidity.MomentumDeclining,
	}

	res := EvaluateSnapshot(evalConfig(), snap, now)
	if res.Criteria["liquidity_growth"] {
		t.Error("declining momentum satisfied liquidity_growth")
	}
	// Declining momentum also counts as an extra risk factor.
	if res.RiskLevel == liquidity.RiskLow {
		t.Errorf("risk = %s with declining momentum", res.RiskLevel)
	}
}

func TestExtremeQualityRiskFailsQuality(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := healthySnapshot(now)
	snap.Quality.OverallScore = 75
	snap.Quality.RiskLevel = liquidity.RiskExtreme

	res := EvaluateSnapshot(evalConfig(), snap, now)
	if res.Criteria["liquidity_quality"] {
		t.Error("extreme risk satisfied liquidity_quality")
	}
}

type aimReader struct{}

func (aimReader) CategoryOf(string) (category.Category, bool) { return category.Aim, true }

type fakeEvalStore struct {
	token      *database.Token
	increments int
	inserted   []*database.BuyEvaluation
}

func (f *fakeEvalStore) GetToken(ctx context.Context, address string) (*database.Token, error) {
	return f.token, nil
}

func (f *fakeEvalStore) PriceSamplesSince(ctx context.Context, address string, since time.Time) ([]database.PriceSample, error) {
	return nil, nil
}

func (f *fakeEvalStore) IncrementBuyAttempts(ctx context.Context, address string) (int, error) {
	f.increments++
	f.token.BuyAttempts++
	return f.token.BuyAttempts, nil
}

func (f *fakeEvalStore) InsertEvaluation(ctx context.Context, e *database.BuyEvaluation) error {
	f.inserted = append(f.inserted, e)
	return nil
}

func testEvaluator(store *fakeEvalStore) *Evaluator {
	cfg := evalConfig()
	return NewEvaluator(store, aimReader{}, events.NewEventBus(), func() *config.Config { return cfg })
}

func TestEvaluateCapReachedWritesNothing(t *testing.T) {
	store := &fakeEvalStore{token: &database.Token{Address: "mint-capped", BuyAttempts: 3}}
	eval := testEvaluator(store)

	for i := 0; i < 2; i++ {
		res, err := eval.Evaluate(context.Background(), "mint-capped")
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if len(res.FailureReasons) != 1 || res.FailureReasons[0] != "max_attempts" {
			t.Fatalf("failure reasons = %v, want [max_attempts]", res.FailureReasons)
		}
	}
	if store.increments != 0 {
		t.Errorf("buy_attempts incremented %d times past the cap", store.increments)
	}
	if len(store.inserted) != 0 {
		t.Errorf("%d evaluation rows written past the cap", len(store.inserted))
	}
}

func TestEvaluateBelowCapPersistsOneRow(t *testing.T) {
	store := &fakeEvalStore{token: &database.Token{Address: "mint-live", MarketCap: 50_000, BuyAttempts: 2}}
	eval := testEvaluator(store)

	if _, err := eval.Evaluate(context.Background(), "mint-live"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if store.increments != 1 {
		t.Errorf("increments = %d, want 1", store.increments)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("rows = %d, want 1", len(store.inserted))
	}
	if store.inserted[0].Observed["buy_attempts"] != 3 {
		t.Errorf("observed buy_attempts = %v, want 3", store.inserted[0].Observed["buy_attempts"])
	}
}

func TestSizeFromTiersTakesMinimum(t *testing.T) {
	p := evalConfig().Position

	// Safety and concentration allow 1.5; the holder tier binds at 1.0.
	if got := SizeFromTiers(p, 90, 200, 10); got != 1.0 {
		t.Errorf("size = %v, want 1.0", got)
	}
	// Everything weak: floor at 0.25.
	if got := SizeFromTiers(p, 65, 40, 30); got != 0.25 {
		t.Errorf("size = %v, want 0.25", got)
	}
	// Mid-band concentration uses the configured cap.
	if got := SizeFromTiers(p, 90, 400, 20); got != 1.0 {
		t.Errorf("size = %v, want 1.0 from concentration cap", got)
	}
}
