// Package signals evaluates AIM-band tokens against the buy criteria and
// sizes positions for passing candidates.
package signals

import (
	"context"
	"errors"
	"time"

	"pumpfun-scanner/config"
	"pumpfun-scanner/internal/category"
	"pumpfun-scanner/internal/curve"
	"pumpfun-scanner/internal/database"
	"pumpfun-scanner/internal/events"
	"pumpfun-scanner/internal/liquidity"
	"pumpfun-scanner/internal/logging"
)

// ErrNotInAim is returned when the evaluated token is not in the AIM band.
var ErrNotInAim = errors.New("token not in AIM")

const (
	maxBuyAttempts    = 3
	evaluationTimeout = 10 * time.Second
	// Solsniffer scores older than this are treated as absent.
	solsnifferMaxAge = time.Hour

	minPosition = 0.1
	maxPosition = 3.0
)

// Snapshot is everything the pure evaluation core looks at.
type Snapshot struct {
	MarketCap           float64
	Liquidity           float64
	Holders             int
	Top10Percent        float64
	SolsnifferScore     *float64
	SolsnifferCheckedAt *time.Time
	Quality             liquidity.QualityReport
	Growth              liquidity.GrowthMetrics
}

// Result is one evaluation outcome.
type Result struct {
	Mint           string
	Passed         bool
	Criteria       map[string]bool
	Observed       map[string]interface{}
	FailureReasons []string
	Confidence     float64
	RiskLevel      string
	PositionSize   float64
	DurationMs     int64
}

// criteriaOrder fixes the order failure reasons accumulate in.
var criteriaOrder = []string{
	"market_cap", "liquidity", "holders", "concentration",
	"solsniffer", "solsniffer_blacklisted", "liquidity_quality", "liquidity_growth",
}

// EvaluateSnapshot runs the criteria, confidence ladder, risk grading, and
// position sizing over one snapshot. Pure.
func EvaluateSnapshot(cfg *config.Config, s Snapshot, now time.Time) Result {
	buy := cfg.Buy

	safety := -1.0
	safetyFresh := false
	if s.SolsnifferScore != nil {
		safety = *s.SolsnifferScore
		safetyFresh = s.SolsnifferCheckedAt != nil && now.Sub(*s.SolsnifferCheckedAt) <= solsnifferMaxAge
	}

	criteria := map[string]bool{
		"market_cap":    s.MarketCap >= buy.MinMarketCap && s.MarketCap <= buy.MaxMarketCap,
		"liquidity":     s.Liquidity >= buy.MinLiquidity,
		"holders":       s.Holders >= buy.MinHolders,
		"concentration": s.Top10Percent <= buy.MaxTop10Percent,
		"solsniffer": safetyFresh && safety > buy.MinSolsniffer,
		// A blacklisted score is a hard disqualifier even when stale.
		"solsniffer_blacklisted": !(s.SolsnifferScore != nil && buy.Blacklisted(safety)),
		"liquidity_quality": s.Quality.OverallScore >= 70 &&
			suitabilityTradable(s.Quality.TradingSuitability) &&
			s.Quality.RiskLevel != liquidity.RiskExtreme,
		"liquidity_growth": s.Growth.Momentum != liquidity.MomentumDeclining &&
			s.Growth.GrowthRate1hSolPerHour >= -2,
	}

	var failures []string
	for _, name := range criteriaOrder {
		if !criteria[name] {
			failures = append(failures, name)
		}
	}
	passed := len(failures) == 0

	confidence := confidenceFor(s, safety)
	risk := riskFor(len(failures), confidence, s)

	size := 0.0
	if passed {
		size = clamp(1.0*suitabilityFactor(s.Quality.TradingSuitability)*confidence*riskFactor(risk),
			minPosition, maxPosition)
	}

	return Result{
		Passed:         passed,
		Criteria:       criteria,
		Observed:       observedFields(s, safety),
		FailureReasons: failures,
		Confidence:     confidence,
		RiskLevel:      risk,
		PositionSize:   size,
	}
}

func confidenceFor(s Snapshot, safety float64) float64 {
	c := 0.3
	if s.MarketCap >= 35_000 && s.MarketCap <= 70_000 {
		c += 0.1
	}
	if s.Liquidity > 15_000 {
		c += 0.1
	}
	if s.Holders > 150 {
		c += 0.05
	}
	if s.Top10Percent < 15 {
		c += 0.05
	}
	if safety > 80 && safety != 90 {
		c += 0.1
	}
	switch s.Quality.TradingSuitability {
	case liquidity.SuitabilityExcellent:
		c += 0.15
	case liquidity.SuitabilityGood:
		c += 0.10
	case liquidity.SuitabilityFair:
		c += 0.05
	}
	if s.Quality.Indicators["stable_price"] {
		c += 0.05
	}
	if s.Quality.Indicators["near_graduation"] {
		c += 0.10
	}
	switch {
	case s.Growth.Momentum == liquidity.MomentumHigh && s.Growth.Accelerating:
		c += 0.15
	case s.Growth.Momentum == liquidity.MomentumHigh:
		c += 0.10
	case s.Growth.Momentum == liquidity.MomentumMedium:
		c += 0.05
	}
	if s.Growth.GrowthRate1hSolPerHour > 1 {
		c += 0.05
	}
	return clamp(c, 0, 1)
}

// riskFor counts failed criteria plus the extreme-quality and
// declining-momentum factors.
func riskFor(failed int, confidence float64, s Snapshot) string {
	factors := failed
	if s.Quality.RiskLevel == liquidity.RiskExtreme {
		factors++
	}
	if s.Growth.Momentum == liquidity.MomentumDeclining {
		factors++
	}
	switch {
	case factors == 0 && confidence > 0.8:
		return liquidity.RiskLow
	case factors <= 1 && confidence > 0.6:
		return liquidity.RiskMedium
	case factors <= 3:
		return liquidity.RiskHigh
	default:
		return liquidity.RiskExtreme
	}
}

func suitabilityTradable(s string) bool {
	switch s {
	case liquidity.SuitabilityExcellent, liquidity.SuitabilityGood, liquidity.SuitabilityFair:
		return true
	}
	return false
}

func suitabilityFactor(s string) float64 {
	switch s {
	case liquidity.SuitabilityExcellent:
		return 1.5
	case liquidity.SuitabilityGood:
		return 1.2
	case liquidity.SuitabilityFair:
		return 1.0
	case liquidity.SuitabilityPoor:
		return 0.5
	default:
		return 0.25
	}
}

func riskFactor(risk string) float64 {
	switch risk {
	case liquidity.RiskLow:
		return 1.2
	case liquidity.RiskMedium:
		return 1.0
	case liquidity.RiskHigh:
		return 0.6
	default:
		return 0.3
	}
}

// SizeFromTiers is the alternative tier-table sizer: the final position is
// the minimum across all active caps.
func SizeFromTiers(p config.PositionTiersConfig, safetyScore float64, holders int, top10Percent float64) float64 {
	caps := []float64{
		tierCap(p.SafetyTiers, safetyScore),
		tierCap(p.HolderTiers, float64(holders)),
		concentrationCap(p, top10Percent),
	}
	min := caps[0]
	for _, c := range caps[1:] {
		if c < min {
			min = c
		}
	}
	return min
}

func tierCap(tiers []config.PositionTier, v float64) float64 {
	for _, t := range tiers {
		if v >= t.Min && v < t.Max {
			return t.Cap
		}
	}
	return minPosition
}

func concentrationCap(p config.PositionTiersConfig, top10 float64) float64 {
	switch {
	case top10 < 15:
		return 1.5
	case top10 <= 25:
		return p.ConcentrationCap
	default:
		return 0.25
	}
}

func observedFields(s Snapshot, safety float64) map[string]interface{} {
	return map[string]interface{}{
		"market_cap":     s.MarketCap,
		"liquidity":      s.Liquidity,
		"holders":        s.Holders,
		"top10_percent":  s.Top10Percent,
		"safety_score":   safety,
		"quality_score":  s.Quality.OverallScore,
		"suitability":    s.Quality.TradingSuitability,
		"momentum":       s.Growth.Momentum,
		"growth_rate_1h": s.Growth.GrowthRate1hSolPerHour,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CategoryReader is the manager slice the evaluator gates on.
type CategoryReader interface {
	CategoryOf(mint string) (category.Category, bool)
}

// Store is the repository slice the evaluator reads and writes.
type Store interface {
	GetToken(ctx context.Context, address string) (*database.Token, error)
	PriceSamplesSince(ctx context.Context, address string, since time.Time) ([]database.PriceSample, error)
	IncrementBuyAttempts(ctx context.Context, address string) (int, error)
	InsertEvaluation(ctx context.Context, e *database.BuyEvaluation) error
}

// Evaluator runs full evaluations: loads the token snapshot, scores it, and
// persists the outcome.
type Evaluator struct {
	repo Store
	mgr  CategoryReader
	bus  *events.EventBus
	cfg  func() *config.Config
	now  func() time.Time

	logger *logging.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(repo Store, mgr CategoryReader, bus *events.EventBus, cfg func() *config.Config) *Evaluator {
	return &Evaluator{
		repo:   repo,
		mgr:    mgr,
		bus:    bus,
		cfg:    cfg,
		now:    time.Now,
		logger: logging.WithComponent("evaluator"),
	}
}

// Evaluate runs one evaluation for a token. Side effects are limited to one
// BuyEvaluation row and the buy_attempts increment.
func (e *Evaluator) Evaluate(ctx context.Context, mint string) (*Result, error) {
	if cat, ok := e.mgr.CategoryOf(mint); !ok || cat != category.Aim {
		return nil, ErrNotInAim
	}

	ctx, cancel := context.WithTimeout(ctx, evaluationTimeout)
	defer cancel()
	started := e.now()

	tok, err := e.repo.GetToken(ctx, mint)
	if err != nil {
		return nil, err
	}
	// Once the attempt cap is reached the token gets no further rows and no
	// counter bumps; the cap is checked against the stored count before any
	// write.
	if tok.BuyAttempts >= maxBuyAttempts {
		return &Result{
			Mint:           mint,
			Criteria:       map[string]bool{},
			Observed:       map[string]interface{}{"buy_attempts": tok.BuyAttempts},
			FailureReasons: []string{"max_attempts"},
			RiskLevel:      liquidity.RiskExtreme,
			DurationMs:     e.now().Sub(started).Milliseconds(),
		}, nil
	}

	attempts, err := e.repo.IncrementBuyAttempts(ctx, mint)
	if err != nil {
		return nil, err
	}
	samples, err := e.repo.PriceSamplesSince(ctx, mint, e.now().Add(-time.Hour))
	if err != nil {
		return nil, err
	}

	progress := curve.StateAtMarketCap(tok.MarketCap).Progress
	snap := Snapshot{
		MarketCap:           tok.MarketCap,
		Liquidity:           tok.Liquidity,
		Holders:             tok.HolderCount,
		Top10Percent:        tok.Top10Percent,
		SolsnifferScore:     tok.SolsnifferScore,
		SolsnifferCheckedAt: tok.SolsnifferCheckedAt,
		Quality:             liquidity.ScoreLiquidityQuality(samples, progress),
		Growth:              liquidity.ComputeGrowthMetrics(samples, e.now()),
	}

	res := EvaluateSnapshot(e.cfg(), snap, e.now())
	res.Mint = mint
	res.Observed["buy_attempts"] = attempts
	res.DurationMs = e.now().Sub(started).Milliseconds()

	logging.EvaluationContext(mint, snap.MarketCap, res.Confidence).
		Info("Evaluation complete", "passed", res.Passed, "risk", res.RiskLevel,
			"position", res.PositionSize, "failures", res.FailureReasons)

	if err := e.persist(ctx, &res); err != nil {
		return &res, err
	}
	if res.Passed {
		e.bus.PublishBuySignal(mint, res.Confidence, res.PositionSize, res.RiskLevel)
	}
	return &res, nil
}

func (e *Evaluator) persist(ctx context.Context, res *Result) error {
	return e.repo.InsertEvaluation(ctx, &database.BuyEvaluation{
		TokenAddress:        res.Mint,
		Passed:              res.Passed,
		Criteria:            res.Criteria,
		Observed:            res.Observed,
		FailureReasons:      res.FailureReasons,
		Confidence:          res.Confidence,
		RiskLevel:           res.RiskLevel,
		RecommendedPosition: res.PositionSize,
		DurationMs:          res.DurationMs,
	})
}
