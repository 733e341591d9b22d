// Package liquidity derives quality and growth analytics from accepted
// price samples. All functions are pure over their input window.
package liquidity

import (
	"math"
	"time"

	"pumpfun-scanner/internal/database"
)

// Quality bands.
const (
	SuitabilityExcellent = "EXCELLENT"
	SuitabilityGood      = "GOOD"
	SuitabilityFair      = "FAIR"
	SuitabilityPoor      = "POOR"
	SuitabilityRisky     = "RISKY"

	RiskLow     = "LOW"
	RiskMedium  = "MEDIUM"
	RiskHigh    = "HIGH"
	RiskExtreme = "EXTREME"

	MomentumHigh      = "HIGH"
	MomentumMedium    = "MEDIUM"
	MomentumLow       = "LOW"
	MomentumDeclining = "DECLINING"
)

const (
	// DefaultWindow is how many recent samples quality scoring considers.
	DefaultWindow = 20

	minSamplesForScore = 5
	// A liquidity collapse between two consecutive samples.
	suddenDropFraction = 0.40

	// accelMargin keeps fit noise from flagging steady growth as
	// acceleration, in SOL per hour.
	accelMargin = 0.1

	lamportsPerSol = 1e9
)

// QualityReport is the outcome of ScoreLiquidityQuality.
type QualityReport struct {
	OverallScore       float64         `json:"overall_score"`
	Grade              string          `json:"grade"`
	TradingSuitability string          `json:"trading_suitability"`
	RiskLevel          string          `json:"risk_level"`
	Indicators         map[string]bool `json:"indicators"`
	Warnings           []string        `json:"warnings"`
}

// GrowthMetrics is the outcome of ComputeGrowthMetrics.
type GrowthMetrics struct {
	GrowthRate1hSolPerHour float64 `json:"growth_rate_1h_sol_per_hour"`
	Momentum               string  `json:"momentum"`
	Accelerating           bool    `json:"accelerating"`
}

// ScoreLiquidityQuality scores the last DefaultWindow samples. Samples must
// be ordered oldest first.
func ScoreLiquidityQuality(samples []database.PriceSample, curveProgress float64) QualityReport {
	if len(samples) > DefaultWindow {
		samples = samples[len(samples)-DefaultWindow:]
	}

	report := QualityReport{
		Indicators: map[string]bool{
			"stable_price":    false,
			"near_graduation": false,
			"deep_liquidity":  false,
		},
	}

	if len(samples) == 0 {
		report.Grade = "F"
		report.TradingSuitability = SuitabilityRisky
		report.RiskLevel = RiskExtreme
		report.Warnings = append(report.Warnings, "no price history")
		return report
	}

	score := 100.0

	if len(samples) < minSamplesForScore {
		score -= 25
		report.Warnings = append(report.Warnings, "insufficient price history")
	}

	cv := priceCV(samples)
	switch {
	case cv > 0.15:
		score -= 25
		report.Warnings = append(report.Warnings, "high price volatility")
	case cv > 0.08:
		score -= 10
	}
	report.Indicators["stable_price"] = cv <= 0.05

	latest := samples[len(samples)-1]
	switch {
	case latest.LiquidityUSD < 5_000:
		score -= 30
		report.Warnings = append(report.Warnings, "liquidity below viable floor")
	case latest.LiquidityUSD < 7_500:
		score -= 15
	}
	report.Indicators["deep_liquidity"] = latest.LiquidityUSD >= 15_000

	report.Indicators["near_graduation"] = curveProgress >= 0.80
	if curveProgress < 0.10 {
		score -= 10
	}

	if hasSuddenLiquidityDrop(samples) {
		score -= 20
		report.Warnings = append(report.Warnings, "sudden liquidity drop")
	}

	report.OverallScore = clamp(score, 0, 100)
	report.Grade = gradeFor(report.OverallScore)
	report.TradingSuitability = suitabilityFor(report.OverallScore)
	report.RiskLevel = riskFor(report.OverallScore)
	return report
}

// ComputeGrowthMetrics fits SOL reserve growth over the last hour of
// samples (ordered oldest first) relative to now.
func ComputeGrowthMetrics(samples []database.PriceSample, now time.Time) GrowthMetrics {
	hourAgo := now.Add(-time.Hour)
	quarterAgo := now.Add(-15 * time.Minute)

	var hour, quarter []database.PriceSample
	for _, s := range samples {
		if s.Time.Before(hourAgo) {
			continue
		}
		hour = append(hour, s)
		if !s.Time.Before(quarterAgo) {
			quarter = append(quarter, s)
		}
	}

	rate := solSlopePerHour(hour)
	recent := solSlopePerHour(quarter)

	return GrowthMetrics{
		GrowthRate1hSolPerHour: rate,
		Momentum:               momentumFor(rate),
		Accelerating:           len(quarter) >= 2 && recent > rate+accelMargin,
	}
}

func momentumFor(rate float64) string {
	switch {
	case rate < 0:
		return MomentumDeclining
	case rate >= 5:
		return MomentumHigh
	case rate >= 1:
		return MomentumMedium
	default:
		return MomentumLow
	}
}

// priceCV is the coefficient of variation of USD prices.
func priceCV(samples []database.PriceSample) float64 {
	if len(samples) < 2 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.PriceUSD
	}
	mean := sum / float64(len(samples))
	if mean == 0 {
		return 0
	}
	var varSum float64
	for _, s := range samples {
		d := s.PriceUSD - mean
		varSum += d * d
	}
	return math.Sqrt(varSum/float64(len(samples))) / mean
}

func hasSuddenLiquidityDrop(samples []database.PriceSample) bool {
	for i := 1; i < len(samples); i++ {
		prev := samples[i-1].LiquidityUSD
		if prev <= 0 {
			continue
		}
		if (prev-samples[i].LiquidityUSD)/prev > suddenDropFraction {
			return true
		}
	}
	return false
}

// solSlopePerHour is the least-squares slope of real SOL reserves against
// time, expressed in SOL per hour.
func solSlopePerHour(samples []database.PriceSample) float64 {
	if len(samples) < 2 {
		return 0
	}
	base := samples[0].Time
	var sumX, sumY, sumXY, sumXX float64
	n := float64(len(samples))
	for _, s := range samples {
		x := s.Time.Sub(base).Hours()
		y := float64(s.RealSolReserves) / lamportsPerSol
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func gradeFor(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 75:
		return "B"
	case score >= 60:
		return "C"
	case score >= 40:
		return "D"
	default:
		return "F"
	}
}

func suitabilityFor(score float64) string {
	switch {
	case score >= 85:
		return SuitabilityExcellent
	case score >= 70:
		return SuitabilityGood
	case score >= 55:
		return SuitabilityFair
	case score >= 35:
		return SuitabilityPoor
	default:
		return SuitabilityRisky
	}
}

func riskFor(score float64) string {
	switch {
	case score >= 70:
		return RiskLow
	case score >= 50:
		return RiskMedium
	case score >= 30:
		return RiskHigh
	default:
		return RiskExtreme
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
