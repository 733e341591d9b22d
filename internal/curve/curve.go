// Package curve implements the pump.fun bonding-curve price model.
//
// The curve is approximated by an exponential price function
// pricePer10M = A * exp(B * marketCapUSD) and a linear progress model
// between the initial and graduation market caps. All functions are pure;
// the only module state is the SOL/USD reference price.
package curve

import (
	"math"
	"sync/atomic"
)

const (
	// Exponential price model constants, fitted against observed curves.
	PriceCoefficientA = 0.6015
	PriceCoefficientB = 3.606e-5

	// InitialMarketCap is the market cap at curve creation (0 tokens sold).
	InitialMarketCap = 4_000.0
	// GraduationMarketCap is the market cap at which the token graduates
	// to a conventional AMM pool.
	GraduationMarketCap = 69_000.0

	// CurveSupply is the number of tokens sold through the curve.
	CurveSupply = 800_000_000.0
	// GraduationRaiseUSD is the total USD raised over the full curve.
	GraduationRaiseUSD = 12_000.0

	// DefaultSolPriceUSD seeds the reference price until the price feed
	// delivers a real quote.
	DefaultSolPriceUSD = 180.0
)

// solPriceUSD holds the SOL/USD reference price as math.Float64bits.
var solPriceUSD atomic.Uint64

func init() {
	solPriceUSD.Store(math.Float64bits(DefaultSolPriceUSD))
}

// SetSolPrice updates the SOL/USD reference price. Non-positive values are
// ignored so a bad feed sample cannot zero out every conversion.
func SetSolPrice(usd float64) {
	if usd <= 0 {
		return
	}
	solPriceUSD.Store(math.Float64bits(usd))
}

// SolPrice returns the current SOL/USD reference price.
func SolPrice() float64 {
	return math.Float64frombits(solPriceUSD.Load())
}

// Price holds the per-token price in both quote units.
type Price struct {
	USD float64
	SOL float64
}

// PriceAtMarketCap returns the per-token price implied by the exponential
// model at the given market cap.
func PriceAtMarketCap(marketCapUSD float64) Price {
	if marketCapUSD < 0 {
		marketCapUSD = 0
	}
	pricePer10M := PriceCoefficientA * math.Exp(PriceCoefficientB*marketCapUSD)
	usd := pricePer10M / 10_000_000
	return Price{
		USD: usd,
		SOL: usd / SolPrice(),
	}
}

// TokensSoldAtMarketCap linearly interpolates tokens sold between the
// initial and graduation market caps. Below the initial cap progress clamps
// to zero; above graduation the full curve supply is sold.
func TokensSoldAtMarketCap(marketCapUSD float64) float64 {
	return CurveSupply * progressAt(marketCapUSD)
}

// RaisedAtMarketCap returns the proportional USD raised at the given
// market cap, using the same linear progress model.
func RaisedAtMarketCap(marketCapUSD float64) float64 {
	return GraduationRaiseUSD * progressAt(marketCapUSD)
}

// State is the aggregate curve snapshot at a market cap.
type State struct {
	MarketCapUSD         float64
	Price                Price
	TokensSold           float64
	RaisedUSD            float64
	Progress             float64 // 0..1
	IsGraduated          bool
	DistanceToGraduation float64 // USD remaining to graduation, 0 if graduated
}

// StateAtMarketCap returns the full curve snapshot at a market cap.
func StateAtMarketCap(marketCapUSD float64) State {
	p := progressAt(marketCapUSD)
	st := State{
		MarketCapUSD: marketCapUSD,
		Price:        PriceAtMarketCap(marketCapUSD),
		TokensSold:   CurveSupply * p,
		RaisedUSD:    GraduationRaiseUSD * p,
		Progress:     p,
		IsGraduated:  marketCapUSD >= GraduationMarketCap,
	}
	if !st.IsGraduated {
		st.DistanceToGraduation = GraduationMarketCap - marketCapUSD
	}
	return st
}

// progressAt maps a market cap onto [0,1] between the initial and
// graduation caps.
func progressAt(marketCapUSD float64) float64 {
	if marketCapUSD <= InitialMarketCap {
		return 0
	}
	if marketCapUSD >= GraduationMarketCap {
		return 1
	}
	return (marketCapUSD - InitialMarketCap) / (GraduationMarketCap - InitialMarketCap)
}
