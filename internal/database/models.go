package database

import (
	"time"
)

// Transaction kinds observed on the bonding-curve program.
const (
	TxKindCreate = "create"
	TxKindBuy    = "buy"
	TxKindSell   = "sell"
)

// PlaceholderSymbol marks a token row created from a price or transaction
// before metadata enrichment has run.
const PlaceholderSymbol = "LOADING..."

// Token represents a tracked bonding-curve token
type Token struct {
	Address             string     `json:"address"`
	Symbol              string     `json:"symbol"`
	Name                string     `json:"name"`
	Decimals            int        `json:"decimals"`
	Creator             *string    `json:"creator,omitempty"`
	LaunchSignature     *string    `json:"launch_signature,omitempty"`
	LaunchSlot          *int64     `json:"launch_slot,omitempty"`
	CurrentPriceUSD     float64    `json:"current_price_usd"`
	CurrentPriceSol     float64    `json:"current_price_sol"`
	MarketCap           float64    `json:"market_cap"`
	Liquidity           float64    `json:"liquidity"`
	Volume24h           float64    `json:"volume_24h"`
	HolderCount         int        `json:"holder_count"`
	Top10Percent        float64    `json:"top10_percent"`
	SolsnifferScore     *float64   `json:"solsniffer_score,omitempty"`
	SolsnifferCheckedAt *time.Time `json:"solsniffer_checked_at,omitempty"`
	SecurityFlags       []string   `json:"security_flags"`
	CurveProgress       float64    `json:"curve_progress"`
	Category            string     `json:"category"`
	PreviousCategory    *string    `json:"previous_category,omitempty"`
	CategoryUpdatedAt   time.Time  `json:"category_updated_at"`
	CategoryScanCount   int        `json:"category_scan_count"`
	AimAttempts         int        `json:"aim_attempts"`
	BuyAttempts         int        `json:"buy_attempts"`
	PriceUpdateCount    int64      `json:"price_update_count"`
	LastPriceUpdate     *time.Time `json:"last_price_update,omitempty"`
	LastScanAt          *time.Time `json:"last_scan_at,omitempty"`
	EnrichFailed        bool       `json:"enrich_failed"`
	DiscoveredAt        time.Time  `json:"discovered_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// CategoryTransition is one row of the append-only transition log
type CategoryTransition struct {
	ID                    int64                  `json:"id"`
	TokenAddress          string                 `json:"token_address"`
	FromCategory          string                 `json:"from_category"`
	ToCategory            string                 `json:"to_category"`
	MarketCapAtTransition float64                `json:"market_cap_at_transition"`
	Reason                string                 `json:"reason"`
	Metadata              map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt             time.Time              `json:"created_at"`
}

// PriceSample is one row of the timeseries.token_prices table
type PriceSample struct {
	TokenAddress         string    `json:"token_address"`
	Time                 time.Time `json:"time"`
	PriceUSD             float64   `json:"price_usd"`
	PriceSol             float64   `json:"price_sol"`
	VirtualSolReserves   uint64    `json:"virtual_sol_reserves"`
	VirtualTokenReserves uint64    `json:"virtual_token_reserves"`
	RealSolReserves      uint64    `json:"real_sol_reserves"`
	RealTokenReserves    uint64    `json:"real_token_reserves"`
	MarketCap            float64   `json:"market_cap"`
	LiquidityUSD         float64   `json:"liquidity_usd"`
	Slot                 uint64    `json:"slot"`
	Source               string    `json:"source"`
}

// TokenTransaction is one row of the timeseries.token_transactions table
type TokenTransaction struct {
	Signature    string    `json:"signature"`
	TokenAddress string    `json:"token_address"`
	Time         time.Time `json:"time"`
	Kind         string    `json:"kind"`
	UserAddress  string    `json:"user_address"`
	TokenAmount  float64   `json:"token_amount"`
	SolAmount    float64   `json:"sol_amount"`
	PriceUSD     float64   `json:"price_usd"`
	PriceSol     float64   `json:"price_sol"`
	Slot         uint64    `json:"slot"`
	Fee          uint64    `json:"fee"`
}

// ScanLog records one completed (or failed) scan
type ScanLog struct {
	ID           int64     `json:"id"`
	TokenAddress string    `json:"token_address"`
	Category     string    `json:"category"`
	ScanNumber   int       `json:"scan_number"`
	DurationMs   int64     `json:"duration_ms"`
	APIsUsed     []string  `json:"apis_used"`
	Error        *string   `json:"error,omitempty"`
	IsFinal      bool      `json:"is_final"`
	CreatedAt    time.Time `json:"created_at"`
}

// BuyEvaluation is one row of the append-only evaluation log
type BuyEvaluation struct {
	ID                  int64                  `json:"id"`
	TokenAddress        string                 `json:"token_address"`
	Passed              bool                   `json:"passed"`
	Criteria            map[string]bool        `json:"criteria"`
	Observed            map[string]interface{} `json:"observed"`
	FailureReasons      []string               `json:"failure_reasons"`
	Confidence          float64                `json:"confidence"`
	RiskLevel           string                 `json:"risk_level"`
	RecommendedPosition float64                `json:"recommended_position"`
	DurationMs          int64                  `json:"duration_ms"`
	CreatedAt           time.Time              `json:"created_at"`
}

// APICallLog records one external API call
type APICallLog struct {
	ID         int64     `json:"id"`
	Provider   string    `json:"provider"`
	Endpoint   string    `json:"endpoint"`
	StatusCode int       `json:"status_code"`
	DurationMs int64     `json:"duration_ms"`
	Error      *string   `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SolPricePoint is one row of sol_price_history
type SolPricePoint struct {
	ID       int64     `json:"id"`
	PriceUSD float64   `json:"price_usd"`
	Source   string    `json:"source"`
	Time     time.Time `json:"time"`
}
