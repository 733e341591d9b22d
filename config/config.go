package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
)

// Config is an immutable snapshot of the process configuration. A snapshot
// is never mutated after Load/Reload; consumers either hold the pointer they
// were handed or call Current() for the latest one.
type Config struct {
	Thresholds ThresholdConfig       `json:"thresholds"`
	Scan       map[string]ScanConfig `json:"scan"`
	Buy        BuyCriteriaConfig     `json:"buy"`
	Position   PositionTiersConfig   `json:"position"`
	Stream     StreamConfig          `json:"stream"`
	Database   DatabaseConfig        `json:"database"`
	Redis      RedisConfig           `json:"redis"`
	Server     ServerConfig          `json:"server"`
	Logging    LoggingConfig         `json:"logging"`
	SolPrice   float64               `json:"sol_price_usd"`
}

// ThresholdConfig holds the market-cap category boundaries in USD.
type ThresholdConfig struct {
	LowMax    float64 `json:"low_max"`
	MediumMax float64 `json:"medium_max"`
	HighMax   float64 `json:"high_max"`
	AimMin    float64 `json:"aim_min"`
	AimMax    float64 `json:"aim_max"`
}

// ScanConfig holds the scan cadence for one category.
type ScanConfig struct {
	Interval time.Duration `json:"interval"`
	Duration time.Duration `json:"duration"`
	MaxScans int           `json:"max_scans"`
}

// BuyCriteriaConfig holds the buy-signal gate settings.
type BuyCriteriaConfig struct {
	MinMarketCap        float64   `json:"min_market_cap"`
	MaxMarketCap        float64   `json:"max_market_cap"`
	MinLiquidity        float64   `json:"min_liquidity"`
	MinHolders          int       `json:"min_holders"`
	MaxTop10Percent     float64   `json:"max_top10_percent"`
	MinSolsniffer       float64   `json:"min_solsniffer"`
	SolsnifferBlacklist []float64 `json:"solsniffer_blacklist"`
}

// Blacklisted reports whether a solsniffer score is an exact blacklist hit.
func (b BuyCriteriaConfig) Blacklisted(score float64) bool {
	for _, v := range b.SolsnifferBlacklist {
		if v == score {
			return true
		}
	}
	return false
}

// PositionTier maps a half-open value range [Min, Max) onto a fractional
// position cap.
type PositionTier struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Cap float64 `json:"cap"`
}

// PositionTiersConfig holds the tiered position-cap tables.
type PositionTiersConfig struct {
	SafetyTiers      []PositionTier `json:"safety_tiers"`
	HolderTiers      []PositionTier `json:"holder_tiers"`
	ConcentrationCap float64        `json:"concentration_cap"`
}

// StreamConfig holds firehose and batching settings.
type StreamConfig struct {
	Endpoint            string        `json:"endpoint"`
	Token               string        `json:"token"`
	BatchSize           int           `json:"batch_size"`
	FlushInterval       time.Duration `json:"flush_interval"`
	PriceChangeInterval time.Duration `json:"price_change_interval"`
	ReconnectDelay      time.Duration `json:"reconnect_delay"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
	PoolMax  int    `json:"pool_max"`
}

// RedisConfig holds the API-cache redis settings.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// ServerConfig holds the admin HTTP surface settings.
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Host    string `json:"host"`
}

// LoggingConfig mirrors internal/logging.Config.
type LoggingConfig struct {
	Level       string `json:"level"`
	Output      string `json:"output"`
	JSONFormat  bool   `json:"json_format"`
	IncludeFile bool   `json:"include_file"`
}

// scanCategories are the non-terminal categories that carry a scan cadence.
// The canonical Category type lives in internal/category; config stays a
// leaf package and keys by name.
var scanCategories = []string{"NEW", "LOW", "MEDIUM", "HIGH", "AIM", "ARCHIVE"}

var (
	current  atomic.Pointer[Config]
	watchMu  sync.Mutex
	watchers []func(*Config)
)

// Load reads the environment (and an optional .env file) into a validated
// Config snapshot and installs it as the current one.
func Load() (*Config, error) {
	// Missing .env is fine; real env vars win either way.
	_ = godotenv.Load()

	cfg := fromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	current.Store(cfg)
	return cfg, nil
}

// Current returns the latest installed snapshot. Load must have succeeded
// at least once.
func Current() *Config {
	return current.Load()
}

// Reload re-reads the environment and, if the result validates, atomically
// replaces the current snapshot and invokes registered watchers.
func Reload() (*Config, error) {
	cfg := fromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config reload rejected: %w", err)
	}
	current.Store(cfg)

	watchMu.Lock()
	subs := make([]func(*Config), len(watchers))
	copy(subs, watchers)
	watchMu.Unlock()
	for _, w := range subs {
		w(cfg)
	}
	return cfg, nil
}

// OnReload registers a watcher invoked after each successful Reload.
func OnReload(fn func(*Config)) {
	watchMu.Lock()
	defer watchMu.Unlock()
	watchers = append(watchers, fn)
}

func fromEnv() *Config {
	return &Config{
		Thresholds: ThresholdConfig{
			LowMax:    getEnvFloat("CATEGORY_LOW_MAX", 8_000),
			MediumMax: getEnvFloat("CATEGORY_MEDIUM_MAX", 19_000),
			HighMax:   getEnvFloat("CATEGORY_HIGH_MAX", 35_000),
			AimMin:    getEnvFloat("CATEGORY_AIM_MIN", 35_000),
			AimMax:    getEnvFloat("CATEGORY_AIM_MAX", 105_000),
		},
		Scan: map[string]ScanConfig{
			"NEW":     scanFromEnv("NEW", 60, 1800, 30),
			"LOW":     scanFromEnv("LOW", 600, 5400, 9),
			"MEDIUM":  scanFromEnv("MEDIUM", 300, 3600, 12),
			"HIGH":    scanFromEnv("HIGH", 120, 1800, 15),
			"AIM":     scanFromEnv("AIM", 10, 600, 60),
			"ARCHIVE": scanFromEnv("ARCHIVE", 3600, 86400, 24),
		},
		Buy: BuyCriteriaConfig{
			MinMarketCap:        getEnvFloat("BUY_MIN_MARKET_CAP", 35_000),
			MaxMarketCap:        getEnvFloat("BUY_MAX_MARKET_CAP", 105_000),
			MinLiquidity:        getEnvFloat("BUY_MIN_LIQUIDITY", 7_500),
			MinHolders:          getEnvInt("BUY_MIN_HOLDERS", 50),
			MaxTop10Percent:     getEnvFloat("BUY_MAX_TOP10_CONCENTRATION", 25),
			MinSolsniffer:       getEnvFloat("BUY_MIN_SOLSNIFFER", 60),
			SolsnifferBlacklist: getEnvFloatList("BUY_SOLSNIFFER_BLACKLIST", []float64{90}),
		},
		Position: PositionTiersConfig{
			SafetyTiers: []PositionTier{
				{Min: 85, Max: 101, Cap: 1.5},
				{Min: 70, Max: 85, Cap: 1.0},
				{Min: 60, Max: 70, Cap: 0.5},
				{Min: 0, Max: 60, Cap: 0.25},
			},
			HolderTiers: []PositionTier{
				{Min: 300, Max: math.MaxFloat64, Cap: 1.5},
				{Min: 150, Max: 300, Cap: 1.0},
				{Min: 50, Max: 150, Cap: 0.6},
				{Min: 0, Max: 50, Cap: 0.25},
			},
			ConcentrationCap: getEnvFloat("POSITION_CONCENTRATION_CAP", 1.0),
		},
		Stream: StreamConfig{
			Endpoint:            getEnv("GRPC_ENDPOINT", "localhost:10000"),
			Token:               getEnv("GRPC_TOKEN", ""),
			BatchSize:           getEnvInt("GRPC_BATCH_SIZE", 1000),
			FlushInterval:       time.Duration(getEnvInt("GRPC_FLUSH_INTERVAL", 1000)) * time.Millisecond,
			PriceChangeInterval: time.Duration(getEnvInt("PRICE_CHANGE_INTERVAL", 300000)) * time.Millisecond,
			ReconnectDelay:      5 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "scanner"),
			Password: getEnv("DB_PASSWORD", "scanner"),
			Database: getEnv("DB_NAME", "pumpfun_scanner"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			PoolMax:  getEnvInt("DB_POOL_MAX", 20),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Server: ServerConfig{
			Enabled: getEnvBool("SERVER_ENABLED", true),
			Port:    getEnvInt("SERVER_PORT", 8080),
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "INFO"),
			Output:      getEnv("LOG_OUTPUT", "stdout"),
			JSONFormat:  getEnvBool("LOG_JSON", true),
			IncludeFile: getEnvBool("LOG_INCLUDE_FILE", false),
		},
		SolPrice: getEnvFloat("SOL_PRICE_USD", 100),
	}
}

func scanFromEnv(category string, interval, duration, maxScans int) ScanConfig {
	return ScanConfig{
		Interval: time.Duration(getEnvInt("SCAN_INTERVAL_"+category, interval)) * time.Second,
		Duration: time.Duration(getEnvInt("SCAN_DURATION_"+category, duration)) * time.Second,
		MaxScans: getEnvInt("SCAN_MAX_"+category, maxScans),
	}
}

// Validate enforces the startup invariants. Any violation is fatal.
func (c *Config) Validate() error {
	t := c.Thresholds
	if !(t.LowMax > 0 && t.LowMax < t.MediumMax && t.MediumMax < t.HighMax && t.AimMin < t.AimMax) {
		return fmt.Errorf("thresholds not strictly increasing: %+v", t)
	}
	if t.HighMax != t.AimMin {
		return fmt.Errorf("HIGH_MAX (%v) must equal AIM_MIN (%v)", t.HighMax, t.AimMin)
	}

	for _, name := range scanCategories {
		sc, ok := c.Scan[name]
		if !ok {
			return fmt.Errorf("missing scan config for %s", name)
		}
		if sc.Interval <= 0 {
			return fmt.Errorf("scan interval for %s must be positive", name)
		}
		if sc.Duration <= sc.Interval {
			return fmt.Errorf("scan duration for %s (%v) must exceed interval (%v)", name, sc.Duration, sc.Interval)
		}
		expected := int(sc.Duration / sc.Interval)
		if diff := expected - sc.MaxScans; diff > 1 || diff < -1 {
			return fmt.Errorf("scan max for %s is %d, expected %d±1 from duration/interval", name, sc.MaxScans, expected)
		}
	}

	if c.Buy.MinMarketCap >= c.Buy.MaxMarketCap {
		return fmt.Errorf("buy market-cap range inverted: [%v, %v]", c.Buy.MinMarketCap, c.Buy.MaxMarketCap)
	}
	if c.Stream.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Database.PoolMax <= 0 {
		return fmt.Errorf("db pool max must be positive")
	}
	return nil
}

// ScanFor returns the scan config for a category name, falling back to the
// ARCHIVE cadence for unknown names so a logic fault cannot panic a loop.
func (c *Config) ScanFor(category string) ScanConfig {
	if sc, ok := c.Scan[category]; ok {
		return sc
	}
	return c.Scan["ARCHIVE"]
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloatList(key string, fallback []float64) []float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []float64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if f, err := strconv.ParseFloat(part, 64); err == nil {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
