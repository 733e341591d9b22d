package config

import (
	"os"
	"testing"
	"time"
)

func clearScanEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"CATEGORY_LOW_MAX", "CATEGORY_MEDIUM_MAX", "CATEGORY_HIGH_MAX",
		"CATEGORY_AIM_MIN", "CATEGORY_AIM_MAX",
		"BUY_SOLSNIFFER_BLACKLIST", "SCAN_INTERVAL_LOW", "SCAN_DURATION_LOW", "SCAN_MAX_LOW",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestDefaultsValidate(t *testing.T) {
	clearScanEnv(t)
	cfg := fromEnv()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Thresholds.HighMax != cfg.Thresholds.AimMin {
		t.Error("HIGH_MAX must equal AIM_MIN by default")
	}
	if cfg.Scan["LOW"].MaxScans != 9 {
		t.Errorf("LOW max scans = %d, want 9", cfg.Scan["LOW"].MaxScans)
	}
	if cfg.Scan["AIM"].Interval != 10*time.Second {
		t.Errorf("AIM interval = %v, want 10s", cfg.Scan["AIM"].Interval)
	}
}

func TestThresholdValidation(t *testing.T) {
	clearScanEnv(t)
	t.Setenv("CATEGORY_MEDIUM_MAX", "7000") // below LOW_MAX
	cfg := fromEnv()
	if err := cfg.Validate(); err == nil {
		t.Error("non-monotonic thresholds must fail validation")
	}

	t.Setenv("CATEGORY_MEDIUM_MAX", "19000")
	t.Setenv("CATEGORY_HIGH_MAX", "36000") // breaks HIGH_MAX == AIM_MIN
	cfg = fromEnv()
	if err := cfg.Validate(); err == nil {
		t.Error("HIGH_MAX != AIM_MIN must fail validation")
	}
}

func TestScanTableValidation(t *testing.T) {
	clearScanEnv(t)

	t.Setenv("SCAN_DURATION_LOW", "300") // below the 600s interval
	cfg := fromEnv()
	if err := cfg.Validate(); err == nil {
		t.Error("duration <= interval must fail validation")
	}

	t.Setenv("SCAN_DURATION_LOW", "5400")
	t.Setenv("SCAN_MAX_LOW", "20") // 5400/600 = 9, 20 is out of ±1
	cfg = fromEnv()
	if err := cfg.Validate(); err == nil {
		t.Error("max scans far from duration/interval must fail validation")
	}
}

func TestBlacklistParsing(t *testing.T) {
	clearScanEnv(t)
	t.Setenv("BUY_SOLSNIFFER_BLACKLIST", "90, 95")
	cfg := fromEnv()
	if !cfg.Buy.Blacklisted(90) || !cfg.Buy.Blacklisted(95) {
		t.Error("configured blacklist values should match")
	}
	if cfg.Buy.Blacklisted(80) {
		t.Error("unlisted value should not match")
	}
}

func TestReloadSwapsSnapshotAndNotifies(t *testing.T) {
	clearScanEnv(t)
	if _, err := Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	before := Current()

	notified := make(chan *Config, 1)
	OnReload(func(c *Config) { notified <- c })

	t.Setenv("CATEGORY_AIM_MAX", "120000")
	after, err := Reload()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if after.Thresholds.AimMax != 120000 {
		t.Errorf("reloaded AimMax = %v, want 120000", after.Thresholds.AimMax)
	}
	if Current() != after {
		t.Error("Current should return the reloaded snapshot")
	}
	if before.Thresholds.AimMax == after.Thresholds.AimMax {
		t.Error("old snapshot should be untouched")
	}
	select {
	case got := <-notified:
		if got != after {
			t.Error("watcher should receive the new snapshot")
		}
	case <-time.After(time.Second):
		t.Error("watcher was not invoked")
	}
}

func TestInvalidReloadKeepsCurrent(t *testing.T) {
	clearScanEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Setenv("CATEGORY_LOW_MAX", "999999") // breaks monotonicity
	if _, err := Reload(); err == nil {
		t.Fatal("invalid reload must error")
	}
	if Current() != cfg {
		t.Error("failed reload must not replace the current snapshot")
	}
}
