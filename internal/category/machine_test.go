package category

import (
	"testing"
	"time"

	"pumpfun-scanner/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Thresholds: config.ThresholdConfig{
			LowMax:    8_000,
			MediumMax: 19_000,
			HighMax:   35_000,
			AimMin:    35_000,
			AimMax:    105_000,
		},
		Scan: map[string]config.ScanConfig{
			"NEW":     {Interval: 60 * time.Second, Duration: 30 * time.Minute, MaxScans: 30},
			"LOW":     {Interval: 10 * time.Minute, Duration: 90 * time.Minute, MaxScans: 9},
			"MEDIUM":  {Interval: 5 * time.Minute, Duration: time.Hour, MaxScans: 12},
			"HIGH":    {Interval: 2 * time.Minute, Duration: 30 * time.Minute, MaxScans: 15},
			"AIM":     {Interval: 10 * time.Second, Duration: 10 * time.Minute, MaxScans: 60},
			"ARCHIVE": {Interval: time.Hour, Duration: 24 * time.Hour, MaxScans: 24},
		},
	}
}

// machineAt returns a NEW machine whose clock we control.
func machineAt(t *testing.T, start time.Time) (*Machine, *time.Time) {
	t.Helper()
	cfg := testConfig()
	now := start
	m := NewMachine("mint-test", func() *config.Config { return cfg })
	m.now = func() time.Time { return now }
	m.enteredAt = start
	return m, &now
}

func TestNewToAimAfterDurationFloor(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m, now := machineAt(t, start)

	*now = start.Add(30 * time.Minute)
	tr := m.Apply(UpdateMarketCap{MarketCap: 36_000})
	if tr == nil {
		t.Fatal("expected a transition")
	}
	if tr.To != Aim {
		t.Errorf("to = %s, want AIM", tr.To)
	}
	if tr.MarketCap != 36_000 {
		t.Errorf("market cap at transition = %v, want 36000", tr.MarketCap)
	}
	if m.State() != Aim {
		t.Errorf("state = %s, want AIM", m.State())
	}
	if m.ScanCount() != 0 {
		t.Errorf("scan count after transition = %d, want 0", m.ScanCount())
	}
}

func TestPrematurePromotionBlocked(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m, now := machineAt(t, start)

	*now = start.Add(10 * time.Minute)
	tr := m.Apply(UpdateMarketCap{MarketCap: 12_000})
	if tr != nil {
		t.Fatalf("expected no transition before the NEW floor, got %+v", tr)
	}
	if m.State() != New {
		t.Errorf("state = %s, want NEW", m.State())
	}
	if m.MarketCap() != 12_000 {
		t.Errorf("recorded market cap = %v, want 12000", m.MarketCap())
	}
}

func TestZeroCapArchivesImmediately(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m, now := machineAt(t, start)

	// Only one minute in NEW; the zero-cap path bypasses the floor.
	*now = start.Add(time.Minute)
	tr := m.Apply(UpdateMarketCap{MarketCap: 0})
	if tr == nil || tr.To != Archive {
		t.Fatalf("expected NEW -> ARCHIVE on zero cap, got %+v", tr)
	}
}

func TestScanExhaustionLowToArchive(t *testing.T) {
	cfg := testConfig()
	m := RestoreMachine("mint-test", Low, time.Now(), 0, func() *config.Config { return cfg })

	var tr *Transition
	for i := 0; i < 9; i++ {
		if tr != nil {
			t.Fatalf("transition before scan 9: %+v", tr)
		}
		tr = m.Apply(ScanComplete{})
	}
	if tr == nil || tr.To != Archive {
		t.Fatalf("expected LOW -> ARCHIVE after 9 scans, got %+v", tr)
	}
	if tr.Reason != ReasonScanExhausted {
		t.Errorf("reason = %s, want %s", tr.Reason, ReasonScanExhausted)
	}
	if m.ScanCount() != 0 {
		t.Errorf("scan count after entry = %d, want 0", m.ScanCount())
	}
}

func TestDuplicateUpdateProducesOneTransition(t *testing.T) {
	cfg := testConfig()
	m := RestoreMachine("mint-test", Low, time.Now(), 0, func() *config.Config { return cfg })

	first := m.Apply(UpdateMarketCap{MarketCap: 20_000})
	if first == nil || first.To != High {
		t.Fatalf("expected LOW -> HIGH, got %+v", first)
	}
	second := m.Apply(UpdateMarketCap{MarketCap: 20_000})
	if second != nil {
		t.Errorf("second identical update produced a transition: %+v", second)
	}
}

func TestAimExitRoutes(t *testing.T) {
	cfg := testConfig()
	cases := []struct {
		mc   float64
		want Category
	}{
		{30_000, High},
		{10_000, Medium},
		{5_000, Low},
	}
	for _, tc := range cases {
		m := RestoreMachine("mint-test", Aim, time.Now(), 0, func() *config.Config { return cfg })
		tr := m.Apply(UpdateMarketCap{MarketCap: tc.mc})
		if tr == nil || tr.To != tc.want {
			t.Errorf("AIM update mc=%v: got %+v, want %s", tc.mc, tr, tc.want)
		}
	}

	// Above the band the machine stays in AIM and records the cap.
	m := RestoreMachine("mint-test", Aim, time.Now(), 0, func() *config.Config { return cfg })
	if tr := m.Apply(UpdateMarketCap{MarketCap: 150_000}); tr != nil {
		t.Errorf("above-band update should stay in AIM, got %+v", tr)
	}
	if m.MarketCap() != 150_000 {
		t.Errorf("market cap not recorded: %v", m.MarketCap())
	}
}

func TestAimDurationTimeoutGuard(t *testing.T) {
	cfg := testConfig()

	// In the HIGH bracket: timeout exits to HIGH.
	m := RestoreMachine("mint-test", Aim, time.Now(), 0, func() *config.Config { return cfg })
	m.Apply(UpdateMarketCap{MarketCap: 140_000}) // stays in AIM
	m.marketCap = 30_000
	tr := m.Apply(Timeout{})
	if tr == nil || tr.To != High {
		t.Fatalf("AIM timeout with HIGH-bracket cap: got %+v, want HIGH", tr)
	}

	// Outside the HIGH bracket: timeout keeps the machine in AIM.
	m = RestoreMachine("mint-test", Aim, time.Now(), 0, func() *config.Config { return cfg })
	m.marketCap = 50_000
	if tr := m.Apply(Timeout{}); tr != nil {
		t.Errorf("AIM timeout with in-band cap should not transition, got %+v", tr)
	}
	if m.State() != Aim {
		t.Errorf("state = %s, want AIM", m.State())
	}
}

func TestBuyExecutedCompletesOnlyFromAim(t *testing.T) {
	cfg := testConfig()

	m := RestoreMachine("mint-test", Aim, time.Now(), 0, func() *config.Config { return cfg })
	tr := m.Apply(BuyExecuted{})
	if tr == nil || tr.To != Complete {
		t.Fatalf("AIM buy: got %+v, want COMPLETE", tr)
	}

	m = RestoreMachine("mint-test", Medium, time.Now(), 0, func() *config.Config { return cfg })
	if tr := m.Apply(BuyExecuted{}); tr != nil {
		t.Errorf("buy outside AIM should be ignored, got %+v", tr)
	}
}

func TestTerminalStatesAreSinks(t *testing.T) {
	cfg := testConfig()
	for _, terminal := range []Category{Bin, Complete} {
		m := RestoreMachine("mint-test", terminal, time.Now(), 0, func() *config.Config { return cfg })
		events := []Event{
			UpdateMarketCap{MarketCap: 50_000},
			ScanComplete{},
			Timeout{},
			ForceArchive{Reason: "x"},
			ManualOverride{Target: Low, Reason: "x"},
		}
		for _, ev := range events {
			if tr := m.Apply(ev); tr != nil {
				t.Errorf("%s accepted %T: %+v", terminal, ev, tr)
			}
		}
	}
}

func TestArchiveRecoveryAndBin(t *testing.T) {
	cfg := testConfig()

	m := RestoreMachine("mint-test", Archive, time.Now(), 0, func() *config.Config { return cfg })
	tr := m.Apply(UpdateMarketCap{MarketCap: 9_000})
	if tr == nil || tr.To != Low {
		t.Fatalf("recovering archive: got %+v, want LOW", tr)
	}

	m = RestoreMachine("mint-test", Archive, time.Now(), 0, func() *config.Config { return cfg })
	if tr := m.Apply(UpdateMarketCap{MarketCap: 2_000}); tr != nil {
		t.Errorf("non-recovering cap should stay in ARCHIVE, got %+v", tr)
	}
	tr = m.Apply(Timeout{})
	if tr == nil || tr.To != Bin {
		t.Fatalf("archive timeout: got %+v, want BIN", tr)
	}
}

func TestManualOverride(t *testing.T) {
	cfg := testConfig()
	m := RestoreMachine("mint-test", Low, time.Now(), 3, func() *config.Config { return cfg })
	tr := m.Apply(ManualOverride{Target: Archive, Reason: "operator request"})
	if tr == nil || tr.To != Archive || tr.Reason != ReasonManualOverride {
		t.Fatalf("manual override: got %+v", tr)
	}
	if tr.Metadata["override_reason"] != "operator request" {
		t.Errorf("override reason not carried: %+v", tr.Metadata)
	}
}
