package category

import (
	"time"

	"pumpfun-scanner/config"
)

// minDurationInNew is the floor a token must spend in NEW before any
// market-cap promotion. The zero-cap archive path bypasses it.
const minDurationInNew = 30 * time.Minute

// Event is the sealed set of inputs a machine accepts.
type Event interface{ isEvent() }

// UpdateMarketCap carries a fresh market cap observation.
type UpdateMarketCap struct{ MarketCap float64 }

// ScanComplete reports one finished scheduled scan.
type ScanComplete struct{}

// Timeout reports that the category's scan duration has elapsed.
type Timeout struct{}

// ManualOverride forces the machine into a target category.
type ManualOverride struct {
	Target Category
	Reason string
}

// BuyExecuted reports that a buy signal was acted on.
type BuyExecuted struct{}

// ForceArchive archives the token regardless of market cap.
type ForceArchive struct{ Reason string }

func (UpdateMarketCap) isEvent() {}
func (ScanComplete) isEvent()    {}
func (Timeout) isEvent()         {}
func (ManualOverride) isEvent()  {}
func (BuyExecuted) isEvent()     {}
func (ForceArchive) isEvent()    {}

// Transition describes one state change produced by Apply.
type Transition struct {
	Mint      string
	From      Category
	To        Category
	MarketCap float64
	Reason    string
	Metadata  map[string]interface{}
}

// Machine is the per-token finite automaton. It is not safe for concurrent
// use; the manager serializes events per token.
type Machine struct {
	mint      string
	state     Category
	enteredAt time.Time
	scanCount int
	marketCap float64

	cfg func() *config.Config
	now func() time.Time
}

// NewMachine creates a machine in NEW for a freshly observed token.
func NewMachine(mint string, cfg func() *config.Config) *Machine {
	m := &Machine{
		mint:  mint,
		state: New,
		cfg:   cfg,
		now:   time.Now,
	}
	m.enteredAt = m.now()
	return m
}

// RestoreMachine recreates a machine in its persisted state. Used by the
// startup rehydrate so the NEW duration floor is not re-applied to tokens
// that already left NEW.
func RestoreMachine(mint string, state Category, enteredAt time.Time, scanCount int, cfg func() *config.Config) *Machine {
	if !state.Valid() {
		state = New
	}
	return &Machine{
		mint:      mint,
		state:     state,
		enteredAt: enteredAt,
		scanCount: scanCount,
		marketCap: 0,
		cfg:       cfg,
		now:       time.Now,
	}
}

// State returns the current category.
func (m *Machine) State() Category { return m.state }

// MarketCap returns the last observed market cap.
func (m *Machine) MarketCap() float64 { return m.marketCap }

// ScanCount returns the scan count within the current category.
func (m *Machine) ScanCount() int { return m.scanCount }

// EnteredAt returns when the current category was entered.
func (m *Machine) EnteredAt() time.Time { return m.enteredAt }

// Apply feeds one event to the machine and returns the resulting transition,
// or nil when the machine stays in state. Guards never error; an unmatched
// event only records its payload.
func (m *Machine) Apply(ev Event) *Transition {
	if m.state.Terminal() {
		if u, ok := ev.(UpdateMarketCap); ok {
			m.marketCap = u.MarketCap
		}
		return nil
	}

	switch e := ev.(type) {
	case UpdateMarketCap:
		return m.onMarketCap(e.MarketCap)
	case ScanComplete:
		m.scanCount++
		if m.exceededMaxScans() {
			return m.exhaust(ReasonScanExhausted)
		}
		return nil
	case Timeout:
		return m.exhaust(ReasonDurationTimeout)
	case ManualOverride:
		if !e.Target.Valid() || e.Target == m.state {
			return nil
		}
		return m.transition(e.Target, m.marketCap, ReasonManualOverride, map[string]interface{}{"override_reason": e.Reason})
	case BuyExecuted:
		if m.state != Aim {
			return nil
		}
		return m.transition(Complete, m.marketCap, ReasonBuyExecuted, nil)
	case ForceArchive:
		return m.transition(Archive, m.marketCap, ReasonForceArchive, map[string]interface{}{"force_reason": e.Reason})
	}
	return nil
}

// Reason tags attached to transitions.
const (
	ReasonMarketCapChange = "market_cap_change"
	// ReasonMarketCapThreshold marks transitions initiated by the stream's
	// per-price threshold check rather than a scheduled scan.
	ReasonMarketCapThreshold = "market_cap_threshold"
	ReasonScanExhausted      = "scan_exhausted"
	ReasonDurationTimeout    = "duration_timeout"
	ReasonManualOverride     = "manual_override"
	ReasonBuyExecuted        = "buy_executed"
	ReasonForceArchive       = "force_archive"
)

func (m *Machine) onMarketCap(mc float64) *Transition {
	t := m.cfg().Thresholds
	isZero := mc <= 0
	isLow := mc > 0 && mc < t.LowMax
	isMedium := mc >= t.LowMax && mc < t.MediumMax
	isHigh := mc >= t.MediumMax && mc < t.HighMax
	isAim := mc >= t.AimMin && mc <= t.AimMax

	m.marketCap = mc

	switch m.state {
	case New:
		if isZero {
			// Zero-cap archive bypasses the duration floor.
			return m.transition(Archive, mc, ReasonMarketCapChange, nil)
		}
		if !m.hasMinDurationInNew() {
			return nil
		}
		switch {
		case isLow:
			return m.transition(Low, mc, ReasonMarketCapChange, nil)
		case isMedium:
			return m.transition(Medium, mc, ReasonMarketCapChange, nil)
		case isHigh:
			return m.transition(High, mc, ReasonMarketCapChange, nil)
		case isAim:
			return m.transition(Aim, mc, ReasonMarketCapChange, nil)
		}
	case Low:
		switch {
		case isMedium:
			return m.transition(Medium, mc, ReasonMarketCapChange, nil)
		case isHigh:
			return m.transition(High, mc, ReasonMarketCapChange, nil)
		case isAim:
			return m.transition(Aim, mc, ReasonMarketCapChange, nil)
		}
	case Medium:
		switch {
		case isLow:
			return m.transition(Low, mc, ReasonMarketCapChange, nil)
		case isHigh:
			return m.transition(High, mc, ReasonMarketCapChange, nil)
		case isAim:
			return m.transition(Aim, mc, ReasonMarketCapChange, nil)
		}
	case High:
		switch {
		case isMedium:
			return m.transition(Medium, mc, ReasonMarketCapChange, nil)
		case isLow:
			return m.transition(Low, mc, ReasonMarketCapChange, nil)
		case isAim:
			return m.transition(Aim, mc, ReasonMarketCapChange, nil)
		}
	case Aim:
		switch {
		case isHigh:
			return m.transition(High, mc, ReasonMarketCapChange, nil)
		case isMedium:
			return m.transition(Medium, mc, ReasonMarketCapChange, nil)
		case isLow:
			return m.transition(Low, mc, ReasonMarketCapChange, nil)
		}
	case Archive:
		if m.isRecovering(mc) {
			return m.transition(Low, mc, ReasonMarketCapChange, nil)
		}
	}
	// Unmatched update: stay in state, market cap already recorded.
	return nil
}

// exhaust applies the scan/duration exhaustion routing for the current state.
func (m *Machine) exhaust(reason string) *Transition {
	switch m.state {
	case New:
		return m.transition(Archive, m.marketCap, reason, nil)
	case Low:
		return m.transition(Archive, m.marketCap, reason, nil)
	case Medium:
		return m.transition(Low, m.marketCap, reason, nil)
	case High:
		return m.transition(Medium, m.marketCap, reason, nil)
	case Aim:
		if reason == ReasonDurationTimeout {
			// On AIM duration timeout, exit to HIGH only when the cap has
			// actually fallen into the HIGH bracket; otherwise keep
			// receiving updates in AIM.
			t := m.cfg().Thresholds
			if m.marketCap >= t.MediumMax && m.marketCap < t.HighMax {
				return m.transition(High, m.marketCap, reason, nil)
			}
			return nil
		}
		return m.transition(High, m.marketCap, reason, nil)
	case Archive:
		return m.transition(Bin, m.marketCap, reason, nil)
	}
	return nil
}

func (m *Machine) transition(to Category, mc float64, reason string, meta map[string]interface{}) *Transition {
	from := m.state
	if from == to {
		return nil
	}
	m.state = to
	m.enteredAt = m.now()
	m.scanCount = 0
	return &Transition{
		Mint:      m.mint,
		From:      from,
		To:        to,
		MarketCap: mc,
		Reason:    reason,
		Metadata:  meta,
	}
}

func (m *Machine) hasMinDurationInNew() bool {
	return m.now().Sub(m.enteredAt) >= minDurationInNew
}

func (m *Machine) isRecovering(mc float64) bool {
	return mc >= m.cfg().Thresholds.LowMax
}

func (m *Machine) exceededMaxScans() bool {
	sc := m.cfg().ScanFor(string(m.state))
	return m.scanCount >= sc.MaxScans
}
