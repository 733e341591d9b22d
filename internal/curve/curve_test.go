package curve

import (
	"math"
	"testing"
)

func TestProgressClampsBelowInitial(t *testing.T) {
	if got := StateAtMarketCap(InitialMarketCap).Progress; got != 0 {
		t.Errorf("progress at initial mc = %v, want 0", got)
	}
	if got := StateAtMarketCap(1_000).Progress; got != 0 {
		t.Errorf("progress below initial mc = %v, want 0", got)
	}
	if got := TokensSoldAtMarketCap(2_500); got != 0 {
		t.Errorf("tokens sold below initial mc = %v, want 0", got)
	}
}

func TestGraduationState(t *testing.T) {
	st := StateAtMarketCap(GraduationMarketCap)
	if !st.IsGraduated {
		t.Error("state at graduation mc should be graduated")
	}
	if st.Progress != 1 {
		t.Errorf("progress at graduation = %v, want 1", st.Progress)
	}
	if st.TokensSold != CurveSupply {
		t.Errorf("tokens sold at graduation = %v, want %v", st.TokensSold, CurveSupply)
	}
	if st.RaisedUSD != GraduationRaiseUSD {
		t.Errorf("raised at graduation = %v, want %v", st.RaisedUSD, GraduationRaiseUSD)
	}
	if st.DistanceToGraduation != 0 {
		t.Errorf("distance to graduation = %v, want 0", st.DistanceToGraduation)
	}

	above := StateAtMarketCap(GraduationMarketCap + 10_000)
	if !above.IsGraduated || above.Progress != 1 {
		t.Error("state above graduation mc should clamp to graduated")
	}
}

func TestMidCurveProportions(t *testing.T) {
	// Halfway between initial and graduation.
	mid := (InitialMarketCap + GraduationMarketCap) / 2
	st := StateAtMarketCap(mid)
	if math.Abs(st.Progress-0.5) > 1e-9 {
		t.Errorf("midpoint progress = %v, want 0.5", st.Progress)
	}
	if math.Abs(st.RaisedUSD-GraduationRaiseUSD/2) > 1e-6 {
		t.Errorf("midpoint raised = %v, want %v", st.RaisedUSD, GraduationRaiseUSD/2)
	}
	if st.IsGraduated {
		t.Error("midpoint should not be graduated")
	}
	if math.Abs(st.DistanceToGraduation-(GraduationMarketCap-mid)) > 1e-9 {
		t.Errorf("distance to graduation = %v", st.DistanceToGraduation)
	}
}

func TestPriceModel(t *testing.T) {
	p := PriceAtMarketCap(0)
	want := PriceCoefficientA / 10_000_000
	if math.Abs(p.USD-want) > 1e-12 {
		t.Errorf("price at mc=0: %v, want %v", p.USD, want)
	}

	// Price must be strictly increasing in market cap.
	lo := PriceAtMarketCap(10_000)
	hi := PriceAtMarketCap(60_000)
	if hi.USD <= lo.USD {
		t.Errorf("price not increasing: %v then %v", lo.USD, hi.USD)
	}

	// Negative caps clamp to the zero-cap price.
	if got := PriceAtMarketCap(-5).USD; got != p.USD {
		t.Errorf("negative mc price = %v, want %v", got, p.USD)
	}
}

func TestSolPriceSetter(t *testing.T) {
	defer SetSolPrice(DefaultSolPriceUSD)

	SetSolPrice(200)
	if SolPrice() != 200 {
		t.Errorf("sol price = %v, want 200", SolPrice())
	}
	p := PriceAtMarketCap(10_000)
	if math.Abs(p.SOL-p.USD/200) > 1e-15 {
		t.Errorf("sol price conversion: %v vs %v", p.SOL, p.USD/200)
	}

	// Bad feed samples are ignored.
	SetSolPrice(0)
	SetSolPrice(-3)
	if SolPrice() != 200 {
		t.Errorf("sol price after invalid sets = %v, want 200", SolPrice())
	}
}
