package indicator

import (
	"math"
	"testing"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, got, want, tol)
	}
}

func assertNaN(t *testing.T, label string, got float64) {
	t.Helper()
	if !math.IsNaN(got) {
		t.Errorf("%s: expected NaN, got %.6f", label, got)
	}
}

// Three hand-checked bars used by several tests:
//
//	high  10 12 11
//	low    8  9  7
//	close  9 11  8
//
// TR = 2, max(3,3,0)=3, max(4,0,4)=4
var (
	hs = []float64{10, 12, 11}
	ls = []float64{8, 9, 7}
	cs = []float64{9, 11, 8}
)

func TestEMA_SeededWithFirstValue(t *testing.T) {
	// alpha = 2/(3+1) = 0.5 → 1, 1.5, 2.25
	got := EMA([]float64{1, 2, 3}, 3)
	for i, want := range []float64{1, 1.5, 2.25} {
		assertClose(t, "EMA(3)", got[i], want, 1e-9)
	}
}

func TestEMA_ConstantSeries(t *testing.T) {
	xs := make([]float64, 40)
	for i := range xs {
		xs[i] = 22000
	}
	for _, v := range EMA(xs, 21) {
		assertClose(t, "EMA const", v, 22000, 1e-9)
	}
}

func TestMACD_FlatSeriesHasZeroHistogram(t *testing.T) {
	xs := make([]float64, 60)
	for i := range xs {
		xs[i] = 100
	}
	_, _, hist := MACD(xs, 12, 26, 9)
	for i, v := range hist {
		if math.Abs(v) > 1e-9 {
			t.Fatalf("hist[%d] = %v, want 0", i, v)
		}
	}
}

func TestMACD_RisingSeriesIsPositive(t *testing.T) {
	xs := make([]float64, 60)
	for i := range xs {
		xs[i] = 100 + float64(i)
	}
	macd, _, hist := MACD(xs, 12, 26, 9)
	if macd[59] <= 0 {
		t.Errorf("expected positive MACD on a rising series, got %v", macd[59])
	}
	if hist[10] <= 0 {
		t.Errorf("expected positive histogram early in the trend, got %v", hist[10])
	}
}

func TestTrueRange(t *testing.T) {
	got := TrueRange(hs, ls, cs)
	for i, want := range []float64{2, 3, 4} {
		assertClose(t, "TR", got[i], want, 1e-9)
	}
}

func TestATR_RollingMean(t *testing.T) {
	got := ATR(hs, ls, cs, 2)
	assertNaN(t, "ATR[0]", got[0])
	assertClose(t, "ATR[1]", got[1], 2.5, 1e-9)
	assertClose(t, "ATR[2]", got[2], 3.5, 1e-9)
}

func TestVortex(t *testing.T) {
	// VM+ = |12-8|=4, |11-9|=2 ; VM- = |9-10|=1, |7-12|=5
	// ΣTR over bars 1..2 = 3+4 = 7
	plus, minus := Vortex(hs, ls, cs, 2)
	assertNaN(t, "VI+[1]", plus[1])
	assertClose(t, "VI+[2]", plus[2], 6.0/7.0, 1e-9)
	assertClose(t, "VI-[2]", minus[2], 6.0/7.0, 1e-9)
}

func TestChoppiness(t *testing.T) {
	// bar 1: ΣTR=5, HH-LL=12-8=4 → 100*log2(1.25) = 32.1928
	// bar 2: ΣTR=7, HH-LL=12-7=5 → 100*log2(1.4)  = 48.5427
	got := Choppiness(hs, ls, cs, 2)
	assertNaN(t, "CHOP[0]", got[0])
	assertClose(t, "CHOP[1]", got[1], 32.1928, 1e-3)
	assertClose(t, "CHOP[2]", got[2], 48.5427, 1e-3)
}

func TestChoppiness_FlatWindowIsNaN(t *testing.T) {
	flat := []float64{5, 5, 5}
	got := Choppiness(flat, flat, flat, 2)
	assertNaN(t, "CHOP flat", got[2])
}

func TestRollingSum_PropagatesNaN(t *testing.T) {
	got := RollingSum([]float64{math.NaN(), 1, 2, 3}, 2)
	assertNaN(t, "sum[1]", got[1])
	assertClose(t, "sum[2]", got[2], 3, 1e-9)
	assertClose(t, "sum[3]", got[3], 5, 1e-9)
}
