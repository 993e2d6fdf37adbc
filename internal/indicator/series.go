// Package indicator computes the strategy's technical indicators over a
// rolling candle window.
//
// Every series function works on the full history and returns a slice the
// same length as its input, with math.NaN() where the value is not yet
// defined. Results match pandas conventions: EMA is ewm(span, adjust=False)
// and rolling windows containing a NaN yield NaN.
package indicator

import "math"

// EMA returns the exponential moving average seeded with the first value.
// alpha = 2/(period+1). NaN inputs before the first finite value stay NaN.
func EMA(xs []float64, period int) []float64 {
	out := make([]float64, len(xs))
	if period <= 0 {
		fillNaN(out)
		return out
	}
	alpha := 2.0 / float64(period+1)
	seeded := false
	var prev float64
	for i, x := range xs {
		switch {
		case math.IsNaN(x) && !seeded:
			out[i] = math.NaN()
			continue
		case math.IsNaN(x):
			// pandas carries the last value forward over gaps
			out[i] = prev
			continue
		case !seeded:
			prev = x
			seeded = true
		default:
			prev = alpha*x + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

// MACD returns the MACD line, its signal line and the histogram.
func MACD(closes []float64, fast, slow, signal int) (macd, sig, hist []float64) {
	ef := EMA(closes, fast)
	es := EMA(closes, slow)
	macd = make([]float64, len(closes))
	for i := range closes {
		macd[i] = ef[i] - es[i]
	}
	sig = EMA(macd, signal)
	hist = make([]float64, len(closes))
	for i := range closes {
		hist[i] = macd[i] - sig[i]
	}
	return macd, sig, hist
}

// TrueRange returns max(h-l, |h-prevClose|, |l-prevClose|).
// The first bar has no previous close and uses h-l.
func TrueRange(high, low, close []float64) []float64 {
	out := make([]float64, len(high))
	for i := range high {
		tr := high[i] - low[i]
		if i > 0 {
			tr = math.Max(tr, math.Abs(high[i]-close[i-1]))
			tr = math.Max(tr, math.Abs(low[i]-close[i-1]))
		}
		out[i] = tr
	}
	return out
}

// RollingSum returns the sum over a trailing window of n values.
func RollingSum(xs []float64, n int) []float64 {
	out := make([]float64, len(xs))
	fillNaN(out)
	if n <= 0 {
		return out
	}
	for i := n - 1; i < len(xs); i++ {
		sum := 0.0
		for _, v := range xs[i-n+1 : i+1] {
			sum += v
		}
		out[i] = sum // NaN propagates through the addition
	}
	return out
}

// RollingMean returns the mean over a trailing window of n values.
func RollingMean(xs []float64, n int) []float64 {
	out := RollingSum(xs, n)
	for i := range out {
		out[i] /= float64(n)
	}
	return out
}

// ATR returns the simple rolling mean of true range over period bars.
func ATR(high, low, close []float64, period int) []float64 {
	return RollingMean(TrueRange(high, low, close), period)
}

// Vortex returns VI+ and VI- over period bars.
//
//	VI+ = Σ|high - prevLow| / ΣTR
//	VI- = Σ|low - prevHigh| / ΣTR
func Vortex(high, low, close []float64, period int) (plus, minus []float64) {
	n := len(high)
	vmPlus := make([]float64, n)
	vmMinus := make([]float64, n)
	for i := 0; i < n; i++ {
		if i == 0 {
			vmPlus[i], vmMinus[i] = math.NaN(), math.NaN()
			continue
		}
		vmPlus[i] = math.Abs(high[i] - low[i-1])
		vmMinus[i] = math.Abs(low[i] - high[i-1])
	}
	trSum := RollingSum(TrueRange(high, low, close), period)
	sp := RollingSum(vmPlus, period)
	sm := RollingSum(vmMinus, period)

	plus = make([]float64, n)
	minus = make([]float64, n)
	for i := 0; i < n; i++ {
		plus[i] = safeDiv(sp[i], trSum[i])
		minus[i] = safeDiv(sm[i], trSum[i])
	}
	return plus, minus
}

// Choppiness returns the Choppiness Index:
//
//	100 * log10(ΣTR / (HH - LL)) / log10(period)
//
// A flat window (HH == LL) is undefined and yields NaN.
func Choppiness(high, low, close []float64, period int) []float64 {
	n := len(high)
	out := make([]float64, n)
	fillNaN(out)
	if period <= 1 {
		return out
	}
	trSum := RollingSum(TrueRange(high, low, close), period)
	denom := math.Log10(float64(period))
	for i := period - 1; i < n; i++ {
		hh, ll := high[i], low[i]
		for j := i - period + 1; j < i; j++ {
			hh = math.Max(hh, high[j])
			ll = math.Min(ll, low[j])
		}
		rng := hh - ll
		if rng <= 0 || math.IsNaN(trSum[i]) {
			continue
		}
		out[i] = 100 * math.Log10(trSum[i]/rng) / denom
	}
	return out
}

func safeDiv(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) || b == 0 {
		return math.NaN()
	}
	return a / b
}

func fillNaN(xs []float64) {
	for i := range xs {
		xs[i] = math.NaN()
	}
}
