package indicator

import (
	"math"
	"time"

	"niftybot/internal/model"
)

// Periods is the indicator parameterisation attached to every snapshot.
type Periods struct {
	EMA        int `json:"ema" mapstructure:"ema"`
	Vortex     int `json:"vortex" mapstructure:"vortex"`
	ATR        int `json:"atr" mapstructure:"atr"`
	Chop       int `json:"chop" mapstructure:"chop"`
	MACDFast   int `json:"macd_fast" mapstructure:"macd_fast"`
	MACDSlow   int `json:"macd_slow" mapstructure:"macd_slow"`
	MACDSignal int `json:"macd_signal" mapstructure:"macd_signal"`
}

// DefaultNiftyPeriods is EMA21 / VI21 / ATR14 / CHOP14 / MACD(12,26,9).
func DefaultNiftyPeriods() Periods {
	return Periods{EMA: 21, Vortex: 21, ATR: 14, Chop: 14, MACDFast: 12, MACDSlow: 26, MACDSignal: 9}
}

// DefaultOptionPeriods uses the short ATR(7) the stop-loss sizing is tuned for.
func DefaultOptionPeriods() Periods {
	p := DefaultNiftyPeriods()
	p.ATR = 7
	return p
}

// Row is one bar plus every indicator value computed at that bar.
// Values that are not yet defined are NaN.
type Row struct {
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`

	EMA        float64 `json:"ema"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`
	VIPlus     float64 `json:"vi_plus"`
	VIMinus    float64 `json:"vi_minus"`
	ATR        float64 `json:"atr"`
	Chop       float64 `json:"choppiness"`
}

// Snapshot is the latest computed row for one instrument.
type Snapshot struct {
	Tag     model.Tag `json:"tag"`
	Periods Periods   `json:"periods"`
	Row
}

// Finite reports whether every value the trading rules read is defined.
func (r Row) Finite() bool {
	for _, v := range [...]float64{r.Close, r.EMA, r.MACDHist, r.VIPlus, r.VIMinus} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Compute derives indicator rows for candles ordered oldest → newest.
func Compute(candles []model.Candle, p Periods) []Row {
	n := len(candles)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	for i, c := range candles {
		high[i], low[i], closes[i] = c.High, c.Low, c.Close
	}

	ema := EMA(closes, p.EMA)
	macd, sig, hist := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	viPlus, viMinus := Vortex(high, low, closes, p.Vortex)
	atr := ATR(high, low, closes, p.ATR)
	chop := Choppiness(high, low, closes, p.Chop)

	rows := make([]Row, n)
	for i, c := range candles {
		rows[i] = Row{
			TS: c.TS, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume,
			EMA:        ema[i],
			MACD:       macd[i],
			MACDSignal: sig[i],
			MACDHist:   hist[i],
			VIPlus:     viPlus[i],
			VIMinus:    viMinus[i],
			ATR:        atr[i],
			Chop:       chop[i],
		}
	}
	return rows
}
