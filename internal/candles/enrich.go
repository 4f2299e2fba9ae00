package candles

import (
	"spottrader/internal/indicators"
)

const (
	rsiPeriod    = 14
	emaPeriod    = 50
	macdFast     = 12
	macdSlow     = 26
	macdSignal   = 9
	stochPeriod  = 14
	stochSmoothK = 3
	stochSmoothD = 3
	atrPeriod    = 14
)

// enrich recomputes indicator values across the whole series. Series are
// capped at maxCandles, so the full recompute stays cheap and avoids the
// drift an incremental update would accumulate on tail rewrites.
func enrich(cs []Candle) {
	if len(cs) == 0 {
		return
	}

	closes := make([]float64, len(cs))
	highs := make([]float64, len(cs))
	lows := make([]float64, len(cs))
	for i, c := range cs {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	rsi := indicators.RSISeries(closes, rsiPeriod)
	ema := indicators.EMASeries(closes, emaPeriod)
	macd, sig, hist := indicators.MACDSeries(closes, macdFast, macdSlow, macdSignal)
	stochK, stochD := indicators.StochSeries(highs, lows, closes, stochPeriod, stochSmoothK, stochSmoothD)
	atr := indicators.ATRSeries(highs, lows, closes, atrPeriod)
	trend := indicators.TrendScoreSeries(closes, ema, macd, sig, hist, rsi, false)

	for i := range cs {
		cs[i].RSI = rsi[i]
		cs[i].EMA = ema[i]
		cs[i].MACD = macd[i]
		cs[i].MACDSignal = sig[i]
		cs[i].MACDHist = hist[i]
		cs[i].StochK = stochK[i]
		cs[i].StochD = stochD[i]
		cs[i].ATR = atr[i]
		cs[i].TrendScore = trend[i]
	}
}

// HistSeries extracts the MACD histogram column, for slope evaluation.
func HistSeries(cs []Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.MACDHist
	}
	return out
}
