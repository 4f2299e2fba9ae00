// Package candles maintains per-symbol candle series and their indicator
// state. The tail of a series is the only candle that may still be open;
// stream ticks mutate it in place until the interval closes.
package candles

import (
	"math"

	market "spottrader/pkg/market/binance"
)

// Candle is one interval of price data plus the indicator values computed
// over the series up to and including it. Indicator fields hold NaN until
// their lookback is satisfied.
type Candle struct {
	Symbol    string
	OpenTime  int64
	CloseTime int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Closed    bool

	RSI        float64
	MACD       float64
	MACDSignal float64
	MACDHist   float64
	EMA        float64
	StochK     float64
	StochD     float64
	ATR        float64
	TrendScore float64

	// PercentChange is (close-open)/open within this candle.
	PercentChange float64
}

// FromKline converts a raw kline into an unenriched candle.
func FromKline(k market.Kline) Candle {
	c := Candle{
		Symbol:    k.Symbol,
		OpenTime:  k.OpenTime,
		CloseTime: k.CloseTime,
		Open:      k.Open,
		High:      k.High,
		Low:       k.Low,
		Close:     k.Close,
		Volume:    k.Volume,
		Closed:    k.Closed,

		RSI:        math.NaN(),
		MACD:       math.NaN(),
		MACDSignal: math.NaN(),
		MACDHist:   math.NaN(),
		EMA:        math.NaN(),
		StochK:     math.NaN(),
		StochD:     math.NaN(),
		ATR:        math.NaN(),
		TrendScore: math.NaN(),
	}
	if k.Open != 0 {
		c.PercentChange = (k.Close - k.Open) / k.Open * 100
	}
	return c
}

// Green reports whether the candle closed above its open.
func (c Candle) Green() bool {
	return c.Close > c.Open
}

// HasTrendScore reports whether the composite score is computed yet.
func (c Candle) HasTrendScore() bool {
	return !math.IsNaN(c.TrendScore)
}
