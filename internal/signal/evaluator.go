// Package signal decides whether a symbol qualifies for a new long
// position. The evaluation is pure: it reads its inputs and returns a
// decision, leaving holds, orders and persistence to the caller.
package signal

import (
	"math"

	"spottrader/internal/candles"
	"spottrader/internal/indicators"
	"spottrader/internal/oracle"
	"spottrader/pkg/config"
	market "spottrader/pkg/market/binance"
)

// Check names, in evaluation order. The first failed check short-circuits
// and is reported in the decision for logging.
const (
	CheckCapacity   = "capacity"
	CheckSnapshot   = "snapshot"
	CheckBreadth    = "breadth"
	CheckMomentum   = "momentum"
	CheckTrend      = "trend"
	CheckOscillator = "oscillator"
	CheckOracle     = "oracle"
)

// Input carries everything one entry evaluation needs.
type Input struct {
	Series        []candles.Candle
	Stat          market.TickerStat
	NbrUp         int
	NbrDown       int
	Prediction    oracle.Prediction
	Held          bool
	OpenPositions int
}

// Decision is the evaluation outcome.
type Decision struct {
	Enter       bool
	FailedCheck string // empty when Enter is true
}

// Evaluator applies the configured entry policy.
type Evaluator struct {
	policy config.Policy
	lag    int
}

// NewEvaluator builds an evaluator; the histogram-slope lag derives from
// the candle interval.
func NewEvaluator(policy config.Policy) *Evaluator {
	return &Evaluator{
		policy: policy,
		lag:    indicators.LagForInterval(policy.Interval),
	}
}

// ShouldEnterLong runs the ordered entry checks and stops at the first
// failure.
func (e *Evaluator) ShouldEnterLong(in Input) Decision {
	p := e.policy

	// 1. Capacity: symbol free and room for another position.
	if in.Held || in.OpenPositions >= p.MaxOpenPositions {
		return fail(CheckCapacity)
	}

	// 2. Snapshot gate: a symbol already in the red over the ticker
	// window is a falling knife, whatever its candles look like.
	if in.Stat.PriceChangePct < 0 {
		return fail(CheckSnapshot)
	}

	// 3. Market breadth: enough of the market must be rising, unless the
	// symbol's own spread sits below the crash override.
	if in.NbrUp < p.MinConsecutiveUpSymbols && in.Stat.PriceChangePct > p.MaxSpread {
		return fail(CheckBreadth)
	}

	// 4. Candle momentum: the forming candle is moving and the previous
	// closed candles were green.
	if !e.hasMomentum(in.Series) {
		return fail(CheckMomentum)
	}

	last := in.Series[len(in.Series)-1]

	// 5. Trend score at or above the entry threshold.
	if !last.HasTrendScore() || last.TrendScore < float64(p.MinTrendScore) {
		return fail(CheckTrend)
	}

	// 6. Oscillators: RSI in band, histogram momentum positive.
	slope := indicators.HistSlope(candles.HistSeries(in.Series), e.lag)
	if math.IsNaN(last.RSI) || last.RSI < p.MinRSI || last.RSI > p.MaxRSI ||
		math.IsNaN(slope) || slope <= 0 {
		return fail(CheckOscillator)
	}

	// 7. Oracle gate: a bullish call above the floor, and no confident
	// bearish veto.
	if !in.Prediction.Up(p.MinAIScore) || in.Prediction.Down(p.AIVetoConfidence) {
		return fail(CheckOracle)
	}

	return Decision{Enter: true}
}

func (e *Evaluator) hasMomentum(series []candles.Candle) bool {
	need := e.policy.PrevCandleCount + 1
	if len(series) < need {
		return false
	}

	last := series[len(series)-1]
	if last.PercentChange < e.policy.MinPercentUp {
		return false
	}

	// The PrevCandleCount candles before the forming one must be green
	// with strictly rising closes.
	start := len(series) - 1 - e.policy.PrevCandleCount
	for i := start; i < len(series)-1; i++ {
		if !series[i].Green() {
			return false
		}
		if i > start && series[i].Close <= series[i-1].Close {
			return false
		}
	}
	return true
}

func fail(check string) Decision {
	return Decision{Enter: false, FailedCheck: check}
}
