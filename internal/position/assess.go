package position

import (
	"time"

	"spottrader/internal/candles"
	"spottrader/internal/oracle"
	"spottrader/pkg/config"
	"spottrader/pkg/db"
)

// Assess reviews one tick against an open position. Pure: the caller
// applies the returned assessment (close order, stop update, watermark).
func Assess(p config.Policy, pos db.Order, last candles.Candle, pred oracle.Prediction, now time.Time) Assessment {
	var out Assessment

	price := last.Close
	open := pos.OpenPrice
	if open <= 0 || price <= 0 {
		return out
	}

	high := pos.HighPrice
	if price > high {
		high = price
		out.NewHigh = high
	}

	// Time-based kill: an old position whose price never cleared the
	// entry is dead capital and keeps risk on the book.
	age := now.Sub(pos.OpenedAt)
	if age >= time.Duration(p.TimeKillMinutes)*time.Minute && high <= open {
		return closeWith(out, ReasonTimeKill)
	}

	// Hard stop.
	if pos.StopPrice > 0 && price <= pos.StopPrice {
		return closeWith(out, ReasonStopLoss)
	}

	// Take-profit pullback: once the position has run past the arming
	// threshold, close on the first meaningful retreat from the high,
	// as long as the position is still in profit.
	armed := high > open*(1+p.ArmTakeProfitPct/100)
	if armed && price > open && price <= high*(1-p.TakeProfitPct/100) {
		return closeWith(out, ReasonTakeProfit)
	}

	// Confident bearish oracle call overrides everything else holding the
	// position open.
	if pred.Down(p.OracleCloseConfidence) {
		return closeWith(out, ReasonOracleVeto)
	}

	// Trend collapse.
	if last.HasTrendScore() && last.TrendScore <= float64(p.TrendExitThreshold) {
		return closeWith(out, ReasonTrendExit)
	}

	// Stop ratchet, monotonic. Break even once the secure margin is
	// reached, then trail the high once take-profit is armed.
	stop := pos.StopPrice
	if price > open*(1+p.SecureMarginPct/100) && stop < open {
		stop = open
	}
	// Trail below the take-profit pullback line so the stop stays the
	// gap backstop and the pullback close fires first.
	if armed {
		if trail := high * (1 - (p.TakeProfitPct+p.TrailingStopPct)/100); trail > stop {
			stop = trail
		}
	}
	if stop > pos.StopPrice {
		out.NewStop = stop
	}

	return out
}

func closeWith(a Assessment, r Reason) Assessment {
	a.Close = true
	a.Reason = r
	return a
}
