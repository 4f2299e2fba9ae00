package position

import (
	"math"
	"testing"
	"time"

	"spottrader/internal/candles"
	"spottrader/internal/oracle"
	"spottrader/pkg/config"
	"spottrader/pkg/db"
)

func openPosition() db.Order {
	return db.Order{
		ID:        "pos-1",
		Symbol:    "BTCUSDT",
		Side:      "BUY",
		OpenPrice: 100,
		HighPrice: 100,
		StopPrice: 98, // default 2% stop
		Quantity:  30,
		OpenedAt:  time.Now().Add(-5 * time.Minute),
	}
}

func tick(close float64) candles.Candle {
	return candles.Candle{
		Symbol:     "BTCUSDT",
		Close:      close,
		TrendScore: 1,
		RSI:        55,
	}
}

func neutral() oracle.Prediction { return oracle.Neutral("BTCUSDT") }

func TestAssessStopLoss(t *testing.T) {
	p := config.DefaultPolicy()
	pos := openPosition()

	t.Run("above stop holds", func(t *testing.T) {
		a := Assess(p, pos, tick(99), neutral(), time.Now())
		if a.Close {
			t.Fatalf("unexpected close: %+v", a)
		}
	})

	t.Run("at stop closes", func(t *testing.T) {
		a := Assess(p, pos, tick(98), neutral(), time.Now())
		if !a.Close || a.Reason != ReasonStopLoss {
			t.Fatalf("got %+v, want stop-loss close", a)
		}
	})
}

func TestAssessTakeProfitPullback(t *testing.T) {
	p := config.DefaultPolicy()
	pos := openPosition()

	// Run up past the 2% arming threshold.
	a := Assess(p, pos, tick(103), neutral(), time.Now())
	if a.Close {
		t.Fatalf("run-up must not close: %+v", a)
	}
	if a.NewHigh != 103 {
		t.Fatalf("high-water mark = %v, want 103", a.NewHigh)
	}
	pos.HighPrice = a.NewHigh
	if a.NewStop > 0 {
		pos.StopPrice = a.NewStop
	}

	// A shallow dip inside the 1% tolerance holds.
	a = Assess(p, pos, tick(102.2), neutral(), time.Now())
	if a.Close {
		t.Fatalf("dip above pullback line must hold: %+v", a)
	}

	// Falling to high*(1-1%) triggers the take-profit close.
	a = Assess(p, pos, tick(101.9), neutral(), time.Now())
	if !a.Close || a.Reason != ReasonTakeProfit {
		t.Fatalf("got %+v, want take-profit close", a)
	}
}

func TestAssessTakeProfitNotArmedBelowThreshold(t *testing.T) {
	p := config.DefaultPolicy()
	pos := openPosition()

	// +1.5% never armed; a retreat is not a take-profit.
	a := Assess(p, pos, tick(101.5), neutral(), time.Now())
	pos.HighPrice = 101.5
	if a.NewStop > 0 {
		pos.StopPrice = a.NewStop
	}

	a = Assess(p, pos, tick(100.4), neutral(), time.Now())
	if a.Close {
		t.Fatalf("unarmed pullback must not close: %+v", a)
	}
}

func TestAssessPullbackBelowOpenIsNotTakeProfit(t *testing.T) {
	p := config.DefaultPolicy()
	pos := openPosition()
	pos.HighPrice = 103 // armed

	a := Assess(p, pos, tick(99), neutral(), time.Now())
	if a.Close {
		t.Fatalf("got %+v, pullback below open must fall through to the stop", a)
	}
}

func TestAssessStopRatchet(t *testing.T) {
	p := config.DefaultPolicy()

	t.Run("break-even at secure margin", func(t *testing.T) {
		pos := openPosition()
		a := Assess(p, pos, tick(100.5), neutral(), time.Now())
		if a.Close {
			t.Fatalf("unexpected close: %+v", a)
		}
		if a.NewStop != 100 {
			t.Errorf("stop = %v, want break-even 100", a.NewStop)
		}
	})

	t.Run("below secure margin no ratchet", func(t *testing.T) {
		pos := openPosition()
		a := Assess(p, pos, tick(100.3), neutral(), time.Now())
		if a.NewStop != 0 {
			t.Errorf("stop = %v, want unchanged", a.NewStop)
		}
	})

	t.Run("trailing stop after arming", func(t *testing.T) {
		pos := openPosition()
		pos.StopPrice = 100
		pos.HighPrice = 104
		a := Assess(p, pos, tick(103.8), neutral(), time.Now())
		want := 104 * (1 - (1.0+0.5)/100) // pullback line plus trail margin
		if math.Abs(a.NewStop-want) > 1e-9 {
			t.Errorf("stop = %v, want trail %v", a.NewStop, want)
		}
	})

	t.Run("never loosens", func(t *testing.T) {
		pos := openPosition()
		pos.StopPrice = 103.5
		pos.HighPrice = 104
		a := Assess(p, pos, tick(103.6), neutral(), time.Now())
		if a.NewStop != 0 {
			t.Errorf("stop = %v, want unchanged (trail below current stop)", a.NewStop)
		}
	})
}

func TestAssessTimeKill(t *testing.T) {
	p := config.DefaultPolicy()
	pos := openPosition()
	pos.OpenedAt = time.Now().Add(-45 * time.Minute)

	t.Run("stagnant old position dies", func(t *testing.T) {
		a := Assess(p, pos, tick(99.5), neutral(), time.Now())
		if !a.Close || a.Reason != ReasonTimeKill {
			t.Fatalf("got %+v, want time-kill", a)
		}
	})

	t.Run("tick above open disarms the kill", func(t *testing.T) {
		a := Assess(p, pos, tick(100.2), neutral(), time.Now())
		if a.Close && a.Reason == ReasonTimeKill {
			t.Fatalf("got %+v, price above open must survive", a)
		}
	})

	t.Run("faded runner survives", func(t *testing.T) {
		// Ran to 105 earlier; drifting near open is not stagnation.
		runner := openPosition()
		runner.OpenedAt = time.Now().Add(-45 * time.Minute)
		runner.HighPrice = 105
		runner.StopPrice = 100
		a := Assess(p, runner, tick(100.3), neutral(), time.Now())
		if a.Close && a.Reason == ReasonTimeKill {
			t.Fatalf("got %+v, high above open must disarm the kill", a)
		}
	})

	t.Run("young position survives", func(t *testing.T) {
		young := openPosition()
		a := Assess(p, young, tick(99.5), neutral(), time.Now())
		if a.Close {
			t.Fatalf("got %+v, want hold", a)
		}
	})
}

func TestAssessOracleVeto(t *testing.T) {
	p := config.DefaultPolicy()
	pos := openPosition()

	down := oracle.Prediction{Prediction: oracle.DirectionDown, Confidence: 0.9}
	a := Assess(p, pos, tick(101), down, time.Now())
	if !a.Close || a.Reason != ReasonOracleVeto {
		t.Fatalf("got %+v, want oracle-veto", a)
	}

	timid := oracle.Prediction{Prediction: oracle.DirectionDown, Confidence: 0.5}
	a = Assess(p, pos, tick(101), timid, time.Now())
	if a.Close {
		t.Fatalf("got %+v, low-confidence veto must not close", a)
	}
}

func TestAssessTrendExit(t *testing.T) {
	p := config.DefaultPolicy()
	pos := openPosition()

	c := tick(101)
	c.TrendScore = -3
	a := Assess(p, pos, c, neutral(), time.Now())
	if !a.Close || a.Reason != ReasonTrendExit {
		t.Fatalf("got %+v, want trend-exit", a)
	}

	c.TrendScore = math.NaN()
	a = Assess(p, pos, c, neutral(), time.Now())
	if a.Close {
		t.Fatalf("got %+v, NaN trend score must not exit", a)
	}
}
