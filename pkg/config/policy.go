package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds the trading thresholds and sizing parameters. Values load
// from a YAML file and can be overridden per-key through the environment.
type Policy struct {
	Interval        string  `yaml:"interval" json:"interval"`
	TickerWindow    string  `yaml:"ticker_window" json:"ticker_window"`
	MaxCandles      int     `yaml:"max_candles" json:"max_candles"`
	PrevCandleCount int     `yaml:"prev_candle_count" json:"prev_candle_count"`

	MaxOpenPositions int     `yaml:"max_open_positions" json:"max_open_positions"`
	QuoteOrderQty    float64 `yaml:"quote_order_qty" json:"quote_order_qty"`
	OrderOffsetPct   float64 `yaml:"order_offset_pct" json:"order_offset_pct"`
	UseLimitOrders   bool    `yaml:"use_limit_orders" json:"use_limit_orders"`

	StopLossPct      float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	TakeProfitPct    float64 `yaml:"take_profit_pct" json:"take_profit_pct"`
	ArmTakeProfitPct float64 `yaml:"arm_take_profit_pct" json:"arm_take_profit_pct"`
	TrailingStopPct  float64 `yaml:"trailing_stop_pct" json:"trailing_stop_pct"`
	SecureMarginPct  float64 `yaml:"secure_margin_pct" json:"secure_margin_pct"`
	TimeKillMinutes  int     `yaml:"time_kill_minutes" json:"time_kill_minutes"`

	MinConsecutiveUpSymbols int     `yaml:"min_consecutive_up_symbols" json:"min_consecutive_up_symbols"`
	MaxSpread               float64 `yaml:"max_spread" json:"max_spread"`
	MinPercentUp            float64 `yaml:"min_percent_up" json:"min_percent_up"`
	MinRSI                  float64 `yaml:"min_rsi" json:"min_rsi"`
	MaxRSI                  float64 `yaml:"max_rsi" json:"max_rsi"`
	MinTrendScore           int     `yaml:"min_trend_score" json:"min_trend_score"`
	TrendExitThreshold      int     `yaml:"trend_exit_threshold" json:"trend_exit_threshold"`

	MinAIScore            float64 `yaml:"min_ai_score" json:"min_ai_score"`
	AIVetoConfidence      float64 `yaml:"ai_veto_confidence" json:"ai_veto_confidence"`
	OracleCloseConfidence float64 `yaml:"oracle_close_confidence" json:"oracle_close_confidence"`

	WatchdogStaleSeconds   int `yaml:"watchdog_stale_seconds" json:"watchdog_stale_seconds"`
	ReconcileEverySeconds  int `yaml:"reconcile_every_seconds" json:"reconcile_every_seconds"`
	PendingOrderMaxAgeSecs int `yaml:"pending_order_max_age_seconds" json:"pending_order_max_age_seconds"`
}

// DefaultPolicy returns the baseline policy used when no file is present.
func DefaultPolicy() Policy {
	return Policy{
		Interval:        "1h",
		TickerWindow:    "4h",
		MaxCandles:      100,
		PrevCandleCount: 2,

		MaxOpenPositions: 3,
		QuoteOrderQty:    3000,
		OrderOffsetPct:   0.05,
		UseLimitOrders:   false,

		StopLossPct:      2.0,
		TakeProfitPct:    1.0,
		ArmTakeProfitPct: 2.0,
		TrailingStopPct:  0.5,
		SecureMarginPct:  0.4,
		TimeKillMinutes:  30,

		MinConsecutiveUpSymbols: 30,
		MaxSpread:               -5,
		MinPercentUp:            0.2,
		MinRSI:                  40,
		MaxRSI:                  82,
		MinTrendScore:           3,
		TrendExitThreshold:      -3,

		MinAIScore:            0.70,
		AIVetoConfidence:      0.70,
		OracleCloseConfidence: 0.85,

		WatchdogStaleSeconds:   60,
		ReconcileEverySeconds:  30,
		PendingOrderMaxAgeSecs: 50,
	}
}

// LoadPolicy reads the policy YAML at path, falling back to defaults when
// the file does not exist, then applies environment overrides.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &p); err != nil {
			return p, fmt.Errorf("parse policy %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return p, fmt.Errorf("read policy %s: %w", path, err)
	}

	applyPolicyEnv(&p)

	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func applyPolicyEnv(p *Policy) {
	p.Interval = getEnv("TRADE_INTERVAL", p.Interval)
	p.TickerWindow = getEnv("TICKER_WINDOW", p.TickerWindow)
	p.MaxCandles = getEnvInt("MAX_CANDLES", p.MaxCandles)
	p.MaxOpenPositions = getEnvInt("MAX_OPEN_POSITIONS", p.MaxOpenPositions)
	p.QuoteOrderQty = getEnvFloat("QUOTE_ORDER_QTY", p.QuoteOrderQty)
	p.StopLossPct = getEnvFloat("STOP_LOSS_PCT", p.StopLossPct)
	p.TakeProfitPct = getEnvFloat("TAKE_PROFIT_PCT", p.TakeProfitPct)
	p.MinAIScore = getEnvFloat("MIN_AI_SCORE", p.MinAIScore)
	p.TimeKillMinutes = getEnvInt("TIME_KILL_MINUTES", p.TimeKillMinutes)
}

// Validate rejects values that would make the engine misbehave silently.
func (p Policy) Validate() error {
	if p.MaxCandles < 40 {
		return fmt.Errorf("max_candles %d too small for indicator lookback", p.MaxCandles)
	}
	if p.Interval == "" {
		return fmt.Errorf("interval is required")
	}
	if p.StopLossPct <= 0 {
		return fmt.Errorf("stop_loss_pct must be positive, got %v", p.StopLossPct)
	}
	if p.MinRSI >= p.MaxRSI {
		return fmt.Errorf("min_rsi %v must be below max_rsi %v", p.MinRSI, p.MaxRSI)
	}
	if p.QuoteOrderQty <= 0 {
		return fmt.Errorf("quote_order_qty must be positive, got %v", p.QuoteOrderQty)
	}
	return nil
}

// WatchdogStaleAfter returns the staleness window as a duration.
func (p Policy) WatchdogStaleAfter() time.Duration {
	return time.Duration(p.WatchdogStaleSeconds) * time.Second
}

// ReconcileEvery returns the reconciler sweep period.
func (p Policy) ReconcileEvery() time.Duration {
	return time.Duration(p.ReconcileEverySeconds) * time.Second
}

// PendingOrderMaxAge returns how long an unfilled order may stay pending.
func (p Policy) PendingOrderMaxAge() time.Duration {
	return time.Duration(p.PendingOrderMaxAgeSecs) * time.Second
}
