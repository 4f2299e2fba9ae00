// Package position manages the lifecycle of an open long position from
// entry fill to close. One implementation, parameterized by policy; every
// close path funnels through the same assessment.
package position

// Status tracks where a position is in its lifecycle.
type Status string

const (
	StatusMonitoring Status = "monitoring"
	StatusClosing    Status = "closing"
	StatusClosed     Status = "closed"
)

// Reason explains why a position was closed.
type Reason string

const (
	ReasonStopLoss   Reason = "stop-loss"
	ReasonTakeProfit Reason = "take-profit"
	ReasonTimeKill   Reason = "time-kill"
	ReasonOracleVeto Reason = "oracle-veto"
	ReasonTrendExit  Reason = "trend-exit"
	ReasonManual     Reason = "manual"
)

// Assessment is the outcome of reviewing one tick against an open
// position. At most one close fires; stop updates apply even on ticks
// that do not close.
type Assessment struct {
	Close  bool
	Reason Reason

	// NewHigh is the updated high-water mark, 0 when unchanged.
	NewHigh float64
	// NewStop is the ratcheted stop price, 0 when unchanged. Never lower
	// than the current stop.
	NewStop float64
}
