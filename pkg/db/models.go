package db

import (
	"database/sql"
	"time"
)

// Order is a trade record. A buy order becomes an open position once
// filled; the row is updated in place through the position lifecycle and
// marked closed when the matching sell fills.
type Order struct {
	ID              string
	ExchangeOrderID string
	Symbol          string
	Side            string
	Type            string
	Status          string
	Price           float64 // requested price (limit orders)
	OpenPrice       float64 // weighted average entry fill
	ClosePrice      float64 // weighted average exit fill
	HighPrice       float64 // high-water mark since open
	Quantity        float64
	QuoteQty        float64
	StopPrice       float64
	Fee             float64
	Profit          float64
	CloseReason     string
	IsClosed        bool
	OpenedAt        time.Time
	ClosedAt        sql.NullTime
	UpdatedAt       time.Time
}

// CandleRow is one persisted candle.
type CandleRow struct {
	Symbol    string
	Interval  string
	OpenTime  int64
	CloseTime int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}
