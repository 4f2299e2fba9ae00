package common

import "math"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType denotes basic order types.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC" // Good Till Cancelled
	TIFIOC TimeInForce = "IOC" // Immediate Or Cancel
	TIFFOK TimeInForce = "FOK" // Fill Or Kill
)

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusPartial  OrderStatus = "PARTIALLY_FILLED"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusExpired  OrderStatus = "EXPIRED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// OrderRequest captures a spot order intent to be sent to an exchange.
type OrderRequest struct {
	Symbol      string
	Side        Side
	Type        OrderType
	Qty         float64 // base quantity; exclusive with QuoteQty
	QuoteQty    float64 // quote quantity for market buys (quoteOrderQty)
	Price       float64 // required for LIMIT
	TimeInForce TimeInForce
	ClientID    string // optional client order id
}

// OrderResult returns the exchange ack, including any immediate fills.
type OrderResult struct {
	ExchangeOrderID string
	ClientID        string
	Status          OrderStatus
	Price           float64
	ExecutedQty     float64
	CumulativeQuote float64
	TransactTime    int64
	Fills           []Fill
}

// AvgFillPrice returns the quantity-weighted average of the fills, falling
// back to cumulative quote / executed qty when no fills are attached.
func (r OrderResult) AvgFillPrice() float64 {
	var qty, quote float64
	for _, f := range r.Fills {
		qty += f.Qty
		quote += f.Qty * f.Price
	}
	if qty > 0 {
		return quote / qty
	}
	if r.ExecutedQty > 0 {
		return r.CumulativeQuote / r.ExecutedQty
	}
	return 0
}

// TotalCommission sums fill commissions.
func (r OrderResult) TotalCommission() float64 {
	var fee float64
	for _, f := range r.Fills {
		fee += f.Commission
	}
	return fee
}

// Fill represents a single trade fill.
type Fill struct {
	TradeID         string
	Price           float64
	Qty             float64
	Commission      float64
	CommissionAsset string
}

// SymbolFilters carries the exchange rounding rules for one symbol.
type SymbolFilters struct {
	Symbol      string
	TickSize    float64
	StepSize    float64
	MinNotional float64
}

// RoundPrice rounds a price to the symbol tick size.
func (f SymbolFilters) RoundPrice(price float64) float64 {
	if f.TickSize <= 0 {
		return price
	}
	return math.Round(price/f.TickSize) * f.TickSize
}

// RoundQtyDown floors a base quantity to the symbol step size. Selling a
// rounded-up quantity would be rejected, so the direction matters.
func (f SymbolFilters) RoundQtyDown(qty float64) float64 {
	if f.StepSize <= 0 {
		return qty
	}
	return math.Floor(qty/f.StepSize) * f.StepSize
}

// Balance is one asset balance from the account endpoint.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}
