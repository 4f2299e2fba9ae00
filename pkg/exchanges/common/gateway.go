package common

import "context"

// Gateway abstracts a trading venue.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	GetOrder(ctx context.Context, symbol, exchangeOrderID string) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
	GetBalances(ctx context.Context) ([]Balance, error)
	GetSymbolFilters(ctx context.Context, symbol string) (SymbolFilters, error)
}
