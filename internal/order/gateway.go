// Package order executes entries and exits against the exchange, persists
// every order, and reconciles the ones the bounded status polling left
// behind.
package order

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"spottrader/internal/events"
	"spottrader/internal/position"
	"spottrader/internal/state"
	"spottrader/pkg/config"
	"spottrader/pkg/db"
	exchange "spottrader/pkg/exchanges/common"
)

// maxStatusPolls bounds the synchronous wait for a fill; anything still
// pending afterwards belongs to the reconciler.
const maxStatusPolls = 5

// Gateway places orders and tracks them through to position state.
type Gateway struct {
	Exchange exchange.Gateway
	Queries  *db.Queries
	State    *state.Manager
	Bus      *events.Bus
	Policy   config.Policy

	// PollDelay is the pause between status polls. Defaults to 50ms.
	PollDelay time.Duration
}

func NewGateway(ex exchange.Gateway, queries *db.Queries, st *state.Manager, bus *events.Bus, policy config.Policy) *Gateway {
	return &Gateway{
		Exchange:  ex,
		Queries:   queries,
		State:     st,
		Bus:       bus,
		Policy:    policy,
		PollDelay: 50 * time.Millisecond,
	}
}

// OpenLong buys into a symbol with the configured quote budget. The
// symbol hold is acquired here atomically; every non-entry outcome
// releases it.
func (g *Gateway) OpenLong(ctx context.Context, symbol string, refPrice float64) error {
	if !g.State.Hold(symbol) {
		return nil
	}

	ok, err := g.hasQuoteBalance(ctx, symbol)
	if err != nil {
		g.State.Release(symbol)
		return err
	}
	if !ok {
		log.Printf("order: %s skipped, insufficient %s balance", symbol, quoteAsset(symbol))
		g.State.Release(symbol)
		return nil
	}

	filters, err := g.Exchange.GetSymbolFilters(ctx, symbol)
	if err != nil {
		g.State.Release(symbol)
		return fmt.Errorf("symbol filters %s: %w", symbol, err)
	}

	req := exchange.OrderRequest{
		Symbol:   symbol,
		Side:     exchange.SideBuy,
		Type:     exchange.OrderTypeMarket,
		QuoteQty: g.Policy.QuoteOrderQty,
		ClientID: uuid.NewString(),
	}
	if g.Policy.UseLimitOrders && refPrice > 0 {
		req.Type = exchange.OrderTypeLimit
		req.TimeInForce = exchange.TIFGTC
		req.Price = filters.RoundPrice(refPrice * (1 + g.Policy.OrderOffsetPct/100))
		req.Qty = filters.RoundQtyDown(g.Policy.QuoteOrderQty / req.Price)
		req.QuoteQty = 0
	}

	row := db.Order{
		ID:       req.ClientID,
		Symbol:   symbol,
		Side:     string(exchange.SideBuy),
		Type:     string(req.Type),
		Status:   string(exchange.StatusNew),
		Price:    req.Price,
		QuoteQty: g.Policy.QuoteOrderQty,
		OpenedAt: time.Now(),
	}
	if err := g.Queries.InsertOrder(ctx, row); err != nil {
		g.State.Release(symbol)
		return err
	}
	g.publish(events.EventNewPendingOrder, row)

	res, err := g.Exchange.SubmitOrder(ctx, req)
	if err != nil {
		_ = g.Queries.DeleteOrder(ctx, row.ID)
		g.State.Release(symbol)
		return fmt.Errorf("submit buy %s: %w", symbol, err)
	}
	if res.ExchangeOrderID != "" {
		row.ExchangeOrderID = res.ExchangeOrderID
		_ = g.Queries.BindExchangeOrder(ctx, row.ID, res.ExchangeOrderID, string(res.Status))
	}

	res = g.pollStatus(ctx, symbol, res)

	switch res.Status {
	case exchange.StatusFilled:
		return g.promoteFill(ctx, row, res)

	case exchange.StatusExpired, exchange.StatusRejected, exchange.StatusCanceled:
		log.Printf("order: buy %s %s, releasing hold", symbol, res.Status)
		_ = g.Queries.DeleteOrder(ctx, row.ID)
		g.State.Release(symbol)
		return nil

	default:
		// Still pending after the poll budget. The row stays; the
		// reconciler sweep picks it up.
		log.Printf("order: buy %s still %s after %d polls, deferring to reconciler", symbol, res.Status, maxStatusPolls)
		_ = g.Queries.UpdateOrderStatus(ctx, row.ID, string(res.Status))
		return nil
	}
}

// CloseLong sells out of a position. Implements position.Closer.
func (g *Gateway) CloseLong(ctx context.Context, pos db.Order, reason position.Reason) error {
	filters, err := g.Exchange.GetSymbolFilters(ctx, pos.Symbol)
	if err != nil {
		return fmt.Errorf("symbol filters %s: %w", pos.Symbol, err)
	}

	qty := filters.RoundQtyDown(pos.Quantity)
	if qty <= 0 {
		return fmt.Errorf("close %s: quantity %v rounds to zero", pos.Symbol, pos.Quantity)
	}

	req := exchange.OrderRequest{
		Symbol:   pos.Symbol,
		Side:     exchange.SideSell,
		Type:     exchange.OrderTypeMarket,
		Qty:      qty,
		ClientID: uuid.NewString(),
	}

	res, err := g.Exchange.SubmitOrder(ctx, req)
	if err != nil {
		return fmt.Errorf("submit sell %s: %w", pos.Symbol, err)
	}

	res = g.pollStatus(ctx, pos.Symbol, res)
	if res.Status != exchange.StatusFilled {
		return fmt.Errorf("sell %s not filled, status %s", pos.Symbol, res.Status)
	}

	closePrice := res.AvgFillPrice()
	profit := (closePrice - pos.OpenPrice) * res.ExecutedQty
	fee := res.TotalCommission()

	if err := g.Queries.CloseOrder(ctx, pos.ID, closePrice, profit, fee, string(reason)); err != nil {
		log.Printf("order: persist close %s: %v", pos.ID, err)
	}
	g.State.Untrack(pos.ID)
	g.State.Release(pos.Symbol)

	log.Printf("order: closed %s %s at %.8g, profit %.4f (%s)", pos.Symbol, pos.ID, closePrice, profit, reason)
	g.publish(events.EventSellOrderFilled, map[string]any{
		"id": pos.ID, "symbol": pos.Symbol, "closePrice": closePrice,
		"profit": profit, "reason": string(reason),
	})
	return nil
}

// pollStatus refreshes a non-terminal order up to maxStatusPolls times.
func (g *Gateway) pollStatus(ctx context.Context, symbol string, res exchange.OrderResult) exchange.OrderResult {
	for i := 0; i < maxStatusPolls && !res.Status.Terminal(); i++ {
		select {
		case <-ctx.Done():
			return res
		case <-time.After(g.PollDelay):
		}

		refreshed, err := g.Exchange.GetOrder(ctx, symbol, res.ExchangeOrderID)
		if err != nil {
			log.Printf("order: poll %s/%s: %v", symbol, res.ExchangeOrderID, err)
			continue
		}
		// The ack fills are richer than the poll response; keep them
		// unless the poll carries its own.
		if len(refreshed.Fills) == 0 {
			refreshed.Fills = res.Fills
		}
		res = refreshed
	}
	return res
}

// promoteFill turns a filled buy into a tracked open position.
func (g *Gateway) promoteFill(ctx context.Context, row db.Order, res exchange.OrderResult) error {
	openPrice := res.AvgFillPrice()
	fee := res.TotalCommission()

	row.Status = string(exchange.StatusFilled)
	row.OpenPrice = openPrice
	row.HighPrice = openPrice
	row.Quantity = res.ExecutedQty
	row.Fee = fee
	row.StopPrice = openPrice * (1 - g.Policy.StopLossPct/100)

	if err := g.Queries.UpdateOrderFill(ctx, row.ID, row.Status, openPrice, row.Quantity, fee); err != nil {
		return err
	}
	if err := g.Queries.RaiseStopPrice(ctx, row.ID, row.StopPrice); err != nil {
		return err
	}

	g.State.Track(row)
	log.Printf("order: opened %s %s qty %.8g at %.8g, stop %.8g", row.Symbol, row.ID, row.Quantity, openPrice, row.StopPrice)
	g.publish(events.EventNewOrder, row)
	return nil
}

func (g *Gateway) hasQuoteBalance(ctx context.Context, symbol string) (bool, error) {
	balances, err := g.Exchange.GetBalances(ctx)
	if err != nil {
		return false, fmt.Errorf("balances: %w", err)
	}
	quote := quoteAsset(symbol)
	for _, b := range balances {
		if b.Asset == quote {
			return b.Free >= g.Policy.QuoteOrderQty, nil
		}
	}
	return false, nil
}

func (g *Gateway) publish(e events.Event, payload any) {
	if g.Bus != nil {
		g.Bus.Publish(e, payload)
	}
}

// quoteAsset extracts the quote currency from a concatenated pair symbol.
func quoteAsset(symbol string) string {
	for _, q := range []string{"USDT", "USDC", "FDUSD", "BUSD", "TUSD", "BTC", "ETH", "BNB"} {
		if strings.HasSuffix(symbol, q) {
			return q
		}
	}
	return "USDT"
}
