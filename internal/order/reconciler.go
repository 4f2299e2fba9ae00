package order

import (
	"context"
	"log"
	"time"

	"spottrader/internal/events"
	"spottrader/internal/state"
	"spottrader/pkg/config"
	"spottrader/pkg/db"
	exchange "spottrader/pkg/exchanges/common"
)

// Reconciler sweeps orders the bounded fill polling left pending. Orders
// past the pending age are cancelled; whatever executed in the meantime is
// promoted into a position, and dead rows are cleaned up with their holds
// released.
type Reconciler struct {
	Exchange exchange.Gateway
	Queries  *db.Queries
	State    *state.Manager
	Bus      *events.Bus
	Policy   config.Policy
}

// Run sweeps on the configured period until the context ends.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Policy.ReconcileEvery())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep examines every non-closed pending order once.
func (r *Reconciler) Sweep(ctx context.Context) {
	rows, err := r.Queries.ListOpenOrders(ctx)
	if err != nil {
		log.Printf("reconciler: list orders: %v", err)
		return
	}

	maxAge := r.Policy.PendingOrderMaxAge()
	for _, row := range rows {
		status := exchange.OrderStatus(row.Status)
		if status.Terminal() {
			continue
		}
		if time.Since(row.OpenedAt) < maxAge {
			continue
		}
		r.reconcile(ctx, row)
	}
}

func (r *Reconciler) reconcile(ctx context.Context, row db.Order) {
	res, err := r.Exchange.GetOrder(ctx, row.Symbol, row.ExchangeOrderID)
	if err != nil {
		log.Printf("reconciler: fetch %s/%s: %v", row.Symbol, row.ExchangeOrderID, err)
		return
	}

	// Still working after the age limit: take it off the book first.
	if !res.Status.Terminal() {
		if err := r.Exchange.CancelOrder(ctx, row.Symbol, row.ExchangeOrderID); err != nil {
			log.Printf("reconciler: cancel %s/%s: %v", row.Symbol, row.ExchangeOrderID, err)
			return
		}
		refreshed, err := r.Exchange.GetOrder(ctx, row.Symbol, row.ExchangeOrderID)
		if err == nil {
			res = refreshed
		} else {
			res.Status = exchange.StatusCanceled
		}
		log.Printf("reconciler: cancelled stale %s order %s", row.Symbol, row.ExchangeOrderID)
	}

	switch {
	case res.Status == exchange.StatusFilled, res.ExecutedQty > 0:
		// Fully filled, or partial quantity rescued from a cancel:
		// promote what we actually hold.
		r.promote(ctx, row, res)

	case row.Side == string(exchange.SideBuy):
		// Nothing executed; drop the row and free the symbol.
		if err := r.Queries.DeleteOrder(ctx, row.ID); err != nil {
			log.Printf("reconciler: delete %s: %v", row.ID, err)
		}
		r.State.Release(row.Symbol)
		log.Printf("reconciler: removed dead buy %s %s (%s)", row.Symbol, row.ID, res.Status)

	default:
		// A dead sell leaves the position open; record the status and
		// let the lifecycle manager retry the close.
		_ = r.Queries.UpdateOrderStatus(ctx, row.ID, string(res.Status))
	}
}

func (r *Reconciler) promote(ctx context.Context, row db.Order, res exchange.OrderResult) {
	openPrice := res.AvgFillPrice()
	fee := res.TotalCommission()

	row.Status = string(exchange.StatusFilled)
	row.OpenPrice = openPrice
	row.HighPrice = openPrice
	row.Quantity = res.ExecutedQty
	row.Fee = fee
	row.StopPrice = openPrice * (1 - r.Policy.StopLossPct/100)

	if err := r.Queries.UpdateOrderFill(ctx, row.ID, row.Status, openPrice, row.Quantity, fee); err != nil {
		log.Printf("reconciler: persist fill %s: %v", row.ID, err)
		return
	}
	_ = r.Queries.RaiseStopPrice(ctx, row.ID, row.StopPrice)

	r.State.Track(row)
	log.Printf("reconciler: recovered %s position %s qty %.8g at %.8g", row.Symbol, row.ID, row.Quantity, openPrice)
	if r.Bus != nil {
		r.Bus.Publish(events.EventNewOrder, row)
	}
}
