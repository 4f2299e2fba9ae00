package events

// Event enumerates high-level topics inside the trading engine. The names
// double as websocket message types on the UI feed.
type Event string

const (
	EventCandleUpdate    Event = "candleUpdate"
	EventTrading         Event = "trading"
	EventNewPendingOrder Event = "newPendingOrder"
	EventNewOrder        Event = "newOrder"
	EventSellOrderFilled Event = "sellOrderFilled"
	EventWebSocketStatus Event = "websocketStatus"
	EventStreamStopped   Event = "webSocketStopped"
)

// All lists every topic, in the order the UI feed relays them.
func All() []Event {
	return []Event{
		EventCandleUpdate,
		EventTrading,
		EventNewPendingOrder,
		EventNewOrder,
		EventSellOrderFilled,
		EventWebSocketStatus,
		EventStreamStopped,
	}
}
