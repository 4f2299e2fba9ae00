package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamClient manages lightweight streaming from Binance public websockets.
type StreamClient struct {
	StreamURL string
	dialer    *websocket.Dialer
}

// NewStreamClient builds a websocket client; testnet toggles the host.
func NewStreamClient(testnet bool) *StreamClient {
	host := "stream.binance.com:9443"
	if testnet {
		host = "testnet.binance.vision"
	}
	return &StreamClient{
		StreamURL: (&url.URL{Scheme: "wss", Host: host, Path: "/ws"}).String(),
		dialer:    websocket.DefaultDialer,
	}
}

// SubscribeKlines listens to a kline stream and pushes parsed klines into a
// channel. It returns the channel and a stop function.
func (c *StreamClient) SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan Kline, func(), error) {
	// Binance requires lowercase symbols for WebSocket streams
	stream := fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), interval)
	u := fmt.Sprintf("%s/%s", c.StreamURL, stream)

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial binance ws: %w", err)
	}

	out := make(chan Kline, 100)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			// Ignore errors; connection may already be closed.
			close(done)
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		})
	}

	// Only the reader closes out, so a stop racing a pending send cannot
	// hit a closed channel.
	go func() {
		defer close(out)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				// If connection already closed by caller/context, just exit quietly.
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				log.Printf("binance ws read error: %v", err)
				return
			}

			parsed, err := parseKlineMessage(msg)
			if err != nil {
				log.Printf("binance ws parse error: %v", err)
				continue
			}
			select {
			case out <- parsed:
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, stop, nil
}

// SubscribeTickerArr subscribes to the rolling-window ticker array stream
// (!ticker@arr, or !ticker_<window>@arr when window is e.g. "4h"). Each
// message carries stats for every symbol that changed in the window.
func (c *StreamClient) SubscribeTickerArr(ctx context.Context, window string) (<-chan []TickerStat, func(), error) {
	stream := "!ticker@arr"
	if window != "" && window != "24h" {
		stream = fmt.Sprintf("!ticker_%s@arr", window)
	}
	u := fmt.Sprintf("%s/%s", c.StreamURL, stream)

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial binance ws ticker arr: %w", err)
	}

	out := make(chan []TickerStat, 100)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		})
	}

	go func() {
		defer close(out)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				log.Printf("binance ws ticker arr read error: %v", err)
				return
			}

			parsed, err := parseTickerArrMessage(msg)
			if err != nil {
				log.Printf("binance ws ticker arr parse error: %v", err)
				continue
			}
			select {
			case out <- parsed:
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, stop, nil
}

// parseKlineMessage decodes only the fields we need.
func parseKlineMessage(msg []byte) (Kline, error) {
	var raw struct {
		Data struct {
			StartTime int64       `json:"t"`
			CloseTime int64       `json:"T"`
			Symbol    string      `json:"s"`
			Interval  string      `json:"i"`
			Open      interface{} `json:"o"`
			Close     interface{} `json:"c"`
			High      interface{} `json:"h"`
			Low       interface{} `json:"l"`
			Volume    interface{} `json:"v"`
			Quote     interface{} `json:"q"`
			Trades    interface{} `json:"n"`
			Final     bool        `json:"x"`
		} `json:"k"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Kline{}, err
	}
	return Kline{
		Symbol:         raw.Data.Symbol,
		OpenTime:       raw.Data.StartTime,
		CloseTime:      raw.Data.CloseTime,
		Open:           toFloat(raw.Data.Open),
		Close:          toFloat(raw.Data.Close),
		High:           toFloat(raw.Data.High),
		Low:            toFloat(raw.Data.Low),
		Volume:         toFloat(raw.Data.Volume),
		QuoteVolume:    toFloat(raw.Data.Quote),
		NumberOfTrades: toInt(raw.Data.Trades),
		Closed:         raw.Data.Final,
	}, nil
}

func parseTickerArrMessage(msg []byte) ([]TickerStat, error) {
	var raw []struct {
		EventTime   int64       `json:"E"`
		Symbol      string      `json:"s"`
		PriceChange interface{} `json:"p"`
		ChangePct   interface{} `json:"P"`
		Last        interface{} `json:"c"`
		High        interface{} `json:"h"`
		Low         interface{} `json:"l"`
		Volume      interface{} `json:"v"`
		QuoteVol    interface{} `json:"q"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return nil, err
	}
	stats := make([]TickerStat, 0, len(raw))
	for _, t := range raw {
		stats = append(stats, TickerStat{
			Symbol:         t.Symbol,
			LastPrice:      toFloat(t.Last),
			PriceChange:    toFloat(t.PriceChange),
			PriceChangePct: toFloat(t.ChangePct),
			HighPrice:      toFloat(t.High),
			LowPrice:       toFloat(t.Low),
			Volume:         toFloat(t.Volume),
			QuoteVolume:    toFloat(t.QuoteVol),
			EventTime:      t.EventTime,
		})
	}
	return stats, nil
}

// Ping keeps the connection alive; useful if the caller wants manual control.
func (c *StreamClient) Ping(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second))
}
