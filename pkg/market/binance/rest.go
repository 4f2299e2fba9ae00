package market

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client reads public market data over REST; the backfill path uses it
// to seed the candle store before the streams take over.
type Client struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	HTTPClient *http.Client
	Testnet    bool
}

// NewClient builds a REST client; Testnet switches the base URL.
func NewClient(apiKey, apiSecret string, testnet bool) *Client {
	base := "https://api.binance.com"
	if testnet {
		base = "https://testnet.binance.vision"
	}
	return &Client{
		APIKey:     apiKey,
		APISecret:  apiSecret,
		BaseURL:    base,
		Testnet:    testnet,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// getJSON performs a public GET and decodes the body into v.
func (c *Client) getJSON(path string, params url.Values, v any) error {
	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("binance %s status %d", path, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(v)
}

// GetKlines fetches historical klines. startTime/endTime of 0 means the
// most recent window; limit of 0 takes the server default.
func (c *Client) GetKlines(symbol, interval string, limit int, startTime, endTime int64) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if startTime > 0 {
		params.Set("startTime", strconv.FormatInt(startTime, 10))
	}
	if endTime > 0 {
		params.Set("endTime", strconv.FormatInt(endTime, 10))
	}

	// Each row is a 12-element array of mixed numbers and strings.
	var rows [][]any
	if err := c.getJSON("/api/v3/klines", params, &rows); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	klines := make([]Kline, 0, len(rows))
	for _, row := range rows {
		if len(row) < 11 {
			continue
		}
		k := Kline{
			Symbol:              symbol,
			OpenTime:            toInt64(row[0]),
			Open:                toFloat(row[1]),
			High:                toFloat(row[2]),
			Low:                 toFloat(row[3]),
			Close:               toFloat(row[4]),
			Volume:              toFloat(row[5]),
			CloseTime:           toInt64(row[6]),
			QuoteVolume:         toFloat(row[7]),
			NumberOfTrades:      toInt(row[8]),
			TakerBuyBaseVolume:  toFloat(row[9]),
			TakerBuyQuoteVolume: toFloat(row[10]),
		}
		// The last row is usually the still-forming candle.
		k.Closed = k.CloseTime <= now
		klines = append(klines, k)
	}
	return klines, nil
}

// GetServerTime returns the exchange clock in milliseconds.
func (c *Client) GetServerTime() (int64, error) {
	var out struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.getJSON("/api/v3/time", nil, &out); err != nil {
		return 0, err
	}
	return out.ServerTime, nil
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case json.Number:
		f, _ := t.Float64()
		return f
	case float64:
		return t
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int64:
		return t
	case json.Number:
		i, _ := t.Int64()
		return i
	default:
		return 0
	}
}

func toInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case json.Number:
		i, _ := t.Int64()
		return int(i)
	default:
		return 0
	}
}
