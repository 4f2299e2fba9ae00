package spot

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"spottrader/pkg/cache"
	"spottrader/pkg/exchanges/common"
)

// Exchange filters do change (tick/step revisions), so cached rounding
// rules are refreshed after this long.
const filtersTTL = time.Hour

// Config holds Binance credentials.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms
}

// Client is a Binance spot trading client.
type Client struct {
	cfg         Config
	baseURL     string
	httpClient  *http.Client
	timeSync    *common.TimeSync
	rateLimiter *common.RateLimiter

	filters *cache.TTLCache[common.SymbolFilters]
}

func New(cfg Config) *Client {
	base := "https://api.binance.com"
	if cfg.Testnet {
		base = "https://testnet.binance.vision"
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	client := &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		filters:    cache.NewTTLCache[common.SymbolFilters](filtersTTL),
	}
	// Initialize TimeSync (will sync on first use)
	client.timeSync = common.NewTimeSync(func() (int64, error) {
		return client.GetServerTime()
	})
	// Rate limiter: 1200 weight/min for spot
	client.rateLimiter = common.NewRateLimiter(1200, time.Minute)
	return client
}

// StartTimeSync begins periodic clock synchronization with the exchange.
func (c *Client) StartTimeSync(ctx context.Context) {
	c.timeSync.Start(ctx)
}

// SubmitOrder places a spot order. Market buys may size by quote quantity
// (quoteOrderQty); everything else sizes by base quantity.
func (c *Client) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return common.OrderResult{}, errors.New("binance: API key/secret required")
	}

	ordType := req.Type
	if ordType == "" {
		ordType = common.OrderTypeMarket
	}
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("type", string(ordType))

	switch {
	case ordType == common.OrderTypeMarket && req.QuoteQty > 0:
		params.Set("quoteOrderQty", formatFloat(req.QuoteQty))
	default:
		params.Set("quantity", formatFloat(req.Qty))
	}

	if ordType == common.OrderTypeLimit {
		params.Set("price", formatFloat(req.Price))
		params.Set("timeInForce", string(toBinanceTIF(req.TimeInForce)))
	}

	if req.ClientID != "" {
		params.Set("newClientOrderId", req.ClientID)
	}
	// Full response carries the immediate fills for market orders.
	params.Set("newOrderRespType", "FULL")
	c.stamp(params)

	endpoint := c.baseURL + "/api/v3/order"
	body, err := c.doSigned(ctx, http.MethodPost, endpoint, params)
	if err != nil {
		return common.OrderResult{}, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.OrderResult{}, fmt.Errorf("decode order response: %w", err)
	}
	return resp.toResult(), nil
}

// GetOrder fetches a single order by symbol and exchange order id.
func (c *Client) GetOrder(ctx context.Context, symbol, exchangeOrderID string) (common.OrderResult, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return common.OrderResult{}, errors.New("binance: API key/secret required")
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	if exchangeOrderID != "" {
		params.Set("orderId", exchangeOrderID)
	}
	c.stamp(params)

	endpoint := c.baseURL + "/api/v3/order"
	body, err := c.doSigned(ctx, http.MethodGet, endpoint, params)
	if err != nil {
		return common.OrderResult{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return common.OrderResult{}, fmt.Errorf("decode order: %w", err)
	}
	return resp.toResult(), nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return errors.New("binance: API key/secret required")
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	if exchangeOrderID != "" {
		params.Set("orderId", exchangeOrderID)
	}
	c.stamp(params)

	endpoint := c.baseURL + "/api/v3/order"
	_, err := c.doSigned(ctx, http.MethodDelete, endpoint, params)
	return err
}

// GetOpenOrders returns current open orders; if symbol is empty, all symbols.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]common.OrderResult, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return nil, errors.New("binance: API key/secret required")
	}
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	c.stamp(params)

	endpoint := c.baseURL + "/api/v3/openOrders"
	body, err := c.doSigned(ctx, http.MethodGet, endpoint, params)
	if err != nil {
		return nil, err
	}
	var raw []orderResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	out := make([]common.OrderResult, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.toResult())
	}
	return out, nil
}

// GetBalances returns non-zero asset balances.
func (c *Client) GetBalances(ctx context.Context) ([]common.Balance, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return nil, errors.New("binance: API key/secret required")
	}
	params := url.Values{}
	c.stamp(params)

	endpoint := c.baseURL + "/api/v3/account"
	body, err := c.doSigned(ctx, http.MethodGet, endpoint, params)
	if err != nil {
		return nil, err
	}
	var info struct {
		CanTrade bool `json:"canTrade"`
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode account info: %w", err)
	}
	out := make([]common.Balance, 0, len(info.Balances))
	for _, b := range info.Balances {
		free := parseFloat(b.Free)
		locked := parseFloat(b.Locked)
		if free == 0 && locked == 0 {
			continue
		}
		out = append(out, common.Balance{Asset: b.Asset, Free: free, Locked: locked})
	}
	return out, nil
}

// GetSymbolFilters returns tick/step rounding rules for a symbol. Results
// are cached with a TTL and re-fetched from exchangeInfo once it lapses.
func (c *Client) GetSymbolFilters(ctx context.Context, symbol string) (common.SymbolFilters, error) {
	if f, ok := c.filters.Get(symbol); ok {
		return f, nil
	}

	u := fmt.Sprintf("%s/api/v3/exchangeInfo?symbol=%s", c.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return common.SymbolFilters{}, err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return common.SymbolFilters{}, err
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return common.SymbolFilters{}, fmt.Errorf("binance exchangeInfo status %d: %s", res.StatusCode, string(body))
	}

	var info struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType  string `json:"filterType"`
				TickSize    string `json:"tickSize"`
				StepSize    string `json:"stepSize"`
				MinNotional string `json:"minNotional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return common.SymbolFilters{}, fmt.Errorf("decode exchangeInfo: %w", err)
	}
	if len(info.Symbols) == 0 {
		return common.SymbolFilters{}, fmt.Errorf("binance: symbol %s not found", symbol)
	}

	f := common.SymbolFilters{Symbol: symbol}
	for _, flt := range info.Symbols[0].Filters {
		switch flt.FilterType {
		case "PRICE_FILTER":
			f.TickSize = parseFloat(flt.TickSize)
		case "LOT_SIZE":
			f.StepSize = parseFloat(flt.StepSize)
		case "NOTIONAL", "MIN_NOTIONAL":
			f.MinNotional = parseFloat(flt.MinNotional)
		}
	}

	c.filters.Set(symbol, f)
	return f, nil
}

// stamp appends the signed-request timestamp and recvWindow.
func (c *Client) stamp(params url.Values) {
	timestamp := time.Now().UnixMilli()
	if c.timeSync != nil && c.timeSync.Offset() != 0 {
		timestamp = c.timeSync.Now()
	}
	params.Set("timestamp", strconv.FormatInt(timestamp, 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
}

// doSigned signs the query and performs the HTTP request.
func (c *Client) doSigned(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	sig := sign(params.Encode(), c.cfg.APISecret)
	params.Set("signature", sig)

	var (
		req *http.Request
		err error
	)
	encoded := params.Encode()
	switch method {
	case http.MethodGet, http.MethodDelete:
		// For GET/DELETE Binance expects signed params in query string.
		urlWithQuery := endpoint + "?" + encoded
		req, err = http.NewRequestWithContext(ctx, method, urlWithQuery, nil)
	default:
		// For POST we can send as form body.
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	// Track rate limit usage
	if c.rateLimiter != nil {
		weightHeader := res.Header.Get("X-MBX-USED-WEIGHT-1M")
		c.rateLimiter.UpdateFromHeader(weightHeader)
	}

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("binance %s %s status %d: %s", method, endpoint, res.StatusCode, string(body))
	}
	return body, nil
}

// GetServerTime fetches server time (ms).
func (c *Client) GetServerTime() (int64, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/api/v3/time")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("server time status %d: %s", resp.StatusCode, string(b))
	}
	var res struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return 0, err
	}
	return res.ServerTime, nil
}

type orderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	Price         string `json:"price"`
	ExecutedQty   string `json:"executedQty"`
	CumQuoteQty   string `json:"cummulativeQuoteQty"`
	TransactTime  int64  `json:"transactTime"`
	Time          int64  `json:"time"`
	Fills         []struct {
		Price           string `json:"price"`
		Qty             string `json:"qty"`
		Commission      string `json:"commission"`
		CommissionAsset string `json:"commissionAsset"`
		TradeID         int64  `json:"tradeId"`
	} `json:"fills"`
}

func (r orderResponse) toResult() common.OrderResult {
	out := common.OrderResult{
		ExchangeOrderID: strconv.FormatInt(r.OrderID, 10),
		ClientID:        r.ClientOrderID,
		Status:          mapStatus(r.Status),
		Price:           parseFloat(r.Price),
		ExecutedQty:     parseFloat(r.ExecutedQty),
		CumulativeQuote: parseFloat(r.CumQuoteQty),
		TransactTime:    r.TransactTime,
	}
	if out.TransactTime == 0 {
		out.TransactTime = r.Time
	}
	for _, f := range r.Fills {
		out.Fills = append(out.Fills, common.Fill{
			TradeID:         strconv.FormatInt(f.TradeID, 10),
			Price:           parseFloat(f.Price),
			Qty:             parseFloat(f.Qty),
			Commission:      parseFloat(f.Commission),
			CommissionAsset: f.CommissionAsset,
		})
	}
	return out
}

func mapStatus(s string) common.OrderStatus {
	switch strings.ToUpper(s) {
	case "NEW":
		return common.StatusNew
	case "PARTIALLY_FILLED":
		return common.StatusPartial
	case "FILLED":
		return common.StatusFilled
	case "CANCELED":
		return common.StatusCanceled
	case "REJECTED":
		return common.StatusRejected
	case "EXPIRED":
		return common.StatusExpired
	default:
		return common.StatusUnknown
	}
}

func toBinanceTIF(tif common.TimeInForce) common.TimeInForce {
	if tif == "" {
		return common.TIFGTC
	}
	return tif
}

func sign(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
