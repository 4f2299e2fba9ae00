// Package oracle calls the external prediction service that scores entry
// candidates. The trading path must keep running when the service is down,
// so every failure degrades to a neutral prediction instead of an error.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"spottrader/internal/candles"
)

// Direction is the predicted price direction.
type Direction string

const (
	DirectionUp       Direction = "up"
	DirectionDown     Direction = "down"
	DirectionSideways Direction = "sideways"
)

// Prediction is the service response for one symbol.
type Prediction struct {
	Symbol              string    `json:"symbol"`
	Prediction          Direction `json:"prediction"`
	Confidence          float64   `json:"confidence"`
	ExpectedReturn      float64   `json:"expectedReturn"`
	UpProbability       float64   `json:"upProbability"`
	DownProbability     float64   `json:"downProbability"`
	SidewaysProbability float64   `json:"sidewaysProbability"`
	TrendScore          float64   `json:"trendScore"`
	Timestamp           time.Time `json:"timestamp"`
}

// Up reports a bullish call at or above the given confidence.
func (p Prediction) Up(minConfidence float64) bool {
	return p.Prediction == DirectionUp && p.Confidence >= minConfidence
}

// Down reports a bearish call at or above the given confidence.
func (p Prediction) Down(minConfidence float64) bool {
	return p.Prediction == DirectionDown && p.Confidence >= minConfidence
}

// Client talks to the prediction service over JSON HTTP.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Enabled    bool
}

// NewClient builds an oracle client.
func NewClient(baseURL string, enabled bool) *Client {
	return &Client{
		BaseURL:    baseURL,
		Enabled:    enabled,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type candlePayload struct {
	OpenTime int64   `json:"t"`
	Open     float64 `json:"o"`
	High     float64 `json:"h"`
	Low      float64 `json:"l"`
	Close    float64 `json:"c"`
	Volume   float64 `json:"v"`
}

// Predict posts recent candles and returns the service's view. On any
// failure it logs and returns Neutral; callers never see an error.
func (c *Client) Predict(ctx context.Context, symbol string, series []candles.Candle) Prediction {
	if !c.Enabled {
		return Neutral(symbol)
	}

	payload := struct {
		Symbol  string          `json:"symbol"`
		Candles []candlePayload `json:"candles"`
	}{Symbol: symbol}
	for _, cd := range series {
		payload.Candles = append(payload.Candles, candlePayload{
			OpenTime: cd.OpenTime,
			Open:     cd.Open,
			High:     cd.High,
			Low:      cd.Low,
			Close:    cd.Close,
			Volume:   cd.Volume,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("oracle: marshal %s: %v", symbol, err)
		return Neutral(symbol)
	}

	url := fmt.Sprintf("%s/api/predict", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Printf("oracle: build request %s: %v", symbol, err)
		return Neutral(symbol)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		log.Printf("oracle: %s unreachable: %v", symbol, err)
		return Neutral(symbol)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		log.Printf("oracle: %s status %d", symbol, res.StatusCode)
		return Neutral(symbol)
	}

	var p Prediction
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		log.Printf("oracle: decode %s: %v", symbol, err)
		return Neutral(symbol)
	}
	if p.Symbol == "" {
		p.Symbol = symbol
	}
	return p
}

// Neutral is the fallback prediction: sideways with zero confidence. It
// fails every bullish gate and never triggers a bearish veto.
func Neutral(symbol string) Prediction {
	return Prediction{
		Symbol:              symbol,
		Prediction:          DirectionSideways,
		Confidence:          0,
		SidewaysProbability: 1,
		Timestamp:           time.Now(),
	}
}
