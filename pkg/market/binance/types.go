package market

// Kline represents a single candlestick with all official Binance fields.
type Kline struct {
	Symbol              string  // trading pair symbol
	OpenTime            int64   // 0: Open time (ms)
	Open                float64 // 1: Open price
	High                float64 // 2: High price
	Low                 float64 // 3: Low price
	Close               float64 // 4: Close price
	Volume              float64 // 5: Base asset volume
	CloseTime           int64   // 6: Close time (ms)
	QuoteVolume         float64 // 7: Quote asset volume
	NumberOfTrades      int     // 8: Number of trades
	TakerBuyBaseVolume  float64 // 9: Taker buy base asset volume
	TakerBuyQuoteVolume float64 // 10: Taker buy quote asset volume
	// Field 11 is unused/ignore

	// Closed is true when the interval has ended. REST klines are closed
	// except possibly the last row; on the stream it comes from the "x" flag.
	Closed bool
}

// TickerStat is one symbol entry from the rolling-window ticker array
// stream. PriceChangePct drives the market ranking.
type TickerStat struct {
	Symbol         string
	LastPrice      float64
	PriceChange    float64
	PriceChangePct float64
	HighPrice      float64
	LowPrice       float64
	Volume         float64
	QuoteVolume    float64
	EventTime      int64
}

// Ticker holds lightweight price info for streaming.
type Ticker struct {
	Symbol string
	Price  float64
	Time   int64
}
