package indicators

import (
	"math"
	"strconv"
	"strings"
)

// LagForInterval derives the discrete-derivative lag from a candle
// interval: one candle for hourly data, 60/N candles for N-minute data.
func LagForInterval(interval string) int {
	switch {
	case strings.HasSuffix(interval, "m"):
		n, err := strconv.Atoi(strings.TrimSuffix(interval, "m"))
		if err != nil || n <= 0 || n > 60 {
			return 1
		}
		return 60 / n
	default:
		return 1
	}
}

// HistSlope estimates the momentum of the MACD histogram as the mean of
// four discrete derivatives taken lag candles apart:
//
//	mean over k=1..4 of (hist[n-k] - hist[n-k-lag]) / lag
//
// Returns NaN when the series is too short or any sample is NaN.
func HistSlope(hist []float64, lag int) float64 {
	const samples = 4
	if lag <= 0 {
		lag = 1
	}
	n := len(hist)
	if n < samples+lag {
		return nan
	}

	sum := 0.0
	for k := 1; k <= samples; k++ {
		a := hist[n-k]
		b := hist[n-k-lag]
		if math.IsNaN(a) || math.IsNaN(b) {
			return nan
		}
		sum += (a - b) / float64(lag)
	}
	return sum / samples
}
