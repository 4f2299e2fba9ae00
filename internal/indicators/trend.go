package indicators

import "math"

// Trend score vote weights, strongest signal first: price vs EMA, MACD
// cross, histogram momentum, RSI level, RSI momentum.
var trendWeights = [5]float64{3, 2, 2, 1, 1}

// TrendScoreAt computes the composite trend score for index i from aligned
// indicator series. Each of the five comparisons votes +1 or -1; the
// unweighted sum spans [-5,+5], the weighted sum [-9,+9]. Returns NaN
// until every input is valid, which needs at least one prior candle.
func TrendScoreAt(i int, closes, ema, macd, signal, hist, rsi []float64, weighted bool) float64 {
	if i < 1 || i >= len(closes) {
		return nan
	}
	inputs := []float64{closes[i], ema[i], macd[i], signal[i], hist[i], hist[i-1], rsi[i], rsi[i-1]}
	for _, v := range inputs {
		if math.IsNaN(v) {
			return nan
		}
	}

	votes := [5]float64{
		vote(closes[i] > ema[i]),
		vote(macd[i] > signal[i]),
		vote(hist[i] > hist[i-1]),
		vote(rsi[i] > 50),
		vote(rsi[i] > rsi[i-1]),
	}

	score := 0.0
	for j, v := range votes {
		if weighted {
			score += v * trendWeights[j]
		} else {
			score += v
		}
	}
	return score
}

// TrendScoreSeries computes TrendScoreAt for every index.
func TrendScoreSeries(closes, ema, macd, signal, hist, rsi []float64, weighted bool) []float64 {
	out := nanSlice(len(closes))
	for i := range closes {
		out[i] = TrendScoreAt(i, closes, ema, macd, signal, hist, rsi, weighted)
	}
	return out
}

func vote(up bool) float64 {
	if up {
		return 1
	}
	return -1
}
