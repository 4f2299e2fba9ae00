// Package indicators computes technical indicator series over raw price
// data. Every function returns a slice aligned with its input; positions
// before the indicator lookback hold NaN, never zero, so a cold series can
// not be mistaken for a neutral reading.
package indicators

import "math"

var nan = math.NaN()

// EMASeries returns the exponential moving average with the given period.
func EMASeries(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	// Seed with the SMA of the first period values.
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	prev := sum / float64(period)
	out[period-1] = prev

	k := 2.0 / (float64(period) + 1)
	for i := period; i < len(values); i++ {
		prev = (values[i]-prev)*k + prev
		out[i] = prev
	}
	return out
}

// RSISeries returns the Relative Strength Index with Wilder smoothing.
func RSISeries(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFrom(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFrom(avgGain, avgLoss)
	}
	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACDSeries returns the MACD line, signal line and histogram for the
// standard fast/slow/signal periods.
func MACDSeries(closes []float64, fast, slow, signal int) (macd, sig, hist []float64) {
	n := len(closes)
	macd, sig, hist = nanSlice(n), nanSlice(n), nanSlice(n)
	if fast <= 0 || slow <= fast || n < slow {
		return macd, sig, hist
	}

	emaFast := EMASeries(closes, fast)
	emaSlow := EMASeries(closes, slow)
	for i := slow - 1; i < n; i++ {
		macd[i] = emaFast[i] - emaSlow[i]
	}

	// Signal is an EMA over the valid MACD region.
	valid := macd[slow-1:]
	sigValid := EMASeries(valid, signal)
	for i, v := range sigValid {
		sig[slow-1+i] = v
		if !math.IsNaN(v) {
			hist[slow-1+i] = valid[i] - v
		}
	}
	return macd, sig, hist
}

// StochSeries returns the slow stochastic oscillator: %K smoothed and its
// %D signal.
func StochSeries(highs, lows, closes []float64, period, smoothK, smoothD int) (k, d []float64) {
	n := len(closes)
	k, d = nanSlice(n), nanSlice(n)
	if period <= 0 || n < period {
		return k, d
	}

	fastK := nanSlice(n)
	for i := period - 1; i < n; i++ {
		hi, lo := highs[i], lows[i]
		for j := i - period + 1; j < i; j++ {
			hi = math.Max(hi, highs[j])
			lo = math.Min(lo, lows[j])
		}
		if hi == lo {
			fastK[i] = 50
			continue
		}
		fastK[i] = (closes[i] - lo) / (hi - lo) * 100
	}

	smaInto(k, fastK, smoothK)
	smaInto(d, k, smoothD)
	return k, d
}

// ATRSeries returns the Average True Range with Wilder smoothing.
func ATRSeries(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSlice(n)
	if period <= 0 || n < period+1 {
		return out
	}

	tr := make([]float64, n)
	tr[0] = highs[0] - lows[0]
	for i := 1; i < n; i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	prev := sum / float64(period)
	out[period] = prev
	for i := period + 1; i < n; i++ {
		prev = (prev*float64(period-1) + tr[i]) / float64(period)
		out[i] = prev
	}
	return out
}

// smaInto writes the moving average of src into dst, skipping NaN windows.
func smaInto(dst, src []float64, period int) {
	if period <= 0 {
		return
	}
	for i := period - 1; i < len(src); i++ {
		sum := 0.0
		ok := true
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(src[j]) {
				ok = false
				break
			}
			sum += src[j]
		}
		if ok {
			dst[i] = sum / float64(period)
		}
	}
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = nan
	}
	return out
}
