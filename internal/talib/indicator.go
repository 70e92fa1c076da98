package talib

import (
	"math"

	"github.com/cinar/indicator/container/bst"
)

// Bands is the Bollinger triple for one window.
type Bands struct {
	Mid   float64
	Upper float64
	Lower float64
}

// MACDResult carries the last values of the MACD line, its signal line
// and the histogram.
type MACDResult struct {
	MACD   float64
	Signal float64
	Hist   float64
}

// RSI returns the Wilder smoothed RSI over the given closes. When the
// window is shorter than period+1 the indicator is undefined and the
// neutral value 50 is returned.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 50
	}

	rsi := RSISeries(closes, period)
	return rsi[len(rsi)-1]
}

// RSISeries returns the full Wilder RSI series over closes.
func RSISeries(closes []float64, period int) []float64 {
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))

	for i := 1; i < len(closes); i++ {
		difference := closes[i] - closes[i-1]

		if difference > 0 {
			gains[i] = difference
			losses[i] = 0
		} else {
			losses[i] = -difference
			gains[i] = 0
		}
	}

	meanGains := Rma(period, gains)
	meanLosses := Rma(period, losses)

	rsi := make([]float64, len(closes))

	for i := 0; i < len(rsi); i++ {
		if meanLosses[i] == 0 {
			rsi[i] = 100
			continue
		}

		rs := meanGains[i] / meanLosses[i]
		rsi[i] = 100 - (100 / (1 + rs))
	}

	return rsi
}

// SMA returns the simple moving average of the last period values.
// NaN signals an undefined result when the input is too short.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return math.NaN()
	}

	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// EMA returns the last value of the exponential moving average series.
// NaN signals an undefined result when the input is too short.
func EMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return math.NaN()
	}

	series := EMASeries(values, period)
	return series[len(series)-1]
}

// EMASeries returns the exponential moving average series seeded with
// the running mean of the first period values.
func EMASeries(values []float64, period int) []float64 {
	result := make([]float64, len(values))
	if len(values) == 0 || period <= 0 {
		return result
	}

	k := 2.0 / float64(period+1)
	sum := 0.0

	for i, value := range values {
		if i < period {
			sum += value
			result[i] = sum / float64(i+1)
			continue
		}

		result[i] = value*k + result[i-1]*(1-k)
	}

	return result
}

// Bollinger returns mid/upper/lower bands where sigma is the population
// standard deviation over the last period closes.
func Bollinger(closes []float64, period int, k float64) Bands {
	mid := SMA(closes, period)
	if math.IsNaN(mid) {
		return Bands{Mid: mid, Upper: math.NaN(), Lower: math.NaN()}
	}

	variance := 0.0
	for _, v := range closes[len(closes)-period:] {
		variance += (v - mid) * (v - mid)
	}
	sigma := math.Sqrt(variance / float64(period))

	return Bands{
		Mid:   mid,
		Upper: mid + k*sigma,
		Lower: mid - k*sigma,
	}
}

// ATR returns the Wilder smoothed average true range. NaN signals an
// undefined result when the window is too short.
func ATR(highs, lows, closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return math.NaN()
	}

	tr := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		highLow := highs[i] - lows[i]
		highClose := math.Abs(highs[i] - closes[i-1])
		lowClose := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(highLow, math.Max(highClose, lowClose))
	}

	atr := Rma(period, tr)
	return atr[len(atr)-1]
}

// MACD returns the last values of macd = EMA(fast) - EMA(slow),
// signal = EMA(macd, signalPeriod) and hist = macd - signal.
func MACD(closes []float64, fast, slow, signalPeriod int) MACDResult {
	if len(closes) == 0 {
		return MACDResult{}
	}

	fastSeries := EMASeries(closes, fast)
	slowSeries := EMASeries(closes, slow)

	macdSeries := make([]float64, len(closes))
	for i := range closes {
		macdSeries[i] = fastSeries[i] - slowSeries[i]
	}

	signalSeries := EMASeries(macdSeries, signalPeriod)

	last := len(closes) - 1
	return MACDResult{
		MACD:   macdSeries[last],
		Signal: signalSeries[last],
		Hist:   macdSeries[last] - signalSeries[last],
	}
}

// Rolling Moving Average (RMA).
//
// R[0] to R[p-1] is SMA(values)
// R[p] and after is R[i] = ((R[i-1]*(p-1)) + v[i]) / p
//
// Returns r.
func Rma(period int, values []float64) []float64 {
	result := make([]float64, len(values))
	sum := float64(0)

	for i, value := range values {
		count := i + 1

		if i < period {
			sum += value
		} else {
			sum = (result[i-1] * float64(period-1)) + value
			count = period
		}

		result[i] = sum / float64(count)
	}

	return result
}

// Max is the moving max for the given period.
func Max(period int, values []float64) []float64 {
	result := make([]float64, len(values))

	buffer := make([]float64, period)
	tree := bst.New()

	for i := 0; i < len(values); i++ {
		tree.Insert(values[i])

		if i >= period {
			tree.Remove(buffer[i%period])
		}

		buffer[i%period] = values[i]
		result[i] = tree.Max().(float64)
	}

	return result
}

// Min is the moving min for the given period.
func Min(period int, values []float64) []float64 {
	result := make([]float64, len(values))

	buffer := make([]float64, period)
	tree := bst.New()

	for i := 0; i < len(values); i++ {
		tree.Insert(values[i])

		if i >= period {
			tree.Remove(buffer[i%period])
		}

		buffer[i%period] = values[i]
		result[i] = tree.Min().(float64)
	}

	return result
}

// Mean returns the arithmetic mean, 0 for an empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Clamp bounds value into [lower, upper].
func Clamp(value, lower, upper float64) float64 {
	if value < lower {
		return lower
	}
	if value > upper {
		return upper
	}
	return value
}
