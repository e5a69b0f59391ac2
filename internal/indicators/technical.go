// Package indicators implements the pure technical-indicator functions of
// spec §4.G. Every function operates on an ordered bar series and returns
// Value{Defined:false} rather than a zero when history is insufficient —
// "Undefined outputs ... surface as UNDEFINED, not zero" (§4.G).
//
// Numeric style (Wilder smoothing for RSI/ADX/ATR, SMA-seeded EMA) is
// adapted from the teacher's internal/domain/indicators.CalculateRSI,
// generalized into reusable series-producing functions so the scoring
// engine (§4.H) can inspect history, not just the latest value.
package indicators

import "math"

// Value is a possibly-undefined indicator reading.
type Value struct {
	V       float64
	Defined bool
}

func defined(v float64) Value   { return Value{V: v, Defined: true} }
func undefined() Value          { return Value{} }
func (v Value) OrElse(d float64) float64 {
	if v.Defined {
		return v.V
	}
	return d
}

// SMA returns the simple mean of the trailing n closes ending at each
// index; indices before n-1 are Undefined.
func SMA(closes []float64, n int) []Value {
	out := make([]Value, len(closes))
	if n <= 0 {
		return out
	}
	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= n {
			sum -= closes[i-n]
		}
		if i >= n-1 {
			out[i] = defined(sum / float64(n))
		} else {
			out[i] = undefined()
		}
	}
	return out
}

// EMA seeds with the SMA(n) of the first n closes (spec: "seeded with
// SMA(n)"), then applies alpha = 2/(n+1) thereafter.
func EMA(closes []float64, n int) []Value {
	out := make([]Value, len(closes))
	if n <= 0 || len(closes) < n {
		for i := range out {
			out[i] = undefined()
		}
		return out
	}
	alpha := 2.0 / float64(n+1)
	seedSum := 0.0
	for i := 0; i < n; i++ {
		seedSum += closes[i]
		out[i] = undefined()
	}
	prev := seedSum / float64(n)
	out[n-1] = defined(prev)
	for i := n; i < len(closes); i++ {
		prev = closes[i]*alpha + prev*(1-alpha)
		out[i] = defined(prev)
	}
	return out
}

// RSI(14) with Wilder smoothing of average gain/loss.
func RSI(closes []float64, period int) []Value {
	out := make([]Value, len(closes))
	for i := range out {
		out[i] = undefined()
	}
	if len(closes) < period+1 {
		return out
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = defined(rsiFromAverages(avgGain, avgLoss))

	for i := period + 1; i < len(closes); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		out[i] = defined(rsiFromAverages(avgGain, avgLoss))
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// MACDResult holds the three MACD(12,26,9) series.
type MACDResult struct {
	MACD      []Value
	Signal    []Value
	Histogram []Value
}

func MACD(closes []float64, fast, slow, signalPeriod int) MACDResult {
	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)

	macdLine := make([]float64, len(closes))
	macdDefined := make([]bool, len(closes))
	for i := range closes {
		if emaFast[i].Defined && emaSlow[i].Defined {
			macdLine[i] = emaFast[i].V - emaSlow[i].V
			macdDefined[i] = true
		}
	}

	// EMA of macdLine restricted to its defined suffix.
	start := -1
	for i, d := range macdDefined {
		if d {
			start = i
			break
		}
	}
	out := MACDResult{
		MACD:      make([]Value, len(closes)),
		Signal:    make([]Value, len(closes)),
		Histogram: make([]Value, len(closes)),
	}
	for i := range closes {
		out.MACD[i] = undefined()
		out.Signal[i] = undefined()
		out.Histogram[i] = undefined()
	}
	if start == -1 {
		return out
	}
	for i := start; i < len(closes); i++ {
		out.MACD[i] = defined(macdLine[i])
	}
	sub := macdLine[start:]
	signalSub := EMA(sub, signalPeriod)
	for i, v := range signalSub {
		if v.Defined {
			idx := start + i
			out.Signal[idx] = v
			out.Histogram[idx] = defined(macdLine[idx] - v.V)
		}
	}
	return out
}

// ATR(14): Wilder smoothing of true range. Requires OHLC bars.
type OHLC struct{ High, Low, Close float64 }

func ATR(bars []OHLC, period int) []Value {
	out := make([]Value, len(bars))
	for i := range out {
		out[i] = undefined()
	}
	if len(bars) < period+1 {
		return out
	}
	tr := make([]float64, len(bars))
	for i, b := range bars {
		if i == 0 {
			tr[i] = b.High - b.Low
			continue
		}
		prevClose := bars[i-1].Close
		tr[i] = math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
	}
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	avg := sum / float64(period)
	out[period] = defined(avg)
	for i := period + 1; i < len(bars); i++ {
		avg = (avg*float64(period-1) + tr[i]) / float64(period)
		out[i] = defined(avg)
	}
	return out
}

// ADXResult carries ADX alongside the +DI/-DI direction it was derived
// from, since §4.H's trend direction depends on which side leads.
type ADXResult struct {
	ADX    []Value
	PlusDI []Value
	MinusDI []Value
}

func ADX(bars []OHLC, period int) ADXResult {
	n := len(bars)
	res := ADXResult{ADX: make([]Value, n), PlusDI: make([]Value, n), MinusDI: make([]Value, n)}
	for i := 0; i < n; i++ {
		res.ADX[i], res.PlusDI[i], res.MinusDI[i] = undefined(), undefined(), undefined()
	}
	if n < 2*period+1 {
		return res
	}

	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		upMove := bars[i].High - bars[i-1].High
		downMove := bars[i-1].Low - bars[i].Low
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
		prevClose := bars[i-1].Close
		tr[i] = math.Max(bars[i].High-bars[i].Low, math.Max(math.Abs(bars[i].High-prevClose), math.Abs(bars[i].Low-prevClose)))
	}

	wilder := func(series []float64, period int) []float64 {
		out := make([]float64, len(series))
		sum := 0.0
		for i := 1; i <= period; i++ {
			sum += series[i]
		}
		out[period] = sum
		for i := period + 1; i < len(series); i++ {
			out[i] = out[i-1] - out[i-1]/float64(period) + series[i]
		}
		return out
	}
	trSmoothed := wilder(tr, period)
	plusDMSmoothed := wilder(plusDM, period)
	minusDMSmoothed := wilder(minusDM, period)

	dx := make([]float64, n)
	for i := period; i < n; i++ {
		if trSmoothed[i] == 0 {
			continue
		}
		pdi := 100 * plusDMSmoothed[i] / trSmoothed[i]
		mdi := 100 * minusDMSmoothed[i] / trSmoothed[i]
		res.PlusDI[i] = defined(pdi)
		res.MinusDI[i] = defined(mdi)
		denom := pdi + mdi
		if denom > 0 {
			dx[i] = 100 * math.Abs(pdi-mdi) / denom
		}
	}

	// ADX is the Wilder-smoothed average of DX, starting after 2*period.
	start := 2 * period
	if start >= n {
		return res
	}
	sum := 0.0
	for i := period; i < start; i++ {
		sum += dx[i]
	}
	avg := sum / float64(period)
	res.ADX[start] = defined(avg)
	for i := start + 1; i < n; i++ {
		avg = (avg*float64(period-1) + dx[i]) / float64(period)
		res.ADX[i] = defined(avg)
	}
	return res
}

// OBV is the cumulative sign(Δclose)·volume running total.
func OBV(closes, volumes []float64) []Value {
	out := make([]Value, len(closes))
	if len(closes) == 0 {
		return out
	}
	running := 0.0
	out[0] = defined(0)
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			running += volumes[i]
		case closes[i] < closes[i-1]:
			running -= volumes[i]
		}
		out[i] = defined(running)
	}
	return out
}

// VWAP is the running Σ(typicalPrice·volume)/Σ(volume), resettable per
// session boundary (intraday VWAP resets daily per spec §4.G).
func VWAP(bars []OHLC, volumes []float64, sessionBoundary []bool) []Value {
	out := make([]Value, len(bars))
	cumPV, cumV := 0.0, 0.0
	for i, b := range bars {
		if sessionBoundary != nil && i < len(sessionBoundary) && sessionBoundary[i] {
			cumPV, cumV = 0, 0
		}
		typical := (b.High + b.Low + b.Close) / 3
		cumPV += typical * volumes[i]
		cumV += volumes[i]
		if cumV > 0 {
			out[i] = defined(cumPV / cumV)
		} else {
			out[i] = undefined()
		}
	}
	return out
}

// MFI(14): standard money-flow index.
func MFI(bars []OHLC, volumes []float64, period int) []Value {
	n := len(bars)
	out := make([]Value, n)
	for i := range out {
		out[i] = undefined()
	}
	if n < period+1 {
		return out
	}
	typical := make([]float64, n)
	for i, b := range bars {
		typical[i] = (b.High + b.Low + b.Close) / 3
	}
	posFlow := make([]float64, n)
	negFlow := make([]float64, n)
	for i := 1; i < n; i++ {
		mf := typical[i] * volumes[i]
		if typical[i] > typical[i-1] {
			posFlow[i] = mf
		} else if typical[i] < typical[i-1] {
			negFlow[i] = mf
		}
	}
	for i := period; i < n; i++ {
		posSum, negSum := 0.0, 0.0
		for j := i - period + 1; j <= i; j++ {
			posSum += posFlow[j]
			negSum += negFlow[j]
		}
		if negSum == 0 {
			out[i] = defined(100)
			continue
		}
		ratio := posSum / negSum
		out[i] = defined(100 - 100/(1+ratio))
	}
	return out
}

// ROC(30): percent rate of change vs the close n bars back.
func ROC(closes []float64, n int) []Value {
	out := make([]Value, len(closes))
	for i := range out {
		if i >= n && closes[i-n] != 0 {
			out[i] = defined((closes[i] - closes[i-n]) / closes[i-n] * 100)
		} else {
			out[i] = undefined()
		}
	}
	return out
}

// BollingerResult carries the middle/upper/lower bands.
type BollingerResult struct {
	Mid, Upper, Lower []Value
}

func Bollinger(closes []float64, n int, stdevMultiple float64) BollingerResult {
	mid := SMA(closes, n)
	res := BollingerResult{
		Mid:   mid,
		Upper: make([]Value, len(closes)),
		Lower: make([]Value, len(closes)),
	}
	for i := range closes {
		if !mid[i].Defined {
			res.Upper[i], res.Lower[i] = undefined(), undefined()
			continue
		}
		window := closes[i-n+1 : i+1]
		sd := stdev(window, mid[i].V)
		res.Upper[i] = defined(mid[i].V + stdevMultiple*sd)
		res.Lower[i] = defined(mid[i].V - stdevMultiple*sd)
	}
	return res
}

func stdev(window []float64, mean float64) float64 {
	sumSq := 0.0
	for _, v := range window {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(window)))
}

// LinRegSlope fits an ordinary least-squares line to the trailing n
// points of series and returns the slope (change per bar) and whether
// the fit is "statistically nonzero" in the loose sense spec §4.H calls
// for: the slope's magnitude relative to the series' own volatility.
func LinRegSlope(series []float64, n int) (slope float64, strong bool, ok bool) {
	if len(series) < n || n < 2 {
		return 0, false, false
	}
	window := series[len(series)-n:]
	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range window {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	nf := float64(n)
	denom := nf*sumX2 - sumX*sumX
	if denom == 0 {
		return 0, false, true
	}
	slope = (nf*sumXY - sumX*sumY) / denom
	mean := sumY / nf
	sd := stdev(window, mean)
	if sd == 0 {
		return slope, slope != 0, true
	}
	// "Strong" when the total drift over the window exceeds one standard
	// deviation of the series — a practical stand-in for statistical
	// significance without a full t-test.
	strong = math.Abs(slope*nf) > sd
	return slope, strong, true
}
