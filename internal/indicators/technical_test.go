package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closesUp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestSMAUndefinedBeforeWindowFills(t *testing.T) {
	closes := closesUp(5, 10, 1) // 10..14
	sma := SMA(closes, 3)
	assert.False(t, sma[0].Defined)
	assert.False(t, sma[1].Defined)
	require.True(t, sma[2].Defined)
	assert.InDelta(t, 11.0, sma[2].V, 1e-9) // mean(10,11,12)
	assert.InDelta(t, 13.0, sma[4].V, 1e-9) // mean(12,13,14)
}

func TestEMASeedsWithSMA(t *testing.T) {
	closes := closesUp(10, 10, 1)
	ema := EMA(closes, 3)
	for i := 0; i < 2; i++ {
		assert.False(t, ema[i].Defined)
	}
	require.True(t, ema[2].Defined)
	assert.InDelta(t, 11.0, ema[2].V, 1e-9) // SMA seed of first 3
}

func TestRSIAllGainsIsHundred(t *testing.T) {
	closes := closesUp(20, 10, 1) // strictly increasing
	rsi := RSI(closes, 14)
	require.True(t, rsi[14].Defined)
	assert.InDelta(t, 100.0, rsi[14].V, 1e-6)
}

func TestRSIUndefinedWithoutEnoughHistory(t *testing.T) {
	closes := closesUp(5, 10, 1)
	rsi := RSI(closes, 14)
	for _, v := range rsi {
		assert.False(t, v.Defined)
	}
}

func TestMACDHistogramDefinedAfterSlowWindow(t *testing.T) {
	closes := closesUp(60, 10, 0.5)
	res := MACD(closes, 12, 26, 9)
	assert.False(t, res.MACD[24].Defined)
	require.True(t, res.MACD[25].Defined)
	// Signal/Histogram need signalPeriod more bars past MACD's own start.
	assert.True(t, res.Signal[len(closes)-1].Defined)
	assert.True(t, res.Histogram[len(closes)-1].Defined)
}

func TestATRUndefinedBeforePeriod(t *testing.T) {
	bars := make([]OHLC, 10)
	for i := range bars {
		bars[i] = OHLC{High: 12, Low: 8, Close: 10}
	}
	atr := ATR(bars, 14)
	for _, v := range atr {
		assert.False(t, v.Defined)
	}
}

func TestOBVAccumulatesSignedVolume(t *testing.T) {
	closes := []float64{10, 11, 10, 10, 12}
	volumes := []float64{0, 100, 50, 0, 200}
	obv := OBV(closes, volumes)
	require.True(t, obv[4].Defined)
	// +100 (up), -50 (down), +0 (flat), +200 (up) = 250
	assert.InDelta(t, 250.0, obv[4].V, 1e-9)
}

func TestVWAPResetsAtSessionBoundary(t *testing.T) {
	bars := []OHLC{{High: 11, Low: 9, Close: 10}, {High: 21, Low: 19, Close: 20}}
	volumes := []float64{100, 100}
	boundary := []bool{false, true}
	vwap := VWAP(bars, volumes, boundary)
	require.True(t, vwap[1].Defined)
	assert.InDelta(t, 20.0, vwap[1].V, 1e-9) // reset, so only second bar contributes
}

func TestROCUndefinedBeforeLookback(t *testing.T) {
	closes := closesUp(10, 100, 1)
	roc := ROC(closes, 30)
	for _, v := range roc {
		assert.False(t, v.Defined)
	}
}

func TestBollingerBandsBracketMean(t *testing.T) {
	closes := []float64{10, 11, 9, 10, 11, 9, 10, 11, 9, 10, 20}
	bb := Bollinger(closes, 10, 2)
	require.True(t, bb.Mid[9].Defined)
	assert.True(t, bb.Upper[9].V > bb.Mid[9].V)
	assert.True(t, bb.Lower[9].V < bb.Mid[9].V)
}

func TestLinRegSlopeDetectsUptrend(t *testing.T) {
	closes := closesUp(30, 10, 1)
	slope, strong, ok := LinRegSlope(closes, 20)
	require.True(t, ok)
	assert.InDelta(t, 1.0, slope, 1e-9)
	assert.True(t, strong)
}

func TestLinRegSlopeInsufficientHistory(t *testing.T) {
	_, _, ok := LinRegSlope([]float64{1, 2, 3}, 20)
	assert.False(t, ok)
}
