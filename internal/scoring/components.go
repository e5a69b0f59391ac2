package scoring

import (
	"math"
	"time"

	"github.com/sawpanic/equityrun/internal/indicators"
	"github.com/sawpanic/equityrun/internal/news"
	"github.com/sawpanic/equityrun/internal/sentiment"
)

// scoreTrend implements §4.H's Trend component: MA alignment (40),
// ADX strength (30), monthly direction (30).
func scoreTrend(closes []float64, bars []indicators.OHLC) (float64, []string) {
	var reasons []string

	sma20 := last(indicators.SMA(closes, 20))
	sma50 := last(indicators.SMA(closes, 50))
	sma200 := last(indicators.SMA(closes, 200))
	closeNow := closes[len(closes)-1]

	adx := indicators.ADX(bars, 14)
	plusDI, minusDI, adxVal := last(adx.PlusDI), last(adx.MinusDI), last(adx.ADX)
	bullish := !plusDI.Defined || !minusDI.Defined || plusDI.V >= minusDI.V

	alignment := maAlignmentScore(closeNow, sma20, sma50, sma200, bullish)

	var adxScore float64
	switch {
	case adxVal.Defined && adxVal.V >= 50:
		adxScore = 30
	case adxVal.Defined && adxVal.V >= 25:
		adxScore = 20
	case adxVal.Defined && adxVal.V >= 15:
		adxScore = 10
	}

	slope, strong, ok := indicators.LinRegSlope(closes, 21)
	var directionScore float64
	switch {
	case !ok || slope == 0:
		directionScore = 10
	case slope > 0 && strong:
		directionScore = 30
	case slope > 0:
		directionScore = 15
	default:
		directionScore = 0
	}

	total := alignment + adxScore + directionScore
	if !bullish {
		reasons = append(reasons, "TREND_BEARISH_DIRECTION")
	}
	return total, reasons
}

func maAlignmentScore(close float64, sma20, sma50, sma200 indicators.Value, bullish bool) float64 {
	v20, v50, v200 := sma20.OrElse(math.NaN()), sma50.OrElse(math.NaN()), sma200.OrElse(math.NaN())
	gt := func(a, b float64) bool {
		if math.IsNaN(a) || math.IsNaN(b) {
			return false
		}
		if bullish {
			return a > b
		}
		return a < b
	}

	r1 := gt(close, v20)
	r2 := gt(v20, v50)
	r3 := gt(v50, v200)
	r4 := gt(close, v200)

	count := 0
	for _, r := range []bool{r1, r2, r3, r4} {
		if r {
			count++
		}
	}

	switch {
	case r1 && r2 && r3:
		return 40
	case count >= 3:
		return 25
	case r2:
		return 15
	default:
		return 0
	}
}

// scoreMomentum implements §4.H's Momentum component: RSI (35), MACD (35),
// ROC(30) (30).
func scoreMomentum(closes []float64) (float64, []string) {
	rsiVal := last(indicators.RSI(closes, 14))
	var rsiScore float64
	if rsiVal.Defined {
		v := rsiVal.V
		switch {
		case v >= 40 && v <= 60:
			rsiScore = 35
		case (v > 30 && v < 40) || (v > 60 && v < 70):
			rsiScore = 25
		case (v >= 25 && v <= 30) || (v >= 70 && v <= 75):
			rsiScore = 15
		}
	}

	macd := indicators.MACD(closes, 12, 26, 9)
	macdScore := macdMomentumScore(macd.Histogram)

	roc := last(indicators.ROC(closes, 30))
	var rocScore float64
	if roc.Defined {
		switch {
		case roc.V >= 15:
			rocScore = 30
		case roc.V >= 5:
			rocScore = 20
		case roc.V >= -5:
			rocScore = 10
		}
	}

	return rsiScore + macdScore + rocScore, nil
}

func macdMomentumScore(histogram []indicators.Value) float64 {
	n := len(histogram)
	if n == 0 || !histogram[n-1].Defined {
		return 0
	}
	curr := histogram[n-1].V
	rising := n >= 2 && histogram[n-2].Defined && curr > histogram[n-2].V
	switch {
	case curr > 0 && rising:
		return 35
	case curr > 0:
		return 25
	case curr < 0 && rising:
		return 15
	default:
		return 0
	}
}

// scoreSentiment implements §4.H's Sentiment component: recency- and
// length-weighted news polarity, engagement-weighted social polarity,
// blended 60/40 (renormalized if one side is absent), mapped to
// [0,100] with a log-scaled article-volume boost.
func scoreSentiment(asOf time.Time, articles []news.Article, social []sentiment.SocialPost) (score float64, confidence float64, reasons []string) {
	newsPolarity, newsPresent, articleCount := newsPolarityOf(articles, asOf)
	socialPolarity, socialPresent := socialPolarityFromPosts(social)

	if !newsPresent && !socialPresent {
		return 50, 0, []string{"NO_NEWS"}
	}

	var p float64
	switch {
	case newsPresent && socialPresent:
		p = 0.6*newsPolarity + 0.4*socialPolarity
	case newsPresent:
		p = newsPolarity
	default:
		p = socialPolarity
	}

	base := 50 * (p + 1)
	boost := math.Min(10, math.Log10(1+float64(articleCount)))
	score = math.Min(100, base+boost)
	confidence = math.Min(1, float64(articleCount)/30)
	return score, confidence, reasons
}

func newsPolarityOf(articles []news.Article, asOf time.Time) (polarity float64, present bool, count int) {
	var weightedSum, weightSum float64
	for _, a := range articles {
		if a.Sentiment == nil {
			continue
		}
		ageDays := asOf.Sub(a.PublishedAt).Hours() / 24
		if ageDays > 30 || ageDays < 0 {
			continue // outside the 30-day sentiment window (spec §4.H)
		}
		recency := math.Max(0, 1-ageDays/30)
		lengthFactor := math.Min(1, float64(len(a.Body))/500)
		w := recency * lengthFactor
		if w == 0 {
			w = 0.01 // still within window but negligible weight; keep it countable
		}
		weightedSum += w * a.Sentiment.Polarity
		weightSum += w
		count++
	}
	if weightSum == 0 {
		return 0, count > 0, count
	}
	return weightedSum / weightSum, true, count
}

var socialAnalyzer = sentiment.NewAnalyzer()

func socialPolarityFromPosts(posts []sentiment.SocialPost) (float64, bool) {
	if len(posts) == 0 {
		return 0, false
	}
	var weightedSum, weightSum float64
	for _, p := range posts {
		w := 1 + p.Engagement
		weightedSum += w * socialAnalyzer.Score(p.Text, nil).Polarity
		weightSum += w
	}
	if weightSum == 0 {
		return 0, false
	}
	return weightedSum / weightSum, true
}

// scoreDivergence implements §4.H's Divergence component: price-vs-RSI
// (40), price-vs-MACD-histogram (30), price-vs-OBV (30), each evaluated
// over the trailing 40 bars by comparing swing lows/highs in the first
// and second halves of the window.
func scoreDivergence(closes []float64, bars []indicators.OHLC, volumes []float64) (float64, []string) {
	window := 40
	if len(closes) < window {
		window = len(closes)
	}
	priceWin := tail(closes, window)

	rsi := indicators.RSI(closes, 14)
	rsiWin := tailValues(rsi, window)
	priceRSI := divergenceScore(priceWin, rsiWin, 40)

	macd := indicators.MACD(closes, 12, 26, 9)
	macdWin := tailValues(macd.Histogram, window)
	priceMACD := divergenceScore(priceWin, macdWin, 30)

	obv := indicators.OBV(closes, volumes)
	obvWin := tailValues(obv, window)
	priceOBV := divergenceScore(priceWin, obvWin, 30)

	return priceRSI + priceMACD + priceOBV, nil
}

func tailValues(vals []indicators.Value, n int) []indicators.Value {
	if n > len(vals) {
		n = len(vals)
	}
	return vals[len(vals)-n:]
}

// divergenceScore compares the minimum and the maximum price in each half
// of the window against the indicator's value at that same index: a lower
// price low paired with a higher indicator low is bullish divergence (full
// points); a higher price high paired with a lower indicator high is
// bearish divergence and scores zero; anything else is "no
// divergence" (62.5% of points, per §4.H's 40/30/30 point/no-divergence
// ratio of 25 out of 40 generalized to each check's own point budget).
func divergenceScore(price []float64, indicator []indicators.Value, points float64) float64 {
	n := len(price)
	if n < 4 {
		return points * 0.625
	}
	mid := n / 2
	firstPriceIdx := argmin(price[:mid])
	secondPriceIdx := mid + argmin(price[mid:])

	firstInd := indicator[firstPriceIdx]
	secondInd := indicator[secondPriceIdx]
	if !firstInd.Defined || !secondInd.Defined {
		return points * 0.625
	}

	lowerLow := price[secondPriceIdx] < price[firstPriceIdx]
	higherIndLow := secondInd.V > firstInd.V

	firstHighIdx, secondHighIdx := 0, mid
	for i, v := range price {
		if i < mid && v > price[firstHighIdx] {
			firstHighIdx = i
		}
		if i >= mid && v > price[secondHighIdx] {
			secondHighIdx = i
		}
	}
	firstIndHigh, secondIndHigh := indicator[firstHighIdx], indicator[secondHighIdx]
	higherHigh := price[secondHighIdx] > price[firstHighIdx]
	lowerIndHigh := firstIndHigh.Defined && secondIndHigh.Defined && secondIndHigh.V < firstIndHigh.V

	switch {
	case lowerLow && higherIndLow:
		return points // bullish divergence
	case higherHigh && lowerIndHigh:
		return 0 // bearish divergence
	default:
		return points * 0.625 // no divergence
	}
}

func argmin(vals []float64) int {
	best := 0
	for i, v := range vals {
		if v < vals[best] {
			best = i
		}
	}
	return best
}

// scoreVolume implements §4.H's Volume component: volume trend (40),
// VWAP position (30), MFI (30).
func scoreVolume(closes []float64, bars []indicators.OHLC, volumes []float64) (float64, []string) {
	last5 := avg(tail(volumes, 5))
	last20 := avg(tail(volumes, 20))
	var trendScore float64
	if last20 > 0 {
		ratio := last5 / last20
		switch {
		case ratio >= 1.5:
			trendScore = 40
		case ratio >= 1.2:
			trendScore = 25
		case ratio >= 0.9:
			trendScore = 10
		}
	}

	boundary := make([]bool, len(bars))
	if len(boundary) > 0 {
		boundary[0] = true
	}
	vwap := last(indicators.VWAP(bars, volumes, boundary))
	closeNow := closes[len(closes)-1]
	var vwapScore float64
	if vwap.Defined && vwap.V > 0 {
		distance := (closeNow - vwap.V) / vwap.V
		switch {
		case closeNow > vwap.V && distance > 0.01:
			vwapScore = 30
		case closeNow > vwap.V:
			vwapScore = 20
		}
	}

	mfi := last(indicators.MFI(bars, volumes, 14))
	var mfiScore float64
	if mfi.Defined {
		switch {
		case mfi.V >= 40 && mfi.V <= 60:
			mfiScore = 30
		case mfi.V >= 20 && mfi.V <= 80:
			mfiScore = 15
		}
	}

	return trendScore + vwapScore + mfiScore, nil
}
