// Package scoring implements the composite ScoringEngine of spec §4.H —
// "the heart of the system". It turns a daily bar series, recent news
// articles, and optional social mentions into a MonthlyScore: five
// weighted components, a recommendation/conviction mapping, and
// risk/reward-gated trade parameters.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/sawpanic/equityrun/internal/errkind"
	"github.com/sawpanic/equityrun/internal/indicators"
	"github.com/sawpanic/equityrun/internal/marketdata"
	"github.com/sawpanic/equityrun/internal/news"
	"github.com/sawpanic/equityrun/internal/sentiment"
)

// Recommendation is the categorical call from §4.H's score table.
type Recommendation string

const (
	StrongBuy     Recommendation = "STRONG_BUY"
	Buy           Recommendation = "BUY"
	ModerateBuy   Recommendation = "MODERATE_BUY"
	Hold          Recommendation = "HOLD"
	ModerateSell  Recommendation = "MODERATE_SELL"
	Sell          Recommendation = "SELL"
	StrongSell    Recommendation = "STRONG_SELL"
)

// Conviction is the confidence band paired with a Recommendation.
type Conviction string

const (
	VeryHigh Conviction = "VERY_HIGH"
	High     Conviction = "HIGH"
	Medium   Conviction = "MEDIUM"
	Low      Conviction = "LOW"
)

// Components holds the five sub-scores, each in [0,100].
type Components struct {
	Trend      float64
	Momentum   float64
	Sentiment  float64
	Divergence float64
	Volume     float64
}

// MonthlyScore is the spec §3 MonthlyScore entity.
type MonthlyScore struct {
	Symbol         string
	AsOf           time.Time
	Total          int
	Components     Components
	Recommendation Recommendation
	Conviction     Conviction
	Entry          float64
	Stop           float64
	Target         float64
	RiskReward     float64
	Confidence     float64
	Reasons        []string
}

// RegimeTilt lets a regime-detection layer nudge the aggregation weights
// by up to ±5 percentage points per component (SPEC_FULL supplement,
// grounded in the teacher's internal/domain/regime weight-tilt pattern).
// The zero value applies no tilt.
type RegimeTilt struct {
	Trend, Momentum, Sentiment, Divergence, Volume float64
}

func (t RegimeTilt) clamp() RegimeTilt {
	c := func(v float64) float64 { return math.Max(-0.05, math.Min(0.05, v)) }
	return RegimeTilt{c(t.Trend), c(t.Momentum), c(t.Sentiment), c(t.Divergence), c(t.Volume)}
}

const (
	weightTrend      = 0.30
	weightMomentum   = 0.20
	weightSentiment  = 0.25
	weightDivergence = 0.15
	weightVolume     = 0.10

	minBarsForConfidence = 60  // below this, §4.H's "ties and edges" HOLD rule applies
	fullHistoryBars      = 200 // indicator confidence saturates here
)

// Engine is the stateless ScoringEngine.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Score implements spec §4.H. articles should already carry Sentiment
// (news.Aggregator does this); social is optional engagement-weighted
// post context used only for the sentiment component.
func (e *Engine) Score(sym string, series marketdata.Series, articles []news.Article, social []sentiment.SocialPost, tilt RegimeTilt) (MonthlyScore, error) {
	if err := series.ValidateSeries(); err != nil {
		return MonthlyScore{}, errkind.New(errkind.InvalidSeries, "scoring.Score", err)
	}
	if len(series) == 0 {
		return MonthlyScore{}, errkind.New(errkind.InsufficientHistory, "scoring.Score", nil)
	}

	asOf := series[len(series)-1].TS
	closes := series.Closes()
	bars := toOHLC(series)
	volumes := volumesOf(series)

	// §4.H "ties and edges": below minBarsForConfidence, never raise —
	// fold straight into a soft HOLD computed from the same (degenerate)
	// components rather than a fabricated constant.
	if len(series) < minBarsForConfidence {
		trend, trendReasons := scoreTrend(closes, bars)
		momentum, momReasons := scoreMomentum(closes)
		sent, sentConf, sentReasons := scoreSentiment(asOf, articles, social)
		divergence, divReasons := scoreDivergence(closes, bars, volumes)
		volume, volReasons := scoreVolume(closes, bars, volumes)
		_ = sentConf

		weightedTotal := weightTrend*trend + weightMomentum*momentum + weightSentiment*sent + weightDivergence*divergence + weightVolume*volume
		totalScore := int(math.Round(weightedTotal))

		ms := MonthlyScore{
			Symbol: sym, AsOf: asOf, Total: totalScore,
			Components:     Components{Trend: trend, Momentum: momentum, Sentiment: sent, Divergence: divergence, Volume: volume},
			Recommendation: Hold, Conviction: Low, Confidence: 0.2,
		}
		ms.Reasons = append(ms.Reasons, "INSUFFICIENT_HISTORY")
		ms.Reasons = append(ms.Reasons, trendReasons...)
		ms.Reasons = append(ms.Reasons, momReasons...)
		ms.Reasons = append(ms.Reasons, sentReasons...)
		ms.Reasons = append(ms.Reasons, divReasons...)
		ms.Reasons = append(ms.Reasons, volReasons...)
		return ms, nil
	}

	tilt = tilt.clamp()

	trend, trendReasons := scoreTrend(closes, bars)
	momentum, momReasons := scoreMomentum(closes)
	sent, sentConf, sentReasons := scoreSentiment(asOf, articles, social)
	divergence, divReasons := scoreDivergence(closes, bars, volumes)
	volume, volReasons := scoreVolume(closes, bars, volumes)

	wTrend := weightTrend + tilt.Trend
	wMomentum := weightMomentum + tilt.Momentum
	wSentiment := weightSentiment + tilt.Sentiment
	wDivergence := weightDivergence + tilt.Divergence
	wVolume := weightVolume + tilt.Volume

	weightedTotal := wTrend*trend + wMomentum*momentum + wSentiment*sent + wDivergence*divergence + wVolume*volume
	totalScore := int(math.Round(weightedTotal))

	barsConf := math.Min(1, float64(len(series))/fullHistoryBars)
	confidence := 0.75*barsConf + 0.25*sentConf

	rec, conv := recommendationFor(totalScore)

	ms := MonthlyScore{
		Symbol: sym, AsOf: asOf, Total: totalScore,
		Components: Components{Trend: trend, Momentum: momentum, Sentiment: sent, Divergence: divergence, Volume: volume},
		Recommendation: rec, Conviction: conv, Confidence: confidence,
	}
	ms.Reasons = append(ms.Reasons, trendReasons...)
	ms.Reasons = append(ms.Reasons, momReasons...)
	ms.Reasons = append(ms.Reasons, sentReasons...)
	ms.Reasons = append(ms.Reasons, divReasons...)
	ms.Reasons = append(ms.Reasons, volReasons...)

	if totalScore >= 60 {
		applyTradeParams(&ms, closes[len(closes)-1], totalScore)
	}
	return ms, nil
}

func recommendationFor(score int) (Recommendation, Conviction) {
	switch {
	case score >= 90:
		return StrongBuy, VeryHigh
	case score >= 75:
		return Buy, High
	case score >= 60:
		return ModerateBuy, Medium
	case score >= 40:
		return Hold, Low
	case score >= 26:
		return ModerateSell, Medium
	case score >= 11:
		return Sell, High
	default:
		return StrongSell, VeryHigh
	}
}

func applyTradeParams(ms *MonthlyScore, entry float64, score int) {
	var kStop, kTarget float64
	switch {
	case score >= 90:
		kStop, kTarget = 0.06, 0.25
	case score >= 85:
		kStop, kTarget = 0.08, 0.20
	default:
		kStop, kTarget = 0.10, 0.15
	}
	stop := entry * (1 - kStop)
	target := entry * (1 + kTarget)
	rr := math.Round((target-entry)/(entry-stop)*100) / 100

	if rr < 2.0 {
		ms.Recommendation, ms.Conviction = Hold, Low
		ms.Reasons = append(ms.Reasons, "RISK_REWARD_BELOW_THRESHOLD")
		return
	}
	ms.Entry, ms.Stop, ms.Target, ms.RiskReward = entry, stop, target, rr
}

func toOHLC(series marketdata.Series) []indicators.OHLC {
	out := make([]indicators.OHLC, len(series))
	for i, b := range series {
		out[i] = indicators.OHLC{High: b.High, Low: b.Low, Close: b.Close}
	}
	return out
}

func volumesOf(series marketdata.Series) []float64 {
	out := make([]float64, len(series))
	for i, b := range series {
		out[i] = b.Volume
	}
	return out
}

func last(v []indicators.Value) indicators.Value {
	if len(v) == 0 {
		return indicators.Value{}
	}
	return v[len(v)-1]
}

func sortedCopy(vals []float64) []float64 {
	out := make([]float64, len(vals))
	copy(out, vals)
	sort.Float64s(out)
	return out
}

func avg(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func tail(vals []float64, n int) []float64 {
	if n > len(vals) {
		n = len(vals)
	}
	return vals[len(vals)-n:]
}
