package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/errkind"
	"github.com/sawpanic/equityrun/internal/marketdata"
	"github.com/sawpanic/equityrun/internal/news"
	"github.com/sawpanic/equityrun/internal/sentiment"
)

func uptrendSeries(n int, sym string) marketdata.Series {
	base := time.Now().UTC().AddDate(0, 0, -n)
	out := make(marketdata.Series, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += 0.6
		out[i] = marketdata.Bar{
			Symbol: sym, TS: base.AddDate(0, 0, i),
			Open: price - 0.3, High: price + 0.5, Low: price - 0.6, Close: price,
			Volume: 100000 + float64(i*50),
		}
	}
	return out
}

func TestScoreInsufficientHistoryReturnsHoldNotError(t *testing.T) {
	e := NewEngine()
	series := uptrendSeries(10, "ACME")
	ms, err := e.Score("ACME", series, nil, nil, RegimeTilt{})
	require.NoError(t, err)
	assert.Equal(t, Hold, ms.Recommendation)
	assert.Less(t, ms.Confidence, 0.3)
	assert.Zero(t, ms.Entry)
}

func TestScoreTooFewBarsIsInsufficientHistoryError(t *testing.T) {
	e := NewEngine()
	_, err := e.Score("ACME", marketdata.Series{}, nil, nil, RegimeTilt{})
	require.Error(t, err)
	assert.Equal(t, errkind.InsufficientHistory, errkind.KindOf(err))
}

func TestScoreInvalidSeriesSurfacesInvalidSeriesKind(t *testing.T) {
	e := NewEngine()
	base := time.Now()
	bad := marketdata.Series{
		{Symbol: "ACME", TS: base, Open: 10, High: 11, Low: 9, Close: 10, Volume: 1},
		{Symbol: "ACME", TS: base, Open: 10, High: 11, Low: 9, Close: 10, Volume: 1}, // duplicate ts
	}
	_, err := e.Score("ACME", bad, nil, nil, RegimeTilt{})
	require.Error(t, err)
	assert.Equal(t, errkind.InvalidSeries, errkind.KindOf(err))
}

func TestScoreStrongUptrendYieldsHighTrendComponent(t *testing.T) {
	e := NewEngine()
	series := uptrendSeries(220, "ACME")
	ms, err := e.Score("ACME", series, nil, nil, RegimeTilt{})
	require.NoError(t, err)
	assert.Greater(t, ms.Components.Trend, 50.0)
	assert.GreaterOrEqual(t, ms.Total, 0)
	assert.LessOrEqual(t, ms.Total, 100)
}

func TestScoreNoNewsDefaultsSentimentToNeutralWithReason(t *testing.T) {
	e := NewEngine()
	series := uptrendSeries(220, "ACME")
	ms, err := e.Score("ACME", series, nil, nil, RegimeTilt{})
	require.NoError(t, err)
	assert.Equal(t, 50.0, ms.Components.Sentiment)
	assert.Contains(t, ms.Reasons, "NO_NEWS")
}

func TestScoreEmitsTradeParamsOnlyWhenRiskRewardMeetsThreshold(t *testing.T) {
	e := NewEngine()
	series := uptrendSeries(220, "ACME")
	ms, err := e.Score("ACME", series, nil, nil, RegimeTilt{})
	require.NoError(t, err)
	if ms.Total >= 60 {
		if ms.RiskReward != 0 {
			assert.GreaterOrEqual(t, ms.RiskReward, 2.0)
			assert.NotZero(t, ms.Entry)
		} else {
			assert.Equal(t, Hold, ms.Recommendation)
		}
	}
}

func TestRegimeTiltIsClampedToFivePercentagePoints(t *testing.T) {
	e := NewEngine()
	series := uptrendSeries(220, "ACME")
	extreme := RegimeTilt{Trend: 0.5, Momentum: -0.5}
	ms, err := e.Score("ACME", series, nil, nil, extreme)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ms.Total, 0)
	assert.LessOrEqual(t, ms.Total, 100)
}

func TestScoreWithArticlesShiftsSentimentComponent(t *testing.T) {
	e := NewEngine()
	series := uptrendSeries(220, "ACME")
	bullish := sentiment.Score{Polarity: 0.8, Confidence: 0.9, Label: sentiment.Bullish}
	articles := []news.Article{
		{Symbol: "ACME", Title: "record earnings beat", Body: "strong guidance raised across the board with record gains, analysts upgrade", PublishedAt: series[len(series)-1].TS, Sentiment: &bullish},
	}

	baseline, err := e.Score("ACME", series, nil, nil, RegimeTilt{})
	require.NoError(t, err)
	withNews, err := e.Score("ACME", series, articles, nil, RegimeTilt{})
	require.NoError(t, err)

	assert.Greater(t, withNews.Components.Sentiment, baseline.Components.Sentiment)
	assert.NotContains(t, withNews.Reasons, "NO_NEWS")
}
