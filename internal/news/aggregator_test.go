package news

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/sentiment"
)

type stubSource struct {
	name string
	raws []RawArticle
	err  error
}

func (s stubSource) Name() string { return s.name }
func (s stubSource) Fetch(ctx context.Context) ([]RawArticle, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.raws, nil
}

func TestFetchMergesAcrossSourcesAndIsolatesFailures(t *testing.T) {
	good := stubSource{name: "rss-a", raws: []RawArticle{
		{Title: "ACME wins major contract", Body: "Shares of $ACME rallied", URL: "https://a/1", PublishedAt: time.Now()},
	}}
	bad := stubSource{name: "rss-b", err: errors.New("feed unreachable")}

	agg := NewAggregator([]Source{good, bad}, []string{"ACME"}, sentiment.NewAnalyzer())
	articles, status := agg.Fetch(context.Background())

	require.Len(t, articles, 1)
	assert.Equal(t, "ACME", articles[0].Symbol)
	assert.True(t, status["rss-a"].OK)
	assert.False(t, status["rss-b"].OK)
}

func TestFetchDedupsByIDAcrossSources(t *testing.T) {
	shared := RawArticle{Title: "Merger announced", Body: "big deal", URL: "https://shared/1", PublishedAt: time.Now()}
	s1 := stubSource{name: "feed-1", raws: []RawArticle{shared}}
	s2 := stubSource{name: "feed-2", raws: []RawArticle{shared}}

	agg := NewAggregator([]Source{s1, s2}, nil, sentiment.NewAnalyzer())
	articles, _ := agg.Fetch(context.Background())
	require.Len(t, articles, 1)
	assert.Contains(t, articles[0].Source, "feed-1")
	assert.Contains(t, articles[0].Source, "feed-2")
}

func TestCatalystTaggingPicksHighestPriorityGroup(t *testing.T) {
	tags, priority := tagCatalysts("Company files Chapter 11 amid weak earnings", "guidance also cut")
	assert.Equal(t, PriorityCritical, priority)
	assert.Contains(t, tags, "chapter 11")
}

func TestPrefersCashtaggedSymbolOverPlainMention(t *testing.T) {
	raw := RawArticle{Title: "ACME and BETA both moved today, but $BETA led gains", Body: "", URL: "https://x/1", PublishedAt: time.Now()}
	agg := NewAggregator([]Source{stubSource{name: "s", raws: []RawArticle{raw}}}, []string{"ACME", "BETA"}, sentiment.NewAnalyzer())
	articles, _ := agg.Fetch(context.Background())
	require.Len(t, articles, 1)
	assert.Equal(t, "BETA", articles[0].Symbol)
}

func TestUnresolvedSymbolLeftEmpty(t *testing.T) {
	raw := RawArticle{Title: "General market commentary", Body: "no tickers here", URL: "https://x/2", PublishedAt: time.Now()}
	agg := NewAggregator([]Source{stubSource{name: "s", raws: []RawArticle{raw}}}, []string{"ACME"}, sentiment.NewAnalyzer())
	articles, _ := agg.Fetch(context.Background())
	require.Len(t, articles, 1)
	assert.Empty(t, articles[0].Symbol)
}

func TestComputeIDFallsBackWithoutURL(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	id1 := ComputeID("", "source-a", "same title", ts)
	id2 := ComputeID("", "source-a", "same title", ts)
	id3 := ComputeID("", "source-a", "different title", ts)
	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
}
