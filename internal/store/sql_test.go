package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/alert"
	"github.com/sawpanic/equityrun/internal/errkind"
	"github.com/sawpanic/equityrun/internal/marketdata"
	"github.com/sawpanic/equityrun/internal/news"
	"github.com/sawpanic/equityrun/internal/scoring"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	dir := t.TempDir()
	s, err := OpenSQLite(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertBarsIsIdempotentOnSymbolTS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)

	bars := marketdata.Series{{Symbol: "ACME", TS: ts, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000}}
	require.NoError(t, s.UpsertBars(ctx, bars))

	bars[0].Close = 10.8
	require.NoError(t, s.UpsertBars(ctx, bars))

	out, err := s.RangeBars(ctx, "ACME", ts.Add(-time.Hour), ts.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 10.8, out[0].Close)
}

func TestRangeBarsFiltersByWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC)

	var bars marketdata.Series
	for i := 0; i < 5; i++ {
		ts := base.AddDate(0, 0, i)
		bars = append(bars, marketdata.Bar{Symbol: "ACME", TS: ts, Open: 10, High: 11, Low: 9, Close: 10, Volume: 100})
	}
	require.NoError(t, s.UpsertBars(ctx, bars))

	out, err := s.RangeBars(ctx, "ACME", base.AddDate(0, 0, 1), base.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, out, 3)
}

func TestUpsertArticleMergesOnID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := news.Article{ID: "abc", Symbol: "ACME", Title: "first", Source: "rss", PublishedAt: now, FetchedAt: now}
	require.NoError(t, s.UpsertArticle(ctx, a))

	a.Body = "updated body"
	a.FetchedAt = now.Add(time.Minute)
	require.NoError(t, s.UpsertArticle(ctx, a))

	out, err := s.RecentBySymbol(ctx, "ACME", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "updated body", out[0].Body)
}

func TestLatestScoreReturnsMostRecentAsOf(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	older := time.Date(2026, 1, 1, 16, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 2, 1, 16, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertScore(ctx, "opportunity", scoring.MonthlyScore{Symbol: "ACME", AsOf: older, Total: 50, Recommendation: scoring.Hold, Conviction: scoring.Low}))
	require.NoError(t, s.UpsertScore(ctx, "opportunity", scoring.MonthlyScore{Symbol: "ACME", AsOf: newer, Total: 80, Recommendation: scoring.Buy, Conviction: scoring.High}))

	got, ok, err := s.LatestScore(ctx, "ACME", "opportunity")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 80, got.Total)
	require.Equal(t, scoring.Buy, got.Recommendation)
}

func TestLatestScoreMissingReturnsFalseNotError(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.LatestScore(context.Background(), "NOPE", "opportunity")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAlertAcknowledgeMutatesOnlyAckAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := alert.Alert{ID: "a1", Symbol: "ACME", Kind: "OPPORTUNITY", Priority: alert.PriorityHigh, Title: "t", Body: "b", CreatedAt: now}
	require.NoError(t, s.UpsertAlert(ctx, a))

	ackAt := now.Add(time.Minute)
	require.NoError(t, s.Acknowledge(ctx, "a1", ackAt))

	out, err := s.RecentAlerts(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].AckAt)
	require.WithinDuration(t, ackAt, *out[0].AckAt, time.Second)
}

func TestAcknowledgeUnknownIDReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.Acknowledge(context.Background(), "missing", time.Now())
	require.Error(t, err)
	require.Equal(t, errkind.NotFound, errkind.KindOf(err))
}

func TestRetainDeletesOlderThanMaxAge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-100 * 24 * time.Hour)
	recent := time.Now().Add(-time.Hour)

	require.NoError(t, s.UpsertBars(ctx, marketdata.Series{{Symbol: "A", TS: old, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}}))
	require.NoError(t, s.UpsertBars(ctx, marketdata.Series{{Symbol: "A", TS: recent, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}}))

	removed, err := s.Retain(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed["prices"])

	out, err := s.RangeBars(ctx, "A", old.Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestRetainArchivesTrimmedRowsAsCompressedJSONL(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSQLite(filepath.Join(dir, "test.db"), filepath.Join(dir, "archive"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	old := time.Now().Add(-100 * 24 * time.Hour)
	require.NoError(t, s.UpsertBars(ctx, marketdata.Series{{Symbol: "A", TS: old, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}}))

	_, err = s.Retain(ctx, 90*24*time.Hour)
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "archive"))
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}
