// Package store implements the spec §4.C/§6.3 persistence layer: four
// keyed, upsert-on-key tables (prices, articles, scores, alerts) behind
// a single Store interface, with a Postgres backend (jmoiron/sqlx +
// lib/pq) for production and an embedded SQLite backend
// (modernc.org/sqlite) for offline/single-node runs, matching the
// teacher pack's migration-on-open style (Eve-flipper's internal/db).
package store

import (
	"context"
	"time"

	"github.com/sawpanic/equityrun/internal/alert"
	"github.com/sawpanic/equityrun/internal/marketdata"
	"github.com/sawpanic/equityrun/internal/news"
	"github.com/sawpanic/equityrun/internal/scoring"
)

// PriceStore keys rows by (symbol, ts).
type PriceStore interface {
	UpsertBars(ctx context.Context, bars marketdata.Series) error
	RangeBars(ctx context.Context, symbol string, from, to time.Time) (marketdata.Series, error)
}

// NewsStore keys rows by id, with a secondary (symbol, publishedAt DESC)
// index for range queries.
type NewsStore interface {
	UpsertArticle(ctx context.Context, a news.Article) error
	RecentBySymbol(ctx context.Context, symbol string, since time.Time) ([]news.Article, error)
}

// ScoreStore keys rows by (symbol, asOf, scanKind).
type ScoreStore interface {
	UpsertScore(ctx context.Context, scanKind string, ms scoring.MonthlyScore) error
	LatestScore(ctx context.Context, symbol, scanKind string) (scoring.MonthlyScore, bool, error)
}

// AlertStore keys rows by id; acknowledgement mutates only ackAt (spec §3
// lifecycle rule).
type AlertStore interface {
	UpsertAlert(ctx context.Context, a alert.Alert) error
	Acknowledge(ctx context.Context, id string, ackAt time.Time) error
	RecentAlerts(ctx context.Context, since time.Time) ([]alert.Alert, error)
}

// Store is the full persistence surface the Coordinator owns.
type Store interface {
	PriceStore
	NewsStore
	ScoreStore
	AlertStore
	// Retain trims rows older than N days per table (spec §4.C, default
	// 90) and returns the number of rows removed per table.
	Retain(ctx context.Context, maxAge time.Duration) (map[string]int64, error)
	Close() error
}
