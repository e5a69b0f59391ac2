package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/klauspost/compress/zstd"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/sawpanic/equityrun/internal/alert"
	"github.com/sawpanic/equityrun/internal/errkind"
	"github.com/sawpanic/equityrun/internal/marketdata"
	"github.com/sawpanic/equityrun/internal/news"
	"github.com/sawpanic/equityrun/internal/scoring"
	"github.com/sawpanic/equityrun/internal/sentiment"
)

// sqlStore is a single jmoiron/sqlx-backed Store shared by the Postgres
// and SQLite drivers: all queries are written with '?' placeholders and
// rebound per-driver via sqlx.DB.Rebind, matching Eve-flipper's
// schema_version-gated migrate-on-open style (internal/db/db.go) rather
// than a heavier migration framework.
type sqlStore struct {
	db         *sqlx.DB
	archiveDir string
}

// OpenSQLite opens (creating if absent) a WAL-mode SQLite database at
// path, grounded in the teacher pack's Eve-flipper db.Open: pragma
// tuning on the DSN, ping, then migrate. An optional archiveDir enables
// zstd-compressed archival of rows trimmed by Retain (spec §4.C).
func OpenSQLite(path string, archiveDir ...string) (Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, errkind.New(errkind.StoreUnavailable, "store.OpenSQLite", err)
	}
	return open(db, archiveDir...)
}

// OpenPostgres opens a Postgres-backed Store via lib/pq.
func OpenPostgres(dsn string, archiveDir ...string) (Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, errkind.New(errkind.StoreUnavailable, "store.OpenPostgres", err)
	}
	return open(db, archiveDir...)
}

func open(db *sqlx.DB, archiveDir ...string) (Store, error) {
	if err := db.Ping(); err != nil {
		return nil, errkind.New(errkind.StoreUnavailable, "store.open", err)
	}
	s := &sqlStore{db: db}
	if len(archiveDir) > 0 {
		s.archiveDir = archiveDir[0]
	}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// archiveRows dumps rows matching table/col < cutoff as newline-delimited
// JSON, zstd-compressed, before Retain deletes them. Best-effort: a
// failure to archive never blocks the trim itself.
func (s *sqlStore) archiveRows(ctx context.Context, table, col string, cutoff time.Time) error {
	if s.archiveDir == "" {
		return nil
	}
	q := s.db.Rebind(fmt.Sprintf(`SELECT * FROM %s WHERE %s < ?`, table, col))
	rows, err := s.db.QueryxContext(ctx, q, cutoff)
	if err != nil {
		return err
	}
	defer rows.Close()

	if err := os.MkdirAll(s.archiveDir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%d.jsonl.zst", table, cutoff.Unix())
	f, err := os.Create(filepath.Join(s.archiveDir, name))
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	defer enc.Close()

	jw := json.NewEncoder(enc)
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return err
		}
		if err := jw.Encode(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *sqlStore) Close() error { return s.db.Close() }

// migrate applies the versioned schema_version-gated DDL in order,
// matching Eve-flipper's internal/db/db.go migrate() pattern.
func (s *sqlStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return errkind.New(errkind.StoreUnavailable, "store.migrate", err)
	}
	var current int
	row := s.db.QueryRow(`SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`)
	if err := row.Scan(&current); err != nil {
		if err != sql.ErrNoRows {
			return errkind.New(errkind.StoreUnavailable, "store.migrate", err)
		}
		current = 0
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.Exec(m.ddl); err != nil {
			return errkind.New(errkind.StoreUnavailable, fmt.Sprintf("store.migrate.v%d", m.version), err)
		}
		if _, err := s.db.Exec(s.db.Rebind(`INSERT INTO schema_version (version) VALUES (?)`), m.version); err != nil {
			return errkind.New(errkind.StoreUnavailable, "store.migrate", err)
		}
	}
	return nil
}

type migration struct {
	version int
	ddl     string
}

var migrations = []migration{
	{1, `CREATE TABLE IF NOT EXISTS prices (
		symbol TEXT NOT NULL,
		ts TIMESTAMP NOT NULL,
		open DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL,
		low DOUBLE PRECISION NOT NULL,
		close DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (symbol, ts)
	)`},
	{2, `CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		source TEXT NOT NULL,
		url TEXT NOT NULL,
		published_at TIMESTAMP NOT NULL,
		fetched_at TIMESTAMP NOT NULL,
		sentiment_polarity DOUBLE PRECISION,
		sentiment_confidence DOUBLE PRECISION,
		sentiment_label TEXT,
		catalyst_tags TEXT,
		priority INTEGER NOT NULL
	)`},
	{3, `CREATE INDEX IF NOT EXISTS idx_articles_symbol_published ON articles (symbol, published_at DESC)`},
	{4, `CREATE TABLE IF NOT EXISTS scores (
		symbol TEXT NOT NULL,
		as_of TIMESTAMP NOT NULL,
		scan_kind TEXT NOT NULL,
		total INTEGER NOT NULL,
		trend DOUBLE PRECISION NOT NULL,
		momentum DOUBLE PRECISION NOT NULL,
		sentiment DOUBLE PRECISION NOT NULL,
		divergence DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL,
		recommendation TEXT NOT NULL,
		conviction TEXT NOT NULL,
		entry DOUBLE PRECISION NOT NULL,
		stop DOUBLE PRECISION NOT NULL,
		target DOUBLE PRECISION NOT NULL,
		risk_reward DOUBLE PRECISION NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		reasons TEXT,
		PRIMARY KEY (symbol, as_of, scan_kind)
	)`},
	{5, `CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		kind TEXT NOT NULL,
		priority INTEGER NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		channels_attempted TEXT,
		channels_succeeded TEXT,
		ack_at TIMESTAMP
	)`},
	{6, `CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts (created_at DESC)`},
}

// --- PriceStore ---

func (s *sqlStore) UpsertBars(ctx context.Context, bars marketdata.Series) error {
	const q = `INSERT INTO prices (symbol, ts, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, ts) DO UPDATE SET open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close, volume=excluded.volume`
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errkind.New(errkind.StoreUnavailable, "store.UpsertBars", err)
	}
	defer tx.Rollback()
	stmt := tx.Rebind(q)
	for _, b := range bars {
		if _, err := tx.ExecContext(ctx, stmt, b.Symbol, b.TS.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return errkind.New(errkind.StoreUnavailable, "store.UpsertBars", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errkind.New(errkind.StoreUnavailable, "store.UpsertBars", err)
	}
	return nil
}

func (s *sqlStore) RangeBars(ctx context.Context, symbol string, from, to time.Time) (marketdata.Series, error) {
	const q = `SELECT symbol, ts, open, high, low, close, volume FROM prices WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC`
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(q), symbol, from.UTC(), to.UTC())
	if err != nil {
		return nil, errkind.New(errkind.StoreUnavailable, "store.RangeBars", err)
	}
	defer rows.Close()

	var out marketdata.Series
	for rows.Next() {
		var b marketdata.Bar
		if err := rows.Scan(&b.Symbol, &b.TS, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, errkind.New(errkind.StoreUnavailable, "store.RangeBars", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- NewsStore ---

func (s *sqlStore) UpsertArticle(ctx context.Context, a news.Article) error {
	const q = `INSERT INTO articles (id, symbol, title, body, source, url, published_at, fetched_at, sentiment_polarity, sentiment_confidence, sentiment_label, catalyst_tags, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET body=excluded.body, fetched_at=excluded.fetched_at, source=excluded.source,
			sentiment_polarity=excluded.sentiment_polarity, sentiment_confidence=excluded.sentiment_confidence,
			sentiment_label=excluded.sentiment_label, catalyst_tags=excluded.catalyst_tags, priority=excluded.priority`
	var polarity, confidence sql.NullFloat64
	var label sql.NullString
	if a.Sentiment != nil {
		polarity = sql.NullFloat64{Float64: a.Sentiment.Polarity, Valid: true}
		confidence = sql.NullFloat64{Float64: a.Sentiment.Confidence, Valid: true}
		label = sql.NullString{String: string(a.Sentiment.Label), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(q), a.ID, a.Symbol, a.Title, a.Body, a.Source, a.URL,
		a.PublishedAt.UTC(), a.FetchedAt.UTC(), polarity, confidence, label, joinTags(a.CatalystTags), int(a.Priority))
	if err != nil {
		return errkind.New(errkind.StoreUnavailable, "store.UpsertArticle", err)
	}
	return nil
}

func (s *sqlStore) RecentBySymbol(ctx context.Context, symbol string, since time.Time) ([]news.Article, error) {
	const q = `SELECT id, symbol, title, body, source, url, published_at, fetched_at, sentiment_polarity, sentiment_confidence, sentiment_label, catalyst_tags, priority
		FROM articles WHERE symbol = ? AND published_at >= ? ORDER BY published_at DESC`
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(q), symbol, since.UTC())
	if err != nil {
		return nil, errkind.New(errkind.StoreUnavailable, "store.RecentBySymbol", err)
	}
	defer rows.Close()

	var out []news.Article
	for rows.Next() {
		var a news.Article
		var polarity, confidence sql.NullFloat64
		var label sql.NullString
		var tags string
		var priority int
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Title, &a.Body, &a.Source, &a.URL, &a.PublishedAt, &a.FetchedAt,
			&polarity, &confidence, &label, &tags, &priority); err != nil {
			return nil, errkind.New(errkind.StoreUnavailable, "store.RecentBySymbol", err)
		}
		a.Priority = news.Priority(priority)
		a.CatalystTags = splitTags(tags)
		if polarity.Valid {
			a.Sentiment = &sentiment.Score{Polarity: polarity.Float64, Confidence: confidence.Float64, Label: sentiment.Label(label.String)}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- ScoreStore ---

func (s *sqlStore) UpsertScore(ctx context.Context, scanKind string, ms scoring.MonthlyScore) error {
	const q = `INSERT INTO scores (symbol, as_of, scan_kind, total, trend, momentum, sentiment, divergence, volume,
			recommendation, conviction, entry, stop, target, risk_reward, confidence, reasons)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, as_of, scan_kind) DO UPDATE SET total=excluded.total, trend=excluded.trend,
			momentum=excluded.momentum, sentiment=excluded.sentiment, divergence=excluded.divergence,
			volume=excluded.volume, recommendation=excluded.recommendation, conviction=excluded.conviction,
			entry=excluded.entry, stop=excluded.stop, target=excluded.target, risk_reward=excluded.risk_reward,
			confidence=excluded.confidence, reasons=excluded.reasons`
	_, err := s.db.ExecContext(ctx, s.db.Rebind(q), ms.Symbol, ms.AsOf.UTC(), scanKind, ms.Total,
		ms.Components.Trend, ms.Components.Momentum, ms.Components.Sentiment, ms.Components.Divergence, ms.Components.Volume,
		string(ms.Recommendation), string(ms.Conviction), ms.Entry, ms.Stop, ms.Target, ms.RiskReward, ms.Confidence, joinTags(ms.Reasons))
	if err != nil {
		return errkind.New(errkind.StoreUnavailable, "store.UpsertScore", err)
	}
	return nil
}

func (s *sqlStore) LatestScore(ctx context.Context, symbol, scanKind string) (scoring.MonthlyScore, bool, error) {
	const q = `SELECT symbol, as_of, total, trend, momentum, sentiment, divergence, volume, recommendation, conviction,
			entry, stop, target, risk_reward, confidence, reasons
		FROM scores WHERE symbol = ? AND scan_kind = ? ORDER BY as_of DESC LIMIT 1`
	row := s.db.QueryRowxContext(ctx, s.db.Rebind(q), symbol, scanKind)

	var ms scoring.MonthlyScore
	var reasons string
	var rec, conv string
	err := row.Scan(&ms.Symbol, &ms.AsOf, &ms.Total, &ms.Components.Trend, &ms.Components.Momentum,
		&ms.Components.Sentiment, &ms.Components.Divergence, &ms.Components.Volume, &rec, &conv,
		&ms.Entry, &ms.Stop, &ms.Target, &ms.RiskReward, &ms.Confidence, &reasons)
	if err == sql.ErrNoRows {
		return scoring.MonthlyScore{}, false, nil
	}
	if err != nil {
		return scoring.MonthlyScore{}, false, errkind.New(errkind.StoreUnavailable, "store.LatestScore", err)
	}
	ms.Recommendation = scoring.Recommendation(rec)
	ms.Conviction = scoring.Conviction(conv)
	ms.Reasons = splitTags(reasons)
	return ms, true, nil
}

// --- AlertStore ---

func (s *sqlStore) UpsertAlert(ctx context.Context, a alert.Alert) error {
	const q = `INSERT INTO alerts (id, symbol, kind, priority, title, body, created_at, channels_attempted, channels_succeeded, ack_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET channels_attempted=excluded.channels_attempted, channels_succeeded=excluded.channels_succeeded, ack_at=excluded.ack_at`
	var ackAt sql.NullTime
	if a.AckAt != nil {
		ackAt = sql.NullTime{Time: a.AckAt.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(q), a.ID, a.Symbol, a.Kind, int(a.Priority), a.Title, a.Body,
		a.CreatedAt.UTC(), joinTags(a.ChannelsAttempted), joinTags(a.ChannelsSucceeded), ackAt)
	if err != nil {
		return errkind.New(errkind.StoreUnavailable, "store.UpsertAlert", err)
	}
	return nil
}

func (s *sqlStore) Acknowledge(ctx context.Context, id string, ackAt time.Time) error {
	const q = `UPDATE alerts SET ack_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), ackAt.UTC(), id)
	if err != nil {
		return errkind.New(errkind.StoreUnavailable, "store.Acknowledge", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errkind.New(errkind.NotFound, "store.Acknowledge", nil)
	}
	return nil
}

func (s *sqlStore) RecentAlerts(ctx context.Context, since time.Time) ([]alert.Alert, error) {
	const q = `SELECT id, symbol, kind, priority, title, body, created_at, channels_attempted, channels_succeeded, ack_at
		FROM alerts WHERE created_at >= ? ORDER BY created_at DESC`
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(q), since.UTC())
	if err != nil {
		return nil, errkind.New(errkind.StoreUnavailable, "store.RecentAlerts", err)
	}
	defer rows.Close()

	var out []alert.Alert
	for rows.Next() {
		var a alert.Alert
		var priority int
		var attempted, succeeded string
		var ackAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Kind, &priority, &a.Title, &a.Body, &a.CreatedAt, &attempted, &succeeded, &ackAt); err != nil {
			return nil, errkind.New(errkind.StoreUnavailable, "store.RecentAlerts", err)
		}
		a.Priority = alert.Priority(priority)
		a.ChannelsAttempted = splitTags(attempted)
		a.ChannelsSucceeded = splitTags(succeeded)
		if ackAt.Valid {
			t := ackAt.Time
			a.AckAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Retention ---

// Retain implements spec §4.C's retention policy: rows older than
// maxAge are deleted from prices/articles/alerts. scores are retained
// indefinitely (they are small and historically valuable for
// backtesting) — see DESIGN.md.
func (s *sqlStore) Retain(ctx context.Context, maxAge time.Duration) (map[string]int64, error) {
	cutoff := time.Now().Add(-maxAge).UTC()
	out := map[string]int64{}
	for table, col := range map[string]string{"prices": "ts", "articles": "published_at", "alerts": "created_at"} {
		_ = s.archiveRows(ctx, table, col, cutoff) // best-effort; a failed archive must not block the trim
		q := s.db.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE %s < ?`, table, col))
		res, err := s.db.ExecContext(ctx, q, cutoff)
		if err != nil {
			return out, errkind.New(errkind.StoreUnavailable, "store.Retain", err)
		}
		n, _ := res.RowsAffected()
		out[table] = n
	}
	return out, nil
}
