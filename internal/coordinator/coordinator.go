// Package coordinator wires every component of spec §4 into the single
// owning object of §4.K: it holds the watchlist, starts/stops the three
// scanner workers and the dispatcher drain loop, and exposes the narrow
// public API the CLI/UI call against.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/sawpanic/equityrun/internal/alert"
	"github.com/sawpanic/equityrun/internal/clock"
	"github.com/sawpanic/equityrun/internal/config"
	"github.com/sawpanic/equityrun/internal/errkind"
	"github.com/sawpanic/equityrun/internal/marketdata"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/news"
	"github.com/sawpanic/equityrun/internal/ratelimit"
	"github.com/sawpanic/equityrun/internal/scanner"
	"github.com/sawpanic/equityrun/internal/scoring"
	"github.com/sawpanic/equityrun/internal/sentiment"
	"github.com/sawpanic/equityrun/internal/store"
	"github.com/sawpanic/equityrun/internal/watchlist"
)

const failureQuarantineThreshold = 5

// Coordinator implements spec §4.K.
type Coordinator struct {
	cfg    config.Config
	log    zerolog.Logger
	clock  *clock.MarketClock
	wl     *watchlist.Watchlist
	prices marketdata.PriceSource
	news   *news.Aggregator
	engine *scoring.Engine
	bus    *scanner.Bus
	disp   *alert.Dispatcher
	store  store.Store
	metr   *metrics.Registry

	premarket   *scanner.PremarketScanner
	intraday    *scanner.IntradayScanner
	opportunity *scanner.OpportunityScanner

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	failures    map[string]int
	quarantined map[string]bool
}

// Deps bundles everything the Coordinator does not construct itself —
// the I/O-touching adapters, which the binary wires from config/env
// (spec §6.5: credential absence disables the channel, it never blocks
// construction).
type Deps struct {
	Clock    *clock.MarketClock
	Prices   marketdata.PriceSource
	News     *news.Aggregator
	Store    store.Store
	Channels []alert.Channel
}

// New assembles a Coordinator from cfg and Deps, wiring the scanner bus,
// dispatcher, and per-channel rate limits the way spec §5 describes.
func New(cfg config.Config, deps Deps, log zerolog.Logger) *Coordinator {
	metr := metrics.New()
	bus := scanner.NewBus(1024, log)

	disp := alert.NewDispatcher(alert.Config{
		Dedup:    alert.NewMemoryDedup(),
		Cooldown: cfg.Cooldown("default"),
		Log:      log,
	})
	channelLimits := map[string]ratelimit.Config{
		"telegram": {RPS: 20.0 / 60.0, Burst: 5},
		"email":    {RPS: 30.0 / 3600.0, Burst: 2},
		"desktop":  {RPS: 1000, Burst: 1000},
		"audio":    {RPS: 1000, Burst: 1000},
	}
	for _, ch := range deps.Channels {
		if !cfg.ChannelEnabled(ch.Name()) {
			continue
		}
		limitCfg, ok := channelLimits[ch.Name()]
		if !ok {
			limitCfg = ratelimit.Config{RPS: 10, Burst: 5}
		}
		disp.Register(ch, ratelimit.NewLimiter(limitCfg))
	}

	wl := watchlist.New()
	for _, s := range cfg.Watchlist {
		_ = wl.Add(s, watchlist.BucketIntraday, watchlist.BucketPremarket)
	}

	engine := scoring.NewEngine()

	premarket := &scanner.PremarketScanner{
		Clock: deps.Clock, News: deps.News, Prices: deps.Prices, Bus: bus, Log: log, Metrics: metr,
	}
	intraday := scanner.NewIntradayScanner(deps.Clock, wl, deps.Prices, bus, false, log)
	intraday.Metrics = metr
	universe := func() []string { return wl.Sample().Symbols() }
	opportunity := scanner.NewOpportunityScanner(deps.Clock, universe, deps.Prices, deps.News, engine, bus, log)
	opportunity.Metrics = metr

	c := &Coordinator{
		cfg: cfg, log: log, clock: deps.Clock, wl: wl, prices: deps.Prices, news: deps.News,
		engine: engine, bus: bus, disp: disp, store: deps.Store, metr: metr,
		premarket: premarket, intraday: intraday, opportunity: opportunity,
		failures: map[string]int{}, quarantined: map[string]bool{},
	}
	premarket.Quarantine = c
	intraday.Quarantine = c
	opportunity.Quarantine = c
	return c
}

// SetAggressive toggles the faster premarket/intraday tick cadence
// (spec §4.I aggressive-mode intervals) before Start.
func (c *Coordinator) SetAggressive(aggressive bool) {
	c.premarket.Aggressive = aggressive
	c.intraday.Aggressive = aggressive
}

// Start is idempotent: a second call while already running is a no-op.
func (c *Coordinator) Start(ctx context.Context, only ...string) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	enabled := enabledSet(only)
	if enabled["premarket"] {
		c.wg.Add(1)
		go func() { defer c.wg.Done(); c.premarket.Run(runCtx) }()
	}
	if enabled["intraday"] {
		c.wg.Add(1)
		go func() { defer c.wg.Done(); c.intraday.Run(runCtx) }()
	}
	if enabled["opportunity"] {
		c.wg.Add(1)
		go func() { defer c.wg.Done(); c.opportunity.Run(runCtx) }()
	}
	c.wg.Add(1)
	go func() { defer c.wg.Done(); c.drainLoop(runCtx) }()

	if c.store != nil {
		c.wg.Add(1)
		go func() { defer c.wg.Done(); c.retentionLoop(runCtx) }()
	}
	return nil
}

func enabledSet(only []string) map[string]bool {
	all := map[string]bool{"premarket": true, "intraday": true, "opportunity": true}
	if len(only) == 0 {
		return all
	}
	out := map[string]bool{}
	for _, k := range only {
		out[k] = true
	}
	return out
}

// Stop cancels every worker and waits for them to drain, honoring the
// spec §5 30s hard cap.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	c.running = false
	c.mu.Unlock()

	cancel()
	done := make(chan struct{})
	go func() { c.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		c.log.Warn().Msg("coordinator stop exceeded 30s drain cap")
	}
}

// drainLoop consumes the scanner bus and hands candidates to the
// AlertDispatcher, converting a Candidate into an Alert (spec §4.J:
// "the dispatcher consumes candidates from the bus").
func (c *Coordinator) drainLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.bus.Notify():
			for _, cand := range c.bus.Drain() {
				a := candidateToAlert(cand)
				out, err := c.disp.Dispatch(ctx, a)
				if err != nil {
					c.recordFailure(cand.Symbol)
					continue
				}
				if len(out.ChannelsAttempted) == 0 && a.Priority != alert.PriorityLow {
					c.metr.AlertsDropped.WithLabelValues(a.Priority.String()).Inc() // deduped within the cooldown bucket
				} else {
					c.metr.AlertsDispatched.WithLabelValues(a.Priority.String()).Inc()
				}
				c.resetFailure(cand.Symbol)
				if c.store != nil {
					_ = c.store.UpsertAlert(ctx, out)
				}
			}
		}
	}
}

func candidateToAlert(c scanner.Candidate) alert.Alert {
	return alert.Alert{
		Symbol:   c.Symbol,
		Kind:     string(c.Kind),
		Priority: alert.Priority(c.Priority),
		Title:    fmt.Sprintf("%s: %s", c.Symbol, c.Kind),
		Body: fmt.Sprintf("score=%s detected %s ago; reasons=%v",
			humanize.Commaf(c.Score), humanize.RelTime(c.DetectedAt, time.Now(), "", ""), c.Reasons),
		CreatedAt: c.DetectedAt,
	}
}

// retentionLoop runs the §4.C trim policy once per day.
func (c *Coordinator) retentionLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.store.Retain(ctx, 90*24*time.Hour); err != nil {
				c.log.Warn().Err(err).Msg("retention pass failed")
			}
		}
	}
}

func (c *Coordinator) recordFailure(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[symbol]++
	if c.failures[symbol] >= failureQuarantineThreshold {
		c.quarantined[symbol] = true
	}
	c.metr.QuarantinedSyms.Set(float64(len(c.quarantined)))
}

func (c *Coordinator) resetFailure(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failures, symbol)
}

// IsQuarantined, RecordFailure and ResetFailure implement
// scanner.QuarantineTracker, letting each scanner worker share the same
// per-symbol failure counter as the on-demand Score() path and drainLoop.
func (c *Coordinator) IsQuarantined(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quarantined[symbol]
}

func (c *Coordinator) RecordFailure(symbol string) { c.recordFailure(symbol) }

func (c *Coordinator) ResetFailure(symbol string) { c.resetFailure(symbol) }

// AddSymbol adds s to the watchlist, effective on the next scanner tick
// (spec §4.K).
func (c *Coordinator) AddSymbol(s string, buckets ...watchlist.Bucket) error {
	if len(buckets) == 0 {
		buckets = []watchlist.Bucket{watchlist.BucketIntraday, watchlist.BucketPremarket}
	}
	return c.wl.Add(s, buckets...)
}

// RemoveSymbol removes s from the watchlist.
func (c *Coordinator) RemoveSymbol(s string) { c.wl.Remove(s) }

// Score computes a MonthlyScore on demand (spec §4.K), bypassing the
// scanner cadence entirely.
func (c *Coordinator) Score(ctx context.Context, symbol string) (scoring.MonthlyScore, error) {
	c.mu.Lock()
	quarantined := c.quarantined[symbol]
	c.mu.Unlock()
	if quarantined {
		return scoring.MonthlyScore{}, errkind.New(errkind.Internal, "coordinator.Score", fmt.Errorf("symbol %s is quarantined", symbol))
	}

	to := time.Now()
	from := to.AddDate(-1, 0, 0)
	series, err := c.prices.FetchDaily(ctx, symbol, from, to)
	if err != nil {
		return scoring.MonthlyScore{}, err
	}

	var articles []news.Article
	var statuses map[string]news.SourceStatus
	if c.news != nil {
		articles, statuses = c.news.Fetch(ctx)
		_ = statuses
	}
	own := make([]news.Article, 0, len(articles))
	for _, a := range articles {
		if a.Symbol == symbol {
			own = append(own, a)
		}
	}

	start := time.Now()
	ms, err := c.engine.Score(symbol, series, own, nil, scoring.RegimeTilt{})
	c.metr.ScoreDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metr.ScoreFailures.WithLabelValues(string(errkind.KindOf(err))).Inc()
		c.recordFailure(symbol)
		return scoring.MonthlyScore{}, err
	}
	c.resetFailure(symbol)
	if c.store != nil {
		_ = c.store.UpsertScore(ctx, "on_demand", ms)
	}
	return ms, nil
}

// RunOpportunityOnce runs a single synchronous Opportunity Scanner pass
// over the watchlist universe (spec §6.4 "scan once"), bypassing the
// scanner's own 15-minute ticker cadence.
func (c *Coordinator) RunOpportunityOnce(ctx context.Context) []scanner.Candidate {
	return c.opportunity.RunOnce(ctx)
}

// RecentAlerts implements spec §4.K, preferring the durable store when
// available and falling back to the in-memory dispatcher log.
func (c *Coordinator) RecentAlerts(ctx context.Context, since time.Time) ([]alert.Alert, error) {
	if c.store != nil {
		return c.store.RecentAlerts(ctx, since)
	}
	return c.disp.RecentAlerts(since), nil
}

// Health implements spec §4.K's {components:{name:status}} view,
// folding in per-channel circuit state and the quarantine set
// (SPEC_FULL supplement to surface operator-actionable detail).
func (c *Coordinator) Health() map[string]any {
	c.mu.Lock()
	quarantined := make([]string, 0, len(c.quarantined))
	for s := range c.quarantined {
		quarantined = append(quarantined, s)
	}
	running := c.running
	c.mu.Unlock()

	out := map[string]any{
		"running":     running,
		"channels":    c.disp.ChannelHealth(),
		"quarantined": quarantined,
		"phase":       string(c.clock.Phase(time.Now())),
	}
	return out
}

// Metrics exposes the prometheus gatherer for the CLI's /metrics handler.
func (c *Coordinator) Metrics() *metrics.Registry { return c.metr }
