package scanner

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/equityrun/internal/clock"
	"github.com/sawpanic/equityrun/internal/marketdata"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/news"
	"github.com/sawpanic/equityrun/internal/scoring"
	"github.com/sawpanic/equityrun/internal/sentiment"
)

// OpportunityScanner implements spec §4.I's Opportunity Scanner: a
// bounded worker pool walking the full ticker universe, scheduled to
// avoid competing with the Intraday scanner.
type OpportunityScanner struct {
	Clock    *clock.MarketClock
	Universe func() []string
	Prices   marketdata.PriceSource
	News     *news.Aggregator
	Engine   *scoring.Engine
	Bus      *Bus
	Workers  int // default 10
	Log      zerolog.Logger

	Quarantine QuarantineTracker
	Metrics    *metrics.Registry
}

func NewOpportunityScanner(c *clock.MarketClock, universe func() []string, prices marketdata.PriceSource, agg *news.Aggregator, engine *scoring.Engine, bus *Bus, log zerolog.Logger) *OpportunityScanner {
	return &OpportunityScanner{Clock: c, Universe: universe, Prices: prices, News: agg, Engine: engine, Bus: bus, Workers: 10, Log: log}
}

// Run activates on a coarse interval; each tick only does work when the
// clock is CLOSED or AFTERHOURS (spec §4.I: "work scheduled when CLOSED
// or AFTERHOURS to avoid competing with Intraday").
func (s *OpportunityScanner) Run(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			phase := s.Clock.Phase(time.Now())
			if phase != clock.Closed && phase != clock.Afterhours {
				continue
			}
			s.tick(ctx)
		}
	}
}

func (s *OpportunityScanner) tick(ctx context.Context) {
	start := time.Now()
	s.forEachSymbol(ctx, func(sym string) {
		cand, ok := s.evaluate(ctx, sym)
		if !ok {
			return
		}
		s.Bus.Publish(cand)
		if s.Metrics != nil {
			s.Metrics.CandidatesEmit.WithLabelValues("opportunity", string(cand.Kind)).Inc()
		}
	})
	if s.Metrics != nil {
		s.Metrics.ScanTicks.WithLabelValues("opportunity").Inc()
		s.Metrics.ScanDuration.WithLabelValues("opportunity").Observe(time.Since(start).Seconds())
	}
}

// RunOnce performs a single synchronous opportunity pass over the full
// universe and returns every candidate that passed the filter, for the
// CLI's "scan once" mode (spec §6.4) — unlike tick, it never touches
// the bus.
func (s *OpportunityScanner) RunOnce(ctx context.Context) []Candidate {
	var mu sync.Mutex
	var out []Candidate
	s.forEachSymbol(ctx, func(sym string) {
		cand, ok := s.evaluate(ctx, sym)
		if !ok {
			return
		}
		mu.Lock()
		out = append(out, cand)
		mu.Unlock()
	})
	return out
}

// forEachSymbol fans fn out over the universe across a bounded worker
// pool and blocks until every symbol has been visited.
func (s *OpportunityScanner) forEachSymbol(ctx context.Context, fn func(sym string)) {
	symbols := s.Universe()
	if len(symbols) == 0 {
		return
	}
	workers := s.Workers
	if workers <= 0 {
		workers = 10
	}

	jobs := make(chan string, len(symbols))
	for _, sym := range symbols {
		jobs <- sym
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				fn(sym)
			}
		}()
	}
	wg.Wait()
}

func (s *OpportunityScanner) evaluate(ctx context.Context, sym string) (Candidate, bool) {
	if s.Quarantine != nil && s.Quarantine.IsQuarantined(sym) {
		return Candidate{}, false
	}

	to := time.Now()
	from := to.AddDate(-1, 0, 0) // ~250 trading days of lookback, past the 200-bar confidence mark
	daily, err := s.Prices.FetchDaily(ctx, sym, from, to)
	if err != nil || len(daily) < 60 {
		if s.Quarantine != nil {
			s.Quarantine.RecordFailure(sym)
		}
		return Candidate{}, false
	}

	var articles []news.Article
	if s.News != nil {
		all, _ := s.News.Fetch(ctx)
		for _, a := range all {
			if a.Symbol == sym {
				articles = append(articles, a)
			}
		}
	}

	ms, err := s.Engine.Score(sym, daily, articles, []sentiment.SocialPost{}, scoring.RegimeTilt{})
	if err != nil {
		if s.Quarantine != nil {
			s.Quarantine.RecordFailure(sym)
		}
		return Candidate{}, false
	}
	if s.Quarantine != nil {
		s.Quarantine.ResetFailure(sym)
	}

	volumeRatio := volumeRatioOf(daily)
	vol := annualizedVolatility(daily)

	if ms.Total < 85 || ms.RiskReward < 2.5 || volumeRatio < 1.3 || vol < 0.15 || vol > 0.80 {
		return Candidate{}, false
	}
	if ms.Components.Trend < 70 || ms.Components.Momentum < 70 || ms.Components.Sentiment < 70 ||
		ms.Components.Divergence < 70 || ms.Components.Volume < 70 {
		return Candidate{}, false
	}

	return Candidate{
		Symbol: sym, Kind: KindOpportunity, Score: float64(ms.Total), Priority: PriorityMedium,
		Reasons: ms.Reasons, DetectedAt: time.Now(), CorrelationID: NewCorrelationID(), Payload: ms,
	}, true
}

func volumeRatioOf(series marketdata.Series) float64 {
	volumes := make([]float64, len(series))
	for i, b := range series {
		volumes[i] = b.Volume
	}
	last20 := avg(tail(volumes, 20))
	last60 := avg(tail(volumes, 60))
	if last60 == 0 {
		return 0
	}
	return last20 / last60
}

// annualizedVolatility is the stdev of daily log returns scaled by √252.
func annualizedVolatility(series marketdata.Series) float64 {
	if len(series) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		prev, curr := series[i-1].Close, series[i].Close
		if prev <= 0 {
			continue
		}
		returns = append(returns, math.Log(curr/prev))
	}
	if len(returns) == 0 {
		return 0
	}
	mean := avg(returns)
	var sumSq float64
	for _, r := range returns {
		d := r - mean
		sumSq += d * d
	}
	sd := math.Sqrt(sumSq / float64(len(returns)))
	return sd * math.Sqrt(252)
}
