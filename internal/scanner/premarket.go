package scanner

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/equityrun/internal/clock"
	"github.com/sawpanic/equityrun/internal/marketdata"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/news"
)

// PremarketScanner implements spec §4.I's Premarket Catalyst Scanner.
type PremarketScanner struct {
	Clock      *clock.MarketClock
	News       *news.Aggregator
	Prices     marketdata.PriceSource
	Bus        *Bus
	Aggressive bool
	Log        zerolog.Logger

	// Quarantine and Metrics are optional; nil skips the corresponding
	// bookkeeping (constructed this way in tests that don't need it).
	Quarantine QuarantineTracker
	Metrics    *metrics.Registry

	lastTick time.Time
}

func (s *PremarketScanner) tickInterval() time.Duration {
	if s.Aggressive {
		return 2 * time.Minute
	}
	return 5 * time.Minute
}

// Run drives the cooperative loop: suspends on its tick ticker, the
// market clock's phase, and outbound I/O, all observing ctx (spec §5).
func (s *PremarketScanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Clock.Phase(time.Now()) != clock.Premarket {
				continue
			}
			s.tick(ctx)
		}
	}
}

func (s *PremarketScanner) tick(ctx context.Context) {
	since := s.lastTick
	now := time.Now()
	s.lastTick = now

	start := time.Now()
	articles, _ := s.News.Fetch(ctx)
	for _, a := range articles {
		if !since.IsZero() && a.FetchedAt.Before(since) {
			continue // not part of this tick's delta
		}
		if a.Symbol == "" || len(a.CatalystTags) == 0 {
			continue
		}
		if s.Quarantine != nil && s.Quarantine.IsQuarantined(a.Symbol) {
			continue
		}
		s.evaluateArticle(ctx, a)
	}
	if s.Metrics != nil {
		s.Metrics.ScanTicks.WithLabelValues("premarket").Inc()
		s.Metrics.ScanDuration.WithLabelValues("premarket").Observe(time.Since(start).Seconds())
	}
}

func (s *PremarketScanner) evaluateArticle(ctx context.Context, a news.Article) {
	from := time.Now().AddDate(0, 0, -30)
	to := time.Now()

	daily, err := s.Prices.FetchDaily(ctx, a.Symbol, from, to)
	if err != nil || len(daily) == 0 {
		s.recordFailure(a.Symbol)
		return
	}
	avgVolume := avgVolumeOf(daily)
	if avgVolume <= 0 {
		s.recordFailure(a.Symbol)
		return
	}

	premarket, err := s.Prices.FetchIntraday(ctx, a.Symbol, time.Now().Add(-30*time.Minute), time.Now(), time.Minute)
	if err != nil || len(premarket) == 0 {
		s.recordFailure(a.Symbol)
		return
	}
	premarketVolume := sumVolume(premarket)
	volumeRatio := premarketVolume / avgVolume

	priorityRank := catalystPriorityRank(a.Priority)
	if volumeRatio < 3 && a.Priority != news.PriorityCritical {
		s.resetFailure(a.Symbol)
		return
	}

	sentimentScore := 0.0
	if a.Sentiment != nil {
		sentimentScore = a.Sentiment.Polarity
	}
	score := math.Min(100, 60+20*math.Log10(1+volumeRatio)+10*float64(priorityRank)+sentimentScore*10)

	s.Bus.Publish(Candidate{
		Symbol: a.Symbol, Kind: KindPremarketCatalyst, Score: score,
		Priority: catalystToCandidatePriority(a.Priority),
		Reasons:  append([]string{"premarket_volume_ratio=" + formatRatio(volumeRatio)}, a.CatalystTags...),
		DetectedAt: time.Now(), CorrelationID: NewCorrelationID(), Payload: a,
	})
	if s.Metrics != nil {
		s.Metrics.CandidatesEmit.WithLabelValues("premarket", string(KindPremarketCatalyst)).Inc()
	}
	s.resetFailure(a.Symbol)
}

func (s *PremarketScanner) recordFailure(symbol string) {
	if s.Quarantine != nil {
		s.Quarantine.RecordFailure(symbol)
	}
}

func (s *PremarketScanner) resetFailure(symbol string) {
	if s.Quarantine != nil {
		s.Quarantine.ResetFailure(symbol)
	}
}

func catalystPriorityRank(p news.Priority) int {
	switch p {
	case news.PriorityCritical:
		return 3
	case news.PriorityHigh:
		return 2
	case news.PriorityMedium:
		return 1
	default:
		return 0
	}
}

func catalystToCandidatePriority(p news.Priority) Priority {
	switch p {
	case news.PriorityCritical:
		return PriorityCritical
	case news.PriorityHigh:
		return PriorityHigh
	case news.PriorityMedium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func avgVolumeOf(series marketdata.Series) float64 {
	if len(series) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range series {
		sum += b.Volume
	}
	return sum / float64(len(series))
}

func sumVolume(series marketdata.Series) float64 {
	sum := 0.0
	for _, b := range series {
		sum += b.Volume
	}
	return sum
}

func formatRatio(r float64) string {
	return strconv.FormatFloat(r, 'f', 2, 64)
}
