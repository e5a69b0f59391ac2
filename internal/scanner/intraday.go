package scanner

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/equityrun/internal/clock"
	"github.com/sawpanic/equityrun/internal/indicators"
	"github.com/sawpanic/equityrun/internal/marketdata"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/watchlist"
)

// IntradaySetup names one of spec §4.I's five intraday detection rules.
type IntradaySetup string

const (
	SetupOpeningRangeBreakout IntradaySetup = "OPENING_RANGE_BREAKOUT"
	SetupMomentumBreakout     IntradaySetup = "MOMENTUM_BREAKOUT"
	SetupVWAPReversal         IntradaySetup = "VWAP_REVERSAL"
	SetupVolumeSurge          IntradaySetup = "VOLUME_SURGE"
	SetupBollingerBreakout    IntradaySetup = "BOLLINGER_BREAKOUT"
)

// IntradayScanner implements spec §4.I's Intraday Pump Scanner.
type IntradayScanner struct {
	Clock      *clock.MarketClock
	Watchlist  *watchlist.Watchlist
	Prices     marketdata.PriceSource
	Bus        *Bus
	Aggressive bool
	Log        zerolog.Logger

	Cooldown      time.Duration // default 5 min
	MaxConcurrent int           // default 3
	sessionExited map[string]bool

	Quarantine QuarantineTracker
	Metrics    *metrics.Registry

	mu          sync.Mutex
	lastEmit    map[string]time.Time
	activeCount int
}

func NewIntradayScanner(c *clock.MarketClock, w *watchlist.Watchlist, prices marketdata.PriceSource, bus *Bus, aggressive bool, log zerolog.Logger) *IntradayScanner {
	return &IntradayScanner{
		Clock: c, Watchlist: w, Prices: prices, Bus: bus, Aggressive: aggressive, Log: log,
		Cooldown: 5 * time.Minute, MaxConcurrent: 3,
		lastEmit: map[string]time.Time{}, sessionExited: map[string]bool{},
	}
}

func (s *IntradayScanner) tickInterval() time.Duration {
	if s.Aggressive {
		return 15 * time.Second
	}
	return 30 * time.Second
}

func (s *IntradayScanner) scoreThreshold() float64 {
	if s.Aggressive {
		return 70
	}
	return 75
}

func (s *IntradayScanner) momentumThreshold() (retPct, volRatio float64) {
	if s.Aggressive {
		return 0.02, 3.0
	}
	return 0.03, 5.0
}

func (s *IntradayScanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Clock.Phase(time.Now()) != clock.Regular {
				continue
			}
			s.tick(ctx)
		}
	}
}

func (s *IntradayScanner) tick(ctx context.Context) {
	start := time.Now()
	now := start
	view := s.Watchlist.Sample()
	pastCutoff := isPastEntryCutoff(now)

	for _, sym := range view.InBucket(watchlist.BucketIntraday) {
		if s.Quarantine != nil && s.Quarantine.IsQuarantined(sym) {
			continue
		}
		bars, err := s.Prices.FetchIntraday(ctx, sym, now.Add(-60*time.Minute), now, time.Minute)
		if err != nil || len(bars) < 20 {
			if s.Quarantine != nil {
				s.Quarantine.RecordFailure(sym)
			}
			continue
		}
		if s.Quarantine != nil {
			s.Quarantine.ResetFailure(sym)
		}

		if pastCutoff {
			s.emitExitIfActive(sym, bars)
			continue
		}
		if s.onCooldown(sym, now) || !s.hasCapacity() {
			continue
		}
		s.evaluateSymbol(sym, bars)
	}
	if s.Metrics != nil {
		s.Metrics.ScanTicks.WithLabelValues("intraday").Inc()
		s.Metrics.ScanDuration.WithLabelValues("intraday").Observe(time.Since(start).Seconds())
	}
}

// isPastEntryCutoff implements the end-of-session rule: no new entries
// after 15:45 ET.
func isPastEntryCutoff(now time.Time) bool {
	loc, err := time.LoadLocation(clock.Exchange)
	if err != nil {
		return false
	}
	local := now.In(loc)
	cutoff := time.Date(local.Year(), local.Month(), local.Day(), 15, 45, 0, 0, loc)
	return !local.Before(cutoff)
}

func (s *IntradayScanner) onCooldown(sym string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastEmit[sym]
	return ok && now.Sub(last) < s.Cooldown
}

func (s *IntradayScanner) hasCapacity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeCount < s.MaxConcurrent
}

func (s *IntradayScanner) markEmitted(sym string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEmit[sym] = now
	s.activeCount++
}

func (s *IntradayScanner) emitExitIfActive(sym string, bars marketdata.Series) {
	s.mu.Lock()
	_, wasActive := s.lastEmit[sym]
	alreadyExited := s.sessionExited[sym]
	if wasActive {
		s.sessionExited[sym] = true
	}
	s.mu.Unlock()
	if !wasActive || alreadyExited {
		return
	}
	s.Bus.Publish(Candidate{
		Symbol: sym, Kind: KindIntradayPump, Score: 0, Priority: PriorityHigh,
		Reasons: []string{"EXIT", "END_OF_SESSION"}, DetectedAt: time.Now(),
		CorrelationID: NewCorrelationID(), Payload: bars[len(bars)-1],
	})
}

func (s *IntradayScanner) evaluateSymbol(sym string, bars marketdata.Series) {
	closes := bars.Closes()
	ohlc := make([]indicators.OHLC, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		ohlc[i] = indicators.OHLC{High: b.High, Low: b.Low, Close: b.Close}
		volumes[i] = b.Volume
	}

	atr := last(indicators.ATR(ohlc, 14))
	if !atr.Defined || atr.V <= 0 {
		return
	}

	var hits []IntradaySetup
	var strength float64

	if ok, s2 := s.checkOpeningRangeBreakout(bars, volumes); ok {
		hits = append(hits, SetupOpeningRangeBreakout)
		strength += s2
	}
	if ok, s2 := s.checkMomentumBreakout(closes, volumes); ok {
		hits = append(hits, SetupMomentumBreakout)
		strength += s2
	}
	if ok, s2 := s.checkVWAPReversal(ohlc, closes, volumes, atr.V); ok {
		hits = append(hits, SetupVWAPReversal)
		strength += s2
	}
	if ok, s2 := s.checkVolumeSurge(closes, volumes); ok {
		hits = append(hits, SetupVolumeSurge)
		strength += s2
	}
	if ok, s2 := s.checkBollingerBreakout(closes, volumes); ok {
		hits = append(hits, SetupBollingerBreakout)
		strength += s2
	}
	if len(hits) == 0 {
		return
	}

	// Combine raw setup strength with the size of the triggering move
	// (ATR-normalized, capped at 20) and a bonus per additional confirming
	// setup, so a single lone setup tops out at 40 and can never cross the
	// 70/75 threshold — it takes at least two setups firing together for
	// 70 and at least three for 75 (spec §4.I: "combines setup strength... and confirming indicators").
	moveSize := math.Abs(closes[len(closes)-1]-closes[len(closes)-2]) / atr.V
	moveBonus := math.Min(20, moveSize*10)
	confirmBonus := float64(len(hits)-1) * 15

	score := math.Min(100, strength+moveBonus+confirmBonus)
	if score < s.scoreThreshold() {
		return
	}

	entry := closes[len(closes)-1]
	stop := entry - atr.V
	target := entry + 1.8*atr.V

	reasons := make([]string, 0, len(hits))
	for _, h := range hits {
		reasons = append(reasons, string(h))
	}

	s.Bus.Publish(Candidate{
		Symbol: sym, Kind: KindIntradayPump, Score: score, Priority: PriorityHigh,
		Reasons: reasons, DetectedAt: time.Now(), CorrelationID: NewCorrelationID(),
		Payload: map[string]float64{"entry": entry, "stop": stop, "target": target},
	})
	if s.Metrics != nil {
		s.Metrics.CandidatesEmit.WithLabelValues("intraday", string(KindIntradayPump)).Inc()
	}
	s.markEmitted(sym, time.Now())
}

func (s *IntradayScanner) checkOpeningRangeBreakout(bars marketdata.Series, volumes []float64) (bool, float64) {
	loc, err := time.LoadLocation(clock.Exchange)
	if err != nil {
		return false, 0
	}
	var rangeHigh, rangeLow float64
	have := false
	for _, b := range bars {
		local := b.TS.In(loc)
		openMin := local.Hour()*60 + local.Minute()
		if openMin >= 9*60+30 && openMin < 9*60+35 {
			if !have {
				rangeHigh, rangeLow, have = b.High, b.Low, true
				continue
			}
			rangeHigh, rangeLow = math.Max(rangeHigh, b.High), math.Min(rangeLow, b.Low)
		}
	}
	if !have || len(bars) == 0 {
		return false, 0
	}
	last := bars[len(bars)-1]
	avgVol := avg(tail(volumes, 20))
	if avgVol <= 0 {
		return false, 0
	}
	volRatio := last.Volume / avgVol
	if (last.Close > rangeHigh || last.Close < rangeLow) && volRatio >= 2 {
		return true, 15
	}
	return false, 0
}

func (s *IntradayScanner) checkMomentumBreakout(closes, volumes []float64) (bool, float64) {
	if len(closes) < 11 {
		return false, 0
	}
	retThresh, volThresh := s.momentumThreshold()
	ret := (closes[len(closes)-1] - closes[len(closes)-11]) / closes[len(closes)-11]
	avgVol := avg(tail(volumes, 20))
	if avgVol <= 0 {
		return false, 0
	}
	volRatio := volumes[len(volumes)-1] / avgVol
	if math.Abs(ret) >= retThresh && volRatio >= volThresh {
		return true, 20
	}
	return false, 0
}

func (s *IntradayScanner) checkVWAPReversal(ohlc []indicators.OHLC, closes, volumes []float64, atr float64) (bool, float64) {
	boundary := make([]bool, len(ohlc))
	if len(boundary) > 0 {
		boundary[0] = true
	}
	vwap := last(indicators.VWAP(ohlc, volumes, boundary))
	rsi := last(indicators.RSI(closes, 14))
	if !vwap.Defined || !rsi.Defined {
		return false, 0
	}
	closeNow := closes[len(closes)-1]
	touchLower := closeNow <= vwap.V-2*atr
	touchUpper := closeNow >= vwap.V+2*atr
	if touchLower && rsi.V < 35 {
		return true, 15
	}
	if touchUpper && rsi.V > 65 {
		return true, 15
	}
	return false, 0
}

func (s *IntradayScanner) checkVolumeSurge(closes, volumes []float64) (bool, float64) {
	if len(volumes) < 21 {
		return false, 0
	}
	mean20 := avg(tail(volumes[:len(volumes)-1], 20))
	if mean20 <= 0 {
		return false, 0
	}
	lastVol := volumes[len(volumes)-1]
	priceChange := (closes[len(closes)-1] - closes[len(closes)-2]) / closes[len(closes)-2]
	if lastVol >= 5*mean20 && math.Abs(priceChange) >= 0.01 {
		return true, 15
	}
	return false, 0
}

func (s *IntradayScanner) checkBollingerBreakout(closes, volumes []float64) (bool, float64) {
	bb := indicators.Bollinger(closes, 20, 2)
	n := len(closes)
	upper, lower := bb.Upper[n-1], bb.Lower[n-1]
	if !upper.Defined || !lower.Defined {
		return false, 0
	}
	avgVol := avg(tail(volumes, 20))
	if avgVol <= 0 {
		return false, 0
	}
	volRatio := volumes[n-1] / avgVol
	closeNow := closes[n-1]
	if (closeNow > upper.V || closeNow < lower.V) && volRatio >= 1.5 {
		return true, 15
	}
	return false, 0
}

func last(v []indicators.Value) indicators.Value {
	if len(v) == 0 {
		return indicators.Value{}
	}
	return v[len(v)-1]
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
