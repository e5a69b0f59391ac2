package scanner

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/equityrun/internal/marketdata"
)

func newTestIntradayScanner() *IntradayScanner {
	return &IntradayScanner{Log: zerolog.Nop(), Cooldown: 0, MaxConcurrent: 3, lastEmit: map[string]time.Time{}, sessionExited: map[string]bool{}}
}

func TestCheckVolumeSurgeDetectsSpike(t *testing.T) {
	s := newTestIntradayScanner()
	closes := make([]float64, 25)
	volumes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100
		volumes[i] = 1000
	}
	closes[24] = 102 // +2%
	volumes[24] = 10000

	ok, strength := s.checkVolumeSurge(closes, volumes)
	assert.True(t, ok)
	assert.Greater(t, strength, 0.0)
}

func TestCheckVolumeSurgeNoSignalOnFlatVolume(t *testing.T) {
	s := newTestIntradayScanner()
	closes := make([]float64, 25)
	volumes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100
		volumes[i] = 1000
	}
	ok, _ := s.checkVolumeSurge(closes, volumes)
	assert.False(t, ok)
}

func TestOnCooldownBlocksReEmission(t *testing.T) {
	s := newTestIntradayScanner()
	s.Cooldown = time.Hour
	now := time.Now()
	s.markEmitted("ACME", now)
	assert.True(t, s.onCooldown("ACME", now.Add(time.Minute)))
	assert.False(t, s.onCooldown("OTHER", now.Add(time.Minute)))
}

func TestHasCapacityRespectsMaxConcurrent(t *testing.T) {
	s := newTestIntradayScanner()
	s.MaxConcurrent = 1
	assert.True(t, s.hasCapacity())
	s.markEmitted("ACME", time.Now())
	assert.False(t, s.hasCapacity())
}

// TestEvaluateSymbolCrossesThresholdOnConfirmedMove drives evaluateSymbol
// end to end: a flat run followed by a large, high-volume move should
// fire momentum/volume-surge/Bollinger setups together, and the combined
// strength + ATR-normalized move + confirmation bonus should clear the
// standard 75 threshold and publish a candidate. A single isolated setup
// (exercised by the check* unit tests above) never reaches this score.
func TestEvaluateSymbolCrossesThresholdOnConfirmedMove(t *testing.T) {
	s := newTestIntradayScanner()
	s.Bus = NewBus(10, zerolog.Nop())

	start := time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)
	bars := make(marketdata.Series, 30)
	for i := 0; i < 29; i++ {
		bars[i] = marketdata.Bar{
			Symbol: "ACME", TS: start.Add(time.Duration(i) * time.Minute),
			Open: 100, High: 100.5, Low: 99.5, Close: 100, Volume: 1000,
		}
	}
	bars[29] = marketdata.Bar{
		Symbol: "ACME", TS: start.Add(29 * time.Minute),
		Open: 105, High: 113, Low: 100, Close: 112, Volume: 20000,
	}

	s.evaluateSymbol("ACME", bars)

	published := s.Bus.Drain()
	if assert.Len(t, published, 1) {
		c := published[0]
		assert.Equal(t, KindIntradayPump, c.Kind)
		assert.GreaterOrEqual(t, c.Score, s.scoreThreshold())
		assert.GreaterOrEqual(t, len(c.Reasons), 2, "a crossing should be backed by more than one confirming setup")
	}
}

func TestIsPastEntryCutoffAfter1545ET(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	before := time.Date(2024, 6, 10, 15, 30, 0, 0, loc)
	after := time.Date(2024, 6, 10, 15, 46, 0, 0, loc)
	assert.False(t, isPastEntryCutoff(before))
	assert.True(t, isPastEntryCutoff(after))
}
