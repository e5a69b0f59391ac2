// Package marketdata fetches OHLCV bar series (spec §3 Bar, §4.D
// PriceSource).
package marketdata

import (
	"fmt"
	"time"
)

// Bar is one OHLCV observation at a bar boundary in the exchange
// timezone (daily bars stamp 16:00 ET; intraday bars stamp minute
// boundaries).
type Bar struct {
	Symbol string
	TS     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Validate enforces the OHLC ordering invariant from spec §3.
func (b Bar) Validate() error {
	lo := b.Open
	if b.Close < lo {
		lo = b.Close
	}
	hi := b.Open
	if b.Close > hi {
		hi = b.Close
	}
	if !(b.Low <= lo && lo <= hi && hi <= b.High) {
		return fmt.Errorf("bar %s@%s: OHLC ordering violated (L=%.4f O=%.4f C=%.4f H=%.4f)",
			b.Symbol, b.TS.Format(time.RFC3339), b.Low, b.Open, b.Close, b.High)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s@%s: negative volume %.4f", b.Symbol, b.TS.Format(time.RFC3339), b.Volume)
	}
	return nil
}

// Series is an ordered, gap-tolerant sequence of Bars with strictly
// increasing TS and no duplicates (spec §3). ValidateSeries checks both
// per-bar and series-level invariants.
type Series []Bar

func (s Series) ValidateSeries() error {
	for i, b := range s {
		if err := b.Validate(); err != nil {
			return err
		}
		if i > 0 && !s[i-1].TS.Before(b.TS) {
			return fmt.Errorf("series %s: ts not strictly increasing at index %d (%s -> %s)",
				b.Symbol, i, s[i-1].TS.Format(time.RFC3339), b.TS.Format(time.RFC3339))
		}
	}
	return nil
}

// Closes extracts the close-price slice, the shape most indicator
// functions operate on.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Close
	}
	return out
}
