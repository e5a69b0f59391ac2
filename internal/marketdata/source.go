package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/sawpanic/equityrun/internal/circuit"
	"github.com/sawpanic/equityrun/internal/errkind"
	"github.com/sawpanic/equityrun/internal/ratelimit"
)

// PriceSource fetches OHLCV bars for a symbol and date range (spec §4.D).
// Implementations must map provider-specific failures onto the closed
// errkind taxonomy — NETWORK, RATE_LIMITED, SYMBOL_UNKNOWN, EMPTY.
type PriceSource interface {
	FetchDaily(ctx context.Context, sym string, from, to time.Time) (Series, error)
	FetchIntraday(ctx context.Context, sym string, from, to time.Time, interval time.Duration) (Series, error)
}

// HTTPSource is a generic REST-backed PriceSource: rate-limited,
// circuit-broken, retrying HTTP client hitting a provider's bars
// endpoint, matching the teacher's layering of ratelimit.Limiter +
// circuit.Manager in front of every outbound adapter.
type HTTPSource struct {
	Name       string // rate-limit/circuit-breaker key
	BaseURL    string
	Client     *retryablehttp.Client
	Limiter    *ratelimit.Limiter
	Breaker    *circuit.Manager
	Log        zerolog.Logger
}

// NewHTTPSource wires a retryablehttp.Client the way the teacher's
// provider adapters do: bounded retries and no per-attempt logging (the
// client's Logger is nil). HTTP 429 is not retried: the response is
// handed back so fetch reports it as RATE_LIMITED.
func NewHTTPSource(name, baseURL string, limiter *ratelimit.Limiter, breaker *circuit.Manager, log zerolog.Logger) *HTTPSource {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err == nil && resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return &HTTPSource{Name: name, BaseURL: baseURL, Client: client, Limiter: limiter, Breaker: breaker, Log: log}
}

type barsResponse struct {
	Bars []struct {
		TS     time.Time `json:"ts"`
		Open   float64   `json:"open"`
		High   float64   `json:"high"`
		Low    float64   `json:"low"`
		Close  float64   `json:"close"`
		Volume float64   `json:"volume"`
	} `json:"bars"`
	Unknown bool `json:"symbol_unknown"`
}

func (h *HTTPSource) fetch(ctx context.Context, sym string, from, to time.Time, interval string) (Series, error) {
	op := fmt.Sprintf("marketdata.%s.fetch", interval)

	if err := h.Limiter.Acquire(ctx, h.Name); err != nil {
		return nil, err
	}

	var series Series
	err := h.Breaker.Call(ctx, h.Name, op, func(ctx context.Context) error {
		url := fmt.Sprintf("%s/bars?symbol=%s&from=%s&to=%s&interval=%s",
			h.BaseURL, sym, from.Format(time.RFC3339), to.Format(time.RFC3339), interval)
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return errkind.New(errkind.Internal, op, err)
		}
		resp, err := h.Client.Do(req)
		if err != nil {
			return errkind.New(errkind.Network, op, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return errkind.New(errkind.RateLimited, op, fmt.Errorf("http 429"))
		}
		if resp.StatusCode != http.StatusOK {
			return errkind.New(errkind.Network, op, fmt.Errorf("http %d", resp.StatusCode))
		}

		var decoded barsResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return errkind.New(errkind.Internal, op, err)
		}
		if decoded.Unknown {
			return errkind.New(errkind.SymbolUnknown, op, fmt.Errorf("symbol %s unknown", sym))
		}
		if len(decoded.Bars) == 0 {
			return errkind.New(errkind.Empty, op, fmt.Errorf("no bars for %s", sym))
		}

		series = make(Series, 0, len(decoded.Bars))
		for _, b := range decoded.Bars {
			series = append(series, Bar{
				Symbol: sym, TS: b.TS, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
			})
		}
		return series.ValidateSeries()
	})
	if err != nil {
		return nil, err
	}
	return series, nil
}

func (h *HTTPSource) FetchDaily(ctx context.Context, sym string, from, to time.Time) (Series, error) {
	return h.fetch(ctx, sym, from, to, "1d")
}

func (h *HTTPSource) FetchIntraday(ctx context.Context, sym string, from, to time.Time, interval time.Duration) (Series, error) {
	label := "1m"
	if interval != time.Minute {
		label = interval.String()
	}
	return h.fetch(ctx, sym, from, to, label)
}

// FixtureSource is a deterministic in-memory PriceSource for tests and
// offline `scan once` runs, grounded in the teacher's sim.FixtureDataProvider.
type FixtureSource struct {
	daily    map[string]Series
	intraday map[string]Series
	failWith error
}

func NewFixtureSource() *FixtureSource {
	return &FixtureSource{daily: map[string]Series{}, intraday: map[string]Series{}}
}

func (f *FixtureSource) SetDaily(sym string, s Series)    { f.daily[sym] = s }
func (f *FixtureSource) SetIntraday(sym string, s Series) { f.intraday[sym] = s }
func (f *FixtureSource) FailNext(err error)               { f.failWith = err }

func (f *FixtureSource) FetchDaily(ctx context.Context, sym string, from, to time.Time) (Series, error) {
	if f.failWith != nil {
		err := f.failWith
		f.failWith = nil
		return nil, err
	}
	s, ok := f.daily[sym]
	if !ok || len(s) == 0 {
		return nil, errkind.New(errkind.Empty, "marketdata.fixture.daily", fmt.Errorf("no fixture for %s", sym))
	}
	return filterRange(s, from, to), nil
}

func (f *FixtureSource) FetchIntraday(ctx context.Context, sym string, from, to time.Time, interval time.Duration) (Series, error) {
	if f.failWith != nil {
		err := f.failWith
		f.failWith = nil
		return nil, err
	}
	s, ok := f.intraday[sym]
	if !ok || len(s) == 0 {
		return nil, errkind.New(errkind.Empty, "marketdata.fixture.intraday", fmt.Errorf("no fixture for %s", sym))
	}
	return filterRange(s, from, to), nil
}

func filterRange(s Series, from, to time.Time) Series {
	out := make(Series, 0, len(s))
	for _, b := range s {
		if !b.TS.Before(from) && !b.TS.After(to) {
			out = append(out, b)
		}
	}
	return out
}
