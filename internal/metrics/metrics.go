// Package metrics wires the prometheus/client_golang collectors that
// back the Coordinator's Health() view and operational dashboards: one
// counter/histogram per scanner tick and dispatcher delivery, grounded
// in the teacher pack's use of client_golang for service instrumentation.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every collector the ScannerRuntime and AlertDispatcher
// touch. A single instance is owned by the Coordinator and threaded into
// each component's constructor.
type Registry struct {
	reg *prometheus.Registry

	ScanTicks      *prometheus.CounterVec
	ScanDuration   *prometheus.HistogramVec
	CandidatesEmit *prometheus.CounterVec
	ScoreDuration  prometheus.Histogram
	ScoreFailures  *prometheus.CounterVec

	AlertsDispatched *prometheus.CounterVec
	AlertsDropped    *prometheus.CounterVec
	ChannelLatency   *prometheus.HistogramVec
	ChannelFailures  *prometheus.CounterVec

	SourceFailures   *prometheus.CounterVec
	QuarantinedSyms  prometheus.Gauge
}

// New constructs and registers every collector against a fresh registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		ScanTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equityrun_scan_ticks_total", Help: "Completed scanner ticks by scanner kind.",
		}, []string{"scanner"}),
		ScanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "equityrun_scan_tick_duration_seconds", Help: "Scanner tick wall-clock duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"scanner"}),
		CandidatesEmit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equityrun_candidates_emitted_total", Help: "Candidates published onto the scanner bus.",
		}, []string{"scanner", "kind"}),
		ScoreDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "equityrun_score_duration_seconds", Help: "ScoringEngine.Score wall-clock duration.",
			Buckets: prometheus.DefBuckets,
		}),
		ScoreFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equityrun_score_failures_total", Help: "ScoringEngine.Score failures by error kind.",
		}, []string{"kind"}),
		AlertsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equityrun_alerts_dispatched_total", Help: "Alerts dispatched by priority.",
		}, []string{"priority"}),
		AlertsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equityrun_alerts_deduped_total", Help: "Alerts dropped by cooldown dedup.",
		}, []string{"priority"}),
		ChannelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "equityrun_channel_send_duration_seconds", Help: "Per-channel Send latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),
		ChannelFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equityrun_channel_failures_total", Help: "Per-channel Send failures by error kind.",
		}, []string{"channel", "kind"}),
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equityrun_source_failures_total", Help: "PriceSource/NewsSource failures by source and error kind.",
		}, []string{"source", "kind"}),
		QuarantinedSyms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "equityrun_quarantined_symbols", Help: "Symbols currently quarantined after crossing the consecutive-failure threshold.",
		}),
	}
	reg.MustRegister(r.ScanTicks, r.ScanDuration, r.CandidatesEmit, r.ScoreDuration, r.ScoreFailures,
		r.AlertsDispatched, r.AlertsDropped, r.ChannelLatency, r.ChannelFailures, r.SourceFailures, r.QuarantinedSyms)
	return r
}

// Gatherer exposes the underlying registry for an HTTP /metrics handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
