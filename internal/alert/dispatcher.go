package alert

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sawpanic/equityrun/internal/ratelimit"
)

// Dedup implements the alerts.PutIfAbsent check from spec §4.J step 2:
// "if it already exists, drop silently."
type Dedup interface {
	PutIfAbsent(ctx context.Context, id string, ttl time.Duration) (inserted bool, err error)
}

// RedisDedup backs Dedup with a SETNX, matching the teacher pack's use
// of redis for exactly this kind of at-most-once marker.
type RedisDedup struct {
	Client *redis.Client
}

func (r *RedisDedup) PutIfAbsent(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	return r.Client.SetNX(ctx, "alert:dedup:"+id, 1, ttl).Result()
}

// MemoryDedup is an in-process Dedup for tests and single-node offline
// runs, avoiding a hard Redis dependency everywhere.
type MemoryDedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemoryDedup() *MemoryDedup { return &MemoryDedup{seen: map[string]time.Time{}} }

func (m *MemoryDedup) PutIfAbsent(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if expiry, ok := m.seen[id]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	m.seen[id] = time.Now().Add(ttl)
	return true, nil
}

// ChannelOutcome records one delivery attempt for Health()/audit use.
type ChannelOutcome struct {
	Channel string
	Success bool
	Err     error
}

// Dispatcher implements spec §4.J's AlertDispatcher.
type Dispatcher struct {
	channels map[string]*guardedChannel
	dedup    Dedup
	cooldown time.Duration
	log      zerolog.Logger

	mu        sync.Mutex
	recent    []Alert
	disabled  map[string]bool
}

// Config carries the Dispatcher's dedup store, default cooldown and
// logger; channels are wired separately, one per name, via Register.
type Config struct {
	Dedup    Dedup
	Cooldown time.Duration // default per-kind bucket width for Alert.ID
	Log      zerolog.Logger
}

func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Dispatcher{
		channels: map[string]*guardedChannel{},
		dedup:    cfg.Dedup,
		cooldown: cfg.Cooldown,
		log:      cfg.Log,
		disabled: map[string]bool{},
	}
}

// Register wires ch behind its own rate limiter and retry/backoff policy
// (spec §4.J: "each channel carries its own RateLimiter"). Register does
// not configure limiter: the channel's cap (Email ≤30/h, Telegram
// ≤20/min, Desktop/Audio ungated) is whatever limiter's bucket for
// ch.Name() already carries.
func (d *Dispatcher) Register(ch Channel, limiter *ratelimit.Limiter) {
	d.channels[ch.Name()] = newGuardedChannel(ch, limiter, DefaultRetryConfig())
}

// Dispatch implements spec §4.J's per-alert algorithm.
func (d *Dispatcher) Dispatch(ctx context.Context, a Alert) (Alert, error) {
	a.ID = ComputeID(a.Symbol, a.Kind, a.CreatedAt, d.cooldown)

	inserted, err := d.dedup.PutIfAbsent(ctx, a.ID, d.cooldown)
	if err != nil {
		return a, err
	}
	if !inserted {
		return a, nil // already delivered this cooldown bucket; drop silently
	}

	order := routingTable(a.Priority)
	succeededAny := false
	for _, name := range order {
		if d.isDisabled(name) {
			continue
		}
		ch, ok := d.channels[name]
		if !ok {
			continue
		}
		a.ChannelsAttempted = append(a.ChannelsAttempted, name)
		sendErr := ch.send(ctx, a)
		outcome := ChannelOutcome{Channel: name, Success: sendErr == nil, Err: sendErr}
		d.recordOutcome(name, outcome)

		if sendErr == nil {
			a.ChannelsSucceeded = append(a.ChannelsSucceeded, name)
			succeededAny = true
			if a.Priority != PriorityCritical {
				break // CRITICAL keeps going through every channel regardless of earlier success
			}
		}
	}
	_ = succeededAny

	d.mu.Lock()
	d.recent = append(d.recent, a)
	d.mu.Unlock()
	return a, nil
}

func (d *Dispatcher) recordOutcome(channel string, outcome ChannelOutcome) {
	if !outcome.Success {
		d.log.Warn().Str("channel", channel).Err(outcome.Err).Msg("alert channel delivery failed")
	}
}

func (d *Dispatcher) isDisabled(channel string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disabled[channel]
}

// RecentAlerts implements Coordinator.RecentAlerts (spec §4.K).
func (d *Dispatcher) RecentAlerts(since time.Time) []Alert {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Alert, 0, len(d.recent))
	for _, a := range d.recent {
		if !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ChannelHealth reports each registered channel's circuit-breaker state
// for the Coordinator's Health() (SPEC_FULL supplement).
func (d *Dispatcher) ChannelHealth() map[string]string {
	out := make(map[string]string, len(d.channels))
	for name, ch := range d.channels {
		out[name] = ch.breaker.State().String()
	}
	return out
}
