package alert

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/errkind"
	"github.com/sawpanic/equityrun/internal/ratelimit"
)

type stubChannel struct {
	name    string
	err     error
	calls   int
}

func (s *stubChannel) Name() string { return s.name }
func (s *stubChannel) Send(ctx context.Context, a Alert) error {
	s.calls++
	return s.err
}

func newDispatcherWithChannels(t *testing.T, channels ...*stubChannel) *Dispatcher {
	t.Helper()
	d := NewDispatcher(Config{Dedup: NewMemoryDedup(), Cooldown: time.Minute, Log: zerolog.Nop()})
	for _, c := range channels {
		d.Register(c, ratelimit.NewLimiter(ratelimit.Config{RPS: 100, Burst: 10}))
	}
	return d
}

func TestDispatchHighPriorityStopsAfterFirstSuccess(t *testing.T) {
	telegram := &stubChannel{name: "telegram"}
	desktop := &stubChannel{name: "desktop"}
	audio := &stubChannel{name: "audio"}
	d := newDispatcherWithChannels(t, telegram, desktop, audio)

	a := Alert{Symbol: "ACME", Kind: "INTRADAY_PUMP", Priority: PriorityHigh, CreatedAt: time.Now()}
	out, err := d.Dispatch(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 1, telegram.calls)
	assert.Equal(t, 0, desktop.calls, "desktop should not be attempted once telegram succeeded")
	assert.Contains(t, out.ChannelsSucceeded, "telegram")
}

func TestDispatchCriticalAttemptsAllChannelsRegardlessOfEarlierSuccess(t *testing.T) {
	telegram := &stubChannel{name: "telegram"}
	email := &stubChannel{name: "email"}
	desktop := &stubChannel{name: "desktop"}
	audio := &stubChannel{name: "audio"}
	d := newDispatcherWithChannels(t, telegram, email, desktop, audio)

	a := Alert{Symbol: "ACME", Kind: "PREMARKET_CATALYST", Priority: PriorityCritical, CreatedAt: time.Now()}
	_, err := d.Dispatch(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 1, telegram.calls)
	assert.Equal(t, 1, email.calls)
	assert.Equal(t, 1, desktop.calls)
	assert.Equal(t, 1, audio.calls)
}

func TestDispatchDropsSecondAlertInSameCooldownBucket(t *testing.T) {
	telegram := &stubChannel{name: "telegram"}
	desktop := &stubChannel{name: "desktop"}
	audio := &stubChannel{name: "audio"}
	d := newDispatcherWithChannels(t, telegram, desktop, audio)

	now := time.Unix(1700000040, 0) // start of a cooldown bucket, so now+1s stays inside it
	a1 := Alert{Symbol: "ACME", Kind: "INTRADAY_PUMP", Priority: PriorityHigh, CreatedAt: now}
	a2 := Alert{Symbol: "ACME", Kind: "INTRADAY_PUMP", Priority: PriorityHigh, CreatedAt: now.Add(time.Second)}

	_, err := d.Dispatch(context.Background(), a1)
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), a2)
	require.NoError(t, err)

	assert.Equal(t, 1, telegram.calls, "second alert in the same cooldown bucket must be dropped silently")
}

func TestDispatchMediumPriorityOnlyUsesDesktop(t *testing.T) {
	telegram := &stubChannel{name: "telegram"}
	desktop := &stubChannel{name: "desktop"}
	d := newDispatcherWithChannels(t, telegram, desktop)

	a := Alert{Symbol: "ACME", Kind: "OPPORTUNITY", Priority: PriorityMedium, CreatedAt: time.Now()}
	_, err := d.Dispatch(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 0, telegram.calls)
	assert.Equal(t, 1, desktop.calls)
}

func TestChannelRemainsAvailableAfterTransientRetryExhaustion(t *testing.T) {
	stub := &stubChannel{name: "telegram", err: errkind.New(errkind.ChannelTransient, "test", nil)}
	d := NewDispatcher(Config{Dedup: NewMemoryDedup(), Cooldown: time.Minute, Log: zerolog.Nop()})
	d.channels[stub.name] = newGuardedChannel(stub, ratelimit.NewLimiter(ratelimit.Config{RPS: 100, Burst: 10}),
		RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, Factor: 1, JitterFrac: 0})

	now := time.Now()
	a1 := Alert{Symbol: "AAA", Kind: "INTRADAY_PUMP", Priority: PriorityHigh, CreatedAt: now}
	_, err := d.Dispatch(context.Background(), a1)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls, "initial attempt plus one retry")
	assert.Equal(t, gobreaker.StateClosed, d.channels["telegram"].breaker.State(),
		"a transient failure that exhausts its retries must not trip the breaker")

	a2 := Alert{Symbol: "BBB", Kind: "INTRADAY_PUMP", Priority: PriorityHigh, CreatedAt: now.Add(time.Minute)}
	_, err = d.Dispatch(context.Background(), a2)
	require.NoError(t, err)
	assert.Equal(t, 4, stub.calls, "a second, unrelated alert must still be attempted on the same channel")
}

func TestMemoryDedupPutIfAbsent(t *testing.T) {
	m := NewMemoryDedup()
	ok1, err := m.PutIfAbsent(context.Background(), "x", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok1)

	ok2, err := m.PutIfAbsent(context.Background(), "x", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok2)
}

func TestComputeIDStableWithinCooldownBucket(t *testing.T) {
	base := time.Unix(1700000040, 0) // start of a one-minute bucket
	id1 := ComputeID("ACME", "INTRADAY_PUMP", base, time.Minute)
	id2 := ComputeID("ACME", "INTRADAY_PUMP", base.Add(10*time.Second), time.Minute)
	assert.Equal(t, id1, id2)

	id3 := ComputeID("ACME", "INTRADAY_PUMP", base.Add(2*time.Minute), time.Minute)
	assert.NotEqual(t, id1, id3)
}
