package alert

import (
	"context"
	"fmt"
	"math/rand"
	"net/smtp"
	"os/exec"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/equityrun/internal/errkind"
	"github.com/sawpanic/equityrun/internal/ratelimit"
)

// Channel delivers one Alert. Send must classify its own failures into
// the closed error taxonomy (spec §4.J): CHANNEL_UNCONFIGURED,
// CHANNEL_TRANSIENT, CHANNEL_PERMANENT.
type Channel interface {
	Name() string
	Send(ctx context.Context, a Alert) error
}

// RetryConfig tunes exponential backoff for CHANNEL_TRANSIENT failures
// (spec §4.J: "default 3 retries, initial delay 1s, factor 2, jitter
// ±20%").
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	Factor       float64
	JitterFrac   float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialDelay: time.Second, Factor: 2, JitterFrac: 0.2}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	base := float64(c.InitialDelay) * pow(c.Factor, attempt)
	jitter := base * c.JitterFrac * (rand.Float64()*2 - 1)
	return time.Duration(base + jitter)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// guardedChannel wraps a Channel with its own RateLimiter and
// sony/gobreaker circuit breaker: a permanent error trips the breaker
// open for the dispatcher's remaining lifecycle (spec §4.J), a transient
// error is retried with backoff up to RetryConfig.MaxRetries.
type guardedChannel struct {
	inner   Channel
	limiter *ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker
	retry   RetryConfig
}

func newGuardedChannel(inner Channel, limiter *ratelimit.Limiter, retry RetryConfig) *guardedChannel {
	settings := gobreaker.Settings{
		Name:    inner.Name(),
		Timeout: 365 * 24 * time.Hour, // permanent errors disable for the dispatcher's lifecycle, not a recoverable window
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1 // a single CHANNEL_PERMANENT trips it
		},
	}
	return &guardedChannel{inner: inner, limiter: limiter, breaker: gobreaker.NewCircuitBreaker(settings), retry: retry}
}

// send reports only genuine CHANNEL_PERMANENT failures to the breaker.
// A CHANNEL_TRANSIENT failure that exhausts its retries is permanent
// for this alert only (spec §7) — it must not trip the breaker, or the
// next, unrelated alert on this channel would be short-circuited too.
func (g *guardedChannel) send(ctx context.Context, a Alert) error {
	if err := g.limiter.Acquire(ctx, g.inner.Name()); err != nil {
		return errkind.New(errkind.ChannelTransient, "alert."+g.inner.Name(), err)
	}

	var sendErr error
	_, breakerErr := g.breaker.Execute(func() (any, error) {
		sendErr = g.sendWithRetry(ctx, a)
		if errkind.KindOf(sendErr) == errkind.ChannelPermanent {
			return nil, sendErr
		}
		return nil, nil // success, or transient-exhaustion scoped to this alert
	})
	if breakerErr != nil {
		return breakerErr // CHANNEL_PERMANENT, or gobreaker.ErrOpenState while tripped
	}
	return sendErr
}

func (g *guardedChannel) sendWithRetry(ctx context.Context, a Alert) error {
	var lastErr error
	for attempt := 0; attempt <= g.retry.MaxRetries; attempt++ {
		err := g.inner.Send(ctx, a)
		if err == nil {
			return nil
		}
		lastErr = err
		if errkind.KindOf(err) != errkind.ChannelTransient {
			return err // permanent/unconfigured errors are not retried
		}
		if attempt == g.retry.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.retry.delay(attempt)):
		}
	}
	return lastErr
}

// TelegramChannel sends via go-telegram-bot-api, grounded in the
// teacher pack's notification-service usage of tgbotapi.NewBotAPI +
// bot.Send(tgbotapi.NewMessage(...)).
type TelegramChannel struct {
	Bot    *tgbotapi.BotAPI
	ChatID int64
}

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Send(ctx context.Context, a Alert) error {
	if t.Bot == nil || t.ChatID == 0 {
		return errkind.New(errkind.ChannelUnconfigured, "alert.telegram", nil)
	}
	msg := tgbotapi.NewMessage(t.ChatID, fmt.Sprintf("%s\n\n%s", a.Title, a.Body))
	if _, err := t.Bot.Send(msg); err != nil {
		return errkind.New(errkind.ChannelTransient, "alert.telegram", err)
	}
	return nil
}

// EmailChannel sends via stdlib net/smtp — no example repo in the pack
// carries an email library, so this is the one deliberately stdlib-only
// channel (see DESIGN.md).
type EmailChannel struct {
	SMTPAddr string
	From     string
	To       []string
	Auth     smtp.Auth
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(ctx context.Context, a Alert) error {
	if e.SMTPAddr == "" || e.From == "" || len(e.To) == 0 {
		return errkind.New(errkind.ChannelUnconfigured, "alert.email", nil)
	}
	msg := []byte(fmt.Sprintf("Subject: %s\r\n\r\n%s\r\n", a.Title, a.Body))
	if err := smtp.SendMail(e.SMTPAddr, e.Auth, e.From, e.To, msg); err != nil {
		return errkind.New(errkind.ChannelTransient, "alert.email", err)
	}
	return nil
}

// DesktopChannel pushes to connected desktop-UI clients over a
// gorilla/websocket hub, matching the teacher's websocket desktop-push
// pattern.
type DesktopChannel struct {
	Hub *Hub
}

func (d *DesktopChannel) Name() string { return "desktop" }

func (d *DesktopChannel) Send(ctx context.Context, a Alert) error {
	if d.Hub == nil {
		return errkind.New(errkind.ChannelUnconfigured, "alert.desktop", nil)
	}
	if err := d.Hub.Broadcast(a); err != nil {
		return errkind.New(errkind.ChannelTransient, "alert.desktop", err)
	}
	return nil
}

// Hub fans out JSON-encoded alerts to every connected websocket client.
type Hub struct {
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan Alert
	clients    map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	h := &Hub{
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan Alert, 64),
		clients:    make(map[*websocket.Conn]struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
		case c := <-h.unregister:
			delete(h.clients, c)
			_ = c.Close()
		case a := <-h.broadcast:
			for c := range h.clients {
				if err := c.WriteJSON(a); err != nil {
					delete(h.clients, c)
					_ = c.Close()
				}
			}
		}
	}
}

func (h *Hub) Register(c *websocket.Conn)   { h.register <- c }
func (h *Hub) Unregister(c *websocket.Conn) { h.unregister <- c }

func (h *Hub) Broadcast(a Alert) error {
	select {
	case h.broadcast <- a:
		return nil
	default:
		return fmt.Errorf("desktop hub broadcast queue full")
	}
}

// AudioChannel plays a local notification sound via an external player
// binary — like Email, no pack example carries an audio library, so
// this stays on stdlib os/exec (see DESIGN.md).
type AudioChannel struct {
	Player    string // e.g. "afplay", "paplay"
	SoundFile string
}

func (au *AudioChannel) Name() string { return "audio" }

func (au *AudioChannel) Send(ctx context.Context, a Alert) error {
	if au.Player == "" || au.SoundFile == "" {
		return errkind.New(errkind.ChannelUnconfigured, "alert.audio", nil)
	}
	cmd := exec.CommandContext(ctx, au.Player, au.SoundFile)
	if err := cmd.Run(); err != nil {
		return errkind.New(errkind.ChannelTransient, "alert.audio", err)
	}
	return nil
}
