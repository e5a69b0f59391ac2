// Package config loads and validates the typed configuration surface of
// spec §6.1/§6.5: a YAML file (gopkg.in/yaml.v3, matching the teacher's
// config-loading idiom) for watchlist/scan/alert tuning, overlaid with
// channel credentials read from environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/equityrun/internal/errkind"
)

// ChannelConfig is the per-channel master switch from §6.1.
type ChannelConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ScanConfig holds every scan.* key of §6.1.
type ScanConfig struct {
	PremarketIntervalS        int     `yaml:"premarket_interval_s"`
	IntradayIntervalS         int     `yaml:"intraday_interval_s"`
	IntradayPriceThresholdPct float64 `yaml:"intraday_price_threshold_pct"`
	IntradayVolumeThresholdX  float64 `yaml:"intraday_volume_threshold_x"`
	OpportunityMinScore       float64 `yaml:"opportunity_min_score"`
	OpportunityMinRR          float64 `yaml:"opportunity_min_rr"`
}

// AlertsConfig holds alerts.* keys of §6.1.
type AlertsConfig struct {
	Channels   map[string]ChannelConfig `yaml:"channels"`
	CooldownS  map[string]int           `yaml:"cooldown_s"`
}

// MarketConfig holds market.* keys of §6.1.
type MarketConfig struct {
	Timezone string   `yaml:"timezone"`
	Holidays []string `yaml:"holidays"`
}

// Config is the full typed configuration surface.
type Config struct {
	Watchlist []string     `yaml:"watchlist"`
	Scan      ScanConfig   `yaml:"scan"`
	Alerts    AlertsConfig `yaml:"alerts"`
	Market    MarketConfig `yaml:"market"`

	// Credentials are populated from environment (§6.5), never from YAML.
	Credentials Credentials `yaml:"-"`
}

// Credentials holds the §6.5 environment-sourced channel secrets.
// Absence of a channel's required fields leaves it zero-valued; the
// channel constructors surface CHANNEL_UNCONFIGURED rather than config
// validation rejecting the whole file (§6.5: "absence... disables the
// corresponding channel").
type Credentials struct {
	TelegramBotToken string
	TelegramChatID   string
	SMTPHost         string
	SMTPPort         string
	SMTPUser         string
	SMTPPassword     string
	SMTPFrom         string
	SMTPTo           string
}

func credentialsFromEnv() Credentials {
	return Credentials{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         os.Getenv("SMTP_PORT"),
		SMTPUser:         os.Getenv("SMTP_USER"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:         os.Getenv("SMTP_FROM"),
		SMTPTo:           os.Getenv("SMTP_TO"),
	}
}

// Default returns the spec's documented defaults: premarket 5m/2m
// aggressive, intraday 30s/15s aggressive, opportunity min score 85 and
// min R/R 2.5, America/New_York fixed timezone, cooldown 5m.
func Default() Config {
	return Config{
		Scan: ScanConfig{
			PremarketIntervalS:        300,
			IntradayIntervalS:         30,
			IntradayPriceThresholdPct: 0.03,
			IntradayVolumeThresholdX:  5.0,
			OpportunityMinScore:       85,
			OpportunityMinRR:          2.5,
		},
		Alerts: AlertsConfig{
			Channels: map[string]ChannelConfig{
				"telegram": {Enabled: true}, "email": {Enabled: true}, "desktop": {Enabled: true}, "audio": {Enabled: true},
			},
			CooldownS: map[string]int{"default": 300},
		},
		Market: MarketConfig{Timezone: "America/New_York"},
	}
}

// Load reads and validates a YAML config file at path, overlaying
// environment-sourced credentials. A missing/invalid file surfaces
// errkind.ConfigInvalid, fatal at startup per spec §7 (exit code 2).
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errkind.New(errkind.ConfigInvalid, "config.Load", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, errkind.New(errkind.ConfigInvalid, "config.Load", err)
		}
	}
	cfg.Credentials = credentialsFromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the invariants implied by §6.1/§7: a fixed exchange
// timezone, well-formed holiday dates, and non-negative tuning knobs.
func (c Config) Validate() error {
	if c.Market.Timezone != "" && c.Market.Timezone != "America/New_York" {
		return errkind.New(errkind.ConfigInvalid, "config.Validate", fmt.Errorf("market.timezone must be America/New_York, got %q", c.Market.Timezone))
	}
	for _, d := range c.Market.Holidays {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return errkind.New(errkind.ConfigInvalid, "config.Validate", fmt.Errorf("market.holidays entry %q: %w", d, err))
		}
	}
	if c.Scan.OpportunityMinScore < 0 || c.Scan.OpportunityMinScore > 100 {
		return errkind.New(errkind.ConfigInvalid, "config.Validate", fmt.Errorf("scan.opportunity.min_score out of [0,100]: %v", c.Scan.OpportunityMinScore))
	}
	if c.Scan.OpportunityMinRR < 0 {
		return errkind.New(errkind.ConfigInvalid, "config.Validate", fmt.Errorf("scan.opportunity.min_rr must be non-negative: %v", c.Scan.OpportunityMinRR))
	}
	return nil
}

// Holidays parses Market.Holidays into time.Time values (midnight in
// America/New_York), the shape clock.New expects.
func (c Config) Holidays() ([]time.Time, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, errkind.New(errkind.ConfigInvalid, "config.Holidays", err)
	}
	out := make([]time.Time, 0, len(c.Market.Holidays))
	for _, d := range c.Market.Holidays {
		t, err := time.ParseInLocation("2006-01-02", d, loc)
		if err != nil {
			return nil, errkind.New(errkind.ConfigInvalid, "config.Holidays", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// ChannelEnabled reports whether a channel's master switch is on,
// defaulting to true when unset (§6.1).
func (c Config) ChannelEnabled(name string) bool {
	ch, ok := c.Alerts.Channels[name]
	if !ok {
		return true
	}
	return ch.Enabled
}

// Cooldown returns the dedup bucket width for kind, falling back to the
// "default" key, then 5 minutes.
func (c Config) Cooldown(kind string) time.Duration {
	if s, ok := c.Alerts.CooldownS[kind]; ok {
		return time.Duration(s) * time.Second
	}
	if s, ok := c.Alerts.CooldownS["default"]; ok {
		return time.Duration(s) * time.Second
	}
	return 5 * time.Minute
}
