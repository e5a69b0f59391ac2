// Command equityrun is the spec §6.4 CLI surface: run the Coordinator,
// score a single symbol on demand, run one opportunity pass, list
// recent alerts, or print component health — bootstrapped the way the
// teacher's cmd/cryptorun wires zerolog + cobra.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/equityrun/internal/alert"
	"github.com/sawpanic/equityrun/internal/circuit"
	"github.com/sawpanic/equityrun/internal/clock"
	"github.com/sawpanic/equityrun/internal/config"
	"github.com/sawpanic/equityrun/internal/coordinator"
	"github.com/sawpanic/equityrun/internal/errkind"
	"github.com/sawpanic/equityrun/internal/httpapi"
	"github.com/sawpanic/equityrun/internal/marketdata"
	"github.com/sawpanic/equityrun/internal/news"
	"github.com/sawpanic/equityrun/internal/ratelimit"
	"github.com/sawpanic/equityrun/internal/sentiment"
	"github.com/sawpanic/equityrun/internal/store"
)

const version = "v0.1.0"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var configPath string
	var dbPath string
	var priceProvider string

	root := &cobra.Command{
		Use:     "equityrun",
		Short:   "Equity opportunity scanner and alerting pipeline",
		Version: version,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&dbPath, "db", "equityrun.db", "path to SQLite store")
	root.PersistentFlags().StringVar(&priceProvider, "price-provider-url", "", "base URL of the bars HTTP provider (empty uses an in-memory fixture)")

	var httpAddr string
	root.PersistentFlags().StringVar(&httpAddr, "http-addr", "", "address to expose /health and /metrics on (empty disables the HTTP surface)")

	var aggressive, premarketOnly, intradayOnly, opportunityOnly bool
	root.PersistentFlags().BoolVar(&aggressive, "aggressive", false, "use the faster aggressive tick cadence")
	root.PersistentFlags().BoolVar(&premarketOnly, "premarket-only", false, "run only the premarket scanner")
	root.PersistentFlags().BoolVar(&intradayOnly, "intraday-only", false, "run only the intraday scanner")
	root.PersistentFlags().BoolVar(&opportunityOnly, "opportunity-only", false, "run only the opportunity scanner")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the Coordinator (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			only := selectedOnly(premarketOnly, intradayOnly, opportunityOnly)
			return runServe(cmd.Context(), configPath, dbPath, priceProvider, httpAddr, aggressive, only)
		},
	}

	scoreCmd := &cobra.Command{
		Use:   "score <symbol>",
		Short: "Print a MonthlyScore as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd.Context(), configPath, dbPath, priceProvider, args[0])
		},
	}

	scanCmd := &cobra.Command{Use: "scan", Short: "Run a single scan pass"}
	scanOnceCmd := &cobra.Command{
		Use:   "once",
		Short: "Run one opportunity pass and print the resulting candidates as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScanOnce(cmd.Context(), configPath, dbPath, priceProvider)
		},
	}
	scanCmd.AddCommand(scanOnceCmd)

	var since time.Duration
	alertsCmd := &cobra.Command{Use: "alerts", Short: "Inspect dispatched alerts"}
	alertsRecentCmd := &cobra.Command{
		Use:   "recent",
		Short: "List alerts dispatched since a given duration ago",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAlertsRecent(cmd.Context(), dbPath, since)
		},
	}
	alertsRecentCmd.Flags().DurationVar(&since, "since", time.Hour, "look back window")
	alertsCmd.AddCommand(alertsRecentCmd)

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Print component health as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context(), configPath, dbPath, priceProvider)
		},
	}

	root.AddCommand(runCmd, scoreCmd, scanCmd, alertsCmd, healthCmd)
	root.RunE = runCmd.RunE

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(exitCodeFor(err))
	}
}

func selectedOnly(premarket, intraday, opportunity bool) []string {
	if !premarket && !intraday && !opportunity {
		return nil
	}
	var out []string
	if premarket {
		out = append(out, "premarket")
	}
	if intraday {
		out = append(out, "intraday")
	}
	if opportunity {
		out = append(out, "opportunity")
	}
	return out
}

// exitCodeFor implements spec §6.4's exit-code contract: 0 success, 1
// generic error, 2 configuration error, 3 unrecoverable runtime error.
func exitCodeFor(err error) int {
	switch errkind.KindOf(err) {
	case errkind.ConfigInvalid:
		return 2
	case errkind.Internal:
		return 3
	default:
		return 1
	}
}

func loadConfig(configPath string) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func buildPriceSource(providerURL string, log zerolog.Logger) marketdata.PriceSource {
	if providerURL == "" {
		return marketdata.NewFixtureSource()
	}
	limiter := ratelimit.NewLimiter(ratelimit.Config{RPS: 5, Burst: 5})
	breaker := circuit.NewManager(circuit.DefaultConfig())
	return marketdata.NewHTTPSource("prices", providerURL, limiter, breaker, log)
}

func buildChannels(cfg config.Config) []alert.Channel {
	var channels []alert.Channel
	cred := cfg.Credentials

	if cred.TelegramBotToken != "" && cred.TelegramChatID != "" {
		if bot, err := tgbotapi.NewBotAPI(cred.TelegramBotToken); err == nil {
			if chatID, err := strconv.ParseInt(cred.TelegramChatID, 10, 64); err == nil {
				channels = append(channels, &alert.TelegramChannel{Bot: bot, ChatID: chatID})
			}
		}
	}
	if cred.SMTPHost != "" && cred.SMTPFrom != "" && cred.SMTPTo != "" {
		addr := cred.SMTPHost
		if cred.SMTPPort != "" {
			addr = fmt.Sprintf("%s:%s", cred.SMTPHost, cred.SMTPPort)
		}
		var auth smtp.Auth
		if cred.SMTPUser != "" {
			auth = smtp.PlainAuth("", cred.SMTPUser, cred.SMTPPassword, cred.SMTPHost)
		}
		channels = append(channels, &alert.EmailChannel{SMTPAddr: addr, From: cred.SMTPFrom, To: []string{cred.SMTPTo}, Auth: auth})
	}
	channels = append(channels, &alert.DesktopChannel{Hub: alert.NewHub()})
	channels = append(channels, &alert.AudioChannel{Player: "paplay", SoundFile: "/usr/share/sounds/alert.wav"})
	return channels
}

func buildNewsAggregator(cfg config.Config, log zerolog.Logger) *news.Aggregator {
	limiter := ratelimit.NewLimiter(ratelimit.Config{RPS: 1, Burst: 2})
	breaker := circuit.NewManager(circuit.DefaultConfig())
	var sources []news.Source
	// Production feed list is operator-supplied via config; none shipped
	// by default so a fresh install does not silently hit third-party
	// RSS endpoints.
	_ = limiter
	_ = breaker
	return news.NewAggregator(sources, cfg.Watchlist, sentiment.NewAnalyzer())
}

func buildCoordinator(cfg config.Config, dbPath, providerURL string) (*coordinator.Coordinator, store.Store, error) {
	logger := log.Logger
	holidays, err := cfg.Holidays()
	if err != nil {
		return nil, nil, err
	}
	mclock, err := clock.New(holidays)
	if err != nil {
		return nil, nil, errkind.New(errkind.ConfigInvalid, "main.buildCoordinator", err)
	}

	st, err := store.OpenSQLite(dbPath)
	if err != nil {
		return nil, nil, err
	}

	deps := coordinator.Deps{
		Clock:    mclock,
		Prices:   buildPriceSource(providerURL, logger),
		News:     buildNewsAggregator(cfg, logger),
		Store:    st,
		Channels: buildChannels(cfg),
	}
	coord := coordinator.New(cfg, deps, logger)
	return coord, st, nil
}

func runServe(ctx context.Context, configPath, dbPath, providerURL, httpAddr string, aggressive bool, only []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	coord, st, err := buildCoordinator(cfg, dbPath, providerURL)
	if err != nil {
		return err
	}
	defer st.Close()
	coord.SetAggressive(aggressive)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := coord.Start(sigCtx, only...); err != nil {
		return err
	}

	if httpAddr != "" {
		router := httpapi.NewRouter(coord.Health, coord.Metrics(), log.Logger)
		go func() {
			if err := httpapi.Serve(httpAddr, router); err != nil {
				log.Error().Err(err).Msg("http surface stopped")
			}
		}()
	}

	<-sigCtx.Done()
	log.Info().Msg("shutdown signal received, draining (10s cap)")

	drained := make(chan struct{})
	go func() { coord.Stop(); close(drained) }()
	select {
	case <-drained:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown drain exceeded 10s, exiting anyway")
	}
	return nil
}

func runScore(ctx context.Context, configPath, dbPath, providerURL, symbol string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	coord, st, err := buildCoordinator(cfg, dbPath, providerURL)
	if err != nil {
		return err
	}
	defer st.Close()

	ms, err := coord.Score(ctx, symbol)
	if err != nil {
		return err
	}
	return printJSON(ms)
}

func runScanOnce(ctx context.Context, configPath, dbPath, providerURL string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	coord, st, err := buildCoordinator(cfg, dbPath, providerURL)
	if err != nil {
		return err
	}
	defer st.Close()

	candidates := coord.RunOpportunityOnce(ctx)
	return printJSON(candidates)
}

func runAlertsRecent(ctx context.Context, dbPath string, since time.Duration) error {
	st, err := store.OpenSQLite(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	alerts, err := st.RecentAlerts(ctx, time.Now().Add(-since))
	if err != nil {
		return err
	}
	return printJSON(alerts)
}

func runHealth(ctx context.Context, configPath, dbPath, providerURL string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	coord, st, err := buildCoordinator(cfg, dbPath, providerURL)
	if err != nil {
		return err
	}
	defer st.Close()
	return printJSON(coord.Health())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
