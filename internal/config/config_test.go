package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileSurfacesConfigInvalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadValidFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	body := "watchlist: [ACME, FOO]\nscan:\n  opportunity_min_score: 90\nmarket:\n  timezone: America/New_York\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"ACME", "FOO"}, cfg.Watchlist)
	require.Equal(t, 90.0, cfg.Scan.OpportunityMinScore)
}

func TestValidateRejectsNonExchangeTimezone(t *testing.T) {
	cfg := Default()
	cfg.Market.Timezone = "UTC"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsMalformedHoliday(t *testing.T) {
	cfg := Default()
	cfg.Market.Holidays = []string{"not-a-date"}
	require.Error(t, cfg.Validate())
}

func TestChannelEnabledDefaultsTrueWhenUnset(t *testing.T) {
	cfg := Default()
	require.True(t, cfg.ChannelEnabled("nonexistent"))
}

func TestCooldownFallsBackToDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, 300_000_000_000, int(cfg.Cooldown("unknown_kind")))
}
