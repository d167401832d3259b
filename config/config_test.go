package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	os.Unsetenv("HPTS_TICK_RATE_HZ")
	os.Unsetenv("HPTS_RUN_SECONDS")

	cfg := Load()
	require.Equal(t, defaultTickRateHz, cfg.TickRateHzPerInstrument)
	require.Equal(t, defaultRunSeconds, cfg.RunSeconds)
}

func TestLoad_ReadsEnvOverrides(t *testing.T) {
	t.Setenv("HPTS_TICK_RATE_HZ", "7.5")
	t.Setenv("HPTS_RUN_SECONDS", "30")

	cfg := Load()
	require.Equal(t, 7.5, cfg.TickRateHzPerInstrument)
	require.Equal(t, 30, cfg.RunSeconds)
}

func TestLoad_IgnoresUnparsableOverrides(t *testing.T) {
	t.Setenv("HPTS_TICK_RATE_HZ", "not-a-number")
	t.Setenv("HPTS_RUN_SECONDS", "also-not-a-number")

	cfg := Load()
	require.Equal(t, defaultTickRateHz, cfg.TickRateHzPerInstrument)
	require.Equal(t, defaultRunSeconds, cfg.RunSeconds)
}
