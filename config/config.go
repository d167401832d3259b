// Package config loads the small amount of environment-driven
// configuration the demo host needs, overlaying a .env file if present.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the host's runtime knobs. RiskConfig itself stays a
// literal constructed by the host, per the core design.
type Config struct {
	TickRateHzPerInstrument float64
	RunSeconds              int
}

const (
	defaultTickRateHz = 2.0
	defaultRunSeconds = 50
)

// Load overlays a .env file (if present, ignoring a missing file) then
// reads HPTS_TICK_RATE_HZ and HPTS_RUN_SECONDS, falling back to sensible
// defaults for anything unset or unparsable.
func Load() Config {
	_ = godotenv.Overload()

	cfg := Config{
		TickRateHzPerInstrument: defaultTickRateHz,
		RunSeconds:              defaultRunSeconds,
	}

	if v := os.Getenv("HPTS_TICK_RATE_HZ"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.TickRateHzPerInstrument = f
		}
	}
	if v := os.Getenv("HPTS_RUN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RunSeconds = n
		}
	}

	return cfg
}
