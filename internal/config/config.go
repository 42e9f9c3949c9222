// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/opensource-finance/pensionrules/internal/domain"
)

// ParseEnv loads configuration from environment variables into target.
// Fields whose variable is unset keep their current value.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load returns the tier defaults selected by PENSION_TIER, overlaid with any
// PENSION_* variables.
func Load() (*domain.Config, error) {
	var cfg *domain.Config
	tier := domain.Tier(strings.ToLower(strings.TrimSpace(os.Getenv("PENSION_TIER"))))
	switch tier {
	case "", domain.TierCommunity:
		cfg = domain.DefaultConfig()
	case domain.TierPro:
		cfg = domain.ProConfig()
	default:
		return nil, fmt.Errorf("unknown tier %q", tier)
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if os.Getenv("PENSION_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	if tier == "" {
		tier = domain.TierCommunity
	}
	cfg.Tier = tier

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Server.Port)
	}
	if cfg.Worker.Enabled && len(cfg.Worker.TenantIDs) == 0 {
		return fmt.Errorf("worker enabled without tenants")
	}
	if cfg.Rules.PolicyWorkers <= 0 {
		return fmt.Errorf("policy workers must be positive, got %d", cfg.Rules.PolicyWorkers)
	}
	if cfg.Rules.COLAProjectionYears < 0 {
		return fmt.Errorf("COLA projection years must not be negative, got %d", cfg.Rules.COLAProjectionYears)
	}
	return nil
}

// NewLogger builds the process logger from the logging settings.
func NewLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
