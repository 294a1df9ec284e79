// Package config is the ambient configuration layer: a YAML file plus
// environment overrides, in the same Load/parse/Validate shape as the
// teacher's pipeline config, generalized to the core's
// telemetry/agent/notification/budget settings.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/veritas-kanban/core/internal/agentconfig"
	"github.com/veritas-kanban/core/internal/telemetry"
)

// Notifications holds the failure-alert feature flag and webhook target
// (spec.md §4.8).
type Notifications struct {
	OnAgentFailure bool   `yaml:"onAgentFailure"`
	WebhookURL     string `yaml:"webhookUrl,omitempty"`
}

// Budget holds the budgetMetrics thresholds (spec.md §4.7).
type Budget struct {
	TokenBudget      int64   `yaml:"tokenBudget"`
	CostBudget       float64 `yaml:"costBudget"`
	WarningThreshold float64 `yaml:"warningThreshold"`
}

// Config is the full set of ambient settings for the veritasd binary.
type Config struct {
	Port          int                `yaml:"port"`
	Telemetry     telemetry.Config   `yaml:"telemetry"`
	Agents        agentconfig.Config `yaml:"agents"`
	Notifications Notifications      `yaml:"notifications"`
	Budget        Budget             `yaml:"budget"`
	LogRoot       string             `yaml:"logRoot"`
	TraceRoot     string             `yaml:"traceRoot"`
}

// defaults mirrors telemetry.DefaultConfig plus the core's own defaults
// for the fields telemetry.Config doesn't cover.
func defaults() Config {
	return Config{
		Port:      8080,
		Telemetry: telemetry.DefaultConfig(),
		Budget: Budget{
			WarningThreshold: 80,
		},
		LogRoot:   ".veritas-kanban/logs",
		TraceRoot: ".veritas-kanban/traces",
	}
}

// Load reads path, falling back to built-in defaults for anything the
// file omits (or if the file itself doesn't exist), then applies
// environment overrides (spec.md §6 CLI surface: PORT,
// TELEMETRY_RETENTION_DAYS, TELEMETRY_COMPRESS_DAYS).
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	applyEnv(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if raw := os.Getenv("PORT"); raw != "" {
		if p, err := strconv.Atoi(raw); err == nil {
			cfg.Port = p
		}
	}
	cfg.Telemetry.RetentionDays = telemetry.ParseRetentionDays(
		os.Getenv("TELEMETRY_RETENTION_DAYS"), cfg.Telemetry.RetentionDays)
	cfg.Telemetry.CompressAfterDays = telemetry.ParseCompressAfterDays(
		os.Getenv("TELEMETRY_COMPRESS_DAYS"), cfg.Telemetry.CompressAfterDays)
}

// Validate reports every configuration problem found, rather than
// failing fast on the first one, matching the teacher's accumulate-all
// Validate shape.
func Validate(cfg *Config) []error {
	var errs []error

	if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port: must be in 1..65535, got %d", cfg.Port))
	}
	if cfg.Telemetry.RetentionDays < 1 {
		errs = append(errs, fmt.Errorf("telemetry.retentionDays: must be >= 1"))
	}
	if len(cfg.Agents.Agents) == 0 {
		errs = append(errs, fmt.Errorf("agents: at least one agent must be configured"))
	}

	names := make(map[string]bool)
	for i, a := range cfg.Agents.Agents {
		if a.Type == "" {
			errs = append(errs, fmt.Errorf("agents[%d]: type is required", i))
		} else if names[a.Type] {
			errs = append(errs, fmt.Errorf("agents[%d]: duplicate type %q", i, a.Type))
		} else {
			names[a.Type] = true
		}
		if a.Command == "" {
			errs = append(errs, fmt.Errorf("agents[%d] (%s): command is required", i, a.Type))
		}
	}

	if cfg.Budget.WarningThreshold <= 0 || cfg.Budget.WarningThreshold > 100 {
		errs = append(errs, fmt.Errorf("budget.warningThreshold: must be in (0, 100]"))
	}

	return errs
}
