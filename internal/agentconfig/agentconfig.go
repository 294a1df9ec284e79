// Package agentconfig defines the agent configuration collaborator
// interface (spec.md §6) consumed by the supervisor, plus a YAML-backed
// loader in the teacher's own internal/config idiom.
package agentconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Agent describes one configured external agent binary.
type Agent struct {
	Type    string   `yaml:"type"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Enabled bool     `yaml:"enabled"`
	Name    string   `yaml:"name"`
}

// Config is the agent configuration collaborator's shape.
type Config struct {
	DefaultAgent string  `yaml:"defaultAgent"`
	Agents       []Agent `yaml:"agents"`
}

// Provider is the agent configuration collaborator interface.
type Provider interface {
	GetConfig() (*Config, error)
}

// Find returns the agent of the given type, or false if not configured.
func (c *Config) Find(agentType string) (Agent, bool) {
	for _, a := range c.Agents {
		if a.Type == agentType {
			return a, true
		}
	}
	return Agent{}, false
}

// StaticConfig is a Provider that always returns a fixed configuration,
// used by tests and by the thin CLI surface when loaded once at startup.
type StaticConfig struct {
	Cfg *Config
}

func (s *StaticConfig) GetConfig() (*Config, error) {
	return s.Cfg, nil
}

// Load reads an agent configuration YAML file, matching the teacher's
// config.Load in internal/config/config.go.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading agent config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing agent config YAML: %w", err)
	}
	return &cfg, nil
}
