// Package config provides pipeline and phase configuration for the story
// engine.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PhaseConfig is the declarative configuration of one pipeline phase.
type PhaseConfig struct {
	// Name is the unique phase name, used in events, logs and metrics.
	Name string `json:"name" yaml:"name"`

	// Enabled removes the phase from the pipeline entirely when false. This
	// is static wiring; per-request feature flags are carried by the request
	// and short-circuit inside the phase instead.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// ModelRole selects the provider model used by this phase's operations.
	ModelRole string `json:"model_role" yaml:"model_role"`

	// TimeoutSeconds bounds the phase's dependency call. Zero uses the
	// pipeline default.
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Validate validates the phase configuration.
func (c *PhaseConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("PhaseConfig.Name is required")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("phase '%s' has negative timeout", c.Name)
	}
	return nil
}

// PipelineConfig defines an ordered sequence of phases.
type PipelineConfig struct {
	Name   string         `json:"name" yaml:"name"`
	Phases []*PhaseConfig `json:"phases" yaml:"phases"`

	// DefaultTimeoutSeconds applies to phases without their own timeout.
	DefaultTimeoutSeconds int `json:"default_timeout_seconds" yaml:"default_timeout_seconds"`
}

// NewPipelineConfig creates a pipeline config with defaults and no phases.
func NewPipelineConfig(name string) *PipelineConfig {
	return &PipelineConfig{
		Name:                  name,
		Phases:                make([]*PhaseConfig, 0),
		DefaultTimeoutSeconds: 60,
	}
}

// DefaultPipelineConfig returns the standard story generation pipeline:
// classify, narrative, translation, image prompt, suggestions.
func DefaultPipelineConfig() *PipelineConfig {
	cfg := NewPipelineConfig("generation")
	cfg.Phases = []*PhaseConfig{
		{Name: "classify", Enabled: true, ModelRole: "utility", TimeoutSeconds: 15},
		{Name: "narrative", Enabled: true, ModelRole: "narrator"},
		{Name: "translation", Enabled: true, ModelRole: "utility", TimeoutSeconds: 30},
		{Name: "image_prompt", Enabled: true, ModelRole: "utility", TimeoutSeconds: 30},
		{Name: "suggestions", Enabled: true, ModelRole: "utility", TimeoutSeconds: 30},
	}
	return cfg
}

// Validate validates the pipeline configuration.
func (c *PipelineConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("PipelineConfig.Name is required")
	}
	if c.DefaultTimeoutSeconds <= 0 {
		c.DefaultTimeoutSeconds = 60
	}

	seen := make(map[string]bool, len(c.Phases))
	for _, phase := range c.Phases {
		if err := phase.Validate(); err != nil {
			return err
		}
		if seen[phase.Name] {
			return fmt.Errorf("duplicate phase name: %s", phase.Name)
		}
		seen[phase.Name] = true
	}
	return nil
}

// GetPhaseOrder returns the names of enabled phases in execution order.
func (c *PipelineConfig) GetPhaseOrder() []string {
	order := make([]string, 0, len(c.Phases))
	for _, phase := range c.Phases {
		if phase.Enabled {
			order = append(order, phase.Name)
		}
	}
	return order
}

// GetPhase returns the configuration of the named phase.
func (c *PipelineConfig) GetPhase(name string) (*PhaseConfig, bool) {
	for _, phase := range c.Phases {
		if phase.Name == name {
			return phase, true
		}
	}
	return nil, false
}

// PhaseTimeoutSeconds returns the effective timeout for the named phase.
func (c *PipelineConfig) PhaseTimeoutSeconds(name string) int {
	if phase, ok := c.GetPhase(name); ok && phase.TimeoutSeconds > 0 {
		return phase.TimeoutSeconds
	}
	return c.DefaultTimeoutSeconds
}

// LoadFile reads a PipelineConfig from a YAML file and validates it.
func LoadFile(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline config: %w", err)
	}

	cfg := NewPipelineConfig("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
