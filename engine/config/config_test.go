package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPipelineConfig(t *testing.T) {
	cfg := DefaultPipelineConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "generation", cfg.Name)
	assert.Equal(t,
		[]string{"classify", "narrative", "translation", "image_prompt", "suggestions"},
		cfg.GetPhaseOrder(),
	)
}

func TestValidateRequiresName(t *testing.T) {
	cfg := NewPipelineConfig("")
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsDuplicatePhases(t *testing.T) {
	cfg := NewPipelineConfig("p")
	cfg.Phases = []*PhaseConfig{
		{Name: "narrative", Enabled: true},
		{Name: "narrative", Enabled: true},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestValidateRejectsUnnamedPhase(t *testing.T) {
	cfg := NewPipelineConfig("p")
	cfg.Phases = []*PhaseConfig{{Enabled: true}}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeTimeout(t *testing.T) {
	cfg := NewPipelineConfig("p")
	cfg.Phases = []*PhaseConfig{{Name: "narrative", TimeoutSeconds: -1}}
	assert.Error(t, cfg.Validate())
}

func TestGetPhaseOrderSkipsDisabled(t *testing.T) {
	cfg := NewPipelineConfig("p")
	cfg.Phases = []*PhaseConfig{
		{Name: "classify", Enabled: false},
		{Name: "narrative", Enabled: true},
		{Name: "suggestions", Enabled: true},
	}

	assert.Equal(t, []string{"narrative", "suggestions"}, cfg.GetPhaseOrder())
}

func TestPhaseTimeoutFallsBackToDefault(t *testing.T) {
	cfg := NewPipelineConfig("p")
	cfg.Phases = []*PhaseConfig{
		{Name: "classify", Enabled: true, TimeoutSeconds: 15},
		{Name: "narrative", Enabled: true},
	}

	assert.Equal(t, 15, cfg.PhaseTimeoutSeconds("classify"))
	assert.Equal(t, 60, cfg.PhaseTimeoutSeconds("narrative"))
	assert.Equal(t, 60, cfg.PhaseTimeoutSeconds("unknown"))
}

func TestGetPhase(t *testing.T) {
	cfg := DefaultPipelineConfig()

	phase, ok := cfg.GetPhase("narrative")
	require.True(t, ok)
	assert.Equal(t, "narrator", phase.ModelRole)

	_, ok = cfg.GetPhase("daydream")
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	yaml := `
name: custom
default_timeout_seconds: 45
phases:
  - name: narrative
    enabled: true
    model_role: narrator
  - name: translation
    enabled: true
    model_role: utility
    timeout_seconds: 20
`
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "custom", cfg.Name)
	assert.Equal(t, []string{"narrative", "translation"}, cfg.GetPhaseOrder())
	assert.Equal(t, 20, cfg.PhaseTimeoutSeconds("translation"))
	assert.Equal(t, 45, cfg.PhaseTimeoutSeconds("narrative"))
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadFileInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("phases: []\n"), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}
