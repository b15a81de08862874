package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "branchmind.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
[general]
workspace_dir = "/tmp/branchmind-test"
log_level = "debug"

[jobs]
lease_ttl = "90s"
`

func TestLoadAppliesDefaultsOnTopOfExplicitFields(t *testing.T) {
	path := writeTestConfig(t, minimalConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/branchmind-test", cfg.General.WorkspaceDir)
	assert.Equal(t, "debug", cfg.General.LogLevel)
	assert.Equal(t, 90, int(cfg.Jobs.LeaseTTL.Duration.Seconds()))
	assert.Equal(t, 8000, cfg.Budgets.Default.MaxChars)
	assert.Equal(t, "newline", cfg.RPC.DefaultFraming)
	assert.EqualValues(t, 16*1024*1024, cfg.RPC.MaxBodyBytes)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "./branchmind-data", cfg.General.WorkspaceDir)
	assert.NoError(t, validate(cfg))
}

func TestLoadRejectsBadFraming(t *testing.T) {
	path := writeTestConfig(t, `
[rpc]
default_framing = "smoke-signal"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestFeatureEnabledDefaultsTrueForUnknownFlags(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.FeatureEnabled("anything"))

	cfg.Features["graph_merge"] = false
	assert.False(t, cfg.FeatureEnabled("graph_merge"))
	assert.True(t, cfg.FeatureEnabled("jobs"))
}

func TestBudgetsEffectiveFallsBackToDefaultProfile(t *testing.T) {
	cfg := Default()
	assert.Equal(t, cfg.Budgets.Portal.MaxChars, cfg.Budgets.Effective("portal"))
	assert.Equal(t, cfg.Budgets.Audit.MaxChars, cfg.Budgets.Effective("AUDIT"))
	assert.Equal(t, cfg.Budgets.Default.MaxChars, cfg.Budgets.Effective("unknown-profile"))
	assert.Equal(t, cfg.Budgets.Default.MaxChars, cfg.Budgets.Effective(""))
}
