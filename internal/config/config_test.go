package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	mgr := NewManager(t.TempDir())

	cfg, err := mgr.Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultReasoningEffort, cfg.ReasoningEffort)
	assert.Equal(t, DefaultTokensPerChar, cfg.TokensPerChar)
	assert.Equal(t, DefaultTimeoutSeconds, cfg.TimeoutSeconds)
	assert.Equal(t, 120*time.Second, cfg.Timeout())
	assert.False(t, cfg.RequireProxyToken)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(dir)

	body := `{
		"PORT": 8080,
		"OPENROUTER_API_KEY": "sk-or-v1-test",
		"MODEL_MAP": {"sonnet": "mistralai/mistral-large"},
		"PRICING": {"m": {"in": 0.003, "out": 0.015}}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFilename), []byte(body), 0o644))

	cfg, err := mgr.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sk-or-v1-test", cfg.OpenRouterKey)
	assert.Equal(t, "mistralai/mistral-large", cfg.ModelMap["sonnet"])

	price, ok := cfg.PriceFor("m")
	require.True(t, ok)
	assert.Equal(t, 0.003, price.In)
	assert.Equal(t, 0.015, price.Out)

	_, ok = cfg.PriceFor("unknown-model")
	assert.False(t, ok, "missing pricing means unknown, not zero")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFilename), []byte(`{"PORT": 8080}`), 0o644))

	t.Setenv("PORT", "9090")
	t.Setenv("FORCE_MODEL", "forced/model")
	t.Setenv("ESTIMATE_USAGE", "true")
	t.Setenv("TOKENS_PER_CHAR", "0.5")

	cfg, err := mgr.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port, "environment wins over the config file")
	assert.Equal(t, "forced/model", cfg.ForceModel)
	assert.True(t, cfg.EstimateUsage)
	assert.Equal(t, 0.5, cfg.TokensPerChar)
}

func TestLoad_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFilename), []byte("{broken"), 0o644))

	_, err := NewManager(dir).Load()
	assert.Error(t, err)
}

func TestManager_SaveAndReload(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(dir)

	assert.False(t, mgr.Exists())

	require.NoError(t, mgr.Save(&Config{Port: 4000, ProxyToken: "secret"}))
	assert.True(t, mgr.Exists())

	// Save swaps the snapshot in place.
	assert.Equal(t, 4000, mgr.Get().Port)

	cfg, err := mgr.Reload()
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "secret", cfg.ProxyToken)
	assert.Equal(t, DefaultHost, cfg.Host, "defaults still apply after reload")
}

func TestManager_GetWithoutLoad(t *testing.T) {
	mgr := NewManager(t.TempDir())

	cfg := mgr.Get()
	require.NotNil(t, cfg)
	assert.Equal(t, DefaultPort, cfg.Port)
}

func TestParseBool(t *testing.T) {
	assert.True(t, parseBool("true"))
	assert.True(t, parseBool("1"))
	assert.True(t, parseBool("yes"))
	assert.False(t, parseBool("false"))
	assert.False(t, parseBool(""))
	assert.False(t, parseBool("TRUE"))
}
