package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort            = 3000
	DefaultHost            = "0.0.0.0"
	DefaultConfigFilename  = "config.json"
	DefaultModelsFilename  = "models.json"
	DefaultTimeoutSeconds  = 120
	DefaultReasoningEffort = "medium"
	DefaultTokensPerChar   = 0.25
)

// Pricing is the USD price per 1000 tokens for one upstream model.
type Pricing struct {
	In  float64 `json:"in"`
	Out float64 `json:"out"`
}

// Config is the immutable per-process configuration snapshot.
type Config struct {
	Host string `json:"HOST,omitempty"`
	Port int    `json:"PORT,omitempty"`

	// Server-held OpenRouter key and the optional shared secret gating it.
	OpenRouterKey     string `json:"OPENROUTER_API_KEY,omitempty"`
	RequireProxyToken bool   `json:"REQUIRE_PROXY_TOKEN,omitempty"`
	ProxyToken        string `json:"PROXY_TOKEN,omitempty"`

	// Model overrides, in the priority order the resolver applies them.
	ForceModel    string `json:"FORCE_MODEL,omitempty"`
	PrimaryModel  string `json:"PRIMARY_MODEL,omitempty"`
	FallbackModel string `json:"FALLBACK_MODEL,omitempty"`

	// Arbitrary requested-id -> upstream-id mapping, the highest-specificity
	// resolver source after the force override.
	ModelMap map[string]string `json:"MODEL_MAP,omitempty"`

	ReasoningEffort string `json:"REASONING_EFFORT,omitempty"`

	EstimateUsage bool    `json:"ESTIMATE_USAGE,omitempty"`
	TokensPerChar float64 `json:"TOKENS_PER_CHAR,omitempty"`

	Pricing map[string]Pricing `json:"PRICING,omitempty"`

	TimeoutSeconds int `json:"TIMEOUT_SECONDS,omitempty"`
}

// Timeout returns the upstream request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PriceFor looks up pricing for a resolved model id. The second return is
// false when the model has no entry, meaning cost is unknown rather than zero.
func (c *Config) PriceFor(model string) (Pricing, bool) {
	p, ok := c.Pricing[model]
	return p, ok
}

// Manager loads the configuration once and serves an immutable snapshot.
// Reload replaces the snapshot atomically; nothing mutates it in place.
type Manager struct {
	baseDir     string
	configValue atomic.Value
}

func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir}
}

// Load reads the config file if present, layers environment variables on
// top, applies defaults and stores the snapshot.
func (m *Manager) Load() (*Config, error) {
	// Env files are optional; a missing file is not an error.
	_ = godotenv.Load(filepath.Join(m.baseDir, ".env"))
	_ = godotenv.Load(".env")

	cfg := &Config{}

	if data, err := os.ReadFile(m.ConfigPath()); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config file: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	m.configValue.Store(cfg)

	return cfg, nil
}

// Get returns the current snapshot, loading it on first use.
func (m *Manager) Get() *Config {
	if v := m.configValue.Load(); v != nil {
		return v.(*Config)
	}

	cfg, err := m.Load()
	if err != nil {
		cfg = &Config{}
		applyDefaults(cfg)
	}

	return cfg
}

// Reload re-reads all sources and swaps the snapshot.
func (m *Manager) Reload() (*Config, error) {
	return m.Load()
}

func (m *Manager) ConfigPath() string {
	return filepath.Join(m.baseDir, DefaultConfigFilename)
}

// ModelsPath is where the generated model alias table is cached.
func (m *Manager) ModelsPath() string {
	return filepath.Join(m.baseDir, DefaultModelsFilename)
}

func (m *Manager) BaseDir() string {
	return m.baseDir
}

func (m *Manager) Exists() bool {
	_, err := os.Stat(m.ConfigPath())
	return err == nil
}

// Save writes the snapshot back to the config file and swaps it in.
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(m.ConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	m.configValue.Store(cfg)

	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}

	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.OpenRouterKey = v
	}

	if v := os.Getenv("REQUIRE_PROXY_TOKEN"); v != "" {
		cfg.RequireProxyToken = parseBool(v)
	}

	if v := os.Getenv("PROXY_TOKEN"); v != "" {
		cfg.ProxyToken = v
	}

	if v := os.Getenv("FORCE_MODEL"); v != "" {
		cfg.ForceModel = v
	}

	if v := os.Getenv("PRIMARY_MODEL"); v != "" {
		cfg.PrimaryModel = v
	}

	if v := os.Getenv("FALLBACK_MODEL"); v != "" {
		cfg.FallbackModel = v
	}

	if v := os.Getenv("MODEL_MAP"); v != "" {
		var mm map[string]string
		if err := json.Unmarshal([]byte(v), &mm); err == nil {
			cfg.ModelMap = mm
		}
	}

	if v := os.Getenv("REASONING_EFFORT"); v != "" {
		cfg.ReasoningEffort = v
	}

	if v := os.Getenv("ESTIMATE_USAGE"); v != "" {
		cfg.EstimateUsage = parseBool(v)
	}

	if v := os.Getenv("TOKENS_PER_CHAR"); v != "" {
		if ratio, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TokensPerChar = ratio
		}
	}

	if v := os.Getenv("PRICING"); v != "" {
		var pricing map[string]Pricing
		if err := json.Unmarshal([]byte(v), &pricing); err == nil {
			cfg.Pricing = pricing
		}
	}

	if v := os.Getenv("TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.TimeoutSeconds = secs
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}

	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	if cfg.ReasoningEffort == "" {
		cfg.ReasoningEffort = DefaultReasoningEffort
	}

	if cfg.TokensPerChar <= 0 {
		cfg.TokensPerChar = DefaultTokensPerChar
	}

	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = DefaultTimeoutSeconds
	}
}

func parseBool(v string) bool {
	return v == "true" || v == "1" || v == "yes"
}
