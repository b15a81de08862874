// Package config loads and validates the branchmind server's TOML
// configuration, following the teacher's internal/config pattern: a
// root Config struct with nested toml-tagged sections, a Duration type
// that unmarshals human-readable strings, and an applyDefaults pass
// plus a validate pass run by Load.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like
// "60s" or "2m", mirroring the teacher's config.Duration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the root server configuration.
type Config struct {
	General  General             `toml:"general"`
	Budgets  Budgets             `toml:"budgets"`
	Schema   Schema              `toml:"schema"`
	Jobs     Jobs                `toml:"jobs"`
	RPC      RPC                 `toml:"rpc"`
	Features map[string]bool     `toml:"features"`
}

// General covers process-wide concerns: storage location and logging.
type General struct {
	WorkspaceDir string `toml:"workspace_dir"`
	LogLevel     string `toml:"log_level"`
}

// BudgetProfile is one named default max_chars selection, spec.md §6.2.
type BudgetProfile struct {
	MaxChars int `toml:"max_chars"`
}

// Budgets holds the three budget_profile defaults a tool call may select.
type Budgets struct {
	Portal  BudgetProfile `toml:"portal"`
	Default BudgetProfile `toml:"default"`
	Audit   BudgetProfile `toml:"audit"`
}

// Effective resolves the max_chars for a named profile, falling back to
// Default's when the name is empty or unrecognized.
func (b Budgets) Effective(profile string) int {
	switch strings.ToLower(strings.TrimSpace(profile)) {
	case "portal":
		return b.Portal.MaxChars
	case "audit":
		return b.Audit.MaxChars
	default:
		return b.Default.MaxChars
	}
}

// Schema gates schema-version downgrade behavior (spec.md §6.5).
type Schema struct {
	ExpectedVersion  int  `toml:"expected_version"`
	AllowAutoMigrate bool `toml:"allow_auto_migrate"`
}

// Jobs configures runner-lease defaults (spec.md §4.1.6/§5).
type Jobs struct {
	LeaseTTL          Duration `toml:"lease_ttl"`
	SweepInterval     Duration `toml:"sweep_interval"`
	MaxRetriesBeforeFail int   `toml:"max_retries_before_fail"`
}

// RPC configures the stdio JSON-RPC transport (spec.md §6.1).
type RPC struct {
	MaxBodyBytes   int64    `toml:"max_body_bytes"`
	DefaultFraming string   `toml:"default_framing"` // "newline" | "content-length"; validated here but not read by rpcserver, which detects framing from the peer's first byte
	LineProtocol   bool     `toml:"line_protocol"`    // not read by rpcserver; whether a response is line-protocol text is decided by Server.Renderer alone
}

// Load reads and validates a branchmind TOML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validating %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration used when no TOML file is
// supplied (e.g. ad-hoc tool invocations, tests).
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.General.WorkspaceDir == "" {
		cfg.General.WorkspaceDir = "./branchmind-data"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.Budgets.Portal.MaxChars == 0 {
		cfg.Budgets.Portal.MaxChars = 900
	}
	if cfg.Budgets.Default.MaxChars == 0 {
		cfg.Budgets.Default.MaxChars = 8000
	}
	if cfg.Budgets.Audit.MaxChars == 0 {
		cfg.Budgets.Audit.MaxChars = 32000
	}
	if cfg.Schema.ExpectedVersion == 0 {
		cfg.Schema.ExpectedVersion = 1
	}
	if cfg.Jobs.LeaseTTL.Duration == 0 {
		cfg.Jobs.LeaseTTL.Duration = 5 * time.Minute
	}
	if cfg.Jobs.SweepInterval.Duration == 0 {
		cfg.Jobs.SweepInterval.Duration = 30 * time.Second
	}
	if cfg.Jobs.MaxRetriesBeforeFail == 0 {
		cfg.Jobs.MaxRetriesBeforeFail = 5
	}
	if cfg.RPC.MaxBodyBytes == 0 {
		cfg.RPC.MaxBodyBytes = 16 * 1024 * 1024 // spec.md §6.1's 16 MiB cap
	}
	if cfg.RPC.DefaultFraming == "" {
		cfg.RPC.DefaultFraming = "newline"
	}
	if cfg.Features == nil {
		cfg.Features = map[string]bool{}
	}
}

func validate(cfg *Config) error {
	if cfg.Budgets.Portal.MaxChars <= 0 || cfg.Budgets.Default.MaxChars <= 0 || cfg.Budgets.Audit.MaxChars <= 0 {
		return fmt.Errorf("budget profiles must all have positive max_chars")
	}
	if cfg.Jobs.LeaseTTL.Duration <= 0 {
		return fmt.Errorf("jobs.lease_ttl must be > 0")
	}
	if cfg.RPC.MaxBodyBytes <= 0 {
		return fmt.Errorf("rpc.max_body_bytes must be > 0")
	}
	switch cfg.RPC.DefaultFraming {
	case "newline", "content-length":
	default:
		return fmt.Errorf("rpc.default_framing must be %q or %q, got %q", "newline", "content-length", cfg.RPC.DefaultFraming)
	}
	return nil
}

// FeatureEnabled reports whether a named optional sub-behavior is on,
// defaulting to true for flags never mentioned in the config file — a
// command that checks a flag before running a sub-behavior emits
// FEATURE_DISABLED (spec.md §7) only for flags explicitly set false.
func (cfg *Config) FeatureEnabled(name string) bool {
	if cfg == nil {
		return true
	}
	enabled, ok := cfg.Features[name]
	if !ok {
		return true
	}
	return enabled
}
