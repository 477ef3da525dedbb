// Package config loads distill settings from config files, DISTILL_* env vars and CLI flags.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Strategy selects how aggressively the budget is applied.
type Strategy string

const (
	StrategyFaithful   Strategy = "faithful"
	StrategyBalanced   Strategy = "balanced"
	StrategySurgical   Strategy = "surgical"
	StrategyAggressive Strategy = "aggressive"
)

// Direction selects which graph edges propagation follows.
type Direction string

const (
	DirectionDependencies Direction = "dependencies"
	DirectionDependents   Direction = "dependents"
	DirectionBoth         Direction = "both"
)

const (
	DefaultTokenBudget = 100000
	DefaultDepth       = 2
	DefaultCacheDir    = ".distill"
	EnvPrefix          = "DISTILL"
)

// ConfigFiles are searched in the project root, first match wins.
var ConfigFiles = []string{
	"distill.yaml",
	"distill.yml",
	"distill.toml",
	filepath.Join(DefaultCacheDir, "config.yaml"),
}

// Config holds all settings for one run.
type Config struct {
	TokenBudget    int       `mapstructure:"-"`
	Strategy       Strategy  `mapstructure:"strategy"`
	Ignore         []string  `mapstructure:"ignore"`
	Include        []string  `mapstructure:"include"`
	FocusKeywords  []string  `mapstructure:"focus_keywords"`
	Feature        string    `mapstructure:"feature"`
	ProblemContext string    `mapstructure:"problem_context"`
	Persona        string    `mapstructure:"persona"`
	CoverageMap    []string  `mapstructure:"coverage_map"`
	CoverageFile   string    `mapstructure:"coverage_file"`
	RecursiveAgent bool      `mapstructure:"recursive_agent"`
	Depth          int       `mapstructure:"depth"`
	Direction      Direction `mapstructure:"direction"`
	Annotate       bool      `mapstructure:"annotate"`
	ForceRefresh   bool      `mapstructure:"force_refresh"`
	CacheDir       string    `mapstructure:"cache_dir"`
	LogLevel       string    `mapstructure:"log_level"`

	// Source is the config file that was read, empty when defaults were used.
	Source string `mapstructure:"-"`
}

// ConfigError reports an invalid setting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Message)
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		TokenBudget: DefaultTokenBudget,
		Strategy:    StrategyBalanced,
		Depth:       DefaultDepth,
		Direction:   DirectionDependencies,
		CacheDir:    DefaultCacheDir,
		LogLevel:    "info",
	}
}

// NewViper returns a viper instance with defaults and env binding applied.
// Callers bind CLI flags onto it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	d := DefaultConfig()
	v.SetDefault("token_budget", d.TokenBudget)
	v.SetDefault("strategy", string(d.Strategy))
	v.SetDefault("ignore", []string{})
	v.SetDefault("include", []string{})
	v.SetDefault("focus_keywords", []string{})
	v.SetDefault("feature", "")
	v.SetDefault("problem_context", "")
	v.SetDefault("persona", "")
	v.SetDefault("coverage_map", []string{})
	v.SetDefault("coverage_file", "")
	v.SetDefault("recursive_agent", false)
	v.SetDefault("depth", d.Depth)
	v.SetDefault("direction", string(d.Direction))
	v.SetDefault("annotate", false)
	v.SetDefault("force_refresh", false)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("log_level", d.LogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// Load reads the first config file found under root into v, then decodes and validates.
func Load(root string, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = NewViper()
	}

	source := ""
	for _, name := range ConfigFiles {
		candidate := filepath.Join(root, name)
		if _, err := os.Stat(candidate); err == nil {
			source = candidate
			break
		}
	}
	if source != "" {
		v.SetConfigFile(source)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", source, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Source = source

	budget, err := ParseBudget(v.GetString("token_budget"))
	if err != nil {
		return nil, &ConfigError{Field: "token_budget", Message: err.Error()}
	}
	cfg.TokenBudget = budget

	if cfg.CoverageFile != "" {
		covered, err := readCoverageFile(root, cfg.CoverageFile)
		if err != nil {
			return nil, &ConfigError{Field: "coverage_file", Message: err.Error()}
		}
		cfg.CoverageMap = append(cfg.CoverageMap, covered...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerations and ranges.
func (c *Config) Validate() error {
	switch c.Strategy {
	case StrategyFaithful, StrategyBalanced, StrategySurgical, StrategyAggressive:
	default:
		return &ConfigError{Field: "strategy", Message: fmt.Sprintf("unknown strategy %q", c.Strategy)}
	}
	switch c.Direction {
	case DirectionDependencies, DirectionDependents, DirectionBoth:
	default:
		return &ConfigError{Field: "direction", Message: fmt.Sprintf("unknown direction %q", c.Direction)}
	}
	if c.TokenBudget < 0 {
		return &ConfigError{Field: "token_budget", Message: "must not be negative"}
	}
	if c.Depth < 0 {
		return &ConfigError{Field: "depth", Message: "must not be negative"}
	}
	if strings.TrimSpace(c.CacheDir) == "" {
		return &ConfigError{Field: "cache_dir", Message: "must not be empty"}
	}
	return nil
}

// PlanningBudget returns the raw budget handed to governance.
// The aggressive strategy plans against half of it.
func (c *Config) PlanningBudget() int {
	if c.Strategy == StrategyAggressive {
		return c.TokenBudget / 2
	}
	return c.TokenBudget
}

// Unlimited reports whether the budget cap is disabled.
func (c *Config) Unlimited() bool {
	return c.Strategy == StrategyFaithful
}

// Surgical reports whether unreferenced members are collapsed in traced files.
func (c *Config) Surgical() bool {
	return c.Strategy == StrategySurgical
}

// ParseBudget accepts plain integers and k/m suffixed values ("128k", "1.5m").
func ParseBudget(raw string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, errors.New("empty budget")
	}
	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier = 1_000
		s = strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		multiplier = 1_000_000
		s = strings.TrimSuffix(s, "m")
	}
	s = strings.ReplaceAll(s, "_", "")
	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("cannot parse budget %q", raw)
	}
	if value < 0 {
		return 0, fmt.Errorf("budget %q must not be negative", raw)
	}
	return int(math.Round(value * multiplier)), nil
}

func readCoverageFile(root, name string) ([]string, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, name)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make([]string, 0)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, filepath.ToSlash(line))
	}
	return out, scanner.Err()
}
