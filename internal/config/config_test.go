package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBudget(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"100000", 100000, false},
		{"128k", 128000, false},
		{"128K", 128000, false},
		{"1.5m", 1500000, false},
		{" 2m ", 2000000, false},
		{"1_000", 1000, false},
		{"0", 0, false},
		{"1.5e+06", 1500000, false},
		{"-5", 0, true},
		{"lots", 0, true},
		{"", 0, true},
		{"k", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseBudget(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := Load(t.TempDir(), NewViper())
	require.NoError(t, err)

	require.Equal(t, DefaultTokenBudget, cfg.TokenBudget)
	require.Equal(t, StrategyBalanced, cfg.Strategy)
	require.Equal(t, DirectionDependencies, cfg.Direction)
	require.Equal(t, DefaultDepth, cfg.Depth)
	require.Equal(t, DefaultCacheDir, cfg.CacheDir)
	require.Empty(t, cfg.Source)
}

func TestLoadYAMLFile(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "distill.yaml"), `token_budget: 64k
strategy: surgical
focus_keywords: [auth, "billing.Invoice"]
ignore:
  - "*.gen.go"
depth: 3
direction: both
recursive_agent: true
persona: debug
`)

	cfg, err := Load(root, NewViper())
	require.NoError(t, err)

	require.Equal(t, 64000, cfg.TokenBudget)
	require.Equal(t, StrategySurgical, cfg.Strategy)
	require.True(t, cfg.Surgical())
	require.Equal(t, []string{"auth", "billing.Invoice"}, cfg.FocusKeywords)
	require.Equal(t, []string{"*.gen.go"}, cfg.Ignore)
	require.Equal(t, 3, cfg.Depth)
	require.Equal(t, DirectionBoth, cfg.Direction)
	require.True(t, cfg.RecursiveAgent)
	require.Equal(t, "debug", cfg.Persona)
	require.Equal(t, filepath.Join(root, "distill.yaml"), cfg.Source)
}

func TestLoadTOMLFileWithCoverageFile(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "distill.toml"), `token_budget = 5000
strategy = "aggressive"
coverage_file = "coverage.txt"
`)
	mustWriteFile(t, filepath.Join(root, "coverage.txt"), "# hit during the failing test\napp/api.py\n\napp/models.py\n")

	cfg, err := Load(root, NewViper())
	require.NoError(t, err)

	require.Equal(t, 5000, cfg.TokenBudget)
	require.Equal(t, 2500, cfg.PlanningBudget())
	require.Equal(t, []string{"app/api.py", "app/models.py"}, cfg.CoverageMap)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "distill.yaml"), "strategy: balanced\ntoken_budget: 1000\n")
	t.Setenv("DISTILL_STRATEGY", "faithful")
	t.Setenv("DISTILL_TOKEN_BUDGET", "2k")

	cfg, err := Load(root, NewViper())
	require.NoError(t, err)

	require.Equal(t, StrategyFaithful, cfg.Strategy)
	require.True(t, cfg.Unlimited())
	require.Equal(t, 2000, cfg.TokenBudget)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"strategy", "strategy: reckless\n", "strategy"},
		{"direction", "direction: sideways\n", "direction"},
		{"budget", "token_budget: plenty\n", "token_budget"},
		{"depth", "depth: -1\n", "depth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			mustWriteFile(t, filepath.Join(root, "distill.yaml"), tt.body)

			_, err := Load(root, NewViper())
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %v", err)
			require.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}
