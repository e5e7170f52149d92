// Package config resolves exprdb settings from a YAML config file,
// environment variables, and CLI flags, in increasing precedence.
// Each resolved value remembers where it came from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// ResolvedValue is a setting plus the provenance of its value.
type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// ResolveOptions carries CLI-level overrides into ResolveConfig.
type ResolveOptions struct {
	ConfigPath     string
	CLIDBPath      string
	CLIBatchSize   string
	CLIEmptyPolicy string
}

// ResolvedConfig holds every setting after precedence resolution.
type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath          ResolvedValue `json:"db_path"`
	BatchSize       ResolvedValue `json:"batch_size"`
	EmptyGenePolicy ResolvedValue `json:"empty_gene_policy"`
}

type fileConfig struct {
	DBPath          string `yaml:"db_path"`
	BatchSize       int    `yaml:"batch_size"`
	EmptyGenePolicy string `yaml:"empty_gene_policy"`
}

// DefaultConfigPath is ~/.exprdb/config.yaml.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".exprdb", "config.yaml")
}

// ResolveConfig resolves all settings: built-in defaults, then the
// config file, then EXPRDB_* environment variables, then CLI flags.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath:      path,
		DBPath:          ResolvedValue{Value: "~/.exprdb/expr.db", Source: SourceDefault, From: "built-in default"},
		BatchSize:       ResolvedValue{Value: "1024", Source: SourceDefault, From: "built-in default"},
		EmptyGenePolicy: ResolvedValue{Value: "warn", Source: SourceDefault, From: "built-in default"},
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		if cfg.BatchSize > 0 {
			apply(&out.BatchSize, strconv.Itoa(cfg.BatchSize), SourceConfig, path)
		}
		apply(&out.EmptyGenePolicy, cfg.EmptyGenePolicy, SourceConfig, path)
	}

	applyEnv(&out.DBPath, "EXPRDB_DB")
	applyEnv(&out.DBPath, "EXPRDB_DB_PATH")
	applyEnv(&out.BatchSize, "EXPRDB_BATCH_SIZE")
	applyEnv(&out.EmptyGenePolicy, "EXPRDB_EMPTY_GENE_POLICY")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.BatchSize, opts.CLIBatchSize, SourceCLI, "--batch-size")
	apply(&out.EmptyGenePolicy, opts.CLIEmptyPolicy, SourceCLI, "--empty-policy")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}

	return out, nil
}

// BatchSizeValue parses the resolved batch size.
func (r ResolvedConfig) BatchSizeValue() (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(r.BatchSize.Value))
	if err != nil {
		return 0, fmt.Errorf("batch size %q (from %s) is not an integer", r.BatchSize.Value, r.BatchSize.From)
	}
	if n < 1 {
		return 0, fmt.Errorf("batch size must be at least 1, got %d (from %s)", n, r.BatchSize.From)
	}
	return n, nil
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
