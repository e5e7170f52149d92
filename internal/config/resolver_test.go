package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestResolveConfig_Defaults(t *testing.T) {
	cfg, err := ResolveConfig(ResolveOptions{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")})
	if err != nil {
		t.Fatalf("ResolveConfig failed: %v", err)
	}

	if cfg.BatchSize.Value != "1024" || cfg.BatchSize.Source != SourceDefault {
		t.Errorf("unexpected batch size default: %+v", cfg.BatchSize)
	}
	if cfg.EmptyGenePolicy.Value != "warn" {
		t.Errorf("unexpected policy default: %+v", cfg.EmptyGenePolicy)
	}
	if cfg.DBPath.Value == "" {
		t.Error("expected db path default")
	}
}

func TestResolveConfig_FileValues(t *testing.T) {
	path := writeConfig(t, "db_path: /data/expr.db\nbatch_size: 512\nempty_gene_policy: reject\n")

	cfg, err := ResolveConfig(ResolveOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("ResolveConfig failed: %v", err)
	}

	if cfg.DBPath.Value != "/data/expr.db" || cfg.DBPath.Source != SourceConfig {
		t.Errorf("unexpected db path: %+v", cfg.DBPath)
	}
	if cfg.BatchSize.Value != "512" {
		t.Errorf("unexpected batch size: %+v", cfg.BatchSize)
	}
	if cfg.EmptyGenePolicy.Value != "reject" {
		t.Errorf("unexpected policy: %+v", cfg.EmptyGenePolicy)
	}
}

func TestResolveConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "batch_size: 512\n")
	t.Setenv("EXPRDB_BATCH_SIZE", "2048")

	cfg, err := ResolveConfig(ResolveOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("ResolveConfig failed: %v", err)
	}
	if cfg.BatchSize.Value != "2048" || cfg.BatchSize.Source != SourceEnv {
		t.Errorf("expected env to win over file: %+v", cfg.BatchSize)
	}
}

func TestResolveConfig_CLIOverridesEnv(t *testing.T) {
	t.Setenv("EXPRDB_BATCH_SIZE", "2048")

	cfg, err := ResolveConfig(ResolveOptions{
		ConfigPath:   filepath.Join(t.TempDir(), "absent.yaml"),
		CLIBatchSize: "64",
	})
	if err != nil {
		t.Fatalf("ResolveConfig failed: %v", err)
	}
	if cfg.BatchSize.Value != "64" || cfg.BatchSize.Source != SourceCLI {
		t.Errorf("expected CLI to win over env: %+v", cfg.BatchSize)
	}
}

func TestResolveConfig_ExpandsHomePath(t *testing.T) {
	cfg, err := ResolveConfig(ResolveOptions{
		ConfigPath: filepath.Join(t.TempDir(), "absent.yaml"),
		CLIDBPath:  "~/data/expr.db",
	})
	if err != nil {
		t.Fatalf("ResolveConfig failed: %v", err)
	}
	home, _ := os.UserHomeDir()
	if cfg.DBPath.Value != filepath.Join(home, "data", "expr.db") {
		t.Errorf("expected expanded home path, got %q", cfg.DBPath.Value)
	}
}

func TestResolveConfig_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "batch_size: [not an int\n")

	if _, err := ResolveConfig(ResolveOptions{ConfigPath: path}); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestBatchSizeValue(t *testing.T) {
	cfg, err := ResolveConfig(ResolveOptions{
		ConfigPath:   filepath.Join(t.TempDir(), "absent.yaml"),
		CLIBatchSize: "256",
	})
	if err != nil {
		t.Fatalf("ResolveConfig failed: %v", err)
	}
	n, err := cfg.BatchSizeValue()
	if err != nil {
		t.Fatalf("BatchSizeValue failed: %v", err)
	}
	if n != 256 {
		t.Errorf("expected 256, got %d", n)
	}

	cfg.BatchSize.Value = "0"
	if _, err := cfg.BatchSizeValue(); err == nil {
		t.Error("expected error for batch size 0")
	}
	cfg.BatchSize.Value = "abc"
	if _, err := cfg.BatchSizeValue(); err == nil {
		t.Error("expected error for non-integer batch size")
	}
}
