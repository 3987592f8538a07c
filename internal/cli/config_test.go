package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
download_directory = "/var/cache/ossgadget"
use_cache = true
format = "sarif-v2"
rules_dir = "/etc/ossgadget/rules"
parallel = 4
db = "/var/lib/ossgadget/scans.db"
`)

	cfg, err := loadConfigFile(path)
	if err != nil {
		t.Fatalf("loadConfigFile returned error: %v", err)
	}
	if cfg.DownloadDirectory != "/var/cache/ossgadget" {
		t.Errorf("DownloadDirectory = %q", cfg.DownloadDirectory)
	}
	if !cfg.UseCache {
		t.Error("UseCache = false, want true")
	}
	if cfg.Format != "sarif-v2" {
		t.Errorf("Format = %q", cfg.Format)
	}
	if cfg.RulesDir != "/etc/ossgadget/rules" {
		t.Errorf("RulesDir = %q", cfg.RulesDir)
	}
	if cfg.Parallel != 4 {
		t.Errorf("Parallel = %d", cfg.Parallel)
	}
	if cfg.DB != "/var/lib/ossgadget/scans.db" {
		t.Errorf("DB = %q", cfg.DB)
	}
}

func TestLoadConfigFile_Partial(t *testing.T) {
	path := writeConfig(t, `format = "sarif-v1"`)

	cfg, err := loadConfigFile(path)
	if err != nil {
		t.Fatalf("loadConfigFile returned error: %v", err)
	}
	if cfg.Format != "sarif-v1" {
		t.Errorf("Format = %q", cfg.Format)
	}
	if cfg.DownloadDirectory != "" || cfg.Parallel != 0 {
		t.Errorf("unset keys should stay zero: %+v", cfg)
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	if _, err := loadConfigFile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for a missing config file")
	}
}

func TestLoadConfigFile_Invalid(t *testing.T) {
	path := writeConfig(t, "format = [unclosed")
	if _, err := loadConfigFile(path); err == nil {
		t.Error("expected error for malformed TOML")
	}
}

func TestResolveConfig_FileOverridesDefaults(t *testing.T) {
	configPath = writeConfig(t, `
rules_dir = "/from/file"
parallel = 3
`)
	t.Cleanup(func() { configPath = "" })

	cfg, err := resolveConfig(rootCmd)
	if err != nil {
		t.Fatalf("resolveConfig returned error: %v", err)
	}
	if cfg.RulesDir != "/from/file" {
		t.Errorf("RulesDir = %q, want the file's value", cfg.RulesDir)
	}
	if cfg.Parallel != 3 {
		t.Errorf("Parallel = %d, want 3", cfg.Parallel)
	}
	// Keys the file does not set keep their defaults.
	if cfg.Format != "text" {
		t.Errorf("Format = %q, want default %q", cfg.Format, "text")
	}
}

func TestResolveConfig_EnvOverridesFile(t *testing.T) {
	configPath = writeConfig(t, `rules_dir = "/from/file"`)
	t.Cleanup(func() { configPath = "" })
	t.Setenv("OSSGADGET_RULES_DIR", "/from/env")

	cfg, err := resolveConfig(rootCmd)
	if err != nil {
		t.Fatalf("resolveConfig returned error: %v", err)
	}
	if cfg.RulesDir != "/from/env" {
		t.Errorf("RulesDir = %q, want the environment's value", cfg.RulesDir)
	}
}

func TestResolveConfig_FlagBeatsEnvAndFile(t *testing.T) {
	configPath = writeConfig(t, `rules_dir = "/from/file"`)
	origRulesDir := rulesDir
	t.Cleanup(func() {
		configPath = ""
		rulesDir = origRulesDir
		rootCmd.Flags().Lookup("rules-dir").Changed = false
	})
	t.Setenv("OSSGADGET_RULES_DIR", "/from/env")

	if err := rootCmd.Flags().Set("rules-dir", "/from/flag"); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}

	cfg, err := resolveConfig(rootCmd)
	if err != nil {
		t.Fatalf("resolveConfig returned error: %v", err)
	}
	if cfg.RulesDir != "/from/flag" {
		t.Errorf("RulesDir = %q, want the flag's value", cfg.RulesDir)
	}
}

func TestResolveConfig_ExplicitConfigMustExist(t *testing.T) {
	configPath = filepath.Join(t.TempDir(), "nope.toml")
	t.Cleanup(func() { configPath = "" })

	_, err := resolveConfig(rootCmd)
	if err == nil {
		t.Fatal("expected error for a missing explicit config file")
	}
	if !strings.Contains(err.Error(), "config file") {
		t.Errorf("err = %v", err)
	}
}

func TestResolveConfig_EnvParallel(t *testing.T) {
	t.Setenv("OSSGADGET_PARALLEL", "6")

	cfg, err := resolveConfig(rootCmd)
	if err != nil {
		t.Fatalf("resolveConfig returned error: %v", err)
	}
	if cfg.Parallel != 6 {
		t.Errorf("Parallel = %d, want 6", cfg.Parallel)
	}
}

func TestResolveConfig_EnvParallelInvalidIgnored(t *testing.T) {
	t.Setenv("OSSGADGET_PARALLEL", "zero")

	cfg, err := resolveConfig(rootCmd)
	if err != nil {
		t.Fatalf("resolveConfig returned error: %v", err)
	}
	if cfg.Parallel != 1 {
		t.Errorf("Parallel = %d, want the default 1", cfg.Parallel)
	}
}
