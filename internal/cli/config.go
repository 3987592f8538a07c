package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml"
	"github.com/spf13/cobra"
)

// runConfig is the resolved, immutable configuration for one run.
// Precedence, lowest to highest: built-in defaults, config file,
// environment, explicit flags.
type runConfig struct {
	DownloadDir string
	UseCache    bool
	Format      string
	OutputFile  string
	RulesDir    string
	Parallel    int
	DBPath      string
}

// fileConfig is the TOML configuration file shape
type fileConfig struct {
	DownloadDirectory string `toml:"download_directory"`
	UseCache          bool   `toml:"use_cache"`
	Format            string `toml:"format"`
	RulesDir          string `toml:"rules_dir"`
	Parallel          int    `toml:"parallel"`
	DB                string `toml:"db"`
}

// defaultConfigPath returns the config file loaded when --config is
// not given. Absence of the file is not an error.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".ossgadget", "config.toml")
}

// loadConfigFile parses a TOML configuration file
func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg fileConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// resolveConfig merges defaults, config file, environment and flags
// into the run configuration.
func resolveConfig(cmd *cobra.Command) (*runConfig, error) {
	cfg := &runConfig{
		DownloadDir: downloadDir,
		UseCache:    useCache,
		Format:      formatFlag,
		OutputFile:  outputFile,
		RulesDir:    rulesDir,
		Parallel:    parallelWorkers,
		DBPath:      dbPath,
	}

	// Config file: explicit --config must exist; the default path is
	// optional.
	path := configPath
	optional := false
	if path == "" {
		path = defaultConfigPath()
		optional = true
	}
	fc, err := loadConfigFile(path)
	if err != nil {
		if !optional {
			return nil, err
		}
		fc = nil
	}

	flags := cmd.Flags()
	if fc != nil {
		if fc.DownloadDirectory != "" && !flags.Changed("download-directory") {
			cfg.DownloadDir = fc.DownloadDirectory
		}
		if fc.UseCache && !flags.Changed("use-cache") {
			cfg.UseCache = true
		}
		if fc.Format != "" && !flags.Changed("format") {
			cfg.Format = fc.Format
		}
		if fc.RulesDir != "" && !flags.Changed("rules-dir") {
			cfg.RulesDir = fc.RulesDir
		}
		if fc.Parallel > 0 && !flags.Changed("parallel") {
			cfg.Parallel = fc.Parallel
		}
		if fc.DB != "" && !flags.Changed("db") {
			cfg.DBPath = fc.DB
		}
	}

	// Environment sits between the config file and explicit flags
	if v := os.Getenv("OSSGADGET_RULES_DIR"); v != "" && !flags.Changed("rules-dir") {
		cfg.RulesDir = v
	}
	if v := os.Getenv("OSSGADGET_DOWNLOAD_DIR"); v != "" && !flags.Changed("download-directory") {
		cfg.DownloadDir = v
	}
	if v := os.Getenv("OSSGADGET_DB"); v != "" && !flags.Changed("db") {
		cfg.DBPath = v
	}
	if v := os.Getenv("OSSGADGET_PARALLEL"); v != "" && !flags.Changed("parallel") {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Parallel = n
		}
	}

	return cfg, nil
}
