package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/henryzz0/OSSGadget/internal/analyzer"
	"github.com/henryzz0/OSSGadget/internal/colorutil"
	"github.com/henryzz0/OSSGadget/internal/fetcher"
	"github.com/henryzz0/OSSGadget/internal/purl"
	"github.com/henryzz0/OSSGadget/internal/report"
	"github.com/henryzz0/OSSGadget/internal/rules"
	"github.com/henryzz0/OSSGadget/internal/runner"
	"github.com/henryzz0/OSSGadget/internal/store"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

// ErrNoTargets indicates an empty target list; fatal before any work
var ErrNoTargets = errors.New("no package identifiers supplied")

// Informational invocations exit non-zero: no analysis ran, so the
// process must not report success.
var (
	errHelpRequested    = errors.New("help requested, no analysis performed")
	errVersionRequested = errors.New("version requested, no analysis performed")
)

// Construction seams for the batch collaborators; tests substitute
// spies here, production wiring stays in one place.
var (
	newAcquirer = func() runner.Acquirer { return fetcher.NewGate() }
	newAnalyzer = func(rulesetDir string) runner.Analyzer { return analyzer.New(rulesetDir) }
)

var (
	downloadDir     string
	useCache        bool
	formatFlag      string
	outputFile      string
	rulesDir        string
	parallelWorkers int
	noColor         bool
	showVersion     bool
	dbPath          string
	configPath      string
)

var rootCmd = &cobra.Command{
	Use:   "oss-detect-backdoor [package-url]...",
	Short: "Scan open-source packages for backdoor indicators",
	Long: `oss-detect-backdoor - OSS Gadget backdoor detector

Scans published packages for indicators of intentionally inserted
backdoors by matching a backdoor-specific ruleset against package
source. Each target is downloaded (or reused from the local cache),
extracted, and scanned; results for the whole batch are rendered as
text or SARIF.

Targets are package-url identifiers:
  pkg:npm/left-pad@1.3.0
  pkg:npm/%40types/node@20.5.0
  pkg:pypi/requests@2.31.0
  pkg:golang/github.com/gorilla/mux@v1.8.0

A failed target is reported in the output and never aborts the batch.

Quick Start:
  oss-detect-backdoor init-rules               Write the built-in ruleset (first time)
  oss-detect-backdoor pkg:npm/left-pad@1.3.0   Scan one package
  oss-detect-backdoor --format sarif-v2 ...    Machine-readable output`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDetect(cmd, args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		printVersion(cmd.OutOrStdout())
		return errVersionRequested
	},
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "oss-detect-backdoor v%s\n", version)
	fmt.Fprintln(w, "OSS Gadget - https://github.com/henryzz0/OSSGadget")
}

var initRulesCmd = &cobra.Command{
	Use:   "init-rules [directory]",
	Short: "Write the built-in backdoor ruleset to a directory",
	Long: `Write the built-in backdoor detection ruleset to a directory.

Scans never load built-in rules implicitly: only the configured
ruleset directory is used, and scanning aborts when it is missing or
empty. Run this once to materialize a starting ruleset, then edit or
extend the files in place.

Defaults to ` + "`~/.ossgadget/rules`" + ` when no directory is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := rules.DefaultRulesDir()
		if len(args) > 0 {
			dir = args[0]
		}
		path, err := rules.MaterializeBackdoorRules(dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return err
		}
		fmt.Printf("Ruleset written to %s\n", path)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show scan history statistics",
	Long: `Display statistics about the local scan-history database.

Shows:
  - Total packages and versions scanned
  - Scans that produced findings
  - Failed scans
  - Last scan timestamp`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats(cmd)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <package-url>",
	Short: "Show the recorded scan outcome for a package version",
	Long: `Look up one package version in the local scan history.

Prints when it was last scanned, how many findings the scan produced,
and whether the scan failed. The target must carry an exact version;
history is keyed by ecosystem, name and version.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistory(cmd, args[0])
	},
}

func runDetect(cmd *cobra.Command, args []string) error {
	if showVersion {
		printVersion(cmd.OutOrStdout())
		return errVersionRequested
	}
	if noColor {
		colorutil.ApplyNoColor()
	}
	report.ToolVersion = version

	cfg, err := resolveConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}

	// Fail-fast validation, in order: targets, format, ruleset. All of
	// it happens before any network or download-directory activity.
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "Error: %v\n", ErrNoTargets)
		return ErrNoTargets
	}

	format, err := report.ParseFormat(cfg.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}

	if err := analyzer.ValidateRulesetDir(cfg.RulesDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Run 'oss-detect-backdoor init-rules' to write the built-in ruleset.\n")
		return err
	}

	// No download directory means an ephemeral one, removed after the
	// run; nothing is cached across invocations in that mode.
	dlDir := cfg.DownloadDir
	if dlDir == "" {
		tmp, err := os.MkdirTemp("", "oss-detect-backdoor-")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return err
		}
		defer os.RemoveAll(tmp)
		dlDir = tmp
	}

	fmt.Fprintf(os.Stderr, "Scanning %d package(s) with ruleset %s\n", len(args), cfg.RulesDir)
	start := time.Now()

	r := runner.New(newAcquirer(), newAnalyzer(cfg.RulesDir))
	rep := r.Run(args, runner.Config{
		DownloadDir: dlDir,
		UseCache:    cfg.UseCache,
		Parallel:    cfg.Parallel,
	})

	rendered, err := report.Render(rep, format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}

	if cfg.OutputFile != "" {
		if err := os.WriteFile(cfg.OutputFile, rendered, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: could not write report: %v\n", err)
			return err
		}
		fmt.Fprintf(os.Stderr, "Report written to %s\n", cfg.OutputFile)
	} else {
		os.Stdout.Write(rendered)
	}

	saveHistory(cfg.DBPath, rep)

	fmt.Fprintf(os.Stderr, "Done in %v\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// saveHistory records the batch in the scan-history database.
// Best-effort: history problems never fail a completed scan.
func saveHistory(dbPath string, rep *report.Report) {
	db, err := store.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not open scan history: %v\n", err)
		return
	}
	defer db.Close()

	now := time.Now()
	for i := range rep.Results {
		res := &rep.Results[i]
		if res.Target.Ecosystem == "" {
			continue // unparsable identifier, nothing to key on
		}
		rec := &store.ScanRecord{
			PackageName:  res.Target.FullName(),
			Version:      res.Target.Version,
			Ecosystem:    res.Target.Ecosystem,
			ScannedAt:    now,
			FindingCount: len(res.Findings),
			MaxSeverity:  maxSeverity(res.Findings),
		}
		if res.Err != nil {
			rec.ErrorKind = string(res.Err.Kind)
		}
		if err := db.SaveRecord(rec); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not save scan history for %s: %v\n", res.Target, err)
		}
	}
}

func maxSeverity(findings []report.Finding) string {
	best := ""
	bestScore := -1
	for i := range findings {
		if score := rules.SeverityScore(findings[i].Severity); score > bestScore {
			bestScore = score
			best = string(findings[i].Severity)
		}
	}
	return best
}

func runStats(cmd *cobra.Command) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}

	db, err := store.New(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not open database: %v\n", err)
		return err
	}
	defer db.Close()

	return writeStats(cmd.OutOrStdout(), db, cfg.DBPath)
}

func writeStats(w io.Writer, db *store.Store, dbPath string) error {
	stats, err := db.GetStats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not get stats: %v\n", err)
		return err
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintln(w, "  OSS Gadget - Scan History")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "  Database path:    %s\n", dbPath)
	fmt.Fprintf(w, "  Total packages:   %d\n", stats.TotalPackages)
	fmt.Fprintf(w, "  Total scans:      %d\n", stats.TotalScans)
	fmt.Fprintf(w, "  With findings:    %d\n", stats.WithFindings)
	fmt.Fprintf(w, "  Failed scans:     %d\n", stats.FailedScans)
	if !stats.LastScanned.IsZero() {
		fmt.Fprintf(w, "  Last scanned:     %s\n", stats.LastScanned.Format("2006-01-02 15:04:05"))
	}

	flagged, err := db.GetFlagged(1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not list flagged packages: %v\n", err)
		return err
	}
	if len(flagged) > 0 {
		fmt.Fprintln(w, "───────────────────────────────────────────────────────────")
		fmt.Fprintln(w, "  Flagged packages:")
		for _, rec := range flagged {
			fmt.Fprintf(w, "    %s@%s (%s): %d finding(s), max severity %s\n",
				rec.PackageName, rec.Version, rec.Ecosystem, rec.FindingCount, rec.MaxSeverity)
		}
	}
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	return nil
}

func runHistory(cmd *cobra.Command, raw string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}

	id, err := purl.Parse(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	if id.Version == "" {
		err := fmt.Errorf("history needs an exact version: %s", raw)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}

	db, err := store.New(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not open database: %v\n", err)
		return err
	}
	defer db.Close()

	rec, err := db.GetRecord(id.FullName(), id.Version, id.Ecosystem)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}

	w := cmd.OutOrStdout()
	if rec == nil {
		fmt.Fprintf(w, "No scan recorded for %s\n", id)
		return nil
	}

	fmt.Fprintf(w, "%s\n", id)
	fmt.Fprintf(w, "  Scanned:      %s\n", rec.ScannedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  Findings:     %d\n", rec.FindingCount)
	if rec.MaxSeverity != "" {
		fmt.Fprintf(w, "  Max severity: %s\n", rec.MaxSeverity)
	}
	if rec.ErrorKind != "" {
		fmt.Fprintf(w, "  Error:        %s\n", rec.ErrorKind)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", store.DefaultDBPath(), "Path to scan-history database")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to TOML configuration file")

	rootCmd.Flags().StringVar(&downloadDir, "download-directory", "", "Directory for downloaded packages (default: ephemeral temp directory)")
	rootCmd.Flags().BoolVar(&useCache, "use-cache", false, "Reuse previously downloaded packages when present")
	rootCmd.Flags().StringVar(&formatFlag, "format", "text", "Output format: text, sarif-v1, sarif-v2")
	rootCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "Write the report to a file instead of stdout")
	rootCmd.Flags().StringVar(&rulesDir, "rules-dir", rules.DefaultRulesDir(), "Directory containing the backdoor ruleset")
	rootCmd.Flags().IntVar(&parallelWorkers, "parallel", 1, "Number of packages to process concurrently")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Print version information and exit")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initRulesCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)
}

// Execute runs the CLI. Help and version requests return a non-nil
// error: they print their output but the process exits non-zero
// because no analysis ran.
func Execute() error {
	helpShown := false
	defaultHelp := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		helpShown = true
		defaultHelp(cmd, args)
	})

	if err := rootCmd.Execute(); err != nil {
		return err
	}
	if helpShown {
		return errHelpRequested
	}
	return nil
}
