package cli

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/henryzz0/OSSGadget/internal/analyzer"
	"github.com/henryzz0/OSSGadget/internal/purl"
	"github.com/henryzz0/OSSGadget/internal/report"
	"github.com/henryzz0/OSSGadget/internal/runner"
	"github.com/henryzz0/OSSGadget/internal/store"
)

// spyAcquirer records Resolve calls and serves a canned path
type spyAcquirer struct {
	calls int
	path  string
}

func (a *spyAcquirer) Resolve(id purl.PackageURL, downloadDir string, useCache bool) (string, error) {
	a.calls++
	return a.path, nil
}

// spyAnalyzer records Analyze calls and returns no findings
type spyAnalyzer struct {
	calls int
}

func (s *spyAnalyzer) Analyze(localPath string) ([]report.Finding, error) {
	s.calls++
	return nil, nil
}

// stubCollaborators swaps the batch collaborators for spies
func stubCollaborators(t *testing.T, acq runner.Acquirer, ana runner.Analyzer) {
	t.Helper()
	origAcq, origAna := newAcquirer, newAnalyzer
	newAcquirer = func() runner.Acquirer { return acq }
	newAnalyzer = func(string) runner.Analyzer { return ana }
	t.Cleanup(func() {
		newAcquirer, newAnalyzer = origAcq, origAna
	})
}

// saveFlags snapshots the flag globals runDetect reads
func saveFlags(t *testing.T) {
	t.Helper()
	origFormat := formatFlag
	origRules := rulesDir
	origOutput := outputFile
	origDownload := downloadDir
	origDB := dbPath
	t.Cleanup(func() {
		formatFlag = origFormat
		rulesDir = origRules
		outputFile = origOutput
		downloadDir = origDownload
		dbPath = origDB
	})
}

func writeRulesetDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	ruleYAML := `
rules:
  - id: eval-use
    name: "Dynamic Evaluation"
    severity: high
    patterns:
      - value: "eval("
`
	if err := os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte(ruleYAML), 0644); err != nil {
		t.Fatalf("failed to write ruleset: %v", err)
	}
	return dir
}

func TestRunDetect_InvalidFormatBeforeAcquisition(t *testing.T) {
	saveFlags(t)
	acq := &spyAcquirer{}
	ana := &spyAnalyzer{}
	stubCollaborators(t, acq, ana)
	formatFlag = "bogus"

	err := runDetect(rootCmd, []string{"pkg:npm/left-pad@1.3.0"})
	if !errors.Is(err, report.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
	if acq.calls != 0 {
		t.Errorf("acquirer called %d times before format validation, want 0", acq.calls)
	}
	if ana.calls != 0 {
		t.Errorf("analyzer called %d times before format validation, want 0", ana.calls)
	}
}

func TestRunDetect_MissingRulesetBeforeAcquisition(t *testing.T) {
	saveFlags(t)
	acq := &spyAcquirer{}
	stubCollaborators(t, acq, &spyAnalyzer{})
	rulesDir = filepath.Join(t.TempDir(), "missing")

	err := runDetect(rootCmd, []string{"pkg:npm/left-pad@1.3.0"})
	if !errors.Is(err, analyzer.ErrRulesetUnavailable) {
		t.Fatalf("err = %v, want ErrRulesetUnavailable", err)
	}
	if acq.calls != 0 {
		t.Errorf("acquirer called %d times despite missing ruleset, want 0", acq.calls)
	}
}

func TestRunDetect_NoTargets(t *testing.T) {
	saveFlags(t)
	acq := &spyAcquirer{}
	stubCollaborators(t, acq, &spyAnalyzer{})

	err := runDetect(rootCmd, nil)
	if !errors.Is(err, ErrNoTargets) {
		t.Fatalf("err = %v, want ErrNoTargets", err)
	}
	if acq.calls != 0 {
		t.Errorf("acquirer called %d times for an empty batch, want 0", acq.calls)
	}
}

func TestRunDetect_BatchCompletesWithTargetFailures(t *testing.T) {
	saveFlags(t)
	acq := &spyAcquirer{path: t.TempDir()}
	stubCollaborators(t, acq, &spyAnalyzer{})
	rulesDir = writeRulesetDir(t)
	outputFile = filepath.Join(t.TempDir(), "report.txt")
	dbPath = filepath.Join(t.TempDir(), "scans.db")

	err := runDetect(rootCmd, []string{"not-a-valid-purl", "pkg:npm/left-pad@1.3.0"})
	if err != nil {
		t.Fatalf("runDetect returned error: %v (per-target failures must not fail the run)", err)
	}

	data, err := os.ReadFile(outputFile)
	if err != nil {
		t.Fatalf("report file missing: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "not-a-valid-purl") || !strings.Contains(out, "invalid-identifier") {
		t.Errorf("report missing the failed target block:\n%s", out)
	}
	if !strings.Contains(out, "pkg:npm/left-pad@1.3.0") {
		t.Errorf("report missing the successful target block:\n%s", out)
	}
	if acq.calls != 1 {
		t.Errorf("acquirer calls = %d, want 1 (only the valid target)", acq.calls)
	}
}

func TestExecute_HelpExitsNonZero(t *testing.T) {
	rootCmd.SetArgs([]string{"--help"})
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	t.Cleanup(func() {
		rootCmd.Flags().Lookup("help").Value.Set("false")
		rootCmd.Flags().Lookup("help").Changed = false
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	if err := Execute(); !errors.Is(err, errHelpRequested) {
		t.Errorf("err = %v, want errHelpRequested", err)
	}
}

func TestExecute_VersionCommandExitsNonZero(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetArgs([]string{"version"})
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(io.Discard)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	if err := Execute(); !errors.Is(err, errVersionRequested) {
		t.Errorf("err = %v, want errVersionRequested", err)
	}
	if !strings.Contains(buf.String(), "oss-detect-backdoor v"+version) {
		t.Errorf("version output = %q", buf.String())
	}
}

func TestExecute_VersionFlagExitsNonZero(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetArgs([]string{"--version"})
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(io.Discard)
	t.Cleanup(func() {
		showVersion = false
		rootCmd.Flags().Lookup("version").Changed = false
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	if err := Execute(); !errors.Is(err, errVersionRequested) {
		t.Errorf("err = %v, want errVersionRequested", err)
	}
	if !strings.Contains(buf.String(), "oss-detect-backdoor v"+version) {
		t.Errorf("version output = %q", buf.String())
	}
}

func seedHistory(t *testing.T) (string, *store.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scans.db")
	db, err := store.New(path)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	records := []*store.ScanRecord{
		{PackageName: "left-pad", Version: "1.3.0", Ecosystem: "npm", ScannedAt: time.Now(), FindingCount: 0},
		{PackageName: "evil-pkg", Version: "2.0.0", Ecosystem: "npm", ScannedAt: time.Now(), FindingCount: 3, MaxSeverity: "critical"},
	}
	for _, rec := range records {
		if err := db.SaveRecord(rec); err != nil {
			t.Fatalf("failed to seed history: %v", err)
		}
	}
	return path, db
}

func TestWriteStats_FlaggedPackages(t *testing.T) {
	path, db := seedHistory(t)

	var buf bytes.Buffer
	if err := writeStats(&buf, db, path); err != nil {
		t.Fatalf("writeStats returned error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Total scans:      2") {
		t.Errorf("stats output missing totals:\n%s", out)
	}
	if !strings.Contains(out, "Flagged packages:") {
		t.Errorf("stats output missing flagged section:\n%s", out)
	}
	if !strings.Contains(out, "evil-pkg@2.0.0 (npm): 3 finding(s), max severity critical") {
		t.Errorf("stats output missing flagged entry:\n%s", out)
	}
	if strings.Contains(out, "left-pad@1.3.0") {
		t.Errorf("clean package should not be flagged:\n%s", out)
	}
}

func TestRunHistory(t *testing.T) {
	saveFlags(t)
	path, _ := seedHistory(t)
	dbPath = path

	var buf bytes.Buffer
	historyCmd.SetOut(&buf)
	t.Cleanup(func() { historyCmd.SetOut(nil) })

	if err := runHistory(historyCmd, "pkg:npm/evil-pkg@2.0.0"); err != nil {
		t.Fatalf("runHistory returned error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Findings:     3") {
		t.Errorf("history output missing finding count:\n%s", out)
	}
	if !strings.Contains(out, "Max severity: critical") {
		t.Errorf("history output missing severity:\n%s", out)
	}
}

func TestRunHistory_NoRecord(t *testing.T) {
	saveFlags(t)
	path, _ := seedHistory(t)
	dbPath = path

	var buf bytes.Buffer
	historyCmd.SetOut(&buf)
	t.Cleanup(func() { historyCmd.SetOut(nil) })

	if err := runHistory(historyCmd, "pkg:npm/unknown@1.0.0"); err != nil {
		t.Fatalf("runHistory returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "No scan recorded") {
		t.Errorf("output = %q, want a no-record message", buf.String())
	}
}

func TestRunHistory_RequiresVersion(t *testing.T) {
	saveFlags(t)
	dbPath = filepath.Join(t.TempDir(), "scans.db")

	if err := runHistory(historyCmd, "pkg:npm/left-pad"); err == nil {
		t.Error("expected error for a version-less identifier")
	}
}

func TestResolveConfig_EnvDBAppliesToSubcommands(t *testing.T) {
	t.Setenv("OSSGADGET_DB", "/from/env/scans.db")

	cfg, err := resolveConfig(statsCmd)
	if err != nil {
		t.Fatalf("resolveConfig returned error: %v", err)
	}
	if cfg.DBPath != "/from/env/scans.db" {
		t.Errorf("DBPath = %q, want the environment's value", cfg.DBPath)
	}
}
