// Package analyzer adapts the rule engine to batch scanning. It owns
// the ruleset policy: only the configured ruleset directory is loaded,
// built-in rules stay disabled, and a missing or empty ruleset aborts
// the run instead of silently scanning with no rules.
package analyzer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/henryzz0/OSSGadget/internal/report"
	"github.com/henryzz0/OSSGadget/internal/rules"
)

// ErrRulesetUnavailable indicates a missing or empty ruleset
// directory. Batch-fatal: a scan with zero rules would report every
// package as clean and mask the misconfiguration.
var ErrRulesetUnavailable = errors.New("ruleset unavailable")

// Engine is the rule-matching engine contract the adapter drives
type Engine interface {
	Scan(root string, rs *rules.RuleSet) ([]rules.Match, error)
}

// Adapter runs the engine scoped to one ruleset directory
type Adapter struct {
	rulesetDir string
	engine     Engine

	loadOnce sync.Once
	ruleset  *rules.RuleSet
	loadErr  error
}

// New creates an adapter bound to a ruleset directory
func New(rulesetDir string) *Adapter {
	return NewWithEngine(rulesetDir, rules.NewEngine())
}

// NewWithEngine creates an adapter with a custom engine
func NewWithEngine(rulesetDir string, engine Engine) *Adapter {
	return &Adapter{
		rulesetDir: rulesetDir,
		engine:     engine,
	}
}

// ValidateRulesetDir checks that dir exists and contains at least one
// rule file. Called before the batch starts so a misconfigured
// ruleset never wastes acquisition work.
func ValidateRulesetDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: no ruleset directory configured", ErrRulesetUnavailable)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRulesetUnavailable, dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrRulesetUnavailable, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRulesetUnavailable, dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml", ".toml":
			return nil
		}
	}
	return fmt.Errorf("%w: %s contains no rule files", ErrRulesetUnavailable, dir)
}

// load parses the ruleset exactly once per adapter
func (a *Adapter) load() (*rules.RuleSet, error) {
	a.loadOnce.Do(func() {
		rs, err := rules.LoadDir(a.rulesetDir)
		if err != nil {
			a.loadErr = err
			return
		}
		if len(rs.Rules) == 0 {
			a.loadErr = fmt.Errorf("%w: %s contains no rules", ErrRulesetUnavailable, a.rulesetDir)
			return
		}
		a.ruleset = rs
	})
	return a.ruleset, a.loadErr
}

// Analyze scans localPath with the configured ruleset and translates
// engine matches into findings. Findings keep engine order.
func (a *Adapter) Analyze(localPath string) ([]report.Finding, error) {
	rs, err := a.load()
	if err != nil {
		return nil, err
	}

	matches, err := a.engine.Scan(localPath, rs)
	if err != nil {
		return nil, fmt.Errorf("analysis of %s failed: %w", localPath, err)
	}

	findings := make([]report.Finding, 0, len(matches))
	for _, m := range matches {
		findings = append(findings, report.Finding{
			RuleID:      m.Rule.ID,
			RuleName:    m.Rule.Name,
			Description: m.Rule.Description,
			Severity:    m.Rule.Severity,
			Confidence:  m.Rule.Confidence,
			File:        m.Path,
			Line:        m.Line,
			Excerpt:     m.Excerpt,
		})
	}
	return findings, nil
}
