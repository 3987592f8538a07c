// Package rules defines the pattern-matching rule model and the
// engine that evaluates a ruleset against extracted package source.
package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// Severity levels for rules
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Confidence expresses how likely a match is a true positive
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Rule defines one detection rule
type Rule struct {
	ID          string     `yaml:"id" toml:"id"`
	Name        string     `yaml:"name" toml:"name"`
	Description string     `yaml:"description" toml:"description"`
	Severity    Severity   `yaml:"severity" toml:"severity"`
	Confidence  Confidence `yaml:"confidence" toml:"confidence"`
	Patterns    []Pattern  `yaml:"patterns" toml:"patterns"`
	AppliesTo   []string   `yaml:"applies_to" toml:"applies_to"` // filename globs, empty = all files
	Tags        []string   `yaml:"tags" toml:"tags"`
}

// Pattern is one matcher within a rule
type Pattern struct {
	Type  string `yaml:"type" toml:"type"`   // "substring" or "regex"
	Value string `yaml:"value" toml:"value"` // literal text or regular expression

	compiled *regexp.Regexp
}

// RuleSet holds all loaded rules
type RuleSet struct {
	Rules   []*Rule
	Version string
}

type ruleFile struct {
	Version string  `yaml:"version" toml:"version"`
	Rules   []*Rule `yaml:"rules" toml:"rules"`
}

// ParseYAML parses YAML rule definitions
func ParseYAML(data []byte) (*RuleSet, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	return finishParse(&rf)
}

// ParseTOML parses TOML rule definitions
func ParseTOML(data []byte) (*RuleSet, error) {
	var rf ruleFile
	if err := toml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	return finishParse(&rf)
}

// finishParse applies defaults, validates, and compiles regex patterns
func finishParse(rf *ruleFile) (*RuleSet, error) {
	for _, rule := range rf.Rules {
		if rule.ID == "" {
			return nil, fmt.Errorf("rule with name %q has no id", rule.Name)
		}
		if len(rule.Patterns) == 0 {
			return nil, fmt.Errorf("rule %s has no patterns", rule.ID)
		}
		if rule.Severity == "" {
			rule.Severity = SeverityMedium
		}
		if rule.Confidence == "" {
			rule.Confidence = ConfidenceMedium
		}
		for i := range rule.Patterns {
			p := &rule.Patterns[i]
			switch p.Type {
			case "", "substring":
				p.Type = "substring"
			case "regex":
				re, err := regexp.Compile(p.Value)
				if err != nil {
					return nil, fmt.Errorf("rule %s has invalid regex %q: %w", rule.ID, p.Value, err)
				}
				p.compiled = re
			default:
				return nil, fmt.Errorf("rule %s has unknown pattern type %q", rule.ID, p.Type)
			}
		}
	}

	return &RuleSet{
		Rules:   rf.Rules,
		Version: rf.Version,
	}, nil
}

// LoadDir loads every rule file under dir (non-recursive). Recognized
// extensions are .yaml, .yml and .toml; other files are ignored.
// Returns the merged ruleset in filename order.
func LoadDir(dir string) (*RuleSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read ruleset directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml", ".toml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	merged := &RuleSet{}
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read rules file %s: %w", name, err)
		}

		var rs *RuleSet
		if filepath.Ext(name) == ".toml" {
			rs, err = ParseTOML(data)
		} else {
			rs, err = ParseYAML(data)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		merged.Rules = append(merged.Rules, rs.Rules...)
		if merged.Version == "" {
			merged.Version = rs.Version
		}
	}

	return merged, nil
}

// appliesTo reports whether the rule should run against the given
// file. Globs match against the base name.
func (r *Rule) appliesTo(path string) bool {
	if len(r.AppliesTo) == 0 {
		return true
	}
	base := filepath.Base(path)
	for _, glob := range r.AppliesTo {
		if ok, _ := filepath.Match(glob, base); ok {
			return true
		}
	}
	return false
}

// matchLine reports whether any pattern of the rule matches the line
func (r *Rule) matchLine(line string) bool {
	for i := range r.Patterns {
		p := &r.Patterns[i]
		if p.Type == "regex" {
			if p.compiled.MatchString(line) {
				return true
			}
		} else if strings.Contains(line, p.Value) {
			return true
		}
	}
	return false
}

// SeverityScore returns numeric score for severity
func SeverityScore(s Severity) int {
	switch s {
	case SeverityCritical:
		return 100
	case SeverityHigh:
		return 75
	case SeverityMedium:
		return 50
	case SeverityLow:
		return 25
	case SeverityInfo:
		return 10
	default:
		return 0
	}
}
