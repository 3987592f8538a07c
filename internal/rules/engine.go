package rules

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"
)

const (
	// Files larger than this are skipped; backdoor indicators live in
	// source, not in bundled media or vendored archives.
	maxFileSize = 4 << 20

	// How much of a file to sniff when deciding whether it is binary
	binarySniffLen = 8000

	// Scanner line buffer cap for minified sources
	maxLineLen = 1 << 20
)

// Match is one rule hit at a location in the scanned tree
type Match struct {
	Rule    *Rule
	Path    string // relative to the scan root, forward slashes
	Line    int    // 1-based, 0 when unknown
	Excerpt string
}

// Engine evaluates rulesets against directories of extracted source
type Engine struct{}

// NewEngine creates a scan engine
func NewEngine() *Engine {
	return &Engine{}
}

// Scan walks root and returns matches in walk order. Only the rules in
// rs are evaluated; the engine has no built-in rules of its own.
func (e *Engine) Scan(root string, rs *RuleSet) ([]Match, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", root)
	}

	var matches []Match
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.Size() > maxFileSize {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		fileMatches, err := e.scanFile(path, rel, rs)
		if err != nil {
			return err
		}
		matches = append(matches, fileMatches...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	return matches, nil
}

// scanFile evaluates every applicable rule against one file
func (e *Engine) scanFile(path, rel string, rs *RuleSet) ([]Match, error) {
	var applicable []*Rule
	for _, rule := range rs.Rules {
		if rule.appliesTo(rel) {
			applicable = append(applicable, rule)
		}
	}
	if len(applicable) == 0 {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	defer f.Close()

	sniff := make([]byte, binarySniffLen)
	n, _ := f.Read(sniff)
	if bytes.IndexByte(sniff[:n], 0) >= 0 {
		return nil, nil // binary file
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}

	var matches []Match
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineLen)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		for _, rule := range applicable {
			if rule.matchLine(line) {
				matches = append(matches, Match{
					Rule:    rule,
					Path:    rel,
					Line:    lineNo,
					Excerpt: truncate(line, 200),
				})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", rel, err)
	}

	return matches, nil
}

// truncate cuts s to at most n bytes, backing up to a rune boundary
// so excerpts stay valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
