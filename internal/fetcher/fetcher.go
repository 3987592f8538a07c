// Package fetcher acquires package artifacts: it resolves identifiers
// against their registries, downloads and extracts archives, and
// gates re-downloads behind a per-identifier cache directory.
//
// Cache keys are identifier-only (ecosystem, name, version). A cached
// extraction is reused as-is under the reuse policy even if the
// registry artifact was republished since; no invalidation is
// attempted. Rulesets are applied fresh on every run, so only the
// extracted source itself can be stale.
package fetcher

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/henryzz0/OSSGadget/internal/purl"
)

const userAgent = "oss-detect-backdoor/0.1"

// Fetcher turns a concrete package identifier into extracted source
// on disk. Implementations exist per ecosystem.
type Fetcher interface {
	// LatestVersion resolves the registry's latest published version.
	LatestVersion(id purl.PackageURL) (string, error)
	// Fetch downloads and extracts id (which must carry a version)
	// into destDir, returning the extraction root.
	Fetch(id purl.PackageURL, destDir string) (string, error)
}

// Gate decides per identifier whether a local extraction may be
// reused or must be fetched.
type Gate struct {
	fetchers map[string]Fetcher
}

// NewGate creates a gate backed by the registry fetchers
func NewGate() *Gate {
	return &Gate{
		fetchers: map[string]Fetcher{
			"npm":    NewNPMFetcher(),
			"pypi":   NewPyPIFetcher(),
			"golang": NewGoProxyFetcher(),
		},
	}
}

// NewGateWithFetchers creates a gate with explicit fetchers (tests)
func NewGateWithFetchers(fetchers map[string]Fetcher) *Gate {
	return &Gate{fetchers: fetchers}
}

// Resolve returns a local path holding the extracted package. With
// useCache an existing non-empty extraction for the exact identifier
// is returned without any network activity; otherwise the package is
// re-acquired, replacing any stale copy.
func (g *Gate) Resolve(id purl.PackageURL, downloadDir string, useCache bool) (string, error) {
	f, ok := g.fetchers[id.Ecosystem]
	if !ok {
		return "", fmt.Errorf("failed to acquire %s: no fetcher for ecosystem %q", id.Raw, id.Ecosystem)
	}

	// A cache key needs a concrete version; version-less identifiers
	// resolve against the registry first.
	if id.Version == "" {
		version, err := f.LatestVersion(id)
		if err != nil {
			return "", fmt.Errorf("failed to acquire %s: %w", id.Raw, err)
		}
		id.Version = version
	}

	dest := filepath.Join(downloadDir, id.CacheKey())

	if useCache && dirNonEmpty(dest) {
		return dest, nil
	}

	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("failed to acquire %s: %w", id.Raw, err)
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return "", fmt.Errorf("failed to acquire %s: %w", id.Raw, err)
	}

	path, err := f.Fetch(id, dest)
	if err != nil {
		os.RemoveAll(dest)
		return "", fmt.Errorf("failed to acquire %s: %w", id.Raw, err)
	}
	return path, nil
}

func dirNonEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

// downloadFile fetches url into dest on disk
func downloadFile(client *http.Client, url, dest string) error {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: HTTP %d for %s", resp.StatusCode, url)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// downloadAndExtract downloads an archive and unpacks it into destDir.
// The archive itself is kept outside destDir and removed afterwards.
func downloadAndExtract(client *http.Client, url, filename, destDir string) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(destDir), filename+".*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := downloadFile(client, url, tmpPath); err != nil {
		return "", err
	}

	switch {
	case hasSuffixAny(filename, ".tar.gz", ".tgz"):
		if err := ExtractTarGz(tmpPath, destDir); err != nil {
			return "", err
		}
	case hasSuffixAny(filename, ".zip", ".whl"):
		if err := ExtractZip(tmpPath, destDir); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unsupported archive format: %s", filename)
	}

	return destDir, nil
}

func hasSuffixAny(name string, suffixes ...string) bool {
	for _, s := range suffixes {
		if len(name) >= len(s) && name[len(name)-len(s):] == s {
			return true
		}
	}
	return false
}
