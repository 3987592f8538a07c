package fetcher

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"time"

	semver "github.com/Masterminds/semver/v3"
	"github.com/henryzz0/OSSGadget/internal/purl"
)

const npmRegistryURL = "https://registry.npmjs.org"

// NPMFetcher acquires packages from the npm registry
type NPMFetcher struct {
	baseURL    string
	httpClient *http.Client
}

// npmPackageInfo is the abbreviated package metadata: only version
// keys and dist-tags, which keeps the payload small for packages with
// thousands of published versions.
type npmPackageInfo struct {
	Name     string                    `json:"name"`
	DistTags map[string]string         `json:"dist-tags"`
	Versions map[string]npmVersionInfo `json:"versions"`
}

// npmVersionInfo is a specific version's metadata
type npmVersionInfo struct {
	Name    string  `json:"name"`
	Version string  `json:"version"`
	Dist    npmDist `json:"dist"`
}

// npmDist contains distribution information
type npmDist struct {
	Tarball   string `json:"tarball"`
	Shasum    string `json:"shasum"`
	Integrity string `json:"integrity"`
}

// NewNPMFetcher creates an npm registry fetcher
func NewNPMFetcher() *NPMFetcher {
	return NewNPMFetcherWithBase(npmRegistryURL)
}

// NewNPMFetcherWithBase creates a fetcher against a custom registry
// URL (tests)
func NewNPMFetcherWithBase(baseURL string) *NPMFetcher {
	return &NPMFetcher{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// getVersionInfo fetches metadata for a specific version or dist-tag
func (f *NPMFetcher) getVersionInfo(name, version string) (*npmVersionInfo, error) {
	url := fmt.Sprintf("%s/%s/%s", f.baseURL, name, version)

	resp, err := f.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s@%s: %w", name, version, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("version %s@%s not found", name, version)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("npm registry returned status %d for %s@%s", resp.StatusCode, name, version)
	}

	var info npmVersionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to parse npm response for %s@%s: %w", name, version, err)
	}
	return &info, nil
}

// getPackageInfo fetches abbreviated package metadata
func (f *NPMFetcher) getPackageInfo(name string) (*npmPackageInfo, error) {
	req, err := http.NewRequest("GET", fmt.Sprintf("%s/%s", f.baseURL, name), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", name, err)
	}
	// Abbreviated metadata reduces the payload from ~20MB to ~200KB
	// for large packages.
	req.Header.Set("Accept", "application/vnd.npm.install-v1+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch package %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("package %s not found", name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("npm registry returned status %d for %s", resp.StatusCode, name)
	}

	var info npmPackageInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to parse npm response for %s: %w", name, err)
	}
	return &info, nil
}

// LatestVersion resolves the latest published version. Prefers the
// "latest" dist-tag; falls back to the highest semver among published
// versions when the tag is missing.
func (f *NPMFetcher) LatestVersion(id purl.PackageURL) (string, error) {
	info, err := f.getPackageInfo(id.FullName())
	if err != nil {
		return "", err
	}

	if latest, ok := info.DistTags["latest"]; ok && latest != "" {
		return latest, nil
	}

	var highest *semver.Version
	for vStr := range info.Versions {
		v, err := semver.NewVersion(vStr)
		if err != nil {
			continue
		}
		if highest == nil || v.GreaterThan(highest) {
			highest = v
		}
	}
	if highest == nil {
		return "", fmt.Errorf("no published versions found for %s", id.FullName())
	}
	return highest.Original(), nil
}

// Fetch downloads and extracts the version tarball into destDir
func (f *NPMFetcher) Fetch(id purl.PackageURL, destDir string) (string, error) {
	info, err := f.getVersionInfo(id.FullName(), id.Version)
	if err != nil {
		return "", err
	}
	if info.Dist.Tarball == "" {
		return "", fmt.Errorf("no tarball published for %s@%s", id.FullName(), id.Version)
	}

	return downloadAndExtract(f.httpClient, info.Dist.Tarball, path.Base(info.Dist.Tarball), destDir)
}
