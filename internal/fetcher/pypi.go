package fetcher

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/henryzz0/OSSGadget/internal/purl"
)

const pypiRegistryURL = "https://pypi.org/pypi"

// PyPIFetcher acquires packages from the PyPI registry
type PyPIFetcher struct {
	baseURL    string
	httpClient *http.Client
}

// pypiRelease is one downloadable file of a release
type pypiRelease struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	PackageType string `json:"packagetype"` // "sdist" or "bdist_wheel"
	Size        int64  `json:"size"`
}

// pypiResponse is the PyPI JSON API response shape
type pypiResponse struct {
	Info struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"info"`
	URLs []pypiRelease `json:"urls"`
}

// NewPyPIFetcher creates a PyPI registry fetcher
func NewPyPIFetcher() *PyPIFetcher {
	return NewPyPIFetcherWithBase(pypiRegistryURL)
}

// NewPyPIFetcherWithBase creates a fetcher against a custom registry
// URL (tests)
func NewPyPIFetcherWithBase(baseURL string) *PyPIFetcher {
	return &PyPIFetcher{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// get fetches the JSON API document for a package or package version
func (f *PyPIFetcher) get(url string) (*pypiResponse, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("package not found at %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pypi returned status %d for %s", resp.StatusCode, url)
	}

	var out pypiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse pypi response: %w", err)
	}
	return &out, nil
}

// LatestVersion resolves the latest published version
func (f *PyPIFetcher) LatestVersion(id purl.PackageURL) (string, error) {
	info, err := f.get(fmt.Sprintf("%s/%s/json", f.baseURL, id.Name))
	if err != nil {
		return "", err
	}
	if info.Info.Version == "" {
		return "", fmt.Errorf("no published versions found for %s", id.Name)
	}
	return info.Info.Version, nil
}

// Fetch downloads and extracts the release into destDir. The source
// distribution is preferred over wheels since the scanner reads
// source files.
func (f *PyPIFetcher) Fetch(id purl.PackageURL, destDir string) (string, error) {
	info, err := f.get(fmt.Sprintf("%s/%s/%s/json", f.baseURL, id.Name, id.Version))
	if err != nil {
		return "", err
	}
	if len(info.URLs) == 0 {
		return "", fmt.Errorf("no files published for %s@%s", id.Name, id.Version)
	}

	release := info.URLs[0]
	for _, r := range info.URLs {
		if r.PackageType == "sdist" {
			release = r
			break
		}
	}

	return downloadAndExtract(f.httpClient, release.URL, path.Base(release.Filename), destDir)
}
