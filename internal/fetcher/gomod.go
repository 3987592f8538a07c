package fetcher

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/henryzz0/OSSGadget/internal/purl"
)

const goProxyURL = "https://proxy.golang.org"

// GoProxyFetcher acquires modules from the Go module proxy
type GoProxyFetcher struct {
	baseURL    string
	httpClient *http.Client
}

// goModuleInfo is the proxy's @latest / @v/<version>.info shape
type goModuleInfo struct {
	Version string `json:"Version"`
	Time    string `json:"Time"`
}

// NewGoProxyFetcher creates a Go module proxy fetcher
func NewGoProxyFetcher() *GoProxyFetcher {
	return NewGoProxyFetcherWithBase(goProxyURL)
}

// NewGoProxyFetcherWithBase creates a fetcher against a custom proxy
// URL (tests)
func NewGoProxyFetcherWithBase(baseURL string) *GoProxyFetcher {
	return &GoProxyFetcher{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// escapeModulePath applies the proxy's case encoding: every uppercase
// letter becomes '!' followed by its lowercase form.
func escapeModulePath(path string) string {
	var b strings.Builder
	for _, r := range path {
		if unicode.IsUpper(r) {
			b.WriteByte('!')
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LatestVersion resolves the module's latest version via @latest
func (f *GoProxyFetcher) LatestVersion(id purl.PackageURL) (string, error) {
	url := fmt.Sprintf("%s/%s/@latest", f.baseURL, escapeModulePath(id.FullName()))

	resp, err := f.httpClient.Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("module %s not found", id.FullName())
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("go proxy returned status %d for %s", resp.StatusCode, id.FullName())
	}

	var info goModuleInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("failed to parse proxy response for %s: %w", id.FullName(), err)
	}
	if info.Version == "" {
		return "", fmt.Errorf("no versions found for %s", id.FullName())
	}
	return info.Version, nil
}

// Fetch downloads and extracts the module zip into destDir
func (f *GoProxyFetcher) Fetch(id purl.PackageURL, destDir string) (string, error) {
	url := fmt.Sprintf("%s/%s/@v/%s.zip", f.baseURL, escapeModulePath(id.FullName()), id.Version)
	return downloadAndExtract(f.httpClient, url, id.Name+"-"+id.Version+".zip", destDir)
}
