// Package purl parses package-url identifiers into the structured
// form the rest of the tool works with.
package purl

import (
	"fmt"
	"strings"

	packageurl "github.com/package-url/packageurl-go"
)

// PackageURL identifies one published package version. Immutable once
// parsed; Raw keeps the original input for error messages and reports.
type PackageURL struct {
	Ecosystem string // npm, pypi, golang
	Namespace string // npm scope or go module path prefix, may be empty
	Name      string
	Version   string // empty means "latest published"
	Raw       string
}

// supportedTypes maps purl types to the ecosystems the fetcher knows
// how to acquire.
var supportedTypes = map[string]string{
	packageurl.TypeNPM:    "npm",
	packageurl.TypePyPi:   "pypi",
	packageurl.TypeGolang: "golang",
}

// Parse validates raw as a package-url and returns the identifier.
// Purely syntactic: no network or filesystem access.
func Parse(raw string) (PackageURL, error) {
	parsed, err := packageurl.FromString(raw)
	if err != nil {
		return PackageURL{}, fmt.Errorf("invalid package identifier %q: %w", raw, err)
	}

	ecosystem, ok := supportedTypes[parsed.Type]
	if !ok {
		return PackageURL{}, fmt.Errorf("invalid package identifier %q: unsupported package type %q", raw, parsed.Type)
	}

	if parsed.Name == "" {
		return PackageURL{}, fmt.Errorf("invalid package identifier %q: missing package name", raw)
	}

	return PackageURL{
		Ecosystem: ecosystem,
		Namespace: parsed.Namespace,
		Name:      parsed.Name,
		Version:   parsed.Version,
		Raw:       raw,
	}, nil
}

// FullName returns the registry-facing package name, including the
// namespace when present (e.g. "@types/node", "github.com/gorilla/mux").
func (p PackageURL) FullName() string {
	if p.Namespace == "" {
		return p.Name
	}
	return p.Namespace + "/" + p.Name
}

// String renders the identifier in display form.
func (p PackageURL) String() string {
	if p.Ecosystem == "" {
		return p.Raw
	}
	s := fmt.Sprintf("pkg:%s/%s", p.Ecosystem, p.FullName())
	if p.Version != "" {
		s += "@" + p.Version
	}
	return s
}

// CacheKey returns a filesystem-safe directory name for this exact
// package version. Two identifiers share a key only when ecosystem,
// name and version all match.
func (p PackageURL) CacheKey() string {
	sanitize := func(s string) string {
		r := strings.NewReplacer("/", "-", "@", "", ":", "-", "\\", "-")
		return r.Replace(s)
	}
	return fmt.Sprintf("%s-%s-%s", p.Ecosystem, sanitize(p.FullName()), sanitize(p.Version))
}
