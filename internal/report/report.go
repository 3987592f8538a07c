// Package report accumulates per-target scan results and renders the
// finished batch in one of the supported output formats.
package report

import (
	"errors"
	"fmt"

	"github.com/henryzz0/OSSGadget/internal/purl"
	"github.com/henryzz0/OSSGadget/internal/rules"
)

// Format selects the report serialization
type Format string

const (
	FormatText    Format = "text"
	FormatSarifV1 Format = "sarif-v1"
	FormatSarifV2 Format = "sarif-v2"
)

// ErrUnsupportedFormat is returned for format strings outside the
// supported set. Validated before any acquisition work starts.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// ParseFormat validates a format flag value
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatSarifV1, FormatSarifV2:
		return Format(s), nil
	default:
		return "", fmt.Errorf("%w: %q (supported: text, sarif-v1, sarif-v2)", ErrUnsupportedFormat, s)
	}
}

// ErrorKind classifies why a single target failed
type ErrorKind string

const (
	ErrInvalidIdentifier ErrorKind = "invalid-identifier"
	ErrAcquisitionFailed ErrorKind = "acquisition-failed"
	ErrAnalysisFailed    ErrorKind = "analysis-failed"
)

// TargetError describes a per-target, non-fatal failure
type TargetError struct {
	Kind    ErrorKind
	Message string
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Finding is one rule match inside an extracted package
type Finding struct {
	RuleID      string
	RuleName    string
	Description string
	Severity    rules.Severity
	Confidence  rules.Confidence
	File        string // path relative to the extraction root
	Line        int    // 1-based, 0 when unknown
	Excerpt     string
}

// TargetResult pairs a target with either its findings (possibly
// empty) or the error that prevented analysis. Exactly one of
// Findings/Err is meaningful; Err == nil means the scan ran.
type TargetResult struct {
	Target   purl.PackageURL
	Findings []Finding
	Err      *TargetError
}

// Failed reports whether the target could not be analyzed
func (r *TargetResult) Failed() bool {
	return r.Err != nil
}

// Report is the ordered collection of results for one batch, one
// entry per input target in input order.
type Report struct {
	Results []TargetResult
}

// TotalFindings counts findings across all successful targets
func (rep *Report) TotalFindings() int {
	n := 0
	for i := range rep.Results {
		n += len(rep.Results[i].Findings)
	}
	return n
}

// Render serializes the completed report. It is a pure function of
// the report: no partial or streaming mode exists.
func Render(rep *Report, format Format) ([]byte, error) {
	switch format {
	case FormatText:
		return renderText(rep), nil
	case FormatSarifV1:
		return renderSarifV1(rep)
	case FormatSarifV2:
		return renderSarifV2(rep)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
