package report

import (
	"encoding/json"
	"fmt"

	"github.com/henryzz0/OSSGadget/internal/rules"
)

const (
	toolName    = "oss-detect-backdoor"
	toolInfoURI = "https://github.com/henryzz0/OSSGadget"
)

// ToolVersion is stamped into structured reports. Overridden at the
// CLI layer so the report and the binary agree.
var ToolVersion = "0.1.0"

// sarifLevel maps rule severity onto the SARIF result level set
func sarifLevel(s rules.Severity) string {
	switch s {
	case rules.SeverityCritical, rules.SeverityHigh:
		return "error"
	case rules.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}

// ---- SARIF v2.1.0 ----

type sarifV2Log struct {
	Schema  string       `json:"$schema"`
	Version string       `json:"version"`
	Runs    []sarifV2Run `json:"runs"`
}

type sarifV2Run struct {
	Tool        sarifV2Tool            `json:"tool"`
	Results     []sarifV2Result        `json:"results"`
	Invocations []sarifV2Invocation    `json:"invocations,omitempty"`
	Properties  map[string]interface{} `json:"properties,omitempty"`
}

type sarifV2Tool struct {
	Driver sarifV2Driver `json:"driver"`
}

type sarifV2Driver struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	InformationURI string `json:"informationUri"`
}

type sarifV2Invocation struct {
	ExecutionSuccessful bool                  `json:"executionSuccessful"`
	Notifications       []sarifV2Notification `json:"toolExecutionNotifications,omitempty"`
}

type sarifV2Notification struct {
	Level   string       `json:"level"`
	Message sarifMessage `json:"message"`
}

type sarifV2Result struct {
	RuleID    string            `json:"ruleId"`
	Level     string            `json:"level"`
	Message   sarifMessage      `json:"message"`
	Locations []sarifV2Location `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifV2Location struct {
	PhysicalLocation sarifV2PhysicalLocation `json:"physicalLocation"`
}

type sarifV2PhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

// renderSarifV2 emits one run per target, one result per finding
func renderSarifV2(rep *Report) ([]byte, error) {
	log := sarifV2Log{
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json",
		Version: "2.1.0",
		Runs:    make([]sarifV2Run, 0, len(rep.Results)),
	}

	for i := range rep.Results {
		res := &rep.Results[i]
		run := sarifV2Run{
			Tool: sarifV2Tool{Driver: sarifV2Driver{
				Name:           toolName,
				Version:        ToolVersion,
				InformationURI: toolInfoURI,
			}},
			Results: make([]sarifV2Result, 0, len(res.Findings)),
			Properties: map[string]interface{}{
				"packageUrl": res.Target.String(),
			},
		}

		if res.Failed() {
			run.Invocations = []sarifV2Invocation{{
				ExecutionSuccessful: false,
				Notifications: []sarifV2Notification{{
					Level:   "error",
					Message: sarifMessage{Text: res.Err.Error()},
				}},
			}}
		} else {
			run.Invocations = []sarifV2Invocation{{ExecutionSuccessful: true}}
			for j := range res.Findings {
				run.Results = append(run.Results, sarifV2ResultFor(&res.Findings[j]))
			}
		}

		log.Runs = append(log.Runs, run)
	}

	out, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode SARIF v2 report: %w", err)
	}
	return out, nil
}

func sarifV2ResultFor(f *Finding) sarifV2Result {
	r := sarifV2Result{
		RuleID:  f.RuleID,
		Level:   sarifLevel(f.Severity),
		Message: sarifMessage{Text: fmt.Sprintf("%s: %s", f.RuleName, f.Description)},
	}
	if f.File != "" {
		loc := sarifV2Location{PhysicalLocation: sarifV2PhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{URI: f.File},
		}}
		if f.Line > 0 {
			loc.PhysicalLocation.Region = &sarifRegion{StartLine: f.Line}
		}
		r.Locations = []sarifV2Location{loc}
	}
	return r
}

// ---- SARIF v1.0.0 ----

type sarifV1Log struct {
	Schema  string       `json:"$schema"`
	Version string       `json:"version"`
	Runs    []sarifV1Run `json:"runs"`
}

type sarifV1Run struct {
	Tool       sarifV1Tool            `json:"tool"`
	Results    []sarifV1Result        `json:"results"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

type sarifV1Tool struct {
	Name            string `json:"name"`
	SemanticVersion string `json:"semanticVersion"`
}

type sarifV1Result struct {
	RuleID    string            `json:"ruleId"`
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Locations []sarifV1Location `json:"locations,omitempty"`
}

type sarifV1Location struct {
	ResultFile *sarifV1File `json:"resultFile,omitempty"`
}

type sarifV1File struct {
	URI    string       `json:"uri"`
	Region *sarifRegion `json:"region,omitempty"`
}

// renderSarifV1 emits the legacy 1.0.0 layout. Failed targets become a
// run with zero results and the error recorded in run properties.
func renderSarifV1(rep *Report) ([]byte, error) {
	log := sarifV1Log{
		Schema:  "http://json.schemastore.org/sarif-1.0.0",
		Version: "1.0.0",
		Runs:    make([]sarifV1Run, 0, len(rep.Results)),
	}

	for i := range rep.Results {
		res := &rep.Results[i]
		run := sarifV1Run{
			Tool: sarifV1Tool{
				Name:            toolName,
				SemanticVersion: ToolVersion,
			},
			Results: make([]sarifV1Result, 0, len(res.Findings)),
			Properties: map[string]interface{}{
				"packageUrl": res.Target.String(),
			},
		}

		if res.Failed() {
			run.Properties["error"] = res.Err.Error()
		} else {
			for j := range res.Findings {
				f := &res.Findings[j]
				r := sarifV1Result{
					RuleID:  f.RuleID,
					Level:   sarifLevel(f.Severity),
					Message: fmt.Sprintf("%s: %s", f.RuleName, f.Description),
				}
				if f.File != "" {
					file := &sarifV1File{URI: f.File}
					if f.Line > 0 {
						file.Region = &sarifRegion{StartLine: f.Line}
					}
					r.Locations = []sarifV1Location{{ResultFile: file}}
				}
				run.Results = append(run.Results, r)
			}
		}

		log.Runs = append(log.Runs, run)
	}

	out, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode SARIF v1 report: %w", err)
	}
	return out, nil
}
