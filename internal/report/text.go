package report

import (
	"bytes"
	"fmt"

	"github.com/henryzz0/OSSGadget/internal/colorutil"
)

const divider = "───────────────────────────────────────────────────────────"

// renderText produces the human-readable report: one block per target
// listing its findings, or the error that prevented analysis.
func renderText(rep *Report) []byte {
	var buf bytes.Buffer

	buf.WriteString("═══════════════════════════════════════════════════════════\n")
	buf.WriteString("  OSS Gadget - Backdoor Detection Report\n")
	buf.WriteString("═══════════════════════════════════════════════════════════\n")

	for i := range rep.Results {
		res := &rep.Results[i]

		name := res.Target.String()
		if name == "" {
			name = res.Target.Raw
		}

		buf.WriteString("\n")
		buf.WriteString(divider + "\n")
		fmt.Fprintf(&buf, "  %s\n", name)
		buf.WriteString(divider + "\n")

		if res.Failed() {
			fmt.Fprintf(&buf, "  Error: %s\n", colorutil.ColorizeError(res.Err.Message))
			fmt.Fprintf(&buf, "  Kind:  %s\n", res.Err.Kind)
			continue
		}

		fmt.Fprintf(&buf, "  Findings: %d\n", len(res.Findings))
		for j := range res.Findings {
			f := &res.Findings[j]
			fmt.Fprintf(&buf, "\n  [%s/%s] %s: %s\n",
				colorutil.ColorizeSeverity(string(f.Severity)), f.Confidence, f.RuleID, f.RuleName)
			if f.File != "" {
				if f.Line > 0 {
					fmt.Fprintf(&buf, "    %s:%d\n", f.File, f.Line)
				} else {
					fmt.Fprintf(&buf, "    %s\n", f.File)
				}
			}
			if f.Excerpt != "" {
				fmt.Fprintf(&buf, "    > %s\n", f.Excerpt)
			}
		}
	}

	failed := 0
	for i := range rep.Results {
		if rep.Results[i].Failed() {
			failed++
		}
	}

	buf.WriteString("\n═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(&buf, "  Targets: %d   Findings: %d   Failed: %d\n",
		len(rep.Results), rep.TotalFindings(), failed)
	buf.WriteString("═══════════════════════════════════════════════════════════\n")

	return buf.Bytes()
}
