package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/monphare/monphare/internal/analyzer"
)

// TextReporter renders the human-readable report.
type TextReporter struct {
	// Verbose adds the full inventory section.
	Verbose bool
}

// Write renders the result to w.
func (r TextReporter) Write(w io.Writer, res *ScanResult) error {
	banner := "PASS"
	if !res.Status.Pass {
		banner = "FAIL"
	}
	fmt.Fprintf(w, "%s %s v%s — %d repositories, %d files scanned\n",
		banner, res.Meta.Tool, res.Meta.Version, res.Meta.Repositories, res.Meta.FilesScanned)
	fmt.Fprintf(w, "modules: %d (%d unique)  providers: %d (%d unique)  findings: %d\n\n",
		res.Summary.TotalModules, res.Summary.UniqueModuleSources,
		res.Summary.TotalProviders, res.Summary.UniqueProviderSources,
		res.Summary.TotalFindings)

	for _, repo := range res.Findings {
		fmt.Fprintf(w, "repository %s\n", repo.Repository)
		for _, file := range repo.Files {
			for _, f := range file.Findings {
				fmt.Fprintf(w, "  %s:%-4d %-8s %-22s %s\n",
					file.File, f.Line, strings.ToUpper(string(f.Severity)), f.Code, f.Message)
				if f.Suggestion != "" {
					fmt.Fprintf(w, "  %s      suggestion: %s\n", strings.Repeat(" ", len(file.File)), f.Suggestion)
				}
			}
		}
		fmt.Fprintln(w)
	}

	if len(res.Issues) > 0 {
		fmt.Fprintf(w, "parse issues (%d):\n", len(res.Issues))
		for _, issue := range res.Issues {
			fmt.Fprintf(w, "  %s: %s\n", issue.File, issue.Message)
		}
		fmt.Fprintln(w)
	}

	if r.Verbose {
		writeInventory(w, res)
	}

	if sev := res.Summary.BySeverity; len(sev) > 0 {
		var parts []string
		for _, s := range []analyzer.Severity{analyzer.SeverityCritical, analyzer.SeverityError, analyzer.SeverityWarning, analyzer.SeverityInfo} {
			if n := sev[string(s)]; n > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", n, s))
			}
		}
		fmt.Fprintf(w, "summary: %s\n", strings.Join(parts, ", "))
	}
	return nil
}

func writeInventory(w io.Writer, res *ScanResult) {
	if len(res.Inventory.Modules) > 0 {
		fmt.Fprintln(w, "modules:")
		for _, m := range res.Inventory.Modules {
			constraint := m.Constraint
			if constraint == "" {
				constraint = "(none)"
			}
			fmt.Fprintf(w, "  %-30s %-50s %s\n", m.Name, m.Source, constraint)
		}
		fmt.Fprintln(w)
	}
	if len(res.Inventory.Providers) > 0 {
		fmt.Fprintln(w, "providers:")
		for _, p := range res.Inventory.Providers {
			constraint := p.Constraint
			if constraint == "" {
				constraint = "(none)"
			}
			fmt.Fprintf(w, "  %-30s %-50s %s\n", p.Alias, p.Source, constraint)
		}
		fmt.Fprintln(w)
	}
}
