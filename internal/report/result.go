// Package report assembles per-repository analysis output into the final
// scan result and renders it as text, JSON or HTML. Assembly fixes the
// deterministic ordering: repositories and files lexicographically, findings
// by line then code.
package report

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/monphare/monphare/internal/analyzer"
	"github.com/monphare/monphare/internal/graph"
	"github.com/monphare/monphare/internal/hclscan"
)

// ToolName is stamped into every report.
const ToolName = "monphare"

// Meta describes the scan run.
type Meta struct {
	Tool         string    `json:"tool"`
	Version      string    `json:"version"`
	ScanID       string    `json:"scan_id"`
	Timestamp    time.Time `json:"timestamp"`
	Repositories int       `json:"repositories"`
	FilesScanned int       `json:"files_scanned"`
}

// Status carries the pass/fail outcome and the process exit code:
// 0 clean, 1 warnings under strict mode, 2 errors.
type Status struct {
	Pass     bool   `json:"pass"`
	ExitCode int    `json:"exit_code"`
	Reason   string `json:"reason,omitempty"`
}

// Summary aggregates counters across all repositories.
type Summary struct {
	TotalModules          int            `json:"total_modules"`
	TotalProviders        int            `json:"total_providers"`
	TotalRuntimes         int            `json:"total_runtimes"`
	UniqueModuleSources   int            `json:"unique_module_sources"`
	UniqueProviderSources int            `json:"unique_provider_sources"`
	TotalFindings         int            `json:"total_findings"`
	BySeverity            map[string]int `json:"findings_by_severity"`
	ByCode                map[string]int `json:"findings_by_code"`
	ParseIssues           int            `json:"parse_issues"`
}

// FileFindings groups a file's findings.
type FileFindings struct {
	File     string             `json:"file"`
	Findings []analyzer.Finding `json:"findings"`
}

// RepositoryFindings groups one repository's findings by file.
type RepositoryFindings struct {
	Repository string         `json:"repository"`
	Files      []FileFindings `json:"files"`
}

// InventoryModule is one module entry in the report inventory.
type InventoryModule struct {
	Name       string `json:"name"`
	Source     string `json:"source"`
	SourceKind string `json:"source_kind"`
	Constraint string `json:"constraint,omitempty"`
	Repository string `json:"repository"`
	File       string `json:"file"`
	Line       int    `json:"line"`
}

// InventoryProvider is one provider entry in the report inventory.
type InventoryProvider struct {
	Alias      string `json:"alias"`
	Source     string `json:"source"`
	Constraint string `json:"constraint,omitempty"`
	Repository string `json:"repository"`
	File       string `json:"file"`
	Line       int    `json:"line"`
}

// InventoryRuntime is one required_version entry in the report inventory.
type InventoryRuntime struct {
	Kind       string `json:"kind"`
	Constraint string `json:"constraint,omitempty"`
	Repository string `json:"repository"`
	File       string `json:"file"`
	Line       int    `json:"line"`
}

// Inventory lists everything that was declared, independent of findings.
type Inventory struct {
	Modules   []InventoryModule   `json:"modules"`
	Providers []InventoryProvider `json:"providers"`
	Runtimes  []InventoryRuntime  `json:"runtimes"`
}

// ScanResult is the single document every reporter renders.
type ScanResult struct {
	Meta      Meta                 `json:"meta"`
	Status    Status               `json:"status"`
	Summary   Summary              `json:"summary"`
	Findings  []RepositoryFindings `json:"findings"`
	Inventory Inventory            `json:"inventory"`
	Issues    []hclscan.ParseIssue `json:"parse_issues,omitempty"`

	// Graph is carried for exports; reporters ignore it.
	Graph *graph.Graph `json:"-"`
}

// RepoResult pairs one repository's inventory with its findings.
type RepoResult struct {
	Label     string
	Inventory *hclscan.Inventory
	Findings  []analyzer.Finding
}

// AssembleOptions parameterize Assemble.
type AssembleOptions struct {
	ToolVersion string
	Strict      bool
	// Now stamps the report; the zero value means the current UTC time.
	Now time.Time
}

// Assemble builds the ScanResult from per-repository results.
func Assemble(repos []RepoResult, g *graph.Graph, opts AssembleOptions) *ScanResult {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	res := &ScanResult{
		Meta: Meta{
			Tool:         ToolName,
			Version:      opts.ToolVersion,
			ScanID:       uuid.NewString(),
			Timestamp:    now,
			Repositories: len(repos),
		},
		Summary: Summary{
			BySeverity: make(map[string]int),
			ByCode:     make(map[string]int),
		},
		Graph: g,
	}

	sorted := make([]RepoResult, len(repos))
	copy(sorted, repos)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Label < sorted[j].Label })

	moduleSources := make(map[string]bool)
	providerSources := make(map[string]bool)

	for _, repo := range sorted {
		inv := repo.Inventory
		if inv == nil {
			continue
		}
		res.Meta.FilesScanned += len(inv.Files)
		res.Summary.TotalModules += len(inv.Modules)
		res.Summary.TotalProviders += len(inv.Providers)
		res.Summary.TotalRuntimes += len(inv.Runtimes)
		res.Summary.ParseIssues += len(inv.Issues)
		res.Issues = append(res.Issues, inv.Issues...)

		for _, m := range inv.Modules {
			moduleSources[m.Source.CanonicalID()] = true
			res.Inventory.Modules = append(res.Inventory.Modules, InventoryModule{
				Name:       m.Name,
				Source:     m.Source.CanonicalID(),
				SourceKind: m.Source.Kind(),
				Constraint: m.RawConstraint,
				Repository: m.Repository,
				File:       m.File,
				Line:       m.Line,
			})
		}
		for _, p := range inv.Providers {
			providerSources[p.Source] = true
			res.Inventory.Providers = append(res.Inventory.Providers, InventoryProvider{
				Alias:      p.Alias,
				Source:     p.Source,
				Constraint: p.RawConstraint,
				Repository: p.Repository,
				File:       p.File,
				Line:       p.Line,
			})
		}
		for _, rt := range inv.Runtimes {
			res.Inventory.Runtimes = append(res.Inventory.Runtimes, InventoryRuntime{
				Kind:       string(rt.Kind),
				Constraint: rt.RawConstraint,
				Repository: rt.Repository,
				File:       rt.File,
				Line:       rt.Line,
			})
		}

		if group := groupFindings(repo.Label, repo.Findings); group != nil {
			res.Findings = append(res.Findings, *group)
		}
		for _, f := range repo.Findings {
			res.Summary.TotalFindings++
			res.Summary.BySeverity[string(f.Severity)]++
			res.Summary.ByCode[string(f.Code)]++
		}
	}

	res.Summary.UniqueModuleSources = len(moduleSources)
	res.Summary.UniqueProviderSources = len(providerSources)
	res.Status = computeStatus(res.Summary, opts.Strict)
	return res
}

func groupFindings(label string, findings []analyzer.Finding) *RepositoryFindings {
	if len(findings) == 0 {
		return nil
	}
	sorted := make([]analyzer.Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].File != sorted[j].File {
			return sorted[i].File < sorted[j].File
		}
		if sorted[i].Line != sorted[j].Line {
			return sorted[i].Line < sorted[j].Line
		}
		return sorted[i].Code < sorted[j].Code
	})

	group := &RepositoryFindings{Repository: label}
	for _, f := range sorted {
		n := len(group.Files)
		if n == 0 || group.Files[n-1].File != f.File {
			group.Files = append(group.Files, FileFindings{File: f.File})
			n++
		}
		group.Files[n-1].Findings = append(group.Files[n-1].Findings, f)
	}
	return group
}

func computeStatus(sum Summary, strict bool) Status {
	errors := sum.BySeverity[string(analyzer.SeverityError)] + sum.BySeverity[string(analyzer.SeverityCritical)]
	warnings := sum.BySeverity[string(analyzer.SeverityWarning)]

	switch {
	case errors > 0:
		return Status{Pass: false, ExitCode: 2, Reason: "error findings present"}
	case warnings > 0 && strict:
		return Status{Pass: false, ExitCode: 1, Reason: "warnings present in strict mode"}
	default:
		return Status{Pass: true, ExitCode: 0}
	}
}
