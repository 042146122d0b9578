package analyzer

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/monphare/monphare/internal/hclscan"
	"github.com/monphare/monphare/internal/source"
	"github.com/monphare/monphare/internal/version"
)

// Policies refine check behavior and carry the override map. NewAnalyzer
// uses the values as given: in the zero value RequireVersionConstraint is
// false, so missing-version is reported as a warning. The configuration
// layer supplies the defaults.
type Policies struct {
	// RequireVersionConstraint keeps missing-version at error; when false
	// it downgrades to warning.
	RequireVersionConstraint bool
	// RequireUpperBound promotes no-upper-bound to error.
	RequireUpperBound bool
	// AllowedProviders, when non-empty, flags providers matching none of
	// the globs.
	AllowedProviders []string
	// BlockedModules flags modules matching any glob.
	BlockedModules []string
	// SeverityOverrides remaps finding severities per code after all
	// checks ran. Keys are validated at configuration-load time.
	SeverityOverrides map[Code]Severity
}

// Options toggles individual checks, mirroring the analysis
// config section.
type Options struct {
	CheckExactVersions bool
	CheckPrerelease    bool
	CheckUpperBound    bool
}

// DefaultOptions enables every check.
func DefaultOptions() Options {
	return Options{CheckExactVersions: true, CheckPrerelease: true, CheckUpperBound: true}
}

// Analyzer runs the check sequence. It holds only immutable configuration
// and is safe for concurrent use.
type Analyzer struct {
	opts     Options
	policies Policies
	deps     Deprecations
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(opts Options, policies Policies, deps Deprecations) *Analyzer {
	return &Analyzer{opts: opts, policies: policies, deps: deps}
}

// Analyze emits findings for one inventory. Refs are visited in inventory
// order, so output is deterministic for a sorted inventory.
func (a *Analyzer) Analyze(inv *hclscan.Inventory) []Finding {
	var findings []Finding

	for i := range inv.Modules {
		findings = append(findings, a.checkModule(&inv.Modules[i])...)
	}
	for i := range inv.Providers {
		findings = append(findings, a.checkProvider(&inv.Providers[i])...)
	}
	for i := range inv.Runtimes {
		findings = append(findings, a.checkRuntime(&inv.Runtimes[i])...)
	}

	for i := range findings {
		if override, ok := a.policies.SeverityOverrides[findings[i].Code]; ok {
			findings[i].Severity = override
		}
	}
	return findings
}

// refSite carries the location fields shared by the three ref kinds.
type refSite struct {
	repo string
	file string
	line int
}

func (a *Analyzer) newFinding(code Code, site refSite, message string) Finding {
	sev := defaultSeverity[code]
	switch code {
	case CodeMissingVersion:
		if !a.policies.RequireVersionConstraint {
			sev = SeverityWarning
		}
	case CodeNoUpperBound:
		if a.policies.RequireUpperBound {
			sev = SeverityError
		}
	}
	return Finding{
		Code:       code,
		Severity:   sev,
		Message:    message,
		Repository: site.repo,
		File:       site.file,
		Line:       site.line,
	}
}

func (a *Analyzer) checkModule(m *hclscan.ModuleRef) []Finding {
	site := refSite{repo: m.Repository, file: m.File, line: m.Line}
	var findings []Finding

	// Local modules stay in the inventory but are never version-checked.
	if _, isLocal := m.Source.(source.Local); !isLocal {
		findings = a.checkConstraint(site,
			fmt.Sprintf("module %q (%s)", m.Name, m.RawSource),
			m.HasConstraint(), m.RawConstraint, m.Constraint != nil, constraintView{c: m.Constraint})

		findings = append(findings, a.matchDeprecations(
			CodeDeprecatedModule, site, a.deps.Modules, source.DeprecationKeys(m.Source),
			constraintView{c: m.Constraint}, gitRefOf(m.Source),
			fmt.Sprintf("module %q (%s)", m.Name, m.Source.CanonicalID()))...)

		for _, pattern := range a.policies.BlockedModules {
			if globMatch(pattern, m.Source.CanonicalID()) || globMatch(pattern, m.RawSource) {
				f := a.newFinding(CodeBlockedModule, site,
					fmt.Sprintf("module %q uses blocked source %s", m.Name, m.Source.CanonicalID()))
				f.Suggestion = "replace this module; its source is on the organization block list"
				findings = append(findings, f)
				break
			}
		}
	}
	return findings
}

func (a *Analyzer) checkProvider(p *hclscan.ProviderRef) []Finding {
	site := refSite{repo: p.Repository, file: p.File, line: p.Line}
	label := fmt.Sprintf("provider %q (%s)", p.Alias, p.Source)

	findings := a.checkConstraint(site, label,
		p.HasConstraint(), p.RawConstraint, p.Constraint != nil, constraintView{c: p.Constraint})

	findings = append(findings, a.matchDeprecations(
		CodeDeprecatedProvider, site, a.deps.Providers, []string{p.Source},
		constraintView{c: p.Constraint}, "", label)...)

	if len(a.policies.AllowedProviders) > 0 {
		allowed := false
		for _, pattern := range a.policies.AllowedProviders {
			if globMatch(pattern, p.Source) {
				allowed = true
				break
			}
		}
		if !allowed {
			f := a.newFinding(CodeDisallowedProvider, site,
				fmt.Sprintf("%s is not on the allowed provider list", label))
			f.Suggestion = "use an approved provider or extend policies.allowed_providers"
			findings = append(findings, f)
		}
	}
	return findings
}

func (a *Analyzer) checkRuntime(r *hclscan.RuntimeRef) []Finding {
	site := refSite{repo: r.Repository, file: r.File, line: r.Line}
	var findings []Finding

	if r.ConstraintErr != nil {
		f := a.newFinding(CodeUnparseableConstraint, site,
			fmt.Sprintf("required_version %q cannot be parsed: %s", r.RawConstraint, r.ConstraintErr.Reason))
		f.Suggestion = "use Terraform constraint syntax, e.g. \">= 1.5.0, < 2.0.0\""
		return []Finding{f}
	}

	findings = append(findings, a.matchDeprecations(
		CodeDeprecatedRuntime, site, a.deps.Runtime, []string{string(r.Kind)},
		constraintView{c: r.Constraint}, "",
		fmt.Sprintf("%s required_version %q", r.Kind, r.RawConstraint))...)
	return findings
}

// checkConstraint is the shared range/pinning sequence for module and
// provider refs. The order is fixed; steps 3-5 are mutually exclusive,
// steps 6-7 fire independently.
func (a *Analyzer) checkConstraint(site refSite, label string, has bool, raw string, parsed bool, view constraintView) []Finding {
	if !has {
		f := a.newFinding(CodeMissingVersion, site, label+" has no version constraint")
		f.Suggestion = "pin a version range, e.g. version = \"~> 5.0\""
		return []Finding{f}
	}
	if !parsed {
		f := a.newFinding(CodeUnparseableConstraint, site,
			fmt.Sprintf("%s has unparseable constraint %q", label, raw))
		f.Suggestion = "use Terraform constraint syntax, e.g. \">= 1.0, < 2.0\""
		return []Finding{f}
	}

	var findings []Finding
	bounds := view.c.Bounds()
	switch {
	case view.c.IsWildcard():
		f := a.newFinding(CodeWildcardConstraint, site, label+" accepts any version (\"*\")")
		f.Suggestion = "replace the wildcard with a bounded range"
		findings = append(findings, f)
	case view.c.HasBroadLower() && lowerIsZero(bounds) && !bounds.HasUpper():
		f := a.newFinding(CodeBroadConstraint, site,
			fmt.Sprintf("%s constraint %q admits every release", label, raw))
		f.Suggestion = "raise the lower bound and add an upper bound"
		findings = append(findings, f)
	case a.opts.CheckUpperBound && !bounds.HasUpper() && view.c.HasLowerOp() &&
		!view.c.IsExact() && !view.c.IsSinglePessimistic():
		f := a.newFinding(CodeNoUpperBound, site,
			fmt.Sprintf("%s constraint %q has no upper bound", label, raw))
		f.Suggestion = "add an upper bound or use the pessimistic operator"
		findings = append(findings, f)
	}

	if a.opts.CheckExactVersions && view.c.IsExact() {
		f := a.newFinding(CodeExactVersion, site,
			fmt.Sprintf("%s pins exactly %s", label, view.c.Predicates[0].Version))
		f.Suggestion = "consider a pessimistic range to receive patch releases"
		findings = append(findings, f)
	}
	if a.opts.CheckPrerelease && view.c.HasPrerelease() {
		f := a.newFinding(CodePrereleaseVersion, site,
			fmt.Sprintf("%s constraint %q references a pre-release", label, raw))
		f.Suggestion = "move to a stable release"
		findings = append(findings, f)
	}
	return findings
}

// lowerIsZero reports an effective lower bound of exactly 0.0.0 inclusive.
func lowerIsZero(r version.Range) bool {
	return r.Lower.Kind == version.Inclusive && r.Lower.Version.Zero()
}

func globMatch(pattern, s string) bool {
	ok, err := doublestar.Match(pattern, s)
	return err == nil && ok
}

func gitRefOf(s source.Source) string {
	if g, ok := s.(source.Git); ok {
		return g.Ref
	}
	return ""
}
