package analyzer

import (
	"strings"
	"testing"

	"github.com/monphare/monphare/internal/hclscan"
	"github.com/monphare/monphare/internal/source"
	"github.com/monphare/monphare/internal/version"
)

func newTestAnalyzer(pol Policies, deps Deprecations) *Analyzer {
	return NewAnalyzer(DefaultOptions(), pol, deps)
}

func defaultPolicies() Policies {
	return Policies{RequireVersionConstraint: true}
}

func moduleRef(rawSource, rawConstraint string) hclscan.ModuleRef {
	m := hclscan.ModuleRef{
		Name:       "m",
		RawSource:  rawSource,
		Source:     source.Classify(rawSource),
		File:       "main.tf",
		Line:       3,
		Repository: "repo",
	}
	if rawConstraint != "" {
		m.RawConstraint = rawConstraint
		c, err := version.ParseConstraint(rawConstraint)
		if err != nil {
			m.ConstraintErr = err.(*version.ParseError)
		} else {
			m.Constraint = c
		}
	}
	return m
}

func analyzeModules(t *testing.T, a *Analyzer, mods ...hclscan.ModuleRef) []Finding {
	t.Helper()
	return a.Analyze(&hclscan.Inventory{Repository: "repo", Modules: mods})
}

func codes(findings []Finding) []Code {
	out := make([]Code, len(findings))
	for i, f := range findings {
		out[i] = f.Code
	}
	return out
}

func hasCode(findings []Finding, c Code) bool {
	for _, f := range findings {
		if f.Code == c {
			return true
		}
	}
	return false
}

func TestMissingVersion(t *testing.T) {
	a := newTestAnalyzer(defaultPolicies(), Deprecations{})
	fs := analyzeModules(t, a, moduleRef("terraform-aws-modules/vpc/aws", ""))
	if len(fs) != 1 || fs[0].Code != CodeMissingVersion {
		t.Fatalf("findings = %v", codes(fs))
	}
	if fs[0].Severity != SeverityError {
		t.Errorf("severity = %s, want error", fs[0].Severity)
	}
	if fs[0].Line != 3 || fs[0].File != "main.tf" {
		t.Errorf("location = %s:%d", fs[0].File, fs[0].Line)
	}

	// Policy off downgrades to warning.
	a = newTestAnalyzer(Policies{RequireVersionConstraint: false}, Deprecations{})
	fs = analyzeModules(t, a, moduleRef("terraform-aws-modules/vpc/aws", ""))
	if fs[0].Severity != SeverityWarning {
		t.Errorf("severity = %s, want warning", fs[0].Severity)
	}
}

func TestLocalModuleSkipped(t *testing.T) {
	a := newTestAnalyzer(defaultPolicies(), Deprecations{})
	fs := analyzeModules(t, a, moduleRef("../modules/vpc", ""))
	if len(fs) != 0 {
		t.Errorf("local module produced findings: %v", codes(fs))
	}
}

func TestUnparseableStopsFurtherChecks(t *testing.T) {
	a := newTestAnalyzer(defaultPolicies(), Deprecations{})
	fs := analyzeModules(t, a, moduleRef("terraform-aws-modules/vpc/aws", "latest"))
	if len(fs) != 1 || fs[0].Code != CodeUnparseableConstraint {
		t.Fatalf("findings = %v, want exactly one unparseable-constraint", codes(fs))
	}
}

func TestWildcardConstraint(t *testing.T) {
	a := newTestAnalyzer(defaultPolicies(), Deprecations{})
	fs := analyzeModules(t, a, moduleRef("terraform-aws-modules/vpc/aws", "*"))
	if len(fs) != 1 || fs[0].Code != CodeWildcardConstraint {
		t.Fatalf("findings = %v", codes(fs))
	}
}

func TestBroadConstraint(t *testing.T) {
	a := newTestAnalyzer(defaultPolicies(), Deprecations{})
	fs := analyzeModules(t, a, moduleRef("terraform-aws-modules/vpc/aws", ">= 0.0.0"))
	if len(fs) != 1 || fs[0].Code != CodeBroadConstraint {
		t.Fatalf("findings = %v", codes(fs))
	}

	// Bounded above: not broad, and not missing an upper bound.
	fs = analyzeModules(t, a, moduleRef("terraform-aws-modules/vpc/aws", ">= 0.0.0, < 1.0"))
	if hasCode(fs, CodeBroadConstraint) || hasCode(fs, CodeNoUpperBound) {
		t.Errorf(">= 0.0.0, < 1.0 flagged: %v", codes(fs))
	}
}

func TestNoUpperBound(t *testing.T) {
	a := newTestAnalyzer(defaultPolicies(), Deprecations{})
	fs := analyzeModules(t, a, moduleRef("terraform-aws-modules/vpc/aws", ">= 4.0"))
	if len(fs) != 1 || fs[0].Code != CodeNoUpperBound {
		t.Fatalf("findings = %v", codes(fs))
	}
	if fs[0].Severity != SeverityWarning {
		t.Errorf("severity = %s", fs[0].Severity)
	}

	// Pessimistic and exact constraints have computable bounds.
	for _, raw := range []string{"~> 4", "~> 4.0", "1.2.3", ">= 1.0, < 2.0"} {
		fs = analyzeModules(t, a, moduleRef("terraform-aws-modules/vpc/aws", raw))
		if hasCode(fs, CodeNoUpperBound) {
			t.Errorf("%q flagged no-upper-bound", raw)
		}
	}

	// Policy promotes to error.
	a = newTestAnalyzer(Policies{RequireVersionConstraint: true, RequireUpperBound: true}, Deprecations{})
	fs = analyzeModules(t, a, moduleRef("terraform-aws-modules/vpc/aws", ">= 4.0"))
	if fs[0].Severity != SeverityError {
		t.Errorf("severity = %s, want error under require_upper_bound", fs[0].Severity)
	}
}

func TestExactAndPrereleaseBothFire(t *testing.T) {
	a := newTestAnalyzer(defaultPolicies(), Deprecations{})
	fs := analyzeModules(t, a, moduleRef("terraform-aws-modules/eks/aws", "20.0.0-beta1"))
	if !hasCode(fs, CodeExactVersion) || !hasCode(fs, CodePrereleaseVersion) {
		t.Errorf("findings = %v, want exact-version and prerelease-version", codes(fs))
	}
	if len(fs) != 2 {
		t.Errorf("findings = %v", codes(fs))
	}
}

func TestExactVersionSpellings(t *testing.T) {
	a := newTestAnalyzer(defaultPolicies(), Deprecations{})
	for _, raw := range []string{"1.2.3", "= 1.2.3"} {
		fs := analyzeModules(t, a, moduleRef("terraform-aws-modules/vpc/aws", raw))
		if !hasCode(fs, CodeExactVersion) {
			t.Errorf("%q did not produce exact-version", raw)
		}
	}
}

func TestNotEqualIsInformationalOnly(t *testing.T) {
	a := newTestAnalyzer(defaultPolicies(), Deprecations{})
	fs := analyzeModules(t, a, moduleRef("terraform-aws-modules/vpc/aws", "!= 1.0.0"))
	if len(fs) != 0 {
		t.Errorf("!= constraint produced findings: %v", codes(fs))
	}
}

func TestProviderChecks(t *testing.T) {
	a := newTestAnalyzer(defaultPolicies(), Deprecations{})
	c, _ := version.ParseConstraint(">= 4.0")
	inv := &hclscan.Inventory{
		Repository: "repo",
		Providers: []hclscan.ProviderRef{{
			Alias: "aws", Source: "hashicorp/aws",
			RawConstraint: ">= 4.0", Constraint: c,
			File: "versions.tf", Line: 5, Repository: "repo",
		}},
	}
	fs := a.Analyze(inv)
	if len(fs) != 1 || fs[0].Code != CodeNoUpperBound {
		t.Fatalf("findings = %v", codes(fs))
	}
}

func TestAllowedProvidersPolicy(t *testing.T) {
	pol := defaultPolicies()
	pol.AllowedProviders = []string{"hashicorp/*"}
	a := newTestAnalyzer(pol, Deprecations{})

	c, _ := version.ParseConstraint("~> 1.0")
	inv := &hclscan.Inventory{
		Repository: "repo",
		Providers: []hclscan.ProviderRef{
			{Alias: "aws", Source: "hashicorp/aws", RawConstraint: "~> 1.0", Constraint: c, File: "a.tf", Line: 1, Repository: "repo"},
			{Alias: "dd", Source: "datadog/datadog", RawConstraint: "~> 1.0", Constraint: c, File: "a.tf", Line: 2, Repository: "repo"},
		},
	}
	fs := a.Analyze(inv)
	if len(fs) != 1 || fs[0].Code != CodeDisallowedProvider {
		t.Fatalf("findings = %v", codes(fs))
	}
	if fs[0].Line != 2 {
		t.Errorf("finding at line %d, want 2", fs[0].Line)
	}
}

func TestBlockedModulesPolicy(t *testing.T) {
	pol := defaultPolicies()
	pol.BlockedModules = []string{"terraform-aws-modules/eks/*"}
	a := newTestAnalyzer(pol, Deprecations{})

	fs := analyzeModules(t, a, moduleRef("terraform-aws-modules/eks/aws", "~> 20.0"))
	if !hasCode(fs, CodeBlockedModule) {
		t.Errorf("findings = %v, want blocked-module", codes(fs))
	}
	for _, f := range fs {
		if f.Code == CodeBlockedModule && f.Severity != SeverityError {
			t.Errorf("blocked-module severity = %s", f.Severity)
		}
	}
}

func TestDeprecatedModuleByConstraint(t *testing.T) {
	deps := Deprecations{Modules: map[string][]Rule{
		"terraform-aws-modules/vpc/aws": {{
			Constraint:  "1.0.1",
			Reason:      "CVE",
			Severity:    SeverityError,
			Replacement: ">= 5.0.0",
		}},
	}}
	a := newTestAnalyzer(defaultPolicies(), deps)

	fs := analyzeModules(t, a, moduleRef("terraform-aws-modules/vpc/aws", "1.0.1"))
	var dep *Finding
	for i := range fs {
		if fs[i].Code == CodeDeprecatedModule {
			dep = &fs[i]
		}
	}
	if dep == nil {
		t.Fatalf("findings = %v, want deprecated-module", codes(fs))
	}
	if dep.Severity != SeverityError {
		t.Errorf("severity = %s", dep.Severity)
	}
	if dep.Replacement != ">= 5.0.0" {
		t.Errorf("replacement = %q", dep.Replacement)
	}
	if !strings.Contains(dep.Message, "CVE") {
		t.Errorf("message = %q, want the rule reason", dep.Message)
	}

	// A 5.x declaration must not match.
	fs = analyzeModules(t, a, moduleRef("terraform-aws-modules/vpc/aws", "~> 5.1"))
	if hasCode(fs, CodeDeprecatedModule) {
		t.Error("5.x module matched a 1.0.1 deprecation rule")
	}
}

func TestDeprecationMatchesOnLowerBound(t *testing.T) {
	deps := Deprecations{Modules: map[string][]Rule{
		"terraform-aws-modules/vpc/aws": {{Constraint: "< 3.0.0", Reason: "old", Severity: SeverityWarning}},
	}}
	a := newTestAnalyzer(defaultPolicies(), deps)

	// Lower bound 2.5 lies inside "< 3.0.0" even though the range crosses it.
	fs := analyzeModules(t, a, moduleRef("terraform-aws-modules/vpc/aws", ">= 2.5, < 3.5"))
	if !hasCode(fs, CodeDeprecatedModule) {
		t.Errorf("findings = %v, want lower-bound match", codes(fs))
	}

	// Lower bound 3.0 lies outside.
	fs = analyzeModules(t, a, moduleRef("terraform-aws-modules/vpc/aws", ">= 3.0, < 3.5"))
	if hasCode(fs, CodeDeprecatedModule) {
		t.Error("lower bound 3.0 must not match < 3.0.0")
	}
}

func TestDeprecatedModuleByShorthandKey(t *testing.T) {
	deps := Deprecations{Modules: map[string][]Rule{
		"registry.terraform.io/terraform-aws-modules/vpc/aws": {{Constraint: "< 5.0.0", Reason: "old", Severity: SeverityError}},
	}}
	a := newTestAnalyzer(defaultPolicies(), deps)
	fs := analyzeModules(t, a, moduleRef("terraform-aws-modules/vpc/aws", "4.2.0"))
	if !hasCode(fs, CodeDeprecatedModule) {
		t.Errorf("explicit-host table key did not match shorthand source: %v", codes(fs))
	}
}

func TestDeprecatedModuleByGitRef(t *testing.T) {
	deps := Deprecations{Modules: map[string][]Rule{
		"github.com/example/module": {{GitRef: "v1.0.0", Reason: "bad tag", Severity: SeverityError, Replacement: "v1.0.1"}},
	}}
	a := newTestAnalyzer(defaultPolicies(), deps)

	fs := analyzeModules(t, a, moduleRef("git::https://github.com/example/module.git?ref=v1.0.0", ""))
	if !hasCode(fs, CodeDeprecatedModule) {
		t.Errorf("findings = %v, want git-ref match", codes(fs))
	}

	fs = analyzeModules(t, a, moduleRef("git::https://github.com/example/module.git?ref=v2.0.0", ""))
	if hasCode(fs, CodeDeprecatedModule) {
		t.Error("non-matching ref flagged")
	}
}

func TestDeprecatedRuntime(t *testing.T) {
	deps := Deprecations{Runtime: map[string][]Rule{
		"terraform": {{Constraint: "< 1.0.0", Reason: "pre-1.0", Severity: SeverityCritical, Replacement: ">= 1.5.0"}},
	}}
	a := newTestAnalyzer(defaultPolicies(), deps)

	c, _ := version.ParseConstraint(">= 0.13.0")
	inv := &hclscan.Inventory{
		Repository: "repo",
		Runtimes: []hclscan.RuntimeRef{{
			Kind: hclscan.RuntimeTerraform,
			RawConstraint: ">= 0.13.0", Constraint: c,
			File: "versions.tf", Line: 2, Repository: "repo",
		}},
	}
	fs := a.Analyze(inv)
	if len(fs) != 1 || fs[0].Code != CodeDeprecatedRuntime {
		t.Fatalf("findings = %v", codes(fs))
	}
	if fs[0].Severity != SeverityCritical {
		t.Errorf("severity = %s", fs[0].Severity)
	}
}

func TestSeverityOverrides(t *testing.T) {
	pol := defaultPolicies()
	pol.SeverityOverrides = map[Code]Severity{CodeMissingVersion: SeverityCritical}
	a := newTestAnalyzer(pol, Deprecations{})

	fs := analyzeModules(t, a, moduleRef("terraform-aws-modules/vpc/aws", ""))
	if fs[0].Severity != SeverityCritical {
		t.Errorf("override not applied: %s", fs[0].Severity)
	}
}

