package analyzer

import (
	"fmt"

	"github.com/monphare/monphare/internal/version"
)

// Rule is one user-defined deprecation. Either Constraint or GitRef is set:
// a constraint rule describes the deprecated version interval, a git-ref
// rule names a deprecated tag or commit.
type Rule struct {
	Constraint  string   `yaml:"version" json:"version,omitempty"`
	GitRef      string   `yaml:"git_ref" json:"git_ref,omitempty"`
	Reason      string   `yaml:"reason" json:"reason"`
	Severity    Severity `yaml:"severity" json:"severity"`
	Replacement string   `yaml:"replacement" json:"replacement,omitempty"`
}

// Deprecations are the three lookup tables from configuration, immutable
// after load.
type Deprecations struct {
	Runtime   map[string][]Rule `yaml:"runtime" json:"runtime,omitempty"`
	Modules   map[string][]Rule `yaml:"modules" json:"modules,omitempty"`
	Providers map[string][]Rule `yaml:"providers" json:"providers,omitempty"`
}

// constraintView wraps an optional parsed constraint for matching.
type constraintView struct {
	c *version.Constraint
}

// lowerBound resolves the version the ref effectively declares as its
// minimum. An open lower bound counts as 0.0.0.
func (v constraintView) lowerBound() (version.Version, bool) {
	if v.c == nil {
		return version.Version{}, false
	}
	if lv, ok := v.c.Bounds().LowerVersion(); ok {
		return lv, true
	}
	return version.ParseVersion("0.0.0"), true
}

// matchDeprecations tests every rule registered under the first of the ref's
// table keys that is present in the table; rules under later keys are not
// consulted. A constraint rule matches when the ref's lower bound lies
// within the rule's interval; a git-ref rule matches on ref equality. Each
// matching rule yields one finding carrying the rule's severity, reason and
// replacement.
func (a *Analyzer) matchDeprecations(code Code, site refSite, table map[string][]Rule, keys []string, view constraintView, gitRef, label string) []Finding {
	if len(table) == 0 {
		return nil
	}

	var findings []Finding
	for _, key := range keys {
		rules, ok := table[key]
		if !ok {
			continue
		}
		for _, rule := range rules {
			matched, detail := ruleMatches(rule, view, gitRef)
			if !matched {
				continue
			}
			f := Finding{
				Code:        code,
				Severity:    rule.Severity,
				Message:     fmt.Sprintf("%s is deprecated: %s", label, rule.Reason),
				Replacement: rule.Replacement,
				Repository:  site.repo,
				File:        site.file,
				Line:        site.line,
			}
			if !f.Severity.Valid() {
				f.Severity = defaultSeverity[code]
			}
			if rule.Replacement != "" {
				f.Suggestion = "replace with " + rule.Replacement
			}
			if detail != "" {
				f.Message += " (" + detail + ")"
			}
			findings = append(findings, f)
		}
		// A source appears under one table key at most; stop after the
		// first key with rules so aliases of the same entry don't double
		// up.
		break
	}
	return findings
}

func ruleMatches(rule Rule, view constraintView, gitRef string) (bool, string) {
	if rule.GitRef != "" {
		if gitRef != "" && gitRef == rule.GitRef {
			return true, "ref " + gitRef
		}
		return false, ""
	}
	if rule.Constraint == "" {
		return false, ""
	}

	ruleConstraint, err := version.ParseConstraint(rule.Constraint)
	if err != nil {
		return false, ""
	}
	lower, ok := view.lowerBound()
	if !ok {
		return false, ""
	}
	if ruleConstraint.Bounds().Contains(lower) && ruleConstraint.Check(lower) {
		return true, fmt.Sprintf("declared lower bound %s matches %q", lower, rule.Constraint)
	}
	return false, ""
}
