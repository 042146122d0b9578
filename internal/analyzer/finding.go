// Package analyzer runs the fixed check sequence over extracted references
// and emits findings. It is a pure function of the refs, the policies and
// the deprecation tables; output order follows the input ref order.
package analyzer

import "fmt"

// Severity of a finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for exit-code and summary decisions.
var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// Valid reports whether s is one of the four levels.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether s is at least as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// Code identifies a finding type. The set is closed.
type Code string

const (
	CodeMissingVersion        Code = "missing-version"
	CodeUnparseableConstraint Code = "unparseable-constraint"
	CodeWildcardConstraint    Code = "wildcard-constraint"
	CodeBroadConstraint       Code = "broad-constraint"
	CodeNoUpperBound          Code = "no-upper-bound"
	CodeExactVersion          Code = "exact-version"
	CodePrereleaseVersion     Code = "prerelease-version"
	CodeDeprecatedModule      Code = "deprecated-module"
	CodeDeprecatedProvider    Code = "deprecated-provider"
	CodeDeprecatedRuntime     Code = "deprecated-runtime"
	CodeDisallowedProvider    Code = "disallowed-provider"
	CodeBlockedModule         Code = "blocked-module"
)

// defaultSeverity is the base severity per code, before policy adjustments
// and overrides.
var defaultSeverity = map[Code]Severity{
	CodeMissingVersion:        SeverityError,
	CodeUnparseableConstraint: SeverityWarning,
	CodeWildcardConstraint:    SeverityWarning,
	CodeBroadConstraint:       SeverityWarning,
	CodeNoUpperBound:          SeverityWarning,
	CodeExactVersion:          SeverityInfo,
	CodePrereleaseVersion:     SeverityInfo,
	CodeDeprecatedModule:      SeverityError,
	CodeDeprecatedProvider:    SeverityError,
	CodeDeprecatedRuntime:     SeverityError,
	CodeDisallowedProvider:    SeverityWarning,
	CodeBlockedModule:         SeverityError,
}

// KnownCode reports whether c belongs to the closed code set. Configuration
// loading uses this to reject unknown severity overrides.
func KnownCode(c Code) bool {
	_, ok := defaultSeverity[c]
	return ok
}

// Finding is one analysis result.
type Finding struct {
	Code        Code     `json:"code"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	Suggestion  string   `json:"suggestion,omitempty"`
	Replacement string   `json:"replacement,omitempty"`

	Repository string `json:"repository"`
	File       string `json:"file"`
	Line       int    `json:"line"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s:%s:%d [%s] %s: %s", f.Repository, f.File, f.Line, f.Severity, f.Code, f.Message)
}
