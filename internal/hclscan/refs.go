// Package hclscan walks working trees and extracts module, provider and
// runtime declarations from Terraform/OpenTofu files. Extraction runs a
// structured HCL parse first and falls back to a line-based pass for files
// the parser rejects, so broken files still yield partial results.
package hclscan

import (
	"github.com/monphare/monphare/internal/source"
	"github.com/monphare/monphare/internal/version"
)

// RuntimeKind identifies which runtime a required_version targets.
type RuntimeKind string

const (
	RuntimeTerraform RuntimeKind = "terraform"
	RuntimeOpenTofu  RuntimeKind = "opentofu"
)

// ModuleRef is one module block. Immutable once extracted.
type ModuleRef struct {
	Name          string
	RawSource     string
	Source        source.Source
	RawConstraint string
	Constraint    *version.Constraint
	ConstraintErr *version.ParseError
	DependsOn     []string

	File       string
	Line       int
	Repository string
}

// HasConstraint reports whether a version attribute was written, whether or
// not it parsed.
func (m *ModuleRef) HasConstraint() bool { return m.RawConstraint != "" }

// ProviderRef is one entry in required_providers.
type ProviderRef struct {
	Alias         string
	Source        string
	RawConstraint string
	Constraint    *version.Constraint
	ConstraintErr *version.ParseError

	File       string
	Line       int
	Repository string
}

// HasConstraint reports whether a version was written for the entry.
func (p *ProviderRef) HasConstraint() bool { return p.RawConstraint != "" }

// RuntimeRef is one required_version attribute.
type RuntimeRef struct {
	Kind          RuntimeKind
	RawConstraint string
	Constraint    *version.Constraint
	ConstraintErr *version.ParseError

	File       string
	Line       int
	Repository string
}

// ParseIssue records a file neither parsing strategy could handle.
type ParseIssue struct {
	File    string
	Message string
}

// Inventory is everything extracted from one working tree, in deterministic
// (path, line) order.
type Inventory struct {
	Repository string
	Modules    []ModuleRef
	Providers  []ProviderRef
	Runtimes   []RuntimeRef
	Issues     []ParseIssue
	Files      []string
}
