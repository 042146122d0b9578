package hclscan

import (
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/monphare/monphare/internal/source"
	"github.com/monphare/monphare/internal/version"
)

// fileRefs is the extraction result for a single file.
type fileRefs struct {
	modules   []ModuleRef
	providers []ProviderRef
	runtimes  []RuntimeRef
	issue     *ParseIssue
}

// extractFile picks the strategy for one file. Native syntax goes through
// the structured parser and falls back to the line scanner when the parser
// rejects the file; .tf.json files go through the JSON decoder.
func extractFile(src []byte, relPath, repo string) fileRefs {
	if strings.HasSuffix(relPath, ".json") {
		return extractJSON(src, relPath, repo)
	}

	refs, ok := extractStructured(src, relPath, repo)
	if ok {
		return refs
	}
	return extractFallback(src, relPath, repo)
}

// runtimeKindFor decides the runtime from the filename and block type.
// Explicit opentofu markers win; everything else is Terraform.
func runtimeKindFor(relPath, blockType string) RuntimeKind {
	if blockType == "opentofu" {
		return RuntimeOpenTofu
	}
	if strings.HasSuffix(relPath, ".tofu") || strings.HasSuffix(relPath, ".tofu.json") {
		return RuntimeOpenTofu
	}
	return RuntimeTerraform
}

// extractStructured parses the file with hclsyntax and walks the top-level
// blocks. Returns ok=false when the parser rejects the file outright.
func extractStructured(src []byte, relPath, repo string) (fileRefs, bool) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, relPath)
	if diags.HasErrors() || file == nil {
		return fileRefs{}, false
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return fileRefs{}, false
	}

	var refs fileRefs
	for _, block := range body.Blocks {
		switch block.Type {
		case "module":
			if m, ok := decodeModuleBlock(block, src, relPath, repo); ok {
				refs.modules = append(refs.modules, m)
			}
		case "terraform", "opentofu":
			rts, provs := decodeTerraformBlock(block, src, relPath, repo)
			refs.runtimes = append(refs.runtimes, rts...)
			refs.providers = append(refs.providers, provs...)
		}
	}
	return refs, true
}

func decodeModuleBlock(block *hclsyntax.Block, src []byte, relPath, repo string) (ModuleRef, bool) {
	name := "unnamed"
	if len(block.Labels) > 0 {
		name = block.Labels[0]
	}

	m := ModuleRef{
		Name:       name,
		File:       relPath,
		Line:       block.TypeRange.Start.Line,
		Repository: repo,
	}

	srcAttr, ok := block.Body.Attributes["source"]
	if !ok {
		// A module block without source declares nothing resolvable.
		return ModuleRef{}, false
	}
	m.RawSource, _ = stringValue(srcAttr.Expr, src)
	m.Source = source.Classify(m.RawSource)

	if verAttr, ok := block.Body.Attributes["version"]; ok {
		m.RawConstraint, _ = stringValue(verAttr.Expr, src)
		m.Constraint, m.ConstraintErr = parseConstraint(m.RawConstraint)
	}

	if dep, ok := block.Body.Attributes["depends_on"]; ok {
		m.DependsOn = decodeDependsOn(dep.Expr)
	}
	return m, true
}

// decodeDependsOn collects "module.<name>" traversals from a depends_on
// list. Non-module and non-traversal entries are ignored.
func decodeDependsOn(expr hclsyntax.Expression) []string {
	exprs, diags := hcl.ExprList(expr)
	if diags.HasErrors() {
		return nil
	}
	var deps []string
	for _, e := range exprs {
		traversal, diags := hcl.AbsTraversalForExpr(e)
		if diags.HasErrors() || len(traversal) < 2 {
			continue
		}
		if traversal.RootName() != "module" {
			continue
		}
		if attr, ok := traversal[1].(hcl.TraverseAttr); ok {
			deps = append(deps, attr.Name)
		}
	}
	return deps
}

func decodeTerraformBlock(block *hclsyntax.Block, src []byte, relPath, repo string) ([]RuntimeRef, []ProviderRef) {
	var runtimes []RuntimeRef
	var providers []ProviderRef

	if attr, ok := block.Body.Attributes["required_version"]; ok {
		raw, _ := stringValue(attr.Expr, src)
		rt := RuntimeRef{
			Kind:          runtimeKindFor(relPath, block.Type),
			RawConstraint: raw,
			File:          relPath,
			Line:          attr.NameRange.Start.Line,
			Repository:    repo,
		}
		rt.Constraint, rt.ConstraintErr = parseConstraint(raw)
		runtimes = append(runtimes, rt)
	}

	for _, nested := range block.Body.Blocks {
		if nested.Type != "required_providers" {
			continue
		}
		for _, attr := range sortedAttributes(nested.Body.Attributes) {
			providers = append(providers, decodeProviderEntry(attr, src, relPath, repo))
		}
	}
	return runtimes, providers
}

func decodeProviderEntry(attr *hclsyntax.Attribute, src []byte, relPath, repo string) ProviderRef {
	p := ProviderRef{
		Alias:      attr.Name,
		File:       relPath,
		Line:       attr.NameRange.Start.Line,
		Repository: repo,
	}

	val, diags := attr.Expr.Value(nil)
	switch {
	case diags == nil || !diags.HasErrors():
		switch {
		case val.Type() == cty.String:
			// Legacy pre-0.13 form: alias = "~> 3.0".
			p.RawConstraint = val.AsString()
		case val.Type().IsObjectType() || val.Type().IsMapType():
			attrs := val.AsValueMap()
			if s, ok := attrs["source"]; ok && s.Type() == cty.String {
				p.Source = s.AsString()
			}
			if v, ok := attrs["version"]; ok && v.Type() == cty.String {
				p.RawConstraint = v.AsString()
			}
		}
	default:
		// Interpolated entries keep their raw text so analysis can flag them.
		raw, _ := stringValue(attr.Expr, src)
		p.RawConstraint = raw
	}

	if p.Source == "" {
		p.Source = "hashicorp/" + p.Alias
	}
	if p.RawConstraint != "" {
		p.Constraint, p.ConstraintErr = parseConstraint(p.RawConstraint)
	}
	return p
}

// sortedAttributes orders a body's attributes by source position so
// extraction output is deterministic.
func sortedAttributes(attrs map[string]*hclsyntax.Attribute) []*hclsyntax.Attribute {
	out := make([]*hclsyntax.Attribute, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NameRange.Start.Line < out[j].NameRange.Start.Line
	})
	return out
}

// stringValue evaluates an expression to a string when it is a literal, and
// otherwise preserves the raw source text with surrounding quotes stripped.
// Interpolations like "${var.x}" therefore pass through as written.
func stringValue(expr hclsyntax.Expression, src []byte) (string, bool) {
	val, diags := expr.Value(nil)
	if (diags == nil || !diags.HasErrors()) && val.Type() == cty.String && val.IsKnown() && !val.IsNull() {
		return val.AsString(), true
	}

	rng := expr.Range()
	if rng.Start.Byte >= 0 && rng.End.Byte <= len(src) && rng.Start.Byte <= rng.End.Byte {
		raw := strings.TrimSpace(string(src[rng.Start.Byte:rng.End.Byte]))
		raw = strings.TrimPrefix(raw, `"`)
		raw = strings.TrimSuffix(raw, `"`)
		return raw, false
	}
	return "", false
}

// parseConstraint wraps version.ParseConstraint, returning the typed parse
// error so callers can record it on the ref.
func parseConstraint(raw string) (*version.Constraint, *version.ParseError) {
	c, err := version.ParseConstraint(raw)
	if err != nil {
		if perr, ok := err.(*version.ParseError); ok {
			return nil, perr
		}
		return nil, &version.ParseError{Raw: raw, Offending: raw, Reason: err.Error()}
	}
	return c, nil
}
