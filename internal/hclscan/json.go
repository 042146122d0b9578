package hclscan

import (
	"encoding/json"
	"sort"

	"github.com/monphare/monphare/internal/source"
)

// extractJSON handles .tf.json / .tofu.json documents. JSON carries no
// usable position info, so every ref reports line 1.
func extractJSON(src []byte, relPath, repo string) fileRefs {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(src, &doc); err != nil {
		return fileRefs{issue: &ParseIssue{File: relPath, Message: "invalid JSON: " + err.Error()}}
	}

	var refs fileRefs
	if raw, ok := doc["module"]; ok {
		refs.modules = decodeJSONModules(raw, relPath, repo)
	}
	for _, key := range []string{"terraform", "opentofu"} {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		rts, provs := decodeJSONTerraform(raw, key, relPath, repo)
		refs.runtimes = append(refs.runtimes, rts...)
		refs.providers = append(refs.providers, provs...)
	}
	return refs
}

func decodeJSONModules(raw json.RawMessage, relPath, repo string) []ModuleRef {
	var blocks map[string]struct {
		Source  string `json:"source"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil
	}

	names := make([]string, 0, len(blocks))
	for name := range blocks {
		names = append(names, name)
	}
	sort.Strings(names)

	var modules []ModuleRef
	for _, name := range names {
		b := blocks[name]
		if b.Source == "" {
			continue
		}
		m := ModuleRef{
			Name:          name,
			RawSource:     b.Source,
			Source:        source.Classify(b.Source),
			RawConstraint: b.Version,
			File:          relPath,
			Line:          1,
			Repository:    repo,
		}
		if b.Version != "" {
			m.Constraint, m.ConstraintErr = parseConstraint(b.Version)
		}
		modules = append(modules, m)
	}
	return modules
}

func decodeJSONTerraform(raw json.RawMessage, blockType, relPath, repo string) ([]RuntimeRef, []ProviderRef) {
	var block struct {
		RequiredVersion   string          `json:"required_version"`
		RequiredProviders json.RawMessage `json:"required_providers"`
	}
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, nil
	}

	var runtimes []RuntimeRef
	if block.RequiredVersion != "" {
		rt := RuntimeRef{
			Kind:          runtimeKindFor(relPath, blockType),
			RawConstraint: block.RequiredVersion,
			File:          relPath,
			Line:          1,
			Repository:    repo,
		}
		rt.Constraint, rt.ConstraintErr = parseConstraint(block.RequiredVersion)
		runtimes = append(runtimes, rt)
	}

	var providers []ProviderRef
	if len(block.RequiredProviders) > 0 {
		providers = decodeJSONProviders(block.RequiredProviders, relPath, repo)
	}
	return runtimes, providers
}

func decodeJSONProviders(raw json.RawMessage, relPath, repo string) []ProviderRef {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}

	aliases := make([]string, 0, len(entries))
	for alias := range entries {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	var providers []ProviderRef
	for _, alias := range aliases {
		p := ProviderRef{
			Alias:      alias,
			File:       relPath,
			Line:       1,
			Repository: repo,
		}
		var obj struct {
			Source  string `json:"source"`
			Version string `json:"version"`
		}
		var versionOnly string
		if err := json.Unmarshal(entries[alias], &obj); err == nil && (obj.Source != "" || obj.Version != "") {
			p.Source = obj.Source
			p.RawConstraint = obj.Version
		} else if err := json.Unmarshal(entries[alias], &versionOnly); err == nil {
			p.RawConstraint = versionOnly
		}
		if p.Source == "" {
			p.Source = "hashicorp/" + alias
		}
		if p.RawConstraint != "" {
			p.Constraint, p.ConstraintErr = parseConstraint(p.RawConstraint)
		}
		providers = append(providers, p)
	}
	return providers
}
