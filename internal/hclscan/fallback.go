package hclscan

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/monphare/monphare/internal/source"
)

// The line scanner recognizes the same shapes the structured parser does.
// It tracks brace depth so attributes are attached to the block that opened
// them, and records the line each block opened on.
var (
	moduleOpenRe  = regexp.MustCompile(`^\s*module\s+"([^"]+)"\s*\{`)
	tfOpenRe      = regexp.MustCompile(`^\s*(terraform|opentofu)\s*\{`)
	reqProvOpenRe = regexp.MustCompile(`^\s*required_providers\s*\{`)
	provEntryRe   = regexp.MustCompile(`^\s*([A-Za-z_][\w-]*)\s*=\s*\{`)
	attrRe        = regexp.MustCompile(`^\s*([A-Za-z_][\w-]*)\s*=\s*"([^"]*)"`)
	reqVersionRe  = regexp.MustCompile(`^\s*required_version\s*=\s*"([^"]*)"`)
	provInlineRe  = regexp.MustCompile(`^\s*([A-Za-z_][\w-]*)\s*=\s*"([^"]*)"\s*$`)
	dependsOnRe   = regexp.MustCompile(`module\.([A-Za-z_][\w-]*)`)
	dependsOpenRe = regexp.MustCompile(`^\s*depends_on\s*=`)
)

type fallbackState int

const (
	stateTop fallbackState = iota
	stateModule
	stateTerraform
	stateRequiredProviders
	stateProviderEntry
)

// extractFallback is the line-based pass for files the structured parser
// rejects. It must produce structurally identical refs for well-formed
// input; on broken input it yields whatever it can, and records a parse
// issue only when nothing at all was recovered.
func extractFallback(src []byte, relPath, repo string) fileRefs {
	var refs fileRefs

	state := stateTop
	depth := 0
	stateDepth := 0
	entryDepth := 0

	var curModule *ModuleRef
	var curProvider *ProviderRef
	tfBlockType := "terraform"

	lineNo := 0
	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		stripped := stripComment(line)

		switch state {
		case stateTop:
			if m := moduleOpenRe.FindStringSubmatch(stripped); m != nil {
				curModule = &ModuleRef{
					Name:       m[1],
					File:       relPath,
					Line:       lineNo,
					Repository: repo,
				}
				state = stateModule
				stateDepth = depth
			} else if m := tfOpenRe.FindStringSubmatch(stripped); m != nil {
				tfBlockType = m[1]
				state = stateTerraform
				stateDepth = depth
			}
		case stateModule:
			if m := attrRe.FindStringSubmatch(stripped); m != nil && depth == stateDepth+1 {
				switch m[1] {
				case "source":
					curModule.RawSource = m[2]
					curModule.Source = source.Classify(m[2])
				case "version":
					curModule.RawConstraint = m[2]
					curModule.Constraint, curModule.ConstraintErr = parseConstraint(m[2])
				}
			}
			if dependsOpenRe.MatchString(stripped) && depth == stateDepth+1 {
				for _, dm := range dependsOnRe.FindAllStringSubmatch(stripped, -1) {
					curModule.DependsOn = append(curModule.DependsOn, dm[1])
				}
			}
		case stateTerraform:
			if m := reqVersionRe.FindStringSubmatch(stripped); m != nil && depth == stateDepth+1 {
				rt := RuntimeRef{
					Kind:          runtimeKindFor(relPath, tfBlockType),
					RawConstraint: m[1],
					File:          relPath,
					Line:          lineNo,
					Repository:    repo,
				}
				rt.Constraint, rt.ConstraintErr = parseConstraint(m[1])
				refs.runtimes = append(refs.runtimes, rt)
			} else if reqProvOpenRe.MatchString(stripped) && depth == stateDepth+1 {
				state = stateRequiredProviders
			}
		case stateRequiredProviders:
			if m := provEntryRe.FindStringSubmatch(stripped); m != nil && depth == stateDepth+2 {
				curProvider = &ProviderRef{
					Alias:      m[1],
					File:       relPath,
					Line:       lineNo,
					Repository: repo,
				}
				state = stateProviderEntry
				entryDepth = depth
			} else if m := provInlineRe.FindStringSubmatch(stripped); m != nil && depth == stateDepth+2 {
				// Legacy form: alias = ">= 4.0".
				p := ProviderRef{
					Alias:         m[1],
					Source:        "hashicorp/" + m[1],
					RawConstraint: m[2],
					File:          relPath,
					Line:          lineNo,
					Repository:    repo,
				}
				p.Constraint, p.ConstraintErr = parseConstraint(m[2])
				refs.providers = append(refs.providers, p)
			}
		case stateProviderEntry:
			if m := attrRe.FindStringSubmatch(stripped); m != nil {
				switch m[1] {
				case "source":
					curProvider.Source = m[2]
				case "version":
					curProvider.RawConstraint = m[2]
					curProvider.Constraint, curProvider.ConstraintErr = parseConstraint(m[2])
				}
			}
		}

		depth += strings.Count(stripped, "{") - strings.Count(stripped, "}")
		if depth < 0 {
			depth = 0
		}

		// Closings, innermost first.
		if state == stateProviderEntry && depth <= entryDepth {
			if curProvider.Source == "" {
				curProvider.Source = "hashicorp/" + curProvider.Alias
			}
			refs.providers = append(refs.providers, *curProvider)
			curProvider = nil
			state = stateRequiredProviders
		}
		if state == stateRequiredProviders && depth <= stateDepth+1 {
			state = stateTerraform
		}
		if (state == stateModule || state == stateTerraform) && depth <= stateDepth {
			if state == stateModule && curModule.RawSource != "" {
				refs.modules = append(refs.modules, *curModule)
			}
			curModule = nil
			state = stateTop
		}
	}

	if len(refs.modules) == 0 && len(refs.providers) == 0 && len(refs.runtimes) == 0 {
		refs.issue = &ParseIssue{File: relPath, Message: "file is not parseable as HCL"}
	}
	return refs
}

// stripComment removes "#" and "//" trailers outside of quoted strings.
func stripComment(line string) string {
	inString := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inString = !inString
		case '#':
			if !inString {
				return line[:i]
			}
		case '/':
			if !inString && i+1 < len(line) && line[i+1] == '/' {
				return line[:i]
			}
		}
	}
	return line
}
