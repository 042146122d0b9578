// Package source classifies raw Terraform module source strings into their
// address family and derives the canonical identity used to group references
// across files and repositories.
package source

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// DefaultRegistryHost is assumed for three-part registry triplets.
const DefaultRegistryHost = "registry.terraform.io"

// Source is a classified module source. Exactly one of the variant structs
// in this package implements it.
type Source interface {
	// CanonicalID is the normalized identity key used for grouping,
	// deprecation lookup and graph nodes.
	CanonicalID() string
	// Kind names the variant for output purposes.
	Kind() string

	sourceSigil()
}

// Registry is a Terraform registry module address.
type Registry struct {
	Host      string
	Namespace string
	Name      string
	Provider  string
}

func (Registry) sourceSigil() {}
func (Registry) Kind() string { return "registry" }

// CanonicalID renders host/namespace/name/provider with the default host
// elided, so shorthand and explicit-host forms group together.
func (r Registry) CanonicalID() string {
	triplet := r.Namespace + "/" + r.Name + "/" + r.Provider
	if r.Host == "" || r.Host == DefaultRegistryHost {
		return triplet
	}
	return r.Host + "/" + triplet
}

// Git is a module fetched from a Git repository.
type Git struct {
	URL    string
	Ref    string
	Subdir string
}

func (Git) sourceSigil() {}
func (Git) Kind() string { return "git" }

// CanonicalID lowercases the host, strips the trailing ".git" and the query
// string, and appends the subdir when present. The ref is deliberately not
// part of the identity: two refs of one repository are the same module.
func (g Git) CanonicalID() string {
	id := normalizeGitURL(g.URL)
	if g.Subdir != "" {
		id += "//" + g.Subdir
	}
	return id
}

// Local is a module addressed by filesystem path. Local modules are carried
// in the inventory but never version-checked.
type Local struct {
	Path string
}

func (Local) sourceSigil() {}
func (Local) Kind() string { return "local" }

func (l Local) CanonicalID() string {
	return "local://" + path.Clean(strings.ReplaceAll(l.Path, "\\", "/"))
}

// S3 is a module archive in an S3 bucket.
type S3 struct {
	URL string
}

func (S3) sourceSigil() {}
func (S3) Kind() string { return "s3" }

func (s S3) CanonicalID() string { return s.URL }

// Unknown is anything the classifier could not place, including sources with
// interpolations.
type Unknown struct {
	Raw string
}

func (Unknown) sourceSigil() {}
func (Unknown) Kind() string { return "unknown" }

func (u Unknown) CanonicalID() string { return u.Raw }

var (
	knownGitHosts = regexp.MustCompile(`^(?:https?://|ssh://)?(?:[\w.-]+@)?(github\.com|gitlab\.com|bitbucket\.org|dev\.azure\.com|ssh\.dev\.azure\.com)[/:]`)
	registryRe    = regexp.MustCompile(`^(?:([A-Za-z0-9][A-Za-z0-9.-]*\.[A-Za-z0-9.-]+)/)?([A-Za-z0-9_-]+)/([A-Za-z0-9_-]+)/([A-Za-z0-9_-]+)$`)
	scpSyntaxRe   = regexp.MustCompile(`^([\w.-]+@)([\w.-]+):(.+)$`)
)

// Classify decides the source family of a raw module source string. The
// decision order is fixed; the first match wins:
// git prefix/host, s3, local path, registry triplet, unknown.
func Classify(raw string) Source {
	s := strings.TrimSpace(raw)

	if strings.Contains(s, "${") {
		return Unknown{Raw: s}
	}

	if rest, ok := strings.CutPrefix(s, "git::"); ok {
		return parseGit(rest)
	}
	if knownGitHosts.MatchString(s) || strings.Contains(strings.SplitN(s, "?", 2)[0], ".git") {
		return parseGit(s)
	}

	if strings.HasPrefix(s, "s3::") || strings.HasPrefix(s, "s3://") {
		return S3{URL: s}
	}

	if isLocalPath(s) {
		return Local{Path: s}
	}

	if m := registryRe.FindStringSubmatch(s); m != nil {
		return Registry{Host: m[1], Namespace: m[2], Name: m[3], Provider: m[4]}
	}

	return Unknown{Raw: s}
}

func isLocalPath(s string) bool {
	return strings.HasPrefix(s, "./") ||
		strings.HasPrefix(s, "../") ||
		strings.HasPrefix(s, "/") ||
		strings.HasPrefix(s, "~")
}

// parseGit splits a git source into URL, ref and subdir. Handles
// "url?ref=...", "url//subdir" and scp-style "git@host:path".
func parseGit(s string) Git {
	g := Git{}

	// Subdir separator "//" appears after the scheme's own "//".
	rest := s
	scheme := ""
	if i := strings.Index(rest, "://"); i >= 0 {
		scheme = rest[:i+3]
		rest = rest[i+3:]
	}
	if i := strings.Index(rest, "//"); i >= 0 {
		g.Subdir = rest[i+2:]
		rest = rest[:i]
	}
	// The ref query may trail either the URL or the subdir.
	for _, part := range []*string{&g.Subdir, &rest} {
		if i := strings.Index(*part, "?"); i >= 0 {
			q, _ := url.ParseQuery((*part)[i+1:])
			if r := q.Get("ref"); r != "" {
				g.Ref = r
			}
			*part = (*part)[:i]
		}
	}
	g.URL = scheme + rest
	return g
}

// normalizeGitURL produces the grouping key for a git URL: scheme dropped,
// user dropped, host lowercased, ".git" suffix stripped.
func normalizeGitURL(raw string) string {
	s := raw
	if m := scpSyntaxRe.FindStringSubmatch(s); m != nil {
		s = m[2] + "/" + m[3]
	}
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.Index(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(s, ".git")
	if i := strings.Index(s, "/"); i >= 0 {
		s = strings.ToLower(s[:i]) + s[i:]
	} else {
		s = strings.ToLower(s)
	}
	return s
}

// DeprecationKeys returns every table key a source may be registered under.
// Registry sources match both the explicit-host and shorthand spellings; git
// sources match the normalized URL, the raw URL and the git:: form.
func DeprecationKeys(s Source) []string {
	switch v := s.(type) {
	case Registry:
		full := DefaultRegistryHost + "/" + v.Namespace + "/" + v.Name + "/" + v.Provider
		if v.Host != "" && v.Host != DefaultRegistryHost {
			return []string{v.CanonicalID()}
		}
		return []string{v.Namespace + "/" + v.Name + "/" + v.Provider, full}
	case Git:
		keys := []string{v.CanonicalID()}
		seen := map[string]bool{keys[0]: true}
		for _, k := range []string{v.URL, "git::" + v.URL} {
			if !seen[k] {
				keys = append(keys, k)
				seen[k] = true
			}
		}
		return keys
	default:
		return []string{s.CanonicalID()}
	}
}
