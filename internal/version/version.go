// Package version implements Terraform version constraint parsing and the
// interval algebra used by the analyzer. A constraint is a conjunction of
// operator/value predicates (">= 1.0, < 2.0"); predicates translate into a
// lower/upper bound pair that the checks inspect.
package version

import (
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Version is a parsed semantic version. Tokens that do not parse as semver
// (e.g. "latest") are retained as non-semver versions: they keep their raw
// text but cannot be ordered.
type Version struct {
	raw      string
	v        *goversion.Version
	segments int
}

// ParseVersion parses MAJOR[.MINOR[.PATCH[-PRE][+META]]]. Missing minor and
// patch segments default to zero. A leading "v" is tolerated. The returned
// Version is non-semver when the token cannot be parsed; ParseVersion itself
// never fails.
func ParseVersion(raw string) Version {
	s := strings.TrimSpace(raw)
	trimmed := strings.TrimPrefix(s, "v")

	segments := numericSegments(trimmed)
	v, err := goversion.NewSemver(trimmed)
	if err != nil {
		return Version{raw: s}
	}
	return Version{raw: s, v: v, segments: segments}
}

// numericSegments counts the explicitly written numeric segments, before any
// pre-release or build suffix. "1.0" has two, "1.2.3-beta1" has three.
func numericSegments(s string) int {
	core := s
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	if core == "" {
		return 0
	}
	return strings.Count(core, ".") + 1
}

// IsSemver reports whether the version parsed as a semantic version.
func (v Version) IsSemver() bool { return v.v != nil }

// Raw returns the version exactly as written.
func (v Version) Raw() string { return v.raw }

// Segments returns how many numeric segments were written. Pessimistic
// constraints widen differently depending on this.
func (v Version) Segments() int { return v.segments }

// Major returns the major segment, zero for non-semver versions.
func (v Version) Major() int {
	if v.v == nil {
		return 0
	}
	return v.v.Segments()[0]
}

// Minor returns the minor segment, zero for non-semver versions.
func (v Version) Minor() int {
	if v.v == nil {
		return 0
	}
	return v.v.Segments()[1]
}

// Patch returns the patch segment, zero for non-semver versions.
func (v Version) Patch() int {
	if v.v == nil {
		return 0
	}
	return v.v.Segments()[2]
}

// Prerelease returns the pre-release component, empty if none.
func (v Version) Prerelease() string {
	if v.v == nil {
		return ""
	}
	return v.v.Prerelease()
}

// Metadata returns the build metadata component, empty if none.
func (v Version) Metadata() string {
	if v.v == nil {
		return ""
	}
	return v.v.Metadata()
}

// Compare orders two semver versions following semver precedence: negative
// when v < o, zero when equal, positive when v > o. Build metadata is ignored.
// Comparing a non-semver version is undefined; callers must check IsSemver
// first.
func (v Version) Compare(o Version) int {
	return v.v.Compare(o.v)
}

// Equal reports semver equality (metadata ignored).
func (v Version) Equal(o Version) bool {
	if v.v == nil || o.v == nil {
		return v.raw == o.raw
	}
	return v.v.Equal(o.v)
}

// String renders the normalized three-segment form, or the raw token for
// non-semver versions.
func (v Version) String() string {
	if v.v == nil {
		return v.raw
	}
	seg := v.v.Segments()
	s := fmt.Sprintf("%d.%d.%d", seg[0], seg[1], seg[2])
	if pre := v.v.Prerelease(); pre != "" {
		s += "-" + pre
	}
	if meta := v.v.Metadata(); meta != "" {
		s += "+" + meta
	}
	return s
}

// NextMinor returns the smallest version above the minor series of v,
// i.e. MAJOR.(MINOR+1).0.
func (v Version) NextMinor() Version {
	next := fmt.Sprintf("%d.%d.0", v.Major(), v.Minor()+1)
	return ParseVersion(next)
}

// NextMajor returns the smallest version above the major series of v,
// i.e. (MAJOR+1).0.0.
func (v Version) NextMajor() Version {
	next := fmt.Sprintf("%d.0.0", v.Major()+1)
	return ParseVersion(next)
}

// Zero reports whether the version is exactly 0.0.0 with no pre-release.
func (v Version) Zero() bool {
	return v.v != nil && v.Major() == 0 && v.Minor() == 0 && v.Patch() == 0 && v.Prerelease() == ""
}
