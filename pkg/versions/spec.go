package versions

import (
	"fmt"
	"strconv"
	"strings"
)

// VersionSpec is an interpreter version request such as "3.8", "3.x" or "3.10.4". A trailing
// "x" or "*" component matches any value.
type VersionSpec struct {
	Raw   string
	parts []string
}

func ParseSpec(value string) (VersionSpec, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return VersionSpec{}, fmt.Errorf("version spec cannot be empty")
	}

	parts := strings.Split(value, ".")
	for i, part := range parts {
		if isWildcard(part) {
			if i != len(parts)-1 {
				return VersionSpec{}, fmt.Errorf("invalid version spec %q: wildcard must be the last component", value)
			}
			if i == 0 {
				return VersionSpec{}, fmt.Errorf("invalid version spec %q: major version is required", value)
			}
			continue
		}
		if _, err := strconv.Atoi(part); err != nil {
			return VersionSpec{}, fmt.Errorf("invalid version spec %q", value)
		}
	}

	return VersionSpec{Raw: value, parts: parts}, nil
}

func isWildcard(part string) bool {
	return part == "x" || part == "X" || part == "*"
}

func (s VersionSpec) String() string {
	return s.Raw
}

func (s VersionSpec) Major() int {
	major, _ := strconv.Atoi(s.parts[0])
	return major
}

// Minor returns the requested minor version, or -1 when any minor is acceptable.
func (s VersionSpec) Minor() int {
	if len(s.parts) < 2 || isWildcard(s.parts[1]) {
		return -1
	}
	minor, _ := strconv.Atoi(s.parts[1])
	return minor
}

// Matches reports whether an installed version such as "3.8.10" satisfies the spec.
// Components the spec leaves out match anything, so "3.8" accepts every 3.8 patch release.
func (s VersionSpec) Matches(version string) bool {
	actual := strings.Split(normalizeVersion(version), ".")
	for i, want := range s.parts {
		if isWildcard(want) {
			return true
		}
		if i >= len(actual) {
			return false
		}
		if actual[i] != want {
			a, errA := strconv.Atoi(actual[i])
			w, errW := strconv.Atoi(want)
			if errA != nil || errW != nil || a != w {
				return false
			}
		}
	}
	return true
}

// Candidates lists the executable names worth probing for the spec, most preferred first.
func (s VersionSpec) Candidates(maxMinor int) []string {
	major := s.Major()
	if minor := s.Minor(); minor >= 0 {
		return []string{fmt.Sprintf("python%d.%d", major, minor), fmt.Sprintf("python%d", major), "python"}
	}

	var names []string
	for minor := maxMinor; minor >= 0; minor-- {
		names = append(names, fmt.Sprintf("python%d.%d", major, minor))
	}
	return append(names, fmt.Sprintf("python%d", major), "python")
}

// normalizeVersion strips the "Python " banner and any "v" prefix.
func normalizeVersion(version string) string {
	version = strings.TrimSpace(version)
	version = strings.TrimPrefix(version, "Python ")
	version = strings.TrimPrefix(version, "v")
	if i := strings.IndexAny(version, " +"); i >= 0 {
		version = version[:i]
	}
	return version
}

// IsPreRelease reports tags like "3.13.0rc1" or "3.12.0a7".
func IsPreRelease(version string) bool {
	version = normalizeVersion(version)
	for _, marker := range []string{"a", "b", "rc"} {
		if i := strings.LastIndex(version, marker); i > 0 && i < len(version)-len(marker) {
			if _, err := strconv.Atoi(version[i+len(marker):]); err == nil {
				return true
			}
		}
	}
	return false
}
