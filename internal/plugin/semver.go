package plugin

import (
	"strings"

	"golang.org/x/mod/semver"
)

// satisfiesRange reports whether version satisfies req, supporting "*"
// (any), "^x.y.z" (same major, >= x.y.z), and an exact "x.y.z" match.
// golang.org/x/mod/semver compares canonical versions but has no concept of
// a range, so the caret/exact/wildcard matching is layered on top of it;
// canonicalize adds the "v" prefix the library requires.
func satisfiesRange(version, req string) bool {
	req = strings.TrimSpace(req)
	if req == "" || req == "*" {
		return true
	}

	v := canonicalize(version)
	if !semver.IsValid(v) {
		return false
	}

	if strings.HasPrefix(req, "^") {
		r := canonicalize(req[1:])
		if !semver.IsValid(r) {
			return false
		}
		return semver.Major(v) == semver.Major(r) && semver.Compare(v, r) >= 0
	}

	r := canonicalize(req)
	if !semver.IsValid(r) {
		return false
	}
	return semver.Compare(v, r) == 0
}

func canonicalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "v") {
		return s
	}
	return "v" + s
}
