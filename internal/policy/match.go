// Copyright 2025 James Ross
package policy

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// matchPattern reports whether subject matches pattern, where pattern may
// be an exact string or a glob using * (any run of characters) and ?
// (exactly one character). Matching is case-sensitive, per the kernel's
// tool/plugin-id matching rule.
func matchPattern(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	if !strings.ContainsAny(pattern, "*?") {
		return false
	}
	ok, err := doublestar.Match(pattern, subject)
	return err == nil && ok
}

// matchAny reports whether subject matches any pattern in patterns.
func matchAny(patterns []string, subject string) (string, bool) {
	for _, p := range patterns {
		if matchPattern(p, subject) {
			return p, true
		}
	}
	return "", false
}

// matchDomainPattern reports whether host matches pattern, case-insensitive,
// where an exact-looking pattern additionally matches any subdomain: a
// pattern "blocked.com" matches "blocked.com" and "*.blocked.com".
func matchDomainPattern(pattern, host string) bool {
	pattern = strings.ToLower(pattern)
	host = strings.ToLower(host)

	if matchPattern(pattern, host) {
		return true
	}
	if !strings.ContainsAny(pattern, "*?") {
		return host == pattern || strings.HasSuffix(host, "."+pattern)
	}
	return false
}

// matchAnyDomain reports whether host matches any pattern in patterns,
// applying mandatory subdomain matching for non-glob patterns.
func matchAnyDomain(patterns []string, host string) (string, bool) {
	for _, p := range patterns {
		if matchDomainPattern(p, host) {
			return p, true
		}
	}
	return "", false
}
