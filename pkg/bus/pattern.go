package bus

import "strings"

// matchSubject reports whether subject matches pattern. The in-memory bus
// uses it to match each subscription against a published subject. The
// bus's public subject table (spec §6) is entirely exact-match; a "*"
// segment in pattern matches any single segment (e.g.
// swarm.workers.inbox.*), though no component in this repository
// subscribes with a wildcard.
func matchSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}

	patternParts := strings.Split(pattern, ".")
	subjectParts := strings.Split(subject, ".")
	if len(patternParts) != len(subjectParts) {
		return false
	}
	for i, p := range patternParts {
		if p == "*" {
			continue
		}
		if p != subjectParts[i] {
			return false
		}
	}
	return true
}
