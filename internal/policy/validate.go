// Copyright 2025 James Ross
package policy

import (
	"fmt"
	"regexp"

	"github.com/incontrol/trust-kernel/internal/kernelerrors"
)

var ruleIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidateDocument checks doc's rule sections: rule ids must be unique
// within their section and match [a-zA-Z0-9._-]+, an AllowWithConstraints
// rule must carry a non-empty constraint map, and defer_days must lie in
// 0..365. Returns nil when doc is usable; otherwise a ValidationError
// listing every violation.
func ValidateDocument(doc *Document) error {
	var reasons []string

	if doc.Tools != nil {
		seen := make(map[string]bool)
		for i, r := range doc.Tools.Rules {
			if !ruleIDPattern.MatchString(r.ID) {
				reasons = append(reasons, fmt.Sprintf("tools.rules[%d]: id %q must match [a-zA-Z0-9._-]+", i, r.ID))
			}
			if seen[r.ID] {
				reasons = append(reasons, fmt.Sprintf("tools.rules[%d]: duplicate id %q", i, r.ID))
			}
			seen[r.ID] = true
			if r.Decision == DecisionAllowWithConstraints && len(r.Constraints) == 0 {
				reasons = append(reasons, fmt.Sprintf("tools.rules[%d]: allow_with_constraints requires a non-empty constraints map", i))
			}
		}
	}

	if doc.Plugins != nil {
		seen := make(map[string]bool)
		for i, r := range doc.Plugins.Rules {
			if !ruleIDPattern.MatchString(r.ID) {
				reasons = append(reasons, fmt.Sprintf("plugins.rules[%d]: id %q must match [a-zA-Z0-9._-]+", i, r.ID))
			}
			if seen[r.ID] {
				reasons = append(reasons, fmt.Sprintf("plugins.rules[%d]: duplicate id %q", i, r.ID))
			}
			seen[r.ID] = true
		}
	}

	if doc.Updates != nil && (doc.Updates.DeferDays < 0 || doc.Updates.DeferDays > 365) {
		reasons = append(reasons, fmt.Sprintf("updates.defer_days %d must lie in 0..365", doc.Updates.DeferDays))
	}

	if len(reasons) > 0 {
		return kernelerrors.NewValidationError("PolicyDocumentInvalid", "policy document failed invariant checks", reasons...)
	}
	return nil
}
