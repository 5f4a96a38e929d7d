package domain

import (
	"strings"

	"github.com/yurykabanov/sweeper/pkg/pattern"
)

// validateRule reports the first invalid field of the rule.
func validateRule(rule Rule, schedules *Schedules) error {
	if strings.TrimSpace(rule.ProjectId) == "" {
		return invalid("projectId", "must not be empty")
	}

	if strings.TrimSpace(rule.Name) == "" {
		return invalid("name", "must not be empty")
	}

	if _, err := pattern.Branch(rule.BranchPattern); err != nil {
		return invalid("branchPattern", "%v", err)
	}

	for _, b := range rule.ExcludeBranches {
		if strings.TrimSpace(b) == "" {
			return invalid("excludeBranches", "must not contain empty names")
		}
	}

	if rule.RetentionDays < 0 {
		return invalid("retentionDays", "must be greater than or equal to 0")
	}

	if rule.KeepMinimum < 0 {
		return invalid("keepMinimum", "must be greater than or equal to 0")
	}

	for _, p := range rule.PathPatterns {
		if strings.TrimSpace(p) == "" {
			return invalid("pathPatterns", "must not contain empty patterns")
		}
	}

	if _, err := pattern.Paths(rule.PathPatterns); err != nil {
		return invalid("pathPatterns", "%v", err)
	}

	switch rule.PathMode {
	case "", PathModeInclude, PathModeExclude:
	default:
		return invalid("pathMode", "must be one of %q, %q", PathModeInclude, PathModeExclude)
	}

	if schedules != nil {
		if err := schedules.Validate(rule.Schedule); err != nil {
			return invalid("schedule", "%v", err)
		}
	}

	return nil
}

// normalizeRule trims user input and fills defaults which depend on other fields.
func normalizeRule(rule Rule) Rule {
	rule.Name = strings.TrimSpace(rule.Name)
	rule.BranchPattern = strings.TrimSpace(rule.BranchPattern)
	rule.Schedule = strings.TrimSpace(rule.Schedule)

	if rule.ExcludeBranches == nil {
		rule.ExcludeBranches = []string{}
	}

	if len(rule.PathPatterns) == 0 {
		rule.PathPatterns = nil
		rule.PathMode = ""
	} else if rule.PathMode == "" {
		rule.PathMode = PathModeInclude
	}

	return rule
}
