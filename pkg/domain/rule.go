package domain

import (
	"time"
)

type PathMode string

const (
	// Only files matching path patterns are deleted
	PathModeInclude PathMode = "include"

	// Every file except those matching path patterns is deleted
	PathModeExclude PathMode = "exclude"
)

// Rule describes which deployed commits of a project may be pruned.
//
// LastRunAt, LastRunSummary and ExecutionStartedAt belong to the executor and
// are never changed through the rule service.
type Rule struct {
	Id        string `json:"id"`
	ProjectId string `json:"projectId"`
	Name      string `json:"name"`

	BranchPattern   string   `json:"branchPattern"`
	ExcludeBranches []string `json:"excludeBranches"`

	RetentionDays int  `json:"retentionDays"`
	KeepWithAlias bool `json:"keepWithAlias"`
	KeepMinimum   int  `json:"keepMinimum"`

	PathPatterns []string `json:"pathPatterns,omitempty"`
	PathMode     PathMode `json:"pathMode,omitempty"`

	// cron spec, the configured default is used when empty
	Schedule string `json:"schedule,omitempty"`
	Enabled  bool   `json:"enabled"`

	LastRunAt          *time.Time  `json:"lastRunAt"`
	NextRunAt          *time.Time  `json:"nextRunAt"`
	ExecutionStartedAt *time.Time  `json:"executionStartedAt"`
	LastRunSummary     *RunSummary `json:"lastRunSummary"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r Rule) IsRunning() bool {
	return r.ExecutionStartedAt != nil
}

func (r Rule) HasPathFilter() bool {
	return len(r.PathPatterns) > 0
}

type RunSummary struct {
	DeletedCommits int      `json:"deletedCommits"`
	PartialCommits int      `json:"partialCommits"`
	DeletedAssets  int      `json:"deletedAssets"`
	FreedBytes     int64    `json:"freedBytes"`
	Errors         []string `json:"errors"`

	// Set when the run was aborted before any deletion
	Failed bool `json:"failed"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

func (s *RunSummary) addError(msg string) {
	s.Errors = append(s.Errors, msg)
}

// RuleInput is accepted on rule creation.
type RuleInput struct {
	Name            string   `json:"name"`
	BranchPattern   string   `json:"branchPattern"`
	ExcludeBranches []string `json:"excludeBranches"`
	RetentionDays   int      `json:"retentionDays"`
	KeepWithAlias   bool     `json:"keepWithAlias"`
	KeepMinimum     int      `json:"keepMinimum"`
	PathPatterns    []string `json:"pathPatterns"`
	PathMode        PathMode `json:"pathMode"`
	Schedule        string   `json:"schedule"`

	// Defaults to true
	Enabled *bool `json:"enabled"`
}

// RulePatch is a partial rule update, nil fields are left untouched.
type RulePatch struct {
	Name            *string   `json:"name"`
	BranchPattern   *string   `json:"branchPattern"`
	ExcludeBranches *[]string `json:"excludeBranches"`
	RetentionDays   *int      `json:"retentionDays"`
	KeepWithAlias   *bool     `json:"keepWithAlias"`
	KeepMinimum     *int      `json:"keepMinimum"`
	PathPatterns    *[]string `json:"pathPatterns"`
	PathMode        *PathMode `json:"pathMode"`
	Schedule        *string   `json:"schedule"`
	Enabled         *bool     `json:"enabled"`
}

func (p RulePatch) apply(rule Rule) Rule {
	if p.Name != nil {
		rule.Name = *p.Name
	}
	if p.BranchPattern != nil {
		rule.BranchPattern = *p.BranchPattern
	}
	if p.ExcludeBranches != nil {
		rule.ExcludeBranches = *p.ExcludeBranches
	}
	if p.RetentionDays != nil {
		rule.RetentionDays = *p.RetentionDays
	}
	if p.KeepWithAlias != nil {
		rule.KeepWithAlias = *p.KeepWithAlias
	}
	if p.KeepMinimum != nil {
		rule.KeepMinimum = *p.KeepMinimum
	}
	if p.PathPatterns != nil {
		rule.PathPatterns = *p.PathPatterns
	}
	if p.PathMode != nil {
		rule.PathMode = *p.PathMode
	}
	if p.Schedule != nil {
		rule.Schedule = *p.Schedule
	}
	if p.Enabled != nil {
		rule.Enabled = *p.Enabled
	}

	return rule
}
