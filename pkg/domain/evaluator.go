package domain

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/yurykabanov/sweeper/pkg/pattern"
)

const day = 24 * time.Hour

// PreviewCommit is a commit eligible for deletion under a rule. AssetCount and
// SizeBytes cover only the files in scope of the rule's path filter.
type PreviewCommit struct {
	Sha        string    `json:"sha"`
	Branch     string    `json:"branch"`
	AgeDays    int       `json:"ageDays"`
	AssetCount int       `json:"assetCount"`
	SizeBytes  int64     `json:"sizeBytes"`
	CreatedAt  time.Time `json:"createdAt"`

	IsPartial       bool   `json:"isPartial"`
	TotalAssetCount *int   `json:"totalAssetCount,omitempty"`
	TotalSizeBytes  *int64 `json:"totalSizeBytes,omitempty"`

	// Files in scope
	Assets []Asset `json:"-"`
}

type PreviewResponse struct {
	Commits     []PreviewCommit `json:"commits"`
	TotalAssets int             `json:"totalAssets"`
	TotalBytes  int64           `json:"totalBytes"`
}

func newPreviewResponse(commits []PreviewCommit) PreviewResponse {
	resp := PreviewResponse{Commits: commits}

	if resp.Commits == nil {
		resp.Commits = []PreviewCommit{}
	}

	for _, c := range commits {
		resp.TotalAssets += c.AssetCount
		resp.TotalBytes += c.SizeBytes
	}

	return resp
}

// Evaluate lists the commits of the snapshot which the rule allows to delete.
// It has no side effects and yields the same output for the same input.
//
// Per branch, commits are ranked newest first:
//
//	newest                                           oldest
//	  X----X----X----X----X----X----X----X----X----X---> age
//	  [keepMinimum]  [ age < retentionDays ]  [ candidates ]
//
// Aliased commits are dropped from candidates when keepWithAlias is set.
func Evaluate(rule Rule, snapshot Snapshot, now time.Time) ([]PreviewCommit, error) {
	branchMatcher, err := pattern.Branch(rule.BranchPattern)
	if err != nil {
		return nil, errors.Wrap(err, "invalid branch pattern")
	}

	var paths *pattern.PathSet
	if rule.HasPathFilter() {
		paths, err = pattern.Paths(rule.PathPatterns)
		if err != nil {
			return nil, errors.Wrap(err, "invalid path patterns")
		}
	}

	aliased := make(map[string]bool, len(snapshot.Aliases))
	if rule.KeepWithAlias {
		for _, a := range snapshot.Aliases {
			aliased[a.CommitSha] = true
		}
	}

	retention := time.Duration(rule.RetentionDays) * day

	var result []PreviewCommit

	for branch, commits := range snapshot.Commits {
		if !branchMatcher.Match(branch) || contains(rule.ExcludeBranches, branch) {
			continue
		}

		ranked := make([]Commit, len(commits))
		copy(ranked, commits)

		sort.SliceStable(ranked, func(i, j int) bool {
			if !ranked[i].DeployedAt.Equal(ranked[j].DeployedAt) {
				return ranked[i].DeployedAt.After(ranked[j].DeployedAt)
			}
			return ranked[i].Sha < ranked[j].Sha
		})

		for i, c := range ranked {
			if i < rule.KeepMinimum {
				continue
			}

			age := now.Sub(c.DeployedAt)
			if age < retention {
				continue
			}

			if aliased[c.Sha] {
				continue
			}

			result = append(result, previewCommit(c, branch, age, paths, rule.PathMode))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]

		if a.Branch != b.Branch {
			return a.Branch < b.Branch
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Sha < b.Sha
	})

	return result, nil
}

func previewCommit(c Commit, branch string, age time.Duration, paths *pattern.PathSet, mode PathMode) PreviewCommit {
	ageDays := int(age / day)
	if ageDays < 0 {
		ageDays = 0
	}

	p := PreviewCommit{
		Sha:       c.Sha,
		Branch:    branch,
		AgeDays:   ageDays,
		CreatedAt: c.DeployedAt,
	}

	var totalSize int64
	for _, a := range c.Assets {
		totalSize += a.Size
	}

	if paths.Len() == 0 {
		p.Assets = c.Assets
		p.AssetCount = len(c.Assets)
		p.SizeBytes = totalSize

		return p
	}

	for _, a := range c.Assets {
		matched := paths.Match(a.Path)
		if mode == PathModeExclude {
			matched = !matched
		}

		if matched {
			p.Assets = append(p.Assets, a)
			p.SizeBytes += a.Size
		}
	}

	p.AssetCount = len(p.Assets)

	if p.AssetCount < len(c.Assets) {
		total := len(c.Assets)

		p.IsPartial = true
		p.TotalAssetCount = &total
		p.TotalSizeBytes = &totalSize
	}

	return p
}
