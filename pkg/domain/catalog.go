package domain

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/yurykabanov/sweeper/pkg/pattern"
)

// Asset is a single deployed file, BlobKey is its content address.
type Asset struct {
	Path    string `json:"path"`
	BlobKey string `json:"blobKey"`
	Size    int64  `json:"size"`
}

type Commit struct {
	ProjectId  string    `json:"projectId"`
	Sha        string    `json:"sha"`
	Branch     string    `json:"branch"`
	DeployedAt time.Time `json:"deployedAt"`
	Assets     []Asset   `json:"assets"`
}

// Alias is a named pointer (e.g. "production") to a commit's deployment.
type Alias struct {
	ProjectId string `json:"projectId"`
	Name      string `json:"name"`
	CommitSha string `json:"commitSha"`
}

type Overview struct {
	TotalBytes         int64      `json:"totalBytes"`
	CommitCount        int        `json:"commitCount"`
	BranchCount        int        `json:"branchCount"`
	OldestCommitAt     *time.Time `json:"oldestCommitAt,omitempty"`
	OldestCommitBranch *string    `json:"oldestCommitBranch,omitempty"`
}

// Catalog is the platform's authoritative store of deployed commits.
type Catalog interface {
	ListBranches(ctx context.Context, projectId string) ([]string, error)
	ListCommits(ctx context.Context, projectId, branch string) ([]Commit, error)
	ListAliases(ctx context.Context, projectId string) ([]Alias, error)
	FindCommit(ctx context.Context, projectId, sha string) (Commit, error)

	DeleteCommit(ctx context.Context, projectId, sha string) error
	RemoveFilesFromCommit(ctx context.Context, projectId, sha string, paths []string) error

	// ReferencedBlobKeys returns those of `keys` which are still referenced by
	// any asset other than the given paths of the given commit.
	ReferencedBlobKeys(ctx context.Context, projectId, sha string, paths []string, keys []string) ([]string, error)
}

// Snapshot is the part of the catalog a rule is evaluated against.
type Snapshot struct {
	ProjectId string

	// Commits by branch name
	Commits map[string][]Commit
	Aliases []Alias
}

type snapshotLoader struct {
	catalog     Catalog
	concurrency int
}

func (l snapshotLoader) load(ctx context.Context, rule Rule) (Snapshot, error) {
	snapshot := Snapshot{
		ProjectId: rule.ProjectId,
		Commits:   make(map[string][]Commit),
	}

	matcher, err := pattern.Branch(rule.BranchPattern)
	if err != nil {
		return snapshot, errors.Wrap(err, "invalid branch pattern")
	}

	branches, err := l.catalog.ListBranches(ctx, rule.ProjectId)
	if err != nil {
		return snapshot, errors.Wrap(err, "unable to list branches")
	}

	var selected []string
	for _, b := range branches {
		if matcher.Match(b) && !contains(rule.ExcludeBranches, b) {
			selected = append(selected, b)
		}
	}

	commits := make([][]Commit, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	if l.concurrency > 0 {
		g.SetLimit(l.concurrency)
	}

	for i, branch := range selected {
		i, branch := i, branch

		g.Go(func() error {
			cc, err := l.catalog.ListCommits(gctx, rule.ProjectId, branch)
			if err != nil {
				return errors.Wrapf(err, "unable to list commits of branch %q", branch)
			}

			commits[i] = cc
			return nil
		})
	}

	if rule.KeepWithAlias {
		g.Go(func() error {
			aliases, err := l.catalog.ListAliases(gctx, rule.ProjectId)
			if err != nil {
				return errors.Wrap(err, "unable to list aliases")
			}

			snapshot.Aliases = aliases
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return snapshot, err
	}

	for i, branch := range selected {
		snapshot.Commits[branch] = commits[i]
	}

	return snapshot, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
