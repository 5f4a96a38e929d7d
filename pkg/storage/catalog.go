package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/yurykabanov/sweeper/pkg/domain"
)

const (
	catalogSelectBranches = `
		SELECT DISTINCT branch FROM commits
		WHERE project_id = ?
		ORDER BY branch
	`

	catalogSelectCommitsByBranch = `
		SELECT project_id, sha, branch, deployed_at
		FROM commits
		WHERE project_id = ? AND branch = ?
		ORDER BY deployed_at DESC, sha
	`

	catalogSelectAssetsByBranch = `
		SELECT a.commit_sha, a.path, a.blob_key, a.size
		FROM assets a
		JOIN commits c ON c.project_id = a.project_id AND c.sha = a.commit_sha
		WHERE c.project_id = ? AND c.branch = ?
		ORDER BY a.commit_sha, a.path
	`

	catalogSelectCommit = `
		SELECT project_id, sha, branch, deployed_at
		FROM commits
		WHERE project_id = ? AND sha = ?
	`

	catalogSelectAssetsByCommit = `
		SELECT commit_sha, path, blob_key, size
		FROM assets
		WHERE project_id = ? AND commit_sha = ?
		ORDER BY path
	`

	catalogSelectAliases = `
		SELECT project_id, name, commit_sha
		FROM aliases
		WHERE project_id = ?
		ORDER BY name
	`

	catalogDeleteAssets = `DELETE FROM assets WHERE project_id = ? AND commit_sha = ?`
	catalogDeleteCommit = `DELETE FROM commits WHERE project_id = ? AND sha = ?`

	catalogDeleteAssetsByPath = `
		DELETE FROM assets
		WHERE project_id = ? AND commit_sha = ? AND path IN (?)
	`

	catalogSelectReferencedKeys = `
		SELECT DISTINCT blob_key FROM assets
		WHERE blob_key IN (?)
	`

	catalogSelectReferencedKeysExcept = catalogSelectReferencedKeys + `
		AND NOT (project_id = ? AND commit_sha = ? AND path IN (?))
	`

	catalogInsertCommit = `
		INSERT INTO commits (project_id, sha, branch, deployed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (project_id, sha) DO UPDATE SET
			branch = excluded.branch,
			deployed_at = excluded.deployed_at
	`

	catalogInsertAsset = `
		INSERT INTO assets (project_id, commit_sha, path, blob_key, size)
		VALUES (?, ?, ?, ?, ?)
	`

	catalogUpsertAlias = `
		INSERT INTO aliases (project_id, name, commit_sha)
		VALUES (?, ?, ?)
		ON CONFLICT (project_id, name) DO UPDATE SET commit_sha = excluded.commit_sha
	`

	catalogOverviewTotals = `
		SELECT
			(SELECT COALESCE(SUM(size), 0) FROM assets WHERE project_id = ?) AS total_bytes,
			(SELECT COUNT(*) FROM commits WHERE project_id = ?) AS commit_count,
			(SELECT COUNT(DISTINCT branch) FROM commits WHERE project_id = ?) AS branch_count
	`

	catalogOverviewOldest = `
		SELECT branch, deployed_at
		FROM commits
		WHERE project_id = ?
		ORDER BY deployed_at, sha
		LIMIT 1
	`
)

type commitRow struct {
	ProjectId  string
	Sha        string
	Branch     string
	DeployedAt time.Time
}

func (r commitRow) toDomain() domain.Commit {
	return domain.Commit{
		ProjectId:  r.ProjectId,
		Sha:        r.Sha,
		Branch:     r.Branch,
		DeployedAt: r.DeployedAt.UTC(),
		Assets:     []domain.Asset{},
	}
}

type assetRow struct {
	CommitSha string
	Path      string
	BlobKey   string
	Size      int64
}

type aliasRow struct {
	ProjectId string
	Name      string
	CommitSha string
}

// CatalogRepository is the sqlite view of the platform's deployment catalog.
type CatalogRepository struct {
	db *sqlx.DB
}

func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{
		db: db,
	}
}

func (r *CatalogRepository) ListBranches(ctx context.Context, projectId string) ([]string, error) {
	var branches []string

	err := r.db.SelectContext(ctx, &branches, catalogSelectBranches, projectId)
	if err != nil {
		return nil, err
	}

	return branches, nil
}

func (r *CatalogRepository) ListCommits(ctx context.Context, projectId, branch string) ([]domain.Commit, error) {
	var rows []commitRow

	err := r.db.SelectContext(ctx, &rows, catalogSelectCommitsByBranch, projectId, branch)
	if err != nil {
		return nil, err
	}

	var assets []assetRow

	err = r.db.SelectContext(ctx, &assets, catalogSelectAssetsByBranch, projectId, branch)
	if err != nil {
		return nil, err
	}

	bySha := make(map[string][]domain.Asset)
	for _, a := range assets {
		bySha[a.CommitSha] = append(bySha[a.CommitSha], domain.Asset{Path: a.Path, BlobKey: a.BlobKey, Size: a.Size})
	}

	commits := make([]domain.Commit, 0, len(rows))
	for _, row := range rows {
		c := row.toDomain()
		if aa, ok := bySha[c.Sha]; ok {
			c.Assets = aa
		}

		commits = append(commits, c)
	}

	return commits, nil
}

func (r *CatalogRepository) ListAliases(ctx context.Context, projectId string) ([]domain.Alias, error) {
	var rows []aliasRow

	err := r.db.SelectContext(ctx, &rows, catalogSelectAliases, projectId)
	if err != nil {
		return nil, err
	}

	aliases := make([]domain.Alias, 0, len(rows))
	for _, row := range rows {
		aliases = append(aliases, domain.Alias{ProjectId: row.ProjectId, Name: row.Name, CommitSha: row.CommitSha})
	}

	return aliases, nil
}

func (r *CatalogRepository) FindCommit(ctx context.Context, projectId, sha string) (domain.Commit, error) {
	var row commitRow

	err := r.db.GetContext(ctx, &row, catalogSelectCommit, projectId, sha)
	if err == sql.ErrNoRows {
		return domain.Commit{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Commit{}, err
	}

	var assets []assetRow

	err = r.db.SelectContext(ctx, &assets, catalogSelectAssetsByCommit, projectId, sha)
	if err != nil {
		return domain.Commit{}, err
	}

	c := row.toDomain()
	for _, a := range assets {
		c.Assets = append(c.Assets, domain.Asset{Path: a.Path, BlobKey: a.BlobKey, Size: a.Size})
	}

	return c, nil
}

// DeleteCommit removes the commit with its manifest. Deleting a missing commit is not an error.
func (r *CatalogRepository) DeleteCommit(ctx context.Context, projectId, sha string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, catalogDeleteAssets, projectId, sha); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, catalogDeleteCommit, projectId, sha); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *CatalogRepository) RemoveFilesFromCommit(ctx context.Context, projectId, sha string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	query, args, err := sqlx.In(catalogDeleteAssetsByPath, projectId, sha, paths)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)

	return err
}

func (r *CatalogRepository) ReferencedBlobKeys(ctx context.Context, projectId, sha string, paths []string, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	var (
		query string
		args  []interface{}
		err   error
	)

	if len(paths) == 0 {
		query, args, err = sqlx.In(catalogSelectReferencedKeys, keys)
	} else {
		query, args, err = sqlx.In(catalogSelectReferencedKeysExcept, keys, projectId, sha, paths)
	}
	if err != nil {
		return nil, err
	}

	var referenced []string

	err = r.db.SelectContext(ctx, &referenced, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}

	return referenced, nil
}

// SaveCommit records a deployment, replacing the manifest of an already known commit.
func (r *CatalogRepository) SaveCommit(ctx context.Context, c domain.Commit) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, catalogInsertCommit, c.ProjectId, c.Sha, c.Branch, c.DeployedAt.UTC()); err != nil {
		return errors.Wrap(err, "unable to save commit")
	}

	if _, err := tx.ExecContext(ctx, catalogDeleteAssets, c.ProjectId, c.Sha); err != nil {
		return errors.Wrap(err, "unable to replace commit manifest")
	}

	for _, a := range c.Assets {
		if _, err := tx.ExecContext(ctx, catalogInsertAsset, c.ProjectId, c.Sha, a.Path, a.BlobKey, a.Size); err != nil {
			return errors.Wrapf(err, "unable to save asset %q", a.Path)
		}
	}

	return tx.Commit()
}

// SetAlias points the alias to a commit, creating it if needed.
func (r *CatalogRepository) SetAlias(ctx context.Context, a domain.Alias) error {
	_, err := r.db.ExecContext(ctx, catalogUpsertAlias, a.ProjectId, a.Name, a.CommitSha)
	return err
}

func (r *CatalogRepository) Overview(ctx context.Context, projectId string) (domain.Overview, error) {
	var overview domain.Overview

	row := r.db.QueryRowxContext(ctx, catalogOverviewTotals, projectId, projectId, projectId)
	if err := row.Scan(&overview.TotalBytes, &overview.CommitCount, &overview.BranchCount); err != nil {
		return overview, err
	}

	var oldest struct {
		Branch     string
		DeployedAt time.Time
	}

	err := r.db.GetContext(ctx, &oldest, catalogOverviewOldest, projectId)
	if err == sql.ErrNoRows {
		return overview, nil
	}
	if err != nil {
		return overview, err
	}

	at := oldest.DeployedAt.UTC()
	overview.OldestCommitAt = &at
	overview.OldestCommitBranch = &oldest.Branch

	return overview, nil
}
