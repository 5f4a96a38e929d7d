package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/yurykabanov/sweeper/pkg/domain"
)

const (
	logInsertQuery = `
		INSERT INTO retention_logs (
			project_id, rule_id, commit_sha, branch,
			asset_count, freed_bytes, is_partial, deleted_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	logSelectQuery = `
		SELECT
			id, project_id, rule_id, commit_sha, branch,
			asset_count, freed_bytes, is_partial, deleted_at
		FROM retention_logs
	`

	logCountQuery = `SELECT COUNT(*) FROM retention_logs`
)

type logRow struct {
	Id         int64
	ProjectId  string
	RuleId     sql.NullString
	CommitSha  string
	Branch     string
	AssetCount int
	FreedBytes int64
	IsPartial  bool
	DeletedAt  sql.NullTime
}

func (r logRow) toDomain() domain.RetentionLog {
	entry := domain.RetentionLog{
		Id:         r.Id,
		ProjectId:  r.ProjectId,
		CommitSha:  r.CommitSha,
		Branch:     r.Branch,
		AssetCount: r.AssetCount,
		FreedBytes: r.FreedBytes,
		IsPartial:  r.IsPartial,
		DeletedAt:  r.DeletedAt.Time.UTC(),
	}

	if r.RuleId.Valid {
		ruleId := r.RuleId.String
		entry.RuleId = &ruleId
	}

	return entry
}

// LogRepository is the append-only retention audit log.
type LogRepository struct {
	db *sqlx.DB
}

func NewLogRepository(db *sqlx.DB) *LogRepository {
	return &LogRepository{
		db: db,
	}
}

func (r *LogRepository) Append(ctx context.Context, entry domain.RetentionLog) (domain.RetentionLog, error) {
	var ruleId sql.NullString
	if entry.RuleId != nil {
		ruleId = sql.NullString{String: *entry.RuleId, Valid: true}
	}

	res, err := r.db.ExecContext(
		ctx, logInsertQuery,
		entry.ProjectId, ruleId, entry.CommitSha, entry.Branch,
		entry.AssetCount, entry.FreedBytes, entry.IsPartial, entry.DeletedAt.UTC(),
	)
	if err != nil {
		return entry, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return entry, err
	}

	entry.Id = id

	return entry, nil
}

// Find returns a page of the project's log entries, newest first.
func (r *LogRepository) Find(ctx context.Context, q domain.LogQuery) (domain.LogPage, error) {
	q = q.Normalized()

	conditions := []string{"project_id = ?"}
	args := []interface{}{q.ProjectId}

	if q.RuleId != nil {
		conditions = append(conditions, "rule_id = ?")
		args = append(args, *q.RuleId)
	}

	where := " WHERE " + strings.Join(conditions, " AND ")

	page := domain.LogPage{
		Items: []domain.RetentionLog{},
		Page:  q.Page,
		Limit: q.Limit,
	}

	err := r.db.GetContext(ctx, &page.Total, logCountQuery+where, args...)
	if err != nil {
		return page, err
	}

	var rows []logRow

	query := logSelectQuery + where + " ORDER BY deleted_at DESC, id DESC LIMIT ? OFFSET ?"

	err = r.db.SelectContext(ctx, &rows, query, append(args, q.Limit, q.Offset())...)
	if err != nil {
		return page, err
	}

	for _, row := range rows {
		page.Items = append(page.Items, row.toDomain())
	}

	return page, nil
}
