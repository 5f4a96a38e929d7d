package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/yurykabanov/sweeper/pkg/domain"
)

const (
	ruleColumns = `
		id, project_id, name,
		branch_pattern, exclude_branches,
		retention_days, keep_with_alias, keep_minimum,
		path_patterns, path_mode, schedule, enabled,
		last_run_at, next_run_at, execution_started_at, last_run_summary,
		created_at, updated_at
	`

	ruleInsertQuery = `
		INSERT INTO retention_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	ruleUpdateQuery = `
		UPDATE retention_rules SET
			name = ?,
			branch_pattern = ?, exclude_branches = ?,
			retention_days = ?, keep_with_alias = ?, keep_minimum = ?,
			path_patterns = ?, path_mode = ?, schedule = ?, enabled = ?,
			next_run_at = ?, updated_at = ?
		WHERE id = ?
	`

	ruleDeleteQuery = `DELETE FROM retention_rules WHERE id = ?`

	ruleSelectById = `SELECT ` + ruleColumns + ` FROM retention_rules WHERE id = ?`

	ruleSelectByProject = `
		SELECT ` + ruleColumns + `
		FROM retention_rules
		WHERE project_id = ?
		ORDER BY created_at, id
	`

	ruleSelectDue = `
		SELECT ` + ruleColumns + `
		FROM retention_rules
		WHERE enabled = 1
			AND execution_started_at IS NULL
			AND next_run_at IS NOT NULL
			AND next_run_at <= ?
		ORDER BY next_run_at, id
	`

	ruleStartExecutionQuery = `
		UPDATE retention_rules SET execution_started_at = ?
		WHERE id = ? AND execution_started_at IS NULL
	`

	ruleFinishExecutionQuery = `
		UPDATE retention_rules SET
			last_run_summary = ?,
			last_run_at = ?,
			execution_started_at = NULL,
			next_run_at = CASE WHEN enabled = 1 THEN ? ELSE NULL END
		WHERE id = ?
	`

	ruleSelectStale = `
		SELECT ` + ruleColumns + `
		FROM retention_rules
		WHERE execution_started_at IS NOT NULL
			AND execution_started_at < ?
	`

	ruleSelectStaleExcluding = ruleSelectStale + ` AND id NOT IN (?)`

	ruleClearExecutionQuery = `
		UPDATE retention_rules SET execution_started_at = NULL
		WHERE id = ? AND execution_started_at < ?
	`
)

type ruleRow struct {
	Id        string
	ProjectId string
	Name      string

	BranchPattern   string
	ExcludeBranches string

	RetentionDays int
	KeepWithAlias bool
	KeepMinimum   int

	PathPatterns sql.NullString
	PathMode     sql.NullString
	Schedule     string
	Enabled      bool

	LastRunAt          sql.NullTime
	NextRunAt          sql.NullTime
	ExecutionStartedAt sql.NullTime
	LastRunSummary     sql.NullString

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r ruleRow) toDomain() (domain.Rule, error) {
	rule := domain.Rule{
		Id:                 r.Id,
		ProjectId:          r.ProjectId,
		Name:               r.Name,
		BranchPattern:      r.BranchPattern,
		RetentionDays:      r.RetentionDays,
		KeepWithAlias:      r.KeepWithAlias,
		KeepMinimum:        r.KeepMinimum,
		PathMode:           domain.PathMode(r.PathMode.String),
		Schedule:           r.Schedule,
		Enabled:            r.Enabled,
		LastRunAt:          fromNullTime(r.LastRunAt),
		NextRunAt:          fromNullTime(r.NextRunAt),
		ExecutionStartedAt: fromNullTime(r.ExecutionStartedAt),
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}

	if err := json.Unmarshal([]byte(r.ExcludeBranches), &rule.ExcludeBranches); err != nil {
		return rule, errors.Wrapf(err, "rule %s: malformed exclude_branches", r.Id)
	}

	if r.PathPatterns.Valid {
		if err := json.Unmarshal([]byte(r.PathPatterns.String), &rule.PathPatterns); err != nil {
			return rule, errors.Wrapf(err, "rule %s: malformed path_patterns", r.Id)
		}
	}

	if r.LastRunSummary.Valid {
		var summary domain.RunSummary
		if err := json.Unmarshal([]byte(r.LastRunSummary.String), &summary); err != nil {
			return rule, errors.Wrapf(err, "rule %s: malformed last_run_summary", r.Id)
		}
		rule.LastRunSummary = &summary
	}

	return rule, nil
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	v := t.Time.UTC()
	return &v
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func ruleArgs(rule domain.Rule) (excludeBranches string, pathPatterns, pathMode sql.NullString, err error) {
	branches := rule.ExcludeBranches
	if branches == nil {
		branches = []string{}
	}

	b, err := json.Marshal(branches)
	if err != nil {
		return "", pathPatterns, pathMode, err
	}
	excludeBranches = string(b)

	if len(rule.PathPatterns) > 0 {
		p, err := json.Marshal(rule.PathPatterns)
		if err != nil {
			return "", pathPatterns, pathMode, err
		}
		pathPatterns = sql.NullString{String: string(p), Valid: true}
	}

	if rule.PathMode != "" {
		pathMode = sql.NullString{String: string(rule.PathMode), Valid: true}
	}

	return excludeBranches, pathPatterns, pathMode, nil
}

type RuleRepository struct {
	db *sqlx.DB
}

func NewRuleRepository(db *sqlx.DB) *RuleRepository {
	return &RuleRepository{
		db: db,
	}
}

func (r *RuleRepository) Create(ctx context.Context, rule domain.Rule) error {
	excludeBranches, pathPatterns, pathMode, err := ruleArgs(rule)
	if err != nil {
		return err
	}

	var summary sql.NullString
	if rule.LastRunSummary != nil {
		b, err := json.Marshal(rule.LastRunSummary)
		if err != nil {
			return err
		}
		summary = sql.NullString{String: string(b), Valid: true}
	}

	_, err = r.db.ExecContext(
		ctx, ruleInsertQuery,
		rule.Id, rule.ProjectId, rule.Name,
		rule.BranchPattern, excludeBranches,
		rule.RetentionDays, rule.KeepWithAlias, rule.KeepMinimum,
		pathPatterns, pathMode, rule.Schedule, rule.Enabled,
		toNullTime(rule.LastRunAt), toNullTime(rule.NextRunAt), toNullTime(rule.ExecutionStartedAt), summary,
		rule.CreatedAt.UTC(), rule.UpdatedAt.UTC(),
	)

	return err
}

func (r *RuleRepository) Update(ctx context.Context, rule domain.Rule) error {
	excludeBranches, pathPatterns, pathMode, err := ruleArgs(rule)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(
		ctx, ruleUpdateQuery,
		rule.Name,
		rule.BranchPattern, excludeBranches,
		rule.RetentionDays, rule.KeepWithAlias, rule.KeepMinimum,
		pathPatterns, pathMode, rule.Schedule, rule.Enabled,
		toNullTime(rule.NextRunAt), rule.UpdatedAt.UTC(),
		rule.Id,
	)
	if err != nil {
		return err
	}

	return expectAffected(res)
}

func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, ruleDeleteQuery, id)
	if err != nil {
		return err
	}

	return expectAffected(res)
}

func (r *RuleRepository) FindById(ctx context.Context, id string) (domain.Rule, error) {
	var row ruleRow

	err := r.db.GetContext(ctx, &row, ruleSelectById, id)
	if err == sql.ErrNoRows {
		return domain.Rule{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Rule{}, err
	}

	return row.toDomain()
}

func (r *RuleRepository) FindByProject(ctx context.Context, projectId string) ([]domain.Rule, error) {
	return r.selectRules(ctx, ruleSelectByProject, projectId)
}

func (r *RuleRepository) FindDue(ctx context.Context, now time.Time) ([]domain.Rule, error) {
	return r.selectRules(ctx, ruleSelectDue, now.UTC())
}

func (r *RuleRepository) TryStartExecution(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, ruleStartExecutionQuery, startedAt.UTC(), id)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (r *RuleRepository) FinishExecution(
	ctx context.Context,
	id string,
	summary domain.RunSummary,
	lastRunAt time.Time,
	nextRunAt *time.Time,
) error {
	b, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, ruleFinishExecutionQuery, string(b), lastRunAt.UTC(), toNullTime(nextRunAt), id)

	return err
}

func (r *RuleRepository) ClearStaleExecutions(ctx context.Context, startedBefore time.Time, exclude []string) ([]domain.Rule, error) {
	query, args := ruleSelectStale, []interface{}{startedBefore.UTC()}

	if len(exclude) > 0 {
		var err error

		query, args, err = sqlx.In(ruleSelectStaleExcluding, startedBefore.UTC(), exclude)
		if err != nil {
			return nil, err
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var rows []ruleRow
	if err := tx.SelectContext(ctx, &rows, tx.Rebind(query), args...); err != nil {
		return nil, err
	}

	var rules []domain.Rule
	for _, row := range rows {
		res, err := tx.ExecContext(ctx, ruleClearExecutionQuery, row.Id, startedBefore.UTC())
		if err != nil {
			return nil, err
		}

		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}

		rule, err := row.toDomain()
		if err != nil {
			return nil, err
		}

		rules = append(rules, rule)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return rules, nil
}

func (r *RuleRepository) selectRules(ctx context.Context, query string, args ...interface{}) ([]domain.Rule, error) {
	var rows []ruleRow

	err := r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, err
	}

	rules := make([]domain.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toDomain()
		if err != nil {
			return nil, err
		}

		rules = append(rules, rule)
	}

	return rules, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return domain.ErrNotFound
	}

	return nil
}
