package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sweeper/pkg/appcontext"
)

type RuleRepository interface {
	Create(context.Context, Rule) error

	// Update persists user editable fields together with NextRunAt and
	// UpdatedAt. Executor owned fields are left as they are.
	Update(context.Context, Rule) error
	Delete(ctx context.Context, id string) error

	FindById(ctx context.Context, id string) (Rule, error)
	FindByProject(ctx context.Context, projectId string) ([]Rule, error)

	// FindDue returns enabled, idle rules whose next run is not after `now`.
	FindDue(ctx context.Context, now time.Time) ([]Rule, error)

	// TryStartExecution sets the run marker only if it isn't set yet and
	// reports whether it did.
	TryStartExecution(ctx context.Context, id string, startedAt time.Time) (bool, error)

	// FinishExecution stores the run result and clears the run marker.
	FinishExecution(ctx context.Context, id string, summary RunSummary, lastRunAt time.Time, nextRunAt *time.Time) error

	// ClearStaleExecutions clears run markers set before `startedBefore`,
	// except for rules listed in `exclude`, and returns the affected rules
	// as they were before clearing.
	ClearStaleExecutions(ctx context.Context, startedBefore time.Time, exclude []string) ([]Rule, error)
}

type LogRepository interface {
	Append(context.Context, RetentionLog) (RetentionLog, error)
}

// RuleService is the rule store: validated CRUD over retention rules.
type RuleService struct {
	logger logrus.FieldLogger

	repo      RuleRepository
	schedules *Schedules

	now func() time.Time
}

func NewRuleService(logger logrus.FieldLogger, repo RuleRepository, schedules *Schedules) *RuleService {
	return &RuleService{
		logger:    logger,
		repo:      repo,
		schedules: schedules,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *RuleService) Create(ctx context.Context, projectId string, input RuleInput) (Rule, error) {
	now := s.now()

	rule := Rule{
		Id:              uuid.New().String(),
		ProjectId:       projectId,
		Name:            input.Name,
		BranchPattern:   input.BranchPattern,
		ExcludeBranches: input.ExcludeBranches,
		RetentionDays:   input.RetentionDays,
		KeepWithAlias:   input.KeepWithAlias,
		KeepMinimum:     input.KeepMinimum,
		PathPatterns:    input.PathPatterns,
		PathMode:        input.PathMode,
		Schedule:        input.Schedule,
		Enabled:         true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if input.Enabled != nil {
		rule.Enabled = *input.Enabled
	}

	if err := validateRule(rule, s.schedules); err != nil {
		return Rule{}, err
	}

	rule = normalizeRule(rule)
	rule.NextRunAt = s.schedules.Next(rule, now)

	if err := s.repo.Create(ctx, rule); err != nil {
		return Rule{}, errors.Wrap(err, "unable to create rule")
	}

	ctx = appcontext.WithRuleId(appcontext.WithProjectId(ctx, projectId), rule.Id)
	appcontext.LoggerFromContext(s.logger, ctx).WithField("name", rule.Name).Info("Retention rule created")

	return rule, nil
}

func (s *RuleService) Update(ctx context.Context, id string, patch RulePatch) (Rule, error) {
	current, err := s.repo.FindById(ctx, id)
	if err != nil {
		return Rule{}, err
	}

	rule := patch.apply(current)

	if err := validateRule(rule, s.schedules); err != nil {
		return Rule{}, err
	}

	rule = normalizeRule(rule)
	rule.UpdatedAt = s.now()

	if rule.Schedule != current.Schedule || rule.Enabled != current.Enabled || (rule.Enabled && rule.NextRunAt == nil) {
		rule.NextRunAt = s.schedules.Next(rule, rule.UpdatedAt)
	}

	if err := s.repo.Update(ctx, rule); err != nil {
		return Rule{}, errors.Wrap(err, "unable to update rule")
	}

	return rule, nil
}

// Delete removes the rule; its retention logs are kept.
func (s *RuleService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindById(ctx, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "unable to delete rule")
	}

	appcontext.LoggerFromContext(s.logger, appcontext.WithRuleId(ctx, id)).Info("Retention rule deleted")

	return nil
}

func (s *RuleService) Get(ctx context.Context, id string) (Rule, error) {
	return s.repo.FindById(ctx, id)
}

func (s *RuleService) List(ctx context.Context, projectId string) ([]Rule, error) {
	rules, err := s.repo.FindByProject(ctx, projectId)
	if err != nil {
		return nil, err
	}

	if rules == nil {
		rules = []Rule{}
	}

	return rules, nil
}
