package domain

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sweeper/pkg/appcontext"
)

const dispatchTimeout = 30 * time.Second

// Retention manager triggers rules according to their schedules. On every
// tick it clears stale run markers and dispatches enabled rules which are due,
// the executor's run marker makes sure a rule never runs twice at once.
type RetentionManager struct {
	logger logrus.FieldLogger

	rules    RuleRepository
	executor ruleExecutor

	cron scheduler
	tick string

	now func() time.Time
}

type ruleExecutor interface {
	Execute(ctx context.Context, ruleId string) (ExecuteResult, error)
	Recover(ctx context.Context) (int, error)
	Shutdown(ctx context.Context) error
}

type scheduler interface {
	AddFunc(spec string, cmd func()) (cron.EntryID, error)
	Start()
	Stop() context.Context
}

func NewRetentionManager(
	logger logrus.FieldLogger,
	rules RuleRepository,
	executor ruleExecutor,
	cron scheduler,
	tick string,
) *RetentionManager {
	return &RetentionManager{
		logger:   logger,
		rules:    rules,
		executor: executor,
		cron:     cron,
		tick:     tick,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *RetentionManager) Run() error {
	// runs interrupted by a previous process would wedge their rules forever
	m.recover(context.Background())

	_, err := m.cron.AddFunc(m.tick, m.dispatchDue)
	if err != nil {
		return errors.Wrapf(err, "invalid tick spec '%s'", m.tick)
	}

	m.logger.WithField("tick", m.tick).Debug("Starting cron")
	m.cron.Start()

	return nil
}

func (m *RetentionManager) Stop(ctx context.Context) error {
	select {
	case <-m.cron.Stop().Done():
	case <-ctx.Done():
	}

	return m.executor.Shutdown(ctx)
}

func (m *RetentionManager) recover(ctx context.Context) {
	n, err := m.executor.Recover(ctx)
	if err != nil {
		m.logger.WithError(err).Error("Unable to recover stale retention runs")
		return
	}

	if n > 0 {
		m.logger.WithField("total_recovered_runs", n).Warn("Recovered stale retention runs")
	}
}

func (m *RetentionManager) dispatchDue() {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	m.recover(ctx)

	rules, err := m.rules.FindDue(ctx, m.now())
	if err != nil {
		m.logger.WithError(err).Error("Unable to query due retention rules")
		return
	}

	for _, rule := range rules {
		ctx := appcontext.WithRuleId(appcontext.WithProjectId(ctx, rule.ProjectId), rule.Id)
		logger := appcontext.LoggerFromContext(m.logger, ctx)

		_, err := m.executor.Execute(ctx, rule.Id)

		switch {
		case errors.Is(err, ErrAlreadyRunning):
			logger.Debug("Retention rule is already running")
		case err != nil:
			logger.WithError(err).Error("Unable to dispatch retention run")
		default:
			logger.Info("Dispatched retention run")
		}
	}
}
