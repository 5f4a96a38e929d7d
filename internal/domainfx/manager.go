package domainfx

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/yurykabanov/sweeper/pkg/blobstore"
	"github.com/yurykabanov/sweeper/pkg/domain"
	"github.com/yurykabanov/sweeper/pkg/metrics"
)

const (
	ConfigRetentionTick                = "retention.tick"
	ConfigRetentionDefaultSchedule     = "retention.default_schedule"
	ConfigRetentionStaleAfter          = "retention.stale_after"
	ConfigRetentionCatalogTimeout      = "retention.catalog_timeout"
	ConfigRetentionCommitTimeout       = "retention.commit_timeout"
	ConfigRetentionSnapshotConcurrency = "retention.snapshot_concurrency"
)

type RetentionConfig struct {
	Tick            string
	DefaultSchedule string
	Executor        domain.ExecutorConfig
}

func RetentionConfigProvider(v *viper.Viper) (*RetentionConfig, error) {
	config := &RetentionConfig{
		Tick:            v.GetString(ConfigRetentionTick),
		DefaultSchedule: v.GetString(ConfigRetentionDefaultSchedule),
		Executor: domain.ExecutorConfig{
			CatalogTimeout:      v.GetDuration(ConfigRetentionCatalogTimeout),
			CommitTimeout:       v.GetDuration(ConfigRetentionCommitTimeout),
			StaleAfter:          v.GetDuration(ConfigRetentionStaleAfter),
			SnapshotConcurrency: v.GetInt(ConfigRetentionSnapshotConcurrency),
		},
	}

	if config.Tick == "" {
		return nil, errors.New("retention.tick is not configured")
	}

	return config, nil
}

func NewCron(logger *logrus.Logger) *cron.Cron {
	cronLogger := cron.PrintfLogger(logger)

	return cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
}

func Schedules(config *RetentionConfig) (*domain.Schedules, error) {
	return domain.NewSchedules(config.DefaultSchedule)
}

func RuleService(
	logger *logrus.Logger,
	repository domain.RuleRepository,
	schedules *domain.Schedules,
) *domain.RuleService {
	return domain.NewRuleService(logger, repository, schedules)
}

func RetentionMetrics() *metrics.RetentionMetrics {
	return metrics.NewRetentionMetrics()
}

func Executor(
	logger *logrus.Logger,
	rules domain.RuleRepository,
	logs domain.LogRepository,
	catalog domain.Catalog,
	blobs blobstore.Store,
	schedules *domain.Schedules,
	runMetrics *metrics.RetentionMetrics,
	config *RetentionConfig,
) *domain.Executor {
	return domain.NewExecutor(logger, rules, logs, catalog, blobs, schedules, runMetrics, config.Executor)
}

func ShutdownExecutor(lc fx.Lifecycle, executor *domain.Executor) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return executor.Shutdown(ctx)
		},
	})
}

func RetentionManager(
	logger *logrus.Logger,
	rules domain.RuleRepository,
	executor *domain.Executor,
	cron *cron.Cron,
	config *RetentionConfig,
) *domain.RetentionManager {
	return domain.NewRetentionManager(logger, rules, executor, cron, config.Tick)
}

func RunRetentionManager(lc fx.Lifecycle, manager *domain.RetentionManager) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return manager.Run()
		},
		OnStop: func(ctx context.Context) error {
			return manager.Stop(ctx)
		},
	})
}
