package domainfx

import (
	"go.uber.org/fx"
)

// CoreModule provides rule management and execution without scheduling.
var CoreModule = fx.Options(
	fx.Provide(RetentionConfigProvider),
	fx.Provide(Schedules),
	fx.Provide(RuleService),
	fx.Provide(RetentionMetrics),
	fx.Provide(Executor),
	fx.Invoke(ShutdownExecutor),
)

var Module = fx.Options(
	CoreModule,
	fx.Provide(NewCron),
	fx.Provide(RetentionManager),
	fx.Invoke(RunRetentionManager),
)
