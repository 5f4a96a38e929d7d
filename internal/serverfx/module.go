package serverfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(HttpServerConfigProvider),
	fx.Provide(HttpMetrics),
	fx.Provide(HttpRouter),
	fx.Provide(HttpServer),
	fx.Provide(Listener),
	fx.Invoke(RunServer),

	fx.Provide(RuleHandler),
	fx.Provide(LogHandler),
	fx.Provide(OverviewHandler),
	fx.Provide(CommitHandler),
	fx.Invoke(RegisterRoutes),
)
