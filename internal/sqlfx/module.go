package sqlfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(SqliteConfigProvider),
	fx.Provide(OpenSqliteDatabase),
	fx.Provide(RuleRepository),
	fx.Provide(LogRepository),
	fx.Provide(CatalogRepository),
	fx.Invoke(CloseSqliteDatabase),
)
