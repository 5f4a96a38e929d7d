package serverfx

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sweeper/pkg/domain"
	"github.com/yurykabanov/sweeper/pkg/http/handler"
)

func RuleHandler(logger *logrus.Logger, service *domain.RuleService, executor *domain.Executor) *handler.RuleHandler {
	return handler.NewRuleHandler(logger, service, executor)
}

func LogHandler(logger *logrus.Logger, repository handler.LogRepository) *handler.LogHandler {
	return handler.NewLogHandler(logger, repository)
}

func OverviewHandler(logger *logrus.Logger, repository handler.OverviewRepository) *handler.OverviewHandler {
	return handler.NewOverviewHandler(logger, repository)
}

func CommitHandler(logger *logrus.Logger, executor *domain.Executor) *handler.CommitHandler {
	return handler.NewCommitHandler(logger, executor)
}

func RegisterRoutes(
	router *mux.Router,
	rules *handler.RuleHandler,
	logs *handler.LogHandler,
	overview *handler.OverviewHandler,
	commits *handler.CommitHandler,
) {
	rules.Routes(router)
	logs.Routes(router)
	overview.Routes(router)
	commits.Routes(router)

	router.Handle("/metrics", promhttp.Handler())
}
