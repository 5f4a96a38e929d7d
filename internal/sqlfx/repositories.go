package sqlfx

import (
	"github.com/jmoiron/sqlx"

	"github.com/yurykabanov/sweeper/pkg/domain"
	"github.com/yurykabanov/sweeper/pkg/http/handler"
	"github.com/yurykabanov/sweeper/pkg/storage"
)

func RuleRepository(db *sqlx.DB) (
	*storage.RuleRepository,
	domain.RuleRepository,
) {
	repo := storage.NewRuleRepository(db)

	return repo, repo
}

func LogRepository(db *sqlx.DB) (
	*storage.LogRepository,
	domain.LogRepository,
	handler.LogRepository,
) {
	repo := storage.NewLogRepository(db)

	return repo, repo, repo
}

func CatalogRepository(db *sqlx.DB) (
	*storage.CatalogRepository,
	domain.Catalog,
	handler.OverviewRepository,
) {
	repo := storage.NewCatalogRepository(db)

	return repo, repo, repo
}
