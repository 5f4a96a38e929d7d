package sqlfx

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/yurykabanov/sweeper/pkg/storage"
)

const (
	ConfigDatabaseDSN = "db.dsn"
)

type SqliteConfig struct {
	DSN string
}

func SqliteConfigProvider(v *viper.Viper) (*SqliteConfig, error) {
	dsn := v.GetString(ConfigDatabaseDSN)
	if dsn == "" {
		return nil, errors.New("db.dsn is not configured")
	}

	return &SqliteConfig{DSN: dsn}, nil
}

func OpenSqliteDatabase(config *SqliteConfig, logger *logrus.Logger) (*sqlx.DB, error) {
	logger.WithField("dsn", config.DSN).Debug("Connecting to DB with DSN")

	if err := ensureDirectory(config.DSN); err != nil {
		return nil, errors.Wrap(err, "Unable to create DB directory")
	}

	db, err := storage.Open(config.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to connect to DB")
	}

	if err := storage.Migrate(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "Unable to migrate DB")
	}

	return db, nil
}

// sqlite creates the database file but not its parent directory
func ensureDirectory(dsn string) error {
	file := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(file, '?'); i >= 0 {
		file = file[:i]
	}

	if file == "" || file == ":memory:" {
		return nil
	}

	return os.MkdirAll(filepath.Dir(file), 0o755)
}

func CloseSqliteDatabase(lc fx.Lifecycle, db *sqlx.DB) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})
}
