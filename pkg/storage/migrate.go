package storage

import (
	"strings"
	"unicode"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/yurykabanov/sweeper/migrations"
)

const databaseName = "sweeper"

// Open connects to the sqlite database and maps struct fields to snake_case columns.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to DB")
	}

	db.MapperFunc(columnName)

	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	return db, nil
}

// Migrate applies embedded migrations which are not applied yet.
func Migrate(db *sqlx.DB) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return errors.Wrap(err, "unable to read migrations")
	}

	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return errors.Wrap(err, "unable to create instance of migrate")
	}

	m, err := migrate.NewWithInstance("iofs", source, databaseName, driver)
	if err != nil {
		return errors.Wrap(err, "unable to create migrate")
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "unable to migrate DB")
	}

	return nil
}

// columnName maps a struct field name to its column: ProjectId -> project_id.
func columnName(field string) string {
	var b strings.Builder

	for i, r := range field {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}

	return b.String()
}
