package migrations

import (
	"embed"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/minekarta/auctionhouse/internal/shared/db"
	"github.com/minekarta/auctionhouse/internal/shared/logger"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

var log = logger.GetLogger()

// RunMigrations brings the durable schema up to the expected version. Runs once
// at startup, before the ledger is rehydrated.
func RunMigrations() error {
	dbURL := db.BuildPostgresDSN()
	log.Info("RunMigrations", zap.String("postgresUrl", dbURL))

	source, err := iofs.New(migrationFiles, "sql")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
