package store

import (
	"chat-bridge/pkg/apperr"
	"embed"
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending schema migrations.
func Migrate(databaseURL string, logger *zap.Logger) error {
	const op = "Migrate"

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "migration_source_failed",
			apperr.MetaStage:  apperr.StageStorage,
		})
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		return apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "migration_connect_failed",
			apperr.MetaStage:  apperr.StageStorage,
		})
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err := errors.Join(srcErr, dbErr); err != nil {
			logger.Warn("Closing migrator failed", zap.Error(err))
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "migration_failed",
			apperr.MetaStage:  apperr.StageStorage,
		})
	}

	version, dirty, err := m.Version()
	if err == nil {
		logger.Info("Database schema up to date", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}

	return nil
}

// migrateURL switches a postgres URL to the scheme the pgx/v5 migrate
// driver registers.
func migrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, scheme) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, scheme)
		}
	}

	return databaseURL
}
