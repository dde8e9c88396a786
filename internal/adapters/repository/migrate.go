package repository

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"github.com/okian/scoreboard/pkg/logger"
)

// Migrate applies every pending goose migration found in fsys.
func Migrate(ctx context.Context, dialect goose.Dialect, db *sql.DB, fsys fs.FS) error {
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("migrate: new provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: up: %w", err)
	}
	log := logger.Get().Named("migrate")
	for _, r := range results {
		log.Info(ctx, "migration applied",
			logger.String("dialect", string(dialect)),
			logger.Int64("version", r.Source.Version),
			logger.Duration("took", r.Duration),
		)
	}
	return nil
}
