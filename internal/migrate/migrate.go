// Package migrate applies the embedded SQL schema in file name order.
package migrate

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"slices"

	"github.com/rs/zerolog"

	"github.com/example/resy-sniper/internal/db"
)

//go:embed *.sql
var sqlFiles embed.FS

// Files lists the embedded migrations in the order Up applies them.
func Files() ([]string, error) {
	names, err := fs.Glob(sqlFiles, "*.sql")
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

// Up applies every migration not yet recorded in schema_migrations.
func Up(ctx context.Context, d *db.DB) error {
	log := zerolog.Ctx(ctx)
	names, err := Files()
	if err != nil {
		return err
	}

	if _, err := d.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now());`); err != nil {
		return db.Wrap(err)
	}

	for _, name := range names {
		var applied bool
		if err := d.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, name).Scan(&applied); err != nil {
			return db.Wrap(err)
		}
		if applied {
			continue
		}

		b, err := sqlFiles.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := d.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if _, err := d.Exec(ctx, `INSERT INTO schema_migrations(version) VALUES ($1)`, name); err != nil {
			return db.Wrap(err)
		}
		log.Info().Str("version", name).Msg("migration applied")
	}
	return nil
}
