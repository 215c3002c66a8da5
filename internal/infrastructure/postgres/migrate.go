package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Migrate applies the embedded schema migrations. command is one of
// "up", "down" or "status".
func Migrate(ctx context.Context, db *sql.DB, command string) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	var err error
	switch command {
	case "", "up":
		err = goose.UpContext(ctx, db, "migrations")
	case "down":
		err = goose.DownContext(ctx, db, "migrations")
	case "status":
		err = goose.StatusContext(ctx, db, "migrations")
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
	if err != nil {
		return fmt.Errorf("migrate %s failed: %w", command, err)
	}
	return nil
}
