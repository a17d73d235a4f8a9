package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"hemrs/app/resources/db/migrations"
	"hemrs/app/src/infra"
)

// Execer runs one SQL script.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// MigrationsSource returns the migrations directory when it exists on disk
// and the migrations compiled into the binary otherwise.
func MigrationsSource(dir string) fs.FS {
	dir = strings.TrimSpace(dir)
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir)
		}
	}
	return migrations.FS
}

// ApplyMigrations executes every .sql file at the root of fsys in lexical
// order. The scripts are idempotent, so running them again is harmless.
func ApplyMigrations(ctx context.Context, exec Execer, fsys fs.FS, logger *infra.Logger) error {
	if fsys == nil {
		return errors.New("migrations source is not specified")
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	if len(names) == 0 {
		logger.Printf(ctx, "no migrations found")
		return nil
	}

	for _, name := range names {
		contents, readErr := fs.ReadFile(fsys, name)
		if readErr != nil {
			return fmt.Errorf("read migration %q: %w", name, readErr)
		}

		statements := strings.TrimSpace(string(contents))
		if statements == "" {
			logger.Printf(ctx, "skipping empty migration %s", name)
			continue
		}

		logger.Printf(ctx, "applying migration %s", name)
		if _, execErr := exec.ExecContext(ctx, statements); execErr != nil {
			return fmt.Errorf("apply migration %q: %w", name, execErr)
		}
		logger.Printf(ctx, "migration %s applied", name)
	}

	logger.Println(ctx, "migrations applied successfully")
	return nil
}
