package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"goladium-analytics/internal/storage/sqlite"
)

// RunSqliteMigrations applies all embedded SQLite files in lexical order.
// The driver executes multi-statement files in one call.
func RunSqliteMigrations(ctx context.Context, db *sqlite.DB) error {
	files, err := sqlFiles(SqliteFS, "sqlite")
	if err != nil {
		return err
	}

	for _, file := range files {
		data, err := fs.ReadFile(SqliteFS, "sqlite/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}
	return nil
}

// sqlFiles lists the .sql files under dir, sorted by name.
func sqlFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
