package dbpool

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const createTracker = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	filename   TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// migrationFile is one embedded migration, numbered by its filename prefix
// (e.g. "0003_trades_hypertable.sql" -> version 3).
type migrationFile struct {
	version  int
	filename string
	sql      string
}

// RunMigrations applies every embedded migration not yet recorded in
// schema_migrations, in ascending version order. Each migration's DDL runs
// in its own transaction; the tracking INSERT for that migration is issued
// as a separate statement once the DDL transaction has committed. This
// two-phase split exists because some TimescaleDB DDL (creating the
// extension, creating a continuous aggregate) implicitly commits, which
// would otherwise leave the tracking row and the schema change unable to
// share one atomic transaction anyway — keeping them explicitly separate
// makes that behavior intentional rather than accidental.
//
// Applying version N requires all of 1..N-1 to already be present; a gap is
// treated as a fatal migration error rather than silently skipped.
//
// RunMigrations returns the filenames of the migrations it applied this
// call, in version order, so the caller can log exactly what changed; an
// already-current database returns an empty (non-nil) slice.
func (p *Pool) RunMigrations(ctx context.Context) ([]string, error) {
	pool := p.Underlying()

	if _, err := pool.Exec(ctx, createTracker); err != nil {
		return nil, fmt.Errorf("dbpool: create schema_migrations table: %w", err)
	}

	files, err := loadMigrationFiles()
	if err != nil {
		return nil, err
	}

	applied := make(map[int]bool)
	rows, err := pool.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("dbpool: read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("dbpool: scan schema_migrations: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dbpool: read schema_migrations: %w", err)
	}

	appliedNow := make([]string, 0)
	for i, f := range files {
		wantVersion := i + 1
		if f.version != wantVersion {
			return nil, fmt.Errorf("dbpool: migration version gap: expected %d, found %s (version %d)", wantVersion, f.filename, f.version)
		}
		if applied[f.version] {
			continue
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("dbpool: begin tx for %s: %w", f.filename, err)
		}
		if _, err := tx.Exec(ctx, f.sql); err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("dbpool: exec migration %s: %w", f.filename, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("dbpool: commit migration %s: %w", f.filename, err)
		}

		if _, err := pool.Exec(ctx,
			"INSERT INTO schema_migrations (version, filename) VALUES ($1, $2)",
			f.version, f.filename,
		); err != nil {
			return nil, fmt.Errorf("dbpool: record migration %s: %w", f.filename, err)
		}

		appliedNow = append(appliedNow, f.filename)
	}

	return appliedNow, nil
}

func loadMigrationFiles() ([]migrationFile, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("dbpool: read migrations dir: %w", err)
	}

	var files []migrationFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := versionFromFilename(entry.Name())
		if err != nil {
			return nil, err
		}
		data, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("dbpool: read migration %s: %w", entry.Name(), err)
		}
		files = append(files, migrationFile{version: version, filename: entry.Name(), sql: string(data)})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

func versionFromFilename(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("dbpool: migration filename %q missing version prefix", name)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("dbpool: migration filename %q has non-numeric version prefix: %w", name, err)
	}
	return v, nil
}
