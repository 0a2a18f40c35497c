package pg

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	migrations "github.com/dropDatabas3/grantd/migrations/postgres"
)

// migrate applies the embedded patches that are beyond the resident level,
// one transaction per patch, then verifies the level the code expects.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS dbmetadata (
			name  TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	level, err := s.patchLevel(ctx)
	if err != nil {
		return err
	}

	entries, err := migrations.FS.ReadDir(migrations.Dir)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for i, name := range names {
		patch := i + 1
		if patch <= level {
			continue
		}
		sql, err := migrations.FS.ReadFile(migrations.Dir + "/" + name)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if _, err := tx.Exec(ctx, string(sql)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("migrate %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO dbmetadata (name, value) VALUES ('schema-patch-level', $1)
			ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`,
			fmt.Sprintf("%d", patch)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("migrate %s: %w", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}

	level, err = s.patchLevel(ctx)
	if err != nil {
		return err
	}
	if level < migrations.PatchLevel {
		return fmt.Errorf("schema patch level %d, need >= %d", level, migrations.PatchLevel)
	}
	return nil
}

func (s *Store) patchLevel(ctx context.Context) (int, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM dbmetadata WHERE name = 'schema-patch-level'`).Scan(&value)
	if err != nil {
		// no row yet means level zero
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("migrate: %w", err)
	}
	var level int
	if _, err := fmt.Sscanf(value, "%d", &level); err != nil {
		return 0, fmt.Errorf("migrate: bad patch level %q", value)
	}
	return level, nil
}
