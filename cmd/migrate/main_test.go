package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptionFromFilename(t *testing.T) {
	cases := map[string]string{
		"2026-10-01-004-create-food-log-entries.sql": "create food log entries",
		"2026-10-01-006-ledger-change-notify.sql":    "ledger change notify",
		"no-prefix.sql":                              "no prefix",
	}
	for in, want := range cases {
		if got := descriptionFromFilename(in); got != want {
			t.Errorf("descriptionFromFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestIsUndefinedTable verifies only a missing relation counts as a fresh
// database; connection and permission failures must not.
func TestIsUndefinedTable(t *testing.T) {
	missing := &pgconn.PgError{Code: "42P01", Message: `relation "migrations" does not exist`}
	assert.True(t, isUndefinedTable(missing))
	assert.True(t, isUndefinedTable(fmt.Errorf("query: %w", missing)))

	assert.False(t, isUndefinedTable(&pgconn.PgError{Code: "42501", Message: "permission denied"}))
	assert.False(t, isUndefinedTable(errors.New("connection reset by peer")))
	assert.False(t, isUndefinedTable(nil))
}

func TestListMigrationsAndPending(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"2026-10-01-002-create-users.sql",
		"2026-10-01-001-create-migrations-table.sql",
		"2026-10-01-003-create-nutrition-targets.sql",
		"README.md",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644))
	}

	all, err := listMigrations(dir)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2026-10-01-001-create-migrations-table.sql", all[0].name)
	assert.Equal(t, filepath.Join(dir, all[2].name), all[2].path)

	todo := pending(all, map[string]bool{"2026-10-01-001-create-migrations-table.sql": true})
	require.Len(t, todo, 2)
	assert.Equal(t, "2026-10-01-002-create-users.sql", todo[0].name)
	assert.Equal(t, "2026-10-01-003-create-nutrition-targets.sql", todo[1].name)

	assert.Empty(t, pending(all, map[string]bool{
		all[0].name: true, all[1].name: true, all[2].name: true,
	}))
}

// TestAppliedMigrations runs against TEST_DATABASE_URL when set: a fresh
// schema without the table reads as empty, and recorded names come back.
func TestAppliedMigrations(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, url)
	require.NoError(t, err)
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS migrate_test; SET search_path TO migrate_test")
	require.NoError(t, err)
	defer conn.Exec(ctx, "DROP SCHEMA migrate_test CASCADE")

	applied, err := appliedMigrations(ctx, conn)
	require.NoError(t, err)
	assert.Empty(t, applied)

	_, err = conn.Exec(ctx, "CREATE TABLE migrations (migration TEXT PRIMARY KEY, description TEXT)")
	require.NoError(t, err)
	_, err = conn.Exec(ctx, "INSERT INTO migrations VALUES ('2026-10-01-001-create-migrations-table.sql', 'x')")
	require.NoError(t, err)

	applied, err = appliedMigrations(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"2026-10-01-001-create-migrations-table.sql": true}, applied)
}
