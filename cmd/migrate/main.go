// CLI tool to run pending database migrations from db/.
// Applied files are recorded in the migrations table and skipped on later runs.
// Each migration and its record insert share one transaction.
// Usage: go run ./cmd/migrate (from the repository root)
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/joho/godotenv"
)

// undefinedTable is the SQLSTATE Postgres returns for a missing relation.
const undefinedTable = "42P01"

var migrationPrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-\d{3}-`)

type migration struct {
	name string
	path string
}

func main() {
	// .env is optional; DB_URL may come from the environment
	_ = godotenv.Load()
	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DB_URL not set")
		os.Exit(1)
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	dir := getenv("MIGRATIONS_DIR", "db")
	all, err := listMigrations(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing migrations: %v\n", err)
		os.Exit(1)
	}
	if len(all) == 0 {
		fmt.Fprintf(os.Stderr, "No migration files found in %s\n", dir)
		os.Exit(1)
	}

	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading applied migrations: %v\n", err)
		os.Exit(1)
	}

	todo := pending(all, applied)
	for _, m := range all {
		if applied[m.name] {
			fmt.Printf("  skip: %s\n", m.name)
		}
	}
	for _, m := range todo {
		if err := apply(ctx, conn, m); err != nil {
			fmt.Fprintf(os.Stderr, "Error running %s: %v\n", m.name, err)
			os.Exit(1)
		}
		fmt.Printf("  applied: %s\n", m.name)
	}

	if len(todo) == 0 {
		fmt.Println("No pending migrations.")
	} else {
		fmt.Printf("\n%d migration(s) applied.\n", len(todo))
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// listMigrations returns the .sql files in dir in filename order.
func listMigrations(dir string) ([]migration, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	out := make([]migration, 0, len(files))
	for _, f := range files {
		out = append(out, migration{name: filepath.Base(f), path: f})
	}
	return out, nil
}

// appliedMigrations reads the migrations table. A missing table means a fresh
// database; any other failure is returned so nothing is re-applied by mistake.
func appliedMigrations(ctx context.Context, conn *pgx.Conn) (map[string]bool, error) {
	rows, err := conn.Query(ctx, "SELECT migration FROM migrations")
	if err != nil {
		if isUndefinedTable(err) {
			return map[string]bool{}, nil
		}
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		if isUndefinedTable(err) {
			return map[string]bool{}, nil
		}
		return nil, err
	}
	applied := make(map[string]bool, len(names))
	for _, n := range names {
		applied[n] = true
	}
	return applied, nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}

// pending keeps the order of all and drops what is already applied.
func pending(all []migration, applied map[string]bool) []migration {
	var out []migration
	for _, m := range all {
		if !applied[m.name] {
			out = append(out, m)
		}
	}
	return out
}

func apply(ctx context.Context, conn *pgx.Conn, m migration) error {
	content, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(content)); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO migrations (migration, description) VALUES ($1, $2)",
		m.name, descriptionFromFilename(m.name)); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit(ctx)
}

// descriptionFromFilename strips the YYYY-MM-DD-NNN- prefix and .sql suffix.
func descriptionFromFilename(filename string) string {
	name := migrationPrefix.ReplaceAllString(strings.TrimSuffix(filename, ".sql"), "")
	return strings.ReplaceAll(name, "-", " ")
}
