// CLI tool to create a user with a bcrypt-hashed password and an empty
// imperial profile. Works against either store the API can run on; for
// STORE_DRIVER=sqlite the API must have been started once so the schema exists.
// Usage: go run ./cmd/create-user (from the repository root)
package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

func main() {
	// .env is optional; settings may come from the environment
	_ = godotenv.Load()

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Username: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)

	fmt.Print("Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)

	fmt.Print("Password: ")
	password, _ := reader.ReadString('\n')
	password = strings.TrimSpace(password)

	if username == "" || password == "" {
		fmt.Fprintln(os.Stderr, "Username and password are required")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error hashing password: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	var userID int
	switch driver := getenv("STORE_DRIVER", "postgres"); driver {
	case "postgres":
		userID, err = createPostgresUser(ctx, os.Getenv("DB_URL"), username, email, string(hash))
	case "sqlite":
		userID, err = createSQLiteUser(ctx, getenv("SQLITE_PATH", "nutrition.db"), username, email, string(hash))
	default:
		err = fmt.Errorf("unknown STORE_DRIVER %q", driver)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nUser created successfully!\n")
	fmt.Printf("  ID:       %d\n", userID)
	fmt.Printf("  Username: %s\n", username)
	fmt.Println("  Log in with POST /api/login to get a token.")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// createPostgresUser inserts the user and profile rows in one transaction.
func createPostgresUser(ctx context.Context, dbURL, username, email, hash string) (int, error) {
	if dbURL == "" {
		return 0, fmt.Errorf("DB_URL not set")
	}
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(ctx)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var userID int
	err = tx.QueryRow(ctx,
		`INSERT INTO users (username, email, password)
		 VALUES ($1, $2, $3) RETURNING id`,
		username, email, hash,
	).Scan(&userID)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO user_profiles (user_id) VALUES ($1)`, userID); err != nil {
		return 0, fmt.Errorf("create profile: %w", err)
	}
	return userID, tx.Commit(ctx)
}

// createSQLiteUser does the same against the embedded store's file.
func createSQLiteUser(ctx context.Context, path, username, email, hash string) (int, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return 0, err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().UnixNano()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (username, email, password, created_at) VALUES (?, ?, ?, ?)",
		username, email, hash, now)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO user_profiles (user_id, updated_at) VALUES (?, ?)", id, now); err != nil {
		return 0, fmt.Errorf("create profile: %w", err)
	}
	return int(id), tx.Commit()
}
