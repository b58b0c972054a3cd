package main

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// sqliteStore is the embedded ledgerStore for single-node setups. Dates are
// stored as YYYY-MM-DD text and timestamps as unix nanoseconds.
type sqliteStore struct {
	db *sql.DB
}

// newSQLiteStore opens (creating if needed) the database file and applies
// the embedded schema.
func newSQLiteStore(path string) (*sqliteStore, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// One writer at a time; SQLite serialises writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}
	log.Println("SQLite schema initialized")
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Close() {
	if err := s.db.Close(); err != nil {
		log.Printf("[sqliteStore.Close] %v", err)
	}
}

func fromNanos(ns int64) time.Time { return time.Unix(0, ns).UTC() }

func parseDate(s string) (DateOnly, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return DateOnly{}, fmt.Errorf("bad stored date %q: %w", s, err)
	}
	return DateOnly{t}, nil
}

/* ─── Users & profiles ────────────────────────────────────────────────── */

func (s *sqliteStore) userByUsername(ctx context.Context, username string) (user, bool, error) {
	var u user
	var createdNs int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, password, created_at FROM users WHERE username = ?",
		username).Scan(&u.ID, &u.Username, &u.Email, &u.Password, &createdNs)
	if errors.Is(err, sql.ErrNoRows) {
		return user{}, false, nil
	}
	if err != nil {
		return user{}, false, err
	}
	created := fromNanos(createdNs)
	u.CreatedAt = &created
	return u, true, nil
}

const profileColumns = "user_id, sex, age, height, weight, units, activity_level, goal, timezone, auto_targets, updated_at"

func scanProfile(row interface{ Scan(...any) error }) (userProfile, error) {
	var p userProfile
	var updatedNs int64
	err := row.Scan(&p.UserID, &p.Sex, &p.Age, &p.Height, &p.Weight, &p.Units,
		&p.ActivityLevel, &p.Goal, &p.Timezone, &p.AutoTargets, &updatedNs)
	if err != nil {
		return userProfile{}, err
	}
	updated := fromNanos(updatedNs)
	p.UpdatedAt = &updated
	return p, nil
}

func (s *sqliteStore) getProfile(ctx context.Context, userID int) (userProfile, bool, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM user_profiles WHERE user_id = ?", userID))
	if errors.Is(err, sql.ErrNoRows) {
		return userProfile{}, false, nil
	}
	if err != nil {
		return userProfile{}, false, err
	}
	return p, true, nil
}

func (s *sqliteStore) putProfile(ctx context.Context, p userProfile) (userProfile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `
		INSERT INTO user_profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			sex = excluded.sex,
			age = excluded.age,
			height = excluded.height,
			weight = excluded.weight,
			units = excluded.units,
			activity_level = excluded.activity_level,
			goal = excluded.goal,
			timezone = excluded.timezone,
			auto_targets = excluded.auto_targets,
			updated_at = excluded.updated_at
		RETURNING `+profileColumns,
		p.UserID, p.Sex, p.Age, p.Height, p.Weight, p.Units,
		p.ActivityLevel, p.Goal, p.Timezone, p.AutoTargets, time.Now().UnixNano()))
}

/* ─── Targets ─────────────────────────────────────────────────────────── */

const targetColumns = "user_id, calories, protein_g, fat_g, carbs_g, source, version, updated_at"

func scanTargets(row interface{ Scan(...any) error }) (nutritionTargets, error) {
	var t nutritionTargets
	var updatedNs int64
	if err := row.Scan(&t.UserID, &t.Calories, &t.ProteinG, &t.FatG, &t.CarbsG,
		&t.Source, &t.Version, &updatedNs); err != nil {
		return nutritionTargets{}, err
	}
	t.UpdatedAt = fromNanos(updatedNs)
	return t, nil
}

func (s *sqliteStore) getTargets(ctx context.Context, userID int) (nutritionTargets, bool, error) {
	t, err := scanTargets(s.db.QueryRowContext(ctx,
		"SELECT "+targetColumns+" FROM nutrition_targets WHERE user_id = ?", userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nutritionTargets{}, false, nil
	}
	if err != nil {
		return nutritionTargets{}, false, err
	}
	return t, true, nil
}

func (s *sqliteStore) putTargets(ctx context.Context, t nutritionTargets) (nutritionTargets, error) {
	return scanTargets(s.db.QueryRowContext(ctx, `
		INSERT INTO nutrition_targets (`+targetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			calories = excluded.calories,
			protein_g = excluded.protein_g,
			fat_g = excluded.fat_g,
			carbs_g = excluded.carbs_g,
			source = excluded.source,
			version = nutrition_targets.version + 1,
			updated_at = excluded.updated_at
		RETURNING `+targetColumns,
		t.UserID, t.Calories, t.ProteinG, t.FatG, t.CarbsG, t.Source, t.UpdatedAt.UnixNano()))
}

/* ─── Food log ────────────────────────────────────────────────────────── */

const entryColumns = "id, user_id, date, name, brand, grams_per_serving, servings, kcal, protein_g, carbs_g, fat_g, seq, created_at"

func scanEntry(row interface{ Scan(...any) error }) (foodLogEntry, error) {
	var e foodLogEntry
	var date string
	var brand sql.NullString
	var createdNs int64
	if err := row.Scan(&e.ID, &e.UserID, &date, &e.Name, &brand, &e.GramsPerServing,
		&e.Servings, &e.Calories, &e.ProteinG, &e.CarbsG, &e.FatG, &e.Seq, &createdNs); err != nil {
		return foodLogEntry{}, err
	}
	d, err := parseDate(date)
	if err != nil {
		return foodLogEntry{}, err
	}
	e.Date = d
	if brand.Valid {
		e.Brand = &brand.String
	}
	e.CreatedAt = fromNanos(createdNs)
	return e, nil
}

func (s *sqliteStore) listEntries(ctx context.Context, userID int, date string) ([]foodLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entryColumns+` FROM food_log_entries
		 WHERE user_id = ? AND date = ?
		 ORDER BY created_at DESC, seq DESC`, userID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []foodLogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *sqliteStore) insertEntry(ctx context.Context, e foodLogEntry) (foodLogEntry, error) {
	var brand sql.NullString
	if e.Brand != nil {
		brand = sql.NullString{String: *e.Brand, Valid: true}
	}
	return scanEntry(s.db.QueryRowContext(ctx, `
		INSERT INTO food_log_entries
			(id, user_id, date, name, brand, grams_per_serving, servings, kcal, protein_g, carbs_g, fat_g, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+entryColumns,
		e.ID, e.UserID, e.Date.String(), e.Name, brand, e.GramsPerServing, e.Servings,
		e.Calories, e.ProteinG, e.CarbsG, e.FatG, e.CreatedAt.UnixNano()))
}

func (s *sqliteStore) deleteEntry(ctx context.Context, userID int, date, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM food_log_entries WHERE id = ? AND user_id = ? AND date = ?", id, userID, date)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) dailyTotals(ctx context.Context, userID int, start, end string) ([]dayTotalsRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, COUNT(*),
			COALESCE(SUM(kcal), 0), COALESCE(SUM(protein_g), 0),
			COALESCE(SUM(carbs_g), 0), COALESCE(SUM(fat_g), 0)
		FROM food_log_entries
		WHERE user_id = ? AND date >= ? AND date <= ?
		GROUP BY date
		ORDER BY date ASC`, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dayTotalsRow
	for rows.Next() {
		var r dayTotalsRow
		var date string
		if err := rows.Scan(&date, &r.Entries, &r.Calories, &r.ProteinG, &r.CarbsG, &r.FatG); err != nil {
			return nil, err
		}
		if r.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

/* ─── Weight log ──────────────────────────────────────────────────────── */

const weightColumns = "id, user_id, date, weight, created_at"

func scanWeight(row interface{ Scan(...any) error }) (weightEntry, error) {
	var w weightEntry
	var date string
	var createdNs int64
	if err := row.Scan(&w.ID, &w.UserID, &date, &w.Weight, &createdNs); err != nil {
		return weightEntry{}, err
	}
	d, err := parseDate(date)
	if err != nil {
		return weightEntry{}, err
	}
	w.Date = d
	created := fromNanos(createdNs)
	w.CreatedAt = &created
	return w, nil
}

func (s *sqliteStore) upsertWeight(ctx context.Context, userID int, date string, weight float64) (weightEntry, error) {
	return scanWeight(s.db.QueryRowContext(ctx, `
		INSERT INTO weight_log (user_id, date, weight, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET weight = excluded.weight
		RETURNING `+weightColumns,
		userID, date, weight, time.Now().UnixNano()))
}

func (s *sqliteStore) listWeights(ctx context.Context, userID int, start, end string) ([]weightEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+weightColumns+` FROM weight_log
		 WHERE user_id = ? AND date >= ? AND date <= ?
		 ORDER BY date ASC`, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []weightEntry
	for rows.Next() {
		w, err := scanWeight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
