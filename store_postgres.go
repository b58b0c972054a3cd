package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ledgerChannel is the NOTIFY channel the db/ triggers publish on.
const ledgerChannel = "ledger_changes"

// pgStore is the PostgreSQL ledgerStore. Schema lives in db/*.sql and is
// applied with cmd/migrate.
type pgStore struct {
	pool *pgxpool.Pool
}

// newPGStore creates a connection pool. We use a pool (not a single conn)
// because managed Postgres hosts close idle connections.
func newPGStore(ctx context.Context, dbURL string) (*pgStore, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse DB URL: %w", err)
	}
	// Use simple query protocol to avoid "cached plan must not change result type"
	// errors from server-side prepared statement caches after schema changes.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &pgStore{pool: pool}, nil
}

func (s *pgStore) Close() { s.pool.Close() }

/* ─── Query helpers ───────────────────────────────────────────────────── */

// queryOne runs a query and scans the first row into T using RowToStructByName.
// Logs query and scan errors for debugging (e.g. struct/column mismatches).
func queryOne[T any](ctx context.Context, pool *pgxpool.Pool, sql string, args pgx.NamedArgs) (T, error) {
	rows, err := pool.Query(ctx, sql, args)
	if err != nil {
		log.Printf("[queryOne] Query error: %v", err)
		var zero T
		return zero, err
	}
	result, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		log.Printf("[queryOne] Scan error: %v", err)
	}
	return result, err
}

// queryMany runs a query and scans all rows into []T using RowToStructByName.
func queryMany[T any](ctx context.Context, pool *pgxpool.Pool, sql string, args pgx.NamedArgs) ([]T, error) {
	rows, err := pool.Query(ctx, sql, args)
	if err != nil {
		log.Printf("[queryMany] Query error: %v", err)
		return nil, err
	}
	results, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		log.Printf("[queryMany] Scan error: %v", err)
	}
	return results, err
}

// queryMaybe is queryOne with pgx.ErrNoRows turned into found=false.
func queryMaybe[T any](ctx context.Context, pool *pgxpool.Pool, sql string, args pgx.NamedArgs) (T, bool, error) {
	v, err := queryOne[T](ctx, pool, sql, args)
	if errors.Is(err, pgx.ErrNoRows) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}

/* ─── Users & profiles ────────────────────────────────────────────────── */

func (s *pgStore) userByUsername(ctx context.Context, username string) (user, bool, error) {
	return queryMaybe[user](ctx, s.pool,
		"SELECT * FROM users WHERE username = @username",
		pgx.NamedArgs{"username": username})
}

func (s *pgStore) getProfile(ctx context.Context, userID int) (userProfile, bool, error) {
	return queryMaybe[userProfile](ctx, s.pool,
		"SELECT * FROM user_profiles WHERE user_id = @userID",
		pgx.NamedArgs{"userID": userID})
}

func (s *pgStore) putProfile(ctx context.Context, p userProfile) (userProfile, error) {
	return queryOne[userProfile](ctx, s.pool,
		`INSERT INTO user_profiles (user_id, sex, age, height, weight, units, activity_level, goal, timezone, auto_targets)
		 VALUES (@userID, @sex, @age, @height, @weight, @units, @activityLevel, @goal, @timezone, @autoTargets)
		 ON CONFLICT (user_id) DO UPDATE SET
			sex = EXCLUDED.sex,
			age = EXCLUDED.age,
			height = EXCLUDED.height,
			weight = EXCLUDED.weight,
			units = EXCLUDED.units,
			activity_level = EXCLUDED.activity_level,
			goal = EXCLUDED.goal,
			timezone = EXCLUDED.timezone,
			auto_targets = EXCLUDED.auto_targets,
			updated_at = now()
		 RETURNING *`,
		pgx.NamedArgs{
			"userID": p.UserID, "sex": p.Sex, "age": p.Age,
			"height": p.Height, "weight": p.Weight, "units": p.Units,
			"activityLevel": p.ActivityLevel, "goal": p.Goal,
			"timezone": p.Timezone, "autoTargets": p.AutoTargets,
		})
}

/* ─── Targets ─────────────────────────────────────────────────────────── */

func (s *pgStore) getTargets(ctx context.Context, userID int) (nutritionTargets, bool, error) {
	return queryMaybe[nutritionTargets](ctx, s.pool,
		"SELECT * FROM nutrition_targets WHERE user_id = @userID",
		pgx.NamedArgs{"userID": userID})
}

func (s *pgStore) putTargets(ctx context.Context, t nutritionTargets) (nutritionTargets, error) {
	return queryOne[nutritionTargets](ctx, s.pool,
		`INSERT INTO nutrition_targets (user_id, calories, protein_g, fat_g, carbs_g, source, version, updated_at)
		 VALUES (@userID, @calories, @proteinG, @fatG, @carbsG, @source, 1, @updatedAt)
		 ON CONFLICT (user_id) DO UPDATE SET
			calories = EXCLUDED.calories,
			protein_g = EXCLUDED.protein_g,
			fat_g = EXCLUDED.fat_g,
			carbs_g = EXCLUDED.carbs_g,
			source = EXCLUDED.source,
			version = nutrition_targets.version + 1,
			updated_at = EXCLUDED.updated_at
		 RETURNING *`,
		pgx.NamedArgs{
			"userID": t.UserID, "calories": t.Calories, "proteinG": t.ProteinG,
			"fatG": t.FatG, "carbsG": t.CarbsG, "source": t.Source,
			"updatedAt": t.UpdatedAt,
		})
}

/* ─── Food log ────────────────────────────────────────────────────────── */

func (s *pgStore) listEntries(ctx context.Context, userID int, date string) ([]foodLogEntry, error) {
	return queryMany[foodLogEntry](ctx, s.pool,
		`SELECT * FROM food_log_entries
		 WHERE user_id = @userID AND date = @date
		 ORDER BY created_at DESC, seq DESC`,
		pgx.NamedArgs{"userID": userID, "date": date})
}

func (s *pgStore) insertEntry(ctx context.Context, e foodLogEntry) (foodLogEntry, error) {
	return queryOne[foodLogEntry](ctx, s.pool,
		`INSERT INTO food_log_entries
			(id, user_id, date, name, brand, grams_per_serving, servings, kcal, protein_g, carbs_g, fat_g, created_at)
		 VALUES (@id, @userID, @date, @name, @brand, @gramsPerServing, @servings, @kcal, @proteinG, @carbsG, @fatG, @createdAt)
		 RETURNING *`,
		pgx.NamedArgs{
			"id": e.ID, "userID": e.UserID, "date": e.Date.String(),
			"name": e.Name, "brand": e.Brand,
			"gramsPerServing": e.GramsPerServing, "servings": e.Servings,
			"kcal": e.Calories, "proteinG": e.ProteinG,
			"carbsG": e.CarbsG, "fatG": e.FatG, "createdAt": e.CreatedAt,
		})
}

func (s *pgStore) deleteEntry(ctx context.Context, userID int, date, id string) (bool, error) {
	result, err := s.pool.Exec(ctx,
		"DELETE FROM food_log_entries WHERE id = @id AND user_id = @userID AND date = @date",
		pgx.NamedArgs{"id": id, "userID": userID, "date": date})
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (s *pgStore) dailyTotals(ctx context.Context, userID int, start, end string) ([]dayTotalsRow, error) {
	return queryMany[dayTotalsRow](ctx, s.pool,
		`SELECT
			date,
			COUNT(*)::int            AS entries,
			COALESCE(SUM(kcal), 0)      AS kcal,
			COALESCE(SUM(protein_g), 0) AS protein_g,
			COALESCE(SUM(carbs_g), 0)   AS carbs_g,
			COALESCE(SUM(fat_g), 0)     AS fat_g
		 FROM food_log_entries
		 WHERE user_id = @userID AND date >= @start AND date <= @end
		 GROUP BY date
		 ORDER BY date ASC`,
		pgx.NamedArgs{"userID": userID, "start": start, "end": end})
}

/* ─── Weight log ──────────────────────────────────────────────────────── */

// upsertWeight relies on UNIQUE(user_id, date): posting the same date updates in place.
func (s *pgStore) upsertWeight(ctx context.Context, userID int, date string, weight float64) (weightEntry, error) {
	return queryOne[weightEntry](ctx, s.pool,
		`INSERT INTO weight_log (user_id, date, weight)
		 VALUES (@userID, @date, @weight)
		 ON CONFLICT (user_id, date) DO UPDATE SET weight = EXCLUDED.weight
		 RETURNING *`,
		pgx.NamedArgs{"userID": userID, "date": date, "weight": weight})
}

func (s *pgStore) listWeights(ctx context.Context, userID int, start, end string) ([]weightEntry, error) {
	return queryMany[weightEntry](ctx, s.pool,
		`SELECT * FROM weight_log
		 WHERE user_id = @userID AND date >= @start AND date <= @end
		 ORDER BY date ASC`,
		pgx.NamedArgs{"userID": userID, "start": start, "end": end})
}

/* ─── Change notifications ────────────────────────────────────────────── */

// listen holds one pooled connection on LISTEN ledger_changes and forwards
// each notification. It returns when ctx is cancelled or the connection dies.
func (s *pgStore) listen(ctx context.Context, publish func(ledgerEvent)) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ledgerChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		ev, err := parseNotification(n.Payload)
		if err != nil {
			log.Printf("[pgStore.listen] bad payload %q: %v", n.Payload, err)
			continue
		}
		publish(ev)
	}
}

// parseNotification decodes the trigger payload: {"user_id":1,"date":"2026-01-02","kind":"entries"}.
func parseNotification(payload string) (ledgerEvent, error) {
	var ev ledgerEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ledgerEvent{}, err
	}
	if ev.UserID == 0 || ev.Kind == "" {
		return ledgerEvent{}, fmt.Errorf("missing user_id or kind")
	}
	return ev, nil
}
