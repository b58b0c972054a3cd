package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// newTestSQLiteStore opens a fresh database file under the test's temp dir.
func newTestSQLiteStore(t *testing.T) *sqliteStore {
	t.Helper()
	s, err := newSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// createTestUser inserts a user with a bcrypt-hashed password and returns its id.
func createTestUser(t *testing.T, s *sqliteStore, username, password string) int {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	res, err := s.db.Exec(
		"INSERT INTO users (username, email, password) VALUES (?, ?, ?)",
		username, username+"@example.com", string(hash))
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return int(id)
}

func testEntry(id string, userID int, date string, kcal float64, at time.Time) foodLogEntry {
	d, _ := time.Parse(dateLayout, date)
	return foodLogEntry{
		ID: id, UserID: userID, Date: DateOnly{d}, Name: "item " + id,
		GramsPerServing: 100, Servings: 1, Calories: kcal, ProteinG: kcal / 20,
		CarbsG: kcal / 10, FatG: kcal / 40, CreatedAt: at,
	}
}

func TestSQLiteStore_UserLookup(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)
	id := createTestUser(t, s, "alice", "secret")

	u, found, err := s.userByUsername(ctx, "alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, u.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("secret")))

	_, found, err = s.userByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteStore_ProfileUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)
	id := createTestUser(t, s, "alice", "secret")

	_, found, err := s.getProfile(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)

	p := completeProfile(id)
	p.Timezone = "Europe/Berlin"
	p.AutoTargets = true
	saved, err := s.putProfile(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", saved.Timezone)
	assert.True(t, saved.AutoTargets)
	assert.NotNil(t, saved.UpdatedAt)

	p.Weight = 175
	_, err = s.putProfile(ctx, p)
	require.NoError(t, err)
	got, found, err := s.getProfile(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 175.0, got.Weight)
	assert.Equal(t, "moderate", got.ActivityLevel)
}

func TestSQLiteStore_TargetsVersioning(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)
	id := createTestUser(t, s, "alice", "secret")

	first, err := s.putTargets(ctx, nutritionTargets{UserID: id, Calories: 2302, ProteinG: 180, FatG: 72, CarbsG: 234, Source: sourceComputed, UpdatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)

	second, err := s.putTargets(ctx, nutritionTargets{UserID: id, Calories: 2000, ProteinG: 150, FatG: 60, CarbsG: 200, Source: sourceManual, UpdatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, sourceManual, second.Source)

	got, found, err := s.getTargets(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, second.Calories, got.Calories)
	assert.Equal(t, 2, got.Version)
}

func TestSQLiteStore_EntriesOrderAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)
	id := createTestUser(t, s, "alice", "secret")
	noon := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	brand := "Acme"
	a := testEntry("a", id, testDay, 300, noon)
	a.Brand = &brand
	for _, e := range []foodLogEntry{
		a,
		testEntry("b", id, testDay, 450, noon),
		testEntry("c", id, testDay, 100, noon.Add(-time.Hour)),
		testEntry("d", id, "2026-10-18", 999, noon),
	} {
		_, err := s.insertEntry(ctx, e)
		require.NoError(t, err)
	}

	entries, err := s.listEntries(ctx, id, testDay)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "b", entries[0].ID)
	assert.Equal(t, "a", entries[1].ID)
	assert.Equal(t, "c", entries[2].ID)
	require.NotNil(t, entries[1].Brand)
	assert.Equal(t, "Acme", *entries[1].Brand)
	assert.Nil(t, entries[0].Brand)
	assert.True(t, entries[0].CreatedAt.Equal(noon))

	removed, err := s.deleteEntry(ctx, id, testDay, "a")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.deleteEntry(ctx, id, testDay, "a")
	require.NoError(t, err)
	assert.False(t, removed)
	// wrong day does not delete
	removed, err = s.deleteEntry(ctx, id, testDay, "d")
	require.NoError(t, err)
	assert.False(t, removed)

	rows, err := s.dailyTotals(ctx, id, "2026-10-01", "2026-10-31")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2026-10-18", rows[0].Date.String())
	assert.Equal(t, 999.0, rows[0].Calories)
	assert.Equal(t, 2, rows[1].Entries)
	assert.Equal(t, 550.0, rows[1].Calories)
}

func TestSQLiteStore_WeightUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)
	id := createTestUser(t, s, "alice", "secret")

	first, err := s.upsertWeight(ctx, id, testDay, 180)
	require.NoError(t, err)
	second, err := s.upsertWeight(ctx, id, testDay, 179.2)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	_, err = s.upsertWeight(ctx, id, "2026-10-12", 181)
	require.NoError(t, err)

	got, err := s.listWeights(ctx, id, "2026-10-01", "2026-10-31")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2026-10-12", got[0].Date.String())
	assert.Equal(t, 179.2, got[1].Weight)
}

// TestSQLiteStore_LedgerRoundTrip runs the ledger over the real embedded
// store to check the two agree on ordering and totals.
func TestSQLiteStore_LedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)
	id := createTestUser(t, s, "alice", "secret")
	l := newLedger(s, newChangeFeed(), time.UTC)

	first, _, err := l.addEntry(ctx, id, testDay, foodReq("oatmeal", 300))
	require.NoError(t, err)
	_, day, err := l.addEntry(ctx, id, testDay, foodReq("chicken bowl", 450))
	require.NoError(t, err)
	assert.Equal(t, 750.0, day.Totals.Calories)
	assert.Equal(t, "chicken bowl", day.Entries[0].Name)

	day, err = l.removeEntry(ctx, id, testDay, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 450.0, day.Totals.Calories)
}
