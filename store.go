package main

import (
	"context"
	"fmt"
)

// ledgerStore is the persistent store behind the ledger. Implementations
// return raw driver errors; the ledger tags them as storage failures.
// Lookups report absence through the bool rather than an error.
type ledgerStore interface {
	userByUsername(ctx context.Context, username string) (user, bool, error)

	getProfile(ctx context.Context, userID int) (userProfile, bool, error)
	putProfile(ctx context.Context, p userProfile) (userProfile, error)

	getTargets(ctx context.Context, userID int) (nutritionTargets, bool, error)
	// putTargets overwrites the user's targets and increments Version.
	putTargets(ctx context.Context, t nutritionTargets) (nutritionTargets, error)

	listEntries(ctx context.Context, userID int, date string) ([]foodLogEntry, error)
	insertEntry(ctx context.Context, e foodLogEntry) (foodLogEntry, error)
	deleteEntry(ctx context.Context, userID int, date, id string) (bool, error)
	dailyTotals(ctx context.Context, userID int, start, end string) ([]dayTotalsRow, error)

	upsertWeight(ctx context.Context, userID int, date string, weight float64) (weightEntry, error)
	listWeights(ctx context.Context, userID int, start, end string) ([]weightEntry, error)

	Close()
}

// changeNotifier is implemented by stores that see writes from other
// processes and can report them. listen blocks until ctx is done.
type changeNotifier interface {
	listen(ctx context.Context, publish func(ledgerEvent)) error
}

// openStore picks the store implementation named by cfg.StoreDriver.
func openStore(ctx context.Context, cfg config) (ledgerStore, error) {
	switch cfg.StoreDriver {
	case "postgres":
		return newPGStore(ctx, cfg.DBURL)
	case "sqlite":
		return newSQLiteStore(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (want postgres or sqlite)", cfg.StoreDriver)
	}
}
