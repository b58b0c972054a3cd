package main

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const dayLockStripes = 64

// ledger is the daily ledger aggregator. It holds no cached totals; every
// view is re-derived from the entry list the store returns.
type ledger struct {
	store ledgerStore
	feed  *changeFeed
	// publish is false when the store reports its own changes (changeNotifier);
	// publishing here as well would deliver every event twice.
	publish    bool
	defaultLoc *time.Location
	now        func() time.Time
	newID      func() string

	// dayLocks serialise write-then-reread for the same (user, day) so the
	// snapshot returned from a write always includes that write.
	dayLocks [dayLockStripes]sync.Mutex
}

func newLedger(store ledgerStore, feed *changeFeed, defaultLoc *time.Location) *ledger {
	_, notifies := store.(changeNotifier)
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &ledger{
		store:      store,
		feed:       feed,
		publish:    !notifies,
		defaultLoc: defaultLoc,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

func (l *ledger) lockDay(userID int, date string) func() {
	h := fnv.New32a()
	h.Write([]byte(date))
	idx := (h.Sum32() ^ uint32(userID)) % dayLockStripes
	l.dayLocks[idx].Lock()
	return l.dayLocks[idx].Unlock
}

func (l *ledger) emit(ev ledgerEvent) {
	if l.publish && l.feed != nil {
		l.feed.publish(ev)
	}
}

/* ─── Dates ──────────────────────────────────────────────────────────── */

// resolveDate validates an explicit YYYY-MM-DD date or, when raw is empty,
// returns today in the user's timezone (profile timezone, else the default).
func (l *ledger) resolveDate(ctx context.Context, userID int, raw string) (string, error) {
	if userID == 0 {
		return "", errUnauthenticated
	}
	if raw != "" {
		if _, err := time.Parse(dateLayout, raw); err != nil {
			return "", invalid("date", "expected YYYY-MM-DD")
		}
		return raw, nil
	}

	loc := l.defaultLoc
	p, found, err := l.store.getProfile(ctx, userID)
	if err != nil {
		return "", storageErr("load profile", err)
	}
	if found && p.Timezone != "" {
		if tz, err := time.LoadLocation(p.Timezone); err == nil {
			loc = tz
		}
	}
	return localDate(l.now(), loc), nil
}

// localDate is the calendar day of t as seen in loc.
func localDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateLayout)
}

func validateRange(start, end string) error {
	if start == "" || end == "" {
		return invalid("range", "start and end are required")
	}
	if _, err := time.Parse(dateLayout, start); err != nil {
		return invalid("start", "expected YYYY-MM-DD")
	}
	if _, err := time.Parse(dateLayout, end); err != nil {
		return invalid("end", "expected YYYY-MM-DD")
	}
	if start > end {
		return invalid("range", "start must not be after end")
	}
	return nil
}

/* ─── Entries ────────────────────────────────────────────────────────── */

// newEntry validates a request and scales its per-serving macros to the
// logged amount. ID, date and timestamps are filled in by addEntry.
func newEntry(req createFoodLogEntryRequest) (foodLogEntry, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return foodLogEntry{}, invalid("name", "is required")
	}
	servings := 1.0
	if req.Servings != nil {
		servings = *req.Servings
	}
	if !(servings > 0) || math.IsInf(servings, 0) {
		return foodLogEntry{}, invalid("servings", "must be positive")
	}
	fields := []struct {
		name string
		v    float64
	}{
		{"grams_per_serving", req.GramsPerServing},
		{"kcal", req.Calories},
		{"protein_g", req.ProteinG},
		{"carbs_g", req.CarbsG},
		{"fat_g", req.FatG},
	}
	for _, f := range fields {
		if !(f.v >= 0) || math.IsInf(f.v, 0) {
			return foodLogEntry{}, invalid(f.name, "must be a non-negative number")
		}
	}

	var brand *string
	if req.Brand != nil && strings.TrimSpace(*req.Brand) != "" {
		b := strings.TrimSpace(*req.Brand)
		brand = &b
	}
	return foodLogEntry{
		Name:            name,
		Brand:           brand,
		GramsPerServing: req.GramsPerServing,
		Servings:        servings,
		Calories:        req.Calories * servings,
		ProteinG:        req.ProteinG * servings,
		CarbsG:          req.CarbsG * servings,
		FatG:            req.FatG * servings,
	}, nil
}

// addEntry stores a new entry for (userID, date) and returns it with the
// re-derived day. Nothing is published unless the store confirmed the insert.
// If the re-read fails after a confirmed insert, the saved entry is still
// returned alongside the error.
func (l *ledger) addEntry(ctx context.Context, userID int, date string, req createFoodLogEntryRequest) (foodLogEntry, dailyLedger, error) {
	if userID == 0 {
		return foodLogEntry{}, dailyLedger{}, errUnauthenticated
	}
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return foodLogEntry{}, dailyLedger{}, invalid("date", "expected YYYY-MM-DD")
	}
	e, err := newEntry(req)
	if err != nil {
		return foodLogEntry{}, dailyLedger{}, err
	}
	e.ID = l.newID()
	e.UserID = userID
	e.Date = DateOnly{d}
	e.CreatedAt = l.now().UTC()

	unlock := l.lockDay(userID, date)
	defer unlock()

	saved, err := l.store.insertEntry(ctx, e)
	if err != nil {
		return foodLogEntry{}, dailyLedger{}, storageErr("insert entry", err)
	}
	l.emit(ledgerEvent{UserID: userID, Date: date, Kind: eventEntries})

	day, err := l.loadDay(ctx, userID, date)
	if err != nil {
		return saved, dailyLedger{}, err
	}
	return saved, day, nil
}

// removeEntry deletes an entry if present. A missing id is not an error.
func (l *ledger) removeEntry(ctx context.Context, userID int, date, id string) (dailyLedger, error) {
	if userID == 0 {
		return dailyLedger{}, errUnauthenticated
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return dailyLedger{}, invalid("date", "expected YYYY-MM-DD")
	}

	unlock := l.lockDay(userID, date)
	defer unlock()

	removed, err := l.store.deleteEntry(ctx, userID, date, id)
	if err != nil {
		return dailyLedger{}, storageErr("delete entry", err)
	}
	if removed {
		l.emit(ledgerEvent{UserID: userID, Date: date, Kind: eventEntries})
	}
	return l.loadDay(ctx, userID, date)
}

// getTotals sums the day's current entries. An empty day is all zeros.
func (l *ledger) getTotals(ctx context.Context, userID int, date string) (macroTotals, error) {
	if userID == 0 {
		return macroTotals{}, errUnauthenticated
	}
	entries, err := l.store.listEntries(ctx, userID, date)
	if err != nil {
		return macroTotals{}, storageErr("list entries", err)
	}
	return sumEntries(entries), nil
}

// getDay returns the full view of one day: entries, totals, targets, remaining.
func (l *ledger) getDay(ctx context.Context, userID int, date string) (dailyLedger, error) {
	if userID == 0 {
		return dailyLedger{}, errUnauthenticated
	}
	return l.loadDay(ctx, userID, date)
}

func (l *ledger) loadDay(ctx context.Context, userID int, date string) (dailyLedger, error) {
	entries, err := l.store.listEntries(ctx, userID, date)
	if err != nil {
		return dailyLedger{}, storageErr("list entries", err)
	}
	sortNewestFirst(entries)
	if entries == nil {
		entries = []foodLogEntry{}
	}

	day := dailyLedger{Date: date, Entries: entries, Totals: sumEntries(entries)}

	t, found, err := l.store.getTargets(ctx, userID)
	if err != nil {
		return dailyLedger{}, storageErr("load targets", err)
	}
	if found {
		day.Targets = &t
		day.Remaining = &macroTotals{
			Calories: t.Calories - day.Totals.Calories,
			ProteinG: t.ProteinG - day.Totals.ProteinG,
			CarbsG:   t.CarbsG - day.Totals.CarbsG,
			FatG:     t.FatG - day.Totals.FatG,
		}
	}
	return day, nil
}

// history returns per-day totals for days in [start, end] that have entries.
func (l *ledger) history(ctx context.Context, userID int, start, end string) ([]dayTotalsRow, error) {
	if userID == 0 {
		return nil, errUnauthenticated
	}
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	rows, err := l.store.dailyTotals(ctx, userID, start, end)
	if err != nil {
		return nil, storageErr("daily totals", err)
	}
	if rows == nil {
		rows = []dayTotalsRow{}
	}
	return rows, nil
}

// sumEntries is the elementwise sum of the entries' macro snapshots.
func sumEntries(entries []foodLogEntry) macroTotals {
	var t macroTotals
	for _, e := range entries {
		t.Calories += e.Calories
		t.ProteinG += e.ProteinG
		t.CarbsG += e.CarbsG
		t.FatG += e.FatG
	}
	return t
}

// sortNewestFirst orders by created_at descending; equal timestamps put the
// later insertion first.
func sortNewestFirst(entries []foodLogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].Seq > entries[j].Seq
	})
}

/* ─── Targets ────────────────────────────────────────────────────────── */

// getTargets returns the last stored targets, whichever path wrote them.
func (l *ledger) getTargets(ctx context.Context, userID int) (nutritionTargets, error) {
	if userID == 0 {
		return nutritionTargets{}, errUnauthenticated
	}
	t, found, err := l.store.getTargets(ctx, userID)
	if err != nil {
		return nutritionTargets{}, storageErr("load targets", err)
	}
	if !found {
		return nutritionTargets{}, errTargetsNotSet
	}
	return t, nil
}

// setManualTargets overwrites the targets with user-typed values.
func (l *ledger) setManualTargets(ctx context.Context, userID int, req putTargetsRequest) (nutritionTargets, error) {
	if userID == 0 {
		return nutritionTargets{}, errUnauthenticated
	}
	fields := []struct {
		name string
		v    *float64
	}{
		{"calories", req.Calories},
		{"protein_g", req.ProteinG},
		{"fat_g", req.FatG},
		{"carbs_g", req.CarbsG},
	}
	for _, f := range fields {
		if f.v == nil {
			return nutritionTargets{}, invalid(f.name, "is required")
		}
		if !(*f.v >= 0) || math.IsInf(*f.v, 0) {
			return nutritionTargets{}, invalid(f.name, "must be a non-negative number")
		}
	}
	return l.saveTargets(ctx, nutritionTargets{
		UserID:   userID,
		Calories: *req.Calories,
		ProteinG: *req.ProteinG,
		FatG:     *req.FatG,
		CarbsG:   *req.CarbsG,
		Source:   sourceManual,
	})
}

// computeTargets runs the calculator on the stored profile and saves the
// result as computed targets.
func (l *ledger) computeTargets(ctx context.Context, userID int) (targetCalculation, nutritionTargets, error) {
	if userID == 0 {
		return targetCalculation{}, nutritionTargets{}, errUnauthenticated
	}
	p, err := l.getProfile(ctx, userID)
	if err != nil {
		return targetCalculation{}, nutritionTargets{}, err
	}
	calc, err := computeTargets(p)
	if err != nil {
		return targetCalculation{}, nutritionTargets{}, err
	}
	t, err := l.saveTargets(ctx, calc.asTargets(userID))
	if err != nil {
		return targetCalculation{}, nutritionTargets{}, err
	}
	return calc, t, nil
}

func (l *ledger) saveTargets(ctx context.Context, t nutritionTargets) (nutritionTargets, error) {
	t.UpdatedAt = l.now().UTC()
	saved, err := l.store.putTargets(ctx, t)
	if err != nil {
		return nutritionTargets{}, storageErr("save targets", err)
	}
	l.emit(ledgerEvent{UserID: t.UserID, Kind: eventTargets})
	return saved, nil
}

/* ─── Profile ────────────────────────────────────────────────────────── */

func (l *ledger) getProfile(ctx context.Context, userID int) (userProfile, error) {
	if userID == 0 {
		return userProfile{}, errUnauthenticated
	}
	p, found, err := l.store.getProfile(ctx, userID)
	if err != nil {
		return userProfile{}, storageErr("load profile", err)
	}
	if !found {
		return userProfile{}, errProfileNotSet
	}
	return p, nil
}

// validateProfilePatch checks only the fields the client sent. A profile may
// be saved incomplete; computeTargets rejects it until it is complete.
func validateProfilePatch(body patchProfileRequest) error {
	if body.Sex != nil && !validSexes[*body.Sex] {
		return invalid("sex", "must be one of: male, female")
	}
	if body.Age != nil && (*body.Age <= 0 || *body.Age > maxPlausibleAge) {
		return invalid("age", "must be between 1 and %d", maxPlausibleAge)
	}
	if body.Height != nil && !(*body.Height > 0) {
		return invalid("height", "must be positive")
	}
	if body.Weight != nil && !(*body.Weight > 0) {
		return invalid("weight", "must be positive")
	}
	if body.Units != nil && !validUnits[*body.Units] {
		return invalid("units", "must be one of: imperial, metric")
	}
	// An unknown activity_level would silently disable auto targets later.
	if body.ActivityLevel != nil {
		if _, ok := activityMultipliers[*body.ActivityLevel]; !ok {
			return invalid("activity_level", "must be one of: sedentary, light, moderate, active, very_active")
		}
	}
	if body.Goal != nil {
		if _, ok := goalRules[*body.Goal]; !ok {
			return invalid("goal", "must be one of: cut, maintain, bulk")
		}
	}
	if body.Timezone != nil && *body.Timezone != "" {
		if _, err := time.LoadLocation(*body.Timezone); err != nil {
			return invalid("timezone", "unknown IANA timezone %q", *body.Timezone)
		}
	}
	return nil
}

// updateProfile applies a partial update. When auto_targets is on after the
// update and the profile is complete, targets are recomputed and stored; the
// calculation is returned in that case and nil otherwise.
func (l *ledger) updateProfile(ctx context.Context, userID int, body patchProfileRequest) (userProfile, *targetCalculation, error) {
	if userID == 0 {
		return userProfile{}, nil, errUnauthenticated
	}
	if err := validateProfilePatch(body); err != nil {
		return userProfile{}, nil, err
	}

	p, found, err := l.store.getProfile(ctx, userID)
	if err != nil {
		return userProfile{}, nil, storageErr("load profile", err)
	}
	if !found {
		p = userProfile{UserID: userID, Units: unitsImperial}
	}
	applyProfilePatch(&p, body)

	saved, err := l.store.putProfile(ctx, p)
	if err != nil {
		return userProfile{}, nil, storageErr("save profile", err)
	}
	l.emit(ledgerEvent{UserID: userID, Kind: eventProfile})

	calc, err := l.autoTargets(ctx, saved)
	if err != nil {
		return saved, nil, err
	}
	return saved, calc, nil
}

// autoTargets recomputes computed targets when the profile asks for it.
// Incomplete or degenerate profiles leave the stored targets untouched and
// are not an error; a failed save is.
func (l *ledger) autoTargets(ctx context.Context, p userProfile) (*targetCalculation, error) {
	if !p.AutoTargets {
		return nil, nil
	}
	calc, err := computeTargets(p)
	if err != nil {
		return nil, nil
	}
	if _, err := l.saveTargets(ctx, calc.asTargets(p.UserID)); err != nil {
		return nil, err
	}
	return &calc, nil
}

func applyProfilePatch(p *userProfile, body patchProfileRequest) {
	if body.Sex != nil {
		p.Sex = *body.Sex
	}
	if body.Age != nil {
		p.Age = *body.Age
	}
	if body.Height != nil {
		p.Height = *body.Height
	}
	if body.Weight != nil {
		p.Weight = *body.Weight
	}
	if body.Units != nil {
		p.Units = *body.Units
	}
	if body.ActivityLevel != nil {
		p.ActivityLevel = *body.ActivityLevel
	}
	if body.Goal != nil {
		p.Goal = *body.Goal
	}
	if body.Timezone != nil {
		p.Timezone = *body.Timezone
	}
	if body.AutoTargets != nil {
		p.AutoTargets = *body.AutoTargets
	}
}

/* ─── Weigh-ins ──────────────────────────────────────────────────────── */

// logWeight upserts a weigh-in. A weigh-in for today (user's timezone) also
// becomes the profile weight, which may recompute auto targets. If that
// follow-up fails the error is returned; repeating the call is safe since the
// weigh-in is an upsert.
func (l *ledger) logWeight(ctx context.Context, userID int, date string, weight float64) (weightEntry, error) {
	if userID == 0 {
		return weightEntry{}, errUnauthenticated
	}
	if !(weight > 0) || weight > 9999.9 {
		return weightEntry{}, invalid("weight", "must be between 0 and 9999.9")
	}
	today, err := l.resolveDate(ctx, userID, "")
	if err != nil {
		return weightEntry{}, err
	}
	if date == "" {
		date = today
	} else if _, err := time.Parse(dateLayout, date); err != nil {
		return weightEntry{}, invalid("date", "expected YYYY-MM-DD")
	}

	entry, err := l.store.upsertWeight(ctx, userID, date, weight)
	if err != nil {
		return weightEntry{}, storageErr("upsert weight", err)
	}
	if date == today {
		if _, _, err := l.updateProfile(ctx, userID, patchProfileRequest{Weight: &weight}); err != nil {
			return entry, err
		}
	}
	return entry, nil
}

func (l *ledger) weights(ctx context.Context, userID int, start, end string) ([]weightEntry, error) {
	if userID == 0 {
		return nil, errUnauthenticated
	}
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	entries, err := l.store.listWeights(ctx, userID, start, end)
	if err != nil {
		return nil, storageErr("list weights", err)
	}
	if entries == nil {
		entries = []weightEntry{}
	}
	return entries, nil
}
