package main

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const dateLayout = "2006-01-02"

// DateOnly wraps time.Time to serialize as "YYYY-MM-DD" in JSON.
type DateOnly struct{ time.Time }

func (d DateOnly) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Time.Format(dateLayout) + `"`), nil
}

func (d *DateOnly) UnmarshalJSON(b []byte) error {
	t, err := time.Parse(`"`+dateLayout+`"`, string(b))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d DateOnly) String() string { return d.Time.Format(dateLayout) }

// ScanDate implements pgtype.DateScanner so pgx can scan PostgreSQL date
// columns (OID 1082) into DateOnly. NULL values zero the time.
func (d *DateOnly) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		d.Time = time.Time{}
		return nil
	}
	d.Time = v.Time
	return nil
}

/* ─── Domain structs ─────────────────────────────────────────────────── */

// user maps to the users table. Password is hidden from JSON responses.
type user struct {
	ID        int        `json:"id"         db:"id"`
	Username  string     `json:"username"   db:"username"`
	Email     string     `json:"email"      db:"email"`
	Password  string     `json:"-"          db:"password"`
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
}

// userProfile maps to user_profiles. Height and weight are stored in the
// units the user entered them in: cm/kg for "metric", total inches/lb for
// "imperial". Use heightCM, weightKG and weightLBS to normalise.
type userProfile struct {
	UserID        int        `json:"user_id"        db:"user_id"`
	Sex           string     `json:"sex"            db:"sex"`
	Age           int        `json:"age"            db:"age"`
	Height        float64    `json:"height"         db:"height"`
	Weight        float64    `json:"weight"         db:"weight"`
	Units         string     `json:"units"          db:"units"`
	ActivityLevel string     `json:"activity_level" db:"activity_level"`
	Goal          string     `json:"goal"           db:"goal"`
	Timezone      string     `json:"timezone"       db:"timezone"`
	AutoTargets   bool       `json:"auto_targets"   db:"auto_targets"`
	UpdatedAt     *time.Time `json:"updated_at"     db:"updated_at"`
}

// Target provenance values.
const (
	sourceComputed = "computed"
	sourceManual   = "manual"
)

// nutritionTargets maps to nutrition_targets. One row per user; every write
// overwrites it and bumps Version, whichever path (computed or manual) made it.
type nutritionTargets struct {
	UserID    int       `json:"user_id"    db:"user_id"`
	Calories  float64   `json:"calories"   db:"calories"`
	ProteinG  float64   `json:"protein_g"  db:"protein_g"`
	FatG      float64   `json:"fat_g"      db:"fat_g"`
	CarbsG    float64   `json:"carbs_g"    db:"carbs_g"`
	Source    string    `json:"source"     db:"source"`
	Version   int       `json:"version"    db:"version"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// foodLogEntry maps to food_log_entries. Macro fields are the snapshot for
// the whole logged amount (per-serving values × Servings). Seq is the store's
// insertion sequence and only breaks created_at ties.
type foodLogEntry struct {
	ID              string    `json:"id"                db:"id"`
	UserID          int       `json:"user_id"           db:"user_id"`
	Date            DateOnly  `json:"date"              db:"date"`
	Name            string    `json:"name"              db:"name"`
	Brand           *string   `json:"brand"             db:"brand"`
	GramsPerServing float64   `json:"grams_per_serving" db:"grams_per_serving"`
	Servings        float64   `json:"servings"          db:"servings"`
	Calories        float64   `json:"kcal"              db:"kcal"`
	ProteinG        float64   `json:"protein_g"         db:"protein_g"`
	CarbsG          float64   `json:"carbs_g"           db:"carbs_g"`
	FatG            float64   `json:"fat_g"             db:"fat_g"`
	Seq             int64     `json:"-"                 db:"seq"`
	CreatedAt       time.Time `json:"created_at"        db:"created_at"`
}

// macroTotals is the elementwise sum of a set of entries.
type macroTotals struct {
	Calories float64 `json:"kcal"`
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

// dailyLedger is one (user, day) view: entries newest-first, their totals,
// and the stored targets when the user has any.
type dailyLedger struct {
	Date      string            `json:"date"`
	Entries   []foodLogEntry    `json:"entries"`
	Totals    macroTotals       `json:"totals"`
	Targets   *nutritionTargets `json:"targets"`
	Remaining *macroTotals      `json:"remaining,omitempty"`
}

// dayTotalsRow is the shape of each row returned by the history GROUP BY query.
type dayTotalsRow struct {
	Date     DateOnly `json:"date"      db:"date"`
	Entries  int      `json:"entries"   db:"entries"`
	Calories float64  `json:"kcal"      db:"kcal"`
	ProteinG float64  `json:"protein_g" db:"protein_g"`
	CarbsG   float64  `json:"carbs_g"   db:"carbs_g"`
	FatG     float64  `json:"fat_g"     db:"fat_g"`
}

// weightEntry maps to weight_log. Weight is in the profile's units.
type weightEntry struct {
	ID        int        `json:"id"         db:"id"`
	UserID    int        `json:"user_id"    db:"user_id"`
	Date      DateOnly   `json:"date"       db:"date"`
	Weight    float64    `json:"weight"     db:"weight"`
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
}

// targetCalculation is the full output of the calculator pipeline.
type targetCalculation struct {
	BMR           float64      `json:"bmr"`
	TDEE          float64      `json:"tdee"`
	CalorieTarget float64      `json:"calorie_target"`
	Targets       macroTargets `json:"targets"`
	CarbsClamped  bool         `json:"carbs_clamped"`
}

// macroTargets holds whole-number targets as produced by the allocator.
type macroTargets struct {
	Calories int `json:"calories"`
	ProteinG int `json:"protein_g"`
	FatG     int `json:"fat_g"`
	CarbsG   int `json:"carbs_g"`
}

/* ─── Requests ───────────────────────────────────────────────────────── */

// createFoodLogEntryRequest is the request body for POST /api/ledger/entries.
// Macro fields are per serving; Servings defaults to 1.
type createFoodLogEntryRequest struct {
	Date            string   `json:"date"`
	Name            string   `json:"name"`
	Brand           *string  `json:"brand"`
	GramsPerServing float64  `json:"grams_per_serving"`
	Servings        *float64 `json:"servings"`
	Calories        float64  `json:"kcal"`
	ProteinG        float64  `json:"protein_g"`
	CarbsG          float64  `json:"carbs_g"`
	FatG            float64  `json:"fat_g"`
}

// patchProfileRequest is the request body for PATCH /api/profile.
// All fields are pointers; only non-nil fields are applied.
type patchProfileRequest struct {
	Sex           *string  `json:"sex"`
	Age           *int     `json:"age"`
	Height        *float64 `json:"height"`
	Weight        *float64 `json:"weight"`
	Units         *string  `json:"units"`
	ActivityLevel *string  `json:"activity_level"`
	Goal          *string  `json:"goal"`
	Timezone      *string  `json:"timezone"`
	AutoTargets   *bool    `json:"auto_targets"`
}

// putTargetsRequest is the request body for PUT /api/targets (manual entry).
type putTargetsRequest struct {
	Calories *float64 `json:"calories"`
	ProteinG *float64 `json:"protein_g"`
	FatG     *float64 `json:"fat_g"`
	CarbsG   *float64 `json:"carbs_g"`
}

// calculateRequest is the request body for POST /api/calculate. Height is
// either Height in the request's units or HeightFt/HeightIn.
type calculateRequest struct {
	Sex           string   `json:"sex"`
	Age           int      `json:"age"`
	Height        float64  `json:"height"`
	HeightFt      *float64 `json:"height_ft"`
	HeightIn      *float64 `json:"height_in"`
	Weight        float64  `json:"weight"`
	Units         string   `json:"units"`
	ActivityLevel string   `json:"activity_level"`
	Goal          string   `json:"goal"`
}
