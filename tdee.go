package main

import (
	"math"
)

// activityMultipliers maps activity level strings to their TDEE multiplier.
// This is the single source of truth for valid activity levels; also used for
// input validation in patchProfile.
var activityMultipliers = map[string]float64{
	"sedentary":   1.2,
	"light":       1.375,
	"moderate":    1.55,
	"active":      1.725,
	"very_active": 1.9,
}

// goalRule is the calorie shift and protein ratio for one goal.
type goalRule struct {
	calorieDelta float64
	proteinPerLb float64
}

var goalRules = map[string]goalRule{
	"cut":      {calorieDelta: -500, proteinPerLb: 1.0},
	"maintain": {calorieDelta: 0, proteinPerLb: 0.8},
	"bulk":     {calorieDelta: 300, proteinPerLb: 1.0},
}

var validSexes = map[string]bool{"male": true, "female": true}

const (
	fatShareOfCalories = 0.28
	kcalPerGramProtein = 4
	kcalPerGramCarbs   = 4
	kcalPerGramFat     = 9
	maxPlausibleAge    = 130
)

// validateProfile rejects biometrics the calculator can't use. It runs before
// any arithmetic; the calculator itself does no clamping of inputs.
func validateProfile(p userProfile) error {
	if !validSexes[p.Sex] {
		return invalid("sex", "must be one of: male, female")
	}
	if p.Age <= 0 || p.Age > maxPlausibleAge {
		return invalid("age", "must be between 1 and %d", maxPlausibleAge)
	}
	if !validUnits[p.Units] {
		return invalid("units", "must be one of: imperial, metric")
	}
	if p.Height <= 0 || math.IsNaN(p.Height) || math.IsInf(p.Height, 0) {
		return invalid("height", "must be positive")
	}
	if p.Weight <= 0 || math.IsNaN(p.Weight) || math.IsInf(p.Weight, 0) {
		return invalid("weight", "must be positive")
	}
	if _, ok := activityMultipliers[p.ActivityLevel]; !ok {
		return invalid("activity_level", "must be one of: sedentary, light, moderate, active, very_active")
	}
	if _, ok := goalRules[p.Goal]; !ok {
		return invalid("goal", "must be one of: cut, maintain, bulk")
	}
	return nil
}

// computeBMR is Mifflin-St Jeor: different constant for male vs female.
func computeBMR(sex string, age int, weightKG, heightCM float64) float64 {
	bmr := 10*weightKG + 6.25*heightCM - 5*float64(age)
	if sex == "male" {
		return bmr + 5
	}
	return bmr - 161
}

// computeTDEE scales BMR by the activity multiplier.
func computeTDEE(bmr float64, activityLevel string) (float64, error) {
	mult, ok := activityMultipliers[activityLevel]
	if !ok {
		return 0, invalid("activity_level", "unknown activity level %q", activityLevel)
	}
	return bmr * mult, nil
}

// adjustForGoal shifts TDEE into a daily calorie target. The result is not
// clamped; callers treat a non-positive target as degenerate.
func adjustForGoal(tdee float64, goal string) (float64, error) {
	rule, ok := goalRules[goal]
	if !ok {
		return 0, invalid("goal", "unknown goal %q", goal)
	}
	return tdee + rule.calorieDelta, nil
}

// allocateMacros splits a calorie target into gram targets. Protein is set per
// pound of body weight, fat is a fixed share of calories and carbs take what is
// left. When protein and fat already exceed the target, carbs are clamped to
// zero and clamped is reported true.
func allocateMacros(calorieTarget, weightLBS float64, goal string) (m macroTargets, clamped bool, err error) {
	rule, ok := goalRules[goal]
	if !ok {
		return macroTargets{}, false, invalid("goal", "unknown goal %q", goal)
	}

	proteinG := math.Round(weightLBS * rule.proteinPerLb)
	fatKcal := calorieTarget * fatShareOfCalories
	fatG := math.Round(fatKcal / kcalPerGramFat)
	carbKcal := calorieTarget - proteinG*kcalPerGramProtein - fatKcal
	carbsG := math.Round(carbKcal / kcalPerGramCarbs)
	if carbsG < 0 {
		carbsG = 0
		clamped = true
	}

	return macroTargets{
		Calories: int(math.Round(calorieTarget)),
		ProteinG: int(proteinG),
		FatG:     int(fatG),
		CarbsG:   int(carbsG),
	}, clamped, nil
}

// computeTargets runs the full pipeline for a profile: validate, BMR, TDEE,
// goal adjustment, macro split. Returns errDegenerateTarget when the goal
// pushes the calorie target to zero or below.
func computeTargets(p userProfile) (targetCalculation, error) {
	if err := validateProfile(p); err != nil {
		return targetCalculation{}, err
	}

	bmr := computeBMR(p.Sex, p.Age, p.weightKG(), p.heightCM())
	tdee, err := computeTDEE(bmr, p.ActivityLevel)
	if err != nil {
		return targetCalculation{}, err
	}
	target, err := adjustForGoal(tdee, p.Goal)
	if err != nil {
		return targetCalculation{}, err
	}
	if target <= 0 {
		return targetCalculation{}, errDegenerateTarget
	}

	macros, clamped, err := allocateMacros(target, p.weightLBS(), p.Goal)
	if err != nil {
		return targetCalculation{}, err
	}
	return targetCalculation{
		BMR:           bmr,
		TDEE:          tdee,
		CalorieTarget: target,
		Targets:       macros,
		CarbsClamped:  clamped,
	}, nil
}

// asTargets converts a calculation into the stored targets record.
func (c targetCalculation) asTargets(userID int) nutritionTargets {
	return nutritionTargets{
		UserID:   userID,
		Calories: float64(c.Targets.Calories),
		ProteinG: float64(c.Targets.ProteinG),
		FatG:     float64(c.Targets.FatG),
		CarbsG:   float64(c.Targets.CarbsG),
		Source:   sourceComputed,
	}
}
