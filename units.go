package main

const (
	kgPerLb = 0.45359237
	cmPerIn = 2.54
)

// Unit systems a profile can be stored in.
const (
	unitsImperial = "imperial"
	unitsMetric   = "metric"
)

var validUnits = map[string]bool{
	unitsImperial: true,
	unitsMetric:   true,
}

func lbsToKg(lb float64) float64 { return lb * kgPerLb }

func kgToLbs(kg float64) float64 { return kg / kgPerLb }

func inchesToCM(in float64) float64 { return in * cmPerIn }

func cmToInches(cm float64) float64 { return cm / cmPerIn }

// feetInchesToCM converts a height like 5'10" to centimeters.
func feetInchesToCM(feet, inches float64) float64 {
	return inchesToCM(feet*12 + inches)
}

// heightFromFeetInches converts a feet/inches height into the form a profile
// stores for units: centimeters for metric, total inches for imperial.
func heightFromFeetInches(units string, feet, inches float64) (float64, error) {
	if feet < 0 || inches < 0 || feet+inches <= 0 {
		return 0, invalid("height", "feet and inches must be non-negative and not both zero")
	}
	cm := feetInchesToCM(feet, inches)
	if units == unitsMetric {
		return cm, nil
	}
	return cmToInches(cm), nil
}

// weightKG returns the profile weight in kilograms regardless of stored units.
func (p userProfile) weightKG() float64 {
	if p.Units == unitsMetric {
		return p.Weight
	}
	return lbsToKg(p.Weight)
}

// weightLBS returns the profile weight in pounds; the macro allocator works per lb.
func (p userProfile) weightLBS() float64 {
	if p.Units == unitsMetric {
		return kgToLbs(p.Weight)
	}
	return p.Weight
}

// heightCM returns the profile height in centimeters. Imperial heights are
// stored as total inches.
func (p userProfile) heightCM() float64 {
	if p.Units == unitsMetric {
		return p.Height
	}
	return inchesToCM(p.Height)
}
