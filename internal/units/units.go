// Package units provides shared constants and validation for length units
package units

// Unit constants
const (
	MM = "mm"
	CM = "cm"
	M  = "m"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MM, CM, M}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mm, cm, m"
}

// ConvertLength converts a length from millimetres to the target units.
// Volume geometry stores all lengths in millimetres.
func ConvertLength(lengthMM float64, targetUnits string) float64 {
	switch targetUnits {
	case CM:
		return lengthMM / 10.0
	case M:
		return lengthMM / 1000.0
	case MM:
		return lengthMM // no conversion needed
	default:
		return lengthMM // default to mm if unknown unit
	}
}
