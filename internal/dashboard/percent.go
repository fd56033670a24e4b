package dashboard

import "math"

// Percentage computes part/whole as a percentage rounded to 2 decimals.
// Returns 0 when whole is 0 so callers never divide by zero. Every
// percentage field on the dashboard goes through this one definition.
func Percentage(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(part/whole*100*100) / 100
}
