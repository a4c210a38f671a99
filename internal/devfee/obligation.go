package devfee

import "math"

// Obligation computes how many additional dev-fee solutions are needed
// given the current user solution count, existing dev-fee solution
// count, and the configured ratio R (as a fraction, e.g. 1/17). The
// ratio is a single configured parameter, never a hard-coded constant.
func Obligation(userSolutions, devFeeSolutions int64, ratio float64) int64 {
	expected := int64(math.Floor(float64(userSolutions) * ratio))
	needed := expected - devFeeSolutions
	if needed < 0 {
		return 0
	}
	return needed
}
