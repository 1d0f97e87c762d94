package tasty

import "math"

// MonthlyTargetDTE is the days-to-expiration the monthly expiration is
// picked around.
const MonthlyTargetDTE = 45

// NearestMonthly returns the regular (monthly) expiration whose
// days-to-expiration is closest to target. Ties go to the earlier one.
func NearestMonthly(exps []Expiration, target int) (Expiration, bool) {
	var (
		best  Expiration
		found bool
		gap   = math.MaxInt
	)
	for _, e := range exps {
		if e.ExpirationType != "Regular" {
			continue
		}
		d := e.DaysToExpiration - target
		if d < 0 {
			d = -d
		}
		if d < gap {
			best, gap, found = e, d, true
		}
	}
	return best, found
}
