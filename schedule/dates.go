/*
dates.go - Due-date generation with calendar clamping

PURPOSE:
  Produces the ordered sequence of monthly due dates for a schedule. The
  first installment is never due in the sale's own month: dates run from
  start+1 through start+N.

CLAMPING:
  The target day is resolved per month (policy.go) and clamped to the
  month's length, so a month-end policy yields Feb 28 but Mar 30.

VALIDATION:
  A schedule must never start in the past. The as-of date is an explicit
  parameter so callers (and tests) control the clock.
*/
package schedule

// DueDates returns months dates for the rule, one per month, starting the
// month after start.
func DueDates(start Month, rule DayRule, months int) ([]Date, error) {
	if months < 1 {
		return nil, ErrInvalidTerm
	}
	dates := make([]Date, 0, months)
	for i := 1; i <= months; i++ {
		m := start.AddMonths(i)
		dates = append(dates, m.Date(rule.ResolveDay(m)))
	}
	return dates, nil
}

// ValidateStart rejects a schedule whose first due date is strictly before
// asOf.
func ValidateStart(dates []Date, asOf Date) error {
	if len(dates) == 0 {
		return ErrInvalidTerm
	}
	if dates[0].Before(asOf) {
		return &StartInPastError{First: dates[0], AsOf: asOf}
	}
	return nil
}
