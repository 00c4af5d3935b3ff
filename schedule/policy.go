/*
policy.go - Withdrawal-day policies and target-day resolution

PURPOSE:
  A ContractPolicy names the rule fixing which day of the month an
  installment is due. The engine resolves a policy against a concrete month
  to get an integer day, clamped to the month's length.

THE 30TH RULE:
  The month-end policy collects on the 30th, strictly - never the true
  calendar last day. A 31-day month still collects on the 30th; only months
  shorter than 30 days clamp downward (February -> 28/29).

INFERENCE FALLBACK:
  When a sale under edit has lost its policy link, the stored due day is
  used to infer an equivalent rule: day >= 15 reads as month-end, else as
  first-of-month. This heuristic exists only for the edit path and is never
  consulted at original creation time.

SEE ALSO:
  - dates.go: Uses the resolved day to emit due dates
  - builder.go: Resolves the policy once per build
*/
package schedule

import "fmt"

// =============================================================================
// DAY RULES
// =============================================================================

type DayRuleKind string

const (
	FirstOfMonth DayRuleKind = "first_of_month"
	LastOfMonth  DayRuleKind = "last_of_month"
	ExplicitDay  DayRuleKind = "explicit_day"
)

// DayRule fixes the target collection day within a month.
type DayRule struct {
	Kind DayRuleKind
	Day  int // only for ExplicitDay
}

// monthEndDay is the collection day for LastOfMonth. Never the calendar
// last day of 31-day months.
const monthEndDay = 30

// inferenceCutoff is the stored-day threshold above which a policy-less sale
// reads as month-end. Arbitrary by construction; kept fixed.
const inferenceCutoff = 15

// ResolveDay returns the due day for the rule in the given month, clamped
// downward when the month is shorter than the target.
func (r DayRule) ResolveDay(m Month) int {
	switch r.Kind {
	case FirstOfMonth:
		return 1
	case LastOfMonth:
		return clampDay(monthEndDay, m)
	case ExplicitDay:
		return clampDay(r.Day, m)
	default:
		return 1
	}
}

func clampDay(day int, m Month) int {
	if day < 1 {
		return 1
	}
	if last := m.DaysIn(); day > last {
		return last
	}
	return day
}

// InferRuleFromDay reconstructs a rule from a stored due day. FALLBACK ONLY:
// used when editing a sale whose policy cannot be determined.
func InferRuleFromDay(day int) DayRule {
	if day >= inferenceCutoff {
		return DayRule{Kind: LastOfMonth}
	}
	return DayRule{Kind: FirstOfMonth}
}

// =============================================================================
// CONTRACT POLICY - Named withdrawal-day rule (immutable reference data)
// =============================================================================

type ContractPolicy struct {
	ID          PolicyID
	DisplayName string
	Rule        DayRule
}

func (p ContractPolicy) Validate() error {
	switch p.Rule.Kind {
	case FirstOfMonth, LastOfMonth:
		return nil
	case ExplicitDay:
		if p.Rule.Day < 1 || p.Rule.Day > 31 {
			return fmt.Errorf("policy %s: explicit day %d out of range", p.ID, p.Rule.Day)
		}
		return nil
	default:
		return fmt.Errorf("policy %s: unknown day rule %q", p.ID, p.Rule.Kind)
	}
}

// StandardPolicies returns the built-in withdrawal policies. Administrators
// may add explicit-day policies beyond these.
func StandardPolicies() []ContractPolicy {
	return []ContractPolicy{
		{ID: "first-of-month", DisplayName: "Collection on the 1st", Rule: DayRule{Kind: FirstOfMonth}},
		{ID: "end-of-month", DisplayName: "Collection on the 30th", Rule: DayRule{Kind: LastOfMonth}},
	}
}

// PolicyByID looks up a policy in a set. Returns false if absent.
func PolicyByID(policies []ContractPolicy, id PolicyID) (ContractPolicy, bool) {
	for _, p := range policies {
		if p.ID == id {
			return p, true
		}
	}
	return ContractPolicy{}, false
}
