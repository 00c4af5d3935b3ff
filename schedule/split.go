/*
split.go - Splitting the monthly obligation across payment references

PURPOSE:
  Divides a monthly amount A across k reference slots: floor(A/k) for every
  slot but the last, which absorbs the remainder. Shares that floor to zero
  are dropped (fewer references than requested may result).

MINIMUM SHARE RULE:
  Every surviving share must reach the configured minimum (500 currency
  units by default). A violation rejects the whole split; the operator must
  choose fewer references or a larger amount.

SEE ALSO:
  - builder.go: Computes the monthly obligation and runs the split
*/
package schedule

// DefaultMinimumShare is the smallest viable per-reference amount, in whole
// currency units.
var DefaultMinimumShare = NewMoney(500)

// MaxReferenceCount bounds how many collection references one sale may carry.
const MaxReferenceCount = 5

// Splitter holds the split configuration.
type Splitter struct {
	Minimum Money
}

func NewSplitter() Splitter {
	return Splitter{Minimum: DefaultMinimumShare}
}

// MonthlyObligation computes floor((total - down) / months).
func MonthlyObligation(total, down Money, months int) (Money, error) {
	if months < 1 {
		return Money{}, ErrInvalidTerm
	}
	financed := total.Sub(down)
	if !financed.IsPositive() {
		return Money{}, ErrInvalidAmount
	}
	return financed.DivFloor(int64(months)), nil
}

// Split divides monthly across count slots. sum(shares) == monthly exactly;
// the last share absorbs the remainder. Zero shares are dropped before the
// minimum check.
func (s Splitter) Split(monthly Money, count int) ([]Money, error) {
	if count < 1 || count > MaxReferenceCount {
		return nil, ErrInvalidReferenceCount
	}
	if !monthly.IsPositive() {
		return nil, ErrInvalidAmount
	}

	base := monthly.DivFloor(int64(count))
	shares := make([]Money, 0, count)
	for i := 0; i < count-1; i++ {
		shares = append(shares, base)
	}
	shares = append(shares, monthly.Sub(base.Mul(int64(count-1))))

	// Drop zero shares (small amounts split many ways).
	surviving := shares[:0]
	for _, share := range shares {
		if !share.IsZero() {
			surviving = append(surviving, share)
		}
	}

	for i, share := range surviving {
		if share.LessThan(s.Minimum) {
			return nil, &ShareBelowMinimumError{Slot: i, Share: share, Minimum: s.Minimum}
		}
	}
	return surviving, nil
}
