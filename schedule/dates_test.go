package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestDueDates_MonthEndClamping(t *testing.T) {
	// GIVEN: start 2025-01, month-end policy, 2 months
	// WHEN: generating due dates
	// THEN: 2025-02-28 (Feb clamps) then 2025-03-30 (strictly the 30th)

	dates, err := DueDates(NewMonth(2025, time.January), DayRule{Kind: LastOfMonth}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dates) != 2 {
		t.Fatalf("expected 2 dates, got %d", len(dates))
	}
	if dates[0].String() != "2025-02-28" {
		t.Errorf("expected 2025-02-28, got %s", dates[0])
	}
	if dates[1].String() != "2025-03-30" {
		t.Errorf("expected 2025-03-30, got %s", dates[1])
	}
}

func TestDueDates_FirstInstallmentNeverInStartMonth(t *testing.T) {
	dates, err := DueDates(NewMonth(2025, time.June), DayRule{Kind: FirstOfMonth}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dates) != 1 || dates[0].String() != "2025-07-01" {
		t.Errorf("expected single date 2025-07-01, got %v", dates)
	}
}

func TestDueDates_OnePerMonthThroughTerm(t *testing.T) {
	dates, err := DueDates(NewMonth(2024, time.November), DayRule{Kind: LastOfMonth}, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"2024-12-30",
		"2025-01-30",
		"2025-02-28",
		"2025-03-30",
		"2025-04-30",
		"2025-05-30",
	}
	for i, w := range want {
		if dates[i].String() != w {
			t.Errorf("date %d: expected %s, got %s", i, w, dates[i])
		}
	}
}

func TestDueDates_RejectsZeroTerm(t *testing.T) {
	_, err := DueDates(NewMonth(2025, time.January), DayRule{Kind: FirstOfMonth}, 0)
	if !errors.Is(err, ErrInvalidTerm) {
		t.Errorf("expected ErrInvalidTerm, got %v", err)
	}
}

func TestValidateStart_RejectsPastStart(t *testing.T) {
	dates := []Date{NewDate(2025, time.February, 28)}

	err := ValidateStart(dates, NewDate(2025, time.March, 1))
	if !errors.Is(err, ErrStartInPast) {
		t.Fatalf("expected ErrStartInPast, got %v", err)
	}
	var detail *StartInPastError
	if !errors.As(err, &detail) {
		t.Fatal("expected StartInPastError detail")
	}
	if detail.First.String() != "2025-02-28" {
		t.Errorf("expected offending date in error, got %s", detail.First)
	}

	// Same-day start is allowed; only strictly-before is rejected.
	if err := ValidateStart(dates, NewDate(2025, time.February, 28)); err != nil {
		t.Errorf("same-day start should pass, got %v", err)
	}
	if err := ValidateStart(dates, NewDate(2025, time.January, 10)); err != nil {
		t.Errorf("future start should pass, got %v", err)
	}
}
