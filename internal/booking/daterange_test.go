package booking

import (
	"errors"
	"testing"
	"time"
)

func mustRange(t *testing.T, pickup, ret string) DateRange {
	t.Helper()
	r, err := ParseDateRange(pickup, ret)
	if err != nil {
		t.Fatalf("ParseDateRange(%s, %s): %v", pickup, ret, err)
	}
	return r
}

func TestNewDateRangeRejectsNonPositive(t *testing.T) {
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	if _, err := NewDateRange(day, day); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for equal dates, got %v", err)
	}
	if _, err := NewDateRange(day, day.AddDate(0, 0, -1)); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for inverted dates, got %v", err)
	}
}

func TestParseDateRangeRejectsBadInput(t *testing.T) {
	if _, err := ParseDateRange("2024-06-01", "not-a-date"); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for bad return date, got %v", err)
	}
	if _, err := ParseDateRange("", "2024-06-03"); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange for empty pickup date, got %v", err)
	}
}

func TestDaysIsAtLeastOne(t *testing.T) {
	cases := map[string]struct {
		pickup, ret string
		want        int
	}{
		"one day":    {"2024-06-01", "2024-06-02", 1},
		"three days": {"2024-06-01", "2024-06-04", 3},
		"month span": {"2024-06-28", "2024-07-02", 4},
	}
	for name, tc := range cases {
		r := mustRange(t, tc.pickup, tc.ret)
		if got := r.Days(); got != tc.want {
			t.Fatalf("%s: Days() = %d, want %d", name, got, tc.want)
		}
		if r.Days() < 1 {
			t.Fatalf("%s: duration must be >= 1 day", name)
		}
	}
}

func TestOverlapsHalfOpen(t *testing.T) {
	base := mustRange(t, "2024-06-01", "2024-06-04")

	// 还车日 == 取车日：当天周转，不算重叠
	backToBack := mustRange(t, "2024-06-04", "2024-06-06")
	if base.Overlaps(backToBack) || backToBack.Overlaps(base) {
		t.Fatalf("back-to-back ranges must not overlap")
	}

	// 部分重叠
	partial := mustRange(t, "2024-06-03", "2024-06-05")
	if !base.Overlaps(partial) || !partial.Overlaps(base) {
		t.Fatalf("partially overlapping ranges must overlap")
	}

	// 完全包含
	inner := mustRange(t, "2024-06-02", "2024-06-03")
	if !base.Overlaps(inner) || !inner.Overlaps(base) {
		t.Fatalf("contained range must overlap")
	}

	// 完全分离
	apart := mustRange(t, "2024-06-10", "2024-06-12")
	if base.Overlaps(apart) || apart.Overlaps(base) {
		t.Fatalf("disjoint ranges must not overlap")
	}

	// 自身重叠
	if !base.Overlaps(base) {
		t.Fatalf("range must overlap itself")
	}
}

func TestNewDateRangeNormalizesToMidnightUTC(t *testing.T) {
	loc := time.FixedZone("X", 3*3600)
	pickup := time.Date(2024, 6, 1, 15, 30, 0, 0, loc)
	ret := time.Date(2024, 6, 3, 9, 0, 0, 0, loc)

	r, err := NewDateRange(pickup, ret)
	if err != nil {
		t.Fatalf("NewDateRange: %v", err)
	}
	if r.Pickup.Hour() != 0 || r.Pickup.Location() != time.UTC {
		t.Fatalf("pickup not midnight-aligned UTC: %v", r.Pickup)
	}
	if r.Days() != 2 {
		t.Fatalf("Days() = %d, want 2", r.Days())
	}
}
