package booking

import (
	"errors"
	"testing"
)

func TestQuoteIsExactToTheCent(t *testing.T) {
	r := mustRange(t, "2024-06-01", "2024-06-04")

	// $500/day × 3 days = $1500.00
	total, err := Quote(r, 50000)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if total != 150000 {
		t.Fatalf("Quote = %d cents, want 150000", total)
	}
	if got := FormatAmountCents(total); got != "1500.00" {
		t.Fatalf("FormatAmountCents = %s, want 1500.00", got)
	}
}

func TestQuoteRejectsNonPositiveRate(t *testing.T) {
	r := mustRange(t, "2024-06-01", "2024-06-02")

	if _, err := Quote(r, 0); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate for zero rate, got %v", err)
	}
	if _, err := Quote(r, -100); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate for negative rate, got %v", err)
	}
}

func TestParseAmountCentsRoundHalfUp(t *testing.T) {
	cases := map[string]int64{
		"500":      50000,
		"500.00":   50000,
		"499.95":   49995,
		"499.955":  49996, // 半进位
		"499.954":  49995, // 不足半分舍去
		"0.005":    1,
		"0.004":    0,
		"0":        0,
		" 12.5 ":   1250,
		"-19.995":  -2000,
		"100.9999": 10100,
	}
	for in, want := range cases {
		got, err := ParseAmountCents(in)
		if err != nil {
			t.Fatalf("ParseAmountCents(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseAmountCents(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseAmountCentsRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "12.3x", "1,000"} {
		if _, err := ParseAmountCents(in); err == nil {
			t.Fatalf("ParseAmountCents(%q): expected error", in)
		}
	}
}

func TestFormatAmountCents(t *testing.T) {
	cases := map[int64]string{
		150000: "1500.00",
		1:      "0.01",
		-1250:  "-12.50",
		99:     "0.99",
	}
	for in, want := range cases {
		if got := FormatAmountCents(in); got != want {
			t.Fatalf("FormatAmountCents(%d) = %s, want %s", in, got, want)
		}
	}
}
