package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestToMinorUnits(t *testing.T) {
	cases := map[string]int64{
		"30":     3000,
		"0.01":   1,
		"12.345": 1235,
		"99.994": 9999,
		"0":      0,
	}
	for in, want := range cases {
		got := ToMinorUnits(decimal.RequireFromString(in))
		if got != want {
			t.Fatalf("ToMinorUnits(%s): expected %d, got %d", in, want, got)
		}
	}
}

func TestFromMinorUnits(t *testing.T) {
	got := FromMinorUnits(1250)
	if !got.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("expected 12.50, got %s", got)
	}
}

func TestRound(t *testing.T) {
	got := Round(decimal.RequireFromString("7.125"))
	if !got.Equal(decimal.RequireFromString("7.13")) {
		t.Fatalf("expected 7.13, got %s", got)
	}
}
