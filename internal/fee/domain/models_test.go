package domain

import (
	"math"
	"testing"
)

func TestComputeFee(t *testing.T) {
	cases := []struct {
		name   string
		amount int64
		bps    int64
		want   int64
	}{
		{name: "half percent", amount: 1000, bps: 50, want: 5},
		{name: "rounds down", amount: 199, bps: 50, want: 0},
		{name: "zero bps", amount: 1000, bps: 0, want: 0},
		{name: "max bps stays below amount", amount: 1000, bps: 9999, want: 999},
		{name: "no overflow", amount: math.MaxInt64, bps: 9999, want: (math.MaxInt64/10000)*9999 + (math.MaxInt64%10000)*9999/10000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeFee(tc.amount, tc.bps)
			if got != tc.want {
				t.Fatalf("expected fee %d, got %d", tc.want, got)
			}
			if tc.amount > 0 && got >= tc.amount {
				t.Fatalf("fee %d must stay below amount %d", got, tc.amount)
			}
		})
	}
}
