package infra

import (
	"testing"
	"time"
)

func TestCalculateBackoff(t *testing.T) {
	cases := []struct {
		name  string
		retry int
		want  time.Duration
	}{
		{"First Retry", 0, 250 * time.Millisecond},
		{"Second Retry", 1, 500 * time.Millisecond},
		{"Third Retry", 2, time.Second},
		{"Capped", 10, maxDelay},
		{"Huge Count", 63, maxDelay},
		{"Negative", -1, baseDelay},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CalculateBackoff(tc.retry); got != tc.want {
				t.Errorf("CalculateBackoff(%d) = %s, want %s", tc.retry, got, tc.want)
			}
		})
	}
}
