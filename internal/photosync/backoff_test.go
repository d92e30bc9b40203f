package photosync

import (
	"testing"
	"time"
)

func TestBackoffSchedule(t *testing.T) {
	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{8, 640 * time.Second},
		{10, 2560 * time.Second},
		// clamped to the one hour ceiling from here on
		{11, time.Hour},
		{12, time.Hour},
		{13, time.Hour},
		{50, time.Hour},
	}
	for _, c := range cases {
		if got := Backoff(c.retryCount); got != c.want {
			t.Errorf("Backoff(%d) = %v, want %v", c.retryCount, got, c.want)
		}
	}
}
