package types

import (
	"testing"
	"time"
)

func TestClockStrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC)
	c := NewClock(func() time.Time { return fixed })

	prev := c.Now()
	if !prev.Equal(fixed) {
		t.Fatalf("first reading: got %v, want %v", prev, fixed)
	}
	for i := 0; i < 5; i++ {
		next := c.Now()
		if !next.After(prev) {
			t.Fatalf("reading %d not after previous: %v <= %v", i, next, prev)
		}
		prev = next
	}
}

func TestClockBackwardsStep(t *testing.T) {
	readings := []time.Time{
		time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC),
	}
	i := 0
	c := NewClock(func() time.Time {
		r := readings[i]
		i++
		return r
	})

	a := c.Now()
	b := c.Now()
	if !b.After(a) {
		t.Errorf("expected %v after %v", b, a)
	}
}
