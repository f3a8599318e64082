package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStepClock_StartsAtEpoch(t *testing.T) {
	clock := NewStepClock(time.Time{}, 0)
	assert.Equal(t, DefaultEpoch, clock.Now())
}

func TestStepClock_AdvancesByStep(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewStepClock(start, time.Minute)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start.Add(time.Minute), clock.Now())
	assert.Equal(t, start.Add(2*time.Minute), clock.Peek())
	assert.Equal(t, start.Add(2*time.Minute), clock.Now())
}

func TestStepClock_AdvanceAndReset(t *testing.T) {
	clock := NewStepClock(time.Time{}, time.Second)

	clock.Advance(time.Hour)
	assert.Equal(t, DefaultEpoch.Add(time.Hour), clock.Now())

	clock.Reset()
	assert.Equal(t, DefaultEpoch, clock.Now())
}

func TestStepClock_ThreadSafe(t *testing.T) {
	clock := NewStepClock(time.Time{}, time.Second)

	const goroutines = 50
	var wg sync.WaitGroup
	seen := make(chan time.Time, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- clock.Now()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[time.Time]bool)
	for ts := range seen {
		unique[ts] = true
	}
	assert.Len(t, unique, goroutines, "every read must return a distinct instant")
}
