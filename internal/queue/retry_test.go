package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelayDoubles(t *testing.T) {
	p := RetryPolicy{Base: time.Second, Max: 300 * time.Second}
	assert.Equal(t, 1*time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 256*time.Second, p.Delay(8))
	assert.Equal(t, 300*time.Second, p.Delay(9))
	assert.Equal(t, 300*time.Second, p.Delay(30))
}

func TestShouldRetryRespectsCap(t *testing.T) {
	p := RetryPolicy{Base: time.Second, Max: time.Minute}
	now := time.Now()

	it := &Item{RetryCount: 2, MaxRetries: 3}
	assert.True(t, p.ShouldRetry(it, now))

	it.RetryCount = 3
	assert.False(t, p.ShouldRetry(it, now))
}

func TestShouldRetryRespectsClock(t *testing.T) {
	p := RetryPolicy{Base: time.Second, Max: time.Minute}
	now := time.Now()
	future := now.Add(time.Minute)

	it := &Item{RetryCount: 0, MaxRetries: 3, NextAttempt: &future}
	assert.False(t, p.ShouldRetry(it, now))
	assert.True(t, p.ShouldRetry(it, future.Add(time.Second)))
}

func TestScheduleAdvancesClockAndCounter(t *testing.T) {
	p := RetryPolicy{Base: time.Second, Max: time.Minute}
	now := time.Now()
	it := &Item{MaxRetries: 3}

	d := p.Schedule(it, now)
	assert.Equal(t, time.Second, d)
	assert.Equal(t, 1, it.RetryCount)
	assert.Equal(t, now.Add(time.Second), *it.NextAttempt)

	d = p.Schedule(it, now)
	assert.Equal(t, 2*time.Second, d)
	assert.Equal(t, 2, it.RetryCount)
}
