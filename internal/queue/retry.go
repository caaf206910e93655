package queue

import "time"

// RetryPolicy computes exponential backoff delays. It advises the
// scheduler; it never transitions items itself.
type RetryPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// ShouldRetry reports whether the item has attempts left and its retry
// clock, if set, has elapsed.
func (p RetryPolicy) ShouldRetry(it *Item, now time.Time) bool {
	if it.RetryCount >= it.MaxRetries {
		return false
	}
	if it.NextAttempt != nil && now.Before(*it.NextAttempt) {
		return false
	}
	return true
}

// Delay is min(base·2^retryCount, max).
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	d := p.Base
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

// Schedule sets the item's retry clock and increments its attempt
// counter. The caller transitions the status.
func (p RetryPolicy) Schedule(it *Item, now time.Time) time.Duration {
	delay := p.Delay(it.RetryCount)
	next := now.Add(delay)
	it.NextAttempt = &next
	it.RetryCount++
	return delay
}
