package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/grabby/grabbyd/internal/event"
)

// The rules engine never mutates items directly: it publishes rule.*
// events and the scheduler applies the ones it owns here. Handlers run
// on bus dispatcher goroutines, so calling back into the scheduler is
// safe — they take the lock like any other caller.

// BindRuleEvents subscribes the scheduler to rule action events.
func (s *Scheduler) BindRuleEvents(bus *event.Bus) {
	bind := func(typ event.Type, apply func(ctx context.Context, itemID string, data event.Data) error) {
		bus.Subscribe(typ, func(ctx context.Context, ev event.Event) {
			itemID := ev.Data.Str("item_id")
			if itemID == "" {
				return
			}
			if err := apply(ctx, itemID, ev.Data); err != nil {
				s.logger.Debug().Err(err).
					Str("event_type", string(ev.Type)).
					Str("item_id", itemID).
					Msg("rule action not applied")
			}
		})
	}

	bind(event.RulePriorityChanged, func(ctx context.Context, id string, d event.Data) error {
		return s.SetPriority(ctx, id, ParsePriority(d.Str("priority")))
	})
	bind(event.RuleBlocked, func(ctx context.Context, id string, _ event.Data) error {
		return s.Cancel(ctx, id)
	})
	bind(event.RuleDelayed, func(ctx context.Context, id string, d event.Data) error {
		minutes, ok := d.Num("minutes")
		if !ok || minutes <= 0 {
			return fmt.Errorf("delay event without minutes")
		}
		return s.Delay(ctx, id, time.Duration(minutes)*time.Minute)
	})
	bind(event.RuleRateLimitChanged, func(ctx context.Context, id string, d event.Data) error {
		bps, ok := d.Num("rate_bps")
		if !ok {
			return fmt.Errorf("rate limit event without rate_bps")
		}
		return s.SetBandwidthLimit(ctx, id, int64(bps))
	})
	bind(event.RuleQualityChanged, func(ctx context.Context, id string, d event.Data) error {
		return s.mutateOptions(ctx, id, func(o *Options) { o.Quality = d.Str("quality") })
	})
	bind(event.RuleProfileChanged, func(ctx context.Context, id string, d event.Data) error {
		return s.mutateOptions(ctx, id, func(o *Options) { o.Profile = d.Str("profile") })
	})
	bind(event.RuleOutputPathChanged, func(ctx context.Context, id string, d event.Data) error {
		return s.mutateOptions(ctx, id, func(o *Options) { o.OutputDir = d.Str("path") })
	})
	bind(event.RuleExtractAudio, func(ctx context.Context, id string, _ event.Data) error {
		return s.mutateOptions(ctx, id, func(o *Options) { o.ExtractAudio = true })
	})
	bind(event.RuleAutoOrganize, func(ctx context.Context, id string, d event.Data) error {
		return s.mutateOptions(ctx, id, func(o *Options) { o.OrganizePattern = d.Str("pattern") })
	})
}

// SetPriority reorders a not-yet-running item.
func (s *Scheduler) SetPriority(ctx context.Context, itemID string, priority Priority) error {
	s.mu.Lock()
	it, ok := s.items[itemID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if it.Status.Terminal() || it.Status == StatusDownloading || it.Priority == priority {
		s.mu.Unlock()
		return nil
	}
	it.Priority = priority
	if it.Status == StatusPending || it.Status == StatusRetrying {
		// Re-push so the heap sees the new ordering; the old entry goes
		// stale and is skipped on pop.
		clone := *it
		s.items[itemID] = &clone
		s.pending.push(&clone)
		it = &clone
	}
	evs := []event.Event{event.New(event.QueueStatusChanged, "scheduler", s.itemData(it))}
	s.persist(it)
	s.publish(ctx, evs)
	s.mu.Unlock()
	s.signalWake()
	return nil
}

// Delay pushes a pending item's eligibility into the future.
func (s *Scheduler) Delay(ctx context.Context, itemID string, d time.Duration) error {
	s.mu.Lock()
	it, ok := s.items[itemID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if it.Status != StatusPending && it.Status != StatusRetrying {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot delay %s item", ErrInvalidTransition, it.Status)
	}
	next := time.Now().Add(d)
	it.NextAttempt = &next
	it.Status = StatusRetrying
	evs := []event.Event{event.New(event.QueueStatusChanged, "scheduler", s.itemData(it))}
	s.persist(it)
	s.publish(ctx, evs)
	s.mu.Unlock()
	time.AfterFunc(d+10*time.Millisecond, s.signalWake)
	return nil
}

// SetBandwidthLimit changes the item's reservation target for its next
// admission; a running download keeps its current reservation.
func (s *Scheduler) SetBandwidthLimit(ctx context.Context, itemID string, bps int64) error {
	s.mu.Lock()
	it, ok := s.items[itemID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	it.BandwidthLimit = bps
	s.persist(it)
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) mutateOptions(_ context.Context, itemID string, fn func(*Options)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return ErrNotFound
	}
	if it.Status.Terminal() || it.Status == StatusDownloading {
		return nil
	}
	fn(&it.Options)
	s.persist(it)
	return nil
}

// RecordEngine notes which engine served the item, for status and
// persistence.
func (s *Scheduler) RecordEngine(itemID, engine string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok || it.Engine == engine {
		return
	}
	it.Engine = engine
	s.persist(it)
}
