package rules

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grabby/grabbyd/internal/event"
	"github.com/grabby/grabbyd/internal/queue"
)

const (
	eventuallyWait = 2 * time.Second
	eventuallyTick = 10 * time.Millisecond
)

type stubAmbient struct {
	snap queue.Snapshot
}

func (s stubAmbient) Status() queue.Snapshot { return s.snap }

// actionRecorder collects rule.* events published by the engine.
type actionRecorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *actionRecorder) subscribe(bus *event.Bus, types ...event.Type) {
	for _, typ := range types {
		bus.Subscribe(typ, func(_ context.Context, ev event.Event) {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		})
	}
}

func (r *actionRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *actionRecorder) all() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Event, len(r.events))
	copy(out, r.events)
	return out
}

func newTestEngine(t *testing.T, ambient AmbientSource) (*Engine, *event.Bus) {
	t.Helper()
	bus := event.NewBus(128)
	t.Cleanup(bus.Close)
	return NewEngine(bus, ambient), bus
}

func TestEvaluatePublishesPriorityAction(t *testing.T) {
	e, bus := newTestEngine(t, stubAmbient{})
	require.NoError(t, e.Replace([]Rule{{
		ID: "short", Name: "short videos", Enabled: true,
		Conditions: []Condition{{Type: CondDuration, Operator: OpLessThan, Value: 300}},
		Actions:    []Action{{Type: ActionSetPriority, Parameters: map[string]any{"priority": "high"}}},
	}}))

	rec := &actionRecorder{}
	rec.subscribe(bus, event.RulePriorityChanged)

	e.Evaluate(context.Background(), event.New(event.DownloadQueued, "scheduler", event.Data{
		"item_id":          "it1",
		"url":              "https://youtube.com/watch?v=abc",
		"duration_seconds": 120,
	}))

	require.Eventually(t, func() bool { return rec.count() == 1 }, eventuallyWait, eventuallyTick)
	got := rec.all()[0]
	assert.Equal(t, "it1", got.Data.Str("item_id"))
	assert.Equal(t, "high", got.Data.Str("priority"))

	stats := e.Statistics()
	assert.Equal(t, 1, stats.RulesTriggered)
	assert.Equal(t, 1, stats.ActionsExecuted)
	assert.NotNil(t, stats.LastEvaluation)
}

func TestRuleFiresOncePerItem(t *testing.T) {
	e, bus := newTestEngine(t, stubAmbient{})
	require.NoError(t, e.Replace([]Rule{{
		ID: "short", Enabled: true,
		Conditions: []Condition{{Type: CondDuration, Operator: OpLessThan, Value: 300}},
		Actions:    []Action{{Type: ActionSetPriority, Parameters: map[string]any{"priority": "high"}}},
	}}))

	rec := &actionRecorder{}
	rec.subscribe(bus, event.RulePriorityChanged)

	ev := event.New(event.DownloadQueued, "scheduler", event.Data{
		"item_id": "it1", "duration_seconds": 60,
	})
	e.Evaluate(context.Background(), ev)
	e.Evaluate(context.Background(), ev)

	// A different item still triggers.
	e.Evaluate(context.Background(), event.New(event.DownloadQueued, "scheduler", event.Data{
		"item_id": "it2", "duration_seconds": 60,
	}))

	require.Eventually(t, func() bool { return rec.count() == 2 }, eventuallyWait, eventuallyTick)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, rec.count(), "same item must not re-trigger the same rule")
}

func TestRulesRunInPriorityOrder(t *testing.T) {
	e, bus := newTestEngine(t, stubAmbient{})
	cond := []Condition{{Type: CondDuration, Operator: OpGreaterEqual, Value: 0}}
	require.NoError(t, e.Replace([]Rule{
		{ID: "low", Enabled: true, Priority: 1, Conditions: cond,
			Actions: []Action{{Type: ActionNotify, Parameters: map[string]any{"message": "low"}}}},
		{ID: "high", Enabled: true, Priority: 10, Conditions: cond,
			Actions: []Action{{Type: ActionNotify, Parameters: map[string]any{"message": "high"}}}},
	}))

	rec := &actionRecorder{}
	rec.subscribe(bus, event.RuleNotify)

	e.Evaluate(context.Background(), event.New(event.DownloadQueued, "scheduler", event.Data{
		"item_id": "it1", "duration_seconds": 5,
	}))

	require.Eventually(t, func() bool { return rec.count() == 2 }, eventuallyWait, eventuallyTick)
	got := rec.all()
	assert.Equal(t, "high", got[0].Data.Str("message"))
	assert.Equal(t, "low", got[1].Data.Str("message"))
}

func TestBlockLargeFilesUsesAmbientQueueSize(t *testing.T) {
	ambient := stubAmbient{snap: queue.Snapshot{TotalItems: 12}}
	e, bus := newTestEngine(t, ambient)
	require.NoError(t, e.Replace(DefaultRules()))

	rec := &actionRecorder{}
	rec.subscribe(bus, event.RuleBlocked, event.RuleNotify)

	e.Evaluate(context.Background(), event.New(event.DownloadQueued, "scheduler", event.Data{
		"item_id":   "big1",
		"url":       "https://example.com/huge",
		"file_size": int64(2 << 30),
	}))

	require.Eventually(t, func() bool { return rec.count() == 2 }, eventuallyWait, eventuallyTick)
	types := []event.Type{rec.all()[0].Type, rec.all()[1].Type}
	assert.Contains(t, types, event.RuleBlocked)
	assert.Contains(t, types, event.RuleNotify)
}

func TestRateLimitActionParsesSuffix(t *testing.T) {
	e, bus := newTestEngine(t, stubAmbient{})
	require.NoError(t, e.Replace([]Rule{{
		ID: "cap", Enabled: true,
		Conditions: []Condition{{Type: CondDuration, Operator: OpGreaterEqual, Value: 0}},
		Actions:    []Action{{Type: ActionRateLimit, Parameters: map[string]any{"rate_limit": "500K"}}},
	}}))

	rec := &actionRecorder{}
	rec.subscribe(bus, event.RuleRateLimitChanged)

	e.Evaluate(context.Background(), event.New(event.DownloadQueued, "scheduler", event.Data{
		"item_id": "it1", "duration_seconds": 10,
	}))

	require.Eventually(t, func() bool { return rec.count() == 1 }, eventuallyWait, eventuallyTick)
	bps, ok := rec.all()[0].Data.Num("rate_bps")
	require.True(t, ok)
	assert.Equal(t, float64(500<<10), bps)
}

func TestItemActionsSkippedWithoutItemID(t *testing.T) {
	e, bus := newTestEngine(t, stubAmbient{})
	require.NoError(t, e.Replace([]Rule{{
		ID: "both", Enabled: true,
		Conditions: []Condition{{Type: CondQueueSize, Operator: OpGreaterEqual, Value: 0}},
		Actions: []Action{
			{Type: ActionSetPriority, Parameters: map[string]any{"priority": "high"}},
			{Type: ActionNotify, Parameters: map[string]any{"message": "hello"}},
		},
	}}))

	rec := &actionRecorder{}
	rec.subscribe(bus, event.RulePriorityChanged, event.RuleNotify)

	e.Evaluate(context.Background(), event.New(event.QueueStatusChanged, "scheduler", event.Data{}))

	require.Eventually(t, func() bool { return rec.count() == 1 }, eventuallyWait, eventuallyTick)
	time.Sleep(50 * time.Millisecond)
	got := rec.all()
	require.Len(t, got, 1, "only notify may run without an item id")
	assert.Equal(t, event.RuleNotify, got[0].Type)
}

func TestBindEvaluatesBusEvents(t *testing.T) {
	e, bus := newTestEngine(t, stubAmbient{})
	require.NoError(t, e.Replace([]Rule{{
		ID: "short", Enabled: true,
		Conditions: []Condition{{Type: CondDuration, Operator: OpLessThan, Value: 300}},
		Actions:    []Action{{Type: ActionSetPriority, Parameters: map[string]any{"priority": "urgent"}}},
	}}))
	e.Bind()

	rec := &actionRecorder{}
	rec.subscribe(bus, event.RulePriorityChanged)

	require.NoError(t, bus.Publish(context.Background(),
		event.New(event.DownloadQueued, "scheduler", event.Data{
			"item_id": "it9", "duration_seconds": 42,
		})))

	require.Eventually(t, func() bool { return rec.count() == 1 }, eventuallyWait, eventuallyTick)
	assert.Equal(t, "urgent", rec.all()[0].Data.Str("priority"))
}

func TestRuleManagement(t *testing.T) {
	e, _ := newTestEngine(t, stubAmbient{})

	rule := Rule{ID: "r1", Enabled: true,
		Conditions: []Condition{{Type: CondDuration, Operator: OpLessThan, Value: 10}},
		Actions:    []Action{{Type: ActionNotify}}}
	require.NoError(t, e.Add(rule))
	assert.Error(t, e.Add(rule), "duplicate id must be rejected")

	require.True(t, e.SetEnabled("r1", false))
	assert.False(t, e.List()[0].Enabled)

	stats := e.Statistics()
	assert.Equal(t, 1, stats.TotalRules)
	assert.Equal(t, 1, stats.DisabledRules)

	assert.True(t, e.Remove("r1"))
	assert.False(t, e.Remove("r1"))
	assert.Empty(t, e.List())
}
