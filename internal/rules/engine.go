package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/grabby/grabbyd/internal/event"
	"github.com/grabby/grabbyd/internal/log"
	"github.com/grabby/grabbyd/internal/metrics"
	"github.com/grabby/grabbyd/internal/queue"
)

// AmbientSource supplies queue-level facts folded into every rule
// context.
type AmbientSource interface {
	Status() queue.Snapshot
}

// firedCap bounds the per-item dedup set; when exceeded it is cleared
// rather than evicted piecemeal.
const firedCap = 4096

// Stats summarizes engine activity.
type Stats struct {
	RulesTriggered  int        `json:"rules_triggered"`
	ActionsExecuted int        `json:"actions_executed"`
	LastEvaluation  *time.Time `json:"last_evaluation,omitempty"`
	TotalRules      int        `json:"total_rules"`
	EnabledRules    int        `json:"enabled_rules"`
	DisabledRules   int        `json:"disabled_rules"`
}

// Engine evaluates rules against download lifecycle events and realizes
// matches by publishing rule.* action events.
type Engine struct {
	mu    sync.Mutex
	rules []*Rule
	// fired dedupes rule applications: a rule fires at most once per
	// item, so status-change feedback cannot re-trigger it endlessly.
	fired map[string]struct{}
	stats Stats

	bus     *event.Bus
	ambient AmbientSource
	logger  zerolog.Logger
}

func NewEngine(bus *event.Bus, ambient AmbientSource) *Engine {
	return &Engine{
		fired:   make(map[string]struct{}),
		bus:     bus,
		ambient: ambient,
		logger:  log.WithComponent("rules"),
	}
}

// triggerTypes are the lifecycle events that drive evaluation.
var triggerTypes = []event.Type{
	event.DownloadQueued,
	event.DownloadStarted,
	event.DownloadProgress,
	event.DownloadCompleted,
	event.QueueStatusChanged,
}

// Bind subscribes the engine to its trigger events.
func (e *Engine) Bind() {
	for _, typ := range triggerTypes {
		e.bus.Subscribe(typ, func(ctx context.Context, ev event.Event) {
			e.Evaluate(ctx, ev)
		})
	}
}

// Evaluate runs every enabled rule, highest priority first, against the
// context built from ev. Matching rules execute all their actions;
// rules never short-circuit one another.
func (e *Engine) Evaluate(ctx context.Context, ev event.Event) {
	now := time.Now()
	rctx := e.buildContext(ev, now)
	itemID := rctx.str("item_id")

	e.mu.Lock()
	ordered := make([]*Rule, len(e.rules))
	copy(ordered, e.rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	var toRun []*Rule
	for _, r := range ordered {
		if !r.Matches(rctx, now) {
			continue
		}
		if itemID != "" {
			key := r.ID + "|" + itemID
			if _, done := e.fired[key]; done {
				continue
			}
			if len(e.fired) >= firedCap {
				e.fired = make(map[string]struct{})
			}
			e.fired[key] = struct{}{}
		}
		r.TriggerCount++
		trig := now
		r.LastTriggered = &trig
		e.stats.RulesTriggered++
		e.stats.ActionsExecuted += len(r.Actions)
		toRun = append(toRun, r)
	}
	e.stats.LastEvaluation = &now
	e.mu.Unlock()

	for _, r := range toRun {
		e.logger.Info().Str("rule", r.ID).Str("trigger", string(ev.Type)).
			Str("item_id", itemID).Msg("rule triggered")
		metrics.RulesTriggered.WithLabelValues(r.ID).Inc()
		for _, action := range r.Actions {
			e.execute(ctx, action, rctx, itemID)
		}
	}
}

// buildContext merges the event payload with ambient queue facts.
func (e *Engine) buildContext(ev event.Event, now time.Time) Context {
	rctx := make(Context, len(ev.Data)+4)
	for k, v := range ev.Data {
		rctx[k] = v
	}
	rctx["trigger_event"] = string(ev.Type)
	rctx["timestamp"] = now
	if e.ambient != nil {
		snap := e.ambient.Status()
		rctx["queue_size"] = snap.TotalItems
		rctx["bandwidth_usage"] = snap.Bandwidth.AllocatedBps
	}
	return rctx
}

// execute publishes the action's targeted event. Item-scoped actions
// are dropped when the triggering event carried no item id.
func (e *Engine) execute(ctx context.Context, a Action, rctx Context, itemID string) {
	if itemID == "" && a.Type != ActionNotify {
		return
	}

	var ev event.Event
	switch a.Type {
	case ActionSetPriority:
		ev = event.New(event.RulePriorityChanged, "rules", event.Data{
			"item_id":  itemID,
			"priority": a.paramStr("priority", "normal"),
		})
	case ActionSetProfile:
		ev = event.New(event.RuleProfileChanged, "rules", event.Data{
			"item_id": itemID,
			"profile": a.paramStr("profile", "default"),
		})
	case ActionSetQuality:
		ev = event.New(event.RuleQualityChanged, "rules", event.Data{
			"item_id": itemID,
			"quality": a.paramStr("quality", "best"),
		})
	case ActionSetOutputPath:
		path := a.paramStr("output_path", "")
		if path == "" {
			return
		}
		ev = event.New(event.RuleOutputPathChanged, "rules", event.Data{
			"item_id": itemID,
			"path":    path,
		})
	case ActionRateLimit:
		bps, ok := parseRate(a.Parameters["rate_limit"])
		if !ok {
			bps, ok = parseRate(a.Parameters["rate_bps"])
		}
		if !ok {
			e.logger.Warn().Str("item_id", itemID).Msg("rate_limit action without a usable rate")
			return
		}
		ev = event.New(event.RuleRateLimitChanged, "rules", event.Data{
			"item_id":  itemID,
			"rate_bps": float64(bps),
		})
	case ActionSchedule:
		ev = event.New(event.RuleDelayed, "rules", event.Data{
			"item_id": itemID,
			"minutes": a.paramNum("delay_minutes", 60),
		})
	case ActionBlock:
		ev = event.New(event.RuleBlocked, "rules", event.Data{
			"item_id": itemID,
			"reason":  a.paramStr("reason", "blocked by rule"),
		})
	case ActionNotify:
		ev = event.New(event.RuleNotify, "rules", event.Data{
			"item_id":  itemID,
			"message":  a.paramStr("message", "rule triggered"),
			"severity": a.paramStr("severity", "info"),
		})
	case ActionAutoOrganize:
		ev = event.New(event.RuleAutoOrganize, "rules", event.Data{
			"item_id": itemID,
			"pattern": a.paramStr("pattern", "{uploader}/{title}"),
		})
	case ActionExtractAudio:
		ev = event.New(event.RuleExtractAudio, "rules", event.Data{
			"item_id": itemID,
			"format":  a.paramStr("format", "mp3"),
		})
	default:
		return
	}

	if err := e.bus.Publish(ctx, ev); err != nil {
		e.logger.Warn().Err(err).Str("type", string(ev.Type)).Msg("action publish failed")
	}
}

// Replace swaps in a new rule set after validation.
func (e *Engine) Replace(rules []Rule) error {
	if err := Validate(rules); err != nil {
		return err
	}
	ptrs := make([]*Rule, len(rules))
	for i := range rules {
		r := rules[i]
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now()
		}
		ptrs[i] = &r
	}
	e.mu.Lock()
	e.rules = ptrs
	e.fired = make(map[string]struct{})
	e.mu.Unlock()
	e.logger.Info().Int("count", len(ptrs)).Msg("rule set replaced")
	return nil
}

// Add appends one rule; ids must stay unique.
func (e *Engine) Add(r Rule) error {
	if err := Validate([]Rule{r}); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.rules {
		if existing.ID == r.ID {
			return fmt.Errorf("rule %q already exists", r.ID)
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	e.rules = append(e.rules, &r)
	return nil
}

// Remove deletes a rule by id.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.rules {
		if r.ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}

// SetEnabled toggles one rule.
func (e *Engine) SetEnabled(id string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.rules {
		if r.ID == id {
			r.Enabled = enabled
			return true
		}
	}
	return false
}

// List returns value copies of all rules.
func (e *Engine) List() []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, *r)
	}
	return out
}

// Statistics reports engine activity counters.
func (e *Engine) Statistics() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.stats
	st.TotalRules = len(e.rules)
	for _, r := range e.rules {
		if r.Enabled {
			st.EnabledRules++
		} else {
			st.DisabledRules++
		}
	}
	return st
}
