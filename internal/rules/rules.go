// Package rules evaluates declarative automation rules against download
// lifecycle events. A rule is a (conditions, combinator, actions)
// triple; matching rules publish targeted rule.* events that the
// scheduler applies. Rules never mutate queue items directly.
package rules

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ConditionType is the closed set of left-hand-side tags a condition
// may test.
type ConditionType string

const (
	CondURLPattern     ConditionType = "url_pattern"
	CondDomain         ConditionType = "domain"
	CondTitlePattern   ConditionType = "title_pattern"
	CondUploader       ConditionType = "uploader"
	CondDuration       ConditionType = "duration"
	CondFileSize       ConditionType = "file_size"
	CondViewCount      ConditionType = "view_count"
	CondUploadDate     ConditionType = "upload_date"
	CondTimeOfDay      ConditionType = "time_of_day"
	CondDayOfWeek      ConditionType = "day_of_week"
	CondQueueSize      ConditionType = "queue_size"
	CondBandwidthUsage ConditionType = "bandwidth_usage"
)

// Operator compares a context value against the condition value.
type Operator string

const (
	OpEquals       Operator = "equals"
	OpNotEquals    Operator = "not_equals"
	OpContains     Operator = "contains"
	OpNotContains  Operator = "not_contains"
	OpMatches      Operator = "matches"
	OpNotMatches   Operator = "not_matches"
	OpGreaterThan  Operator = "greater_than"
	OpLessThan     Operator = "less_than"
	OpGreaterEqual Operator = "greater_equal"
	OpLessEqual    Operator = "less_equal"
	OpInRange      Operator = "in_range"
)

// ActionType is the closed set of rule actions.
type ActionType string

const (
	ActionSetPriority   ActionType = "set_priority"
	ActionSetProfile    ActionType = "set_profile"
	ActionSetQuality    ActionType = "set_quality"
	ActionSetOutputPath ActionType = "set_output_path"
	ActionRateLimit     ActionType = "rate_limit"
	ActionSchedule      ActionType = "schedule_download"
	ActionBlock         ActionType = "block_download"
	ActionNotify        ActionType = "notify"
	ActionAutoOrganize  ActionType = "auto_organize"
	ActionExtractAudio  ActionType = "extract_audio"
)

// Context is the fact map a rule evaluates against: the triggering
// event's payload plus ambient facts (hour of day, day of week, queue
// size, bandwidth usage).
type Context map[string]any

func (c Context) str(key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Condition is one testable predicate.
type Condition struct {
	Type          ConditionType `json:"condition_type"`
	Operator      Operator      `json:"operator"`
	Value         any           `json:"value"`
	CaseSensitive bool          `json:"case_sensitive,omitempty"`
}

// Evaluate tests the condition against ctx at the given time. Missing
// context values and malformed comparisons evaluate to false, never to
// an error: a rule that cannot be decided must not fire.
func (c Condition) Evaluate(ctx Context, now time.Time) bool {
	actual, ok := c.contextValue(ctx, now)
	if !ok {
		return false
	}
	return c.compare(actual)
}

func (c Condition) contextValue(ctx Context, now time.Time) (any, bool) {
	switch c.Type {
	case CondURLPattern:
		return ctx.str("url"), true
	case CondDomain:
		u, err := url.Parse(ctx.str("url"))
		if err != nil {
			return nil, false
		}
		return strings.ToLower(u.Host), true
	case CondTitlePattern:
		return ctx.str("title"), true
	case CondUploader:
		return ctx.str("uploader"), true
	case CondDuration:
		return ctx["duration_seconds"], ctx["duration_seconds"] != nil
	case CondFileSize:
		return ctx["file_size"], ctx["file_size"] != nil
	case CondViewCount:
		return ctx["view_count"], ctx["view_count"] != nil
	case CondUploadDate:
		return ctx.str("upload_date"), true
	case CondTimeOfDay:
		return now.Hour(), true
	case CondDayOfWeek:
		// Monday is 0, matching the convention rule documents use.
		return (int(now.Weekday()) + 6) % 7, true
	case CondQueueSize:
		return ctx["queue_size"], ctx["queue_size"] != nil
	case CondBandwidthUsage:
		return ctx["bandwidth_usage"], ctx["bandwidth_usage"] != nil
	}
	return nil, false
}

func (c Condition) compare(actual any) bool {
	switch c.Operator {
	case OpEquals:
		return c.normalize(actual) == c.normalize(c.Value)
	case OpNotEquals:
		return c.normalize(actual) != c.normalize(c.Value)
	case OpContains:
		return strings.Contains(c.normalize(actual), c.normalize(c.Value))
	case OpNotContains:
		return !strings.Contains(c.normalize(actual), c.normalize(c.Value))
	case OpMatches, OpNotMatches:
		re, err := c.pattern()
		if err != nil {
			return false
		}
		matched := re.MatchString(fmt.Sprint(actual))
		if c.Operator == OpNotMatches {
			return !matched
		}
		return matched
	case OpGreaterThan, OpLessThan, OpGreaterEqual, OpLessEqual:
		a, okA := toFloat(actual)
		b, okB := toFloat(c.Value)
		if !okA || !okB {
			return false
		}
		switch c.Operator {
		case OpGreaterThan:
			return a > b
		case OpLessThan:
			return a < b
		case OpGreaterEqual:
			return a >= b
		default:
			return a <= b
		}
	case OpInRange:
		lo, hi, ok := rangeBounds(c.Value)
		if !ok {
			return false
		}
		a, okA := toFloat(actual)
		return okA && lo <= a && a <= hi
	}
	return false
}

func (c Condition) pattern() (*regexp.Regexp, error) {
	expr := fmt.Sprint(c.Value)
	if !c.CaseSensitive {
		expr = "(?i)" + expr
	}
	return regexp.Compile(expr)
}

func (c Condition) normalize(v any) string {
	s := fmt.Sprint(v)
	if c.CaseSensitive {
		return s
	}
	return strings.ToLower(s)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// rangeBounds unpacks an in_range value, a two-element array.
func rangeBounds(v any) (lo, hi float64, ok bool) {
	arr, isArr := v.([]any)
	if !isArr || len(arr) != 2 {
		return 0, 0, false
	}
	lo, okLo := toFloat(arr[0])
	hi, okHi := toFloat(arr[1])
	return lo, hi, okLo && okHi
}

// Action is executed when a rule matches. Parameters are
// action-specific.
type Action struct {
	Type       ActionType     `json:"action_type"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (a Action) paramStr(key, fallback string) string {
	if v, ok := a.Parameters[key]; ok {
		return fmt.Sprint(v)
	}
	return fallback
}

func (a Action) paramNum(key string, fallback float64) float64 {
	if v, ok := a.Parameters[key]; ok {
		if f, okF := toFloat(v); okF {
			return f
		}
	}
	return fallback
}

// Combinators for multi-condition rules.
const (
	CombineAll = "AND"
	CombineAny = "OR"
)

// Rule is one automation rule.
type Rule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
	// Priority orders evaluation; higher runs first.
	Priority int `json:"priority"`
	// Combinator is AND (all conditions) or OR (any condition).
	Combinator string      `json:"condition_logic,omitempty"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`

	CreatedAt     time.Time  `json:"created_at"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
	TriggerCount  int        `json:"trigger_count"`
}

// Matches reports whether the rule fires for ctx. Disabled and
// condition-less rules never fire.
func (r *Rule) Matches(ctx Context, now time.Time) bool {
	if !r.Enabled || len(r.Conditions) == 0 {
		return false
	}
	anyHit := false
	for _, cond := range r.Conditions {
		if cond.Evaluate(ctx, now) {
			anyHit = true
		} else if r.Combinator != CombineAny {
			return false
		}
	}
	if r.Combinator == CombineAny {
		return anyHit
	}
	return true
}

// parseRate converts a rate-limit parameter to bytes/sec. Numbers pass
// through; strings accept K/M/G suffixes ("500K").
func parseRate(v any) (int64, bool) {
	if f, ok := toFloat(v); ok {
		return int64(f), true
	}
	s, isStr := v.(string)
	if !isStr {
		return 0, false
	}
	s = strings.TrimSpace(strings.ToUpper(s))
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		mult, s = 1<<10, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult, s = 1<<20, strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		mult, s = 1<<30, strings.TrimSuffix(s, "G")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int64(f * float64(mult)), true
}
