package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// A Monday evening, inside the 18-22 peak window.
var monday19h = time.Date(2026, 8, 24, 19, 0, 0, 0, time.UTC)

func TestConditionOperatorMatrix(t *testing.T) {
	ctx := Context{
		"url":              "https://WWW.YouTube.com/watch?v=abc",
		"title":            "Epic Music Mix",
		"uploader":         "SoundWave Music",
		"duration_seconds": 240,
		"file_size":        int64(2 << 30),
		"view_count":       15000,
	}

	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals folds case", Condition{Type: CondUploader, Operator: OpEquals, Value: "soundwave music"}, true},
		{"equals case sensitive", Condition{Type: CondUploader, Operator: OpEquals, Value: "soundwave music", CaseSensitive: true}, false},
		{"not equals", Condition{Type: CondUploader, Operator: OpNotEquals, Value: ""}, true},
		{"contains", Condition{Type: CondTitlePattern, Operator: OpContains, Value: "music"}, true},
		{"not contains", Condition{Type: CondTitlePattern, Operator: OpNotContains, Value: "podcast"}, true},
		{"matches", Condition{Type: CondUploader, Operator: OpMatches, Value: `.*music.*|.*audio.*`}, true},
		{"not matches", Condition{Type: CondUploader, Operator: OpNotMatches, Value: `news`}, true},
		{"matches bad regex never fires", Condition{Type: CondUploader, Operator: OpMatches, Value: `(`}, false},
		{"greater than", Condition{Type: CondViewCount, Operator: OpGreaterThan, Value: 10000}, true},
		{"less than", Condition{Type: CondDuration, Operator: OpLessThan, Value: 300}, true},
		{"greater equal boundary", Condition{Type: CondDuration, Operator: OpGreaterEqual, Value: 240}, true},
		{"less equal boundary", Condition{Type: CondDuration, Operator: OpLessEqual, Value: 239}, false},
		{"in range", Condition{Type: CondDuration, Operator: OpInRange, Value: []any{100, 300}}, true},
		{"in range outside", Condition{Type: CondDuration, Operator: OpInRange, Value: []any{300, 400}}, false},
		{"in range malformed", Condition{Type: CondDuration, Operator: OpInRange, Value: "nope"}, false},
		{"domain lowercased host", Condition{Type: CondDomain, Operator: OpEquals, Value: "www.youtube.com"}, true},
		{"url pattern", Condition{Type: CondURLPattern, Operator: OpContains, Value: "watch?v="}, true},
		{"file size numeric", Condition{Type: CondFileSize, Operator: OpGreaterThan, Value: 1 << 30}, true},
		{"missing fact never fires", Condition{Type: CondUploadDate, Operator: OpGreaterThan, Value: 1}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cond.Evaluate(ctx, monday19h))
		})
	}
}

func TestAmbientConditions(t *testing.T) {
	ctx := Context{"queue_size": 12, "bandwidth_usage": int64(3 << 20)}

	assert.True(t, Condition{Type: CondTimeOfDay, Operator: OpInRange, Value: []any{18, 22}}.Evaluate(ctx, monday19h))
	assert.False(t, Condition{Type: CondTimeOfDay, Operator: OpInRange, Value: []any{0, 6}}.Evaluate(ctx, monday19h))
	// Monday maps to 0.
	assert.True(t, Condition{Type: CondDayOfWeek, Operator: OpEquals, Value: 0}.Evaluate(ctx, monday19h))
	assert.True(t, Condition{Type: CondQueueSize, Operator: OpGreaterThan, Value: 10}.Evaluate(ctx, monday19h))
	assert.True(t, Condition{Type: CondBandwidthUsage, Operator: OpGreaterEqual, Value: 3 << 20}.Evaluate(ctx, monday19h))
}

func TestRuleCombinators(t *testing.T) {
	big := Condition{Type: CondFileSize, Operator: OpGreaterThan, Value: 1 << 30}
	fullQueue := Condition{Type: CondQueueSize, Operator: OpGreaterThan, Value: 10}

	rule := Rule{ID: "r", Enabled: true, Conditions: []Condition{big, fullQueue}}

	bothMatch := Context{"file_size": int64(2 << 30), "queue_size": 12}
	oneMatch := Context{"file_size": int64(2 << 30), "queue_size": 3}

	assert.True(t, rule.Matches(bothMatch, monday19h), "AND with both true")
	assert.False(t, rule.Matches(oneMatch, monday19h), "AND with one false")

	rule.Combinator = CombineAny
	assert.True(t, rule.Matches(oneMatch, monday19h), "OR with one true")
	assert.False(t, rule.Matches(Context{"file_size": 1, "queue_size": 1}, monday19h))
}

func TestRuleNeverFiresWhenDisabledOrEmpty(t *testing.T) {
	cond := Condition{Type: CondQueueSize, Operator: OpGreaterEqual, Value: 0}
	ctx := Context{"queue_size": 5}

	disabled := Rule{ID: "d", Enabled: false, Conditions: []Condition{cond}}
	assert.False(t, disabled.Matches(ctx, monday19h))

	empty := Rule{ID: "e", Enabled: true}
	assert.False(t, empty.Matches(ctx, monday19h))
}

func TestParseRate(t *testing.T) {
	cases := []struct {
		in   any
		want int64
		ok   bool
	}{
		{"500K", 500 << 10, true},
		{"2M", 2 << 20, true},
		{"1G", 1 << 30, true},
		{"1024", 1024, true},
		{float64(2048), 2048, true},
		{750, 750, true},
		{"fast", 0, false},
		{nil, 0, false},
	}
	for _, tc := range cases {
		got, ok := parseRate(tc.in)
		assert.Equal(t, tc.ok, ok, "input %v", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, "input %v", tc.in)
		}
	}
}
