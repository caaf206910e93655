package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRulesAreValid(t *testing.T) {
	defaults := DefaultRules()
	require.Len(t, defaults, 5)
	require.NoError(t, Validate(defaults))
	for _, r := range defaults {
		assert.True(t, r.Enabled, "default rule %s must start enabled", r.ID)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, SaveFile(path, DefaultRules()))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, loaded, 5)
	assert.Equal(t, "short_video_priority", loaded[0].ID)
	assert.Equal(t, OpLessThan, loaded[0].Conditions[0].Operator)
	// JSON numbers come back as float64; comparisons must still work.
	assert.True(t, loaded[0].Matches(Context{"duration_seconds": 120}, monday19h))
}

func TestLoadRejectsUnknownConditionType(t *testing.T) {
	path := writeRules(t, `[{
		"id": "bad", "name": "bad", "enabled": true,
		"conditions": [{"condition_type": "frobnicate", "operator": "equals", "value": "x"}],
		"actions": [{"action_type": "notify"}]
	}]`)

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown condition type")
}

func TestLoadRejectsUnknownOperatorAndAction(t *testing.T) {
	path := writeRules(t, `[{
		"id": "bad", "name": "bad", "enabled": true,
		"conditions": [{"condition_type": "domain", "operator": "sounds_like", "value": "x"}],
		"actions": [{"action_type": "teleport"}]
	}]`)

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operator")
	assert.Contains(t, err.Error(), "unknown action type")
}

func TestLoadRejectsBadRegexAndRange(t *testing.T) {
	path := writeRules(t, `[{
		"id": "bad", "name": "bad", "enabled": true,
		"conditions": [
			{"condition_type": "title_pattern", "operator": "matches", "value": "("},
			{"condition_type": "time_of_day", "operator": "in_range", "value": [18]}
		],
		"actions": [{"action_type": "notify"}]
	}]`)

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad pattern")
	assert.Contains(t, err.Error(), "in_range")
}

func TestValidateRejectsDuplicateIDs(t *testing.T) {
	r := DefaultRules()[0]
	err := Validate([]Rule{r, r})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")
}

func TestLoadOrDefaultSeedsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	e, _ := newTestEngine(t, stubAmbient{})

	require.NoError(t, e.LoadOrDefault(path))
	assert.Len(t, e.List(), 5)

	// The defaults were persisted for the next start.
	_, err := os.Stat(path)
	require.NoError(t, err)
	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, loaded, 5)
}

func TestLoadOrDefaultKeepsExistingFile(t *testing.T) {
	path := writeRules(t, `[{
		"id": "only", "name": "only", "enabled": false,
		"conditions": [{"condition_type": "domain", "operator": "equals", "value": "example.com"}],
		"actions": [{"action_type": "notify"}]
	}]`)
	e, _ := newTestEngine(t, stubAmbient{})

	require.NoError(t, e.LoadOrDefault(path))
	rules := e.List()
	require.Len(t, rules, 1)
	assert.Equal(t, "only", rules[0].ID)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, SaveFile(path, DefaultRules()))

	e, _ := newTestEngine(t, stubAmbient{})
	require.NoError(t, e.LoadOrDefault(path))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, e.Watch(ctx, path))

	next := []Rule{{
		ID: "replacement", Name: "replacement", Enabled: true,
		Conditions: []Condition{{Type: CondDomain, Operator: OpEquals, Value: "example.com"}},
		Actions:    []Action{{Type: ActionNotify}},
	}}
	require.NoError(t, SaveFile(path, next))

	require.Eventually(t, func() bool {
		rules := e.List()
		return len(rules) == 1 && rules[0].ID == "replacement"
	}, eventuallyWait, eventuallyTick)
}

func TestWatchKeepsPreviousSetOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, SaveFile(path, DefaultRules()))

	e, _ := newTestEngine(t, stubAmbient{})
	require.NoError(t, e.LoadOrDefault(path))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, e.Watch(ctx, path))

	require.NoError(t, os.WriteFile(path, []byte("this is not json"), 0o600))

	// The watcher must observe the write yet keep the old rules.
	assert.Never(t, func() bool {
		return len(e.List()) != 5
	}, 500*time.Millisecond, 50*time.Millisecond)
}

func writeRules(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}
