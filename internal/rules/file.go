package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var validConditions = map[ConditionType]bool{
	CondURLPattern: true, CondDomain: true, CondTitlePattern: true,
	CondUploader: true, CondDuration: true, CondFileSize: true,
	CondViewCount: true, CondUploadDate: true, CondTimeOfDay: true,
	CondDayOfWeek: true, CondQueueSize: true, CondBandwidthUsage: true,
}

var validOperators = map[Operator]bool{
	OpEquals: true, OpNotEquals: true, OpContains: true,
	OpNotContains: true, OpMatches: true, OpNotMatches: true,
	OpGreaterThan: true, OpLessThan: true, OpGreaterEqual: true,
	OpLessEqual: true, OpInRange: true,
}

var validActions = map[ActionType]bool{
	ActionSetPriority: true, ActionSetProfile: true, ActionSetQuality: true,
	ActionSetOutputPath: true, ActionRateLimit: true, ActionSchedule: true,
	ActionBlock: true, ActionNotify: true, ActionAutoOrganize: true,
	ActionExtractAudio: true,
}

// Validate rejects rule sets with unknown tags, unknown operators,
// uncompilable patterns, malformed ranges or duplicate ids.
func Validate(rules []Rule) error {
	var errs []error
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("rule %d: missing id", i))
			continue
		}
		if seen[r.ID] {
			errs = append(errs, fmt.Errorf("rule %q: duplicate id", r.ID))
		}
		seen[r.ID] = true
		if r.Combinator != "" && r.Combinator != CombineAll && r.Combinator != CombineAny {
			errs = append(errs, fmt.Errorf("rule %q: unknown combinator %q", r.ID, r.Combinator))
		}
		for _, c := range r.Conditions {
			if !validConditions[c.Type] {
				errs = append(errs, fmt.Errorf("rule %q: unknown condition type %q", r.ID, c.Type))
			}
			if !validOperators[c.Operator] {
				errs = append(errs, fmt.Errorf("rule %q: unknown operator %q", r.ID, c.Operator))
			}
			if c.Operator == OpMatches || c.Operator == OpNotMatches {
				if _, err := regexp.Compile(fmt.Sprint(c.Value)); err != nil {
					errs = append(errs, fmt.Errorf("rule %q: bad pattern: %v", r.ID, err))
				}
			}
			if c.Operator == OpInRange {
				if _, _, ok := rangeBounds(c.Value); !ok {
					errs = append(errs, fmt.Errorf("rule %q: in_range needs a two-number array", r.ID))
				}
			}
		}
		for _, a := range r.Actions {
			if !validActions[a.Type] {
				errs = append(errs, fmt.Errorf("rule %q: unknown action type %q", r.ID, a.Type))
			}
		}
	}
	return errors.Join(errs...)
}

// LoadFile reads and validates a rules document.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, err
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if err := Validate(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// SaveFile writes the rule set atomically (temp file + rename).
func SaveFile(path string, rules []Rule) error {
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".rules-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadOrDefault loads the rules file into the engine; a missing file
// seeds the defaults and writes them out.
func (e *Engine) LoadOrDefault(path string) error {
	rules, err := LoadFile(path)
	switch {
	case err == nil:
		return e.Replace(rules)
	case os.IsNotExist(err):
		defaults := DefaultRules()
		if err := e.Replace(defaults); err != nil {
			return err
		}
		if err := SaveFile(path, e.List()); err != nil {
			e.logger.Warn().Err(err).Str("path", path).Msg("could not write default rules")
		}
		return nil
	default:
		return err
	}
}

// DefaultRules is the starter rule set installed on first run.
func DefaultRules() []Rule {
	now := time.Now()
	return []Rule{
		{
			ID:          "short_video_priority",
			Name:        "High Priority for Short Videos",
			Description: "Set high priority for videos under 5 minutes",
			Enabled:     true,
			CreatedAt:   now,
			Conditions: []Condition{
				{Type: CondDuration, Operator: OpLessThan, Value: 300},
			},
			Actions: []Action{
				{Type: ActionSetPriority, Parameters: map[string]any{"priority": "high"}},
			},
		},
		{
			ID:          "music_audio_extract",
			Name:        "Extract Audio from Music Channels",
			Description: "Automatically extract audio from known music channels",
			Enabled:     true,
			CreatedAt:   now,
			Conditions: []Condition{
				{Type: CondUploader, Operator: OpMatches, Value: ".*music.*|.*audio.*|.*sound.*"},
			},
			Actions: []Action{
				{Type: ActionExtractAudio, Parameters: map[string]any{"format": "mp3"}},
			},
		},
		{
			ID:          "peak_hours_rate_limit",
			Name:        "Rate Limit During Peak Hours",
			Description: "Apply rate limiting during peak internet hours (6-10 PM)",
			Enabled:     true,
			CreatedAt:   now,
			Conditions: []Condition{
				{Type: CondTimeOfDay, Operator: OpInRange, Value: []any{18, 22}},
			},
			Actions: []Action{
				{Type: ActionRateLimit, Parameters: map[string]any{"rate_limit": "500K"}},
			},
		},
		{
			ID:          "organize_by_uploader",
			Name:        "Organize Downloads by Uploader",
			Description: "Automatically organize downloads into uploader folders",
			Enabled:     true,
			CreatedAt:   now,
			Conditions: []Condition{
				{Type: CondUploader, Operator: OpNotEquals, Value: ""},
			},
			Actions: []Action{
				{Type: ActionAutoOrganize, Parameters: map[string]any{"pattern": "{uploader}/{title}"}},
			},
		},
		{
			ID:          "block_large_files_full_queue",
			Name:        "Block Large Files When Queue Full",
			Description: "Block downloads over 1GB when queue has more than 10 items",
			Enabled:     true,
			CreatedAt:   now,
			Conditions: []Condition{
				{Type: CondFileSize, Operator: OpGreaterThan, Value: 1 << 30},
				{Type: CondQueueSize, Operator: OpGreaterThan, Value: 10},
			},
			Actions: []Action{
				{Type: ActionBlock, Parameters: map[string]any{"reason": "File too large and queue is full"}},
				{Type: ActionNotify, Parameters: map[string]any{
					"message":  "Large file blocked due to full queue",
					"severity": "warning",
				}},
			},
		},
	}
}
