package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies one kind of event. The set is closed: producers must
// use the constants below so subscribers can rely on stable names.
type Type string

// Download lifecycle.
const (
	DownloadQueued    Type = "download.queued"
	DownloadStarted   Type = "download.started"
	DownloadProgress  Type = "download.progress"
	DownloadCompleted Type = "download.completed"
	DownloadFailed    Type = "download.failed"
	DownloadCancelled Type = "download.cancelled"
	DownloadPaused    Type = "download.paused"
	DownloadResumed   Type = "download.resumed"
)

// Queue administration.
const (
	QueueItemAdded     Type = "queue.item_added"
	QueueItemRemoved   Type = "queue.item_removed"
	QueueStatusChanged Type = "queue.status_changed"
	QueueCleared       Type = "queue.cleared"
)

// Playlists.
const (
	PlaylistStarted       Type = "playlist.started"
	PlaylistItemCompleted Type = "playlist.item_completed"
	PlaylistCompleted     Type = "playlist.completed"
	PlaylistFailed        Type = "playlist.failed"
)

// Engines.
const (
	EngineSelected Type = "engine.selected"
	EngineSwitched Type = "engine.switched"
	EngineError    Type = "engine.error"
)

// System.
const (
	SystemStartup   Type = "system.startup"
	SystemShutdown  Type = "system.shutdown"
	SystemError     Type = "system.error"
	SettingsChanged Type = "settings.changed"
)

// Rule actions. The rules engine publishes these; the scheduler applies them.
const (
	RulePriorityChanged   Type = "rule.priority_changed"
	RuleProfileChanged    Type = "rule.profile_changed"
	RuleQualityChanged    Type = "rule.quality_changed"
	RuleOutputPathChanged Type = "rule.output_path_changed"
	RuleRateLimitChanged  Type = "rule.rate_limit_changed"
	RuleDelayed           Type = "rule.delayed"
	RuleBlocked           Type = "rule.blocked"
	RuleNotify            Type = "rule.notify"
	RuleAutoOrganize      Type = "rule.auto_organize"
	RuleExtractAudio      Type = "rule.extract_audio"
)

// Wildcard subscribes to every type.
const Wildcard Type = "*"

// Data is an event payload. Values are restricted to what survives a JSON
// round-trip: string, float64, bool, []any, map[string]any. Use the typed
// accessors instead of asserting on the map directly.
type Data map[string]any

// Str returns the string stored under key, or "".
func (d Data) Str(key string) string {
	v, _ := d[key].(string)
	return v
}

// Num returns the numeric value stored under key, accepting any integer or
// float representation a producer may have used.
func (d Data) Num(key string) (float64, bool) {
	switch v := d[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Bool returns the bool stored under key, or false.
func (d Data) Bool(key string) bool {
	v, _ := d[key].(bool)
	return v
}

// Event is a single immutable bus message. Producers must not mutate an
// event (or its Data) after publishing it.
type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	Source    string            `json:"source"`
	Timestamp time.Time         `json:"timestamp"`
	Data      Data              `json:"data,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// New builds an event with a fresh id and the current time.
func New(typ Type, source string, data Data) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Source:    source,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Encode renders the wire representation used for WebSocket fan-out.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
