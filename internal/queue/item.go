// Package queue implements the prioritized download queue: item model,
// duplicate detection, bandwidth accounting, retry backoff, playlist
// detection and the scheduler that owns all of it.
package queue

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Priority orders items in the queue. Higher values are admitted first.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
	PriorityUrgent Priority = 4
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the string tag, not the ordering value.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts the string tag. Numeric values are still read so
// records persisted before tags were introduced keep loading.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		*p = ParsePriority(tag)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("priority: cannot parse %s", data)
	}
	*p = Priority(n)
	return nil
}

// ParsePriority maps a string tag back to a Priority, defaulting to normal.
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "urgent":
		return PriorityUrgent
	default:
		return PriorityNormal
	}
}

// Status is the queue item state machine position.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusRetrying    Status = "retrying"
	StatusCancelled   Status = "cancelled"
	StatusPaused      Status = "paused"
)

// AllStatuses lists every state in stable display order.
var AllStatuses = []Status{
	StatusPending, StatusDownloading, StatusCompleted, StatusFailed,
	StatusRetrying, StatusCancelled, StatusPaused,
}

// Valid reports whether s is a known state.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var transitions = map[Status][]Status{
	StatusPending:     {StatusDownloading, StatusRetrying, StatusPaused, StatusCancelled, StatusFailed},
	StatusDownloading: {StatusCompleted, StatusRetrying, StatusFailed, StatusPaused, StatusCancelled},
	StatusRetrying:    {StatusPending, StatusDownloading, StatusPaused, StatusCancelled, StatusFailed},
	StatusPaused:      {StatusPending, StatusCancelled},
}

// canTransition reports whether from → to is a legal state machine edge.
func canTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Options carries the per-item download configuration handed to the
// engine adapter.
type Options struct {
	OutputDir    string `json:"output_dir,omitempty"`
	Quality      string `json:"quality,omitempty"`
	Profile      string `json:"profile,omitempty"`
	ExtractAudio bool   `json:"extract_audio,omitempty"`
	Subtitles    bool   `json:"subtitles,omitempty"`
	Thumbnail    bool   `json:"thumbnail,omitempty"`
	// OrganizePattern moves finished files into a templated subdirectory,
	// e.g. "{uploader}/{title}".
	OrganizePattern string `json:"organize_pattern,omitempty"`
	// Engine pins a specific engine tag instead of router selection.
	Engine string `json:"engine,omitempty"`
}

// Progress is the live download state reported by the engine adapter.
// Fields the adapter has not learned yet stay at their zero value.
type Progress struct {
	DownloadedBytes int64   `json:"downloaded_bytes,omitempty"`
	TotalBytes      int64   `json:"total_bytes,omitempty"`
	Percentage      float64 `json:"percentage,omitempty"`
	Speed           string  `json:"speed,omitempty"`
	ETA             string  `json:"eta,omitempty"`
	Title           string  `json:"title,omitempty"`
}

// Item is one download in the queue. The scheduler is the only writer;
// everyone else gets value copies.
type Item struct {
	ID       string   `json:"id"`
	URL      string   `json:"url"`
	Priority Priority `json:"priority"`
	Status   Status   `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	NextAttempt *time.Time `json:"next_attempt,omitempty"`
	Error       string     `json:"error_message,omitempty"`

	Options Options `json:"download_options"`

	// BandwidthLimit is the item's reservation target in bytes/sec; zero
	// means the configured default quantum.
	BandwidthLimit int64 `json:"bandwidth_limit,omitempty"`

	Engine string `json:"engine,omitempty"`

	PlaylistID    string `json:"playlist_id,omitempty"`
	PlaylistIndex int    `json:"playlist_index,omitempty"`
	// ExpandPending marks a playlist placeholder whose children have not
	// been resolved yet.
	ExpandPending bool `json:"expand_pending,omitempty"`

	Progress Progress `json:"progress,omitempty"`
}

// NewItemID derives a stable id from the URL and the creation instant.
func NewItemID(url string, created time.Time) string {
	sum := sha256.Sum256([]byte(url + strconv.FormatInt(created.UnixNano(), 10)))
	return hex.EncodeToString(sum[:])[:16]
}

// before orders items for admission: priority descending, then creation
// time ascending, then id for coarse-clock ties.
func (it *Item) before(other *Item) bool {
	if it.Priority != other.Priority {
		return it.Priority > other.Priority
	}
	if !it.CreatedAt.Equal(other.CreatedAt) {
		return it.CreatedAt.Before(other.CreatedAt)
	}
	return it.ID < other.ID
}
