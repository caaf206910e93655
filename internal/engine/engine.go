// Package engine routes URLs to external fetch tools and drives their
// processes: yt-dlp handing segments to aria2c, streamlink for live
// streams, gallery-dl for social media galleries and ripme for image
// hosts. Adapters spawn one child per item, parse its progress output
// and normalize the outcome.
package engine

import (
	"context"
	"strings"

	"github.com/grabby/grabbyd/internal/queue"
)

// Stable engine tags, persisted in item records and event payloads.
const (
	TagYtDlp      = "yt-dlp+aria2c"
	TagStreamlink = "streamlink"
	TagGalleryDL  = "gallery-dl"
	TagRipme      = "ripme"
)

// Request carries everything an adapter needs for one fetch.
type Request struct {
	URL       string
	OutputDir string
	// Quality is the format selector; "best" when the item does not pin
	// one.
	Quality string
	// RateBps caps the child's transfer rate in bytes/sec. Zero means
	// unlimited.
	RateBps int64
	Options queue.Options
}

// ProgressSink receives parsed progress updates. Adapters may call it
// from the goroutine draining the child's output.
type ProgressSink func(queue.Progress)

// Adapter is one external fetch backend.
type Adapter interface {
	// Tag returns the adapter's stable engine tag.
	Tag() string
	// Available reports whether the backing executable responds; the
	// probe result is cached.
	Available() bool
	// Handles reports whether this adapter claims the URL.
	Handles(url string) bool
	// Run downloads one URL. It must honor ctx by terminating the child
	// and must clean up any temp files on every exit path.
	Run(ctx context.Context, req Request, sink ProgressSink) queue.Result
}

// permanentMarkers identify failure text that retrying cannot fix.
var permanentMarkers = []string{
	"unsupported url",
	"404",
	"not found",
}

// PermanentFailure classifies an error message as non-retryable.
func PermanentFailure(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range permanentMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
