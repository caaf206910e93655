package engine

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"github.com/grabby/grabbyd/internal/queue"
)

// streamlinkHosts are live streaming platforms.
var streamlinkHosts = regexp.MustCompile(`(?i)twitch\.tv|youtube\.com/watch.*[?&]v=.*live|kick\.com|afreecatv\.com|douyu\.com|huya\.com`)

// streamlinkWritten matches recorder progress lines, e.g.
// [download] Written 35.0 MB (17s @ 2.1 MB/s)
var streamlinkWritten = regexp.MustCompile(`Written\s+([0-9.]+\s?[KMGT]?i?B)(?:.*@\s*([0-9.]+\s?[KMGT]?i?B/s))?`)

// Streamlink records live streams into a local .ts file. Live sources
// have no known total size, so progress carries written bytes only.
type Streamlink struct {
	path   string
	runner *Runner
	avail  probe
}

func NewStreamlink(path string, runner *Runner) *Streamlink {
	return &Streamlink{path: path, runner: runner}
}

func (e *Streamlink) Tag() string { return TagStreamlink }

func (e *Streamlink) Available() bool {
	return e.avail.check(func() bool { return binaryResponds(e.path) })
}

func (e *Streamlink) Handles(url string) bool {
	return streamlinkHosts.MatchString(url)
}

func (e *Streamlink) Run(ctx context.Context, req Request, sink ProgressSink) queue.Result {
	quality := req.Quality
	if quality == "" {
		quality = "best"
	}
	outputPath := filepath.Join(req.OutputDir, fmt.Sprintf("stream_%d.ts", time.Now().Unix()))

	cmd := exec.Command(e.path,
		req.URL,
		quality,
		"--output", outputPath,
		"--hls-live-restart",
		"--retry-streams", "5",
		"--retry-max", "10") // #nosec G204

	onLine := func(line string) {
		if p, ok := ParseStreamlinkProgress(line); ok && sink != nil {
			sink(p)
		}
	}
	// streamlink logs to stderr but older builds use stdout.
	ring, err := e.runner.Stream(ctx, TagStreamlink, cmd, onLine, onLine)
	if err != nil {
		return failureResult(TagStreamlink, err, ring)
	}
	return queue.Result{
		Success:    true,
		Engine:     TagStreamlink,
		OutputPath: outputPath,
		Count:      1,
	}
}

// ParseStreamlinkProgress extracts written bytes (and rate, when
// present) from a recorder status line.
func ParseStreamlinkProgress(line string) (queue.Progress, bool) {
	m := streamlinkWritten.FindStringSubmatch(line)
	if m == nil {
		return queue.Progress{}, false
	}
	p := queue.Progress{
		DownloadedBytes: parseByteSize(m[1]),
		ETA:             "live",
	}
	if m[2] != "" {
		p.Speed = m[2]
	}
	return p, true
}
