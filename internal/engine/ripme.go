package engine

import (
	"context"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/grabby/grabbyd/internal/queue"
)

// ripmeHosts are image hosts the java ripper supports.
var ripmeHosts = regexp.MustCompile(`(?i)imgur\.com|8muses\.com|motherless\.com|xhamster\.com|imagefap\.com`)

// Ripme wraps the java-based gallery ripper. Availability requires
// both a working java runtime and the jar on disk.
type Ripme struct {
	javaPath string
	jarPath  string
	runner   *Runner
	avail    probe
}

func NewRipme(javaPath, jarPath string, runner *Runner) *Ripme {
	return &Ripme{javaPath: javaPath, jarPath: jarPath, runner: runner}
}

func (e *Ripme) Tag() string { return TagRipme }

func (e *Ripme) Available() bool {
	return e.avail.check(func() bool {
		if e.jarPath == "" {
			return false
		}
		if _, err := os.Stat(e.jarPath); err != nil {
			return false
		}
		return binaryResponds(e.javaPath, "-version")
	})
}

func (e *Ripme) Handles(url string) bool {
	return ripmeHosts.MatchString(url)
}

func (e *Ripme) Run(ctx context.Context, req Request, sink ProgressSink) queue.Result {
	cmd := exec.Command(e.javaPath,
		"-jar", e.jarPath,
		"--url", req.URL,
		"--ripsdirectory", req.OutputDir) // #nosec G204

	downloaded := 0
	ring, err := e.runner.Stream(ctx, TagRipme, cmd, func(line string) {
		switch {
		case strings.Contains(line, "Downloaded"):
			downloaded++
			if sink != nil {
				sink(queue.Progress{Title: line})
			}
		case strings.Contains(line, "Downloading"):
			if sink != nil {
				sink(queue.Progress{Title: line})
			}
		}
	}, nil)
	if err != nil {
		return failureResult(TagRipme, err, ring)
	}
	return queue.Result{
		Success:    true,
		Engine:     TagRipme,
		OutputPath: req.OutputDir,
		Count:      downloaded,
	}
}
