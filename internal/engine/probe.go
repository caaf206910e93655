package engine

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/grabby/grabbyd/internal/queue"
)

// probeTimeout bounds a --version availability check.
const probeTimeout = 10 * time.Second

// probe caches an availability check after its first run.
type probe struct {
	once sync.Once
	ok   bool
}

func (p *probe) check(fn func() bool) bool {
	p.once.Do(func() { p.ok = fn() })
	return p.ok
}

// binaryResponds reports whether the executable runs and exits cleanly
// when asked for its version.
func binaryResponds(path string, args ...string) bool {
	if path == "" {
		return false
	}
	if len(args) == 0 {
		args = []string{"--version"}
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, path, args...) // #nosec G204
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}

// failureResult normalizes a child failure, preferring the last stderr
// line over the bare exit error.
func failureResult(tag string, err error, ring *LineRing) queue.Result {
	msg := ""
	if ring != nil {
		msg = ring.Last()
	}
	if msg == "" && err != nil {
		msg = err.Error()
	}
	return queue.Result{Engine: tag, Message: msg}
}
