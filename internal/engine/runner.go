package engine

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/grabby/grabbyd/internal/log"
	"github.com/grabby/grabbyd/internal/metrics"
	"github.com/grabby/grabbyd/internal/procgroup"
)

// stderrRingSize bounds how much child stderr is retained for error
// reporting.
const stderrRingSize = 256

// scanBufSize allows long progress lines; yt-dlp JSON dumps can exceed
// the bufio default.
const scanBufSize = 1 << 20

// Runner executes one external child per call, draining both output
// streams so the child never blocks on a full pipe. Cancellation
// terminates the whole process group: SIGTERM, then SIGKILL after the
// grace period.
type Runner struct {
	grace  time.Duration
	logger zerolog.Logger
}

func NewRunner(grace time.Duration) *Runner {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Runner{grace: grace, logger: log.WithComponent("engine")}
}

// Stream runs cmd to completion. Each stdout line goes to onStdout and
// each stderr line to onStderr; either may be nil. Stderr is also
// retained in the returned ring for error text. The returned error is
// ctx.Err() when the run was cancelled, otherwise the child's exit
// error.
func (r *Runner) Stream(ctx context.Context, tag string, cmd *exec.Cmd, onStdout, onStderr func(string)) (*LineRing, error) {
	ring := NewLineRing(stderrRingSize)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return ring, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return ring, err
	}

	procgroup.Set(cmd)
	if err := cmd.Start(); err != nil {
		return ring, err
	}
	metrics.EngineStarts.WithLabelValues(tag).Inc()
	r.logger.Debug().Str("engine", tag).Int("pid", cmd.Process.Pid).
		Str("bin", cmd.Path).Msg("child started")

	var drain sync.WaitGroup
	drain.Add(2)
	go func() {
		defer drain.Done()
		scanLines(stdout, onStdout)
	}()
	go func() {
		defer drain.Done()
		scanLines(stderr, func(line string) {
			ring.Append(line)
			if onStderr != nil {
				onStderr(line)
			}
		})
	}()

	// Wait must run after the pipes are drained.
	waitCh := make(chan error, 1)
	go func() {
		drain.Wait()
		waitCh <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		_ = procgroup.Terminate(cmd, waitCh, r.grace)
		metrics.EngineExits.WithLabelValues(tag, "cancelled").Inc()
		r.logger.Debug().Str("engine", tag).Msg("child terminated on cancel")
		return ring, ctx.Err()
	case err := <-waitCh:
		if err != nil {
			metrics.EngineExits.WithLabelValues(tag, "error").Inc()
			r.logger.Debug().Str("engine", tag).Err(err).
				Str("stderr", ring.Last()).Msg("child exited with error")
			return ring, err
		}
		metrics.EngineExits.WithLabelValues(tag, "ok").Inc()
		return ring, nil
	}
}

// Capture runs cmd and collects its full stdout, used for probe phases
// like yt-dlp's metadata dump.
func (r *Runner) Capture(ctx context.Context, tag string, cmd *exec.Cmd) ([]byte, *LineRing, error) {
	var buf bytes.Buffer
	ring, err := r.Stream(ctx, tag, cmd, func(line string) {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}, nil)
	return buf.Bytes(), ring, err
}

func scanLines(rd io.Reader, fn func(string)) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), scanBufSize)
	for sc.Scan() {
		if fn != nil {
			fn(sc.Text())
		}
	}
	// Scanner errors mean the pipe broke; the Wait result carries the
	// real failure.
}
