package queue

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/grabby/grabbyd/internal/log"
)

// Result is the normalized outcome of one fetch attempt.
type Result struct {
	Success bool
	// Permanent marks failures that retrying cannot fix (unsupported
	// URL, 404).
	Permanent  bool
	Engine     string
	Title      string
	OutputPath string
	Count      int
	Message    string
}

// Fetcher executes one admitted item. Implementations own the external
// process and must honor ctx cancellation. The progress sink may be
// called from any goroutine until Fetch returns.
type Fetcher interface {
	Fetch(ctx context.Context, item Item, progress func(Progress)) Result
}

// Expander resolves a playlist URL into its children without
// downloading them.
type Expander interface {
	Expand(ctx context.Context, url string) ([]PlaylistEntry, error)
}

// PlaylistEntry is one child discovered during playlist expansion.
type PlaylistEntry struct {
	URL   string
	Title string
}

// idlePoll bounds how long an idle worker sleeps between wake signals,
// so retry clocks are observed even if a wake is missed.
const idlePoll = 500 * time.Millisecond

// WorkerPool drives downloads: each worker pulls the next admittable
// item from the scheduler, runs it through the fetcher and reports the
// outcome back. Parallelism equals the scheduler's concurrency limit.
type WorkerPool struct {
	sched    *Scheduler
	fetcher  Fetcher
	expander Expander
	count    int
	logger   zerolog.Logger
}

func NewWorkerPool(sched *Scheduler, fetcher Fetcher, expander Expander, count int) *WorkerPool {
	if count < 1 {
		count = 1
	}
	return &WorkerPool{
		sched:    sched,
		fetcher:  fetcher,
		expander: expander,
		count:    count,
		logger:   log.WithComponent("worker"),
	}
}

// Run blocks until ctx is cancelled and every worker has drained.
func (w *WorkerPool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.count; i++ {
		worker := i
		g.Go(func() error {
			w.loop(ctx, worker)
			return nil
		})
	}
	return g.Wait()
}

func (w *WorkerPool) loop(ctx context.Context, worker int) {
	logger := w.logger.With().Int("worker", worker).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, runCtx, ok := w.sched.Next(ctx)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-w.sched.Wake():
			case <-time.After(idlePoll):
			}
			continue
		}

		if item.ExpandPending {
			w.expand(ctx, runCtx, item, logger)
		} else {
			w.fetch(ctx, runCtx, item, logger)
		}
	}
}

func (w *WorkerPool) fetch(ctx, runCtx context.Context, item Item, logger zerolog.Logger) {
	logger.Info().Str("item_id", item.ID).Str("url", item.URL).Msg("download starting")

	res := w.fetcher.Fetch(runCtx, item, func(p Progress) {
		w.sched.UpdateProgress(ctx, item.ID, p)
	})

	if res.Engine != "" {
		w.sched.RecordEngine(item.ID, res.Engine)
	}
	if res.Title != "" {
		w.sched.UpdateProgress(ctx, item.ID, Progress{Title: res.Title})
	}

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		// The hard ceiling surfaces as a failure so retry policy applies.
		_ = w.sched.Complete(ctx, item.ID, false, "download timed out", false)
	case runCtx.Err() != nil:
		// Cancel, pause or daemon shutdown already transitioned the item
		// (or a restart will demote it); reporting would be stale.
	default:
		if err := w.sched.Complete(ctx, item.ID, res.Success, res.Message, res.Permanent); err != nil {
			logger.Warn().Err(err).Str("item_id", item.ID).Msg("completion report rejected")
		}
	}
}

func (w *WorkerPool) expand(ctx, runCtx context.Context, item Item, logger zerolog.Logger) {
	logger.Info().Str("item_id", item.ID).Str("url", item.URL).Msg("expanding playlist")

	entries, err := w.expander.Expand(runCtx, item.URL)
	switch {
	case runCtx.Err() != nil:
		// Same as fetch: the transition already happened elsewhere.
	case err != nil:
		_ = w.sched.Complete(ctx, item.ID, false, err.Error(), false)
	case len(entries) == 0:
		_ = w.sched.Complete(ctx, item.ID, false, "playlist expansion returned no entries", true)
	default:
		if _, err := w.sched.ResolvePlaylist(ctx, item.ID, entries); err != nil {
			logger.Warn().Err(err).Str("item_id", item.ID).Msg("playlist resolution rejected")
		}
	}
}
