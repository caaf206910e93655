// Package daemon is the composition root: it wires the store, event bus,
// scheduler, engine registry, rules engine, worker pool and HTTP surface
// together and owns their lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/grabby/grabbyd/internal/api"
	"github.com/grabby/grabbyd/internal/config"
	"github.com/grabby/grabbyd/internal/engine"
	"github.com/grabby/grabbyd/internal/event"
	"github.com/grabby/grabbyd/internal/log"
	"github.com/grabby/grabbyd/internal/queue"
	"github.com/grabby/grabbyd/internal/rules"
	"github.com/grabby/grabbyd/internal/store"
)

// readHeaderTimeout bounds slow-header clients on the listener.
const readHeaderTimeout = 10 * time.Second

// Daemon runs one grabbyd instance.
type Daemon struct {
	cfg    config.Config
	logger zerolog.Logger
}

func New(cfg config.Config) *Daemon {
	return &Daemon{cfg: cfg, logger: log.WithComponent("daemon")}
}

// Run assembles the subsystems and blocks until ctx is cancelled or a
// subsystem fails fatally. Shutdown is graceful: the HTTP server drains
// within the configured grace, workers stop at their next cancellation
// point, and interrupted downloads are demoted to pending in the store
// so a restart resumes them.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.cfg

	for _, dir := range []string{cfg.DataDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	st, storeErr := store.Open(cfg.Store.URL)
	if storeErr != nil {
		// Queue survives in memory only; the operator gets an event and a
		// log line instead of a dead daemon.
		d.logger.Error().Err(storeErr).Str("url", cfg.Store.URL).
			Msg("persistence unavailable, falling back to in-memory store")
		st = store.NewMemoryStore()
	}
	defer func() {
		if err := st.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("store close failed")
		}
	}()

	bus := event.NewBus(cfg.Events.HistorySize)
	defer bus.Close()

	if storeErr != nil {
		_ = bus.Publish(ctx, event.New(event.SystemError, "daemon", event.Data{
			"error": storeErr.Error(),
			"scope": "persistence",
		}))
	}

	sched := queue.NewScheduler(queue.Config{
		MaxConcurrent:   cfg.Queue.MaxConcurrent,
		BandwidthCap:    cfg.Queue.MaxBandwidth,
		MaxRetries:      cfg.Queue.MaxRetries,
		RetryBase:       cfg.Queue.RetryBaseDelay,
		RetryMax:        cfg.Queue.RetryMaxDelay,
		DownloadTimeout: cfg.Queue.DownloadTimeout,
		CompletedTTL:    cfg.Store.CompletedTTL,
	}, bus, st)
	if err := sched.Load(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("queue restore incomplete")
	}
	sched.BindRuleEvents(bus)

	registry := engine.NewRegistry(bus, cfg.Engines, cfg.OutputDir)
	registry.Probe()

	ruleEngine := rules.NewEngine(bus, sched)
	if err := ruleEngine.LoadOrDefault(cfg.Rules.File); err != nil {
		d.logger.Warn().Err(err).Str("path", cfg.Rules.File).
			Msg("rules load failed, continuing without rules")
	}
	ruleEngine.Bind()
	if cfg.Rules.Watch {
		if err := ruleEngine.Watch(ctx, cfg.Rules.File); err != nil {
			d.logger.Warn().Err(err).Msg("rules hot reload unavailable")
		}
	}

	pool := queue.NewWorkerPool(sched, registry, registry, cfg.Queue.MaxConcurrent)

	server := api.NewServer(api.Config{
		Scheduler: sched,
		Bus:       bus,
		Engines:   registry,
		Rules:     ruleEngine,
		RulesPath: cfg.Rules.File,
		RateLimit: cfg.Server.RateLimit,
	})
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	_ = bus.Publish(ctx, event.New(event.SystemStartup, "daemon", event.Data{
		"listen_addr": cfg.ListenAddr,
		"store":       cfg.Store.URL,
		"output_dir":  cfg.OutputDir,
	}))
	d.logger.Info().Str("addr", cfg.ListenAddr).Msg("grabbyd started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pool.Run(ctx)
	})
	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	// The run context is gone; shutdown bookkeeping uses a fresh one.
	_ = bus.Publish(context.Background(), event.New(event.SystemShutdown, "daemon", nil))
	d.logger.Info().Msg("grabbyd stopped")
	return err
}
