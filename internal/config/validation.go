package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]struct{}{
	"trace": {}, "debug": {}, "info": {}, "warn": {}, "error": {},
}

var validStoreSchemes = map[string]struct{}{
	"memory": {}, "badger": {}, "redis": {}, "rediss": {},
}

// Validate rejects configurations that would leave the daemon unable to
// run correctly. It does not probe the filesystem or the network; those
// failures surface at startup with better context.
func Validate(cfg Config) error {
	var errs []string

	if cfg.ListenAddr == "" {
		errs = append(errs, "listen_addr must not be empty")
	}
	if cfg.OutputDir == "" {
		errs = append(errs, "output_dir must not be empty")
	}
	if _, ok := validLogLevels[strings.ToLower(cfg.LogLevel)]; !ok {
		errs = append(errs, fmt.Sprintf("log_level %q invalid (trace|debug|info|warn|error)", cfg.LogLevel))
	}

	if cfg.Queue.MaxConcurrent < 1 {
		errs = append(errs, "queue.max_concurrent must be >= 1")
	}
	if cfg.Queue.MaxBandwidth < 0 {
		errs = append(errs, "queue.max_bandwidth must be >= 0")
	}
	if cfg.Queue.MaxRetries < 0 {
		errs = append(errs, "queue.max_retries must be >= 0")
	}
	if cfg.Queue.RetryBaseDelay <= 0 {
		errs = append(errs, "queue.retry_base_delay must be > 0")
	}
	if cfg.Queue.RetryMaxDelay < cfg.Queue.RetryBaseDelay {
		errs = append(errs, "queue.retry_max_delay must be >= queue.retry_base_delay")
	}
	if cfg.Queue.DownloadTimeout < 0 {
		errs = append(errs, "queue.download_timeout must be >= 0")
	}

	if scheme, _, ok := strings.Cut(cfg.Store.URL, "://"); !ok {
		errs = append(errs, fmt.Sprintf("store.url %q must be scheme://...", cfg.Store.URL))
	} else if _, known := validStoreSchemes[scheme]; !known {
		errs = append(errs, fmt.Sprintf("store.url scheme %q invalid (memory|badger|redis)", scheme))
	}
	if cfg.Store.CompletedTTL < 0 {
		errs = append(errs, "store.completed_ttl must be >= 0")
	}

	if cfg.Engines.Aria2Connections < 1 {
		errs = append(errs, "engines.aria2_connections must be >= 1")
	}
	if cfg.Engines.StopGrace <= 0 {
		errs = append(errs, "engines.stop_grace must be > 0")
	}

	if cfg.Events.HistorySize < 0 {
		errs = append(errs, "events.history_size must be >= 0")
	}
	if cfg.Server.RateLimit < 0 {
		errs = append(errs, "server.rate_limit must be >= 0")
	}
	if cfg.Server.ShutdownGrace <= 0 {
		errs = append(errs, "server.shutdown_grace must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
