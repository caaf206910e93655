package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// All environment keys carry the GRABBY_ prefix. Malformed values fall
// back to the current value; the final Validate pass catches anything
// that leaves the config unusable.

func envString(key string, cur string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return cur
}

func envBool(key string, cur bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return cur
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return cur
	}
	return b
}

func envInt(key string, cur int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return cur
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return cur
	}
	return n
}

func envInt64(key string, cur int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return cur
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return cur
	}
	return n
}

func envDuration(key string, cur time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return cur
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return cur
	}
	return d
}

func applyEnv(cfg *Config) {
	cfg.ListenAddr = envString("GRABBY_LISTEN_ADDR", cfg.ListenAddr)
	cfg.OutputDir = envString("GRABBY_OUTPUT_DIR", cfg.OutputDir)
	cfg.DataDir = envString("GRABBY_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = envString("GRABBY_LOG_LEVEL", cfg.LogLevel)

	cfg.Queue.MaxConcurrent = envInt("GRABBY_MAX_CONCURRENT", cfg.Queue.MaxConcurrent)
	cfg.Queue.MaxBandwidth = envInt64("GRABBY_MAX_BANDWIDTH", cfg.Queue.MaxBandwidth)
	cfg.Queue.MaxRetries = envInt("GRABBY_MAX_RETRIES", cfg.Queue.MaxRetries)
	cfg.Queue.RetryBaseDelay = envDuration("GRABBY_RETRY_BASE_DELAY", cfg.Queue.RetryBaseDelay)
	cfg.Queue.RetryMaxDelay = envDuration("GRABBY_RETRY_MAX_DELAY", cfg.Queue.RetryMaxDelay)
	cfg.Queue.DownloadTimeout = envDuration("GRABBY_DOWNLOAD_TIMEOUT", cfg.Queue.DownloadTimeout)

	cfg.Store.URL = envString("GRABBY_STORE_URL", cfg.Store.URL)
	cfg.Store.CompletedTTL = envDuration("GRABBY_STORE_COMPLETED_TTL", cfg.Store.CompletedTTL)

	cfg.Engines.YtdlpPath = envString("GRABBY_YTDLP_PATH", cfg.Engines.YtdlpPath)
	cfg.Engines.Aria2cPath = envString("GRABBY_ARIA2C_PATH", cfg.Engines.Aria2cPath)
	cfg.Engines.StreamlinkPath = envString("GRABBY_STREAMLINK_PATH", cfg.Engines.StreamlinkPath)
	cfg.Engines.GalleryDLPath = envString("GRABBY_GALLERYDL_PATH", cfg.Engines.GalleryDLPath)
	cfg.Engines.JavaPath = envString("GRABBY_JAVA_PATH", cfg.Engines.JavaPath)
	cfg.Engines.RipmeJarPath = envString("GRABBY_RIPME_JAR_PATH", cfg.Engines.RipmeJarPath)
	cfg.Engines.Aria2Connections = envInt("GRABBY_ARIA2_CONNECTIONS", cfg.Engines.Aria2Connections)
	cfg.Engines.StopGrace = envDuration("GRABBY_ENGINE_STOP_GRACE", cfg.Engines.StopGrace)

	cfg.Rules.File = envString("GRABBY_RULES_FILE", cfg.Rules.File)
	cfg.Rules.Watch = envBool("GRABBY_RULES_WATCH", cfg.Rules.Watch)

	cfg.Events.HistorySize = envInt("GRABBY_EVENT_HISTORY_SIZE", cfg.Events.HistorySize)

	cfg.Server.RateLimit = envInt("GRABBY_RATE_LIMIT", cfg.Server.RateLimit)
	cfg.Server.ShutdownGrace = envDuration("GRABBY_SHUTDOWN_GRACE", cfg.Server.ShutdownGrace)
}
