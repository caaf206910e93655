// Package config loads the daemon configuration with the precedence
// ENV > file > defaults. The file format is YAML and is parsed strictly:
// unknown keys fail the load rather than being silently ignored.
package config

import "time"

// Config is the fully resolved daemon configuration.
type Config struct {
	// ListenAddr is the REST/WebSocket bind address.
	ListenAddr string `yaml:"listen_addr"`
	// OutputDir is the default download destination.
	OutputDir string `yaml:"output_dir"`
	// DataDir holds daemon state (badger store, rules file default location).
	DataDir string `yaml:"data_dir"`
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Queue   QueueConfig   `yaml:"queue"`
	Store   StoreConfig   `yaml:"store"`
	Engines EngineConfig  `yaml:"engines"`
	Rules   RulesConfig   `yaml:"rules"`
	Events  EventsConfig  `yaml:"events"`
	Server  ServerConfig  `yaml:"server"`
}

// QueueConfig governs the scheduler.
type QueueConfig struct {
	// MaxConcurrent is the number of simultaneous downloads.
	MaxConcurrent int `yaml:"max_concurrent"`
	// MaxBandwidth caps the summed per-item rate limits, in bytes/sec.
	// Zero disables bandwidth accounting.
	MaxBandwidth int64 `yaml:"max_bandwidth"`
	// MaxRetries bounds automatic retry attempts per item.
	MaxRetries int `yaml:"max_retries"`
	// RetryBaseDelay seeds the exponential backoff between retries.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	// RetryMaxDelay caps the backoff.
	RetryMaxDelay time.Duration `yaml:"retry_max_delay"`
	// DownloadTimeout is the hard per-item wall clock limit. Zero disables.
	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

// StoreConfig selects the queue persistence backend by URL:
// "memory://", "badger://<path>" or "redis://host:port/db".
type StoreConfig struct {
	URL string `yaml:"url"`
	// TTL applied to items in a terminal state so the store does not
	// accumulate history forever.
	CompletedTTL time.Duration `yaml:"completed_ttl"`
}

// EngineConfig locates the external fetcher binaries. Empty values fall
// back to a PATH lookup at probe time.
type EngineConfig struct {
	YtdlpPath      string `yaml:"ytdlp_path"`
	Aria2cPath     string `yaml:"aria2c_path"`
	StreamlinkPath string `yaml:"streamlink_path"`
	GalleryDLPath  string `yaml:"gallerydl_path"`
	JavaPath       string `yaml:"java_path"`
	RipmeJarPath   string `yaml:"ripme_jar_path"`
	// Aria2Connections is the per-server connection count handed to aria2c.
	Aria2Connections int `yaml:"aria2_connections"`
	// StopGrace is how long a cancelled engine process gets between
	// SIGTERM and SIGKILL.
	StopGrace time.Duration `yaml:"stop_grace"`
}

// RulesConfig governs the rules engine.
type RulesConfig struct {
	// File is the JSON rules file. Defaults to <data_dir>/rules.json.
	File string `yaml:"file"`
	// Watch enables hot reload on file changes.
	Watch bool `yaml:"watch"`
}

// EventsConfig governs the event bus.
type EventsConfig struct {
	// HistorySize bounds the replay ring.
	HistorySize int `yaml:"history_size"`
}

// ServerConfig governs the HTTP surface.
type ServerConfig struct {
	// RateLimit is requests per minute per client IP. Zero disables.
	RateLimit int `yaml:"rate_limit"`
	// ShutdownGrace bounds graceful HTTP shutdown.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// Defaults returns the configuration used when neither file nor
// environment say otherwise.
func Defaults() Config {
	return Config{
		ListenAddr: ":8090",
		OutputDir:  "downloads",
		DataDir:    "data",
		LogLevel:   "info",
		Queue: QueueConfig{
			MaxConcurrent:   3,
			MaxBandwidth:    0,
			MaxRetries:      3,
			RetryBaseDelay:  2 * time.Second,
			RetryMaxDelay:   5 * time.Minute,
			DownloadTimeout: 0,
		},
		Store: StoreConfig{
			URL:          "memory://",
			CompletedTTL: 7 * 24 * time.Hour,
		},
		Engines: EngineConfig{
			Aria2Connections: 16,
			StopGrace:        5 * time.Second,
		},
		Rules: RulesConfig{
			Watch: true,
		},
		Events: EventsConfig{
			HistorySize: 1000,
		},
		Server: ServerConfig{
			RateLimit:     300,
			ShutdownGrace: 10 * time.Second,
		},
	}
}
