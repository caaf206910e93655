package engine

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog"

	"github.com/grabby/grabbyd/internal/config"
	"github.com/grabby/grabbyd/internal/event"
	"github.com/grabby/grabbyd/internal/log"
	"github.com/grabby/grabbyd/internal/queue"
)

// ErrNoEngine reports that no available adapter claims a URL.
var ErrNoEngine = errors.New("no engine available")

// Descriptor is the externally visible state of one adapter.
type Descriptor struct {
	Tag       string `json:"tag"`
	Available bool   `json:"available"`
}

// Registry owns the adapters in router preference order (specialized
// before general) and executes fetches on behalf of the scheduler's
// workers. It implements the worker pool's fetcher and playlist
// expander contracts.
type Registry struct {
	// adapters is ordered: first claimant wins during auto-selection.
	adapters  []Adapter
	byTag     map[string]Adapter
	expander  *YtDlp
	bus       *event.Bus
	outputDir string
	logger    zerolog.Logger
}

// NewRegistry builds the standard four-adapter registry from the
// engine configuration. Auto-selection prefers the live recorder, then
// the gallery scraper, then the image ripper, with the general video
// extractor as fallback.
func NewRegistry(bus *event.Bus, cfg config.EngineConfig, outputDir string) *Registry {
	runner := NewRunner(cfg.StopGrace)
	ytdlp := NewYtDlp(cfg.YtdlpPath, cfg.Aria2cPath, cfg.Aria2Connections, runner)
	adapters := []Adapter{
		NewStreamlink(cfg.StreamlinkPath, runner),
		NewGalleryDL(cfg.GalleryDLPath, runner),
		NewRipme(cfg.JavaPath, cfg.RipmeJarPath, runner),
		ytdlp,
	}
	return newRegistry(bus, outputDir, ytdlp, adapters...)
}

// newRegistry wires an explicit adapter list, used directly by tests.
func newRegistry(bus *event.Bus, outputDir string, expander *YtDlp, adapters ...Adapter) *Registry {
	byTag := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		byTag[a.Tag()] = a
	}
	return &Registry{
		adapters:  adapters,
		byTag:     byTag,
		expander:  expander,
		bus:       bus,
		outputDir: outputDir,
		logger:    log.WithComponent("engine"),
	}
}

// Probe checks every adapter's executable once and logs the result.
func (r *Registry) Probe() []Descriptor {
	descs := make([]Descriptor, 0, len(r.adapters))
	for _, a := range r.adapters {
		d := Descriptor{Tag: a.Tag(), Available: a.Available()}
		descs = append(descs, d)
		r.logger.Info().Str("engine", d.Tag).Bool("available", d.Available).
			Msg("engine probed")
	}
	return descs
}

// Engines reports current adapter availability.
func (r *Registry) Engines() []Descriptor {
	descs := make([]Descriptor, 0, len(r.adapters))
	for _, a := range r.adapters {
		descs = append(descs, Descriptor{Tag: a.Tag(), Available: a.Available()})
	}
	return descs
}

// Select picks an adapter for a URL. A preferred tag wins when that
// adapter is available and claims the URL; otherwise the preference
// order decides. The second return is false when nothing claims it.
func (r *Registry) Select(url, preferred string) (Adapter, bool) {
	if preferred != "" {
		if a, ok := r.byTag[preferred]; ok && a.Available() && a.Handles(url) {
			return a, true
		}
	}
	for _, a := range r.adapters {
		if a.Available() && a.Handles(url) {
			return a, true
		}
	}
	return nil, false
}

// Fetch runs one admitted item through its engine. It satisfies the
// worker pool's fetcher contract.
func (r *Registry) Fetch(ctx context.Context, item queue.Item, progress func(queue.Progress)) queue.Result {
	preferred := item.Options.Engine
	adapter, ok := r.Select(item.URL, preferred)
	if !ok {
		r.publish(ctx, event.New(event.EngineError, "engine", event.Data{
			"item_id": item.ID,
			"url":     item.URL,
			"error":   ErrNoEngine.Error(),
		}))
		return queue.Result{Permanent: true, Message: ErrNoEngine.Error()}
	}

	tag := adapter.Tag()
	if preferred != "" && preferred != tag {
		r.publish(ctx, event.New(event.EngineSwitched, "engine", event.Data{
			"item_id": item.ID,
			"from":    preferred,
			"to":      tag,
		}))
	}
	r.publish(ctx, event.New(event.EngineSelected, "engine", event.Data{
		"item_id": item.ID,
		"url":     item.URL,
		"engine":  tag,
	}))

	req := Request{
		URL:       item.URL,
		OutputDir: item.Options.OutputDir,
		Quality:   item.Options.Quality,
		RateBps:   item.BandwidthLimit,
		Options:   item.Options,
	}
	if req.OutputDir == "" {
		req.OutputDir = r.outputDir
	}
	if err := os.MkdirAll(req.OutputDir, 0o750); err != nil {
		return queue.Result{Engine: tag, Message: "output dir: " + err.Error()}
	}

	res := adapter.Run(ctx, req, progress)
	if res.Engine == "" {
		res.Engine = tag
	}
	if !res.Success {
		res.Permanent = res.Permanent || PermanentFailure(res.Message)
		if ctx.Err() == nil {
			r.publish(ctx, event.New(event.EngineError, "engine", event.Data{
				"item_id": item.ID,
				"engine":  tag,
				"error":   res.Message,
			}))
		}
	}
	return res
}

// Expand resolves a playlist URL through the video extractor. It
// satisfies the worker pool's expander contract.
func (r *Registry) Expand(ctx context.Context, url string) ([]queue.PlaylistEntry, error) {
	if r.expander == nil || !r.expander.Available() {
		return nil, ErrNoEngine
	}
	return r.expander.ExpandPlaylist(ctx, url)
}

func (r *Registry) publish(ctx context.Context, ev event.Event) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(ctx, ev); err != nil {
		r.logger.Warn().Err(err).Str("type", string(ev.Type)).Msg("event publish failed")
	}
}
