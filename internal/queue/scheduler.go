package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/grabby/grabbyd/internal/event"
	"github.com/grabby/grabbyd/internal/log"
	"github.com/grabby/grabbyd/internal/metrics"
	"github.com/grabby/grabbyd/internal/store"
)

var (
	// ErrDuplicate is returned by Add when the URL is already tracked and
	// skipDuplicates is requested. Not a failure.
	ErrDuplicate = errors.New("duplicate URL skipped")
	// ErrNotFound is returned for operations on unknown item ids.
	ErrNotFound = errors.New("queue item not found")
	// ErrInvalidTransition is returned when an operation is not legal in
	// the item's current state.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Config carries the scheduler's tunables.
type Config struct {
	MaxConcurrent int
	// BandwidthCap bounds the reservation sum; zero means unbounded.
	BandwidthCap int64
	// DefaultItemBandwidth is the per-item quantum reserved when an item
	// does not name its own target.
	DefaultItemBandwidth int64
	MaxRetries           int
	RetryBase            time.Duration
	RetryMax             time.Duration
	// DownloadTimeout is the hard per-item ceiling; zero disables it.
	DownloadTimeout time.Duration
	// CompletedTTL ages terminal items out of the store.
	CompletedTTL time.Duration
}

const defaultItemBandwidth = 1 << 20 // 1 MiB/s

// Scheduler is the single owner of mutable queue state. Every mutation
// is serialized through its mutex. Events are published before the lock
// is released so observers see transitions in the order they happened;
// this is safe because bus handlers run on their own dispatcher
// goroutines and never re-enter the scheduler synchronously.
type Scheduler struct {
	cfg    Config
	bus    *event.Bus
	store  store.Store
	logger zerolog.Logger

	mu        sync.Mutex
	items     map[string]*Item
	pending   itemHeap
	active    map[string]context.CancelFunc
	playlists map[string]*Playlist
	dedup     *DuplicateDetector
	bandwidth *BandwidthLedger
	retry     RetryPolicy
	stats     Statistics

	wake chan struct{}
}

// Statistics are the monotonic scheduler counters.
type Statistics struct {
	TotalAdded        uint64 `json:"total_added"`
	TotalCompleted    uint64 `json:"total_completed"`
	TotalFailed       uint64 `json:"total_failed"`
	DuplicatesSkipped uint64 `json:"duplicates_skipped"`
}

// NewScheduler wires the scheduler to its bus and persistence backend.
func NewScheduler(cfg Config, bus *event.Bus, st store.Store) *Scheduler {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.DefaultItemBandwidth <= 0 {
		cfg.DefaultItemBandwidth = defaultItemBandwidth
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RetryMax < cfg.RetryBase {
		cfg.RetryMax = 300 * time.Second
	}
	return &Scheduler{
		cfg:       cfg,
		bus:       bus,
		store:     st,
		logger:    log.WithComponent("scheduler"),
		items:     make(map[string]*Item),
		active:    make(map[string]context.CancelFunc),
		playlists: make(map[string]*Playlist),
		dedup:     NewDuplicateDetector(),
		bandwidth: NewBandwidthLedger(cfg.BandwidthCap),
		retry:     RetryPolicy{Base: cfg.RetryBase, Max: cfg.RetryMax},
		wake:      make(chan struct{}, 1),
	}
}

// Wake is signaled whenever an item may have become admittable.
func (s *Scheduler) Wake() <-chan struct{} { return s.wake }

func (s *Scheduler) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Load restores persisted items. Items found mid-download are demoted to
// pending: their external processes did not survive the restart.
func (s *Scheduler) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	err := s.store.Scan(ctx, func(id string, data []byte) error {
		var it Item
		if err := json.Unmarshal(data, &it); err != nil {
			s.logger.Warn().Err(err).Str("item_id", id).Msg("skipping unreadable queue record")
			return nil
		}
		// Terminal records only feed duplicate detection.
		s.dedup.AddURL(it.URL)
		if it.Progress.Title != "" {
			s.dedup.AddTitle(it.Progress.Title)
		}
		if it.Status.Terminal() {
			return nil
		}

		if it.Status == StatusDownloading {
			it.Status = StatusPending
			it.StartedAt = nil
		}
		s.items[it.ID] = &it
		if it.Status == StatusPending || it.Status == StatusRetrying {
			s.pending.push(&it)
		}
		s.linkPlaylist(&it)
		restored++
		return nil
	})
	if err != nil {
		return fmt.Errorf("load queue state: %w", err)
	}
	s.logger.Info().Int("items", restored).Msg("queue state restored")
	s.updateGauges()
	s.signalWake()
	return nil
}

func (s *Scheduler) linkPlaylist(it *Item) {
	if it.PlaylistID == "" || it.ExpandPending {
		return
	}
	pl := s.playlists[it.PlaylistID]
	if pl == nil {
		pl = &Playlist{ID: it.PlaylistID}
		s.playlists[it.PlaylistID] = pl
	}
	pl.ChildIDs = append(pl.ChildIDs, it.ID)
	pl.Total++
	switch it.Status {
	case StatusCompleted:
		pl.Done++
	case StatusFailed, StatusCancelled:
		pl.Failed++
	}
}

// Add admits a URL into the queue. With skipDuplicates it returns
// ErrDuplicate when the normalized URL is already tracked.
func (s *Scheduler) Add(ctx context.Context, url string, priority Priority, opts Options, skipDuplicates bool) (string, error) {
	s.mu.Lock()
	if skipDuplicates && s.dedup.KnownURL(url) {
		s.stats.DuplicatesSkipped++
		metrics.QueueDuplicates.Inc()
		s.mu.Unlock()
		return "", ErrDuplicate
	}
	it, evs := s.insert(url, priority, opts, "", 0, false)
	s.publish(ctx, evs)
	s.mu.Unlock()
	s.signalWake()
	return it.ID, nil
}

// AddPlaylist inserts a placeholder for a recognized playlist URL; the
// placeholder expands into children at admission time. Unrecognized URLs
// behave like Add.
func (s *Scheduler) AddPlaylist(ctx context.Context, url string, priority Priority, opts Options) ([]string, error) {
	platform, ok := DetectPlaylist(url)
	if !ok {
		id, err := s.Add(ctx, url, priority, opts, true)
		if errors.Is(err, ErrDuplicate) {
			return nil, err
		}
		return []string{id}, err
	}

	playlistID := ExtractPlaylistID(url)
	if playlistID == "" {
		playlistID = NewItemID(url, time.Now())
	}

	s.mu.Lock()
	if s.dedup.KnownURL(url) {
		s.stats.DuplicatesSkipped++
		metrics.QueueDuplicates.Inc()
		s.mu.Unlock()
		return nil, ErrDuplicate
	}
	it, evs := s.insert(url, priority, opts, playlistID, 0, true)
	if s.playlists[playlistID] == nil {
		s.playlists[playlistID] = &Playlist{ID: playlistID, Platform: platform, URL: url}
	}
	s.publish(ctx, evs)
	s.mu.Unlock()
	s.signalWake()
	return []string{it.ID}, nil
}

// insert creates and indexes an item. Caller holds the lock.
func (s *Scheduler) insert(url string, priority Priority, opts Options, playlistID string, playlistIndex int, expandPending bool) (*Item, []event.Event) {
	now := time.Now()
	it := &Item{
		ID:            NewItemID(url, now),
		URL:           url,
		Priority:      priority,
		Status:        StatusPending,
		CreatedAt:     now,
		MaxRetries:    s.cfg.MaxRetries,
		Options:       opts,
		PlaylistID:    playlistID,
		PlaylistIndex: playlistIndex,
		ExpandPending: expandPending,
	}
	s.items[it.ID] = it
	s.pending.push(it)
	s.dedup.AddURL(url)
	s.stats.TotalAdded++
	metrics.QueueItemsAdded.Inc()
	s.persist(it)
	s.updateGauges()

	s.logger.Info().
		Str("item_id", it.ID).
		Str("url", url).
		Str("priority", priority.String()).
		Msg("item added to queue")

	return it, []event.Event{
		event.New(event.QueueItemAdded, "scheduler", s.itemData(it)),
		event.New(event.DownloadQueued, "scheduler", s.itemData(it)),
	}
}

// Next returns the next admittable item and a context the worker must
// run it under; the context derives from ctx, is cancelled on
// cancel/pause and carries the hard timeout. Returns ok=false when
// nothing is admittable.
func (s *Scheduler) Next(ctx context.Context) (Item, context.Context, bool) {
	s.mu.Lock()

	if len(s.active) >= s.cfg.MaxConcurrent {
		s.mu.Unlock()
		return Item{}, nil, false
	}

	now := time.Now()
	var notReady []*Item
	var admitted *Item

	for s.pending.Len() > 0 {
		it := s.pending.pop()

		// Stale heap entries: the authoritative state lives in items.
		if s.items[it.ID] != it {
			continue
		}
		if it.Status != StatusPending && it.Status != StatusRetrying {
			continue
		}
		if _, running := s.active[it.ID]; running {
			continue
		}
		if it.Status == StatusRetrying && it.NextAttempt != nil && now.Before(*it.NextAttempt) {
			notReady = append(notReady, it)
			continue
		}

		need := it.BandwidthLimit
		if need <= 0 {
			need = s.cfg.DefaultItemBandwidth
		}
		if !s.bandwidth.Allocate(it.ID, need) {
			// Gate failure does not reorder: the item keeps its slot.
			notReady = append(notReady, it)
			break
		}

		admitted = it
		break
	}
	for _, it := range notReady {
		s.pending.push(it)
	}

	if admitted == nil {
		s.mu.Unlock()
		return Item{}, nil, false
	}

	started := now
	admitted.Status = StatusDownloading
	admitted.StartedAt = &started
	admitted.NextAttempt = nil

	var runCtx context.Context
	var cancel context.CancelFunc
	if s.cfg.DownloadTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.DownloadTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	s.active[admitted.ID] = cancel

	s.persist(admitted)
	s.updateGauges()
	snapshot := *admitted
	evs := []event.Event{
		event.New(event.DownloadStarted, "scheduler", s.itemData(admitted)),
		event.New(event.QueueStatusChanged, "scheduler", s.itemData(admitted)),
	}
	s.publish(ctx, evs)
	s.mu.Unlock()
	return snapshot, runCtx, true
}

// Complete finalizes a download attempt. On failure the retry policy
// decides between rescheduling and the failed state; permanent failures
// never retry. Calling Complete on an item no longer downloading is a
// no-op, which makes the worker's reporting safe after cancel or pause.
func (s *Scheduler) Complete(ctx context.Context, itemID string, success bool, errText string, permanent bool) error {
	s.mu.Lock()
	it, ok := s.items[itemID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if it.Status != StatusDownloading {
		s.mu.Unlock()
		return nil
	}

	s.releaseSlot(itemID)
	var evs []event.Event
	now := time.Now()

	if success {
		it.Status = StatusCompleted
		it.CompletedAt = &now
		it.Error = ""
		s.stats.TotalCompleted++
		metrics.QueueItemsCompleted.Inc()
		if it.Progress.Title != "" {
			s.dedup.AddTitle(it.Progress.Title)
		}
		evs = append(evs, event.New(event.DownloadCompleted, "scheduler", s.itemData(it)))
		evs = append(evs, s.playlistChildDone(it, true)...)
	} else {
		it.Error = errText
		if !permanent && s.retry.ShouldRetry(it, now) {
			delay := s.retry.Schedule(it, now)
			it.Status = StatusRetrying
			s.pending.push(it)
			metrics.QueueRetries.Inc()
			time.AfterFunc(delay+10*time.Millisecond, s.signalWake)
			s.logger.Info().
				Str("item_id", it.ID).
				Dur("delay", delay).
				Int("attempt", it.RetryCount).
				Msg("retry scheduled")
		} else {
			it.Status = StatusFailed
			it.CompletedAt = &now
			s.stats.TotalFailed++
			metrics.QueueItemsFailed.Inc()
			evs = append(evs, event.New(event.DownloadFailed, "scheduler", s.itemData(it)))
			evs = append(evs, s.playlistChildDone(it, false)...)
		}
	}

	evs = append(evs, event.New(event.QueueStatusChanged, "scheduler", s.itemData(it)))
	s.persist(it)
	s.updateGauges()
	s.publish(ctx, evs)
	s.mu.Unlock()
	s.signalWake()
	return nil
}

// releaseSlot frees bandwidth and the concurrency slot. Caller holds the
// lock.
func (s *Scheduler) releaseSlot(itemID string) {
	s.bandwidth.Release(itemID)
	if cancel, ok := s.active[itemID]; ok {
		delete(s.active, itemID)
		cancel()
	}
}

// Cancel moves an item to cancelled from any non-terminal state and
// stops its worker. Cancelling an already-cancelled item is a no-op.
func (s *Scheduler) Cancel(ctx context.Context, itemID string) error {
	s.mu.Lock()
	it, ok := s.items[itemID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if it.Status == StatusCancelled {
		s.mu.Unlock()
		return nil
	}
	if it.Status.Terminal() {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, itemID, it.Status)
	}

	s.releaseSlot(itemID)
	now := time.Now()
	it.Status = StatusCancelled
	it.CompletedAt = &now
	evs := []event.Event{
		event.New(event.DownloadCancelled, "scheduler", s.itemData(it)),
		event.New(event.QueueStatusChanged, "scheduler", s.itemData(it)),
	}
	evs = append(evs, s.playlistChildDone(it, false)...)
	s.persist(it)
	s.updateGauges()
	s.publish(ctx, evs)
	s.mu.Unlock()
	s.signalWake()
	return nil
}

// Pause holds an item. From downloading it also stops the worker's
// process; the partial download is abandoned.
func (s *Scheduler) Pause(ctx context.Context, itemID string) error {
	s.mu.Lock()
	it, ok := s.items[itemID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if !canTransition(it.Status, StatusPaused) {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot pause %s item", ErrInvalidTransition, it.Status)
	}

	s.releaseSlot(itemID)
	it.Status = StatusPaused
	it.StartedAt = nil
	evs := []event.Event{
		event.New(event.DownloadPaused, "scheduler", s.itemData(it)),
		event.New(event.QueueStatusChanged, "scheduler", s.itemData(it)),
	}
	s.persist(it)
	s.updateGauges()
	s.publish(ctx, evs)
	s.mu.Unlock()
	s.signalWake()
	return nil
}

// Resume returns a paused item to pending; it re-enters ordering
// normally and does not jump the queue.
func (s *Scheduler) Resume(ctx context.Context, itemID string) error {
	s.mu.Lock()
	it, ok := s.items[itemID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if it.Status != StatusPaused {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot resume %s item", ErrInvalidTransition, it.Status)
	}

	it.Status = StatusPending
	s.pending.push(it)
	evs := []event.Event{
		event.New(event.DownloadResumed, "scheduler", s.itemData(it)),
		event.New(event.QueueStatusChanged, "scheduler", s.itemData(it)),
	}
	s.persist(it)
	s.updateGauges()
	s.publish(ctx, evs)
	s.mu.Unlock()
	s.signalWake()
	return nil
}

// UpdateProgress is the scoped capability handed to engine adapters: it
// may touch progress fields only.
func (s *Scheduler) UpdateProgress(ctx context.Context, itemID string, p Progress) {
	s.mu.Lock()
	it, ok := s.items[itemID]
	if !ok || it.Status != StatusDownloading {
		s.mu.Unlock()
		return
	}
	if p.Title == "" {
		p.Title = it.Progress.Title
	}
	it.Progress = p
	data := s.itemData(it)
	s.mu.Unlock()

	s.publish(ctx, []event.Event{event.New(event.DownloadProgress, "scheduler", data)})
}

// ResolvePlaylist replaces an expansion placeholder with its children.
// The placeholder completes; each child is admitted individually with
// playlist linkage.
func (s *Scheduler) ResolvePlaylist(ctx context.Context, placeholderID string, entries []PlaylistEntry) ([]string, error) {
	s.mu.Lock()
	placeholder, ok := s.items[placeholderID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if !placeholder.ExpandPending || placeholder.Status != StatusDownloading {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: item is not an expanding playlist", ErrInvalidTransition)
	}

	playlistID := placeholder.PlaylistID
	pl := s.playlists[playlistID]
	if pl == nil {
		pl = &Playlist{ID: playlistID, URL: placeholder.URL}
		s.playlists[playlistID] = pl
	}

	s.releaseSlot(placeholderID)
	now := time.Now()
	placeholder.Status = StatusCompleted
	placeholder.CompletedAt = &now
	s.persist(placeholder)

	evs := []event.Event{
		event.New(event.PlaylistStarted, "scheduler", event.Data{
			"playlist_id": playlistID,
			"url":         placeholder.URL,
			"total":       float64(len(entries)),
		}),
		event.New(event.QueueStatusChanged, "scheduler", s.itemData(placeholder)),
	}

	ids := make([]string, 0, len(entries))
	for i, entry := range entries {
		if s.dedup.KnownURL(entry.URL) {
			s.stats.DuplicatesSkipped++
			metrics.QueueDuplicates.Inc()
			continue
		}
		child, childEvs := s.insert(entry.URL, placeholder.Priority, placeholder.Options, playlistID, i+1, false)
		if entry.Title != "" {
			child.Progress.Title = entry.Title
		}
		pl.ChildIDs = append(pl.ChildIDs, child.ID)
		pl.Total++
		ids = append(ids, child.ID)
		evs = append(evs, childEvs...)
	}
	s.updateGauges()
	s.publish(ctx, evs)
	s.mu.Unlock()
	s.signalWake()
	return ids, nil
}

// playlistChildDone updates playlist counters on a child's terminal
// transition. Caller holds the lock.
func (s *Scheduler) playlistChildDone(it *Item, success bool) []event.Event {
	if it.PlaylistID == "" || it.ExpandPending {
		return nil
	}
	pl := s.playlists[it.PlaylistID]
	if pl == nil {
		return nil
	}
	var evs []event.Event
	if success {
		pl.Done++
		evs = append(evs, event.New(event.PlaylistItemCompleted, "scheduler", event.Data{
			"playlist_id": pl.ID,
			"item_id":     it.ID,
			"done":        float64(pl.Done),
			"total":       float64(pl.Total),
		}))
	} else {
		pl.Failed++
	}
	if pl.Finished() {
		typ := event.PlaylistCompleted
		if pl.Done == 0 {
			typ = event.PlaylistFailed
		}
		evs = append(evs, event.New(typ, "scheduler", event.Data{
			"playlist_id": pl.ID,
			"done":        float64(pl.Done),
			"failed":      float64(pl.Failed),
			"total":       float64(pl.Total),
		}))
	}
	return evs
}

// Item returns a snapshot of one item.
func (s *Scheduler) Item(itemID string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// ItemsByStatus returns snapshots of every item in the given status.
func (s *Scheduler) ItemsByStatus(status Status) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Item
	for _, it := range s.items {
		if it.Status == status {
			out = append(out, *it)
		}
	}
	return out
}

// BandwidthSnapshot reports the ledger state.
type BandwidthSnapshot struct {
	AllocatedBps int64 `json:"allocated_bps"`
	CapBps       int64 `json:"cap_bps"`
	Active       int   `json:"active"`
}

// Snapshot is the scheduler's public status view.
type Snapshot struct {
	TotalItems      int               `json:"total_items"`
	ActiveDownloads int               `json:"active_downloads"`
	QueueDepth      int               `json:"queue_depth"`
	StatusCounts    map[Status]int    `json:"status_breakdown"`
	Bandwidth       BandwidthSnapshot `json:"bandwidth"`
	Stats           Statistics        `json:"statistics"`
}

// Status returns the current queue snapshot.
func (s *Scheduler) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[Status]int)
	depth := 0
	for _, it := range s.items {
		counts[it.Status]++
		if it.Status == StatusPending || it.Status == StatusRetrying {
			depth++
		}
	}
	return Snapshot{
		TotalItems:      len(s.items),
		ActiveDownloads: len(s.active),
		QueueDepth:      depth,
		StatusCounts:    counts,
		Bandwidth: BandwidthSnapshot{
			AllocatedBps: s.bandwidth.Allocated(),
			CapBps:       s.bandwidth.Cap(),
			Active:       s.bandwidth.Active(),
		},
		Stats: s.stats,
	}
}

// PurgeCompleted removes terminal items from memory and the store;
// finished playlists go with them.
func (s *Scheduler) PurgeCompleted(ctx context.Context) int {
	s.mu.Lock()
	var purged []string
	for id, it := range s.items {
		if it.Status.Terminal() {
			purged = append(purged, id)
			delete(s.items, id)
		}
	}
	for id, pl := range s.playlists {
		if pl.Finished() {
			delete(s.playlists, id)
		}
	}
	s.updateGauges()
	s.mu.Unlock()

	for _, id := range purged {
		if err := s.store.Delete(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("item_id", id).Msg("failed to purge stored item")
		}
	}
	if len(purged) > 0 {
		s.publish(ctx, []event.Event{event.New(event.QueueItemRemoved, "scheduler", event.Data{
			"count": float64(len(purged)),
		})})
	}
	return len(purged)
}

// persist writes the item through to the store. Persistence failures
// degrade to in-memory operation. Caller holds the lock.
func (s *Scheduler) persist(it *Item) {
	data, err := json.Marshal(it)
	if err != nil {
		s.logger.Error().Err(err).Str("item_id", it.ID).Msg("failed to encode queue item")
		return
	}
	var ttl time.Duration
	if it.Status.Terminal() {
		ttl = s.cfg.CompletedTTL
	}
	if err := s.store.Put(context.Background(), it.ID, data, ttl); err != nil {
		s.logger.Warn().Err(err).Str("item_id", it.ID).Msg("queue persistence degraded to memory")
		go s.publish(context.Background(), []event.Event{
			event.New(event.SystemError, "scheduler", event.Data{
				"error": err.Error(),
				"scope": "persistence",
			}),
		})
	}
}

// updateGauges refreshes the prometheus gauges. Caller holds the lock.
func (s *Scheduler) updateGauges() {
	metrics.QueueActive.Set(float64(len(s.active)))
	metrics.BandwidthReserved.Set(float64(s.bandwidth.Allocated()))
	depth := 0
	for _, it := range s.items {
		if it.Status == StatusPending || it.Status == StatusRetrying {
			depth++
		}
	}
	metrics.QueueDepth.Set(float64(depth))
}

func (s *Scheduler) publish(ctx context.Context, evs []event.Event) {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, ev := range evs {
		if err := s.bus.Publish(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("event publish failed")
		}
	}
}

// itemData builds the event payload for an item. Caller holds the lock.
func (s *Scheduler) itemData(it *Item) event.Data {
	d := event.Data{
		"item_id":  it.ID,
		"url":      it.URL,
		"status":   string(it.Status),
		"priority": it.Priority.String(),
	}
	if it.Error != "" {
		d["error"] = it.Error
	}
	if it.Engine != "" {
		d["engine"] = it.Engine
	}
	if it.PlaylistID != "" {
		d["playlist_id"] = it.PlaylistID
	}
	if it.Progress.Title != "" {
		d["title"] = it.Progress.Title
	}
	if it.Progress.Percentage > 0 {
		d["percentage"] = it.Progress.Percentage
		d["downloaded_bytes"] = float64(it.Progress.DownloadedBytes)
		d["total_bytes"] = float64(it.Progress.TotalBytes)
		d["speed"] = it.Progress.Speed
		d["eta"] = it.Progress.ETA
	}
	return d
}
