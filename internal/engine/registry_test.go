package engine

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grabby/grabbyd/internal/event"
	"github.com/grabby/grabbyd/internal/queue"
)

const (
	eventuallyWait = 2 * time.Second
	eventuallyTick = 10 * time.Millisecond
)

type stubAdapter struct {
	tag       string
	available bool
	pattern   *regexp.Regexp
	result    queue.Result
	ran       bool
}

func (s *stubAdapter) Tag() string     { return s.tag }
func (s *stubAdapter) Available() bool { return s.available }
func (s *stubAdapter) Handles(url string) bool {
	return s.pattern != nil && s.pattern.MatchString(url)
}
func (s *stubAdapter) Run(ctx context.Context, req Request, sink ProgressSink) queue.Result {
	s.ran = true
	return s.result
}

func testRegistry(t *testing.T, adapters ...Adapter) (*Registry, *event.Bus) {
	t.Helper()
	bus := event.NewBus(64)
	t.Cleanup(bus.Close)
	reg := newRegistry(bus, t.TempDir(), nil, adapters...)
	return reg, bus
}

func TestSelectPrefersSpecializedAdapters(t *testing.T) {
	live := &stubAdapter{tag: "live", available: true, pattern: regexp.MustCompile(`twitch`)}
	gallery := &stubAdapter{tag: "gallery", available: true, pattern: regexp.MustCompile(`twitter|instagram`)}
	general := &stubAdapter{tag: "general", available: true, pattern: regexp.MustCompile(`twitter|youtube`)}
	reg, _ := testRegistry(t, live, gallery, general)

	// Both gallery and general claim twitter; order decides.
	a, ok := reg.Select("https://twitter.com/u/status/1", "")
	require.True(t, ok)
	assert.Equal(t, "gallery", a.Tag())

	a, ok = reg.Select("https://youtube.com/watch?v=x", "")
	require.True(t, ok)
	assert.Equal(t, "general", a.Tag())
}

func TestSelectHonorsPreferredTag(t *testing.T) {
	gallery := &stubAdapter{tag: "gallery", available: true, pattern: regexp.MustCompile(`twitter`)}
	general := &stubAdapter{tag: "general", available: true, pattern: regexp.MustCompile(`twitter`)}
	reg, _ := testRegistry(t, gallery, general)

	a, ok := reg.Select("https://twitter.com/u/status/1", "general")
	require.True(t, ok)
	assert.Equal(t, "general", a.Tag())
}

func TestSelectSkipsUnavailable(t *testing.T) {
	gallery := &stubAdapter{tag: "gallery", available: false, pattern: regexp.MustCompile(`twitter`)}
	general := &stubAdapter{tag: "general", available: true, pattern: regexp.MustCompile(`twitter`)}
	reg, _ := testRegistry(t, gallery, general)

	a, ok := reg.Select("https://twitter.com/u/status/1", "gallery")
	require.True(t, ok, "preferred-but-unavailable must fall through")
	assert.Equal(t, "general", a.Tag())

	_, ok = reg.Select("https://nowhere.example", "")
	assert.False(t, ok)
}

func TestFetchNoEngineIsPermanent(t *testing.T) {
	reg, bus := testRegistry(t)

	var mu sync.Mutex
	var errs []event.Event
	bus.Subscribe(event.EngineError, func(_ context.Context, ev event.Event) {
		mu.Lock()
		errs = append(errs, ev)
		mu.Unlock()
	})

	res := reg.Fetch(context.Background(), queue.Item{ID: "x1", URL: "https://nowhere.example"}, nil)
	assert.False(t, res.Success)
	assert.True(t, res.Permanent)
	assert.Equal(t, "no engine available", res.Message)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) == 1
	}, eventuallyWait, eventuallyTick)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "x1", errs[0].Data.Str("item_id"))
}

func TestFetchClassifiesPermanentFailures(t *testing.T) {
	gone := &stubAdapter{
		tag:       "general",
		available: true,
		pattern:   regexp.MustCompile(`.`),
		result:    queue.Result{Message: "HTTP Error 404: Not Found"},
	}
	reg, _ := testRegistry(t, gone)

	res := reg.Fetch(context.Background(), queue.Item{ID: "x1", URL: "https://example.com/v"}, nil)
	assert.False(t, res.Success)
	assert.True(t, res.Permanent)
	assert.Equal(t, "general", res.Engine)
	assert.True(t, gone.ran)
}

func TestFetchTransientFailureStaysRetryable(t *testing.T) {
	flaky := &stubAdapter{
		tag:       "general",
		available: true,
		pattern:   regexp.MustCompile(`.`),
		result:    queue.Result{Message: "connection reset by peer"},
	}
	reg, _ := testRegistry(t, flaky)

	res := reg.Fetch(context.Background(), queue.Item{ID: "x1", URL: "https://example.com/v"}, nil)
	assert.False(t, res.Success)
	assert.False(t, res.Permanent)
}

func TestFetchPublishesSwitchOnFallback(t *testing.T) {
	general := &stubAdapter{
		tag:       "general",
		available: true,
		pattern:   regexp.MustCompile(`.`),
		result:    queue.Result{Success: true},
	}
	reg, bus := testRegistry(t, general)

	var mu sync.Mutex
	var got []event.Type
	for _, typ := range []event.Type{event.EngineSwitched, event.EngineSelected} {
		bus.Subscribe(typ, func(_ context.Context, ev event.Event) {
			mu.Lock()
			got = append(got, ev.Type)
			mu.Unlock()
		})
	}

	item := queue.Item{ID: "x1", URL: "https://example.com/v",
		Options: queue.Options{Engine: "missing"}}
	res := reg.Fetch(context.Background(), item, nil)
	require.True(t, res.Success)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, eventuallyWait, eventuallyTick)
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, got, event.EngineSwitched)
	assert.Contains(t, got, event.EngineSelected)
}

func TestEnginesReportsAvailability(t *testing.T) {
	a := &stubAdapter{tag: "a", available: true}
	b := &stubAdapter{tag: "b", available: false}
	reg, _ := testRegistry(t, a, b)

	descs := reg.Engines()
	require.Len(t, descs, 2)
	assert.Equal(t, Descriptor{Tag: "a", Available: true}, descs[0])
	assert.Equal(t, Descriptor{Tag: "b", Available: false}, descs[1])
}

func TestExpandWithoutExtractor(t *testing.T) {
	reg, _ := testRegistry(t)
	_, err := reg.Expand(context.Background(), "https://youtube.com/playlist?list=PL1")
	assert.ErrorIs(t, err, ErrNoEngine)
}
