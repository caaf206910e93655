package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the shared contract against one backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "a", []byte(`{"url":"https://example.com/1"}`), 0))
	require.NoError(t, s.Put(ctx, "b", []byte(`{"url":"https://example.com/2"}`), 0))

	data, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"url":"https://example.com/1"}`, string(data))

	seen := map[string]string{}
	require.NoError(t, s.Scan(ctx, func(id string, data []byte) error {
		seen[id] = string(data)
		return nil
	}))
	assert.Len(t, seen, 2)
	assert.Contains(t, seen, "a")
	assert.Contains(t, seen, "b")

	require.NoError(t, s.Delete(ctx, "a"))
	_, ok, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	// Overwrite keeps the latest value.
	require.NoError(t, s.Put(ctx, "b", []byte(`{"url":"updated"}`), 0))
	data, ok, err = s.Get(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"url":"updated"}`, string(data))

	// Deleting a missing key is not an error.
	require.NoError(t, s.Delete(ctx, "never-existed"))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	exerciseStore(t, s)
}

func TestMemoryStoreTTL(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "short", []byte("x"), 10*time.Millisecond))
	_, ok, err := s.Get(ctx, "short")
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok, err = s.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "gone", []byte("x"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	count := 0
	require.NoError(t, s.Scan(ctx, func(string, []byte) error {
		count++
		return nil
	}))
	assert.Zero(t, count)
}

func TestBadgerStore(t *testing.T) {
	s, err := OpenBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestBadgerStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "persist", []byte("payload"), 0))
	require.NoError(t, s.Close())

	s, err = OpenBadgerStore(dir)
	require.NoError(t, err)
	defer s.Close()

	data, ok, err := s.Get(ctx, "persist")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "payload", string(data))
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := OpenRedisStore(&redis.Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore(t *testing.T) {
	s, _ := newRedisStore(t)
	exerciseStore(t, s)
}

func TestRedisStoreTTL(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "short", []byte("x"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := s.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreKeyNamespace(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "abc", []byte("x"), 0))
	assert.True(t, mr.Exists("queue_item:abc"))

	// Foreign keys are invisible to Scan.
	mr.Set("other:key", "y")
	ids := []string{}
	require.NoError(t, s.Scan(ctx, func(id string, _ []byte) error {
		ids = append(ids, id)
		return nil
	}))
	assert.Equal(t, []string{"abc"}, ids)
}

func TestOpenFactory(t *testing.T) {
	s, err := Open("memory://")
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)
	_ = s.Close()

	s, err = Open("")
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)
	_ = s.Close()

	s, err = Open("badger://" + t.TempDir())
	require.NoError(t, err)
	require.IsType(t, &BadgerStore{}, s)
	_ = s.Close()

	mr := miniredis.RunT(t)
	s, err = Open("redis://" + mr.Addr())
	require.NoError(t, err)
	require.IsType(t, &RedisStore{}, s)
	_ = s.Close()

	_, err = Open("badger://")
	require.Error(t, err)
	_, err = Open("bolt://x")
	require.Error(t, err)
}
