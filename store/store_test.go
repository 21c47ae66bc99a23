package store_test

import (
	"context"
	"errors"
	"math"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/callcache/store"
)

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// runContract checks the behaviour every Store implementation must share.
// wait moves time forward by at least d for the store under test.
func runContract(t *testing.T, st store.Store, wait func(d time.Duration)) {
	ctx := context.Background()

	t.Run("get absent", func(t *testing.T) {
		require.NoError(t, st.FlushAll(ctx))
		v, ok, err := st.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, v)
	})

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, st.FlushAll(ctx))
		require.NoError(t, st.Set(ctx, "k", []byte("one"), 0))
		require.NoError(t, st.Set(ctx, "k", []byte("two"), 0))
		v, ok, err := st.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "two", string(v))
	})

	t.Run("incr creates at delta", func(t *testing.T) {
		require.NoError(t, st.FlushAll(ctx))
		n, err := st.Incr(ctx, "counter", 5)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
		n, err = st.Incr(ctx, "counter", 1)
		require.NoError(t, err)
		assert.Equal(t, int64(6), n)

		v, ok, err := st.Get(ctx, "counter")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "6", string(v))
	})

	t.Run("incr on text fails without unavailable", func(t *testing.T) {
		require.NoError(t, st.FlushAll(ctx))
		require.NoError(t, st.Set(ctx, "text", []byte("hello"), 0))
		_, err := st.Incr(ctx, "text", 1)
		require.Error(t, err)
		assert.False(t, errors.Is(err, store.ErrUnavailable))
	})

	t.Run("incr refuses to overflow", func(t *testing.T) {
		require.NoError(t, st.FlushAll(ctx))
		n, err := st.Incr(ctx, "big", math.MaxInt64)
		require.NoError(t, err)
		require.Equal(t, int64(math.MaxInt64), n)

		_, err = st.Incr(ctx, "big", 1)
		require.Error(t, err)
		assert.False(t, errors.Is(err, store.ErrUnavailable))

		v, ok, err := st.Get(ctx, "big")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, strconv.FormatInt(math.MaxInt64, 10), string(v), "counter must not wrap")

		_, err = st.Incr(ctx, "small", math.MinInt64)
		require.NoError(t, err)
		_, err = st.Incr(ctx, "small", -1)
		require.Error(t, err)
	})

	t.Run("lists keep order", func(t *testing.T) {
		require.NoError(t, st.FlushAll(ctx))
		empty, err := st.List(ctx, "list")
		require.NoError(t, err)
		assert.Empty(t, empty)

		for _, v := range []string{"a", "b", "c"} {
			require.NoError(t, st.Append(ctx, "list", []byte(v)))
		}
		got, err := st.List(ctx, "list")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "a", string(got[0]))
		assert.Equal(t, "b", string(got[1]))
		assert.Equal(t, "c", string(got[2]))
	})

	t.Run("ttl expiry", func(t *testing.T) {
		require.NoError(t, st.FlushAll(ctx))
		require.NoError(t, st.Set(ctx, "ttl", []byte("v"), time.Second))
		_, ok, err := st.Get(ctx, "ttl")
		require.NoError(t, err)
		assert.True(t, ok, "entry should be readable before expiry")

		wait(1100 * time.Millisecond)
		_, ok, err = st.Get(ctx, "ttl")
		require.NoError(t, err)
		assert.False(t, ok, "entry should be absent after expiry")
	})

	t.Run("concurrent incr and append", func(t *testing.T) {
		require.NoError(t, st.FlushAll(ctx))
		var wg conc.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Go(func() {
				_, err := st.Incr(ctx, "hits", 1)
				assert.NoError(t, err)
				assert.NoError(t, st.Append(ctx, "log", []byte(strconv.Itoa(i))))
			})
		}
		wg.Wait()

		v, ok, err := st.Get(ctx, "hits")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "50", string(v))

		got, err := st.List(ctx, "log")
		require.NoError(t, err)
		assert.Len(t, got, 50)
	})

	t.Run("flush clears", func(t *testing.T) {
		require.NoError(t, st.Set(ctx, "x", []byte("1"), 0))
		require.NoError(t, st.FlushAll(ctx))
		_, ok, err := st.Get(ctx, "x")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryStore(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	st := store.NewMemoryStore(store.WithClock(clock.Now))
	runContract(t, st, clock.Advance)
}

func TestMemoryStore_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	st := store.NewMemoryStore(store.WithClock(clock.Now))

	require.NoError(t, st.Set(ctx, "k", []byte("v"), 10*time.Second))

	clock.Advance(10 * time.Second)
	_, ok, err := st.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "entry must not expire before its deadline has passed")

	clock.Advance(time.Nanosecond)
	_, ok, err = st.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_WrongType(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	require.NoError(t, st.Append(ctx, "list", []byte("a")))
	_, _, err := st.Get(ctx, "list")
	require.Error(t, err)

	require.NoError(t, st.Set(ctx, "str", []byte("a"), 0))
	require.Error(t, st.Append(ctx, "str", []byte("b")))
	_, err = st.List(ctx, "str")
	require.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	st := store.NewRedisStore(store.RedisOptions{Addr: mr.Addr()})
	defer func() { _ = st.Close() }()
	require.NoError(t, st.Ping(context.Background()))

	runContract(t, st, mr.FastForward)
}

func TestRedisStore_ReplyErrorsAreNotUnavailable(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	st := store.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer func() { _ = st.Close() }()

	require.NoError(t, st.Append(ctx, "list", []byte("a")))
	_, _, err := st.Get(ctx, "list")
	require.Error(t, err)
	var rerr redis.Error
	assert.ErrorAs(t, err, &rerr)
	assert.False(t, errors.Is(err, store.ErrUnavailable))

	mr.Close()
	_, _, err = st.Get(ctx, "list")
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestRedisStore_SetWithTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	st := store.NewRedisStore(store.RedisOptions{Addr: mr.Addr()})
	defer func() { _ = st.Close() }()

	require.NoError(t, st.Set(ctx, "k", []byte("v"), 10*time.Second))
	assert.Equal(t, 10*time.Second, mr.TTL("k"))

	require.NoError(t, st.Set(ctx, "forever", []byte("v"), 0))
	assert.Zero(t, mr.TTL("forever"))
}

func TestRedisStore_Live(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping live redis store test")
	}

	st := store.NewRedisStore(store.RedisOptions{Addr: addr, DB: 15})
	defer func() { _ = st.Close() }()
	require.NoError(t, st.Ping(context.Background()))

	runContract(t, st, time.Sleep)
}

func TestRedisStore_Unavailable(t *testing.T) {
	// Nothing listens on port 1.
	st := store.NewRedisStore(store.RedisOptions{Addr: "127.0.0.1:1"})
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := st.Get(ctx, "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)

	_, err = st.Incr(ctx, "k", 1)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}
