// Package memo stores arbitrary values behind generated handles and counts
// how often each function identity stored something.
package memo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	"github.com/briangreenhill/callcache/instrument"
	"github.com/briangreenhill/callcache/store"
)

// StoreFunctionID is the function identity Put counts and records under
const StoreFunctionID = "Cache.store"

// ErrUnsupportedValue is returned for values that have no byte encoding
var ErrUnsupportedValue = errors.New("unsupported value type")

// Producer computes the value to store
type Producer func(ctx context.Context) (any, error)

// Cache is the memoizing call cache. It keeps no state of its own.
type Cache struct {
	st     store.Store
	logger zerolog.Logger
	put    instrument.Func[any, string]
}

// Option configures a Cache
type Option func(*Cache)

// WithLogger sets the logger used for debug events
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a Cache over st
func New(st store.Store, opts ...Option) *Cache {
	c := &Cache{st: st, logger: zerolog.Nop()}
	for _, o := range opts {
		o(c)
	}
	c.put = instrument.RecordHistory(st, StoreFunctionID, func(ctx context.Context, v any) (string, error) {
		return c.Store(ctx, StoreFunctionID, func(context.Context) (any, error) { return v, nil })
	})
	return c
}

// Store runs produce, saves the result under a fresh random handle without
// expiry, then increments the call counter of functionID. The two writes
// are not atomic; a failure in between leaves the counter one short.
func (c *Cache) Store(ctx context.Context, functionID string, produce Producer) (string, error) {
	v, err := produce(ctx)
	if err != nil {
		return "", err
	}
	b, err := encode(v)
	if err != nil {
		return "", err
	}

	handle := uuid.NewString()
	if err := c.st.Set(ctx, handle, b, 0); err != nil {
		return "", fmt.Errorf("store value: %w", err)
	}
	if _, err := c.st.Incr(ctx, functionID, 1); err != nil {
		return "", fmt.Errorf("count %s: %w", functionID, err)
	}

	c.logger.Debug().Str("function_id", functionID).Str("handle", handle).Int("bytes", len(b)).Msg("stored value")
	return handle, nil
}

// Put stores v under StoreFunctionID and records the call in its history
func (c *Cache) Put(ctx context.Context, v any) (string, error) {
	return c.put(ctx, v)
}

// Get returns the raw bytes stored under handle; ok is false if absent
func (c *Cache) Get(ctx context.Context, handle string) ([]byte, bool, error) {
	return c.st.Get(ctx, handle)
}

// GetString returns the value under handle decoded as text
func (c *Cache) GetString(ctx context.Context, handle string) (string, bool, error) {
	return Retrieve(ctx, c, handle, AsString)
}

// GetInt returns the value under handle parsed as an integer
func (c *Cache) GetInt(ctx context.Context, handle string) (int64, bool, error) {
	return Retrieve(ctx, c, handle, AsInt)
}

// CallCount returns how many times functionID stored a value
func (c *Cache) CallCount(ctx context.Context, functionID string) (int64, error) {
	return instrument.CallCount(ctx, c.st, functionID)
}

// Retrieve reads handle and converts it with coerce. An absent handle
// returns ok=false and no error; a failed conversion returns *CoercionError.
func Retrieve[T any](ctx context.Context, c *Cache, handle string, coerce Coercer[T]) (T, bool, error) {
	var zero T
	b, ok, err := c.st.Get(ctx, handle)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := coerce(b)
	if err != nil {
		return zero, true, &CoercionError{Handle: handle, Target: fmt.Sprintf("%T", zero), Err: err}
	}
	return v, true, nil
}

// encode converts a stored value to bytes the way Redis clients do
func encode(v any) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64, bool:
		s, err := cast.ToStringE(t)
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}
