// Package instrument wraps functions so their calls are counted and their
// inputs and outputs are recorded in a store for later replay.
//
// Wrappers compose explicitly:
//
//	put := instrument.CountCalls(st, "Cache.store",
//		instrument.RecordHistory(st, "Cache.store", rawPut))
package instrument

import (
	"context"
	"fmt"
	"strconv"

	"github.com/briangreenhill/callcache/store"
)

// Func is the shape of a function that can be instrumented
type Func[In, Out any] func(ctx context.Context, in In) (Out, error)

// CountCalls returns fn wrapped so every invocation increments the counter
// stored under functionID before fn runs. Failed invocations are counted too.
// If the counter cannot be incremented fn is not called.
func CountCalls[In, Out any](st store.Counter, functionID string, fn Func[In, Out]) Func[In, Out] {
	return func(ctx context.Context, in In) (Out, error) {
		if _, err := st.Incr(ctx, functionID, 1); err != nil {
			var zero Out
			return zero, fmt.Errorf("count call %s: %w", functionID, err)
		}
		return fn(ctx, in)
	}
}

// CallCount reads the call counter for functionID, 0 if it was never called
func CallCount(ctx context.Context, st store.Getter, functionID string) (int64, error) {
	b, ok, err := st.Get(ctx, functionID)
	if err != nil {
		return 0, fmt.Errorf("read call count %s: %w", functionID, err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("call count %s is not an integer: %w", functionID, err)
	}
	return n, nil
}
