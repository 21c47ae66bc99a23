package instrument

import (
	"context"
	"encoding/json"
	"fmt"
)

// InputsKey is the list holding serialized inputs of functionID
func InputsKey(functionID string) string { return functionID + ":inputs" }

// OutputsKey is the list holding serialized outputs of functionID
func OutputsKey(functionID string) string { return functionID + ":outputs" }

// Encoder turns a call input or output into the bytes stored in history
type Encoder func(v any) ([]byte, error)

// historyConfig holds RecordHistory options
type historyConfig struct {
	encodeInput  Encoder
	encodeOutput Encoder
}

// HistoryOption configures RecordHistory
type HistoryOption func(*historyConfig)

// WithInputEncoder replaces the JSON encoding of inputs
func WithInputEncoder(enc Encoder) HistoryOption {
	return func(c *historyConfig) { c.encodeInput = enc }
}

// WithOutputEncoder replaces the default formatting of outputs
func WithOutputEncoder(enc Encoder) HistoryOption {
	return func(c *historyConfig) { c.encodeOutput = enc }
}

// JSONEncoder encodes v as JSON
func JSONEncoder(v any) ([]byte, error) { return json.Marshal(v) }

// TextEncoder formats v with the %v verb; []byte values are kept as is
func TextEncoder(v any) ([]byte, error) {
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	return []byte(fmt.Sprint(v)), nil
}

// historyStore is the subset of store.Store RecordHistory needs
type historyStore interface {
	Append(ctx context.Context, key string, value []byte) error
}

// RecordHistory returns fn wrapped so each call appends its input to
// InputsKey(functionID) before fn runs and its output to
// OutputsKey(functionID) after. A failed call records "error: <msg>" as its
// output so sequential callers keep both lists index-aligned.
//
// Concurrent calls of the same function are not serialized: a faster call
// can record its output before a slower one that started first.
func RecordHistory[In, Out any](st historyStore, functionID string, fn Func[In, Out], opts ...HistoryOption) Func[In, Out] {
	cfg := historyConfig{
		encodeInput:  JSONEncoder,
		encodeOutput: TextEncoder,
	}
	for _, o := range opts {
		o(&cfg)
	}

	return func(ctx context.Context, in In) (Out, error) {
		var zero Out

		input, err := cfg.encodeInput(in)
		if err != nil {
			return zero, fmt.Errorf("encode input of %s: %w", functionID, err)
		}
		if err := st.Append(ctx, InputsKey(functionID), input); err != nil {
			return zero, fmt.Errorf("record input of %s: %w", functionID, err)
		}

		out, callErr := fn(ctx, in)

		var output []byte
		if callErr != nil {
			output = []byte("error: " + callErr.Error())
		} else if output, err = cfg.encodeOutput(out); err != nil {
			output = []byte("error: encode output: " + err.Error())
		}
		if err := st.Append(ctx, OutputsKey(functionID), output); err != nil {
			if callErr != nil {
				return out, callErr
			}
			return out, fmt.Errorf("record output of %s: %w", functionID, err)
		}
		return out, callErr
	}
}
