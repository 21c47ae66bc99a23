package instrument

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ErrHistoryMismatch marks a replay whose input and output lists differ in
// length. It is reported on Report.Warning, never returned as a failure.
var ErrHistoryMismatch = errors.New("history mismatch")

// Call is one recorded invocation
type Call struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Report is the reconstructed call history of one function
type Report struct {
	FunctionID string `json:"function_id"`
	Count      int    `json:"count"`
	Calls      []Call `json:"calls"`
	Warning    error  `json:"-"`
}

// String renders the report the way it is printed to operators
func (r *Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s was called %d times:\n", r.FunctionID, r.Count)
	for _, c := range r.Calls {
		fmt.Fprintf(&sb, "%s(%s) -> %s\n", r.FunctionID, c.Input, c.Output)
	}
	if r.Warning != nil {
		fmt.Fprintf(&sb, "warning: %v\n", r.Warning)
	}
	return sb.String()
}

// historyReader is the subset of store.Store Replay needs
type historyReader interface {
	List(ctx context.Context, key string) ([][]byte, error)
}

// Replay reads the recorded history of functionID. Count is the number of
// recorded inputs; Calls pairs inputs with outputs up to the shorter list.
func Replay(ctx context.Context, st historyReader, functionID string) (*Report, error) {
	inputs, err := st.List(ctx, InputsKey(functionID))
	if err != nil {
		return nil, fmt.Errorf("replay %s inputs: %w", functionID, err)
	}
	outputs, err := st.List(ctx, OutputsKey(functionID))
	if err != nil {
		return nil, fmt.Errorf("replay %s outputs: %w", functionID, err)
	}

	n := min(len(inputs), len(outputs))
	r := &Report{
		FunctionID: functionID,
		Count:      len(inputs),
		Calls:      make([]Call, 0, n),
	}
	for i := 0; i < n; i++ {
		r.Calls = append(r.Calls, Call{Input: string(inputs[i]), Output: string(outputs[i])})
	}

	if len(inputs) != len(outputs) {
		r.Warning = fmt.Errorf("%w: %s has %d inputs and %d outputs",
			ErrHistoryMismatch, functionID, len(inputs), len(outputs))
		zerolog.Ctx(ctx).Warn().
			Str("function_id", functionID).
			Int("inputs", len(inputs)).
			Int("outputs", len(outputs)).
			Msg("call history lists differ in length")
	}
	return r, nil
}
