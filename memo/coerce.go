package memo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"
)

var errInvalidUTF8 = errors.New("invalid utf-8")

// Coercer converts stored bytes into a typed value
type Coercer[T any] func(b []byte) (T, error)

// CoercionError reports stored bytes that could not be converted
type CoercionError struct {
	Handle string
	Target string
	Err    error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("coerce %s to %s: %v", e.Handle, e.Target, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

// AsBytes returns the stored bytes unchanged
func AsBytes(b []byte) ([]byte, error) { return b, nil }

// AsString decodes the stored bytes as UTF-8 text
func AsString(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", errInvalidUTF8
	}
	return string(b), nil
}

// AsInt parses the stored bytes as a base 10 integer
func AsInt(b []byte) (int64, error) {
	// base 10 only, "010" is ten
	return strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
}

// AsFloat parses the stored bytes as a floating point number
func AsFloat(b []byte) (float64, error) {
	return cast.ToFloat64E(strings.TrimSpace(string(b)))
}

// AsBool parses the stored bytes as a boolean
func AsBool(b []byte) (bool, error) {
	return cast.ToBoolE(strings.TrimSpace(string(b)))
}
