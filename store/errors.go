package store

import "errors"

// Reply errors of the in-memory store, worded like the Redis ones
var (
	errWrongType  = errors.New("WRONGTYPE operation against a key holding the wrong kind of value")
	errNotInteger = errors.New("ERR value is not an integer or out of range")
	errOverflow   = errors.New("ERR increment or decrement would overflow")
)
