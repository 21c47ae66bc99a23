// Package callcache is an instrumented cache layer over a key-value store.
//
// The store package adapts Redis (or an in-process map) to a small set of
// byte-oriented operations. On top of it:
//
//   - memo stores produced values under fresh handles and counts stores per function
//   - instrument wraps functions to count calls and record their inputs and outputs
//   - webcache fetches URLs through a TTL cache and counts accesses per URL
//
// cmd/api serves all of it over HTTP and cmd/worker warms the URL cache
// from queued asynq tasks.
package callcache
