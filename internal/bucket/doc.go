// Package bucket implements the shared token bucket evaluated inside Redis.
//
// # Storage layout
//
// One hash per limiter key with two fields:
//   - tokens: available tokens (real, 0 <= tokens <= capacity)
//   - last_updated: unix seconds (real) of the last refill computation
//
// The key expiry is refreshed on every evaluation, so idle buckets are
// reclaimed by Redis itself. The engine never deletes keys.
//
// # Atomicity
//
// The whole read, refill, consume, write and expire sequence runs as a single
// Lua script. Redis executes scripts one at a time, so concurrent callers for
// the same key (from any number of processes) are linearized and can never
// both spend the same token.
//
// # What this package must NOT do
//
//   - Retry a failed evaluation (a retry can mint an extra token).
//   - Decide fail-open or fail-closed policy (internal/limiters does that).
package bucket
