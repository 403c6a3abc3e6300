// Package limiters turns the Redis token bucket into the per-route gate that
// guards every authentication flow.
//
// # Keys
//
// Each (route, client) pair owns one bucket at
//
//	rate_limit:{route}:{client}
//
// Route identifiers may not contain ':' so two distinct pairs can never map
// to the same key. An empty client identity is bucketed as "unknown".
//
// # Failure policy
//
// The gate fails open. When the store cannot be reached (connection refused,
// timeout, script error) the request is allowed, the failure is logged once
// at error level and reported to the [Observer]. A gate built without an
// evaluator is disabled and allows everything without any I/O.
//
// # What this package must NOT do
//
//   - Import authgate or any sibling internal package except internal/bucket.
//   - Retry a store call.
//   - Turn a store failure into a rejection.
package limiters
