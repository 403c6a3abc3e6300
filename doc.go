// Package authgate provides signup, email verification, login and password
// reset flows guarded by a distributed token-bucket rate limiter.
//
// Every flow first asks the limiter for a token keyed by route and client
// identity. Buckets live in Redis and are updated by a single server-side
// script, so any number of service instances share one budget per key. When
// Redis is unreachable the limiter fails open: the request proceeds and the
// failure is logged and counted.
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config],
// the collaborator interfaces ([UserStore], [Mailer], [PasswordHasher],
// [TokenIssuer]) and value types. The token bucket script, the per-route gate
// and flow orchestration live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients or bucket state in its public API.
//   - Surface limiter store failures to callers.
//   - Start background goroutines.
//   - Import any sub-package that re-imports authgate (no import cycles).
//
// # Latency contract
//
// Each flow performs exactly one limiter round-trip before any user store,
// hashing or mail work. A denied request does no further work.
package authgate
