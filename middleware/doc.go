// Package middleware exposes HTTP adapters for authgate.Engine.
//
// # Middlewares
//
//   - [ClientIP] resolves the request origin and stores it with
//     authgate.WithClientIP, so limiter keys and audit events see it.
//   - [RateLimit] consumes one token of a route bucket and answers 429 with
//     Retry-After when the bucket is empty.
//   - [Guard] validates bearer access tokens and injects the claims.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// decide rate limits or token validity itself; those decisions come from
// Engine.CheckRate and Engine.ValidateAccess.
//
// # What this package must NOT do
//
//   - Access Redis (the Engine owns limiter I/O).
//   - Parse or create JWTs directly.
//   - Reject a request because the limiter store is unavailable.
package middleware
