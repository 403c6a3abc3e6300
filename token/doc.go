// Package token issues and verifies HMAC-signed access tokens.
//
// Tokens are JWTs whose subject is the account email and whose jti is a
// random UUID. Only the configured HMAC algorithm is accepted on parse; the
// "none" algorithm and every asymmetric algorithm are rejected.
package token
