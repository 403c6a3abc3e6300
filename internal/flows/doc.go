// Package flows contains pure-function orchestrators for every Engine
// operation.
//
// Each flow function (RunSignup, RunVerifyOTP, RunLogin, RunResendOTP,
// RunForgotPassword, RunResetPassword) accepts a typed dependency struct and
// has no side effects beyond those dependencies. This keeps the Engine thin
// and lets the flows be tested with plain function fakes.
//
// # Ordering
//
// Every flow calls CheckRate before touching the user store, the password
// hasher or the mailer. A denied request returns the host's rate-limit error
// unchanged.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authgate (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency funcs.
package flows
