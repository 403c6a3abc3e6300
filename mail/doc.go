// Package mail renders and delivers the one-time-code emails sent during
// signup and password recovery.
//
// A [Sender] renders HTML templates and hands the result to a [Transport].
// [SMTPTransport] speaks SMTP (implicit TLS on port 465, STARTTLS otherwise
// when enabled); [LogTransport] only logs, for deployments without an SMTP
// relay.
//
// Delivery is best-effort: callers log and count failures but never fail the
// request that triggered the mail.
package mail
