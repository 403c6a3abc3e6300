package internaldefs

import (
	"github.com/MrEthical07/authgate"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported engine counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authgate.MetricRateLimitAllowed, Name: "authgate_rate_limit_allowed_total", Help: "Rate limiter decisions that consumed a token."},
	{ID: authgate.MetricRateLimitDenied, Name: "authgate_rate_limit_denied_total", Help: "Requests rejected by the rate limiter."},
	{ID: authgate.MetricRateLimitStoreError, Name: "authgate_rate_limit_store_error_total", Help: "Requests allowed because the limiter store failed."},
	{ID: authgate.MetricRateLimitDisabled, Name: "authgate_rate_limit_disabled_total", Help: "Requests allowed while no limiter store is configured."},
	{ID: authgate.MetricRateLimitUnknownRoute, Name: "authgate_rate_limit_unknown_route_total", Help: "Limiter checks for routes without a policy."},
	{ID: authgate.MetricSignupSuccess, Name: "authgate_signup_success_total", Help: "Accounts created."},
	{ID: authgate.MetricSignupDuplicate, Name: "authgate_signup_duplicate_total", Help: "Signups rejected because the email exists."},
	{ID: authgate.MetricSignupFailure, Name: "authgate_signup_failure_total", Help: "Signups rejected for any other reason."},
	{ID: authgate.MetricOTPVerifySuccess, Name: "authgate_otp_verify_success_total", Help: "Successful verification code checks."},
	{ID: authgate.MetricOTPVerifyFailure, Name: "authgate_otp_verify_failure_total", Help: "Failed verification code checks."},
	{ID: authgate.MetricOTPResent, Name: "authgate_otp_resent_total", Help: "Verification codes reissued."},
	{ID: authgate.MetricOTPResendNotNeeded, Name: "authgate_otp_resend_not_needed_total", Help: "Resend requests for already verified accounts."},
	{ID: authgate.MetricOTPResendFailure, Name: "authgate_otp_resend_failure_total", Help: "Failed resend requests."},
	{ID: authgate.MetricLoginSuccess, Name: "authgate_login_success_total", Help: "Successful logins."},
	{ID: authgate.MetricLoginFailure, Name: "authgate_login_failure_total", Help: "Failed logins."},
	{ID: authgate.MetricLoginUnverified, Name: "authgate_login_unverified_total", Help: "Logins refused for unverified accounts."},
	{ID: authgate.MetricPasswordRehash, Name: "authgate_password_rehash_total", Help: "Password hashes upgraded on login."},
	{ID: authgate.MetricPasswordResetRequest, Name: "authgate_password_reset_request_total", Help: "Password reset requests."},
	{ID: authgate.MetricPasswordResetSuccess, Name: "authgate_password_reset_success_total", Help: "Completed password resets."},
	{ID: authgate.MetricPasswordResetFailure, Name: "authgate_password_reset_failure_total", Help: "Failed password resets."},
	{ID: authgate.MetricMailFailure, Name: "authgate_mail_failure_total", Help: "Mail deliveries that failed."},
	{ID: authgate.MetricTokenInvalid, Name: "authgate_token_invalid_total", Help: "Rejected access tokens."},
}

// AuditDroppedName is read from the engine directly rather than a snapshot.
const (
	AuditDroppedName = "authgate_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped by the async dispatcher."
)

// DecisionOutcomes maps limiter counters to the outcome label of the
// combined decisions metric.
var DecisionOutcomes = []struct {
	ID      authgate.MetricID
	Outcome string
}{
	{ID: authgate.MetricRateLimitAllowed, Outcome: "allowed"},
	{ID: authgate.MetricRateLimitDenied, Outcome: "denied"},
	{ID: authgate.MetricRateLimitStoreError, Outcome: "store_error"},
	{ID: authgate.MetricRateLimitDisabled, Outcome: "disabled"},
	{ID: authgate.MetricRateLimitUnknownRoute, Outcome: "unknown_route"},
}

const (
	DecisionsName = "authgate_rate_limit_decisions_total"
	DecisionsHelp = "Rate limiter decisions by outcome."
)

// HistogramDefs lists every exported engine histogram.
var HistogramDefs = []HistogramDef{
	{ID: authgate.MetricRateLimitLatency, Name: "authgate_rate_limit_latency_seconds", Help: "Rate limiter store round-trip latency."},
}

// HistogramUpperBounds are the bucket upper bounds in seconds, excluding +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// publish buckets as separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
