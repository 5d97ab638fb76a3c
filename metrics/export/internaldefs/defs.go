package internaldefs

import (
	"github.com/MrEthical07/siteauth"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   siteauth.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   siteauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: siteauth.MetricLoginSuccess, Name: "siteauth_login_success_total", Help: "Successful sign-ins."},
	{ID: siteauth.MetricLoginFailure, Name: "siteauth_login_failure_total", Help: "Rejected sign-ins."},
	{ID: siteauth.MetricLoginRateLimited, Name: "siteauth_login_rate_limited_total", Help: "Sign-in attempts denied by the login budget."},
	{ID: siteauth.MetricRefreshSuccess, Name: "siteauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: siteauth.MetricRefreshFailure, Name: "siteauth_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: siteauth.MetricRateLimitHit, Name: "siteauth_rate_limit_hit_total", Help: "Requests denied by any rate-limit budget."},
	{ID: siteauth.MetricSessionCreated, Name: "siteauth_session_created_total", Help: "Created sessions."},
	{ID: siteauth.MetricSessionInvalidated, Name: "siteauth_session_invalidated_total", Help: "Sessions revoked by logout or password change."},
	{ID: siteauth.MetricLogout, Name: "siteauth_logout_total", Help: "Single-session logouts."},
	{ID: siteauth.MetricLogoutAll, Name: "siteauth_logout_all_total", Help: "Revoke-all operations."},
	{ID: siteauth.MetricAccessDenied, Name: "siteauth_access_denied_total", Help: "Rejected access tokens."},
	{ID: siteauth.MetricPasswordChangeSuccess, Name: "siteauth_password_change_success_total", Help: "Successful password changes."},
	{ID: siteauth.MetricPasswordChangeInvalidOld, Name: "siteauth_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: siteauth.MetricPasswordChangeReuseRejected, Name: "siteauth_password_change_reuse_rejected_total", Help: "Password changes rejected for reuse."},
	{ID: siteauth.MetricPasswordPolicyRejected, Name: "siteauth_password_policy_rejected_total", Help: "Passwords rejected by the strength policy."},
	{ID: siteauth.MetricForcedResetCompleted, Name: "siteauth_forced_reset_completed_total", Help: "Completed forced resets."},
	{ID: siteauth.MetricAdminPasswordReset, Name: "siteauth_admin_password_reset_total", Help: "Administrator password resets."},
	{ID: siteauth.MetricPasswordResetRequest, Name: "siteauth_password_reset_request_total", Help: "Forgot-password requests."},
	{ID: siteauth.MetricPasswordResetConfirmSuccess, Name: "siteauth_password_reset_confirm_success_total", Help: "Successful reset confirmations."},
	{ID: siteauth.MetricPasswordResetConfirmFailure, Name: "siteauth_password_reset_confirm_failure_total", Help: "Failed reset confirmations."},
	{ID: siteauth.MetricOTPRequest, Name: "siteauth_otp_request_total", Help: "Issued verification codes."},
	{ID: siteauth.MetricOTPVerifySuccess, Name: "siteauth_otp_verify_success_total", Help: "Accepted verification codes."},
	{ID: siteauth.MetricOTPVerifyFailure, Name: "siteauth_otp_verify_failure_total", Help: "Rejected verification codes."},
	{ID: siteauth.MetricOTPAttemptsExceeded, Name: "siteauth_otp_attempts_exceeded_total", Help: "Verification codes burned by the attempt cap."},
	{ID: siteauth.MetricDeliveryFailure, Name: "siteauth_delivery_failure_total", Help: "Emails the mailer failed to deliver."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: siteauth.MetricValidateLatency, Name: "siteauth_validate_latency_seconds", Help: "Access-token validation latency."},
}

// AuditDroppedName is the counter for events the audit dispatcher discarded.
const AuditDroppedName = "siteauth_audit_dropped_total"

// HistogramBounds are the Prometheus "le" labels, matching the engine's
// bucket edges in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in instrument-name form.
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

// NormalizeBuckets copies raw into a fixed array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
