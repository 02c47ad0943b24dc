package internaldefs

import (
	otcAuth "github.com/MrEthical07/otcAuth"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   otcAuth.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   otcAuth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: otcAuth.MetricLoginSuccess, Name: "otcauth_login_success_total", Help: "Successful login attempts."},
	{ID: otcAuth.MetricLoginFailure, Name: "otcauth_login_failure_total", Help: "Failed login attempts."},
	{ID: otcAuth.MetricLoginRateLimited, Name: "otcauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: otcAuth.MetricLoginUnconfirmed, Name: "otcauth_login_unconfirmed_total", Help: "Logins refused for unconfirmed accounts."},
	{ID: otcAuth.MetricSessionAuthenticated, Name: "otcauth_session_authenticated_total", Help: "Requests authenticated by a valid access token."},
	{ID: otcAuth.MetricRotationSuccess, Name: "otcauth_rotation_success_total", Help: "Refresh credentials exchanged for a new pair."},
	{ID: otcAuth.MetricRotationRejected, Name: "otcauth_rotation_rejected_total", Help: "Requests rejected by the rotation protocol."},
	{ID: otcAuth.MetricLogout, Name: "otcauth_logout_total", Help: "Logout operations."},
	{ID: otcAuth.MetricAccountCreated, Name: "otcauth_account_created_total", Help: "Registered accounts."},
	{ID: otcAuth.MetricAccountDuplicate, Name: "otcauth_account_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: otcAuth.MetricAccountUpdated, Name: "otcauth_account_updated_total", Help: "Applied account updates."},
	{ID: otcAuth.MetricAccountDeleted, Name: "otcauth_account_deleted_total", Help: "Deleted accounts."},
	{ID: otcAuth.MetricOTCIssued, Name: "otcauth_otc_issued_total", Help: "Issued one-time codes."},
	{ID: otcAuth.MetricOTCRedeemed, Name: "otcauth_otc_redeemed_total", Help: "Redeemed one-time codes."},
	{ID: otcAuth.MetricOTCRedeemFailure, Name: "otcauth_otc_redeem_failure_total", Help: "Failed one-time code redemptions."},
	{ID: otcAuth.MetricPasswordResetRequest, Name: "otcauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: otcAuth.MetricPasswordResetConfirmSuccess, Name: "otcauth_password_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: otcAuth.MetricPasswordResetConfirmFailure, Name: "otcauth_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: otcAuth.MetricRateLimitHit, Name: "otcauth_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: otcAuth.MetricMailFailure, Name: "otcauth_mail_failure_total", Help: "Messages the mailer failed to deliver."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: otcAuth.MetricRotationLatency, Name: "otcauth_rotation_latency_seconds", Help: "Refresh rotation latency histogram."},
}

// HistogramBounds are the upper bounds of the engine's fixed buckets.
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

// HistogramBoundSuffix names each bucket for exporters without labels.
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
