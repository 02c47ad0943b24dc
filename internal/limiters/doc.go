// Package limiters holds the per-operation throttles built on the
// fixed-window counters of internal/rate.
//
//   - [RedeemLimiter]: one-time-code redemption attempts per client IP.
//   - [IssueLimiter]: one-time codes mailed per user.
//   - [ResetLimiter]: password reset requests per email and per IP, and
//     reset confirmations per IP.
//
// Every limiter with a zero budget is disabled.
package limiters
