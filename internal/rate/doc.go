// Package rate provides Redis-backed fixed-window counters for login
// throttling and for the volume limits in internal/limiters.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - rl:login:    failed logins per email
//   - rl:login-ip: failed logins per IP
//
// Prefixes never overlap the token store namespaces (refresh:, otc:,
// reset-token:).
package rate
