// Package internal contains helpers private to otcAuth: crypto-secure
// refresh credentials and human-typable one-time codes.
//
// # Sub-packages
//
//   - audit: async event dispatch
//   - flows: pure flow functions behind every Engine operation
//   - limiters: redemption, code issue and password reset limiters
//   - rate: Redis fixed-window counters and the login limiter
//   - userstore: SQL user persistence and migrations
//   - httpapi: gorilla/mux transport
//
// # What this package must NOT do
//
//   - Export types that appear in the public otcAuth API.
package internal
