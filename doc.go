// Package otcAuth is an account authentication core: argon2id credential
// checks, short-lived JWT access tokens, rotating opaque refresh
// credentials, and one-time codes that gate confirmation, change and
// deletion of an account.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Sessions
//
// A session is two cookies: Bearer holds the access token, RefreshToken the
// refresh credential. [Engine.Authenticate] accepts a valid unexpired
// Bearer as is. Otherwise it exchanges the refresh credential for a new
// pair, retiring the old credential in the same atomic step. A retired
// credential never authenticates again.
//
// # One-time codes
//
// Sensitive account changes are deferred. The engine stores the pending
// mutation under a six-character code, mails the code to the account's
// current address and applies the mutation in [Engine.RedeemOTC]. The code
// is consumed only after the mutation committed.
//
// # Architecture boundaries
//
// otcAuth is the public surface: [Engine], [Builder], [Config] and value
// types. Flow orchestration, rate limiting and audit dispatch live under
// internal/. Storage backends plug in through store.TokenStore and
// [UserStore].
package otcAuth
