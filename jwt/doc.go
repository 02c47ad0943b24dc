// Package jwt is the session issuer: it encodes user identity into signed
// access tokens and decodes them back.
//
// Decode deliberately skips claim validation. Expiry is judged by the caller
// so the refresh rotation protocol can tell an expired-but-authentic token
// from a forged one.
package jwt
