// Package middleware adapts otcAuth.Engine to net/http.
//
// [Guard] runs the refresh rotation protocol for each request: it reads the
// Bearer and RefreshToken cookies, calls Engine.Authenticate, rewrites the
// cookies after a rotation and stores the result in the request context.
// OPTIONS requests bypass it.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// parse tokens or touch Redis; every decision is delegated to the Engine.
package middleware
