// Package httpapi serves an otcAuth.Engine as a JSON API with cookie
// sessions. Protected routes run behind middleware.Guard.
package httpapi
