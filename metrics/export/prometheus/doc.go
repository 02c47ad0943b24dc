// Package prometheus renders otcAuth engine metrics in Prometheus text
// exposition format.
//
// Counter names are prefixed otcauth_ and end in _total. The single
// histogram is otcauth_rotation_latency_seconds. Nothing is registered
// globally; callers mount [Exporter.Handler].
package prometheus
