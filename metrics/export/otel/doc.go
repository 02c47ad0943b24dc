// Package otel publishes otcAuth engine metrics through an OpenTelemetry
// meter.
//
// Every engine counter becomes an Int64ObservableCounter. The rotation
// latency histogram becomes one Int64ObservableGauge per bucket bound plus
// a count gauge. A single callback reads Engine.MetricsSnapshot on each
// collection. Callers own the MeterProvider.
package otel
