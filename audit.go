package otcAuth

import (
	"io"

	internalaudit "github.com/MrEthical07/otcAuth/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one security-relevant occurrence.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the async dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards events into a buffered channel.
type ChannelSink = internalaudit.ChannelSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// JSONWriterSink writes one JSON object per event.
type JSONWriterSink = internalaudit.JSONWriterSink

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// ZapAuditSink logs events through zap.
type ZapAuditSink = internalaudit.ZapSink

func NewZapAuditSink(logger *zap.Logger) *ZapAuditSink {
	return internalaudit.NewZapSink(logger)
}
