package otcAuth

import (
	"context"

	"go.uber.org/zap"
)

// MessageKind selects the template of an outgoing message.
type MessageKind string

const (
	MessageConfirmAccount MessageKind = "confirm_account"
	MessageUpdateAccount  MessageKind = "update_account"
	MessageDeleteAccount  MessageKind = "delete_account"
	MessagePasswordReset  MessageKind = "password_reset"
	MessagePasswordSet    MessageKind = "password_set"
	MessageActionApplied  MessageKind = "action_applied"
)

// Message is one transactional email. Code is empty for notices.
type Message struct {
	Kind MessageKind
	To   string
	Name string
	Code string
}

// Mailer delivers messages. Rendering and transport are the
// implementation's concern.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, msg Message) error

func (f MailerFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// LogMailer writes messages to a logger instead of sending them. It logs
// codes in clear text and is meant for development only.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger.Named("mailer")}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("outgoing message",
		zap.String("kind", string(msg.Kind)),
		zap.String("to", msg.To),
		zap.String("name", msg.Name),
		zap.String("code", msg.Code),
	)
	return nil
}
