// Package mailer holds the Mailer used when no delivery provider is wired.
package mailer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrEthical07/siteauth"
)

var ErrNoRecipient = errors.New("message has no recipient")

// LogMailer writes outgoing messages to the log instead of sending them.
// Links and codes are only logged when RevealSecrets is set, which the
// server does in development.
type LogMailer struct {
	logger        *slog.Logger
	revealSecrets bool
}

func NewLogMailer(logger *slog.Logger, revealSecrets bool) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger, revealSecrets: revealSecrets}
}

func (m *LogMailer) Send(ctx context.Context, msg siteauth.Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}

	attrs := []any{"to", msg.To, "purpose", msg.Purpose}
	if m.revealSecrets {
		if msg.Link != "" {
			attrs = append(attrs, "link", msg.Link)
		} else if msg.Token != "" {
			attrs = append(attrs, "token", msg.Token)
		}
		if msg.Code != "" {
			attrs = append(attrs, "code", msg.Code)
		}
	}

	m.logger.InfoContext(ctx, "email queued", attrs...)
	return nil
}
