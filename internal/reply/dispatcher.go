// Package reply renders acknowledgments and hands them to the outbound
// channel a message arrived on.
package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pkordes/tripcrew/backend/internal/domain"
)

// ErrNoSender is returned when no outbound transport is configured for a channel.
var ErrNoSender = errors.New("no reply sender configured")

// Sender delivers one reply. html is optional and only used by email.
type Sender interface {
	Send(ctx context.Context, to, text, html string) error
}

// SubjectSender is implemented by email senders that accept a subject line.
type SubjectSender interface {
	SendWithSubject(ctx context.Context, to, subject, text, html string) error
}

// Dispatcher routes replies by inbound channel: sms, mms and voice reply by
// SMS, whatsapp by WhatsApp, email by email.
type Dispatcher struct {
	sms      Sender
	whatsapp Sender
	email    Sender
	logger   *slog.Logger
}

// NewDispatcher builds a Dispatcher. Any sender may be nil; replies on that
// channel then fail with ErrNoSender.
func NewDispatcher(sms, whatsapp, email Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sms:      sms,
		whatsapp: whatsapp,
		email:    email,
		logger:   logger.With(slog.String("component", "reply")),
	}
}

// Send delivers a rendered message to address over the channel's transport.
func (d *Dispatcher) Send(ctx context.Context, channel domain.Channel, address string, msg Message) error {
	var s Sender
	switch channel {
	case domain.ChannelSMS, domain.ChannelMMS, domain.ChannelVoice:
		s = d.sms
	case domain.ChannelWhatsApp:
		s = d.whatsapp
	case domain.ChannelEmail:
		s = d.email
	}
	if s == nil {
		return fmt.Errorf("reply.Dispatcher.Send: %s: %w", channel, ErrNoSender)
	}
	if address == "" {
		return fmt.Errorf("reply.Dispatcher.Send: %w: empty address", domain.ErrValidation)
	}

	var err error
	if ss, ok := s.(SubjectSender); ok && msg.Subject != "" {
		err = ss.SendWithSubject(ctx, address, msg.Subject, msg.Text, msg.HTML)
	} else {
		err = s.Send(ctx, address, msg.Text, msg.HTML)
	}
	if err != nil {
		return fmt.Errorf("reply.Dispatcher.Send: %s: %w", channel, err)
	}
	d.logger.DebugContext(ctx, "reply sent", slog.String("channel", string(channel)))
	return nil
}
