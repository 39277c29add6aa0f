package reply

import (
	"context"
	"fmt"
	"strings"

	mg "github.com/mailgun/mailgun-go/v5"
	"github.com/wneessen/go-mail"
)

const defaultSubject = "Your trip update"

// MailgunSender sends email replies through the Mailgun API.
type MailgunSender struct {
	client *mg.Client
	domain string
	from   string
}

// NewMailgunSender builds a sender. region "eu" selects the EU API base.
func NewMailgunSender(domain, apiKey, region, from string) *MailgunSender {
	client := mg.NewMailgun(apiKey)
	if strings.EqualFold(region, "eu") {
		client.SetAPIBase(mg.APIBaseEU)
	}
	if from == "" {
		from = fmt.Sprintf("concierge@%s", domain)
	}
	return &MailgunSender{client: client, domain: domain, from: from}
}

// Send implements Sender.
func (s *MailgunSender) Send(ctx context.Context, to, text, html string) error {
	return s.SendWithSubject(ctx, to, defaultSubject, text, html)
}

// SendWithSubject implements SubjectSender.
func (s *MailgunSender) SendWithSubject(ctx context.Context, to, subject, text, html string) error {
	m := mg.NewMessage(s.domain, s.from, subject, text, to)
	if html != "" {
		m.SetHTML(html)
	}
	if _, err := s.client.Send(ctx, m); err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	return nil
}

// SMTPConfig configures SMTPSender. Security is "tls", "starttls" or "none".
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Security string
	From     string
}

// SMTPSender sends email replies over SMTP.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender builds a sender. Port defaults to 587.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPSender{cfg: cfg}
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, to, text, html string) error {
	return s.SendWithSubject(ctx, to, defaultSubject, text, html)
}

// SendWithSubject implements SubjectSender.
func (s *SMTPSender) SendWithSubject(ctx context.Context, to, subject, text, html string) error {
	m, err := s.message(to, subject, text, html)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.cfg.Host, s.options()...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (s *SMTPSender) message(to, subject, text, html string) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := m.To(to); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, text)
	if html != "" {
		m.AddAlternativeString(mail.TypeTextHTML, html)
	}
	m.SetMessageID()
	return m, nil
}

func (s *SMTPSender) options() []mail.Option {
	opts := []mail.Option{mail.WithPort(s.cfg.Port)}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	switch s.cfg.Security {
	case "tls":
		opts = append(opts, mail.WithSSLPort(false), mail.WithTLSPolicy(mail.TLSMandatory))
	case "starttls":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	return opts
}
