package reply

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioConfig configures a TwilioSender.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	// Edge and Region select a non-default API host, e.g. "dublin" / "ie1".
	Edge    string
	Region  string
	Timeout time.Duration
	// HTTPClient replaces the default client; Timeout is then ignored.
	HTTPClient *http.Client
}

// messageCreator is the part of the REST API the sender uses.
type messageCreator interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// TwilioSender posts outbound messages through the Twilio Messages API.
type TwilioSender struct {
	api      messageCreator
	from     string
	whatsapp bool
}

// NewTwilioSender builds an SMS sender. For WhatsApp, use NewWhatsAppSender.
func NewTwilioSender(cfg TwilioConfig) *TwilioSender {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	base := &twilioclient.Client{
		Credentials: twilioclient.NewCredentials(cfg.AccountSID, cfg.AuthToken),
		HTTPClient:  httpClient,
	}
	base.SetAccountSid(cfg.AccountSID)

	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username:   cfg.AccountSID,
		Password:   cfg.AuthToken,
		AccountSid: cfg.AccountSID,
		Client:     base,
	})
	if cfg.Edge != "" {
		rest.SetEdge(cfg.Edge)
	}
	if cfg.Region != "" {
		rest.SetRegion(cfg.Region)
	}
	return &TwilioSender{api: rest.Api, from: cfg.From}
}

// NewWhatsAppSender builds a sender that prefixes both addresses with "whatsapp:".
func NewWhatsAppSender(cfg TwilioConfig) *TwilioSender {
	s := NewTwilioSender(cfg)
	s.whatsapp = true
	return s
}

// Send implements Sender. html is ignored. The REST client takes no context,
// so ctx is only checked up front and the HTTP timeout bounds the call.
func (s *TwilioSender) Send(ctx context.Context, to, text, _ string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("twilio: %w", err)
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(s.address(to))
	params.SetFrom(s.address(s.from))
	params.SetBody(text)

	if _, err := s.api.CreateMessage(params); err != nil {
		var restErr *twilioclient.TwilioRestError
		if errors.As(err, &restErr) {
			return fmt.Errorf("twilio: HTTP %d: %d %s", restErr.Status, restErr.Code, restErr.Message)
		}
		return fmt.Errorf("twilio: sending message: %w", err)
	}
	return nil
}

func (s *TwilioSender) address(a string) string {
	if !s.whatsapp || strings.HasPrefix(a, "whatsapp:") {
		return a
	}
	return "whatsapp:" + a
}
