package handler

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkordes/tripcrew/backend/internal/content"
	"github.com/pkordes/tripcrew/backend/internal/domain"
	"github.com/pkordes/tripcrew/backend/internal/service"
	"github.com/pkordes/tripcrew/backend/internal/webhook"
)

// maxTwilioMedia is the most media attachments one message can carry.
const maxTwilioMedia = 10

// twimlResponse is an empty TwiML document. Replies go out through the REST
// API so the webhook answer never carries a message.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
}

// TwilioSMS handles POST /webhooks/twilio/sms. Messages with media arrive on
// the same callback and are treated as MMS.
func (s *Server) TwilioSMS(w http.ResponseWriter, r *http.Request) {
	s.twilio(w, r, func(form url.Values) (service.Inbound, error) {
		in := messageFromForm(form, domain.ChannelSMS)
		if len(in.Media) > 0 {
			in.Channel = domain.ChannelMMS
		}
		return in, nil
	})
}

// TwilioWhatsApp handles POST /webhooks/twilio/whatsapp.
// Addresses keep their "whatsapp:" prefix so replies route back over WhatsApp.
func (s *Server) TwilioWhatsApp(w http.ResponseWriter, r *http.Request) {
	s.twilio(w, r, func(form url.Values) (service.Inbound, error) {
		return messageFromForm(form, domain.ChannelWhatsApp), nil
	})
}

// TwilioVoice handles POST /webhooks/twilio/voice, the transcription
// callback for a recorded voicemail.
func (s *Server) TwilioVoice(w http.ResponseWriter, r *http.Request) {
	s.twilio(w, r, func(form url.Values) (service.Inbound, error) {
		id := form.Get("TranscriptionSid")
		if id == "" {
			return service.Inbound{}, errors.New("TranscriptionSid is required")
		}
		text := form.Get("TranscriptionText")
		if form.Get("TranscriptionStatus") == "failed" {
			text = ""
		}
		return service.Inbound{
			Channel:           domain.ChannelVoice,
			ProviderMessageID: id,
			From:              form.Get("From"),
			To:                form.Get("To"),
			Text:              text,
		}, nil
	})
}

// TwilioVoiceAnswer handles POST /webhooks/twilio/voice/answer, the number's
// incoming-call URL. It asks the caller for a message and records it with
// transcription; the transcript arrives later on TwilioVoice.
func (s *Server) TwilioVoiceAnswer(w http.ResponseWriter, r *http.Request) {
	if !s.verifiedForm(w, r) {
		return
	}
	writeTwiML(w, voiceAnswer{
		Say: voicePrompt,
		Record: recordVerb{
			Transcribe:         true,
			TranscribeCallback: s.publicURL("/webhooks/twilio/voice"),
			MaxLength:          maxVoiceSeconds,
			PlayBeep:           true,
		},
	})
}

const (
	voicePrompt     = "Leave your trip update after the beep. We will text you when it is saved."
	maxVoiceSeconds = 120
)

// voiceAnswer is the TwiML for an answered call.
type voiceAnswer struct {
	XMLName xml.Name   `xml:"Response"`
	Say     string     `xml:"Say"`
	Record  recordVerb `xml:"Record"`
}

type recordVerb struct {
	Transcribe         bool   `xml:"transcribe,attr"`
	TranscribeCallback string `xml:"transcribeCallback,attr"`
	MaxLength          int    `xml:"maxLength,attr"`
	PlayBeep           bool   `xml:"playBeep,attr"`
}

// twilio verifies the signature over the form, normalizes it with parse and
// runs the pipeline. Nothing is read from or written to the store before the
// signature checks out.
func (s *Server) twilio(w http.ResponseWriter, r *http.Request, parse func(url.Values) (service.Inbound, error)) {
	if !s.verifiedForm(w, r) {
		return
	}

	in, err := parse(r.PostForm)
	if err != nil {
		requestError(w, err.Error())
		return
	}
	in.RawPayload = formPayload(r.PostForm)

	if _, err := s.inbound.Handle(r.Context(), in); err != nil {
		// A 5xx makes the provider retry; the idempotency guard absorbs it.
		s.serviceError(w, r, err, "message not found")
		return
	}

	writeTwiML(w, twimlResponse{})
}

// verifiedForm parses the callback form and checks its signature against the
// public URL the provider called. It writes the error response itself.
func (s *Server) verifiedForm(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "malformed form body")
		return false
	}

	if !webhook.VerifyTwilio(s.publicURL(r.URL.RequestURI()), r.PostForm, r.Header.Get(webhook.TwilioSignatureHeader), s.webhooks.TwilioAuthToken) {
		s.logger.WarnContext(r.Context(), "rejected webhook with invalid signature",
			slog.String("path", r.URL.Path))
		writeError(w, http.StatusForbidden, "invalid_signature", "signature verification failed")
		return false
	}
	return true
}

func (s *Server) publicURL(requestURI string) string {
	return strings.TrimRight(s.webhooks.PublicBaseURL, "/") + requestURI
}

func writeTwiML(w http.ResponseWriter, doc any) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(doc)
}

// messageFromForm reads the fields shared by SMS, MMS and WhatsApp callbacks.
func messageFromForm(form url.Values, channel domain.Channel) service.Inbound {
	id := form.Get("MessageSid")
	if id == "" {
		id = form.Get("SmsMessageSid")
	}
	in := service.Inbound{
		Channel:           channel,
		ProviderMessageID: id,
		From:              form.Get("From"),
		To:                form.Get("To"),
		Text:              form.Get("Body"),
	}

	n, _ := strconv.Atoi(form.Get("NumMedia"))
	n = min(n, maxTwilioMedia)
	for i := 0; i < n; i++ {
		u := form.Get(fmt.Sprintf("MediaUrl%d", i))
		if u == "" {
			continue
		}
		in.Media = append(in.Media, content.MediaRef{
			URL:         u,
			ContentType: form.Get(fmt.Sprintf("MediaContentType%d", i)),
		})
	}
	return in
}

// formPayload keeps the raw callback for audit. Single-valued keys are
// flattened to strings.
func formPayload(form url.Values) json.RawMessage {
	flat := make(map[string]any, len(form))
	for k, v := range form {
		if len(v) == 1 {
			flat[k] = v[0]
		} else {
			flat[k] = v
		}
	}
	b, err := json.Marshal(flat)
	if err != nil {
		return nil
	}
	return b
}
