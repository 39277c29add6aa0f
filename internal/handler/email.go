package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/go-playground/validator/v10"

	"github.com/pkordes/tripcrew/backend/internal/content"
	"github.com/pkordes/tripcrew/backend/internal/domain"
	"github.com/pkordes/tripcrew/backend/internal/service"
	"github.com/pkordes/tripcrew/backend/internal/webhook"
)

// emailPayload is the inbound-parse JSON the email provider posts.
type emailPayload struct {
	From        string            `json:"From" validate:"required"`
	To          string            `json:"To" validate:"required"`
	Subject     string            `json:"Subject"`
	TextBody    string            `json:"TextBody"`
	HtmlBody    string            `json:"HtmlBody"`
	MessageID   string            `json:"MessageID"`
	Attachments []emailAttachment `json:"Attachments" validate:"dive"`
}

type emailAttachment struct {
	Name        string `json:"Name"`
	ContentType string `json:"ContentType" validate:"required"`
	Content     string `json:"Content" validate:"required,base64"`
}

// EmailInbound handles POST /webhooks/email.
func (s *Server) EmailInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "could not read body")
		return
	}

	if s.webhooks.EmailSecret != "" &&
		!webhook.VerifyBody(body, r.Header.Get(webhook.EmailSignatureHeader), s.webhooks.EmailSecret) {
		s.logger.WarnContext(r.Context(), "rejected webhook with invalid signature",
			slog.String("path", r.URL.Path))
		writeError(w, http.StatusForbidden, "invalid_signature", "signature verification failed")
		return
	}

	var p emailPayload
	if err := json.Unmarshal(body, &p); err != nil {
		requestError(w, "request body must be a JSON object")
		return
	}
	if err := s.validate.Struct(p); err != nil {
		requestError(w, validationMessage(err))
		return
	}

	in, err := s.emailInbound(p)
	if err != nil {
		requestError(w, err.Error())
		return
	}
	in.RawPayload = body

	if _, err := s.inbound.Handle(r.Context(), in); err != nil {
		s.serviceError(w, r, err, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) emailInbound(p emailPayload) (service.Inbound, error) {
	from, err := mail.ParseAddress(p.From)
	if err != nil {
		return service.Inbound{}, fmt.Errorf("From is not a valid address: %q", p.From)
	}
	to := p.To
	if addr, err := mail.ParseAddress(firstAddress(p.To)); err == nil {
		to = addr.Address
	}

	text := strings.TrimSpace(p.TextBody)
	if text == "" && strings.TrimSpace(p.HtmlBody) != "" {
		md, err := htmltomarkdown.ConvertString(p.HtmlBody)
		if err != nil {
			s.logger.Warn("html body conversion failed", slog.String("error", err.Error()))
		} else {
			text = strings.TrimSpace(md)
		}
	}
	if subject := strings.TrimSpace(p.Subject); subject != "" && text != "" {
		text = "Subject: " + subject + "\n\n" + text
	}

	in := service.Inbound{
		Channel:           domain.ChannelEmail,
		ProviderMessageID: strings.TrimSpace(p.MessageID),
		From:              domain.NormalizeEmail(from.Address),
		To:                domain.NormalizeEmail(to),
		Text:              text,
	}
	for _, a := range p.Attachments {
		data, err := base64.StdEncoding.DecodeString(a.Content)
		if err != nil {
			return service.Inbound{}, fmt.Errorf("attachment %q is not valid base64", a.Name)
		}
		in.Attachments = append(in.Attachments, content.Attachment{
			Name:        a.Name,
			ContentType: a.ContentType,
			Data:        data,
		})
	}
	return in, nil
}

// firstAddress returns the first entry of a comma-separated address list.
func firstAddress(list string) string {
	first, _, _ := strings.Cut(list, ",")
	return strings.TrimSpace(first)
}

// validationMessage turns validator errors into one readable line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Namespace()+" is required")
		default:
			parts = append(parts, fmt.Sprintf("%s must be %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
