// Package handler implements the HTTP surface of the trip concierge:
// channel webhooks, the owner review API and health.
// All handlers are methods on Server. Methods are split into
// domain-specific files (twilio.go, email.go, review.go, etc.) but share
// the same Server struct so they can access its dependencies.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pkordes/tripcrew/backend/internal/domain"
	"github.com/pkordes/tripcrew/backend/internal/service"
)

// InboundHandler runs one normalized delivery through the pipeline.
// Defining the interface here (in the consumer package) lets handler tests
// inject a mock without touching the database or the pipeline stages.
type InboundHandler interface {
	Handle(ctx context.Context, in service.Inbound) (service.HandleResult, error)
}

// ReviewServicer defines the owner review operations.
type ReviewServicer interface {
	List(ctx context.Context, tripID uuid.UUID, status domain.MessageStatus, p domain.PaginationParams) ([]domain.InboundMessage, int64, error)
	Get(ctx context.Context, tripID, id uuid.UUID) (domain.InboundMessage, error)
	Apply(ctx context.Context, tripID, id, actorID uuid.UUID, indexes []int) (service.ReviewOutcome, error)
	Dismiss(ctx context.Context, tripID, id, actorID uuid.UUID) (domain.InboundMessage, error)
}

// MemberServicer defines the roster operations exposed over HTTP.
type MemberServicer interface {
	List(ctx context.Context, tripID uuid.UUID) ([]domain.Member, error)
	Claim(ctx context.Context, tripID, userID uuid.UUID, email string) (domain.Member, error)
}

// WebhookConfig carries the secrets and the public origin used to verify
// provider callbacks.
type WebhookConfig struct {
	// PublicBaseURL is the scheme and host the provider called, e.g.
	// "https://concierge.example.com". Signed URLs are rebuilt from it
	// because proxies rewrite the Host header.
	PublicBaseURL   string
	TwilioAuthToken string
	// EmailSecret enables HMAC verification of the email webhook when set.
	EmailSecret string
}

// Server holds every HTTP handler's dependencies.
type Server struct {
	inbound  InboundHandler
	reviews  ReviewServicer
	members  MemberServicer
	webhooks WebhookConfig
	validate *validator.Validate
	openapi  []byte
	logger   *slog.Logger
}

// NewServer constructs the Server with all its dependencies.
// openapi may be nil, in which case /openapi.yaml is not served.
func NewServer(inbound InboundHandler, reviews ReviewServicer, members MemberServicer, webhooks WebhookConfig, openapi []byte, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		inbound:  inbound,
		reviews:  reviews,
		members:  members,
		webhooks: webhooks,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		openapi:  openapi,
		logger:   logger.With(slog.String("component", "http")),
	}
}

// NewHealthHandler returns a Server for health-check-only use.
func NewHealthHandler() *Server {
	return NewServer(nil, nil, nil, WebhookConfig{}, nil, nil)
}

// Routes returns the API routes. Global middleware (request id, logging,
// body cap, CORS) is applied by the caller.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.GetHealth)
	if s.openapi != nil {
		r.Get("/openapi.yaml", s.GetOpenAPI)
	}

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/twilio/sms", s.TwilioSMS)
		r.Post("/twilio/whatsapp", s.TwilioWhatsApp)
		r.Post("/twilio/voice", s.TwilioVoice)
		r.Post("/twilio/voice/answer", s.TwilioVoiceAnswer)
		r.Post("/email", s.EmailInbound)
	})

	r.Route("/trips/{tripID}", func(r chi.Router) {
		r.Get("/members", s.ListMembers)
		r.Post("/members/claim", s.ClaimMember)

		r.Get("/inbound", s.ListInbound)
		r.Get("/inbound/{messageID}", s.GetInbound)
		r.Post("/inbound/{messageID}/apply", s.ApplyInbound)
		r.Post("/inbound/{messageID}/dismiss", s.DismissInbound)
	})
	return r
}

// ServeHTTP lets a Server be mounted directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Routes().ServeHTTP(w, r)
}
