package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/pkordes/tripcrew/backend/internal/domain"
	"github.com/pkordes/tripcrew/backend/internal/handler"
	"github.com/pkordes/tripcrew/backend/internal/service"
)

const (
	testBaseURL     = "https://concierge.example.com"
	testTwilioToken = "12345"
	testEmailSecret = "whsec_test"
)

// mockInbound is a test double for handler.InboundHandler that records
// every delivery it receives.
type mockInbound struct {
	handle func(ctx context.Context, in service.Inbound) (service.HandleResult, error)
	got    []service.Inbound
}

func (m *mockInbound) Handle(ctx context.Context, in service.Inbound) (service.HandleResult, error) {
	m.got = append(m.got, in)
	if m.handle != nil {
		return m.handle(ctx, in)
	}
	return service.HandleResult{Outcome: service.OutcomeProcessed}, nil
}

var _ handler.InboundHandler = (*mockInbound)(nil)

// mockReviewServicer is a test double for handler.ReviewServicer.
// Set only the method fields your test needs.
type mockReviewServicer struct {
	list    func(ctx context.Context, tripID uuid.UUID, status domain.MessageStatus, p domain.PaginationParams) ([]domain.InboundMessage, int64, error)
	get     func(ctx context.Context, tripID, id uuid.UUID) (domain.InboundMessage, error)
	apply   func(ctx context.Context, tripID, id, actorID uuid.UUID, indexes []int) (service.ReviewOutcome, error)
	dismiss func(ctx context.Context, tripID, id, actorID uuid.UUID) (domain.InboundMessage, error)
}

func (m *mockReviewServicer) List(ctx context.Context, tripID uuid.UUID, status domain.MessageStatus, p domain.PaginationParams) ([]domain.InboundMessage, int64, error) {
	return m.list(ctx, tripID, status, p)
}
func (m *mockReviewServicer) Get(ctx context.Context, tripID, id uuid.UUID) (domain.InboundMessage, error) {
	return m.get(ctx, tripID, id)
}
func (m *mockReviewServicer) Apply(ctx context.Context, tripID, id, actorID uuid.UUID, indexes []int) (service.ReviewOutcome, error) {
	return m.apply(ctx, tripID, id, actorID, indexes)
}
func (m *mockReviewServicer) Dismiss(ctx context.Context, tripID, id, actorID uuid.UUID) (domain.InboundMessage, error) {
	return m.dismiss(ctx, tripID, id, actorID)
}

var _ handler.ReviewServicer = (*mockReviewServicer)(nil)

// mockMemberServicer is a test double for handler.MemberServicer.
type mockMemberServicer struct {
	list  func(ctx context.Context, tripID uuid.UUID) ([]domain.Member, error)
	claim func(ctx context.Context, tripID, userID uuid.UUID, email string) (domain.Member, error)
}

func (m *mockMemberServicer) List(ctx context.Context, tripID uuid.UUID) ([]domain.Member, error) {
	return m.list(ctx, tripID)
}
func (m *mockMemberServicer) Claim(ctx context.Context, tripID, userID uuid.UUID, email string) (domain.Member, error) {
	return m.claim(ctx, tripID, userID, email)
}

var _ handler.MemberServicer = (*mockMemberServicer)(nil)

// newTestServer wires a Server with the given mocks; nil services are fine
// for tests that do not reach them.
func newTestServer(in handler.InboundHandler, reviews handler.ReviewServicer, members handler.MemberServicer, emailSecret string) http.Handler {
	cfg := handler.WebhookConfig{
		PublicBaseURL:   testBaseURL,
		TwilioAuthToken: testTwilioToken,
		EmailSecret:     emailSecret,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return handler.NewServer(in, reviews, members, cfg, []byte("openapi: 3.0.3\n"), logger).Routes()
}
