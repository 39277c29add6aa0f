package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/pkordes/tripcrew/backend/internal/apply"
	"github.com/pkordes/tripcrew/backend/internal/domain"
	"github.com/pkordes/tripcrew/backend/internal/repo"
)

// BatchApplier is the part of *apply.Engine the review flow needs.
type BatchApplier interface {
	Apply(ctx context.Context, b apply.Batch) apply.Result
}

// ReviewService lets trip owners work through messages left pending.
type ReviewService struct {
	inbound repo.InboundRepo
	members repo.MemberRepo
	applier BatchApplier
	logger  *slog.Logger
}

// NewReviewService constructs a ReviewService.
func NewReviewService(inbound repo.InboundRepo, members repo.MemberRepo, applier BatchApplier, logger *slog.Logger) *ReviewService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewService{
		inbound: inbound,
		members: members,
		applier: applier,
		logger:  logger.With(slog.String("component", "review")),
	}
}

// ReviewOutcome is what a manual apply produced.
type ReviewOutcome struct {
	Message domain.InboundMessage
	Result  apply.Result
}

// List returns one page of a trip's inbound messages.
func (s *ReviewService) List(ctx context.Context, tripID uuid.UUID, status domain.MessageStatus, p domain.PaginationParams) ([]domain.InboundMessage, int64, error) {
	switch status {
	case "", domain.StatusPending, domain.StatusApplied, domain.StatusDismissed:
	default:
		return nil, 0, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
	}
	msgs, total, err := s.inbound.ListByTrip(ctx, tripID, status, p)
	if err != nil {
		return nil, 0, fmt.Errorf("service.ReviewService.List: %w", err)
	}
	return msgs, total, nil
}

// Get returns a message, but only through the trip it belongs to.
func (s *ReviewService) Get(ctx context.Context, tripID, id uuid.UUID) (domain.InboundMessage, error) {
	msg, err := s.inbound.GetByID(ctx, id)
	if err != nil {
		return domain.InboundMessage{}, fmt.Errorf("service.ReviewService.Get: %w", err)
	}
	if msg.TripID == nil || *msg.TripID != tripID {
		return domain.InboundMessage{}, fmt.Errorf("service.ReviewService.Get: %w", domain.ErrNotFound)
	}
	return msg, nil
}

// Apply applies the selected facts of a pending message on behalf of an
// owner. indexes address Extracted.Facts(); nil selects every fact and an
// empty selection dismisses the message. The pending to applied transition
// happens first, so a concurrent second apply gets domain.ErrConflict.
func (s *ReviewService) Apply(ctx context.Context, tripID, id, actorID uuid.UUID, indexes []int) (ReviewOutcome, error) {
	msg, err := s.authorize(ctx, tripID, id, actorID)
	if err != nil {
		return ReviewOutcome{}, fmt.Errorf("service.ReviewService.Apply: %w", err)
	}

	var facts []domain.Fact
	if msg.Extracted != nil {
		facts = msg.Extracted.Facts()
	}
	selected, err := selectFacts(facts, indexes)
	if err != nil {
		return ReviewOutcome{}, fmt.Errorf("service.ReviewService.Apply: %w", err)
	}

	to := domain.StatusApplied
	if len(selected) == 0 {
		to = domain.StatusDismissed
	}
	if err := s.inbound.Transition(ctx, id, to); err != nil {
		return ReviewOutcome{}, fmt.Errorf("service.ReviewService.Apply: %w", err)
	}
	msg.Status = to
	if len(selected) == 0 {
		return ReviewOutcome{Message: msg}, nil
	}

	res := s.applier.Apply(ctx, apply.Batch{
		TripID:        tripID,
		ActorMemberID: actorID,
		MessageID:     id,
		Facts:         selected,
	})
	if len(res.Applied) > 0 {
		if err := s.inbound.AppendApplied(ctx, id, res.Applied); err != nil {
			return ReviewOutcome{}, fmt.Errorf("service.ReviewService.Apply: %w", err)
		}
		msg.AutoApplied = append(msg.AutoApplied, res.Applied...)
	}

	s.logger.InfoContext(ctx, "message applied by owner",
		slog.String("message_id", id.String()),
		slog.String("trip_id", tripID.String()),
		slog.Int("applied", res.Succeeded()),
		slog.Int("failed", len(res.Errors)))
	return ReviewOutcome{Message: msg, Result: res}, nil
}

// Dismiss closes a pending message without applying anything.
func (s *ReviewService) Dismiss(ctx context.Context, tripID, id, actorID uuid.UUID) (domain.InboundMessage, error) {
	msg, err := s.authorize(ctx, tripID, id, actorID)
	if err != nil {
		return domain.InboundMessage{}, fmt.Errorf("service.ReviewService.Dismiss: %w", err)
	}
	if err := s.inbound.Transition(ctx, id, domain.StatusDismissed); err != nil {
		return domain.InboundMessage{}, fmt.Errorf("service.ReviewService.Dismiss: %w", err)
	}
	msg.Status = domain.StatusDismissed
	return msg, nil
}

// authorize loads a pending message of the trip and checks the actor owns it.
func (s *ReviewService) authorize(ctx context.Context, tripID, id, actorID uuid.UUID) (domain.InboundMessage, error) {
	actor, err := s.members.GetByID(ctx, tripID, actorID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.InboundMessage{}, fmt.Errorf("%w: actor is not a member of this trip", domain.ErrForbidden)
	}
	if err != nil {
		return domain.InboundMessage{}, err
	}
	if actor.Role != domain.RoleOwner {
		return domain.InboundMessage{}, fmt.Errorf("%w: only trip owners can review messages", domain.ErrForbidden)
	}

	msg, err := s.Get(ctx, tripID, id)
	if err != nil {
		return domain.InboundMessage{}, err
	}
	if msg.Status.IsTerminal() {
		return domain.InboundMessage{}, fmt.Errorf("%w: message is already %s", domain.ErrConflict, msg.Status)
	}
	return msg, nil
}

func selectFacts(facts []domain.Fact, indexes []int) ([]domain.Fact, error) {
	if indexes == nil {
		return facts, nil
	}
	sorted := append([]int(nil), indexes...)
	sort.Ints(sorted)
	out := make([]domain.Fact, 0, len(sorted))
	for i, idx := range sorted {
		if idx < 0 || idx >= len(facts) {
			return nil, fmt.Errorf("%w: fact index %d out of range", domain.ErrValidation, idx)
		}
		if i > 0 && sorted[i-1] == idx {
			return nil, fmt.Errorf("%w: fact index %d repeated", domain.ErrValidation, idx)
		}
		out = append(out, facts[idx])
	}
	return out, nil
}
