// Package service contains the business logic for the trip concierge.
// Services orchestrate the pipeline stages and repo calls.
// No SQL lives here; services depend on interfaces, not implementations.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/tripcrew/backend/internal/apply"
	"github.com/pkordes/tripcrew/backend/internal/classify"
	"github.com/pkordes/tripcrew/backend/internal/content"
	"github.com/pkordes/tripcrew/backend/internal/domain"
	"github.com/pkordes/tripcrew/backend/internal/reply"
	"github.com/pkordes/tripcrew/backend/internal/repo"
	"github.com/pkordes/tripcrew/backend/internal/resolve"
)

// TripResolver is satisfied by *resolve.Resolver.
type TripResolver interface {
	Resolve(ctx context.Context, q resolve.Query) (resolve.Resolution, error)
}

// ContentAssembler is satisfied by *content.Assembler.
type ContentAssembler interface {
	Assemble(ctx context.Context, in content.Input, pc content.PromptContext) (content.Assembly, error)
}

// FactExtractor is satisfied by *extract.Extractor.
type FactExtractor interface {
	Run(ctx context.Context, blocks []content.Block) (domain.Extraction, string)
}

// FactApplier is satisfied by *apply.Engine.
type FactApplier interface {
	Apply(ctx context.Context, b apply.Batch) apply.Result
	FinishAuto(ctx context.Context, msg domain.InboundMessage, extracted domain.Extraction, review []domain.Fact, res apply.Result) (domain.MessageStatus, error)
}

// ReplySender is satisfied by *reply.Dispatcher.
type ReplySender interface {
	Send(ctx context.Context, channel domain.Channel, address string, msg reply.Message) error
}

// Inbound is one webhook delivery normalized by a handler.
type Inbound struct {
	Channel           domain.Channel
	ProviderMessageID string
	// From is the sender address as the provider gave it; replies go back to it.
	From        string
	To          string
	Text        string
	Media       []content.MediaRef
	Attachments []content.Attachment
	RawPayload  json.RawMessage
}

// senderEmail and senderPhone split From by channel.
func (in Inbound) senderEmail() string {
	if in.Channel == domain.ChannelEmail {
		return in.From
	}
	return ""
}

func (in Inbound) senderPhone() string {
	if in.Channel == domain.ChannelEmail {
		return ""
	}
	return strings.TrimPrefix(in.From, "whatsapp:")
}

// Outcome names how the pipeline finished with a message.
type Outcome string

const (
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeAmbiguous Outcome = "ambiguous"
	OutcomeSwitched  Outcome = "switched"
	OutcomeProcessed Outcome = "processed"
)

// HandleResult reports the pipeline outcome.
type HandleResult struct {
	Outcome   Outcome
	MessageID uuid.UUID
	TripID    *uuid.UUID
	Status    domain.MessageStatus
	Applied   apply.Result
	// ExtractionError is set when extraction was skipped or failed.
	ExtractionError string
}

// InboundService runs the inbound pipeline:
// dedup, resolve, store, assemble, extract, classify, apply, reply.
type InboundService struct {
	inbound      repo.InboundRepo
	members      repo.MemberRepo
	resolver     TripResolver
	assembler    ContentAssembler
	extractor    FactExtractor
	applier      FactApplier
	replies      ReplySender
	replyTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// InboundDeps groups the collaborators of InboundService.
type InboundDeps struct {
	Inbound   repo.InboundRepo
	Members   repo.MemberRepo
	Resolver  TripResolver
	Assembler ContentAssembler
	Extractor FactExtractor
	Applier   FactApplier
	Replies   ReplySender
	// ReplyTimeout bounds reply dispatch, which runs detached from the
	// request context. Defaults to 15s.
	ReplyTimeout time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
}

// NewInboundService constructs an InboundService.
func NewInboundService(d InboundDeps) *InboundService {
	if d.ReplyTimeout <= 0 {
		d.ReplyTimeout = 15 * time.Second
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &InboundService{
		inbound:      d.Inbound,
		members:      d.Members,
		resolver:     d.Resolver,
		assembler:    d.Assembler,
		extractor:    d.Extractor,
		applier:      d.Applier,
		replies:      d.Replies,
		replyTimeout: d.ReplyTimeout,
		now:          d.Now,
		logger:       d.Logger.With(slog.String("component", "inbound")),
	}
}

// Handle processes one delivery. Only infrastructure failures before the
// message is stored return an error; everything after degrades to a stored,
// reviewable message.
func (s *InboundService) Handle(ctx context.Context, in Inbound) (HandleResult, error) {
	log := s.logger.With(
		slog.String("channel", string(in.Channel)),
		slog.String("provider_message_id", in.ProviderMessageID))

	if in.ProviderMessageID == "" {
		log.DebugContext(ctx, "no provider message id; idempotency guard skipped")
	} else {
		existing, err := s.inbound.GetByProviderID(ctx, in.ProviderMessageID)
		switch {
		case err == nil:
			log.InfoContext(ctx, "duplicate delivery", slog.String("message_id", existing.ID.String()))
			return HandleResult{Outcome: OutcomeDuplicate, MessageID: existing.ID, TripID: existing.TripID, Status: existing.Status}, nil
		case !errors.Is(err, domain.ErrNotFound):
			return HandleResult{}, fmt.Errorf("service.InboundService.Handle: %w", err)
		}
	}

	res, err := s.resolver.Resolve(ctx, resolve.Query{
		Channel:     in.Channel,
		SenderEmail: in.senderEmail(),
		SenderPhone: in.senderPhone(),
		Text:        in.Text,
		ToAddress:   in.To,
	})
	if err != nil {
		return HandleResult{}, fmt.Errorf("service.InboundService.Handle: %w", err)
	}

	switch {
	case res.Switched:
		return s.shortCircuit(ctx, log, in, res, OutcomeSwitched, reply.Switched(*res.Trip))
	case res.Ambiguous:
		return s.shortCircuit(ctx, log, in, res, OutcomeAmbiguous, reply.Disambiguation(res.Candidates))
	case !res.Found():
		return s.shortCircuit(ctx, log, in, res, OutcomeNotFound, reply.NotFound())
	}

	trip := *res.Trip
	log = log.With(slog.String("trip_id", trip.ID.String()))

	msg, err := s.inbound.Create(ctx, s.newMessage(in, res, domain.StatusPending))
	if errors.Is(err, domain.ErrConflict) {
		log.InfoContext(ctx, "duplicate delivery (insert race)")
		return HandleResult{Outcome: OutcomeDuplicate, TripID: &trip.ID}, nil
	}
	if err != nil {
		return HandleResult{}, fmt.Errorf("service.InboundService.Handle: %w", err)
	}

	out := s.process(ctx, log, in, trip, res.Member, msg)
	log.InfoContext(ctx, "inbound message processed",
		slog.String("outcome", string(out.Outcome)),
		slog.String("message_id", msg.ID.String()),
		slog.String("status", string(out.Status)),
		slog.Int("applied", out.Applied.Succeeded()))
	return out, nil
}

// process runs everything after the message row exists.
func (s *InboundService) process(ctx context.Context, log *slog.Logger, in Inbound, trip domain.Trip, sender *domain.Member, msg domain.InboundMessage) HandleResult {
	out := HandleResult{Outcome: OutcomeProcessed, MessageID: msg.ID, TripID: &trip.ID, Status: domain.StatusPending}

	members, err := s.members.ListByTrip(ctx, trip.ID)
	if err != nil {
		log.WarnContext(ctx, "roster unavailable; continuing without it", slog.String("error", err.Error()))
		members = nil
	}

	pc := content.PromptContext{
		Today:   s.now(),
		Trip:    trip,
		Members: members,
		Sender:  in.From,
		Channel: in.Channel,
	}
	if sender != nil {
		pc.SenderName = sender.DisplayName()
	}

	assembly, err := s.assembler.Assemble(ctx, content.Input{Text: in.Text, Media: in.Media, Attachments: in.Attachments}, pc)
	if err != nil {
		errText := "assembly failed: " + err.Error()
		reason := reply.ExtractionFailed(trip.Name)
		if errors.Is(err, domain.ErrNoContent) {
			errText = domain.ErrNoContent.Error()
			reason = reply.NoContent(trip.Name)
		}
		s.saveExtraction(ctx, log, msg.ID, nil, errText)
		out.ExtractionError = errText
		s.reply(ctx, log, in, msg.ID, reason)
		return out
	}

	extracted, errText := s.extractor.Run(ctx, assembly.Blocks)
	if errText != "" {
		s.saveExtraction(ctx, log, msg.ID, nil, errText)
		out.ExtractionError = errText
		s.reply(ctx, log, in, msg.ID, reply.ExtractionFailed(trip.Name))
		return out
	}
	s.saveExtraction(ctx, log, msg.ID, &extracted, "")

	cls := classify.Classify(extracted.Facts(), sender, members)

	var result apply.Result
	if len(cls.Auto) > 0 {
		result = s.applier.Apply(ctx, apply.Batch{
			TripID:        trip.ID,
			ActorMemberID: sender.ID,
			MessageID:     msg.ID,
			Facts:         cls.Auto,
			SenderBound:   true,
		})
	}
	out.Applied = result

	if len(cls.Auto) > 0 || extracted.Len() == 0 {
		status, err := s.applier.FinishAuto(ctx, msg, extracted, cls.Review, result)
		if err != nil {
			log.ErrorContext(ctx, "recording auto-apply failed", slog.String("error", err.Error()))
		} else {
			out.Status = status
		}
	}

	s.reply(ctx, log, in, msg.ID, reply.Acknowledgment(reply.Counts{
		Applied:   result.Succeeded(),
		Review:    len(cls.Review) + len(result.Failed),
		Failed:    len(result.Failed),
		Summary:   extracted.Summary,
		TripName:  trip.Name,
		FullyDone: out.Status == domain.StatusApplied,
	}))
	return out
}

// shortCircuit stores a dismissed record, so redeliveries dedupe, and
// answers the sender without running extraction.
func (s *InboundService) shortCircuit(ctx context.Context, log *slog.Logger, in Inbound, res resolve.Resolution, outcome Outcome, msg reply.Message) (HandleResult, error) {
	stored, err := s.inbound.Create(ctx, s.newMessage(in, res, domain.StatusDismissed))
	if errors.Is(err, domain.ErrConflict) {
		return HandleResult{Outcome: OutcomeDuplicate}, nil
	}
	if err != nil {
		return HandleResult{}, fmt.Errorf("service.InboundService.shortCircuit: %w", err)
	}

	log.InfoContext(ctx, "inbound message not processed",
		slog.String("outcome", string(outcome)),
		slog.String("message_id", stored.ID.String()),
		slog.Int("candidates", len(res.Candidates)))
	s.reply(ctx, log, in, stored.ID, msg)

	out := HandleResult{Outcome: outcome, MessageID: stored.ID, Status: domain.StatusDismissed}
	if res.Trip != nil {
		out.TripID = &res.Trip.ID
	}
	return out, nil
}

func (s *InboundService) newMessage(in Inbound, res resolve.Resolution, status domain.MessageStatus) domain.InboundMessage {
	msg := domain.InboundMessage{
		Channel:           in.Channel,
		ProviderMessageID: in.ProviderMessageID,
		Sender:            in.From,
		RawPayload:        in.RawPayload,
		Text:              in.Text,
		Status:            status,
	}
	if res.Trip != nil {
		msg.TripID = &res.Trip.ID
	}
	if res.Member != nil {
		msg.SenderMemberID = &res.Member.ID
	}
	return msg
}

func (s *InboundService) saveExtraction(ctx context.Context, log *slog.Logger, id uuid.UUID, x *domain.Extraction, errText string) {
	var errPtr *string
	if errText != "" {
		errPtr = &errText
	}
	if err := s.inbound.SaveExtraction(ctx, id, x, errPtr); err != nil {
		log.ErrorContext(ctx, "saving extraction failed", slog.String("error", err.Error()))
	}
}

// reply sends on a context that survives request cancellation but has its
// own deadline. Failures are logged and never reach the caller.
func (s *InboundService) reply(ctx context.Context, log *slog.Logger, in Inbound, id uuid.UUID, msg reply.Message) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.replyTimeout)
	defer cancel()

	if err := s.replies.Send(rctx, in.Channel, in.From, msg); err != nil {
		log.WarnContext(rctx, "reply not sent", slog.String("error", err.Error()))
		return
	}
	if err := s.inbound.MarkReplySent(rctx, id); err != nil {
		log.WarnContext(rctx, "marking reply sent failed", slog.String("error", err.Error()))
	}
}
