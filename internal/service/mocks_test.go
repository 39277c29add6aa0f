package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/tripcrew/backend/internal/apply"
	"github.com/pkordes/tripcrew/backend/internal/content"
	"github.com/pkordes/tripcrew/backend/internal/domain"
	"github.com/pkordes/tripcrew/backend/internal/reply"
	"github.com/pkordes/tripcrew/backend/internal/repo"
	"github.com/pkordes/tripcrew/backend/internal/resolve"
	"github.com/pkordes/tripcrew/backend/internal/service"
)

// ---- mock repos ------------------------------------------------------------

// memInboundRepo is an in-memory repo.InboundRepo that enforces the unique
// provider id and the pending-only transition like the Postgres one.
type memInboundRepo struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]domain.InboundMessage
	creates   int
	createErr error
}

func newMemInboundRepo() *memInboundRepo {
	return &memInboundRepo{byID: map[uuid.UUID]domain.InboundMessage{}}
}

func (m *memInboundRepo) Create(_ context.Context, msg domain.InboundMessage) (domain.InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return domain.InboundMessage{}, m.createErr
	}
	if msg.ProviderMessageID != "" {
		for _, existing := range m.byID {
			if existing.ProviderMessageID == msg.ProviderMessageID {
				return domain.InboundMessage{}, domain.ErrConflict
			}
		}
	}
	m.creates++
	msg.ID = uuid.New()
	if msg.AutoApplied == nil {
		msg.AutoApplied = []domain.AppliedItem{}
	}
	msg.CreatedAt = time.Now()
	m.byID[msg.ID] = msg
	return msg, nil
}

func (m *memInboundRepo) GetByID(_ context.Context, id uuid.UUID) (domain.InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.byID[id]
	if !ok {
		return domain.InboundMessage{}, domain.ErrNotFound
	}
	return msg, nil
}

func (m *memInboundRepo) GetByProviderID(_ context.Context, providerID string) (domain.InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.byID {
		if msg.ProviderMessageID == providerID {
			return msg, nil
		}
	}
	return domain.InboundMessage{}, domain.ErrNotFound
}

func (m *memInboundRepo) ListByTrip(_ context.Context, tripID uuid.UUID, status domain.MessageStatus, _ domain.PaginationParams) ([]domain.InboundMessage, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.InboundMessage
	for _, msg := range m.byID {
		if msg.TripID != nil && *msg.TripID == tripID && (status == "" || msg.Status == status) {
			out = append(out, msg)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memInboundRepo) SaveExtraction(_ context.Context, id uuid.UUID, data *domain.Extraction, extractionErr *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.byID[id]
	msg.Extracted = data
	msg.ExtractionError = extractionErr
	m.byID[id] = msg
	return nil
}

func (m *memInboundRepo) RecordAutoApply(_ context.Context, id uuid.UUID, status domain.MessageStatus, remainder *domain.Extraction, applied []domain.AppliedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.byID[id]
	if msg.Status != domain.StatusPending {
		return nil
	}
	msg.Status = status
	msg.Extracted = remainder
	msg.AutoApplied = append(msg.AutoApplied, applied...)
	m.byID[id] = msg
	return nil
}

func (m *memInboundRepo) Transition(_ context.Context, id uuid.UUID, to domain.MessageStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.byID[id]
	if !ok || msg.Status != domain.StatusPending {
		return domain.ErrConflict
	}
	msg.Status = to
	m.byID[id] = msg
	return nil
}

func (m *memInboundRepo) AppendApplied(_ context.Context, id uuid.UUID, applied []domain.AppliedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	msg.AutoApplied = append(msg.AutoApplied, applied...)
	m.byID[id] = msg
	return nil
}

func (m *memInboundRepo) MarkReplySent(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.byID[id]
	msg.ReplySent = true
	m.byID[id] = msg
	return nil
}

func (m *memInboundRepo) only() domain.InboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.byID {
		return msg
	}
	return domain.InboundMessage{}
}

var _ repo.InboundRepo = (*memInboundRepo)(nil)

// mockMemberRepo is a hand-written test double for repo.MemberRepo.
type mockMemberRepo struct {
	listByTrip   func(ctx context.Context, tripID uuid.UUID) ([]domain.Member, error)
	getByID      func(ctx context.Context, tripID, memberID uuid.UUID) (domain.Member, error)
	claimByEmail func(ctx context.Context, tripID, userID uuid.UUID, email string) (domain.Member, error)
}

func (m *mockMemberRepo) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.Member, error) {
	if m.listByTrip != nil {
		return m.listByTrip(ctx, tripID)
	}
	return nil, nil
}
func (m *mockMemberRepo) GetByID(ctx context.Context, tripID, memberID uuid.UUID) (domain.Member, error) {
	return m.getByID(ctx, tripID, memberID)
}
func (m *mockMemberRepo) Create(context.Context, domain.Member) (domain.Member, error) {
	panic("not used")
}
func (m *mockMemberRepo) UpdateStay(context.Context, uuid.UUID, uuid.UUID, repo.StayPatch) (domain.Member, error) {
	panic("not used")
}
func (m *mockMemberRepo) ClaimByEmail(ctx context.Context, tripID, userID uuid.UUID, email string) (domain.Member, error) {
	return m.claimByEmail(ctx, tripID, userID, email)
}

var _ repo.MemberRepo = (*mockMemberRepo)(nil)

// ---- mock pipeline stages --------------------------------------------------

type mockResolver struct {
	resolve func(ctx context.Context, q resolve.Query) (resolve.Resolution, error)
	calls   int
	last    resolve.Query
}

func (m *mockResolver) Resolve(ctx context.Context, q resolve.Query) (resolve.Resolution, error) {
	m.calls++
	m.last = q
	return m.resolve(ctx, q)
}

var _ service.TripResolver = (*mockResolver)(nil)

type mockAssembler struct {
	assemble func(ctx context.Context, in content.Input, pc content.PromptContext) (content.Assembly, error)
	calls    int
}

func (m *mockAssembler) Assemble(ctx context.Context, in content.Input, pc content.PromptContext) (content.Assembly, error) {
	m.calls++
	return m.assemble(ctx, in, pc)
}

var _ service.ContentAssembler = (*mockAssembler)(nil)

type mockExtractor struct {
	run   func(ctx context.Context, blocks []content.Block) (domain.Extraction, string)
	calls int
}

func (m *mockExtractor) Run(ctx context.Context, blocks []content.Block) (domain.Extraction, string) {
	m.calls++
	return m.run(ctx, blocks)
}

var _ service.FactExtractor = (*mockExtractor)(nil)

type mockApplier struct {
	apply      func(ctx context.Context, b apply.Batch) apply.Result
	finishAuto func(ctx context.Context, msg domain.InboundMessage, extracted domain.Extraction, review []domain.Fact, res apply.Result) (domain.MessageStatus, error)
	batches    []apply.Batch
}

func (m *mockApplier) Apply(ctx context.Context, b apply.Batch) apply.Result {
	m.batches = append(m.batches, b)
	return m.apply(ctx, b)
}

func (m *mockApplier) FinishAuto(ctx context.Context, msg domain.InboundMessage, extracted domain.Extraction, review []domain.Fact, res apply.Result) (domain.MessageStatus, error) {
	return m.finishAuto(ctx, msg, extracted, review, res)
}

var _ service.FactApplier = (*mockApplier)(nil)

type sentReply struct {
	Channel domain.Channel
	Address string
	Message reply.Message
}

type mockReplies struct {
	err  error
	sent []sentReply
}

func (m *mockReplies) Send(_ context.Context, channel domain.Channel, address string, msg reply.Message) error {
	m.sent = append(m.sent, sentReply{Channel: channel, Address: address, Message: msg})
	return m.err
}

var _ service.ReplySender = (*mockReplies)(nil)
