package apply_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripcrew/backend/internal/apply"
	"github.com/pkordes/tripcrew/backend/internal/classify"
	"github.com/pkordes/tripcrew/backend/internal/domain"
	"github.com/pkordes/tripcrew/backend/internal/repo"
)

// fakeMembers is an in-memory repo.MemberRepo.
type fakeMembers struct {
	rows    []domain.Member
	listErr error
}

func (f *fakeMembers) ListByTrip(context.Context, uuid.UUID) ([]domain.Member, error) {
	return append([]domain.Member(nil), f.rows...), f.listErr
}
func (f *fakeMembers) GetByID(_ context.Context, _, id uuid.UUID) (domain.Member, error) {
	for _, m := range f.rows {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.Member{}, domain.ErrNotFound
}
func (f *fakeMembers) Create(_ context.Context, m domain.Member) (domain.Member, error) {
	m.ID = uuid.New()
	f.rows = append(f.rows, m)
	return m, nil
}
func (f *fakeMembers) UpdateStay(_ context.Context, _, id uuid.UUID, p repo.StayPatch) (domain.Member, error) {
	for i, m := range f.rows {
		if m.ID != id {
			continue
		}
		if p.StayStart != nil {
			m.StayStart = p.StayStart
		}
		if p.StayEnd != nil {
			m.StayEnd = p.StayEnd
		}
		if p.Lodging != nil {
			m.Lodging = *p.Lodging
		}
		f.rows[i] = m
		return m, nil
	}
	return domain.Member{}, domain.ErrNotFound
}
func (f *fakeMembers) ClaimByEmail(context.Context, uuid.UUID, uuid.UUID, string) (domain.Member, error) {
	return domain.Member{}, errors.New("not used")
}

var _ repo.MemberRepo = (*fakeMembers)(nil)

// fakeRecords stores inserted rows; failOn makes the nth expense insert fail.
type fakeRecords struct {
	logistics []domain.LogisticsRecord
	events    []domain.EventRecord
	expenses  []domain.ExpenseRecord
	failDesc  string
}

func (f *fakeRecords) CreateLogistics(_ context.Context, r domain.LogisticsRecord) (domain.LogisticsRecord, error) {
	r.ID = uuid.New()
	f.logistics = append(f.logistics, r)
	return r, nil
}
func (f *fakeRecords) CreateEvent(_ context.Context, r domain.EventRecord) (domain.EventRecord, error) {
	r.ID = uuid.New()
	f.events = append(f.events, r)
	return r, nil
}
func (f *fakeRecords) CreateExpense(_ context.Context, r domain.ExpenseRecord) (domain.ExpenseRecord, error) {
	if f.failDesc != "" && r.Description == f.failDesc {
		return domain.ExpenseRecord{}, errors.New("repo.RecordRepo.CreateExpense: insert failed")
	}
	r.ID = uuid.New()
	f.expenses = append(f.expenses, r)
	return r, nil
}

var _ repo.RecordRepo = (*fakeRecords)(nil)

// mockInbound records RecordAutoApply and AppendApplied calls; other methods
// are unused here.
type mockInbound struct {
	repo.InboundRepo
	recordErr error
	status    domain.MessageStatus
	remainder *domain.Extraction
	applied   []domain.AppliedItem
	appended  []domain.AppliedItem
}

func (m *mockInbound) RecordAutoApply(_ context.Context, _ uuid.UUID, status domain.MessageStatus, remainder *domain.Extraction, applied []domain.AppliedItem) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.status, m.remainder, m.applied = status, remainder, applied
	return nil
}

func (m *mockInbound) AppendApplied(_ context.Context, _ uuid.UUID, applied []domain.AppliedItem) error {
	m.appended = append(m.appended, applied...)
	return nil
}

// ---- helpers ---------------------------------------------------------------

type fixture struct {
	tripID  uuid.UUID
	sender  domain.Member
	other   domain.Member
	members *fakeMembers
	records *fakeRecords
	inbound *mockInbound
	engine  *apply.Engine
}

func newFixture() *fixture {
	tripID := uuid.New()
	userID := uuid.New()
	sender := domain.Member{ID: uuid.New(), TripID: tripID, UserID: &userID, Name: "Alice Martin", Email: "alice@example.com", Role: domain.RoleOwner}
	other := domain.Member{ID: uuid.New(), TripID: tripID, Name: "Bob Stone"}
	f := &fixture{
		tripID:  tripID,
		sender:  sender,
		other:   other,
		members: &fakeMembers{rows: []domain.Member{sender, other}},
		records: &fakeRecords{},
		inbound: &mockInbound{},
	}
	f.engine = apply.NewEngine(f.members, f.records, f.inbound, nil)
	return f
}

func (f *fixture) batch(facts ...domain.Fact) apply.Batch {
	return apply.Batch{TripID: f.tripID, ActorMemberID: f.sender.ID, MessageID: uuid.New(), Facts: facts}
}

// ---- Apply -----------------------------------------------------------------

func TestApply_PartialFailure(t *testing.T) {
	f := newFixture()
	f.records.failDesc = "boom"

	first := domain.Expense{Description: "Lunch", Amount: 20}
	second := domain.Expense{Description: "boom", Amount: 30}
	third := domain.Expense{Description: "Museum", Amount: 15}

	res := f.engine.Apply(context.Background(), f.batch(first, second, third))

	assert.Equal(t, 2, res.ExpensesAdded)
	assert.Equal(t, 2, res.Succeeded())
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Index)
	assert.Equal(t, domain.KindExpense, res.Errors[0].Kind)
	assert.Equal(t, []domain.Fact{second}, res.Failed)

	require.Len(t, f.records.expenses, 2, "facts 1 and 3 persisted")
	assert.Equal(t, "Lunch", f.records.expenses[0].Description)
	assert.Equal(t, "Museum", f.records.expenses[1].Description)
	assert.Len(t, res.Applied, 2)
}

func TestApply_AllKinds(t *testing.T) {
	f := newFixture()
	b := f.batch(
		domain.MemberUpdate{MemberName: "Bob Stone", MatchedExisting: true, StayEnd: "2025-06-12", Lodging: "Villa"},
		domain.NewTraveler{Name: "Eve", Email: "EVE@example.com"},
		domain.LogisticsItem{Type: "FLIGHT", PersonName: "Alice", Details: map[string]any{"flight": "AZ1"}},
		domain.CalendarEvent{Title: "Dinner", Date: "2025-06-03", Attendees: []string{"bob", "Eve", "Zed"}},
		domain.Expense{Description: "Wine", Amount: 30, Currency: "eur", Category: "FOOD", PayerName: "Bob"},
	)

	res := f.engine.Apply(context.Background(), b)

	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.MembersAdded)
	assert.Equal(t, 1, res.LogisticsAdded)
	assert.Equal(t, 1, res.EventsAdded)
	assert.Equal(t, 1, res.ExpensesAdded)

	bob, err := f.members.GetByID(context.Background(), f.tripID, f.other.ID)
	require.NoError(t, err)
	assert.Equal(t, "Villa", bob.Lodging)
	require.NotNil(t, bob.StayEnd)
	assert.Equal(t, "2025-06-12", bob.StayEnd.Format(domain.DateLayout))

	require.Len(t, f.records.logistics, 1)
	assert.Equal(t, *f.sender.UserID, f.records.logistics[0].UserID)
	assert.Equal(t, domain.LogisticsFlight, f.records.logistics[0].Type)

	require.Len(t, f.records.events, 1)
	assert.Len(t, f.records.events[0].AttendeeIDs, 2, "Zed matches nobody and is skipped; Eve was added earlier in the batch")

	require.Len(t, f.records.expenses, 1)
	exp := f.records.expenses[0]
	assert.Equal(t, f.other.ID, exp.PayerMemberID)
	assert.Equal(t, "EUR", exp.Currency)
	assert.Equal(t, domain.CategoryFood, exp.Category)
	require.NotNil(t, exp.SourceMessageID)
	assert.Equal(t, b.MessageID, *exp.SourceMessageID)
}

func TestApply_ExpenseDefaultsToActor(t *testing.T) {
	f := newFixture()

	res := f.engine.Apply(context.Background(), f.batch(domain.Expense{Description: "Taxi", Amount: 12}))

	require.Empty(t, res.Errors)
	assert.Equal(t, f.sender.ID, f.records.expenses[0].PayerMemberID)
}

// shortNameFixture has a sender "Al" whose name is a substring of another
// linked member, "Alice Smith".
func shortNameFixture() (*fixture, domain.Member) {
	f := newFixture()
	alUser, aliceUser := uuid.New(), uuid.New()
	f.sender = domain.Member{ID: uuid.New(), TripID: f.tripID, UserID: &alUser, Name: "Al", Role: domain.RoleMember}
	alice := domain.Member{ID: uuid.New(), TripID: f.tripID, UserID: &aliceUser, Name: "Alice Smith", Role: domain.RoleOwner}
	f.members.rows = []domain.Member{alice, f.sender}
	return f, alice
}

func TestApply_SenderBoundNamesStayWithSender(t *testing.T) {
	f, _ := shortNameFixture()
	facts := []domain.Fact{
		domain.LogisticsItem{Type: domain.LogisticsFlight, PersonName: "Alice"},
		domain.Expense{Description: "Dinner", Amount: 40, PayerName: "Alice"},
	}

	cls := classify.Classify(facts, &f.sender, f.members.rows)
	require.Len(t, cls.Auto, 2, "both facts name the sender by fuzzy match")

	b := f.batch(cls.Auto...)
	b.SenderBound = true
	res := f.engine.Apply(context.Background(), b)

	require.Empty(t, res.Errors)
	require.Len(t, f.records.logistics, 1)
	assert.Equal(t, *f.sender.UserID, f.records.logistics[0].UserID)
	require.Len(t, f.records.expenses, 1)
	assert.Equal(t, f.sender.ID, f.records.expenses[0].PayerMemberID)
}

func TestApply_ManualBatchMatchesWholeRoster(t *testing.T) {
	f, alice := shortNameFixture()

	res := f.engine.Apply(context.Background(), f.batch(
		domain.LogisticsItem{Type: domain.LogisticsFlight, PersonName: "Alice"},
		domain.Expense{Description: "Dinner", Amount: 40, PayerName: "Alice"},
	))

	require.Empty(t, res.Errors)
	assert.Equal(t, *alice.UserID, f.records.logistics[0].UserID)
	assert.Equal(t, alice.ID, f.records.expenses[0].PayerMemberID)
}

func TestApply_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		fact domain.Fact
	}{
		{name: "unknown member", fact: domain.MemberUpdate{MemberName: "Nobody", MatchedExisting: true, StayEnd: "2025-06-01"}},
		{name: "bad date", fact: domain.MemberUpdate{MemberName: "Bob Stone", MatchedExisting: true, StayEnd: "June 1st"}},
		{name: "empty update", fact: domain.MemberUpdate{MemberName: "Bob Stone", MatchedExisting: true}},
		{name: "nameless traveler", fact: domain.NewTraveler{Email: "x@example.com"}},
		{name: "event without date", fact: domain.CalendarEvent{Title: "Hike"}},
		{name: "zero expense", fact: domain.Expense{Description: "Free"}},
		{name: "unknown payer", fact: domain.Expense{Description: "Gift", Amount: 5, PayerName: "Zed"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			res := f.engine.Apply(context.Background(), f.batch(tc.fact))
			require.Len(t, res.Errors, 1)
			assert.Zero(t, res.Succeeded())
			assert.Equal(t, []domain.Fact{tc.fact}, res.Failed)
		})
	}
}

func TestApply_LogisticsNeedsLinkedOwner(t *testing.T) {
	f := newFixture()
	f.sender.UserID = nil
	f.members.rows[0] = f.sender

	res := f.engine.Apply(context.Background(), f.batch(domain.LogisticsItem{Type: domain.LogisticsTrain, PersonName: "Bob"}))
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "no linked member")
}

func TestApply_RosterFailureFailsEveryFact(t *testing.T) {
	f := newFixture()
	f.members.listErr = errors.New("db down")

	res := f.engine.Apply(context.Background(), f.batch(domain.Expense{Amount: 1}, domain.NewTraveler{Name: "Eve"}))
	assert.Len(t, res.Errors, 2)
	assert.Len(t, res.Failed, 2)
}

func TestApply_ActorNotOnTrip(t *testing.T) {
	f := newFixture()
	b := f.batch(domain.Expense{Amount: 1})
	b.ActorMemberID = uuid.New()

	res := f.engine.Apply(context.Background(), b)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, domain.ErrForbidden.Error())
}

// ---- FinishAuto ------------------------------------------------------------

func TestFinishAuto_RemainderRewrite(t *testing.T) {
	f := newFixture()
	f.records.failDesc = "boom"

	applied := domain.Expense{Description: "Lunch", Amount: 20}
	failed := domain.Expense{Description: "boom", Amount: 30}
	review := domain.NewTraveler{Name: "Eve"}
	extracted := domain.NewExtraction([]domain.Fact{applied, failed, review}, "note", "summary")

	res := f.engine.Apply(context.Background(), f.batch(applied, failed))
	msg := domain.InboundMessage{ID: uuid.New(), Status: domain.StatusPending}

	status, err := f.engine.FinishAuto(context.Background(), msg, extracted, []domain.Fact{review}, res)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, status)
	require.NotNil(t, f.inbound.remainder)
	assert.Equal(t, []domain.NewTraveler{review}, f.inbound.remainder.NewTravelers)
	assert.Equal(t, []domain.Expense{failed}, f.inbound.remainder.Expenses, "failed auto fact goes back to review")
	assert.Equal(t, "summary", f.inbound.remainder.Summary)
	assert.Equal(t, "note", f.inbound.remainder.Notes)
	require.Len(t, f.inbound.applied, 1)
	assert.Equal(t, domain.KindExpense, f.inbound.applied[0].Kind)
	assert.WithinDuration(t, time.Now(), f.inbound.applied[0].AppliedAt, time.Minute)
}

func TestFinishAuto_NothingLeftMarksApplied(t *testing.T) {
	f := newFixture()
	fact := domain.Expense{Description: "Lunch", Amount: 20}
	extracted := domain.NewExtraction([]domain.Fact{fact}, "", "lunch")

	res := f.engine.Apply(context.Background(), f.batch(fact))
	status, err := f.engine.FinishAuto(context.Background(), domain.InboundMessage{ID: uuid.New()}, extracted, nil, res)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusApplied, status)
	assert.Equal(t, domain.StatusApplied, f.inbound.status)
	assert.Zero(t, f.inbound.remainder.Len())
}

func TestFinishAuto_RecordFailureKeepsAuditTrail(t *testing.T) {
	f := newFixture()
	f.inbound.recordErr = errors.New("repo.InboundRepo.RecordAutoApply: connection reset")
	fact := domain.Expense{Description: "Lunch", Amount: 20}
	extracted := domain.NewExtraction([]domain.Fact{fact}, "", "lunch")
	msg := domain.InboundMessage{ID: uuid.New(), Status: domain.StatusPending}

	res := f.engine.Apply(context.Background(), f.batch(fact))
	status, err := f.engine.FinishAuto(context.Background(), msg, extracted, nil, res)

	require.Error(t, err)
	assert.Equal(t, domain.StatusPending, status)
	require.Len(t, f.inbound.appended, 1, "applied items still reach the message")
	assert.Equal(t, res.Applied[0].RecordID, f.inbound.appended[0].RecordID)
}

func TestFinishAuto_RecordFailureWithNothingApplied(t *testing.T) {
	f := newFixture()
	f.inbound.recordErr = errors.New("db down")

	_, err := f.engine.FinishAuto(context.Background(), domain.InboundMessage{ID: uuid.New()}, domain.Extraction{}, nil, apply.Result{})

	require.Error(t, err)
	assert.Empty(t, f.inbound.appended)
}
