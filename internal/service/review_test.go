package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripcrew/backend/internal/apply"
	"github.com/pkordes/tripcrew/backend/internal/domain"
	"github.com/pkordes/tripcrew/backend/internal/service"
)

// ---- helpers ---------------------------------------------------------------

type reviewFixture struct {
	inbound *memInboundRepo
	applier *mockApplier
	svc     *service.ReviewService
	tripID  uuid.UUID
	owner   domain.Member
	member  domain.Member
	msg     domain.InboundMessage
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	f := &reviewFixture{tripID: uuid.New(), inbound: newMemInboundRepo()}
	f.owner = domain.Member{ID: uuid.New(), TripID: f.tripID, Name: "Ana", Role: domain.RoleOwner}
	f.member = domain.Member{ID: uuid.New(), TripID: f.tripID, Name: "Rui", Role: domain.RoleMember}

	members := &mockMemberRepo{getByID: func(_ context.Context, tripID, memberID uuid.UUID) (domain.Member, error) {
		for _, m := range []domain.Member{f.owner, f.member} {
			if m.ID == memberID && m.TripID == tripID {
				return m, nil
			}
		}
		return domain.Member{}, domain.ErrNotFound
	}}
	f.applier = &mockApplier{apply: func(_ context.Context, b apply.Batch) apply.Result {
		var res apply.Result
		for _, fact := range b.Facts {
			res.Applied = append(res.Applied, domain.AppliedItem{Kind: fact.Kind(), ActorID: b.ActorMemberID})
		}
		return res
	}}
	f.svc = service.NewReviewService(f.inbound, members, f.applier, nil)

	x := domain.NewExtraction([]domain.Fact{
		domain.NewTraveler{Name: "Marta"},
		domain.CalendarEvent{Title: "Sintra day trip", Date: "2025-05-04"},
		domain.Expense{Description: "tickets", Amount: 30},
	}, "", "three things")
	msg, err := f.inbound.Create(context.Background(), domain.InboundMessage{
		TripID:  &f.tripID,
		Channel: domain.ChannelEmail,
		Sender:  "rui@example.com",
		Status:  domain.StatusPending,
	})
	require.NoError(t, err)
	require.NoError(t, f.inbound.SaveExtraction(context.Background(), msg.ID, &x, nil))
	f.msg = msg
	return f
}

// ---- Apply -----------------------------------------------------------------

func TestReviewService_Apply_AllFacts(t *testing.T) {
	f := newReviewFixture(t)

	out, err := f.svc.Apply(context.Background(), f.tripID, f.msg.ID, f.owner.ID, nil)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusApplied, out.Message.Status)
	require.Len(t, f.applier.batches, 1)
	assert.Len(t, f.applier.batches[0].Facts, 3)
	assert.Equal(t, f.owner.ID, f.applier.batches[0].ActorMemberID)
	assert.False(t, f.applier.batches[0].SenderBound, "owner review resolves names against the whole roster")
	assert.Len(t, f.inbound.only().AutoApplied, 3)
}

func TestReviewService_Apply_SelectedIndexesInFactOrder(t *testing.T) {
	f := newReviewFixture(t)

	_, err := f.svc.Apply(context.Background(), f.tripID, f.msg.ID, f.owner.ID, []int{2, 0})

	require.NoError(t, err)
	require.Len(t, f.applier.batches, 1)
	facts := f.applier.batches[0].Facts
	require.Len(t, facts, 2)
	assert.Equal(t, domain.KindNewTraveler, facts[0].Kind())
	assert.Equal(t, domain.KindExpense, facts[1].Kind())
}

func TestReviewService_Apply_EmptySelectionDismisses(t *testing.T) {
	f := newReviewFixture(t)

	out, err := f.svc.Apply(context.Background(), f.tripID, f.msg.ID, f.owner.ID, []int{})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusDismissed, out.Message.Status)
	assert.Empty(t, f.applier.batches)
}

func TestReviewService_Apply_SecondAttemptConflicts(t *testing.T) {
	f := newReviewFixture(t)

	_, err := f.svc.Apply(context.Background(), f.tripID, f.msg.ID, f.owner.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.Apply(context.Background(), f.tripID, f.msg.ID, f.owner.ID, nil)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Len(t, f.applier.batches, 1)
}

func TestReviewService_Apply_NonOwnerForbidden(t *testing.T) {
	f := newReviewFixture(t)

	_, err := f.svc.Apply(context.Background(), f.tripID, f.msg.ID, f.member.ID, nil)

	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, domain.StatusPending, f.inbound.only().Status)
}

func TestReviewService_Apply_StrangerForbidden(t *testing.T) {
	f := newReviewFixture(t)

	_, err := f.svc.Apply(context.Background(), f.tripID, f.msg.ID, uuid.New(), nil)

	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestReviewService_Apply_BadIndex(t *testing.T) {
	f := newReviewFixture(t)

	for _, idx := range [][]int{{3}, {-1}, {1, 1}} {
		_, err := f.svc.Apply(context.Background(), f.tripID, f.msg.ID, f.owner.ID, idx)
		assert.ErrorIs(t, err, domain.ErrValidation, "indexes %v", idx)
	}
	assert.Equal(t, domain.StatusPending, f.inbound.only().Status)
}

// ---- Get / Dismiss / List --------------------------------------------------

func TestReviewService_Get_OtherTripIsNotFound(t *testing.T) {
	f := newReviewFixture(t)

	_, err := f.svc.Get(context.Background(), uuid.New(), f.msg.ID)

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReviewService_Dismiss(t *testing.T) {
	f := newReviewFixture(t)

	msg, err := f.svc.Dismiss(context.Background(), f.tripID, f.msg.ID, f.owner.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusDismissed, msg.Status)
	assert.Empty(t, f.applier.batches)

	_, err = f.svc.Dismiss(context.Background(), f.tripID, f.msg.ID, f.owner.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestReviewService_List_RejectsUnknownStatus(t *testing.T) {
	f := newReviewFixture(t)

	_, _, err := f.svc.List(context.Background(), f.tripID, "archived", domain.NewPaginationParams(nil, nil))

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReviewService_List_FiltersByStatus(t *testing.T) {
	f := newReviewFixture(t)

	msgs, total, err := f.svc.List(context.Background(), f.tripID, domain.StatusPending, domain.NewPaginationParams(nil, nil))

	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, msgs, 1)
	assert.Equal(t, f.msg.ID, msgs[0].ID)
}
