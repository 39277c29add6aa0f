// Package apply turns approved facts into trip records. Each fact is one
// independent write; a failure is recorded and the batch continues.
package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/tripcrew/backend/internal/classify"
	"github.com/pkordes/tripcrew/backend/internal/domain"
	"github.com/pkordes/tripcrew/backend/internal/repo"
)

// Batch is one set of facts to apply on behalf of ActorMemberID: the sender
// for auto-apply, the reviewing owner for manual apply. MessageID is the
// inbound message the facts came from.
type Batch struct {
	TripID        uuid.UUID
	ActorMemberID uuid.UUID
	MessageID     uuid.UUID
	Facts         []domain.Fact
	// SenderBound marks an auto-apply batch: the facts were approved because
	// their person or payer names the actor, so those names bind to the actor
	// even when another member's name matches too.
	SenderBound bool
}

// FactError describes one fact that could not be applied.
type FactError struct {
	Index   int             `json:"index"`
	Kind    domain.FactKind `json:"kind"`
	Message string          `json:"message"`
}

func (e FactError) Error() string {
	return fmt.Sprintf("fact %d (%s): %s", e.Index, e.Kind, e.Message)
}

// Result reports what a batch did. Applied and Failed partition the input.
type Result struct {
	Updated        int                  `json:"updated"`
	MembersAdded   int                  `json:"members_added"`
	LogisticsAdded int                  `json:"logistics_added"`
	EventsAdded    int                  `json:"events_added"`
	ExpensesAdded  int                  `json:"expenses_added"`
	Errors         []FactError          `json:"errors"`
	Applied        []domain.AppliedItem `json:"applied"`
	Failed         []domain.Fact        `json:"-"`
}

// Succeeded returns the number of facts that reached the data store.
func (r Result) Succeeded() int {
	return r.Updated + r.MembersAdded + r.LogisticsAdded + r.EventsAdded + r.ExpensesAdded
}

// Engine applies fact batches.
type Engine struct {
	members repo.MemberRepo
	records repo.RecordRepo
	inbound repo.InboundRepo
	now     func() time.Time
	logger  *slog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(members repo.MemberRepo, records repo.RecordRepo, inbound repo.InboundRepo, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		members: members,
		records: records,
		inbound: inbound,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "apply")),
	}
}

// Apply attempts every fact in order. It never returns early: the roster
// lookup failing fails every fact, and each other failure is confined to its
// fact. Already-written records are not rolled back.
func (e *Engine) Apply(ctx context.Context, b Batch) Result {
	res := Result{Errors: []FactError{}, Applied: []domain.AppliedItem{}}
	if len(b.Facts) == 0 {
		return res
	}

	roster, err := e.members.ListByTrip(ctx, b.TripID)
	if err != nil {
		for i, f := range b.Facts {
			res.fail(i, f, fmt.Errorf("load members: %w", err))
		}
		return res
	}

	actor, ok := findByID(roster, b.ActorMemberID)
	if !ok {
		for i, f := range b.Facts {
			res.fail(i, f, fmt.Errorf("%w: acting member is not on this trip", domain.ErrForbidden))
		}
		return res
	}

	st := &state{batch: b, actor: actor, roster: roster}
	for i, f := range b.Facts {
		recordID, err := e.applyOne(ctx, st, f)
		if err != nil {
			e.logger.WarnContext(ctx, "fact not applied",
				slog.String("message_id", b.MessageID.String()),
				slog.String("kind", string(f.Kind())),
				slog.String("error", err.Error()))
			res.fail(i, f, err)
			continue
		}
		res.count(f)
		res.Applied = append(res.Applied, domain.AppliedItem{
			Kind:        f.Kind(),
			Description: f.Describe(),
			RecordID:    recordID,
			ActorID:     actor.ID,
			AppliedAt:   e.now().UTC(),
		})
	}
	return res
}

// FinishAuto settles a message after an auto-apply batch. Facts sent to
// review plus any auto facts that failed become the stored remainder; when
// nothing remains the message is applied. Notes and summary are kept.
func (e *Engine) FinishAuto(ctx context.Context, msg domain.InboundMessage, extracted domain.Extraction, review []domain.Fact, res Result) (domain.MessageStatus, error) {
	remaining := make([]domain.Fact, 0, len(review)+len(res.Failed))
	remaining = append(remaining, review...)
	remaining = append(remaining, res.Failed...)

	status := domain.StatusPending
	if len(remaining) == 0 {
		status = domain.StatusApplied
	}
	remainder := domain.NewExtraction(remaining, extracted.Notes, extracted.Summary)

	if err := e.inbound.RecordAutoApply(ctx, msg.ID, status, &remainder, res.Applied); err != nil {
		e.keepAudit(ctx, msg.ID, res.Applied)
		return msg.Status, fmt.Errorf("apply.Engine.FinishAuto: %w", err)
	}
	return status, nil
}

// keepAudit records what was written when the remainder could not be saved,
// so a reviewer sees those facts as applied. The items are logged as well in
// case this write fails too.
func (e *Engine) keepAudit(ctx context.Context, id uuid.UUID, applied []domain.AppliedItem) {
	if len(applied) == 0 {
		return
	}
	descriptions := make([]string, 0, len(applied))
	for _, a := range applied {
		descriptions = append(descriptions, string(a.Kind)+": "+a.Description)
	}
	log := e.logger.With(
		slog.String("message_id", id.String()),
		slog.Any("applied", descriptions))

	if err := e.inbound.AppendApplied(ctx, id, applied); err != nil {
		log.ErrorContext(ctx, "auto-applied facts not recorded; reconcile manually", slog.String("error", err.Error()))
		return
	}
	log.WarnContext(ctx, "remainder not saved; auto-applied facts recorded on the message")
}

// state is the per-batch context shared by the fact handlers.
type state struct {
	batch  Batch
	actor  domain.Member
	roster []domain.Member
}

// person resolves a free-text name to a member. In a sender-bound batch a
// name referring to the actor is the actor.
func (st *state) person(name string, linkedOnly bool) (domain.Member, bool) {
	if st.batch.SenderBound && (!linkedOnly || st.actor.IsLinked()) && classify.IsSender(name, st.actor) {
		return st.actor, true
	}
	return matchMember(st.roster, name, linkedOnly)
}

func (e *Engine) applyOne(ctx context.Context, st *state, f domain.Fact) (*uuid.UUID, error) {
	switch v := f.(type) {
	case domain.MemberUpdate:
		return e.applyMemberUpdate(ctx, st, v)
	case domain.NewTraveler:
		return e.applyNewTraveler(ctx, st, v)
	case domain.LogisticsItem:
		return e.applyLogistics(ctx, st, v)
	case domain.CalendarEvent:
		return e.applyEvent(ctx, st, v)
	case domain.Expense:
		return e.applyExpense(ctx, st, v)
	default:
		return nil, fmt.Errorf("%w: unknown fact kind %q", domain.ErrValidation, f.Kind())
	}
}

func (e *Engine) applyMemberUpdate(ctx context.Context, st *state, u domain.MemberUpdate) (*uuid.UUID, error) {
	target, ok := classify.ReferencedMember(u, st.roster)
	if !ok {
		return nil, fmt.Errorf("%w: no single member named %q", domain.ErrNotFound, u.MemberName)
	}

	var patch repo.StayPatch
	var err error
	if patch.StayStart, err = domain.ParseDate(u.StayStart); err != nil {
		return nil, err
	}
	if patch.StayEnd, err = domain.ParseDate(u.StayEnd); err != nil {
		return nil, err
	}
	if lodging := strings.TrimSpace(u.Lodging); lodging != "" {
		patch.Lodging = &lodging
	}
	if patch.StayStart == nil && patch.StayEnd == nil && patch.Lodging == nil {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrValidation)
	}

	updated, err := e.members.UpdateStay(ctx, st.batch.TripID, target.ID, patch)
	if err != nil {
		return nil, err
	}
	return &updated.ID, nil
}

func (e *Engine) applyNewTraveler(ctx context.Context, st *state, n domain.NewTraveler) (*uuid.UUID, error) {
	name := strings.TrimSpace(n.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: traveler name is required", domain.ErrValidation)
	}
	start, err := domain.ParseDate(n.StayStart)
	if err != nil {
		return nil, err
	}
	end, err := domain.ParseDate(n.StayEnd)
	if err != nil {
		return nil, err
	}

	created, err := e.members.Create(ctx, domain.Member{
		TripID:    st.batch.TripID,
		Name:      name,
		Email:     domain.NormalizeEmail(n.Email),
		Phone:     strings.TrimSpace(n.Phone),
		Role:      domain.RoleMember,
		StayStart: start,
		StayEnd:   end,
		Lodging:   strings.TrimSpace(n.Lodging),
	})
	if err != nil {
		return nil, err
	}
	st.roster = append(st.roster, created)
	return &created.ID, nil
}

// applyLogistics attaches the row to the linked member the person name
// refers to, falling back to the actor. Manually-added members cannot own
// logistics rows.
func (e *Engine) applyLogistics(ctx context.Context, st *state, l domain.LogisticsItem) (*uuid.UUID, error) {
	owner, ok := st.person(l.PersonName, true)
	if !ok {
		if !st.actor.IsLinked() {
			return nil, fmt.Errorf("%w: no linked member for %q", domain.ErrValidation, l.PersonName)
		}
		owner = st.actor
	}

	rec, err := e.records.CreateLogistics(ctx, domain.LogisticsRecord{
		TripID:          st.batch.TripID,
		UserID:          *owner.UserID,
		Type:            l.Type.Normalize(),
		PersonName:      strings.TrimSpace(l.PersonName),
		Details:         l.Details,
		SourceMessageID: &st.batch.MessageID,
	})
	if err != nil {
		return nil, err
	}
	return &rec.ID, nil
}

// applyEvent resolves attendee names to members; names that match nobody
// are skipped.
func (e *Engine) applyEvent(ctx context.Context, st *state, c domain.CalendarEvent) (*uuid.UUID, error) {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: event title is required", domain.ErrValidation)
	}
	date, err := domain.ParseDate(c.Date)
	if err != nil {
		return nil, err
	}
	if date == nil {
		return nil, fmt.Errorf("%w: event date is required", domain.ErrValidation)
	}

	var attendees []uuid.UUID
	for _, name := range c.Attendees {
		if m, ok := matchMember(st.roster, name, false); ok {
			attendees = append(attendees, m.ID)
		}
	}

	rec, err := e.records.CreateEvent(ctx, domain.EventRecord{
		TripID:          st.batch.TripID,
		Title:           title,
		Date:            *date,
		StartTime:       strings.TrimSpace(c.StartTime),
		EndTime:         strings.TrimSpace(c.EndTime),
		Location:        strings.TrimSpace(c.Location),
		CreatedBy:       &st.actor.ID,
		AttendeeIDs:     attendees,
		SourceMessageID: &st.batch.MessageID,
	})
	if err != nil {
		return nil, err
	}
	return &rec.ID, nil
}

// applyExpense records the expense against its payer: the member named by
// id or name, or the actor when no payer is given.
func (e *Engine) applyExpense(ctx context.Context, st *state, x domain.Expense) (*uuid.UUID, error) {
	if x.Amount <= 0 {
		return nil, fmt.Errorf("%w: expense amount must be positive", domain.ErrValidation)
	}

	payer := st.actor
	switch {
	case strings.TrimSpace(x.PayerMemberID) != "":
		id, err := uuid.Parse(strings.TrimSpace(x.PayerMemberID))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid payer id", domain.ErrValidation)
		}
		m, ok := findByID(st.roster, id)
		if !ok {
			return nil, fmt.Errorf("%w: payer is not on this trip", domain.ErrNotFound)
		}
		payer = m
	case strings.TrimSpace(x.PayerName) != "":
		m, ok := st.person(x.PayerName, false)
		if !ok {
			return nil, fmt.Errorf("%w: no member named %q", domain.ErrNotFound, x.PayerName)
		}
		payer = m
	}

	description := strings.TrimSpace(x.Description)
	if description == "" {
		description = "Expense"
	}
	rec, err := e.records.CreateExpense(ctx, domain.ExpenseRecord{
		TripID:          st.batch.TripID,
		PayerMemberID:   payer.ID,
		Amount:          x.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(x.Currency)),
		Category:        x.Category.Normalize(),
		Description:     description,
		SourceMessageID: &st.batch.MessageID,
	})
	if err != nil {
		return nil, err
	}
	return &rec.ID, nil
}

// matchMember returns the first roster member whose display name or email
// fuzzily matches name. An exact (case-insensitive) name match is preferred.
func matchMember(roster []domain.Member, name string, linkedOnly bool) (domain.Member, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Member{}, false
	}
	for _, m := range roster {
		if (!linkedOnly || m.IsLinked()) && strings.EqualFold(m.DisplayName(), name) {
			return m, true
		}
	}
	for _, m := range roster {
		if (!linkedOnly || m.IsLinked()) && classify.IsSender(name, m) {
			return m, true
		}
	}
	return domain.Member{}, false
}

func findByID(roster []domain.Member, id uuid.UUID) (domain.Member, bool) {
	for _, m := range roster {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Member{}, false
}

func (r *Result) fail(i int, f domain.Fact, err error) {
	r.Errors = append(r.Errors, FactError{Index: i, Kind: f.Kind(), Message: cleanMessage(err)})
	r.Failed = append(r.Failed, f)
}

func (r *Result) count(f domain.Fact) {
	switch f.(type) {
	case domain.MemberUpdate:
		r.Updated++
	case domain.NewTraveler:
		r.MembersAdded++
	case domain.LogisticsItem:
		r.LogisticsAdded++
	case domain.CalendarEvent:
		r.EventsAdded++
	case domain.Expense:
		r.ExpensesAdded++
	}
}

// cleanMessage keeps reviewer-facing errors free of repo call paths.
func cleanMessage(err error) string {
	for _, sentinel := range []error{domain.ErrValidation, domain.ErrNotFound, domain.ErrConflict, domain.ErrForbidden} {
		if errors.Is(err, sentinel) {
			msg := err.Error()
			if i := strings.Index(msg, sentinel.Error()); i >= 0 {
				return msg[i:]
			}
			return sentinel.Error()
		}
	}
	return err.Error()
}
