// Package resolve maps an inbound message to exactly one trip, or reports
// that the sender is ambiguous or unknown.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/pkordes/tripcrew/backend/internal/domain"
	"github.com/pkordes/tripcrew/backend/internal/repo"
)

// DefaultSessionTTL bounds how long a conversation session keeps routing
// messages to the same trip.
const DefaultSessionTTL = 72 * time.Hour

var switchCommand = regexp.MustCompile(`(?i)^\s*switch\s+to\s+([a-z0-9_-]+)\s*[.!]?\s*$`)

// legacyAddress matches the per-trip inbound address local part.
var legacyAddress = regexp.MustCompile(`(?i)^trip-([a-z0-9_-]+)@(.+)$`)

// Query is everything the resolver knows about a message.
type Query struct {
	Channel     domain.Channel
	SenderEmail string
	SenderPhone string
	Text        string
	ToAddress   string
}

// Resolution is the resolver's verdict. Trip is nil when the sender is
// unknown or ambiguous; Candidates is only set when Ambiguous.
type Resolution struct {
	Trip       *domain.Trip
	Member     *domain.Member
	Ambiguous  bool
	Candidates []domain.Trip
	// Switched is set when the message was a "switch to <code>" command.
	// The caller acknowledges the switch and skips extraction.
	Switched bool
}

// Found reports whether a single trip was selected.
func (r Resolution) Found() bool {
	return r.Trip != nil
}

// Options tunes a Resolver. Zero values pick defaults.
type Options struct {
	// InboundDomain is the domain of legacy trip-<code>@ addresses.
	// Empty disables legacy routing.
	InboundDomain string
	SessionTTL    time.Duration
	Now           func() time.Time
}

// Resolver implements the routing rules over the trip and session stores.
type Resolver struct {
	trips         repo.TripRepo
	sessions      repo.SessionRepo
	inboundDomain string
	ttl           time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// New constructs a Resolver.
func New(trips repo.TripRepo, sessions repo.SessionRepo, opts Options, logger *slog.Logger) *Resolver {
	if opts.SessionTTL == 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		trips:         trips,
		sessions:      sessions,
		inboundDomain: strings.ToLower(strings.TrimSpace(opts.InboundDomain)),
		ttl:           opts.SessionTTL,
		now:           opts.Now,
		logger:        logger.With(slog.String("component", "resolver")),
	}
}

// Resolve picks the trip a message belongs to. In priority order:
//
//  1. a legacy trip-<code>@ destination address (terminal)
//  2. the sender's memberships by email or digits-only phone; none means unknown
//  3. a single membership
//  4. on session channels, an exact "switch to <code>" command
//  5. a trip code or keyword in the text, active trips scanned first
//  6. the only trip inside the active window
//  7. on session channels, a live conversation session
//
// Anything left is ambiguous. Every resolution on a session channel refreshes
// the sender's session.
func (r *Resolver) Resolve(ctx context.Context, q Query) (Resolution, error) {
	phone := domain.DigitsOnly(q.SenderPhone)
	email := domain.NormalizeEmail(q.SenderEmail)

	if code, ok := r.legacyCode(q.ToAddress); ok {
		return r.resolveLegacy(ctx, q.ToAddress, code, email, phone)
	}

	memberships, err := r.trips.ListBySender(ctx, email, phone)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve.Resolver.Resolve: %w", err)
	}
	if len(memberships) == 0 {
		return Resolution{}, nil
	}

	sessionChannel := q.Channel.HasSession() && phone != ""
	cmd, isCommand := parseSwitch(q.Text)
	if !q.Channel.HasSession() {
		isCommand = false
	}

	if len(memberships) == 1 {
		res := resolved(memberships[0])
		res.Switched = isCommand && strings.EqualFold(cmd, memberships[0].Trip.TripCode)
		return r.remember(ctx, res, sessionChannel, phone), nil
	}

	if isCommand {
		for _, m := range memberships {
			if strings.EqualFold(m.Trip.TripCode, cmd) {
				res := resolved(m)
				res.Switched = true
				return r.remember(ctx, res, sessionChannel, phone), nil
			}
		}
		// Not one of theirs: list what they can switch to.
		return ambiguous(memberships), nil
	}

	now := r.now()
	active, inactive := partition(memberships, now)

	for _, group := range [][]domain.TripMembership{active, inactive} {
		for _, m := range group {
			if m.Trip.MatchesText(q.Text) {
				return r.remember(ctx, resolved(m), sessionChannel, phone), nil
			}
		}
	}

	candidates := active
	if len(candidates) == 0 {
		candidates = memberships
	}
	if len(candidates) == 1 {
		return r.remember(ctx, resolved(candidates[0]), sessionChannel, phone), nil
	}

	if sessionChannel {
		if m, ok := r.fromSession(ctx, phone, memberships, now); ok {
			return r.remember(ctx, resolved(m), sessionChannel, phone), nil
		}
	}

	return ambiguous(candidates), nil
}

// legacyCode extracts the trip code from a trip-<code>@<inbound domain> address.
func (r *Resolver) legacyCode(to string) (string, bool) {
	if r.inboundDomain == "" {
		return "", false
	}
	m := legacyAddress.FindStringSubmatch(strings.TrimSpace(to))
	if m == nil || !strings.EqualFold(m[2], r.inboundDomain) {
		return "", false
	}
	return m[1], true
}

// resolveLegacy looks the trip up by address. The sender's member record is
// attached when they belong to the trip; otherwise Member stays nil and every
// fact goes to review.
func (r *Resolver) resolveLegacy(ctx context.Context, to, code, email, phone string) (Resolution, error) {
	trip, err := r.trips.GetByInboundAddress(ctx, to)
	if errors.Is(err, domain.ErrNotFound) {
		trip, err = r.trips.GetByCode(ctx, code)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return Resolution{}, nil
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve.Resolver.resolveLegacy: %w", err)
	}

	res := Resolution{Trip: &trip}
	memberships, err := r.trips.ListBySender(ctx, email, phone)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve.Resolver.resolveLegacy: %w", err)
	}
	for _, m := range memberships {
		if m.Trip.ID == trip.ID {
			member := m.Member
			res.Member = &member
			break
		}
	}
	return res, nil
}

// fromSession returns the sender's session trip if the session is live and
// still names one of the sender's trips. Lookup failures are logged and
// treated as no session.
func (r *Resolver) fromSession(ctx context.Context, phone string, memberships []domain.TripMembership, now time.Time) (domain.TripMembership, bool) {
	s, err := r.sessions.Get(ctx, phone)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.WarnContext(ctx, "session lookup failed", slog.String("error", err.Error()))
		}
		return domain.TripMembership{}, false
	}
	if s.Expired(now, r.ttl) {
		return domain.TripMembership{}, false
	}
	for _, m := range memberships {
		if m.Trip.ID == s.TripID {
			return m, true
		}
	}
	return domain.TripMembership{}, false
}

// remember upserts the session for a successful session-channel resolution.
// A failed upsert only costs a future disambiguation, so it is logged.
func (r *Resolver) remember(ctx context.Context, res Resolution, sessionChannel bool, phone string) Resolution {
	if !sessionChannel || res.Trip == nil {
		return res
	}
	err := r.sessions.Upsert(ctx, domain.ConversationSession{
		Phone:          phone,
		TripID:         res.Trip.ID,
		LastActivityAt: r.now(),
	})
	if err != nil {
		r.logger.WarnContext(ctx, "session upsert failed",
			slog.String("trip_id", res.Trip.ID.String()),
			slog.String("error", err.Error()))
	}
	return res
}

// parseSwitch reports whether text is exactly a "switch to <code>" command.
func parseSwitch(text string) (string, bool) {
	m := switchCommand.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// partition splits memberships by the active window, preserving order.
func partition(ms []domain.TripMembership, now time.Time) (active, inactive []domain.TripMembership) {
	for _, m := range ms {
		if m.Trip.IsActive(now) {
			active = append(active, m)
		} else {
			inactive = append(inactive, m)
		}
	}
	return active, inactive
}

func resolved(m domain.TripMembership) Resolution {
	trip, member := m.Trip, m.Member
	return Resolution{Trip: &trip, Member: &member}
}

func ambiguous(ms []domain.TripMembership) Resolution {
	trips := make([]domain.Trip, len(ms))
	for i, m := range ms {
		trips[i] = m.Trip
	}
	return Resolution{Ambiguous: true, Candidates: trips}
}
