// Package classify decides which extracted facts a sender may apply to a trip
// without owner review. It is pure: no I/O, no clock.
package classify

import (
	"strings"

	"github.com/pkordes/tripcrew/backend/internal/domain"
)

// Result partitions a batch. Both slices keep input order.
type Result struct {
	Auto   []domain.Fact
	Review []domain.Fact
	// FullyApplied is true when every fact was auto-eligible.
	FullyApplied bool
}

// Classify applies the auto-accept policy:
//
//   - member_update: the extractor matched an existing member and that
//     member is the sender
//   - logistics_item: the person named is the sender, and the sender is a
//     linked member
//   - expense: no payer named, or the payer is the sender
//   - new_traveler, calendar_event: never
//
// A nil sender sends everything to review.
func Classify(facts []domain.Fact, sender *domain.Member, members []domain.Member) Result {
	var res Result
	for _, f := range facts {
		if sender != nil && eligible(f, *sender, members) {
			res.Auto = append(res.Auto, f)
		} else {
			res.Review = append(res.Review, f)
		}
	}
	res.FullyApplied = len(res.Review) == 0
	return res
}

func eligible(f domain.Fact, sender domain.Member, members []domain.Member) bool {
	switch v := f.(type) {
	case domain.MemberUpdate:
		if !v.MatchedExisting {
			return false
		}
		ref, ok := ReferencedMember(v, members)
		return ok && ref.ID == sender.ID
	case domain.LogisticsItem:
		return sender.IsLinked() && IsSender(v.PersonName, sender)
	case domain.Expense:
		if !v.HasPayer() {
			return true
		}
		if id := strings.TrimSpace(v.PayerMemberID); id != "" {
			return strings.EqualFold(id, sender.ID.String())
		}
		return IsSender(v.PayerName, sender)
	case domain.NewTraveler, domain.CalendarEvent:
		return false
	default:
		return false
	}
}

// ReferencedMember finds the member a member_update points at: by id when the
// extractor supplied one, otherwise by case-insensitive name equality. A name
// shared by several members references nobody.
func ReferencedMember(u domain.MemberUpdate, members []domain.Member) (domain.Member, bool) {
	if id := strings.TrimSpace(u.MemberID); id != "" {
		for _, m := range members {
			if strings.EqualFold(m.ID.String(), id) {
				return m, true
			}
		}
		return domain.Member{}, false
	}

	name := strings.TrimSpace(u.MemberName)
	if name == "" {
		return domain.Member{}, false
	}
	var (
		found domain.Member
		count int
	)
	for _, m := range members {
		if strings.EqualFold(m.DisplayName(), name) {
			found = m
			count++
		}
	}
	return found, count == 1
}

// IsSender reports whether a free-text name refers to the sender, by fuzzy
// match against the sender's display name or email.
func IsSender(name string, sender domain.Member) bool {
	return FuzzyMatch(name, sender.DisplayName()) || FuzzyMatch(name, sender.Email)
}

// FuzzyMatch is a case-insensitive substring match in either direction.
// Blank strings never match. There is no minimum length: "Al" matches "Alice".
func FuzzyMatch(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
