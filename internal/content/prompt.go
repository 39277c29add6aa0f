package content

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkordes/tripcrew/backend/internal/domain"
)

// PromptContext is the trip state the prompt describes.
type PromptContext struct {
	Today   time.Time
	Trip    domain.Trip
	Members []domain.Member
	// Sender is the raw sender address; SenderName is the matched member's
	// display name, if any.
	Sender     string
	SenderName string
	Channel    domain.Channel
}

// RenderPrompt builds the instruction text placed after any media blocks.
func RenderPrompt(pc PromptContext, text string) string {
	sender := pc.Sender
	if pc.SenderName != "" {
		sender = fmt.Sprintf("%s (%s)", pc.SenderName, pc.Sender)
	}
	body := strings.TrimSpace(text)
	if body == "" {
		body = "(no text; see the attachments above)"
	}

	return fmt.Sprintf(`---
today: %s
trip: %s
destination: %s
dates: %s
channel: %s
sender: %s
---
Current travelers:
%s

Extract every travel fact from the message below and any attachments above.
Use the traveler names exactly as listed when a fact refers to an existing traveler.
Dates are YYYY-MM-DD. Respond with a single JSON object and nothing else.

**MESSAGE**

%s`,
		pc.Today.Format(domain.DateLayout),
		pc.Trip.Name,
		orNone(pc.Trip.Destination),
		dateRange(pc.Trip.StartDate, pc.Trip.EndDate),
		pc.Channel,
		sender,
		roster(pc.Members),
		body,
	)
}

func roster(members []domain.Member) string {
	if len(members) == 0 {
		return "  (none)"
	}
	lines := make([]string, len(members))
	for i, m := range members {
		kind := "manual"
		if m.IsLinked() {
			kind = "linked"
		}
		line := fmt.Sprintf("  - %s [%s, %s] stay %s", m.DisplayName(), kind, m.Role, dateRange(m.StayStart, m.StayEnd))
		if m.Lodging != "" {
			line += ", lodging " + m.Lodging
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func dateRange(start, end *time.Time) string {
	return formatDate(start) + " to " + formatDate(end)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "?"
	}
	return t.Format(domain.DateLayout)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
