// Package extract owns the JSON contract with the extraction service:
// sending content blocks out, and recovering a domain.Extraction from
// whatever text comes back.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pkordes/tripcrew/backend/internal/domain"
)

// ErrNoJSON is returned when a response contains no {...} span.
var ErrNoJSON = errors.New("no JSON object in response")

// ParseResponse recovers the extraction from a raw model response. Prose or
// code fences around the object are tolerated: the substring from the first
// '{' to the last '}' is decoded. Missing arrays decode as empty.
func ParseResponse(raw string) (domain.Extraction, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return domain.Extraction{}, ErrNoJSON
	}

	var x domain.Extraction
	if err := json.Unmarshal([]byte(raw[start:end+1]), &x); err != nil {
		return domain.Extraction{}, fmt.Errorf("decode extraction: %w", err)
	}
	return normalize(x), nil
}

// normalize fills nil arrays and canonicalizes enum fields.
func normalize(x domain.Extraction) domain.Extraction {
	out := domain.NewExtraction(x.Facts(), strings.TrimSpace(x.Notes), strings.TrimSpace(x.Summary))
	for i := range out.Logistics {
		out.Logistics[i].Type = out.Logistics[i].Type.Normalize()
	}
	for i := range out.Expenses {
		out.Expenses[i].Category = out.Expenses[i].Category.Normalize()
	}
	return out
}

// SystemPrompt describes the response contract to the model.
const SystemPrompt = `You extract structured travel facts from messages sent to a group-trip concierge.

Reply with exactly one JSON object of this shape and nothing else:

{
  "member_updates": [{"member_name": "", "member_id": "", "matched_existing": true, "stay_start": "YYYY-MM-DD", "stay_end": "YYYY-MM-DD", "lodging": ""}],
  "new_travelers": [{"name": "", "email": "", "phone": "", "stay_start": "YYYY-MM-DD", "stay_end": "YYYY-MM-DD", "lodging": ""}],
  "logistics": [{"type": "flight|train|bus|car|ferry|lodging|other", "person_name": "", "details": {}}],
  "calendar_events": [{"title": "", "date": "YYYY-MM-DD", "start_time": "HH:MM", "end_time": "HH:MM", "location": "", "attendees": [""]}],
  "expenses": [{"description": "", "amount": 0, "currency": "EUR", "category": "food|lodging|transport|activities|shopping|other", "payer_name": ""}],
  "notes": "",
  "summary": ""
}

Rules:
- matched_existing is true only when the person is on the traveler list you were given.
- Leave payer_name empty when the sender paid.
- Omit fields you do not know. Use empty arrays for kinds with no facts.
- summary is one short sentence describing the message.`
