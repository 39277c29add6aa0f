package handler

import (
	"encoding/json"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/pkordes/tripcrew/backend/internal/apply"
	"github.com/pkordes/tripcrew/backend/internal/domain"
)

// Response types mirror the schemas in spec/openapi.yaml.

type pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

type inboundMessageDTO struct {
	ID              openapi_types.UUID  `json:"id"`
	TripID          *openapi_types.UUID `json:"trip_id,omitempty"`
	Channel         string              `json:"channel"`
	Sender          string              `json:"sender"`
	SenderMemberID  *openapi_types.UUID `json:"sender_member_id,omitempty"`
	Text            string              `json:"text"`
	Status          string              `json:"status"`
	Extracted       *domain.Extraction  `json:"extracted_data,omitempty"`
	Facts           []factDTO           `json:"facts"`
	ExtractionError *string             `json:"extraction_error,omitempty"`
	AutoApplied     []appliedItemDTO    `json:"auto_applied"`
	ReplySent       bool                `json:"reply_sent"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// factDTO is one reviewable fact; Index is what the apply endpoint takes.
type factDTO struct {
	Index       int             `json:"index"`
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
	Data        json.RawMessage `json:"data"`
}

type appliedItemDTO struct {
	Kind          string              `json:"kind"`
	Description   string              `json:"description"`
	RecordID      *openapi_types.UUID `json:"record_id,omitempty"`
	ActorMemberID openapi_types.UUID  `json:"actor_member_id"`
	AppliedAt     time.Time           `json:"applied_at"`
}

type inboundListDTO struct {
	Data       []inboundMessageDTO `json:"data"`
	Pagination pagination          `json:"pagination"`
}

type applyResultDTO struct {
	Message        inboundMessageDTO `json:"message"`
	Updated        int               `json:"updated"`
	MembersAdded   int               `json:"members_added"`
	LogisticsAdded int               `json:"logistics_added"`
	EventsAdded    int               `json:"events_added"`
	ExpensesAdded  int               `json:"expenses_added"`
	Errors         []apply.FactError `json:"errors"`
}

type memberDTO struct {
	ID        openapi_types.UUID  `json:"id"`
	TripID    openapi_types.UUID  `json:"trip_id"`
	UserID    *openapi_types.UUID `json:"user_id,omitempty"`
	Name      string              `json:"name"`
	Email     *string             `json:"email,omitempty"`
	Phone     *string             `json:"phone,omitempty"`
	Role      string              `json:"role"`
	StayStart *openapi_types.Date `json:"stay_start,omitempty"`
	StayEnd   *openapi_types.Date `json:"stay_end,omitempty"`
	Lodging   *string             `json:"lodging,omitempty"`
}

type memberListDTO struct {
	Data []memberDTO `json:"data"`
}

// Request bodies.

type applyRequest struct {
	ActorMemberID openapi_types.UUID `json:"actor_member_id" validate:"required"`
	// Indexes selects facts by position; omitted means all.
	Indexes *[]int `json:"indexes"`
}

type dismissRequest struct {
	ActorMemberID openapi_types.UUID `json:"actor_member_id" validate:"required"`
}

type claimRequest struct {
	UserID openapi_types.UUID `json:"user_id" validate:"required"`
	Email  string             `json:"email" validate:"required,email"`
}

func inboundToResponse(m domain.InboundMessage) inboundMessageDTO {
	out := inboundMessageDTO{
		ID:              m.ID,
		TripID:          m.TripID,
		Channel:         string(m.Channel),
		Sender:          m.Sender,
		SenderMemberID:  m.SenderMemberID,
		Text:            m.Text,
		Status:          string(m.Status),
		Extracted:       m.Extracted,
		Facts:           []factDTO{},
		ExtractionError: m.ExtractionError,
		AutoApplied:     make([]appliedItemDTO, len(m.AutoApplied)),
		ReplySent:       m.ReplySent,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.Extracted != nil {
		for i, f := range m.Extracted.Facts() {
			data, _ := json.Marshal(f)
			out.Facts = append(out.Facts, factDTO{
				Index:       i,
				Kind:        string(f.Kind()),
				Description: f.Describe(),
				Data:        data,
			})
		}
	}
	for i, a := range m.AutoApplied {
		out.AutoApplied[i] = appliedItemDTO{
			Kind:          string(a.Kind),
			Description:   a.Description,
			RecordID:      a.RecordID,
			ActorMemberID: a.ActorID,
			AppliedAt:     a.AppliedAt,
		}
	}
	return out
}

// memberToResponse converts a domain.Member to the API shape.
// Empty strings become nil pointers so they are omitted from the response.
func memberToResponse(m domain.Member) memberDTO {
	return memberDTO{
		ID:        m.ID,
		TripID:    m.TripID,
		UserID:    m.UserID,
		Name:      m.Name,
		Email:     nilIfEmpty(m.Email),
		Phone:     nilIfEmpty(m.Phone),
		Role:      string(m.Role),
		StayStart: toDate(m.StayStart),
		StayEnd:   toDate(m.StayEnd),
		Lodging:   nilIfEmpty(m.Lodging),
	}
}

func toDate(t *time.Time) *openapi_types.Date {
	if t == nil {
		return nil
	}
	return &openapi_types.Date{Time: *t}
}

// nilIfEmpty converts an empty string to a nil pointer.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
