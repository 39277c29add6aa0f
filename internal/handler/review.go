package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pkordes/tripcrew/backend/internal/apply"
	"github.com/pkordes/tripcrew/backend/internal/domain"
)

// ListInbound handles GET /trips/{tripID}/inbound.
// Supports ?status=, ?page= and ?limit= (defaults: all, page=1, limit=20, max=100).
func (s *Server) ListInbound(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathUUID(w, r, "tripID")
	if !ok {
		return
	}
	page, ok := queryInt(w, r, "page")
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	params := domain.NewPaginationParams(page, limit)

	msgs, total, err := s.reviews.List(r.Context(), tripID, domain.MessageStatus(r.URL.Query().Get("status")), params)
	if err != nil {
		s.serviceError(w, r, err, "trip not found")
		return
	}

	data := make([]inboundMessageDTO, len(msgs))
	for i, m := range msgs {
		data[i] = inboundToResponse(m)
	}
	writeJSON(w, http.StatusOK, inboundListDTO{
		Data: data,
		Pagination: pagination{
			Page:    params.Page,
			Limit:   params.Limit,
			Total:   int(total),
			HasMore: params.HasMore(total),
		},
	})
}

// GetInbound handles GET /trips/{tripID}/inbound/{messageID}.
func (s *Server) GetInbound(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathUUID(w, r, "tripID")
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "messageID")
	if !ok {
		return
	}

	msg, err := s.reviews.Get(r.Context(), tripID, id)
	if err != nil {
		s.serviceError(w, r, err, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, inboundToResponse(msg))
}

// ApplyInbound handles POST /trips/{tripID}/inbound/{messageID}/apply.
func (s *Server) ApplyInbound(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathUUID(w, r, "tripID")
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "messageID")
	if !ok {
		return
	}
	var body applyRequest
	if !s.decode(w, r, &body) {
		return
	}

	var indexes []int
	if body.Indexes != nil {
		indexes = append([]int{}, *body.Indexes...)
	}

	out, err := s.reviews.Apply(r.Context(), tripID, id, body.ActorMemberID, indexes)
	if err != nil {
		s.serviceError(w, r, err, "message not found")
		return
	}

	errs := out.Result.Errors
	if errs == nil {
		errs = []apply.FactError{}
	}
	writeJSON(w, http.StatusOK, applyResultDTO{
		Message:        inboundToResponse(out.Message),
		Updated:        out.Result.Updated,
		MembersAdded:   out.Result.MembersAdded,
		LogisticsAdded: out.Result.LogisticsAdded,
		EventsAdded:    out.Result.EventsAdded,
		ExpensesAdded:  out.Result.ExpensesAdded,
		Errors:         errs,
	})
}

// DismissInbound handles POST /trips/{tripID}/inbound/{messageID}/dismiss.
func (s *Server) DismissInbound(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathUUID(w, r, "tripID")
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "messageID")
	if !ok {
		return
	}
	var body dismissRequest
	if !s.decode(w, r, &body) {
		return
	}

	msg, err := s.reviews.Dismiss(r.Context(), tripID, id, body.ActorMemberID)
	if err != nil {
		s.serviceError(w, r, err, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, inboundToResponse(msg))
}

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
		case errors.Is(err, io.EOF):
			requestError(w, "request body is required")
		default:
			requestError(w, "request body must be a valid JSON object")
		}
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		requestError(w, validationMessage(err))
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// queryInt reads an optional integer query parameter.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (*int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid "+name)
		return nil, false
	}
	return &n, true
}
