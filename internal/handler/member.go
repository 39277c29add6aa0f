package handler

import "net/http"

// ListMembers handles GET /trips/{tripID}/members.
func (s *Server) ListMembers(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathUUID(w, r, "tripID")
	if !ok {
		return
	}

	members, err := s.members.List(r.Context(), tripID)
	if err != nil {
		s.serviceError(w, r, err, "trip not found")
		return
	}

	data := make([]memberDTO, len(members))
	for i, m := range members {
		data[i] = memberToResponse(m)
	}
	writeJSON(w, http.StatusOK, memberListDTO{Data: data})
}

// ClaimMember handles POST /trips/{tripID}/members/claim: a signed-up user
// takes over the member record an owner added for them by hand.
func (s *Server) ClaimMember(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathUUID(w, r, "tripID")
	if !ok {
		return
	}
	var body claimRequest
	if !s.decode(w, r, &body) {
		return
	}

	m, err := s.members.Claim(r.Context(), tripID, body.UserID, body.Email)
	if err != nil {
		s.serviceError(w, r, err, "no unclaimed member with that email")
		return
	}
	writeJSON(w, http.StatusOK, memberToResponse(m))
}
