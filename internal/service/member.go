package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pkordes/tripcrew/backend/internal/domain"
	"github.com/pkordes/tripcrew/backend/internal/repo"
)

// MemberService exposes roster operations that sit outside the pipeline.
type MemberService struct {
	repo repo.MemberRepo
}

// NewMemberService constructs a MemberService.
func NewMemberService(r repo.MemberRepo) *MemberService {
	return &MemberService{repo: r}
}

// List returns the trip roster.
func (s *MemberService) List(ctx context.Context, tripID uuid.UUID) ([]domain.Member, error) {
	members, err := s.repo.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("service.MemberService.List: %w", err)
	}
	return members, nil
}

// Claim links the manually-added member whose email matches to userID.
func (s *MemberService) Claim(ctx context.Context, tripID, userID uuid.UUID, email string) (domain.Member, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Member{}, fmt.Errorf("service.MemberService.Claim: %w: a valid email is required", domain.ErrValidation)
	}
	if userID == uuid.Nil {
		return domain.Member{}, fmt.Errorf("service.MemberService.Claim: %w: user_id is required", domain.ErrValidation)
	}
	m, err := s.repo.ClaimByEmail(ctx, tripID, userID, email)
	if err != nil {
		return domain.Member{}, fmt.Errorf("service.MemberService.Claim: %w", err)
	}
	return m, nil
}
