package service

import (
	"context"
	"fmt"

	"github.com/yukbelajar/tryout-backend/internal/model"
	"github.com/yukbelajar/tryout-backend/internal/repository"
)

// UserService maps identity-provider subjects to internal user records.
type UserService struct {
	userRepo *repository.UserRepository
}

// NewUserService creates a new UserService.
func NewUserService(userRepo *repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// EnsureUser returns the internal user for an external id, creating the row
// on first sight. The display name is refreshed from the token on each call.
func (s *UserService) EnsureUser(ctx context.Context, externalID, name string) (*model.User, error) {
	if name == "" {
		name = externalID
	}
	u := &model.User{ExternalID: externalID, Name: name}
	if err := s.userRepo.Upsert(ctx, u); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}
