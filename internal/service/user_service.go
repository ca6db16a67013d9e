package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/crestline-io/helpdesk-service/internal/domain"
	"github.com/crestline-io/helpdesk-service/internal/events"
	"github.com/crestline-io/helpdesk-service/internal/repository"
	apperrors "github.com/crestline-io/helpdesk-service/pkg/util"
)

// UserService covers the admin-facing user directory operations. The
// admin-role gate lives in the route middleware; operations here assume an
// already-authorized caller.
type UserService struct {
	users      repository.UserRepository
	dispatcher events.Dispatcher
}

// NewUserService constructs the service.
func NewUserService(users repository.UserRepository, dispatcher events.Dispatcher) *UserService {
	return &UserService{users: users, dispatcher: dispatcher}
}

// List returns every account in the directory.
func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx)
}

// SetRole changes a user's role. The new role must be one of the known
// values; an invalid role fails validation before any mutation.
func (s *UserService) SetRole(ctx context.Context, actorID, userID string, role domain.Role) (*domain.User, error) {
	if !domain.ValidRole(role) {
		return nil, apperrors.NewValidationError("invalid role specified", map[string]any{"role": string(role)})
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": userID})
		}
		return nil, err
	}

	oldRole := user.Role
	user.Role = role
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventUserRoleChanged,
			ActorID:   actorID,
			Timestamp: time.Now(),
			Payload: events.UserRoleChangedPayload{
				UserID:  user.ID,
				OldRole: oldRole,
				NewRole: role,
			},
		})
	}
	return user, nil
}
