package service

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/fitness-sessions/internal/domain"
	"alcyxob/fitness-sessions/internal/repository"
)

// --- Collaborator ports ---

// EntitlementService is the subscription module's view of a client's video-call credits.
// A missing plan is reported as repository.ErrNotFound.
type EntitlementService interface {
	GetPlan(ctx context.Context, userID, trainerID primitive.ObjectID) (*domain.Plan, error)
	// DecrementVideoCalls consumes one credit and reports false when none was left.
	DecrementVideoCalls(ctx context.Context, userID, trainerID primitive.ObjectID) (bool, error)
	// RestoreVideoCall compensates a decrement whose booking could not be committed.
	RestoreVideoCall(ctx context.Context, userID, trainerID primitive.ObjectID) error
}

// Notifier delivers booking notifications. Implementations are expected to hand the
// message off quickly (queue) rather than deliver inline.
type Notifier interface {
	SendSessionRequestNotification(ctx context.Context, trainerID, userID primitive.ObjectID) error
	SendSessionResponseNotification(ctx context.Context, userID primitive.ObjectID, trainerName string, approved bool, reason string) error
}

// Directory resolves user ids to directory records.
type Directory interface {
	GetUser(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
}

// userDirectory adapts the users repository to the Directory port.
type userDirectory struct {
	users repository.UserRepository
}

// NewDirectory creates a Directory backed by the users repository.
func NewDirectory(users repository.UserRepository) Directory {
	return &userDirectory{users: users}
}

func (d *userDirectory) GetUser(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	user, err := d.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}
