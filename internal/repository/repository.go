package repository

import (
	"alcyxob/fitness-sessions/internal/domain"
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound = RepositoryError("not found")
	// ErrPreconditionFailed means a conditional write matched nothing: the document exists
	// but changed since it was read (already booked, request no longer pending, version moved).
	ErrPreconditionFailed = RepositoryError("precondition failed")
	ErrDuplicateKey       = RepositoryError("duplicate key")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// RequestUpdate is applied to the embedded booking request(s) matched by a predicate.
type RequestUpdate struct {
	Status          domain.RequestStatus
	RejectionReason string
}

// SlotRepository is the SlotStore. Every mutating method is a single atomic
// conditional write against one slot document.
type SlotRepository interface {
	Create(ctx context.Context, slot *domain.Slot) (primitive.ObjectID, error)
	CreateMany(ctx context.Context, slots []domain.Slot) (int, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Slot, error)
	GetByTrainerID(ctx context.Context, trainerID primitive.ObjectID) ([]domain.Slot, error)
	// GetAvailable lists unbooked slots of a trainer dated on or after from.
	GetAvailable(ctx context.Context, trainerID primitive.ObjectID, from time.Time) ([]domain.Slot, error)
	// GetByUser lists slots booked by or requested by userID.
	GetByUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Slot, error)
	// GetWithOpenRequests lists a trainer's slots carrying a pending or approved request.
	GetWithOpenRequests(ctx context.Context, trainerID primitive.ObjectID) ([]domain.Slot, error)
	GetBookedInRange(ctx context.Context, trainerID primitive.ObjectID, from, to time.Time) ([]domain.Slot, error)
	// HasOverlap reports whether any slot of the trainer on date intersects [start,end).
	HasOverlap(ctx context.Context, trainerID primitive.ObjectID, date time.Time, start, end string) (bool, error)

	// AddRequest appends req unless the slot is booked or already holds a request from req.UserID.
	AddRequest(ctx context.Context, slotID primitive.ObjectID, req domain.BookingRequest) (*domain.Slot, error)
	// Approve books the slot for userID only if it is unbooked and userID's request is pending,
	// rejecting every other pending request in the same write.
	Approve(ctx context.Context, slotID, userID primitive.ObjectID, videoCallLink string) (*domain.Slot, error)
	// UpdateRequest applies update to userID's request only while it has status from.
	UpdateRequest(ctx context.Context, slotID, userID primitive.ObjectID, from domain.RequestStatus, update RequestUpdate) (*domain.Slot, error)

	// DeleteUnrequested removes a slot only if it is unbooked and has no request history.
	DeleteUnrequested(ctx context.Context, slotID primitive.ObjectID) error
	// DeleteUnbookedInRange purges a trainer's unbooked slots dated in [from, to).
	DeleteUnbookedInRange(ctx context.Context, trainerID primitive.ObjectID, from, to time.Time) (int64, error)
}

// ScheduleRepository stores weekly templates, unique per (trainer, weekStart).
type ScheduleRepository interface {
	Upsert(ctx context.Context, tpl *domain.WeeklyScheduleTemplate) (*domain.WeeklyScheduleTemplate, error)
	GetByTrainerAndWeek(ctx context.Context, trainerID primitive.ObjectID, weekStart time.Time) (*domain.WeeklyScheduleTemplate, error)
	Delete(ctx context.Context, trainerID primitive.ObjectID, weekStart time.Time) error
	List(ctx context.Context) ([]domain.WeeklyScheduleTemplate, error)
}

// SessionRepository stores call rooms, unique per slot and per room id.
type SessionRepository interface {
	// CreateIfAbsent inserts s unless a session for s.SlotID exists, and returns the stored one.
	CreateIfAbsent(ctx context.Context, s *domain.VideoCallSession) (*domain.VideoCallSession, error)
	GetByRoomID(ctx context.Context, roomID string) (*domain.VideoCallSession, error)
	GetBySlotID(ctx context.Context, slotID primitive.ObjectID) (*domain.VideoCallSession, error)
	// Update replaces s if its stored version still equals s.Version, then bumps the version.
	Update(ctx context.Context, s *domain.VideoCallSession) error
}

// UserRepository is the read-only directory of trainers and clients.
type UserRepository interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
}

// PlanRepository holds entitlement records.
type PlanRepository interface {
	GetPlan(ctx context.Context, userID, trainerID primitive.ObjectID) (*domain.Plan, error)
	DecrementVideoCalls(ctx context.Context, userID, trainerID primitive.ObjectID) (bool, error)
	RestoreVideoCall(ctx context.Context, userID, trainerID primitive.ObjectID) error
}
