package service

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"alcyxob/fitness-sessions/internal/apperror"
	"alcyxob/fitness-sessions/internal/domain"
	"alcyxob/fitness-sessions/internal/repository"
)

// fallbackTrainerName is used in notification text when the directory lookup fails.
const fallbackTrainerName = "your trainer"

// BookingConfig holds the room link convention.
type BookingConfig struct {
	BaseURL  string
	BasePath string
}

type BookingService interface {
	// Request workflow
	RequestSession(ctx context.Context, slotID, userID primitive.ObjectID) (*domain.Slot, error)
	ApproveRequest(ctx context.Context, slotID, userID, trainerID primitive.ObjectID) (*domain.Slot, error)
	RejectRequest(ctx context.Context, slotID, userID, trainerID primitive.ObjectID, reason string) (*domain.Slot, error)

	// Slot management
	CreateSlot(ctx context.Context, trainerID primitive.ObjectID, date time.Time, startTime, endTime string) (*domain.Slot, error)
	DeleteSlot(ctx context.Context, slotID, trainerID primitive.ObjectID) error

	// Queries
	GetTrainerSlots(ctx context.Context, trainerID primitive.ObjectID) ([]domain.Slot, error)
	GetAvailableSlots(ctx context.Context, userID primitive.ObjectID) ([]domain.Slot, error)
	GetUserSessions(ctx context.Context, userID primitive.ObjectID) ([]domain.Slot, error)
	GetTrainerRequests(ctx context.Context, trainerID primitive.ObjectID) ([]domain.Slot, error)
}

// bookingService implements the BookingService interface.
type bookingService struct {
	slots        repository.SlotRepository
	entitlements EntitlementService
	notifier     Notifier
	directory    Directory
	cfg          BookingConfig
	opts         Options
}

// NewBookingService creates a new instance of bookingService.
func NewBookingService(
	slots repository.SlotRepository,
	entitlements EntitlementService,
	notifier Notifier,
	directory Directory,
	cfg BookingConfig,
	opts Options,
) BookingService {
	if cfg.BasePath == "" {
		cfg.BasePath = "/video-call"
	}
	return &bookingService{
		slots:        slots,
		entitlements: entitlements,
		notifier:     notifier,
		directory:    directory,
		cfg:          cfg,
		opts:         opts.withDefaults(),
	}
}

// === Request workflow ===

func (s *bookingService) RequestSession(ctx context.Context, slotID, userID primitive.ObjectID) (*domain.Slot, error) {
	slot, err := s.requestSession(ctx, slotID, userID)
	s.opts.Metrics.BookingRequest(outcome(err))
	return slot, err
}

func (s *bookingService) requestSession(ctx context.Context, slotID, userID primitive.ObjectID) (*domain.Slot, error) {
	// 1. Load the slot and check it can take this user's request
	slot, err := s.loadSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if err := slot.CheckRequest(userID); err != nil {
		return nil, err
	}

	// 2. Entitlement gate: pro plan with credits left. Nothing is consumed yet.
	plan, err := s.entitlements.GetPlan(ctx, userID, slot.TrainerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoVideoCallCredits
		}
		return nil, apperror.Internal("failed to check video call plan", err)
	}
	if !plan.CanBookVideoCall() {
		return nil, ErrNoVideoCallCredits
	}

	// 3. Append the request; the store re-checks "unbooked and not yet requested" atomically
	updated, err := s.slots.AddRequest(ctx, slotID, domain.BookingRequest{
		UserID:      userID,
		RequestedAt: s.opts.Now(),
		Status:      domain.RequestPending,
	})
	if err != nil {
		return nil, s.reclassify(ctx, slotID, err, func(fresh *domain.Slot) error { return fresh.CheckRequest(userID) })
	}

	// 4. Tell the trainer
	if err := s.notifier.SendSessionRequestNotification(ctx, updated.TrainerID, userID); err != nil {
		s.notifyFailed("session_request", err, zap.String("slot_id", slotID.Hex()))
	}

	s.opts.Logger.Info("session requested", zap.String("slot_id", slotID.Hex()), zap.String("user_id", userID.Hex()))
	return updated, nil
}

func (s *bookingService) ApproveRequest(ctx context.Context, slotID, userID, trainerID primitive.ObjectID) (*domain.Slot, error) {
	slot, err := s.approveRequest(ctx, slotID, userID, trainerID)
	s.opts.Metrics.BookingDecision("approve", outcome(err))
	return slot, err
}

// approveRequest commits in a fixed order: consume the credit, then book the slot.
// If the booking write fails the credit is restored.
func (s *bookingService) approveRequest(ctx context.Context, slotID, userID, trainerID primitive.ObjectID) (*domain.Slot, error) {
	// 1. Ownership and state
	slot, err := s.loadSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if !slot.IsOwnedBy(trainerID) {
		return nil, ErrNotSlotOwner
	}
	if err := slot.CheckApprove(userID); err != nil {
		return nil, err
	}

	// 2. Consume the credit before any slot mutation
	ok, err := s.entitlements.DecrementVideoCalls(ctx, userID, trainerID)
	if err != nil {
		return nil, apperror.Internal("failed to consume video call credit", err)
	}
	if !ok {
		return nil, ErrNoVideoCallCredits
	}

	// 3. Book: one atomic write that also rejects every other pending request
	roomID := domain.NewRoomID(slotID)
	link := domain.RoomURL(s.cfg.BaseURL, s.cfg.BasePath, roomID)
	updated, err := s.slots.Approve(ctx, slotID, userID, link)
	if err != nil {
		s.restoreCredit(ctx, slotID, userID, trainerID)
		return nil, s.reclassify(ctx, slotID, err, func(fresh *domain.Slot) error { return fresh.CheckApprove(userID) })
	}

	// 4. Tell the client
	if err := s.notifier.SendSessionResponseNotification(ctx, userID, s.trainerName(ctx, trainerID), true, ""); err != nil {
		s.notifyFailed("session_response", err, zap.String("slot_id", slotID.Hex()))
	}

	s.opts.Logger.Info("session request approved",
		zap.String("slot_id", slotID.Hex()),
		zap.String("user_id", userID.Hex()),
		zap.String("room_id", roomID))
	return updated, nil
}

func (s *bookingService) restoreCredit(ctx context.Context, slotID, userID, trainerID primitive.ObjectID) {
	if err := s.entitlements.RestoreVideoCall(ctx, userID, trainerID); err != nil {
		s.opts.Logger.Error("failed to restore video call credit after aborted approval",
			zap.String("slot_id", slotID.Hex()),
			zap.String("user_id", userID.Hex()),
			zap.String("trainer_id", trainerID.Hex()),
			zap.Error(err))
	}
}

func (s *bookingService) RejectRequest(ctx context.Context, slotID, userID, trainerID primitive.ObjectID, reason string) (*domain.Slot, error) {
	slot, err := s.rejectRequest(ctx, slotID, userID, trainerID, reason)
	s.opts.Metrics.BookingDecision("reject", outcome(err))
	return slot, err
}

func (s *bookingService) rejectRequest(ctx context.Context, slotID, userID, trainerID primitive.ObjectID, reason string) (*domain.Slot, error) {
	slot, err := s.loadSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if !slot.IsOwnedBy(trainerID) {
		return nil, ErrNotSlotOwner
	}
	if err := slot.CheckReject(userID); err != nil {
		return nil, err
	}

	updated, err := s.slots.UpdateRequest(ctx, slotID, userID, domain.RequestPending, repository.RequestUpdate{
		Status:          domain.RequestRejected,
		RejectionReason: reason,
	})
	if err != nil {
		return nil, s.reclassify(ctx, slotID, err, func(fresh *domain.Slot) error { return fresh.CheckReject(userID) })
	}

	if err := s.notifier.SendSessionResponseNotification(ctx, userID, s.trainerName(ctx, trainerID), false, reason); err != nil {
		s.notifyFailed("session_response", err, zap.String("slot_id", slotID.Hex()))
	}

	s.opts.Logger.Info("session request rejected", zap.String("slot_id", slotID.Hex()), zap.String("user_id", userID.Hex()))
	return updated, nil
}

// === Slot management ===

func (s *bookingService) CreateSlot(ctx context.Context, trainerID primitive.ObjectID, date time.Time, startTime, endTime string) (*domain.Slot, error) {
	start, err1 := domain.ParseClock(startTime)
	end, err2 := domain.ParseClock(endTime)
	if err1 != nil || err2 != nil {
		return nil, apperror.Validation(domain.ErrBadTimeFormat.Error(), map[string]string{"startTime": startTime, "endTime": endTime})
	}
	if end-start != domain.WindowMinutes {
		return nil, ErrInvalidSlotTime
	}

	day := domain.StartOfDay(date, s.opts.Location)
	overlap, err := s.slots.HasOverlap(ctx, trainerID, day, startTime, endTime)
	if err != nil {
		return nil, apperror.Internal("failed to check slot overlap", err)
	}
	if overlap {
		return nil, ErrSlotOverlap
	}

	slot := &domain.Slot{
		TrainerID: trainerID,
		Day:       domain.DayNames[(int(day.Weekday())+6)%domain.DaysPerWeek],
		Date:      day,
		StartTime: startTime,
		EndTime:   endTime,
	}
	id, err := s.slots.Create(ctx, slot)
	if err != nil {
		return nil, apperror.Internal("failed to create slot", err)
	}
	slot.ID = id

	s.opts.Logger.Info("slot created", zap.String("slot_id", id.Hex()), zap.String("trainer_id", trainerID.Hex()))
	return slot, nil
}

// DeleteSlot removes a slot nobody ever requested. Rejected requests still count as history.
func (s *bookingService) DeleteSlot(ctx context.Context, slotID, trainerID primitive.ObjectID) error {
	slot, err := s.loadSlot(ctx, slotID)
	if err != nil {
		return err
	}
	if !slot.IsOwnedBy(trainerID) {
		return ErrNotSlotOwner
	}
	if err := slot.CheckDelete(); err != nil {
		return err
	}

	if err := s.slots.DeleteUnrequested(ctx, slotID); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return ErrSlotNotFound
		case errors.Is(err, repository.ErrPreconditionFailed):
			return domain.ErrSlotNotDeletable
		}
		return apperror.Internal("failed to delete slot", err)
	}

	s.opts.Logger.Info("slot deleted", zap.String("slot_id", slotID.Hex()))
	return nil
}

// === Queries ===

func (s *bookingService) GetTrainerSlots(ctx context.Context, trainerID primitive.ObjectID) ([]domain.Slot, error) {
	slots, err := s.slots.GetByTrainerID(ctx, trainerID)
	if err != nil {
		return nil, apperror.Internal("failed to list slots", err)
	}
	return slots, nil
}

// GetAvailableSlots lists the open slots of the user's assigned trainer from today on.
// A user without a trainer sees nothing.
func (s *bookingService) GetAvailableSlots(ctx context.Context, userID primitive.ObjectID) ([]domain.Slot, error) {
	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, apperror.Internal("failed to load user", err)
	}
	if user.TrainerID == nil || *user.TrainerID == primitive.NilObjectID {
		return []domain.Slot{}, nil
	}

	slots, err := s.slots.GetAvailable(ctx, *user.TrainerID, s.opts.today())
	if err != nil {
		return nil, apperror.Internal("failed to list available slots", err)
	}
	return slots, nil
}

func (s *bookingService) GetUserSessions(ctx context.Context, userID primitive.ObjectID) ([]domain.Slot, error) {
	slots, err := s.slots.GetByUser(ctx, userID)
	if err != nil {
		return nil, apperror.Internal("failed to list sessions", err)
	}
	return slots, nil
}

func (s *bookingService) GetTrainerRequests(ctx context.Context, trainerID primitive.ObjectID) ([]domain.Slot, error) {
	slots, err := s.slots.GetWithOpenRequests(ctx, trainerID)
	if err != nil {
		return nil, apperror.Internal("failed to list requests", err)
	}
	return slots, nil
}

// --- Helpers ---

func (s *bookingService) loadSlot(ctx context.Context, slotID primitive.ObjectID) (*domain.Slot, error) {
	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSlotNotFound
		}
		return nil, apperror.Internal("failed to load slot", err)
	}
	return slot, nil
}

// reclassify turns a failed conditional write into the error the caller would have got
// had it read the slot after the competing write.
func (s *bookingService) reclassify(ctx context.Context, slotID primitive.ObjectID, err error, check func(*domain.Slot) error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrSlotNotFound
	case !errors.Is(err, repository.ErrPreconditionFailed):
		return apperror.Internal("failed to update slot", err)
	}

	fresh, loadErr := s.loadSlot(ctx, slotID)
	if loadErr != nil {
		return loadErr
	}
	if checkErr := check(fresh); checkErr != nil {
		return checkErr
	}
	return ErrConcurrentUpdate
}

func (s *bookingService) trainerName(ctx context.Context, trainerID primitive.ObjectID) string {
	trainer, err := s.directory.GetUser(ctx, trainerID)
	if err != nil || trainer.Name == "" {
		if err != nil {
			s.opts.Logger.Warn("trainer lookup failed", zap.String("trainer_id", trainerID.Hex()), zap.Error(err))
		}
		return fallbackTrainerName
	}
	return trainer.Name
}

func (s *bookingService) notifyFailed(kind string, err error, fields ...zap.Field) {
	s.opts.Metrics.NotificationFailed(kind)
	s.opts.Logger.Warn("failed to enqueue notification", append(fields, zap.String("type", kind), zap.Error(err))...)
}

// outcome is the metrics label for an operation result.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperror.KindOf(err))
}
