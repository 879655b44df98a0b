package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"alcyxob/fitness-sessions/internal/apperror"
	"alcyxob/fitness-sessions/internal/domain"
	"alcyxob/fitness-sessions/internal/repository"
	"alcyxob/fitness-sessions/internal/storage"
)

// maxUpdateAttempts bounds the optimistic read-modify-write loop on a session.
const maxUpdateAttempts = 5

const defaultRecordingContentType = "video/webm"

type VideoCallService interface {
	// Lifecycle
	CreateSession(ctx context.Context, slotID, userID primitive.ObjectID) (*domain.VideoCallSession, error)
	GetSession(ctx context.Context, roomID string, userID primitive.ObjectID) (*domain.VideoCallSession, error)
	CanJoin(ctx context.Context, roomID string, userID primitive.ObjectID) (bool, error)
	JoinCall(ctx context.Context, roomID string, userID primitive.ObjectID, role domain.ParticipantType) (*domain.VideoCallSession, error)
	LeaveCall(ctx context.Context, roomID string, userID primitive.ObjectID) (*domain.VideoCallSession, error)
	EndCall(ctx context.Context, roomID string) (*domain.VideoCallSession, error)
	GetActiveParticipants(ctx context.Context, roomID string) (int, error)

	// Recordings
	RecordingUploadURL(ctx context.Context, roomID string, userID primitive.ObjectID, contentType string) (string, error)
	RecordingDownloadURL(ctx context.Context, roomID string, userID primitive.ObjectID) (string, error)
}

// videoCallService implements the VideoCallService interface.
type videoCallService struct {
	sessions repository.SessionRepository
	slots    repository.SlotRepository
	files    storage.FileStorage
	leadTime time.Duration
	opts     Options
}

// NewVideoCallService creates a new instance of videoCallService. files may be nil,
// in which case the recording operations fail.
func NewVideoCallService(
	sessions repository.SessionRepository,
	slots repository.SlotRepository,
	files storage.FileStorage,
	joinLeadTime time.Duration,
	opts Options,
) VideoCallService {
	if joinLeadTime <= 0 {
		joinLeadTime = domain.DefaultJoinLeadTime
	}
	return &videoCallService{
		sessions: sessions,
		slots:    slots,
		files:    files,
		leadTime: joinLeadTime,
		opts:     opts.withDefaults(),
	}
}

// CreateSession returns the slot's room, creating it on first call. Only the slot's trainer
// or its booked client may ask.
func (s *videoCallService) CreateSession(ctx context.Context, slotID, userID primitive.ObjectID) (*domain.VideoCallSession, error) {
	slot, err := s.loadSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if !slot.IsBooked {
		return nil, domain.ErrSlotNotBooked
	}
	if !slot.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}

	existing, err := s.sessions.GetBySlotID(ctx, slotID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.Internal("failed to load session", err)
	}

	start, errStart := domain.At(slot.Date, slot.StartTime, s.opts.Location)
	end, errEnd := domain.At(slot.Date, slot.EndTime, s.opts.Location)
	if errStart != nil || errEnd != nil {
		return nil, apperror.Internal("slot has malformed times", errors.Join(errStart, errEnd))
	}

	// the approval already minted a room id into the link; keep them in step
	roomID, ok := domain.RoomIDFromURL(slot.VideoCallLink, slotID)
	if !ok {
		roomID = domain.NewRoomID(slotID)
	}

	session, err := s.sessions.CreateIfAbsent(ctx, &domain.VideoCallSession{
		SlotID:             slotID,
		RoomID:             roomID,
		Participants:       []domain.Participant{},
		Status:             domain.SessionScheduled,
		ScheduledStartTime: start,
		ScheduledEndTime:   end,
	})
	if err != nil {
		return nil, apperror.Internal("failed to create session", err)
	}

	s.opts.Logger.Info("video call session ready", zap.String("slot_id", slotID.Hex()), zap.String("room_id", session.RoomID))
	return session, nil
}

func (s *videoCallService) GetSession(ctx context.Context, roomID string, userID primitive.ObjectID) (*domain.VideoCallSession, error) {
	return s.participantSession(ctx, roomID, userID)
}

// CanJoin reports whether userID is the slot's trainer or its booked client.
// A missing room or slot is an error, not false.
func (s *videoCallService) CanJoin(ctx context.Context, roomID string, userID primitive.ObjectID) (bool, error) {
	session, err := s.loadSession(ctx, roomID)
	if err != nil {
		return false, err
	}
	slot, err := s.loadSlot(ctx, session.SlotID)
	if err != nil {
		return false, err
	}
	return slot.IsParticipant(userID), nil
}

func (s *videoCallService) JoinCall(ctx context.Context, roomID string, userID primitive.ObjectID, role domain.ParticipantType) (*domain.VideoCallSession, error) {
	allowed, err := s.CanJoin(ctx, roomID, userID)
	if err != nil {
		s.opts.Metrics.CallJoin(outcome(err))
		return nil, err
	}
	if !allowed {
		s.opts.Metrics.CallJoin(outcome(ErrNotParticipant))
		return nil, ErrNotParticipant
	}

	var becameActive bool
	session, err := s.mutate(ctx, roomID, func(sess *domain.VideoCallSession) (bool, error) {
		wasActive := sess.Status == domain.SessionActive
		if err := sess.Join(userID, role, s.opts.Now(), s.leadTime); err != nil {
			return false, err
		}
		becameActive = !wasActive && sess.Status == domain.SessionActive
		return true, nil
	})
	s.opts.Metrics.CallJoin(outcome(err))
	if err != nil {
		return nil, err
	}

	if becameActive {
		s.opts.Metrics.SessionStarted()
	}
	s.opts.Logger.Info("participant joined",
		zap.String("room_id", roomID),
		zap.String("user_id", userID.Hex()),
		zap.String("role", string(role)),
		zap.Int("active", session.ActiveCount()))
	return session, nil
}

func (s *videoCallService) LeaveCall(ctx context.Context, roomID string, userID primitive.ObjectID) (*domain.VideoCallSession, error) {
	var ended bool
	session, err := s.mutate(ctx, roomID, func(sess *domain.VideoCallSession) (bool, error) {
		if err := sess.Leave(userID, s.opts.Now()); err != nil {
			return false, err
		}
		ended = sess.Status == domain.SessionEnded
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if ended {
		s.opts.Metrics.SessionEnded()
		s.opts.Logger.Info("video call ended", zap.String("room_id", roomID), zap.String("reason", "room empty"))
	}
	return session, nil
}

// EndCall force-terminates the room regardless of who asks. Ending an ended room is a no-op.
func (s *videoCallService) EndCall(ctx context.Context, roomID string) (*domain.VideoCallSession, error) {
	var wasActive, changed bool
	session, err := s.mutate(ctx, roomID, func(sess *domain.VideoCallSession) (bool, error) {
		wasActive = sess.Status == domain.SessionActive
		changed = sess.End(s.opts.Now())
		return changed, nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		if wasActive {
			s.opts.Metrics.SessionEnded()
		}
		s.opts.Logger.Info("video call ended", zap.String("room_id", roomID), zap.String("reason", "ended"))
	}
	return session, nil
}

func (s *videoCallService) GetActiveParticipants(ctx context.Context, roomID string) (int, error) {
	session, err := s.loadSession(ctx, roomID)
	if err != nil {
		return 0, err
	}
	return session.ActiveCount(), nil
}

// === Recordings ===

func (s *videoCallService) RecordingUploadURL(ctx context.Context, roomID string, userID primitive.ObjectID, contentType string) (string, error) {
	session, err := s.authorizeRecording(ctx, roomID, userID)
	if err != nil {
		return "", err
	}
	if session.Status != domain.SessionEnded {
		return "", ErrRecordingNotReady
	}

	if contentType == "" {
		contentType = defaultRecordingContentType
	}
	if !strings.HasPrefix(contentType, "video/") {
		return "", apperror.Validation("recording must be a video", map[string]string{"contentType": contentType})
	}

	url, err := s.files.GeneratePresignedUploadURL(ctx, storage.RecordingKey(roomID), contentType, storage.DefaultPresignedURLExpiry)
	if err != nil {
		return "", apperror.Internal("failed to create upload url", err)
	}
	return url, nil
}

func (s *videoCallService) RecordingDownloadURL(ctx context.Context, roomID string, userID primitive.ObjectID) (string, error) {
	if _, err := s.authorizeRecording(ctx, roomID, userID); err != nil {
		return "", err
	}

	key := storage.RecordingKey(roomID)
	exists, err := s.files.ObjectExists(ctx, key)
	if err != nil {
		return "", apperror.Internal("failed to check recording", err)
	}
	if !exists {
		return "", ErrRecordingNotFound
	}

	url, err := s.files.GeneratePresignedDownloadURL(ctx, key, storage.DefaultPresignedURLExpiry)
	if err != nil {
		return "", apperror.Internal("failed to create download url", err)
	}
	return url, nil
}

func (s *videoCallService) authorizeRecording(ctx context.Context, roomID string, userID primitive.ObjectID) (*domain.VideoCallSession, error) {
	if s.files == nil {
		return nil, ErrStorageDisabled
	}
	return s.participantSession(ctx, roomID, userID)
}

// --- Helpers ---

// participantSession loads the room and fails with ErrNotParticipant unless userID is on its slot.
func (s *videoCallService) participantSession(ctx context.Context, roomID string, userID primitive.ObjectID) (*domain.VideoCallSession, error) {
	session, err := s.loadSession(ctx, roomID)
	if err != nil {
		return nil, err
	}
	slot, err := s.loadSlot(ctx, session.SlotID)
	if err != nil {
		return nil, err
	}
	if !slot.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return session, nil
}

// mutate runs apply against the freshest copy of the room and writes it back under the
// version check, retrying when another writer got there first. apply reports whether it
// changed anything; unchanged sessions are not written.
func (s *videoCallService) mutate(ctx context.Context, roomID string, apply func(*domain.VideoCallSession) (bool, error)) (*domain.VideoCallSession, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		session, err := s.loadSession(ctx, roomID)
		if err != nil {
			return nil, err
		}

		changed, err := apply(session)
		if err != nil {
			return nil, err
		}
		if !changed {
			return session, nil
		}

		err = s.sessions.Update(ctx, session)
		if err == nil {
			return session, nil
		}
		switch {
		case errors.Is(err, repository.ErrPreconditionFailed):
			s.opts.Logger.Debug("session version moved, retrying", zap.String("room_id", roomID), zap.Int("attempt", attempt+1))
			continue
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrSessionNotFound
		default:
			return nil, apperror.Internal("failed to update session", err)
		}
	}
	return nil, ErrConcurrentUpdate
}

func (s *videoCallService) loadSession(ctx context.Context, roomID string) (*domain.VideoCallSession, error) {
	session, err := s.sessions.GetByRoomID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, apperror.Internal("failed to load session", err)
	}
	return session, nil
}

func (s *videoCallService) loadSlot(ctx context.Context, slotID primitive.ObjectID) (*domain.Slot, error) {
	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSlotNotFound
		}
		return nil, apperror.Internal("failed to load slot", err)
	}
	return slot, nil
}
