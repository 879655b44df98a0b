package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/fitness-sessions/internal/domain"
	"alcyxob/fitness-sessions/internal/service"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, userID primitive.ObjectID, role domain.Role, ttl time.Duration) string {
	t.Helper()
	claims := jwtClaims{
		UserID: userID.Hex(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

type stubs struct {
	schedule *stubScheduleService
	booking  *stubBookingService
	calls    *stubVideoCallService
}

func newTestRouter() (*gin.Engine, *stubs) {
	s := &stubs{
		schedule: &stubScheduleService{},
		booking:  &stubBookingService{},
		calls:    &stubVideoCallService{},
	}
	router := gin.New()
	SetupRoutes(router, RouterConfig{JWTSecret: testSecret, Location: time.UTC}, s.schedule, s.booking, s.calls)
	return router, s
}

func doRequest(router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// --- Service stubs ---

type scheduleCall struct {
	trainerID primitive.ObjectID
	weekStart *time.Time
	days      []domain.DaySchedule
}

type stubScheduleService struct {
	last scheduleCall
	err  error
}

func (s *stubScheduleService) CreateOrUpdateSchedule(_ context.Context, trainerID primitive.ObjectID, weekStart time.Time, days []domain.DaySchedule) (*service.ScheduleResult, error) {
	s.last = scheduleCall{trainerID: trainerID, weekStart: &weekStart, days: days}
	if s.err != nil {
		return nil, s.err
	}
	return &service.ScheduleResult{Template: &domain.WeeklyScheduleTemplate{TrainerID: trainerID, WeekStart: weekStart}, SlotsCreated: len(days)}, nil
}

func (s *stubScheduleService) GetTrainerSchedule(_ context.Context, trainerID primitive.ObjectID, weekStart *time.Time) (*domain.WeeklyScheduleTemplate, error) {
	s.last = scheduleCall{trainerID: trainerID, weekStart: weekStart}
	if s.err != nil {
		return nil, s.err
	}
	return &domain.WeeklyScheduleTemplate{TrainerID: trainerID}, nil
}

func (s *stubScheduleService) DeleteSchedule(_ context.Context, trainerID primitive.ObjectID, weekStart time.Time) error {
	s.last = scheduleCall{trainerID: trainerID, weekStart: &weekStart}
	return s.err
}

func (s *stubScheduleService) ResetWeeklySchedules(context.Context) (service.ResetSummary, error) {
	return service.ResetSummary{}, s.err
}

type bookingCall struct {
	op        string
	slotID    primitive.ObjectID
	userID    primitive.ObjectID
	trainerID primitive.ObjectID
	reason    string
}

type stubBookingService struct {
	last  bookingCall
	slots []domain.Slot
	err   error
}

func (s *stubBookingService) result(call bookingCall) (*domain.Slot, error) {
	s.last = call
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Slot{ID: call.slotID, TrainerID: call.trainerID}, nil
}

func (s *stubBookingService) RequestSession(_ context.Context, slotID, userID primitive.ObjectID) (*domain.Slot, error) {
	return s.result(bookingCall{op: "request", slotID: slotID, userID: userID})
}

func (s *stubBookingService) ApproveRequest(_ context.Context, slotID, userID, trainerID primitive.ObjectID) (*domain.Slot, error) {
	return s.result(bookingCall{op: "approve", slotID: slotID, userID: userID, trainerID: trainerID})
}

func (s *stubBookingService) RejectRequest(_ context.Context, slotID, userID, trainerID primitive.ObjectID, reason string) (*domain.Slot, error) {
	return s.result(bookingCall{op: "reject", slotID: slotID, userID: userID, trainerID: trainerID, reason: reason})
}

func (s *stubBookingService) CreateSlot(_ context.Context, trainerID primitive.ObjectID, date time.Time, startTime, endTime string) (*domain.Slot, error) {
	s.last = bookingCall{op: "create", trainerID: trainerID}
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Slot{TrainerID: trainerID, Date: date, StartTime: startTime, EndTime: endTime}, nil
}

func (s *stubBookingService) DeleteSlot(_ context.Context, slotID, trainerID primitive.ObjectID) error {
	s.last = bookingCall{op: "delete", slotID: slotID, trainerID: trainerID}
	return s.err
}

func (s *stubBookingService) list(call bookingCall) ([]domain.Slot, error) {
	s.last = call
	return s.slots, s.err
}

func (s *stubBookingService) GetTrainerSlots(_ context.Context, trainerID primitive.ObjectID) ([]domain.Slot, error) {
	return s.list(bookingCall{op: "trainer_slots", trainerID: trainerID})
}

func (s *stubBookingService) GetAvailableSlots(_ context.Context, userID primitive.ObjectID) ([]domain.Slot, error) {
	return s.list(bookingCall{op: "available", userID: userID})
}

func (s *stubBookingService) GetUserSessions(_ context.Context, userID primitive.ObjectID) ([]domain.Slot, error) {
	return s.list(bookingCall{op: "sessions", userID: userID})
}

func (s *stubBookingService) GetTrainerRequests(_ context.Context, trainerID primitive.ObjectID) ([]domain.Slot, error) {
	return s.list(bookingCall{op: "requests", trainerID: trainerID})
}

type callRecord struct {
	op          string
	roomID      string
	userID      primitive.ObjectID
	role        domain.ParticipantType
	contentType string
}

type stubVideoCallService struct {
	last    callRecord
	canJoin bool
	err     error
}

func (s *stubVideoCallService) session(rec callRecord) (*domain.VideoCallSession, error) {
	s.last = rec
	if s.err != nil {
		return nil, s.err
	}
	return &domain.VideoCallSession{RoomID: rec.roomID, Status: domain.SessionScheduled}, nil
}

func (s *stubVideoCallService) CreateSession(_ context.Context, slotID, userID primitive.ObjectID) (*domain.VideoCallSession, error) {
	return s.session(callRecord{op: "create", roomID: domain.NewRoomID(slotID), userID: userID})
}

func (s *stubVideoCallService) GetSession(_ context.Context, roomID string, userID primitive.ObjectID) (*domain.VideoCallSession, error) {
	return s.session(callRecord{op: "get", roomID: roomID, userID: userID})
}

func (s *stubVideoCallService) CanJoin(_ context.Context, roomID string, userID primitive.ObjectID) (bool, error) {
	s.last = callRecord{op: "can_join", roomID: roomID, userID: userID}
	return s.canJoin, s.err
}

func (s *stubVideoCallService) JoinCall(_ context.Context, roomID string, userID primitive.ObjectID, role domain.ParticipantType) (*domain.VideoCallSession, error) {
	return s.session(callRecord{op: "join", roomID: roomID, userID: userID, role: role})
}

func (s *stubVideoCallService) LeaveCall(_ context.Context, roomID string, userID primitive.ObjectID) (*domain.VideoCallSession, error) {
	return s.session(callRecord{op: "leave", roomID: roomID, userID: userID})
}

func (s *stubVideoCallService) EndCall(_ context.Context, roomID string) (*domain.VideoCallSession, error) {
	return s.session(callRecord{op: "end", roomID: roomID})
}

func (s *stubVideoCallService) GetActiveParticipants(_ context.Context, roomID string) (int, error) {
	s.last = callRecord{op: "participants", roomID: roomID}
	return 1, s.err
}

func (s *stubVideoCallService) RecordingUploadURL(_ context.Context, roomID string, userID primitive.ObjectID, contentType string) (string, error) {
	s.last = callRecord{op: "upload", roomID: roomID, userID: userID, contentType: contentType}
	return "https://files.example/upload", s.err
}

func (s *stubVideoCallService) RecordingDownloadURL(_ context.Context, roomID string, userID primitive.ObjectID) (string, error) {
	s.last = callRecord{op: "download", roomID: roomID, userID: userID}
	return "https://files.example/download", s.err
}
