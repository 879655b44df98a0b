package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/fitness-sessions/internal/apperror"
	"alcyxob/fitness-sessions/internal/domain"
)

type bookingFixture struct {
	svc          BookingService
	slots        *fakeSlotRepo
	entitlements *fakeEntitlements
	notifier     *fakeNotifier
	directory    *fakeDirectory
	trainerID    primitive.ObjectID
	userID       primitive.ObjectID
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	f := &bookingFixture{
		slots:        newFakeSlotRepo(),
		entitlements: newFakeEntitlements(),
		notifier:     &fakeNotifier{},
		trainerID:    primitive.NewObjectID(),
		userID:       primitive.NewObjectID(),
	}
	trainerID := f.trainerID
	f.directory = &fakeDirectory{users: map[primitive.ObjectID]*domain.User{
		f.trainerID: {ID: f.trainerID, Name: "Tess Trainer", Role: domain.RoleTrainer},
		f.userID:    {ID: f.userID, Name: "Cal Client", Role: domain.RoleClient, TrainerID: &trainerID},
	}}
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	f.svc = NewBookingService(f.slots, f.entitlements, f.notifier, f.directory,
		BookingConfig{BaseURL: "http://localhost:8080", BasePath: "/video-call"},
		Options{Now: clock.Now})
	return f
}

func (f *bookingFixture) addSlot(t *testing.T, date time.Time, start, end string) primitive.ObjectID {
	t.Helper()
	id, err := f.slots.Create(context.Background(), &domain.Slot{TrainerID: f.trainerID, Date: date, StartTime: start, EndTime: end})
	require.NoError(t, err)
	return id
}

func TestBookingCreditScenario(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)
	f.entitlements.setPlan(f.userID, f.trainerID, domain.PlanTypePro, 1)
	slotID := f.addSlot(t, june3, "09:00", "10:00")
	otherID := f.addSlot(t, june5, "14:00", "15:00")

	// request: pending, credit untouched
	slot, err := f.svc.RequestSession(ctx, slotID, f.userID)
	require.NoError(t, err)
	require.Len(t, slot.RequestedBy, 1)
	assert.Equal(t, domain.RequestPending, slot.RequestedBy[0].Status)
	assert.Equal(t, 1, f.entitlements.credits(f.userID, f.trainerID))

	// approve: credit consumed, slot booked with a room link
	slot, err = f.svc.ApproveRequest(ctx, slotID, f.userID, f.trainerID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.entitlements.credits(f.userID, f.trainerID))
	assert.True(t, slot.IsBooked)
	assert.Equal(t, f.userID, *slot.BookedBy)
	pattern := regexp.MustCompile(`^http://localhost:8080/video-call/session_` + slotID.Hex() + `_[0-9a-f-]{36}$`)
	assert.Regexp(t, pattern, slot.VideoCallLink)

	// out of credits for the next slot
	_, err = f.svc.RequestSession(ctx, otherID, f.userID)
	assert.ErrorIs(t, err, ErrNoVideoCallCredits)
	assert.Equal(t, apperror.KindResourceExhausted, apperror.KindOf(err))
	other, _ := f.slots.GetByID(ctx, otherID)
	assert.Empty(t, other.RequestedBy)

	// booked slot cannot be deleted
	err = f.svc.DeleteSlot(ctx, slotID, f.trainerID)
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	require.Len(t, f.notifier.sent, 2)
	assert.Equal(t, sentNotification{kind: "request", recipient: f.trainerID}, f.notifier.sent[0])
	assert.Equal(t, sentNotification{kind: "response", recipient: f.userID, trainerName: "Tess Trainer", approved: true}, f.notifier.sent[1])
}

func TestRequestSessionErrors(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)
	f.entitlements.setPlan(f.userID, f.trainerID, domain.PlanTypePro, 3)
	slotID := f.addSlot(t, june3, "09:00", "10:00")

	_, err := f.svc.RequestSession(ctx, primitive.NewObjectID(), f.userID)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	_, err = f.svc.RequestSession(ctx, slotID, f.userID)
	require.NoError(t, err)
	_, err = f.svc.RequestSession(ctx, slotID, f.userID)
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)

	// basic plan and no plan are both out of credits
	basic, stranger := primitive.NewObjectID(), primitive.NewObjectID()
	f.entitlements.setPlan(basic, f.trainerID, "basic", 10)
	_, err = f.svc.RequestSession(ctx, slotID, basic)
	assert.ErrorIs(t, err, ErrNoVideoCallCredits)
	_, err = f.svc.RequestSession(ctx, slotID, stranger)
	assert.ErrorIs(t, err, ErrNoVideoCallCredits)

	// plan lookup failure is not swallowed
	f.entitlements.getErr = errors.New("subscription db down")
	_, err = f.svc.RequestSession(ctx, slotID, primitive.NewObjectID())
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))
}

func TestRequestSessionOnBookedSlot(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)
	late := primitive.NewObjectID()
	f.entitlements.setPlan(f.userID, f.trainerID, domain.PlanTypePro, 1)
	f.entitlements.setPlan(late, f.trainerID, domain.PlanTypePro, 1)
	slotID := f.addSlot(t, june3, "09:00", "10:00")

	_, err := f.svc.RequestSession(ctx, slotID, f.userID)
	require.NoError(t, err)
	_, err = f.svc.ApproveRequest(ctx, slotID, f.userID, f.trainerID)
	require.NoError(t, err)

	_, err = f.svc.RequestSession(ctx, slotID, late)
	assert.ErrorIs(t, err, domain.ErrSlotAlreadyBooked)
}

func TestRequestSurvivesNotificationFailure(t *testing.T) {
	f := newBookingFixture(t)
	f.entitlements.setPlan(f.userID, f.trainerID, domain.PlanTypePro, 1)
	f.notifier.err = errors.New("redis unavailable")
	slotID := f.addSlot(t, june3, "09:00", "10:00")

	slot, err := f.svc.RequestSession(context.Background(), slotID, f.userID)
	require.NoError(t, err)
	assert.Len(t, slot.RequestedBy, 1)
}

func TestApproveRejectsOtherPendingRequests(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)
	second, third := primitive.NewObjectID(), primitive.NewObjectID()
	for _, u := range []primitive.ObjectID{f.userID, second, third} {
		f.entitlements.setPlan(u, f.trainerID, domain.PlanTypePro, 2)
	}
	slotID := f.addSlot(t, june3, "09:00", "10:00")
	for _, u := range []primitive.ObjectID{f.userID, second, third} {
		_, err := f.svc.RequestSession(ctx, slotID, u)
		require.NoError(t, err)
	}
	_, err := f.svc.RejectRequest(ctx, slotID, third, f.trainerID, "fully booked that day")
	require.NoError(t, err)

	slot, err := f.svc.ApproveRequest(ctx, slotID, second, f.trainerID)
	require.NoError(t, err)

	assert.Equal(t, 1, slot.ApprovedCount())
	for _, r := range slot.RequestedBy {
		switch r.UserID {
		case second:
			assert.Equal(t, domain.RequestApproved, r.Status)
		case f.userID:
			assert.Equal(t, domain.RequestRejected, r.Status)
			assert.Equal(t, domain.ReasonApprovedForAnother, r.RejectionReason)
		case third:
			assert.Equal(t, domain.RequestRejected, r.Status)
			assert.Equal(t, "fully booked that day", r.RejectionReason)
		}
	}
	// only the approved user spent a credit
	assert.Equal(t, 1, f.entitlements.credits(second, f.trainerID))
	assert.Equal(t, 2, f.entitlements.credits(f.userID, f.trainerID))
}

func TestApproveRequestGuards(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)
	f.entitlements.setPlan(f.userID, f.trainerID, domain.PlanTypePro, 1)
	slotID := f.addSlot(t, june3, "09:00", "10:00")

	_, err := f.svc.ApproveRequest(ctx, slotID, f.userID, f.trainerID)
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)

	_, err = f.svc.RequestSession(ctx, slotID, f.userID)
	require.NoError(t, err)

	_, err = f.svc.ApproveRequest(ctx, slotID, f.userID, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrNotSlotOwner)
	assert.Equal(t, apperror.KindAuthorization, apperror.KindOf(err))
	assert.Equal(t, 1, f.entitlements.credits(f.userID, f.trainerID))

	_, err = f.svc.ApproveRequest(ctx, primitive.NewObjectID(), f.userID, f.trainerID)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestApproveAbortsWhenDecrementFails(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)
	f.entitlements.setPlan(f.userID, f.trainerID, domain.PlanTypePro, 1)
	slotID := f.addSlot(t, june3, "09:00", "10:00")
	_, err := f.svc.RequestSession(ctx, slotID, f.userID)
	require.NoError(t, err)

	f.entitlements.decrementErr = errors.New("timeout")
	_, err = f.svc.ApproveRequest(ctx, slotID, f.userID, f.trainerID)
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))
	slot, _ := f.slots.GetByID(ctx, slotID)
	assert.False(t, slot.IsBooked)

	// credits spent elsewhere between request and approval
	f.entitlements.decrementErr = nil
	f.entitlements.setPlan(f.userID, f.trainerID, domain.PlanTypePro, 0)
	_, err = f.svc.ApproveRequest(ctx, slotID, f.userID, f.trainerID)
	assert.ErrorIs(t, err, ErrNoVideoCallCredits)
	slot, _ = f.slots.GetByID(ctx, slotID)
	assert.False(t, slot.IsBooked)
	assert.Equal(t, domain.RequestPending, slot.RequestedBy[0].Status)
}

func TestApproveRestoresCreditWhenBookingWriteFails(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)
	f.entitlements.setPlan(f.userID, f.trainerID, domain.PlanTypePro, 1)
	slotID := f.addSlot(t, june3, "09:00", "10:00")
	_, err := f.svc.RequestSession(ctx, slotID, f.userID)
	require.NoError(t, err)

	f.slots.approveErr = errors.New("write concern error")
	_, err = f.svc.ApproveRequest(ctx, slotID, f.userID, f.trainerID)
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))
	assert.Equal(t, 1, f.entitlements.credits(f.userID, f.trainerID))
	assert.Equal(t, 1, f.entitlements.restored)
}

func TestConcurrentApprovalsBookOnce(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)
	users := make([]primitive.ObjectID, 8)
	slotID := f.addSlot(t, june3, "09:00", "10:00")
	for i := range users {
		users[i] = primitive.NewObjectID()
		f.entitlements.setPlan(users[i], f.trainerID, domain.PlanTypePro, 1)
		_, err := f.svc.RequestSession(ctx, slotID, users[i])
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ApproveRequest(ctx, slotID, users[i], f.trainerID)
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		if err == nil {
			winners++
			assert.Equal(t, 0, f.entitlements.credits(users[i], f.trainerID))
			continue
		}
		assert.True(t, errors.Is(err, apperror.ErrConflict), "unexpected error %v", err)
		assert.Equal(t, 1, f.entitlements.credits(users[i], f.trainerID), "losing approval must not keep the credit")
	}
	assert.Equal(t, 1, winners)

	slot, _ := f.slots.GetByID(ctx, slotID)
	assert.True(t, slot.IsBooked)
	assert.Equal(t, 1, slot.ApprovedCount())
}

func TestRejectRequest(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)
	f.entitlements.setPlan(f.userID, f.trainerID, domain.PlanTypePro, 1)
	slotID := f.addSlot(t, june3, "09:00", "10:00")
	_, err := f.svc.RequestSession(ctx, slotID, f.userID)
	require.NoError(t, err)

	_, err = f.svc.RejectRequest(ctx, slotID, primitive.NewObjectID(), f.trainerID, "no")
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)
	_, err = f.svc.RejectRequest(ctx, slotID, f.userID, primitive.NewObjectID(), "no")
	assert.ErrorIs(t, err, ErrNotSlotOwner)

	slot, err := f.svc.RejectRequest(ctx, slotID, f.userID, f.trainerID, "on holiday")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestRejected, slot.RequestedBy[0].Status)
	assert.Equal(t, "on holiday", slot.RequestedBy[0].RejectionReason)

	_, err = f.svc.RejectRequest(ctx, slotID, f.userID, f.trainerID, "again")
	assert.ErrorIs(t, err, domain.ErrRequestNotPending)

	// no retry after a rejection
	_, err = f.svc.RequestSession(ctx, slotID, f.userID)
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)

	last := f.notifier.sent[len(f.notifier.sent)-1]
	assert.Equal(t, sentNotification{kind: "response", recipient: f.userID, trainerName: "Tess Trainer", reason: "on holiday"}, last)
	assert.Equal(t, 1, f.entitlements.credits(f.userID, f.trainerID))
}

func TestTrainerNameFallsBackWhenDirectoryMisses(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)
	delete(f.directory.users, f.trainerID)
	f.entitlements.setPlan(f.userID, f.trainerID, domain.PlanTypePro, 1)
	slotID := f.addSlot(t, june3, "09:00", "10:00")
	_, err := f.svc.RequestSession(ctx, slotID, f.userID)
	require.NoError(t, err)

	_, err = f.svc.ApproveRequest(ctx, slotID, f.userID, f.trainerID)
	require.NoError(t, err)
	assert.Equal(t, fallbackTrainerName, f.notifier.sent[len(f.notifier.sent)-1].trainerName)
}

func TestCreateSlot(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)

	slot, err := f.svc.CreateSlot(ctx, f.trainerID, june5.Add(15*time.Hour), "09:00", "10:00")
	require.NoError(t, err)
	assert.Equal(t, "Wednesday", slot.Day)
	assert.True(t, slot.Date.Equal(june5))
	assert.False(t, slot.ID.IsZero())

	_, err = f.svc.CreateSlot(ctx, f.trainerID, june5, "09:30", "10:30")
	assert.ErrorIs(t, err, ErrSlotOverlap)

	_, err = f.svc.CreateSlot(ctx, f.trainerID, june5, "10:00", "11:00")
	assert.NoError(t, err)

	// other trainers and other days do not collide
	_, err = f.svc.CreateSlot(ctx, primitive.NewObjectID(), june5, "09:00", "10:00")
	assert.NoError(t, err)
	_, err = f.svc.CreateSlot(ctx, f.trainerID, june3, "09:00", "10:00")
	assert.NoError(t, err)

	_, err = f.svc.CreateSlot(ctx, f.trainerID, june5, "9am", "10:00")
	assert.Equal(t, "bad time format", apperror.MessageOf(err))
	_, err = f.svc.CreateSlot(ctx, f.trainerID, june5, "12:00", "12:30")
	assert.ErrorIs(t, err, ErrInvalidSlotTime)
}

func TestDeleteSlot(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)
	f.entitlements.setPlan(f.userID, f.trainerID, domain.PlanTypePro, 1)
	pristine := f.addSlot(t, june3, "09:00", "10:00")
	requested := f.addSlot(t, june3, "10:00", "11:00")

	assert.ErrorIs(t, f.svc.DeleteSlot(ctx, pristine, primitive.NewObjectID()), ErrNotSlotOwner)
	require.NoError(t, f.svc.DeleteSlot(ctx, pristine, f.trainerID))
	assert.ErrorIs(t, f.svc.DeleteSlot(ctx, pristine, f.trainerID), ErrSlotNotFound)

	// a rejected request still blocks deletion
	_, err := f.svc.RequestSession(ctx, requested, f.userID)
	require.NoError(t, err)
	_, err = f.svc.RejectRequest(ctx, requested, f.userID, f.trainerID, "")
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.DeleteSlot(ctx, requested, f.trainerID), domain.ErrSlotNotDeletable)
}

func TestSlotQueries(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)
	f.entitlements.setPlan(f.userID, f.trainerID, domain.PlanTypePro, 1)
	past := f.addSlot(t, time.Date(2024, 5, 27, 0, 0, 0, 0, time.UTC), "09:00", "10:00")
	open := f.addSlot(t, june3, "09:00", "10:00")
	requested := f.addSlot(t, june5, "09:00", "10:00")
	_, err := f.svc.RequestSession(ctx, requested, f.userID)
	require.NoError(t, err)

	available, err := f.svc.GetAvailableSlots(ctx, f.userID)
	require.NoError(t, err)
	ids := []primitive.ObjectID{}
	for _, s := range available {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []primitive.ObjectID{open, requested}, ids)
	assert.NotContains(t, ids, past)

	sessions, err := f.svc.GetUserSessions(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, requested, sessions[0].ID)

	requests, err := f.svc.GetTrainerRequests(ctx, f.trainerID)
	require.NoError(t, err)
	require.Len(t, requests, 1)

	all, err := f.svc.GetTrainerSlots(ctx, f.trainerID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// a client without a trainer sees nothing
	loner := primitive.NewObjectID()
	f.directory.users[loner] = &domain.User{ID: loner, Role: domain.RoleClient}
	none, err := f.svc.GetAvailableSlots(ctx, loner)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.svc.GetAvailableSlots(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrUserNotFound)
}
