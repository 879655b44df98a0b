package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/fitness-sessions/internal/domain"
	"alcyxob/fitness-sessions/internal/repository"
)

// --- slots ---

type fakeSlotRepo struct {
	mu    sync.Mutex
	slots map[primitive.ObjectID]*domain.Slot
	// approveErr, when set, is returned by Approve without touching the slot.
	approveErr error
	// createManyErr, when set, is returned once by CreateMany without storing anything.
	createManyErr error
}

func newFakeSlotRepo() *fakeSlotRepo {
	return &fakeSlotRepo{slots: map[primitive.ObjectID]*domain.Slot{}}
}

func cloneSlot(s *domain.Slot) *domain.Slot {
	c := *s
	c.RequestedBy = append([]domain.BookingRequest{}, s.RequestedBy...)
	if s.BookedBy != nil {
		b := *s.BookedBy
		c.BookedBy = &b
	}
	return &c
}

func (r *fakeSlotRepo) put(s *domain.Slot) primitive.ObjectID {
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	if s.RequestedBy == nil {
		s.RequestedBy = []domain.BookingRequest{}
	}
	stored := cloneSlot(s)
	// the driver decodes dates as UTC
	stored.Date = stored.Date.UTC()
	if stored.WeekStart != nil {
		ws := stored.WeekStart.UTC()
		stored.WeekStart = &ws
	}
	r.slots[s.ID] = stored
	return s.ID
}

func (r *fakeSlotRepo) list(match func(*domain.Slot) bool) []domain.Slot {
	out := []domain.Slot{}
	for _, s := range r.slots {
		if match(s) {
			out = append(out, *cloneSlot(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

func (r *fakeSlotRepo) Create(_ context.Context, slot *domain.Slot) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.put(slot), nil
}

func (r *fakeSlotRepo) CreateMany(_ context.Context, slots []domain.Slot) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.createManyErr; err != nil {
		r.createManyErr = nil
		return 0, err
	}
	for i := range slots {
		r.put(&slots[i])
	}
	return len(slots), nil
}

func (r *fakeSlotRepo) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneSlot(s), nil
}

func (r *fakeSlotRepo) GetByTrainerID(_ context.Context, trainerID primitive.ObjectID) ([]domain.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(s *domain.Slot) bool { return s.TrainerID == trainerID }), nil
}

func (r *fakeSlotRepo) GetAvailable(_ context.Context, trainerID primitive.ObjectID, from time.Time) ([]domain.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(s *domain.Slot) bool {
		return s.TrainerID == trainerID && !s.IsBooked && !s.Date.Before(from)
	}), nil
}

func (r *fakeSlotRepo) GetByUser(_ context.Context, userID primitive.ObjectID) ([]domain.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(s *domain.Slot) bool {
		return (s.BookedBy != nil && *s.BookedBy == userID) || s.FindRequest(userID) >= 0
	}), nil
}

func (r *fakeSlotRepo) GetWithOpenRequests(_ context.Context, trainerID primitive.ObjectID) ([]domain.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(s *domain.Slot) bool {
		if s.TrainerID != trainerID {
			return false
		}
		for _, req := range s.RequestedBy {
			if req.Status == domain.RequestPending || req.Status == domain.RequestApproved {
				return true
			}
		}
		return false
	}), nil
}

func (r *fakeSlotRepo) GetBookedInRange(_ context.Context, trainerID primitive.ObjectID, from, to time.Time) ([]domain.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(s *domain.Slot) bool {
		return s.TrainerID == trainerID && s.IsBooked && !s.Date.Before(from) && s.Date.Before(to)
	}), nil
}

func (r *fakeSlotRepo) HasOverlap(_ context.Context, trainerID primitive.ObjectID, date time.Time, start, end string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ns, _ := domain.ParseClock(start)
	ne, _ := domain.ParseClock(end)
	for _, s := range r.slots {
		if s.TrainerID != trainerID || !s.Date.Equal(date) {
			continue
		}
		ss, _ := domain.ParseClock(s.StartTime)
		se, _ := domain.ParseClock(s.EndTime)
		if domain.ClockRangesOverlap(ns, ne, ss, se) {
			return true, nil
		}
	}
	return false, nil
}

// mutateSlot applies fn atomically, mapping a failed domain check to a failed precondition
// the way the conditional Mongo writes do.
func (r *fakeSlotRepo) mutateSlot(id primitive.ObjectID, fn func(*domain.Slot) error) (*domain.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	work := cloneSlot(s)
	if err := fn(work); err != nil {
		return nil, repository.ErrPreconditionFailed
	}
	r.slots[id] = work
	return cloneSlot(work), nil
}

func (r *fakeSlotRepo) AddRequest(_ context.Context, slotID primitive.ObjectID, req domain.BookingRequest) (*domain.Slot, error) {
	return r.mutateSlot(slotID, func(s *domain.Slot) error { return s.AddRequest(req.UserID, req.RequestedAt) })
}

func (r *fakeSlotRepo) Approve(_ context.Context, slotID, userID primitive.ObjectID, link string) (*domain.Slot, error) {
	if r.approveErr != nil {
		return nil, r.approveErr
	}
	return r.mutateSlot(slotID, func(s *domain.Slot) error { return s.Approve(userID, link) })
}

func (r *fakeSlotRepo) UpdateRequest(_ context.Context, slotID, userID primitive.ObjectID, from domain.RequestStatus, update repository.RequestUpdate) (*domain.Slot, error) {
	return r.mutateSlot(slotID, func(s *domain.Slot) error {
		i := s.FindRequest(userID)
		if i < 0 || s.RequestedBy[i].Status != from {
			return errors.New("no match")
		}
		s.RequestedBy[i].Status = update.Status
		if update.RejectionReason != "" {
			s.RequestedBy[i].RejectionReason = update.RejectionReason
		}
		return nil
	})
}

func (r *fakeSlotRepo) DeleteUnrequested(_ context.Context, slotID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[slotID]
	if !ok {
		return repository.ErrNotFound
	}
	if s.CheckDelete() != nil {
		return repository.ErrPreconditionFailed
	}
	delete(r.slots, slotID)
	return nil
}

func (r *fakeSlotRepo) DeleteUnbookedInRange(_ context.Context, trainerID primitive.ObjectID, from, to time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.slots {
		if s.TrainerID == trainerID && !s.IsBooked && !s.Date.Before(from) && s.Date.Before(to) {
			delete(r.slots, id)
			n++
		}
	}
	return n, nil
}

// --- schedules ---

type scheduleKey struct {
	trainerID primitive.ObjectID
	weekStart int64
}

type fakeScheduleRepo struct {
	mu        sync.Mutex
	templates map[scheduleKey]*domain.WeeklyScheduleTemplate
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{templates: map[scheduleKey]*domain.WeeklyScheduleTemplate{}}
}

func keyOf(trainerID primitive.ObjectID, weekStart time.Time) scheduleKey {
	return scheduleKey{trainerID, weekStart.Unix()}
}

// decoded returns a copy shaped the way the driver hands it back, with weekStart in UTC.
func decoded(tpl *domain.WeeklyScheduleTemplate) domain.WeeklyScheduleTemplate {
	out := *tpl
	out.WeekStart = tpl.WeekStart.UTC()
	out.Schedule = domain.CloneDays(tpl.Schedule)
	return out
}

func (r *fakeScheduleRepo) Upsert(_ context.Context, tpl *domain.WeeklyScheduleTemplate) (*domain.WeeklyScheduleTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := keyOf(tpl.TrainerID, tpl.WeekStart)
	saved := *tpl
	saved.Schedule = domain.CloneDays(tpl.Schedule)
	if prev, ok := r.templates[k]; ok {
		saved.ID = prev.ID
		saved.CreatedAt = prev.CreatedAt
	} else {
		saved.ID = primitive.NewObjectID()
	}
	r.templates[k] = &saved
	out := decoded(&saved)
	return &out, nil
}

func (r *fakeScheduleRepo) GetByTrainerAndWeek(_ context.Context, trainerID primitive.ObjectID, weekStart time.Time) (*domain.WeeklyScheduleTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tpl, ok := r.templates[keyOf(trainerID, weekStart)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := decoded(tpl)
	return &out, nil
}

func (r *fakeScheduleRepo) Delete(_ context.Context, trainerID primitive.ObjectID, weekStart time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := keyOf(trainerID, weekStart)
	if _, ok := r.templates[k]; !ok {
		return repository.ErrNotFound
	}
	delete(r.templates, k)
	return nil
}

func (r *fakeScheduleRepo) List(_ context.Context) ([]domain.WeeklyScheduleTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.WeeklyScheduleTemplate{}
	for _, tpl := range r.templates {
		out = append(out, decoded(tpl))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.Before(out[j].WeekStart) })
	return out, nil
}

// --- sessions ---

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.VideoCallSession
	// conflicts makes the next n updates fail as if another writer bumped the version.
	conflicts int
	updates   int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*domain.VideoCallSession{}}
}

func cloneSession(s *domain.VideoCallSession) *domain.VideoCallSession {
	c := *s
	c.Participants = append([]domain.Participant{}, s.Participants...)
	return &c
}

func (r *fakeSessionRepo) CreateIfAbsent(_ context.Context, s *domain.VideoCallSession) (*domain.VideoCallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sessions {
		if existing.SlotID == s.SlotID {
			return cloneSession(existing), nil
		}
	}
	stored := cloneSession(s)
	stored.ID = primitive.NewObjectID()
	stored.Version = 0
	r.sessions[stored.RoomID] = stored
	return cloneSession(stored), nil
}

func (r *fakeSessionRepo) GetByRoomID(_ context.Context, roomID string) (*domain.VideoCallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[roomID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneSession(s), nil
}

func (r *fakeSessionRepo) GetBySlotID(_ context.Context, slotID primitive.ObjectID) (*domain.VideoCallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.SlotID == slotID {
			return cloneSession(s), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeSessionRepo) Update(_ context.Context, s *domain.VideoCallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[s.RoomID]
	if !ok {
		return repository.ErrNotFound
	}
	if r.conflicts > 0 {
		r.conflicts--
		stored.Version++
		return repository.ErrPreconditionFailed
	}
	if stored.Version != s.Version {
		return repository.ErrPreconditionFailed
	}
	r.updates++
	s.Version++
	r.sessions[s.RoomID] = cloneSession(s)
	return nil
}

// --- entitlements ---

type planKey struct{ userID, trainerID primitive.ObjectID }

type fakeEntitlements struct {
	mu           sync.Mutex
	plans        map[planKey]*domain.Plan
	getErr       error
	decrementErr error
	restored     int
}

func newFakeEntitlements() *fakeEntitlements {
	return &fakeEntitlements{plans: map[planKey]*domain.Plan{}}
}

func (e *fakeEntitlements) setPlan(userID, trainerID primitive.ObjectID, planType string, credits int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plans[planKey{userID, trainerID}] = &domain.Plan{UserID: userID, TrainerID: trainerID, PlanType: planType, VideoCallsLeft: credits}
}

func (e *fakeEntitlements) credits(userID, trainerID primitive.ObjectID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.plans[planKey{userID, trainerID}]
	if !ok {
		return -1
	}
	return p.VideoCallsLeft
}

func (e *fakeEntitlements) GetPlan(_ context.Context, userID, trainerID primitive.ObjectID) (*domain.Plan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.getErr != nil {
		return nil, e.getErr
	}
	p, ok := e.plans[planKey{userID, trainerID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (e *fakeEntitlements) DecrementVideoCalls(_ context.Context, userID, trainerID primitive.ObjectID) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.decrementErr != nil {
		return false, e.decrementErr
	}
	p, ok := e.plans[planKey{userID, trainerID}]
	if !ok || p.PlanType != domain.PlanTypePro || p.VideoCallsLeft <= 0 {
		return false, nil
	}
	p.VideoCallsLeft--
	return true, nil
}

func (e *fakeEntitlements) RestoreVideoCall(_ context.Context, userID, trainerID primitive.ObjectID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.plans[planKey{userID, trainerID}]
	if !ok {
		return repository.ErrNotFound
	}
	p.VideoCallsLeft++
	e.restored++
	return nil
}

// --- notifier ---

type sentNotification struct {
	kind        string
	recipient   primitive.ObjectID
	trainerName string
	approved    bool
	reason      string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *fakeNotifier) SendSessionRequestNotification(_ context.Context, trainerID, _ primitive.ObjectID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentNotification{kind: "request", recipient: trainerID})
	return nil
}

func (n *fakeNotifier) SendSessionResponseNotification(_ context.Context, userID primitive.ObjectID, trainerName string, approved bool, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentNotification{kind: "response", recipient: userID, trainerName: trainerName, approved: approved, reason: reason})
	return nil
}

// --- directory ---

type fakeDirectory struct {
	users map[primitive.ObjectID]*domain.User
}

func (d *fakeDirectory) GetUser(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *u
	return &out, nil
}

// --- storage ---

type fakeStorage struct {
	objects map[string]bool
}

func (f *fakeStorage) GeneratePresignedUploadURL(_ context.Context, key, contentType string, _ time.Duration) (string, error) {
	return fmt.Sprintf("https://bucket.test/%s?op=put&type=%s", key, contentType), nil
}

func (f *fakeStorage) GeneratePresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return fmt.Sprintf("https://bucket.test/%s?op=get", key), nil
}

func (f *fakeStorage) ObjectExists(_ context.Context, key string) (bool, error) {
	return f.objects[key], nil
}

// --- clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
