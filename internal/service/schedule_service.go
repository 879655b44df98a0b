package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"alcyxob/fitness-sessions/internal/apperror"
	"alcyxob/fitness-sessions/internal/domain"
	"alcyxob/fitness-sessions/internal/repository"
)

// ScheduleResult describes one template save and the slot regeneration it triggered.
type ScheduleResult struct {
	Template     *domain.WeeklyScheduleTemplate `json:"template"`
	SlotsDeleted int64                          `json:"slotsDeleted"`
	SlotsCreated int                            `json:"slotsCreated"`
	// SlotsSkipped counts windows that collide with a booked slot kept from the previous generation.
	SlotsSkipped int `json:"slotsSkipped"`
}

// ResetSummary is the outcome of one weekly roll-forward batch.
type ResetSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type ScheduleService interface {
	CreateOrUpdateSchedule(ctx context.Context, trainerID primitive.ObjectID, weekStart time.Time, days []domain.DaySchedule) (*ScheduleResult, error)
	// GetTrainerSchedule looks up the template of the week containing weekStart, or of the current week when nil.
	GetTrainerSchedule(ctx context.Context, trainerID primitive.ObjectID, weekStart *time.Time) (*domain.WeeklyScheduleTemplate, error)
	DeleteSchedule(ctx context.Context, trainerID primitive.ObjectID, weekStart time.Time) error
	ResetWeeklySchedules(ctx context.Context) (ResetSummary, error)
}

// scheduleService implements the ScheduleService interface.
type scheduleService struct {
	schedules repository.ScheduleRepository
	slots     repository.SlotRepository
	opts      Options
}

// NewScheduleService creates a new instance of scheduleService.
func NewScheduleService(schedules repository.ScheduleRepository, slots repository.SlotRepository, opts Options) ScheduleService {
	return &scheduleService{
		schedules: schedules,
		slots:     slots,
		opts:      opts.withDefaults(),
	}
}

func (s *scheduleService) CreateOrUpdateSchedule(ctx context.Context, trainerID primitive.ObjectID, weekStart time.Time, days []domain.DaySchedule) (*ScheduleResult, error) {
	// 1. Validate the whole template before touching storage
	if trainerID == primitive.NilObjectID {
		return nil, apperror.Validation("trainer id is required", map[string]string{"trainerId": "required"})
	}
	normalized, err := domain.NormalizeDays(days, uuid.NewString)
	if err != nil {
		return nil, err
	}
	weekStart = domain.NormalizeWeekStart(weekStart, s.opts.Location)

	// 2. Replace the template wholesale
	saved, err := s.schedules.Upsert(ctx, &domain.WeeklyScheduleTemplate{
		TrainerID: trainerID,
		WeekStart: weekStart,
		Schedule:  normalized,
	})
	if err != nil {
		return nil, apperror.Internal("failed to save schedule", err)
	}

	// 3. Regenerate the week's slots
	result, err := s.regenerate(ctx, saved)
	if err != nil {
		return nil, err
	}

	s.opts.Logger.Info("schedule saved",
		zap.String("trainer_id", trainerID.Hex()),
		zap.Time("week_start", weekStart),
		zap.Int64("slots_deleted", result.SlotsDeleted),
		zap.Int("slots_created", result.SlotsCreated),
		zap.Int("slots_skipped", result.SlotsSkipped))
	return result, nil
}

// regenerate purges the week's unbooked slots and materializes one slot per active window.
// Booked slots survive, and a window that collides with one is not generated again.
// The steps are not transactional: if CreateMany fails the template is saved with a purged
// week, and saving the template again repairs it.
func (s *scheduleService) regenerate(ctx context.Context, tpl *domain.WeeklyScheduleTemplate) (*ScheduleResult, error) {
	weekStart, weekEnd := tpl.Week(s.opts.Location)

	deleted, err := s.slots.DeleteUnbookedInRange(ctx, tpl.TrainerID, weekStart, weekEnd)
	if err != nil {
		return nil, apperror.Internal("failed to purge unbooked slots", err)
	}

	booked, err := s.slots.GetBookedInRange(ctx, tpl.TrainerID, weekStart, weekEnd)
	if err != nil {
		return nil, apperror.Internal("failed to load booked slots", err)
	}

	slots, skipped := buildWeekSlots(tpl, weekStart, booked)
	created := 0
	if len(slots) > 0 {
		created, err = s.slots.CreateMany(ctx, slots)
		if err != nil {
			return nil, apperror.Internal("failed to create slots", err)
		}
	}
	s.opts.Metrics.SlotsGenerated(created)

	return &ScheduleResult{Template: tpl, SlotsDeleted: deleted, SlotsCreated: created, SlotsSkipped: skipped}, nil
}

// buildWeekSlots dates each active window from weekStart, which must be Monday 00:00 in the
// schedule location so AddDate lands on local midnight across DST changes.
func buildWeekSlots(tpl *domain.WeeklyScheduleTemplate, weekStart time.Time, booked []domain.Slot) ([]domain.Slot, int) {
	var slots []domain.Slot
	skipped := 0
	for _, day := range tpl.Schedule {
		if !day.IsActive {
			continue
		}
		offset := domain.DayOffset(day.Day)
		if offset < 0 {
			continue
		}
		date := weekStart.AddDate(0, 0, offset)
		for _, w := range day.Slots {
			if collidesWithBooked(booked, date, w.StartTime, w.EndTime) {
				skipped++
				continue
			}
			slots = append(slots, domain.Slot{
				TrainerID:      tpl.TrainerID,
				Day:            day.Day,
				Date:           date,
				StartTime:      w.StartTime,
				EndTime:        w.EndTime,
				WeekStart:      &weekStart,
				ScheduleSlotID: w.ID,
			})
		}
	}
	return slots, skipped
}

func collidesWithBooked(booked []domain.Slot, date time.Time, start, end string) bool {
	ws, err1 := domain.ParseClock(start)
	we, err2 := domain.ParseClock(end)
	if err1 != nil || err2 != nil {
		return false
	}
	for _, b := range booked {
		if !b.Date.Equal(date) {
			continue
		}
		bs, err1 := domain.ParseClock(b.StartTime)
		be, err2 := domain.ParseClock(b.EndTime)
		if err1 != nil || err2 != nil {
			continue
		}
		if domain.ClockRangesOverlap(ws, we, bs, be) {
			return true
		}
	}
	return false
}

func (s *scheduleService) GetTrainerSchedule(ctx context.Context, trainerID primitive.ObjectID, weekStart *time.Time) (*domain.WeeklyScheduleTemplate, error) {
	week := s.opts.Now()
	if weekStart != nil {
		week = *weekStart
	}
	tpl, err := s.schedules.GetByTrainerAndWeek(ctx, trainerID, domain.NormalizeWeekStart(week, s.opts.Location))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, apperror.Internal("failed to load schedule", err)
	}
	return tpl, nil
}

func (s *scheduleService) DeleteSchedule(ctx context.Context, trainerID primitive.ObjectID, weekStart time.Time) error {
	weekStart, weekEnd := domain.WeekBounds(weekStart, s.opts.Location)

	if _, err := s.schedules.GetByTrainerAndWeek(ctx, trainerID, weekStart); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrScheduleNotFound
		}
		return apperror.Internal("failed to load schedule", err)
	}

	deleted, err := s.slots.DeleteUnbookedInRange(ctx, trainerID, weekStart, weekEnd)
	if err != nil {
		return apperror.Internal("failed to purge unbooked slots", err)
	}
	if err := s.schedules.Delete(ctx, trainerID, weekStart); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrScheduleNotFound
		}
		return apperror.Internal("failed to delete schedule", err)
	}

	s.opts.Logger.Info("schedule deleted",
		zap.String("trainer_id", trainerID.Hex()),
		zap.Time("week_start", weekStart),
		zap.Int64("slots_deleted", deleted))
	return nil
}

// ResetWeeklySchedules rolls each trainer's latest template forward one week. Older
// templates are never copied, so a week the trainer deleted stays deleted once a later week
// exists. A trainer whose latest template is already ahead of the current week is skipped,
// which makes re-running the batch in the same week harmless.
func (s *scheduleService) ResetWeeklySchedules(ctx context.Context) (ResetSummary, error) {
	var summary ResetSummary

	templates, err := s.schedules.List(ctx)
	if err != nil {
		return summary, apperror.Internal("failed to list schedules", err)
	}

	latest, superseded := latestPerTrainer(templates, s.opts.Location)
	summary.Skipped = superseded
	currentWeek := domain.NormalizeWeekStart(s.opts.Now(), s.opts.Location)

	for _, tpl := range latest {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		weekStart, next := tpl.Week(s.opts.Location)
		if weekStart.After(currentWeek) {
			summary.Skipped++
			continue
		}

		// a save for the next week may have landed since List
		_, err := s.schedules.GetByTrainerAndWeek(ctx, tpl.TrainerID, next)
		if err == nil {
			summary.Skipped++
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			summary.Failed++
			s.opts.Logger.Error("weekly reset lookup failed", zap.String("trainer_id", tpl.TrainerID.Hex()), zap.Error(err))
			continue
		}

		if _, err := s.CreateOrUpdateSchedule(ctx, tpl.TrainerID, next, domain.CloneDays(tpl.Schedule)); err != nil {
			summary.Failed++
			s.opts.Logger.Error("weekly reset failed",
				zap.String("trainer_id", tpl.TrainerID.Hex()),
				zap.Time("week_start", next),
				zap.Error(err))
			continue
		}
		summary.Processed++
	}

	s.opts.Logger.Info("weekly schedules reset",
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// latestPerTrainer keeps the newest template of each trainer, in first-seen order, and
// counts the older ones it dropped.
func latestPerTrainer(templates []domain.WeeklyScheduleTemplate, loc *time.Location) ([]domain.WeeklyScheduleTemplate, int) {
	index := map[primitive.ObjectID]int{}
	var latest []domain.WeeklyScheduleTemplate
	for _, tpl := range templates {
		i, seen := index[tpl.TrainerID]
		if !seen {
			index[tpl.TrainerID] = len(latest)
			latest = append(latest, tpl)
			continue
		}
		current, _ := latest[i].Week(loc)
		candidate, _ := tpl.Week(loc)
		if candidate.After(current) {
			latest[i] = tpl
		}
	}
	return latest, len(templates) - len(latest)
}
