package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"alcyxob/fitness-sessions/internal/apperror"
	"alcyxob/fitness-sessions/internal/domain"
	"alcyxob/fitness-sessions/internal/service"
)

type ScheduleHandler struct {
	scheduleService service.ScheduleService
	loc             *time.Location
}

func NewScheduleHandler(scheduleService service.ScheduleService, loc *time.Location) *ScheduleHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ScheduleHandler{scheduleService: scheduleService, loc: loc}
}

// --- DTOs ---

type SaveScheduleRequest struct {
	WeekStart string               `json:"weekStart" binding:"required"` // YYYY-MM-DD, any day of the week
	Schedule  []domain.DaySchedule `json:"schedule" binding:"required"`
}

// SaveSchedule godoc
// @Summary Create or replace the weekly availability template
// @Description Validates the whole template, stores it and regenerates the week's unbooked slots.
// @Tags Trainer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param schedule body SaveScheduleRequest true "Weekly template"
// @Success 200 {object} service.ScheduleResult
// @Failure 400 {object} gin.H "Validation error"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 403 {object} gin.H "Forbidden"
// @Router /trainer/schedule [put]
func (h *ScheduleHandler) SaveSchedule(c *gin.Context) {
	var req SaveScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	trainerID, ok := mustUserID(c)
	if !ok {
		return
	}
	weekStart, ok := h.parseDate(c, "weekStart", req.WeekStart)
	if !ok {
		return
	}

	result, err := h.scheduleService.CreateOrUpdateSchedule(c.Request.Context(), trainerID, weekStart, req.Schedule)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetSchedule godoc
// @Summary Get the trainer's template for a week
// @Tags Trainer
// @Produce json
// @Security BearerAuth
// @Param weekStart query string false "Any date of the week (YYYY-MM-DD); defaults to the current week"
// @Success 200 {object} domain.WeeklyScheduleTemplate
// @Failure 404 {object} gin.H "No template for that week"
// @Router /trainer/schedule [get]
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	trainerID, ok := mustUserID(c)
	if !ok {
		return
	}

	var weekStart *time.Time
	if raw := c.Query("weekStart"); raw != "" {
		parsed, ok := h.parseDate(c, "weekStart", raw)
		if !ok {
			return
		}
		weekStart = &parsed
	}

	tpl, err := h.scheduleService.GetTrainerSchedule(c.Request.Context(), trainerID, weekStart)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

// DeleteSchedule removes a week's template and its unbooked slots.
func (h *ScheduleHandler) DeleteSchedule(c *gin.Context) {
	trainerID, ok := mustUserID(c)
	if !ok {
		return
	}
	weekStart, ok := h.parseDate(c, "weekStart", c.Query("weekStart"))
	if !ok {
		return
	}

	if err := h.scheduleService.DeleteSchedule(c.Request.Context(), trainerID, weekStart); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ScheduleHandler) parseDate(c *gin.Context, field, value string) (time.Time, bool) {
	if value == "" {
		respondError(c, apperror.Validation(field+" is required", map[string]string{field: "required"}))
		return time.Time{}, false
	}
	t, err := domain.ParseDate(value, h.loc)
	if err != nil {
		respondError(c, apperror.Validation("dates must be YYYY-MM-DD", map[string]string{field: value}))
		return time.Time{}, false
	}
	return t, true
}
