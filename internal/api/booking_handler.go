package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"alcyxob/fitness-sessions/internal/apperror"
	"alcyxob/fitness-sessions/internal/domain"
	"alcyxob/fitness-sessions/internal/service"
)

// BookingHandler serves both sides of the request workflow: trainer slot management
// and the client's browse and request endpoints.
type BookingHandler struct {
	bookingService service.BookingService
	loc            *time.Location
}

func NewBookingHandler(bookingService service.BookingService, loc *time.Location) *BookingHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &BookingHandler{bookingService: bookingService, loc: loc}
}

// --- DTOs ---

type CreateSlotRequest struct {
	Date      string `json:"date" binding:"required"`      // YYYY-MM-DD
	StartTime string `json:"startTime" binding:"required"` // HH:MM
	EndTime   string `json:"endTime" binding:"required"`   // HH:MM
}

type RejectRequestBody struct {
	Reason string `json:"reason"`
}

// --- Trainer endpoints ---

// CreateSlot godoc
// @Summary Add a one-off slot outside the weekly template
// @Tags Trainer
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param slot body CreateSlotRequest true "Slot date and times"
// @Success 201 {object} domain.Slot
// @Failure 400 {object} gin.H "Invalid times"
// @Failure 409 {object} gin.H "Overlaps an existing slot"
// @Router /trainer/slots [post]
func (h *BookingHandler) CreateSlot(c *gin.Context) {
	var req CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	trainerID, ok := mustUserID(c)
	if !ok {
		return
	}
	date, err := domain.ParseDate(req.Date, h.loc)
	if err != nil {
		respondError(c, apperror.Validation("dates must be YYYY-MM-DD", map[string]string{"date": req.Date}))
		return
	}

	slot, err := h.bookingService.CreateSlot(c.Request.Context(), trainerID, date, req.StartTime, req.EndTime)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, slot)
}

func (h *BookingHandler) GetTrainerSlots(c *gin.Context) {
	trainerID, ok := mustUserID(c)
	if !ok {
		return
	}
	slots, err := h.bookingService.GetTrainerSlots(c.Request.Context(), trainerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNilSlots(slots))
}

func (h *BookingHandler) DeleteSlot(c *gin.Context) {
	trainerID, ok := mustUserID(c)
	if !ok {
		return
	}
	slotID, ok := pathObjectID(c, "slotId")
	if !ok {
		return
	}
	if err := h.bookingService.DeleteSlot(c.Request.Context(), slotID, trainerID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetTrainerRequests lists the trainer's slots that carry at least one pending request.
func (h *BookingHandler) GetTrainerRequests(c *gin.Context) {
	trainerID, ok := mustUserID(c)
	if !ok {
		return
	}
	slots, err := h.bookingService.GetTrainerRequests(c.Request.Context(), trainerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNilSlots(slots))
}

// ApproveRequest godoc
// @Summary Approve a client's pending request
// @Description Consumes one video call credit, books the slot and closes competing requests.
// @Tags Trainer
// @Produce json
// @Security BearerAuth
// @Param slotId path string true "Slot ID"
// @Param userId path string true "Requesting client ID"
// @Success 200 {object} domain.Slot
// @Failure 402 {object} gin.H "Client has no video call credits left"
// @Failure 403 {object} gin.H "Slot belongs to another trainer"
// @Failure 404 {object} gin.H "Slot or request not found"
// @Failure 409 {object} gin.H "Slot already booked"
// @Router /trainer/slots/{slotId}/requests/{userId}/approve [post]
func (h *BookingHandler) ApproveRequest(c *gin.Context) {
	trainerID, ok := mustUserID(c)
	if !ok {
		return
	}
	slotID, ok := pathObjectID(c, "slotId")
	if !ok {
		return
	}
	userID, ok := pathObjectID(c, "userId")
	if !ok {
		return
	}

	slot, err := h.bookingService.ApproveRequest(c.Request.Context(), slotID, userID, trainerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

// RejectRequest declines a pending request. The body is optional.
func (h *BookingHandler) RejectRequest(c *gin.Context) {
	trainerID, ok := mustUserID(c)
	if !ok {
		return
	}
	slotID, ok := pathObjectID(c, "slotId")
	if !ok {
		return
	}
	userID, ok := pathObjectID(c, "userId")
	if !ok {
		return
	}

	var body RejectRequestBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}

	slot, err := h.bookingService.RejectRequest(c.Request.Context(), slotID, userID, trainerID, body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

// --- Client endpoints ---

// GetAvailableSlots lists the open upcoming slots of the caller's trainer.
func (h *BookingHandler) GetAvailableSlots(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	slots, err := h.bookingService.GetAvailableSlots(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNilSlots(slots))
}

func (h *BookingHandler) GetUserSessions(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	slots, err := h.bookingService.GetUserSessions(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNilSlots(slots))
}

// RequestSession godoc
// @Summary Ask for an open slot
// @Tags Client
// @Produce json
// @Security BearerAuth
// @Param slotId path string true "Slot ID"
// @Success 201 {object} domain.Slot
// @Failure 404 {object} gin.H "Slot not found"
// @Failure 409 {object} gin.H "Slot booked or already requested"
// @Router /client/slots/{slotId}/request [post]
func (h *BookingHandler) RequestSession(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	slotID, ok := pathObjectID(c, "slotId")
	if !ok {
		return
	}

	slot, err := h.bookingService.RequestSession(c.Request.Context(), slotID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, slot)
}

// nonNilSlots makes empty lists serialize as [] rather than null.
func nonNilSlots(slots []domain.Slot) []domain.Slot {
	if slots == nil {
		return []domain.Slot{}
	}
	return slots
}
