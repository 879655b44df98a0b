package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/fitness-sessions/internal/service"
	"alcyxob/fitness-sessions/internal/storage"
)

type VideoCallHandler struct {
	videoCallService service.VideoCallService
}

func NewVideoCallHandler(videoCallService service.VideoCallService) *VideoCallHandler {
	return &VideoCallHandler{videoCallService: videoCallService}
}

// --- DTOs ---

type CreateSessionRequest struct {
	SlotID string `json:"slotId" binding:"required"`
}

type RecordingUploadRequest struct {
	ContentType string `json:"contentType"`
}

type PresignedURLResponse struct {
	URL              string `json:"url"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}

// CreateSession godoc
// @Summary Get or create the call room of a booked slot
// @Tags VideoCall
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateSessionRequest true "Booked slot"
// @Success 200 {object} domain.VideoCallSession
// @Failure 403 {object} gin.H "Caller is not on the slot"
// @Failure 404 {object} gin.H "Slot not found"
// @Failure 409 {object} gin.H "Slot is not booked"
// @Router /video-calls [post]
func (h *VideoCallHandler) CreateSession(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	slotID, err := primitive.ObjectIDFromHex(req.SlotID)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid slotId format")
		return
	}

	session, err := h.videoCallService.CreateSession(c.Request.Context(), slotID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *VideoCallHandler) GetSession(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	session, err := h.videoCallService.GetSession(c.Request.Context(), c.Param("roomId"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *VideoCallHandler) CanJoin(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	allowed, err := h.videoCallService.CanJoin(c.Request.Context(), c.Param("roomId"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"canJoin": allowed})
}

// JoinCall godoc
// @Summary Enter the call room
// @Description Trainers join as "trainer", clients as "user". Rejoining reactivates the existing record.
// @Tags VideoCall
// @Produce json
// @Security BearerAuth
// @Param roomId path string true "Room ID"
// @Success 200 {object} domain.VideoCallSession
// @Failure 403 {object} gin.H "Caller is not a participant of the slot"
// @Failure 409 {object} gin.H "Too early, ended or full"
// @Router /video-calls/{roomId}/join [post]
func (h *VideoCallHandler) JoinCall(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	role, err := getUserRoleFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify role from token.")
		return
	}

	session, err := h.videoCallService.JoinCall(c.Request.Context(), c.Param("roomId"), userID, role.ParticipantType())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *VideoCallHandler) LeaveCall(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	session, err := h.videoCallService.LeaveCall(c.Request.Context(), c.Param("roomId"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *VideoCallHandler) EndCall(c *gin.Context) {
	session, err := h.videoCallService.EndCall(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *VideoCallHandler) GetActiveParticipants(c *gin.Context) {
	n, err := h.videoCallService.GetActiveParticipants(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activeParticipants": n})
}

// --- Recordings ---

// RecordingUploadURL returns a presigned PUT URL for the ended call's recording.
func (h *VideoCallHandler) RecordingUploadURL(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	var req RecordingUploadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}

	url, err := h.videoCallService.RecordingUploadURL(c.Request.Context(), c.Param("roomId"), userID, req.ContentType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, presigned(url))
}

func (h *VideoCallHandler) RecordingDownloadURL(c *gin.Context) {
	userID, ok := mustUserID(c)
	if !ok {
		return
	}
	url, err := h.videoCallService.RecordingDownloadURL(c.Request.Context(), c.Param("roomId"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, presigned(url))
}

func presigned(url string) PresignedURLResponse {
	return PresignedURLResponse{URL: url, ExpiresInSeconds: int(storage.DefaultPresignedURLExpiry.Seconds())}
}
