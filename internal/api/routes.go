package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"alcyxob/fitness-sessions/internal/domain"
	"alcyxob/fitness-sessions/internal/metrics"
	"alcyxob/fitness-sessions/internal/service"
)

// RouterConfig carries what the routes need besides the services.
type RouterConfig struct {
	JWTSecret string
	Location  *time.Location
	Metrics   *metrics.Metrics
}

func SetupRoutes(
	router *gin.Engine,
	cfg RouterConfig,
	scheduleService service.ScheduleService,
	bookingService service.BookingService,
	videoCallService service.VideoCallService,
) {
	scheduleHandler := NewScheduleHandler(scheduleService, cfg.Location)
	bookingHandler := NewBookingHandler(bookingService, cfg.Location)
	videoCallHandler := NewVideoCallHandler(videoCallService)

	authMiddleware := AuthMiddleware(cfg.JWTSecret)

	router.Use(MetricsMiddleware(cfg.Metrics))

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))

	apiV1 := router.Group("/api/v1")
	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", func(c *gin.Context) {
			userID, err := getUserIDFromContext(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
				return
			}
			role, _ := getUserRoleFromContext(c)
			c.JSON(http.StatusOK, gin.H{"userId": userID.Hex(), "role": role})
		})

		// --- Trainer Specific Routes ---
		trainerApiGroup := protected.Group("/trainer")
		trainerApiGroup.Use(RoleMiddleware(domain.RoleTrainer))
		{
			// Weekly template
			trainerApiGroup.PUT("/schedule", scheduleHandler.SaveSchedule)
			trainerApiGroup.GET("/schedule", scheduleHandler.GetSchedule)
			trainerApiGroup.DELETE("/schedule", scheduleHandler.DeleteSchedule)

			// Slots and requests
			trainerApiGroup.POST("/slots", bookingHandler.CreateSlot)
			trainerApiGroup.GET("/slots", bookingHandler.GetTrainerSlots)
			trainerApiGroup.DELETE("/slots/:slotId", bookingHandler.DeleteSlot)
			trainerApiGroup.GET("/requests", bookingHandler.GetTrainerRequests)
			trainerApiGroup.POST("/slots/:slotId/requests/:userId/approve", bookingHandler.ApproveRequest)
			trainerApiGroup.POST("/slots/:slotId/requests/:userId/reject", bookingHandler.RejectRequest)
		}

		// --- Client Specific Routes ---
		clientApiGroup := protected.Group("/client")
		clientApiGroup.Use(RoleMiddleware(domain.RoleClient))
		{
			clientApiGroup.GET("/slots/available", bookingHandler.GetAvailableSlots)
			clientApiGroup.GET("/sessions", bookingHandler.GetUserSessions)
			clientApiGroup.POST("/slots/:slotId/request", bookingHandler.RequestSession)
		}

		// --- Video Calls (either role) ---
		callGroup := protected.Group("/video-calls")
		callGroup.Use(RoleMiddleware(domain.RoleTrainer, domain.RoleClient))
		{
			callGroup.POST("", videoCallHandler.CreateSession)
			callGroup.GET("/:roomId", videoCallHandler.GetSession)
			callGroup.GET("/:roomId/can-join", videoCallHandler.CanJoin)
			callGroup.POST("/:roomId/join", videoCallHandler.JoinCall)
			callGroup.POST("/:roomId/leave", videoCallHandler.LeaveCall)
			callGroup.POST("/:roomId/end", videoCallHandler.EndCall)
			callGroup.GET("/:roomId/participants", videoCallHandler.GetActiveParticipants)
			callGroup.POST("/:roomId/recording/upload-url", videoCallHandler.RecordingUploadURL)
			callGroup.GET("/:roomId/recording", videoCallHandler.RecordingDownloadURL)
		}
	}
}
