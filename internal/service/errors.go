package service

import "alcyxob/fitness-sessions/internal/apperror"

// --- Error Definitions ---
var (
	ErrSlotNotFound       = apperror.New(apperror.KindNotFound, "slot not found")
	ErrScheduleNotFound   = apperror.New(apperror.KindNotFound, "schedule not found for this week")
	ErrSessionNotFound    = apperror.New(apperror.KindNotFound, "video call session not found")
	ErrUserNotFound       = apperror.New(apperror.KindNotFound, "user not found")
	ErrRecordingNotFound  = apperror.New(apperror.KindNotFound, "no recording for this session")
	ErrNotSlotOwner       = apperror.New(apperror.KindAuthorization, "you do not own this slot")
	ErrNotParticipant     = apperror.New(apperror.KindAuthorization, "forbidden")
	ErrNoVideoCallCredits = apperror.New(apperror.KindResourceExhausted, "no video call credits left on a pro plan")
	ErrSlotOverlap        = apperror.New(apperror.KindConflict, "slot overlaps an existing slot")
	ErrConcurrentUpdate   = apperror.New(apperror.KindConflict, "resource was modified concurrently, please retry")
	ErrRecordingNotReady  = apperror.New(apperror.KindConflict, "recording can be uploaded once the session has ended")
	ErrInvalidSlotTime    = apperror.New(apperror.KindValidation, "slot must start before it ends and last exactly 60 minutes")
	ErrStorageDisabled    = apperror.New(apperror.KindInternal, "recording storage is not configured")
)
