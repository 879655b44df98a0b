package domain

import "alcyxob/fitness-sessions/internal/apperror"

// Errors returned by the slot and call state transitions.
var (
	ErrSlotAlreadyBooked      = apperror.New(apperror.KindConflict, "slot is already booked")
	ErrDuplicateRequest       = apperror.New(apperror.KindConflict, "you have already requested this slot")
	ErrRequestNotFound        = apperror.New(apperror.KindNotFound, "no pending request from this user")
	ErrRequestNotPending      = apperror.New(apperror.KindConflict, "request is not pending")
	ErrSlotNotDeletable       = apperror.New(apperror.KindConflict, "slot has been booked or requested and cannot be deleted")
	ErrSlotNotBooked          = apperror.New(apperror.KindConflict, "slot is not booked")
	ErrSessionEnded           = apperror.New(apperror.KindConflict, "session ended")
	ErrRoomFull               = apperror.New(apperror.KindConflict, "room full")
	ErrTooEarly               = apperror.New(apperror.KindConflict, "too early")
	ErrParticipantNotInCall   = apperror.New(apperror.KindNotFound, "participant is not active in this call")
	ErrInvalidParticipantRole = apperror.New(apperror.KindValidation, "participant role must be user or trainer")
)

