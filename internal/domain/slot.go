package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RequestStatus tracks a single booking request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// ReasonApprovedForAnother is stored on requests closed by another user's approval.
const ReasonApprovedForAnother = "slot approved for another user"

// BookingRequest is a client's claim on a slot, embedded in the slot document.
type BookingRequest struct {
	UserID          primitive.ObjectID `bson:"userId" json:"userId"`
	RequestedAt     time.Time          `bson:"requestedAt" json:"requestedAt"`
	Status          RequestStatus      `bson:"status" json:"status"`
	RejectionReason string             `bson:"rejectionReason,omitempty" json:"rejectionReason,omitempty"`
}

// Slot is a concrete, date-stamped bookable interval of one trainer.
// Invariant: IsBooked is true iff exactly one request is approved and BookedBy is that user.
type Slot struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	TrainerID     primitive.ObjectID  `bson:"trainerId" json:"trainerId"`
	Day           string              `bson:"day,omitempty" json:"day,omitempty"`
	Date          time.Time           `bson:"date" json:"date"`
	StartTime     string              `bson:"startTime" json:"startTime"`
	EndTime       string              `bson:"endTime" json:"endTime"`
	IsBooked      bool                `bson:"isBooked" json:"isBooked"`
	BookedBy      *primitive.ObjectID `bson:"bookedBy,omitempty" json:"bookedBy,omitempty"`
	RequestedBy   []BookingRequest    `bson:"requestedBy" json:"requestedBy"`
	VideoCallLink string              `bson:"videoCallLink,omitempty" json:"videoCallLink,omitempty"`
	// Traceability back to the weekly template for generated slots.
	WeekStart      *time.Time `bson:"weekStart,omitempty" json:"weekStart,omitempty"`
	ScheduleSlotID string     `bson:"scheduleSlotId,omitempty" json:"scheduleSlotId,omitempty"`
	CreatedAt      time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// FindRequest returns the index of userID's request, or -1.
func (s *Slot) FindRequest(userID primitive.ObjectID) int {
	for i := range s.RequestedBy {
		if s.RequestedBy[i].UserID == userID {
			return i
		}
	}
	return -1
}

// IsOwnedBy reports whether trainerID owns the slot.
func (s *Slot) IsOwnedBy(trainerID primitive.ObjectID) bool {
	return s.TrainerID == trainerID
}

// IsParticipant reports whether userID is the trainer or the booked client.
func (s *Slot) IsParticipant(userID primitive.ObjectID) bool {
	if s.TrainerID == userID {
		return true
	}
	return s.BookedBy != nil && *s.BookedBy == userID
}

// CheckRequest validates that userID may add a new request.
// Any earlier request, whatever its status, blocks another one.
func (s *Slot) CheckRequest(userID primitive.ObjectID) error {
	if s.IsBooked {
		return ErrSlotAlreadyBooked
	}
	if s.FindRequest(userID) >= 0 {
		return ErrDuplicateRequest
	}
	return nil
}

// AddRequest appends a pending request for userID.
func (s *Slot) AddRequest(userID primitive.ObjectID, at time.Time) error {
	if err := s.CheckRequest(userID); err != nil {
		return err
	}
	s.RequestedBy = append(s.RequestedBy, BookingRequest{UserID: userID, RequestedAt: at, Status: RequestPending})
	return nil
}

// CheckApprove validates that userID's request can be approved.
func (s *Slot) CheckApprove(userID primitive.ObjectID) error {
	if s.IsBooked {
		return ErrSlotAlreadyBooked
	}
	i := s.FindRequest(userID)
	if i < 0 || s.RequestedBy[i].Status != RequestPending {
		return ErrRequestNotFound
	}
	return nil
}

// Approve books the slot for userID and rejects every other open request.
func (s *Slot) Approve(userID primitive.ObjectID, videoCallLink string) error {
	if err := s.CheckApprove(userID); err != nil {
		return err
	}
	for i := range s.RequestedBy {
		r := &s.RequestedBy[i]
		switch {
		case r.UserID == userID:
			r.Status = RequestApproved
		case r.Status == RequestPending:
			r.Status = RequestRejected
			r.RejectionReason = ReasonApprovedForAnother
		}
	}
	booked := userID
	s.IsBooked = true
	s.BookedBy = &booked
	s.VideoCallLink = videoCallLink
	return nil
}

// CheckReject validates that userID's request can be rejected.
func (s *Slot) CheckReject(userID primitive.ObjectID) error {
	i := s.FindRequest(userID)
	if i < 0 {
		return ErrRequestNotFound
	}
	if s.RequestedBy[i].Status != RequestPending {
		return ErrRequestNotPending
	}
	return nil
}

// Reject closes userID's pending request with reason.
func (s *Slot) Reject(userID primitive.ObjectID, reason string) error {
	if err := s.CheckReject(userID); err != nil {
		return err
	}
	i := s.FindRequest(userID)
	s.RequestedBy[i].Status = RequestRejected
	s.RequestedBy[i].RejectionReason = reason
	return nil
}

// CheckDelete allows deletion only of a slot nobody has booked or ever requested.
func (s *Slot) CheckDelete() error {
	if s.IsBooked || len(s.RequestedBy) > 0 {
		return ErrSlotNotDeletable
	}
	return nil
}

// ApprovedCount counts approved requests; it is never more than one.
func (s *Slot) ApprovedCount() int {
	n := 0
	for _, r := range s.RequestedBy {
		if r.Status == RequestApproved {
			n++
		}
	}
	return n
}
