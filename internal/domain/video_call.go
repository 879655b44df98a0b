package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionStatus is the lifecycle state of a call room.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionActive    SessionStatus = "active"
	SessionEnded     SessionStatus = "ended"
)

// ParticipantType is the role a participant joins with.
type ParticipantType string

const (
	ParticipantUser    ParticipantType = "user"
	ParticipantTrainer ParticipantType = "trainer"
)

// MaxActiveParticipants caps concurrent occupancy of a room.
const MaxActiveParticipants = 2

// DefaultJoinLeadTime is how long before the scheduled start a participant may join.
const DefaultJoinLeadTime = 10 * time.Minute

// Participant is one identity's presence record in a room. A reconnect reuses the record.
type Participant struct {
	UserID   primitive.ObjectID `bson:"userId" json:"userId"`
	UserType ParticipantType    `bson:"userType" json:"userType"`
	JoinedAt time.Time          `bson:"joinedAt" json:"joinedAt"`
	LeftAt   *time.Time         `bson:"leftAt,omitempty" json:"leftAt,omitempty"`
	IsActive bool               `bson:"isActive" json:"isActive"`
}

// VideoCallSession is the call room bound 1:1 to a booked slot.
// Version is bumped on every write and guards concurrent read-modify-write cycles.
type VideoCallSession struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SlotID             primitive.ObjectID `bson:"slotId" json:"slotId"`
	RoomID             string             `bson:"roomId" json:"roomId"`
	Participants       []Participant      `bson:"participants" json:"participants"`
	Status             SessionStatus      `bson:"status" json:"status"`
	ScheduledStartTime time.Time          `bson:"scheduledStartTime" json:"scheduledStartTime"`
	ScheduledEndTime   time.Time          `bson:"scheduledEndTime" json:"scheduledEndTime"`
	ActualStartTime    *time.Time         `bson:"actualStartTime,omitempty" json:"actualStartTime,omitempty"`
	ActualEndTime      *time.Time         `bson:"actualEndTime,omitempty" json:"actualEndTime,omitempty"`
	Version            int64              `bson:"version" json:"-"`
	CreatedAt          time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time          `bson:"updatedAt" json:"updatedAt"`
}

const roomIDPrefix = "session_"

// NewRoomID mints "session_{slotId}_{uuid}".
func NewRoomID(slotID primitive.ObjectID) string {
	return fmt.Sprintf("%s%s_%s", roomIDPrefix, slotID.Hex(), uuid.NewString())
}

// RoomURL builds the join URL for a room.
func RoomURL(baseURL, basePath, roomID string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.Trim(basePath, "/") + "/" + roomID
}

// RoomIDFromURL extracts the room id of slotID from a link built by RoomURL.
func RoomIDFromURL(link string, slotID primitive.ObjectID) (string, bool) {
	i := strings.LastIndex(link, "/")
	roomID := link[i+1:]
	if !strings.HasPrefix(roomID, roomIDPrefix+slotID.Hex()+"_") {
		return "", false
	}
	return roomID, true
}

// ActiveCount is the number of currently active participants.
func (s *VideoCallSession) ActiveCount() int {
	n := 0
	for _, p := range s.Participants {
		if p.IsActive {
			n++
		}
	}
	return n
}

func (s *VideoCallSession) findParticipant(userID primitive.ObjectID) int {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return i
		}
	}
	return -1
}

// Join admits userID into the room at now. Gates are checked in order:
// ended (re-entry allowed until the scheduled end), capacity, then join window.
func (s *VideoCallSession) Join(userID primitive.ObjectID, role ParticipantType, now time.Time, leadTime time.Duration) error {
	if role != ParticipantUser && role != ParticipantTrainer {
		return ErrInvalidParticipantRole
	}
	if s.Status == SessionEnded && now.After(s.ScheduledEndTime) {
		return ErrSessionEnded
	}

	idx := s.findParticipant(userID)
	alreadyActive := idx >= 0 && s.Participants[idx].IsActive
	active := s.ActiveCount()
	if active >= MaxActiveParticipants && !alreadyActive {
		return ErrRoomFull
	}
	if now.Before(s.ScheduledStartTime.Add(-leadTime)) {
		return ErrTooEarly
	}

	if idx >= 0 {
		p := &s.Participants[idx]
		p.IsActive = true
		p.JoinedAt = now
		p.LeftAt = nil
		p.UserType = role
	} else {
		s.Participants = append(s.Participants, Participant{UserID: userID, UserType: role, JoinedAt: now, IsActive: true})
	}

	if active == 0 && !alreadyActive {
		if s.ActualStartTime == nil {
			started := now
			s.ActualStartTime = &started
		}
		s.ActualEndTime = nil
		s.Status = SessionActive
	}
	return nil
}

// Leave marks userID inactive; the session ends when the room empties.
func (s *VideoCallSession) Leave(userID primitive.ObjectID, now time.Time) error {
	idx := s.findParticipant(userID)
	if idx < 0 || !s.Participants[idx].IsActive {
		return ErrParticipantNotInCall
	}
	left := now
	s.Participants[idx].IsActive = false
	s.Participants[idx].LeftAt = &left
	if s.ActiveCount() == 0 {
		s.markEnded(now)
	}
	return nil
}

// End force-terminates the session. It reports whether anything changed, so a second
// call leaves the recorded end state untouched.
func (s *VideoCallSession) End(now time.Time) bool {
	changed := false
	for i := range s.Participants {
		if s.Participants[i].IsActive {
			left := now
			s.Participants[i].IsActive = false
			s.Participants[i].LeftAt = &left
			changed = true
		}
	}
	if s.Status != SessionEnded {
		changed = true
	}
	if changed {
		s.markEnded(now)
	}
	return changed
}

func (s *VideoCallSession) markEnded(now time.Time) {
	ended := now
	s.Status = SessionEnded
	s.ActualEndTime = &ended
}
