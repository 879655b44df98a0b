package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PlanTypePro is the only plan tier that grants video-call sessions.
const PlanTypePro = "pro"

// Plan is a client's entitlement record with a given trainer. It is owned by the
// host application's subscription module; this subsystem reads it and consumes credits.
type Plan struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         primitive.ObjectID `bson:"userId" json:"userId"`
	TrainerID      primitive.ObjectID `bson:"trainerId" json:"trainerId"`
	PlanType       string             `bson:"planType" json:"planType"`
	VideoCallsLeft int                `bson:"videoCallsLeft" json:"videoCallsLeft"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// CanBookVideoCall reports whether the plan currently allows requesting a session.
func (p *Plan) CanBookVideoCall() bool {
	return p != nil && p.PlanType == PlanTypePro && p.VideoCallsLeft > 0
}
