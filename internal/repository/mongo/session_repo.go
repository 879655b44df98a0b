package mongo

import (
	"alcyxob/fitness-sessions/internal/domain"
	"alcyxob/fitness-sessions/internal/repository"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const sessionCollectionName = "video_call_sessions"

// mongoSessionRepository implements repository.SessionRepository with a version column
// for optimistic concurrency on participant changes.
type mongoSessionRepository struct {
	collection *mongo.Collection
}

// NewMongoSessionRepository creates a new video call session repository backed by MongoDB.
func NewMongoSessionRepository(db *mongo.Database) repository.SessionRepository {
	return &mongoSessionRepository{
		collection: db.Collection(sessionCollectionName),
	}
}

func sessionInsertDoc(s *domain.VideoCallSession, now time.Time) bson.M {
	participants := s.Participants
	if participants == nil {
		participants = []domain.Participant{}
	}
	return bson.M{
		"roomId":             s.RoomID,
		"participants":       participants,
		"status":             s.Status,
		"scheduledStartTime": s.ScheduledStartTime,
		"scheduledEndTime":   s.ScheduledEndTime,
		"version":            int64(0),
		"createdAt":          now,
		"updatedAt":          now,
	}
}

// CreateIfAbsent upserts on slotId with $setOnInsert so concurrent creators converge on one room.
func (r *mongoSessionRepository) CreateIfAbsent(ctx context.Context, s *domain.VideoCallSession) (*domain.VideoCallSession, error) {
	filter := bson.M{"slotId": s.SlotID}
	update := bson.M{"$setOnInsert": sessionInsertDoc(s, time.Now().UTC())}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored domain.VideoCallSession
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return r.GetBySlotID(ctx, s.SlotID)
		}
		return nil, err
	}
	return &stored, nil
}

func (r *mongoSessionRepository) findOne(ctx context.Context, filter bson.M) (*domain.VideoCallSession, error) {
	var s domain.VideoCallSession
	err := r.collection.FindOne(ctx, filter).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *mongoSessionRepository) GetByRoomID(ctx context.Context, roomID string) (*domain.VideoCallSession, error) {
	return r.findOne(ctx, bson.M{"roomId": roomID})
}

func (r *mongoSessionRepository) GetBySlotID(ctx context.Context, slotID primitive.ObjectID) (*domain.VideoCallSession, error) {
	return r.findOne(ctx, bson.M{"slotId": slotID})
}

// Update writes s only if nobody else wrote since it was read.
func (r *mongoSessionRepository) Update(ctx context.Context, s *domain.VideoCallSession) error {
	next := *s
	next.Version = s.Version + 1
	next.UpdatedAt = time.Now().UTC()

	result, err := r.collection.ReplaceOne(ctx, versionFilter(s.ID, s.Version), &next)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		n, err := r.collection.CountDocuments(ctx, bson.M{"_id": s.ID}, options.Count().SetLimit(1))
		if err != nil {
			return err
		}
		if n == 0 {
			return repository.ErrNotFound
		}
		return repository.ErrPreconditionFailed
	}
	*s = next
	return nil
}

func versionFilter(id primitive.ObjectID, version int64) bson.M {
	return bson.M{"_id": id, "version": version}
}

// EnsureSessionIndexes enforces one session per slot and unique room ids.
func EnsureSessionIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slotId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "roomId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
