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

const planCollectionName = "plans"

// mongoPlanRepository is the entitlement adapter over the subscription module's plans.
type mongoPlanRepository struct {
	collection *mongo.Collection
}

// NewMongoPlanRepository creates a plans repository backed by MongoDB.
func NewMongoPlanRepository(db *mongo.Database) repository.PlanRepository {
	return &mongoPlanRepository{
		collection: db.Collection(planCollectionName),
	}
}

func (r *mongoPlanRepository) GetPlan(ctx context.Context, userID, trainerID primitive.ObjectID) (*domain.Plan, error) {
	var plan domain.Plan
	err := r.collection.FindOne(ctx, bson.M{"userId": userID, "trainerId": trainerID}).Decode(&plan)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// DecrementVideoCalls consumes one credit; false means the plan had none left (or is not pro).
func (r *mongoPlanRepository) DecrementVideoCalls(ctx context.Context, userID, trainerID primitive.ObjectID) (bool, error) {
	result, err := r.collection.UpdateOne(ctx, decrementFilter(userID, trainerID), bson.M{
		"$inc": bson.M{"videoCallsLeft": -1},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return false, err
	}
	return result.ModifiedCount == 1, nil
}

// RestoreVideoCall gives back a credit consumed by an approval that could not be committed.
func (r *mongoPlanRepository) RestoreVideoCall(ctx context.Context, userID, trainerID primitive.ObjectID) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"userId": userID, "trainerId": trainerID}, bson.M{
		"$inc": bson.M{"videoCallsLeft": 1},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func decrementFilter(userID, trainerID primitive.ObjectID) bson.M {
	return bson.M{
		"userId":         userID,
		"trainerId":      trainerID,
		"planType":       domain.PlanTypePro,
		"videoCallsLeft": bson.M{"$gt": 0},
	}
}

// EnsurePlanIndexes creates the (userId, trainerId) lookup index.
func EnsurePlanIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "trainerId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
