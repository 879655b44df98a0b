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

const scheduleCollectionName = "weekly_schedules"

// mongoScheduleRepository implements repository.ScheduleRepository
type mongoScheduleRepository struct {
	collection *mongo.Collection
}

// NewMongoScheduleRepository creates a new weekly template repository backed by MongoDB.
func NewMongoScheduleRepository(db *mongo.Database) repository.ScheduleRepository {
	return &mongoScheduleRepository{
		collection: db.Collection(scheduleCollectionName),
	}
}

func templateKey(trainerID primitive.ObjectID, weekStart time.Time) bson.M {
	return bson.M{"trainerId": trainerID, "weekStart": weekStart}
}

// Upsert inserts the template for (trainer, weekStart) or replaces its whole day structure.
func (r *mongoScheduleRepository) Upsert(ctx context.Context, tpl *domain.WeeklyScheduleTemplate) (*domain.WeeklyScheduleTemplate, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$set":         bson.M{"schedule": tpl.Schedule, "updatedAt": now},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored domain.WeeklyScheduleTemplate
	err := r.collection.FindOneAndUpdate(ctx, templateKey(tpl.TrainerID, tpl.WeekStart), update, opts).Decode(&stored)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// lost an upsert race on the unique key; the winner's document now exists
			return r.Upsert(ctx, tpl)
		}
		return nil, err
	}
	return &stored, nil
}

// GetByTrainerAndWeek retrieves the template of one trainer for one week.
func (r *mongoScheduleRepository) GetByTrainerAndWeek(ctx context.Context, trainerID primitive.ObjectID, weekStart time.Time) (*domain.WeeklyScheduleTemplate, error) {
	var tpl domain.WeeklyScheduleTemplate
	err := r.collection.FindOne(ctx, templateKey(trainerID, weekStart)).Decode(&tpl)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &tpl, nil
}

func (r *mongoScheduleRepository) Delete(ctx context.Context, trainerID primitive.ObjectID, weekStart time.Time) error {
	result, err := r.collection.DeleteOne(ctx, templateKey(trainerID, weekStart))
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// List returns every stored template, oldest week first.
func (r *mongoScheduleRepository) List(ctx context.Context) ([]domain.WeeklyScheduleTemplate, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "weekStart", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	templates := []domain.WeeklyScheduleTemplate{}
	if err = cursor.All(ctx, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// EnsureScheduleIndexes creates the unique (trainerId, weekStart) index.
func EnsureScheduleIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "trainerId", Value: 1}, {Key: "weekStart", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
