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

const slotCollectionName = "slots"

// mongoSlotRepository implements repository.SlotRepository. Booking requests are embedded
// in the slot document, so each state change is one conditional findAndModify.
type mongoSlotRepository struct {
	collection *mongo.Collection
}

// NewMongoSlotRepository creates a new Slot repository backed by MongoDB.
func NewMongoSlotRepository(db *mongo.Database) repository.SlotRepository {
	return &mongoSlotRepository{
		collection: db.Collection(slotCollectionName),
	}
}

var slotSort = bson.D{{Key: "date", Value: 1}, {Key: "startTime", Value: 1}}

func prepareSlotForInsert(slot *domain.Slot, now time.Time) {
	slot.ID = primitive.NewObjectID()
	slot.CreatedAt = now
	slot.UpdatedAt = now
	if slot.RequestedBy == nil {
		// stored as [] rather than null so $size and $push behave uniformly
		slot.RequestedBy = []domain.BookingRequest{}
	}
}

// Create inserts a single slot.
func (r *mongoSlotRepository) Create(ctx context.Context, slot *domain.Slot) (primitive.ObjectID, error) {
	if slot.TrainerID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("slot requires trainerId")
	}
	prepareSlotForInsert(slot, time.Now().UTC())

	if _, err := r.collection.InsertOne(ctx, slot); err != nil {
		return primitive.NilObjectID, err
	}
	return slot.ID, nil
}

// CreateMany inserts generated slots in one batch.
func (r *mongoSlotRepository) CreateMany(ctx context.Context, slots []domain.Slot) (int, error) {
	if len(slots) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	docs := make([]interface{}, 0, len(slots))
	for i := range slots {
		prepareSlotForInsert(&slots[i], now)
		docs = append(docs, slots[i])
	}

	result, err := r.collection.InsertMany(ctx, docs)
	if err != nil {
		return 0, err
	}
	return len(result.InsertedIDs), nil
}

// GetByID retrieves a slot by its ID.
func (r *mongoSlotRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Slot, error) {
	var slot domain.Slot
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &slot, nil
}

func (r *mongoSlotRepository) find(ctx context.Context, filter bson.M) ([]domain.Slot, error) {
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(slotSort))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	slots := []domain.Slot{}
	if err = cursor.All(ctx, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// GetByTrainerID retrieves every slot of a trainer.
func (r *mongoSlotRepository) GetByTrainerID(ctx context.Context, trainerID primitive.ObjectID) ([]domain.Slot, error) {
	return r.find(ctx, bson.M{"trainerId": trainerID})
}

func (r *mongoSlotRepository) GetAvailable(ctx context.Context, trainerID primitive.ObjectID, from time.Time) ([]domain.Slot, error) {
	return r.find(ctx, availableFilter(trainerID, from))
}

func (r *mongoSlotRepository) GetByUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Slot, error) {
	return r.find(ctx, userSessionsFilter(userID))
}

func (r *mongoSlotRepository) GetWithOpenRequests(ctx context.Context, trainerID primitive.ObjectID) ([]domain.Slot, error) {
	return r.find(ctx, openRequestsFilter(trainerID))
}

func (r *mongoSlotRepository) GetBookedInRange(ctx context.Context, trainerID primitive.ObjectID, from, to time.Time) ([]domain.Slot, error) {
	return r.find(ctx, bson.M{
		"trainerId": trainerID,
		"isBooked":  true,
		"date":      bson.M{"$gte": from, "$lt": to},
	})
}

// HasOverlap relies on zero-padded "HH:MM" strings ordering like the times they encode.
func (r *mongoSlotRepository) HasOverlap(ctx context.Context, trainerID primitive.ObjectID, date time.Time, start, end string) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, overlapFilter(trainerID, date, start, end), options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *mongoSlotRepository) AddRequest(ctx context.Context, slotID primitive.ObjectID, req domain.BookingRequest) (*domain.Slot, error) {
	update := bson.M{
		"$push": bson.M{"requestedBy": req},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	return r.findOneAndUpdate(ctx, slotID, addRequestFilter(slotID, req.UserID), update, nil)
}

func (r *mongoSlotRepository) Approve(ctx context.Context, slotID, userID primitive.ObjectID, videoCallLink string) (*domain.Slot, error) {
	update, arrayFilters := approveUpdate(userID, videoCallLink, time.Now().UTC())
	return r.findOneAndUpdate(ctx, slotID, approveFilter(slotID, userID), update, &arrayFilters)
}

func (r *mongoSlotRepository) UpdateRequest(ctx context.Context, slotID, userID primitive.ObjectID, from domain.RequestStatus, update repository.RequestUpdate) (*domain.Slot, error) {
	if update.Status == domain.RequestApproved {
		return nil, errors.New("approvals must go through Approve")
	}
	return r.findOneAndUpdate(ctx, slotID, requestFilter(slotID, userID, from), requestUpdate(update, time.Now().UTC()), nil)
}

func (r *mongoSlotRepository) DeleteUnrequested(ctx context.Context, slotID primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, unrequestedFilter(slotID))
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return r.missOrConflict(ctx, slotID)
	}
	return nil
}

func (r *mongoSlotRepository) DeleteUnbookedInRange(ctx context.Context, trainerID primitive.ObjectID, from, to time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, unbookedRangeFilter(trainerID, from, to))
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func (r *mongoSlotRepository) findOneAndUpdate(ctx context.Context, slotID primitive.ObjectID, filter, update bson.M, arrayFilters *options.ArrayFilters) (*domain.Slot, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if arrayFilters != nil {
		opts.SetArrayFilters(*arrayFilters)
	}

	var slot domain.Slot
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, r.missOrConflict(ctx, slotID)
		}
		return nil, err
	}
	return &slot, nil
}

// missOrConflict tells a missing slot apart from one whose state no longer satisfies a write's predicate.
func (r *mongoSlotRepository) missOrConflict(ctx context.Context, slotID primitive.ObjectID) error {
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": slotID}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrPreconditionFailed
}

// --- filter and update documents ---

func availableFilter(trainerID primitive.ObjectID, from time.Time) bson.M {
	return bson.M{"trainerId": trainerID, "isBooked": false, "date": bson.M{"$gte": from}}
}

func userSessionsFilter(userID primitive.ObjectID) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"bookedBy": userID},
		bson.M{"requestedBy.userId": userID},
	}}
}

func openRequestsFilter(trainerID primitive.ObjectID) bson.M {
	return bson.M{
		"trainerId": trainerID,
		"requestedBy": bson.M{"$elemMatch": bson.M{
			"status": bson.M{"$in": bson.A{domain.RequestPending, domain.RequestApproved}},
		}},
	}
}

func overlapFilter(trainerID primitive.ObjectID, date time.Time, start, end string) bson.M {
	return bson.M{
		"trainerId": trainerID,
		"date":      date,
		"startTime": bson.M{"$lt": end},
		"endTime":   bson.M{"$gt": start},
	}
}

func addRequestFilter(slotID, userID primitive.ObjectID) bson.M {
	return bson.M{
		"_id":                slotID,
		"isBooked":           false,
		"requestedBy.userId": bson.M{"$ne": userID},
	}
}

func approveFilter(slotID, userID primitive.ObjectID) bson.M {
	return bson.M{
		"_id":      slotID,
		"isBooked": false,
		"requestedBy": bson.M{"$elemMatch": bson.M{
			"userId": userID,
			"status": domain.RequestPending,
		}},
	}
}

func approveUpdate(userID primitive.ObjectID, videoCallLink string, now time.Time) (bson.M, options.ArrayFilters) {
	update := bson.M{"$set": bson.M{
		"isBooked":                             true,
		"bookedBy":                             userID,
		"videoCallLink":                        videoCallLink,
		"updatedAt":                            now,
		"requestedBy.$[approved].status":       domain.RequestApproved,
		"requestedBy.$[other].status":          domain.RequestRejected,
		"requestedBy.$[other].rejectionReason": domain.ReasonApprovedForAnother,
	}}
	filters := options.ArrayFilters{Filters: []interface{}{
		bson.M{"approved.userId": userID},
		bson.M{"other.userId": bson.M{"$ne": userID}, "other.status": domain.RequestPending},
	}}
	return update, filters
}

func requestFilter(slotID, userID primitive.ObjectID, status domain.RequestStatus) bson.M {
	return bson.M{
		"_id": slotID,
		"requestedBy": bson.M{"$elemMatch": bson.M{
			"userId": userID,
			"status": status,
		}},
	}
}

func requestUpdate(update repository.RequestUpdate, now time.Time) bson.M {
	set := bson.M{
		"requestedBy.$.status": update.Status,
		"updatedAt":            now,
	}
	if update.RejectionReason != "" {
		set["requestedBy.$.rejectionReason"] = update.RejectionReason
	}
	return bson.M{"$set": set}
}

func unrequestedFilter(slotID primitive.ObjectID) bson.M {
	return bson.M{
		"_id":      slotID,
		"isBooked": false,
		"$or": bson.A{
			bson.M{"requestedBy": bson.M{"$size": 0}},
			bson.M{"requestedBy": nil},
		},
	}
}

func unbookedRangeFilter(trainerID primitive.ObjectID, from, to time.Time) bson.M {
	return bson.M{
		"trainerId": trainerID,
		"isBooked":  false,
		"date":      bson.M{"$gte": from, "$lt": to},
	}
}

// EnsureSlotIndexes creates necessary indexes for the slots collection.
func EnsureSlotIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// overlap checks and weekly purges
			Keys:    bson.D{{Key: "trainerId", Value: 1}, {Key: "date", Value: 1}, {Key: "startTime", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "bookedBy", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "requestedBy.userId", Value: 1}},
			Options: options.Index(),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
