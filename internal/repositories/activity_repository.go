package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/anonto42/shelfstream/internal/models"
)

// ErrNotFound is returned when the requested record does not exist
var ErrNotFound = errors.New("not found")

// Feed page sizes
const (
	DefaultFeedLimit = 50
	MaxFeedLimit     = 200
	LastActionsLimit = 10
)

// ActivityFilter selects the activities of one feed
type ActivityFilter struct {
	// Feed is the room name of the feed being read
	Feed string
	// UserID is the viewer for personal feeds
	UserID string
	// BookIDs are the viewer's shelved books for shelf feeds
	BookIDs []string
	Limit   int64
}

// ActivityRepository defines the interface for activity stream storage
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	GetByID(ctx context.Context, id string) (*models.Activity, error)
	List(ctx context.Context, filter ActivityFilter) ([]models.Activity, error)
	FindByEntity(ctx context.Context, entityID string) ([]models.Activity, error)
	UpdateMetadata(ctx context.Context, id string, metadata models.Metadata) (*models.Activity, error)
	DeleteByEntity(ctx context.Context, entityID string) (int64, error)
	MergeCounters(ctx context.Context, update models.CounterUpdate) (int64, error)
	SetReactions(ctx context.Context, target models.ReactionTarget, id string, reactions []models.Reaction) (int64, error)
}

// MongoActivityRepository implements ActivityRepository for MongoDB
type MongoActivityRepository struct {
	collection *mongo.Collection
}

// NewMongoActivityRepository creates a new MongoActivityRepository
func NewMongoActivityRepository(db *mongo.Database) *MongoActivityRepository {
	return &MongoActivityRepository{collection: db.Collection("activities")}
}

// Create stores a new activity, assigning its id and timestamps
func (r *MongoActivityRepository) Create(ctx context.Context, activity *models.Activity) error {
	activity.ID = uuid.NewString()
	activity.CreatedAt = time.Now().UTC()
	activity.UpdatedAt = activity.CreatedAt
	if activity.Metadata == nil {
		activity.Metadata = models.Metadata{}
	}
	_, err := r.collection.InsertOne(ctx, activity)
	return errors.Wrap(err, "failed to insert activity")
}

// GetByID retrieves an activity by ID
func (r *MongoActivityRepository) GetByID(ctx context.Context, id string) (*models.Activity, error) {
	var activity models.Activity
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&activity)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.Wrapf(ErrNotFound, "activity %s", id)
		}
		return nil, err
	}
	return &activity, nil
}

// List returns one page of a feed, newest first
func (r *MongoActivityRepository) List(ctx context.Context, filter ActivityFilter) ([]models.Activity, error) {
	query, ok := feedQuery(filter)
	if !ok {
		return []models.Activity{}, nil
	}
	findOptions := options.Find().
		SetLimit(feedLimit(filter)).
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := r.collection.Find(ctx, query, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	activities := []models.Activity{}
	if err = cursor.All(ctx, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

// FindByEntity returns every activity about entityID
func (r *MongoActivityRepository) FindByEntity(ctx context.Context, entityID string) ([]models.Activity, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"entity_id": entityID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var activities []models.Activity
	if err = cursor.All(ctx, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

// UpdateMetadata replaces the given metadata keys and returns the result
func (r *MongoActivityRepository) UpdateMetadata(ctx context.Context, id string, metadata models.Metadata) (*models.Activity, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	for k, v := range metadata {
		set["metadata."+k] = v
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var activity models.Activity
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&activity)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.Wrapf(ErrNotFound, "activity %s", id)
		}
		return nil, err
	}
	return &activity, nil
}

// DeleteByEntity removes every activity about entityID
func (r *MongoActivityRepository) DeleteByEntity(ctx context.Context, entityID string) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"entity_id": entityID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// MergeCounters writes the counters present in update onto every matching
// activity. Counters absent from the update are left alone.
func (r *MongoActivityRepository) MergeCounters(ctx context.Context, update models.CounterUpdate) (int64, error) {
	set := counterSet(update.Counters)
	if len(set) == 0 {
		return 0, nil
	}
	set["updated_at"] = time.Now().UTC()
	res, err := r.collection.UpdateMany(ctx, counterQuery(update), bson.M{"$set": set})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// SetReactions stores a fresh aggregate on the activities of a reaction
// parent. The stored aggregate carries no viewer flags.
func (r *MongoActivityRepository) SetReactions(ctx context.Context, target models.ReactionTarget, id string, reactions []models.Reaction) (int64, error) {
	stored := make([]models.Reaction, len(reactions))
	for i, re := range reactions {
		stored[i] = models.Reaction{Emoji: re.Emoji, Count: re.Count}
	}
	update := bson.M{"$set": bson.M{
		"metadata.reactions": stored,
		"updated_at":         time.Now().UTC(),
	}}
	res, err := r.collection.UpdateMany(ctx, reactionQuery(target, id), update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func feedLimit(f ActivityFilter) int64 {
	switch {
	case f.Limit <= 0 && f.Feed == models.RoomLastActions:
		return LastActionsLimit
	case f.Limit <= 0:
		return DefaultFeedLimit
	case f.Limit > MaxFeedLimit:
		return MaxFeedLimit
	}
	return f.Limit
}

// feedQuery builds the selector of a feed. ok is false when the feed cannot
// contain anything, like a shelf feed with no shelved books.
func feedQuery(f ActivityFilter) (query bson.M, ok bool) {
	switch f.Feed {
	case models.RoomGlobal, models.RoomLastActions:
		return bson.M{}, true
	case models.RoomPersonal:
		if f.UserID == "" {
			return nil, false
		}
		return bson.M{"$or": bson.A{
			bson.M{"user_id": f.UserID},
			bson.M{"target_user_id": f.UserID},
		}}, true
	case models.RoomShelves:
		if len(f.BookIDs) == 0 {
			return nil, false
		}
		return bson.M{"book_id": bson.M{"$in": f.BookIDs}}, true
	}
	return nil, false
}

func counterSet(counters map[string]int64) bson.M {
	set := bson.M{}
	for _, key := range models.CounterKeys {
		if v, ok := counters[key]; ok {
			set["metadata."+key] = v
		}
	}
	return set
}

// counterQuery matches the activities a counter update is about: the entity
// itself and activities pointing at it as their news or book.
func counterQuery(u models.CounterUpdate) bson.M {
	return bson.M{
		"type": u.EntityType,
		"$or": bson.A{
			bson.M{"entity_id": u.EntityID},
			bson.M{"news_id": u.EntityID},
			bson.M{"book_id": u.EntityID},
		},
	}
}

// reactionQuery follows the matching rule the client reconciler applies to
// stream:reaction-update.
func reactionQuery(target models.ReactionTarget, id string) bson.M {
	switch target {
	case models.TargetComment:
		return bson.M{"$or": bson.A{
			bson.M{"_id": id},
			bson.M{"entity_id": id},
		}}
	case models.TargetNews:
		return bson.M{"type": models.ActivityNews, "entity_id": id}
	}
	return bson.M{"entity_id": id}
}
