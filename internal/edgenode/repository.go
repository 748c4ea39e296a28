package edgenode

import (
	"context"
	"errors"
	"time"

	"github.com/chunkvault/chunkvault/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound = errors.New("edge node not found")
	ErrConflict = errors.New("edge node serial already registered")
)

// Repository persists edge nodes.
type Repository interface {
	// Create fails with ErrConflict when the serial number is taken.
	Create(ctx context.Context, n *models.EdgeNode) error
	Get(ctx context.Context, id string) (*models.EdgeNode, error)
	GetBySerial(ctx context.Context, serial string) (*models.EdgeNode, error)
	ListByTeam(ctx context.Context, teamID string) ([]*models.EdgeNode, error)
	// UpdateWrappedKeys is all or nothing: every id must be a node of teamID.
	UpdateWrappedKeys(ctx context.Context, teamID string, keys map[string]string) error
	Delete(ctx context.Context, id string) error
}

// MongoRepository implements Repository using MongoDB
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	col.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{{Key: "serialNumber", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "teamId", Value: 1}}},
	})
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, n *models.EdgeNode) error {
	now := time.Now().UTC()
	n.CreatedAt, n.UpdatedAt = now, now
	if _, err := r.col.InsertOne(ctx, n); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*models.EdgeNode, error) {
	var n models.EdgeNode
	if err := r.col.FindOne(ctx, filter).Decode(&n); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *MongoRepository) Get(ctx context.Context, id string) (*models.EdgeNode, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRepository) GetBySerial(ctx context.Context, serial string) (*models.EdgeNode, error) {
	return r.findOne(ctx, bson.M{"serialNumber": serial})
}

func (r *MongoRepository) ListByTeam(ctx context.Context, teamID string) ([]*models.EdgeNode, error) {
	cur, err := r.col.Find(ctx, bson.M{"teamId": teamID}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*models.EdgeNode{}
	for cur.Next(ctx) {
		var n models.EdgeNode
		if err := cur.Decode(&n); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, cur.Err()
}

func (r *MongoRepository) UpdateWrappedKeys(ctx context.Context, teamID string, keys map[string]string) error {
	if len(keys) == 0 {
		return nil
	}
	ids := make([]string, 0, len(keys))
	for id := range keys {
		ids = append(ids, id)
	}
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": ids}, "teamId": teamID})
	if err != nil {
		return err
	}
	if int(n) != len(ids) {
		return ErrNotFound
	}
	now := time.Now().UTC()
	ops := make([]mongo.WriteModel, 0, len(keys))
	for id, key := range keys {
		ops = append(ops, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id, "teamId": teamID}).
			SetUpdate(bson.M{"$set": bson.M{"wrappedTeamKey": key, "updatedAt": now}}))
	}
	_, err = r.col.BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(true))
	return err
}

func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
