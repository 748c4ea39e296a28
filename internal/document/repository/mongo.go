package repository

import (
	"context"
	"errors"
	"time"

	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements a MongoDB-backed repository for documents.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(col *mongo.Collection) *MongoRepo {
	idxModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "teamId", Value: 1}, {Key: "fileName", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	col.Indexes().CreateOne(context.Background(), idxModel)
	return &MongoRepo{col: col}
}

func (m *MongoRepo) Create(ctx context.Context, d *models.Document) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	if _, err := m.col.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (m *MongoRepo) findOne(ctx context.Context, filter bson.M) (*models.Document, error) {
	var d models.Document
	if err := m.col.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (m *MongoRepo) Get(ctx context.Context, id string) (*models.Document, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *MongoRepo) GetByTeamAndFileName(ctx context.Context, teamID, fileName string) (*models.Document, error) {
	return m.findOne(ctx, bson.M{"teamId": teamID, "fileName": fileName})
}

func (m *MongoRepo) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]*models.Document, error) {
	cur, err := m.col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*models.Document{}
	for cur.Next(ctx) {
		var d models.Document
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, cur.Err()
}

func (m *MongoRepo) ListByTeam(ctx context.Context, teamID string) ([]*models.Document, error) {
	return m.find(ctx, bson.M{"teamId": teamID}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

func (m *MongoRepo) GetMany(ctx context.Context, ids []string) (map[string]*models.Document, error) {
	out := make(map[string]*models.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	list, err := m.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	for _, d := range list {
		out[d.ID] = d
	}
	return out, nil
}

func (m *MongoRepo) SetDEKIfEmpty(ctx context.Context, id string, dek []byte) error {
	filter := bson.M{"_id": id, "$or": bson.A{
		bson.M{"encryptedDEK": bson.M{"$exists": false}},
		bson.M{"encryptedDEK": nil},
	}}
	res, err := m.col.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"encryptedDEK": dek, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := m.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// UpdateDEKs verifies every id first and then applies one ordered bulk write.
func (m *MongoRepo) UpdateDEKs(ctx context.Context, teamID string, deks map[string][]byte) error {
	ids := make([]string, 0, len(deks))
	for id := range deks {
		ids = append(ids, id)
	}
	n, err := m.col.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": ids}, "teamId": teamID})
	if err != nil {
		return err
	}
	if int(n) != len(ids) {
		return ErrNotFound
	}
	now := time.Now().UTC()
	ops := make([]mongo.WriteModel, 0, len(deks))
	for id, dek := range deks {
		ops = append(ops, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id, "teamId": teamID}).
			SetUpdate(bson.M{"$set": bson.M{"encryptedDEK": dek, "updatedAt": now}}))
	}
	if len(ops) == 0 {
		return nil
	}
	_, err = m.col.BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(true))
	return err
}

func (m *MongoRepo) Delete(ctx context.Context, id string) error {
	res, err := m.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
