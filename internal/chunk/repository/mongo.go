package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/chunkvault/chunkvault/pkg/logger"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo stores chunks in one collection and the team sequences in a
// counters collection. Writers of a team are serialized by an in-process
// lock, so only one service instance may write against a database.
//
// A mutation touches several chunk documents without a transaction, so the
// counter carries a committed mark next to the allocated version. It only
// advances once every document of a mutation is written, and the feeds never
// return versions above it.
type MongoRepo struct {
	chunks   *mongo.Collection
	counters *mongo.Collection
	locks    sync.Map // teamID -> *sync.Mutex
	log      func(format string, args ...any)
}

type counterDoc struct {
	ID        string `bson:"_id"`
	Version   int64  `bson:"version"`
	Committed *int64 `bson:"committed,omitempty"`
}

func NewMongoRepo(chunks, counters *mongo.Collection) *MongoRepo {
	ctx := context.Background()
	chunks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "index", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "teamId", Value: 1}, {Key: "version", Value: 1}}},
		{Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "version", Value: 1}}},
	})
	return &MongoRepo{chunks: chunks, counters: counters, log: logger.Errorf}
}

func (m *MongoRepo) lockTeam(teamID string) func() {
	v, _ := m.locks.LoadOrStore(teamID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (m *MongoRepo) nextVersion(ctx context.Context, teamID string) (int64, error) {
	var c counterDoc
	err := m.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": teamID},
		bson.M{"$inc": bson.M{"version": int64(1)}, "$setOnInsert": bson.M{"committed": int64(0)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return 0, err
	}
	return c.Version, nil
}

// commit publishes v to readers once all of its documents are written.
func (m *MongoRepo) commit(ctx context.Context, teamID string, v int64) error {
	_, err := m.counters.UpdateOne(ctx, bson.M{"_id": teamID}, bson.M{"$max": bson.M{"committed": v}})
	return err
}

// committed returns the highest version whose mutation is complete. Counters
// written before the mark existed fall back to their allocated version.
func (m *MongoRepo) committed(ctx context.Context, teamID string) (int64, error) {
	var c counterDoc
	err := m.counters.FindOne(ctx, bson.M{"_id": teamID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if c.Committed == nil {
		return c.Version, nil
	}
	return *c.Committed, nil
}

func (m *MongoRepo) find(ctx context.Context, documentID string, index int) (*models.Chunk, error) {
	var c models.Chunk
	err := m.chunks.FindOne(ctx, bson.M{"documentId": documentID, "index": index}).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (m *MongoRepo) Upsert(ctx context.Context, teamID, documentID string, writes []Write) (*UpsertResult, error) {
	if err := validateWrites(writes); err != nil {
		return nil, err
	}
	unlock := m.lockTeam(teamID)
	defer unlock()

	existing := make(map[int]*models.Chunk, len(writes))
	for _, w := range writes {
		c, err := m.find(ctx, documentID, w.Index)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if err := checkExpected(w, c); err != nil {
			return nil, err
		}
		existing[w.Index] = c
	}

	v, err := m.nextVersion(ctx, teamID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res := &UpsertResult{Version: v, Chunks: make([]*models.Chunk, 0, len(writes))}
	ops := make([]mongo.WriteModel, 0, len(writes))
	for _, w := range writes {
		var c *models.Chunk
		if prev := existing[w.Index]; prev != nil {
			if prev.BlobKey != "" && prev.BlobKey != w.BlobKey {
				res.ReplacedBlobKeys = append(res.ReplacedBlobKeys, prev.BlobKey)
			}
			c = cloneChunk(prev)
		} else {
			c = &models.Chunk{ID: uuid.NewString(), DocumentID: documentID, TeamID: teamID, Index: w.Index, CreatedAt: now}
		}
		c.Payload = w.Payload
		c.BlobKey = w.BlobKey
		c.Version = v
		c.Deleted = false
		c.UpdatedAt = now
		ops = append(ops, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"documentId": documentID, "index": w.Index}).
			SetUpdate(bson.M{
				"$set":         bson.M{"payload": w.Payload, "blobKey": w.BlobKey, "version": v, "deleted": false, "updatedAt": now},
				"$setOnInsert": bson.M{"_id": c.ID, "teamId": teamID, "createdAt": c.CreatedAt},
			}).
			SetUpsert(true))
		res.Chunks = append(res.Chunks, c)
	}
	if _, err := m.chunks.BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(true)); err != nil {
		m.revertUpsert(ctx, documentID, v, writes, existing)
		return nil, err
	}
	if err := m.commit(ctx, teamID, v); err != nil {
		m.revertUpsert(ctx, documentID, v, writes, existing)
		return nil, err
	}
	return res, nil
}

// revertUpsert puts back the chunks a failed batch may have written. Only
// documents still carrying version v are touched.
func (m *MongoRepo) revertUpsert(ctx context.Context, documentID string, v int64, writes []Write, existing map[int]*models.Chunk) {
	ops := make([]mongo.WriteModel, 0, len(writes))
	for _, w := range writes {
		filter := bson.M{"documentId": documentID, "index": w.Index, "version": v}
		if prev := existing[w.Index]; prev != nil {
			ops = append(ops, mongo.NewReplaceOneModel().SetFilter(filter).SetReplacement(prev))
		} else {
			ops = append(ops, mongo.NewDeleteOneModel().SetFilter(filter))
		}
	}
	if _, err := m.chunks.BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(false)); err != nil {
		m.log("revert chunk batch %s@%d: %v", documentID, v, err)
	}
}

func (m *MongoRepo) MarkDeleted(ctx context.Context, teamID, documentID string, index int) (*Tombstone, error) {
	unlock := m.lockTeam(teamID)
	defer unlock()
	c, err := m.find(ctx, documentID, index)
	if err != nil {
		return nil, err
	}
	if c.TeamID != teamID {
		return nil, ErrNotFound
	}
	if c.Deleted {
		return &Tombstone{Version: c.Version}, nil
	}
	v, err := m.nextVersion(ctx, teamID)
	if err != nil {
		return nil, err
	}
	_, err = m.chunks.UpdateOne(ctx, bson.M{"_id": c.ID},
		bson.M{"$set": bson.M{"deleted": true, "version": v, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return nil, err
	}
	if err := m.commit(ctx, teamID, v); err != nil {
		m.revertTombstones(ctx, v, []*models.Chunk{c})
		return nil, err
	}
	ts := &Tombstone{Version: v, Count: 1}
	if c.BlobKey != "" {
		ts.BlobKeys = []string{c.BlobKey}
	}
	return ts, nil
}

func (m *MongoRepo) MarkDocumentDeleted(ctx context.Context, teamID, documentID string) (*Tombstone, error) {
	unlock := m.lockTeam(teamID)
	defer unlock()
	live, err := m.list(ctx, bson.M{"documentId": documentID, "teamId": teamID, "deleted": false},
		bson.D{{Key: "index", Value: 1}})
	if err != nil {
		return nil, err
	}
	if len(live) == 0 {
		return &Tombstone{}, nil
	}
	v, err := m.nextVersion(ctx, teamID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(live))
	ts := &Tombstone{Version: v, Count: len(live)}
	for i, c := range live {
		ids[i] = c.ID
		if c.BlobKey != "" {
			ts.BlobKeys = append(ts.BlobKeys, c.BlobKey)
		}
	}
	_, err = m.chunks.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}, "deleted": false},
		bson.M{"$set": bson.M{"deleted": true, "version": v, "updatedAt": time.Now().UTC()}})
	if err != nil {
		m.revertTombstones(ctx, v, live)
		return nil, err
	}
	if err := m.commit(ctx, teamID, v); err != nil {
		m.revertTombstones(ctx, v, live)
		return nil, err
	}
	return ts, nil
}

func (m *MongoRepo) revertTombstones(ctx context.Context, v int64, live []*models.Chunk) {
	ops := make([]mongo.WriteModel, 0, len(live))
	for _, c := range live {
		ops = append(ops, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": c.ID, "version": v}).
			SetUpdate(bson.M{"$set": bson.M{"deleted": false, "version": c.Version, "updatedAt": c.UpdatedAt}}))
	}
	if _, err := m.chunks.BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(false)); err != nil {
		m.log("revert document tombstones @%d: %v", v, err)
	}
}

func (m *MongoRepo) Get(ctx context.Context, documentID string, index int) (*models.Chunk, error) {
	return m.find(ctx, documentID, index)
}

func (m *MongoRepo) ListLive(ctx context.Context, documentID string) ([]*models.Chunk, error) {
	return m.list(ctx, bson.M{"documentId": documentID, "deleted": false},
		bson.D{{Key: "index", Value: 1}})
}

func (m *MongoRepo) ListSinceDocument(ctx context.Context, documentID string, watermark int64) ([]*models.Chunk, error) {
	var owner struct {
		TeamID string `bson:"teamId"`
	}
	err := m.chunks.FindOne(ctx, bson.M{"documentId": documentID},
		options.FindOne().SetProjection(bson.M{"teamId": 1})).Decode(&owner)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []*models.Chunk{}, nil
	}
	if err != nil {
		return nil, err
	}
	upper, err := m.committed(ctx, owner.TeamID)
	if err != nil {
		return nil, err
	}
	return m.list(ctx, bson.M{"documentId": documentID, "version": sinceRange(watermark, upper)},
		bson.D{{Key: "version", Value: 1}, {Key: "index", Value: 1}})
}

func (m *MongoRepo) ListSinceTeam(ctx context.Context, teamID string, watermark int64) ([]*models.Chunk, error) {
	upper, err := m.committed(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return m.list(ctx, bson.M{"teamId": teamID, "version": sinceRange(watermark, upper)},
		bson.D{{Key: "version", Value: 1}, {Key: "documentId", Value: 1}, {Key: "index", Value: 1}})
}

// sinceRange selects versions above the watermark that are already committed.
func sinceRange(watermark, committed int64) bson.M {
	return bson.M{"$gt": watermark, "$lte": committed}
}

func (m *MongoRepo) list(ctx context.Context, filter bson.M, sort bson.D) ([]*models.Chunk, error) {
	cur, err := m.chunks.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*models.Chunk{}
	for cur.Next(ctx) {
		var c models.Chunk
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, cur.Err()
}

func (m *MongoRepo) LatestVersions(ctx context.Context, teamID string) (map[string]int64, error) {
	upper, err := m.committed(ctx, teamID)
	if err != nil {
		return nil, err
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"teamId": teamID, "version": bson.M{"$lte": upper}}}},
		{{Key: "$group", Value: bson.M{"_id": "$documentId", "version": bson.M{"$max": "$version"}}}},
	}
	cur, err := m.chunks.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := map[string]int64{}
	for cur.Next(ctx) {
		var row counterDoc
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out[row.ID] = row.Version
	}
	return out, cur.Err()
}

func (m *MongoRepo) PurgeTeam(ctx context.Context, teamID string) error {
	unlock := m.lockTeam(teamID)
	defer unlock()
	if _, err := m.chunks.DeleteMany(ctx, bson.M{"teamId": teamID}); err != nil {
		return err
	}
	_, err := m.counters.DeleteOne(ctx, bson.M{"_id": teamID})
	return err
}
