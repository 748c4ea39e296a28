package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func newMockMongoRepo(mt *mtest.T) *MongoRepo {
	mt.AddMockResponses(mtest.CreateSuccessResponse()) // createIndexes
	repo := NewMongoRepo(mt.DB.Collection("chunks"), mt.DB.Collection("team_sequences"))
	repo.log = func(string, ...any) {}
	mt.ClearEvents()
	return repo
}

func commandNames(mt *mtest.T) []string {
	var names []string
	for _, evt := range mt.GetAllStartedEvents() {
		names = append(names, evt.CommandName)
	}
	return names
}

func counter(version, committed int64) bson.D {
	return bson.D{{Key: "_id", Value: "t1"}, {Key: "version", Value: version}, {Key: "committed", Value: committed}}
}

func TestMongoFeedStopsAtCommittedVersion(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("team feed", func(mt *mtest.T) {
		repo := newMockMongoRepo(mt)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "db.team_sequences", mtest.FirstBatch, counter(9, 7)),
			mtest.CreateCursorResponse(0, "db.chunks", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: "c1"}, {Key: "documentId", Value: "d1"}, {Key: "teamId", Value: "t1"},
				{Key: "index", Value: 0}, {Key: "version", Value: int64(7)}, {Key: "deleted", Value: false},
			}),
		)

		out, err := repo.ListSinceTeam(context.Background(), "t1", 5)
		require.NoError(mt, err)
		require.Len(mt, out, 1)
		assert.Equal(mt, int64(7), out[0].Version)

		events := mt.GetAllStartedEvents()
		require.Len(mt, events, 2)
		rng := events[1].Command.Lookup("filter", "version").Document()
		assert.Equal(mt, int64(5), rng.Lookup("$gt").Int64())
		assert.Equal(mt, int64(7), rng.Lookup("$lte").Int64())
	})

	mt.Run("unknown team sees nothing", func(mt *mtest.T) {
		repo := newMockMongoRepo(mt)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "db.team_sequences", mtest.FirstBatch),
			mtest.CreateCursorResponse(0, "db.chunks", mtest.FirstBatch),
		)

		out, err := repo.ListSinceTeam(context.Background(), "t1", 0)
		require.NoError(mt, err)
		assert.Empty(mt, out)
	})
}

func TestMongoFailedBatchIsRevertedAndNotCommitted(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("bulk write error", func(mt *mtest.T) {
		repo := newMockMongoRepo(mt)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "db.chunks", mtest.FirstBatch), // chunk 0 does not exist
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: counter(3, 2)}),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key"}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}), // revert
		)

		_, err := repo.Upsert(context.Background(), "t1", "d1", []Write{{Index: 0, Payload: []byte("a")}})
		require.Error(mt, err)
		assert.Equal(mt, []string{"find", "findAndModify", "update", "delete"}, commandNames(mt))
	})
}

func TestMongoMarkDeletedCommitsAndReturnsBlobKey(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("tombstone", func(mt *mtest.T) {
		repo := newMockMongoRepo(mt)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "db.chunks", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: "c1"}, {Key: "documentId", Value: "d1"}, {Key: "teamId", Value: "t1"},
				{Key: "index", Value: 2}, {Key: "blobKey", Value: "t1/d1/2/v1"},
				{Key: "version", Value: int64(1)}, {Key: "deleted", Value: false},
			}),
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: counter(4, 3)}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
		)

		ts, err := repo.MarkDeleted(context.Background(), "t1", "d1", 2)
		require.NoError(mt, err)
		assert.Equal(mt, &Tombstone{Version: 4, Count: 1, BlobKeys: []string{"t1/d1/2/v1"}}, ts)

		events := mt.GetAllStartedEvents()
		require.Len(mt, events, 4)
		last := events[3].Command
		assert.Equal(mt, "team_sequences", last.Lookup("update").StringValue())
	})
}

func TestSinceRange(t *testing.T) {
	assert.Equal(t, bson.M{"$gt": int64(3), "$lte": int64(9)}, sinceRange(3, 9))
}
