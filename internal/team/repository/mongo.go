package repository

import (
	"context"
	"errors"
	"time"

	"github.com/chunkvault/chunkvault/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo stores teams and memberships in two collections.
type MongoRepo struct {
	teams   *mongo.Collection
	members *mongo.Collection
}

func NewMongoRepo(teams, members *mongo.Collection) *MongoRepo {
	ctx := context.Background()
	members.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "teamId", Value: 1}, {Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}}},
	})
	return &MongoRepo{teams: teams, members: members}
}

func memberFilter(teamID, userID string) bson.M {
	return bson.M{"teamId": teamID, "userId": userID}
}

// CreateTeam inserts the team and then the owner; a failed owner insert
// removes the team again.
func (m *MongoRepo) CreateTeam(ctx context.Context, t *models.Team, owner *models.Member) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	owner.JoinedAt, owner.UpdatedAt = now, now
	if _, err := m.teams.InsertOne(ctx, t); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return err
	}
	if _, err := m.members.InsertOne(ctx, owner); err != nil {
		_, _ = m.teams.DeleteOne(ctx, bson.M{"_id": t.ID})
		return err
	}
	return nil
}

func (m *MongoRepo) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	var t models.Team
	if err := m.teams.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (m *MongoRepo) GetTeams(ctx context.Context, ids []string) ([]*models.Team, error) {
	out := []*models.Team{}
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := m.teams.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var t models.Team
		if err := cur.Decode(&t); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, cur.Err()
}

func (m *MongoRepo) DeleteTeam(ctx context.Context, id string) error {
	res, err := m.teams.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) AddMember(ctx context.Context, mem *models.Member) error {
	now := time.Now().UTC()
	mem.JoinedAt, mem.UpdatedAt = now, now
	if _, err := m.members.InsertOne(ctx, mem); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (m *MongoRepo) GetMember(ctx context.Context, teamID, userID string) (*models.Member, error) {
	var mem models.Member
	if err := m.members.FindOne(ctx, memberFilter(teamID, userID)).Decode(&mem); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &mem, nil
}

func (m *MongoRepo) findMembers(ctx context.Context, filter bson.M) ([]*models.Member, error) {
	cur, err := m.members.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "joinedAt", Value: 1}, {Key: "userId", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*models.Member{}
	for cur.Next(ctx) {
		var mem models.Member
		if err := cur.Decode(&mem); err != nil {
			return nil, err
		}
		out = append(out, &mem)
	}
	return out, cur.Err()
}

func (m *MongoRepo) ListMembers(ctx context.Context, teamID string) ([]*models.Member, error) {
	return m.findMembers(ctx, bson.M{"teamId": teamID})
}

func (m *MongoRepo) ListMembershipsByUser(ctx context.Context, userID string) ([]*models.Member, error) {
	return m.findMembers(ctx, bson.M{"userId": userID})
}

func (m *MongoRepo) RemoveMember(ctx context.Context, teamID, userID string) error {
	res, err := m.members.DeleteOne(ctx, memberFilter(teamID, userID))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) UpdateRole(ctx context.Context, teamID, userID string, role models.Role) error {
	res, err := m.members.UpdateOne(ctx, memberFilter(teamID, userID),
		bson.M{"$set": bson.M{"role": role, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateWrappedKeys counts the targets first and then applies one ordered bulk write.
func (m *MongoRepo) UpdateWrappedKeys(ctx context.Context, teamID string, keys map[string]string) error {
	if len(keys) == 0 {
		return nil
	}
	ids := make([]string, 0, len(keys))
	for id := range keys {
		ids = append(ids, id)
	}
	n, err := m.members.CountDocuments(ctx, bson.M{"teamId": teamID, "userId": bson.M{"$in": ids}})
	if err != nil {
		return err
	}
	if int(n) != len(ids) {
		return ErrNotFound
	}
	now := time.Now().UTC()
	ops := make([]mongo.WriteModel, 0, len(keys))
	for userID, key := range keys {
		ops = append(ops, mongo.NewUpdateOneModel().
			SetFilter(memberFilter(teamID, userID)).
			SetUpdate(bson.M{"$set": bson.M{"wrappedTeamKey": key, "updatedAt": now}}))
	}
	_, err = m.members.BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(true))
	return err
}
