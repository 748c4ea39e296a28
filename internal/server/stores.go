// Package server assembles repositories, services and the HTTP router.
package server

import (
	"context"
	"database/sql"

	chunkrepo "github.com/chunkvault/chunkvault/internal/chunk/repository"
	docrepo "github.com/chunkvault/chunkvault/internal/document/repository"
	"github.com/chunkvault/chunkvault/internal/edgenode"
	teamrepo "github.com/chunkvault/chunkvault/internal/team/repository"
	"github.com/chunkvault/chunkvault/internal/users"
	"go.mongodb.org/mongo-driver/mongo"
)

// Stores is the set of repositories one storage driver provides.
type Stores struct {
	Teams     teamrepo.Repository
	Documents docrepo.Repository
	Chunks    chunkrepo.Repository
	Users     users.UserRepository
	EdgeNodes edgenode.Repository
	// Ping reports backend health for /ready. Nil means always healthy.
	Ping func(ctx context.Context) error
}

func MemoryStores() Stores {
	return Stores{
		Teams:     teamrepo.NewMemoryRepo(),
		Documents: docrepo.NewMemoryRepo(),
		Chunks:    chunkrepo.NewMemoryRepo(),
		Users:     users.NewMemoryUserRepository(),
		EdgeNodes: edgenode.NewMemoryRepository(),
	}
}

func PostgresStores(db *sql.DB) Stores {
	return Stores{
		Teams:     teamrepo.NewPostgresRepo(db),
		Documents: docrepo.NewPostgresRepo(db),
		Chunks:    chunkrepo.NewPostgresRepo(db),
		Users:     users.NewPostgresUserRepository(db),
		EdgeNodes: edgenode.NewPostgresRepository(db),
		Ping:      db.PingContext,
	}
}

// MongoStores builds repositories over db. Index creation happens in the
// repository constructors.
func MongoStores(db *mongo.Database) Stores {
	return Stores{
		Teams:     teamrepo.NewMongoRepo(db.Collection("teams"), db.Collection("team_members")),
		Documents: docrepo.NewMongoRepo(db.Collection("documents")),
		Chunks:    chunkrepo.NewMongoRepo(db.Collection("chunks"), db.Collection("team_sequences")),
		Users:     users.NewMongoUserRepository(db.Collection("users")),
		EdgeNodes: edgenode.NewMongoRepository(db.Collection("edge_nodes")),
		Ping: func(ctx context.Context) error {
			return db.Client().Ping(ctx, nil)
		},
	}
}
