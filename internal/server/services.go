package server

import (
	chunkservice "github.com/chunkvault/chunkvault/internal/chunk/service"
	docservice "github.com/chunkvault/chunkvault/internal/document/service"
	"github.com/chunkvault/chunkvault/internal/edgenode"
	"github.com/chunkvault/chunkvault/internal/keyrotation"
	"github.com/chunkvault/chunkvault/internal/membership"
	"github.com/chunkvault/chunkvault/internal/storage"
	"github.com/chunkvault/chunkvault/internal/syncfeed"
	teamservice "github.com/chunkvault/chunkvault/internal/team/service"
	"github.com/chunkvault/chunkvault/internal/users"
)

// Options carries the collaborators that do not come from a storage driver.
type Options struct {
	// Blobs receives offloaded payloads; nil keeps every payload inline.
	Blobs            storage.BlobStore
	OffloadThreshold int
	Tokens           edgenode.TokenIssuer
	// BcryptCost for edge access tokens; 0 selects the library default.
	BcryptCost int
}

type Services struct {
	Registry  *membership.Registry
	Chunks    *chunkservice.Service
	Documents *docservice.Service
	Sync      *syncfeed.Service
	Keys      *keyrotation.Service
	Teams     *teamservice.Service
	Users     *users.Service
	Edges     *edgenode.Service
}

func NewServices(st Stores, opts Options) *Services {
	reg := membership.NewRegistry(st.Teams, st.EdgeNodes)
	usersSvc := users.NewService(st.Users)
	docs := docservice.New(st.Documents, st.Chunks, reg, opts.Blobs)
	return &Services{
		Registry: reg,
		Chunks: chunkservice.New(st.Chunks, st.Documents, reg, chunkservice.Options{
			Blobs:            opts.Blobs,
			OffloadThreshold: opts.OffloadThreshold,
		}),
		Documents: docs,
		Sync:      syncfeed.New(st.Chunks, st.Documents, reg, opts.Blobs),
		Keys:      keyrotation.New(reg, st.EdgeNodes, st.Documents),
		Teams: teamservice.New(teamservice.Deps{
			Teams:     st.Teams,
			Registry:  reg,
			Users:     usersSvc,
			Documents: docs,
			EdgeNodes: st.EdgeNodes,
			Chunks:    st.Chunks,
			Blobs:     opts.Blobs,
		}),
		Users: usersSvc,
		Edges: edgenode.NewService(st.EdgeNodes, reg, opts.Tokens, opts.BcryptCost),
	}
}
