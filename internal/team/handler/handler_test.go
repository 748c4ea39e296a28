package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chunkrepo "github.com/chunkvault/chunkvault/internal/chunk/repository"
	docrepo "github.com/chunkvault/chunkvault/internal/document/repository"
	docservice "github.com/chunkvault/chunkvault/internal/document/service"
	"github.com/chunkvault/chunkvault/internal/edgenode"
	"github.com/chunkvault/chunkvault/internal/membership"
	"github.com/chunkvault/chunkvault/internal/models"
	teamrepo "github.com/chunkvault/chunkvault/internal/team/repository"
	"github.com/chunkvault/chunkvault/internal/team/service"
	"github.com/chunkvault/chunkvault/internal/users"
	"github.com/chunkvault/chunkvault/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	userRepo := users.NewMemoryUserRepository()
	for _, id := range []string{"alice", "bob"} {
		_, err := userRepo.UpsertBySub(context.Background(), &models.User{ID: id, Email: id + "@example.com", PublicKey: "pk-" + id})
		require.NoError(t, err)
	}
	teams := teamrepo.NewMemoryRepo()
	edges := edgenode.NewMemoryRepository()
	chunks := chunkrepo.NewMemoryRepo()
	reg := membership.NewRegistry(teams, edges)
	svc := service.New(service.Deps{
		Teams:     teams,
		Registry:  reg,
		Users:     users.NewService(userRepo),
		Documents: docservice.New(docrepo.NewMemoryRepo(), chunks, reg, nil),
		EdgeNodes: edges,
		Chunks:    chunks,
	})
	g := gin.New()
	g.Use(func(c *gin.Context) {
		middleware.SetPrincipal(c, models.Principal{ID: c.GetHeader("X-User"), Kind: models.PrincipalUser})
		c.Next()
	})
	RegisterTeamRoutes(g, svc, middleware.NoAdmission())
	return g
}

func call(g *gin.Engine, method, path, user string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", user)
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func TestTeamLifecycle(t *testing.T) {
	g := newRouter(t)

	w := call(g, http.MethodPost, "/api/teams", "alice", gin.H{"name": "Lab", "encryptedTeamKey": "wk"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var team struct {
		ID   string `json:"teamId"`
		Role string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &team))
	require.Equal(t, "ADMIN", team.Role)
	base := "/api/teams/" + team.ID

	w = call(g, http.MethodPost, base+"/members", "alice", gin.H{"email": "bob@example.com", "encryptedTeamKey": "wk-bob"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = call(g, http.MethodPost, base+"/members", "alice", gin.H{"userId": "bob", "encryptedTeamKey": "wk-bob"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = call(g, http.MethodPut, base+"/members/alice", "alice", gin.H{"role": "MEMBER"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = call(g, http.MethodGet, base+"/members", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = call(g, http.MethodDelete, base+"/members/bob", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var kick struct {
		Success             bool `json:"success"`
		KeyRotationRequired bool `json:"keyRotationRequired"`
		RemainingMembers    []struct {
			UserID    string `json:"userId"`
			PublicKey string `json:"publicKey"`
		} `json:"remainingMembers"`
		RemainingEdgeNodes []any `json:"remainingEdgeNodes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &kick))
	require.True(t, kick.Success)
	require.True(t, kick.KeyRotationRequired)
	require.Len(t, kick.RemainingMembers, 1)
	require.Equal(t, "pk-alice", kick.RemainingMembers[0].PublicKey)
	require.NotNil(t, kick.RemainingEdgeNodes)

	w = call(g, http.MethodGet, base, "bob", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = call(g, http.MethodDelete, base, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = call(g, http.MethodGet, "/api/teams", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[]`, w.Body.String())
}
