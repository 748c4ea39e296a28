package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chunkrepo "github.com/chunkvault/chunkvault/internal/chunk/repository"
	"github.com/chunkvault/chunkvault/internal/chunk/service"
	docrepo "github.com/chunkvault/chunkvault/internal/document/repository"
	"github.com/chunkvault/chunkvault/internal/edgenode"
	"github.com/chunkvault/chunkvault/internal/membership"
	"github.com/chunkvault/chunkvault/internal/models"
	teamrepo "github.com/chunkvault/chunkvault/internal/team/repository"
	"github.com/chunkvault/chunkvault/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	ctx := context.Background()
	teams := teamrepo.NewMemoryRepo()
	require.NoError(t, teams.CreateTeam(ctx,
		&models.Team{ID: "t1", Name: "T", OwnerID: "a"},
		&models.Member{TeamID: "t1", UserID: "a", Role: models.RoleAdmin}))
	require.NoError(t, teams.AddMember(ctx, &models.Member{TeamID: "t1", UserID: "m", Role: models.RoleMember}))
	reg := membership.NewRegistry(teams, edgenode.NewMemoryRepository())
	svc := service.New(chunkrepo.NewMemoryRepo(), docrepo.NewMemoryRepo(), reg, service.Options{})

	g := gin.New()
	g.Use(func(c *gin.Context) {
		middleware.SetPrincipal(c, models.Principal{ID: c.GetHeader("X-User"), Kind: models.PrincipalUser})
		c.Next()
	})
	RegisterChunkRoutes(g, svc, middleware.NoAdmission())
	return g
}

func do(g *gin.Engine, method, path, user string, body any) *httptest.ResponseRecorder {
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

func TestChunkHandler_UploadListDelete(t *testing.T) {
	g := newRouter(t)
	body := gin.H{
		"fileName":     "f.pdf",
		"encryptedDEK": []byte("dek"),
		"chunks": []gin.H{
			{"chunkIndex": 0, "encryptedBlob": []byte("c0")},
			{"chunkIndex": 1, "encryptedBlob": []byte("c1")},
		},
	}
	w := do(g, http.MethodPost, "/api/documents/t1/chunks", "m", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res service.UploadResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, int64(1), res.Version)

	w = do(g, http.MethodGet, "/api/documents/"+res.DocumentID+"/chunks", "a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var live []models.ChunkDelta
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &live))
	require.Len(t, live, 2)
	require.Equal(t, []byte("c1"), live[1].EncryptedBlob)

	w = do(g, http.MethodDelete, "/api/documents/"+res.DocumentID+"/chunks/1", "m", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = do(g, http.MethodDelete, "/api/documents/"+res.DocumentID+"/chunks/1", "a", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(g, http.MethodDelete, "/api/documents/"+res.DocumentID+"/chunks/abc", "a", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChunkHandler_AdminUploadForbidden(t *testing.T) {
	g := newRouter(t)
	body := gin.H{"fileName": "f", "encryptedDEK": []byte("k"), "chunks": []gin.H{{"chunkIndex": 0, "encryptedBlob": []byte("x")}}}
	w := do(g, http.MethodPost, "/api/documents/t1/chunks", "a", body)
	require.Equal(t, http.StatusForbidden, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "admin_upload_forbidden", resp["error"])
}

func TestChunkHandler_MissingIndexRejected(t *testing.T) {
	g := newRouter(t)
	body := gin.H{"fileName": "f", "encryptedDEK": []byte("k"), "chunks": []gin.H{{"encryptedBlob": []byte("x")}}}
	w := do(g, http.MethodPost, "/api/documents/t1/chunks", "m", body)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
