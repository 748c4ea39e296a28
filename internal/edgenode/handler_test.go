package edgenode

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chunkvault/chunkvault/internal/models"
	"github.com/chunkvault/chunkvault/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestEdgeRoutes(t *testing.T) {
	svc, _ := newService(t)
	g := gin.New()
	authed := g.Group("/", func(c *gin.Context) {
		middleware.SetPrincipal(c, models.Principal{ID: c.GetHeader("X-User"), Kind: models.PrincipalUser})
		c.Next()
	})
	RegisterEdgeRoutes(g, authed, svc, middleware.NoAdmission())

	send := func(method, path, user string, body any) *httptest.ResponseRecorder {
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

	reg := gin.H{"serialNumber": "SN-1", "apiToken": "0123456789abcdef-token", "publicKey": "pk", "teamId": "t1"}
	w := send(http.MethodPost, "/api/edge-nodes/register", "a", reg)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var node struct {
		ID          string `json:"nodeId"`
		HashedToken string `json:"hashedToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &node))
	require.NotEmpty(t, node.ID)
	require.NotContains(t, w.Body.String(), "apiToken")

	require.Equal(t, http.StatusConflict, send(http.MethodPost, "/api/edge-nodes/register", "a", reg).Code)
	require.Equal(t, http.StatusForbidden, send(http.MethodPost, "/api/edge-nodes/register", "m", gin.H{
		"serialNumber": "SN-2", "apiToken": "0123456789abcdef-token", "publicKey": "pk", "teamId": "t1",
	}).Code)

	w = send(http.MethodPost, "/api/edge-nodes/token", "", gin.H{"serialNumber": "SN-1", "apiToken": "0123456789abcdef-token"})
	require.Equal(t, http.StatusOK, w.Code)
	var tok map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tok))
	require.Equal(t, "edge:"+node.ID+":t1", tok["accessToken"])

	w = send(http.MethodPost, "/api/edge-nodes/token", "", gin.H{"serialNumber": "SN-1", "apiToken": "nope"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	require.Equal(t, http.StatusConflict, send(http.MethodGet, "/api/edge-nodes/"+node.ID+"/team-key", "a", nil).Code)
	require.Equal(t, http.StatusOK, send(http.MethodDelete, "/api/edge-nodes/"+node.ID, "a", nil).Code)
	require.Equal(t, http.StatusNotFound, send(http.MethodGet, "/api/edge-nodes/"+node.ID+"/team-key", "a", nil).Code)
}
