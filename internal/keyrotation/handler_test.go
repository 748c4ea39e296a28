package keyrotation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chunkvault/chunkvault/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestKeyRoutes(t *testing.T) {
	f := newFixture(t)
	g := gin.New()
	g.Use(func(c *gin.Context) {
		middleware.SetPrincipal(c, admin)
		c.Next()
	})
	RegisterKeyRoutes(g, f.svc, middleware.NoAdmission())

	post := func(path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		g.ServeHTTP(w, req)
		return w
	}

	w := post("/api/teams/t1/members/rotate-keys", `{"memberKeys":[{"userId":"m","encryptedTeamKey":"k2"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.JSONEq(t, `{"success":true,"updatedMembers":1,"updatedEdgeNodes":0}`, w.Body.String())

	w = post("/api/teams/t1/members/rotate-keys", `{"memberKeys":[{"userId":"nobody","encryptedTeamKey":"k2"}]}`)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = post("/api/teams/t1/documents/reencrypt-keys", `{"documents":[{"documentId":"nope","newEncryptedDEK":"AAE="}]}`)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = post("/api/teams/t1/documents/reencrypt-keys", `not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
