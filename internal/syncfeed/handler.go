package syncfeed

import (
	"net/http"
	"strconv"

	"github.com/chunkvault/chunkvault/internal/apperr"
	"github.com/chunkvault/chunkvault/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// watermark parses an optional non-negative version query parameter.
func watermark(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		apperr.Respond(c, apperr.Invalid("invalid_watermark", name+" must be a non-negative integer"))
		return 0, false
	}
	return v, true
}

func requiredTeam(c *gin.Context) (string, bool) {
	teamID := c.Query("teamId")
	if teamID == "" {
		apperr.Respond(c, apperr.Invalid("missing_team_id", "teamId is required"))
		return "", false
	}
	return teamID, true
}

func RegisterSyncRoutes(r gin.IRoutes, svc *Service, adm middleware.Admission) {
	r.GET("/api/documents/:documentId/chunks/sync", adm.Download, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		wm, ok := watermark(c, "lastVersion")
		if !ok {
			return
		}
		out, err := svc.SyncDocument(c.Request.Context(), p, c.Param("documentId"), wm)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	})

	r.GET("/api/sync/chunks", adm.Download, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		teamID, ok := requiredTeam(c)
		if !ok {
			return
		}
		wm, ok := watermark(c, "lastVersion")
		if !ok {
			return
		}
		out, err := svc.SyncTeam(c.Request.Context(), p, teamID, wm)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	})

	r.GET("/api/sync/documents", adm.Generic, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		teamID, ok := requiredTeam(c)
		if !ok {
			return
		}
		wm, ok := watermark(c, "lastSyncVersion")
		if !ok {
			return
		}
		out, err := svc.SyncDocumentMeta(c.Request.Context(), p, teamID, wm)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	})
}
