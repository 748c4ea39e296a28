package edgenode

import (
	"net/http"

	"github.com/chunkvault/chunkvault/internal/apperr"
	"github.com/chunkvault/chunkvault/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// RegisterEdgeRoutes mounts the token exchange on public and the rest on
// authed.
func RegisterEdgeRoutes(public, authed gin.IRoutes, svc *Service, adm middleware.Admission) {
	public.POST("/api/edge-nodes/token", adm.Generic, func(c *gin.Context) {
		var req struct {
			SerialNumber string `json:"serialNumber"`
			APIToken     string `json:"apiToken"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.Respond(c, apperr.Invalid("invalid_body", err.Error()))
			return
		}
		tok, n, err := svc.ExchangeToken(c.Request.Context(), req.SerialNumber, req.APIToken)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"accessToken": tok, "tokenType": "Bearer", "nodeId": n.ID, "teamId": n.TeamID})
	})

	authed.POST("/api/edge-nodes/register", adm.Generic, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.Respond(c, apperr.Invalid("invalid_body", err.Error()))
			return
		}
		n, err := svc.Register(c.Request.Context(), p, req)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, n)
	})

	authed.GET("/api/edge-nodes/:nodeId/team-key", adm.Generic, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		key, err := svc.TeamKey(c.Request.Context(), p, c.Param("nodeId"))
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"nodeId": c.Param("nodeId"), "encryptedTeamKey": key})
	})

	authed.DELETE("/api/edge-nodes/:nodeId", adm.Generic, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		if err := svc.Delete(c.Request.Context(), p, c.Param("nodeId")); err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
}
