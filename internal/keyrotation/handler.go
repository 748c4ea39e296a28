package keyrotation

import (
	"net/http"

	"github.com/chunkvault/chunkvault/internal/apperr"
	"github.com/chunkvault/chunkvault/pkg/middleware"
	"github.com/gin-gonic/gin"
)

func RegisterKeyRoutes(r gin.IRoutes, svc *Service, adm middleware.Admission) {
	r.POST("/api/teams/:teamId/members/rotate-keys", adm.Generic, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		var req RotateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.Respond(c, apperr.Invalid("invalid_body", err.Error()))
			return
		}
		res, err := svc.RotateTeamKeys(c.Request.Context(), p, c.Param("teamId"), req)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":          true,
			"updatedMembers":   res.UpdatedMembers,
			"updatedEdgeNodes": res.UpdatedEdgeNodes,
		})
	})

	r.POST("/api/teams/:teamId/documents/reencrypt-keys", adm.Generic, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		var req struct {
			Documents []DocumentKey `json:"documents"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.Respond(c, apperr.Invalid("invalid_body", err.Error()))
			return
		}
		n, err := svc.ReencryptDocumentKeys(c.Request.Context(), p, c.Param("teamId"), req.Documents)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "updated": n})
	})
}
