package handler

import (
	"net/http"

	"github.com/chunkvault/chunkvault/internal/apperr"
	"github.com/chunkvault/chunkvault/internal/document/service"
	"github.com/chunkvault/chunkvault/pkg/middleware"
	"github.com/gin-gonic/gin"
)

func RegisterDocumentRoutes(r gin.IRoutes, svc *service.Service, adm middleware.Admission) {
	r.GET("/api/teams/:teamId/documents", adm.Generic, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		list, err := svc.List(c.Request.Context(), p, c.Param("teamId"))
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.DELETE("/api/teams/:teamId/documents/:documentId", adm.Generic, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		v, err := svc.Delete(c.Request.Context(), p, c.Param("teamId"), c.Param("documentId"))
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "documentId": c.Param("documentId"), "version": v})
	})
}
