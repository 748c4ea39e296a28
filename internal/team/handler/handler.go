package handler

import (
	"net/http"

	"github.com/chunkvault/chunkvault/internal/apperr"
	"github.com/chunkvault/chunkvault/internal/team/service"
	"github.com/chunkvault/chunkvault/pkg/middleware"
	"github.com/gin-gonic/gin"
)

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		apperr.Respond(c, apperr.Invalid("invalid_body", err.Error()))
		return false
	}
	return true
}

// RegisterTeamRoutes mounts team and membership endpoints.
func RegisterTeamRoutes(r gin.IRoutes, svc *service.Service, adm middleware.Admission) {
	r.POST("/api/teams", adm.Generic, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		var req service.CreateRequest
		if !bind(c, &req) {
			return
		}
		t, err := svc.Create(c.Request.Context(), p, req)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, t)
	})

	r.GET("/api/teams", adm.Generic, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		list, err := svc.List(c.Request.Context(), p)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.GET("/api/teams/:teamId", adm.Generic, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		t, err := svc.Get(c.Request.Context(), p, c.Param("teamId"))
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	})

	r.DELETE("/api/teams/:teamId", adm.Generic, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		if err := svc.Delete(c.Request.Context(), p, c.Param("teamId")); err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	r.POST("/api/teams/:teamId/members", adm.Generic, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		var req service.InviteRequest
		if !bind(c, &req) {
			return
		}
		m, err := svc.Invite(c.Request.Context(), p, c.Param("teamId"), req)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, m)
	})

	r.GET("/api/teams/:teamId/members", adm.Generic, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		list, err := svc.ListMembers(c.Request.Context(), p, c.Param("teamId"))
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.DELETE("/api/teams/:teamId/members/:userId", adm.Generic, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		res, err := svc.Kick(c.Request.Context(), p, c.Param("teamId"), c.Param("userId"))
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":             true,
			"keyRotationRequired": true,
			"message":             "Member removed. Rotate the team key for the remaining members and edge nodes.",
			"remainingMembers":    res.RemainingMembers,
			"remainingEdgeNodes":  res.RemainingEdgeNodes,
		})
	})

	r.PUT("/api/teams/:teamId/members/:userId", adm.Generic, func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)
		var req struct {
			Role string `json:"role"`
		}
		if !bind(c, &req) {
			return
		}
		role, err := svc.ChangeRole(c.Request.Context(), p, c.Param("teamId"), c.Param("userId"), req.Role)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "userId": c.Param("userId"), "role": role})
	})
}
