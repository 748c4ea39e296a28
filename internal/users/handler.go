package users

import (
	"net/http"

	"github.com/chunkvault/chunkvault/internal/apperr"
	"github.com/chunkvault/chunkvault/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// RegisterUserRoutes mounts the profile endpoints on an authenticated group.
func RegisterUserRoutes(r gin.IRoutes, svc *Service) {
	r.GET("/api/v1/me", func(c *gin.Context) {
		p, ok := middleware.PrincipalFrom(c)
		if !ok || p.IsEdge() {
			apperr.Respond(c, apperr.Forbidden("user_only", "profile is only available to users"))
			return
		}
		u, err := svc.GetBySub(c.Request.Context(), p.ID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	})

	r.PUT("/api/v1/me", func(c *gin.Context) {
		p, ok := middleware.PrincipalFrom(c)
		if !ok || p.IsEdge() {
			apperr.Respond(c, apperr.Forbidden("user_only", "profile is only available to users"))
			return
		}
		var req struct {
			PublicKey string `json:"publicKey"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			apperr.Respond(c, apperr.Invalid("invalid_body", err.Error()))
			return
		}
		claims := map[string]interface{}{"sub": p.ID, "email": p.Email}
		u, err := svc.UpsertFromClaims(c.Request.Context(), claims, req.PublicKey)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	})
}
