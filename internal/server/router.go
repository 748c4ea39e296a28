package server

import (
	"context"
	"net/http"
	"time"

	"github.com/chunkvault/chunkvault/handlers"
	"github.com/chunkvault/chunkvault/internal/admission"
	chunkhandler "github.com/chunkvault/chunkvault/internal/chunk/handler"
	dochandler "github.com/chunkvault/chunkvault/internal/document/handler"
	"github.com/chunkvault/chunkvault/internal/edgenode"
	"github.com/chunkvault/chunkvault/internal/keyrotation"
	"github.com/chunkvault/chunkvault/internal/syncfeed"
	teamhandler "github.com/chunkvault/chunkvault/internal/team/handler"
	"github.com/chunkvault/chunkvault/internal/users"
	"github.com/chunkvault/chunkvault/pkg/logger"
	"github.com/chunkvault/chunkvault/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Check tests one dependency for /ready.
type Check func(ctx context.Context) error

type RouterOptions struct {
	Verifier middleware.Verifier
	// Admitter gates every API route; nil disables admission.
	Admitter admission.Admitter
	Checks   map[string]Check
	// Gatherer backs /metrics; defaults to the global registry.
	Gatherer prometheus.Gatherer
	// RequestLog toggles gin's access log.
	RequestLog bool
}

var startTime = time.Now()

// NewRouter mounts the operational endpoints, the public edge token exchange
// and every authenticated API route.
func NewRouter(svc *Services, opts RouterOptions) *gin.Engine {
	r := gin.New()
	if opts.RequestLog {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery(), cors())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", readiness(opts.Checks))

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	handlers.RegisterSwagger(r)

	adm := middleware.NewAdmission(opts.Admitter)
	authed := r.Group("/", middleware.AuthMiddleware(opts.Verifier))

	edgenode.RegisterEdgeRoutes(r, authed, svc.Edges, adm)
	users.RegisterUserRoutes(authed.Group("/", adm.Generic), svc.Users)
	teamhandler.RegisterTeamRoutes(authed, svc.Teams, adm)
	dochandler.RegisterDocumentRoutes(authed, svc.Documents, adm)
	chunkhandler.RegisterChunkRoutes(authed, svc.Chunks, adm)
	syncfeed.RegisterSyncRoutes(authed, svc.Sync, adm)
	keyrotation.RegisterKeyRoutes(authed, svc.Keys, adm)
	return r
}

func readiness(checks map[string]Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		ready := true
		deps := map[string]bool{}
		for name, check := range checks {
			err := check(ctx)
			deps[name] = err == nil
			if err != nil {
				ready = false
				logger.Warnf("readiness: %s unavailable: %v", name, err)
			}
		}
		uptime := time.Since(startTime).String()
		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": uptime})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": uptime})
	}
}

// cors sets permissive headers and answers preflight requests.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		h.Set("Access-Control-Expose-Headers", "Content-Length, Retry-After")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
