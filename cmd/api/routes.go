package main

import (
	"database/sql"
	"time"

	"outreach-platform/internal/httpapi"
	"outreach-platform/internal/metrics"
	"outreach-platform/internal/rbac"
	"outreach-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, db *sql.DB) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1")

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	v1.POST("/auth/login", h.Login)

	// protected API group
	api := v1.Group("")
	api.Use(authMW)
	{
		// CALLER routes
		caller := api.Group("/caller")
		caller.Use(rbac.RequireAnyRole(rbac.RoleCaller, rbac.RoleAdmin, rbac.RoleSuperAdmin))
		{
			caller.POST("/request-call", h.RequestCall)
			caller.POST("/report", h.SubmitReport)
			caller.GET("/stats", h.CallerStats)
		}

		// ADMIN routes
		// Hidden data_bot is intentionally NOT included unless explicitly desired.
		admin := api.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleSuperAdmin))
		{
			admin.POST("/call-requests", h.AdminEnqueue)
			admin.DELETE("/call-requests", h.AdminBulkDelete)
			admin.POST("/locations/:public_id/flags", h.AdminLocationFlags)
		}
	}
}
