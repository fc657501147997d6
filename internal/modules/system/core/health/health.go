// Package health reports dependency status and exposes the job scheduler to
// admins.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/briefly-app/core/internal/middleware"
	"github.com/briefly-app/core/internal/models"
	"github.com/briefly-app/core/internal/pkg/cron"
	"github.com/briefly-app/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

const checkTimeout = 2 * time.Second

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// Checks maps a component name ("database", "cache", ...) to its probe.
type Checks map[string]Check

type ComponentStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Evaluate runs every probe and reports whether all of them passed.
func (c Checks) Evaluate(ctx context.Context) (map[string]ComponentStatus, bool) {
	out := make(map[string]ComponentStatus, len(c))
	healthy := true
	for name, check := range c {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := check(cctx)
		cancel()
		st := ComponentStatus{OK: err == nil}
		if err != nil {
			st.Error = err.Error()
			healthy = false
		}
		out[name] = st
	}
	return out, healthy
}

func RegisterRoutes(rg *gin.RouterGroup, checks Checks, sched *cron.Scheduler, authMW gin.HandlerFunc) {
	rg.GET("/health", func(c *gin.Context) {
		components, healthy := checks.Evaluate(c.Request.Context())
		status := "ok"
		code := http.StatusOK
		if !healthy {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":     status,
			"components": components,
		})
	})

	if sched == nil {
		return
	}
	cronGroup := rg.Group("/health/cron", authMW, middleware.RequireRole(models.RoleAdmin))
	cronGroup.GET("", func(c *gin.Context) {
		items := sched.List()
		byName := make(map[string]cron.ListItem, len(items))
		for _, item := range items {
			byName[item.Name] = item
		}
		response.OK(c, byName)
	})
	cronGroup.POST("/run/:name", func(c *gin.Context) {
		if err := sched.Run(c.Request.Context(), c.Param("name")); err != nil {
			response.NotFoundMsg(c, err.Error())
			return
		}
		response.OK(c, gin.H{"message": "job triggered"})
	})
}
