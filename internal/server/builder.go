package server

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"accwatch/internal/config"
	"accwatch/internal/handlers"
	"accwatch/internal/middleware"
)

// NewEngine assembles the gin engine: middleware chain first, then the API
// routes, all under the configured base path.
func NewEngine(cfg *config.Config, h *handlers.Handler) *gin.Engine {
	if cfg.Security.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.RateLimiter(cfg.Security.RateLimit, cfg.Security.RateBurst))

	root := r.Group(basePath(cfg.Server.BasePath))
	root.GET("/health", h.Health)

	v1 := root.Group("/v1")
	v1.GET("/accounts", h.GetAccounts)
	v1.GET("/accounts/:id", h.GetAccount)
	v1.POST("/accounts/refresh", h.ForceRefresh)
	v1.POST("/verify", h.BatchVerify)

	return r
}

// Addr formats the listen address from config.
func Addr(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
}

func basePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	return "/" + strings.Trim(p, "/")
}
