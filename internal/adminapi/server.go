// Package adminapi exposes the node's local admin/debug REST surface:
// relay config tuning, queue and relay statistics, and contact
// inspection, gated behind a JWT-protected login, the way the
// teacher's controller exposes its own management API.
package adminapi

import (
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/meshline/meshcore/internal/config"
	"github.com/meshline/meshcore/internal/node"
)

// Server is the admin/debug HTTP API bound to one running node.
type Server struct {
	cfg    config.AdminAPIConfig
	node   *node.Node
	router *gin.Engine
	log    *slog.Logger

	adminPasswordHash string
}

// New builds the admin API router. The configured admin password is
// hashed once at startup; it is never stored or compared in plaintext.
func New(cfg config.AdminAPIConfig, n *node.Node, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	hash, err := hashPassword(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}

	s := &Server{
		cfg:               cfg,
		node:              n,
		log:               log.With("component", "adminapi"),
		adminPasswordHash: hash,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s.setupRoutes(router)
	s.router = router
	return s, nil
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	if !s.cfg.Enabled {
		s.log.Info("admin API disabled")
		return nil
	}
	s.log.Info("admin API starting", "listen", s.cfg.Listen)
	return s.router.Run(s.cfg.Listen)
}

func (s *Server) setupRoutes(r *gin.Engine) {
	r.POST("/api/v1/auth/login", s.handleLogin)

	api := r.Group("/api/v1")
	api.Use(authMiddleware(s.cfg.JWTSecret))
	{
		api.GET("/identity", s.handleIdentity)

		api.GET("/relay/config", s.handleGetRelayConfig)
		api.PUT("/relay/config", s.handleUpdateRelayConfig)
		api.GET("/relay/stats", s.handleRelayStats)

		api.GET("/queue/stats", s.handleQueueStats)

		api.GET("/contacts", s.handleListContacts)
		api.GET("/contacts/:id", s.handleGetContact)
		api.PUT("/contacts/:id/trust", s.handleSetContactTrust)

		api.POST("/messages", s.handleSendMessage)
	}
}
