package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/authgrid/authgrid/internal/common/config"
	"github.com/authgrid/authgrid/internal/engine"
	"github.com/authgrid/authgrid/pkg/metrics"
	"github.com/authgrid/authgrid/pkg/version"
)

// Server wires the OAuth2 engines to their HTTP endpoints.
type Server struct {
	logger  *zap.Logger
	cfg     *config.Config
	clients *engine.ClientAuthority
	authz   *engine.AuthorizationEngine
	tokens  *engine.TokenEngine
	metrics *metrics.Metrics
}

// NewServer creates a Server. metrics may be nil when disabled.
func NewServer(logger *zap.Logger, cfg *config.Config, clients *engine.ClientAuthority, authz *engine.AuthorizationEngine, tokens *engine.TokenEngine, m *metrics.Metrics) *Server {
	return &Server{
		logger:  logger.Named("server"),
		cfg:     cfg,
		clients: clients,
		authz:   authz,
		tokens:  tokens,
		metrics: m,
	}
}

// RegisterRoutes registers all endpoints with the given router.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.Use(s.loggerMiddleware())
	router.Use(s.recoveryMiddleware())
	if s.metrics != nil {
		router.Use(s.metrics.Middleware())
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	oauth := router.Group("/oauth")
	{
		oauth.GET("/authorize", s.handleAuthorize)
		oauth.POST("/authorize", s.handleAuthorize)
		oauth.POST("/token", s.handleToken)
		oauth.POST("/introspect", s.handleIntrospect)
		oauth.POST("/revoke", s.handleRevoke)
	}

	router.POST("/clients/register", s.handleRegisterClient)
	router.GET("/.well-known/oauth-authorization-server", s.handleMetadata)

	admin := router.Group("/admin", s.requireScope("admin"))
	{
		admin.GET("/stats", s.handleAdminStats)
		admin.GET("/clients", s.handleAdminListClients)
		admin.DELETE("/clients/:id", s.handleAdminDeleteClient)
		admin.GET("/tokens", s.handleAdminListTokens)
		admin.DELETE("/tokens/:id", s.handleAdminRevokeToken)
	}

	router.GET("/health", s.handleHealth)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.Get(),
	})
}
