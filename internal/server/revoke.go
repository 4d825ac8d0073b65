package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleRevoke is the RFC 7009 revocation endpoint. Revoking an
// unknown or already-revoked token still returns 200.
func (s *Server) handleRevoke(c *gin.Context) {
	client, err := s.authenticateClient(c)
	if err != nil {
		s.writeOAuth2Error(c, err)
		return
	}

	if err := s.tokens.Revoke(c.Request.Context(), client, c.PostForm("token")); err != nil {
		s.writeOAuth2Error(c, err)
		return
	}
	if s.metrics != nil {
		s.metrics.TokenRevoked()
	}
	c.Status(http.StatusOK)
}
