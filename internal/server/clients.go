package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/authgrid/authgrid/internal/common/errorx"
	"github.com/authgrid/authgrid/internal/engine"
)

// handleRegisterClient creates a client registration. The response is
// the only place the plaintext client secret ever appears.
func (s *Server) handleRegisterClient(c *gin.Context) {
	var req engine.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeOAuth2Error(c, errorx.ErrInvalidRequest.WithDescription("request body must be valid JSON"))
		return
	}

	reg, err := s.clients.Register(c.Request.Context(), &req)
	if err != nil {
		s.writeOAuth2Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, reg)
}
