package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleIntrospect is the RFC 7662 introspection endpoint. Requires
// client authentication; any token that fails validation comes back as
// {"active": false} with a 200 so callers cannot probe for token
// existence. Only storage failures produce an error response.
func (s *Server) handleIntrospect(c *gin.Context) {
	if _, err := s.authenticateClient(c); err != nil {
		s.writeOAuth2Error(c, err)
		return
	}

	info, err := s.tokens.Introspect(c.Request.Context(), c.PostForm("token"))
	if err != nil {
		s.writeOAuth2Error(c, err)
		return
	}
	if s.metrics != nil {
		s.metrics.Introspection(info.Active)
	}
	c.JSON(http.StatusOK, info)
}
