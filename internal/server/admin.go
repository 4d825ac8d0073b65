package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/authgrid/authgrid/internal/storage"
)

// Admin endpoints. All of them sit behind requireScope("admin").

func (s *Server) handleAdminStats(c *gin.Context) {
	ctx := c.Request.Context()

	clients, err := s.clients.List(ctx)
	if err != nil {
		s.writeOAuth2Error(c, err)
		return
	}
	total, revoked, err := s.tokens.Stats(ctx)
	if err != nil {
		s.writeOAuth2Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"clients":        len(clients),
		"tokens_total":   total,
		"tokens_revoked": revoked,
	})
}

func (s *Server) handleAdminListClients(c *gin.Context) {
	clients, err := s.clients.List(c.Request.Context())
	if err != nil {
		s.writeOAuth2Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients})
}

func (s *Server) handleAdminDeleteClient(c *gin.Context) {
	id := c.Param("id")
	if err := s.clients.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
			return
		}
		s.writeOAuth2Error(c, err)
		return
	}
	s.logger.Info("client deleted", zap.String("client_id", id))
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAdminListTokens(c *gin.Context) {
	tokens, err := s.tokens.List(c.Request.Context())
	if err != nil {
		s.writeOAuth2Error(c, err)
		return
	}
	// Token values stay server-side; the listing carries metadata only.
	type tokenView struct {
		ID        string `json:"token_id"`
		ClientID  string `json:"client_id"`
		UserID    string `json:"user_id,omitempty"`
		Scope     string `json:"scope,omitempty"`
		CreatedAt string `json:"created_at"`
		ExpiresAt string `json:"expires_at"`
		Revoked   bool   `json:"revoked"`
	}
	views := make([]tokenView, 0, len(tokens))
	for _, t := range tokens {
		views = append(views, tokenView{
			ID:        t.ID,
			ClientID:  t.ClientID,
			UserID:    t.UserID,
			Scope:     t.Scope,
			CreatedAt: t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			ExpiresAt: t.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			Revoked:   t.Revoked,
		})
	}
	c.JSON(http.StatusOK, gin.H{"tokens": views})
}

func (s *Server) handleAdminRevokeToken(c *gin.Context) {
	id := c.Param("id")
	if err := s.tokens.RevokeByID(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
			return
		}
		s.writeOAuth2Error(c, err)
		return
	}
	s.logger.Info("token revoked by admin", zap.String("token_id", id))
	c.Status(http.StatusNoContent)
}
