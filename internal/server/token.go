package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/authgrid/authgrid/internal/common/cnst"
	"github.com/authgrid/authgrid/internal/common/errorx"
	"github.com/authgrid/authgrid/internal/engine"
	"github.com/authgrid/authgrid/internal/storage"
)

// clientCredentials extracts client_id/client_secret from HTTP Basic
// auth or, failing that, from the form body (client_secret_post).
func clientCredentials(c *gin.Context) (string, string) {
	if id, secret, ok := c.Request.BasicAuth(); ok {
		return id, secret
	}
	return c.PostForm("client_id"), c.PostForm("client_secret")
}

// authenticateClient resolves and verifies the requesting client.
func (s *Server) authenticateClient(c *gin.Context) (*storage.Client, error) {
	id, secret := clientCredentials(c)
	return s.clients.Authenticate(c.Request.Context(), id, secret)
}

// handleToken is the RFC 6749 token endpoint. Every grant type
// dispatches through here after client authentication.
func (s *Server) handleToken(c *gin.Context) {
	grantType := c.PostForm("grant_type")
	if grantType == "" {
		s.grantResult(grantType, errorx.ErrInvalidRequest)
		s.writeOAuth2Error(c, errorx.ErrInvalidRequest.WithDescription("grant_type is required"))
		return
	}

	client, err := s.authenticateClient(c)
	if err != nil {
		s.grantResult(grantType, err)
		s.writeOAuth2Error(c, err)
		return
	}

	if err := s.clients.AuthorizeGrant(client, grantType); err != nil {
		s.grantResult(grantType, err)
		s.writeOAuth2Error(c, err)
		return
	}

	ctx := c.Request.Context()
	var resp *engine.TokenResponse
	switch grantType {
	case cnst.GrantAuthorizationCode:
		resp, err = s.authz.Redeem(ctx, &engine.RedeemRequest{
			Client:       client,
			Code:         c.PostForm("code"),
			RedirectURI:  c.PostForm("redirect_uri"),
			CodeVerifier: c.PostForm("code_verifier"),
		})
	case cnst.GrantClientCredentials:
		resp, err = s.tokens.ClientCredentialsGrant(ctx, client, c.PostForm("scope"))
	case cnst.GrantPassword:
		resp, err = s.tokens.PasswordGrant(ctx, client, c.PostForm("username"), c.PostForm("password"), c.PostForm("scope"))
	case cnst.GrantRefreshToken:
		resp, err = s.tokens.Refresh(ctx, client, c.PostForm("refresh_token"), c.PostForm("scope"))
	default:
		err = errorx.ErrUnsupportedGrantType
	}
	if err != nil {
		s.grantResult(grantType, err)
		s.writeOAuth2Error(c, err)
		return
	}

	s.grantResult(grantType, nil)
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, resp)
}

func (s *Server) grantResult(grantType string, err error) {
	if s.metrics == nil {
		return
	}
	if err == nil {
		s.metrics.GrantResult(grantType, "success")
		return
	}
	s.metrics.GrantResult(grantType, errorx.ConvertToOAuth2Error(err).ErrorType)
}
