package server

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/authgrid/authgrid/internal/common/errorx"
	"github.com/authgrid/authgrid/internal/engine"
	"github.com/authgrid/authgrid/internal/storage"
)

// handleAuthorize is the authorization endpoint. The resource owner
// authenticates inline with username/password; a browser flow would put
// a login page in front, the code contract is identical.
//
// Client and redirect URI problems are reported directly and never
// redirect. Everything after that validates per RFC 6749 and redirects
// the outcome, success or error, back to the client.
func (s *Server) handleAuthorize(c *gin.Context) {
	param := func(key string) string {
		if v, ok := c.GetPostForm(key); ok {
			return v
		}
		return c.Query(key)
	}

	ctx := c.Request.Context()

	clientID := param("client_id")
	redirectURI := param("redirect_uri")
	client, err := s.clients.Get(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeOAuth2Error(c, errorx.ErrInvalidClient)
			return
		}
		s.writeOAuth2Error(c, errorx.ErrServerError)
		return
	}
	if err := s.clients.ValidateRedirectURI(client, redirectURI); err != nil {
		s.writeOAuth2Error(c, err)
		return
	}

	state := param("state")

	username, password := param("username"), param("password")
	if u, p, ok := c.Request.BasicAuth(); ok && username == "" {
		username, password = u, p
	}
	user, err := s.authz.AuthenticateUser(ctx, username, password)
	if err != nil {
		if errors.Is(err, errorx.ErrAccessDenied) {
			s.redirectError(c, redirectURI, errorx.ErrAccessDenied, state)
			return
		}
		s.writeOAuth2Error(c, err)
		return
	}

	issued, err := s.authz.IssueCode(ctx, &engine.CodeRequest{
		ResponseType:        param("response_type"),
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		Scope:               param("scope"),
		State:               state,
		CodeChallenge:       param("code_challenge"),
		CodeChallengeMethod: param("code_challenge_method"),
		UserID:              user.ID,
	})
	if err != nil {
		s.redirectError(c, redirectURI, err, state)
		return
	}

	target, _ := url.Parse(redirectURI)
	q := target.Query()
	q.Set("code", issued.Code)
	if state != "" {
		q.Set("state", state)
	}
	target.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, target.String())
}

// redirectError sends the OAuth2 error code back to the already
// validated redirect URI.
func (s *Server) redirectError(c *gin.Context, redirectURI string, err error, state string) {
	oauthErr := errorx.ConvertToOAuth2Error(err)

	target, perr := url.Parse(redirectURI)
	if perr != nil {
		s.writeOAuth2Error(c, err)
		return
	}
	q := target.Query()
	q.Set("error", oauthErr.ErrorType)
	if oauthErr.ErrorDescription != "" {
		q.Set("error_description", oauthErr.ErrorDescription)
	}
	if state != "" {
		q.Set("state", state)
	}
	target.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, target.String())
}
