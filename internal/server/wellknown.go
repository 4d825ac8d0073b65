package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/authgrid/authgrid/internal/common/cnst"
)

// serverMetadata is the RFC 8414 authorization server metadata document.
type serverMetadata struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	IntrospectionEndpoint            string   `json:"introspection_endpoint"`
	RevocationEndpoint               string   `json:"revocation_endpoint"`
	RegistrationEndpoint             string   `json:"registration_endpoint"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	CodeChallengeMethodsSupported    []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethods         []string `json:"token_endpoint_auth_methods_supported"`
	IntrospectionEndpointAuthMethods []string `json:"introspection_endpoint_auth_methods_supported"`
	ScopesSupported                  []string `json:"scopes_supported,omitempty"`
}

func (s *Server) handleMetadata(c *gin.Context) {
	issuer := strings.TrimSuffix(s.cfg.JWT.Issuer, "/")

	base := "http://" + c.Request.Host
	if c.Request.TLS != nil {
		base = "https://" + c.Request.Host
	}

	c.JSON(http.StatusOK, serverMetadata{
		Issuer:                           issuer,
		AuthorizationEndpoint:            base + "/oauth/authorize",
		TokenEndpoint:                    base + "/oauth/token",
		IntrospectionEndpoint:            base + "/oauth/introspect",
		RevocationEndpoint:               base + "/oauth/revoke",
		RegistrationEndpoint:             base + "/clients/register",
		GrantTypesSupported:              cnst.KnownGrantTypes,
		ResponseTypesSupported:           []string{cnst.ResponseTypeCode},
		CodeChallengeMethodsSupported:    []string{cnst.PKCEMethodPlain, cnst.PKCEMethodS256},
		TokenEndpointAuthMethods:         []string{"client_secret_basic", "client_secret_post"},
		IntrospectionEndpointAuthMethods: []string{"client_secret_basic", "client_secret_post"},
	})
}
