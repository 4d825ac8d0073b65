package cnst

// Grant types defined by RFC 6749.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
	GrantPassword          = "password"
	GrantRefreshToken      = "refresh_token"
)

// PKCE code challenge methods (RFC 7636).
const (
	PKCEMethodPlain = "plain"
	PKCEMethodS256  = "S256"
)

const (
	// TokenTypeBearer is the only token type the server issues.
	TokenTypeBearer = "Bearer"

	// ResponseTypeCode is the only supported authorization response type.
	ResponseTypeCode = "code"
)

// KnownGrantTypes lists every grant the token endpoint dispatches on.
var KnownGrantTypes = []string{
	GrantAuthorizationCode,
	GrantClientCredentials,
	GrantPassword,
	GrantRefreshToken,
}

// IsKnownGrantType reports whether the grant type is one the server implements.
func IsKnownGrantType(gt string) bool {
	for _, known := range KnownGrantTypes {
		if gt == known {
			return true
		}
	}
	return false
}
