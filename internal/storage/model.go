package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringList stores a []string as a JSON column so the same model works
// across sqlite, mysql and postgres.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	out, err := json.Marshal(l)
	return string(out), err
}

func (l *StringList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
}

// Contains reports whether the list holds exactly s.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// Client is a registered OAuth2 application. The secret is stored only as
// a bcrypt hash; the plaintext exists once, in the registration response.
type Client struct {
	ID           string     `json:"client_id" gorm:"column:client_id;primaryKey;type:varchar(64)"`
	SecretHash   string     `json:"-" gorm:"column:secret_hash;not null"`
	Name         string     `json:"name" gorm:"type:varchar(255)"`
	RedirectURIs StringList `json:"redirect_uris" gorm:"type:text"`
	GrantTypes   StringList `json:"grant_types" gorm:"type:text"`
	Scope        string     `json:"scope" gorm:"type:text"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HasGrantType reports whether the client may use the grant.
func (c *Client) HasGrantType(grantType string) bool {
	return c.GrantTypes.Contains(grantType)
}

// HasRedirectURI reports whether uri exactly matches a registered URI.
// No wildcard or prefix matching.
func (c *Client) HasRedirectURI(uri string) bool {
	return c.RedirectURIs.Contains(uri)
}

// User is a resource owner.
type User struct {
	ID           string    `json:"user_id" gorm:"column:user_id;primaryKey;type:varchar(64)"`
	Username     string    `json:"username" gorm:"uniqueIndex;type:varchar(64);not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	Email        string    `json:"email" gorm:"type:varchar(255)"`
	Enabled      bool      `json:"enabled" gorm:"not null;default:true"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AuthorizationCode is a short-lived single-use credential. Used flips
// false to true exactly once, through Store.ConsumeAuthorizationCode.
type AuthorizationCode struct {
	Code                string    `json:"code" gorm:"primaryKey;type:varchar(128)"`
	ClientID            string    `json:"client_id" gorm:"index;type:varchar(64);not null"`
	UserID              string    `json:"user_id" gorm:"index;type:varchar(64);not null"`
	RedirectURI         string    `json:"redirect_uri" gorm:"type:text;not null"`
	Scope               string    `json:"scope" gorm:"type:text"`
	CodeChallenge       string    `json:"code_challenge,omitempty" gorm:"type:varchar(128)"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty" gorm:"type:varchar(16)"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at" gorm:"index"`
	Used                bool      `json:"used" gorm:"not null;default:false"`
}

// Expired reports whether the code is no longer redeemable at now.
// A code whose expiry equals now is already invalid.
func (a *AuthorizationCode) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// Token is an issued access credential, optionally paired with an opaque
// refresh credential. Mutated only to set Revoked.
type Token struct {
	ID           string    `json:"token_id" gorm:"column:token_id;primaryKey;type:varchar(64)"`
	AccessToken  string    `json:"access_token" gorm:"uniqueIndex;type:varchar(1024);not null"`
	RefreshToken string    `json:"refresh_token,omitempty" gorm:"index;type:varchar(128)"`
	TokenType    string    `json:"token_type" gorm:"type:varchar(16)"`
	Scope        string    `json:"scope" gorm:"type:text"`
	ClientID     string    `json:"client_id" gorm:"index;type:varchar(64);not null"`
	UserID       string    `json:"user_id,omitempty" gorm:"index;type:varchar(64)"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"index"`
	// RefreshExpiresAt bounds the refresh credential; zero when the token
	// carries no refresh token.
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
	Revoked          bool      `json:"revoked" gorm:"not null;default:false"`
}

// Expired reports whether the access credential has passed its expiry at now.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// RefreshExpired reports whether the refresh credential has passed its
// expiry at now. Tokens without a refresh credential are always expired.
func (t *Token) RefreshExpired(now time.Time) bool {
	if t.RefreshToken == "" || t.RefreshExpiresAt.IsZero() {
		return true
	}
	return !now.Before(t.RefreshExpiresAt)
}

// Active reports whether the token is currently usable.
func (t *Token) Active(now time.Time) bool {
	return !t.Revoked && !t.Expired(now)
}
