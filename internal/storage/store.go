package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned for lookups that match nothing. Callers map
	// it into the OAuth2 taxonomy; the store itself stays protocol-neutral.
	ErrNotFound = errors.New("storage: not found")

	// ErrAlreadyExists is returned when a uniqueness constraint would break.
	ErrAlreadyExists = errors.New("storage: already exists")

	// ErrConsumed is returned when a conditional write loses the race:
	// the code was already redeemed or the refresh token already rotated.
	ErrConsumed = errors.New("storage: already consumed")
)

// Store is the persistence collaborator shared by all engines. It is the
// single serialization point: the conditional-write operations below are
// the only place single-use and rotation invariants are enforced.
type Store interface {
	// Clients
	CreateClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, clientID string) (*Client, error)
	UpdateClient(ctx context.Context, client *Client) error
	DeleteClient(ctx context.Context, clientID string) error
	ListClients(ctx context.Context) ([]*Client, error)

	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, userID string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// Authorization codes
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// ConsumeAuthorizationCode atomically marks the code used. Under
	// concurrent redemption exactly one caller gets the code back;
	// the rest get ErrConsumed (or ErrNotFound if it never existed).
	ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// UnconsumeAuthorizationCode rolls a consumption back when the
	// caller failed to issue a token for it, so the grant is not lost.
	UnconsumeAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// Tokens
	SaveToken(ctx context.Context, token *Token) error
	GetTokenByAccess(ctx context.Context, accessToken string) (*Token, error)
	GetTokenByRefresh(ctx context.Context, refreshToken string) (*Token, error)

	// ConsumeRefreshToken atomically revokes the refresh credential bound
	// to clientID and returns its token record; at most one concurrent
	// caller succeeds. Used only when rotation is enabled.
	ConsumeRefreshToken(ctx context.Context, refreshToken, clientID string) (*Token, error)

	// UnconsumeRefreshToken rolls a rotation back when issuing the
	// replacement failed, so the old credential is not lost.
	UnconsumeRefreshToken(ctx context.Context, token *Token) error

	// RevokeToken marks the token matching value (access or refresh)
	// revoked. Idempotent: unknown and already-revoked values succeed.
	RevokeToken(ctx context.Context, value string) error

	// RevokeTokenByID revokes by token_id (admin surface).
	RevokeTokenByID(ctx context.Context, tokenID string) error

	// Admin listings
	ListTokens(ctx context.Context) ([]*Token, error)
	CountTokens(ctx context.Context) (total int64, revoked int64, err error)

	Close() error
}
