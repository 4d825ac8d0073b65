package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/authgrid/authgrid/internal/common/cnst"
	"github.com/authgrid/authgrid/internal/common/errorx"
	"github.com/authgrid/authgrid/internal/events"
	"github.com/authgrid/authgrid/internal/jwt"
	"github.com/authgrid/authgrid/internal/storage"
	"github.com/authgrid/authgrid/pkg/clock"
)

// TokenOptions are the issuance policy knobs.
type TokenOptions struct {
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	RefreshTokenRotation bool
	AllowArbitraryScopes bool
}

// TokenEngine mints, refreshes, introspects and revokes tokens. Access
// tokens are signed JWTs; refresh tokens are opaque random strings that
// exist only in storage.
type TokenEngine struct {
	logger *zap.Logger
	store  storage.Store
	signer *jwt.Service
	events events.Publisher
	clock  clock.Clock
	opts   TokenOptions
}

// NewTokenEngine creates a TokenEngine.
func NewTokenEngine(logger *zap.Logger, store storage.Store, signer *jwt.Service, publisher events.Publisher, clk clock.Clock, opts TokenOptions) *TokenEngine {
	if opts.AccessTokenTTL <= 0 {
		opts.AccessTokenTTL = time.Hour
	}
	if opts.RefreshTokenTTL <= 0 {
		opts.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	return &TokenEngine{
		logger: logger.Named("engine.token"),
		store:  store,
		signer: signer,
		events: publisher,
		clock:  clk,
		opts:   opts,
	}
}

// TokenResponse is the RFC 6749 token endpoint success body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// IntrospectionResponse is the RFC 7662 response body. All fields but
// Active are omitted when the token is not active.
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
}

// Issue mints an access token for the client/user/scope triple.
// client_credentials tokens carry no refresh token: the client can
// always re-authenticate instead.
func (e *TokenEngine) Issue(ctx context.Context, client *storage.Client, userID, scope, grantType string) (*TokenResponse, error) {
	now := e.clock.Now()

	accessToken, err := e.signer.Sign(userID, client.ID, scope, now, e.opts.AccessTokenTTL)
	if err != nil {
		e.logger.Error("failed to sign access token", zap.Error(err))
		return nil, errorx.ErrServerError
	}

	record := &storage.Token{
		ID:          uuid.New().String(),
		AccessToken: accessToken,
		TokenType:   cnst.TokenTypeBearer,
		Scope:       scope,
		ClientID:    client.ID,
		UserID:      userID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(e.opts.AccessTokenTTL),
	}
	if grantType != cnst.GrantClientCredentials {
		record.RefreshToken = newOpaqueToken()
		record.RefreshExpiresAt = now.Add(e.opts.RefreshTokenTTL)
	}

	if err := e.store.SaveToken(ctx, record); err != nil {
		e.logger.Error("failed to persist token", zap.Error(err))
		return nil, errorx.ErrServerError
	}

	e.events.Publish(events.Event{
		Type:      events.TypeTokenIssued,
		Timestamp: now,
		ClientID:  client.ID,
		UserID:    userID,
		TokenID:   record.ID,
		GrantType: grantType,
		Scope:     scope,
	})
	e.logger.Info("token issued",
		zap.String("token_id", record.ID),
		zap.String("client_id", client.ID),
		zap.String("grant_type", grantType))

	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    cnst.TokenTypeBearer,
		ExpiresIn:    int64(e.opts.AccessTokenTTL.Seconds()),
		RefreshToken: record.RefreshToken,
		Scope:        scope,
	}, nil
}

// ClientCredentialsGrant handles grant_type=client_credentials for an
// already-authenticated client.
func (e *TokenEngine) ClientCredentialsGrant(ctx context.Context, client *storage.Client, requestedScope string) (*TokenResponse, error) {
	scope, err := resolveScope(client, requestedScope, e.opts.AllowArbitraryScopes)
	if err != nil {
		return nil, err
	}
	return e.Issue(ctx, client, "", scope, cnst.GrantClientCredentials)
}

// PasswordGrant handles grant_type=password. Unknown usernames, wrong
// passwords and disabled accounts all yield the same invalid_grant.
func (e *TokenEngine) PasswordGrant(ctx context.Context, client *storage.Client, username, password, requestedScope string) (*TokenResponse, error) {
	if username == "" || password == "" {
		return nil, errorx.ErrInvalidRequest.WithDescription("username and password are required")
	}

	user, err := e.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummySecretHash, []byte(password))
			e.publishAuthFailure(client.ID)
			return nil, errorx.ErrInvalidGrant
		}
		e.logger.Error("user lookup failed", zap.Error(err))
		return nil, errorx.ErrServerError
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		e.publishAuthFailure(client.ID)
		return nil, errorx.ErrInvalidGrant
	}
	if !user.Enabled {
		e.publishAuthFailure(client.ID)
		return nil, errorx.ErrInvalidGrant
	}

	scope, err := resolveScope(client, requestedScope, e.opts.AllowArbitraryScopes)
	if err != nil {
		return nil, err
	}

	e.events.Publish(events.Event{
		Type:      events.TypeUserAuthenticated,
		Timestamp: e.clock.Now(),
		ClientID:  client.ID,
		UserID:    user.ID,
	})
	return e.Issue(ctx, client, user.ID, scope, cnst.GrantPassword)
}

// Refresh exchanges a refresh token for a new token pair. With rotation
// enabled the old refresh token is atomically invalidated before the
// replacement is issued, so a replayed refresh token loses even under
// concurrency; a request that fails validation leaves it usable.
func (e *TokenEngine) Refresh(ctx context.Context, client *storage.Client, refreshToken, requestedScope string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, errorx.ErrInvalidRequest.WithDescription("refresh_token is required")
	}

	// Validate against a plain read first so a rejected request leaves the
	// credential intact; the conditional write below only claims requests
	// that would otherwise succeed.
	old, err := e.store.GetTokenByRefresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errorx.ErrInvalidGrant
		}
		e.logger.Error("refresh token lookup failed", zap.Error(err))
		return nil, errorx.ErrServerError
	}
	if old.ClientID != client.ID || old.Revoked {
		return nil, errorx.ErrInvalidGrant
	}

	now := e.clock.Now()
	if old.RefreshExpired(now) {
		return nil, errorx.ErrInvalidGrant
	}

	scope, err := narrowScope(old.Scope, requestedScope)
	if err != nil {
		return nil, err
	}

	if e.opts.RefreshTokenRotation {
		// Atomic claim; a concurrent refresh of the same credential loses
		// here even though the read above saw it unrevoked.
		old, err = e.store.ConsumeRefreshToken(ctx, refreshToken, client.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrConsumed) {
				return nil, errorx.ErrInvalidGrant
			}
			e.logger.Error("refresh token claim failed", zap.Error(err))
			return nil, errorx.ErrServerError
		}
	}

	resp, err := e.Issue(ctx, client, old.UserID, scope, cnst.GrantRefreshToken)
	if err != nil {
		if e.opts.RefreshTokenRotation {
			if rerr := e.store.UnconsumeRefreshToken(ctx, old); rerr != nil {
				e.logger.Error("refresh token restore failed", zap.Error(rerr), zap.String("token_id", old.ID))
			}
		}
		return nil, err
	}

	e.events.Publish(events.Event{
		Type:      events.TypeTokenRefresh,
		Timestamp: now,
		ClientID:  client.ID,
		UserID:    old.UserID,
		TokenID:   old.ID,
		Scope:     scope,
	})
	return resp, nil
}

// Introspect implements RFC 7662 for an authenticated client. Tokens
// that are unknown, expired or revoked all collapse to
// {"active": false} so callers cannot probe token existence, but a
// failing store still surfaces as server_error.
func (e *TokenEngine) Introspect(ctx context.Context, tokenValue string) (*IntrospectionResponse, error) {
	inactive := &IntrospectionResponse{Active: false}
	if tokenValue == "" {
		return inactive, nil
	}

	now := e.clock.Now()

	record, err := e.store.GetTokenByAccess(ctx, tokenValue)
	if err == nil {
		if !record.Active(now) {
			return inactive, nil
		}
		return &IntrospectionResponse{
			Active:    true,
			Scope:     record.Scope,
			ClientID:  record.ClientID,
			TokenType: record.TokenType,
			Sub:       record.UserID,
			Exp:       record.ExpiresAt.Unix(),
			Iat:       record.CreatedAt.Unix(),
		}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		e.logger.Error("introspection lookup failed", zap.Error(err))
		return nil, errorx.ErrServerError
	}

	record, err = e.store.GetTokenByRefresh(ctx, tokenValue)
	if err == nil {
		if record.Revoked || record.RefreshExpired(now) {
			return inactive, nil
		}
		return &IntrospectionResponse{
			Active:    true,
			Scope:     record.Scope,
			ClientID:  record.ClientID,
			TokenType: "refresh_token",
			Sub:       record.UserID,
			Exp:       record.RefreshExpiresAt.Unix(),
			Iat:       record.CreatedAt.Unix(),
		}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		e.logger.Error("introspection lookup failed", zap.Error(err))
		return nil, errorx.ErrServerError
	}

	return inactive, nil
}

// Revoke implements RFC 7009 for an authenticated client. Unknown
// values, already-revoked tokens and tokens owned by other clients all
// succeed silently.
func (e *TokenEngine) Revoke(ctx context.Context, client *storage.Client, tokenValue string) error {
	if tokenValue == "" {
		return nil
	}

	record, err := e.store.GetTokenByAccess(ctx, tokenValue)
	if errors.Is(err, storage.ErrNotFound) {
		record, err = e.store.GetTokenByRefresh(ctx, tokenValue)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		e.logger.Error("token lookup failed during revocation", zap.Error(err))
		return errorx.ErrServerError
	}
	if record.ClientID != client.ID {
		// Not this client's token. RFC 7009 forbids revealing that.
		return nil
	}

	if err := e.store.RevokeToken(ctx, tokenValue); err != nil {
		e.logger.Error("failed to revoke token", zap.Error(err))
		return errorx.ErrServerError
	}

	e.events.Publish(events.Event{
		Type:      events.TypeTokenRevoked,
		Timestamp: e.clock.Now(),
		ClientID:  client.ID,
		UserID:    record.UserID,
		TokenID:   record.ID,
	})
	e.logger.Info("token revoked",
		zap.String("token_id", record.ID),
		zap.String("client_id", client.ID))
	return nil
}

// Validate checks an access token end to end: signature, time claims
// and revocation state. Resource endpoints call this.
func (e *TokenEngine) Validate(ctx context.Context, accessToken string) (*jwt.Claims, error) {
	claims, err := e.signer.Verify(accessToken)
	if err != nil {
		return nil, err
	}

	record, err := e.store.GetTokenByAccess(ctx, accessToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, jwt.ErrInvalidToken
		}
		return nil, err
	}
	if !record.Active(e.clock.Now()) {
		return nil, jwt.ErrInvalidToken
	}
	return claims, nil
}

// List returns every token record for the admin surface.
func (e *TokenEngine) List(ctx context.Context) ([]*storage.Token, error) {
	return e.store.ListTokens(ctx)
}

// Stats returns total and revoked token counts.
func (e *TokenEngine) Stats(ctx context.Context) (total int64, revoked int64, err error) {
	return e.store.CountTokens(ctx)
}

// RevokeByID revokes a token by its ID (admin surface). Unlike Revoke
// it reports unknown IDs.
func (e *TokenEngine) RevokeByID(ctx context.Context, tokenID string) error {
	if err := e.store.RevokeTokenByID(ctx, tokenID); err != nil {
		return err
	}
	e.events.Publish(events.Event{
		Type:      events.TypeTokenRevoked,
		Timestamp: e.clock.Now(),
		TokenID:   tokenID,
	})
	return nil
}

func (e *TokenEngine) publishAuthFailure(clientID string) {
	e.events.Publish(events.Event{
		Type:      events.TypeUserAuthFailed,
		Timestamp: e.clock.Now(),
		ClientID:  clientID,
	})
}
