package engine

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/authgrid/authgrid/internal/common/cnst"
	"github.com/authgrid/authgrid/internal/common/errorx"
	"github.com/authgrid/authgrid/internal/events"
	"github.com/authgrid/authgrid/internal/storage"
	"github.com/authgrid/authgrid/pkg/clock"
)

// AuthorizationOptions are the code-issuance policy knobs.
type AuthorizationOptions struct {
	CodeTTL              time.Duration
	AllowArbitraryScopes bool
}

// AuthorizationEngine issues and redeems authorization codes. A code is
// bound at issuance to its client, redirect URI, scope and optional
// PKCE challenge, and every binding is re-verified at redemption.
type AuthorizationEngine struct {
	logger *zap.Logger
	store  storage.Store
	tokens *TokenEngine
	events events.Publisher
	clock  clock.Clock
	opts   AuthorizationOptions
}

// NewAuthorizationEngine creates an AuthorizationEngine.
func NewAuthorizationEngine(logger *zap.Logger, store storage.Store, tokens *TokenEngine, publisher events.Publisher, clk clock.Clock, opts AuthorizationOptions) *AuthorizationEngine {
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = 10 * time.Minute
	}
	return &AuthorizationEngine{
		logger: logger.Named("engine.authorize"),
		store:  store,
		tokens: tokens,
		events: publisher,
		clock:  clk,
		opts:   opts,
	}
}

// CodeRequest is a validated authorization request for an authenticated
// resource owner.
type CodeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	UserID              string
}

// IssuedCode is the authorization response. State echoes the request
// verbatim.
type IssuedCode struct {
	Code        string `json:"code"`
	State       string `json:"state,omitempty"`
	RedirectURI string `json:"-"`
}

// IssueCode validates the authorization request and mints a short-lived
// single-use code. Redirect URI errors never redirect; they surface to
// the caller directly.
func (e *AuthorizationEngine) IssueCode(ctx context.Context, req *CodeRequest) (*IssuedCode, error) {
	if req.ClientID == "" {
		return nil, errorx.ErrInvalidRequest.WithDescription("client_id is required")
	}

	client, err := e.store.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errorx.ErrInvalidClient
		}
		e.logger.Error("client lookup failed", zap.Error(err))
		return nil, errorx.ErrServerError
	}

	if req.RedirectURI == "" || !client.HasRedirectURI(req.RedirectURI) {
		return nil, errorx.ErrInvalidRequest.WithDescription("redirect_uri is not registered for this client")
	}
	if req.ResponseType != cnst.ResponseTypeCode {
		return nil, errorx.ErrUnsupportedResponseType
	}
	if !client.HasGrantType(cnst.GrantAuthorizationCode) {
		return nil, errorx.ErrUnauthorizedClient
	}
	if req.UserID == "" {
		return nil, errorx.ErrInvalidRequest.WithDescription("authorization requires an authenticated user")
	}

	challengeMethod := req.CodeChallengeMethod
	if req.CodeChallenge != "" && challengeMethod == "" {
		challengeMethod = cnst.PKCEMethodPlain
	}
	switch challengeMethod {
	case "", cnst.PKCEMethodPlain, cnst.PKCEMethodS256:
	default:
		return nil, errorx.ErrInvalidRequest.WithDescription("unsupported code_challenge_method")
	}
	if challengeMethod != "" && req.CodeChallenge == "" {
		return nil, errorx.ErrInvalidRequest.WithDescription("code_challenge is required with code_challenge_method")
	}

	scope, err := resolveScope(client, req.Scope, e.opts.AllowArbitraryScopes)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	code := &storage.AuthorizationCode{
		Code:                newOpaqueToken(),
		ClientID:            client.ID,
		UserID:              req.UserID,
		RedirectURI:         req.RedirectURI,
		Scope:               scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: challengeMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(e.opts.CodeTTL),
	}
	if err := e.store.SaveAuthorizationCode(ctx, code); err != nil {
		e.logger.Error("failed to persist authorization code", zap.Error(err))
		return nil, errorx.ErrServerError
	}

	e.events.Publish(events.Event{
		Type:      events.TypeCodeIssued,
		Timestamp: now,
		ClientID:  client.ID,
		UserID:    req.UserID,
		Scope:     scope,
	})
	e.logger.Info("authorization code issued",
		zap.String("client_id", client.ID),
		zap.String("user_id", req.UserID))

	return &IssuedCode{Code: code.Code, State: req.State, RedirectURI: req.RedirectURI}, nil
}

// AuthenticateUser verifies resource-owner credentials for the
// authorization endpoint. Unknown usernames, wrong passwords and
// disabled accounts all collapse to access_denied.
func (e *AuthorizationEngine) AuthenticateUser(ctx context.Context, username, password string) (*storage.User, error) {
	if username == "" || password == "" {
		return nil, errorx.ErrAccessDenied
	}

	user, err := e.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummySecretHash, []byte(password))
			return nil, errorx.ErrAccessDenied
		}
		e.logger.Error("user lookup failed", zap.Error(err))
		return nil, errorx.ErrServerError
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errorx.ErrAccessDenied
	}
	if !user.Enabled {
		return nil, errorx.ErrAccessDenied
	}
	return user, nil
}

// RedeemRequest carries the token-endpoint parameters for
// grant_type=authorization_code. Client is already authenticated.
type RedeemRequest struct {
	Client       *storage.Client
	Code         string
	RedirectURI  string
	CodeVerifier string
}

// Redeem exchanges a code for tokens. The code is consumed atomically
// first, so replays and concurrent redemptions fail; a consumed code
// that then fails validation stays burned. Only a downstream issuance
// failure rolls the consumption back.
func (e *AuthorizationEngine) Redeem(ctx context.Context, req *RedeemRequest) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, errorx.ErrInvalidRequest.WithDescription("code is required")
	}

	code, err := e.store.ConsumeAuthorizationCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrConsumed) {
			return nil, errorx.ErrInvalidGrant
		}
		e.logger.Error("failed to consume authorization code", zap.Error(err))
		return nil, errorx.ErrServerError
	}

	now := e.clock.Now()
	if code.Expired(now) {
		return nil, errorx.ErrInvalidGrant
	}
	if code.ClientID != req.Client.ID {
		return nil, errorx.ErrInvalidGrant
	}
	if req.RedirectURI != code.RedirectURI {
		return nil, errorx.ErrInvalidGrant
	}
	if err := verifyPKCE(code, req.CodeVerifier); err != nil {
		return nil, err
	}

	resp, err := e.tokens.Issue(ctx, req.Client, code.UserID, code.Scope, cnst.GrantAuthorizationCode)
	if err != nil {
		// Issuance failed through no fault of the client; restore the
		// code so the grant is not lost.
		if uerr := e.store.UnconsumeAuthorizationCode(ctx, code); uerr != nil {
			e.logger.Error("failed to restore authorization code", zap.Error(uerr))
		}
		return nil, err
	}

	e.events.Publish(events.Event{
		Type:      events.TypeCodeRedeemed,
		Timestamp: now,
		ClientID:  req.Client.ID,
		UserID:    code.UserID,
		Scope:     code.Scope,
	})
	return resp, nil
}

// verifyPKCE checks the code_verifier against the challenge recorded at
// issuance. Comparisons are constant-time.
func verifyPKCE(code *storage.AuthorizationCode, verifier string) error {
	if code.CodeChallenge == "" {
		return nil
	}
	if verifier == "" {
		return errorx.ErrInvalidGrant.WithDescription("code_verifier is required")
	}

	var derived string
	switch code.CodeChallengeMethod {
	case cnst.PKCEMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		derived = base64.RawURLEncoding.EncodeToString(sum[:])
	case cnst.PKCEMethodPlain:
		derived = verifier
	default:
		return errorx.ErrInvalidGrant
	}

	if subtle.ConstantTimeCompare([]byte(derived), []byte(code.CodeChallenge)) != 1 {
		return errorx.ErrInvalidGrant
	}
	return nil
}
