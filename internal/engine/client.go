package engine

import (
	"context"
	"errors"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/authgrid/authgrid/internal/common/cnst"
	"github.com/authgrid/authgrid/internal/common/errorx"
	"github.com/authgrid/authgrid/internal/events"
	"github.com/authgrid/authgrid/internal/storage"
	"github.com/authgrid/authgrid/pkg/clock"
)

// dummySecretHash keeps authentication timing identical whether or not
// the client ID exists.
var dummySecretHash, _ = bcrypt.GenerateFromPassword([]byte("authgrid.dummy.secret"), bcrypt.DefaultCost)

// ClientAuthority owns client registration and authentication. Secrets
// are bcrypt-hashed at rest; the plaintext leaves this package exactly
// once, inside the RegisteredClient returned by Register.
type ClientAuthority struct {
	logger *zap.Logger
	store  storage.Store
	events events.Publisher
	clock  clock.Clock
}

// NewClientAuthority creates a ClientAuthority.
func NewClientAuthority(logger *zap.Logger, store storage.Store, publisher events.Publisher, clk clock.Clock) *ClientAuthority {
	return &ClientAuthority{
		logger: logger.Named("engine.client"),
		store:  store,
		events: publisher,
		clock:  clk,
	}
}

// RegisterRequest is the input to client registration.
type RegisterRequest struct {
	Name         string   `json:"name" binding:"required"`
	RedirectURIs []string `json:"redirect_uris"`
	GrantTypes   []string `json:"grant_types"`
	Scope        string   `json:"scope"`
}

// RegisteredClient is the registration response. ClientSecret is the
// only place the plaintext secret ever appears.
type RegisteredClient struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Name         string   `json:"name"`
	RedirectURIs []string `json:"redirect_uris"`
	GrantTypes   []string `json:"grant_types"`
	Scope        string   `json:"scope,omitempty"`
}

// Register creates a client with a generated ID and secret.
func (a *ClientAuthority) Register(ctx context.Context, req *RegisterRequest) (*RegisteredClient, error) {
	if req.Name == "" {
		return nil, errorx.ErrInvalidRequest.WithDescription("client name is required")
	}

	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{cnst.GrantAuthorizationCode}
	}
	for _, gt := range grantTypes {
		if !cnst.IsKnownGrantType(gt) {
			return nil, errorx.ErrInvalidRequest.WithDescription("unknown grant type: " + gt)
		}
	}

	if len(req.RedirectURIs) == 0 {
		return nil, errorx.ErrInvalidRequest.WithDescription("at least one redirect_uri is required")
	}
	for _, raw := range req.RedirectURIs {
		if err := validateRedirectURI(raw); err != nil {
			return nil, err
		}
	}

	secret := newOpaqueToken()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	client := &storage.Client{
		ID:           uuid.New().String(),
		SecretHash:   string(hash),
		Name:         req.Name,
		RedirectURIs: storage.StringList(req.RedirectURIs),
		GrantTypes:   storage.StringList(grantTypes),
		Scope:        req.Scope,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateClient(ctx, client); err != nil {
		a.logger.Error("failed to persist client", zap.Error(err))
		return nil, err
	}

	a.events.Publish(events.Event{
		Type:      events.TypeClientRegistered,
		Timestamp: now,
		ClientID:  client.ID,
		Scope:     client.Scope,
	})
	a.logger.Info("client registered",
		zap.String("client_id", client.ID),
		zap.String("name", client.Name))

	return &RegisteredClient{
		ClientID:     client.ID,
		ClientSecret: secret,
		Name:         client.Name,
		RedirectURIs: req.RedirectURIs,
		GrantTypes:   grantTypes,
		Scope:        client.Scope,
	}, nil
}

// Authenticate verifies a client_id/client_secret pair. Unknown IDs and
// wrong secrets are indistinguishable to the caller, and both paths pay
// the same bcrypt cost.
func (a *ClientAuthority) Authenticate(ctx context.Context, clientID, clientSecret string) (*storage.Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errorx.ErrInvalidClient
	}

	client, err := a.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummySecretHash, []byte(clientSecret))
			return nil, errorx.ErrInvalidClient
		}
		a.logger.Error("client lookup failed", zap.Error(err))
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(clientSecret)); err != nil {
		a.logger.Debug("client authentication failed", zap.String("client_id", clientID))
		return nil, errorx.ErrInvalidClient
	}
	return client, nil
}

// AuthorizeGrant checks that the grant type is implemented and that the
// client is registered for it.
func (a *ClientAuthority) AuthorizeGrant(client *storage.Client, grantType string) error {
	if !cnst.IsKnownGrantType(grantType) {
		return errorx.ErrUnsupportedGrantType
	}
	if !client.HasGrantType(grantType) {
		return errorx.ErrUnauthorizedClient.WithDescription("client is not authorized for grant type " + grantType)
	}
	return nil
}

// ValidateRedirectURI checks uri against the client's registered URIs.
// Exact string match only; no wildcard or prefix matching.
func (a *ClientAuthority) ValidateRedirectURI(client *storage.Client, uri string) error {
	if uri == "" || !client.HasRedirectURI(uri) {
		return errorx.ErrInvalidRequest.WithDescription("redirect_uri is not registered for this client")
	}
	return nil
}

// Get returns a client by ID.
func (a *ClientAuthority) Get(ctx context.Context, clientID string) (*storage.Client, error) {
	return a.store.GetClient(ctx, clientID)
}

// List returns all registered clients.
func (a *ClientAuthority) List(ctx context.Context) ([]*storage.Client, error) {
	return a.store.ListClients(ctx)
}

// Delete removes a client registration.
func (a *ClientAuthority) Delete(ctx context.Context, clientID string) error {
	return a.store.DeleteClient(ctx, clientID)
}

// validateRedirectURI accepts only absolute URIs with no fragment.
func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return errorx.ErrInvalidRequest.WithDescription("redirect_uri must be an absolute URI")
	}
	if u.Fragment != "" {
		return errorx.ErrInvalidRequest.WithDescription("redirect_uri must not contain a fragment")
	}
	return nil
}
