package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/authgrid/authgrid/internal/common/cnst"
	"github.com/authgrid/authgrid/internal/events"
	"github.com/authgrid/authgrid/internal/jwt"
	"github.com/authgrid/authgrid/internal/storage"
	"github.com/authgrid/authgrid/pkg/clock"
)

const testSecretKey = "test-secret-key-0123456789abcdef0123"

var testStart = time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

type testRig struct {
	store   *storage.MemoryStore
	clock   *clock.Fake
	signer  *jwt.Service
	clients *ClientAuthority
	tokens  *TokenEngine
	authz   *AuthorizationEngine
}

func newTestRig(t *testing.T, opts TokenOptions) *testRig {
	t.Helper()

	store := storage.NewMemoryStore()
	clk := clock.NewFake(testStart)
	signer, err := jwt.NewService(jwt.Config{SecretKey: testSecretKey, Issuer: "authgrid-test"}, clk)
	require.NoError(t, err)

	logger := zap.NewNop()
	pub := events.NopPublisher{}

	tokens := NewTokenEngine(logger, store, signer, pub, clk, opts)
	return &testRig{
		store:   store,
		clock:   clk,
		signer:  signer,
		clients: NewClientAuthority(logger, store, pub, clk),
		tokens:  tokens,
		authz: NewAuthorizationEngine(logger, store, tokens, pub, clk, AuthorizationOptions{
			CodeTTL: 10 * time.Minute,
		}),
	}
}

// seedClient registers a client through the authority so the stored
// secret hash is real.
func (r *testRig) seedClient(t *testing.T, grantTypes []string, scope string) (*storage.Client, string) {
	t.Helper()

	reg, err := r.clients.Register(context.Background(), &RegisterRequest{
		Name:         "test app",
		RedirectURIs: []string{"https://app.example.com/callback"},
		GrantTypes:   grantTypes,
		Scope:        scope,
	})
	require.NoError(t, err)

	client, err := r.store.GetClient(context.Background(), reg.ClientID)
	require.NoError(t, err)
	return client, reg.ClientSecret
}

func (r *testRig) seedUser(t *testing.T, username, password string) *storage.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &storage.User{
		ID:           "user-" + username,
		Username:     username,
		PasswordHash: string(hash),
		Enabled:      true,
	}
	require.NoError(t, r.store.CreateUser(context.Background(), user))
	return user
}

func (r *testRig) introspect(t *testing.T, ctx context.Context, value string) *IntrospectionResponse {
	t.Helper()

	info, err := r.tokens.Introspect(ctx, value)
	require.NoError(t, err)
	return info
}

func allGrants() []string {
	return []string{
		cnst.GrantAuthorizationCode,
		cnst.GrantClientCredentials,
		cnst.GrantPassword,
		cnst.GrantRefreshToken,
	}
}
