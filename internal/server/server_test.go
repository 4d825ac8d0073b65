package server

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/authgrid/authgrid/internal/common/cnst"
	"github.com/authgrid/authgrid/internal/common/config"
	"github.com/authgrid/authgrid/internal/engine"
	"github.com/authgrid/authgrid/internal/events"
	"github.com/authgrid/authgrid/internal/jwt"
	"github.com/authgrid/authgrid/internal/storage"
	"github.com/authgrid/authgrid/pkg/clock"
)

const (
	testSecretKey = "server-test-secret-key-0123456789abc"
	callbackURI   = "https://app.example.com/callback"
)

type testServer struct {
	router *gin.Engine
	store  *storage.MemoryStore
	clock  *clock.Fake
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.JWT.SecretKey = testSecretKey
	cfg.JWT.Issuer = "https://auth.example.com"
	cfg.OAuth.AccessTokenTTL = time.Hour
	cfg.OAuth.RefreshTokenTTL = 24 * time.Hour
	cfg.OAuth.AuthorizationCodeTTL = 10 * time.Minute
	cfg.OAuth.RefreshTokenRotation = true

	store := storage.NewMemoryStore()
	clk := clock.NewFake(time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC))
	signer, err := jwt.NewService(jwt.Config{SecretKey: cfg.JWT.SecretKey, Issuer: cfg.JWT.Issuer}, clk)
	require.NoError(t, err)

	logger := zap.NewNop()
	pub := events.NopPublisher{}

	clients := engine.NewClientAuthority(logger, store, pub, clk)
	tokens := engine.NewTokenEngine(logger, store, signer, pub, clk, engine.TokenOptions{
		AccessTokenTTL:       cfg.OAuth.AccessTokenTTL,
		RefreshTokenTTL:      cfg.OAuth.RefreshTokenTTL,
		RefreshTokenRotation: cfg.OAuth.RefreshTokenRotation,
	})
	authz := engine.NewAuthorizationEngine(logger, store, tokens, pub, clk, engine.AuthorizationOptions{
		CodeTTL: cfg.OAuth.AuthorizationCodeTTL,
	})

	router := gin.New()
	NewServer(logger, cfg, clients, authz, tokens, nil).RegisterRoutes(router)
	return &testServer{router: router, store: store, clock: clk}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) postForm(path string, form url.Values, basicUser, basicPass string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicUser != "" {
		req.SetBasicAuth(basicUser, basicPass)
	}
	return ts.do(req)
}

// registerClient provisions a client through the registration endpoint.
func (ts *testServer) registerClient(t *testing.T, grantTypes []string, scope string) (clientID, clientSecret string) {
	t.Helper()

	body, err := json.Marshal(engine.RegisterRequest{
		Name:         "test app",
		RedirectURIs: []string{callbackURI},
		GrantTypes:   grantTypes,
		Scope:        scope,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/clients/register", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var reg engine.RegisteredClient
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))
	return reg.ClientID, reg.ClientSecret
}

func (ts *testServer) seedUser(t *testing.T, username, password string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, ts.store.CreateUser(context.Background(), &storage.User{
		ID: "user-" + username, Username: username, PasswordHash: string(hash), Enabled: true,
	}))
}

func allGrants() []string {
	return []string{
		cnst.GrantAuthorizationCode,
		cnst.GrantClientCredentials,
		cnst.GrantPassword,
		cnst.GrantRefreshToken,
	}
}

func decodeToken(t *testing.T, w *httptest.ResponseRecorder) *engine.TokenResponse {
	t.Helper()
	var resp engine.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return &resp
}

func TestTokenEndpoint_ClientCredentials(t *testing.T) {
	ts := newTestServer(t)
	id, secret := ts.registerClient(t, allGrants(), "read write")

	w := ts.postForm("/oauth/token", url.Values{
		"grant_type": {cnst.GrantClientCredentials},
		"scope":      {"read"},
	}, id, secret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	resp := decodeToken(t, w)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "read", resp.Scope)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Empty(t, resp.RefreshToken)
}

func TestTokenEndpoint_ClientSecretPost(t *testing.T) {
	ts := newTestServer(t)
	id, secret := ts.registerClient(t, allGrants(), "read")

	w := ts.postForm("/oauth/token", url.Values{
		"grant_type":    {cnst.GrantClientCredentials},
		"client_id":     {id},
		"client_secret": {secret},
	}, "", "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestTokenEndpoint_UniformInvalidClient(t *testing.T) {
	ts := newTestServer(t)
	id, _ := ts.registerClient(t, allGrants(), "read")

	form := url.Values{"grant_type": {cnst.GrantClientCredentials}}

	wrongSecret := ts.postForm("/oauth/token", form, id, "wrong")
	unknownClient := ts.postForm("/oauth/token", form, "ghost", "whatever")

	// a wrong secret and an unknown client must be indistinguishable
	assert.Equal(t, http.StatusUnauthorized, wrongSecret.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownClient.Code)
	assert.JSONEq(t, wrongSecret.Body.String(), unknownClient.Body.String())
	assert.Contains(t, wrongSecret.Body.String(), "invalid_client")
}

func TestTokenEndpoint_UnsupportedGrantType(t *testing.T) {
	ts := newTestServer(t)
	id, secret := ts.registerClient(t, allGrants(), "read")

	w := ts.postForm("/oauth/token", url.Values{"grant_type": {"implicit"}}, id, secret)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported_grant_type")
}

func TestTokenEndpoint_PasswordGrant(t *testing.T) {
	ts := newTestServer(t)
	id, secret := ts.registerClient(t, allGrants(), "read")
	ts.seedUser(t, "alice", "s3cret")

	w := ts.postForm("/oauth/token", url.Values{
		"grant_type": {cnst.GrantPassword},
		"username":   {"alice"},
		"password":   {"s3cret"},
	}, id, secret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decodeToken(t, w).RefreshToken)

	bad := ts.postForm("/oauth/token", url.Values{
		"grant_type": {cnst.GrantPassword},
		"username":   {"alice"},
		"password":   {"wrong"},
	}, id, secret)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Contains(t, bad.Body.String(), "invalid_grant")
}

// authorizeCode runs the authorization endpoint and extracts the code
// from the redirect.
func (ts *testServer) authorizeCode(t *testing.T, params url.Values, username, password string) (code, state string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+params.Encode(), nil)
	req.SetBasicAuth(username, password)
	w := ts.do(req)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Empty(t, loc.Query().Get("error"), "unexpected error redirect: %s", loc)
	return loc.Query().Get("code"), loc.Query().Get("state")
}

func TestAuthorizationCodeFlow(t *testing.T) {
	ts := newTestServer(t)
	id, secret := ts.registerClient(t, allGrants(), "read")
	ts.seedUser(t, "alice", "pw")

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	code, state := ts.authorizeCode(t, url.Values{
		"response_type":         {"code"},
		"client_id":             {id},
		"redirect_uri":          {callbackURI},
		"scope":                 {"read"},
		"state":                 {"abc123"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}, "alice", "pw")
	assert.Equal(t, "abc123", state)
	require.NotEmpty(t, code)

	w := ts.postForm("/oauth/token", url.Values{
		"grant_type":    {cnst.GrantAuthorizationCode},
		"code":          {code},
		"redirect_uri":  {callbackURI},
		"code_verifier": {verifier},
	}, id, secret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeToken(t, w)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)

	// replaying the code fails
	replay := ts.postForm("/oauth/token", url.Values{
		"grant_type":    {cnst.GrantAuthorizationCode},
		"code":          {code},
		"redirect_uri":  {callbackURI},
		"code_verifier": {verifier},
	}, id, secret)
	assert.Equal(t, http.StatusBadRequest, replay.Code)
	assert.Contains(t, replay.Body.String(), "invalid_grant")
}

func TestAuthorizationCodeFlow_ConcurrentRedemption(t *testing.T) {
	ts := newTestServer(t)
	id, secret := ts.registerClient(t, allGrants(), "read")
	ts.seedUser(t, "alice", "pw")

	code, _ := ts.authorizeCode(t, url.Values{
		"response_type": {"code"},
		"client_id":     {id},
		"redirect_uri":  {callbackURI},
	}, "alice", "pw")

	const n = 8
	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := ts.postForm("/oauth/token", url.Values{
				"grant_type":   {cnst.GrantAuthorizationCode},
				"code":         {code},
				"redirect_uri": {callbackURI},
			}, id, secret)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	success := 0
	for _, c := range codes {
		if c == http.StatusOK {
			success++
		}
	}
	assert.Equal(t, 1, success, "exactly one concurrent redemption may succeed")
}

func TestAuthorizeEndpoint_BadRedirectURIDoesNotRedirect(t *testing.T) {
	ts := newTestServer(t)
	id, _ := ts.registerClient(t, allGrants(), "read")
	ts.seedUser(t, "alice", "pw")

	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+url.Values{
		"response_type": {"code"},
		"client_id":     {id},
		"redirect_uri":  {"https://evil.example.com/cb"},
	}.Encode(), nil)
	req.SetBasicAuth("alice", "pw")
	w := ts.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
}

func TestAuthorizeEndpoint_DeniedUserRedirectsWithError(t *testing.T) {
	ts := newTestServer(t)
	id, _ := ts.registerClient(t, allGrants(), "read")

	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+url.Values{
		"response_type": {"code"},
		"client_id":     {id},
		"redirect_uri":  {callbackURI},
		"state":         {"s1"},
	}.Encode(), nil)
	req.SetBasicAuth("nobody", "wrong")
	w := ts.do(req)
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "access_denied", loc.Query().Get("error"))
	assert.Equal(t, "s1", loc.Query().Get("state"))
}

func TestRefreshEndpoint_Rotation(t *testing.T) {
	ts := newTestServer(t)
	id, secret := ts.registerClient(t, allGrants(), "read")
	ts.seedUser(t, "alice", "pw")

	first := decodeToken(t, ts.postForm("/oauth/token", url.Values{
		"grant_type": {cnst.GrantPassword},
		"username":   {"alice"},
		"password":   {"pw"},
	}, id, secret))

	w := ts.postForm("/oauth/token", url.Values{
		"grant_type":    {cnst.GrantRefreshToken},
		"refresh_token": {first.RefreshToken},
	}, id, secret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	second := decodeToken(t, w)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	replay := ts.postForm("/oauth/token", url.Values{
		"grant_type":    {cnst.GrantRefreshToken},
		"refresh_token": {first.RefreshToken},
	}, id, secret)
	assert.Equal(t, http.StatusBadRequest, replay.Code)
	assert.Contains(t, replay.Body.String(), "invalid_grant")
}

func TestIntrospectEndpoint(t *testing.T) {
	ts := newTestServer(t)
	id, secret := ts.registerClient(t, allGrants(), "read")

	tok := decodeToken(t, ts.postForm("/oauth/token", url.Values{
		"grant_type": {cnst.GrantClientCredentials},
	}, id, secret))

	w := ts.postForm("/oauth/introspect", url.Values{"token": {tok.AccessToken}}, id, secret)
	require.Equal(t, http.StatusOK, w.Code)
	var active map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &active))
	assert.Equal(t, true, active["active"])
	assert.Equal(t, id, active["client_id"])

	// unknown tokens are a 200 with active:false, not an error
	w = ts.postForm("/oauth/introspect", url.Values{"token": {"garbage"}}, id, secret)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"active": false}`, w.Body.String())

	// unauthenticated introspection is rejected
	w = ts.postForm("/oauth/introspect", url.Values{"token": {tok.AccessToken}}, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRevokeEndpoint_Idempotent(t *testing.T) {
	ts := newTestServer(t)
	id, secret := ts.registerClient(t, allGrants(), "read")

	tok := decodeToken(t, ts.postForm("/oauth/token", url.Values{
		"grant_type": {cnst.GrantClientCredentials},
	}, id, secret))

	for i := 0; i < 2; i++ {
		w := ts.postForm("/oauth/revoke", url.Values{"token": {tok.AccessToken}}, id, secret)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	// revoking an unknown value also succeeds
	w := ts.postForm("/oauth/revoke", url.Values{"token": {"never-issued"}}, id, secret)
	assert.Equal(t, http.StatusOK, w.Code)

	// and the token really is dead
	w = ts.postForm("/oauth/introspect", url.Values{"token": {tok.AccessToken}}, id, secret)
	assert.JSONEq(t, `{"active": false}`, w.Body.String())
}

func TestMetadataEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var meta serverMetadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, "https://auth.example.com", meta.Issuer)
	assert.Contains(t, meta.GrantTypesSupported, cnst.GrantAuthorizationCode)
	assert.Contains(t, meta.CodeChallengeMethodsSupported, cnst.PKCEMethodS256)
	assert.Contains(t, meta.TokenEndpoint, "/oauth/token")
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestAdminEndpoints(t *testing.T) {
	ts := newTestServer(t)
	id, secret := ts.registerClient(t, allGrants(), "read admin")

	// no bearer token
	w := ts.do(httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// token without the admin scope
	readOnly := decodeToken(t, ts.postForm("/oauth/token", url.Values{
		"grant_type": {cnst.GrantClientCredentials},
		"scope":      {"read"},
	}, id, secret))
	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer "+readOnly.AccessToken)
	assert.Equal(t, http.StatusForbidden, ts.do(req).Code)

	// admin-scoped token
	admin := decodeToken(t, ts.postForm("/oauth/token", url.Values{
		"grant_type": {cnst.GrantClientCredentials},
		"scope":      {"admin"},
	}, id, secret))
	req = httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer "+admin.AccessToken)
	w = ts.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var stats map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats["clients"])

	req = httptest.NewRequest(http.MethodGet, "/admin/tokens", nil)
	req.Header.Set("Authorization", "Bearer "+admin.AccessToken)
	w = ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), admin.AccessToken, "token values must not leak through listings")
}

func TestRegisterEndpoint_Validation(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/clients/register", strings.NewReader(`{"name":""}`))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
