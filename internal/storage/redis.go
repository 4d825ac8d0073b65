package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements the Store interface using Redis. Single-use
// consumption relies on GETDEL: under concurrent redemption only one
// caller receives the value, which is exactly the single-winner
// guarantee the protocol needs.
type RedisStore struct {
	client *redis.Client
}

// key prefixes for different types of data
const (
	clientPrefix   = "authgrid:client:"
	userPrefix     = "authgrid:user:"
	usernamePrefix = "authgrid:username:"
	codePrefix     = "authgrid:code:"
	tokenPrefix    = "authgrid:token:"
	refreshPrefix  = "authgrid:refresh:"
)

// NewRedisStore creates a new Redis store instance
func NewRedisStore(addr, username, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
	}, nil
}

func (s *RedisStore) CreateClient(ctx context.Context, client *Client) error {
	now := time.Now()
	client.CreatedAt = now
	client.UpdatedAt = now

	data, err := json.Marshal(client)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, clientPrefix+client.ID, data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

func (s *RedisStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	data, err := s.client.Get(ctx, clientPrefix+clientID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var client Client
	if err := json.Unmarshal(data, &client); err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *RedisStore) UpdateClient(ctx context.Context, client *Client) error {
	exists, err := s.client.Exists(ctx, clientPrefix+client.ID).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	client.UpdatedAt = time.Now()
	data, err := json.Marshal(client)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, clientPrefix+client.ID, data, 0).Err()
}

func (s *RedisStore) DeleteClient(ctx context.Context, clientID string) error {
	deleted, err := s.client.Del(ctx, clientPrefix+clientID).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) ListClients(ctx context.Context) ([]*Client, error) {
	var out []*Client
	iter := s.client.Scan(ctx, 0, clientPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var client Client
		if err := json.Unmarshal(data, &client); err != nil {
			continue
		}
		out = append(out, &client)
	}
	return out, iter.Err()
}

func (s *RedisStore) CreateUser(ctx context.Context, user *User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	data, err := json.Marshal(user)
	if err != nil {
		return err
	}

	// Claim the username first so two users can never share one.
	ok, err := s.client.SetNX(ctx, usernamePrefix+user.Username, user.ID, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyExists
	}

	ok, err = s.client.SetNX(ctx, userPrefix+user.ID, data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		s.client.Del(ctx, usernamePrefix+user.Username)
		return ErrAlreadyExists
	}
	return nil
}

func (s *RedisStore) GetUser(ctx context.Context, userID string) (*User, error) {
	data, err := s.client.Get(ctx, userPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *RedisStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	userID, err := s.client.Get(ctx, usernamePrefix+username).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.GetUser(ctx, userID)
}

func (s *RedisStore) SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}

	data, err := json.Marshal(code)
	if err != nil {
		return err
	}

	ttl := time.Until(code.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	ok, err := s.client.SetNX(ctx, codePrefix+code.Code, data, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

func (s *RedisStore) GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	data, err := s.client.Get(ctx, codePrefix+code).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var authCode AuthorizationCode
	if err := json.Unmarshal(data, &authCode); err != nil {
		return nil, err
	}
	return &authCode, nil
}

func (s *RedisStore) ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	// GETDEL claims the code: losers of a concurrent redemption see nil.
	data, err := s.client.GetDel(ctx, codePrefix+code).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var authCode AuthorizationCode
	if err := json.Unmarshal(data, &authCode); err != nil {
		return nil, err
	}
	authCode.Used = true
	return &authCode, nil
}

func (s *RedisStore) UnconsumeAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	restored := *code
	restored.Used = false

	data, err := json.Marshal(&restored)
	if err != nil {
		return err
	}

	ttl := time.Until(restored.ExpiresAt)
	if ttl <= 0 {
		// Already past expiry; nothing worth restoring.
		return nil
	}
	return s.client.Set(ctx, codePrefix+restored.Code, data, ttl).Err()
}

// tokenTTL keeps the record alive while either credential is usable.
func tokenTTL(token *Token) time.Duration {
	deadline := token.ExpiresAt
	if token.RefreshExpiresAt.After(deadline) {
		deadline = token.RefreshExpiresAt
	}
	ttl := time.Until(deadline)
	if ttl <= 0 {
		ttl = time.Second
	}
	return ttl
}

func (s *RedisStore) SaveToken(ctx context.Context, token *Token) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	data, err := json.Marshal(token)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, tokenPrefix+token.AccessToken, data, tokenTTL(token)).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyExists
	}

	if token.RefreshToken != "" {
		refreshTTL := time.Until(token.RefreshExpiresAt)
		if refreshTTL <= 0 {
			refreshTTL = time.Second
		}
		if err := s.client.Set(ctx, refreshPrefix+token.RefreshToken, token.AccessToken, refreshTTL).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) GetTokenByAccess(ctx context.Context, accessToken string) (*Token, error) {
	data, err := s.client.Get(ctx, tokenPrefix+accessToken).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *RedisStore) GetTokenByRefresh(ctx context.Context, refreshToken string) (*Token, error) {
	access, err := s.client.Get(ctx, refreshPrefix+refreshToken).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.GetTokenByAccess(ctx, access)
}

func (s *RedisStore) ConsumeRefreshToken(ctx context.Context, refreshToken, clientID string) (*Token, error) {
	// Claim the refresh index entry; exactly one concurrent caller wins.
	access, err := s.client.GetDel(ctx, refreshPrefix+refreshToken).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	token, err := s.GetTokenByAccess(ctx, access)
	if err != nil {
		return nil, err
	}
	if token.ClientID != clientID {
		// Wrong client: put the claim back and reveal nothing.
		refreshTTL := time.Until(token.RefreshExpiresAt)
		if refreshTTL > 0 {
			s.client.Set(ctx, refreshPrefix+refreshToken, access, refreshTTL)
		}
		return nil, ErrNotFound
	}
	if token.Revoked {
		return nil, ErrConsumed
	}

	token.Revoked = true
	if err := s.writeToken(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

func (s *RedisStore) UnconsumeRefreshToken(ctx context.Context, token *Token) error {
	restored := *token
	restored.Revoked = false

	if err := s.writeToken(ctx, &restored); err != nil {
		return err
	}
	// writeToken does not touch the refresh index, so put the claim back too.
	refreshTTL := time.Until(restored.RefreshExpiresAt)
	if refreshTTL <= 0 {
		return nil
	}
	return s.client.Set(ctx, refreshPrefix+restored.RefreshToken, restored.AccessToken, refreshTTL).Err()
}

func (s *RedisStore) RevokeToken(ctx context.Context, value string) error {
	token, err := s.GetTokenByAccess(ctx, value)
	if errors.Is(err, ErrNotFound) {
		token, err = s.GetTokenByRefresh(ctx, value)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Idempotent: unknown tokens succeed.
			return nil
		}
		return err
	}

	if token.Revoked {
		return nil
	}
	token.Revoked = true
	return s.writeToken(ctx, token)
}

func (s *RedisStore) RevokeTokenByID(ctx context.Context, tokenID string) error {
	iter := s.client.Scan(ctx, 0, tokenPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var token Token
		if err := json.Unmarshal(data, &token); err != nil {
			continue
		}
		if token.ID == tokenID {
			token.Revoked = true
			return s.writeToken(ctx, &token)
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return ErrNotFound
}

func (s *RedisStore) ListTokens(ctx context.Context) ([]*Token, error) {
	var out []*Token
	iter := s.client.Scan(ctx, 0, tokenPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var token Token
		if err := json.Unmarshal(data, &token); err != nil {
			continue
		}
		out = append(out, &token)
	}
	return out, iter.Err()
}

func (s *RedisStore) CountTokens(ctx context.Context) (int64, int64, error) {
	tokens, err := s.ListTokens(ctx)
	if err != nil {
		return 0, 0, err
	}
	var revoked int64
	for _, t := range tokens {
		if t.Revoked {
			revoked++
		}
	}
	return int64(len(tokens)), revoked, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// writeToken rewrites a token record preserving its remaining lifetime.
func (s *RedisStore) writeToken(ctx context.Context, token *Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, tokenPrefix+token.AccessToken, data, tokenTTL(token)).Err()
}
