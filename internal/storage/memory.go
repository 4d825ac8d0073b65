package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements the Store interface using in-memory maps.
// Conditional writes are serialized by the mutex, which gives this backend
// the same single-winner semantics the SQL and redis backends get from
// their storage engines.
type MemoryStore struct {
	mu sync.RWMutex

	clients map[string]*Client
	users   map[string]*User // keyed by user_id
	codes   map[string]*AuthorizationCode
	tokens  map[string]*Token // keyed by access token
	refresh map[string]string // refresh token -> access token
}

// NewMemoryStore creates a new memory store instance
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients: make(map[string]*Client),
		users:   make(map[string]*User),
		codes:   make(map[string]*AuthorizationCode),
		tokens:  make(map[string]*Token),
		refresh: make(map[string]string),
	}
}

func (s *MemoryStore) CreateClient(ctx context.Context, client *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[client.ID]; exists {
		return ErrAlreadyExists
	}

	now := time.Now()
	client.CreatedAt = now
	client.UpdatedAt = now
	cp := *client
	s.clients[client.ID] = &cp
	return nil
}

func (s *MemoryStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *client
	return &cp, nil
}

func (s *MemoryStore) UpdateClient(ctx context.Context, client *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[client.ID]; !exists {
		return ErrNotFound
	}

	client.UpdatedAt = time.Now()
	cp := *client
	s.clients[client.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteClient(ctx context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[clientID]; !exists {
		return ErrNotFound
	}

	delete(s.clients, clientID)
	return nil
}

func (s *MemoryStore) ListClients(ctx context.Context) ([]*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return ErrAlreadyExists
	}
	for _, u := range s.users {
		if u.Username == user.Username {
			return ErrAlreadyExists
		}
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, userID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codes[code.Code]; exists {
		return ErrAlreadyExists
	}

	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}
	cp := *code
	s.codes[code.Code] = &cp
	return nil
}

func (s *MemoryStore) GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	authCode, ok := s.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *authCode
	return &cp, nil
}

func (s *MemoryStore) ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	authCode, ok := s.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	if authCode.Used {
		return nil, ErrConsumed
	}

	authCode.Used = true
	cp := *authCode
	return &cp, nil
}

func (s *MemoryStore) UnconsumeAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	authCode, ok := s.codes[code.Code]
	if !ok {
		return ErrNotFound
	}

	authCode.Used = false
	return nil
}

func (s *MemoryStore) SaveToken(ctx context.Context, token *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token.AccessToken]; exists {
		return ErrAlreadyExists
	}

	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	cp := *token
	s.tokens[token.AccessToken] = &cp
	if token.RefreshToken != "" {
		s.refresh[token.RefreshToken] = token.AccessToken
	}
	return nil
}

func (s *MemoryStore) GetTokenByAccess(ctx context.Context, accessToken string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[accessToken]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *token
	return &cp, nil
}

func (s *MemoryStore) GetTokenByRefresh(ctx context.Context, refreshToken string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	access, ok := s.refresh[refreshToken]
	if !ok {
		return nil, ErrNotFound
	}
	token, ok := s.tokens[access]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *token
	return &cp, nil
}

func (s *MemoryStore) ConsumeRefreshToken(ctx context.Context, refreshToken, clientID string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	access, ok := s.refresh[refreshToken]
	if !ok {
		return nil, ErrNotFound
	}
	token, ok := s.tokens[access]
	if !ok {
		return nil, ErrNotFound
	}
	if token.ClientID != clientID {
		return nil, ErrNotFound
	}
	if token.Revoked {
		return nil, ErrConsumed
	}

	token.Revoked = true
	cp := *token
	return &cp, nil
}

func (s *MemoryStore) UnconsumeRefreshToken(ctx context.Context, token *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tokens[token.AccessToken]
	if !ok {
		cp := *token
		existing = &cp
		s.tokens[token.AccessToken] = existing
	}
	existing.Revoked = false
	s.refresh[token.RefreshToken] = token.AccessToken
	return nil
}

func (s *MemoryStore) RevokeToken(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token, ok := s.tokens[value]; ok {
		token.Revoked = true
		return nil
	}
	if access, ok := s.refresh[value]; ok {
		if token, ok := s.tokens[access]; ok {
			token.Revoked = true
		}
	}
	// Unknown values succeed: revocation is idempotent and must not leak
	// whether the token ever existed.
	return nil
}

func (s *MemoryStore) RevokeTokenByID(ctx context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, token := range s.tokens {
		if token.ID == tokenID {
			token.Revoked = true
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) ListTokens(ctx context.Context) ([]*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) CountTokens(ctx context.Context) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total, revoked int64
	for _, t := range s.tokens {
		total++
		if t.Revoked {
			revoked++
		}
	}
	return total, revoked, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
