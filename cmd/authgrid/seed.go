package main

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/authgrid/authgrid/internal/engine"
	"github.com/authgrid/authgrid/internal/storage"
)

// seedDevFixtures provisions a known client and user for local
// development. Never enable this in production; the credentials below
// are public.
func seedDevFixtures(logger *zap.Logger, clients *engine.ClientAuthority, store storage.Store) error {
	ctx := context.Background()

	reg, err := clients.Register(ctx, &engine.RegisterRequest{
		Name:         "dev client",
		RedirectURIs: []string{"http://localhost:3000/callback"},
		GrantTypes: []string{
			"authorization_code",
			"client_credentials",
			"password",
			"refresh_token",
		},
		Scope: "read write admin",
	})
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("devpass"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	err = store.CreateUser(ctx, &storage.User{
		ID:           "dev-user",
		Username:     "dev",
		PasswordHash: string(hash),
		Email:        "dev@localhost",
		Enabled:      true,
	})
	if err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
		return err
	}

	logger.Warn("development fixtures seeded",
		zap.String("client_id", reg.ClientID),
		zap.String("client_secret", reg.ClientSecret),
		zap.String("username", "dev"))
	return nil
}
