package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/authgrid/authgrid/internal/common/config"
)

// GormStore implements the Store interface on a SQL database. Conditional
// writes are expressed as guarded UPDATEs checked through RowsAffected, so
// the database itself arbitrates concurrent redemption and rotation.
type GormStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens a SQLite-backed store.
func NewSQLiteStore(cfg *config.DatabaseConfig) (*GormStore, error) {
	return newGormStore(sqlite.Open(cfg.GetDSN("sqlite")))
}

// NewMySQLStore opens a MySQL-backed store.
func NewMySQLStore(cfg *config.DatabaseConfig) (*GormStore, error) {
	return newGormStore(mysql.Open(cfg.GetDSN("mysql")))
}

// NewPostgresStore opens a PostgreSQL-backed store.
func NewPostgresStore(cfg *config.DatabaseConfig) (*GormStore, error) {
	return newGormStore(postgres.Open(cfg.GetDSN("postgres")))
}

func newGormStore(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&Client{}, &User{}, &AuthorizationCode{}, &Token{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &GormStore{db: db}, nil
}

func (s *GormStore) CreateClient(ctx context.Context, client *Client) error {
	now := time.Now()
	client.CreatedAt = now
	client.UpdatedAt = now

	err := s.db.WithContext(ctx).Create(client).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyExists
	}
	return err
}

func (s *GormStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	var client Client
	err := s.db.WithContext(ctx).Where("client_id = ?", clientID).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *GormStore) UpdateClient(ctx context.Context, client *Client) error {
	client.UpdatedAt = time.Now()
	res := s.db.WithContext(ctx).Model(&Client{}).Where("client_id = ?", client.ID).Updates(client)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteClient(ctx context.Context, clientID string) error {
	res := s.db.WithContext(ctx).Where("client_id = ?", clientID).Delete(&Client{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListClients(ctx context.Context) ([]*Client, error) {
	var clients []*Client
	err := s.db.WithContext(ctx).Order("created_at asc").Find(&clients).Error
	return clients, err
}

func (s *GormStore) CreateUser(ctx context.Context, user *User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	err := s.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyExists
	}
	return err
}

func (s *GormStore) GetUser(ctx context.Context, userID string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}

	err := s.db.WithContext(ctx).Create(code).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyExists
	}
	return err
}

func (s *GormStore) GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	var authCode AuthorizationCode
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&authCode).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &authCode, nil
}

func (s *GormStore) ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	// "mark used where not used": the database decides the single winner.
	res := s.db.WithContext(ctx).Model(&AuthorizationCode{}).
		Where("code = ? AND used = ?", code, false).
		Update("used", true)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetAuthorizationCode(ctx, code); err != nil {
			return nil, ErrNotFound
		}
		return nil, ErrConsumed
	}

	return s.GetAuthorizationCode(ctx, code)
}

func (s *GormStore) UnconsumeAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	res := s.db.WithContext(ctx).Model(&AuthorizationCode{}).
		Where("code = ?", code.Code).
		Update("used", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SaveToken(ctx context.Context, token *Token) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	err := s.db.WithContext(ctx).Create(token).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyExists
	}
	return err
}

func (s *GormStore) GetTokenByAccess(ctx context.Context, accessToken string) (*Token, error) {
	var token Token
	err := s.db.WithContext(ctx).Where("access_token = ?", accessToken).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *GormStore) GetTokenByRefresh(ctx context.Context, refreshToken string) (*Token, error) {
	var token Token
	err := s.db.WithContext(ctx).Where("refresh_token = ?", refreshToken).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *GormStore) ConsumeRefreshToken(ctx context.Context, refreshToken, clientID string) (*Token, error) {
	res := s.db.WithContext(ctx).Model(&Token{}).
		Where("refresh_token = ? AND client_id = ? AND revoked = ?", refreshToken, clientID, false).
		Update("revoked", true)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		token, err := s.GetTokenByRefresh(ctx, refreshToken)
		if err != nil || token.ClientID != clientID {
			return nil, ErrNotFound
		}
		return nil, ErrConsumed
	}

	return s.GetTokenByRefresh(ctx, refreshToken)
}

func (s *GormStore) UnconsumeRefreshToken(ctx context.Context, token *Token) error {
	return s.db.WithContext(ctx).Model(&Token{}).
		Where("token_id = ?", token.ID).
		Update("revoked", false).Error
}

func (s *GormStore) RevokeToken(ctx context.Context, value string) error {
	// Idempotent by construction: zero rows affected is still success.
	return s.db.WithContext(ctx).Model(&Token{}).
		Where("access_token = ? OR refresh_token = ?", value, value).
		Update("revoked", true).Error
}

func (s *GormStore) RevokeTokenByID(ctx context.Context, tokenID string) error {
	res := s.db.WithContext(ctx).Model(&Token{}).
		Where("token_id = ?", tokenID).
		Update("revoked", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListTokens(ctx context.Context) ([]*Token, error) {
	var tokens []*Token
	err := s.db.WithContext(ctx).Order("created_at desc").Find(&tokens).Error
	return tokens, err
}

func (s *GormStore) CountTokens(ctx context.Context) (int64, int64, error) {
	var total, revoked int64
	if err := s.db.WithContext(ctx).Model(&Token{}).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err := s.db.WithContext(ctx).Model(&Token{}).Where("revoked = ?", true).Count(&revoked).Error; err != nil {
		return 0, 0, err
	}
	return total, revoked, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
