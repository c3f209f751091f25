// Package services contains server-side business logic. This file implements
// UserService, the credential store: registration, secret verification,
// login with token issuance, refresh-token rotation, secret changes and
// deactivation.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/itemshare/internal/common"
	"github.com/dmitrijs2005/itemshare/internal/dbx"
	"github.com/dmitrijs2005/itemshare/internal/logging"
	"github.com/dmitrijs2005/itemshare/internal/server/auth"
	"github.com/dmitrijs2005/itemshare/internal/server/models"
	"github.com/dmitrijs2005/itemshare/internal/server/repositories/repomanager"
)

const (
	MinUserNameLength = 3
	MaxUserNameLength = 64
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// UserService is the credential store: accounts, secrets and the token pairs
// handed out on login.
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	tokens                       *auth.TokenService
	hasher                       *auth.Hasher
	refreshTokenValidityDuration time.Duration
	logger                       logging.Logger
	now                          func() time.Time
}

// NewUserService builds a UserService; refresh tokens it issues live for
// refreshTokenValidityDuration.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, tokens *auth.TokenService,
	hasher *auth.Hasher, refreshTokenValidityDuration time.Duration, logger logging.Logger) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		tokens:                       tokens,
		hasher:                       hasher,
		refreshTokenValidityDuration: refreshTokenValidityDuration,
		logger:                       logger.With("module", "users"),
		now:                          time.Now,
	}
}

func validateUserName(userName string) error {
	n := utf8.RuneCountInString(userName)
	if n < MinUserNameLength || n > MaxUserNameLength {
		return fmt.Errorf("%w: username must be %d to %d characters",
			common.ErrValidation, MinUserNameLength, MaxUserNameLength)
	}
	return nil
}

// Register creates a new active user. An empty displayName falls back to the
// username.
func (s *UserService) Register(ctx context.Context, userName, displayName, secret string) (*models.User, error) {
	userName = strings.TrimSpace(userName)
	if err := validateUserName(userName); err != nil {
		return nil, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = userName
	}

	hash, err := s.hasher.Hash(secret)
	if err != nil {
		if errors.Is(err, common.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	user, err := s.repomanager.Users(s.db).Create(ctx, &models.User{
		UserName:     userName,
		DisplayName:  displayName,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Verify checks secret against the stored hash and returns the user id.
// Unknown, deactivated and mismatching users all fail with the same
// common.ErrAuthenticationFailed after a full bcrypt comparison.
func (s *UserService) Verify(ctx context.Context, userName, secret string) (string, error) {
	user, err := s.repomanager.Users(s.db).GetUserByLogin(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.hasher.VerifyDummy(secret)
			return "", common.ErrAuthenticationFailed
		}
		return "", fmt.Errorf("error getting user: %w", err)
	}

	if !user.Active {
		s.hasher.VerifyDummy(secret)
		return "", common.ErrAuthenticationFailed
	}

	if !s.hasher.Verify(user.PasswordHash, secret) {
		return "", common.ErrAuthenticationFailed
	}

	return user.ID, nil
}

// Login verifies the credentials and returns a fresh TokenPair.
func (s *UserService) Login(ctx context.Context, userName, secret string) (*TokenPair, error) {
	userID, err := s.Verify(ctx, userName, secret)
	if err != nil {
		return nil, err
	}
	return s.generateTokenPair(ctx, userID, s.db)
}

// RefreshToken consumes refreshToken and returns a new TokenPair. The old
// token is deleted in the same transaction that stores its successor, so a
// token can be used once.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var pair *TokenPair

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		tokens := s.repomanager.RefreshTokens(tx)

		token, err := tokens.Find(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrAuthenticationFailed
			}
			return fmt.Errorf("error searching refresh token: %w", err)
		}

		if err := tokens.Delete(ctx, refreshToken); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrAuthenticationFailed
			}
			return fmt.Errorf("error deleting refresh token: %w", err)
		}

		if s.now().After(token.Expires) {
			return common.ErrRefreshTokenExpired
		}

		user, err := s.repomanager.Users(tx).GetUserByID(ctx, token.UserID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrAuthenticationFailed
			}
			return fmt.Errorf("error getting user: %w", err)
		}
		if !user.Active {
			return common.ErrAuthenticationFailed
		}

		pair, err = s.generateTokenPair(ctx, user.ID, tx)
		return err
	})

	// an expired token is still removed
	if errors.Is(err, common.ErrRefreshTokenExpired) {
		if delErr := s.repomanager.RefreshTokens(s.db).Delete(ctx, refreshToken); delErr != nil &&
			!errors.Is(delErr, common.ErrNotFound) {
			s.logger.Warn(ctx, "failed to drop expired refresh token", "error", delErr)
		}
	}

	if err != nil {
		return nil, err
	}
	return pair, nil
}

// ChangeSecret replaces the user's secret after checking the current one and
// revokes every refresh token of the user.
func (s *UserService) ChangeSecret(ctx context.Context, userID, oldSecret, newSecret string) error {
	if err := auth.ValidateSecret(newSecret); err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		users := s.repomanager.Users(tx)

		user, err := users.GetUserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrAuthenticationFailed
			}
			return fmt.Errorf("error getting user: %w", err)
		}
		if !user.Active || !s.hasher.Verify(user.PasswordHash, oldSecret) {
			return common.ErrAuthenticationFailed
		}

		hash, err := s.hasher.Hash(newSecret)
		if err != nil {
			return fmt.Errorf("hash secret: %w", err)
		}
		if err := users.UpdatePasswordHash(ctx, userID, hash); err != nil {
			return fmt.Errorf("error updating secret: %w", err)
		}
		if err := s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, userID); err != nil {
			return fmt.Errorf("error revoking refresh tokens: %w", err)
		}

		s.logger.Info(ctx, "secret changed", "user_id", userID)
		return nil
	})
}

// Deactivate disables the account and revokes its refresh tokens. Access
// tokens already issued stay valid until they expire.
func (s *UserService) Deactivate(ctx context.Context, userID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).Deactivate(ctx, userID); err != nil {
			return fmt.Errorf("error deactivating user: %w", err)
		}
		if err := s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, userID); err != nil {
			return fmt.Errorf("error revoking refresh tokens: %w", err)
		}

		s.logger.Info(ctx, "user deactivated", "user_id", userID)
		return nil
	})
}

func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	return user, nil
}

// Authenticate resolves a bearer access token to a user id.
func (s *UserService) Authenticate(token string) (string, error) {
	return s.tokens.Validate(token)
}

func (s *UserService) generateTokenPair(ctx context.Context, userID string, db dbx.DBTX) (*TokenPair, error) {
	access, err := s.tokens.Issue(userID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh, err := common.MakeRandHexString(common.RefreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	expires := s.now().Add(s.refreshTokenValidityDuration)
	if err := s.repomanager.RefreshTokens(db).Create(ctx, userID, refresh, expires); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
