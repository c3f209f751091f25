// Package auth issues and validates access tokens and hashes user secrets.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/itemshare/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultClockSkew is how far in the future a token's issued-at may lie
// before the token is refused.
const DefaultClockSkew = 30 * time.Second

// Claims are the registered JWT claims plus the user id.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// TokenService signs and checks HS256 access tokens. Validation never touches
// storage: a token is good while its signature holds and it has not expired.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	skew   time.Duration
	now    func() time.Time
}

type TokenOption func(*TokenService)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

func WithClockSkew(d time.Duration) TokenOption {
	return func(s *TokenService) { s.skew = d }
}

func NewTokenService(secret []byte, ttl time.Duration, opts ...TokenOption) *TokenService {
	s := &TokenService{
		secret: secret,
		ttl:    ttl,
		skew:   DefaultClockSkew,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL is the lifetime of tokens minted by Issue.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// ceilSecond rounds t up to a whole second. NumericDate keeps only seconds,
// and truncating exp would end a token before its full TTL.
func ceilSecond(t time.Time) time.Time {
	if c := t.Truncate(time.Second); c.Before(t) {
		return c.Add(time.Second)
	}
	return t
}

// Issue mints a token for userID valid from now until at least now+TTL.
func (s *TokenService) Issue(userID string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(ceilSecond(now.Add(s.ttl))),
		},
		UserID: userID,
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// Validate returns the user id carried by tokenString. Failures are one of
// common.ErrTokenExpired, common.ErrTokenMalformed or
// common.ErrTokenBadSignature.
func (s *TokenService) Validate(tokenString string) (string, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return "", common.ErrTokenBadSignature
		}
		return "", fmt.Errorf("%w: %v", common.ErrTokenMalformed, err)
	}

	if claims.UserID == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return "", fmt.Errorf("%w: missing claims", common.ErrTokenMalformed)
	}

	now := s.now()
	if claims.IssuedAt.After(now.Add(s.skew)) {
		return "", fmt.Errorf("%w: issued in the future", common.ErrTokenMalformed)
	}
	if now.After(claims.ExpiresAt.Time) {
		return "", common.ErrTokenExpired
	}

	return claims.UserID, nil
}
