package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/itemshare/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

var epoch = time.Unix(1_760_000_000, 0)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newService(secret string, ttl time.Duration) (*TokenService, *fakeClock) {
	clock := &fakeClock{t: epoch}
	return NewTokenService([]byte(secret), ttl, WithClock(clock.Now)), clock
}

func TestIssueAndValidate_Success(t *testing.T) {
	t.Parallel()

	s, _ := newService("super-secret", time.Hour)

	tok, err := s.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	got, err := s.Validate(tok)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if got != "user-123" {
		t.Fatalf("userID mismatch: got %q want %q", got, "user-123")
	}
}

func TestValidate_TTLBoundary(t *testing.T) {
	t.Parallel()

	const ttl = 15 * time.Minute
	s, clock := newService("k", ttl)

	tok, err := s.Issue("u1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	clock.Advance(ttl - time.Second)
	if _, err := s.Validate(tok); err != nil {
		t.Fatalf("token must be valid just before expiry, got %v", err)
	}

	clock.Advance(2 * time.Second)
	_, err = s.Validate(tok)
	if !errors.Is(err, common.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired just after expiry, got %v", err)
	}
	if !errors.Is(err, common.ErrAuthenticationFailed) {
		t.Fatalf("expired token must be an authentication failure, got %v", err)
	}
}

func TestValidate_FractionalIssueTime(t *testing.T) {
	t.Parallel()

	const ttl = time.Minute
	s, clock := newService("k", ttl)
	clock.Advance(900 * time.Millisecond)

	tok, err := s.Issue("u1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	clock.Advance(ttl - 500*time.Millisecond)
	if _, err := s.Validate(tok); err != nil {
		t.Fatalf("token must be valid half a second before its TTL ends, got %v", err)
	}

	clock.Advance(500 * time.Millisecond)
	if _, err := s.Validate(tok); err != nil {
		t.Fatalf("token must be valid at exactly its TTL, got %v", err)
	}

	clock.Advance(time.Second)
	if _, err := s.Validate(tok); !errors.Is(err, common.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired a second after the TTL, got %v", err)
	}
}

func TestCeilSecond(t *testing.T) {
	t.Parallel()

	whole := epoch.Add(3 * time.Second)
	if got := ceilSecond(whole); !got.Equal(whole) {
		t.Fatalf("whole second must stay put, got %v", got)
	}
	if got := ceilSecond(whole.Add(time.Nanosecond)); !got.Equal(whole.Add(time.Second)) {
		t.Fatalf("fraction must round up, got %v", got)
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	t.Parallel()

	issuer, _ := newService("right-secret", time.Hour)
	verifier, _ := newService("wrong-secret", time.Hour)

	tok, err := issuer.Issue("u2")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	_, err = verifier.Validate(tok)
	if !errors.Is(err, common.ErrTokenBadSignature) {
		t.Fatalf("expected ErrTokenBadSignature, got %v", err)
	}
}

func TestValidate_TamperedPayload(t *testing.T) {
	t.Parallel()

	s, _ := newService("k", time.Hour)
	tok, err := s.Issue("u3")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	other, err := s.Issue("attacker")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	// splice the attacker's payload under u3's signature
	a := strings.Split(tok, ".")
	b := strings.Split(other, ".")
	forged := a[0] + "." + b[1] + "." + a[2]

	if _, err := s.Validate(forged); !errors.Is(err, common.ErrTokenBadSignature) {
		t.Fatalf("expected ErrTokenBadSignature, got %v", err)
	}
}

func TestValidate_Malformed(t *testing.T) {
	t.Parallel()

	s, _ := newService("k", time.Hour)

	for _, in := range []string{"", "not.a.jwt", "abc"} {
		if _, err := s.Validate(in); !errors.Is(err, common.ErrTokenMalformed) {
			t.Fatalf("Validate(%q): expected ErrTokenMalformed, got %v", in, err)
		}
	}
}

func TestValidate_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	s, _ := newService("k", time.Hour)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(epoch),
			ExpiresAt: jwt.NewNumericDate(epoch.Add(time.Hour)),
		},
		UserID: "u4",
	})
	signed, err := tok.SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := s.Validate(signed); err == nil {
		t.Fatal("HS512 token must be rejected")
	}
}

func TestValidate_IssuedInFuture(t *testing.T) {
	t.Parallel()

	s, clock := newService("k", time.Hour)
	future := NewTokenService([]byte("k"), time.Hour, WithClock(func() time.Time {
		return clock.Now().Add(2 * time.Minute)
	}))

	tok, err := future.Issue("u5")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	if _, err := s.Validate(tok); !errors.Is(err, common.ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed for future iat, got %v", err)
	}

	// within tolerance
	near := NewTokenService([]byte("k"), time.Hour, WithClock(func() time.Time {
		return clock.Now().Add(10 * time.Second)
	}))
	tok, err = near.Issue("u5")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := s.Validate(tok); err != nil {
		t.Fatalf("small skew must be tolerated, got %v", err)
	}
}

func TestValidate_MissingUserID(t *testing.T) {
	t.Parallel()

	s, _ := newService("k", time.Hour)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(epoch),
			ExpiresAt: jwt.NewNumericDate(epoch.Add(time.Hour)),
		},
	})
	signed, err := tok.SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := s.Validate(signed); !errors.Is(err, common.ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}
